package transport

import "encoding/json"

// SyncBatchRequest is one device submission. Records are decoded
// individually so one malformed element cannot reject the batch.
type SyncBatchRequest struct {
	MessageType   string            `json:"messageType" validate:"required,oneof=insert tasktour-update adhoc"`
	ClientVersion int               `json:"clientVersion" validate:"min=0"`
	Records       []json.RawMessage `json:"records"`
}

// SyncBatchResponse is the device-facing outcome. The operator trace is
// deliberately absent; it goes to the logs only.
type SyncBatchResponse struct {
	ReturnCode  int    `json:"returnCode"`
	RecordCount int    `json:"recordCount"`
	Message     string `json:"message"`
}
