// Package dispatch runs sync batches through asynq for transports that
// retry server-side. Only unclassified system failures are handed back
// to asynq; every classified outcome is final on the first attempt.
package dispatch

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskSyncBatchProcess = "sync:batch:process"

type SyncBatchPayload struct {
	BatchID       string            `json:"batchId"`
	DeviceID      string            `json:"deviceId"`
	MessageType   string            `json:"messageType"`
	ClientVersion int               `json:"clientVersion"`
	Records       []json.RawMessage `json:"records"`
}

func NewSyncBatchTask(payload SyncBatchPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSyncBatchProcess, data), nil
}

func ParseSyncBatchPayload(task *asynq.Task) (SyncBatchPayload, error) {
	var payload SyncBatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return SyncBatchPayload{}, err
	}
	return payload, nil
}
