package handler

import (
	"context"
	"net/http"

	"fieldsync_backend/internal/dispatch"
	"fieldsync_backend/internal/sync/service"
	"fieldsync_backend/internal/sync/transport"
	"fieldsync_backend/platform/apperr"
	"fieldsync_backend/platform/httpkit"
	"fieldsync_backend/platform/logger"
	"fieldsync_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Enqueuer hands a batch to the retryable task queue. Satisfied by the
// dispatch client.
type Enqueuer interface {
	EnqueueBatch(ctx context.Context, payload dispatch.SyncBatchPayload) error
}

// Handler handles HTTP requests for device sync batches.
type Handler struct {
	coordinator *service.Coordinator
	enqueuer    Enqueuer
	val         *validator.Validator
	log         *logger.Logger
}

// New creates a new sync handler. enqueuer may be nil when the process
// only serves synchronous submissions.
func New(coordinator *service.Coordinator, enqueuer Enqueuer, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{coordinator: coordinator, enqueuer: enqueuer, val: val, log: log}
}

// ProcessBatch runs one submitted batch synchronously.
// POST /api/v1/sync/batches
func (h *Handler) ProcessBatch(c *gin.Context) {
	var req transport.SyncBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Messages(err))
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	batchID := uuid.New()
	log := h.log.WithDeviceID(identity.DeviceID().String()).WithBatchID(batchID.String())

	result, err := h.coordinator.ProcessBatch(c.Request.Context(), req.MessageType, req.ClientVersion, req.Records)
	if result != nil {
		// The trace stays operator-side; devices only see the envelope.
		log.Info("sync batch processed",
			"returnCode", result.ReturnCode,
			"recordCount", result.RecordCount,
			"message", result.Message,
			"trace", result.Trace,
		)
	}
	if err != nil && result == nil {
		httpkit.HandleError(c, err)
		return
	}
	if err != nil && !apperr.Is(err, apperr.KindValidation) {
		log.Error("sync batch error", "error", err)
	}

	httpkit.OK(c, transport.SyncBatchResponse{
		ReturnCode:  result.ReturnCode,
		RecordCount: result.RecordCount,
		Message:     result.Message,
	})
}

// EnqueueBatch accepts a batch for asynchronous processing with
// server-side retries.
// POST /api/v1/sync/batches/async
func (h *Handler) EnqueueBatch(c *gin.Context) {
	var req transport.SyncBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Messages(err))
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	batchID := uuid.New()
	err := h.enqueuer.EnqueueBatch(c.Request.Context(), dispatch.SyncBatchPayload{
		BatchID:       batchID.String(),
		DeviceID:      identity.DeviceID().String(),
		MessageType:   req.MessageType,
		ClientVersion: req.ClientVersion,
		Records:       req.Records,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"batchId": batchID, "status": "queued"})
}
