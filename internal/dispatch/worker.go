package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"fieldsync_backend/internal/config"
	syncservice "fieldsync_backend/internal/sync/service"
	"fieldsync_backend/platform/apperr"
	"fieldsync_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// BatchProcessor runs one batch to completion. Satisfied by the sync
// coordinator.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, messageType string, clientVersion int, records []json.RawMessage) (*syncservice.Result, error)
}

// Worker consumes queued sync batches.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor BatchProcessor
	log       *logger.Logger
}

// NewWorker creates the asynq worker. The retry delay is fixed rather
// than exponential so a transient outage retries on a predictable
// cadence.
func NewWorker(cfg *config.Config, processor BatchProcessor, log *logger.Logger) (*Worker, error) {
	opt, err := redisClientOpt(cfg.RedisURL, cfg.RedisTLSSkip)
	if err != nil {
		return nil, err
	}

	retryDelay := cfg.SyncRetryDelay
	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: cfg.SyncConcurrency,
		Queues: map[string]int{
			cfg.SyncQueueName: 1,
		},
		RetryDelayFunc: func(_ int, _ error, _ *asynq.Task) time.Duration {
			return retryDelay
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		mux:       mux,
		processor: processor,
		log:       log,
	}

	mux.HandleFunc(TaskSyncBatchProcess, w.handleSyncBatch)

	return w, nil
}

// handleSyncBatch re-runs the coordinator for a queued batch. Returning
// an error schedules an asynq retry; classified outcomes are already
// final in the result, so only system failures come back as errors.
func (w *Worker) handleSyncBatch(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseSyncBatchPayload(task)
	if err != nil {
		// A payload that cannot decode will never decode. Drop it.
		w.log.Error("sync batch payload undecodable, dropping task", "error", err)
		return nil
	}

	log := w.log.WithDeviceID(payload.DeviceID).WithBatchID(payload.BatchID)

	result, err := w.processor.ProcessBatch(ctx, payload.MessageType, payload.ClientVersion, payload.Records)
	if result != nil {
		log.Info("sync batch processed",
			"returnCode", result.ReturnCode,
			"recordCount", result.RecordCount,
			"message", result.Message,
			"trace", result.Trace,
		)
	}
	if err != nil {
		if isRetryable(err) {
			log.Error("sync batch hit system failure, will retry", "error", err)
			return err
		}
		log.Warn("sync batch failed with final outcome", "error", err)
	}
	return nil
}

// isRetryable holds for unclassified system failures only. Validation,
// not-found, integrity, and lock-busy outcomes never improve on replay.
func isRetryable(err error) bool {
	switch apperr.GetKind(err) {
	case apperr.KindValidation, apperr.KindNotFound, apperr.KindConflict,
		apperr.KindBusy, apperr.KindUnauthorized, apperr.KindBadRequest:
		return false
	}
	return true
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("sync worker stopped", "error", err)
	}
}
