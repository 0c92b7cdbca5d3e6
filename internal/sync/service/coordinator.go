package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"fieldsync_backend/internal/sync/repository"
	"fieldsync_backend/platform/apperr"
	"fieldsync_backend/platform/logger"
)

// Message types a device can submit a batch under. The transaction scope
// differs per type: inserts are all-or-nothing, the other two commit
// record by record.
const (
	MessageTypeInsert         = "insert"
	MessageTypeTaskTourUpdate = "tasktour-update"
	MessageTypeAdhoc          = "adhoc"
)

const (
	msgNothingSubmitted = "no records submitted"
	msgAllEmpty         = "all submitted records are empty"
	msgAllInvalid       = "no valid records in batch"
	msgBatchRolledBack  = "batch rolled back, no records persisted"
	msgProcessed        = "batch processed"
)

// Result is the aggregate outcome of one batch. Trace is an append-only
// narrative for operator diagnosis; the device-facing response never
// carries it.
type Result struct {
	ReturnCode  int
	RecordCount int
	Message     string
	Trace       string
}

// Coordinator owns batch decoding, per-message-type transaction policy
// and post-commit side-effect dispatch.
type Coordinator struct {
	store      repository.Store
	registry   *Registry
	engine     *UpsertEngine
	reconciler *AdhocReconciler
	effects    *EffectDispatcher
	log        *logger.Logger
}

// NewCoordinator creates a batch coordinator.
func NewCoordinator(store repository.Store, registry *Registry, engine *UpsertEngine, reconciler *AdhocReconciler, effects *EffectDispatcher, log *logger.Logger) *Coordinator {
	return &Coordinator{
		store:      store,
		registry:   registry,
		engine:     engine,
		reconciler: reconciler,
		effects:    effects,
		log:        log,
	}
}

// ProcessBatch runs one submitted batch to completion. Records are
// processed in array order. The returned error is non-nil only for
// unclassified system failures; every classified failure is folded into
// the Result so the caller's retry policy stays quiet.
func (c *Coordinator) ProcessBatch(ctx context.Context, messageType string, clientVersion int, records []json.RawMessage) (*Result, error) {
	var trace strings.Builder
	fmt.Fprintf(&trace, "batch received: type=%s records=%d clientVersion=%d\n",
		messageType, len(records), clientVersion)

	valid, emptyCount, invalidCount := c.filterRecords(records, &trace)
	if len(valid) == 0 {
		msg := msgNothingSubmitted
		switch {
		case emptyCount > 0 && invalidCount == 0:
			msg = msgAllEmpty
		case invalidCount > 0:
			msg = msgAllInvalid
		}
		fmt.Fprintf(&trace, "validation failure: %s (empty=%d invalid=%d)\n",
			msg, emptyCount, invalidCount)
		return &Result{ReturnCode: 1, Message: msg, Trace: trace.String()},
			apperr.Validation(msg)
	}
	if emptyCount > 0 || invalidCount > 0 {
		fmt.Fprintf(&trace, "skipped before processing: empty=%d invalid=%d\n",
			emptyCount, invalidCount)
	}

	var (
		result *Result
		err    error
	)
	switch messageType {
	case MessageTypeInsert:
		result, err = c.processInsertBatch(ctx, clientVersion, valid, &trace)
	case MessageTypeTaskTourUpdate, MessageTypeAdhoc:
		result, err = c.processPerRecord(ctx, clientVersion, valid, &trace)
	default:
		msg := "unknown message type " + messageType
		fmt.Fprintf(&trace, "%s\n", msg)
		return &Result{ReturnCode: 1, Message: msg, Trace: trace.String()},
			apperr.Validation(msg)
	}
	if result != nil {
		result.Trace = trace.String()
	}
	return result, err
}

// filterRecords decodes the wire records. Empty/null elements and
// non-object elements are excluded before processing but kept in the
// accounting.
func (c *Coordinator) filterRecords(records []json.RawMessage, trace *strings.Builder) (valid []map[string]any, emptyCount, invalidCount int) {
	for i, rec := range records {
		trimmed := bytes.TrimSpace(rec)
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
			emptyCount++
			fmt.Fprintf(trace, "record %d: empty, skipped\n", i)
			continue
		}
		var raw map[string]any
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			invalidCount++
			fmt.Fprintf(trace, "record %d: not a JSON object, skipped\n", i)
			continue
		}
		if len(raw) == 0 {
			emptyCount++
			fmt.Fprintf(trace, "record %d: empty object, skipped\n", i)
			continue
		}
		valid = append(valid, raw)
	}
	return valid, emptyCount, invalidCount
}

// processInsertBatch wraps the whole valid batch in one transaction.
// Validation and not-found failures are recovered per record inside the
// transaction; an integrity or system failure aborts and rolls back
// everything processed so far in this call.
func (c *Coordinator) processInsertBatch(ctx context.Context, clientVersion int, records []map[string]any, trace *strings.Builder) (*Result, error) {
	var persisted []*Persisted

	txErr := c.store.RunInTx(ctx, func(tx repository.Store) error {
		for i, raw := range records {
			et, err := c.registry.Resolve(raw)
			if err != nil {
				fmt.Fprintf(trace, "record %d: %v, skipped\n", i, err)
				continue
			}
			p, err := c.engine.Upsert(ctx, tx, et, clientVersion, raw, true)
			if err != nil {
				if apperr.Is(err, apperr.KindValidation) || apperr.Is(err, apperr.KindNotFound) {
					c.log.RecordSkipped(MessageTypeInsert, recordID(raw), err.Error())
					fmt.Fprintf(trace, "record %d (%s): %v, skipped\n", i, et, err)
					continue
				}
				fmt.Fprintf(trace, "record %d (%s): %v, aborting batch\n", i, et, err)
				return err
			}
			fmt.Fprintf(trace, "record %d (%s): persisted\n", i, et)
			persisted = append(persisted, p)
		}
		return nil
	})
	if txErr != nil {
		result := &Result{ReturnCode: 1, Message: msgBatchRolledBack}
		if apperr.Is(txErr, apperr.KindConflict) {
			return result, nil
		}
		c.log.Error("insert batch failed", "error", txErr)
		return result, txErr
	}

	c.dispatchEffects(ctx, persisted, trace)

	return &Result{RecordCount: len(persisted), Message: msgProcessed}, nil
}

// processPerRecord gives every record its own transaction so one bad
// record does not discard siblings. Ad-hoc work items are routed through
// the reconciler; everything else takes the plain upsert path with
// integrity violations downgraded to skips.
func (c *Coordinator) processPerRecord(ctx context.Context, clientVersion int, records []map[string]any, trace *strings.Builder) (*Result, error) {
	var (
		persisted []*Persisted
		sysErr    error
	)

	for i, raw := range records {
		et, err := c.registry.Resolve(raw)
		if err != nil {
			fmt.Fprintf(trace, "record %d: %v, skipped\n", i, err)
			continue
		}

		var p *Persisted
		if et == EntityWorkItem && IsAdhocRecord(raw) {
			p, err = c.reconciler.Reconcile(ctx, c.store, clientVersion, raw)
		} else {
			err = c.store.RunInTx(ctx, func(tx repository.Store) error {
				var upsertErr error
				p, upsertErr = c.engine.Upsert(ctx, tx, et, clientVersion, raw, false)
				return upsertErr
			})
		}
		if err != nil {
			switch {
			case apperr.Is(err, apperr.KindBusy):
				fmt.Fprintf(trace, "record %d (%s): scheduled instance busy, skipped\n", i, et)
			case apperr.Is(err, apperr.KindValidation), apperr.Is(err, apperr.KindNotFound):
				c.log.RecordSkipped(string(et), recordID(raw), err.Error())
				fmt.Fprintf(trace, "record %d (%s): %v, skipped\n", i, et, err)
			default:
				c.log.Error("record failed", "entity", string(et), "recordId", recordID(raw), "error", err)
				fmt.Fprintf(trace, "record %d (%s): %v, failed\n", i, et, err)
				if sysErr == nil {
					sysErr = err
				}
			}
			continue
		}
		if p == nil {
			fmt.Fprintf(trace, "record %d (%s): integrity violation, skipped\n", i, et)
			continue
		}
		fmt.Fprintf(trace, "record %d (%s): persisted\n", i, et)
		persisted = append(persisted, p)
	}

	c.dispatchEffects(ctx, persisted, trace)

	result := &Result{RecordCount: len(persisted), Message: msgProcessed}
	if sysErr != nil && len(persisted) == 0 {
		result.ReturnCode = 1
	}
	// Re-raise the first system failure so the outer retry wrapper gets a
	// shot; all writes are idempotent upserts, so a full replay is safe.
	return result, sysErr
}

// dispatchEffects runs post-commit side effects. Their failures are
// scoped to themselves and never appear in the batch accounting.
func (c *Coordinator) dispatchEffects(ctx context.Context, persisted []*Persisted, trace *strings.Builder) {
	if c.effects == nil {
		return
	}
	for _, p := range persisted {
		c.effects.Dispatch(ctx, p, trace)
	}
}

func recordID(raw map[string]any) string {
	if id := getString(raw, "id"); id != "" {
		return id
	}
	return "<unknown>"
}
