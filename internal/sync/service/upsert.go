package service

import (
	"context"
	"time"

	"fieldsync_backend/internal/sync/repository"
	"fieldsync_backend/platform/apperr"
	"fieldsync_backend/platform/logger"

	"github.com/google/uuid"
)

// Persisted is the outcome of a single record's durable write. Side
// effects are dispatched from it after commit, keyed on the entity type
// AND field predicates, never on type alone.
type Persisted struct {
	Type       EntityType
	WorkItem   *repository.WorkItem
	Detail     *repository.WorkItemDetail
	Attendance *repository.AttendanceEvent
	// Created is true when the write was an insert rather than an
	// in-place update.
	Created bool
	// Verifiers carries the performer identifiers a work-permit mutation
	// requested verification for. Dispatched post-commit.
	Verifiers []uuid.UUID
}

// UpsertEngine performs idempotent create-or-update by stable identifier
// for a single entity, including nested child entities.
type UpsertEngine struct {
	normalizer *Normalizer
	log        *logger.Logger
}

// NewUpsertEngine creates an upsert engine.
func NewUpsertEngine(normalizer *Normalizer, log *logger.Logger) *UpsertEngine {
	return &UpsertEngine{normalizer: normalizer, log: log}
}

// Upsert persists one raw record of the given entity type against store.
// With strict=false an integrity violation is logged and the call returns
// (nil, nil): the caller treats the record as skipped. With strict=true
// (the batch-transactional insert path) the violation propagates so the
// surrounding transaction rolls back.
func (e *UpsertEngine) Upsert(ctx context.Context, store repository.Store, et EntityType, clientVersion int, raw map[string]any, strict bool) (*Persisted, error) {
	var (
		persisted *Persisted
		err       error
	)

	switch et {
	case EntityWorkItem:
		persisted, err = e.upsertWorkItem(ctx, store, clientVersion, raw)
	case EntityWorkItemDetail:
		persisted, err = e.upsertDetail(ctx, store, clientVersion, raw)
	case EntityAttendanceEvent:
		persisted, err = e.upsertAttendance(ctx, store, clientVersion, raw)
	case EntityWorkPermit:
		persisted, err = e.upsertWorkPermit(ctx, store, clientVersion, raw)
	default:
		return nil, apperr.Validation("no upsert path for entity type " + string(et))
	}

	if err != nil {
		if apperr.Is(err, apperr.KindConflict) && !strict {
			e.log.Warn("integrity violation on upsert, record skipped",
				"entity", string(et), "error", err)
			return nil, nil
		}
		return nil, err
	}
	return persisted, nil
}

// upsertWorkItem resolves the parent first, then upserts each nested
// detail independently by its own identifier with the parent reference
// rewritten to the resolved parent key. Children are extracted from the
// RAW record because normalization rewrites the fields they sit behind.
func (e *UpsertEngine) upsertWorkItem(ctx context.Context, store repository.Store, clientVersion int, raw map[string]any) (*Persisted, error) {
	rawDetails := rawChildMaps(raw, "details")

	norm := e.normalizer.Normalize(EntityWorkItem, clientVersion, raw)
	now := time.Now().UTC()
	item, err := decodeWorkItem(norm, now)
	if err != nil {
		return nil, err
	}

	created, err := e.resolveWorkItem(ctx, store, item)
	if err != nil {
		return nil, err
	}

	for _, rawDetail := range rawDetails {
		if err := e.upsertDetailUnder(ctx, store, clientVersion, rawDetail, item.ID); err != nil {
			return nil, err
		}
	}

	return &Persisted{Type: EntityWorkItem, WorkItem: item, Created: created}, nil
}

// resolveWorkItem updates in place when the identifier exists, inserts
// otherwise. Reports whether an insert happened.
func (e *UpsertEngine) resolveWorkItem(ctx context.Context, store repository.Store, item *repository.WorkItem) (bool, error) {
	existing, err := store.GetWorkItem(ctx, item.ID)
	switch {
	case err == nil:
		item.CreatedAt = existing.CreatedAt
		return false, store.UpdateWorkItem(ctx, item)
	case apperr.Is(err, apperr.KindNotFound):
		return true, store.InsertWorkItem(ctx, item)
	default:
		return false, err
	}
}

// upsertDetailUnder upserts a nested child detail with its parent
// reference forced to the resolved parent key.
func (e *UpsertEngine) upsertDetailUnder(ctx context.Context, store repository.Store, clientVersion int, raw map[string]any, parentID string) error {
	norm := e.normalizer.Normalize(EntityWorkItemDetail, clientVersion, raw)
	detail, err := decodeWorkItemDetail(norm, time.Now().UTC())
	if err != nil {
		return err
	}
	detail.WorkItemID = parentID

	return resolveDetail(ctx, store, detail)
}

// resolveDetail updates a detail row in place when its identifier
// exists, inserts otherwise.
func resolveDetail(ctx context.Context, store repository.Store, detail *repository.WorkItemDetail) error {
	existing, err := store.GetWorkItemDetail(ctx, detail.ID)
	switch {
	case err == nil:
		detail.CreatedAt = existing.CreatedAt
		return store.UpdateWorkItemDetail(ctx, detail)
	case apperr.Is(err, apperr.KindNotFound):
		return store.InsertWorkItemDetail(ctx, detail)
	default:
		return err
	}
}

// upsertDetail handles a detail row submitted on its own. The parent must
// already exist within the same transactional scope.
func (e *UpsertEngine) upsertDetail(ctx context.Context, store repository.Store, clientVersion int, raw map[string]any) (*Persisted, error) {
	norm := e.normalizer.Normalize(EntityWorkItemDetail, clientVersion, raw)
	detail, err := decodeWorkItemDetail(norm, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if detail.WorkItemID == "" {
		return nil, apperr.Validation("work item detail missing parent reference")
	}
	if _, err := store.GetWorkItem(ctx, detail.WorkItemID); err != nil {
		return nil, err
	}

	if err := resolveDetail(ctx, store, detail); err != nil {
		return nil, err
	}
	return &Persisted{Type: EntityWorkItemDetail, Detail: detail}, nil
}

func (e *UpsertEngine) upsertAttendance(ctx context.Context, store repository.Store, clientVersion int, raw map[string]any) (*Persisted, error) {
	norm := e.normalizer.Normalize(EntityAttendanceEvent, clientVersion, raw)
	event, err := decodeAttendanceEvent(norm, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	existing, err := store.GetAttendanceEvent(ctx, event.ID)
	switch {
	case err == nil:
		event.CreatedAt = existing.CreatedAt
		if err := store.UpdateAttendanceEvent(ctx, event); err != nil {
			return nil, err
		}
		return &Persisted{Type: EntityAttendanceEvent, Attendance: event}, nil
	case apperr.Is(err, apperr.KindNotFound):
		if err := store.InsertAttendanceEvent(ctx, event); err != nil {
			return nil, err
		}
		return &Persisted{Type: EntityAttendanceEvent, Attendance: event, Created: true}, nil
	default:
		return nil, err
	}
}

// upsertWorkPermit mutates a work-permit parent with its child permits
// and collects the verifier identifiers for post-commit verification
// triggers.
func (e *UpsertEngine) upsertWorkPermit(ctx context.Context, store repository.Store, clientVersion int, raw map[string]any) (*Persisted, error) {
	rawChildren := rawChildMaps(raw, "children")
	verifiers := verifierIDs(raw)

	norm := e.normalizer.Normalize(EntityWorkPermit, clientVersion, raw)
	now := time.Now().UTC()
	parent, err := decodeWorkItem(norm, now)
	if err != nil {
		return nil, err
	}

	// A returned permit closes out the parent.
	if getBool(norm, "isReturnWorkPermit") {
		parent.Status = repository.StatusCompleted
	}

	created, err := e.resolveWorkItem(ctx, store, parent)
	if err != nil {
		return nil, err
	}

	for _, rawChild := range rawChildren {
		childNorm := e.normalizer.Normalize(EntityWorkPermit, clientVersion, rawChild)
		child, err := decodeWorkItem(childNorm, now)
		if err != nil {
			return nil, err
		}
		child.ParentID = &parent.ID
		if _, err := e.resolveWorkItem(ctx, store, child); err != nil {
			return nil, err
		}
	}

	return &Persisted{
		Type:      EntityWorkPermit,
		WorkItem:  parent,
		Created:   created,
		Verifiers: verifiers,
	}, nil
}

// verifierIDs reads the verifiers list from a raw work-permit record.
func verifierIDs(raw map[string]any) []uuid.UUID {
	list, ok := raw["verifiers"].([]any)
	if !ok {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			continue
		}
		if id, err := uuid.Parse(s); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
