package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"fieldsync_backend/internal/events"
	"fieldsync_backend/internal/sync/repository"
	"fieldsync_backend/platform/apperr"
	"fieldsync_backend/platform/lease"
	"fieldsync_backend/platform/logger"
)

const (
	adhocToken = "ADHOC"

	// Lease budget for the MATCHED update path. The TTL bounds how long a
	// crashed holder can block others; the wait bounds how long we queue
	// behind a live one.
	defaultLeaseTTL  = 10 * time.Second
	defaultLeaseWait = 5 * time.Second

	msgSystemBusy = "scheduled instance busy, resubmit later"
)

// IsAdhocRecord decides whether a record reports ad-hoc work. It MUST be
// given RAW pre-normalization fields: normalization renames the
// identifier field and would corrupt this check.
func IsAdhocRecord(raw map[string]any) bool {
	jobType := getString(raw, "jobType")
	if jobType == "" {
		jobType = getString(raw, "jobtype")
	}
	if strings.EqualFold(jobType, adhocToken) {
		return true
	}

	identifier := strings.ToUpper(getString(raw, "identifier"))
	switch identifier {
	case adhocToken, "ADHOCINTERNALTOUR", "ADHOCEXTERNALTOUR":
		return true
	}
	return strings.Contains(identifier, adhocToken)
}

// AdhocReconciler matches an incoming ad-hoc record to an existing
// scheduled work item (MATCHED) or creates a new ad-hoc instance
// (UNMATCHED). Exactly one of the two happens per record.
type AdhocReconciler struct {
	locker     lease.Locker
	normalizer *Normalizer
	bus        events.Bus
	log        *logger.Logger
	leaseTTL   time.Duration
	leaseWait  time.Duration
}

// NewAdhocReconciler creates a reconciler. Zero lease durations fall back
// to the defaults.
func NewAdhocReconciler(locker lease.Locker, normalizer *Normalizer, bus events.Bus, log *logger.Logger, leaseTTL, leaseWait time.Duration) *AdhocReconciler {
	if leaseTTL <= 0 {
		leaseTTL = defaultLeaseTTL
	}
	if leaseWait <= 0 {
		leaseWait = defaultLeaseWait
	}
	return &AdhocReconciler{
		locker:     locker,
		normalizer: normalizer,
		bus:        bus,
		log:        log,
		leaseTTL:   leaseTTL,
		leaseWait:  leaseWait,
	}
}

// Reconcile processes one raw ad-hoc record against store.
//
// Failure semantics: a lease timeout surfaces as a Busy outcome for this
// record; a missing explicitly-referenced scheduled instance is NotFound
// for this record only; anything else is a record-level failure the
// caller classifies.
func (r *AdhocReconciler) Reconcile(ctx context.Context, store repository.Store, clientVersion int, raw map[string]any) (*Persisted, error) {
	rawDetails := rawChildMaps(raw, "details")

	norm := r.normalizer.Normalize(EntityWorkItem, clientVersion, raw)
	now := time.Now().UTC()
	item, err := decodeWorkItem(norm, now)
	if err != nil {
		return nil, err
	}

	scheduled, err := r.findScheduled(ctx, store, norm, item)
	if err != nil {
		return nil, err
	}

	if scheduled != nil && scheduled.IdentifierKind == repository.KindTask {
		return r.reconcileMatched(ctx, store, scheduled, item, rawDetails, clientVersion)
	}
	return r.reconcileUnmatched(ctx, store, item, rawDetails, clientVersion)
}

// findScheduled resolves the scheduled instance, by explicit reference
// when the record carries one, by identity tuple otherwise. An explicit
// reference that resolves to nothing is fatal for the record; an empty
// tuple match simply means UNMATCHED.
func (r *AdhocReconciler) findScheduled(ctx context.Context, store repository.Store, norm map[string]any, item *repository.WorkItem) (*repository.WorkItem, error) {
	if scheduledID := getOptionalID(norm, "scheduledId"); scheduledID != nil {
		scheduled, err := store.GetWorkItem(ctx, *scheduledID)
		if err != nil {
			return nil, err
		}
		return scheduled, nil
	}

	scheduled, err := store.FindScheduledInstance(ctx, repository.ScheduledMatch{
		QuestionSetID: item.QuestionSetID,
		PerformerID:   item.PerformerID,
		AssetID:       item.AssetID,
		SiteID:        item.SiteID,
		PlanStart:     item.PlanStart,
		PlanEnd:       item.PlanEnd,
	})
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return scheduled, nil
}

// reconcileMatched updates the existing scheduled instance under a lease
// and a row lock. Two devices can submit overlapping updates to the same
// instance out of order; the lease serializes workers, the row lock
// serializes transactions.
func (r *AdhocReconciler) reconcileMatched(ctx context.Context, store repository.Store, scheduled, incoming *repository.WorkItem, rawDetails []map[string]any, clientVersion int) (*Persisted, error) {
	held, err := r.locker.Acquire(ctx, "schedule:"+scheduled.ID, r.leaseTTL, r.leaseWait)
	if err != nil {
		if errors.Is(err, lease.ErrNotAcquired) {
			r.log.LockBusy("schedule:"+scheduled.ID, r.leaseWait.Milliseconds())
			return nil, apperr.Busy(msgSystemBusy)
		}
		return nil, err
	}
	defer func() { _ = held.Release(context.WithoutCancel(ctx)) }()

	var updated *repository.WorkItem
	err = store.RunInTx(ctx, func(tx repository.Store) error {
		locked, err := tx.LockWorkItem(ctx, scheduled.ID)
		if err != nil {
			return err
		}

		locked.PerformerID = incoming.PerformerID
		locked.StartedAt = incoming.StartedAt
		locked.EndedAt = incoming.EndedAt
		locked.Status = incoming.Status
		locked.Remarks = incoming.Remarks
		locked.Alerts = incoming.Alerts
		if incoming.OtherInfo != nil {
			locked.OtherInfo = incoming.OtherInfo
		}
		locked.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateWorkItem(ctx, locked); err != nil {
			return err
		}
		updated = locked

		// Details reconcile update-or-create by identifier; a detail the
		// schedule never knew about is still accepted.
		for _, rawDetail := range rawDetails {
			norm := r.normalizer.Normalize(EntityWorkItemDetail, clientVersion, rawDetail)
			detail, err := decodeWorkItemDetail(norm, time.Now().UTC())
			if err != nil {
				return err
			}
			detail.WorkItemID = locked.ID
			if err := resolveDetail(ctx, tx, detail); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Persisted{Type: EntityWorkItem, WorkItem: updated}, nil
}

// reconcileUnmatched creates a new ad-hoc work item plus all its detail
// rows in one transaction, then triggers the observation/deviation alert
// pipeline asynchronously.
func (r *AdhocReconciler) reconcileUnmatched(ctx context.Context, store repository.Store, item *repository.WorkItem, rawDetails []map[string]any, clientVersion int) (*Persisted, error) {
	if !strings.Contains(item.IdentifierKind, adhocToken) {
		item.IdentifierKind = repository.KindAdhoc
	}

	err := store.RunInTx(ctx, func(tx repository.Store) error {
		if err := tx.InsertWorkItem(ctx, item); err != nil {
			return err
		}
		for _, rawDetail := range rawDetails {
			norm := r.normalizer.Normalize(EntityWorkItemDetail, clientVersion, rawDetail)
			detail, err := decodeWorkItemDetail(norm, time.Now().UTC())
			if err != nil {
				return err
			}
			detail.WorkItemID = item.ID
			if err := tx.InsertWorkItemDetail(ctx, detail); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.publishAdhocCreated(ctx, item)

	return &Persisted{Type: EntityWorkItem, WorkItem: item, Created: true}, nil
}

func (r *AdhocReconciler) publishAdhocCreated(ctx context.Context, item *repository.WorkItem) {
	if r.bus == nil {
		return
	}
	ev := events.AdhocWorkItemCreated{
		BaseEvent:  events.NewBaseEvent(),
		WorkItemID: item.ID,
		EventKind:  item.IdentifierKind,
	}
	if item.PerformerID != nil {
		ev.PerformerID = *item.PerformerID
	}
	if item.SiteID != nil {
		ev.SiteID = *item.SiteID
	}
	r.bus.Publish(ctx, ev)
}
