package repository

import "context"

// Store is the persistence surface the sync services operate on. It is
// satisfied both by the pool-backed Repository and by its transaction-bound
// form, so callers choose the transactional scope without knowing which
// they hold.
type Store interface {
	// RunInTx executes fn against a transaction-bound Store. fn returning
	// an error rolls back everything it did.
	RunInTx(ctx context.Context, fn func(Store) error) error

	GetWorkItem(ctx context.Context, id string) (*WorkItem, error)
	InsertWorkItem(ctx context.Context, w *WorkItem) error
	UpdateWorkItem(ctx context.Context, w *WorkItem) error
	// LockWorkItem loads a work item with a row lock. Meaningful only
	// inside RunInTx; the lock is held until the transaction ends.
	LockWorkItem(ctx context.Context, id string) (*WorkItem, error)
	// FindScheduledInstance resolves the pre-scheduled work item matching
	// an ad-hoc submission's identity tuple.
	FindScheduledInstance(ctx context.Context, m ScheduledMatch) (*WorkItem, error)

	GetWorkItemDetail(ctx context.Context, id string) (*WorkItemDetail, error)
	InsertWorkItemDetail(ctx context.Context, d *WorkItemDetail) error
	UpdateWorkItemDetail(ctx context.Context, d *WorkItemDetail) error

	GetAttendanceEvent(ctx context.Context, id string) (*AttendanceEvent, error)
	InsertAttendanceEvent(ctx context.Context, a *AttendanceEvent) error
	UpdateAttendanceEvent(ctx context.Context, a *AttendanceEvent) error

	ListPings(ctx context.Context, referenceID string) ([]LocationPing, error)
	DeletePings(ctx context.Context, referenceID string) (int64, error)
	SaveWorkItemJourney(ctx context.Context, id string, path []byte, distanceKm float64) error
	SaveAttendanceJourney(ctx context.Context, id string, path []byte, distanceKm float64, durationMin int) error
}
