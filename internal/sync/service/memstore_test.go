package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"fieldsync_backend/internal/sync/repository"
	"fieldsync_backend/platform/apperr"
	"fieldsync_backend/platform/events"
	"fieldsync_backend/platform/lease"

	"github.com/google/uuid"
)

// memStore is an in-memory repository.Store. RunInTx snapshots the maps
// and restores them when fn fails, so rollback behavior is observable
// without a database.
type memStore struct {
	items      map[string]repository.WorkItem
	details    map[string]repository.WorkItemDetail
	attendance map[string]repository.AttendanceEvent
	pings      map[string][]repository.LocationPing

	// Inserts of these identifiers fail with an integrity violation,
	// standing in for a foreign-key breach.
	conflictOn map[string]bool
	// failAll makes every write fail with a system error.
	failAll bool

	txDepth int
}

func newMemStore() *memStore {
	return &memStore{
		items:      make(map[string]repository.WorkItem),
		details:    make(map[string]repository.WorkItemDetail),
		attendance: make(map[string]repository.AttendanceEvent),
		pings:      make(map[string][]repository.LocationPing),
		conflictOn: make(map[string]bool),
	}
}

func (s *memStore) snapshot() (map[string]repository.WorkItem, map[string]repository.WorkItemDetail, map[string]repository.AttendanceEvent) {
	items := make(map[string]repository.WorkItem, len(s.items))
	for k, v := range s.items {
		items[k] = v
	}
	details := make(map[string]repository.WorkItemDetail, len(s.details))
	for k, v := range s.details {
		details[k] = v
	}
	att := make(map[string]repository.AttendanceEvent, len(s.attendance))
	for k, v := range s.attendance {
		att[k] = v
	}
	return items, details, att
}

func (s *memStore) RunInTx(ctx context.Context, fn func(repository.Store) error) error {
	items, details, att := s.snapshot()
	s.txDepth++
	err := fn(s)
	s.txDepth--
	if err != nil {
		s.items, s.details, s.attendance = items, details, att
	}
	return err
}

func (s *memStore) writeGate(id string) error {
	if s.failAll {
		return apperr.Internal("storage unavailable")
	}
	if s.conflictOn[id] {
		return apperr.Conflict("referenced row does not exist")
	}
	return nil
}

func (s *memStore) GetWorkItem(ctx context.Context, id string) (*repository.WorkItem, error) {
	w, ok := s.items[id]
	if !ok {
		return nil, apperr.NotFound("work item not found")
	}
	cp := w
	return &cp, nil
}

func (s *memStore) InsertWorkItem(ctx context.Context, w *repository.WorkItem) error {
	if err := s.writeGate(w.ID); err != nil {
		return err
	}
	s.items[w.ID] = *w
	return nil
}

func (s *memStore) UpdateWorkItem(ctx context.Context, w *repository.WorkItem) error {
	if err := s.writeGate(w.ID); err != nil {
		return err
	}
	if _, ok := s.items[w.ID]; !ok {
		return apperr.NotFound("work item not found")
	}
	s.items[w.ID] = *w
	return nil
}

func (s *memStore) LockWorkItem(ctx context.Context, id string) (*repository.WorkItem, error) {
	return s.GetWorkItem(ctx, id)
}

func (s *memStore) FindScheduledInstance(ctx context.Context, m repository.ScheduledMatch) (*repository.WorkItem, error) {
	for _, w := range s.items {
		if eqUUIDPtr(w.QuestionSetID, m.QuestionSetID) &&
			eqUUIDPtr(w.PerformerID, m.PerformerID) &&
			eqUUIDPtr(w.AssetID, m.AssetID) &&
			eqUUIDPtr(w.SiteID, m.SiteID) &&
			eqTimePtr(w.PlanStart, m.PlanStart) &&
			eqTimePtr(w.PlanEnd, m.PlanEnd) {
			cp := w
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("no scheduled instance matches")
}

func (s *memStore) GetWorkItemDetail(ctx context.Context, id string) (*repository.WorkItemDetail, error) {
	d, ok := s.details[id]
	if !ok {
		return nil, apperr.NotFound("work item detail not found")
	}
	cp := d
	return &cp, nil
}

func (s *memStore) InsertWorkItemDetail(ctx context.Context, d *repository.WorkItemDetail) error {
	if err := s.writeGate(d.ID); err != nil {
		return err
	}
	s.details[d.ID] = *d
	return nil
}

func (s *memStore) UpdateWorkItemDetail(ctx context.Context, d *repository.WorkItemDetail) error {
	if err := s.writeGate(d.ID); err != nil {
		return err
	}
	if _, ok := s.details[d.ID]; !ok {
		return apperr.NotFound("work item detail not found")
	}
	s.details[d.ID] = *d
	return nil
}

func (s *memStore) GetAttendanceEvent(ctx context.Context, id string) (*repository.AttendanceEvent, error) {
	a, ok := s.attendance[id]
	if !ok {
		return nil, apperr.NotFound("attendance event not found")
	}
	cp := a
	return &cp, nil
}

func (s *memStore) InsertAttendanceEvent(ctx context.Context, a *repository.AttendanceEvent) error {
	if err := s.writeGate(a.ID); err != nil {
		return err
	}
	s.attendance[a.ID] = *a
	return nil
}

func (s *memStore) UpdateAttendanceEvent(ctx context.Context, a *repository.AttendanceEvent) error {
	if err := s.writeGate(a.ID); err != nil {
		return err
	}
	if _, ok := s.attendance[a.ID]; !ok {
		return apperr.NotFound("attendance event not found")
	}
	s.attendance[a.ID] = *a
	return nil
}

func (s *memStore) ListPings(ctx context.Context, referenceID string) ([]repository.LocationPing, error) {
	return s.pings[referenceID], nil
}

func (s *memStore) DeletePings(ctx context.Context, referenceID string) (int64, error) {
	n := int64(len(s.pings[referenceID]))
	delete(s.pings, referenceID)
	return n, nil
}

func (s *memStore) SaveWorkItemJourney(ctx context.Context, id string, path []byte, distanceKm float64) error {
	w, ok := s.items[id]
	if !ok {
		return apperr.NotFound("work item not found")
	}
	w.JourneyPath = path
	w.DistanceKm = &distanceKm
	s.items[id] = w
	return nil
}

func (s *memStore) SaveAttendanceJourney(ctx context.Context, id string, path []byte, distanceKm float64, durationMin int) error {
	a, ok := s.attendance[id]
	if !ok {
		return apperr.NotFound("attendance event not found")
	}
	a.JourneyPath = path
	a.DistanceKm = &distanceKm
	a.DurationMin = &durationMin
	s.attendance[id] = a
	return nil
}

var _ repository.Store = (*memStore)(nil)

// The fake must retain journey writes the way the real repository does,
// or tests built on it would pass against a store that forgets them.
func TestMemStoreRetainsJourneyWrites(t *testing.T) {
	s := newMemStore()
	s.items["tour-1"] = repository.WorkItem{ID: "tour-1"}
	s.attendance["att-1"] = repository.AttendanceEvent{ID: "att-1"}

	path := []byte(`{"type":"LineString","coordinates":[[77.59,12.97],[77.60,12.98]]}`)
	if err := s.SaveWorkItemJourney(context.Background(), "tour-1", path, 1.4); err != nil {
		t.Fatalf("SaveWorkItemJourney: %v", err)
	}
	if err := s.SaveAttendanceJourney(context.Background(), "att-1", path, 1.4, 22); err != nil {
		t.Fatalf("SaveAttendanceJourney: %v", err)
	}

	item := s.items["tour-1"]
	if string(item.JourneyPath) != string(path) || item.DistanceKm == nil || *item.DistanceKm != 1.4 {
		t.Errorf("work item journey = %s km=%v", item.JourneyPath, item.DistanceKm)
	}
	att := s.attendance["att-1"]
	if string(att.JourneyPath) != string(path) {
		t.Errorf("attendance path = %s, want the saved geometry", att.JourneyPath)
	}
	if att.DistanceKm == nil || *att.DistanceKm != 1.4 {
		t.Errorf("attendance distance = %v, want 1.4", att.DistanceKm)
	}
	if att.DurationMin == nil || *att.DurationMin != 22 {
		t.Errorf("attendance duration = %v, want 22", att.DurationMin)
	}
}

func eqUUIDPtr(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func eqTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// fakeLocker hands out leases unconditionally, or refuses every acquire
// when busy is set. It records acquired keys and released counts.
type fakeLocker struct {
	busy     bool
	acquired []string
	released int
}

func (l *fakeLocker) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (lease.Lease, error) {
	if l.busy {
		return nil, lease.ErrNotAcquired
	}
	l.acquired = append(l.acquired, key)
	return &fakeLease{locker: l, key: key}, nil
}

type fakeLease struct {
	locker *fakeLocker
	key    string
}

func (f *fakeLease) Key() string                                      { return f.key }
func (f *fakeLease) Renew(ctx context.Context, ttl time.Duration) error { return nil }
func (f *fakeLease) Release(ctx context.Context) error {
	f.locker.released++
	return nil
}

// captureBus records published events for assertion.
type captureBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (b *captureBus) Publish(ctx context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, event)
}

func (b *captureBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *captureBus) Subscribe(eventName string, handler events.Handler) {}

func (b *captureBus) events() []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]events.Event(nil), b.published...)
}
