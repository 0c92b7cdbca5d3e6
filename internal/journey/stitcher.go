// Package journey folds raw device location pings into persisted travel
// paths. Stitching runs strictly after the owning record's primary
// persistence commits; its failures never affect batch outcomes.
package journey

import (
	"context"

	"fieldsync_backend/internal/sync/repository"
	"fieldsync_backend/platform/logger"
)

// Store is the persistence surface the stitcher needs. The sync
// repository satisfies it.
type Store interface {
	ListPings(ctx context.Context, referenceID string) ([]repository.LocationPing, error)
	DeletePings(ctx context.Context, referenceID string) (int64, error)
	SaveWorkItemJourney(ctx context.Context, id string, path []byte, distanceKm float64) error
	SaveAttendanceJourney(ctx context.Context, id string, path []byte, distanceKm float64, durationMin int) error
}

// Stitcher builds journey polylines from pings and consumes the pings it
// used. Fewer than two pings is a no-op since a line needs two vertices.
type Stitcher struct {
	store Store
	log   *logger.Logger
}

// NewStitcher creates a stitcher.
func NewStitcher(store Store, log *logger.Logger) *Stitcher {
	return &Stitcher{store: store, log: log}
}

// StitchWorkItem persists the travel path for a completed tour. The
// caller checks eligibility (top-level, terminal, tour kind); this only
// does the geometry.
func (s *Stitcher) StitchWorkItem(ctx context.Context, item *repository.WorkItem) error {
	points, err := s.collect(ctx, item.ID)
	if err != nil || points == nil {
		return err
	}

	path, err := encodeLineString(points)
	if err != nil {
		return err
	}
	if err := s.store.SaveWorkItemJourney(ctx, item.ID, path, pathLengthKm(points)); err != nil {
		return err
	}
	return s.consume(ctx, item.ID, len(points))
}

// StitchAttendance persists the travel path for a closed conveyance or
// audit punch, including the punch-to-punch duration.
func (s *Stitcher) StitchAttendance(ctx context.Context, ev *repository.AttendanceEvent) error {
	points, err := s.collect(ctx, ev.ID)
	if err != nil || points == nil {
		return err
	}

	path, err := encodeLineString(points)
	if err != nil {
		return err
	}
	durationMin := 0
	if ev.PunchInAt != nil && ev.PunchOutAt != nil {
		durationMin = int(ev.PunchOutAt.Sub(*ev.PunchInAt).Minutes())
	}
	if err := s.store.SaveAttendanceJourney(ctx, ev.ID, path, pathLengthKm(points), durationMin); err != nil {
		return err
	}
	return s.consume(ctx, ev.ID, len(points))
}

// collect loads the pings for a reference in receipt order and returns
// nil when there are too few for a line.
func (s *Stitcher) collect(ctx context.Context, referenceID string) ([]Point, error) {
	pings, err := s.store.ListPings(ctx, referenceID)
	if err != nil {
		return nil, err
	}
	if len(pings) < 2 {
		s.log.Debug("not enough pings for a journey", "referenceId", referenceID, "pings", len(pings))
		return nil, nil
	}

	points := make([]Point, len(pings))
	for i, p := range pings {
		points[i] = Point{Lng: p.Lng, Lat: p.Lat}
	}
	return points, nil
}

// consume deletes the pings folded into a path. Storage reduction is the
// point, not cleanup.
func (s *Stitcher) consume(ctx context.Context, referenceID string, used int) error {
	deleted, err := s.store.DeletePings(ctx, referenceID)
	if err != nil {
		return err
	}
	s.log.Debug("journey pings consumed", "referenceId", referenceID, "used", used, "deleted", deleted)
	return nil
}
