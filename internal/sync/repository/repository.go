// Package repository provides database operations for the sync engine's
// record store: work items, detail rows, attendance events, and the
// location pings consumed by journey stitching.
package repository

import (
	"context"
	"errors"
	"fmt"

	"fieldsync_backend/platform/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	workItemNotFoundMsg   = "work item not found"
	detailNotFoundMsg     = "work item detail not found"
	attendanceNotFoundMsg = "attendance event not found"
	scheduledNotFoundMsg  = "scheduled instance not found"
)

// dbtx abstracts the query surface shared by pgxpool.Pool and pgx.Tx so
// the same Repository works pool-backed or transaction-bound.
type dbtx interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository provides database operations for sync records.
type Repository struct {
	db dbtx
}

// New creates a new sync repository over a connection pool.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// RunInTx executes fn against a transaction-bound Repository. A nested
// call on an already transaction-bound Repository opens a savepoint.
func (r *Repository) RunInTx(ctx context.Context, fn func(Store) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&Repository{db: tx}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// mapPgError converts driver errors into the domain taxonomy: uniqueness
// and FK violations become integrity conflicts, missing rows stay where
// the caller mapped them, everything else is unclassified.
func mapPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return apperr.Wrap(apperr.KindConflict, "duplicate identifier", err).WithOp(op)
		case "23503":
			return apperr.Wrap(apperr.KindConflict, "referenced row missing", err).WithOp(op)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

const workItemColumns = `id, parent_id, identifier_kind, status, job_description,
	plan_start, plan_end, started_at, ended_at,
	question_set_id, performer_id, asset_id, site_id,
	remarks, alerts, other_info, journey_path, distance_km, created_at, updated_at`

func scanWorkItem(row pgx.Row) (*WorkItem, error) {
	var w WorkItem
	err := row.Scan(
		&w.ID, &w.ParentID, &w.IdentifierKind, &w.Status, &w.JobDescription,
		&w.PlanStart, &w.PlanEnd, &w.StartedAt, &w.EndedAt,
		&w.QuestionSetID, &w.PerformerID, &w.AssetID, &w.SiteID,
		&w.Remarks, &w.Alerts, &w.OtherInfo, &w.JourneyPath, &w.DistanceKm, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetWorkItem retrieves a work item by its identifier.
func (r *Repository) GetWorkItem(ctx context.Context, id string) (*WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items WHERE id = $1`

	w, err := scanWorkItem(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(workItemNotFoundMsg)
		}
		return nil, mapPgError("get work item", err)
	}
	return w, nil
}

// LockWorkItem loads a work item under FOR UPDATE. The row lock lives
// until the surrounding transaction commits or rolls back.
func (r *Repository) LockWorkItem(ctx context.Context, id string) (*WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items WHERE id = $1 FOR UPDATE`

	w, err := scanWorkItem(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(workItemNotFoundMsg)
		}
		return nil, mapPgError("lock work item", err)
	}
	return w, nil
}

// InsertWorkItem inserts a new work item.
func (r *Repository) InsertWorkItem(ctx context.Context, w *WorkItem) error {
	query := `
		INSERT INTO work_items (
			id, parent_id, identifier_kind, status, job_description,
			plan_start, plan_end, started_at, ended_at,
			question_set_id, performer_id, asset_id, site_id,
			remarks, alerts, other_info, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)`

	_, err := r.db.Exec(ctx, query,
		w.ID, w.ParentID, w.IdentifierKind, w.Status, w.JobDescription,
		w.PlanStart, w.PlanEnd, w.StartedAt, w.EndedAt,
		w.QuestionSetID, w.PerformerID, w.AssetID, w.SiteID,
		w.Remarks, w.Alerts, w.OtherInfo, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return mapPgError("insert work item", err)
	}
	return nil
}

// UpdateWorkItem updates an existing work item in place by identifier.
func (r *Repository) UpdateWorkItem(ctx context.Context, w *WorkItem) error {
	query := `
		UPDATE work_items SET
			parent_id = $2, identifier_kind = $3, status = $4, job_description = $5,
			plan_start = $6, plan_end = $7, started_at = $8, ended_at = $9,
			question_set_id = $10, performer_id = $11, asset_id = $12, site_id = $13,
			remarks = $14, alerts = $15, other_info = $16, updated_at = $17
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		w.ID, w.ParentID, w.IdentifierKind, w.Status, w.JobDescription,
		w.PlanStart, w.PlanEnd, w.StartedAt, w.EndedAt,
		w.QuestionSetID, w.PerformerID, w.AssetID, w.SiteID,
		w.Remarks, w.Alerts, w.OtherInfo, w.UpdatedAt,
	)
	if err != nil {
		return mapPgError("update work item", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(workItemNotFoundMsg)
	}
	return nil
}

// FindScheduledInstance resolves a pre-scheduled work item by the ad-hoc
// identity tuple. Null tuple members must match null columns, hence the
// IS NOT DISTINCT FROM comparisons.
func (r *Repository) FindScheduledInstance(ctx context.Context, m ScheduledMatch) (*WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items
		WHERE question_set_id IS NOT DISTINCT FROM $1
		  AND performer_id IS NOT DISTINCT FROM $2
		  AND asset_id IS NOT DISTINCT FROM $3
		  AND site_id IS NOT DISTINCT FROM $4
		  AND plan_start IS NOT DISTINCT FROM $5
		  AND plan_end IS NOT DISTINCT FROM $6
		ORDER BY created_at LIMIT 1`

	w, err := scanWorkItem(r.db.QueryRow(ctx, query,
		m.QuestionSetID, m.PerformerID, m.AssetID, m.SiteID, m.PlanStart, m.PlanEnd))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(scheduledNotFoundMsg)
		}
		return nil, mapPgError("find scheduled instance", err)
	}
	return w, nil
}

// GetWorkItemDetail retrieves a detail row by its identifier.
func (r *Repository) GetWorkItemDetail(ctx context.Context, id string) (*WorkItemDetail, error) {
	query := `SELECT id, work_item_id, question_id, answer, min_value, max_value, alert_on, created_at, updated_at
		FROM work_item_details WHERE id = $1`

	var d WorkItemDetail
	err := r.db.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.WorkItemID, &d.QuestionID, &d.Answer,
		&d.MinValue, &d.MaxValue, &d.AlertOn, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(detailNotFoundMsg)
		}
		return nil, mapPgError("get work item detail", err)
	}
	return &d, nil
}

// InsertWorkItemDetail inserts a new detail row.
func (r *Repository) InsertWorkItemDetail(ctx context.Context, d *WorkItemDetail) error {
	query := `
		INSERT INTO work_item_details (
			id, work_item_id, question_id, answer, min_value, max_value, alert_on, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		d.ID, d.WorkItemID, d.QuestionID, d.Answer, d.MinValue, d.MaxValue, d.AlertOn, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return mapPgError("insert work item detail", err)
	}
	return nil
}

// UpdateWorkItemDetail updates an existing detail row in place.
func (r *Repository) UpdateWorkItemDetail(ctx context.Context, d *WorkItemDetail) error {
	query := `
		UPDATE work_item_details SET
			work_item_id = $2, question_id = $3, answer = $4,
			min_value = $5, max_value = $6, alert_on = $7, updated_at = $8
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		d.ID, d.WorkItemID, d.QuestionID, d.Answer, d.MinValue, d.MaxValue, d.AlertOn, d.UpdatedAt,
	)
	if err != nil {
		return mapPgError("update work item detail", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(detailNotFoundMsg)
	}
	return nil
}

const attendanceColumns = `id, performer_id, site_id, business_unit_id, event_subtype,
	punch_in_at, punch_out_at, start_lng, start_lat, end_lng, end_lat,
	verified_by, journey_path, distance_km, duration_min, other_info, created_at, updated_at`

// GetAttendanceEvent retrieves an attendance event by its identifier.
func (r *Repository) GetAttendanceEvent(ctx context.Context, id string) (*AttendanceEvent, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance_events WHERE id = $1`

	var a AttendanceEvent
	err := r.db.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.PerformerID, &a.SiteID, &a.BusinessUnitID, &a.EventSubtype,
		&a.PunchInAt, &a.PunchOutAt, &a.StartLng, &a.StartLat, &a.EndLng, &a.EndLat,
		&a.VerifiedBy, &a.JourneyPath, &a.DistanceKm, &a.DurationMin, &a.OtherInfo, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(attendanceNotFoundMsg)
		}
		return nil, mapPgError("get attendance event", err)
	}
	return &a, nil
}

// InsertAttendanceEvent inserts a new attendance event.
func (r *Repository) InsertAttendanceEvent(ctx context.Context, a *AttendanceEvent) error {
	query := `
		INSERT INTO attendance_events (
			id, performer_id, site_id, business_unit_id, event_subtype,
			punch_in_at, punch_out_at, start_lng, start_lat, end_lng, end_lat,
			verified_by, other_info, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.db.Exec(ctx, query,
		a.ID, a.PerformerID, a.SiteID, a.BusinessUnitID, a.EventSubtype,
		a.PunchInAt, a.PunchOutAt, a.StartLng, a.StartLat, a.EndLng, a.EndLat,
		a.VerifiedBy, a.OtherInfo, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return mapPgError("insert attendance event", err)
	}
	return nil
}

// UpdateAttendanceEvent updates an existing attendance event in place.
func (r *Repository) UpdateAttendanceEvent(ctx context.Context, a *AttendanceEvent) error {
	query := `
		UPDATE attendance_events SET
			performer_id = $2, site_id = $3, business_unit_id = $4, event_subtype = $5,
			punch_in_at = $6, punch_out_at = $7, start_lng = $8, start_lat = $9,
			end_lng = $10, end_lat = $11, verified_by = $12, other_info = $13, updated_at = $14
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		a.ID, a.PerformerID, a.SiteID, a.BusinessUnitID, a.EventSubtype,
		a.PunchInAt, a.PunchOutAt, a.StartLng, a.StartLat,
		a.EndLng, a.EndLat, a.VerifiedBy, a.OtherInfo, a.UpdatedAt,
	)
	if err != nil {
		return mapPgError("update attendance event", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(attendanceNotFoundMsg)
	}
	return nil
}

// ListPings returns all location pings for a reference identifier ordered
// by receipt time.
func (r *Repository) ListPings(ctx context.Context, referenceID string) ([]LocationPing, error) {
	query := `SELECT id, reference_id, recorded_at, lng, lat, received_at
		FROM location_pings WHERE reference_id = $1 ORDER BY received_at`

	rows, err := r.db.Query(ctx, query, referenceID)
	if err != nil {
		return nil, mapPgError("list pings", err)
	}
	defer rows.Close()

	var pings []LocationPing
	for rows.Next() {
		var p LocationPing
		if err := rows.Scan(&p.ID, &p.ReferenceID, &p.RecordedAt, &p.Lng, &p.Lat, &p.ReceivedAt); err != nil {
			return nil, mapPgError("scan ping", err)
		}
		pings = append(pings, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError("list pings", err)
	}
	return pings, nil
}

// DeletePings removes all pings for a reference identifier and returns the
// number removed. This is the storage-reduction step after a journey path
// is built.
func (r *Repository) DeletePings(ctx context.Context, referenceID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM location_pings WHERE reference_id = $1`, referenceID)
	if err != nil {
		return 0, mapPgError("delete pings", err)
	}
	return tag.RowsAffected(), nil
}

// SaveWorkItemJourney persists a derived journey path on a work item.
func (r *Repository) SaveWorkItemJourney(ctx context.Context, id string, path []byte, distanceKm float64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE work_items SET journey_path = $2, distance_km = $3, updated_at = now() WHERE id = $1`,
		id, path, distanceKm,
	)
	if err != nil {
		return mapPgError("save work item journey", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(workItemNotFoundMsg)
	}
	return nil
}

// SaveAttendanceJourney persists a derived travel path on an attendance event.
func (r *Repository) SaveAttendanceJourney(ctx context.Context, id string, path []byte, distanceKm float64, durationMin int) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE attendance_events SET journey_path = $2, distance_km = $3, duration_min = $4, updated_at = now() WHERE id = $1`,
		id, path, distanceKm, durationMin,
	)
	if err != nil {
		return mapPgError("save attendance journey", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(attendanceNotFoundMsg)
	}
	return nil
}

// Compile-time check that Repository implements Store.
var _ Store = (*Repository)(nil)
