package repository

import (
	"time"

	"github.com/google/uuid"
)

// Identifier kinds carried by work items. The ADHOC variants are assigned
// by devices reporting work with no pre-scheduled instance.
const (
	KindTask              = "TASK"
	KindInternalTour      = "INTERNALTOUR"
	KindExternalTour      = "EXTERNALTOUR"
	KindAdhoc             = "ADHOC"
	KindAdhocInternalTour = "ADHOCINTERNALTOUR"
	KindAdhocExternalTour = "ADHOCEXTERNALTOUR"
)

// Work item statuses. The last three are terminal.
const (
	StatusAssigned           = "ASSIGNED"
	StatusInProgress         = "INPROGRESS"
	StatusCompleted          = "COMPLETED"
	StatusPartiallyCompleted = "PARTIALLYCOMPLETED"
	StatusAutoClosed         = "AUTOCLOSED"
)

// Attendance event subtypes with built-in meaning. Site-crisis subtypes are
// maintained per business unit, not enumerated here.
const (
	SubtypeSelf       = "SELF"
	SubtypeConveyance = "CONVEYANCE"
	SubtypeAudit      = "AUDIT"
)

// IsTerminalStatus reports whether a work item status is terminal.
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusPartiallyCompleted, StatusAutoClosed:
		return true
	}
	return false
}

// IsTourKind reports whether an identifier kind denotes a tour.
func IsTourKind(kind string) bool {
	return kind == KindInternalTour || kind == KindExternalTour
}

// WorkItem is a task/tour execution instance. The ID is an opaque
// device-generated string and is the sole idempotency key for upsert;
// the server never parses or derives meaning from it.
type WorkItem struct {
	ID             string     `db:"id"`
	ParentID       *string    `db:"parent_id"` // nil = top-level
	IdentifierKind string     `db:"identifier_kind"`
	Status         string     `db:"status"`
	JobDescription string     `db:"job_description"`
	PlanStart      *time.Time `db:"plan_start"`
	PlanEnd        *time.Time `db:"plan_end"`
	StartedAt      *time.Time `db:"started_at"`
	EndedAt        *time.Time `db:"ended_at"`
	QuestionSetID  *uuid.UUID `db:"question_set_id"`
	PerformerID    *uuid.UUID `db:"performer_id"`
	AssetID        *uuid.UUID `db:"asset_id"`
	SiteID         *uuid.UUID `db:"site_id"`
	Remarks        string     `db:"remarks"`
	Alerts         bool       `db:"alerts"`
	OtherInfo      []byte     `db:"other_info"`
	JourneyPath    []byte     `db:"journey_path"`
	DistanceKm     *float64   `db:"distance_km"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// IsTopLevel reports whether the work item has no parent.
func (w *WorkItem) IsTopLevel() bool {
	return w.ParentID == nil
}

// WorkItemDetail is a per-question answer row owned exclusively by one
// work item. It has its own device-generated identifier.
type WorkItemDetail struct {
	ID         string    `db:"id"`
	WorkItemID string    `db:"work_item_id"`
	QuestionID int64     `db:"question_id"`
	Answer     string    `db:"answer"`
	MinValue   *float64  `db:"min_value"`
	MaxValue   *float64  `db:"max_value"`
	AlertOn    bool      `db:"alert_on"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// ScheduledMatch is the identity tuple that resolves an ad-hoc submission
// to a pre-scheduled work item.
type ScheduledMatch struct {
	QuestionSetID *uuid.UUID
	PerformerID   *uuid.UUID
	AssetID       *uuid.UUID
	SiteID        *uuid.UUID
	PlanStart     *time.Time
	PlanEnd       *time.Time
}

// AttendanceEvent is a punch-in/out record for a performer at a site.
// Conveyance and audit events carry travel geometry; crisis-class
// subtypes trigger escalation.
type AttendanceEvent struct {
	ID             string     `db:"id"`
	PerformerID    uuid.UUID  `db:"performer_id"`
	SiteID         uuid.UUID  `db:"site_id"`
	BusinessUnitID uuid.UUID  `db:"business_unit_id"`
	EventSubtype   string     `db:"event_subtype"`
	PunchInAt      *time.Time `db:"punch_in_at"`
	PunchOutAt     *time.Time `db:"punch_out_at"`
	StartLng       *float64   `db:"start_lng"`
	StartLat       *float64   `db:"start_lat"`
	EndLng         *float64   `db:"end_lng"`
	EndLat         *float64   `db:"end_lat"`
	VerifiedBy     *uuid.UUID `db:"verified_by"`
	JourneyPath    []byte     `db:"journey_path"`
	DistanceKm     *float64   `db:"distance_km"`
	DurationMin    *int       `db:"duration_min"`
	OtherInfo      []byte     `db:"other_info"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// LocationPing is a raw timestamped coordinate scoped to the identifier of
// the record it was captured for. Pings are consumed (deleted) when folded
// into a journey path.
type LocationPing struct {
	ID          int64     `db:"id"`
	ReferenceID string    `db:"reference_id"`
	RecordedAt  time.Time `db:"recorded_at"`
	Lng         float64   `db:"lng"`
	Lat         float64   `db:"lat"`
	ReceivedAt  time.Time `db:"received_at"`
}
