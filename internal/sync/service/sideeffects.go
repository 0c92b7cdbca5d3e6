package service

import (
	"context"
	"fmt"
	"strings"

	"fieldsync_backend/internal/events"
	"fieldsync_backend/internal/sync/repository"
	"fieldsync_backend/platform/logger"
)

// PathStitcher folds raw location pings into a journey path on the owning
// record. Implemented by the journey package.
type PathStitcher interface {
	StitchWorkItem(ctx context.Context, item *repository.WorkItem) error
	StitchAttendance(ctx context.Context, ev *repository.AttendanceEvent) error
}

// CrisisEscalator raises an escalation ticket for attendance events whose
// subtype is in the business unit's site-crisis set. Implemented by the
// escalation package.
type CrisisEscalator interface {
	Escalate(ctx context.Context, ev *repository.AttendanceEvent) error
}

// EffectDispatcher runs post-commit hooks keyed on entity type AND field
// predicates on the persisted result, never on type alone. Its failures
// are logged and stay out of the batch accounting.
type EffectDispatcher struct {
	stitcher  PathStitcher
	escalator CrisisEscalator
	bus       events.Bus
	log       *logger.Logger
}

// NewEffectDispatcher creates a dispatcher. Any collaborator may be nil;
// its hooks are then skipped.
func NewEffectDispatcher(stitcher PathStitcher, escalator CrisisEscalator, bus events.Bus, log *logger.Logger) *EffectDispatcher {
	return &EffectDispatcher{stitcher: stitcher, escalator: escalator, bus: bus, log: log}
}

// Dispatch runs every hook whose predicate holds for one persisted record.
func (d *EffectDispatcher) Dispatch(ctx context.Context, p *Persisted, trace *strings.Builder) {
	switch p.Type {
	case EntityWorkItem:
		d.dispatchWorkItem(ctx, p, trace)
	case EntityAttendanceEvent:
		d.dispatchAttendance(ctx, p, trace)
	case EntityWorkPermit:
		d.dispatchWorkPermit(ctx, p, trace)
	}
}

func (d *EffectDispatcher) dispatchWorkItem(ctx context.Context, p *Persisted, trace *strings.Builder) {
	item := p.WorkItem
	if item == nil {
		return
	}

	if d.stitcher != nil && item.IsTopLevel() &&
		repository.IsTerminalStatus(item.Status) && repository.IsTourKind(item.IdentifierKind) {
		if err := d.stitcher.StitchWorkItem(ctx, item); err != nil {
			d.log.Error("journey stitch failed", "workItemId", item.ID, "error", err)
			fmt.Fprintf(trace, "journey stitch for %s failed: %v\n", item.ID, err)
		} else {
			fmt.Fprintf(trace, "journey stitch for %s done\n", item.ID)
		}
	}

	if d.bus != nil && item.Alerts {
		d.bus.Publish(ctx, events.WorkItemAlert{
			BaseEvent:  events.NewBaseEvent(),
			WorkItemID: item.ID,
			EventKind:  item.IdentifierKind,
		})
		fmt.Fprintf(trace, "alert dispatched for %s\n", item.ID)
	}
}

func (d *EffectDispatcher) dispatchAttendance(ctx context.Context, p *Persisted, trace *strings.Builder) {
	ev := p.Attendance
	if ev == nil {
		return
	}

	if d.stitcher != nil && attendanceJourneyEligible(ev) {
		if err := d.stitcher.StitchAttendance(ctx, ev); err != nil {
			d.log.Error("attendance journey stitch failed", "attendanceId", ev.ID, "error", err)
			fmt.Fprintf(trace, "attendance journey for %s failed: %v\n", ev.ID, err)
		} else {
			fmt.Fprintf(trace, "attendance journey for %s done\n", ev.ID)
		}
	}

	if d.escalator != nil {
		if err := d.escalator.Escalate(ctx, ev); err != nil {
			d.log.Error("site crisis escalation failed", "attendanceId", ev.ID, "error", err)
			fmt.Fprintf(trace, "crisis escalation for %s failed: %v\n", ev.ID, err)
		}
	}

	if d.bus != nil && ev.VerifiedBy != nil {
		d.bus.Publish(ctx, events.VerificationRequested{
			BaseEvent:   events.NewBaseEvent(),
			OwnerID:     ev.ID,
			PerformerID: ev.PerformerID,
		})
		fmt.Fprintf(trace, "verification requested for %s\n", ev.ID)
	}
}

func (d *EffectDispatcher) dispatchWorkPermit(ctx context.Context, p *Persisted, trace *strings.Builder) {
	if d.bus == nil || p.WorkItem == nil {
		return
	}
	for _, verifier := range p.Verifiers {
		d.bus.Publish(ctx, events.VerificationRequested{
			BaseEvent:   events.NewBaseEvent(),
			OwnerID:     p.WorkItem.ID,
			PerformerID: verifier,
		})
	}
	if len(p.Verifiers) > 0 {
		fmt.Fprintf(trace, "verification requested for %d performers on %s\n",
			len(p.Verifiers), p.WorkItem.ID)
	}
}

// attendanceJourneyEligible holds when a closed conveyance or audit punch
// carries an end location.
func attendanceJourneyEligible(ev *repository.AttendanceEvent) bool {
	if ev.EndLng == nil || ev.EndLat == nil {
		return false
	}
	if ev.PunchInAt == nil || ev.PunchOutAt == nil {
		return false
	}
	return ev.EventSubtype == repository.SubtypeConveyance || ev.EventSubtype == repository.SubtypeAudit
}
