// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"fieldsync_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Sync Domain Events
// =============================================================================

// AdhocWorkItemCreated is published after an unmatched ad-hoc submission is
// persisted. The observation/deviation alert pipeline subscribes to it;
// delivery is fire-and-forget.
type AdhocWorkItemCreated struct {
	BaseEvent
	WorkItemID  string    `json:"workItemId"`
	PerformerID uuid.UUID `json:"performerId"`
	SiteID      uuid.UUID `json:"siteId"`
	EventKind   string    `json:"eventKind"`
}

func (e AdhocWorkItemCreated) EventName() string { return "sync.workitem.adhoc_created" }

// VerificationRequested asks the downstream biometric verification
// collaborator to verify a performer against a persisted record.
// Fire-and-forget; the verifier's outcome never flows back into sync.
type VerificationRequested struct {
	BaseEvent
	OwnerID     string    `json:"ownerId"`
	PerformerID uuid.UUID `json:"performerId"`
}

func (e VerificationRequested) EventName() string { return "sync.verification.requested" }

// WorkItemAlert asks the alert/notification dispatch collaborator to fan out
// an alert for a work item whose answers breached their alert thresholds.
type WorkItemAlert struct {
	BaseEvent
	WorkItemID string    `json:"workItemId"`
	EventKind  string    `json:"eventKind"`
}

func (e WorkItemAlert) EventName() string { return "sync.workitem.alert" }

// =============================================================================
// Escalation Domain Events
// =============================================================================

// EscalationTicketRaised is published when a site-crisis ticket is created.
// The email module subscribes to notify the assignee.
type EscalationTicketRaised struct {
	BaseEvent
	TicketID       uuid.UUID `json:"ticketId"`
	BusinessUnitID uuid.UUID `json:"businessUnitId"`
	SiteID         uuid.UUID `json:"siteId"`
	AssigneeID     uuid.UUID `json:"assigneeId"`
	AssigneeEmail  string    `json:"assigneeEmail"`
	AssigneePhone  string    `json:"assigneePhone"`
	EventSubtype   string    `json:"eventSubtype"`
	Description    string    `json:"description"`
}

func (e EscalationTicketRaised) EventName() string { return "escalation.ticket.raised" }
