package repository

import (
	"time"

	"github.com/google/uuid"
)

// TicketCategorySiteCrisis is the only category the sync pipeline raises.
const TicketCategorySiteCrisis = "SITECRISIS"

// Ticket statuses.
const (
	TicketStatusNew = "NEW"
)

// Default cadence for a synthesized rule.
const (
	DefaultFrequency      = "MINUTE"
	DefaultFrequencyValue = 30
	DefaultLevel          = 1
)

// Rule is an escalation rule scoped to (category, business unit).
type Rule struct {
	ID             uuid.UUID `db:"id"`
	BusinessUnitID uuid.UUID `db:"business_unit_id"`
	Category       string    `db:"category"`
	AssigneeID     uuid.UUID `db:"assignee_id"`
	Frequency      string    `db:"frequency"`
	FrequencyValue int       `db:"frequency_value"`
	Level          int       `db:"level"`
	CreatedAt      time.Time `db:"created_at"`
}

// Ticket is a raised escalation referencing the record that triggered it.
type Ticket struct {
	ID             uuid.UUID `db:"id"`
	Category       string    `db:"category"`
	BusinessUnitID uuid.UUID `db:"business_unit_id"`
	SiteID         uuid.UUID `db:"site_id"`
	RuleID         uuid.UUID `db:"rule_id"`
	AssigneeID     uuid.UUID `db:"assignee_id"`
	TriggerID      string    `db:"trigger_id"`
	EventSubtype   string    `db:"event_subtype"`
	Description    string    `db:"description"`
	Status         string    `db:"status"`
	CreatedAt      time.Time `db:"created_at"`
}

// Site carries the assignee fallback chain for synthesized rules.
type Site struct {
	ID                 uuid.UUID  `db:"id"`
	Name               string     `db:"name"`
	ManagerID          *uuid.UUID `db:"manager_id"`
	EmergencyContactID *uuid.UUID `db:"emergency_contact_id"`
}

// BusinessUnit scopes rules and carries the manager-maintained
// site-crisis subtype set.
type BusinessUnit struct {
	ID              uuid.UUID `db:"id"`
	Name            string    `db:"name"`
	CreatedBy       uuid.UUID `db:"created_by"`
	SiteCrisisTypes []string  `db:"site_crisis_types"`
}

// IsSiteCrisis reports whether a subtype is in the unit's crisis set.
func (b *BusinessUnit) IsSiteCrisis(subtype string) bool {
	for _, t := range b.SiteCrisisTypes {
		if t == subtype {
			return true
		}
	}
	return false
}

// Contact is the assignee's notification endpoints.
type Contact struct {
	ID    uuid.UUID `db:"id"`
	Name  string    `db:"name"`
	Email string    `db:"email"`
	Phone string    `db:"phone"`
}
