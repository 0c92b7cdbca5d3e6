// Package repository provides database operations for escalation rules,
// tickets, and the site/business-unit rows the escalator resolves
// assignees from.
package repository

import (
	"context"
	"errors"
	"fmt"

	"fieldsync_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the persistence surface the escalation service operates on.
type Store interface {
	FindRule(ctx context.Context, category string, businessUnitID uuid.UUID) (*Rule, error)
	InsertRule(ctx context.Context, rule *Rule) error
	InsertTicket(ctx context.Context, ticket *Ticket) error
	GetSite(ctx context.Context, id uuid.UUID) (*Site, error)
	GetBusinessUnit(ctx context.Context, id uuid.UUID) (*BusinessUnit, error)
	GetContact(ctx context.Context, id uuid.UUID) (*Contact, error)
}

// Repository provides database operations for escalation data.
type Repository struct {
	db *pgxpool.Pool
}

// New creates a new escalation repository over a connection pool.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

var _ Store = (*Repository)(nil)

func mapPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return apperr.Wrap(apperr.KindConflict, "duplicate escalation row", err).WithOp(op)
		case "23503":
			return apperr.Wrap(apperr.KindConflict, "referenced row missing", err).WithOp(op)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// FindRule looks up the rule for a ticket category within a business unit.
func (r *Repository) FindRule(ctx context.Context, category string, businessUnitID uuid.UUID) (*Rule, error) {
	query := `SELECT id, business_unit_id, category, assignee_id, frequency, frequency_value, level, created_at
		FROM escalation_rules
		WHERE category = $1 AND business_unit_id = $2
		ORDER BY created_at
		LIMIT 1`

	var rule Rule
	err := r.db.QueryRow(ctx, query, category, businessUnitID).Scan(
		&rule.ID, &rule.BusinessUnitID, &rule.Category, &rule.AssigneeID,
		&rule.Frequency, &rule.FrequencyValue, &rule.Level, &rule.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("escalation rule not found")
		}
		return nil, mapPgError("escalation.FindRule", err)
	}
	return &rule, nil
}

// InsertRule persists a rule, including ones synthesized at escalation time.
func (r *Repository) InsertRule(ctx context.Context, rule *Rule) error {
	query := `INSERT INTO escalation_rules (id, business_unit_id, category, assignee_id, frequency, frequency_value, level, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query,
		rule.ID, rule.BusinessUnitID, rule.Category, rule.AssigneeID,
		rule.Frequency, rule.FrequencyValue, rule.Level, rule.CreatedAt,
	)
	if err != nil {
		return mapPgError("escalation.InsertRule", err)
	}
	return nil
}

// InsertTicket persists a raised ticket.
func (r *Repository) InsertTicket(ctx context.Context, ticket *Ticket) error {
	query := `INSERT INTO escalation_tickets (id, category, business_unit_id, site_id, rule_id, assignee_id, trigger_id, event_subtype, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(ctx, query,
		ticket.ID, ticket.Category, ticket.BusinessUnitID, ticket.SiteID,
		ticket.RuleID, ticket.AssigneeID, ticket.TriggerID,
		ticket.EventSubtype, ticket.Description, ticket.Status, ticket.CreatedAt,
	)
	if err != nil {
		return mapPgError("escalation.InsertTicket", err)
	}
	return nil
}

// GetSite retrieves a site by id.
func (r *Repository) GetSite(ctx context.Context, id uuid.UUID) (*Site, error) {
	query := `SELECT id, name, manager_id, emergency_contact_id FROM sites WHERE id = $1`

	var s Site
	err := r.db.QueryRow(ctx, query, id).Scan(&s.ID, &s.Name, &s.ManagerID, &s.EmergencyContactID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("site not found")
		}
		return nil, mapPgError("escalation.GetSite", err)
	}
	return &s, nil
}

// GetBusinessUnit retrieves a business unit with its site-crisis subtype set.
func (r *Repository) GetBusinessUnit(ctx context.Context, id uuid.UUID) (*BusinessUnit, error) {
	query := `SELECT id, name, created_by, site_crisis_types FROM business_units WHERE id = $1`

	var b BusinessUnit
	err := r.db.QueryRow(ctx, query, id).Scan(&b.ID, &b.Name, &b.CreatedBy, &b.SiteCrisisTypes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("business unit not found")
		}
		return nil, mapPgError("escalation.GetBusinessUnit", err)
	}
	return &b, nil
}

// GetContact retrieves an assignee's notification endpoints.
func (r *Repository) GetContact(ctx context.Context, id uuid.UUID) (*Contact, error) {
	query := `SELECT id, name, email, phone FROM contacts WHERE id = $1`

	var c Contact
	err := r.db.QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &c.Email, &c.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("contact not found")
		}
		return nil, mapPgError("escalation.GetContact", err)
	}
	return &c, nil
}
