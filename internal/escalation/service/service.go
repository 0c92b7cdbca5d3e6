// Package service raises site-crisis escalation tickets for qualifying
// attendance events.
package service

import (
	"context"
	"fmt"
	"time"

	"fieldsync_backend/internal/escalation/repository"
	"fieldsync_backend/internal/events"
	syncrepo "fieldsync_backend/internal/sync/repository"
	"fieldsync_backend/platform/apperr"
	"fieldsync_backend/platform/logger"

	"github.com/google/uuid"
)

// Service implements the site-crisis escalator. Each qualifying event
// raises one ticket; there is no dedup window, a second qualifying event
// for the same site moments later raises a second ticket.
type Service struct {
	store repository.Store
	bus   events.Bus
	log   *logger.Logger
}

// New creates an escalation service.
func New(store repository.Store, bus events.Bus, log *logger.Logger) *Service {
	return &Service{store: store, bus: bus, log: log}
}

// Escalate raises a site-crisis ticket when the attendance event's
// subtype is in its business unit's crisis set. Non-crisis subtypes are
// a cheap no-op.
func (s *Service) Escalate(ctx context.Context, ev *syncrepo.AttendanceEvent) error {
	unit, err := s.store.GetBusinessUnit(ctx, ev.BusinessUnitID)
	if err != nil {
		return err
	}
	if !unit.IsSiteCrisis(ev.EventSubtype) {
		return nil
	}

	rule, err := s.resolveRule(ctx, unit, ev.SiteID)
	if err != nil {
		return err
	}

	ticket := &repository.Ticket{
		ID:             uuid.New(),
		Category:       repository.TicketCategorySiteCrisis,
		BusinessUnitID: unit.ID,
		SiteID:         ev.SiteID,
		RuleID:         rule.ID,
		AssigneeID:     rule.AssigneeID,
		TriggerID:      ev.ID,
		EventSubtype:   ev.EventSubtype,
		Description:    fmt.Sprintf("site crisis %s reported via attendance event %s", ev.EventSubtype, ev.ID),
		Status:         repository.TicketStatusNew,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.InsertTicket(ctx, ticket); err != nil {
		return err
	}

	s.log.Warn("site crisis ticket raised",
		"ticketId", ticket.ID, "siteId", ev.SiteID, "subtype", ev.EventSubtype, "assigneeId", rule.AssigneeID)
	s.publishRaised(ctx, ticket)

	return nil
}

// resolveRule finds the unit's site-crisis rule or synthesizes one. The
// synthesized assignee walks the fallback chain: site manager, site
// emergency contact, business unit creator.
func (s *Service) resolveRule(ctx context.Context, unit *repository.BusinessUnit, siteID uuid.UUID) (*repository.Rule, error) {
	rule, err := s.store.FindRule(ctx, repository.TicketCategorySiteCrisis, unit.ID)
	if err == nil {
		return rule, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}

	assignee, err := s.resolveAssignee(ctx, unit, siteID)
	if err != nil {
		return nil, err
	}

	rule = &repository.Rule{
		ID:             uuid.New(),
		BusinessUnitID: unit.ID,
		Category:       repository.TicketCategorySiteCrisis,
		AssigneeID:     assignee,
		Frequency:      repository.DefaultFrequency,
		FrequencyValue: repository.DefaultFrequencyValue,
		Level:          repository.DefaultLevel,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.InsertRule(ctx, rule); err != nil {
		return nil, err
	}
	s.log.Info("escalation rule synthesized",
		"businessUnitId", unit.ID, "assigneeId", assignee)
	return rule, nil
}

func (s *Service) resolveAssignee(ctx context.Context, unit *repository.BusinessUnit, siteID uuid.UUID) (uuid.UUID, error) {
	site, err := s.store.GetSite(ctx, siteID)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return uuid.Nil, err
	}
	if site != nil {
		if site.ManagerID != nil {
			return *site.ManagerID, nil
		}
		if site.EmergencyContactID != nil {
			return *site.EmergencyContactID, nil
		}
	}
	return unit.CreatedBy, nil
}

// publishRaised notifies subscribers, enriching the event with the
// assignee's contact endpoints when they resolve.
func (s *Service) publishRaised(ctx context.Context, ticket *repository.Ticket) {
	if s.bus == nil {
		return
	}

	ev := events.EscalationTicketRaised{
		BaseEvent:      events.NewBaseEvent(),
		TicketID:       ticket.ID,
		BusinessUnitID: ticket.BusinessUnitID,
		SiteID:         ticket.SiteID,
		AssigneeID:     ticket.AssigneeID,
		EventSubtype:   ticket.EventSubtype,
		Description:    ticket.Description,
	}
	if contact, err := s.store.GetContact(ctx, ticket.AssigneeID); err == nil {
		ev.AssigneeEmail = contact.Email
		ev.AssigneePhone = contact.Phone
	} else {
		s.log.Warn("assignee contact lookup failed", "assigneeId", ticket.AssigneeID, "error", err)
	}
	s.bus.Publish(ctx, ev)
}
