package email

import (
	"context"
	"time"

	"fieldsync_backend/internal/events"
	"fieldsync_backend/platform/logger"
	"fieldsync_backend/platform/phone"
)

// Subscriber listens for raised escalation tickets and notifies the
// assignee. Delivery is best effort.
type Subscriber struct {
	sender Sender
	log    *logger.Logger
}

// NewSubscriber creates the notification subscriber.
func NewSubscriber(sender Sender, log *logger.Logger) *Subscriber {
	return &Subscriber{sender: sender, log: log}
}

// Register wires the subscriber onto the bus.
func (s *Subscriber) Register(bus events.Bus) {
	bus.Subscribe(events.EscalationTicketRaised{}.EventName(),
		events.HandlerFunc(s.handleTicketRaised))
}

func (s *Subscriber) handleTicketRaised(ctx context.Context, ev events.Event) error {
	raised, ok := ev.(events.EscalationTicketRaised)
	if !ok {
		return nil
	}
	if raised.AssigneeEmail == "" {
		s.log.Warn("escalation ticket has no assignee email, notification skipped",
			"ticketId", raised.TicketID, "assigneeId", raised.AssigneeID)
		return nil
	}

	contactPhone := phone.NormalizeE164(raised.AssigneePhone)

	err := s.sender.SendEscalationTicketEmail(ctx, raised.AssigneeEmail, EscalationTicketData{
		TicketID:      raised.TicketID.String(),
		SiteID:        raised.SiteID.String(),
		EventSubtype:  raised.EventSubtype,
		Description:   raised.Description,
		AssigneePhone: contactPhone,
		RaisedAt:      raised.OccurredAt().UTC().Format(time.RFC1123),
	})
	if err != nil {
		s.log.Error("escalation notification failed",
			"ticketId", raised.TicketID, "to", raised.AssigneeEmail, "error", err)
		return err
	}
	s.log.Info("escalation notification sent",
		"ticketId", raised.TicketID, "to", raised.AssigneeEmail, "contactPhone", contactPhone)
	return nil
}
