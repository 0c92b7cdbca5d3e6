package email

import (
	"context"
	"strings"
	"testing"

	"fieldsync_backend/internal/events"
	"fieldsync_backend/platform/logger"

	"github.com/google/uuid"
)

type captureSender struct {
	to   string
	data EscalationTicketData
	sent int
}

func (c *captureSender) SendEscalationTicketEmail(_ context.Context, toEmail string, data EscalationTicketData) error {
	c.to = toEmail
	c.data = data
	c.sent++
	return nil
}

func raisedEvent() events.EscalationTicketRaised {
	return events.EscalationTicketRaised{
		BaseEvent:      events.NewBaseEvent(),
		TicketID:       uuid.New(),
		BusinessUnitID: uuid.New(),
		SiteID:         uuid.New(),
		AssigneeID:     uuid.New(),
		EventSubtype:   "FIRE",
		Description:    "site crisis FIRE reported",
		AssigneeEmail:  "oncall@example.com",
		AssigneePhone:  "98765 43210",
	}
}

func TestTicketRaisedNotificationCarriesNormalizedPhone(t *testing.T) {
	sender := &captureSender{}
	s := NewSubscriber(sender, logger.New("test"))

	ev := raisedEvent()
	if err := s.handleTicketRaised(context.Background(), ev); err != nil {
		t.Fatalf("handleTicketRaised: %v", err)
	}
	if sender.sent != 1 {
		t.Fatalf("sent = %d, want 1", sender.sent)
	}
	if sender.to != ev.AssigneeEmail {
		t.Errorf("to = %q, want %q", sender.to, ev.AssigneeEmail)
	}
	if sender.data.AssigneePhone != "+919876543210" {
		t.Errorf("assignee phone = %q, want the E.164 form", sender.data.AssigneePhone)
	}
	if sender.data.TicketID != ev.TicketID.String() {
		t.Errorf("ticket = %q, want %q", sender.data.TicketID, ev.TicketID)
	}
}

func TestTicketRaisedWithoutEmailIsSkipped(t *testing.T) {
	sender := &captureSender{}
	s := NewSubscriber(sender, logger.New("test"))

	ev := raisedEvent()
	ev.AssigneeEmail = ""
	if err := s.handleTicketRaised(context.Background(), ev); err != nil {
		t.Fatalf("handleTicketRaised: %v", err)
	}
	if sender.sent != 0 {
		t.Errorf("sent = %d, want 0 with no assignee email", sender.sent)
	}
}

func TestEscalationTemplateRendersPhone(t *testing.T) {
	html, err := renderEmailTemplate("escalation_ticket.html", escalationTicketEmailData{
		Title:         "Site crisis escalation",
		Heading:       "Site crisis escalation",
		TicketID:      "t-1",
		SiteID:        "s-1",
		EventSubtype:  "FIRE",
		AssigneePhone: "+919876543210",
		RaisedAt:      "Fri, 28 Aug 2026 10:00:00 UTC",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(html, "tel:+919876543210") {
		t.Errorf("rendered email lacks the dialable phone link")
	}
}
