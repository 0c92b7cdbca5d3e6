// Package email delivers operator notifications. The only producer today
// is the escalation subscriber; delivery failures are logged, never
// propagated back into record processing.
package email

import "context"

// EscalationTicketData is everything the assignee notification renders.
type EscalationTicketData struct {
	TicketID     string
	SiteID       string
	EventSubtype string
	Description  string
	AssigneeName string
	// AssigneePhone is E.164-normalized so the on-call bridge can dial it
	// straight from the email.
	AssigneePhone string
	RaisedAt      string
}

// Sender delivers notification emails.
type Sender interface {
	SendEscalationTicketEmail(ctx context.Context, toEmail string, data EscalationTicketData) error
}

// NoopSender is used when SMTP is not configured.
type NoopSender struct{}

func (NoopSender) SendEscalationTicketEmail(ctx context.Context, toEmail string, data EscalationTicketData) error {
	return nil
}
