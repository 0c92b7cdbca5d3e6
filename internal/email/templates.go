package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

type escalationTicketEmailData struct {
	Title         string
	Heading       string
	TicketID      string
	SiteID        string
	EventSubtype  string
	Description   string
	AssigneeName  string
	AssigneePhone string
	RaisedAt      string
}

func renderEmailTemplate(name string, data any) (string, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/"+name)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render email template %s: %w", name, err)
	}
	return buf.String(), nil
}
