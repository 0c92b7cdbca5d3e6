package email

const subjectEscalationTicketFmt = "Site crisis escalation %s (ticket %s)"
