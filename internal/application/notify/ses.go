package notify

import (
	"context"
	"fmt"
	"strings"

	"applicant-portal/internal/common/validation"
	"applicant-portal/internal/models"
)

// Mailer is satisfied by aws.SESClient.
type Mailer interface {
	SendText(ctx context.Context, from, to, subject, body string) (string, error)
}

// SESMailer emails the applicant when their status changes.
type SESMailer struct {
	mailer     Mailer
	from       string
	emailField string
}

func NewSESMailer(mailer Mailer, from, emailField string) *SESMailer {
	return &SESMailer{mailer: mailer, from: from, emailField: emailField}
}

func (m *SESMailer) Name() string { return "ses" }

func (m *SESMailer) Send(ctx context.Context, ev Event) error {
	to := ev.Recipient
	if to == "" {
		to, _ = ev.Application.Fields[m.emailField].(string)
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return skipped("no recipient address")
	}
	if !validation.ValidateEmail(to) {
		return skipped("malformed recipient address")
	}

	subject, body, ok := message(ev.Application)
	if !ok {
		return skipped("no email for status " + string(ev.Application.Status))
	}
	_, err := m.mailer.SendText(ctx, m.from, to, subject, body)
	return err
}

func message(app *models.Application) (subject, body string, ok bool) {
	name, _ := app.Fields["full_name"].(string)
	if name == "" {
		name = "there"
	}
	switch app.Status {
	case models.StatusSubmitted:
		return "Application received",
			fmt.Sprintf("Hi %s,\n\nWe received your application. You will hear from us once it has been reviewed.\n", name), true
	case models.StatusAccepted:
		return "You're in!",
			fmt.Sprintf("Hi %s,\n\nYour application was accepted. Please confirm or decline your attendance in the portal.\n", name), true
	case models.StatusConfirmed:
		return "Attendance confirmed",
			fmt.Sprintf("Hi %s,\n\nThanks for confirming. See you at the event.\n", name), true
	case models.StatusWaitlisted:
		return "Waitlist update",
			fmt.Sprintf("Hi %s,\n\nYou are on the waitlist. We will reach out if a spot opens up.\n", name), true
	default:
		return "", "", false
	}
}
