// Package notify sends the best-effort emails that follow a calendar write.
// A failed email never reverses the write; callers only report it.
package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// EmailSender defines the interface for sending emails.
// Implementations can be swapped (SMTP, SendGrid, SES) without changing callers.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage represents an email to be sent.
type EmailMessage struct {
	To          string
	ToName      string
	Subject     string
	Body        string // Plain text body
	HTML        string // Optional HTML body
	Attachments []Attachment
}

// Attachment is a file carried by an email, e.g. the calendar invite.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// StubEmailSender is a no-op sender for testing or when email is disabled.
type StubEmailSender struct {
	log zerolog.Logger
}

func NewStubEmailSender(log zerolog.Logger) *StubEmailSender {
	return &StubEmailSender{log: log}
}

// Send logs the email but doesn't actually send it.
func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Int("attachments", len(msg.Attachments)).
		Msg("stub email sender: would send email")
	return nil
}

var _ EmailSender = (*StubEmailSender)(nil)
