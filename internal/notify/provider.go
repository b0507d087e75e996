package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking-engine/internal/config"
)

// FromAddress is the sender address all providers use.
func FromAddress(cfg config.Config) string {
	if cfg.SMTPFrom != "" {
		return cfg.SMTPFrom
	}
	return cfg.SMTPUser
}

// NewSenderFromConfig picks the email provider named by EMAIL_PROVIDER.
// "none" logs messages instead of sending them.
func NewSenderFromConfig(ctx context.Context, cfg config.Config, log zerolog.Logger) (EmailSender, error) {
	switch cfg.EmailProvider {
	case "", "smtp":
		return NewSMTPSender(SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.SMTPFrom,
			FromName: cfg.EmailFromName,
		}, log)
	case "sendgrid":
		return NewSendGridSender(SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: FromAddress(cfg),
			FromName:  cfg.EmailFromName,
		}, log)
	case "ses":
		client, err := NewSESClient(ctx)
		if err != nil {
			return nil, err
		}
		return NewSESSender(client, SESConfig{FromEmail: FromAddress(cfg), FromName: cfg.EmailFromName}, log)
	case "none", "stub", "log":
		return NewStubEmailSender(log), nil
	default:
		return nil, fmt.Errorf("notify: unknown EMAIL_PROVIDER %q", cfg.EmailProvider)
	}
}
