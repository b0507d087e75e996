package notify

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking-engine/internal/config"
)

func TestNewSenderFromConfig(t *testing.T) {
	ctx := context.Background()
	log := zerolog.Nop()

	s, err := NewSenderFromConfig(ctx, config.Config{EmailProvider: "none"}, log)
	require.NoError(t, err)
	assert.IsType(t, &StubEmailSender{}, s)

	s, err = NewSenderFromConfig(ctx, config.Config{EmailProvider: "smtp", SMTPHost: "smtp.example.com", SMTPUser: "clinic@example.com"}, log)
	require.NoError(t, err)
	assert.IsType(t, &SMTPSender{}, s)

	_, err = NewSenderFromConfig(ctx, config.Config{EmailProvider: "smtp"}, log)
	assert.Error(t, err, "smtp needs a host")

	s, err = NewSenderFromConfig(ctx, config.Config{EmailProvider: "sendgrid", SendGridAPIKey: "SG.test", SMTPFrom: "clinic@example.com"}, log)
	require.NoError(t, err)
	assert.IsType(t, &SendGridSender{}, s)

	_, err = NewSenderFromConfig(ctx, config.Config{EmailProvider: "sendgrid", SMTPFrom: "clinic@example.com"}, log)
	assert.Error(t, err)

	_, err = NewSenderFromConfig(ctx, config.Config{EmailProvider: "pigeon"}, log)
	assert.ErrorContains(t, err, "pigeon")
}

func TestFromAddress(t *testing.T) {
	assert.Equal(t, "desk@example.com", FromAddress(config.Config{SMTPFrom: "desk@example.com", SMTPUser: "user@example.com"}))
	assert.Equal(t, "user@example.com", FromAddress(config.Config{SMTPUser: "user@example.com"}))
}
