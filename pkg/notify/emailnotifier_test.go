package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmailNotifier(t *testing.T) {
	notifier, err := NewEmailNotifier(SMTPConfig{
		Host: "smtp.example.com",
		Port: 587,
		TLS:  true,
		From: "alerts@example.com",
		To:   "oncall@example.com",
	})
	require.NoError(t, err)
	require.NotNil(t, notifier.client)
}

func TestEmailNotifier_SendRequiresToAddress(t *testing.T) {
	notifier, err := NewEmailNotifier(SMTPConfig{
		Host: "smtp.example.com",
		Port: 587,
		From: "alerts@example.com",
	})
	require.NoError(t, err)

	err = notifier.Send(Alert{Subject: "test"})
	assert.Error(t, err)
}

func TestSMTPDialTimeoutIsSeconds(t *testing.T) {
	// A bare integer here would be interpreted as nanoseconds and make
	// every dial fail instantly
	assert.GreaterOrEqual(t, smtpDialTimeout, time.Second)
}
