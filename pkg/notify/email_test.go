package notify

import (
	"errors"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/olistflow/olistflow/pkg/config"
)

func TestNewEmailAlerterDisabledWithoutHost(t *testing.T) {
	alerter := NewEmailAlerter(config.AlertingConfig{
		To: []string{"ops@example.com"},
	}, zaptest.NewLogger(t))

	assert.IsType(t, NopAlerter{}, alerter)
	assert.NoError(t, alerter.Alert("subject", "body"))
}

func TestNewEmailAlerterDisabledWithoutRecipients(t *testing.T) {
	alerter := NewEmailAlerter(config.AlertingConfig{
		SMTPHost: "smtp.example.com",
	}, zaptest.NewLogger(t))

	assert.IsType(t, NopAlerter{}, alerter)
}

func TestEmailAlerterSends(t *testing.T) {
	cfg := config.AlertingConfig{
		SMTPHost: "smtp.example.com",
		SMTPPort: 587,
		Username: "pipeline",
		Password: "secret",
		From:     "pipeline@example.com",
		To:       []string{"ops@example.com", "oncall@example.com"},
	}

	alerter, ok := NewEmailAlerter(cfg, zaptest.NewLogger(t)).(*EmailAlerter)
	require.True(t, ok)

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	var gotAuth smtp.Auth
	alerter.send = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotAuth = auth
		gotFrom = from
		gotTo = to
		gotMsg = msg
		return nil
	}

	require.NoError(t, alerter.Alert("pipeline failed", "stage load exhausted retries"))

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "pipeline@example.com", gotFrom)
	assert.Equal(t, cfg.To, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: pipeline failed")
	assert.Contains(t, string(gotMsg), "stage load exhausted retries")
}

func TestEmailAlerterNoAuthWithoutUsername(t *testing.T) {
	cfg := config.AlertingConfig{
		SMTPHost: "smtp.example.com",
		SMTPPort: 25,
		From:     "pipeline@example.com",
		To:       []string{"ops@example.com"},
	}

	alerter := NewEmailAlerter(cfg, zaptest.NewLogger(t)).(*EmailAlerter)

	var gotAuth smtp.Auth = smtp.PlainAuth("", "x", "x", "x")
	alerter.send = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		gotAuth = auth
		return nil
	}

	require.NoError(t, alerter.Alert("s", "b"))
	assert.Nil(t, gotAuth)
}

func TestEmailAlerterSendFailure(t *testing.T) {
	cfg := config.AlertingConfig{
		SMTPHost: "smtp.example.com",
		SMTPPort: 587,
		From:     "pipeline@example.com",
		To:       []string{"ops@example.com"},
	}

	alerter := NewEmailAlerter(cfg, zaptest.NewLogger(t)).(*EmailAlerter)
	alerter.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}

	err := alerter.Alert("s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send alert email")
}

func TestBuildMessage(t *testing.T) {
	msg := string(buildMessage(
		"pipeline@example.com",
		[]string{"a@example.com", "b@example.com"},
		"run failed",
		"details here"))

	assert.Contains(t, msg, "From: pipeline@example.com\r\n")
	assert.Contains(t, msg, "To: a@example.com, b@example.com\r\n")
	assert.Contains(t, msg, "Subject: run failed\r\n")
	assert.Contains(t, msg, "Content-Type: text/plain; charset=utf-8\r\n")
	assert.Contains(t, msg, "\r\n\r\ndetails here")
}
