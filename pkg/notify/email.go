// Package notify delivers pipeline failure alerts by email.
package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/olistflow/olistflow/pkg/config"
	"github.com/olistflow/olistflow/pkg/errors"
)

// Alerter sends a notification about a pipeline event.
type Alerter interface {
	Alert(subject, body string) error
}

// NopAlerter discards notifications. Used when alerting is not
// configured.
type NopAlerter struct{}

// Alert implements Alerter.
func (NopAlerter) Alert(string, string) error { return nil }

// EmailAlerter sends alerts over SMTP with plain auth.
type EmailAlerter struct {
	cfg    config.AlertingConfig
	logger *zap.Logger
	// send is swappable for tests
	send func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailAlerter creates an SMTP alerter, or a NopAlerter when no SMTP
// host is configured.
func NewEmailAlerter(cfg config.AlertingConfig, logger *zap.Logger) Alerter {
	if cfg.SMTPHost == "" || len(cfg.To) == 0 {
		logger.Info("alerting disabled, no SMTP host configured")
		return NopAlerter{}
	}
	return &EmailAlerter{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "alerter")),
		send:   smtp.SendMail,
	}
}

// Alert sends an email to the configured recipients.
func (a *EmailAlerter) Alert(subject, body string) error {
	addr := fmt.Sprintf("%s:%d", a.cfg.SMTPHost, a.cfg.SMTPPort)

	var auth smtp.Auth
	if a.cfg.Username != "" {
		auth = smtp.PlainAuth("", a.cfg.Username, a.cfg.Password, a.cfg.SMTPHost)
	}

	msg := buildMessage(a.cfg.From, a.cfg.To, subject, body)

	if err := a.send(addr, auth, a.cfg.From, a.cfg.To, msg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to send alert email")
	}

	a.logger.Info("alert sent",
		zap.String("subject", subject),
		zap.Int("recipients", len(a.cfg.To)))
	return nil
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\r\n", from)
	fmt.Fprintf(&sb, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&sb, "Subject: %s\r\n", subject)
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	return []byte(sb.String())
}
