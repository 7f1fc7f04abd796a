package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/mkosawa/mailforward/internal/mailbox"
	"github.com/mkosawa/mailforward/internal/mailtmpl"
)

// SMTPMailer sends user-facing notification mail through the system's own
// submission account (as opposed to mail sent from a user's mailbox).
type SMTPMailer struct {
	addr     string
	username string
	password string
	from     string // bare address extracted from the configured From
	logger   *slog.Logger
}

// NewSMTPMailer creates a mailer. from may be either a bare address or a
// "Display Name <addr>" form.
func NewSMTPMailer(addr, username, password, from string, logger *slog.Logger) *SMTPMailer {
	return &SMTPMailer{
		addr:     addr,
		username: username,
		password: password,
		from:     extractAddress(from),
		logger:   logger.With("component", "mailer"),
	}
}

// Send renders the named body template and submits the mail
func (m *SMTPMailer) Send(ctx context.Context, to, subject, template string, data any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}

	body, err := mailtmpl.Render(template, data)
	if err != nil {
		return fmt.Errorf("failed to render mail body: %w", err)
	}

	raw, err := mailbox.ComposeMail(m.from, to, subject, body)
	if err != nil {
		return fmt.Errorf("failed to compose mail: %w", err)
	}

	auth := sasl.NewPlainClient("", m.username, m.password)
	if err := smtp.SendMail(m.addr, auth, m.from, []string{to}, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}

	m.logger.Info("sent user mail", "to", to, "subject", subject, "template", template)
	return nil
}

func extractAddress(from string) string {
	if open := strings.LastIndex(from, "<"); open >= 0 {
		if end := strings.LastIndex(from, ">"); end > open {
			return from[open+1 : end]
		}
	}
	return strings.TrimSpace(from)
}
