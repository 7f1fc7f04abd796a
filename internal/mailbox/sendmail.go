package mailbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// ComposeMail builds a simple RFC 5322 text message
func ComposeMail(from, to, subject, body string) ([]byte, error) {
	var buf bytes.Buffer

	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Address: from}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject(subject)

	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail writer: %w", err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to write mail body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish mail: %w", err)
	}

	return buf.Bytes(), nil
}

// SendMail composes and submits a message from the account itself through
// its SMTP submission endpoint
func (s *Session) SendMail(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return newError(KindTransient, "send mail", err)
	}

	raw, err := ComposeMail(s.cfg.Email, to, subject, body)
	if err != nil {
		return newError(KindTransient, "send mail", err)
	}

	auth := sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)
	if err := smtp.SendMail(s.cfg.smtpServer(), auth, s.cfg.Email, []string{to}, bytes.NewReader(raw)); err != nil {
		return newError(KindTransient, "send mail", err)
	}

	s.logger.Info("sent notification mail", "to", to, "subject", subject)
	return nil
}
