package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"
)

// Email is one outbound message.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// Mailer sends customer notifications. Failures are a non-critical side
// channel: callers log and continue.
type Mailer interface {
	Send(ctx context.Context, e Email) error
}

// SMTPMailer delivers through a plain SMTP relay.
type SMTPMailer struct {
	addr string // host:port
	from string
}

func NewSMTPMailer(addr, from string) *SMTPMailer {
	return &SMTPMailer{addr: addr, from: from}
}

func (m *SMTPMailer) Send(_ context.Context, e Email) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.from)
	fmt.Fprintf(&msg, "To: %s\r\n", e.To)
	fmt.Fprintf(&msg, "Subject: %s\r\n", e.Subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	msg.WriteString(e.HTML)

	if err := smtp.SendMail(m.addr, nil, m.from, []string{e.To}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send mail to %s: %w", e.To, err)
	}
	return nil
}

// LogMailer is the dev fallback when no SMTP relay is configured.
type LogMailer struct {
	Log zerolog.Logger
}

func (m LogMailer) Send(_ context.Context, e Email) error {
	m.Log.Info().Str("to", e.To).Str("subject", e.Subject).Msg("email suppressed (no SMTP relay configured)")
	return nil
}
