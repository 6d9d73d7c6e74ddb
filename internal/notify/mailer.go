// Package notify delivers the end-of-run action reports.
package notify

import (
	"context"
	"fmt"

	mail "github.com/wneessen/go-mail"

	"investhor/internal/config"
)

// Sink receives a run report. A failed delivery never invalidates the
// run that produced it.
type Sink interface {
	Send(ctx context.Context, subject, body string) error
}

// Mailer sends reports over SMTP with implicit TLS.
type Mailer struct {
	cfg config.SMTPConfig
}

func NewMailer(cfg config.SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

func (m *Mailer) Send(ctx context.Context, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(m.cfg.To); err != nil {
		return fmt.Errorf("set to: %w", err)
	}
	if m.cfg.SubjectPrefix != "" {
		subject = m.cfg.SubjectPrefix + " " + subject
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	client, err := mail.NewClient(m.cfg.Host,
		mail.WithPort(m.cfg.Port),
		mail.WithSSL(),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.User),
		mail.WithPassword(m.cfg.Password),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// Nop drops every report. Used when no SMTP host is configured.
type Nop struct{}

func (Nop) Send(context.Context, string, string) error { return nil }
