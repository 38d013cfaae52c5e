// Package email sends transactional mail. Sends are best-effort side
// effects: callers log failures and move on.
package email

import (
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"
	"github.com/projectbrain/backend/pkg/config"
)

// Mailer sends a templated message to one recipient.
type Mailer interface {
	SendWelcome(ctx context.Context, to, name string) error
}

// SMTPMailer sends through a plain SMTP relay.
type SMTPMailer struct {
	client *gomail.Client
	from   string
}

func NewSMTPMailer(cfg *config.EmailConfig) (*SMTPMailer, error) {
	client, err := gomail.NewClient(cfg.SMTPHost,
		gomail.WithPort(cfg.SMTPPort),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(cfg.SMTPUser),
		gomail.WithPassword(cfg.SMTPPassword),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	)
	if err != nil {
		return nil, fmt.Errorf("creating smtp client: %w", err)
	}
	return &SMTPMailer{client: client, from: cfg.From}, nil
}

func (m *SMTPMailer) SendWelcome(ctx context.Context, to, name string) error {
	msg := gomail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("setting from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("setting recipient: %w", err)
	}

	msg.Subject("Welcome to ProjectBrain")
	greeting := name
	if greeting == "" {
		greeting = "there"
	}
	msg.SetBodyString(gomail.TypeTextPlain, fmt.Sprintf(
		"Hi %s,\n\nWelcome to ProjectBrain! Your account is ready.\n"+
			"Log in to finish onboarding and get matched with a coach.\n\n"+
			"The ProjectBrain team\n", greeting))

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending welcome email to %s: %w", to, err)
	}
	return nil
}

// NoopMailer is used when SMTP is not configured (local development).
type NoopMailer struct{}

func (NoopMailer) SendWelcome(ctx context.Context, to, name string) error {
	return nil
}
