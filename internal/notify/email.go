package notify

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"leadpilot_backend/platform/config"
	"leadpilot_backend/platform/logger"
)

// EmailSender delivers follow-up emails over SMTP.
type EmailSender struct {
	client      *mail.Client
	fromName    string
	fromAddress string
	log         *logger.Logger
}

// NewEmailSender creates an SMTP sender. Returns nil when SMTP is not
// configured.
func NewEmailSender(cfg config.EmailConfig, log *logger.Logger) (*EmailSender, error) {
	if cfg.GetSMTPHost() == "" {
		return nil, nil
	}

	client, err := mail.NewClient(cfg.GetSMTPHost(),
		mail.WithPort(cfg.GetSMTPPort()),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.GetSMTPUsername()),
		mail.WithPassword(cfg.GetSMTPPassword()),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}

	return &EmailSender{
		client:      client,
		fromName:    cfg.GetEmailFromName(),
		fromAddress: cfg.GetEmailFromAddress(),
		log:         log,
	}, nil
}

// Send delivers one plain-text email.
func (s *EmailSender) Send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromAddress); err != nil {
		return fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
