package notify

import (
	"fmt"
	"net/smtp"

	"github.com/bukukita/billing/pkg/config"
)

// Mailer delivers plain-text mail over SMTP. Delivery runs inside dispatch
// jobs, so a flaky relay gets the shell's retry budget instead of blocking
// webhook handling.
type Mailer struct {
	cfg *config.SMTPConfig
}

func NewMailer(cfg *config.Config) *Mailer {
	return &Mailer{cfg: &cfg.SMTP}
}

func (m *Mailer) Send(to, subject, body string) error {
	sender := m.cfg.Sender
	if sender == "" {
		sender = "no-reply@localhost"
	}

	var auth smtp.Auth
	if m.cfg.Username != "" && m.cfg.Password != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/plain; charset=UTF-8\r\n\r\n" +
			body,
	)

	if err := smtp.SendMail(addr, auth, sender, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}
