package mailer

import (
	"fmt"

	gomail "gopkg.in/gomail.v2"

	"github.com/sumohast/meet-room/internal/config"
)

// SMTPSender submits mail through the configured relay.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (s *SMTPSender) Send(task Task) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", task.Recipients...)
	m.SetHeader("Subject", task.Subject)
	m.SetBody("text/plain", task.Body)
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
