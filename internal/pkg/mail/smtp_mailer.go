package mail

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ReportFox/internal/pkg/config"
)

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPSender sends emails via SMTP
type SMTPSender struct {
	cfg config.MailConfig
}

func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	if cfg.Sender == "" {
		cfg.Sender = "no-reply@localhost"
		log.Warnf("[Mail] SMTP_SENDER not set, using default sender: %s", cfg.Sender)
	}
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(_ context.Context, to, subject, body string) error {
	var auth smtp.Auth
	if s.cfg.Username != "" && s.cfg.Password != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)

	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", s.cfg.Sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/plain; charset=UTF-8\r\n\r\n" +
			body,
	)

	if err := smtp.SendMail(addr, auth, s.cfg.Sender, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	log.Infof("[Mail] Email sent to %s via %s", to, addr)
	return nil
}

// LogSender only logs; used in dev when no SMTP host is configured.
type LogSender struct{}

func (LogSender) Send(_ context.Context, to, subject, body string) error {
	log.Infof("[Mail] (log only) to=%s subject=%q\n%s", to, subject, body)
	return nil
}

// NewSender picks SMTP when a host is configured.
func NewSender(cfg config.MailConfig) Sender {
	if cfg.Host == "" {
		return LogSender{}
	}
	return NewSMTPSender(cfg)
}
