package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/careflow-api/config"
	"github.com/jwalitptl/careflow-api/internal/model"
	"github.com/jwalitptl/careflow-api/pkg/logger"
)

type Service interface {
	Send(ctx context.Context, msg model.EmailMessage) error
}

// Sender is the part of gomail.Dialer the SMTP service needs.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type smtpService struct {
	from   string
	sender Sender
}

func NewSMTPService(cfg config.SMTPConfig) Service {
	return &smtpService{
		from:   cfg.From,
		sender: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func NewServiceWithSender(from string, sender Sender) Service {
	return &smtpService{from: from, sender: sender}
}

func (s *smtpService) Send(ctx context.Context, msg model.EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	if err := s.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", msg.To, err)
	}
	return nil
}

// logService stands in when SMTP is disabled.
type logService struct {
	logger *logger.Logger
}

func NewLogService(log *logger.Logger) Service {
	return &logService{logger: log}
}

func (s *logService) Send(ctx context.Context, msg model.EmailMessage) error {
	s.logger.WithContext(ctx).Info("SMTP disabled, e-mail not sent",
		"to", msg.To,
		"subject", msg.Subject)
	return nil
}
