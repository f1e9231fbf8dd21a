package services

import (
	"buddiepay/config"
	"fmt"
	"net/mail"

	"gopkg.in/gomail.v2"
)

// mailDialer отправляет готовые сообщения. В проде это *gomail.Dialer.
type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailService отправляет уведомления через SMTP
type EmailService struct {
	dialer mailDialer
	from   string
}

// NewEmailService создает EmailService. Без smtp.host письма не отправляются.
func NewEmailService(cfg *config.Config) *EmailService {
	var dialer mailDialer
	if cfg.SMTP.Host != "" {
		dialer = gomail.NewDialer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password)
	}
	return newEmailService(dialer, cfg.App.Name, cfg.SMTP.From)
}

func newEmailService(dialer mailDialer, appName, fromAddress string) *EmailService {
	from := (&mail.Address{Name: appName, Address: fromAddress}).String()
	return &EmailService{dialer: dialer, from: from}
}

// SendEmail отправляет письмо: текст как основную часть, HTML как альтернативу
func (s *EmailService) SendEmail(to, subject, html, text string) error {
	if s.dialer == nil {
		return fmt.Errorf("smtp не настроен")
	}
	if _, err := mail.ParseAddress(to); err != nil {
		return fmt.Errorf("некорректный адрес получателя %q: %w", to, err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	if text != "" {
		m.SetBody("text/plain", text)
		m.AddAlternative("text/html", html)
	} else {
		m.SetBody("text/html", html)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("ошибка отправки email на %s: %w", to, err)
	}
	return nil
}
