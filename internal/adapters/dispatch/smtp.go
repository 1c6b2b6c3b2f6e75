package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gomail "github.com/wneessen/go-mail"

	"letter-assist/internal/domain"
	"letter-assist/internal/infra/metrics"
)

// SMTP отправляет финальные ответы через SMTP-сервер почтового провайдера.
type SMTP struct {
	server   string
	port     int
	useSSL   bool
	login    string
	password string
	log      zerolog.Logger
}

var _ domain.Dispatcher = (*SMTP)(nil)

// NewSMTP создаёт отправителя писем.
func NewSMTP(server string, port int, useSSL bool, login, password string, logger zerolog.Logger) *SMTP {
	return &SMTP{
		server:   server,
		port:     port,
		useSSL:   useSSL,
		login:    login,
		password: password,
		log:      logger,
	}
}

// Send отправляет письмо с простым текстовым телом.
func (s *SMTP) Send(ctx context.Context, toEmail, subject, body string) error {
	if s.login == "" || s.password == "" {
		return fmt.Errorf("%w: не заданы учётные данные почты", domain.ErrDispatchFailed)
	}

	msg := gomail.NewMsg()
	if err := msg.From(s.login); err != nil {
		return fmt.Errorf("smtp: адрес отправителя: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp: адрес получателя %q: %w", toEmail, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	opts := []gomail.Option{
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.login),
		gomail.WithPassword(s.password),
	}
	if s.useSSL {
		opts = append(opts, gomail.WithSSL())
	} else {
		opts = append(opts, gomail.WithTLSPortPolicy(gomail.TLSMandatory))
	}

	client, err := gomail.NewClient(s.server, opts...)
	if err != nil {
		return fmt.Errorf("smtp: создание клиента: %w", err)
	}

	start := time.Now()
	err = client.DialAndSendWithContext(ctx, msg)
	metrics.ObserveNetworkRequest("smtp", "send", s.server, start, err)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrDispatchFailed, err)
	}
	s.log.Info().Str("to", toEmail).Str("subject", subject).Msg("smtp: письмо отправлено")
	return nil
}
