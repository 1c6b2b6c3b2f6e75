package mailbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	gomail "github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"

	"letter-assist/internal/domain"
	"letter-assist/internal/infra/metrics"
)

// IMAP выгружает непрочитанные письма из ящика по IMAP.
type IMAP struct {
	server   string
	login    string
	password string
	mailbox  string
	log      zerolog.Logger

	mu     sync.Mutex
	client *imapclient.Client
}

var _ domain.Mailbox = (*IMAP)(nil)

// NewIMAP создаёт адаптер почтового ящика.
func NewIMAP(server, login, password string, logger zerolog.Logger) *IMAP {
	return &IMAP{
		server:   server,
		login:    login,
		password: password,
		mailbox:  "INBOX",
		log:      logger,
	}
}

// Connect устанавливает TLS-соединение и проходит аутентификацию.
func (m *IMAP) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.login == "" || m.password == "" {
		return fmt.Errorf("imap: не заданы учётные данные почты")
	}
	if m.client != nil {
		return nil
	}

	start := time.Now()
	client, err := imapclient.DialTLS(m.server, nil)
	metrics.ObserveNetworkRequest("imap", "dial", m.server, start, err)
	if err != nil {
		return fmt.Errorf("imap: подключение к %s: %w", m.server, err)
	}

	start = time.Now()
	err = client.Login(m.login, m.password).Wait()
	metrics.ObserveNetworkRequest("imap", "login", m.server, start, err)
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("imap: аутентификация %s: %w", m.login, err)
	}

	m.client = client
	m.log.Info().Str("server", m.server).Str("login", m.login).Msg("imap: подключение установлено")
	return nil
}

// Disconnect закрывает соединение. Ошибки выхода игнорируются.
func (m *IMAP) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == nil {
		return
	}
	if err := m.client.Logout().Wait(); err != nil {
		_ = m.client.Close()
	}
	m.client = nil
	m.log.Info().Str("server", m.server).Msg("imap: соединение закрыто")
}

// FetchNew возвращает непрочитанные письма из INBOX. Сообщения, которые не
// удалось разобрать, пропускаются и не валят всю выгрузку.
func (m *IMAP) FetchNew(ctx context.Context) ([]domain.IncomingMail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == nil {
		return nil, fmt.Errorf("imap: нет соединения")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	_, err := m.client.Select(m.mailbox, nil).Wait()
	metrics.ObserveNetworkRequest("imap", "select", m.mailbox, start, err)
	if err != nil {
		return nil, fmt.Errorf("imap: выбор ящика %s: %w", m.mailbox, err)
	}

	criteria := &imap.SearchCriteria{NotFlag: []imap.Flag{imap.FlagSeen}}
	start = time.Now()
	found, err := m.client.Search(criteria, nil).Wait()
	metrics.ObserveNetworkRequest("imap", "search_unseen", m.mailbox, start, err)
	if err != nil {
		return nil, fmt.Errorf("imap: поиск непрочитанных: %w", err)
	}
	seqNums := found.AllSeqNums()
	if len(seqNums) == 0 {
		return nil, nil
	}

	bodySection := &imap.FetchItemBodySection{}
	fetchOptions := &imap.FetchOptions{
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}
	start = time.Now()
	messages, err := m.client.Fetch(imap.SeqSetNum(seqNums...), fetchOptions).Collect()
	metrics.ObserveNetworkRequest("imap", "fetch", m.mailbox, start, err)
	if err != nil {
		return nil, fmt.Errorf("imap: выгрузка сообщений: %w", err)
	}

	incoming := make([]domain.IncomingMail, 0, len(messages))
	for _, msg := range messages {
		mail, err := m.convert(msg, bodySection)
		if err != nil {
			m.log.Error().Err(err).Uint32("seq", msg.SeqNum).Msg("imap: сообщение пропущено")
			continue
		}
		incoming = append(incoming, mail)
	}
	return incoming, nil
}

func (m *IMAP) convert(msg *imapclient.FetchMessageBuffer, section *imap.FetchItemBodySection) (domain.IncomingMail, error) {
	if msg.Envelope == nil {
		return domain.IncomingMail{}, errors.New("нет конверта")
	}

	mail := domain.IncomingMail{
		MessageID: msg.Envelope.MessageID,
		Subject:   strings.TrimSpace(msg.Envelope.Subject),
	}
	if mail.Subject == "" {
		mail.Subject = "Без темы"
	}
	if len(msg.Envelope.From) > 0 {
		from := msg.Envelope.From[0]
		mail.SenderName = strings.TrimSpace(from.Name)
		mail.SenderEmail = strings.TrimSpace(from.Addr())
		if mail.SenderName == "" {
			mail.SenderName = mail.SenderEmail
		}
	}

	raw := msg.FindBodySection(section)
	if len(raw) == 0 {
		return mail, nil
	}
	body, err := extractTextBody(raw)
	if err != nil {
		return domain.IncomingMail{}, fmt.Errorf("разбор тела: %w", err)
	}
	mail.Body = body
	return mail, nil
}

// extractTextBody достаёт первый text/plain фрагмент письма,
// text/html принимается как запасной вариант.
func extractTextBody(raw []byte) (string, error) {
	reader, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	defer reader.Close()

	var htmlFallback string
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		header, ok := part.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, err := header.ContentType()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch contentType {
		case "text/plain":
			return strings.TrimSpace(string(data)), nil
		case "text/html":
			if htmlFallback == "" {
				htmlFallback = strings.TrimSpace(string(data))
			}
		}
	}
	return htmlFallback, nil
}
