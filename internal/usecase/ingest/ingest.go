package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"letter-assist/internal/domain"
	"letter-assist/internal/infra/metrics"
	"letter-assist/internal/usecase/letters"
)

// SeenFilter отсекает уже обработанные сообщения по Message-ID.
type SeenFilter interface {
	IsNew(ctx context.Context, messageID string) (bool, error)
}

// letterCreator регистрирует письмо во входящих.
type letterCreator interface {
	Create(ctx context.Context, params letters.CreateParams) (domain.Letter, error)
}

// Service забирает новые письма из почтового ящика, отсекает дубликаты и
// ставит принятые письма в очередь на анализ.
type Service struct {
	mailbox domain.Mailbox
	letters domain.LetterRepo
	creator letterCreator
	seen    SeenFilter
	queue   domain.AnalysisQueue
	log     zerolog.Logger
}

// NewService создаёт приём почты. Фильтр seen может быть nil: тогда
// дедупликация держится только на паре (тема, отправитель).
func NewService(mailbox domain.Mailbox, letters domain.LetterRepo, creator letterCreator, seen SeenFilter, queue domain.AnalysisQueue, logger zerolog.Logger) *Service {
	return &Service{
		mailbox: mailbox,
		letters: letters,
		creator: creator,
		seen:    seen,
		queue:   queue,
		log:     logger,
	}
}

// CheckOnce выполняет одну проверку ящика и возвращает принятые письма.
// Ошибка одного сообщения не мешает обработке остальных.
func (s *Service) CheckOnce(ctx context.Context) ([]domain.Letter, error) {
	incoming, err := s.mailbox.FetchNew(ctx)
	if err != nil {
		metrics.MailFetchErrors.Inc()
		return nil, fmt.Errorf("выгрузка почты: %w", err)
	}
	if len(incoming) == 0 {
		return nil, nil
	}
	s.log.Info().Int("count", len(incoming)).Msg("ingest: найдены новые сообщения")

	var created []domain.Letter
	for _, mail := range incoming {
		letter, ok, err := s.ingestOne(ctx, mail)
		if err != nil {
			s.log.Error().Err(err).Str("subject", mail.Subject).Msg("ingest: сообщение не обработано")
			continue
		}
		if !ok {
			continue
		}
		created = append(created, letter)
	}
	return created, nil
}

func (s *Service) ingestOne(ctx context.Context, mail domain.IncomingMail) (domain.Letter, bool, error) {
	if s.seen != nil && mail.MessageID != "" {
		fresh, err := s.seen.IsNew(ctx, mail.MessageID)
		if err != nil {
			// Фильтр недоступен: полагаемся на проверку по БД ниже.
			s.log.Warn().Err(err).Msg("ingest: фильтр дубликатов недоступен")
		} else if !fresh {
			return domain.Letter{}, false, nil
		}
	}

	exists, err := s.letters.ExistsBySubjectSender(ctx, mail.Subject, mail.SenderEmail)
	if err != nil {
		return domain.Letter{}, false, fmt.Errorf("проверка дубликата: %w", err)
	}
	if exists {
		s.log.Debug().Str("subject", mail.Subject).Msg("ingest: письмо уже существует")
		return domain.Letter{}, false, nil
	}

	letter, err := s.creator.Create(ctx, letters.CreateParams{
		Subject:     mail.Subject,
		Body:        mail.Body,
		SenderEmail: mail.SenderEmail,
		SenderName:  mail.SenderName,
		Priority:    domain.PriorityLow,
	})
	if err != nil {
		return domain.Letter{}, false, fmt.Errorf("создание письма: %w", err)
	}
	metrics.LettersIngested.Inc()

	if s.queue != nil {
		job := domain.AnalysisJob{ID: uuid.NewString(), LetterID: letter.ID}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			// Письмо уже принято, анализ можно запустить вручную.
			s.log.Error().Err(err).Int64("letter", letter.ID).Msg("ingest: задача анализа не поставлена")
		}
	}

	s.log.Info().Int64("letter", letter.ID).Str("subject", mail.Subject).Msg("ingest: письмо принято")
	return letter, true, nil
}

// CheckNow подключается к ящику, выполняет одну проверку и отключается.
// Используется ручным запуском из API.
func (s *Service) CheckNow(ctx context.Context) ([]domain.Letter, error) {
	if err := s.mailbox.Connect(); err != nil {
		return nil, fmt.Errorf("подключение к почте: %w", err)
	}
	defer s.mailbox.Disconnect()
	return s.CheckOnce(ctx)
}

// Run опрашивает ящик с заданным интервалом до отмены контекста.
func (s *Service) Run(ctx context.Context, interval, errorBackoff time.Duration) {
	s.log.Info().Dur("interval", interval).Msg("ingest: мониторинг почты запущен")
	if err := s.mailbox.Connect(); err != nil {
		s.log.Error().Err(err).Msg("ingest: подключение к почте не удалось")
	}
	defer s.mailbox.Disconnect()

	for {
		wait := interval
		if _, err := s.CheckOnce(ctx); err != nil {
			s.log.Error().Err(err).Msg("ingest: проверка почты не удалась")
			// Переподключение на следующей итерации.
			s.mailbox.Disconnect()
			if err := s.mailbox.Connect(); err != nil {
				s.log.Error().Err(err).Msg("ingest: переподключение не удалось")
			}
			if errorBackoff > 0 {
				wait = errorBackoff
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}
