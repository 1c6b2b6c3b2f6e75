package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"letter-assist/internal/domain"
)

// WarningWindowHours — за сколько часов до дедлайна создаётся предупреждение.
const WarningWindowHours = 2

// SLANotifier рассылает уведомления о состоянии SLA письма.
type SLANotifier interface {
	SLAWarning(ctx context.Context, letter domain.Letter, hoursLeft float64)
	SLAExpired(ctx context.Context, letter domain.Letter)
}

// SLASweep следит за дедлайнами активных писем. Каждое событие — просрочка
// либо приближение дедлайна — порождает уведомление не более одного раза за
// жизнь письма: идемпотентность держится на проверке уже созданных
// уведомлений.
type SLASweep struct {
	letters       domain.LetterRepo
	notifications domain.NotificationRepo
	notifier      SLANotifier
	log           zerolog.Logger
	now           func() time.Time
}

// NewSLASweep создаёт мониторинг SLA.
func NewSLASweep(letters domain.LetterRepo, notifications domain.NotificationRepo, notifier SLANotifier, logger zerolog.Logger) *SLASweep {
	return &SLASweep{
		letters:       letters,
		notifications: notifications,
		notifier:      notifier,
		log:           logger,
		now:           time.Now,
	}
}

// RunOnce выполняет один проход мониторинга.
func (s *SLASweep) RunOnce(ctx context.Context) error {
	letters, err := s.letters.ListActiveWithSLA(ctx)
	if err != nil {
		return fmt.Errorf("выборка активных писем: %w", err)
	}

	now := s.now()
	for _, letter := range letters {
		if letter.Deadline == nil {
			continue
		}
		hoursLeft := letter.Deadline.Sub(now).Hours()

		switch {
		case hoursLeft <= 0:
			exists, err := s.notifications.Exists(ctx, letter.ID, domain.NotifySLAExpired)
			if err != nil {
				s.log.Error().Err(err).Int64("letter", letter.ID).Msg("sweep: проверка уведомлений не удалась")
				continue
			}
			if exists {
				continue
			}
			s.log.Warn().Int64("letter", letter.ID).Msg("sweep: SLA просрочен")
			s.notifier.SLAExpired(ctx, letter)
		case hoursLeft <= WarningWindowHours:
			exists, err := s.notifications.Exists(ctx, letter.ID, domain.NotifySLAWarning)
			if err != nil {
				s.log.Error().Err(err).Int64("letter", letter.ID).Msg("sweep: проверка уведомлений не удалась")
				continue
			}
			if exists {
				continue
			}
			s.log.Info().Int64("letter", letter.ID).Float64("hours_left", hoursLeft).Msg("sweep: приближается дедлайн")
			s.notifier.SLAWarning(ctx, letter, hoursLeft)
		}
	}
	return nil
}

// Run крутит мониторинг с заданным интервалом до отмены контекста.
func (s *SLASweep) Run(ctx context.Context, interval, errorBackoff time.Duration) {
	s.log.Info().Dur("interval", interval).Msg("sweep: мониторинг SLA запущен")
	for {
		wait := interval
		if err := s.RunOnce(ctx); err != nil {
			s.log.Error().Err(err).Msg("sweep: проход мониторинга SLA не удался")
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
