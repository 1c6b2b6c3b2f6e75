package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"letter-assist/internal/domain"
	"letter-assist/internal/infra/metrics"
)

// PrioritySweep периодически пересчитывает приоритеты активных писем по
// мере приближения дедлайнов.
type PrioritySweep struct {
	letters domain.LetterRepo
	log     zerolog.Logger
	now     func() time.Time
}

// NewPrioritySweep создаёт пересчёт приоритетов.
func NewPrioritySweep(letters domain.LetterRepo, logger zerolog.Logger) *PrioritySweep {
	return &PrioritySweep{letters: letters, log: logger, now: time.Now}
}

// RunOnce выполняет один проход и возвращает число изменённых писем.
// Письма с уже актуальным приоритетом не трогаются, поэтому повторный
// проход без смены времени ничего не меняет.
func (s *PrioritySweep) RunOnce(ctx context.Context) (int, error) {
	letters, err := s.letters.ListForPrioritySweep(ctx)
	if err != nil {
		return 0, fmt.Errorf("выборка писем: %w", err)
	}

	now := s.now()
	changed := 0
	for _, letter := range letters {
		prev := letter.Priority
		if prev == 0 {
			prev = domain.PriorityMedium
		}
		next := domain.CalcPriority(letter.Deadline, letter.SLAHours, prev, now)
		if next == prev {
			continue
		}
		if err := s.letters.UpdatePriority(ctx, letter.ID, next); err != nil {
			s.log.Error().Err(err).Int64("letter", letter.ID).Msg("sweep: приоритет не обновлён")
			continue
		}
		metrics.PrioritiesChanged.Inc()
		changed++
	}
	if changed > 0 {
		s.log.Info().Int("changed", changed).Msg("sweep: приоритеты пересчитаны")
	}
	return changed, nil
}

// Run крутит пересчёт с заданным интервалом до отмены контекста.
func (s *PrioritySweep) Run(ctx context.Context, interval, errorBackoff time.Duration) {
	s.log.Info().Dur("interval", interval).Msg("sweep: пересчёт приоритетов запущен")
	for {
		wait := interval
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Error().Err(err).Msg("sweep: проход пересчёта приоритетов не удался")
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
