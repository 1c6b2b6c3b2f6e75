package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"letter-assist/internal/domain"
)

type stubLetters struct {
	active     []domain.Letter
	priorities map[int64]int
}

func newStubLetters(letters ...domain.Letter) *stubLetters {
	return &stubLetters{active: letters, priorities: make(map[int64]int)}
}

func (s *stubLetters) Create(_ context.Context, l domain.Letter) (domain.Letter, error) {
	return l, nil
}
func (s *stubLetters) Get(_ context.Context, _ int64) (domain.Letter, error) {
	return domain.Letter{}, domain.ErrNotFound
}
func (s *stubLetters) Update(_ context.Context, l domain.Letter) (domain.Letter, error) {
	return l, nil
}
func (s *stubLetters) List(_ context.Context, _ domain.LetterFilter) ([]domain.Letter, error) {
	return nil, nil
}
func (s *stubLetters) ExistsBySubjectSender(_ context.Context, _, _ string) (bool, error) {
	return false, nil
}
func (s *stubLetters) ListForPrioritySweep(_ context.Context) ([]domain.Letter, error) {
	out := make([]domain.Letter, len(s.active))
	copy(out, s.active)
	for i := range out {
		if p, ok := s.priorities[out[i].ID]; ok {
			out[i].Priority = p
		}
	}
	return out, nil
}
func (s *stubLetters) ListActiveWithSLA(_ context.Context) ([]domain.Letter, error) {
	return s.active, nil
}
func (s *stubLetters) UpdatePriority(_ context.Context, id int64, priority int) error {
	s.priorities[id] = priority
	return nil
}
func (s *stubLetters) Reserve(_ context.Context, _, _ int64, _ time.Time) (domain.Letter, error) {
	return domain.Letter{}, domain.ErrConflict
}

type existsKey struct {
	letterID int64
	kind     domain.NotificationKind
}

type stubNotificationStore struct {
	existing map[existsKey]bool
}

func (s *stubNotificationStore) Create(_ context.Context, n domain.Notification) (domain.Notification, error) {
	return n, nil
}
func (s *stubNotificationStore) Exists(_ context.Context, letterID int64, kind domain.NotificationKind) (bool, error) {
	return s.existing[existsKey{letterID, kind}], nil
}
func (s *stubNotificationStore) ListForUser(_ context.Context, _ int64, _ bool, _ int) ([]domain.Notification, error) {
	return nil, nil
}
func (s *stubNotificationStore) UnreadCount(_ context.Context, _ int64) (int, error) { return 0, nil }
func (s *stubNotificationStore) MarkRead(_ context.Context, _, _ int64) error        { return nil }
func (s *stubNotificationStore) MarkAllRead(_ context.Context, _ int64) (int64, error) {
	return 0, nil
}

type recordingNotifier struct {
	warnings []int64
	expired  []int64
}

func (r *recordingNotifier) SLAWarning(_ context.Context, letter domain.Letter, _ float64) {
	r.warnings = append(r.warnings, letter.ID)
}

func (r *recordingNotifier) SLAExpired(_ context.Context, letter domain.Letter) {
	r.expired = append(r.expired, letter.ID)
}

func deadlineIn(base time.Time, d time.Duration) *time.Time {
	ts := base.Add(d)
	return &ts
}

func TestPrioritySweepEscalates(t *testing.T) {
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	letters := newStubLetters(
		// Осталось 3 часа: эскалация до высокого.
		domain.Letter{ID: 1, Priority: domain.PriorityLow, SLAHours: 24, Deadline: deadlineIn(base, 3*time.Hour)},
		// Осталось 90% бюджета: приоритет остаётся низким.
		domain.Letter{ID: 2, Priority: domain.PriorityLow, SLAHours: 100, Deadline: deadlineIn(base, 90*time.Hour)},
		// Без дедлайна: не трогаем.
		domain.Letter{ID: 3, Priority: domain.PriorityMedium, SLAHours: 24},
	)
	sweep := NewPrioritySweep(letters, zerolog.Nop())
	sweep.now = func() time.Time { return base }

	changed, err := sweep.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if changed != 1 {
		t.Fatalf("ожидали одно изменение, получили %d", changed)
	}
	if letters.priorities[1] != domain.PriorityHigh {
		t.Fatalf("письмо 1 должно стать высокоприоритетным, получили %d", letters.priorities[1])
	}
}

func TestPrioritySweepIdempotent(t *testing.T) {
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	letters := newStubLetters(
		domain.Letter{ID: 1, Priority: domain.PriorityLow, SLAHours: 24, Deadline: deadlineIn(base, 3*time.Hour)},
	)
	sweep := NewPrioritySweep(letters, zerolog.Nop())
	sweep.now = func() time.Time { return base }

	if _, err := sweep.RunOnce(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	changed, err := sweep.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if changed != 0 {
		t.Fatalf("повторный проход не должен ничего менять, получили %d", changed)
	}
}

func TestSLASweepEmitsOnce(t *testing.T) {
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	letters := newStubLetters(
		// Просрочено.
		domain.Letter{ID: 1, SLAHours: 24, Deadline: deadlineIn(base, -time.Hour)},
		// В окне предупреждения.
		domain.Letter{ID: 2, SLAHours: 24, Deadline: deadlineIn(base, 90*time.Minute)},
		// Далеко до дедлайна.
		domain.Letter{ID: 3, SLAHours: 24, Deadline: deadlineIn(base, 10*time.Hour)},
	)
	store := &stubNotificationStore{existing: map[existsKey]bool{}}
	notifier := &recordingNotifier{}
	sweep := NewSLASweep(letters, store, notifier, zerolog.Nop())
	sweep.now = func() time.Time { return base }

	if err := sweep.RunOnce(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(notifier.expired) != 1 || notifier.expired[0] != 1 {
		t.Fatalf("ожидали просрочку письма 1, получили %v", notifier.expired)
	}
	if len(notifier.warnings) != 1 || notifier.warnings[0] != 2 {
		t.Fatalf("ожидали предупреждение по письму 2, получили %v", notifier.warnings)
	}

	// Повторный проход с уже созданными уведомлениями молчит.
	store.existing[existsKey{1, domain.NotifySLAExpired}] = true
	store.existing[existsKey{2, domain.NotifySLAWarning}] = true
	if err := sweep.RunOnce(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(notifier.expired) != 1 || len(notifier.warnings) != 1 {
		t.Fatal("уведомления должны создаваться не более одного раза")
	}
}

func TestSLASweepExpiredBeatsWarning(t *testing.T) {
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	letters := newStubLetters(
		domain.Letter{ID: 1, SLAHours: 24, Deadline: deadlineIn(base, 0)},
	)
	store := &stubNotificationStore{existing: map[existsKey]bool{}}
	notifier := &recordingNotifier{}
	sweep := NewSLASweep(letters, store, notifier, zerolog.Nop())
	sweep.now = func() time.Time { return base }

	if err := sweep.RunOnce(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(notifier.expired) != 1 || len(notifier.warnings) != 0 {
		t.Fatalf("ровно в дедлайн письмо считается просроченным: expired=%v warnings=%v", notifier.expired, notifier.warnings)
	}
}
