package approvals

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"letter-assist/internal/domain"
)

type stubUsers struct {
	byRole map[domain.UserRole][]domain.User
}

func (s *stubUsers) Create(_ context.Context, u domain.User) (domain.User, error) { return u, nil }
func (s *stubUsers) Get(_ context.Context, _ int64) (domain.User, error) {
	return domain.User{}, domain.ErrNotFound
}
func (s *stubUsers) GetByUsername(_ context.Context, _ string) (domain.User, error) {
	return domain.User{}, domain.ErrNotFound
}
func (s *stubUsers) List(_ context.Context, _, _ int) ([]domain.User, error) { return nil, nil }
func (s *stubUsers) Update(_ context.Context, u domain.User) (domain.User, error) {
	return u, nil
}
func (s *stubUsers) Delete(_ context.Context, _ int64) error { return nil }

func (s *stubUsers) ListActiveByRoles(_ context.Context, roles []domain.UserRole) ([]domain.User, error) {
	var users []domain.User
	for _, role := range roles {
		users = append(users, s.byRole[role]...)
	}
	return users, nil
}

type stubNotifications struct {
	created   []domain.Notification
	createErr error
}

func (s *stubNotifications) Create(_ context.Context, n domain.Notification) (domain.Notification, error) {
	if s.createErr != nil {
		return domain.Notification{}, s.createErr
	}
	s.created = append(s.created, n)
	return n, nil
}

func (s *stubNotifications) Exists(_ context.Context, _ int64, _ domain.NotificationKind) (bool, error) {
	return false, nil
}

func (s *stubNotifications) ListForUser(_ context.Context, _ int64, _ bool, _ int) ([]domain.Notification, error) {
	return nil, nil
}

func (s *stubNotifications) UnreadCount(_ context.Context, _ int64) (int, error) { return 0, nil }
func (s *stubNotifications) MarkRead(_ context.Context, _, _ int64) error        { return nil }
func (s *stubNotifications) MarkAllRead(_ context.Context, _ int64) (int64, error) {
	return 0, nil
}

type stubPusher struct {
	pushed []int64
	err    error
}

func (s *stubPusher) Push(chatID int64, _ string) error {
	if s.err != nil {
		return s.err
	}
	s.pushed = append(s.pushed, chatID)
	return nil
}

func testLetter() domain.Letter {
	return domain.Letter{ID: 5, Subject: "Запрос тарифов"}
}

func TestLetterAssignedTargetsDepartmentRole(t *testing.T) {
	users := &stubUsers{byRole: map[domain.UserRole][]domain.User{
		domain.RoleLawyer:   {{ID: 1, Role: domain.RoleLawyer}, {ID: 2, Role: domain.RoleLawyer}},
		domain.RoleOperator: {{ID: 3, Role: domain.RoleOperator}},
	}}
	store := &stubNotifications{}
	notifier := NewNotifier(users, store, nil, zerolog.Nop())

	notifier.LetterAssigned(context.Background(), testLetter(), "юридический отдел")

	if len(store.created) != 2 {
		t.Fatalf("ожидали уведомления двум юристам, получили %d", len(store.created))
	}
	for _, n := range store.created {
		if n.Kind != domain.NotifyLetterAssigned {
			t.Fatalf("ожидали kind letter_assigned, получили %s", n.Kind)
		}
		if n.LetterID == nil || *n.LetterID != 5 {
			t.Fatal("уведомление должно ссылаться на письмо")
		}
	}
}

func TestLetterAssignedUnknownDepartment(t *testing.T) {
	users := &stubUsers{byRole: map[domain.UserRole][]domain.User{}}
	store := &stubNotifications{}
	notifier := NewNotifier(users, store, nil, zerolog.Nop())

	notifier.LetterAssigned(context.Background(), testLetter(), "Отдел кадров")

	if len(store.created) != 0 {
		t.Fatalf("неизвестный отдел не должен давать уведомлений, получили %d", len(store.created))
	}
}

func TestLetterApprovedFansOutToOperatorsAndAdmins(t *testing.T) {
	users := &stubUsers{byRole: map[domain.UserRole][]domain.User{
		domain.RoleOperator: {{ID: 1, Role: domain.RoleOperator, TelegramChatID: 100}},
		domain.RoleAdmin:    {{ID: 2, Role: domain.RoleAdmin}},
	}}
	store := &stubNotifications{}
	pusher := &stubPusher{}
	notifier := NewNotifier(users, store, pusher, zerolog.Nop())

	notifier.LetterApproved(context.Background(), testLetter())

	if len(store.created) != 2 {
		t.Fatalf("ожидали уведомления оператору и администратору, получили %d", len(store.created))
	}
	// Пуш уходит только пользователю с привязанным чатом.
	if len(pusher.pushed) != 1 || pusher.pushed[0] != 100 {
		t.Fatalf("ожидали один пуш в чат 100, получили %v", pusher.pushed)
	}
}

func TestPushFailureDoesNotStopFanOut(t *testing.T) {
	users := &stubUsers{byRole: map[domain.UserRole][]domain.User{
		domain.RoleOperator: {
			{ID: 1, Role: domain.RoleOperator, TelegramChatID: 100},
			{ID: 2, Role: domain.RoleOperator, TelegramChatID: 200},
		},
	}}
	store := &stubNotifications{}
	pusher := &stubPusher{err: errors.New("бот недоступен")}
	notifier := NewNotifier(users, store, pusher, zerolog.Nop())

	notifier.LetterRejected(context.Background(), testLetter(), "нужна доработка")

	if len(store.created) != 2 {
		t.Fatalf("сбой пуша не должен мешать сохранению уведомлений, получили %d", len(store.created))
	}
}
