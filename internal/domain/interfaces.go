package domain

import (
	"context"
	"time"
)

// LetterFilter задаёт условия выборки писем.
type LetterFilter struct {
	Status *LetterStatus
	// Department ограничивает выборку письмами, в маршруте которых
	// участвует отдел (поиск без учёта регистра).
	Department string
	// Reserved: true — только письма, закреплённые за UserID,
	// false — только свободные. Учитывается вместе с Department.
	Reserved *bool
	UserID   int64
	Limit    int
	Offset   int
}

// LetterRepo управляет письмами в хранилище.
type LetterRepo interface {
	Create(ctx context.Context, letter Letter) (Letter, error)
	Get(ctx context.Context, id int64) (Letter, error)
	Update(ctx context.Context, letter Letter) (Letter, error)
	List(ctx context.Context, filter LetterFilter) ([]Letter, error)
	// ExistsBySubjectSender используется дедупликацией приёма почты.
	ExistsBySubjectSender(ctx context.Context, subject, senderEmail string) (bool, error)
	// ListForPrioritySweep возвращает письма с дедлайном вне финальных статусов.
	ListForPrioritySweep(ctx context.Context) ([]Letter, error)
	// ListActiveWithSLA возвращает активные письма с положительным SLA и дедлайном.
	ListActiveWithSLA(ctx context.Context) ([]Letter, error)
	UpdatePriority(ctx context.Context, id int64, priority int) error
	// Reserve атомарно закрепляет письмо за пользователем.
	// Возвращает ErrConflict, если оно занято другим.
	Reserve(ctx context.Context, id, userID int64, at time.Time) (Letter, error)
}

// UserRepo управляет пользователями.
type UserRepo interface {
	Create(ctx context.Context, user User) (User, error)
	Get(ctx context.Context, id int64) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
	List(ctx context.Context, limit, offset int) ([]User, error)
	Update(ctx context.Context, user User) (User, error)
	Delete(ctx context.Context, id int64) error
	// ListActiveByRoles возвращает активных пользователей перечисленных ролей.
	ListActiveByRoles(ctx context.Context, roles []UserRole) ([]User, error)
}

// NotificationRepo управляет уведомлениями.
type NotificationRepo interface {
	Create(ctx context.Context, n Notification) (Notification, error)
	// Exists сообщает, создавалось ли уведомление данного типа по письму.
	// На этой проверке держится идемпотентность SLA-уведомлений.
	Exists(ctx context.Context, letterID int64, kind NotificationKind) (bool, error)
	ListForUser(ctx context.Context, userID int64, onlyUnread bool, limit int) ([]Notification, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)
	MarkRead(ctx context.Context, id, userID int64) error
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
}

// Classifier анализирует письмо и генерирует варианты ответа.
type Classifier interface {
	Analyze(ctx context.Context, subject, body string) (Analysis, error)
	GenerateResponses(ctx context.Context, subject, body string, analysis Analysis) (DraftResponses, error)
}

// Mailbox выгружает новые входящие сообщения.
type Mailbox interface {
	Connect() error
	Disconnect()
	FetchNew(ctx context.Context) ([]IncomingMail, error)
}

// Dispatcher отправляет финальный ответ отправителю письма.
type Dispatcher interface {
	Send(ctx context.Context, toEmail, subject, body string) error
}

// Pusher доставляет текст уведомления во внешний канал (Telegram).
type Pusher interface {
	Push(chatID int64, text string) error
}

// AnalysisQueue — очередь задач на анализ писем.
type AnalysisQueue interface {
	Enqueue(ctx context.Context, job AnalysisJob) error
	// Pop блокирующе читает следующую задачу.
	Pop(ctx context.Context) (AnalysisJob, error)
}
