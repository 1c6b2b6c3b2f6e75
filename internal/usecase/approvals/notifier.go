package approvals

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"letter-assist/internal/domain"
	"letter-assist/internal/infra/metrics"
)

// Notifier рассылает внутрисистемные уведомления о событиях писем и
// дублирует их в Telegram, если у получателя привязан чат. Сбой доставки
// одного уведомления не мешает остальным.
type Notifier struct {
	users         domain.UserRepo
	notifications domain.NotificationRepo
	pusher        domain.Pusher
	log           zerolog.Logger
}

// NewNotifier создаёт рассыльщика уведомлений. Pusher может быть nil.
func NewNotifier(users domain.UserRepo, notifications domain.NotificationRepo, pusher domain.Pusher, logger zerolog.Logger) *Notifier {
	return &Notifier{users: users, notifications: notifications, pusher: pusher, log: logger}
}

// LetterAssigned уведомляет сотрудников отдела, которому назначено письмо.
func (n *Notifier) LetterAssigned(ctx context.Context, letter domain.Letter, department string) {
	role, ok := domain.RoleForDepartment(department)
	if !ok {
		n.log.Warn().Str("department", department).Int64("letter", letter.ID).
			Msg("approvals: неизвестный отдел, уведомление пропущено")
		return
	}
	n.fanOut(ctx, []domain.UserRole{role}, domain.Notification{
		LetterID: &letter.ID,
		Kind:     domain.NotifyLetterAssigned,
		Title:    "Новое письмо на согласовании",
		Message:  fmt.Sprintf("Письмо #%d «%s» ожидает вашего согласования", letter.ID, letter.Subject),
	})
}

// LetterApproved уведомляет операторов и администраторов о согласовании.
func (n *Notifier) LetterApproved(ctx context.Context, letter domain.Letter) {
	n.fanOut(ctx, []domain.UserRole{domain.RoleOperator, domain.RoleAdmin}, domain.Notification{
		LetterID: &letter.ID,
		Kind:     domain.NotifyLetterApproved,
		Title:    "Письмо согласовано",
		Message:  fmt.Sprintf("Письмо #%d «%s» успешно согласовано", letter.ID, letter.Subject),
	})
}

// LetterRejected уведомляет операторов и администраторов об отклонении.
func (n *Notifier) LetterRejected(ctx context.Context, letter domain.Letter, reason string) {
	n.fanOut(ctx, []domain.UserRole{domain.RoleOperator, domain.RoleAdmin}, domain.Notification{
		LetterID: &letter.ID,
		Kind:     domain.NotifyLetterRejected,
		Title:    "Письмо отклонено",
		Message:  fmt.Sprintf("Письмо #%d «%s» отклонено. Причина: %s", letter.ID, letter.Subject, reason),
	})
}

// SLAWarning предупреждает о приближающемся дедлайне письма.
func (n *Notifier) SLAWarning(ctx context.Context, letter domain.Letter, hoursLeft float64) {
	metrics.SLANotifications.WithLabelValues(string(domain.NotifySLAWarning)).Inc()
	n.fanOut(ctx, []domain.UserRole{domain.RoleOperator, domain.RoleAdmin}, domain.Notification{
		LetterID: &letter.ID,
		Kind:     domain.NotifySLAWarning,
		Title:    "Внимание: приближается дедлайн",
		Message:  fmt.Sprintf("До дедлайна письма #%d «%s» осталось %.1f ч", letter.ID, letter.Subject, hoursLeft),
	})
}

// SLAExpired сообщает о просроченном дедлайне письма.
func (n *Notifier) SLAExpired(ctx context.Context, letter domain.Letter) {
	metrics.SLANotifications.WithLabelValues(string(domain.NotifySLAExpired)).Inc()
	n.fanOut(ctx, []domain.UserRole{domain.RoleOperator, domain.RoleAdmin}, domain.Notification{
		LetterID: &letter.ID,
		Kind:     domain.NotifySLAExpired,
		Title:    "SLA просрочен!",
		Message:  fmt.Sprintf("Дедлайн письма #%d «%s» истёк!", letter.ID, letter.Subject),
	})
}

func (n *Notifier) fanOut(ctx context.Context, roles []domain.UserRole, template domain.Notification) {
	users, err := n.users.ListActiveByRoles(ctx, roles)
	if err != nil {
		n.log.Error().Err(err).Msg("approvals: не удалось получить получателей")
		return
	}
	for _, user := range users {
		notification := template
		notification.UserID = user.ID
		if _, err := n.notifications.Create(ctx, notification); err != nil {
			n.log.Error().Err(err).Int64("user", user.ID).Msg("approvals: уведомление не сохранено")
			continue
		}
		if n.pusher != nil && user.TelegramChatID != 0 {
			text := notification.Title + "\n" + notification.Message
			if err := n.pusher.Push(user.TelegramChatID, text); err != nil {
				n.log.Error().Err(err).Int64("user", user.ID).Msg("approvals: пуш не доставлен")
			}
		}
	}
}
