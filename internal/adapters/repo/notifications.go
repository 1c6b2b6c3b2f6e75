package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"letter-assist/internal/domain"
	"letter-assist/internal/infra/metrics"
)

// Notifications реализует domain.NotificationRepo поверх pgxpool.
type Notifications struct {
	pool *pgxpool.Pool
}

var _ domain.NotificationRepo = (*Notifications)(nil)

// NewNotifications создаёт репозиторий уведомлений.
func NewNotifications(pool *pgxpool.Pool) *Notifications {
	return &Notifications{pool: pool}
}

func (r *Notifications) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 5*time.Second)
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

const notificationColumns = `id, user_id, letter_id, kind, title, message, is_read, created_at`

func scanNotification(row rowScanner) (domain.Notification, error) {
	var (
		n        domain.Notification
		letterID sql.NullInt64
	)
	err := row.Scan(&n.ID, &n.UserID, &letterID, &n.Kind, &n.Title, &n.Message, &n.IsRead, &n.CreatedAt)
	if err != nil {
		return domain.Notification{}, err
	}
	if letterID.Valid {
		id := letterID.Int64
		n.LetterID = &id
	}
	return n, nil
}

// Create сохраняет уведомление.
func (r *Notifications) Create(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	ctx, cancel := r.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := r.pool.QueryRow(ctx, `
INSERT INTO notifications (user_id, letter_id, kind, title, message)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+notificationColumns,
		n.UserID, n.LetterID, n.Kind, n.Title, n.Message)
	created, err := scanNotification(row)
	metrics.ObserveNetworkRequest("postgres", "notifications_insert", "notifications", start, err)
	return created, err
}

// Exists сообщает, создавалось ли уведомление данного типа по письму.
func (r *Notifications) Exists(ctx context.Context, letterID int64, kind domain.NotificationKind) (bool, error) {
	ctx, cancel := r.connCtx(ctx)
	defer cancel()

	var exists bool
	start := time.Now()
	err := r.pool.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM notifications WHERE letter_id=$1 AND kind=$2)
`, letterID, kind).Scan(&exists)
	metrics.ObserveNetworkRequest("postgres", "notifications_exists", "notifications", start, err)
	return exists, err
}

// ListForUser возвращает свежие уведомления пользователя.
func (r *Notifications) ListForUser(ctx context.Context, userID int64, onlyUnread bool, limit int) ([]domain.Notification, error) {
	ctx, cancel := r.connCtx(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id=$1`
	if onlyUnread {
		query += ` AND NOT is_read`
	}
	query += ` ORDER BY created_at DESC LIMIT $2`

	start := time.Now()
	rows, err := r.pool.Query(ctx, query, userID, limit)
	metrics.ObserveNetworkRequest("postgres", "notifications_list_for_user", "notifications", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

// UnreadCount считает непрочитанные уведомления пользователя.
func (r *Notifications) UnreadCount(ctx context.Context, userID int64) (int, error) {
	ctx, cancel := r.connCtx(ctx)
	defer cancel()

	var count int
	start := time.Now()
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id=$1 AND NOT is_read`, userID).Scan(&count)
	metrics.ObserveNetworkRequest("postgres", "notifications_unread_count", "notifications", start, err)
	return count, err
}

// MarkRead помечает уведомление прочитанным.
func (r *Notifications) MarkRead(ctx context.Context, id, userID int64) error {
	ctx, cancel := r.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET is_read=true WHERE id=$1 AND user_id=$2`, id, userID)
	metrics.ObserveNetworkRequest("postgres", "notifications_mark_read", "notifications", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkAllRead помечает все уведомления пользователя прочитанными.
func (r *Notifications) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	ctx, cancel := r.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET is_read=true WHERE user_id=$1 AND NOT is_read`, userID)
	metrics.ObserveNetworkRequest("postgres", "notifications_mark_all_read", "notifications", start, err)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
