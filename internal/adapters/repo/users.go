package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"letter-assist/internal/domain"
	"letter-assist/internal/infra/metrics"
)

// Users реализует domain.UserRepo поверх pgxpool.
type Users struct {
	pool *pgxpool.Pool
}

var _ domain.UserRepo = (*Users)(nil)

// NewUsers создаёт репозиторий пользователей.
func NewUsers(pool *pgxpool.Pool) *Users {
	return &Users{pool: pool}
}

func (r *Users) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 5*time.Second)
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

const userColumns = `id, username, email, password_hash, first_name, last_name, middle_name, role, is_active, telegram_chat_id, created_at, updated_at`

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u          domain.User
		middleName sql.NullString
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&middleName, &u.Role, &u.IsActive, &u.TelegramChatID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, err
	}
	u.MiddleName = middleName.String
	return u, nil
}

// Create сохраняет нового пользователя.
func (r *Users) Create(ctx context.Context, user domain.User) (domain.User, error) {
	ctx, cancel := r.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := r.pool.QueryRow(ctx, `
INSERT INTO users (username, email, password_hash, first_name, last_name, middle_name, role, is_active, telegram_chat_id)
VALUES ($1, $2, $3, $4, $5, NULLIF($6,''), $7, $8, $9)
RETURNING `+userColumns,
		user.Username, user.Email, user.PasswordHash, user.FirstName, user.LastName,
		user.MiddleName, user.Role, user.IsActive, user.TelegramChatID)
	created, err := scanUser(row)
	metrics.ObserveNetworkRequest("postgres", "users_insert", "users", start, err)
	return created, err
}

// Get возвращает пользователя по идентификатору.
func (r *Users) Get(ctx context.Context, id int64) (domain.User, error) {
	ctx, cancel := r.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	user, err := scanUser(row)
	metrics.ObserveNetworkRequest("postgres", "users_get", "users", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	return user, err
}

// GetByUsername возвращает пользователя по логину.
func (r *Users) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	ctx, cancel := r.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username=$1`, username)
	user, err := scanUser(row)
	metrics.ObserveNetworkRequest("postgres", "users_get_by_username", "users", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	return user, err
}

// List возвращает страницу пользователей.
func (r *Users) List(ctx context.Context, limit, offset int) ([]domain.User, error) {
	ctx, cancel := r.connCtx(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	start := time.Now()
	rows, err := r.pool.Query(ctx, `
SELECT `+userColumns+` FROM users ORDER BY id LIMIT $1 OFFSET $2
`, limit, offset)
	metrics.ObserveNetworkRequest("postgres", "users_list", "users", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// Update перезаписывает изменяемые поля пользователя.
func (r *Users) Update(ctx context.Context, user domain.User) (domain.User, error) {
	ctx, cancel := r.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := r.pool.QueryRow(ctx, `
UPDATE users
SET email=$2, password_hash=$3, first_name=$4, last_name=$5, middle_name=NULLIF($6,''),
    role=$7, is_active=$8, telegram_chat_id=$9, updated_at=now()
WHERE id=$1
RETURNING `+userColumns,
		user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName,
		user.MiddleName, user.Role, user.IsActive, user.TelegramChatID)
	updated, err := scanUser(row)
	metrics.ObserveNetworkRequest("postgres", "users_update", "users", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	return updated, err
}

// Delete удаляет пользователя.
func (r *Users) Delete(ctx context.Context, id int64) error {
	ctx, cancel := r.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	metrics.ObserveNetworkRequest("postgres", "users_delete", "users", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListActiveByRoles возвращает активных пользователей перечисленных ролей.
func (r *Users) ListActiveByRoles(ctx context.Context, roles []domain.UserRole) ([]domain.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	ctx, cancel := r.connCtx(ctx)
	defer cancel()

	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, string(role))
	}

	start := time.Now()
	rows, err := r.pool.Query(ctx, `
SELECT `+userColumns+` FROM users WHERE is_active AND role = ANY($1) ORDER BY id
`, names)
	metrics.ObserveNetworkRequest("postgres", "users_list_active_by_roles", "users", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}
