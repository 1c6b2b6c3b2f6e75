package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"letter-assist/internal/domain"
	"letter-assist/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.LetterRepo = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

const letterColumns = `id, subject, body, sender_email, sender_name,
letter_type, formality_level, status, priority, sla_hours, deadline,
extracted_entities, risks, required_departments,
draft_responses, selected_response, final_response,
approval_route, current_approver, approval_comments,
reserved_by, reserved_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLetter(row rowScanner) (domain.Letter, error) {
	var (
		l               domain.Letter
		senderEmail     sql.NullString
		senderName      sql.NullString
		letterType      sql.NullString
		formality       sql.NullString
		slaHours        sql.NullInt64
		deadline        sql.NullTime
		entitiesRaw     []byte
		risksRaw        []byte
		departmentsRaw  []byte
		draftsRaw       []byte
		selected        sql.NullString
		final           sql.NullString
		routeRaw        []byte
		currentApprover sql.NullString
		commentsRaw     []byte
		reservedBy      sql.NullInt64
		reservedAt      sql.NullTime
	)

	err := row.Scan(&l.ID, &l.Subject, &l.Body, &senderEmail, &senderName,
		&letterType, &formality, &l.Status, &l.Priority, &slaHours, &deadline,
		&entitiesRaw, &risksRaw, &departmentsRaw,
		&draftsRaw, &selected, &final,
		&routeRaw, &currentApprover, &commentsRaw,
		&reservedBy, &reservedAt, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return domain.Letter{}, err
	}

	l.SenderEmail = senderEmail.String
	l.SenderName = senderName.String
	l.Type = domain.LetterType(letterType.String)
	l.Formality = domain.FormalityLevel(formality.String)
	l.SLAHours = int(slaHours.Int64)
	if deadline.Valid {
		ts := deadline.Time
		l.Deadline = &ts
	}
	l.SelectedResponse = selected.String
	l.FinalResponse = final.String
	l.CurrentApprover = currentApprover.String
	if reservedBy.Valid {
		id := reservedBy.Int64
		l.ReservedBy = &id
	}
	if reservedAt.Valid {
		ts := reservedAt.Time
		l.ReservedAt = &ts
	}

	if len(entitiesRaw) > 0 {
		var entities domain.ExtractedEntities
		if err := json.Unmarshal(entitiesRaw, &entities); err != nil {
			return domain.Letter{}, fmt.Errorf("extracted_entities: %w", err)
		}
		l.Entities = &entities
	}
	if len(risksRaw) > 0 {
		if err := json.Unmarshal(risksRaw, &l.Risks); err != nil {
			return domain.Letter{}, fmt.Errorf("risks: %w", err)
		}
	}
	if len(departmentsRaw) > 0 {
		if err := json.Unmarshal(departmentsRaw, &l.RequiredDepartments); err != nil {
			return domain.Letter{}, fmt.Errorf("required_departments: %w", err)
		}
	}
	if len(draftsRaw) > 0 {
		var drafts domain.DraftResponses
		if err := json.Unmarshal(draftsRaw, &drafts); err != nil {
			return domain.Letter{}, fmt.Errorf("draft_responses: %w", err)
		}
		l.Drafts = &drafts
	}
	if len(routeRaw) > 0 {
		if err := json.Unmarshal(routeRaw, &l.ApprovalRoute); err != nil {
			return domain.Letter{}, fmt.Errorf("approval_route: %w", err)
		}
	}
	if len(commentsRaw) > 0 {
		if err := json.Unmarshal(commentsRaw, &l.ApprovalComments); err != nil {
			return domain.Letter{}, fmt.Errorf("approval_comments: %w", err)
		}
	}
	return l, nil
}

// jsonbArg сериализует значение для JSONB-колонки, NULL для пустого.
func jsonbArg(v any, empty bool) (any, error) {
	if empty {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func letterJSONBArgs(l domain.Letter) (entities, risks, departments, drafts, route, comments any, err error) {
	if entities, err = jsonbArg(l.Entities, l.Entities == nil); err != nil {
		return
	}
	if risks, err = jsonbArg(l.Risks, len(l.Risks) == 0); err != nil {
		return
	}
	if departments, err = jsonbArg(l.RequiredDepartments, len(l.RequiredDepartments) == 0); err != nil {
		return
	}
	if drafts, err = jsonbArg(l.Drafts, l.Drafts == nil); err != nil {
		return
	}
	if route, err = jsonbArg(l.ApprovalRoute, len(l.ApprovalRoute) == 0); err != nil {
		return
	}
	comments, err = jsonbArg(l.ApprovalComments, len(l.ApprovalComments) == 0)
	return
}

// Create реализует domain.LetterRepo.
func (p *Postgres) Create(ctx context.Context, letter domain.Letter) (domain.Letter, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	entities, risks, departments, drafts, route, comments, err := letterJSONBArgs(letter)
	if err != nil {
		return domain.Letter{}, err
	}

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO letters (subject, body, sender_email, sender_name,
    letter_type, formality_level, status, priority, sla_hours, deadline,
    extracted_entities, risks, required_departments,
    draft_responses, selected_response, final_response,
    approval_route, current_approver, approval_comments)
VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''),
    NULLIF($5,''), NULLIF($6,''), $7, $8, NULLIF($9,0), $10,
    $11, $12, $13,
    $14, NULLIF($15,''), NULLIF($16,''),
    $17, NULLIF($18,''), $19)
RETURNING `+letterColumns,
		letter.Subject, letter.Body, letter.SenderEmail, letter.SenderName,
		string(letter.Type), string(letter.Formality), letter.Status, letter.Priority, letter.SLAHours, letter.Deadline,
		entities, risks, departments,
		drafts, letter.SelectedResponse, letter.FinalResponse,
		route, letter.CurrentApprover, comments)
	created, err := scanLetter(row)
	metrics.ObserveNetworkRequest("postgres", "letters_insert", "letters", start, err)
	return created, err
}

// Get возвращает письмо по идентификатору.
func (p *Postgres) Get(ctx context.Context, id int64) (domain.Letter, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `SELECT `+letterColumns+` FROM letters WHERE id=$1`, id)
	letter, err := scanLetter(row)
	metrics.ObserveNetworkRequest("postgres", "letters_get", "letters", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Letter{}, domain.ErrNotFound
	}
	return letter, err
}

// Update перезаписывает изменяемые поля письма.
func (p *Postgres) Update(ctx context.Context, letter domain.Letter) (domain.Letter, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	entities, risks, departments, drafts, route, comments, err := letterJSONBArgs(letter)
	if err != nil {
		return domain.Letter{}, err
	}

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
UPDATE letters
SET letter_type=NULLIF($2,''), formality_level=NULLIF($3,''),
    status=$4, priority=$5, sla_hours=NULLIF($6,0), deadline=$7,
    extracted_entities=$8, risks=$9, required_departments=$10,
    draft_responses=$11, selected_response=NULLIF($12,''), final_response=NULLIF($13,''),
    approval_route=$14, current_approver=NULLIF($15,''), approval_comments=$16,
    reserved_by=$17, reserved_at=$18, updated_at=now()
WHERE id=$1
RETURNING `+letterColumns,
		letter.ID, string(letter.Type), string(letter.Formality),
		letter.Status, letter.Priority, letter.SLAHours, letter.Deadline,
		entities, risks, departments,
		drafts, letter.SelectedResponse, letter.FinalResponse,
		route, letter.CurrentApprover, comments,
		letter.ReservedBy, letter.ReservedAt)
	updated, err := scanLetter(row)
	metrics.ObserveNetworkRequest("postgres", "letters_update", "letters", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Letter{}, domain.ErrNotFound
	}
	return updated, err
}

// List возвращает письма по фильтру, отсортированные по приоритету и дедлайну.
func (p *Postgres) List(ctx context.Context, filter domain.LetterFilter) ([]domain.Letter, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Status != nil {
		where = append(where, "status="+arg(*filter.Status))
	}
	if dept := strings.TrimSpace(filter.Department); dept != "" {
		where = append(where, `EXISTS (
    SELECT 1 FROM jsonb_array_elements(COALESCE(approval_route, '[]'::jsonb)) AS step
    WHERE lower(step->>'department') = lower(`+arg(dept)+`))`)
	}
	if filter.Reserved != nil {
		if *filter.Reserved {
			where = append(where, "reserved_by="+arg(filter.UserID))
		} else {
			where = append(where, "reserved_by IS NULL")
		}
	}

	query := `SELECT ` + letterColumns + ` FROM letters`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY priority ASC, deadline ASC NULLS LAST, created_at DESC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT " + arg(limit)
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "letters_list", "letters", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var letters []domain.Letter
	for rows.Next() {
		letter, err := scanLetter(rows)
		if err != nil {
			return nil, err
		}
		letters = append(letters, letter)
	}
	return letters, rows.Err()
}

// ExistsBySubjectSender проверяет, принималось ли уже такое письмо.
func (p *Postgres) ExistsBySubjectSender(ctx context.Context, subject, senderEmail string) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var exists bool
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM letters WHERE subject=$1 AND sender_email=$2)
`, subject, senderEmail).Scan(&exists)
	metrics.ObserveNetworkRequest("postgres", "letters_exists_by_subject_sender", "letters", start, err)
	return exists, err
}

// ListForPrioritySweep возвращает письма с дедлайном вне финальных статусов.
func (p *Postgres) ListForPrioritySweep(ctx context.Context) ([]domain.Letter, error) {
	return p.listActive(ctx, `deadline IS NOT NULL`, "letters_list_for_priority_sweep")
}

// ListActiveWithSLA возвращает активные письма с положительным SLA и дедлайном.
func (p *Postgres) ListActiveWithSLA(ctx context.Context) ([]domain.Letter, error) {
	return p.listActive(ctx, `deadline IS NOT NULL AND sla_hours > 0`, "letters_list_active_with_sla")
}

func (p *Postgres) listActive(ctx context.Context, cond, op string) ([]domain.Letter, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+letterColumns+` FROM letters
WHERE `+cond+` AND status NOT IN ($1, $2)
ORDER BY deadline ASC
`, domain.StatusApproved, domain.StatusSent)
	metrics.ObserveNetworkRequest("postgres", op, "letters", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var letters []domain.Letter
	for rows.Next() {
		letter, err := scanLetter(rows)
		if err != nil {
			return nil, err
		}
		letters = append(letters, letter)
	}
	return letters, rows.Err()
}

// UpdatePriority меняет только приоритет письма.
func (p *Postgres) UpdatePriority(ctx context.Context, id int64, priority int) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE letters SET priority=$2, updated_at=now() WHERE id=$1`, id, priority)
	metrics.ObserveNetworkRequest("postgres", "letters_update_priority", "letters", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Reserve атомарно закрепляет письмо за пользователем. Условный UPDATE
// гарантирует ровно одного победителя среди конкурирующих вызовов.
func (p *Postgres) Reserve(ctx context.Context, id, userID int64, at time.Time) (domain.Letter, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
UPDATE letters
SET reserved_by=$2, reserved_at=$3, updated_at=now()
WHERE id=$1 AND status=$4 AND (reserved_by IS NULL OR reserved_by=$2)
RETURNING `+letterColumns, id, userID, at, domain.StatusInApproval)
	letter, err := scanLetter(row)
	metrics.ObserveNetworkRequest("postgres", "letters_reserve", "letters", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		// Различаем «нет такого письма» и «занято другим».
		if _, getErr := p.Get(ctx, id); errors.Is(getErr, domain.ErrNotFound) {
			return domain.Letter{}, domain.ErrNotFound
		}
		return domain.Letter{}, domain.ErrConflict
	}
	return letter, err
}
