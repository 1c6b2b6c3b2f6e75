package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"letter-assist/internal/infra/metrics"
	"letter-assist/internal/usecase/analytics"
)

// Analytics считает агрегаты по таблице писем для сервиса аналитики.
type Analytics struct {
	pool *pgxpool.Pool
}

var _ analytics.Store = (*Analytics)(nil)

// NewAnalytics создаёт репозиторий аналитики.
func NewAnalytics(pool *pgxpool.Pool) *Analytics {
	return &Analytics{pool: pool}
}

func (r *Analytics) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 5*time.Second)
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

func (r *Analytics) ProcessingHours(ctx context.Context, since time.Time) ([]float64, error) {
	ctx, cancel := r.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := r.pool.Query(ctx, `
		SELECT EXTRACT(EPOCH FROM (updated_at - created_at)) / 3600.0
		FROM letters
		WHERE status IN ('approved', 'sent')
		  AND created_at >= $1
		  AND updated_at >= created_at`, since)
	metrics.ObserveNetworkRequest("postgres", "analytics_processing_hours", "letters", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hours []float64
	for rows.Next() {
		var h float64
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hours = append(hours, h)
	}
	return hours, rows.Err()
}

func (r *Analytics) SLAOutcomes(ctx context.Context, since time.Time) ([]analytics.SLAOutcome, error) {
	ctx, cancel := r.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := r.pool.Query(ctx, `
		SELECT updated_at <= deadline,
		       EXTRACT(EPOCH FROM (deadline - updated_at)) / 3600.0
		FROM letters
		WHERE deadline IS NOT NULL
		  AND created_at >= $1`, since)
	metrics.ObserveNetworkRequest("postgres", "analytics_sla_outcomes", "letters", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []analytics.SLAOutcome
	for rows.Next() {
		var o analytics.SLAOutcome
		if err := rows.Scan(&o.Met, &o.DeviationHours); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func (r *Analytics) CountByType(ctx context.Context, since time.Time) ([]analytics.LabelCount, error) {
	return r.labelCounts(ctx, "analytics_count_by_type", `
		SELECT COALESCE(NULLIF(letter_type, ''), 'unknown'), COUNT(*)
		FROM letters
		WHERE created_at >= $1
		GROUP BY 1`, since)
}

func (r *Analytics) CountByStatus(ctx context.Context) ([]analytics.LabelCount, error) {
	ctx, cancel := r.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM letters
		GROUP BY status`)
	metrics.ObserveNetworkRequest("postgres", "analytics_count_by_status", "letters", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLabelCounts(rows)
}

func (r *Analytics) CountByPriority(ctx context.Context, since time.Time) ([]analytics.PriorityCount, error) {
	ctx, cancel := r.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := r.pool.Query(ctx, `
		SELECT priority, COUNT(*)
		FROM letters
		WHERE created_at >= $1
		GROUP BY priority`, since)
	metrics.ObserveNetworkRequest("postgres", "analytics_count_by_priority", "letters", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []analytics.PriorityCount
	for rows.Next() {
		var c analytics.PriorityCount
		if err := rows.Scan(&c.Priority, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (r *Analytics) CountByDay(ctx context.Context, since time.Time) ([]analytics.DayCount, error) {
	ctx, cancel := r.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := r.pool.Query(ctx, `
		SELECT to_char(created_at::date, 'YYYY-MM-DD'), COUNT(*)
		FROM letters
		WHERE created_at >= $1
		GROUP BY created_at::date
		ORDER BY created_at::date`, since)
	metrics.ObserveNetworkRequest("postgres", "analytics_count_by_day", "letters", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []analytics.DayCount
	for rows.Next() {
		var c analytics.DayCount
		if err := rows.Scan(&c.Date, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (r *Analytics) DepartmentLoad(ctx context.Context, since time.Time) ([]analytics.LabelCount, error) {
	// Отдел участвует в нагрузке столько раз, сколько встречается в маршрутах.
	return r.labelCounts(ctx, "analytics_department_load", `
		SELECT COALESCE(NULLIF(step->>'department', ''), 'Unknown'), COUNT(*)
		FROM letters,
		     jsonb_array_elements(COALESCE(approval_route, '[]'::jsonb)) AS step
		WHERE created_at >= $1
		GROUP BY 1`, since)
}

func (r *Analytics) Totals(ctx context.Context, since time.Time) (analytics.Totals, error) {
	ctx, cancel := r.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status IN ('approved', 'sent')),
		       COUNT(*) FILTER (WHERE status NOT IN ('approved', 'sent')),
		       COALESCE(AVG(sla_hours) FILTER (WHERE sla_hours > 0), 0)
		FROM letters
		WHERE created_at >= $1`, since)

	var t analytics.Totals
	err := row.Scan(&t.Total, &t.Processed, &t.InProgress, &t.AvgSLAHours)
	metrics.ObserveNetworkRequest("postgres", "analytics_totals", "letters", start, err)
	if err != nil {
		return analytics.Totals{}, err
	}
	return t, nil
}

func (r *Analytics) labelCounts(ctx context.Context, operation, query string, since time.Time) ([]analytics.LabelCount, error) {
	ctx, cancel := r.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := r.pool.Query(ctx, query, since)
	metrics.ObserveNetworkRequest("postgres", operation, "letters", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLabelCounts(rows)
}

func scanLabelCounts(rows pgx.Rows) ([]analytics.LabelCount, error) {
	var counts []analytics.LabelCount
	for rows.Next() {
		var c analytics.LabelCount
		if err := rows.Scan(&c.Label, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
