// Пакет analytics считает сводную статистику по письмам для дашборда:
// время обработки, соблюдение SLA, распределения и дневную динамику.
package analytics

import (
	"context"
	"math"
	"sort"
	"time"
)

// DefaultWindowDays — окно выборки по умолчанию.
const DefaultWindowDays = 30

// SLAOutcome — итог одного письма с дедлайном: успели или нет и на сколько.
// Deviation положительный при запасе до дедлайна, отрицательный при просрочке.
type SLAOutcome struct {
	Met            bool
	DeviationHours float64
}

// LabelCount — количество писем для произвольной метки (тип, статус, отдел).
type LabelCount struct {
	Label string
	Count int
}

// PriorityCount — количество писем одного приоритета.
type PriorityCount struct {
	Priority int
	Count    int
}

// DayCount — письма, поступившие за календарный день.
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Totals — счётчики для общей сводки.
type Totals struct {
	Total       int
	Processed   int
	InProgress  int
	AvgSLAHours float64
}

// Store поставляет агрегаты по таблице писем.
type Store interface {
	// ProcessingHours — длительности обработки утверждённых и отправленных
	// писем в часах (updated_at - created_at, отрицательные отброшены).
	ProcessingHours(ctx context.Context, since time.Time) ([]float64, error)
	SLAOutcomes(ctx context.Context, since time.Time) ([]SLAOutcome, error)
	CountByType(ctx context.Context, since time.Time) ([]LabelCount, error)
	CountByStatus(ctx context.Context) ([]LabelCount, error)
	CountByPriority(ctx context.Context, since time.Time) ([]PriorityCount, error)
	CountByDay(ctx context.Context, since time.Time) ([]DayCount, error)
	// DepartmentLoad — сколько раз отдел встречается в маршрутах согласования.
	DepartmentLoad(ctx context.Context, since time.Time) ([]LabelCount, error)
	Totals(ctx context.Context, since time.Time) (Totals, error)
}

// Service отвечает на аналитические запросы API.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService создаёт сервис аналитики.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) since(days int) time.Time {
	if days <= 0 {
		days = DefaultWindowDays
	}
	return s.now().AddDate(0, 0, -days)
}

// ProcessingTime — метрики времени обработки писем.
type ProcessingTime struct {
	AverageHours   float64 `json:"average_response_time_hours"`
	MedianHours    float64 `json:"median_response_time_hours"`
	MinHours       float64 `json:"min_response_time_hours"`
	MaxHours       float64 `json:"max_response_time_hours"`
	TotalProcessed int     `json:"total_processed"`
}

func (s *Service) ProcessingTime(ctx context.Context, days int) (ProcessingTime, error) {
	hours, err := s.store.ProcessingHours(ctx, s.since(days))
	if err != nil {
		return ProcessingTime{}, err
	}
	if len(hours) == 0 {
		return ProcessingTime{}, nil
	}
	sort.Float64s(hours)
	var sum float64
	for _, h := range hours {
		sum += h
	}
	return ProcessingTime{
		AverageHours:   round2(sum / float64(len(hours))),
		MedianHours:    round2(hours[len(hours)/2]),
		MinHours:       round2(hours[0]),
		MaxHours:       round2(hours[len(hours)-1]),
		TotalProcessed: len(hours),
	}, nil
}

// SLACompliance — сводка соблюдения дедлайнов.
type SLACompliance struct {
	TotalWithSLA      int     `json:"total_with_sla"`
	MetSLA            int     `json:"met_sla"`
	MissedSLA         int     `json:"missed_sla"`
	ComplianceRate    float64 `json:"compliance_rate"`
	AvgDeviationHours float64 `json:"average_sla_deviation_hours"`
}

func (s *Service) SLACompliance(ctx context.Context, days int) (SLACompliance, error) {
	outcomes, err := s.store.SLAOutcomes(ctx, s.since(days))
	if err != nil {
		return SLACompliance{}, err
	}
	if len(outcomes) == 0 {
		return SLACompliance{}, nil
	}
	var met int
	var deviationSum float64
	for _, o := range outcomes {
		if o.Met {
			met++
		}
		deviationSum += o.DeviationHours
	}
	total := len(outcomes)
	return SLACompliance{
		TotalWithSLA:      total,
		MetSLA:            met,
		MissedSLA:         total - met,
		ComplianceRate:    round2(float64(met) / float64(total) * 100),
		AvgDeviationHours: round2(deviationSum / float64(total)),
	}, nil
}

// TypeShare — доля писем одного типа.
type TypeShare struct {
	Type       string  `json:"type"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

func (s *Service) TypeDistribution(ctx context.Context, days int) ([]TypeShare, error) {
	counts, err := s.store.CountByType(ctx, s.since(days))
	if err != nil {
		return nil, err
	}
	total := sumCounts(counts)
	shares := make([]TypeShare, 0, len(counts))
	for _, c := range counts {
		shares = append(shares, TypeShare{
			Type:       c.Label,
			Count:      c.Count,
			Percentage: percentage(c.Count, total),
		})
	}
	sort.Slice(shares, func(i, j int) bool { return shares[i].Count > shares[j].Count })
	return shares, nil
}

// StatusShare — доля писем в одном статусе.
type StatusShare struct {
	Status     string  `json:"status"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

func (s *Service) StatusDistribution(ctx context.Context) ([]StatusShare, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	total := sumCounts(counts)
	shares := make([]StatusShare, 0, len(counts))
	for _, c := range counts {
		shares = append(shares, StatusShare{
			Status:     c.Label,
			Count:      c.Count,
			Percentage: percentage(c.Count, total),
		})
	}
	return shares, nil
}

// PriorityShare — доля писем одного приоритета с человекочитаемой меткой.
type PriorityShare struct {
	Priority      int     `json:"priority"`
	PriorityLabel string  `json:"priority_label"`
	Count         int     `json:"count"`
	Percentage    float64 `json:"percentage"`
}

func (s *Service) PriorityDistribution(ctx context.Context, days int) ([]PriorityShare, error) {
	counts, err := s.store.CountByPriority(ctx, s.since(days))
	if err != nil {
		return nil, err
	}
	var total int
	for _, c := range counts {
		total += c.Count
	}
	shares := make([]PriorityShare, 0, len(counts))
	for _, c := range counts {
		shares = append(shares, PriorityShare{
			Priority:      c.Priority,
			PriorityLabel: priorityLabel(c.Priority),
			Count:         c.Count,
			Percentage:    percentage(c.Count, total),
		})
	}
	sort.Slice(shares, func(i, j int) bool { return shares[i].Priority < shares[j].Priority })
	return shares, nil
}

func (s *Service) DailyStats(ctx context.Context, days int) ([]DayCount, error) {
	return s.store.CountByDay(ctx, s.since(days))
}

// DepartmentCount — нагрузка одного отдела в маршрутах согласования.
type DepartmentCount struct {
	Department string `json:"department"`
	Count      int    `json:"count"`
}

func (s *Service) DepartmentWorkload(ctx context.Context, days int) ([]DepartmentCount, error) {
	counts, err := s.store.DepartmentLoad(ctx, s.since(days))
	if err != nil {
		return nil, err
	}
	out := make([]DepartmentCount, 0, len(counts))
	for _, c := range counts {
		out = append(out, DepartmentCount{Department: c.Label, Count: c.Count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out, nil
}

// Summary — общая сводка по системе.
type Summary struct {
	TotalLetters   int     `json:"total_letters"`
	Processed      int     `json:"processed_letters"`
	InProgress     int     `json:"in_progress"`
	AvgSLAHours    float64 `json:"average_sla_hours"`
	ProcessingRate float64 `json:"processing_rate"`
}

func (s *Service) Summary(ctx context.Context, days int) (Summary, error) {
	totals, err := s.store.Totals(ctx, s.since(days))
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		TotalLetters:   totals.Total,
		Processed:      totals.Processed,
		InProgress:     totals.InProgress,
		AvgSLAHours:    round2(totals.AvgSLAHours),
		ProcessingRate: percentage(totals.Processed, totals.Total),
	}, nil
}

func priorityLabel(priority int) string {
	switch priority {
	case 1:
		return "Высокий"
	case 2:
		return "Средний"
	case 3:
		return "Низкий"
	default:
		return "Неизвестно"
	}
}

func sumCounts(counts []LabelCount) int {
	var total int
	for _, c := range counts {
		total += c.Count
	}
	return total
}

func percentage(count, total int) float64 {
	if total <= 0 {
		return 0
	}
	return round2(float64(count) / float64(total) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
