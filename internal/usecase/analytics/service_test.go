package analytics

import (
	"context"
	"testing"
	"time"
)

type stubStore struct {
	hours      []float64
	outcomes   []SLAOutcome
	byType     []LabelCount
	byStatus   []LabelCount
	byPriority []PriorityCount
	byDay      []DayCount
	byDept     []LabelCount
	totals     Totals

	since time.Time
}

func (s *stubStore) ProcessingHours(_ context.Context, since time.Time) ([]float64, error) {
	s.since = since
	return s.hours, nil
}

func (s *stubStore) SLAOutcomes(_ context.Context, _ time.Time) ([]SLAOutcome, error) {
	return s.outcomes, nil
}

func (s *stubStore) CountByType(_ context.Context, _ time.Time) ([]LabelCount, error) {
	return s.byType, nil
}

func (s *stubStore) CountByStatus(_ context.Context) ([]LabelCount, error) {
	return s.byStatus, nil
}

func (s *stubStore) CountByPriority(_ context.Context, _ time.Time) ([]PriorityCount, error) {
	return s.byPriority, nil
}

func (s *stubStore) CountByDay(_ context.Context, _ time.Time) ([]DayCount, error) {
	return s.byDay, nil
}

func (s *stubStore) DepartmentLoad(_ context.Context, _ time.Time) ([]LabelCount, error) {
	return s.byDept, nil
}

func (s *stubStore) Totals(_ context.Context, _ time.Time) (Totals, error) {
	return s.totals, nil
}

func newTestService(store *stubStore) *Service {
	svc := NewService(store)
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestProcessingTimeStats(t *testing.T) {
	store := &stubStore{hours: []float64{4, 1, 10}}
	svc := newTestService(store)

	report, err := svc.ProcessingTime(context.Background(), 30)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if report.TotalProcessed != 3 {
		t.Fatalf("обработанных %d, ожидалось 3", report.TotalProcessed)
	}
	if report.AverageHours != 5 {
		t.Fatalf("среднее %v, ожидалось 5", report.AverageHours)
	}
	if report.MedianHours != 4 {
		t.Fatalf("медиана %v, ожидалось 4", report.MedianHours)
	}
	if report.MinHours != 1 || report.MaxHours != 10 {
		t.Fatalf("минимум/максимум %v/%v, ожидалось 1/10", report.MinHours, report.MaxHours)
	}
	want := time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)
	if !store.since.Equal(want) {
		t.Fatalf("окно выборки %v, ожидалось %v", store.since, want)
	}
}

func TestProcessingTimeEmpty(t *testing.T) {
	svc := newTestService(&stubStore{})

	report, err := svc.ProcessingTime(context.Background(), 30)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if report != (ProcessingTime{}) {
		t.Fatalf("пустая выборка должна давать нулевой отчёт, получили %+v", report)
	}
}

func TestDefaultWindow(t *testing.T) {
	store := &stubStore{}
	svc := newTestService(store)

	if _, err := svc.ProcessingTime(context.Background(), 0); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	want := time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)
	if !store.since.Equal(want) {
		t.Fatalf("окно по умолчанию %v, ожидалось 30 дней (%v)", store.since, want)
	}
}

func TestSLACompliance(t *testing.T) {
	store := &stubStore{outcomes: []SLAOutcome{
		{Met: true, DeviationHours: 5},
		{Met: true, DeviationHours: 3},
		{Met: false, DeviationHours: -2},
	}}
	svc := newTestService(store)

	report, err := svc.SLACompliance(context.Background(), 30)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if report.TotalWithSLA != 3 || report.MetSLA != 2 || report.MissedSLA != 1 {
		t.Fatalf("счётчики не сходятся: %+v", report)
	}
	if report.ComplianceRate != 66.67 {
		t.Fatalf("доля соблюдения %v, ожидалось 66.67", report.ComplianceRate)
	}
	if report.AvgDeviationHours != 2 {
		t.Fatalf("среднее отклонение %v, ожидалось 2", report.AvgDeviationHours)
	}
}

func TestTypeDistributionSortedWithShares(t *testing.T) {
	store := &stubStore{byType: []LabelCount{
		{Label: "complaint", Count: 1},
		{Label: "request", Count: 3},
	}}
	svc := newTestService(store)

	shares, err := svc.TypeDistribution(context.Background(), 30)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(shares) != 2 {
		t.Fatalf("ожидали 2 типа, получили %d", len(shares))
	}
	if shares[0].Type != "request" {
		t.Fatalf("сортировка по убыванию нарушена: %+v", shares)
	}
	if shares[0].Percentage != 75 || shares[1].Percentage != 25 {
		t.Fatalf("доли %v/%v, ожидалось 75/25", shares[0].Percentage, shares[1].Percentage)
	}
}

func TestPriorityDistributionLabels(t *testing.T) {
	store := &stubStore{byPriority: []PriorityCount{
		{Priority: 3, Count: 1},
		{Priority: 1, Count: 1},
	}}
	svc := newTestService(store)

	shares, err := svc.PriorityDistribution(context.Background(), 30)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(shares) != 2 {
		t.Fatalf("ожидали 2 приоритета, получили %d", len(shares))
	}
	if shares[0].Priority != 1 || shares[0].PriorityLabel != "Высокий" {
		t.Fatalf("первый элемент должен быть высоким приоритетом: %+v", shares[0])
	}
	if shares[1].PriorityLabel != "Низкий" {
		t.Fatalf("метка приоритета 3: %q, ожидалось «Низкий»", shares[1].PriorityLabel)
	}
}

func TestDepartmentWorkloadSorted(t *testing.T) {
	store := &stubStore{byDept: []LabelCount{
		{Label: "Юридический отдел", Count: 2},
		{Label: "Отдел маркетинга", Count: 5},
	}}
	svc := newTestService(store)

	load, err := svc.DepartmentWorkload(context.Background(), 30)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if load[0].Department != "Отдел маркетинга" || load[0].Count != 5 {
		t.Fatalf("сортировка по нагрузке нарушена: %+v", load)
	}
}

func TestSummaryProcessingRate(t *testing.T) {
	store := &stubStore{totals: Totals{Total: 8, Processed: 2, InProgress: 6, AvgSLAHours: 23.456}}
	svc := newTestService(store)

	report, err := svc.Summary(context.Background(), 30)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if report.ProcessingRate != 25 {
		t.Fatalf("доля обработанных %v, ожидалось 25", report.ProcessingRate)
	}
	if report.AvgSLAHours != 23.46 {
		t.Fatalf("средний SLA %v, ожидалось 23.46", report.AvgSLAHours)
	}
}

func TestSummaryEmpty(t *testing.T) {
	svc := newTestService(&stubStore{})

	report, err := svc.Summary(context.Background(), 30)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if report.ProcessingRate != 0 {
		t.Fatalf("пустая система должна давать нулевую долю, получили %v", report.ProcessingRate)
	}
}
