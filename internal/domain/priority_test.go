package domain

import (
	"testing"
	"time"
)

func TestCalcPriorityOverdue(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	if got := CalcPriority(&past, 24, PriorityLow, now); got != PriorityHigh {
		t.Fatalf("просроченное письмо должно получить приоритет 1, получили %d", got)
	}
	exact := now
	if got := CalcPriority(&exact, 24, PriorityLow, now); got != PriorityHigh {
		t.Fatalf("дедлайн в текущий момент должен давать приоритет 1, получили %d", got)
	}
}

func TestCalcPriorityImminent(t *testing.T) {
	now := time.Now()
	// До дедлайна 3 часа — высокий вне зависимости от размера SLA.
	soon := now.Add(3 * time.Hour)
	if got := CalcPriority(&soon, 1000, PriorityLow, now); got != PriorityHigh {
		t.Fatalf("ожидали приоритет 1 при 3 часах до дедлайна, получили %d", got)
	}
}

func TestCalcPriorityRatio(t *testing.T) {
	now := time.Now()

	// 15% от SLA в 100 часов.
	d := now.Add(15 * time.Hour)
	if got := CalcPriority(&d, 100, PriorityLow, now); got != PriorityHigh {
		t.Fatalf("15%% бюджета: ожидали 1, получили %d", got)
	}

	// 40% от SLA.
	d = now.Add(40 * time.Hour)
	if got := CalcPriority(&d, 100, PriorityLow, now); got != PriorityMedium {
		t.Fatalf("40%% бюджета: ожидали 2, получили %d", got)
	}

	// 80% от SLA.
	d = now.Add(80 * time.Hour)
	if got := CalcPriority(&d, 100, PriorityHigh, now); got != PriorityLow {
		t.Fatalf("80%% бюджета: ожидали 3, получили %d", got)
	}
}

func TestCalcPriorityBadSLA(t *testing.T) {
	now := time.Now()
	d := now.Add(6 * time.Hour)
	// Нулевой и отрицательный SLA трактуются как 24 часа: 6/24 = 25% -> средний.
	if got := CalcPriority(&d, 0, PriorityLow, now); got != PriorityMedium {
		t.Fatalf("нулевой SLA: ожидали 2, получили %d", got)
	}
	if got := CalcPriority(&d, -5, PriorityLow, now); got != PriorityMedium {
		t.Fatalf("отрицательный SLA: ожидали 2, получили %d", got)
	}
}

func TestCalcPriorityNoDeadline(t *testing.T) {
	now := time.Now()
	if got := CalcPriority(nil, 24, PriorityLow, now); got != PriorityLow {
		t.Fatalf("без дедлайна должен сохраняться прежний приоритет, получили %d", got)
	}
	if got := CalcPriority(nil, 24, 0, now); got != PriorityMedium {
		t.Fatalf("без дедлайна и прежнего приоритета ожидали 2, получили %d", got)
	}
}
