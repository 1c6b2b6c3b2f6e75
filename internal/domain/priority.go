package domain

import "time"

// DefaultSLAHours — запасной бюджет ответа, когда классификатор
// не вернул корректное значение SLA.
const DefaultSLAHours = 24

// CalcPriority рассчитывает приоритет 1..3 по дедлайну и бюджету SLA.
//
// Правила:
//   - дедлайн не задан — остаётся прежний приоритет (или средний);
//   - просрочено или осталось <= 4 ч — высокий;
//   - осталось < 20% SLA — высокий, < 50% — средний, иначе низкий.
//
// Функция детерминирована и без побочных эффектов: её результат обязан
// совпадать у анализа и у фонового пересчёта.
func CalcPriority(deadline *time.Time, slaHours, prev int, now time.Time) int {
	if deadline == nil {
		if prev >= PriorityHigh && prev <= PriorityLow {
			return prev
		}
		return PriorityMedium
	}

	hoursLeft := deadline.Sub(now).Hours()
	if hoursLeft <= 0 {
		return PriorityHigh
	}
	if hoursLeft <= 4 {
		return PriorityHigh
	}

	sla := slaHours
	if sla <= 0 {
		sla = DefaultSLAHours
	}

	ratio := hoursLeft / float64(sla)
	switch {
	case ratio < 0.2:
		return PriorityHigh
	case ratio < 0.5:
		return PriorityMedium
	default:
		return PriorityLow
	}
}
