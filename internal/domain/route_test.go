package domain

import "testing"

func testRoute() []RouteStep {
	return []RouteStep{
		{Department: "Юридический отдел", Reason: "регуляторный запрос"},
		{Department: "Отдел маркетинга", Reason: "упомянуты тарифы"},
	}
}

func TestNextDepartmentAdvances(t *testing.T) {
	next, done := NextDepartment(testRoute(), "юридический отдел")
	if done {
		t.Fatal("после первого шага маршрут не должен завершаться")
	}
	if next != "Отдел маркетинга" {
		t.Fatalf("ожидали переход к отделу маркетинга, получили %q", next)
	}
}

func TestNextDepartmentLastStep(t *testing.T) {
	next, done := NextDepartment(testRoute(), "ОТДЕЛ МАРКЕТИНГА")
	if !done {
		t.Fatal("последний шаг должен завершать маршрут")
	}
	if next != "" {
		t.Fatalf("после завершения следующий отдел должен быть пустым, получили %q", next)
	}
}

func TestNextDepartmentUnknown(t *testing.T) {
	// Отдел вне маршрута трактуется как завершение, а не ошибка.
	if _, done := NextDepartment(testRoute(), "Бухгалтерия"); !done {
		t.Fatal("неизвестный отдел должен завершать маршрут")
	}
	if _, done := NextDepartment(nil, "Юридический отдел"); !done {
		t.Fatal("пустой маршрут должен завершаться сразу")
	}
}

func TestFirstDepartment(t *testing.T) {
	if got := FirstDepartment(testRoute()); got != "Юридический отдел" {
		t.Fatalf("ожидали первый отдел маршрута, получили %q", got)
	}
	if got := FirstDepartment(nil); got != "" {
		t.Fatalf("пустой маршрут: ожидали пустую строку, получили %q", got)
	}
}

func TestRouteContains(t *testing.T) {
	if !RouteContains(testRoute(), "отдел маркетинга") {
		t.Fatal("поиск отдела должен игнорировать регистр")
	}
	if RouteContains(testRoute(), "") {
		t.Fatal("пустое название отдела не должно находиться")
	}
}
