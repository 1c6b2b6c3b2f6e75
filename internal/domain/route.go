package domain

import "strings"

// NextDepartment находит шаг маршрута по названию отдела и возвращает
// следующий отдел. done=true означает, что дальнейших шагов нет и
// согласование завершено.
//
// Названия отделов — свободный текст классификатора, поэтому сравнение
// без учёта регистра. Отдел, отсутствующий в маршруте, трактуется как
// «дальнейших шагов нет»: падение здесь заклинило бы письмо при дрейфе
// формулировок модели.
func NextDepartment(route []RouteStep, department string) (next string, done bool) {
	idx := routeIndex(route, department)
	if idx < 0 || idx+1 >= len(route) {
		return "", true
	}
	return route[idx+1].Department, false
}

// FirstDepartment возвращает отдел первого шага маршрута.
func FirstDepartment(route []RouteStep) string {
	if len(route) == 0 {
		return ""
	}
	return route[0].Department
}

// RouteContains сообщает, участвует ли отдел в маршруте.
func RouteContains(route []RouteStep, department string) bool {
	return routeIndex(route, department) >= 0
}

func routeIndex(route []RouteStep, department string) int {
	needle := strings.ToLower(strings.TrimSpace(department))
	if needle == "" {
		return -1
	}
	for i, step := range route {
		if strings.ToLower(strings.TrimSpace(step.Department)) == needle {
			return i
		}
	}
	return -1
}
