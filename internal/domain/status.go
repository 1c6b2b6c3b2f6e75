package domain

import "strings"

// LetterStatus описывает этап жизненного цикла письма.
type LetterStatus string

const (
	// StatusNew — письмо во входящих, ещё не взято в работу.
	StatusNew LetterStatus = "new"
	// StatusAnalyzing зарезервирован для совместимости, движок его не выставляет.
	StatusAnalyzing LetterStatus = "analyzing"
	// StatusDraftReady — оператор работает с черновиком ответа.
	StatusDraftReady LetterStatus = "draft_ready"
	// StatusInApproval — письмо проходит маршрут согласования.
	StatusInApproval LetterStatus = "in_approval"
	// StatusApproved — ответ согласован всеми отделами.
	StatusApproved LetterStatus = "approved"
	// StatusSent — финальный ответ доставлен отправителю.
	StatusSent LetterStatus = "sent"
)

// Terminal сообщает, завершён ли жизненный цикл письма.
func (s LetterStatus) Terminal() bool {
	return s == StatusApproved || s == StatusSent
}

// LetterType — категория письма по результату классификации.
type LetterType string

const (
	TypeInfoRequest     LetterType = "info_request"
	TypeComplaint       LetterType = "complaint"
	TypeRegulatory      LetterType = "regulatory"
	TypePartnership     LetterType = "partnership"
	TypeApprovalRequest LetterType = "approval_request"
	TypeNotification    LetterType = "notification"
	TypeOther           LetterType = "other"
)

// FormalityLevel — требуемый тон ответа.
type FormalityLevel string

const (
	FormalityStrictOfficial FormalityLevel = "strict_official"
	FormalityCorporate      FormalityLevel = "corporate"
	FormalityNeutral        FormalityLevel = "neutral"
	FormalityClientOriented FormalityLevel = "client_oriented"
)

// Приоритет письма: 1 — высокий, 3 — низкий.
const (
	PriorityHigh   = 1
	PriorityMedium = 2
	PriorityLow    = 3
)

// UserRole определяет права пользователя в системе.
type UserRole string

const (
	RoleAdmin     UserRole = "admin"
	RoleOperator  UserRole = "operator"
	RoleLawyer    UserRole = "lawyer"
	RoleMarketing UserRole = "marketing"
)

// Approver сообщает, согласует ли роль письма своего отдела.
func (r UserRole) Approver() bool {
	return r == RoleLawyer || r == RoleMarketing
}

// Department возвращает отдел, письма которого согласует роль.
// Для ролей без отдела возвращается пустая строка.
func (r UserRole) Department() string {
	switch r {
	case RoleLawyer:
		return "Юридический отдел"
	case RoleMarketing:
		return "Отдел маркетинга"
	default:
		return ""
	}
}

// RoleForDepartment возвращает роль, согласующую письма отдела.
func RoleForDepartment(department string) (UserRole, bool) {
	for _, role := range []UserRole{RoleLawyer, RoleMarketing} {
		if strings.EqualFold(role.Department(), strings.TrimSpace(department)) {
			return role, true
		}
	}
	return "", false
}

// NotificationKind — тип уведомления.
type NotificationKind string

const (
	NotifyLetterAssigned NotificationKind = "letter_assigned"
	NotifyLetterApproved NotificationKind = "letter_approved"
	NotifyLetterRejected NotificationKind = "letter_rejected"
	NotifySLAWarning     NotificationKind = "sla_warning"
	NotifySLAExpired     NotificationKind = "sla_expired"
)
