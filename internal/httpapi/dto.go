package httpapi

import (
	"time"

	"letter-assist/internal/domain"
)

// letterResponse — представление письма в API.
type letterResponse struct {
	ID          int64  `json:"id"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	SenderEmail string `json:"sender_email"`
	SenderName  string `json:"sender_name,omitempty"`

	Type                domain.LetterType         `json:"letter_type,omitempty"`
	Formality           domain.FormalityLevel     `json:"formality_level,omitempty"`
	Entities            *domain.ExtractedEntities `json:"extracted_entities,omitempty"`
	Risks               []domain.Risk             `json:"risks,omitempty"`
	RequiredDepartments []string                  `json:"required_departments,omitempty"`

	Status   domain.LetterStatus `json:"status"`
	Priority int                 `json:"priority"`
	SLAHours int                 `json:"sla_hours"`
	Deadline *time.Time          `json:"deadline,omitempty"`

	Drafts           *domain.DraftResponses `json:"draft_responses,omitempty"`
	SelectedResponse string                 `json:"selected_response,omitempty"`
	FinalResponse    string                 `json:"final_response,omitempty"`

	ApprovalRoute    []domain.RouteStep       `json:"approval_route,omitempty"`
	CurrentApprover  string                   `json:"current_approver,omitempty"`
	ApprovalComments []domain.ApprovalComment `json:"approval_comments,omitempty"`

	ReservedBy *int64     `json:"reserved_by,omitempty"`
	ReservedAt *time.Time `json:"reserved_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toLetterResponse(l domain.Letter) letterResponse {
	return letterResponse{
		ID:                  l.ID,
		Subject:             l.Subject,
		Body:                l.Body,
		SenderEmail:         l.SenderEmail,
		SenderName:          l.SenderName,
		Type:                l.Type,
		Formality:           l.Formality,
		Entities:            l.Entities,
		Risks:               l.Risks,
		RequiredDepartments: l.RequiredDepartments,
		Status:              l.Status,
		Priority:            l.Priority,
		SLAHours:            l.SLAHours,
		Deadline:            l.Deadline,
		Drafts:              l.Drafts,
		SelectedResponse:    l.SelectedResponse,
		FinalResponse:       l.FinalResponse,
		ApprovalRoute:       l.ApprovalRoute,
		CurrentApprover:     l.CurrentApprover,
		ApprovalComments:    l.ApprovalComments,
		ReservedBy:          l.ReservedBy,
		ReservedAt:          l.ReservedAt,
		CreatedAt:           l.CreatedAt,
		UpdatedAt:           l.UpdatedAt,
	}
}

func toLetterResponses(list []domain.Letter) []letterResponse {
	out := make([]letterResponse, 0, len(list))
	for _, l := range list {
		out = append(out, toLetterResponse(l))
	}
	return out
}

// userResponse — представление пользователя без хэша пароля.
type userResponse struct {
	ID             int64           `json:"id"`
	Username       string          `json:"username"`
	Email          string          `json:"email"`
	FirstName      string          `json:"first_name"`
	LastName       string          `json:"last_name"`
	MiddleName     string          `json:"middle_name,omitempty"`
	Role           domain.UserRole `json:"role"`
	IsActive       bool            `json:"is_active"`
	TelegramChatID int64           `json:"telegram_chat_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		MiddleName:     u.MiddleName,
		Role:           u.Role,
		IsActive:       u.IsActive,
		TelegramChatID: u.TelegramChatID,
		CreatedAt:      u.CreatedAt,
	}
}

type notificationResponse struct {
	ID        int64                   `json:"id"`
	UserID    int64                   `json:"user_id"`
	LetterID  *int64                  `json:"letter_id,omitempty"`
	Kind      domain.NotificationKind `json:"kind"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	IsRead    bool                    `json:"is_read"`
	CreatedAt time.Time               `json:"created_at"`
}

func toNotificationResponse(n domain.Notification) notificationResponse {
	return notificationResponse{
		ID:        n.ID,
		UserID:    n.UserID,
		LetterID:  n.LetterID,
		Kind:      n.Kind,
		Title:     n.Title,
		Message:   n.Message,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}
