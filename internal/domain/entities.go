package domain

import "time"

// Letter — единица входящей корреспонденции, проходящая весь цикл обработки.
type Letter struct {
	ID int64

	// Содержимое неизменно после приёма.
	Subject     string
	Body        string
	SenderEmail string
	SenderName  string

	// Классификация заполняется анализом один раз.
	Type                LetterType
	Formality           FormalityLevel
	Entities            *ExtractedEntities
	Risks               []Risk
	RequiredDepartments []string

	Status   LetterStatus
	Priority int
	SLAHours int
	Deadline *time.Time

	// Варианты ответа и выбор оператора.
	Drafts           *DraftResponses
	SelectedResponse string
	FinalResponse    string

	// Маршрут согласования фиксируется анализом и далее не меняется,
	// прогресс отслеживается через CurrentApprover и список комментариев.
	ApprovalRoute    []RouteStep
	CurrentApprover  string
	ApprovalComments []ApprovalComment

	// Резервирование письма одним согласующим на фазе IN_APPROVAL.
	ReservedBy *int64
	ReservedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Reserved сообщает, закреплено ли письмо за согласующим.
func (l Letter) Reserved() bool {
	return l.ReservedBy != nil
}

// RouteStep — один шаг маршрута согласования.
type RouteStep struct {
	Department  string   `json:"department"`
	Reason      string   `json:"reason"`
	CheckPoints []string `json:"check_points"`
}

// ApprovalComment — запись решения согласующего отдела.
type ApprovalComment struct {
	Department string    `json:"department"`
	Comment    string    `json:"comment"`
	Approved   bool      `json:"approved"`
	Timestamp  time.Time `json:"timestamp"`
}

// ExtractedEntities — извлечённые из письма сущности.
type ExtractedEntities struct {
	RequestSummary     string   `json:"request_summary"`
	SenderDetails      string   `json:"sender_details"`
	LegalReferences    []string `json:"legal_references"`
	MentionedDocuments []string `json:"mentioned_documents"`
	ContactInfo        string   `json:"contact_info"`
}

// Risk — выявленный риск с рекомендацией.
type Risk struct {
	Level          string `json:"level"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
}

// Classification — тип письма с пояснением.
type Classification struct {
	Type        LetterType `json:"type"`
	Description string     `json:"description"`
}

// Analysis — структурированный результат анализа письма классификатором.
type Analysis struct {
	Classification      Classification     `json:"classification"`
	SLAHours            int                `json:"sla_hours"`
	Priority            int                `json:"priority"`
	Formality           FormalityLevel     `json:"formality_level"`
	RequiredDepartments []string           `json:"required_departments"`
	Entities            *ExtractedEntities `json:"extracted_entities"`
	Risks               []Risk             `json:"risks"`
	ApprovalRoute       []RouteStep        `json:"approval_route"`
	ControversialPoints []string           `json:"controversial_points"`

	// Fallback выставляется, если ответ модели не удалось разобрать
	// и использованы безопасные значения по умолчанию.
	Fallback bool `json:"-"`
}

// DraftResponses — четыре стилевых варианта ответа.
type DraftResponses struct {
	StrictOfficial string `json:"strict_official"`
	Corporate      string `json:"corporate"`
	ClientOriented string `json:"client_oriented"`
	BriefInfo      string `json:"brief_info"`
}

// IncomingMail — нормализованное входящее сообщение почтового ящика.
type IncomingMail struct {
	MessageID   string
	Subject     string
	SenderName  string
	SenderEmail string
	Body        string
}

// User — сотрудник, работающий с письмами.
type User struct {
	ID             int64
	Username       string
	Email          string
	PasswordHash   string
	FirstName      string
	LastName       string
	MiddleName     string
	Role           UserRole
	IsActive       bool
	TelegramChatID int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Notification — внутрисистемное уведомление пользователя.
type Notification struct {
	ID        int64
	UserID    int64
	LetterID  *int64
	Kind      NotificationKind
	Title     string
	Message   string
	IsRead    bool
	CreatedAt time.Time
}

// AnalysisJob — задача на анализ письма в очереди.
type AnalysisJob struct {
	ID       string `json:"id"`
	LetterID int64  `json:"letter_id"`
}
