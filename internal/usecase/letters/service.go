package letters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"letter-assist/internal/domain"
	"letter-assist/internal/infra/metrics"
)

// Notifier рассылает уведомления о событиях маршрута согласования.
// Доставка — забота реализации, движок её не ждёт и не проверяет.
type Notifier interface {
	LetterAssigned(ctx context.Context, letter domain.Letter, department string)
	LetterApproved(ctx context.Context, letter domain.Letter)
	LetterRejected(ctx context.Context, letter domain.Letter, reason string)
}

// Service реализует жизненный цикл письма: создание, анализ, согласование,
// резервирование и отправку финального ответа.
type Service struct {
	letters    domain.LetterRepo
	classifier domain.Classifier
	dispatcher domain.Dispatcher
	notifier   Notifier
	log        zerolog.Logger

	analysisTimeout time.Duration
	now             func() time.Time
}

// NewService создаёт сервис писем.
func NewService(letters domain.LetterRepo, classifier domain.Classifier, dispatcher domain.Dispatcher, notifier Notifier, logger zerolog.Logger, analysisTimeout time.Duration) *Service {
	if analysisTimeout <= 0 {
		analysisTimeout = 120 * time.Second
	}
	return &Service{
		letters:         letters,
		classifier:      classifier,
		dispatcher:      dispatcher,
		notifier:        notifier,
		log:             logger,
		analysisTimeout: analysisTimeout,
		now:             time.Now,
	}
}

// CreateParams — поля нового письма.
type CreateParams struct {
	Subject     string
	Body        string
	SenderEmail string
	SenderName  string
	// Priority по умолчанию средний; приём почты ставит низкий.
	Priority int
}

// Create регистрирует новое письмо во входящих.
func (s *Service) Create(ctx context.Context, params CreateParams) (domain.Letter, error) {
	priority := params.Priority
	if priority < domain.PriorityHigh || priority > domain.PriorityLow {
		priority = domain.PriorityMedium
	}
	letter := domain.Letter{
		Subject:     strings.TrimSpace(params.Subject),
		Body:        params.Body,
		SenderEmail: strings.TrimSpace(params.SenderEmail),
		SenderName:  strings.TrimSpace(params.SenderName),
		Status:      domain.StatusNew,
		Priority:    priority,
	}
	created, err := s.letters.Create(ctx, letter)
	if err != nil {
		return domain.Letter{}, fmt.Errorf("создание письма: %w", err)
	}
	return created, nil
}

// Get возвращает письмо по идентификатору.
func (s *Service) Get(ctx context.Context, id int64) (domain.Letter, error) {
	return s.letters.Get(ctx, id)
}

// List возвращает письма по фильтру.
func (s *Service) List(ctx context.Context, filter domain.LetterFilter) ([]domain.Letter, error) {
	return s.letters.List(ctx, filter)
}

// Analyze выполняет полный анализ письма: классификацию, расчёт SLA,
// дедлайна и приоритета, фиксацию маршрута согласования и генерацию
// четырёх вариантов ответа. Статус письма не меняется: после анализа оно
// остаётся во входящих, решение принимает оператор.
//
// При сбое коллаборатора письмо возвращается в безопасное состояние
// входящих, уже заполненные поля сохраняются, а наружу уходит
// ErrAnalysisFailed: вызывающий обязан считать письмо непроанализированным.
func (s *Service) Analyze(ctx context.Context, letterID int64) (domain.Letter, error) {
	letter, err := s.letters.Get(ctx, letterID)
	if err != nil {
		return domain.Letter{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.analysisTimeout)
	defer cancel()

	start := s.now()

	analysis, err := s.classifier.Analyze(ctx, letter.Subject, letter.Body)
	if err != nil {
		return s.failAnalysis(ctx, letter, fmt.Errorf("классификация: %w", err))
	}

	letter.Type = analysis.Classification.Type
	if letter.Type == "" {
		letter.Type = domain.TypeOther
	}
	letter.Formality = analysis.Formality
	if letter.Formality == "" {
		letter.Formality = domain.FormalityNeutral
	}

	// SLA от модели не заслуживает доверия: приводим к положительному числу.
	letter.SLAHours = analysis.SLAHours
	if letter.SLAHours <= 0 {
		letter.SLAHours = domain.DefaultSLAHours
	}
	now := s.now()
	deadline := now.Add(time.Duration(letter.SLAHours) * time.Hour)
	letter.Deadline = &deadline

	// Приоритет считаем сами, значение классификатора игнорируем.
	letter.Priority = domain.CalcPriority(letter.Deadline, letter.SLAHours, letter.Priority, now)

	letter.RequiredDepartments = analysis.RequiredDepartments
	letter.Entities = analysis.Entities
	letter.Risks = analysis.Risks
	letter.ApprovalRoute = analysis.ApprovalRoute

	drafts, err := s.classifier.GenerateResponses(ctx, letter.Subject, letter.Body, analysis)
	if err != nil {
		return s.failAnalysis(ctx, letter, fmt.Errorf("генерация ответов: %w", err))
	}
	letter.Drafts = &drafts

	updated, err := s.letters.Update(ctx, letter)
	if err != nil {
		return domain.Letter{}, fmt.Errorf("сохранение анализа: %w", err)
	}

	metrics.AnalysisSeconds.Observe(s.now().Sub(start).Seconds())
	return updated, nil
}

// failAnalysis возвращает письмо во входящие, сохранив то, что успело
// заполниться, и поднимает ошибку анализа наверх.
func (s *Service) failAnalysis(ctx context.Context, letter domain.Letter, cause error) (domain.Letter, error) {
	metrics.AnalysisFailures.Inc()
	letter.Status = domain.StatusNew
	if _, err := s.letters.Update(context.WithoutCancel(ctx), letter); err != nil {
		s.log.Error().Err(err).Int64("letter", letter.ID).Msg("letters: не удалось вернуть письмо во входящие")
	}
	return domain.Letter{}, fmt.Errorf("%w: %s", domain.ErrAnalysisFailed, cause)
}

// UpdateParams — частичное обновление письма оператором.
type UpdateParams struct {
	Status           *domain.LetterStatus
	Priority         *int
	SLAHours         *int
	SelectedResponse *string
}

// Update применяет правки оператора.
func (s *Service) Update(ctx context.Context, letterID int64, params UpdateParams) (domain.Letter, error) {
	letter, err := s.letters.Get(ctx, letterID)
	if err != nil {
		return domain.Letter{}, err
	}
	if params.Status != nil {
		letter.Status = *params.Status
	}
	if params.Priority != nil {
		letter.Priority = *params.Priority
	}
	if params.SLAHours != nil {
		letter.SLAHours = *params.SLAHours
	}
	if params.SelectedResponse != nil {
		letter.SelectedResponse = *params.SelectedResponse
	}
	return s.letters.Update(ctx, letter)
}

// StartApproval запускает маршрут согласования выбранного ответа.
// Пустой маршрут завершает согласование сразу: письмо утверждается и
// финальный ответ уходит отправителю.
func (s *Service) StartApproval(ctx context.Context, letterID int64) (domain.Letter, error) {
	letter, err := s.letters.Get(ctx, letterID)
	if err != nil {
		return domain.Letter{}, err
	}
	if strings.TrimSpace(letter.SelectedResponse) == "" {
		return domain.Letter{}, fmt.Errorf("%w: не выбран вариант ответа", domain.ErrPreconditionFailed)
	}

	if len(letter.ApprovalRoute) == 0 {
		return s.finalize(ctx, letter)
	}

	letter.Status = domain.StatusInApproval
	letter.CurrentApprover = domain.FirstDepartment(letter.ApprovalRoute)
	updated, err := s.letters.Update(ctx, letter)
	if err != nil {
		return domain.Letter{}, fmt.Errorf("запуск согласования: %w", err)
	}
	if s.notifier != nil {
		s.notifier.LetterAssigned(ctx, updated, updated.CurrentApprover)
	}
	return updated, nil
}

// AddApprovalComment фиксирует решение согласующего отдела.
// Отклонение возвращает письмо на доработку, маршрут и история решений
// сохраняются для повторной подачи. Одобрение передвигает указатель на
// следующий отдел либо завершает маршрут.
func (s *Service) AddApprovalComment(ctx context.Context, letterID int64, department, comment string, approved bool) (domain.Letter, error) {
	letter, err := s.letters.Get(ctx, letterID)
	if err != nil {
		return domain.Letter{}, err
	}
	if letter.Status != domain.StatusInApproval {
		return domain.Letter{}, fmt.Errorf("%w: письмо не на согласовании", domain.ErrPreconditionFailed)
	}

	record := domain.ApprovalComment{
		Department: department,
		Comment:    comment,
		Approved:   approved,
		Timestamp:  s.now(),
	}
	// Всегда новый срез: история решений только дописывается.
	letter.ApprovalComments = append(append([]domain.ApprovalComment(nil), letter.ApprovalComments...), record)

	if !approved {
		letter.Status = domain.StatusDraftReady
		letter.CurrentApprover = ""
		letter.ReservedBy = nil
		letter.ReservedAt = nil
		updated, err := s.letters.Update(ctx, letter)
		if err != nil {
			return domain.Letter{}, fmt.Errorf("отклонение: %w", err)
		}
		if s.notifier != nil {
			s.notifier.LetterRejected(ctx, updated, comment)
		}
		return updated, nil
	}

	next, done := domain.NextDepartment(letter.ApprovalRoute, department)
	if done {
		return s.finalize(ctx, letter)
	}

	letter.CurrentApprover = next
	// Новый отдел резервирует письмо заново.
	letter.ReservedBy = nil
	letter.ReservedAt = nil
	updated, err := s.letters.Update(ctx, letter)
	if err != nil {
		return domain.Letter{}, fmt.Errorf("переход к следующему отделу: %w", err)
	}
	if s.notifier != nil {
		s.notifier.LetterAssigned(ctx, updated, next)
	}
	return updated, nil
}

// finalize утверждает письмо и отправляет финальный ответ.
// Неудача отправки логируется и не откатывает согласование: утверждение —
// надёжный факт, ответ можно переотправить вручную.
func (s *Service) finalize(ctx context.Context, letter domain.Letter) (domain.Letter, error) {
	letter.Status = domain.StatusApproved
	letter.FinalResponse = letter.SelectedResponse
	letter.CurrentApprover = ""
	letter.ReservedBy = nil
	letter.ReservedAt = nil

	updated, err := s.letters.Update(ctx, letter)
	if err != nil {
		return domain.Letter{}, fmt.Errorf("утверждение письма: %w", err)
	}
	if s.notifier != nil {
		s.notifier.LetterApproved(ctx, updated)
	}

	if updated.SenderEmail == "" || updated.FinalResponse == "" {
		return updated, nil
	}

	subject := "Re: " + updated.Subject
	if err := s.dispatcher.Send(ctx, updated.SenderEmail, subject, updated.FinalResponse); err != nil {
		metrics.DispatchErrors.Inc()
		s.log.Error().Err(err).Int64("letter", updated.ID).Str("to", updated.SenderEmail).
			Msg("letters: финальный ответ не отправлен")
		return updated, nil
	}

	updated.Status = domain.StatusSent
	sent, err := s.letters.Update(ctx, updated)
	if err != nil {
		s.log.Error().Err(err).Int64("letter", updated.ID).Msg("letters: не удалось отметить отправку")
		return updated, nil
	}
	return sent, nil
}

// Reserve закрепляет письмо за согласующим. Ровно один из конкурирующих
// вызовов выигрывает, остальные получают ErrConflict; повторный вызов
// владельца идемпотентен.
func (s *Service) Reserve(ctx context.Context, letterID int64, user domain.User) (domain.Letter, error) {
	letter, err := s.letters.Get(ctx, letterID)
	if err != nil {
		return domain.Letter{}, err
	}
	if letter.Status != domain.StatusInApproval {
		return domain.Letter{}, fmt.Errorf("%w: письмо не на согласовании", domain.ErrPreconditionFailed)
	}
	if dept := user.Role.Department(); dept != "" && !strings.EqualFold(dept, letter.CurrentApprover) {
		return domain.Letter{}, fmt.Errorf("%w: письмо ожидает отдел %q", domain.ErrConflict, letter.CurrentApprover)
	}
	if letter.ReservedBy != nil && *letter.ReservedBy != user.ID {
		return domain.Letter{}, domain.ErrConflict
	}

	reserved, err := s.letters.Reserve(ctx, letterID, user.ID, s.now())
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return domain.Letter{}, err
		}
		return domain.Letter{}, fmt.Errorf("резервирование: %w", err)
	}
	return reserved, nil
}
