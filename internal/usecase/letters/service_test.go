package letters

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"letter-assist/internal/domain"
)

type stubLetterRepo struct {
	mu      sync.Mutex
	letters map[int64]domain.Letter
	nextID  int64
	updates int
}

func newStubLetterRepo(initial ...domain.Letter) *stubLetterRepo {
	repo := &stubLetterRepo{letters: make(map[int64]domain.Letter), nextID: 1}
	for _, l := range initial {
		if l.ID == 0 {
			l.ID = repo.nextID
		}
		if l.ID >= repo.nextID {
			repo.nextID = l.ID + 1
		}
		repo.letters[l.ID] = l
	}
	return repo
}

func (r *stubLetterRepo) Create(_ context.Context, letter domain.Letter) (domain.Letter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	letter.ID = r.nextID
	r.nextID++
	letter.CreatedAt = time.Now()
	r.letters[letter.ID] = letter
	return letter, nil
}

func (r *stubLetterRepo) Get(_ context.Context, id int64) (domain.Letter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	letter, ok := r.letters[id]
	if !ok {
		return domain.Letter{}, domain.ErrNotFound
	}
	return letter, nil
}

func (r *stubLetterRepo) Update(_ context.Context, letter domain.Letter) (domain.Letter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.letters[letter.ID]; !ok {
		return domain.Letter{}, domain.ErrNotFound
	}
	letter.UpdatedAt = time.Now()
	r.letters[letter.ID] = letter
	r.updates++
	return letter, nil
}

func (r *stubLetterRepo) List(_ context.Context, _ domain.LetterFilter) ([]domain.Letter, error) {
	return nil, nil
}

func (r *stubLetterRepo) ExistsBySubjectSender(_ context.Context, _, _ string) (bool, error) {
	return false, nil
}

func (r *stubLetterRepo) ListForPrioritySweep(_ context.Context) ([]domain.Letter, error) {
	return nil, nil
}

func (r *stubLetterRepo) ListActiveWithSLA(_ context.Context) ([]domain.Letter, error) {
	return nil, nil
}

func (r *stubLetterRepo) UpdatePriority(_ context.Context, id int64, priority int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	letter, ok := r.letters[id]
	if !ok {
		return domain.ErrNotFound
	}
	letter.Priority = priority
	r.letters[id] = letter
	return nil
}

func (r *stubLetterRepo) Reserve(_ context.Context, id, userID int64, at time.Time) (domain.Letter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	letter, ok := r.letters[id]
	if !ok {
		return domain.Letter{}, domain.ErrNotFound
	}
	if letter.ReservedBy != nil && *letter.ReservedBy != userID {
		return domain.Letter{}, domain.ErrConflict
	}
	letter.ReservedBy = &userID
	letter.ReservedAt = &at
	r.letters[id] = letter
	return letter, nil
}

type stubClassifier struct {
	analysis    domain.Analysis
	drafts      domain.DraftResponses
	analyzeErr  error
	generateErr error
}

func (c *stubClassifier) Analyze(_ context.Context, _, _ string) (domain.Analysis, error) {
	if c.analyzeErr != nil {
		return domain.Analysis{}, c.analyzeErr
	}
	return c.analysis, nil
}

func (c *stubClassifier) GenerateResponses(_ context.Context, _, _ string, _ domain.Analysis) (domain.DraftResponses, error) {
	if c.generateErr != nil {
		return domain.DraftResponses{}, c.generateErr
	}
	return c.drafts, nil
}

type stubDispatcher struct {
	mu    sync.Mutex
	sent  []string
	fail  bool
	calls int
}

func (d *stubDispatcher) Send(_ context.Context, toEmail, _, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.fail {
		return errors.New("smtp недоступен")
	}
	d.sent = append(d.sent, toEmail)
	return nil
}

type stubNotifier struct {
	assigned []string
	approved int
	rejected int
}

func (n *stubNotifier) LetterAssigned(_ context.Context, _ domain.Letter, department string) {
	n.assigned = append(n.assigned, department)
}
func (n *stubNotifier) LetterApproved(_ context.Context, _ domain.Letter) { n.approved++ }
func (n *stubNotifier) LetterRejected(_ context.Context, _ domain.Letter, _ string) {
	n.rejected++
}

func newTestService(repo *stubLetterRepo, classifier *stubClassifier, dispatcher *stubDispatcher, notifier Notifier) *Service {
	return NewService(repo, classifier, dispatcher, notifier, zerolog.Nop(), time.Minute)
}

func routedLetter() domain.Letter {
	return domain.Letter{
		ID:               1,
		Subject:          "Запрос тарифов",
		Body:             "Просим предоставить тарифы.",
		SenderEmail:      "client@example.com",
		Status:           domain.StatusInApproval,
		SelectedResponse: "Направляем запрошенные тарифы.",
		ApprovalRoute:    routeSteps(),
		CurrentApprover:  "Юридический отдел",
	}
}

func routeSteps() []domain.RouteStep {
	return []domain.RouteStep{
		{Department: "Юридический отдел"},
		{Department: "Отдел маркетинга"},
	}
}

func TestAnalyzePopulatesLetter(t *testing.T) {
	repo := newStubLetterRepo(domain.Letter{ID: 1, Subject: "s", Body: "b", Status: domain.StatusNew, Priority: domain.PriorityLow})
	classifier := &stubClassifier{
		analysis: domain.Analysis{
			Classification: domain.Classification{Type: domain.TypeRegulatory},
			SLAHours:       48,
			Priority:       domain.PriorityHigh, // должен быть проигнорирован
			Formality:      domain.FormalityStrictOfficial,
			ApprovalRoute:  routeSteps(),
		},
		drafts: domain.DraftResponses{StrictOfficial: "текст"},
	}
	service := newTestService(repo, classifier, &stubDispatcher{}, nil)

	letter, err := service.Analyze(context.Background(), 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if letter.Status != domain.StatusNew {
		t.Fatalf("после анализа письмо должно остаться во входящих, статус %s", letter.Status)
	}
	if letter.SLAHours != 48 {
		t.Fatalf("ожидали SLA 48, получили %d", letter.SLAHours)
	}
	if letter.Deadline == nil {
		t.Fatal("дедлайн должен быть рассчитан")
	}
	// 48 часов из 48 — это 100% бюджета, приоритет низкий несмотря на
	// высокий приоритет от классификатора.
	if letter.Priority != domain.PriorityLow {
		t.Fatalf("приоритет классификатора должен игнорироваться, получили %d", letter.Priority)
	}
	if letter.Drafts == nil || letter.Drafts.StrictOfficial != "текст" {
		t.Fatal("черновики должны быть заполнены")
	}
	if len(letter.ApprovalRoute) != 2 {
		t.Fatal("маршрут согласования должен быть зафиксирован")
	}
}

func TestAnalyzeDefaultsBadSLA(t *testing.T) {
	repo := newStubLetterRepo(domain.Letter{ID: 1, Status: domain.StatusNew})
	classifier := &stubClassifier{analysis: domain.Analysis{SLAHours: -3}}
	service := newTestService(repo, classifier, &stubDispatcher{}, nil)

	letter, err := service.Analyze(context.Background(), 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if letter.SLAHours != domain.DefaultSLAHours {
		t.Fatalf("некорректный SLA должен заменяться на %d, получили %d", domain.DefaultSLAHours, letter.SLAHours)
	}
	if letter.Type != domain.TypeOther || letter.Formality != domain.FormalityNeutral {
		t.Fatal("пустые тип и тон должны получать безопасные значения")
	}
}

func TestAnalyzeFailureRestoresInbox(t *testing.T) {
	repo := newStubLetterRepo(domain.Letter{ID: 1, Status: domain.StatusDraftReady})
	classifier := &stubClassifier{analyzeErr: errors.New("таймаут")}
	service := newTestService(repo, classifier, &stubDispatcher{}, nil)

	_, err := service.Analyze(context.Background(), 1)
	if !errors.Is(err, domain.ErrAnalysisFailed) {
		t.Fatalf("ожидали ErrAnalysisFailed, получили %v", err)
	}
	letter, _ := repo.Get(context.Background(), 1)
	if letter.Status != domain.StatusNew {
		t.Fatalf("после сбоя письмо должно вернуться во входящие, статус %s", letter.Status)
	}
}

func TestAnalyzeGenerationFailureKeepsAnalysisFields(t *testing.T) {
	repo := newStubLetterRepo(domain.Letter{ID: 1, Status: domain.StatusNew})
	classifier := &stubClassifier{
		analysis:    domain.Analysis{SLAHours: 8},
		generateErr: errors.New("невалидный JSON"),
	}
	service := newTestService(repo, classifier, &stubDispatcher{}, nil)

	if _, err := service.Analyze(context.Background(), 1); !errors.Is(err, domain.ErrAnalysisFailed) {
		t.Fatalf("ожидали ErrAnalysisFailed, получили %v", err)
	}
	letter, _ := repo.Get(context.Background(), 1)
	if letter.SLAHours != 8 {
		t.Fatal("уже рассчитанные поля анализа не должны теряться")
	}
	if letter.Drafts != nil {
		t.Fatal("черновики не должны появиться при сбое генерации")
	}
}

func TestStartApprovalRequiresSelectedResponse(t *testing.T) {
	repo := newStubLetterRepo(domain.Letter{ID: 1, Status: domain.StatusDraftReady})
	service := newTestService(repo, &stubClassifier{}, &stubDispatcher{}, nil)

	_, err := service.StartApproval(context.Background(), 1)
	if !errors.Is(err, domain.ErrPreconditionFailed) {
		t.Fatalf("ожидали ErrPreconditionFailed, получили %v", err)
	}
}

func TestApprovalCommentRequiresInApproval(t *testing.T) {
	repo := newStubLetterRepo(domain.Letter{
		ID:          1,
		Subject:     "Вопрос",
		Body:        "текст",
		SenderEmail: "client@example.com",
		Status:      domain.StatusNew,
	})
	service := newTestService(repo, &stubClassifier{}, &stubDispatcher{}, nil)

	_, err := service.AddApprovalComment(context.Background(), 1, "Юридический отдел", "ок", true)
	if !errors.Is(err, domain.ErrPreconditionFailed) {
		t.Fatalf("ожидали ErrPreconditionFailed, получили %v", err)
	}

	letter, _ := repo.Get(context.Background(), 1)
	if letter.Status != domain.StatusNew {
		t.Fatalf("письмо вне согласования изменило статус: %s", letter.Status)
	}
	if len(letter.ApprovalComments) != 0 {
		t.Fatal("комментарий не должен записываться вне согласования")
	}
	if letter.FinalResponse != "" {
		t.Fatal("финальный ответ не должен появиться без маршрута согласования")
	}
}

func TestStartApprovalEmptyRoute(t *testing.T) {
	repo := newStubLetterRepo(domain.Letter{
		ID:               1,
		Subject:          "Вопрос",
		SenderEmail:      "client@example.com",
		Status:           domain.StatusDraftReady,
		SelectedResponse: "Ответ готов.",
	})
	dispatcher := &stubDispatcher{}
	notifier := &stubNotifier{}
	service := newTestService(repo, &stubClassifier{}, dispatcher, notifier)

	letter, err := service.StartApproval(context.Background(), 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if letter.Status != domain.StatusSent {
		t.Fatalf("без маршрута письмо утверждается и отправляется, статус %s", letter.Status)
	}
	if letter.FinalResponse != "Ответ готов." {
		t.Fatal("финальный ответ должен совпасть с выбранным")
	}
	if letter.CurrentApprover != "" {
		t.Fatal("согласующий должен быть сброшен")
	}
	if len(dispatcher.sent) != 1 || dispatcher.sent[0] != "client@example.com" {
		t.Fatal("финальный ответ должен уйти отправителю")
	}
	if notifier.approved != 1 {
		t.Fatal("ожидали уведомление об утверждении")
	}
}

func TestStartApprovalWithRoute(t *testing.T) {
	base := routedLetter()
	base.Status = domain.StatusDraftReady
	base.CurrentApprover = ""
	repo := newStubLetterRepo(base)
	dispatcher := &stubDispatcher{}
	notifier := &stubNotifier{}
	service := newTestService(repo, &stubClassifier{}, dispatcher, notifier)

	letter, err := service.StartApproval(context.Background(), 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if letter.Status != domain.StatusInApproval {
		t.Fatalf("ожидали IN_APPROVAL, получили %s", letter.Status)
	}
	if letter.CurrentApprover != "Юридический отдел" {
		t.Fatalf("первым согласует юридический отдел, получили %q", letter.CurrentApprover)
	}
	if dispatcher.calls != 0 {
		t.Fatal("до завершения маршрута отправки быть не должно")
	}
	if len(notifier.assigned) != 1 || notifier.assigned[0] != "Юридический отдел" {
		t.Fatal("ожидали уведомление о назначении первому отделу")
	}
}

func TestApprovalRouteCompletion(t *testing.T) {
	repo := newStubLetterRepo(routedLetter())
	dispatcher := &stubDispatcher{}
	notifier := &stubNotifier{}
	service := newTestService(repo, &stubClassifier{}, dispatcher, notifier)

	// Первый отдел согласует в другом регистре.
	letter, err := service.AddApprovalComment(context.Background(), 1, "юридический отдел", "замечаний нет", true)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if letter.CurrentApprover != "Отдел маркетинга" {
		t.Fatalf("указатель должен передвинуться на маркетинг, получили %q", letter.CurrentApprover)
	}
	if letter.Status != domain.StatusInApproval {
		t.Fatalf("маршрут не завершён, статус %s", letter.Status)
	}

	letter, err = service.AddApprovalComment(context.Background(), 1, "Отдел маркетинга", "ок", true)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if letter.Status != domain.StatusSent {
		t.Fatalf("после последнего шага письмо отправляется, статус %s", letter.Status)
	}
	if letter.FinalResponse != "Направляем запрошенные тарифы." {
		t.Fatal("финальный ответ должен совпасть с выбранным")
	}
	if letter.CurrentApprover != "" {
		t.Fatal("согласующий должен быть сброшен")
	}
	if len(letter.ApprovalComments) != 2 {
		t.Fatalf("ожидали 2 комментария, получили %d", len(letter.ApprovalComments))
	}
	if dispatcher.calls != 1 {
		t.Fatalf("отправка должна случиться ровно один раз, было %d", dispatcher.calls)
	}
}

func TestApprovalRejectionPreservesHistory(t *testing.T) {
	base := routedLetter()
	userID := int64(7)
	reservedAt := time.Now()
	base.ReservedBy = &userID
	base.ReservedAt = &reservedAt
	base.Drafts = &domain.DraftResponses{Corporate: "черновик"}
	repo := newStubLetterRepo(base)
	notifier := &stubNotifier{}
	service := newTestService(repo, &stubClassifier{}, &stubDispatcher{}, notifier)

	letter, err := service.AddApprovalComment(context.Background(), 1, "Юридический отдел", "нужна доработка", false)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if letter.Status != domain.StatusDraftReady {
		t.Fatalf("отклонение возвращает на доработку, статус %s", letter.Status)
	}
	if letter.CurrentApprover != "" {
		t.Fatal("согласующий должен быть сброшен")
	}
	if letter.ReservedBy != nil {
		t.Fatal("резервирование должно сниматься при отклонении")
	}
	if len(letter.ApprovalComments) != 1 {
		t.Fatalf("ожидали ровно один комментарий, получили %d", len(letter.ApprovalComments))
	}
	if letter.Drafts == nil || letter.Drafts.Corporate != "черновик" {
		t.Fatal("черновики должны сохраниться для повторной подачи")
	}
	if len(letter.ApprovalRoute) != 2 {
		t.Fatal("маршрут должен сохраниться для повторной подачи")
	}
	if notifier.rejected != 1 {
		t.Fatal("ожидали уведомление об отклонении")
	}
}

func TestDispatchFailureKeepsApproval(t *testing.T) {
	base := routedLetter()
	base.ApprovalRoute = base.ApprovalRoute[:1]
	repo := newStubLetterRepo(base)
	dispatcher := &stubDispatcher{fail: true}
	service := newTestService(repo, &stubClassifier{}, dispatcher, nil)

	letter, err := service.AddApprovalComment(context.Background(), 1, "Юридический отдел", "ок", true)
	if err != nil {
		t.Fatalf("сбой отправки не должен быть ошибкой операции: %v", err)
	}
	if letter.Status != domain.StatusApproved {
		t.Fatalf("утверждение не откатывается, статус %s", letter.Status)
	}
	if letter.FinalResponse == "" {
		t.Fatal("финальный ответ должен быть зафиксирован")
	}
}

func TestReserveExclusive(t *testing.T) {
	repo := newStubLetterRepo(routedLetter())
	service := newTestService(repo, &stubClassifier{}, &stubDispatcher{}, nil)

	lawyerA := domain.User{ID: 10, Role: domain.RoleLawyer}
	lawyerB := domain.User{ID: 11, Role: domain.RoleLawyer}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, user := range []domain.User{lawyerA, lawyerB} {
		wg.Add(1)
		go func(i int, user domain.User) {
			defer wg.Done()
			_, errs[i] = service.Reserve(context.Background(), 1, user)
		}(i, user)
	}
	wg.Wait()

	conflicts := 0
	for _, err := range errs {
		if errors.Is(err, domain.ErrConflict) {
			conflicts++
		} else if err != nil {
			t.Fatalf("неожиданная ошибка: %v", err)
		}
	}
	if conflicts != 1 {
		t.Fatalf("ровно один из двух должен получить конфликт, получили %d", conflicts)
	}

	// Повторный вызов владельца идемпотентен.
	letter, _ := repo.Get(context.Background(), 1)
	owner := lawyerA
	if *letter.ReservedBy == lawyerB.ID {
		owner = lawyerB
	}
	if _, err := service.Reserve(context.Background(), 1, owner); err != nil {
		t.Fatalf("повторное резервирование владельцем должно пройти: %v", err)
	}
}

func TestReserveWrongStatus(t *testing.T) {
	repo := newStubLetterRepo(domain.Letter{ID: 1, Status: domain.StatusDraftReady})
	service := newTestService(repo, &stubClassifier{}, &stubDispatcher{}, nil)

	_, err := service.Reserve(context.Background(), 1, domain.User{ID: 10, Role: domain.RoleLawyer})
	if !errors.Is(err, domain.ErrPreconditionFailed) {
		t.Fatalf("резерв вне согласования должен отклоняться, получили %v", err)
	}
}

func TestReserveWrongDepartment(t *testing.T) {
	repo := newStubLetterRepo(routedLetter())
	service := newTestService(repo, &stubClassifier{}, &stubDispatcher{}, nil)

	// Письмо ожидает юридический отдел, резервирует маркетолог.
	_, err := service.Reserve(context.Background(), 1, domain.User{ID: 20, Role: domain.RoleMarketing})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("резерв чужого отдела должен отклоняться, получили %v", err)
	}
}
