package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"letter-assist/internal/auth"
	"letter-assist/internal/domain"
	"letter-assist/internal/usecase/analytics"
	"letter-assist/internal/usecase/letters"
)

// letterService — операции над письмами, которые обслуживает API.
type letterService interface {
	Create(ctx context.Context, params letters.CreateParams) (domain.Letter, error)
	Get(ctx context.Context, id int64) (domain.Letter, error)
	List(ctx context.Context, filter domain.LetterFilter) ([]domain.Letter, error)
	Update(ctx context.Context, id int64, params letters.UpdateParams) (domain.Letter, error)
	Analyze(ctx context.Context, id int64) (domain.Letter, error)
	StartApproval(ctx context.Context, id int64) (domain.Letter, error)
	AddApprovalComment(ctx context.Context, id int64, department, comment string, approved bool) (domain.Letter, error)
	Reserve(ctx context.Context, id int64, user domain.User) (domain.Letter, error)
}

// analyticsService — отчёты для дашборда.
type analyticsService interface {
	ProcessingTime(ctx context.Context, days int) (analytics.ProcessingTime, error)
	SLACompliance(ctx context.Context, days int) (analytics.SLACompliance, error)
	TypeDistribution(ctx context.Context, days int) ([]analytics.TypeShare, error)
	StatusDistribution(ctx context.Context) ([]analytics.StatusShare, error)
	PriorityDistribution(ctx context.Context, days int) ([]analytics.PriorityShare, error)
	DailyStats(ctx context.Context, days int) ([]analytics.DayCount, error)
	DepartmentWorkload(ctx context.Context, days int) ([]analytics.DepartmentCount, error)
	Summary(ctx context.Context, days int) (analytics.Summary, error)
}

// MailChecker запускает разовую проверку почтового ящика.
type MailChecker interface {
	CheckNow(ctx context.Context) ([]domain.Letter, error)
}

// Handler собирает HTTP-обработчики поверх use-case слоя.
type Handler struct {
	auth          *auth.Manager
	letters       letterService
	analytics     analyticsService
	users         domain.UserRepo
	notifications domain.NotificationRepo
	// queue может быть nil — тогда анализ выполняется синхронно.
	queue domain.AnalysisQueue
	// mail может быть nil — тогда ручная проверка почты недоступна.
	mail MailChecker
	log  zerolog.Logger
}

// NewHandler создаёт обработчик API.
func NewHandler(
	authManager *auth.Manager,
	letterSvc letterService,
	analyticsSvc analyticsService,
	users domain.UserRepo,
	notifications domain.NotificationRepo,
	queue domain.AnalysisQueue,
	mail MailChecker,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		auth:          authManager,
		letters:       letterSvc,
		analytics:     analyticsSvc,
		users:         users,
		notifications: notifications,
		queue:         queue,
		mail:          mail,
		log:           logger,
	}
}

// Router строит chi.Router со всеми маршрутами API.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/api/auth/login", h.login)
	r.Post("/api/auth/register", h.register)

	r.Group(func(protected chi.Router) {
		protected.Use(h.auth.Middleware)

		protected.Get("/api/auth/me", h.me)

		protected.Route("/api/users", func(r chi.Router) {
			r.Use(auth.RequireRoles(domain.RoleAdmin))
			r.Post("/", h.createUser)
			r.Get("/", h.listUsers)
			r.Get("/{id}", h.getUser)
			r.Patch("/{id}", h.updateUser)
			r.Delete("/{id}", h.deleteUser)
		})

		protected.Route("/api/letters", func(r chi.Router) {
			r.Get("/", h.listLetters)
			r.Get("/{id}", h.getLetter)

			r.Group(func(op chi.Router) {
				op.Use(auth.RequireRoles(domain.RoleAdmin, domain.RoleOperator))
				op.Post("/", h.createLetter)
				op.Patch("/{id}", h.updateLetter)
				op.Post("/{id}/analyze", h.analyzeLetter)
				op.Post("/{id}/approval/start", h.startApproval)
			})

			r.Group(func(ap chi.Router) {
				ap.Use(auth.RequireRoles(domain.RoleAdmin, domain.RoleLawyer, domain.RoleMarketing))
				ap.Post("/{id}/approval/comment", h.addApprovalComment)
				ap.Post("/{id}/reserve", h.reserveLetter)
			})
		})

		protected.Route("/api/notifications", func(r chi.Router) {
			r.Get("/", h.listNotifications)
			r.Get("/unread-count", h.unreadCount)
			r.Post("/{id}/read", h.markNotificationRead)
			r.Post("/read-all", h.markAllNotificationsRead)
		})

		protected.Route("/api/analytics", func(r chi.Router) {
			r.Get("/processing-time", h.processingTime)
			r.Get("/sla-compliance", h.slaCompliance)
			r.Get("/letter-types", h.letterTypes)
			r.Get("/status-distribution", h.statusDistribution)
			r.Get("/priority-distribution", h.priorityDistribution)
			r.Get("/daily-stats", h.dailyStats)
			r.Get("/department-workload", h.departmentWorkload)
			r.Get("/summary", h.analyticsSummary)
		})

		protected.With(auth.RequireRoles(domain.RoleAdmin, domain.RoleOperator)).
			Post("/api/mail/check", h.checkMail)
		protected.Get("/api/mail/status", h.mailStatus)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg})
}

// writeDomainError переводит ошибки use-case слоя в коды ответов.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrPreconditionFailed):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "внутренняя ошибка сервера")
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
