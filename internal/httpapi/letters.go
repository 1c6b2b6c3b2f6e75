package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"letter-assist/internal/auth"
	"letter-assist/internal/domain"
	"letter-assist/internal/usecase/letters"
)

type createLetterRequest struct {
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	SenderEmail string `json:"sender_email"`
	SenderName  string `json:"sender_name"`
	Priority    int    `json:"priority"`
}

func (h *Handler) createLetter(w http.ResponseWriter, r *http.Request) {
	var req createLetterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Body) == "" || strings.TrimSpace(req.SenderEmail) == "" {
		writeError(w, http.StatusBadRequest, "body and sender_email are required")
		return
	}
	letter, err := h.letters.Create(r.Context(), letters.CreateParams{
		Subject:     req.Subject,
		Body:        req.Body,
		SenderEmail: req.SenderEmail,
		SenderName:  req.SenderName,
		Priority:    req.Priority,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLetterResponse(letter))
}

// listLetters отдаёт письма с учётом роли: согласующие видят только
// письма маршрутов своего отдела, операторы и админы — все.
func (h *Handler) listLetters(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	filter := domain.LetterFilter{
		Limit:  parseIntQuery(r, "limit", 0),
		Offset: parseIntQuery(r, "offset", 0),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.LetterStatus(raw)
		filter.Status = &status
	}
	if user.Role.Approver() {
		filter.Department = user.Role.Department()
		filter.UserID = user.ID
		if raw := r.URL.Query().Get("reserved"); raw != "" {
			reserved, err := strconv.ParseBool(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid reserved value")
				return
			}
			filter.Reserved = &reserved
		}
	}

	list, err := h.letters.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLetterResponses(list))
}

func (h *Handler) getLetter(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid letter id")
		return
	}
	letter, err := h.letters.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLetterResponse(letter))
}

type updateLetterRequest struct {
	Status           *domain.LetterStatus `json:"status"`
	Priority         *int                 `json:"priority"`
	SLAHours         *int                 `json:"sla_hours"`
	SelectedResponse *string              `json:"selected_response"`
}

func (h *Handler) updateLetter(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid letter id")
		return
	}
	var req updateLetterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	letter, err := h.letters.Update(r.Context(), id, letters.UpdateParams{
		Status:           req.Status,
		Priority:         req.Priority,
		SLAHours:         req.SLAHours,
		SelectedResponse: req.SelectedResponse,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLetterResponse(letter))
}

// analyzeLetter ставит письмо в очередь анализа; без очереди анализ
// выполняется синхронно в рамках запроса.
func (h *Handler) analyzeLetter(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid letter id")
		return
	}
	if h.queue == nil {
		letter, err := h.letters.Analyze(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toLetterResponse(letter))
		return
	}

	letter, err := h.letters.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	job := domain.AnalysisJob{ID: uuid.NewString(), LetterID: letter.ID}
	if err := h.queue.Enqueue(r.Context(), job); err != nil {
		h.log.Error().Err(err).Int64("letter_id", letter.ID).Msg("api: не удалось поставить письмо в очередь анализа")
		writeError(w, http.StatusServiceUnavailable, "analysis queue unavailable")
		return
	}
	writeJSON(w, http.StatusAccepted, toLetterResponse(letter))
}

func (h *Handler) startApproval(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid letter id")
		return
	}
	letter, err := h.letters.StartApproval(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLetterResponse(letter))
}

type approvalCommentRequest struct {
	Department string `json:"department"`
	Comment    string `json:"comment"`
	Approved   bool   `json:"approved"`
}

func (h *Handler) addApprovalComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid letter id")
		return
	}
	var req approvalCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	// Согласующий работает только с письмами своего отдела, админ — с любыми.
	if user.Role != domain.RoleAdmin {
		own := user.Role.Department()
		if !strings.EqualFold(strings.TrimSpace(req.Department), own) {
			writeError(w, http.StatusForbidden,
				"вы можете согласовывать только письма отдела '"+own+"'")
			return
		}
	}
	letter, err := h.letters.AddApprovalComment(r.Context(), id, req.Department, req.Comment, req.Approved)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLetterResponse(letter))
}

func (h *Handler) reserveLetter(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid letter id")
		return
	}
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	letter, err := h.letters.Reserve(r.Context(), id, user)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLetterResponse(letter))
}

func parseIntQuery(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
