package httpapi

import "net/http"

// Обработчики аналитики. Период задаётся параметром ?days=, по умолчанию
// use-case слой берёт последние 30 дней.

func (h *Handler) processingTime(w http.ResponseWriter, r *http.Request) {
	report, err := h.analytics.ProcessingTime(r.Context(), parseIntQuery(r, "days", 0))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) slaCompliance(w http.ResponseWriter, r *http.Request) {
	report, err := h.analytics.SLACompliance(r.Context(), parseIntQuery(r, "days", 0))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) letterTypes(w http.ResponseWriter, r *http.Request) {
	shares, err := h.analytics.TypeDistribution(r.Context(), parseIntQuery(r, "days", 0))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shares)
}

func (h *Handler) statusDistribution(w http.ResponseWriter, r *http.Request) {
	shares, err := h.analytics.StatusDistribution(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shares)
}

func (h *Handler) priorityDistribution(w http.ResponseWriter, r *http.Request) {
	shares, err := h.analytics.PriorityDistribution(r.Context(), parseIntQuery(r, "days", 0))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shares)
}

func (h *Handler) dailyStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.analytics.DailyStats(r.Context(), parseIntQuery(r, "days", 0))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) departmentWorkload(w http.ResponseWriter, r *http.Request) {
	load, err := h.analytics.DepartmentWorkload(r.Context(), parseIntQuery(r, "days", 0))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, load)
}

func (h *Handler) analyticsSummary(w http.ResponseWriter, r *http.Request) {
	report, err := h.analytics.Summary(r.Context(), parseIntQuery(r, "days", 0))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
