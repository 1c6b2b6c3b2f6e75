package httpapi

import (
	"net/http"
	"strconv"

	"letter-assist/internal/auth"
)

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	onlyUnread := false
	if raw := r.URL.Query().Get("unread"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid unread value")
			return
		}
		onlyUnread = v
	}
	list, err := h.notifications.ListForUser(r.Context(), user.ID, onlyUnread, parseIntQuery(r, "limit", 0))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]notificationResponse, 0, len(list))
	for _, n := range list {
		out = append(out, toNotificationResponse(n))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	count, err := h.notifications.UnreadCount(r.Context(), user.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread_count": count})
}

func (h *Handler) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification id")
		return
	}
	if err := h.notifications.MarkRead(r.Context(), id, user.ID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) markAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	n, err := h.notifications.MarkAllRead(r.Context(), user.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"marked_read": n})
}

// checkMail запускает внеплановую проверку почтового ящика.
func (h *Handler) checkMail(w http.ResponseWriter, r *http.Request) {
	if h.mail == nil {
		writeError(w, http.StatusServiceUnavailable, "почтовый ящик не настроен")
		return
	}
	created, err := h.mail.CheckNow(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("api: проверка почты завершилась ошибкой")
		writeError(w, http.StatusInternalServerError, "ошибка при проверке почты")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"new_letters": len(created),
	})
}

// mailStatus сообщает, подключён ли почтовый ящик к API.
func (h *Handler) mailStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"configured": h.mail != nil,
	})
}
