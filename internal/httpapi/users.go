package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"letter-assist/internal/auth"
	"letter-assist/internal/domain"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	User        userResponse `json:"user"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token, user, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "неверное имя пользователя или пароль")
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        toUserResponse(user),
	})
}

// register — открытая самостоятельная регистрация, как и создание
// пользователя администратором, но без токена.
func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	h.createUser(w, r)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

type createUserRequest struct {
	Username       string          `json:"username"`
	Email          string          `json:"email"`
	Password       string          `json:"password"`
	FirstName      string          `json:"first_name"`
	LastName       string          `json:"last_name"`
	MiddleName     string          `json:"middle_name"`
	Role           domain.UserRole `json:"role"`
	TelegramChatID int64           `json:"telegram_chat_id"`
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	switch req.Role {
	case domain.RoleAdmin, domain.RoleOperator, domain.RoleLawyer, domain.RoleMarketing:
	default:
		writeError(w, http.StatusBadRequest, "unknown role")
		return
	}
	if _, err := h.users.GetByUsername(r.Context(), req.Username); err == nil {
		writeError(w, http.StatusBadRequest, "пользователь с таким username уже существует")
		return
	} else if !errors.Is(err, domain.ErrNotFound) {
		writeDomainError(w, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	user, err := h.users.Create(r.Context(), domain.User{
		Username:       req.Username,
		Email:          strings.TrimSpace(req.Email),
		PasswordHash:   hash,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		MiddleName:     req.MiddleName,
		Role:           req.Role,
		IsActive:       true,
		TelegramChatID: req.TelegramChatID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.users.List(r.Context(), parseIntQuery(r, "limit", 0), parseIntQuery(r, "offset", 0))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]userResponse, 0, len(list))
	for _, u := range list {
		out = append(out, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

type updateUserRequest struct {
	Email          *string          `json:"email"`
	Password       *string          `json:"password"`
	FirstName      *string          `json:"first_name"`
	LastName       *string          `json:"last_name"`
	MiddleName     *string          `json:"middle_name"`
	Role           *domain.UserRole `json:"role"`
	IsActive       *bool            `json:"is_active"`
	TelegramChatID *int64           `json:"telegram_chat_id"`
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if req.Email != nil {
		user.Email = strings.TrimSpace(*req.Email)
	}
	if req.Password != nil && *req.Password != "" {
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		user.PasswordHash = hash
	}
	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.MiddleName != nil {
		user.MiddleName = *req.MiddleName
	}
	if req.Role != nil {
		switch *req.Role {
		case domain.RoleAdmin, domain.RoleOperator, domain.RoleLawyer, domain.RoleMarketing:
			user.Role = *req.Role
		default:
			writeError(w, http.StatusBadRequest, "unknown role")
			return
		}
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}
	if req.TelegramChatID != nil {
		user.TelegramChatID = *req.TelegramChatID
	}

	updated, err := h.users.Update(r.Context(), user)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(updated))
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := h.users.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
