package auth

import (
	"context"
	"net/http"
	"strings"

	"letter-assist/internal/domain"
)

type contextKey struct{}

// UserFromContext достаёт аутентифицированного пользователя из контекста запроса.
func UserFromContext(ctx context.Context) (domain.User, bool) {
	user, ok := ctx.Value(contextKey{}).(domain.User)
	return user, ok
}

// Middleware проверяет Bearer-токен и кладёт пользователя в контекст.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found || raw == "" {
			http.Error(w, "требуется авторизация", http.StatusUnauthorized)
			return
		}
		claims, err := m.ParseToken(raw)
		if err != nil {
			http.Error(w, "недействительный токен", http.StatusUnauthorized)
			return
		}
		user, err := m.Resolve(r.Context(), claims)
		if err != nil {
			http.Error(w, "недействительный токен", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, user)))
	})
}

// RequireRoles пропускает только пользователей перечисленных ролей.
func RequireRoles(roles ...domain.UserRole) func(http.Handler) http.Handler {
	allowed := make(map[domain.UserRole]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				http.Error(w, "требуется авторизация", http.StatusUnauthorized)
				return
			}
			if _, ok := allowed[user.Role]; !ok {
				http.Error(w, "недостаточно прав", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
