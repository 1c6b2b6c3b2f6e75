package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"letter-assist/internal/domain"
)

// ErrInvalidCredentials возвращается при неверном логине или пароле.
var ErrInvalidCredentials = errors.New("неверный логин или пароль")

// ErrInvalidToken возвращается при просроченном или повреждённом токене.
var ErrInvalidToken = errors.New("недействительный токен")

// Claims — полезная нагрузка JWT.
type Claims struct {
	UserID int64           `json:"uid"`
	Role   domain.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Manager выпускает и проверяет токены доступа.
type Manager struct {
	secret []byte
	ttl    time.Duration
	users  domain.UserRepo
}

// NewManager создаёт менеджер аутентификации.
func NewManager(secret string, ttl time.Duration, users domain.UserRepo) *Manager {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Manager{secret: []byte(secret), ttl: ttl, users: users}
}

// HashPassword строит bcrypt-хэш пароля.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("хэширование пароля: %w", err)
	}
	return string(hash), nil
}

// CheckPassword сверяет пароль с хэшем.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Login проверяет учётные данные и возвращает токен с пользователем.
func (m *Manager) Login(ctx context.Context, username, password string) (string, domain.User, error) {
	user, err := m.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.User{}, ErrInvalidCredentials
		}
		return "", domain.User{}, err
	}
	if !user.IsActive || !CheckPassword(user.PasswordHash, password) {
		return "", domain.User{}, ErrInvalidCredentials
	}
	token, err := m.IssueToken(user)
	if err != nil {
		return "", domain.User{}, err
	}
	return token, user, nil
}

// IssueToken выпускает подписанный HS256-токен.
func (m *Manager) IssueToken(user domain.User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("подпись токена: %w", err)
	}
	return signed, nil
}

// ParseToken проверяет подпись и срок действия токена.
func (m *Manager) ParseToken(raw string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("неожиданный метод подписи %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// Resolve загружает актуального пользователя по клеймам токена.
// Деактивированный или удалённый пользователь считается неавторизованным.
func (m *Manager) Resolve(ctx context.Context, claims Claims) (domain.User, error) {
	user, err := m.users.Get(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, ErrInvalidToken
		}
		return domain.User{}, err
	}
	if !user.IsActive {
		return domain.User{}, ErrInvalidToken
	}
	return user, nil
}
