// service содержит бизнес-логику подсистемы аутентификации:
// регистрацию/вход пользователей, выпуск сессии (пара токенов в cookie),
// обновление сессии по refresh-токену и разрешение identity по ID.
//
// Основные аспекты:
//   - Токены stateless: сервер не хранит сессий и списка отзыва, поэтому
//     Service безопасен для конкурентного использования при потокобезопасном
//     хранилище и кэше.
//   - Наружу пользователь выходит только как models.PublicUser.
//   - Ошибки маппятся транспортом на HTTP-коды (см. комментарии к переменным ниже).
package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/pribylovaa/go-shop-auth/internal/cache"
	"github.com/pribylovaa/go-shop-auth/internal/cookie"
	"github.com/pribylovaa/go-shop-auth/internal/metrics"
	"github.com/pribylovaa/go-shop-auth/internal/models"
	"github.com/pribylovaa/go-shop-auth/internal/storage"
	"github.com/pribylovaa/go-shop-auth/internal/token"
)

var (
	// ErrNotAuthenticated — в запросе нет ни заголовка Authorization, ни access-cookie.
	// Транспорт: HTTP 401.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrSessionExpired — access-токен истёк, а refresh-cookie отсутствует.
	// Транспорт: HTTP 401.
	ErrSessionExpired = errors.New("session expired")

	// ErrInvalidToken — access-токен битый или подписан не тем ключом.
	// Refresh в этом случае не пробуется. Транспорт: HTTP 403.
	ErrInvalidToken = errors.New("invalid token")

	// ErrInvalidRefreshToken — refresh-токен истёк или некорректен; нужен повторный вход.
	// Транспорт: HTTP 403.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrUserNotFound — пользователь удалён после выпуска токена.
	// Транспорт: HTTP 404.
	ErrUserNotFound = errors.New("user not found")

	// ErrForbidden — роль пользователя не входит в разрешённый набор.
	// Транспорт: HTTP 403.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidCredentials — пара email/пароль неверна.
	// Транспорт: HTTP 401.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmailTaken — e-mail уже занят. Транспорт: HTTP 400.
	ErrEmailTaken = errors.New("email already taken")

	// ErrMissingFields — не заполнены обязательные поля. Транспорт: HTTP 400.
	ErrMissingFields = errors.New("missing required fields")

	// ErrInvalidEmail — e-mail имеет некорректный формат. Транспорт: HTTP 400.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrWeakPassword — пароль не удовлетворяет политике сложности. Транспорт: HTTP 400.
	ErrWeakPassword = errors.New("password is too weak")
)

// RoleError — отказ RoleGate с указанием роли пользователя.
type RoleError struct {
	Role models.Role
}

func (e *RoleError) Error() string {
	return fmt.Sprintf("role (%s) is not allowed to access this resource", e.Role)
}

func (e *RoleError) Unwrap() error { return ErrForbidden }

// Service описывает бизнес-логику подсистемы аутентификации.
type Service struct {
	users   storage.UserStorage
	codec   *token.Codec
	cookies *cookie.Transport
	metrics *metrics.Metrics

	icache   cache.IdentityCache // может быть nil, если кэш не сконфигурирован
	cacheTTL time.Duration
	now      func() time.Time
}

// New создаёт новый экземпляр Service. metrics может быть nil.
func New(users storage.UserStorage, codec *token.Codec, cookies *cookie.Transport, m *metrics.Metrics) *Service {
	return &Service{
		users:   users,
		codec:   codec,
		cookies: cookies,
		metrics: m,
		now:     time.Now,
	}
}

// SetIdentityCache устанавливает кэш identity (опционально).
func (s *Service) SetIdentityCache(c cache.IdentityCache, ttl time.Duration) {
	s.icache = c
	s.cacheTTL = ttl
}
