// errors стандартизирует ответы об ошибках HTTP-слоя.
// На вход он принимает доменную ошибку (sentinel из service/token),
// а на выход даёт:
//   - корректный HTTP-статус;
//   - короткий стабильный код для фронта;
//   - безопасное message без утечки деталей.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/pribylovaa/go-shop-auth/internal/service"
)

// Нестандартный код часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

var (
	// ErrBadRequest — тело запроса не разобралось (битый JSON, лишние поля).
	ErrBadRequest = stderrors.New("bad request")
	// ErrTooManyRequests — клиент превысил лимит запросов.
	ErrTooManyRequests = stderrors.New("too many requests")
)

// ErrorResponse — единый формат ответа об ошибке.
// Code — короткий стабильный код для машиночитаемой обработки на FE.
// Message — безопасное человекочитаемое описание.
// RequestID — из X-Request-Id, если есть (для трассировки).
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// ToHTTP конвертирует ошибку в HTTP-статус и тело ответа.
//
// Поведение:
//   - err == nil — программная ошибка вызова: 500/internal, чтобы не отдать
//     "200 OK" с телом ошибки;
//   - RoleError — 403 с ролью в сообщении;
//   - известные sentinel-ошибки — по таблице ниже;
//   - прочее — 500/internal без деталей.
func ToHTTP(err error) (int, ErrorResponse) {
	status, code, msg := classify(err)

	return status, ErrorResponse{
		Success: false,
		Message: msg,
		Code:    code,
	}
}

// WriteError — хелпер для HTTP-хендлеров и мидлваров.
// Пишет корректный статус/тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// classify — маппинг ошибка -> HTTP/FE-код/сообщение.
//   - NotAuthenticated/SessionExpired/InvalidCredentials -> 401
//   - InvalidToken/InvalidRefreshToken/Forbidden -> 403
//   - UserNotFound -> 404
//   - MissingFields/InvalidEmail/WeakPassword/EmailTaken/BadRequest -> 400
//   - TooManyRequests -> 429
//   - context.Canceled -> 499, context.DeadlineExceeded -> 504
//   - прочее -> 500/internal
func classify(err error) (int, string, string) {
	if err == nil {
		return http.StatusInternalServerError, "internal", "internal error"
	}

	var roleErr *service.RoleError
	if stderrors.As(err, &roleErr) {
		return http.StatusForbidden, "forbidden", "Role (" + string(roleErr.Role) + ") is not allowed to access this resource"
	}

	switch {
	case stderrors.Is(err, service.ErrNotAuthenticated):
		return http.StatusUnauthorized, "not_authenticated", "Please login to access this resource"
	case stderrors.Is(err, service.ErrSessionExpired):
		return http.StatusUnauthorized, "session_expired", "Session expired. Please login again."
	case stderrors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "Invalid email or password"
	case stderrors.Is(err, service.ErrInvalidToken):
		return http.StatusForbidden, "invalid_token", "Token expired or invalid. Please refresh."
	case stderrors.Is(err, service.ErrInvalidRefreshToken):
		return http.StatusForbidden, "invalid_refresh_token", "Invalid refresh token. Please login again."
	case stderrors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "forbidden", "You are not allowed to access this resource"
	case stderrors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found", "User not found"
	case stderrors.Is(err, service.ErrMissingFields):
		return http.StatusBadRequest, "missing_fields", "Please fill in all required fields"
	case stderrors.Is(err, service.ErrInvalidEmail):
		return http.StatusBadRequest, "invalid_email", "Invalid email format"
	case stderrors.Is(err, service.ErrWeakPassword):
		return http.StatusBadRequest, "weak_password", "Password must be at least 8 characters and contain lower, upper, digit and special characters"
	case stderrors.Is(err, service.ErrEmailTaken):
		return http.StatusBadRequest, "email_taken", "User already exists"
	case stderrors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request", "invalid request body"
	case stderrors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, "too_many_requests", "Too many requests. Please try again later."
	case stderrors.Is(err, context.Canceled):
		return StatusClientClosedRequest, "canceled", "canceled"
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "deadline_exceeded", "deadline exceeded"
	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}
