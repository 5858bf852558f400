package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-shop-auth/internal/models"
	"github.com/pribylovaa/go-shop-auth/internal/pkg/log"
)

// Причины выпуска сессии (метка метрики и поле лога).
const (
	ReasonLogin        = "login"
	ReasonRegister     = "register"
	ReasonRefresh      = "refresh"
	ReasonGateRotation = "gate_rotation"
)

// SessionResponse — тело ответа при успешном выпуске сессии.
type SessionResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	User    models.PublicUser `json:"user"`
}

// Sanitize строит публичную проекцию пользователя.
// Любой пользователь из хранилища выходит за пределы сервиса только через неё.
func Sanitize(u *models.User) models.PublicUser {
	return u.Public()
}

// IssueSession выпускает новую пару токенов, ставит обе cookie на w
// и возвращает тело ответа. Вызывается ровно один раз на успешный
// login/register/refresh (и при ротации внутри AuthGate) до записи тела.
func (s *Service) IssueSession(ctx context.Context, w http.ResponseWriter, u models.PublicUser, reason, message string) (*SessionResponse, error) {
	const op = "service.session.IssueSession"

	lg := log.From(ctx)

	pair, err := s.mintPair(u.ID)
	if err != nil {
		lg.Error("session_issue_failed",
			slog.String("op", op),
			slog.String("reason", reason),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.cookies.Attach(w, pair)
	s.metrics.SessionIssued(reason)

	lg.Info("session_issued",
		slog.String("user_id", u.ID.String()),
		slog.String("reason", reason),
		slog.Time("access_expires_at", pair.AccessExpiresAt),
	)

	return &SessionResponse{
		Success: true,
		Message: message,
		User:    u,
	}, nil
}

// EndSession стирает cookie сессии с теми же атрибутами, что и при выпуске.
func (s *Service) EndSession(ctx context.Context, w http.ResponseWriter) {
	s.cookies.Clear(w)

	log.From(ctx).Info("session_cleared")
}

// mintPair выпускает согласованную пару access+refresh.
func (s *Service) mintPair(userID uuid.UUID) (models.TokenPair, error) {
	const op = "service.session.mintPair"

	access, accessExp, err := s.codec.IssueAccess(userID)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	refresh, refreshExp, err := s.codec.IssueRefresh(userID)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	return models.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}
