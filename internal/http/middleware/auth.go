package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apierrors "github.com/pribylovaa/go-shop-auth/internal/http/errors"
	"github.com/pribylovaa/go-shop-auth/internal/metrics"
	"github.com/pribylovaa/go-shop-auth/internal/models"
	"github.com/pribylovaa/go-shop-auth/internal/pkg/authctx"
	logctx "github.com/pribylovaa/go-shop-auth/internal/pkg/log"
	"github.com/pribylovaa/go-shop-auth/internal/pkg/redact"
	"github.com/pribylovaa/go-shop-auth/internal/service"
	"github.com/pribylovaa/go-shop-auth/internal/token"
)

const tracerName = "github.com/pribylovaa/go-shop-auth/internal/http/middleware"

// Исходы AuthGate (метка метрики и атрибут спана).
const (
	OutcomeAuthenticated       = "authenticated"
	OutcomeRefreshed           = "refreshed"
	OutcomeNoCredential        = "rejected_no_credential"
	OutcomeInvalidToken        = "rejected_invalid_token"
	OutcomeSessionExpired      = "rejected_session_expired"
	OutcomeInvalidRefreshToken = "rejected_invalid_refresh_token"
	OutcomeUserNotFound        = "rejected_user_not_found"
	OutcomeInternal            = "rejected_internal"
)

// TokenVerifier проверяет подписанный токен заданного вида.
type TokenVerifier interface {
	Verify(tokenStr string, kind token.Kind) (*token.Subject, error)
}

// IdentityResolver находит санитизированного пользователя по ID.
// Identity может отвечать из кэша, FreshIdentity всегда читает хранилище.
type IdentityResolver interface {
	Identity(ctx context.Context, id uuid.UUID) (*models.PublicUser, error)
	FreshIdentity(ctx context.Context, id uuid.UUID) (*models.PublicUser, error)
}

// SessionIssuer выпускает новую пару токенов в cookie ответа.
type SessionIssuer interface {
	IssueSession(ctx context.Context, w http.ResponseWriter, u models.PublicUser, reason, message string) (*service.SessionResponse, error)
}

// CookieReader читает cookie сессии.
type CookieReader interface {
	Read(r *http.Request, kind token.Kind) (string, bool)
}

// AuthDeps — зависимости AuthGate. Metrics может быть nil.
type AuthDeps struct {
	Tokens     TokenVerifier
	Identities IdentityResolver
	Sessions   SessionIssuer
	Cookies    CookieReader
	Metrics    *metrics.Metrics
}

// gateError — отказ AuthGate с исходом для метрик.
type gateError struct {
	outcome string
	err     error
}

func (e *gateError) Error() string { return e.err.Error() }
func (e *gateError) Unwrap() error { return e.err }

func reject(outcome string, err error) *gateError {
	return &gateError{outcome: outcome, err: err}
}

// Authenticate — AuthGate. Для каждого запроса:
//  1. берёт access-токен из Authorization: Bearer, иначе из cookie accessToken;
//  2. валидный токен -> поиск identity (допускается кэш) -> запрос идёт дальше;
//  3. истёкший токен -> refresh-cookie -> поиск identity в хранилище -> ротация пары -> дальше;
//  4. битый токен -> 403 без попытки refresh.
//
// Отказ пишется ответом об ошибке; дальше по цепочке запрос не уходит.
func Authenticate(deps AuthDeps) Middleware {
	tracer := otel.Tracer(tracerName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx, span := tracer.Start(r.Context(), "auth.gate",
				trace.WithSpanKind(trace.SpanKindInternal),
				trace.WithAttributes(attribute.String("http.path", r.URL.Path)),
			)
			defer span.End()

			ac, outcome, err := deps.authenticate(ctx, w, r)
			deps.Metrics.GateOutcome(outcome, time.Since(start))
			span.SetAttributes(attribute.String("auth.outcome", outcome))

			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, outcome)

				lvl := slog.LevelWarn
				if outcome == OutcomeInternal {
					lvl = slog.LevelError
				}
				attrs := []slog.Attr{
					slog.String("outcome", outcome),
					slog.String("path", r.URL.Path),
					slog.String("err", err.Error()),
				}
				if tok, _ := deps.extract(r); tok != "" {
					attrs = append(attrs, slog.String("token", redact.Token(tok)))
				}
				logctx.From(ctx).LogAttrs(ctx, lvl, "auth_gate_rejected", attrs...)

				apierrors.WriteError(w, r, err)
				return
			}

			span.SetAttributes(
				attribute.String("auth.source", string(ac.Source)),
				attribute.String("auth.user_id", ac.User.ID.String()),
			)

			ctx = authctx.Into(ctx, ac)
			ctx = logctx.With(ctx, slog.String("user_id", ac.User.ID.String()))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authenticate выполняет переходы AuthGate и возвращает исход.
func (d AuthDeps) authenticate(ctx context.Context, w http.ResponseWriter, r *http.Request) (authctx.AuthContext, string, error) {
	const op = "middleware.auth.authenticate"

	candidate, source := d.extract(r)
	if candidate == "" {
		return authctx.AuthContext{}, OutcomeNoCredential, fmt.Errorf("%s: %w", op, service.ErrNotAuthenticated)
	}

	sub, err := d.Tokens.Verify(candidate, token.KindAccess)
	switch {
	case err == nil:
		u, gerr := d.resolve(ctx, sub.UserID, d.Identities.Identity)
		if gerr != nil {
			return authctx.AuthContext{}, gerr.outcome, fmt.Errorf("%s: %w", op, gerr)
		}

		return authctx.AuthContext{User: *u, Source: source}, OutcomeAuthenticated, nil

	case errors.Is(err, token.ErrTokenExpired):
		ac, gerr := d.refresh(ctx, w, r)
		if gerr != nil {
			return authctx.AuthContext{}, gerr.outcome, fmt.Errorf("%s: %w", op, gerr)
		}

		return ac, OutcomeRefreshed, nil

	case errors.Is(err, token.ErrInvalidToken):
		return authctx.AuthContext{}, OutcomeInvalidToken, fmt.Errorf("%s: %w", op, service.ErrInvalidToken)

	default:
		return authctx.AuthContext{}, OutcomeInternal, fmt.Errorf("%s: %w", op, err)
	}
}

// refresh — ветка истёкшего access-токена.
func (d AuthDeps) refresh(ctx context.Context, w http.ResponseWriter, r *http.Request) (authctx.AuthContext, *gateError) {
	rt, ok := d.Cookies.Read(r, token.KindRefresh)
	if !ok {
		return authctx.AuthContext{}, reject(OutcomeSessionExpired, service.ErrSessionExpired)
	}

	sub, err := d.Tokens.Verify(rt, token.KindRefresh)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) || errors.Is(err, token.ErrInvalidToken) {
			return authctx.AuthContext{}, reject(OutcomeInvalidRefreshToken, service.ErrInvalidRefreshToken)
		}

		return authctx.AuthContext{}, reject(OutcomeInternal, err)
	}

	u, gerr := d.resolve(ctx, sub.UserID, d.Identities.FreshIdentity)
	if gerr != nil {
		return authctx.AuthContext{}, gerr
	}

	if _, err := d.Sessions.IssueSession(ctx, w, *u, service.ReasonGateRotation, ""); err != nil {
		return authctx.AuthContext{}, reject(OutcomeInternal, err)
	}

	logctx.From(ctx).Info("session_rotated",
		slog.String("user_id", u.ID.String()),
	)

	return authctx.AuthContext{User: *u, Source: authctx.SourceRefreshed}, nil
}

type lookupFunc func(ctx context.Context, id uuid.UUID) (*models.PublicUser, error)

func (d AuthDeps) resolve(ctx context.Context, id uuid.UUID, lookup lookupFunc) (*models.PublicUser, *gateError) {
	u, err := lookup(ctx, id)
	if err != nil {
		return nil, classify(err)
	}

	return u, nil
}

func classify(err error) *gateError {
	if errors.Is(err, service.ErrUserNotFound) {
		return reject(OutcomeUserNotFound, err)
	}

	return reject(OutcomeInternal, err)
}

// extract — заголовок имеет приоритет над cookie.
func (d AuthDeps) extract(r *http.Request) (string, authctx.Source) {
	if tok := bearerToken(r.Header.Get("Authorization")); tok != "" {
		return tok, authctx.SourceHeader
	}

	if tok, ok := d.Cookies.Read(r, token.KindAccess); ok {
		return tok, authctx.SourceCookie
	}

	return "", ""
}

func bearerToken(h string) string {
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}

	return strings.TrimSpace(h[len(prefix):])
}

// Authorize — RoleGate. Ставится строго после Authenticate.
// Без identity в контексте — 401, роль вне набора — 403.
// Роль перечитывается из хранилища через ids.FreshIdentity, поэтому
// удалённый пользователь получает 404, а понижение роли действует сразу.
func Authorize(ids IdentityResolver, roles ...models.Role) Middleware {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			ac, ok := authctx.From(ctx)
			if !ok {
				apierrors.WriteError(w, r, service.ErrNotAuthenticated)
				return
			}

			u, err := ids.FreshIdentity(ctx, ac.User.ID)
			if err != nil {
				gerr := classify(err)
				lvl := slog.LevelWarn
				if gerr.outcome == OutcomeInternal {
					lvl = slog.LevelError
				}
				logctx.From(ctx).Log(ctx, lvl, "role_gate_lookup_failed",
					slog.String("outcome", gerr.outcome),
					slog.String("path", r.URL.Path),
					slog.String("err", err.Error()),
				)
				apierrors.WriteError(w, r, err)
				return
			}

			if _, ok := allowed[u.Role]; !ok {
				logctx.From(ctx).Warn("role_gate_rejected",
					slog.String("role", string(u.Role)),
					slog.String("path", r.URL.Path),
				)
				apierrors.WriteError(w, r, &service.RoleError{Role: u.Role})
				return
			}

			ac.User = *u
			next.ServeHTTP(w, r.WithContext(authctx.Into(ctx, ac)))
		})
	}
}
