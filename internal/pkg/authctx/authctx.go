// authctx хранит результат аутентификации запроса в context.Context.
// Значение создаётся AuthGate и живёт до конца обработки запроса.
package authctx

import (
	"context"

	"github.com/pribylovaa/go-shop-auth/internal/models"
)

// Source — откуда взят учётный токен запроса.
type Source string

const (
	SourceHeader    Source = "header"
	SourceCookie    Source = "cookie"
	SourceRefreshed Source = "refreshed"
)

// AuthContext — аутентифицированная identity запроса.
type AuthContext struct {
	User   models.PublicUser
	Source Source
}

type ctxKey struct{}

// Into кладёт AuthContext в контекст.
func Into(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, ac)
}

// From достаёт AuthContext; ok=false, если запрос не прошёл AuthGate.
func From(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(ctxKey{}).(AuthContext)
	return ac, ok
}
