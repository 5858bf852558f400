package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/go-shop-auth/internal/cookie"
	"github.com/pribylovaa/go-shop-auth/internal/http/handlers"
	"github.com/pribylovaa/go-shop-auth/internal/http/middleware"
	"github.com/pribylovaa/go-shop-auth/internal/metrics"
	"github.com/pribylovaa/go-shop-auth/internal/models"
	"github.com/pribylovaa/go-shop-auth/internal/service"
	"github.com/pribylovaa/go-shop-auth/internal/token"
)

// Deps — компоненты, из которых собирается роутер.
type Deps struct {
	Service *service.Service
	Codec   *token.Codec
	Cookies *cookie.Transport
	Metrics *metrics.Metrics // может быть nil
}

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger   *slog.Logger
	Timeout  time.Duration
	BasePath string // например, "/api/v1"; если пустой — роуты регистрируются на корне.
	// Лимит login/register на IP; AuthRPS <= 0 отключает.
	AuthRPS   float64
	AuthBurst int
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(d Deps, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),            // безопасно ловим паники
		middleware.RequestID(),          // формируем/прокидываем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger), // кладём request-scoped логгер в контекст и логируем
	)
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout))
	}

	h := handlers.New(d.Service, d.Cookies)
	authn := middleware.Authenticate(middleware.AuthDeps{
		Tokens:     d.Codec,
		Identities: d.Service,
		Sessions:   d.Service,
		Cookies:    d.Cookies,
		Metrics:    d.Metrics,
	})

	admin := middleware.Authorize(d.Service, models.RoleAdmin)
	limit := middleware.RateLimit(opts.AuthRPS, opts.AuthBurst)

	if opts.BasePath != "" {
		sub := chi.NewRouter()
		registerRoutes(sub, h, authn, admin, limit)
		root.Mount(opts.BasePath, sub)
		return root
	}

	registerRoutes(root, h, authn, admin, limit)
	return root
}

// registerRoutes — единая точка регистрации всех REST-эндпойнтов.
func registerRoutes(r chi.Router, h *handlers.Handlers, authn, admin, limit middleware.Middleware) {
	// публичные
	r.With(limit).Post("/register", h.RegisterUser)
	r.With(limit).Post("/login", h.LoginUser)
	r.Post("/refresh-token", h.RefreshToken)
	r.Post("/logout", h.LogoutUser)

	// под AuthGate
	r.Group(func(r chi.Router) {
		r.Use(authn)
		r.Get("/me", h.Me)

		r.With(admin).Get("/admin/users/{id}", h.GetUser)
	})
}
