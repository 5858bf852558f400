// authclient — HTTP-клиент сервиса аутентификации.
//
// Клиент хранит cookie сессии в собственном jar и прозрачно переживает
// истечение access-токена: ответ 401 перехватывается, сессия обновляется
// через Coordinator (не более одного refresh на всплеск 401), а исходный
// запрос повторяется ровно один раз.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultRefreshPath    = "/api/v1/refresh-token"
	DefaultRefreshTimeout = 10 * time.Second

	accessCookieName = "accessToken"
)

var (
	// ErrSessionExpired — сессию обновить не удалось, нужен повторный вход.
	ErrSessionExpired = errors.New("session expired")
	// ErrNotReplayable — тело запроса нельзя отправить повторно (нет GetBody).
	ErrNotReplayable = errors.New("request body is not replayable")
)

// APIError — ответ сервера об ошибке.
type APIError struct {
	Status    int    `json:"-"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth api: %d %s: %s", e.Status, e.Code, e.Message)
}

// Options — параметры клиента.
type Options struct {
	// BaseURL — адрес сервиса, например http://localhost:4000.
	BaseURL    string
	HTTPClient *http.Client
	// UseBearer — передавать access-токен в Authorization: Bearer
	// вместо cookie.
	UseBearer      bool
	RefreshPath    string
	RefreshTimeout time.Duration
	// OnSessionExpired вызывается после сброса сессии (аналог редиректа на логин).
	OnSessionExpired func()
	Logger           *slog.Logger
}

// Client — клиент сервиса аутентификации. Безопасен для конкурентного использования.
type Client struct {
	base       *url.URL
	refreshURL *url.URL
	hc         *http.Client
	jar        *sessionJar
	coord      *Coordinator
	opts       Options
	log        *slog.Logger

	mu   sync.RWMutex
	user *User
}

// New создаёт клиента.
func New(opts Options) (*Client, error) {
	const op = "authclient.New"

	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%s: invalid base url %q", op, opts.BaseURL)
	}

	if opts.RefreshPath == "" {
		opts.RefreshPath = DefaultRefreshPath
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = DefaultRefreshTimeout
	}

	lg := opts.Logger
	if lg == nil {
		lg = slog.Default()
	}

	jar := newSessionJar()

	hc := &http.Client{Timeout: 30 * time.Second}
	if opts.HTTPClient != nil {
		cp := *opts.HTTPClient
		hc = &cp
	}
	hc.Jar = jar

	c := &Client{
		base:       base,
		refreshURL: base.JoinPath(opts.RefreshPath),
		hc:         hc,
		jar:        jar,
		opts:       opts,
		log:        lg,
	}
	c.coord = NewCoordinator(c.refresh, opts.RefreshTimeout, func(err error) {
		c.discard("refresh_failed", err)
	})

	return c, nil
}

// retryKey помечает запрос, уже повторённый после refresh.
type retryKey struct{}

func isRetry(ctx context.Context) bool {
	v, _ := ctx.Value(retryKey{}).(bool)
	return v
}

// Do отправляет запрос. Ответ 401 на ещё не повторённый запрос запускает
// (или ожидает) refresh, после чего запрос повторяется один раз.
// 401 от самого refresh-эндпойнта сбрасывает сессию без постановки в очередь.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	const op = "authclient.Do"

	resp, err := c.send(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if resp.StatusCode != http.StatusUnauthorized || isRetry(req.Context()) {
		return resp, nil
	}

	if c.isRefreshURL(req.URL) {
		c.discard("refresh_unauthorized", nil)
		return resp, nil
	}

	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		c.log.Debug("auth_replay_skipped", slog.String("path", req.URL.Path))
		return resp, nil
	}

	drain(resp)

	if err := c.coord.Refresh(req.Context()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	replay, err := cloneForRetry(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return c.Do(replay)
}

// send — один запрос без перехвата 401.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	if c.opts.UseBearer {
		req.Header.Del("Authorization")
		if tok := c.jar.Value(req.URL, accessCookieName); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	return c.hc.Do(req)
}

func cloneForRetry(req *http.Request) (*http.Request, error) {
	r := req.Clone(context.WithValue(req.Context(), retryKey{}, true))

	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, ErrNotReplayable
		}

		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		r.Body = body
	}

	return r, nil
}

func (c *Client) isRefreshURL(u *url.URL) bool {
	return u.Host == c.refreshURL.Host && strings.TrimRight(u.Path, "/") == strings.TrimRight(c.refreshURL.Path, "/")
}

// refresh вызывается координатором не более одного раза на цикл.
func (c *Client) refresh(ctx context.Context) error {
	const op = "authclient.refresh"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.refreshURL.String(), nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	c.log.Debug("auth_refresh_started")

	resp, err := c.send(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer drain(resp)

	u, err := decodeUser(resp)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrSessionExpired, err)
	}

	c.setUser(u)
	c.log.Debug("auth_refresh_succeeded")

	return nil
}

// discard сбрасывает состояние сессии и сообщает об этом через OnSessionExpired.
func (c *Client) discard(reason string, err error) {
	attrs := []any{slog.String("reason", reason)}
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
	}
	c.log.Warn("session_discarded", attrs...)

	c.clearSession()

	if c.opts.OnSessionExpired != nil {
		c.opts.OnSessionExpired()
	}
}

func (c *Client) clearSession() {
	c.jar.Reset()
	c.setUser(nil)
}

// CurrentUser — пользователь последнего успешного входа/refresh.
func (c *Client) CurrentUser() *User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

func (c *Client) setUser(u *User) {
	c.mu.Lock()
	c.user = u
	c.mu.Unlock()
}

// RegisterInput — данные регистрации.
type RegisterInput struct {
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Avatar   *Avatar `json:"avatar,omitempty"`
}

// Login выполняет вход; cookie сессии сохраняются в jar клиента.
func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	const op = "authclient.Login"

	u, err := c.session(ctx, "/api/v1/login", map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

// Register регистрирует пользователя и сразу открывает сессию.
func (c *Client) Register(ctx context.Context, in RegisterInput) (*User, error) {
	const op = "authclient.Register"

	u, err := c.session(ctx, "/api/v1/register", in)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

// Refresh явно обновляет сессию через тот же координатор, что и Do:
// если refresh уже в полёте, вызов дожидается его результата.
// Неуспешный цикл сбрасывает сессию.
func (c *Client) Refresh(ctx context.Context) (*User, error) {
	const op = "authclient.Refresh"

	if err := c.coord.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	u := c.CurrentUser()
	if u == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrSessionExpired)
	}

	return u, nil
}

// Logout завершает сессию на сервере и локально. Локальное состояние
// сбрасывается даже при ошибке сети.
func (c *Client) Logout(ctx context.Context) error {
	const op = "authclient.Logout"

	defer func() {
		c.clearSession()
		c.coord.Reset()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.JoinPath("/api/v1/logout").String(), nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	resp, err := c.send(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %w", op, decodeAPIError(resp))
	}

	return nil
}

// Me возвращает текущего пользователя с сервера.
func (c *Client) Me(ctx context.Context) (*User, error) {
	const op = "authclient.Me"

	u, err := c.getUser(ctx, "/api/v1/me")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

// User возвращает пользователя по ID (только для роли admin).
func (c *Client) User(ctx context.Context, id uuid.UUID) (*User, error) {
	const op = "authclient.User"

	u, err := c.getUser(ctx, "/api/v1/admin/users/"+id.String())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

func (c *Client) getUser(ctx context.Context, path string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.JoinPath(path).String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	return decodeUser(resp)
}

// session — POST с JSON-телом, в ответ на который сервер выпускает сессию.
func (c *Client) session(ctx context.Context, path string, body any) (*User, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.JoinPath(path).String(), bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	u, err := decodeUser(resp)
	if err != nil {
		return nil, err
	}

	c.setUser(u)
	return u, nil
}

type userEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	User    *User  `json:"user"`
}

// decodeUser разбирает {success,user}; не-2xx превращается в *APIError.
func decodeUser(resp *http.Response) (*User, error) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeAPIError(resp)
	}

	var env userEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if env.User == nil {
		return nil, errors.New("response has no user")
	}

	return env.User, nil
}

func decodeAPIError(resp *http.Response) *APIError {
	e := &APIError{Status: resp.StatusCode}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(e); err != nil || e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}

	return e
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
}
