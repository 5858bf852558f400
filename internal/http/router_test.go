package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/go-shop-auth/internal/config"
	"github.com/pribylovaa/go-shop-auth/internal/cookie"
	"github.com/pribylovaa/go-shop-auth/internal/metrics"
	"github.com/pribylovaa/go-shop-auth/internal/models"
	"github.com/pribylovaa/go-shop-auth/internal/service"
	"github.com/pribylovaa/go-shop-auth/internal/storage/memory"
	"github.com/pribylovaa/go-shop-auth/internal/token"
)

const basePath = "/api/v1"

type testServer struct {
	srv   *httptest.Server
	store *memory.Storage
	codec *token.Codec
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	codec, err := token.New(config.AuthConfig{
		AccessSecret:    "router-access",
		RefreshSecret:   "router-refresh",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		Issuer:          "shop-auth",
		Audience:        []string{"shop-web"},
	})
	require.NoError(t, err)

	tr, err := cookie.New(cookie.ModeDev, config.CookieConfig{}, codec.AccessTTL(), codec.RefreshTTL())
	require.NoError(t, err)

	st := memory.New()
	m := metrics.New(prometheus.NewRegistry())

	h := NewRouter(Deps{
		Service: service.New(st, codec, tr, m),
		Codec:   codec,
		Cookies: tr,
		Metrics: m,
	}, Options{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Timeout:  5 * time.Second,
		BasePath: basePath,
	})

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, store: st, codec: codec}
}

func (s *testServer) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func (s *testServer) do(t *testing.T, c *http.Client, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, s.srv.URL+basePath+path, rdr)
	require.NoError(t, err)
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return resp, out
}

func (s *testServer) addAdmin(t *testing.T, email, password string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	require.NoError(t, s.store.SaveUser(context.Background(), &models.User{
		ID:           uuid.New(),
		Name:         "Admin",
		Email:        email,
		Role:         models.RoleAdmin,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}))
}

func cookieNames(resp *http.Response) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range resp.Cookies() {
		out[c.Name] = c
	}
	return out
}

func register(t *testing.T, s *testServer, c *http.Client, email string) map[string]any {
	t.Helper()
	resp, body := s.do(t, c, http.MethodPost, "/register", map[string]any{
		"name":     "Alice",
		"email":    email,
		"password": "Passw0rd!",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return body
}

func TestRegister_CreatesSession(t *testing.T) {
	s := newTestServer(t)
	c := s.client(t)

	resp, body := s.do(t, c, http.MethodPost, "/register", map[string]any{
		"name":     "  Alice ",
		"email":    " Alice@Example.com ",
		"password": "Passw0rd!",
		"avatar":   map[string]string{"url": "https://cdn/a.png", "public_id": "avatars/a"},
	})

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, true, body["success"])
	require.Equal(t, "Registration successful", body["message"])

	user := body["user"].(map[string]any)
	require.Equal(t, "Alice", user["name"])
	require.Equal(t, "alice@example.com", user["email"])
	require.Equal(t, "user", user["role"])
	require.Equal(t, "avatars/a", user["avatar"].(map[string]any)["public_id"])

	require.Len(t, resp.Header.Values("Set-Cookie"), 2)
}

func TestRegister_Errors(t *testing.T) {
	s := newTestServer(t)
	c := s.client(t)
	register(t, s, c, "taken@example.com")

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"duplicate", map[string]any{"name": "B", "email": "TAKEN@example.com", "password": "Passw0rd!"}, http.StatusBadRequest, "email_taken"},
		{"missing fields", map[string]any{"email": "x@example.com"}, http.StatusBadRequest, "missing_fields"},
		{"weak password", map[string]any{"name": "B", "email": "b@example.com", "password": "password"}, http.StatusBadRequest, "weak_password"},
		{"bad email", map[string]any{"name": "B", "email": "nope", "password": "Passw0rd!"}, http.StatusBadRequest, "invalid_email"},
		{"unknown field", map[string]any{"name": "B", "email": "b@example.com", "password": "Passw0rd!", "role": "admin"}, http.StatusBadRequest, "bad_request"},
		{"broken json", "{", http.StatusBadRequest, "bad_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := s.do(t, s.client(t), http.MethodPost, "/register", tt.body)
			require.Equal(t, tt.status, resp.StatusCode)
			require.Equal(t, tt.code, body["code"])
			require.Equal(t, false, body["success"])
			require.Empty(t, resp.Cookies())
		})
	}
}

func TestLogin_SetsHttpOnlyCookies_AndSanitizesUser(t *testing.T) {
	s := newTestServer(t)
	register(t, s, s.client(t), "bob@example.com")

	resp, body := s.do(t, s.client(t), http.MethodPost, "/login", map[string]any{
		"email":    "bob@example.com",
		"password": "Passw0rd!",
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Login successful", body["message"])

	user := body["user"].(map[string]any)
	require.Equal(t, "user", user["role"])
	require.NotContains(t, user, "passwordHash")
	require.NotContains(t, user, "PasswordHash")
	require.NotContains(t, user, "password")

	require.Len(t, resp.Header.Values("Set-Cookie"), 2)
	cs := cookieNames(resp)
	for _, name := range []string{cookie.AccessCookieName, cookie.RefreshCookieName} {
		require.NotNil(t, cs[name], name)
		require.True(t, cs[name].HttpOnly, name)
		require.Equal(t, http.SameSiteLaxMode, cs[name].SameSite, name)
	}
}

func TestLogin_Errors(t *testing.T) {
	s := newTestServer(t)
	register(t, s, s.client(t), "carol@example.com")

	resp, body := s.do(t, s.client(t), http.MethodPost, "/login", map[string]any{
		"email": "carol@example.com", "password": "Wr0ngPass!",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "invalid_credentials", body["code"])

	resp, body = s.do(t, s.client(t), http.MethodPost, "/login", map[string]any{
		"email": "nobody@example.com", "password": "Passw0rd!",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "invalid_credentials", body["code"])

	resp, body = s.do(t, s.client(t), http.MethodPost, "/login", map[string]any{"email": "carol@example.com"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "missing_fields", body["code"])
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t)
	c := s.client(t)
	register(t, s, c, "dave@example.com")

	resp, body := s.do(t, c, http.MethodGet, "/me", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "dave@example.com", body["user"].(map[string]any)["email"])

	resp, body = s.do(t, c, http.MethodPost, "/refresh-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Token refreshed successfully", body["message"])
	require.Len(t, resp.Header.Values("Set-Cookie"), 2)

	resp, body = s.do(t, c, http.MethodPost, "/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["success"])
	for _, ck := range resp.Cookies() {
		require.Empty(t, ck.Value)
		require.Equal(t, -1, ck.MaxAge)
	}

	resp, body = s.do(t, c, http.MethodGet, "/me", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "not_authenticated", body["code"])
}

func TestRefreshToken_WithoutCookie(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, s.client(t), http.MethodPost, "/refresh-token", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "session_expired", body["code"])
}

func TestRefreshToken_OnlyPost(t *testing.T) {
	s := newTestServer(t)

	resp, err := s.client(t).Get(s.srv.URL + basePath + "/refresh-token")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestAdminGetUser(t *testing.T) {
	s := newTestServer(t)

	userClient := s.client(t)
	body := register(t, s, userClient, "erin@example.com")
	erinID := body["user"].(map[string]any)["id"].(string)

	// обычный пользователь получает 403 с ролью в сообщении
	resp, out := s.do(t, userClient, http.MethodGet, "/admin/users/"+erinID, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "Role (user) is not allowed to access this resource", out["message"])

	s.addAdmin(t, "root@example.com", "Adm1nPass!")
	admin := s.client(t)
	resp, _ = s.do(t, admin, http.MethodPost, "/login", map[string]any{
		"email": "root@example.com", "password": "Adm1nPass!",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, out = s.do(t, admin, http.MethodGet, "/admin/users/"+erinID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "erin@example.com", out["user"].(map[string]any)["email"])

	resp, out = s.do(t, admin, http.MethodGet, "/admin/users/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "user_not_found", out["code"])

	resp, out = s.do(t, admin, http.MethodGet, "/admin/users/not-a-uuid", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "bad_request", out["code"])

	resp, _ = s.do(t, s.client(t), http.MethodGet, "/admin/users/"+erinID, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBearerHeader_Authenticates(t *testing.T) {
	s := newTestServer(t)
	body := register(t, s, s.client(t), "frank@example.com")
	id := uuid.MustParse(body["user"].(map[string]any)["id"].(string))

	at, _, err := s.codec.IssueAccess(id)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, s.srv.URL+basePath+"/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+at)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}
