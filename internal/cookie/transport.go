// cookie отвечает за доставку пары токенов через HttpOnly cookie.
//
// Атрибуты secure/sameSite выводятся из режима развёртывания (Mode),
// который вычисляется один раз при старте и передаётся в Transport явно.
// Очистка cookie повторяет атрибуты выпуска, иначе браузер её проигнорирует.
package cookie

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pribylovaa/go-shop-auth/internal/config"
	"github.com/pribylovaa/go-shop-auth/internal/models"
	"github.com/pribylovaa/go-shop-auth/internal/token"
)

// Имена cookie — часть внешнего контракта.
const (
	AccessCookieName  = "accessToken"
	RefreshCookieName = "refreshToken"
)

// Mode — режим развёртывания.
type Mode int

const (
	// ModeDev — same-site/локальная разработка: Secure=false, SameSite=Lax.
	ModeDev Mode = iota + 1
	// ModeCrossSite — фронтенд на другом домене: Secure=true, SameSite=None.
	ModeCrossSite
)

func (m Mode) String() string {
	switch m {
	case ModeDev:
		return config.CookieModeDev
	case ModeCrossSite:
		return config.CookieModeCrossSite
	default:
		return "unknown"
	}
}

// ParseMode разбирает режим из конфигурации.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case config.CookieModeDev:
		return ModeDev, nil
	case config.CookieModeCrossSite:
		return ModeCrossSite, nil
	default:
		return 0, fmt.Errorf("cookie.ParseMode: unknown mode %q", s)
	}
}

// Attributes — атрибуты одной cookie.
type Attributes struct {
	HTTPOnly bool
	Secure   bool
	SameSite http.SameSite
	Path     string
	MaxAge   time.Duration
}

// Transport выставляет, очищает и читает cookie сессии.
type Transport struct {
	mode        Mode
	accessPath  string
	refreshPath string
	domain      string
	accessTTL   time.Duration
	refreshTTL  time.Duration
}

// New создаёт Transport. Пустые пути заменяются на "/".
func New(mode Mode, cfg config.CookieConfig, accessTTL, refreshTTL time.Duration) (*Transport, error) {
	const op = "cookie.transport.New"

	if mode != ModeDev && mode != ModeCrossSite {
		return nil, fmt.Errorf("%s: unknown mode %d", op, mode)
	}

	t := &Transport{
		mode:        mode,
		accessPath:  cfg.AccessPath,
		refreshPath: cfg.RefreshPath,
		domain:      cfg.Domain,
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
	}

	if t.accessPath == "" {
		t.accessPath = "/"
	}
	if t.refreshPath == "" {
		t.refreshPath = "/"
	}

	return t, nil
}

// Mode возвращает режим, с которым создан Transport.
func (t *Transport) Mode() Mode { return t.mode }

// AttributesFor возвращает атрибуты cookie заданного вида.
// Комбинация Secure=false + SameSite=None не выдаётся ни в одном режиме.
func (t *Transport) AttributesFor(kind token.Kind) Attributes {
	a := Attributes{HTTPOnly: true}

	switch t.mode {
	case ModeCrossSite:
		a.Secure = true
		a.SameSite = http.SameSiteNoneMode
	default:
		a.Secure = false
		a.SameSite = http.SameSiteLaxMode
	}

	if kind == token.KindRefresh {
		a.Path = t.refreshPath
		a.MaxAge = t.refreshTTL
	} else {
		a.Path = t.accessPath
		a.MaxAge = t.accessTTL
	}

	return a
}

// Attach выставляет обе cookie сессии.
func (t *Transport) Attach(w http.ResponseWriter, pair models.TokenPair) {
	http.SetCookie(w, t.build(AccessCookieName, pair.AccessToken, token.KindAccess, pair.AccessExpiresAt))
	http.SetCookie(w, t.build(RefreshCookieName, pair.RefreshToken, token.KindRefresh, pair.RefreshExpiresAt))
}

// Clear перезаписывает обе cookie пустым значением с истёкшим сроком.
func (t *Transport) Clear(w http.ResponseWriter) {
	t.expire(w, AccessCookieName, token.KindAccess)
	t.expire(w, RefreshCookieName, token.KindRefresh)
}

// Read достаёт значение cookie нужного вида. Пустое значение считается отсутствием.
func (t *Transport) Read(r *http.Request, kind token.Kind) (string, bool) {
	name := AccessCookieName
	if kind == token.KindRefresh {
		name = RefreshCookieName
	}

	c, err := r.Cookie(name)
	if err != nil {
		return "", false
	}

	v := strings.TrimSpace(c.Value)
	if v == "" {
		return "", false
	}

	return v, true
}

func (t *Transport) build(name, value string, kind token.Kind, exp time.Time) *http.Cookie {
	a := t.AttributesFor(kind)

	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     a.Path,
		Domain:   t.domain,
		MaxAge:   int(a.MaxAge / time.Second),
		HttpOnly: a.HTTPOnly,
		Secure:   a.Secure,
		SameSite: a.SameSite,
	}

	if !exp.IsZero() {
		c.Expires = exp.UTC()
	}

	return c
}

func (t *Transport) expire(w http.ResponseWriter, name string, kind token.Kind) {
	a := t.AttributesFor(kind)

	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     a.Path,
		Domain:   t.domain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: a.HTTPOnly,
		Secure:   a.Secure,
		SameSite: a.SameSite,
	})
}
