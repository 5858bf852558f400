package authclient

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Avatar — ссылка на изображение пользователя.
type Avatar struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id"`
}

// User — публичная проекция пользователя, как её отдаёт сервер.
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Avatar    *Avatar   `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// sessionJar — cookie jar, который можно сбросить целиком при потере сессии.
type sessionJar struct {
	mu  sync.RWMutex
	jar *cookiejar.Jar
}

func newSessionJar() *sessionJar {
	j, _ := cookiejar.New(nil)
	return &sessionJar{jar: j}
}

func (s *sessionJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.jar.SetCookies(u, cookies)
}

func (s *sessionJar) Cookies(u *url.URL) []*http.Cookie {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jar.Cookies(u)
}

// Value возвращает значение cookie name для u.
func (s *sessionJar) Value(u *url.URL, name string) string {
	for _, c := range s.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}

	return ""
}

// Reset выбрасывает все cookie.
func (s *sessionJar) Reset() {
	j, _ := cookiejar.New(nil)

	s.mu.Lock()
	s.jar = j
	s.mu.Unlock()
}

var _ http.CookieJar = (*sessionJar)(nil)
