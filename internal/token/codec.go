// token выпускает и проверяет подписанные JWT двух видов: access и refresh.
//
// Каждый вид подписывается своим секретом (HS256) и несёт claim "typ",
// поэтому токен одного вида никогда не проходит проверку как токен другого.
// Codec не имеет побочных эффектов и безопасен для конкурентного использования.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pribylovaa/go-shop-auth/internal/config"
)

var (
	// ErrInvalidToken — подпись не совпала, формат битый, вид токена не тот,
	// либо не прошли iss/aud. Повторная попытка через refresh не допускается.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired — подпись верна, но срок действия истёк.
	// Для access-токена это повод попробовать refresh.
	ErrTokenExpired = errors.New("token expired")
)

// Kind — вид токена.
type Kind int

const (
	KindAccess Kind = iota + 1
	KindRefresh
)

func (k Kind) String() string {
	switch k {
	case KindAccess:
		return "access"
	case KindRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// Claims — полезная нагрузка токена.
type Claims struct {
	UserID string `json:"uid"`
	Kind   string `json:"typ"`
	jwt.RegisteredClaims
}

// Subject — результат успешной проверки токена.
type Subject struct {
	UserID    uuid.UUID
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Option настраивает Codec.
type Option func(*Codec)

// WithClock подменяет источник текущего времени (для выпуска и проверки).
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

type keyset struct {
	secret []byte
	ttl    time.Duration
}

// Codec — выпуск/проверка токенов.
type Codec struct {
	access   keyset
	refresh  keyset
	issuer   string
	audience []string
	now      func() time.Time
}

// New создаёт Codec. Одинаковые секреты для access и refresh запрещены.
func New(cfg config.AuthConfig, opts ...Option) (*Codec, error) {
	const op = "token.codec.New"

	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("%s: empty secret", op)
	}

	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, fmt.Errorf("%s: access and refresh secrets must differ", op)
	}

	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 {
		return nil, fmt.Errorf("%s: ttl must be positive", op)
	}

	c := &Codec{
		access:   keyset{secret: []byte(cfg.AccessSecret), ttl: cfg.AccessTokenTTL},
		refresh:  keyset{secret: []byte(cfg.RefreshSecret), ttl: cfg.RefreshTokenTTL},
		issuer:   cfg.Issuer,
		audience: append([]string(nil), cfg.Audience...),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// AccessTTL возвращает время жизни access-токена.
func (c *Codec) AccessTTL() time.Duration { return c.access.ttl }

// RefreshTTL возвращает время жизни refresh-токена.
func (c *Codec) RefreshTTL() time.Duration { return c.refresh.ttl }

// IssueAccess выпускает access-токен для пользователя.
func (c *Codec) IssueAccess(userID uuid.UUID) (string, time.Time, error) {
	return c.issue(userID, KindAccess)
}

// IssueRefresh выпускает refresh-токен для пользователя.
func (c *Codec) IssueRefresh(userID uuid.UUID) (string, time.Time, error) {
	return c.issue(userID, KindRefresh)
}

func (c *Codec) issue(userID uuid.UUID, kind Kind) (string, time.Time, error) {
	const op = "token.codec.issue"

	ks, err := c.keys(kind)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	now := c.now().UTC().Truncate(time.Second)
	exp := now.Add(ks.ttl)

	claims := Claims{
		UserID: userID.String(),
		Kind:   kind.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID.String(),
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings(c.audience),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ks.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	return signed, exp, nil
}

// Verify проверяет токен заданного вида.
// Возвращает ErrTokenExpired только для токена с верной подписью и истёкшим сроком;
// всё остальное — ErrInvalidToken.
func (c *Codec) Verify(tokenStr string, kind Kind) (*Subject, error) {
	const op = "token.codec.Verify"

	ks, err := c.keys(kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	if len(c.audience) > 0 {
		opts = append(opts, jwt.WithAudience(c.audience...))
	}

	var claims Claims
	tok, err := jwt.ParseWithClaims(tokenStr, &claims,
		func(t *jwt.Token) (interface{}, error) {
			return ks.secret, nil
		},
		opts...,
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	if !tok.Valid || claims.Kind != kind.String() {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	uid, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	sub := &Subject{UserID: uid}
	if claims.IssuedAt != nil {
		sub.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		sub.ExpiresAt = claims.ExpiresAt.Time
	}

	return sub, nil
}

func (c *Codec) keys(kind Kind) (keyset, error) {
	switch kind {
	case KindAccess:
		return c.access, nil
	case KindRefresh:
		return c.refresh, nil
	default:
		return keyset{}, fmt.Errorf("unknown token kind %d", kind)
	}
}
