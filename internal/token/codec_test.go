package token

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-shop-auth/internal/config"
)

func testAuthCfg() config.AuthConfig {
	return config.AuthConfig{
		AccessSecret:    "unit-access-secret",
		RefreshSecret:   "unit-refresh-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		Issuer:          "shop-auth",
		Audience:        []string{"shop-web"},
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newCodec(t *testing.T, opts ...Option) *Codec {
	t.Helper()
	c, err := New(testAuthCfg(), opts...)
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	cfg := testAuthCfg()
	cfg.RefreshSecret = cfg.AccessSecret
	_, err := New(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must differ")

	cfg = testAuthCfg()
	cfg.AccessSecret = ""
	_, err = New(cfg)
	require.Error(t, err)

	cfg = testAuthCfg()
	cfg.RefreshTokenTTL = 0
	_, err = New(cfg)
	require.Error(t, err)
}

func TestKind_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "access", KindAccess.String())
	require.Equal(t, "refresh", KindRefresh.String())
	require.Equal(t, "unknown", Kind(0).String())
}

func TestIssueAndVerify_RoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := newCodec(t, WithClock(fixedClock(now)))
	uid := uuid.New()

	at, atExp, err := c.IssueAccess(uid)
	require.NoError(t, err)
	require.Equal(t, now.Add(15*time.Minute), atExp)

	rt, rtExp, err := c.IssueRefresh(uid)
	require.NoError(t, err)
	require.Equal(t, now.Add(7*24*time.Hour), rtExp)

	sub, err := c.Verify(at, KindAccess)
	require.NoError(t, err)
	require.Equal(t, uid, sub.UserID)
	require.True(t, sub.IssuedAt.Equal(now))
	require.True(t, sub.ExpiresAt.Equal(atExp))

	sub, err = c.Verify(rt, KindRefresh)
	require.NoError(t, err)
	require.Equal(t, uid, sub.UserID)
}

func TestVerify_CrossKindRejected(t *testing.T) {
	t.Parallel()

	c := newCodec(t)
	uid := uuid.New()

	at, _, err := c.IssueAccess(uid)
	require.NoError(t, err)
	rt, _, err := c.IssueRefresh(uid)
	require.NoError(t, err)

	_, err = c.Verify(at, KindRefresh)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = c.Verify(rt, KindAccess)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_TypClaimChecked(t *testing.T) {
	t.Parallel()

	// Подпись верным секретом, но typ другого вида.
	c := newCodec(t)
	uid := uuid.New()
	now := time.Now().UTC()

	claims := Claims{
		UserID: uid.String(),
		Kind:   KindRefresh.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "shop-auth",
			Audience:  jwt.ClaimStrings{"shop-web"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(testAuthCfg().AccessSecret))
	require.NoError(t, err)

	_, err = c.Verify(signed, KindAccess)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_ExpiredOneSecondAgo(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := testAuthCfg()

	issuer := newCodec(t, WithClock(fixedClock(now.Add(-cfg.AccessTokenTTL-time.Second))))
	verifier := newCodec(t, WithClock(fixedClock(now)))
	uid := uuid.New()

	at, exp, err := issuer.IssueAccess(uid)
	require.NoError(t, err)
	require.Equal(t, now.Add(-time.Second), exp)

	_, err = verifier.Verify(at, KindAccess)
	require.ErrorIs(t, err, ErrTokenExpired)
	require.NotErrorIs(t, err, ErrInvalidToken)

	rIssuer := newCodec(t, WithClock(fixedClock(now.Add(-cfg.RefreshTokenTTL-time.Second))))
	rt, _, err := rIssuer.IssueRefresh(uid)
	require.NoError(t, err)

	_, err = verifier.Verify(rt, KindRefresh)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerify_TamperedSignature(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := newCodec(t, WithClock(fixedClock(now)))

	at, _, err := c.IssueAccess(uuid.New())
	require.NoError(t, err)

	parts := strings.Split(at, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = c.Verify(tampered, KindAccess)
	require.ErrorIs(t, err, ErrInvalidToken)

	// Подпись проверяется раньше срока: испорченный и истёкший токен — invalid.
	later := newCodec(t, WithClock(fixedClock(now.Add(time.Hour))))
	_, err = later.Verify(tampered, KindAccess)
	require.ErrorIs(t, err, ErrInvalidToken)
	require.NotErrorIs(t, err, ErrTokenExpired)
}

func TestVerify_WrongAlg_WrongIssuer_WrongAudience(t *testing.T) {
	t.Parallel()

	c := newCodec(t)
	secret := []byte(testAuthCfg().AccessSecret)
	uid := uuid.New()
	now := time.Now().UTC()

	base := func() jwt.MapClaims {
		return jwt.MapClaims{
			"uid": uid.String(),
			"typ": "access",
			"iss": "shop-auth",
			"aud": []string{"shop-web"},
			"exp": now.Add(time.Minute).Unix(),
			"iat": now.Unix(),
		}
	}

	sign := func(m jwt.SigningMethod, claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(m, claims).SignedString(secret)
		require.NoError(t, err)
		return s
	}

	t.Run("baseline ok", func(t *testing.T) {
		_, err := c.Verify(sign(jwt.SigningMethodHS256, base()), KindAccess)
		require.NoError(t, err)
	})

	t.Run("wrong alg", func(t *testing.T) {
		_, err := c.Verify(sign(jwt.SigningMethodHS512, base()), KindAccess)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		cl := base()
		cl["iss"] = "evil"
		_, err := c.Verify(sign(jwt.SigningMethodHS256, cl), KindAccess)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong audience", func(t *testing.T) {
		cl := base()
		cl["aud"] = []string{"other"}
		_, err := c.Verify(sign(jwt.SigningMethodHS256, cl), KindAccess)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing exp", func(t *testing.T) {
		cl := base()
		delete(cl, "exp")
		_, err := c.Verify(sign(jwt.SigningMethodHS256, cl), KindAccess)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("bad uid", func(t *testing.T) {
		cl := base()
		cl["uid"] = "not-a-uuid"
		_, err := c.Verify(sign(jwt.SigningMethodHS256, cl), KindAccess)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := c.Verify("not.a.jwt", KindAccess)
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestIssue_UniqueIDs(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := newCodec(t, WithClock(fixedClock(now)))
	uid := uuid.New()

	const n = 16
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, n)
		wg   sync.WaitGroup
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, _, err := c.IssueAccess(uid)
			require.NoError(t, err)
			mu.Lock()
			seen[tok] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	// Одинаковые uid и iat, но разный jti — токены не совпадают.
	require.Len(t, seen, n)
}
