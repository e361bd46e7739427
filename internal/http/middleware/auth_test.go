package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jmehdipour/data-moodboard/internal/model"
	"github.com/jmehdipour/data-moodboard/internal/repository"
	"github.com/jmehdipour/data-moodboard/internal/util"
	echo "github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

type memKeys struct {
	repository.APIKeysRepository
	mu      sync.Mutex
	byHash  map[string]*model.APIKey
	touched chan string
}

func (m *memKeys) GetByHash(_ context.Context, hash string) (*model.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.byHash[hash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return k, nil
}

func (m *memKeys) TouchLastUsed(_ context.Context, id string) error {
	m.touched <- id
	return nil
}

func sign(t *testing.T, claims jwt.MapClaims, method jwt.SigningMethod, key any) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func run(mw echo.MiddlewareFunc, setup func(*http.Request)) (*httptest.ResponseRecorder, echo.Context) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	setup(req)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	_ = mw(func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })(c)
	return rec, c
}

func TestAuthAcceptsSessionToken(t *testing.T) {
	tok := sign(t, jwt.MapClaims{
		"sub":   "user-1",
		"email": "a@b.c",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}, jwt.SigningMethodHS256, []byte(secret))

	rec, c := run(Auth(AuthConfig{JWTSecret: secret}), func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+tok)
	})
	require.Equal(t, http.StatusNoContent, rec.Code)
	id, ok := UserIDFromCtx(c)
	assert.True(t, ok)
	assert.Equal(t, "user-1", id)
	assert.Equal(t, "a@b.c", EmailFromCtx(c))
	assert.Equal(t, AuthJWT, AuthMethodFromCtx(c))
}

func TestAuthRejectsBadTokens(t *testing.T) {
	cases := map[string]string{
		"wrong secret": sign(t, jwt.MapClaims{"sub": "u", "exp": time.Now().Add(time.Hour).Unix()},
			jwt.SigningMethodHS256, []byte("other")),
		"expired": sign(t, jwt.MapClaims{"sub": "u", "exp": time.Now().Add(-time.Hour).Unix()},
			jwt.SigningMethodHS256, []byte(secret)),
		"no exp":  sign(t, jwt.MapClaims{"sub": "u"}, jwt.SigningMethodHS256, []byte(secret)),
		"no sub":  sign(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}, jwt.SigningMethodHS256, []byte(secret)),
		"hs512":   sign(t, jwt.MapClaims{"sub": "u", "exp": time.Now().Add(time.Hour).Unix()}, jwt.SigningMethodHS512, []byte(secret)),
		"garbage": "not.a.jwt",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			rec, _ := run(Auth(AuthConfig{JWTSecret: secret}), func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+tok)
			})
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"error":"invalid credentials"}`, rec.Body.String())
		})
	}
}

func TestAuthChecksIssuerWhenSet(t *testing.T) {
	tok := sign(t, jwt.MapClaims{"sub": "u", "iss": "someone-else", "exp": time.Now().Add(time.Hour).Unix()},
		jwt.SigningMethodHS256, []byte(secret))
	rec, _ := run(Auth(AuthConfig{JWTSecret: secret, JWTIssuer: "https://auth.moodboard.test"}), func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+tok)
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMissingCredentials(t *testing.T) {
	rec, _ := run(Auth(AuthConfig{JWTSecret: secret}), func(*http.Request) {})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"missing credentials"}`, rec.Body.String())
}

func TestAuthAPIKey(t *testing.T) {
	plain, hash, prefix, err := util.NewAPIKey()
	require.NoError(t, err)
	revokedPlain, revokedHash, _, err := util.NewAPIKey()
	require.NoError(t, err)

	now := time.Now()
	keys := &memKeys{
		byHash: map[string]*model.APIKey{
			hash:        {ID: "key-1", UserID: "user-7", KeyHash: hash, Prefix: prefix},
			revokedHash: {ID: "key-2", UserID: "user-7", KeyHash: revokedHash, RevokedAt: &now},
		},
		touched: make(chan string, 1),
	}
	mw := Auth(AuthConfig{JWTSecret: secret, APIKeys: keys})

	rec, c := run(mw, func(r *http.Request) { r.Header.Set("X-API-Key", plain) })
	require.Equal(t, http.StatusNoContent, rec.Code)
	id, _ := UserIDFromCtx(c)
	assert.Equal(t, "user-7", id)
	assert.Equal(t, AuthAPIKey, AuthMethodFromCtx(c))
	select {
	case got := <-keys.touched:
		assert.Equal(t, "key-1", got)
	case <-time.After(time.Second):
		t.Fatal("last_used_at was not touched")
	}

	rec, _ = run(mw, func(r *http.Request) { r.Header.Set("X-API-Key", revokedPlain) })
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = run(mw, func(r *http.Request) { r.Header.Set("X-API-Key", "mb_short") })
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other, _, _, err := util.NewAPIKey()
	require.NoError(t, err)
	rec, _ = run(mw, func(r *http.Request) { r.Header.Set("X-API-Key", other) })
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type stubProfiles struct {
	repository.ProfilesRepository
	p *model.Profile
}

func (s stubProfiles) GetByID(context.Context, string) (*model.Profile, error) {
	if s.p == nil {
		return nil, repository.ErrNotFound
	}
	return s.p, nil
}

func TestAdminOnly(t *testing.T) {
	isAdminEmail := func(e string) bool { return e == "boss@moodboard.test" }
	check := func(profiles repository.ProfilesRepository, email string) int {
		e := echo.New()
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/admin/metrics", nil), rec)
		c.Set(ctxUserID, "user-1")
		c.Set(ctxUserEmail, email)
		_ = AdminOnly(profiles, isAdminEmail)(func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })(c)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, check(stubProfiles{}, "boss@moodboard.test"))
	assert.Equal(t, http.StatusNoContent, check(stubProfiles{p: &model.Profile{ID: "user-1", IsAdmin: true}}, ""))
	assert.Equal(t, http.StatusForbidden, check(stubProfiles{p: &model.Profile{ID: "user-1"}}, "someone@b.c"))
	assert.Equal(t, http.StatusForbidden, check(stubProfiles{}, ""))
}
