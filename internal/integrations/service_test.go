package integrations

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jmehdipour/data-moodboard/internal/config"
	"github.com/jmehdipour/data-moodboard/internal/model"
	"github.com/jmehdipour/data-moodboard/internal/repository"
	"github.com/jmehdipour/data-moodboard/internal/secret"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStates struct {
	mu   sync.Mutex
	rows map[string]model.OAuthState
}

func (m *memStates) Insert(_ context.Context, st model.OAuthState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[st.State] = st
	return nil
}

func (m *memStates) Consume(_ context.Context, state string) (*model.OAuthState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.rows[state]
	if !ok {
		return nil, repository.ErrNotFound
	}
	delete(m.rows, state)
	return &st, nil
}

func (m *memStates) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, st := range m.rows {
		if st.ExpiresAt.Before(now) {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}

type memConns struct {
	saved   []model.DataConnection
	creds   map[string]model.IntegrationCredential
	status  map[string]model.ConnectionStatus
	updates int
}

func newMemConns() *memConns {
	return &memConns{creds: map[string]model.IntegrationCredential{}, status: map[string]model.ConnectionStatus{}}
}

func (m *memConns) Save(_ context.Context, conn model.DataConnection, cred model.IntegrationCredential) (string, error) {
	m.saved = append(m.saved, conn)
	cred.ConnectionID = conn.ID
	m.creds[conn.ID] = cred
	return conn.ID, nil
}

func (m *memConns) ListByUser(context.Context, string) ([]model.DataConnection, error) {
	return m.saved, nil
}

func (m *memConns) Get(_ context.Context, _ string, id string) (*model.DataConnection, error) {
	for _, c := range m.saved {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memConns) Delete(context.Context, string, string) error { return nil }

func (m *memConns) SetStatus(_ context.Context, id string, status model.ConnectionStatus) error {
	m.status[id] = status
	return nil
}

func (m *memConns) GetCredential(_ context.Context, id string) (*model.IntegrationCredential, error) {
	c, ok := m.creds[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (m *memConns) UpdateCredential(_ context.Context, cred model.IntegrationCredential) error {
	m.updates++
	m.creds[cred.ConnectionID] = cred
	return nil
}

type fixture struct {
	svc    *Service
	states *memStates
	conns  *memConns
	box    *secret.Box
	form   url.Values
	status int
	body   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		states: &memStates{rows: map[string]model.OAuthState{}},
		conns:  newMemConns(),
		status: http.StatusOK,
		body:   `{"access_token":"at-1","refresh_token":"rt-1","token_type":"Bearer","expires_in":3600,"scope":"s1"}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		f.form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(f.body))
	}))
	t.Cleanup(srv.Close)

	box, err := secret.NewBox("test passphrase")
	require.NoError(t, err)
	f.box = box

	reg := NewRegistry(config.OAuthConfig{Providers: map[string]config.OAuthClientConfig{
		"google_sheets": {ClientID: "gid", ClientSecret: "gsecret"},
		"shopify":       {ClientID: "sid", ClientSecret: "ssecret"},
		"stripe":        {ClientID: "ca_1", ClientSecret: "sk_test"},
	}}, "https://api.example.com/")
	for _, s := range reg.specs {
		s.tokenURL = srv.URL + "/token"
	}
	f.svc = NewService(reg, f.states, f.conns, box, 10*time.Minute)
	return f
}

func (f *fixture) begin(t *testing.T, p model.Provider, account string) string {
	t.Helper()
	raw, err := f.svc.Begin(context.Background(), "user-1", p, account)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Query().Get("state")
}

func TestBeginBuildsAuthorizationURL(t *testing.T) {
	f := newFixture(t)

	raw, err := f.svc.Begin(context.Background(), "user-1", model.ProviderGoogleSheets, "")
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "accounts.google.com", u.Host)
	assert.Equal(t, "gid", q.Get("client_id"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "https://api.example.com/api/integrations/google_sheets/callback", q.Get("redirect_uri"))

	st, ok := f.states.rows[q.Get("state")]
	require.True(t, ok)
	assert.Equal(t, "user-1", st.UserID)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), st.ExpiresAt, 5*time.Second)
}

func TestBeginValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Begin(ctx, "u", model.ProviderShopify, "evil.com")
	assert.ErrorIs(t, err, ErrInvalidShop)

	_, err = f.svc.Begin(ctx, "u", model.ProviderGoogleAds, "")
	assert.ErrorIs(t, err, ErrProviderNotConfigured)

	_, err = f.svc.Begin(ctx, "u", model.Provider("myspace"), "")
	assert.ErrorIs(t, err, ErrUnknownProvider)

	raw, err := f.svc.Begin(ctx, "u", model.ProviderShopify, "Acme.myshopify.com")
	require.NoError(t, err)
	assert.Contains(t, raw, "https://acme.myshopify.com/admin/oauth/authorize")
	assert.Equal(t, "acme.myshopify.com", f.states.rows[mustState(t, raw)].Account)
}

func mustState(t *testing.T, raw string) string {
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Query().Get("state")
}

func TestCompleteStoresEncryptedTokens(t *testing.T) {
	f := newFixture(t)
	state := f.begin(t, model.ProviderGoogleSheets, "")

	conn, err := f.svc.Complete(context.Background(), model.ProviderGoogleSheets, CallbackParams{State: state, Code: "code-1"})
	require.NoError(t, err)
	assert.Equal(t, "user-1", conn.UserID)
	assert.Equal(t, "Google Sheets", conn.Label)
	assert.Equal(t, "code-1", f.form.Get("code"))
	assert.Equal(t, "authorization_code", f.form.Get("grant_type"))

	cred := f.conns.creds[conn.ID]
	assert.NotEqual(t, "at-1", cred.AccessToken)
	plain, err := f.box.Open(cred.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "at-1", plain)
	assert.Equal(t, "s1", cred.Scope)
	require.NotNil(t, cred.ExpiresAt)

	// single use
	_, err = f.svc.Complete(context.Background(), model.ProviderGoogleSheets, CallbackParams{State: state, Code: "code-1"})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCompleteRejectsBadStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Complete(ctx, model.ProviderGoogleSheets, CallbackParams{State: "nope", Code: "c"})
	assert.ErrorIs(t, err, ErrInvalidState)

	state := f.begin(t, model.ProviderGoogleSheets, "")
	_, err = f.svc.Complete(ctx, model.ProviderStripe, CallbackParams{State: state, Code: "c"})
	assert.ErrorIs(t, err, ErrProviderMismatch)

	state = f.begin(t, model.ProviderGoogleSheets, "")
	f.svc.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	_, err = f.svc.Complete(ctx, model.ProviderGoogleSheets, CallbackParams{State: state, Code: "c"})
	assert.ErrorIs(t, err, ErrStateExpired)
	f.svc.now = time.Now

	state = f.begin(t, model.ProviderGoogleSheets, "")
	_, err = f.svc.Complete(ctx, model.ProviderGoogleSheets, CallbackParams{State: state, Error: "access_denied"})
	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.Equal(t, "access_denied", ErrorCode(err))

	state = f.begin(t, model.ProviderGoogleSheets, "")
	f.status, f.body = http.StatusBadRequest, `{"error":"invalid_grant"}`
	_, err = f.svc.Complete(ctx, model.ProviderGoogleSheets, CallbackParams{State: state, Code: "c"})
	assert.ErrorIs(t, err, ErrExchangeFailed)
	assert.Empty(t, f.conns.saved)
}

func TestCompleteStripeUsesConnectedAccount(t *testing.T) {
	f := newFixture(t)
	f.body = `{"access_token":"sk_acct","refresh_token":"rt","token_type":"bearer","scope":"read_only","stripe_user_id":"acct_123"}`
	state := f.begin(t, model.ProviderStripe, "")

	conn, err := f.svc.Complete(context.Background(), model.ProviderStripe, CallbackParams{State: state, Code: "ac_1"})
	require.NoError(t, err)
	assert.Equal(t, "acct_123", conn.AccountID)
	assert.Nil(t, f.conns.creds[conn.ID].ExpiresAt)
}

func googleTokenBody(t *testing.T, email string) string {
	t.Helper()
	idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "1098",
		"email": email,
	}).SignedString([]byte("google-signs-this"))
	require.NoError(t, err)
	return `{"access_token":"at","refresh_token":"rt","token_type":"Bearer","expires_in":3600,"id_token":"` + idToken + `"}`
}

func TestCompleteGoogleKeysConnectionByAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, email := range []string{"Ann@Example.com", "ann.work@example.com"} {
		f.body = googleTokenBody(t, email)
		state := f.begin(t, model.ProviderGoogleSheets, "")
		_, err := f.svc.Complete(ctx, model.ProviderGoogleSheets, CallbackParams{State: state, Code: "code"})
		require.NoError(t, err)
	}

	require.Len(t, f.conns.saved, 2)
	assert.Equal(t, "ann@example.com", f.conns.saved[0].AccountID)
	assert.Equal(t, "Google Sheets (ann@example.com)", f.conns.saved[0].Label)
	assert.Equal(t, "ann.work@example.com", f.conns.saved[1].AccountID)
	assert.NotEqual(t, f.conns.saved[0].AccountID, f.conns.saved[1].AccountID)
}

func signShopify(q url.Values, secret string) {
	q.Del("hmac")
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(q.Encode()))
	q.Set("hmac", hex.EncodeToString(mac.Sum(nil)))
}

func TestCompleteShopifyVerifiesHMAC(t *testing.T) {
	f := newFixture(t)
	f.body = `{"access_token":"shpat_1","scope":"read_orders"}`
	state := f.begin(t, model.ProviderShopify, "acme.myshopify.com")

	q := url.Values{"code": {"c"}, "shop": {"acme.myshopify.com"}, "state": {state}, "timestamp": {"1700000000"}}
	signShopify(q, "ssecret")

	conn, err := f.svc.Complete(context.Background(), model.ProviderShopify, CallbackParams{
		State: state, Code: "c", Shop: "acme.myshopify.com", Raw: q,
	})
	require.NoError(t, err)
	assert.Equal(t, "acme.myshopify.com", conn.AccountID)

	state = f.begin(t, model.ProviderShopify, "acme.myshopify.com")
	q = url.Values{"code": {"c"}, "shop": {"acme.myshopify.com"}, "state": {state}}
	signShopify(q, "wrong")
	_, err = f.svc.Complete(context.Background(), model.ProviderShopify, CallbackParams{
		State: state, Code: "c", Shop: "acme.myshopify.com", Raw: q,
	})
	assert.ErrorIs(t, err, ErrBadSignature)
}

func seedCredential(t *testing.T, f *fixture, id string, expiresAt time.Time, refresh string) model.DataConnection {
	t.Helper()
	access, err := f.box.Seal("old-access")
	require.NoError(t, err)
	rt, err := f.box.Seal(refresh)
	require.NoError(t, err)
	f.conns.creds[id] = model.IntegrationCredential{
		ConnectionID: id, AccessToken: access, RefreshToken: rt, TokenType: "Bearer", ExpiresAt: &expiresAt,
	}
	return model.DataConnection{ID: id, Provider: model.ProviderGoogleSheets}
}

func TestTokenReturnsValidTokenWithoutRefresh(t *testing.T) {
	f := newFixture(t)
	conn := seedCredential(t, f, "c1", time.Now().Add(time.Hour), "rt")

	tok, err := f.svc.Token(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, "old-access", tok.AccessToken)
	assert.Nil(t, f.form)
}

func TestTokenRefreshesAndPersists(t *testing.T) {
	f := newFixture(t)
	f.body = `{"access_token":"new-access","token_type":"Bearer","expires_in":3600}`
	conn := seedCredential(t, f, "c1", time.Now().Add(-time.Minute), "rt-keep")

	tok, err := f.svc.Token(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, "new-access", tok.AccessToken)
	assert.Equal(t, "refresh_token", f.form.Get("grant_type"))
	assert.Equal(t, "rt-keep", f.form.Get("refresh_token"))

	assert.Equal(t, 1, f.conns.updates)
	stored := f.conns.creds["c1"]
	rt, err := f.box.Open(stored.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "rt-keep", rt)
}

func TestTokenRefreshFailureExpiresConnection(t *testing.T) {
	f := newFixture(t)
	f.status, f.body = http.StatusBadRequest, `{"error":"invalid_grant"}`
	conn := seedCredential(t, f, "c1", time.Now().Add(-time.Minute), "rt")

	_, err := f.svc.Token(context.Background(), conn)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Equal(t, model.ConnectionExpired, f.conns.status["c1"])

	conn = seedCredential(t, f, "c2", time.Now().Add(-time.Minute), "")
	_, err = f.svc.Token(context.Background(), conn)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Equal(t, model.ConnectionExpired, f.conns.status["c2"])
}

func TestPurgeExpiredStates(t *testing.T) {
	f := newFixture(t)
	f.states.rows["old"] = model.OAuthState{State: "old", ExpiresAt: time.Now().Add(-time.Hour)}
	f.begin(t, model.ProviderGoogleSheets, "")

	n, err := f.svc.PurgeExpiredStates(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Len(t, f.states.rows, 1)
}
