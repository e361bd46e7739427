package integrations

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jmehdipour/data-moodboard/internal/logger"
	"github.com/jmehdipour/data-moodboard/internal/metrics"
	"github.com/jmehdipour/data-moodboard/internal/model"
	"github.com/jmehdipour/data-moodboard/internal/repository"
	"github.com/jmehdipour/data-moodboard/internal/secret"
	"github.com/jmehdipour/data-moodboard/internal/util"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var (
	ErrInvalidState     = errors.New("invalid state")
	ErrStateExpired     = errors.New("state expired")
	ErrProviderMismatch = errors.New("state was issued for another provider")
	ErrAccessDenied     = errors.New("authorization denied")
	ErrMissingCode      = errors.New("authorization code is missing")
	ErrBadSignature     = errors.New("callback signature mismatch")
	ErrExchangeFailed   = errors.New("token exchange failed")
	ErrTokenExpired     = errors.New("connection expired, reconnect required")
)

// ErrorCode maps a flow error to the code put on the frontend redirect.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnknownProvider):
		return "unknown_provider"
	case errors.Is(err, ErrProviderNotConfigured):
		return "not_configured"
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrProviderMismatch):
		return "invalid_state"
	case errors.Is(err, ErrStateExpired):
		return "state_expired"
	case errors.Is(err, ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrMissingCode), errors.Is(err, ErrBadSignature):
		return "invalid_request"
	case errors.Is(err, ErrExchangeFailed):
		return "exchange_failed"
	default:
		return "server_error"
	}
}

// CallbackParams are the query parameters a provider sends back.
type CallbackParams struct {
	State string
	Code  string
	Error string
	Shop  string
	// Raw is the full query; used for shopify hmac verification.
	Raw url.Values
}

type Service struct {
	registry *Registry
	states   repository.OAuthStatesRepository
	conns    repository.ConnectionsRepository
	box      *secret.Box
	ttl      time.Duration
	client   *http.Client
	now      func() time.Time
}

func NewService(
	registry *Registry,
	states repository.OAuthStatesRepository,
	conns repository.ConnectionsRepository,
	box *secret.Box,
	ttl time.Duration,
) *Service {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Service{
		registry: registry,
		states:   states,
		conns:    conns,
		box:      box,
		ttl:      ttl,
		client:   &http.Client{Timeout: 15 * time.Second},
		now:      time.Now,
	}
}

func (s *Service) oauthCtx(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.client)
}

// Begin stores a single-use state for userID and returns the provider authorization URL.
func (s *Service) Begin(ctx context.Context, userID string, p model.Provider, account string) (string, error) {
	account, err := s.registry.NormalizeAccount(p, account)
	if err != nil {
		return "", err
	}
	// fail before persisting anything when the provider has no client
	if _, err := s.registry.Config(p, account); err != nil {
		return "", err
	}

	state, err := util.RandomToken(24)
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	if err := s.states.Insert(ctx, model.OAuthState{
		State:     state,
		UserID:    userID,
		Provider:  p,
		Account:   account,
		ExpiresAt: s.now().Add(s.ttl),
	}); err != nil {
		return "", fmt.Errorf("store oauth state: %w", err)
	}

	authURL, err := s.registry.AuthCodeURL(p, state, account)
	if err != nil {
		return "", err
	}
	metrics.OAuthTotal.WithLabelValues(string(p), "started").Inc()
	return authURL, nil
}

// Complete validates the callback, exchanges the code and stores the connection.
func (s *Service) Complete(ctx context.Context, p model.Provider, q CallbackParams) (*model.DataConnection, error) {
	conn, err := s.complete(ctx, p, q)
	outcome := "connected"
	if err != nil {
		outcome = ErrorCode(err)
	}
	metrics.OAuthTotal.WithLabelValues(string(p), outcome).Inc()
	return conn, err
}

func (s *Service) complete(ctx context.Context, p model.Provider, q CallbackParams) (*model.DataConnection, error) {
	spec, err := s.registry.spec(p)
	if err != nil {
		return nil, err
	}
	if q.State == "" {
		return nil, ErrInvalidState
	}

	// consumed even when the provider reports an error, so it cannot be replayed
	st, err := s.states.Consume(ctx, q.State)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidState
	}
	if err != nil {
		return nil, fmt.Errorf("consume state: %w", err)
	}
	if st.Provider != p {
		return nil, ErrProviderMismatch
	}
	if s.now().After(st.ExpiresAt) {
		return nil, ErrStateExpired
	}
	if q.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrAccessDenied, q.Error)
	}
	if q.Code == "" {
		return nil, ErrMissingCode
	}

	account := st.Account
	if p == model.ProviderShopify {
		if !strings.EqualFold(q.Shop, st.Account) {
			return nil, ErrInvalidState
		}
		if !verifyShopifyHMAC(q.Raw, s.registry.ClientSecret(p)) {
			return nil, ErrBadSignature
		}
	}

	cfg, err := s.registry.Config(p, account)
	if err != nil {
		return nil, err
	}
	tok, err := cfg.Exchange(s.oauthCtx(ctx), q.Code)
	if err != nil {
		logger.Log.Warn("oauth exchange failed", zap.String("provider", string(p)), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	if p == model.ProviderStripe {
		// connected account id
		if id, ok := tok.Extra("stripe_user_id").(string); ok {
			account = id
		}
	}
	if spec.identity {
		account = idTokenAccount(tok)
	}

	cred, err := s.sealToken(tok)
	if err != nil {
		return nil, err
	}
	conn := model.DataConnection{
		ID:        util.New(),
		UserID:    st.UserID,
		Provider:  p,
		AccountID: account,
		Label:     connectionLabel(s.registry.Label(p), account),
		Status:    model.ConnectionActive,
	}
	id, err := s.conns.Save(ctx, conn, cred)
	if err != nil {
		return nil, fmt.Errorf("save connection: %w", err)
	}
	conn.ID = id

	logger.Log.Info("integration connected",
		zap.String("user_id", st.UserID), zap.String("provider", string(p)), zap.String("connection_id", id))
	return &conn, nil
}

// idTokenAccount returns the email (or subject) of the id_token that came with tok.
// The token was received directly from the provider's token endpoint, so its
// signature is not verified again.
func idTokenAccount(tok *oauth2.Token) string {
	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		logger.Log.Warn("unreadable id_token", zap.Error(err))
		return ""
	}
	if email, _ := claims["email"].(string); email != "" {
		return strings.ToLower(email)
	}
	sub, _ := claims.GetSubject()
	return sub
}

func connectionLabel(name, account string) string {
	if account == "" {
		return name
	}
	return name + " (" + account + ")"
}

func (s *Service) sealToken(tok *oauth2.Token) (model.IntegrationCredential, error) {
	access, err := s.box.Seal(tok.AccessToken)
	if err != nil {
		return model.IntegrationCredential{}, fmt.Errorf("encrypt access token: %w", err)
	}
	refresh, err := s.box.Seal(tok.RefreshToken)
	if err != nil {
		return model.IntegrationCredential{}, fmt.Errorf("encrypt refresh token: %w", err)
	}
	cred := model.IntegrationCredential{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    tok.Type(),
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		cred.Scope = scope
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		cred.ExpiresAt = &exp
	}
	return cred, nil
}

// Token returns a valid access token for conn, refreshing and persisting it when expired.
// A failed refresh marks the connection expired.
func (s *Service) Token(ctx context.Context, conn model.DataConnection) (*oauth2.Token, error) {
	cred, err := s.conns.GetCredential(ctx, conn.ID)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	access, err := s.box.Open(cred.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt access token: %w", err)
	}
	refresh, err := s.box.Open(cred.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt refresh token: %w", err)
	}

	tok := &oauth2.Token{AccessToken: access, RefreshToken: refresh, TokenType: cred.TokenType}
	if cred.ExpiresAt != nil {
		tok.Expiry = *cred.ExpiresAt
	}
	if tok.Valid() {
		return tok, nil
	}
	if refresh == "" {
		s.expire(ctx, conn)
		return nil, ErrTokenExpired
	}

	cfg, err := s.registry.Config(conn.Provider, conn.AccountID)
	if err != nil {
		return nil, err
	}
	fresh, err := cfg.TokenSource(s.oauthCtx(ctx), tok).Token()
	if err != nil {
		metrics.OAuthTotal.WithLabelValues(string(conn.Provider), "refresh_failed").Inc()
		logger.Log.Warn("token refresh failed", zap.String("connection_id", conn.ID), zap.Error(err))
		s.expire(ctx, conn)
		return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = refresh
	}

	updated, err := s.sealToken(fresh)
	if err != nil {
		return nil, err
	}
	updated.ConnectionID = conn.ID
	if err := s.conns.UpdateCredential(ctx, updated); err != nil {
		// the fresh token is still usable for this request
		logger.Log.Error("persist refreshed token", zap.String("connection_id", conn.ID), zap.Error(err))
	}
	metrics.OAuthTotal.WithLabelValues(string(conn.Provider), "refreshed").Inc()
	return fresh, nil
}

func (s *Service) expire(ctx context.Context, conn model.DataConnection) {
	if err := s.conns.SetStatus(ctx, conn.ID, model.ConnectionExpired); err != nil {
		logger.Log.Error("mark connection expired", zap.String("connection_id", conn.ID), zap.Error(err))
	}
}

// PurgeExpiredStates removes abandoned authorizations.
func (s *Service) PurgeExpiredStates(ctx context.Context) (int64, error) {
	return s.states.DeleteExpired(ctx, s.now())
}

// verifyShopifyHMAC checks the hex hmac Shopify appends to callbacks: sha256 over the
// remaining params sorted by key and joined as k=v with '&'.
func verifyShopifyHMAC(q url.Values, secret string) bool {
	got := q.Get("hmac")
	if got == "" || secret == "" {
		return false
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		if k == "hmac" || k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+strings.Join(q[k], ","))
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(parts, "&")))
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(got))
}
