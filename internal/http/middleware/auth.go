package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jmehdipour/data-moodboard/internal/logger"
	"github.com/jmehdipour/data-moodboard/internal/repository"
	"github.com/jmehdipour/data-moodboard/internal/util"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	ctxUserID     = "user_id"
	ctxUserEmail  = "user_email"
	ctxAuthMethod = "auth_method"

	AuthJWT    = "jwt"
	AuthAPIKey = "api_key"
)

// UserIDFromCtx extracts the authenticated user id set by Auth.
func UserIDFromCtx(c echo.Context) (string, bool) {
	id, ok := c.Get(ctxUserID).(string)
	return id, ok && id != ""
}

// EmailFromCtx is only set for session tokens that carry an email claim.
func EmailFromCtx(c echo.Context) string {
	e, _ := c.Get(ctxUserEmail).(string)
	return e
}

func AuthMethodFromCtx(c echo.Context) string {
	m, _ := c.Get(ctxAuthMethod).(string)
	return m
}

type AuthConfig struct {
	JWTSecret string
	JWTIssuer string // checked when set
	APIKeys   repository.APIKeysRepository
}

var errInvalidToken = errors.New("invalid token")

// Auth accepts a session JWT (Authorization: Bearer, HS256, user id in sub) or a
// user API key (X-API-Key). On success it stores user_id and auth_method in context.
func Auth(cfg AuthConfig) echo.MiddlewareFunc {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
	}
	parser := jwt.NewParser(opts...)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			if bearer := bearerToken(req.Header.Get(echo.HeaderAuthorization)); bearer != "" {
				sub, email, err := parseSession(parser, bearer, cfg.JWTSecret)
				if err != nil {
					return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
				}
				c.Set(ctxUserID, sub)
				c.Set(ctxUserEmail, email)
				c.Set(ctxAuthMethod, AuthJWT)
				return next(c)
			}

			key := strings.TrimSpace(req.Header.Get("X-API-Key"))
			if key == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing credentials"})
			}
			if !util.LooksLikeAPIKey(key) || cfg.APIKeys == nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			}
			k, err := cfg.APIKeys.GetByHash(req.Context(), util.HashAPIKey(key))
			if errors.Is(err, repository.ErrNotFound) {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			}
			if err != nil {
				logger.Log.Error("api key lookup failed", zap.Error(err))
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "auth error"})
			}
			if !k.Active() {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			}

			touchLastUsed(cfg.APIKeys, k.ID)

			c.Set(ctxUserID, k.UserID)
			c.Set(ctxAuthMethod, AuthAPIKey)
			return next(c)
		}
	}
}

func bearerToken(h string) string {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}

func parseSession(p *jwt.Parser, raw, secret string) (sub, email string, err error) {
	if secret == "" {
		return "", "", errInvalidToken
	}
	claims := jwt.MapClaims{}
	if _, err := p.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}); err != nil {
		return "", "", err
	}
	sub, err = claims.GetSubject()
	if err != nil || sub == "" {
		return "", "", errInvalidToken
	}
	email, _ = claims["email"].(string)
	return sub, email, nil
}

// touchLastUsed is best effort and never delays or fails the request.
func touchLastUsed(keys repository.APIKeysRepository, id string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := keys.TouchLastUsed(ctx, id); err != nil {
			logger.Log.Warn("api key touch failed", zap.String("key_id", id), zap.Error(err))
		}
	}()
}
