package middleware

import (
	"context"
	"net/http"
	"sync"

	"github.com/jmehdipour/data-moodboard/internal/logger"
	"github.com/jmehdipour/data-moodboard/internal/repository"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const maxSeenProfiles = 100_000

// EnsureProfile creates the caller's profile row before any handler writes rows
// that reference it. Session users are not known to the database until their
// first request; API key users always have one. It must run after Auth.
func EnsureProfile(profiles repository.ProfilesRepository, onCreate func(ctx context.Context, userID string)) echo.MiddlewareFunc {
	seen := &seenSet{ids: map[string]struct{}{}}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, ok := UserIDFromCtx(c)
			if !ok || AuthMethodFromCtx(c) != AuthJWT || seen.has(userID) {
				return next(c)
			}

			ctx := c.Request().Context()
			_, created, err := profiles.Ensure(ctx, userID, EmailFromCtx(c))
			if err != nil {
				logger.Log.Error("ensure profile failed", zap.String("user_id", userID), zap.Error(err))
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
			}
			if created && onCreate != nil {
				onCreate(ctx, userID)
			}
			seen.add(userID)
			return next(c)
		}
	}
}

// seenSet remembers profiles known to exist in this process.
type seenSet struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func (s *seenSet) has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

func (s *seenSet) add(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ids) >= maxSeenProfiles {
		s.ids = map[string]struct{}{}
	}
	s.ids[id] = struct{}{}
}
