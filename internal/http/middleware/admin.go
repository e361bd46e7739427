package middleware

import (
	"errors"
	"net/http"

	"github.com/jmehdipour/data-moodboard/internal/logger"
	"github.com/jmehdipour/data-moodboard/internal/repository"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AdminOnly lets through users flagged is_admin on their profile or whose email
// is listed by isAdminEmail. It must run after Auth.
func AdminOnly(profiles repository.ProfilesRepository, isAdminEmail func(string) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, ok := UserIDFromCtx(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing credentials"})
			}
			if isAdminEmail != nil && isAdminEmail(EmailFromCtx(c)) {
				return next(c)
			}

			p, err := profiles.GetByID(c.Request().Context(), userID)
			if errors.Is(err, repository.ErrNotFound) {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
			}
			if err != nil {
				logger.Log.Error("admin check failed", zap.String("user_id", userID), zap.Error(err))
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
			}
			if p.IsAdmin || (isAdminEmail != nil && isAdminEmail(p.Email)) {
				return next(c)
			}
			return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
		}
	}
}
