package http

import (
	"net/http"

	"github.com/jmehdipour/data-moodboard/internal/activity"
	"github.com/jmehdipour/data-moodboard/internal/http/middleware"
	"github.com/jmehdipour/data-moodboard/internal/repository"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// getProfileHandler returns the caller's profile, creating a free one on first access.
func getProfileHandler(profiles repository.ProfilesRepository, act *activity.Recorder) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		p, created, err := profiles.Ensure(c.Request().Context(), userID, middleware.EmailFromCtx(c))
		if err != nil {
			log.Errorf("ensure profile failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if created {
			act.Record(c.Request().Context(), userID, activity.Signup)
		}
		return c.JSON(http.StatusOK, p)
	}
}
