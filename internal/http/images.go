package http

import (
	"errors"
	"net/http"

	"github.com/jmehdipour/data-moodboard/internal/activity"
	"github.com/jmehdipour/data-moodboard/internal/http/middleware"
	"github.com/jmehdipour/data-moodboard/internal/service/imagegen"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

type imageReq struct {
	Prompt string `json:"prompt"`
	Size   string `json:"size"`
}

func generateImageHandler(images *imagegen.Service, act *activity.Recorder) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var req imageReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		res, err := images.Generate(c.Request().Context(), userID, req.Prompt, req.Size)
		if err != nil {
			var qe *imagegen.QuotaError
			switch {
			case errors.As(err, &qe):
				return c.JSON(http.StatusTooManyRequests, map[string]any{
					"error":       "quota_exceeded",
					"description": "daily image generation limit reached",
					"limit":       qe.Limit,
					"used":        qe.Used,
				})
			case errors.Is(err, imagegen.ErrEmptyPrompt):
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "prompt is required"})
			case errors.Is(err, imagegen.ErrPromptTooLong):
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "prompt too long"})
			case errors.Is(err, imagegen.ErrInvalidSize):
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid size"})
			case errors.Is(err, imagegen.ErrGenerationFailed):
				return c.JSON(http.StatusBadGateway, map[string]string{"error": "image generation failed"})
			}
			log.Errorf("generate image failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		act.Record(c.Request().Context(), userID, activity.ImageGenerated)
		return c.JSON(http.StatusOK, res)
	}
}

func imageUsageHandler(images *imagegen.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		u, err := images.Usage(c.Request().Context(), userID)
		if err != nil {
			log.Errorf("image usage failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusOK, u)
	}
}
