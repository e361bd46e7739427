package http

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/jmehdipour/data-moodboard/internal/http/middleware"
	"github.com/jmehdipour/data-moodboard/internal/model"
	"github.com/jmehdipour/data-moodboard/internal/repository"
	"github.com/jmehdipour/data-moodboard/internal/util"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

const maxKeyName = 60

type createKeyReq struct {
	Name string `json:"name"`
}

// createAPIKeyHandler returns the plaintext key once; only its hash is stored.
func createAPIKeyHandler(keys repository.APIKeysRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var req createKeyReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			req.Name = "default"
		}
		if utf8.RuneCountInString(req.Name) > maxKeyName {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "name too long"})
		}

		plain, hash, prefix, err := util.NewAPIKey()
		if err != nil {
			log.Errorf("generate api key failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "key generation failed"})
		}
		k := model.APIKey{ID: util.New(), UserID: userID, Name: req.Name, KeyHash: hash, Prefix: prefix}
		if err := keys.Create(c.Request().Context(), k); err != nil {
			log.Errorf("create api key failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusCreated, map[string]any{
			"id":     k.ID,
			"name":   k.Name,
			"prefix": k.Prefix,
			"key":    plain,
		})
	}
}

func listAPIKeysHandler(keys repository.APIKeysRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		items, err := keys.ListByUser(c.Request().Context(), userID)
		if err != nil {
			log.Errorf("list api keys failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if items == nil {
			items = []model.APIKey{}
		}
		return c.JSON(http.StatusOK, map[string]any{"items": items})
	}
}

func revokeAPIKeyHandler(keys repository.APIKeysRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		id, ok := idParam(c)
		if !ok {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}

		err := keys.Revoke(c.Request().Context(), userID, id)
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}
		if err != nil {
			log.Errorf("revoke api key failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.NoContent(http.StatusNoContent)
	}
}
