package http

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/jmehdipour/data-moodboard/internal/http/middleware"
	"github.com/jmehdipour/data-moodboard/internal/integrations"
	"github.com/jmehdipour/data-moodboard/internal/model"
	"github.com/jmehdipour/data-moodboard/internal/repository"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// connectHandler starts an OAuth flow and returns the provider's consent URL.
// Shopify takes ?shop=<name>.myshopify.com, BigQuery takes ?project=<gcp project>.
func connectHandler(svc *integrations.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		p, ok := model.ParseProvider(c.Param("provider"))
		if !ok {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown_provider"})
		}
		account := firstNonEmpty(c.QueryParam("account"), c.QueryParam("shop"), c.QueryParam("project"))

		authURL, err := svc.Begin(c.Request().Context(), userID, p, account)
		switch {
		case errors.Is(err, integrations.ErrUnknownProvider):
			return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown_provider"})
		case errors.Is(err, integrations.ErrProviderNotConfigured):
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "not_configured"})
		case errors.Is(err, integrations.ErrInvalidShop):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid_shop"})
		case errors.Is(err, integrations.ErrMissingProject):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing_project"})
		case err != nil:
			log.Errorf("oauth begin failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "server_error"})
		}
		return c.JSON(http.StatusOK, map[string]string{"url": authURL})
	}
}

// oauthCallbackHandler is hit by the provider redirect, so it is unauthenticated:
// the state row identifies the user. Both outcomes redirect back to the app.
func oauthCallbackHandler(svc *integrations.Service, appURL string) echo.HandlerFunc {
	target := strings.TrimRight(appURL, "/") + "/integrations"
	return func(c echo.Context) error {
		provider := c.Param("provider")
		q := c.QueryParams()

		p, ok := model.ParseProvider(provider)
		if !ok {
			return c.Redirect(http.StatusFound, target+"?"+url.Values{"error": {"unknown_provider"}}.Encode())
		}

		conn, err := svc.Complete(c.Request().Context(), p, integrations.CallbackParams{
			State: q.Get("state"),
			Code:  q.Get("code"),
			Error: q.Get("error"),
			Shop:  q.Get("shop"),
			Raw:   q,
		})
		if err != nil {
			code := integrations.ErrorCode(err)
			if code == "server_error" {
				log.Errorf("oauth callback failed: %v", err)
			}
			return c.Redirect(http.StatusFound, target+"?"+url.Values{
				"error":    {code},
				"provider": {p.String()},
			}.Encode())
		}
		return c.Redirect(http.StatusFound, target+"?"+url.Values{
			"connected":     {p.String()},
			"connection_id": {conn.ID},
		}.Encode())
	}
}

func listConnectionsHandler(conns repository.ConnectionsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		items, err := conns.ListByUser(c.Request().Context(), userID)
		if err != nil {
			log.Errorf("list connections failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if items == nil {
			items = []model.DataConnection{}
		}
		return c.JSON(http.StatusOK, map[string]any{"items": items})
	}
}

// deleteConnectionHandler removes the connection and its stored credentials.
func deleteConnectionHandler(conns repository.ConnectionsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		id, ok := idParam(c)
		if !ok {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}

		err := conns.Delete(c.Request().Context(), userID, id)
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}
		if err != nil {
			log.Errorf("delete connection failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
