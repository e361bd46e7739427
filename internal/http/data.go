package http

import (
	"errors"
	"net/http"

	"github.com/jmehdipour/data-moodboard/internal/http/middleware"
	"github.com/jmehdipour/data-moodboard/internal/model"
	"github.com/jmehdipour/data-moodboard/internal/repository"
	"github.com/jmehdipour/data-moodboard/internal/service/datasync"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

type syncReq struct {
	Resource string `json:"resource"`
	Name     string `json:"name"`
}

// syncHandler queues an import; the worker fills the returned table asynchronously.
func syncHandler(svc *datasync.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var req syncReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		id, ok := idParam(c)
		if !ok {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}

		tableID, err := svc.Enqueue(c.Request().Context(), datasync.SyncRequest{
			UserID:       userID,
			ConnectionID: id,
			Resource:     req.Resource,
			Name:         req.Name,
		})
		switch {
		case errors.Is(err, datasync.ErrConnectionNotFound):
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		case errors.Is(err, datasync.ErrConnectionExpired):
			return c.JSON(http.StatusConflict, map[string]string{
				"error":       "connection_expired",
				"description": "reconnect the integration before syncing",
			})
		case errors.Is(err, datasync.ErrResourceRequired):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "resource is required"})
		case errors.Is(err, datasync.ErrResourceTooLong):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "resource too long"})
		case err != nil:
			log.Errorf("enqueue sync failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusAccepted, map[string]any{
			"table_id": tableID,
			"status":   model.TablePending,
		})
	}
}

func listDataTablesHandler(tables repository.DataTablesRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		items, err := tables.ListByUser(c.Request().Context(), userID)
		if err != nil {
			log.Errorf("list data tables failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if items == nil {
			items = []model.UserDataTable{}
		}
		return c.JSON(http.StatusOK, map[string]any{"items": items})
	}
}

func getDataTableHandler(tables repository.DataTablesRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		id, ok := idParam(c)
		if !ok {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}

		t, err := tables.Get(c.Request().Context(), userID, id)
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}
		if err != nil {
			log.Errorf("get data table failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusOK, t)
	}
}

func deleteDataTableHandler(tables repository.DataTablesRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		id, ok := idParam(c)
		if !ok {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}

		err := tables.Delete(c.Request().Context(), userID, id)
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}
		if err != nil {
			log.Errorf("delete data table failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.NoContent(http.StatusNoContent)
	}
}
