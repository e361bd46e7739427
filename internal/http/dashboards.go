package http

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jmehdipour/data-moodboard/internal/activity"
	"github.com/jmehdipour/data-moodboard/internal/http/middleware"
	"github.com/jmehdipour/data-moodboard/internal/model"
	"github.com/jmehdipour/data-moodboard/internal/repository"
	"github.com/jmehdipour/data-moodboard/internal/util"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

const (
	maxDashboardName = 120
	maxCanvasItems   = 500
)

var backgroundPattern = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

type dashboardReq struct {
	Name   string       `json:"name"`
	Canvas model.Canvas `json:"canvas"`
}

// normalize trims the name, fills missing item ids and returns a client error message.
func (r *dashboardReq) normalize() string {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return "name is required"
	}
	if utf8.RuneCountInString(r.Name) > maxDashboardName {
		return "name too long"
	}
	if len(r.Canvas.Items) > maxCanvasItems {
		return "too many canvas items"
	}
	if r.Canvas.Background != "" && !backgroundPattern.MatchString(r.Canvas.Background) {
		return "invalid background"
	}
	if r.Canvas.Items == nil {
		r.Canvas.Items = []model.CanvasItem{}
	}

	seen := make(map[string]bool, len(r.Canvas.Items))
	for i := range r.Canvas.Items {
		it := &r.Canvas.Items[i]
		if !it.Type.Valid() {
			return "invalid item type"
		}
		if it.Width < 0 || it.Height < 0 {
			return "invalid item size"
		}
		if it.ID == "" {
			it.ID = util.New()
		}
		if seen[it.ID] {
			return "duplicate item id"
		}
		seen[it.ID] = true
	}
	return ""
}

func listDashboardsHandler(dashboards repository.DashboardsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		items, err := dashboards.ListByUser(c.Request().Context(), userID, limit, offset)
		if err != nil {
			log.Errorf("list dashboards failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"items":  items,
			"limit":  limit,
			"offset": offset,
		})
	}
}

func createDashboardHandler(dashboards repository.DashboardsRepository, act *activity.Recorder) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var req dashboardReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		if msg := req.normalize(); msg != "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
		}

		d := model.Dashboard{ID: util.New(), UserID: userID, Name: req.Name, Canvas: req.Canvas}
		if err := dashboards.Create(c.Request().Context(), d); err != nil {
			log.Errorf("create dashboard failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		act.Record(c.Request().Context(), userID, activity.DashboardSaved)

		created, err := dashboards.Get(c.Request().Context(), userID, d.ID)
		if err != nil {
			// the row is there; timestamps are just not loaded
			return c.JSON(http.StatusCreated, d)
		}
		return c.JSON(http.StatusCreated, created)
	}
}

func getDashboardHandler(dashboards repository.DashboardsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		id, ok := idParam(c)
		if !ok {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}

		d, err := dashboards.Get(c.Request().Context(), userID, id)
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}
		if err != nil {
			log.Errorf("get dashboard failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusOK, d)
	}
}

func updateDashboardHandler(dashboards repository.DashboardsRepository, act *activity.Recorder) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var req dashboardReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		if msg := req.normalize(); msg != "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
		}

		ctx := c.Request().Context()
		id, ok := idParam(c)
		if !ok {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}

		d := model.Dashboard{ID: id, UserID: userID, Name: req.Name, Canvas: req.Canvas}
		err := dashboards.Update(ctx, d)
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}
		if err != nil {
			log.Errorf("update dashboard failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		act.Record(ctx, userID, activity.DashboardSaved)

		updated, err := dashboards.Get(ctx, userID, d.ID)
		if err != nil {
			return c.JSON(http.StatusOK, d)
		}
		return c.JSON(http.StatusOK, updated)
	}
}

func deleteDashboardHandler(dashboards repository.DashboardsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := middleware.UserIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		id, ok := idParam(c)
		if !ok {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}

		err := dashboards.Delete(c.Request().Context(), userID, id)
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}
		if err != nil {
			log.Errorf("delete dashboard failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.NoContent(http.StatusNoContent)
	}
}
