package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jmehdipour/data-moodboard/internal/model"
	"github.com/jmehdipour/data-moodboard/internal/repository"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

const (
	defaultActivityDays = 14
	maxActivityDays     = 90
)

// adminMetricsHandler combines MySQL totals with the ClickHouse activity series.
// ClickHouse is optional: when it is missing or failing the series is empty and
// activity_error is set.
func adminMetricsHandler(stats repository.AdminStatsRepository, chActivity repository.CHActivityRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		days := defaultActivityDays
		if v := c.QueryParam("days"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid days"})
			}
			days = min(n, maxActivityDays)
		}

		ctx := c.Request().Context()
		totals, err := stats.Totals(ctx, time.Now().UTC().Format(time.DateOnly))
		if err != nil {
			log.Errorf("admin totals failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		series := []model.ActivityPoint{}
		activityErr := chActivity == nil
		if chActivity != nil {
			points, err := chActivity.Daily(ctx, days)
			if err != nil {
				log.Warnf("clickhouse activity failed: %v", err)
				activityErr = true
			} else if points != nil {
				series = points
			}
		}

		return c.JSON(http.StatusOK, map[string]any{
			"totals":         totals,
			"activity":       series,
			"activity_error": activityErr,
			"days":           days,
		})
	}
}
