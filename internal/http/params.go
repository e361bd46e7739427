package http

import (
	"github.com/jmehdipour/data-moodboard/internal/util"
	"github.com/labstack/echo/v4"
)

// idParam returns the :id path param; row ids are ULIDs, anything else cannot exist.
func idParam(c echo.Context) (string, bool) {
	id := c.Param("id")
	return id, util.IsULID(id)
}
