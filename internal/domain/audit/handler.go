package audit

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lims/lims/pkg/pagination"
)

type Handler struct {
	rec *Recorder
}

func NewHandler(rec *Recorder) *Handler {
	return &Handler{rec: rec}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/audit-events", h.ListEvents)
}

func (h *Handler) ListEvents(c echo.Context) error {
	entityType := c.QueryParam("entity_type")
	entityID := c.QueryParam("entity_id")
	if entityType == "" || entityID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "entity_type and entity_id are required")
	}

	pg := pagination.FromContext(c)
	events, total, err := h.rec.ListByEntity(c.Request().Context(), entityType, entityID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(events, total, pg.Limit, pg.Offset))
}
