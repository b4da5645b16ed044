package workitem

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts work item endpoints. Dispatch itself lives in the
// workflow handler since it drives the instrument gateway.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/work-items/:id", h.GetWorkItem)
	api.GET("/orders/:id/work-items", h.ListByOrder)
	api.POST("/work-items/:id/assign", h.AssignInstrument)
	api.POST("/work-items/:id/verify", h.VerifyWorkItem)
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) GetWorkItem(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	w, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "work item not found")
	}
	return c.JSON(http.StatusOK, w)
}

func (h *Handler) ListByOrder(c echo.Context) error {
	orderID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	items, err := h.svc.ListByOrder(c.Request().Context(), orderID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) AssignInstrument(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var body struct {
		InstrumentID uuid.UUID `json:"instrument_id"`
	}
	if err := c.Bind(&body); err != nil || body.InstrumentID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "instrument_id is required")
	}
	w, err := h.svc.AssignInstrument(c.Request().Context(), id, body.InstrumentID)
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, w)
}

func (h *Handler) VerifyWorkItem(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	w, err := h.svc.MarkVerified(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, w)
}
