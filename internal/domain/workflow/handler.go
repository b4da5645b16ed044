package workflow

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/lims/lims/internal/domain/instrument"
	"github.com/lims/lims/internal/domain/order"
	"github.com/lims/lims/internal/domain/specimen"
	"github.com/lims/lims/internal/domain/workitem"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/orders", h.CreateOrder)
	api.POST("/orders/:id/specimens", h.CollectSpecimen)
	api.POST("/specimens/:id/accept", h.AcceptSpecimen)
	api.POST("/specimens/:id/reject", h.RejectSpecimen)
	api.POST("/work-items/:id/dispatch", h.Dispatch)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) CreateOrder(c echo.Context) error {
	var o order.Order
	if err := c.Bind(&o); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateOrder(c.Request().Context(), &o); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) CollectSpecimen(c echo.Context) error {
	orderID, err := parseID(c)
	if err != nil {
		return err
	}
	var sp specimen.Specimen
	if err := c.Bind(&sp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CollectSpecimen(c.Request().Context(), orderID, &sp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, sp)
}

func (h *Handler) AcceptSpecimen(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	sp, err := h.svc.AcceptSpecimen(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, sp)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) RejectSpecimen(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req rejectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sp, err := h.svc.RejectSpecimen(c.Request().Context(), id, req.Reason)
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, sp)
}

func (h *Handler) Dispatch(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	item, err := h.svc.Dispatch(c.Request().Context(), id)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, item)
	case errors.Is(err, workitem.ErrQCBlocked):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, workitem.ErrNotDispatchable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, instrument.ErrTransient), errors.Is(err, instrument.ErrRejected):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
