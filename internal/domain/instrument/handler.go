package instrument

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/lims/lims/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/instruments", h.Register)
	api.GET("/instruments", h.List)
	api.GET("/instruments/:id", h.Get)
	api.PUT("/instruments/:id", h.Update)
	api.GET("/instruments/:id/health", h.Health)
	api.GET("/instruments/:id/logs", h.CommLogs)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) Register(c echo.Context) error {
	var in Instrument
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Register(c.Request().Context(), &in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, in)
}

func (h *Handler) List(c echo.Context) error {
	var (
		list []*Instrument
		err  error
	)
	if c.QueryParam("active") == "true" {
		list, err = h.svc.ListActive(c.Request().Context())
	} else {
		list, err = h.svc.List(c.Request().Context())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	in, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "instrument not found")
	}
	return c.JSON(http.StatusOK, in)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in Instrument
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in.ID = id
	if err := h.svc.Update(c.Request().Context(), &in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, in)
}

func (h *Handler) Health(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	hs, err := h.svc.Health(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "instrument not found")
	}
	return c.JSON(http.StatusOK, hs)
}

func (h *Handler) CommLogs(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	logs, total, err := h.svc.CommLogs(c.Request().Context(), id, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(logs, total, p.Limit, p.Offset))
}
