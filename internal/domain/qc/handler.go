package qc

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/lims/lims/internal/platform/middleware"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/qc/lots", h.CreateLot)
	api.GET("/qc/lots/:id", h.GetLot)
	api.PUT("/qc/lots/:id", h.UpdateLot)
	api.POST("/qc/lots/:id/activate", h.ActivateLot)
	api.GET("/qc/lots", h.ListLots)

	api.POST("/qc/runs", h.RecordRun)
	api.GET("/qc/runs/:id", h.GetRun)
	api.POST("/qc/runs/:id/approve", h.ApproveRun)

	api.POST("/qc/actions", h.CreateAction)
	api.POST("/qc/actions/:id/resolve", h.ResolveAction)

	api.GET("/qc/gate/:test", h.GateStatus)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) CreateLot(c echo.Context) error {
	var l Lot
	if err := c.Bind(&l); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateLot(c.Request().Context(), &l); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *Handler) GetLot(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	l, err := h.svc.GetLot(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "lot not found")
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) UpdateLot(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var l Lot
	if err := c.Bind(&l); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	l.ID = id
	if err := h.svc.UpdateLot(c.Request().Context(), &l); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) ActivateLot(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	l, err := h.svc.Activate(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) ListLots(c echo.Context) error {
	testCode := c.QueryParam("test")
	if testCode == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "test query parameter is required")
	}
	lots, err := h.svc.ListLotsByTest(c.Request().Context(), testCode)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, lots)
}

func (h *Handler) RecordRun(c echo.Context) error {
	var run Run
	if err := c.Bind(&run); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	got, err := h.svc.RecordRun(c.Request().Context(), &run)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, got)
}

func (h *Handler) GetRun(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	run, err := h.svc.GetRun(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	return c.JSON(http.StatusOK, run)
}

func (h *Handler) ApproveRun(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	actor := middleware.ActorFromContext(c.Request().Context())
	run, err := h.svc.ApproveRun(c.Request().Context(), id, actor)
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, run)
}

func (h *Handler) CreateAction(c echo.Context) error {
	var a Action
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateAction(c.Request().Context(), &a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) ResolveAction(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.ResolveAction(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) GateStatus(c echo.Context) error {
	open, err := h.svc.Approved(c.Request().Context(), c.Param("test"), time.Now())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]bool{"approved": open})
}
