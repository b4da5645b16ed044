package result

import (
	"net/http"

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
	api.GET("/results/:id", h.GetResult)
	api.GET("/work-items/:id/result", h.GetByWorkItem)
	api.PUT("/results/:id/value", h.UpdateValue)
	api.POST("/results/:id/verify", h.VerifyResult)
	api.POST("/results/:id/release", h.ReleaseResult)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) GetResult(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	res, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "result not found")
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) GetByWorkItem(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	res, err := h.svc.GetByWorkItem(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "no result for work item")
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) UpdateValue(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body struct {
		Value  string   `json:"value"`
		Reason string   `json:"reason"`
		MinRef *float64 `json:"min_ref"`
		MaxRef *float64 `json:"max_ref"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor := middleware.ActorFromContext(c.Request().Context())
	res, err := h.svc.UpdateValue(c.Request().Context(), id, body.Value, actor, body.Reason, body.MinRef, body.MaxRef)
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) VerifyResult(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	actor := middleware.ActorFromContext(c.Request().Context())
	res, err := h.svc.MarkVerified(c.Request().Context(), id, actor)
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ReleaseResult(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	actor := middleware.ActorFromContext(c.Request().Context())
	res, err := h.svc.Release(c.Request().Context(), id, actor)
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}
