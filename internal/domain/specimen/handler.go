package specimen

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

// RegisterRoutes mounts the specimen endpoints. Accept is not here: the
// accept cascade lives in the workflow handler.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/specimens/:id", h.GetSpecimen)
	api.POST("/specimens/:id/verify", h.VerifySpecimen)
	api.POST("/specimens/:id/store", h.StoreSpecimen)
	api.POST("/specimens/:id/consume", h.ConsumeSpecimen)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) GetSpecimen(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	sp, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "specimen not found")
	}
	return c.JSON(http.StatusOK, sp)
}

func (h *Handler) VerifySpecimen(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	actor := middleware.ActorFromContext(c.Request().Context())
	sp, err := h.svc.Verify(c.Request().Context(), id, actor)
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, sp)
}

func (h *Handler) StoreSpecimen(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	sp, err := h.svc.Store(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, sp)
}

func (h *Handler) ConsumeSpecimen(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	sp, err := h.svc.Consume(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, sp)
}
