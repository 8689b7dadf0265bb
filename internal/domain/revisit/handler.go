package revisit

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/pkg/dates"
	"github.com/hms/hms/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleNurse, auth.RoleReceptionist))
	g.GET("/revisits", h.ListByDate)
	g.GET("/revisits/upcoming", h.Upcoming)
	g.GET("/revisits/stats", h.Stats)
	g.GET("/revisits/:id", h.Get)
	g.GET("/patients/:id/revisits", h.ListByPatient)
	g.POST("/revisits", h.Record)
	g.PUT("/revisits/:id", h.Update)
	g.POST("/revisits/:id/complete", h.Complete)

	desk := api.Group("", auth.RequireRole(auth.RoleReceptionist))
	desk.POST("/revisits/mark-missed", h.MarkMissed)
}

func errStatus(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotScheduled):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// queryDate returns the zero date when the parameter is absent.
func queryDate(c echo.Context, name string) (dates.Date, error) {
	v := c.QueryParam(name)
	if v == "" {
		return dates.Date{}, nil
	}
	d, err := dates.Parse(v)
	if err != nil {
		return dates.Date{}, echo.NewHTTPError(http.StatusBadRequest, name+": "+err.Error())
	}
	return d, nil
}

func (h *Handler) Record(c echo.Context) error {
	var v Revisit
	if err := c.Bind(&v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Record(c.Request().Context(), &v); err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	v, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var v Revisit
	if err := c.Bind(&v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v.ID = id
	if err := h.svc.Update(c.Request().Context(), &v); err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) Complete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req struct {
		Notes *string `json:"notes"`
	}
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	v, err := h.svc.Complete(c.Request().Context(), id, req.Notes)
	if err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListByDate(c echo.Context) error {
	day, err := queryDate(c, "date")
	if err != nil {
		return err
	}
	items, err := h.svc.ListByDate(c.Request().Context(), day)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Upcoming(c echo.Context) error {
	from, err := queryDate(c, "from")
	if err != nil {
		return err
	}
	days := 0
	if v := c.QueryParam("days"); v != "" {
		if days, err = strconv.Atoi(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "days must be a number")
		}
	}
	items, err := h.svc.Upcoming(c.Request().Context(), from, days)
	if err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Stats(c echo.Context) error {
	from, err := queryDate(c, "from")
	if err != nil {
		return err
	}
	to, err := queryDate(c, "to")
	if err != nil {
		return err
	}
	st, err := h.svc.Stats(c.Request().Context(), from, to)
	if err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) MarkMissed(c echo.Context) error {
	before, err := queryDate(c, "before")
	if err != nil {
		return err
	}
	n, err := h.svc.MarkMissed(c.Request().Context(), before)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int64{"marked": n})
}
