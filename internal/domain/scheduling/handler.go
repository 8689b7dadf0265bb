package scheduling

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/domain/staff"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/pkg/dates"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.Roles...))
	read.GET("/schedules", h.ListByDay)
	read.GET("/schedules/on-duty", h.OnDuty)
	read.GET("/schedules/:id", h.Get)
	read.GET("/staff/:id/schedules", h.ListByDoctor)
	read.GET("/staff/:id/slots", h.Slots)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/schedules", h.Create)
	admin.PUT("/schedules/:id", h.Update)
	admin.DELETE("/schedules/:id", h.Delete)
}

func errStatus(err error) error {
	switch {
	case errors.Is(err, ErrScheduleNotFound), errors.Is(err, staff.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrScheduleConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotDoctor):
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

func (h *Handler) Create(c echo.Context) error {
	sched := DoctorSchedule{IsActive: true}
	if err := c.Bind(&sched); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Create(c.Request().Context(), &sched); err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusCreated, sched)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	sched, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, sched)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var sched DoctorSchedule
	if err := c.Bind(&sched); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sched.ID = id
	if err := h.svc.Update(c.Request().Context(), &sched); err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, sched)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return errStatus(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListByDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListByDoctor(c.Request().Context(), id)
	if err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, items)
}

// ListByDay defaults to today's weekday.
func (h *Handler) ListByDay(c echo.Context) error {
	day := int(time.Now().Weekday())
	if v := c.QueryParam("day"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "day must be 0-6")
		}
		day = n
	}
	items, err := h.svc.ListByDay(c.Request().Context(), day)
	if err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) OnDuty(c echo.Context) error {
	var at time.Time
	if v := c.QueryParam("at"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "at must be an RFC 3339 timestamp")
		}
		at = t
	}
	items, err := h.svc.OnDuty(c.Request().Context(), at)
	if err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Slots(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	date := dates.Today()
	if v := c.QueryParam("date"); v != "" {
		if date, err = dates.Parse(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	slots, err := h.svc.Slots(c.Request().Context(), id, date)
	if err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"doctor_id": id,
		"date":      date,
		"slots":     slots,
	})
}
