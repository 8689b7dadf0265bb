package prescription

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/domain/billing"
	"github.com/hms/hms/internal/domain/pharmacy"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleNurse, auth.RolePharmacist))
	read.GET("/prescriptions", h.ListPending)
	read.GET("/prescriptions/:id", h.Get)
	read.GET("/patients/:id/prescriptions", h.ListByPatient)

	write := api.Group("", auth.RequireRole(auth.RoleDoctor))
	write.POST("/prescriptions", h.Create)

	cancel := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RolePharmacist))
	cancel.POST("/prescriptions/:id/cancel", h.Cancel)

	dispense := api.Group("", auth.RequireRole(auth.RolePharmacist))
	dispense.POST("/prescriptions/:id/dispense", h.Dispense)
}

func errStatus(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotPending), errors.Is(err, pharmacy.ErrInsufficientStock), errors.Is(err, billing.ErrBatchExpired):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
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
	var p Prescription
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if p.DoctorID == uuid.Nil {
		if staff := auth.StaffUUID(c.Request().Context()); staff != nil {
			p.DoctorID = *staff
		}
	}
	if err := h.svc.Create(c.Request().Context(), &p); err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPending(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPending(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
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

func (h *Handler) Cancel(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Cancel(c.Request().Context(), id); err != nil {
		return errStatus(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type dispenseResponse struct {
	Prescription *Prescription `json:"prescription"`
	Bill         *billing.Bill `json:"bill"`
}

func (h *Handler) Dispense(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req DispenseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.CreatedBy = auth.StaffUUID(c.Request().Context())
	rx, bill, err := h.svc.Dispense(c.Request().Context(), id, req)
	if err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, dispenseResponse{Prescription: rx, Bill: bill})
}
