package bed

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleNurse, auth.RoleReceptionist))
	read.GET("/beds", h.ListBeds)
	read.GET("/beds/views", h.ListBedViews)
	read.GET("/beds/occupancy", h.GetOccupancy)
	read.GET("/beds/:id", h.GetBed)
	read.GET("/bed-allocations", h.ListActiveAllocations)
	read.GET("/bed-allocations/:id", h.GetAllocation)
	read.GET("/bed-allocations/:id/charge", h.GetStayCharge)
	read.GET("/patients/:id/bed-allocations", h.ListPatientAllocations)

	ward := api.Group("", auth.RequireRole(auth.RoleNurse, auth.RoleReceptionist, auth.RoleDoctor))
	ward.POST("/bed-allocations", h.Allocate)
	ward.POST("/bed-allocations/:id/discharge", h.Discharge)
	ward.POST("/bed-allocations/:id/transfer", h.Transfer)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/beds", h.CreateBed)
	admin.PUT("/beds/:id", h.UpdateBed)
	admin.DELETE("/beds/:id", h.DeleteBed)
}

func errStatus(err error) error {
	switch {
	case errors.Is(err, ErrBedNotFound), errors.Is(err, ErrAllocationNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrBedOccupied), errors.Is(err, ErrBedUnavailable),
		errors.Is(err, ErrPatientAdmitted), errors.Is(err, ErrAllocationClosed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case db.IsForeignKeyViolation(err):
		return echo.NewHTTPError(http.StatusBadRequest, "unknown patient or staff reference")
	case db.IsUniqueViolation(err):
		return echo.NewHTTPError(http.StatusConflict, "bed number already exists in this ward")
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

// -- Beds --

func (h *Handler) CreateBed(c echo.Context) error {
	var b Bed
	if err := c.Bind(&b); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateBed(c.Request().Context(), &b); err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) GetBed(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	b, err := h.svc.GetBed(c.Request().Context(), id)
	if err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ListBeds(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := db.SearchParams(c, "ward", "status", "bed_type")
	items, total, err := h.svc.ListBeds(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateBed(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var b Bed
	if err := c.Bind(&b); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b.ID = id
	if err := h.svc.UpdateBed(c.Request().Context(), &b); err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) DeleteBed(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteBed(c.Request().Context(), id); err != nil {
		return errStatus(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListBedViews(c echo.Context) error {
	params := db.SearchParams(c, "ward", "bed_type")
	views, err := h.svc.ListBedViews(c.Request().Context(), params)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	// status filters on the corrected value, so it is applied after the join
	if status := c.QueryParam("status"); status != "" {
		filtered := views[:0]
		for _, v := range views {
			if v.Status == status {
				filtered = append(filtered, v)
			}
		}
		views = filtered
	}
	pg := pagination.FromContext(c)
	return c.JSON(http.StatusOK, pagination.NewResponse(pagination.Window(views, pg), len(views), pg.Limit, pg.Offset))
}

func (h *Handler) GetOccupancy(c echo.Context) error {
	occ, err := h.svc.Occupancy(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, occ)
}

// -- Allocations --

func (h *Handler) Allocate(c echo.Context) error {
	var req AllocateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.AllocatedBy = auth.StaffUUID(c.Request().Context())
	a, err := h.svc.Allocate(c.Request().Context(), req)
	if err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAllocation(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAllocation(c.Request().Context(), id)
	if err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListActiveAllocations(c echo.Context) error {
	items, err := h.svc.ListActiveAllocations(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	pg := pagination.FromContext(c)
	return c.JSON(http.StatusOK, pagination.NewResponse(pagination.Window(items, pg), len(items), pg.Limit, pg.Offset))
}

func (h *Handler) ListPatientAllocations(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListPatientAllocations(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Discharge(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Discharge(c.Request().Context(), id)
	if err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, a)
}

type transferRequest struct {
	BedID uuid.UUID `json:"bed_id"`
}

func (h *Handler) Transfer(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req transferRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.BedID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "bed_id is required")
	}
	ctx := c.Request().Context()
	a, err := h.svc.Transfer(ctx, id, req.BedID, auth.StaffUUID(ctx))
	if err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) GetStayCharge(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	charge, err := h.svc.StayCharge(c.Request().Context(), id)
	if err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, charge)
}
