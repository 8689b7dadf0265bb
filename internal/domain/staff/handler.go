package staff

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/pkg/pagination"
)

// TokenIssuer signs login tokens.
type TokenIssuer interface {
	Issue(subject, tenantID, staffID string, roles []string) (*auth.Token, error)
}

type Handler struct {
	svc    *Service
	tokens TokenIssuer
}

func NewHandler(svc *Service, tokens TokenIssuer) *Handler {
	return &Handler{svc: svc, tokens: tokens}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/auth/login", h.Login)

	read := api.Group("", auth.RequireRole(auth.Roles...))
	read.GET("/staff", h.Search)
	read.GET("/staff/doctors", h.ListDoctors)
	read.GET("/staff/:id", h.Get)
	read.POST("/staff/:id/password", h.SetPassword)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/staff", h.Create)
	admin.PUT("/staff/:id", h.Update)
	admin.DELETE("/staff/:id", h.Delete)
	admin.POST("/staff/:id/deactivate", h.Deactivate)
}

func errStatus(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicateEmail):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case db.IsForeignKeyViolation(err):
		return echo.NewHTTPError(http.StatusConflict, "staff member is still referenced; deactivate instead")
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

type createRequest struct {
	Staff
	Password string `json:"password"`
}

func (h *Handler) Create(c echo.Context) error {
	req := createRequest{Staff: Staff{IsActive: true}}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	st := req.Staff
	if err := h.svc.Create(c.Request().Context(), &st, req.Password); err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusCreated, st)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	st, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var st Staff
	if err := c.Bind(&st); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	st.ID = id
	if err := h.svc.Update(c.Request().Context(), &st); err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, st)
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

func (h *Handler) Deactivate(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Deactivate(c.Request().Context(), id); err != nil {
		return errStatus(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SetPassword lets admins reset any password and staff change their own.
func (h *Handler) SetPassword(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if !auth.HasRole(ctx, auth.RoleAdmin) && auth.StaffIDFromContext(ctx) != id.String() {
		return echo.NewHTTPError(http.StatusForbidden, "can only change your own password")
	}
	var req struct {
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SetPassword(ctx, id, req.Password); err != nil {
		return errStatus(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Search(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := db.SearchParams(c, "q", "role", "department", "active")
	items, total, err := h.svc.Search(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDoctors(c.Request().Context(), c.QueryParam("department"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	*auth.Token
	Staff *Staff `json:"staff"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}
	ctx := c.Request().Context()
	st, err := h.svc.Authenticate(ctx, req.Email, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	tok, err := h.tokens.Issue(st.Email, db.TenantFromContext(ctx), st.ID.String(), []string{st.Role})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, loginResponse{Token: tok, Staff: st})
}
