package billing

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/domain/pharmacy"
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
	read := api.Group("/pharmacy/billing", auth.RequireRole(auth.RolePharmacist, auth.RoleReceptionist))
	read.GET("", h.ListBills)
	read.GET("/revenue", h.DailyRevenue)
	read.GET("/:id", h.GetBill)
	read.GET("/:id/invoice.pdf", h.Invoice)
	read.GET("/:id/qr", h.PaymentQR)

	write := api.Group("/pharmacy/billing", auth.RequireRole(auth.RolePharmacist))
	write.POST("/quote", h.Quote)
	write.POST("", h.CreateBill)
	write.POST("/:id/payment", h.RecordPayment)
}

func errStatus(err error) error {
	switch {
	case errors.Is(err, ErrBillNotFound), errors.Is(err, pharmacy.ErrBatchNotFound), errors.Is(err, pharmacy.ErrMedicationNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrBatchExpired):
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

func (h *Handler) Quote(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	q, err := h.svc.Quote(c.Request().Context(), req)
	if err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, q)
}

func (h *Handler) CreateBill(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.CreatedBy = auth.StaffUUID(c.Request().Context())
	b, err := h.svc.CreateBill(c.Request().Context(), req)
	if err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) GetBill(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	b, err := h.svc.GetBill(c.Request().Context(), id)
	if err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, b)
}

func filterFromQuery(c echo.Context) (Filter, error) {
	var f Filter
	if v := c.QueryParam("from"); v != "" {
		d, err := dates.Parse(v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "from must be YYYY-MM-DD")
		}
		f.From = &d.Time
	}
	if v := c.QueryParam("to"); v != "" {
		d, err := dates.Parse(v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "to must be YYYY-MM-DD")
		}
		// inclusive day in the query, exclusive bound in the filter
		end := d.AddDays(1).Time
		f.To = &end
	}
	f.PaymentStatus = c.QueryParam("payment_status")
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &id
	}
	return f, nil
}

func (h *Handler) ListBills(c echo.Context) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListBills(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type paymentRequest struct {
	Amount        float64 `json:"amount"`
	PaymentMethod string  `json:"payment_method"`
}

func (h *Handler) RecordPayment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req paymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.RecordPayment(c.Request().Context(), id, req.Amount, req.PaymentMethod)
	if err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) DailyRevenue(c echo.Context) error {
	day := h.svc.now()
	if v := c.QueryParam("date"); v != "" {
		d, err := dates.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
		}
		day = d.Time
	}
	rev, err := h.svc.DailyRevenue(c.Request().Context(), day)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rev)
}

func (h *Handler) Invoice(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	b, err := h.svc.WriteInvoice(c.Request().Context(), id, &buf)
	if err != nil {
		if errors.Is(err, ErrBillNotFound) {
			return errStatus(err)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, "inline; filename="+b.BillNumber+".pdf")
	return c.Blob(http.StatusOK, "application/pdf", buf.Bytes())
}

func (h *Handler) PaymentQR(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	img, err := h.svc.PaymentQR(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrBillNotFound) {
			return errStatus(err)
		}
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=300")
	return c.Blob(http.StatusOK, "image/png", img)
}
