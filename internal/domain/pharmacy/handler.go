package pharmacy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/domain/pharmacy/stockimport"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/pkg/pagination"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("/pharmacy", auth.RequireRole(auth.RolePharmacist, auth.RoleDoctor, auth.RoleNurse))
	read.GET("/medications", h.ListMedications)
	read.GET("/medications/:id", h.GetMedication)
	read.GET("/medications/:id/batches", h.ListBatches)
	read.GET("/medications/:id/pick", h.PreviewPick)
	read.GET("/batches/:id", h.GetBatch)
	read.GET("/stock", h.GetStockSummary)
	read.GET("/stock/low", h.GetLowStock)
	read.GET("/stock/expiring", h.GetExpiring)

	write := api.Group("/pharmacy", auth.RequireRole(auth.RolePharmacist))
	write.POST("/medications", h.CreateMedication)
	write.PUT("/medications/:id", h.UpdateMedication)
	write.DELETE("/medications/:id", h.DeleteMedication)
	write.POST("/batches", h.CreateBatch)
	write.PUT("/batches/:id", h.UpdateBatch)
	write.DELETE("/batches/:id", h.DeleteBatch)
	write.POST("/batches/:id/adjust", h.AdjustStock)
	write.GET("/stock/export", h.ExportStock)

	write.GET("/purchases", h.ListPurchases)
	write.GET("/purchases/:id", h.GetPurchase)
	write.POST("/purchases", h.CreatePurchase)
	write.POST("/purchases/enhanced", h.CreatePurchase)
	write.POST("/purchases/calculate", h.CalculatePurchase)

	write.POST("/bulk-upload", h.BulkUpload)
	write.POST("/bulk-upload-excel", h.BulkUploadExcel)
	write.GET("/bulk-upload/template", h.DownloadTemplate)
}

func errStatus(err error) error {
	switch {
	case errors.Is(err, ErrMedicationNotFound), errors.Is(err, ErrBatchNotFound), errors.Is(err, ErrPurchaseNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrDuplicate), db.IsUniqueViolation(err):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case db.IsForeignKeyViolation(err):
		return echo.NewHTTPError(http.StatusConflict, "record is still referenced")
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

// -- Medications --

func (h *Handler) CreateMedication(c echo.Context) error {
	m := Medication{IsActive: true}
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateMedication(c.Request().Context(), &m); err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) GetMedication(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	m, err := h.svc.GetMedication(c.Request().Context(), id)
	if err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) ListMedications(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := db.SearchParams(c, "q", "category", "active")
	items, total, err := h.svc.SearchMedications(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateMedication(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var m Medication
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m.ID = id
	if err := h.svc.UpdateMedication(c.Request().Context(), &m); err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) DeleteMedication(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteMedication(c.Request().Context(), id); err != nil {
		return errStatus(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) PreviewPick(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	qty, err := strconv.Atoi(c.QueryParam("quantity"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "quantity must be an integer")
	}
	picks, err := h.svc.PickBatches(c.Request().Context(), id, qty)
	if err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, picks)
}

// -- Batches --

type batchRequest struct {
	Batch
	ExpiryDate string `json:"expiry_date"`
}

func (r batchRequest) toBatch() (*Batch, error) {
	b := r.Batch
	if r.ExpiryDate != "" {
		t, err := time.Parse("2006-01-02", r.ExpiryDate)
		if err != nil {
			return nil, fmt.Errorf("expiry_date must be YYYY-MM-DD")
		}
		b.ExpiryDate = t
	}
	return &b, nil
}

func (h *Handler) CreateBatch(c echo.Context) error {
	var req batchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := req.toBatch()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateBatch(c.Request().Context(), b); err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) GetBatch(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	b, err := h.svc.GetBatch(c.Request().Context(), id)
	if err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) UpdateBatch(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req batchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := req.toBatch()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b.ID = id
	if err := h.svc.UpdateBatch(c.Request().Context(), b); err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) DeleteBatch(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteBatch(c.Request().Context(), id); err != nil {
		return errStatus(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListBatches(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListBatches(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

type adjustRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) AdjustStock(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req adjustRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	qty, err := h.svc.AdjustStock(c.Request().Context(), id, req.Delta)
	if err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"batch_id": id, "quantity": qty})
}

// -- Stock --

func (h *Handler) GetStockSummary(c echo.Context) error {
	items, err := h.svc.StockSummary(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	pg := pagination.FromContext(c)
	return c.JSON(http.StatusOK, pagination.NewResponse(pagination.Window(items, pg), len(items), pg.Limit, pg.Offset))
}

func (h *Handler) GetLowStock(c echo.Context) error {
	items, err := h.svc.LowStock(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetExpiring(c echo.Context) error {
	days := h.svc.WarningDays()
	if v := c.QueryParam("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "days must be an integer")
		}
		days = n
	}
	items, err := h.svc.ExpiringBatches(c.Request().Context(), days)
	if err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ExportStock(c echo.Context) error {
	var buf bytes.Buffer
	if err := h.svc.ExportStock(c.Request().Context(), &buf); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	name := fmt.Sprintf("stock-%s.xlsx", h.svc.today().Format("20060102"))
	c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename="+name)
	return c.Blob(http.StatusOK, xlsxMIME, buf.Bytes())
}

// -- Purchases --

func (h *Handler) CreatePurchase(c echo.Context) error {
	var p Purchase
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreatePurchase(c.Request().Context(), &p); err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusCreated, p)
}

type calculateResponse struct {
	Items  []PurchaseLine `json:"items"`
	Totals PurchaseTotals `json:"totals"`
}

func (h *Handler) CalculatePurchase(c echo.Context) error {
	var req struct {
		Items []PurchaseLine `json:"items"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	lines, totals, err := RecalculatePurchase(req.Items)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, calculateResponse{Items: lines, Totals: totals})
}

func (h *Handler) GetPurchase(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPurchase(c.Request().Context(), id)
	if err != nil {
		return errStatus(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPurchases(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPurchases(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Bulk upload --

func isExcel(filename, contentType string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return true
	case ".csv":
		return false
	}
	return strings.Contains(contentType, "spreadsheetml") || strings.Contains(contentType, "ms-excel")
}

func (h *Handler) BulkUpload(c echo.Context) error {
	return h.upload(c, false)
}

func (h *Handler) BulkUploadExcel(c echo.Context) error {
	return h.upload(c, true)
}

func (h *Handler) upload(c echo.Context, forceExcel bool) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer f.Close()

	rows, err := ParseUpload(f, fh.Filename, fh.Header.Get(echo.HeaderContentType), forceExcel)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sum, err := h.svc.NewImporter().Run(c.Request().Context(), rows)
	if err != nil {
		return echo.NewHTTPError(http.StatusRequestTimeout, err.Error())
	}
	return c.JSON(http.StatusOK, sum)
}

// ParseUpload picks the CSV or Excel parser from the file name and type.
func ParseUpload(r io.Reader, filename, contentType string, forceExcel bool) ([]stockimport.StockRow, error) {
	if forceExcel || isExcel(filename, contentType) {
		return stockimport.ParseExcel(r)
	}
	return stockimport.ParseCSV(r)
}

func (h *Handler) DownloadTemplate(c echo.Context) error {
	data, err := stockimport.Template()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename=stock-upload-template.xlsx")
	return c.Blob(http.StatusOK, xlsxMIME, data)
}
