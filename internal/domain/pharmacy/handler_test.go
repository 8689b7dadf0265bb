package pharmacy

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/domain/pharmacy/stockimport"
)

func newTestHandler() (*Handler, *fixture, *echo.Echo) {
	f := newFixture()
	return NewHandler(f.svc), f, echo.New()
}

func jsonContext(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func httpCode(err error) int {
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	return 0
}

func TestHandler_CreateMedication(t *testing.T) {
	h, _, e := newTestHandler()
	c, rec := jsonContext(e, http.MethodPost, "/", `{"name":"Pantoprazole","gst_percent":12}`)
	if err := h.CreateMedication(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var m Medication
	json.Unmarshal(rec.Body.Bytes(), &m)
	if !m.IsActive {
		t.Error("expected new medication to default to active")
	}

	c, _ = jsonContext(e, http.MethodPost, "/", `{"gst_percent":12}`)
	if code := httpCode(h.CreateMedication(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_GetMedication_NotFound(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := jsonContext(e, http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	if code := httpCode(h.GetMedication(c)); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}

	c, _ = jsonContext(e, http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	if code := httpCode(h.GetMedication(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_CreateBatch(t *testing.T) {
	h, f, e := newTestHandler()
	m := f.addMed(t, "Losartan", 10)
	body := `{"medication_id":"` + m.ID.String() + `","batch_number":"L1","expiry_date":"2027-08-31","quantity":60,"mrp":4.5}`
	c, rec := jsonContext(e, http.MethodPost, "/", body)
	if err := h.CreateBatch(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	body = `{"medication_id":"` + m.ID.String() + `","batch_number":"L2","expiry_date":"31/08/2027"}`
	c, _ = jsonContext(e, http.MethodPost, "/", body)
	if code := httpCode(h.CreateBatch(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad date, got %d", code)
	}
}

func TestHandler_AdjustStock_Insufficient(t *testing.T) {
	h, f, e := newTestHandler()
	m := f.addMed(t, "Atorvastatin", 10)
	b := f.addBatch(t, m, "AT1", day(2027, 1, 1), 2)

	c, _ := jsonContext(e, http.MethodPost, "/", `{"delta":-5}`)
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())
	if code := httpCode(h.AdjustStock(c)); code != http.StatusConflict {
		t.Errorf("expected 409, got %d", code)
	}
}

func TestHandler_GetExpiring_BadDays(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := jsonContext(e, http.MethodGet, "/?days=soon", "")
	if code := httpCode(h.GetExpiring(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_CalculatePurchase(t *testing.T) {
	h, _, e := newTestHandler()
	c, rec := jsonContext(e, http.MethodPost, "/", `{"items":[{"quantity":10,"purchase_rate":100,"gst_percent":12}]}`)
	if err := h.CalculatePurchase(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp calculateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Totals.GrandTotal != 1120 {
		t.Errorf("expected grand total 1120, got %v", resp.Totals.GrandTotal)
	}
	if f := c.Response().Header().Get(echo.HeaderContentType); !strings.HasPrefix(f, echo.MIMEApplicationJSON) {
		t.Errorf("expected JSON response, got %q", f)
	}
}

func TestHandler_ExportStock(t *testing.T) {
	h, f, e := newTestHandler()
	m := f.addMed(t, "Dolo", 10)
	f.addBatch(t, m, "D1", day(2027, 1, 1), 10)

	c, rec := jsonContext(e, http.MethodGet, "/", "")
	if err := h.ExportStock(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.Header().Get(echo.HeaderContentDisposition); got != "attachment; filename=stock-20260310.xlsx" {
		t.Errorf("unexpected disposition %q", got)
	}
	if rec.Header().Get(echo.HeaderContentType) != xlsxMIME {
		t.Errorf("unexpected content type %q", rec.Header().Get(echo.HeaderContentType))
	}
}

func TestHandler_BulkUploadCSV(t *testing.T) {
	h, f, e := newTestHandler()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, _ := w.CreateFormFile("file", "stock.csv")
	part.Write([]byte("Medicine Name,Batch No,Expiry Date,Qty,MRP\nDolo 650,D-1,2027-01-31,100,30\nDolo 650,,2027-01-31,5,30\n"))
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.BulkUpload(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sum stockimport.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum.Total != 2 || sum.Success != 1 || sum.Errors != 1 {
		t.Errorf("unexpected summary %+v", sum)
	}
	if len(f.batches.batches) != 1 {
		t.Errorf("expected 1 batch stored, got %d", len(f.batches.batches))
	}
}

func TestHandler_BulkUpload_MissingFile(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := jsonContext(e, http.MethodPost, "/", `{}`)
	if code := httpCode(h.BulkUpload(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestIsExcel(t *testing.T) {
	cases := []struct {
		name, ctype string
		want        bool
	}{
		{"stock.xlsx", "", true},
		{"STOCK.CSV", xlsxMIME, false},
		{"upload", xlsxMIME, true},
		{"upload", "text/csv", false},
	}
	for _, tc := range cases {
		if got := isExcel(tc.name, tc.ctype); got != tc.want {
			t.Errorf("isExcel(%q, %q) = %v, want %v", tc.name, tc.ctype, got, tc.want)
		}
	}
}

func TestHandler_DownloadTemplate(t *testing.T) {
	h, _, e := newTestHandler()
	c, rec := jsonContext(e, http.MethodGet, "/", "")
	if err := h.DownloadTemplate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK || rec.Body.Len() == 0 {
		t.Errorf("expected workbook body, got %d bytes with status %d", rec.Body.Len(), rec.Code)
	}
}
