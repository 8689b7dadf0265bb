package reporting

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/xuri/excelize/v2"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/pkg/dates"
)

// DefaultRangeDays is the window used when a dated report gets no from/to.
const DefaultRangeDays = 30

// MeasureDefinition is a canned report backed by one SQL query. Dated
// measures take the inclusive range as $1 (from) and $2 (to).
type MeasureDefinition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	SQL         string `json:"-"`
	Dated       bool   `json:"dated"`
}

// MeasureReport holds the rows a measure produced, columns in query order.
type MeasureReport struct {
	MeasureID   string                   `json:"measure_id"`
	MeasureName string                   `json:"measure_name"`
	GeneratedAt time.Time                `json:"generated_at"`
	From        *dates.Date              `json:"from,omitempty"`
	To          *dates.Date              `json:"to,omitempty"`
	Columns     []string                 `json:"columns"`
	Results     []map[string]interface{} `json:"results"`
}

// PredefinedMeasures is the list of available hospital reports.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "patients-by-gender",
		Name:        "Patients by Gender",
		Description: "Registered patients grouped by gender",
		SQL:         `SELECT gender, COUNT(*) AS total FROM patients GROUP BY gender ORDER BY total DESC`,
	},
	{
		ID:          "bed-occupancy-by-ward",
		Name:        "Bed Occupancy by Ward",
		Description: "Bed counts per ward and status. A bed stored as occupied with no active allocation counts as available, as on the ward board",
		SQL: `SELECT b.ward,
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE s.status = 'occupied') AS occupied,
			COUNT(*) FILTER (WHERE s.status = 'available') AS available,
			COUNT(*) FILTER (WHERE s.status = 'maintenance') AS maintenance
			FROM beds b
			LEFT JOIN bed_allocations a ON a.bed_id = b.id AND a.status = 'active'
			CROSS JOIN LATERAL (SELECT CASE WHEN b.status = 'occupied' AND a.id IS NULL
				THEN 'available' ELSE b.status END AS status) s
			GROUP BY b.ward ORDER BY b.ward`,
	},
	{
		ID:          "sales-by-payment-method",
		Name:        "Pharmacy Sales by Payment Method",
		Description: "Bill count, billed and collected amounts per payment method",
		SQL: `SELECT payment_method, COUNT(*) AS bills,
			SUM(total)::float8 AS billed, SUM(LEAST(amount_paid, total))::float8 AS collected
			FROM billing WHERE created_at >= $1::date AND created_at < $2::date + 1
			GROUP BY payment_method ORDER BY billed DESC`,
		Dated: true,
	},
	{
		ID:          "top-selling-medications",
		Name:        "Top Selling Medications",
		Description: "Units sold and revenue per medication, best sellers first",
		SQL: `SELECT i.medication_name, SUM(i.quantity) AS units, SUM(i.line_total)::float8 AS revenue
			FROM billing_item i JOIN billing b ON b.id = i.bill_id
			WHERE b.created_at >= $1::date AND b.created_at < $2::date + 1
			GROUP BY i.medication_name ORDER BY units DESC LIMIT 20`,
		Dated: true,
	},
	{
		ID:          "stock-value-by-category",
		Name:        "Stock Value by Category",
		Description: "Units on hand and their purchase and selling value per medication category",
		SQL: `SELECT COALESCE(m.category, 'uncategorized') AS category,
			COALESCE(SUM(b.quantity), 0) AS units,
			COALESCE(SUM(b.quantity * b.purchase_price), 0)::float8 AS purchase_value,
			COALESCE(SUM(b.quantity * b.selling_price), 0)::float8 AS selling_value
			FROM medications m LEFT JOIN medicine_batches b
				ON b.medication_id = m.id AND b.expiry_date >= CURRENT_DATE
			WHERE m.is_active GROUP BY 1 ORDER BY selling_value DESC`,
	},
	{
		ID:          "purchases-by-supplier",
		Name:        "Purchases by Supplier",
		Description: "Invoices and spend per supplier",
		SQL: `SELECT supplier, COUNT(*) AS invoices, SUM(grand_total)::float8 AS spend
			FROM purchases WHERE purchase_date BETWEEN $1 AND $2
			GROUP BY supplier ORDER BY spend DESC`,
		Dated: true,
	},
	{
		ID:          "revisits-by-department",
		Name:        "Revisits by Department",
		Description: "Patient visits per department with follow-up outcomes",
		SQL: `SELECT COALESCE(department, 'unassigned') AS department, COUNT(*) AS visits,
			COUNT(*) FILTER (WHERE status = 'completed') AS completed,
			COUNT(*) FILTER (WHERE status = 'missed') AS missed
			FROM patient_revisits WHERE visit_date BETWEEN $1 AND $2
			GROUP BY 1 ORDER BY visits DESC`,
		Dated: true,
	},
}

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewHandler(pool *pgxpool.Pool) *Handler {
	return &Handler{pool: pool, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	reportGroup := api.Group("/reports", auth.RequireRole(auth.RoleAdmin))
	reportGroup.GET("/measures", h.ListMeasures)
	reportGroup.GET("/measures/:id/evaluate", h.EvaluateMeasure)
}

func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

// EvaluateMeasure runs a measure for the caller's tenant. format=xlsx returns
// the rows as a workbook instead of JSON.
func (h *Handler) EvaluateMeasure(c echo.Context) error {
	measure := FindMeasure(c.Param("id"))
	if measure == nil {
		return echo.NewHTTPError(http.StatusNotFound, "measure not found")
	}

	report := &MeasureReport{
		MeasureID:   measure.ID,
		MeasureName: measure.Name,
		GeneratedAt: h.now(),
	}
	var args []interface{}
	if measure.Dated {
		from, to, err := resolveRange(c.QueryParam("from"), c.QueryParam("to"), dates.Of(h.now()))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		report.From, report.To = &from, &to
		args = []interface{}{from, to}
	}

	ctx := c.Request().Context()
	cols, rows, err := executeSQL(ctx, db.From(ctx, h.pool), measure.SQL, args...)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("query failed: %v", err))
	}
	report.Columns, report.Results = cols, rows

	if c.QueryParam("format") == "xlsx" {
		c.Response().Header().Set(echo.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s.xlsx"`, measure.ID))
		c.Response().WriteHeader(http.StatusOK)
		return WriteWorkbook(c.Response(), report)
	}
	return c.JSON(http.StatusOK, report)
}

// resolveRange parses the inclusive from/to pair. to defaults to today and
// from to DefaultRangeDays before it.
func resolveRange(fromParam, toParam string, today dates.Date) (dates.Date, dates.Date, error) {
	to := today
	if toParam != "" {
		d, err := dates.Parse(toParam)
		if err != nil {
			return dates.Date{}, dates.Date{}, fmt.Errorf("invalid to date: %s", toParam)
		}
		to = d
	}
	from := to.AddDays(-(DefaultRangeDays - 1))
	if fromParam != "" {
		d, err := dates.Parse(fromParam)
		if err != nil {
			return dates.Date{}, dates.Date{}, fmt.Errorf("invalid from date: %s", fromParam)
		}
		from = d
	}
	if to.Before(from.Time) {
		return dates.Date{}, dates.Date{}, fmt.Errorf("to must not be before from")
	}
	return from, to, nil
}

// executeSQL runs a SQL query and returns its columns and rows as maps.
func executeSQL(ctx context.Context, q db.Querier, sql string, args ...interface{}) ([]string, []map[string]interface{}, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	cols := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		cols[i] = fd.Name
	}

	results := []map[string]interface{}{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, nil, err
		}
		row := make(map[string]interface{}, len(cols))
		for i, name := range cols {
			row[name] = values[i]
		}
		results = append(results, row)
	}
	return cols, results, rows.Err()
}

// WriteWorkbook renders a report as a single-sheet .xlsx with a header row.
func WriteWorkbook(w io.Writer, r *MeasureReport) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Report"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	header := make([]interface{}, len(r.Columns))
	for i, col := range r.Columns {
		header[i] = col
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	if len(r.Columns) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(r.Columns), 1)
		if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
			return err
		}
	}

	for i, row := range r.Results {
		values := make([]interface{}, len(r.Columns))
		for j, col := range r.Columns {
			values[j] = row[col]
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
	}
	return f.Write(w)
}

// FindMeasure looks up a measure by ID.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}
