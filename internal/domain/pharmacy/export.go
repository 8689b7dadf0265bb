package pharmacy

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

var exportHeader = []string{
	"Medicine", "Batch No", "Expiry Date", "Quantity", "Purchase Price",
	"Selling Price", "MRP", "Supplier", "Status",
}

var exportWidths = []float64{30, 15, 14, 10, 15, 14, 10, 25, 14}

func batchState(b *Batch, today, horizon time.Time) string {
	switch {
	case b.Expired(today):
		return "expired"
	case !b.ExpiryDate.After(horizon):
		return "expiring soon"
	case b.Quantity == 0:
		return "out of stock"
	}
	return "ok"
}

// ExportStock writes every batch as an .xlsx workbook to w.
func (s *Service) ExportStock(ctx context.Context, w io.Writer) error {
	stock, err := s.batches.ListStock(ctx)
	if err != nil {
		return err
	}
	return writeStockWorkbook(w, stock, s.today(), s.warningDays)
}

func writeStockWorkbook(w io.Writer, stock []*StockBatch, today time.Time, warningDays int) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Stock"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	for i, h := range exportHeader {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheet, col, col, exportWidths[i]); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(exportHeader), 1)
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}

	horizon := today.AddDate(0, 0, warningDays)
	for i, b := range stock {
		supplier := ""
		if b.Supplier != nil {
			supplier = *b.Supplier
		}
		row := []interface{}{
			b.MedicationName, b.BatchNumber, b.ExpiryDate.Format("2006-01-02"), b.Quantity,
			b.PurchasePrice, b.SellingPrice, b.MRP, supplier, batchState(&b.Batch, today, horizon),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
