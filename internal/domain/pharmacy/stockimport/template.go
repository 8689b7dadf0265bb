package stockimport

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// TemplateHeader is the column order of the downloadable upload template.
var TemplateHeader = []string{
	"Medicine Name", "Generic Name", "Manufacturer", "Category", "Batch No",
	"Expiry Date", "Quantity", "Purchase Price", "Selling Price", "MRP",
	"GST %", "Supplier", "HSN",
}

var templateExample = []interface{}{
	"Paracetamol 500mg", "Paracetamol", "Acme Pharma", "Analgesic", "PCM2401",
	"2027-03-31", 100, 12.5, 18, 20, 12, "City Distributors", "30049099",
}

// Template renders an .xlsx with a bold frozen header and one example row.
func Template() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Stock"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	header := make([]interface{}, len(TemplateHeader))
	for i, h := range TemplateHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}
	last, _ := excelize.CoordinatesToCellName(len(TemplateHeader), 1)
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(sheet, "A2", &templateExample); err != nil {
		return nil, err
	}
	endCol, _ := excelize.ColumnNumberToName(len(TemplateHeader))
	if err := f.SetColWidth(sheet, "A", endCol, 18); err != nil {
		return nil, err
	}
	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
