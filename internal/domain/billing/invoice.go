package billing

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"io"

	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"
)

// WriteInvoice renders the invoice PDF of a bill to w. The payment QR code is
// left out when the QR service cannot be reached.
func (s *Service) WriteInvoice(ctx context.Context, id uuid.UUID, w io.Writer) (*Bill, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	var qr []byte
	if s.qr != nil {
		qr, err = s.qr.Fetch(ctx, s.PaymentText(b))
		if err != nil {
			s.logger.Warn().Err(err).Str("bill_number", b.BillNumber).Msg("invoice rendered without qr code")
			qr = nil
		}
	}
	if err := RenderInvoicePDF(w, b, s.issuer, qr); err != nil {
		return nil, err
	}
	return b, nil
}

func rupees(v float64) string {
	return fmt.Sprintf("Rs. %.2f", v)
}

// RenderInvoicePDF writes an A4 invoice for b. qr is an optional PNG; an
// undecodable image is skipped.
func RenderInvoicePDF(w io.Writer, b *Bill, issuer Issuer, qr []byte) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 8, issuer.Hospital, "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 5, "Pharmacy Invoice", "", 1, "L", false, 0, "")
	if issuer.GSTIN != "" {
		pdf.CellFormat(0, 5, "GSTIN: "+issuer.GSTIN, "", 1, "L", false, 0, "")
	}

	if len(qr) > 0 {
		if _, err := png.DecodeConfig(bytes.NewReader(qr)); err == nil {
			opts := gofpdf.ImageOptions{ImageType: "PNG"}
			pdf.RegisterImageOptionsReader("payment-qr", opts, bytes.NewReader(qr))
			pdf.ImageOptions("payment-qr", 160, 12, 35, 35, false, opts, 0, "")
		}
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(95, 6, "Bill No: "+b.BillNumber, "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Date: "+b.CreatedAt.Format("02/01/2006 15:04"), "", 1, "L", false, 0, "")
	if b.CustomerName != nil {
		pdf.CellFormat(95, 6, "Customer: "+*b.CustomerName, "", 0, "L", false, 0, "")
	}
	if b.CustomerPhone != nil {
		pdf.CellFormat(0, 6, "Phone: "+*b.CustomerPhone, "", 0, "L", false, 0, "")
	}
	pdf.Ln(12)

	widths := []float64{10, 70, 30, 20, 25, 25}
	header := []string{"#", "Medicine", "Batch", "Qty", "Rate", "Amount"}
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(230, 243, 255)
	for i, h := range header {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 10)
	for i, it := range b.Items {
		pdf.CellFormat(widths[0], 6, fmt.Sprintf("%d", i+1), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[1], 6, it.MedicationName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[2], 6, it.BatchNumber, "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[3], 6, fmt.Sprintf("%d", it.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[4], 6, fmt.Sprintf("%.2f", it.UnitPrice), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[5], 6, fmt.Sprintf("%.2f", it.LineTotal), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	totals := [][2]string{
		{"Subtotal", rupees(b.Subtotal)},
		{"Discount", "- " + rupees(b.DiscountAmount)},
		{fmt.Sprintf("Tax (%.2f%%)", b.TaxPercent), rupees(b.TaxAmount)},
		{"Total", rupees(b.Total)},
		{"Paid (" + b.PaymentMethod + ")", rupees(b.AmountPaid)},
		{"Balance", rupees(b.Balance())},
	}
	for _, row := range totals {
		style := ""
		if row[0] == "Total" {
			style = "B"
		}
		pdf.SetFont("Arial", style, 10)
		pdf.CellFormat(130, 6, "", "", 0, "", false, 0, "")
		pdf.CellFormat(25, 6, row[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, row[1], "", 1, "R", false, 0, "")
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render invoice: %w", err)
	}
	return nil
}
