package invoices

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-pdf/fpdf"
)

const (
	pageMargin  = 15.0
	lineHeight  = 6.0
	colProduct  = 95.0
	colQuantity = 20.0
	colUnit     = 32.5
	colSubtotal = 32.5
	labelWidth  = colProduct + colQuantity + colUnit
)

// FPDFRenderer draws invoices in-process with go-pdf/fpdf.
type FPDFRenderer struct{}

// NewFPDFRenderer constructs the in-process PDF renderer.
func NewFPDFRenderer() *FPDFRenderer {
	return &FPDFRenderer{}
}

// Render draws an A4 invoice.
func (r *FPDFRenderer) Render(ctx context.Context, doc Document) ([]byte, error) {
	if err := doc.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f := NewFormatter(doc.Locale, doc.Currency)
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetTitle("Invoice "+doc.OrderNumber, true)
	pdf.SetCreator(doc.CompanyName, true)
	pdf.SetCreationDate(doc.IssuedAt)
	pdf.SetModificationDate(doc.IssuedAt)
	// Core fonts are cp1252; translate UTF-8 input so accented names render.
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 10, tr(doc.CompanyName), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, lineHeight, tr("Invoice "+doc.OrderNumber), "", 1, "L", false, 0, "")
	issued := "Issued " + f.Date(doc.IssuedAt)
	if !doc.OrderedAt.IsZero() {
		issued += "  Ordered " + f.Date(doc.OrderedAt)
	}
	pdf.CellFormat(0, lineHeight, issued, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, lineHeight, tr("Payment: "+doc.PaymentLabel), "B", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, lineHeight, "Bill to", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, line := range []string{doc.Customer.Name, doc.Customer.Email, doc.Customer.Phone} {
		if line != "" {
			pdf.CellFormat(0, 5, tr(line), "", 1, "L", false, 0, "")
		}
	}
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, lineHeight, "Ship to", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, line := range doc.ShippingTo {
		pdf.CellFormat(0, 5, tr(line), "", 1, "L", false, 0, "")
	}
	if doc.Instructions != "" {
		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(0, 5, tr(doc.Instructions), "", "L", false)
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(235, 235, 235)
	pdf.CellFormat(colProduct, 7, "Product", "1", 0, "L", true, 0, "")
	pdf.CellFormat(colQuantity, 7, "Qty", "1", 0, "R", true, 0, "")
	pdf.CellFormat(colUnit, 7, "Unit price", "1", 0, "R", true, 0, "")
	pdf.CellFormat(colSubtotal, 7, "Subtotal", "1", 1, "R", true, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	for _, line := range doc.Lines {
		pdf.CellFormat(colProduct, 7, tr(truncate(line.Title, 60)), "1", 0, "L", false, 0, "")
		pdf.CellFormat(colQuantity, 7, fmt.Sprintf("%d", line.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(colUnit, 7, tr(f.Money(line.UnitPrice)), "1", 0, "R", false, 0, "")
		pdf.CellFormat(colSubtotal, 7, tr(f.Money(line.Subtotal)), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(2)

	totals := []struct {
		label string
		value string
	}{
		{"Subtotal", f.Money(doc.Subtotal)},
		{"Tax (" + f.Percent(doc.TaxRate) + ")", f.Money(doc.Tax)},
		{"Shipping", shippingLabel(f, doc.Shipping)},
	}
	for _, row := range totals {
		pdf.CellFormat(labelWidth, lineHeight, row.label, "", 0, "R", false, 0, "")
		pdf.CellFormat(colSubtotal, lineHeight, tr(row.value), "", 1, "R", false, 0, "")
	}
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(labelWidth, 8, "Total", "T", 0, "R", false, 0, "")
	pdf.CellFormat(colSubtotal, 8, tr(f.Money(doc.Total)), "T", 1, "R", false, 0, "")

	if doc.Notes != "" {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(0, 5, tr("Notes: "+doc.Notes), "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("invoices: write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
