package invoice

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
)

// PDFRenderer turns a stored invoice into a printable A4 document.
type PDFRenderer struct {
	ClinicName   string
	CurrencyCode string
}

// Render writes the invoice as a PDF to w.
func (p *PDFRenderer) Render(w io.Writer, inv Invoice) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(inv.Number, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(120, 10, p.clinicName())
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(60, 10, "Invoice "+inv.Number, "", 1, "R", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(95, 6, "Billed to: "+inv.CustomerName)
	pdf.CellFormat(85, 6, "Invoice date: "+inv.InvoiceDate.Format("2006-01-02"), "", 1, "R", false, 0, "")
	pdf.Cell(95, 6, "Status: "+string(inv.Status)+" / "+string(inv.PaymentState))
	pdf.CellFormat(85, 6, "Due date: "+inv.DueDate.Format("2006-01-02"), "", 1, "R", false, 0, "")
	pdf.Cell(95, 6, "")
	pdf.CellFormat(85, 6, "Terms: "+string(inv.PaymentTerms), "", 1, "R", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(235, 235, 235)
	pdf.CellFormat(80, 8, "Description", "1", 0, "L", true, 0, "")
	pdf.CellFormat(20, 8, "Qty", "1", 0, "R", true, 0, "")
	pdf.CellFormat(30, 8, "Unit price", "1", 0, "R", true, 0, "")
	pdf.CellFormat(20, 8, "Tax %", "1", 0, "R", true, 0, "")
	pdf.CellFormat(30, 8, "Amount", "1", 1, "R", true, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	for _, item := range inv.Items {
		pdf.CellFormat(80, 7, item.Description, "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 7, item.Quantity.String(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 7, p.money(item.UnitPrice), "1", 0, "R", false, 0, "")
		pdf.CellFormat(20, 7, item.TaxRatePercent.String(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 7, p.money(item.LineTotal), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	p.totalLine(pdf, "Subtotal", inv.Subtotal, false)
	if !inv.Discount.IsZero() {
		p.totalLine(pdf, "Discount", inv.Discount.Neg(), false)
	}
	if !inv.CoinsRedeemed.IsZero() {
		p.totalLine(pdf, "Coins redeemed", inv.CoinsRedeemed.Neg(), false)
	}
	p.totalLine(pdf, "Tax", inv.TotalTax, false)
	p.totalLine(pdf, "Total", inv.Total, true)
	if !inv.AmountPaid.IsZero() {
		p.totalLine(pdf, "Paid", inv.AmountPaid.Neg(), false)
		p.totalLine(pdf, "Balance due", inv.BalanceDue, true)
	}

	if inv.Notes != "" {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(180, 5, "Notes: "+inv.Notes, "", "L", false)
	}
	return pdf.Output(w)
}

func (p *PDFRenderer) totalLine(pdf *gofpdf.Fpdf, label string, amount decimal.Decimal, bold bool) {
	style := ""
	if bold {
		style = "B"
	}
	pdf.SetFont("Helvetica", style, 10)
	pdf.CellFormat(150, 6, label, "", 0, "R", false, 0, "")
	pdf.CellFormat(30, 6, p.money(amount), "", 1, "R", false, 0, "")
}

func (p *PDFRenderer) money(amount decimal.Decimal) string {
	code := p.CurrencyCode
	if code == "" {
		code = "IDR"
	}
	return fmt.Sprintf("%s %s", code, amount.StringFixed(2))
}

func (p *PDFRenderer) clinicName() string {
	if p.ClinicName == "" {
		return "Klinik Medantara"
	}
	return p.ClinicName
}
