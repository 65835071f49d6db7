package invoices

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var invoiceTemplate = template.Must(template.New("invoice").Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
<meta charset="utf-8">
<title>Invoice {{.OrderNumber}}</title>
<style>
body { font-family: Helvetica, Arial, sans-serif; color: #222; margin: 0; }
header { border-bottom: 2px solid #333; padding-bottom: 12px; margin-bottom: 20px; }
h1 { margin: 0; font-size: 24px; }
.meta, .party { font-size: 13px; line-height: 1.5; }
table { width: 100%; border-collapse: collapse; margin-top: 16px; font-size: 13px; }
th, td { border-bottom: 1px solid #ddd; padding: 6px 4px; text-align: left; }
td.num, th.num { text-align: right; }
.totals td { border: none; }
.totals .grand td { font-weight: bold; font-size: 15px; border-top: 2px solid #333; }
.notes { margin-top: 20px; font-size: 12px; color: #555; }
</style>
</head>
<body>
<header>
<h1 class="company">{{.CompanyName}}</h1>
<div class="meta">
<div>Invoice <span class="order-number">{{.OrderNumber}}</span></div>
<div>Issued <span class="issued-at">{{.IssuedAt}}</span>{{if .OrderedAt}} &middot; Ordered {{.OrderedAt}}{{end}}</div>
<div>Payment: {{.Payment}}</div>
</div>
</header>
<section class="party">
<strong>Bill to</strong>
<div class="customer-name">{{.Customer.Name}}</div>
<div class="customer-email">{{.Customer.Email}}</div>
{{if .Customer.Phone}}<div>{{.Customer.Phone}}</div>{{end}}
<strong>Ship to</strong>
{{range .ShippingTo}}<div class="ship-line">{{.}}</div>{{end}}
{{if .Instructions}}<div class="instructions">{{.Instructions}}</div>{{end}}
</section>
<table class="items">
<thead><tr><th>Product</th><th class="num">Qty</th><th class="num">Unit price</th><th class="num">Subtotal</th></tr></thead>
<tbody>
{{range .Lines}}<tr class="item"><td>{{.Title}}</td><td class="num">{{.Quantity}}</td><td class="num">{{.UnitPrice}}</td><td class="num">{{.Subtotal}}</td></tr>
{{end}}</tbody>
</table>
<table class="totals">
<tr><td>Subtotal</td><td class="num subtotal">{{.Subtotal}}</td></tr>
<tr><td>Tax ({{.TaxRate}})</td><td class="num tax">{{.Tax}}</td></tr>
<tr><td>Shipping</td><td class="num shipping">{{.Shipping}}</td></tr>
<tr class="grand"><td>Total</td><td class="num total">{{.Total}}</td></tr>
</table>
{{if .Notes}}<p class="notes">{{.Notes}}</p>{{end}}
</body>
</html>
`))

type htmlLine struct {
	Title     string
	Quantity  int
	UnitPrice string
	Subtotal  string
}

type htmlView struct {
	Lang         string
	CompanyName  string
	OrderNumber  string
	IssuedAt     string
	OrderedAt    string
	Payment      string
	Customer     DocumentParty
	ShippingTo   []string
	Instructions string
	Lines        []htmlLine
	Subtotal     string
	TaxRate      string
	Tax          string
	Shipping     string
	Total        string
	Notes        string
}

// HTMLDocument renders invoices as standalone HTML pages. Free-text fields are stripped of markup.
type HTMLDocument struct {
	policy *bluemonday.Policy
}

// NewHTMLDocument constructs the HTML invoice builder.
func NewHTMLDocument() *HTMLDocument {
	return &HTMLDocument{policy: bluemonday.StrictPolicy()}
}

// Render executes the invoice template.
func (h *HTMLDocument) Render(doc Document) ([]byte, error) {
	if err := doc.validate(); err != nil {
		return nil, err
	}
	f := NewFormatter(doc.Locale, doc.Currency)

	view := htmlView{
		Lang:         strings.SplitN(doc.Locale, "-", 2)[0],
		CompanyName:  doc.CompanyName,
		OrderNumber:  doc.OrderNumber,
		IssuedAt:     f.Date(doc.IssuedAt),
		OrderedAt:    f.Date(doc.OrderedAt),
		Payment:      doc.PaymentLabel,
		Customer:     doc.Customer,
		ShippingTo:   doc.ShippingTo,
		Instructions: h.sanitize(doc.Instructions),
		Subtotal:     f.Money(doc.Subtotal),
		TaxRate:      f.Percent(doc.TaxRate),
		Tax:          f.Money(doc.Tax),
		Shipping:     shippingLabel(f, doc.Shipping),
		Total:        f.Money(doc.Total),
		Notes:        h.sanitize(doc.Notes),
	}
	for _, line := range doc.Lines {
		view.Lines = append(view.Lines, htmlLine{
			Title:     h.sanitize(line.Title),
			Quantity:  line.Quantity,
			UnitPrice: f.Money(line.UnitPrice),
			Subtotal:  f.Money(line.Subtotal),
		})
	}

	var buf bytes.Buffer
	if err := invoiceTemplate.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("invoices: execute html template: %w", err)
	}
	return buf.Bytes(), nil
}

// sanitize strips markup; the template escapes the remaining text, so entities are decoded first.
func (h *HTMLDocument) sanitize(value string) string {
	return strings.TrimSpace(html.UnescapeString(h.policy.Sanitize(value)))
}

func shippingLabel(f Formatter, amount int64) string {
	if amount == 0 {
		return "FREE"
	}
	return f.Money(amount)
}
