package invoices

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/urishop/api/internal/domain"
)

const (
	defaultCompanyName = "UriShop"
	defaultLocale      = "es-AR"
	defaultCurrency    = "USD"
)

// ErrEmptyDocument is returned when asked to render an invoice without line items.
var ErrEmptyDocument = errors.New("invoices: document has no line items")

// Renderer turns an invoice document into a PDF.
type Renderer interface {
	Render(ctx context.Context, doc Document) ([]byte, error)
}

// DocumentOptions carry presentation settings that do not come from the order.
type DocumentOptions struct {
	CompanyName string
	Locale      string
	TaxRate     decimal.Decimal
	IssuedAt    time.Time
}

// Document is the render-ready view of an order's invoice. Amounts are in minor units.
type Document struct {
	CompanyName  string
	Locale       string
	Currency     string
	OrderID      string
	OrderNumber  string
	Status       string
	IssuedAt     time.Time
	OrderedAt    time.Time
	Customer     DocumentParty
	ShippingTo   []string
	Instructions string
	Lines        []DocumentLine
	Subtotal     int64
	Tax          int64
	TaxRate      decimal.Decimal
	Shipping     int64
	Total        int64
	Notes        string
	PaymentLabel string
}

// DocumentParty identifies the billed customer.
type DocumentParty struct {
	Name  string
	Email string
	Phone string
}

// DocumentLine is one row in the items table.
type DocumentLine struct {
	Title     string
	Quantity  int
	UnitPrice int64
	Subtotal  int64
}

// NewDocument builds the invoice view of an order.
func NewDocument(order domain.Order, opts DocumentOptions) Document {
	company := strings.TrimSpace(opts.CompanyName)
	if company == "" {
		company = defaultCompanyName
	}
	locale := strings.TrimSpace(opts.Locale)
	if locale == "" {
		locale = defaultLocale
	}
	currency := strings.ToUpper(strings.TrimSpace(order.Payment.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	issuedAt := opts.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}

	shipping := order.Shipping
	var shippingTo []string
	for _, line := range []string{
		shipping.Address,
		joinNonEmpty(", ", shipping.City, shipping.State, shipping.ZipCode),
		shipping.Country,
	} {
		if line = strings.TrimSpace(line); line != "" {
			shippingTo = append(shippingTo, line)
		}
	}

	lines := make([]DocumentLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, DocumentLine{
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: item.Price,
			Subtotal:  item.Subtotal,
		})
	}

	return Document{
		CompanyName: company,
		Locale:      locale,
		Currency:    currency,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
		IssuedAt:    issuedAt.UTC(),
		OrderedAt:   order.CreatedAt.UTC(),
		Customer: DocumentParty{
			Name:  order.Customer.FullName(),
			Email: order.Customer.Email,
			Phone: order.Customer.Phone,
		},
		ShippingTo:   shippingTo,
		Instructions: shipping.Instructions,
		Lines:        lines,
		Subtotal:     order.Pricing.Subtotal,
		Tax:          order.Pricing.Tax,
		TaxRate:      opts.TaxRate,
		Shipping:     order.Pricing.Shipping,
		Total:        order.Pricing.Total,
		Notes:        order.Notes,
		PaymentLabel: paymentLabel(order.Payment),
	}
}

// FileName returns the attachment name used when the invoice is downloaded.
func (d Document) FileName() string {
	return FileName(d.OrderNumber)
}

// FileName returns the attachment name for an order number.
func FileName(orderNumber string) string {
	return "invoice-" + strings.TrimSpace(orderNumber) + ".pdf"
}

func (d Document) validate() error {
	if len(d.Lines) == 0 {
		return ErrEmptyDocument
	}
	return nil
}

func paymentLabel(payment domain.Payment) string {
	method := strings.TrimSpace(payment.Method)
	if method == "" {
		method = domain.DefaultPaymentMethod
	}
	return method + " (" + string(payment.Status) + ")"
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, sep)
}
