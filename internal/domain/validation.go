package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// FieldError describes a single invalid field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError aggregates every invalid field found on an order.
type ValidationError struct {
	Fields []FieldError
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "order validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, field := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field.Field, field.Message))
	}
	return "order validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// ValidateLineItem checks the per-item constraints enforced at order creation.
func ValidateLineItem(item LineItem) error {
	verr := &ValidationError{}
	validateLineItem(verr, "item", item)
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// ValidateOrder checks the invariants an order must satisfy before it is persisted.
func ValidateOrder(order Order) error {
	verr := &ValidationError{}

	if strings.TrimSpace(order.Customer.FirstName) == "" {
		verr.add("customer.firstName", "is required")
	}
	if strings.TrimSpace(order.Customer.LastName) == "" {
		verr.add("customer.lastName", "is required")
	}
	if email := strings.TrimSpace(order.Customer.Email); email == "" || !strings.Contains(email, "@") {
		verr.add("customer.email", "must be a valid e-mail address")
	}
	if strings.TrimSpace(order.Customer.Phone) == "" {
		verr.add("customer.phone", "is required")
	}

	if strings.TrimSpace(order.Shipping.Address) == "" {
		verr.add("shipping.address", "is required")
	}
	if strings.TrimSpace(order.Shipping.City) == "" {
		verr.add("shipping.city", "is required")
	}
	if strings.TrimSpace(order.Shipping.State) == "" {
		verr.add("shipping.state", "is required")
	}
	if strings.TrimSpace(order.Shipping.ZipCode) == "" {
		verr.add("shipping.zipCode", "is required")
	}

	if len(order.Items) == 0 {
		verr.add("items", "must contain at least one item")
	}
	for i, item := range order.Items {
		validateLineItem(verr, fmt.Sprintf("items[%d]", i), item)
	}

	p := order.Pricing
	if p.Subtotal < 0 {
		verr.add("pricing.subtotal", "must not be negative")
	}
	if p.Tax < 0 {
		verr.add("pricing.tax", "must not be negative")
	}
	if p.Shipping < 0 {
		verr.add("pricing.shipping", "must not be negative")
	}
	if p.Total < 0 {
		verr.add("pricing.total", "must not be negative")
	}
	if p.Total != p.Subtotal+p.Tax+p.Shipping {
		verr.add("pricing.total", "must equal subtotal + tax + shipping")
	}

	if !order.Status.Valid() {
		verr.add("status", fmt.Sprintf("unknown status %q", order.Status))
	}
	if !order.Payment.Status.Valid() {
		verr.add("payment.status", fmt.Sprintf("unknown payment status %q", order.Payment.Status))
	}
	if utf8.RuneCountInString(order.Notes) > MaxNotesLength {
		verr.add("notes", fmt.Sprintf("must not exceed %d characters", MaxNotesLength))
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

func validateLineItem(verr *ValidationError, prefix string, item LineItem) {
	if strings.TrimSpace(item.ProductID) == "" {
		verr.add(prefix+".productId", "is required")
	}
	if strings.TrimSpace(item.Title) == "" {
		verr.add(prefix+".title", "is required")
	}
	if item.Price < 0 {
		verr.add(prefix+".price", "must not be negative")
	}
	if item.Quantity < 1 {
		verr.add(prefix+".quantity", "must be at least 1")
	}
	if item.Subtotal != item.Price*int64(item.Quantity) {
		verr.add(prefix+".subtotal", "must equal price * quantity")
	}
}
