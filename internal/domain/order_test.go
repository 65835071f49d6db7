package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validOrder() Order {
	return Order{
		OrderNumber: "ORD-1-001",
		Customer:    Customer{FirstName: "Ana", LastName: "Diaz", Email: "ana@example.com", Phone: "+54 11 5555"},
		Shipping:    ShippingAddress{Address: "Av. Siempre Viva 742", City: "CABA", State: "BA", ZipCode: "1000", Country: DefaultCountry},
		Items: []LineItem{
			{ProductID: "p-1", Title: "Mouse", Price: 10000, Quantity: 2, Subtotal: 20000},
		},
		Pricing: Pricing{Subtotal: 20000, Tax: 4200, Shipping: 1500, Total: 25700},
		Payment: Payment{Method: DefaultPaymentMethod, Status: PaymentStatusPending, Currency: "USD"},
		Status:  OrderStatusPending,
	}
}

func TestValidateOrderAcceptsConsistentOrder(t *testing.T) {
	if err := ValidateOrder(validOrder()); err != nil {
		t.Fatalf("expected valid order, got %v", err)
	}
}

func TestValidateOrderReportsEveryViolation(t *testing.T) {
	order := validOrder()
	order.Items[0].Quantity = 0
	order.Items[0].Subtotal = 5
	order.Pricing.Total = 1
	order.Notes = strings.Repeat("x", MaxNotesLength+1)
	order.Customer.Email = "nope"

	err := ValidateOrder(order)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	want := map[string]bool{
		"items[0].quantity": false,
		"items[0].subtotal": false,
		"pricing.total":     false,
		"notes":             false,
		"customer.email":    false,
	}
	for _, field := range verr.Fields {
		if _, ok := want[field.Field]; ok {
			want[field.Field] = true
		}
	}
	for field, seen := range want {
		if !seen {
			t.Fatalf("expected violation for %s, got %v", field, verr.Fields)
		}
	}
}

func TestValidateOrderRequiresItems(t *testing.T) {
	order := validOrder()
	order.Items = nil
	order.Pricing = Pricing{}
	if err := ValidateOrder(order); err == nil || !strings.Contains(err.Error(), "items") {
		t.Fatalf("expected items violation, got %v", err)
	}
}

func TestOwnerIDNormalisation(t *testing.T) {
	order := Order{UserID: "  user-1 "}
	if !order.Owner().Equal(NormalizeOwnerID("user-1")) {
		t.Fatalf("expected trimmed owner ids to match")
	}
	if NormalizeOwnerID("").Equal(NormalizeOwnerID("")) {
		t.Fatalf("guest ids must never match")
	}
	if !(Order{}).IsGuest() {
		t.Fatalf("expected empty owner to be guest")
	}
}

func TestPublicViewHidesPaymentIdentifiers(t *testing.T) {
	paidAt := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	order := validOrder()
	order.Payment.PaymentIntentID = "pi_123"
	order.Payment.TransactionID = "ch_123"
	order.Payment.PaidAt = &paidAt

	view := order.PublicView()
	if view.Payment.PaymentIntentID != "" || view.Payment.TransactionID != "" {
		t.Fatalf("expected payment identifiers hidden, got %+v", view.Payment)
	}
	if order.Payment.PaymentIntentID != "pi_123" {
		t.Fatalf("public view must not mutate the source order")
	}
	if view.Payment.PaidAt == nil || !view.Payment.PaidAt.Equal(paidAt) {
		t.Fatalf("expected paidAt preserved")
	}
}

func TestParseOrderStatus(t *testing.T) {
	if status, ok := ParseOrderStatus(" Shipped "); !ok || status != OrderStatusShipped {
		t.Fatalf("expected shipped, got %q %v", status, ok)
	}
	if status, ok := ParseOrderStatus("canceled"); !ok || status != OrderStatusCancelled {
		t.Fatalf("expected cancelled alias, got %q", status)
	}
	if _, ok := ParseOrderStatus("lost"); ok {
		t.Fatalf("expected unknown status rejected")
	}
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 10, 25)
	if p.TotalPages != 3 || !p.HasNextPage || !p.HasPrevPage || p.CurrentPage != 2 || p.Limit != 10 {
		t.Fatalf("unexpected pagination %+v", p)
	}
	empty := NewPagination(1, 10, 0)
	if empty.TotalPages != 0 || empty.HasNextPage || empty.HasPrevPage {
		t.Fatalf("unexpected empty pagination %+v", empty)
	}
}
