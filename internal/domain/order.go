package domain

import (
	"strings"
	"time"
)

// OrderStatus enumerates the lifecycle states of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// OrderStatuses lists every known order status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

// Valid reports whether the status is a known enum member.
func (s OrderStatus) Valid() bool {
	for _, candidate := range OrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseOrderStatus normalises raw input into an OrderStatus.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	if status == "canceled" {
		status = OrderStatusCancelled
	}
	return status, status.Valid()
}

// PaymentStatus enumerates the states of the payment attached to an order.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// Valid reports whether the payment status is a known enum member.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

const (
	// DefaultPaymentMethod is recorded for card payments captured through the hosted processor.
	DefaultPaymentMethod = "stripe"
	// DefaultCountry is applied to shipping addresses that omit a country.
	DefaultCountry = "Argentina"
	// MaxNotesLength bounds the free-text notes attached to an order.
	MaxNotesLength = 500
)

// OwnerID identifies the account that owns an order. The zero value denotes a guest order.
type OwnerID string

// NormalizeOwnerID converts a raw identifier into its canonical comparable form.
func NormalizeOwnerID(raw string) OwnerID {
	return OwnerID(strings.TrimSpace(raw))
}

// IsGuest reports whether the identifier is empty.
func (id OwnerID) IsGuest() bool {
	return id == ""
}

// Equal compares two owner identifiers; guests never match anyone.
func (id OwnerID) Equal(other OwnerID) bool {
	if id.IsGuest() || other.IsGuest() {
		return false
	}
	return id == other
}

// String returns the raw identifier.
func (id OwnerID) String() string {
	return string(id)
}

// Order is the canonical record of a purchase.
type Order struct {
	ID          string
	OrderNumber string
	UserID      OwnerID
	Customer    Customer
	Shipping    ShippingAddress
	Items       []LineItem
	Pricing     Pricing
	Payment     Payment
	Status      OrderStatus
	Timeline    []TimelineEntry
	Tracking    *Tracking
	Notes       string
	Metadata    map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Customer is the contact snapshot captured at order time.
type Customer struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

// FullName joins the first and last name.
func (c Customer) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
}

// Normalize trims fields and lower-cases the e-mail address.
func (c Customer) Normalize() Customer {
	return Customer{
		FirstName: strings.TrimSpace(c.FirstName),
		LastName:  strings.TrimSpace(c.LastName),
		Email:     strings.ToLower(strings.TrimSpace(c.Email)),
		Phone:     strings.TrimSpace(c.Phone),
	}
}

// ShippingAddress is the delivery snapshot captured at order time.
type ShippingAddress struct {
	Address      string
	City         string
	State        string
	ZipCode      string
	Country      string
	Instructions string
}

// Normalize trims fields and applies the default country.
func (s ShippingAddress) Normalize() ShippingAddress {
	out := ShippingAddress{
		Address:      strings.TrimSpace(s.Address),
		City:         strings.TrimSpace(s.City),
		State:        strings.TrimSpace(s.State),
		ZipCode:      strings.TrimSpace(s.ZipCode),
		Country:      strings.TrimSpace(s.Country),
		Instructions: strings.TrimSpace(s.Instructions),
	}
	if out.Country == "" {
		out.Country = DefaultCountry
	}
	return out
}

// LineItem is a purchased product snapshot. Amounts are in the currency's minor unit.
type LineItem struct {
	ProductRef string
	ProductID  string
	Title      string
	Price      int64
	Quantity   int
	Subtotal   int64
	Image      string
}

// Pricing holds the monetary totals derived from the line items.
type Pricing struct {
	Subtotal int64
	Tax      int64
	Shipping int64
	Total    int64
}

// Payment records the state of the charge backing the order.
type Payment struct {
	Method          string
	Status          PaymentStatus
	PaymentIntentID string
	TransactionID   string
	Currency        string
	PaidAt          *time.Time
}

// TimelineEntry is one append-only record of a status change.
type TimelineEntry struct {
	Status    OrderStatus
	Message   string
	Timestamp time.Time
	UpdatedBy string
}

// Tracking carries carrier details once an order ships.
type Tracking struct {
	Carrier           string
	TrackingNumber    string
	TrackingURL       string
	EstimatedDelivery *time.Time
}

// Owner returns the normalised owner identifier.
func (o Order) Owner() OwnerID {
	return NormalizeOwnerID(string(o.UserID))
}

// IsGuest reports whether the order was placed without an account.
func (o Order) IsGuest() bool {
	return o.Owner().IsGuest()
}

// TotalItems sums the quantities across all line items.
func (o Order) TotalItems() int {
	total := 0
	for _, item := range o.Items {
		total += item.Quantity
	}
	return total
}

// Clone returns a deep copy so callers can mutate without aliasing slices or pointers.
func (o Order) Clone() Order {
	out := o
	if o.Items != nil {
		out.Items = append([]LineItem(nil), o.Items...)
	}
	if o.Timeline != nil {
		out.Timeline = append([]TimelineEntry(nil), o.Timeline...)
	}
	if o.Payment.PaidAt != nil {
		paidAt := *o.Payment.PaidAt
		out.Payment.PaidAt = &paidAt
	}
	if o.Tracking != nil {
		tracking := *o.Tracking
		if o.Tracking.EstimatedDelivery != nil {
			eta := *o.Tracking.EstimatedDelivery
			tracking.EstimatedDelivery = &eta
		}
		out.Tracking = &tracking
	}
	if o.Metadata != nil {
		out.Metadata = make(map[string]any, len(o.Metadata))
		for key, value := range o.Metadata {
			out.Metadata[key] = value
		}
	}
	return out
}

// PublicView strips payment processor identifiers for unauthenticated tracking lookups.
func (o Order) PublicView() Order {
	out := o.Clone()
	out.Payment.PaymentIntentID = ""
	out.Payment.TransactionID = ""
	out.Metadata = nil
	return out
}
