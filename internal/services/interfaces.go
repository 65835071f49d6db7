package services

import (
	"context"
	"time"

	domain "github.com/urishop/api/internal/domain"
	"github.com/urishop/api/internal/payments"
	"github.com/urishop/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order           = domain.Order
	OrderStatus     = domain.OrderStatus
	OrderPage       = domain.OrderPage
	OrderStats      = domain.OrderStats
	LineItem        = domain.LineItem
	Pricing         = domain.Pricing
	Customer        = domain.Customer
	ShippingAddress = domain.ShippingAddress
	Tracking        = domain.Tracking
	OwnerID         = domain.OwnerID
	HealthReport    = domain.HealthReport
	OrderListFilter = repositories.OrderListFilter
)

// OrderService owns the order lifecycle from checkout confirmation to refund.
type OrderService interface {
	CreateIntent(ctx context.Context, cmd CreateIntentCommand) (PaymentIntent, error)
	ConfirmCheckout(ctx context.Context, cmd ConfirmCheckoutCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string, caller Caller) (Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (Order, error)
	ListOrders(ctx context.Context, query OrderListQuery, caller Caller) (OrderPage, error)
	TransitionStatus(ctx context.Context, cmd TransitionCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelCommand) (Order, error)
	RenderInvoice(ctx context.Context, orderID string, caller Caller) (Invoice, error)
	Stats(ctx context.Context, caller Caller) (OrderStats, error)
}

// SystemService reports service health for readiness probes.
type SystemService interface {
	HealthReport(ctx context.Context) (HealthReport, error)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// InvoiceArchive stores rendered invoices and returns their object URI.
type InvoiceArchive interface {
	PutInvoice(ctx context.Context, orderID, orderNumber string, pdf []byte) (string, error)
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	OrderID        string         `json:"orderId"`
	OrderNumber    string         `json:"orderNumber"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	CurrentStatus  string         `json:"currentStatus,omitempty"`
	ActorID        string         `json:"actorId,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Caller is the identity an operation runs on behalf of. A zero Caller is an anonymous guest.
type Caller struct {
	ID      OwnerID
	IsAdmin bool
}

// CreateIntentCommand asks for a payment handle covering the given items.
type CreateIntentCommand struct {
	Items          []LineItem
	Currency       string
	ReceiptEmail   string
	Metadata       map[string]string
	IdempotencyKey string
	Caller         Caller
}

// PaymentIntent is returned to the browser so it can confirm the payment client-side.
type PaymentIntent struct {
	ID           string
	ClientSecret string
	Status       payments.Status
	Amount       int64
	Currency     string
	Pricing      Pricing
}

// ConfirmCheckoutCommand turns a succeeded payment intent into a confirmed order.
type ConfirmCheckoutCommand struct {
	PaymentIntentID string
	Items           []LineItem
	Customer        Customer
	Shipping        ShippingAddress
	Notes           string
	Caller          Caller
}

// OrderListQuery carries raw listing parameters as received from the transport layer.
type OrderListQuery struct {
	Status    string
	Search    string
	DateFrom  string
	DateTo    string
	SortBy    string
	SortOrder string
	Page      int
	PageSize  int
	UserID    string
}

// TransitionCommand moves an order to a new status. IssueRefund asks the payment provider to refund
// the captured charge before the order is marked refunded; refunds are never issued otherwise.
type TransitionCommand struct {
	OrderID     string
	Status      string
	Message     string
	Tracking    *Tracking
	IssueRefund bool
	Caller      Caller
}

// CancelCommand cancels an order on behalf of its owner or an administrator.
type CancelCommand struct {
	OrderID string
	Reason  string
	Caller  Caller
}

// Invoice is a rendered PDF ready to be streamed as an attachment.
type Invoice struct {
	FileName   string
	Content    []byte
	ArchiveURI string
}
