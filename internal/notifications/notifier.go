package notifications

import (
	"context"
	"errors"
	"time"

	domain "github.com/urishop/api/internal/domain"
)

// Kind names the customer-facing message a notification triggers.
type Kind string

const (
	KindConfirmation Kind = "confirmation"
	KindShipped      Kind = "shipped"
	KindDelivered    Kind = "delivered"
	KindCancelled    Kind = "cancelled"
)

// ErrUnknownKind is returned for notifications whose kind no driver understands.
var ErrUnknownKind = errors.New("notifications: unknown kind")

// Notification asks a driver to tell the customer about an order event.
type Notification struct {
	ID         string
	Kind       Kind
	Order      domain.Order
	OccurredAt time.Time
}

// Notifier delivers notifications. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, notification Notification) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, notification Notification) error {
	return f(ctx, notification)
}

// Valid reports whether the kind is known.
func (k Kind) Valid() bool {
	switch k {
	case KindConfirmation, KindShipped, KindDelivered, KindCancelled:
		return true
	}
	return false
}

// KindForStatus maps an order status to the notification sent when an order enters it.
// Statuses without a customer message report false.
func KindForStatus(status domain.OrderStatus) (Kind, bool) {
	switch status {
	case domain.OrderStatusConfirmed:
		return KindConfirmation, true
	case domain.OrderStatusShipped:
		return KindShipped, true
	case domain.OrderStatusDelivered:
		return KindDelivered, true
	case domain.OrderStatusCancelled:
		return KindCancelled, true
	}
	return "", false
}

// Subject returns the e-mail subject line used for the notification.
func (n Notification) Subject() string {
	number := n.Order.OrderNumber
	switch n.Kind {
	case KindConfirmation:
		return "Order #" + number + " confirmed"
	case KindShipped:
		return "Order #" + number + " is on its way"
	case KindDelivered:
		return "Order #" + number + " has been delivered"
	case KindCancelled:
		return "Order #" + number + " cancelled"
	}
	return "Order #" + number
}
