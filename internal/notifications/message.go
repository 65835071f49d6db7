package notifications

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is the wire payload consumed by the mail worker.
type Message struct {
	ID          string           `json:"id"`
	Kind        Kind             `json:"kind"`
	Subject     string           `json:"subject"`
	OrderID     string           `json:"order_id"`
	OrderNumber string           `json:"order_number"`
	Status      string           `json:"status"`
	Recipient   MessageRecipient `json:"recipient"`
	Total       int64            `json:"total"`
	Currency    string           `json:"currency,omitempty"`
	TotalItems  int              `json:"total_items"`
	Tracking    *MessageTracking `json:"tracking,omitempty"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

// MessageRecipient identifies who receives the e-mail.
type MessageRecipient struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// MessageTracking carries carrier details for shipped notifications.
type MessageTracking struct {
	Carrier           string     `json:"carrier,omitempty"`
	TrackingNumber    string     `json:"tracking_number,omitempty"`
	TrackingURL       string     `json:"tracking_url,omitempty"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
}

// NewMessage flattens a notification into its wire form.
func NewMessage(n Notification) (Message, error) {
	if !n.Kind.Valid() {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownKind, n.Kind)
	}
	order := n.Order
	msg := Message{
		ID:          n.ID,
		Kind:        n.Kind,
		Subject:     n.Subject(),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
		Recipient: MessageRecipient{
			Name:  order.Customer.FullName(),
			Email: order.Customer.Email,
		},
		Total:      order.Pricing.Total,
		Currency:   order.Payment.Currency,
		TotalItems: order.TotalItems(),
		OccurredAt: n.OccurredAt.UTC(),
	}
	if order.Tracking != nil {
		msg.Tracking = &MessageTracking{
			Carrier:           order.Tracking.Carrier,
			TrackingNumber:    order.Tracking.TrackingNumber,
			TrackingURL:       order.Tracking.TrackingURL,
			EstimatedDelivery: order.Tracking.EstimatedDelivery,
		}
	}
	return msg, nil
}

func encodeMessage(n Notification) (Message, []byte, error) {
	msg, err := NewMessage(n)
	if err != nil {
		return Message{}, nil, err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return Message{}, nil, fmt.Errorf("notifications: marshal message: %w", err)
	}
	return msg, data, nil
}
