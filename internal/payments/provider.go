package payments

import (
	"context"
	"errors"
)

// Status is the processor-independent state of a payment intent.
type Status string

const (
	StatusPending        Status = "pending"
	StatusRequiresAction Status = "requires_action"
	StatusSucceeded      Status = "succeeded"
	StatusFailed         Status = "failed"
	StatusCanceled       Status = "canceled"
)

var (
	// ErrIntentNotFound reports an unknown payment intent id.
	ErrIntentNotFound = errors.New("payments: intent not found")
	// ErrProviderUnavailable reports a transport failure or a 5xx from the processor.
	ErrProviderUnavailable = errors.New("payments: provider unavailable")
	// ErrInvalidRequest reports a request the processor rejected as malformed.
	ErrInvalidRequest = errors.New("payments: invalid request")
)

// IntentRequest asks the processor for a client-confirmable payment.
type IntentRequest struct {
	Amount         int64
	Currency       string
	ReceiptEmail   string
	Metadata       map[string]string
	IdempotencyKey string
}

// Intent is the normalised view of a payment intent. ClientSecret is only populated on creation.
type Intent struct {
	ID             string
	ClientSecret   string
	Status         Status
	Amount         int64
	AmountReceived int64
	Currency       string
	LatestChargeID string
	Metadata       map[string]string
}

// RefundRequest refunds an intent. A nil Amount refunds in full.
type RefundRequest struct {
	IntentID       string
	Amount         *int64
	Reason         string
	IdempotencyKey string
}

// Refund is the processor's record of a refund.
type Refund struct {
	ID       string
	IntentID string
	Amount   int64
	Status   string
}

// Provider is the contract the order service relies on. Only server-side lookups are trusted
// to decide whether a payment succeeded.
type Provider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	LookupIntent(ctx context.Context, intentID string) (Intent, error)
	Refund(ctx context.Context, req RefundRequest) (Refund, error)
}
