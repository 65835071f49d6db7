package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger receives structured provider events.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

// StripeProviderConfig configures the StripeProvider. Intents and Refunds replace the live
// client in tests.
type StripeProviderConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Logger   StripeLogger
	Intents  stripePaymentIntentAPI
	Refunds  stripeRefundAPI
}

// StripeProvider implements Provider with the PaymentIntents and Refunds APIs.
type StripeProvider struct {
	intents stripePaymentIntentAPI
	refunds stripeRefundAPI
	logger  StripeLogger
}

// NewStripeProvider constructs a Stripe-backed Provider.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	intents, refunds := cfg.Intents, cfg.Refunds
	if intents == nil || refunds == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		sc := client.New(apiKey, cfg.Backends)
		if intents == nil {
			intents = sc.PaymentIntents
		}
		if refunds == nil {
			refunds = sc.Refunds
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StripeProvider{intents: intents, refunds: refunds, logger: logger}, nil
}

// CreateIntent creates a card PaymentIntent for the server-computed amount.
func (p *StripeProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if req.Amount <= 0 {
		return Intent{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		return Intent{}, fmt.Errorf("%w: currency is required", ErrInvalidRequest)
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.Amount),
		Currency:           stripe.String(currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx
	if email := strings.TrimSpace(req.ReceiptEmail); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}

	intent, err := p.intents.New(params)
	if err != nil {
		return Intent{}, classifyStripeError("create payment intent", err)
	}
	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
		"currency":      string(intent.Currency),
	})
	out := normaliseIntent(intent)
	out.ClientSecret = intent.ClientSecret
	return out, nil
}

// LookupIntent fetches the intent from Stripe. The client secret is never returned.
func (p *StripeProvider) LookupIntent(ctx context.Context, intentID string) (Intent, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return Intent{}, fmt.Errorf("%w: intent id is required", ErrInvalidRequest)
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	intent, err := p.intents.Get(intentID, params)
	if err != nil {
		return Intent{}, classifyStripeError("lookup payment intent", err)
	}
	return normaliseIntent(intent), nil
}

// Refund refunds the intent's captured charge.
func (p *StripeProvider) Refund(ctx context.Context, req RefundRequest) (Refund, error) {
	if strings.TrimSpace(req.IntentID) == "" {
		return Refund{}, fmt.Errorf("%w: intent id is required", ErrInvalidRequest)
	}
	params := &stripe.RefundParams{PaymentIntent: stripe.String(req.IntentID)}
	params.Context = ctx
	if req.Amount != nil {
		params.Amount = stripe.Int64(*req.Amount)
	}
	if reason := stripeRefundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}

	refund, err := p.refunds.New(params)
	if err != nil {
		return Refund{}, classifyStripeError("refund payment intent", err)
	}
	p.logger(ctx, "payments.stripe.intent.refunded", map[string]any{
		"paymentIntent": req.IntentID,
		"refund":        refund.ID,
	})
	return Refund{ID: refund.ID, IntentID: req.IntentID, Amount: refund.Amount, Status: string(refund.Status)}, nil
}

func normaliseIntent(intent *stripe.PaymentIntent) Intent {
	if intent == nil {
		return Intent{}
	}
	out := Intent{
		ID:             intent.ID,
		Status:         normaliseStatus(intent.Status),
		Amount:         intent.Amount,
		AmountReceived: intent.AmountReceived,
		Currency:       strings.ToUpper(string(intent.Currency)),
	}
	if intent.LatestCharge != nil {
		out.LatestChargeID = intent.LatestCharge.ID
	}
	if len(intent.Metadata) > 0 {
		out.Metadata = make(map[string]string, len(intent.Metadata))
		for key, value := range intent.Metadata {
			out.Metadata[key] = value
		}
	}
	return out
}

func normaliseStatus(status stripe.PaymentIntentStatus) Status {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return StatusCanceled
	case stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusRequiresConfirmation:
		return StatusRequiresAction
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		// A declined card leaves the intent waiting for a new payment method.
		return StatusFailed
	default:
		return StatusPending
	}
}

func classifyStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.Code == stripe.ErrorCodeResourceMissing || stripeErr.HTTPStatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %s: %v", ErrIntentNotFound, op, err)
		case stripeErr.HTTPStatusCode >= http.StatusInternalServerError || stripeErr.HTTPStatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, op, err)
		case stripeErr.HTTPStatusCode >= http.StatusBadRequest:
			return fmt.Errorf("%w: %s: %v", ErrInvalidRequest, op, err)
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, op, err)
}

func stripeRefundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.RefundReasonDuplicate):
		return string(stripe.RefundReasonDuplicate)
	case string(stripe.RefundReasonFraudulent):
		return string(stripe.RefundReasonFraudulent)
	case string(stripe.RefundReasonRequestedByCustomer):
		return string(stripe.RefundReasonRequestedByCustomer)
	default:
		return ""
	}
}
