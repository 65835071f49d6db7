package payments

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stripe/stripe-go/v78"
)

type fakeIntents struct {
	created *stripe.PaymentIntentParams
	intent  *stripe.PaymentIntent
	err     error
}

func (f *fakeIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.created = params
	if f.err != nil {
		return nil, f.err
	}
	return f.intent, nil
}

func (f *fakeIntents) Get(id string, _ *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.intent == nil || f.intent.ID != id {
		return nil, &stripe.Error{Code: stripe.ErrorCodeResourceMissing, HTTPStatusCode: http.StatusNotFound}
	}
	return f.intent, nil
}

type fakeRefunds struct {
	params *stripe.RefundParams
}

func (f *fakeRefunds) New(params *stripe.RefundParams) (*stripe.Refund, error) {
	f.params = params
	return &stripe.Refund{ID: "re_1", Amount: 25700, Status: stripe.RefundStatusSucceeded}, nil
}

func newTestProvider(t *testing.T, intents *fakeIntents, refunds *fakeRefunds) *StripeProvider {
	t.Helper()
	provider, err := NewStripeProvider(StripeProviderConfig{Intents: intents, Refunds: refunds})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}
	return provider
}

func TestCreateIntentSendsServerAmount(t *testing.T) {
	intents := &fakeIntents{intent: &stripe.PaymentIntent{
		ID:           "pi_1",
		ClientSecret: "pi_1_secret",
		Amount:       25700,
		Currency:     "usd",
		Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
	}}
	provider := newTestProvider(t, intents, &fakeRefunds{})

	intent, err := provider.CreateIntent(context.Background(), IntentRequest{
		Amount: 25700, Currency: "USD", Metadata: map[string]string{"items": "2"}, IdempotencyKey: "k-1",
	})
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	if intent.ClientSecret != "pi_1_secret" || intent.Currency != "USD" {
		t.Fatalf("unexpected intent %+v", intent)
	}
	if got := *intents.created.Amount; got != 25700 {
		t.Fatalf("expected amount 25700, got %d", got)
	}
	if got := *intents.created.Currency; got != "usd" {
		t.Fatalf("expected lower-case currency, got %s", got)
	}
	if intents.created.Metadata["items"] != "2" {
		t.Fatalf("expected metadata forwarded")
	}
}

func TestCreateIntentRejectsNonPositiveAmount(t *testing.T) {
	provider := newTestProvider(t, &fakeIntents{}, &fakeRefunds{})
	if _, err := provider.CreateIntent(context.Background(), IntentRequest{Amount: 0, Currency: "usd"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestLookupIntentNormalisesStatus(t *testing.T) {
	intents := &fakeIntents{intent: &stripe.PaymentIntent{
		ID:             "pi_1",
		Amount:         25700,
		AmountReceived: 25700,
		Currency:       "usd",
		Status:         stripe.PaymentIntentStatusSucceeded,
		ClientSecret:   "must-not-leak",
		LatestCharge:   &stripe.Charge{ID: "ch_1"},
	}}
	provider := newTestProvider(t, intents, &fakeRefunds{})

	intent, err := provider.LookupIntent(context.Background(), "pi_1")
	if err != nil {
		t.Fatalf("LookupIntent: %v", err)
	}
	if intent.Status != StatusSucceeded || intent.LatestChargeID != "ch_1" || intent.ClientSecret != "" {
		t.Fatalf("unexpected intent %+v", intent)
	}

	if _, err := provider.LookupIntent(context.Background(), "pi_missing"); !errors.Is(err, ErrIntentNotFound) {
		t.Fatalf("expected ErrIntentNotFound, got %v", err)
	}
}

func TestLookupIntentClassifiesOutages(t *testing.T) {
	provider := newTestProvider(t, &fakeIntents{err: &stripe.Error{HTTPStatusCode: http.StatusBadGateway}}, &fakeRefunds{})
	if _, err := provider.LookupIntent(context.Background(), "pi_1"); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestNormaliseStatus(t *testing.T) {
	cases := map[stripe.PaymentIntentStatus]Status{
		stripe.PaymentIntentStatusSucceeded:             StatusSucceeded,
		stripe.PaymentIntentStatusCanceled:              StatusCanceled,
		stripe.PaymentIntentStatusRequiresAction:        StatusRequiresAction,
		stripe.PaymentIntentStatusRequiresPaymentMethod: StatusFailed,
		stripe.PaymentIntentStatusProcessing:            StatusPending,
	}
	for in, want := range cases {
		if got := normaliseStatus(in); got != want {
			t.Fatalf("status %s: expected %s, got %s", in, want, got)
		}
	}
}

func TestRefundMapsReason(t *testing.T) {
	refunds := &fakeRefunds{}
	provider := newTestProvider(t, &fakeIntents{}, refunds)
	refund, err := provider.Refund(context.Background(), RefundRequest{IntentID: "pi_1", Reason: "requested_by_customer"})
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if refund.ID != "re_1" || *refunds.params.Reason != "requested_by_customer" || refunds.params.Amount != nil {
		t.Fatalf("unexpected refund %+v", refund)
	}
}
