package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/urishop/api/internal/platform/auth"
	"github.com/urishop/api/internal/platform/httpx"
	"github.com/urishop/api/internal/platform/requestctx"
	"github.com/urishop/api/internal/services"
)

const (
	maxPaymentIntentBodySize  = 32 * 1024
	maxPaymentConfirmBodySize = 64 * 1024
	idempotencyKeyHeader      = "Idempotency-Key"
)

// PaymentHandlers exposes checkout endpoints under /payments.
type PaymentHandlers struct {
	authn          *auth.Authenticator
	orders         services.OrderService
	publishableKey string
	confirmGuard   func(http.Handler) http.Handler
}

// PaymentHandlerOption customises payment handlers.
type PaymentHandlerOption func(*PaymentHandlers)

// WithPublishableKey sets the browser-facing processor key returned by /payments/config.
func WithPublishableKey(key string) PaymentHandlerOption {
	return func(h *PaymentHandlers) {
		h.publishableKey = strings.TrimSpace(key)
	}
}

// WithConfirmMiddleware wraps the confirm endpoint, typically with idempotency replay.
func WithConfirmMiddleware(mw func(http.Handler) http.Handler) PaymentHandlerOption {
	return func(h *PaymentHandlers) {
		h.confirmGuard = mw
	}
}

// NewPaymentHandlers constructs payment handlers.
func NewPaymentHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...PaymentHandlerOption) *PaymentHandlers {
	h := &PaymentHandlers{authn: authn, orders: orders}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/config", h.config)

	optional := r
	if h.authn != nil {
		optional = r.With(h.authn.OptionalAuth())
	}
	optional.Post("/intents", h.createIntent)

	confirm := optional
	if h.confirmGuard != nil {
		confirm = optional.With(h.confirmGuard)
	}
	confirm.Post("/confirm", h.confirm)
}

func (h *PaymentHandlers) config(w http.ResponseWriter, r *http.Request) {
	if h.publishableKey == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("payments_not_configured", "payment processor is not configured", http.StatusServiceUnavailable))
		return
	}
	writeJSONResponse(w, http.StatusOK, paymentConfigResponse{PublishableKey: h.publishableKey})
}

type paymentConfigResponse struct {
	PublishableKey string `json:"publishable_key"`
}

type lineItemRequest struct {
	ProductID  string `json:"product_id"`
	ProductRef string `json:"product_ref"`
	Title      string `json:"title"`
	Price      int64  `json:"price"`
	Quantity   int    `json:"quantity"`
	Image      string `json:"image"`
}

func toLineItems(items []lineItemRequest) []services.LineItem {
	out := make([]services.LineItem, 0, len(items))
	for _, item := range items {
		out = append(out, services.LineItem{
			ProductID:  item.ProductID,
			ProductRef: item.ProductRef,
			Title:      item.Title,
			Price:      item.Price,
			Quantity:   item.Quantity,
			Image:      item.Image,
		})
	}
	return out
}

type createIntentRequest struct {
	Items    []lineItemRequest `json:"items"`
	Currency string            `json:"currency"`
	Email    string            `json:"email"`
}

type createIntentResponse struct {
	ClientSecret    string         `json:"client_secret"`
	PaymentIntentID string         `json:"payment_intent_id"`
	Status          string         `json:"status"`
	Amount          int64          `json:"amount"`
	Currency        string         `json:"currency"`
	Pricing         pricingPayload `json:"pricing"`
}

func (h *PaymentHandlers) createIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req createIntentRequest
	if err := decodeBody(r, maxPaymentIntentBodySize, &req, false); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if len(req.Items) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_order_request", "items are required", http.StatusBadRequest))
		return
	}

	intent, err := h.orders.CreateIntent(ctx, services.CreateIntentCommand{
		Items:          toLineItems(req.Items),
		Currency:       req.Currency,
		ReceiptEmail:   strings.TrimSpace(req.Email),
		IdempotencyKey: strings.TrimSpace(r.Header.Get(idempotencyKeyHeader)),
		Caller:         callerFromRequest(r),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, createIntentResponse{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		Status:          string(intent.Status),
		Amount:          intent.Amount,
		Currency:        intent.Currency,
		Pricing: pricingPayload{
			Subtotal: intent.Pricing.Subtotal,
			Tax:      intent.Pricing.Tax,
			Shipping: intent.Pricing.Shipping,
			Total:    intent.Pricing.Total,
		},
	})
}

type confirmPaymentRequest struct {
	PaymentIntentID string            `json:"payment_intent_id"`
	Items           []lineItemRequest `json:"items"`
	Customer        customerPayload   `json:"customer"`
	Shipping        shippingPayload   `json:"shipping"`
	Notes           string            `json:"notes"`
}

func (h *PaymentHandlers) confirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req confirmPaymentRequest
	if err := decodeBody(r, maxPaymentConfirmBodySize, &req, false); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if strings.TrimSpace(req.PaymentIntentID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_order_request", "payment_intent_id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.ConfirmCheckout(ctx, services.ConfirmCheckoutCommand{
		PaymentIntentID: req.PaymentIntentID,
		Items:           toLineItems(req.Items),
		Customer: services.Customer{
			FirstName: req.Customer.FirstName,
			LastName:  req.Customer.LastName,
			Email:     req.Customer.Email,
			Phone:     req.Customer.Phone,
		},
		Shipping: services.ShippingAddress{
			Address:      req.Shipping.Address,
			City:         req.Shipping.City,
			State:        req.Shipping.State,
			ZipCode:      req.Shipping.ZipCode,
			Country:      req.Shipping.Country,
			Instructions: req.Shipping.Instructions,
		},
		Notes:  req.Notes,
		Caller: callerFromRequest(r),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	requestctx.Annotate(ctx, "order_id", order.ID)
	requestctx.Annotate(ctx, "order_number", order.OrderNumber)
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}
