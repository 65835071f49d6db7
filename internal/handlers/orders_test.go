package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/go-chi/chi/v5"

	domain "github.com/urishop/api/internal/domain"
	"github.com/urishop/api/internal/platform/auth"
	"github.com/urishop/api/internal/services"
)

type stubOrderService struct {
	createIntentFn func(context.Context, services.CreateIntentCommand) (services.PaymentIntent, error)
	confirmFn      func(context.Context, services.ConfirmCheckoutCommand) (services.Order, error)
	getFn          func(context.Context, string, services.Caller) (services.Order, error)
	byNumberFn     func(context.Context, string) (services.Order, error)
	listFn         func(context.Context, services.OrderListQuery, services.Caller) (services.OrderPage, error)
	transitionFn   func(context.Context, services.TransitionCommand) (services.Order, error)
	cancelFn       func(context.Context, services.CancelCommand) (services.Order, error)
	invoiceFn      func(context.Context, string, services.Caller) (services.Invoice, error)
	statsFn        func(context.Context, services.Caller) (services.OrderStats, error)
}

var _ services.OrderService = (*stubOrderService)(nil)

func (s *stubOrderService) CreateIntent(ctx context.Context, cmd services.CreateIntentCommand) (services.PaymentIntent, error) {
	if s.createIntentFn != nil {
		return s.createIntentFn(ctx, cmd)
	}
	return services.PaymentIntent{}, errors.New("not implemented")
}

func (s *stubOrderService) ConfirmCheckout(ctx context.Context, cmd services.ConfirmCheckoutCommand) (services.Order, error) {
	if s.confirmFn != nil {
		return s.confirmFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string, caller services.Caller) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID, caller)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrderByNumber(ctx context.Context, number string) (services.Order, error) {
	if s.byNumberFn != nil {
		return s.byNumberFn(ctx, number)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ListOrders(ctx context.Context, query services.OrderListQuery, caller services.Caller) (services.OrderPage, error) {
	if s.listFn != nil {
		return s.listFn(ctx, query, caller)
	}
	return services.OrderPage{}, nil
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.TransitionCommand) (services.Order, error) {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelCommand) (services.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) RenderInvoice(ctx context.Context, orderID string, caller services.Caller) (services.Invoice, error) {
	if s.invoiceFn != nil {
		return s.invoiceFn(ctx, orderID, caller)
	}
	return services.Invoice{}, errors.New("not implemented")
}

func (s *stubOrderService) Stats(ctx context.Context, caller services.Caller) (services.OrderStats, error) {
	if s.statsFn != nil {
		return s.statsFn(ctx, caller)
	}
	return services.OrderStats{}, errors.New("not implemented")
}

type stubTokenVerifier struct {
	tokens map[string]*firebaseauth.Token
}

func (s *stubTokenVerifier) VerifyIDToken(_ context.Context, idToken string) (*firebaseauth.Token, error) {
	if token, ok := s.tokens[idToken]; ok {
		return token, nil
	}
	return nil, errors.New("invalid token")
}

func newTestAuthenticator() *auth.Authenticator {
	return auth.NewAuthenticator(&stubTokenVerifier{tokens: map[string]*firebaseauth.Token{
		"customer": {UID: "user-1", Claims: map[string]interface{}{"email": "ana@example.com"}},
		"admin":    {UID: "admin-1", Claims: map[string]interface{}{"role": "admin"}},
	}})
}

func newOrderRouter(h *OrderHandlers) chi.Router {
	r := chi.NewRouter()
	r.Route("/orders", h.Routes)
	return r
}

func doRequest(t *testing.T, handler http.Handler, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rr.Body.String())
	}
	code, _ := payload["error"].(string)
	return code
}

func sampleOrder() services.Order {
	created := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	paidAt := created
	return services.Order{
		ID:          "ord_1",
		OrderNumber: "ORD-1767261600000-042",
		UserID:      "user-1",
		Customer:    domain.Customer{FirstName: "Ana", LastName: "Diaz", Email: "ana@example.com"},
		Shipping:    domain.ShippingAddress{Address: "Calle 1", City: "Rosario", State: "SF", ZipCode: "2000", Country: "Argentina"},
		Items: []domain.LineItem{
			{ProductID: "p1", Title: "Mate", Price: 10000, Quantity: 2, Subtotal: 20000},
		},
		Pricing: domain.Pricing{Subtotal: 20000, Tax: 4200, Shipping: 1500, Total: 25700},
		Payment: domain.Payment{
			Method:          domain.DefaultPaymentMethod,
			Status:          domain.PaymentStatusCompleted,
			PaymentIntentID: "pi_1",
			Currency:        "USD",
			PaidAt:          &paidAt,
		},
		Status: domain.OrderStatusConfirmed,
		Timeline: []domain.TimelineEntry{
			{Status: domain.OrderStatusConfirmed, Message: "confirmed", Timestamp: created, UpdatedBy: "user-1"},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestOrderHandlersListParsesQuery(t *testing.T) {
	var gotQuery services.OrderListQuery
	var gotCaller services.Caller
	svc := &stubOrderService{
		listFn: func(_ context.Context, q services.OrderListQuery, caller services.Caller) (services.OrderPage, error) {
			gotQuery = q
			gotCaller = caller
			return services.OrderPage{
				Orders:     []services.Order{sampleOrder()},
				Pagination: domain.NewPagination(2, 5, 11),
			}, nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(newTestAuthenticator(), svc))

	rr := doRequest(t, router, http.MethodGet, "/orders?page=2&limit=5&status=shipped&search=ana&date_from=2026-01-01&sort_by=total&sort_order=asc", "customer", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotQuery.Page != 2 || gotQuery.PageSize != 5 || gotQuery.Status != "shipped" || gotQuery.Search != "ana" {
		t.Fatalf("unexpected query %+v", gotQuery)
	}
	if gotQuery.DateFrom != "2026-01-01" || gotQuery.SortBy != "total" || gotQuery.SortOrder != "asc" {
		t.Fatalf("unexpected query %+v", gotQuery)
	}
	if gotCaller.ID != "user-1" || gotCaller.IsAdmin {
		t.Fatalf("unexpected caller %+v", gotCaller)
	}

	var body struct {
		Orders []struct {
			ID          string `json:"id"`
			OrderNumber string `json:"order_number"`
			TotalItems  int    `json:"total_items"`
		} `json:"orders"`
		Pagination struct {
			CurrentPage int  `json:"current_page"`
			TotalPages  int  `json:"total_pages"`
			TotalOrders int  `json:"total_orders"`
			HasNextPage bool `json:"has_next_page"`
			HasPrevPage bool `json:"has_prev_page"`
			Limit       int  `json:"limit"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Orders) != 1 || body.Orders[0].OrderNumber != "ORD-1767261600000-042" || body.Orders[0].TotalItems != 2 {
		t.Fatalf("unexpected orders %+v", body.Orders)
	}
	p := body.Pagination
	if p.CurrentPage != 2 || p.TotalPages != 3 || p.TotalOrders != 11 || !p.HasNextPage || !p.HasPrevPage || p.Limit != 5 {
		t.Fatalf("unexpected pagination %+v", p)
	}
}

func TestOrderHandlersListRejectsBadPage(t *testing.T) {
	router := newOrderRouter(NewOrderHandlers(newTestAuthenticator(), &stubOrderService{}))
	rr := doRequest(t, router, http.MethodGet, "/orders?page=zero", "customer", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestOrderHandlersListRequiresAuth(t *testing.T) {
	router := newOrderRouter(NewOrderHandlers(newTestAuthenticator(), &stubOrderService{}))
	rr := doRequest(t, router, http.MethodGet, "/orders", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestOrderHandlersStatsAdminOnly(t *testing.T) {
	svc := &stubOrderService{
		statsFn: func(_ context.Context, caller services.Caller) (services.OrderStats, error) {
			if !caller.IsAdmin {
				t.Fatalf("expected admin caller")
			}
			return services.OrderStats{
				TotalOrders:  3,
				TotalRevenue: 70000,
				ByStatus:     []domain.StatusStat{{Status: domain.OrderStatusConfirmed, Count: 2, TotalAmount: 70000}},
			}, nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(newTestAuthenticator(), svc))

	if rr := doRequest(t, router, http.MethodGet, "/orders/stats/summary", "customer", ""); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer, got %d", rr.Code)
	}

	rr := doRequest(t, router, http.MethodGet, "/orders/stats/summary", "admin", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Stats struct {
			TotalOrders  int   `json:"total_orders"`
			TotalRevenue int64 `json:"total_revenue"`
			ByStatus     []struct {
				Status string `json:"status"`
				Count  int    `json:"count"`
			} `json:"by_status"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Stats.TotalOrders != 3 || body.Stats.TotalRevenue != 70000 || len(body.Stats.ByStatus) != 1 {
		t.Fatalf("unexpected stats %+v", body.Stats)
	}
}

func TestOrderHandlersGetByNumberIsPublicAndRateLimited(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	svc := &stubOrderService{
		byNumberFn: func(_ context.Context, number string) (services.Order, error) {
			if number != "ORD-1-001" {
				return services.Order{}, services.ErrOrderNotFound
			}
			return sampleOrder().PublicView(), nil
		},
	}
	limiter := newSimpleRateLimiter(2, time.Minute, func() time.Time { return now })
	router := newOrderRouter(NewOrderHandlers(newTestAuthenticator(), svc, WithTrackingRateLimiter(limiter)))

	rr := doRequest(t, router, http.MethodGet, "/orders/number/ORD-1-001", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "pi_1") {
		t.Fatalf("expected payment intent to be hidden, got %s", rr.Body.String())
	}

	rr = doRequest(t, router, http.MethodGet, "/orders/number/ORD-missing", "", "")
	if rr.Code != http.StatusNotFound || errorCode(t, rr) != "order_not_found" {
		t.Fatalf("expected 404 order_not_found, got %d %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, router, http.MethodGet, "/orders/number/ORD-1-001", "", "")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after budget exhausted, got %d", rr.Code)
	}
}

func TestOrderHandlersGetMapsErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "not found", err: services.ErrOrderNotFound, status: http.StatusNotFound, code: "order_not_found"},
		{name: "forbidden", err: services.ErrOrderForbidden, status: http.StatusForbidden, code: "order_forbidden"},
		{name: "unavailable", err: fmt.Errorf("%w: firestore down", services.ErrOrderUnavailable), status: http.StatusServiceUnavailable, code: "upstream_unavailable"},
		{name: "unknown", err: errors.New("boom"), status: http.StatusInternalServerError, code: "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubOrderService{
				getFn: func(context.Context, string, services.Caller) (services.Order, error) {
					return services.Order{}, tc.err
				},
			}
			router := newOrderRouter(NewOrderHandlers(newTestAuthenticator(), svc))
			rr := doRequest(t, router, http.MethodGet, "/orders/ord_1", "customer", "")
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			if code := errorCode(t, rr); code != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, code)
			}
		})
	}
}

func TestOrderHandlersUpdateStatus(t *testing.T) {
	var got services.TransitionCommand
	svc := &stubOrderService{
		transitionFn: func(_ context.Context, cmd services.TransitionCommand) (services.Order, error) {
			got = cmd
			order := sampleOrder()
			order.Status = domain.OrderStatusShipped
			eta := order.CreatedAt.Add(7 * 24 * time.Hour)
			order.Tracking = &domain.Tracking{Carrier: "OCA", TrackingNumber: "T-1", EstimatedDelivery: &eta}
			return order, nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(newTestAuthenticator(), svc))

	body := `{"status":"shipped","message":"on its way","tracking":{"carrier":"OCA","tracking_number":"T-1"}}`
	if rr := doRequest(t, router, http.MethodPatch, "/orders/ord_1/status", "customer", body); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer, got %d", rr.Code)
	}

	rr := doRequest(t, router, http.MethodPatch, "/orders/ord_1/status", "admin", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.OrderID != "ord_1" || got.Status != "shipped" || got.Message != "on its way" || !got.Caller.IsAdmin {
		t.Fatalf("unexpected command %+v", got)
	}
	if got.Tracking == nil || got.Tracking.Carrier != "OCA" || got.Tracking.TrackingNumber != "T-1" {
		t.Fatalf("unexpected tracking %+v", got.Tracking)
	}

	var resp struct {
		Order struct {
			Status   string `json:"status"`
			Tracking struct {
				EstimatedDelivery string `json:"estimated_delivery"`
			} `json:"tracking"`
		} `json:"order"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Order.Status != "shipped" || resp.Order.Tracking.EstimatedDelivery == "" {
		t.Fatalf("unexpected response %+v", resp.Order)
	}
}

func TestOrderHandlersUpdateStatusValidation(t *testing.T) {
	svc := &stubOrderService{
		transitionFn: func(context.Context, services.TransitionCommand) (services.Order, error) {
			return services.Order{}, fmt.Errorf("%w: delivered -> pending", services.ErrOrderInvalidTransition)
		},
	}
	router := newOrderRouter(NewOrderHandlers(newTestAuthenticator(), svc))

	if rr := doRequest(t, router, http.MethodPatch, "/orders/ord_1/status", "admin", `{"message":"x"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing status, got %d", rr.Code)
	}
	if rr := doRequest(t, router, http.MethodPatch, "/orders/ord_1/status", "admin", `{`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rr.Code)
	}
	rr := doRequest(t, router, http.MethodPatch, "/orders/ord_1/status", "admin", `{"status":"pending"}`)
	if rr.Code != http.StatusConflict || errorCode(t, rr) != "invalid_transition" {
		t.Fatalf("expected 409 invalid_transition, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestOrderHandlersCancel(t *testing.T) {
	var got services.CancelCommand
	svc := &stubOrderService{
		cancelFn: func(_ context.Context, cmd services.CancelCommand) (services.Order, error) {
			got = cmd
			if cmd.Reason == "late" {
				return services.Order{}, services.ErrOrderInvalidCancellationState
			}
			order := sampleOrder()
			order.Status = domain.OrderStatusCancelled
			return order, nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(newTestAuthenticator(), svc))

	rr := doRequest(t, router, http.MethodPatch, "/orders/ord_1/cancel", "customer", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with empty body, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.OrderID != "ord_1" || got.Caller.ID != "user-1" || got.Reason != "" {
		t.Fatalf("unexpected command %+v", got)
	}

	rr = doRequest(t, router, http.MethodPatch, "/orders/ord_1/cancel", "customer", `{"reason":"late"}`)
	if rr.Code != http.StatusConflict || errorCode(t, rr) != "order_not_cancellable" {
		t.Fatalf("expected 409 order_not_cancellable, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestOrderHandlersInvoice(t *testing.T) {
	pdf := []byte("%PDF-1.4 test")
	svc := &stubOrderService{
		invoiceFn: func(_ context.Context, orderID string, caller services.Caller) (services.Invoice, error) {
			if caller.ID != "user-1" {
				return services.Invoice{}, services.ErrOrderForbidden
			}
			return services.Invoice{FileName: "invoice-ORD-1-001.pdf", Content: pdf}, nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(newTestAuthenticator(), svc))

	rr := doRequest(t, router, http.MethodGet, "/orders/ord_1/invoice", "customer", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); cd != `attachment; filename="invoice-ORD-1-001.pdf"` {
		t.Fatalf("unexpected disposition %q", cd)
	}
	if cc := rr.Header().Get("Cache-Control"); !strings.Contains(cc, "no-cache") {
		t.Fatalf("expected no-cache, got %q", cc)
	}
	if rr.Body.String() != string(pdf) {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}

	rr = doRequest(t, router, http.MethodGet, "/orders/ord_1/invoice", "admin", "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestWriteOrderErrorIncludesFieldDetails(t *testing.T) {
	verr := &domain.ValidationError{Fields: []domain.FieldError{{Field: "customer.email", Message: "invalid email"}}}
	rr := httptest.NewRecorder()
	writeOrderError(context.Background(), rr, fmt.Errorf("%w: %w", services.ErrOrderInvalidInput, verr))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "customer.email") {
		t.Fatalf("expected field details, got %s", rr.Body.String())
	}
}
