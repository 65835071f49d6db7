package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/urishop/api/internal/domain"
	"github.com/urishop/api/internal/platform/auth"
	"github.com/urishop/api/internal/platform/httpx"
	"github.com/urishop/api/internal/services"
)

const (
	maxOrderStatusBodySize = 8 * 1024
	maxOrderCancelBodySize = 4 * 1024
)

// OrderHandlers exposes the /orders endpoints.
type OrderHandlers struct {
	authn    *auth.Authenticator
	orders   services.OrderService
	tracking RateLimiter
}

// OrderHandlerOption customises order handlers.
type OrderHandlerOption func(*OrderHandlers)

// WithTrackingRateLimiter throttles the public order-number lookup per client IP.
func WithTrackingRateLimiter(limiter RateLimiter) OrderHandlerOption {
	return func(h *OrderHandlers) {
		h.tracking = limiter
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlerOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	public := r.With(rateLimitMiddleware(h.tracking, "order_tracking"))
	public.Get("/number/{orderNumber}", h.getOrderByNumber)

	authed := r
	admin := r
	if h.authn != nil {
		authed = r.With(h.authn.RequireAuth())
		admin = r.With(h.authn.RequireAuth(auth.RoleAdmin))
	}
	authed.Get("/", h.listOrders)
	admin.Get("/stats/summary", h.stats)
	authed.Get("/{orderId}", h.getOrder)
	admin.Patch("/{orderId}/status", h.updateStatus)
	authed.Patch("/{orderId}/cancel", h.cancelOrder)
	authed.Get("/{orderId}/invoice", h.invoice)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	params := r.URL.Query()
	page, err := parsePositiveInt(params.Get("page"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_order_request", "page must be a positive integer", http.StatusBadRequest))
		return
	}
	limit, err := parsePositiveInt(firstNonEmpty(params.Get("limit"), params.Get("page_size")))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_order_request", "limit must be a positive integer", http.StatusBadRequest))
		return
	}

	query := services.OrderListQuery{
		Status:    params.Get("status"),
		Search:    params.Get("search"),
		DateFrom:  firstNonEmpty(params.Get("date_from"), params.Get("dateFrom")),
		DateTo:    firstNonEmpty(params.Get("date_to"), params.Get("dateTo")),
		SortBy:    firstNonEmpty(params.Get("sort_by"), params.Get("sortBy")),
		SortOrder: firstNonEmpty(params.Get("sort_order"), params.Get("sortOrder")),
		Page:      page,
		PageSize:  limit,
		UserID:    firstNonEmpty(params.Get("user_id"), params.Get("userId")),
	}

	result, err := h.orders.ListOrders(ctx, query, callerFromRequest(r))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	orders := make([]orderPayload, 0, len(result.Orders))
	for _, order := range result.Orders {
		orders = append(orders, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Orders:     orders,
		Pagination: buildPaginationPayload(result.Pagination),
	})
}

func (h *OrderHandlers) stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	stats, err := h.orders.Stats(ctx, callerFromRequest(r))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	payload := orderStatsPayload{
		TotalOrders:  stats.TotalOrders,
		TotalRevenue: stats.TotalRevenue,
		ByStatus:     make([]orderStatusStatPayload, 0, len(stats.ByStatus)),
		GeneratedAt:  formatTime(stats.GeneratedAt),
	}
	for _, stat := range stats.ByStatus {
		payload.ByStatus = append(payload.ByStatus, orderStatusStatPayload{
			Status:      string(stat.Status),
			Count:       stat.Count,
			TotalAmount: stat.TotalAmount,
		})
	}
	writeJSONResponse(w, http.StatusOK, orderStatsResponse{Stats: payload})
}

func (h *OrderHandlers) getOrderByNumber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	number := strings.TrimSpace(chi.URLParam(r, "orderNumber"))
	if number == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_order_request", "order number is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrderByNumber(ctx, number)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderId"), callerFromRequest(r))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type updateOrderStatusRequest struct {
	Status      string           `json:"status"`
	Message     string           `json:"message"`
	Tracking    *trackingPayload `json:"tracking"`
	IssueRefund bool             `json:"issue_refund"`
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req updateOrderStatusRequest
	if err := decodeBody(r, maxOrderStatusBodySize, &req, false); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_order_request", "status is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.TransitionCommand{
		OrderID:     chi.URLParam(r, "orderId"),
		Status:      req.Status,
		Message:     req.Message,
		Tracking:    req.Tracking.toDomain(),
		IssueRefund: req.IssueRefund,
		Caller:      callerFromRequest(r),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req cancelOrderRequest
	if err := decodeBody(r, maxOrderCancelBodySize, &req, true); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.orders.Cancel(ctx, services.CancelCommand{
		OrderID: chi.URLParam(r, "orderId"),
		Reason:  req.Reason,
		Caller:  callerFromRequest(r),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) invoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	invoice, err := h.orders.RenderInvoice(ctx, chi.URLParam(r, "orderId"), callerFromRequest(r))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	header := w.Header()
	header.Set("Content-Type", "application/pdf")
	header.Set("Content-Disposition", `attachment; filename="`+invoice.FileName+`"`)
	header.Set("Content-Length", strconv.Itoa(len(invoice.Content)))
	header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	header.Set("Pragma", "no-cache")
	header.Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(invoice.Content)
}

func parsePositiveInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 0, strconv.ErrSyntax
	}
	return value, nil
}

type orderListResponse struct {
	Orders     []orderPayload    `json:"orders"`
	Pagination paginationPayload `json:"pagination"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderStatsResponse struct {
	Stats orderStatsPayload `json:"stats"`
}

type orderStatsPayload struct {
	TotalOrders  int                      `json:"total_orders"`
	TotalRevenue int64                    `json:"total_revenue"`
	ByStatus     []orderStatusStatPayload `json:"by_status"`
	GeneratedAt  string                   `json:"generated_at,omitempty"`
}

type orderStatusStatPayload struct {
	Status      string `json:"status"`
	Count       int    `json:"count"`
	TotalAmount int64  `json:"total_amount"`
}

type paginationPayload struct {
	CurrentPage int  `json:"current_page"`
	TotalPages  int  `json:"total_pages"`
	TotalOrders int  `json:"total_orders"`
	HasNextPage bool `json:"has_next_page"`
	HasPrevPage bool `json:"has_prev_page"`
	Limit       int  `json:"limit"`
}

type orderPayload struct {
	ID          string                 `json:"id"`
	OrderNumber string                 `json:"order_number"`
	UserID      string                 `json:"user_id,omitempty"`
	Customer    customerPayload        `json:"customer"`
	Shipping    shippingPayload        `json:"shipping"`
	Items       []lineItemPayload      `json:"items"`
	TotalItems  int                    `json:"total_items"`
	Pricing     pricingPayload         `json:"pricing"`
	Payment     orderPaymentPayload    `json:"payment"`
	Status      string                 `json:"status"`
	Timeline    []timelineEntryPayload `json:"timeline"`
	Tracking    *trackingPayload       `json:"tracking,omitempty"`
	Notes       string                 `json:"notes,omitempty"`
	Metadata    map[string]any         `json:"metadata,omitempty"`
	CreatedAt   string                 `json:"created_at"`
	UpdatedAt   string                 `json:"updated_at,omitempty"`
}

type customerPayload struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
}

type shippingPayload struct {
	Address      string `json:"address"`
	City         string `json:"city"`
	State        string `json:"state"`
	ZipCode      string `json:"zip_code"`
	Country      string `json:"country,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

type lineItemPayload struct {
	ProductID  string `json:"product_id"`
	ProductRef string `json:"product_ref,omitempty"`
	Title      string `json:"title"`
	Price      int64  `json:"price"`
	Quantity   int    `json:"quantity"`
	Subtotal   int64  `json:"subtotal,omitempty"`
	Image      string `json:"image,omitempty"`
}

type pricingPayload struct {
	Subtotal int64 `json:"subtotal"`
	Tax      int64 `json:"tax"`
	Shipping int64 `json:"shipping"`
	Total    int64 `json:"total"`
}

type orderPaymentPayload struct {
	Method          string `json:"method"`
	Status          string `json:"status"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
	TransactionID   string `json:"transaction_id,omitempty"`
	Currency        string `json:"currency,omitempty"`
	PaidAt          string `json:"paid_at,omitempty"`
}

type timelineEntryPayload struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	UpdatedBy string `json:"updated_by,omitempty"`
}

type trackingPayload struct {
	Carrier           string `json:"carrier,omitempty"`
	TrackingNumber    string `json:"tracking_number,omitempty"`
	TrackingURL       string `json:"tracking_url,omitempty"`
	EstimatedDelivery string `json:"estimated_delivery,omitempty"`
}

// toDomain converts request tracking details. The estimated delivery date is server-assigned and ignored.
func (p *trackingPayload) toDomain() *services.Tracking {
	if p == nil {
		return nil
	}
	tracking := services.Tracking{
		Carrier:        strings.TrimSpace(p.Carrier),
		TrackingNumber: strings.TrimSpace(p.TrackingNumber),
		TrackingURL:    strings.TrimSpace(p.TrackingURL),
	}
	if tracking == (services.Tracking{}) {
		return nil
	}
	return &tracking
}

func buildPaginationPayload(p domain.Pagination) paginationPayload {
	return paginationPayload{
		CurrentPage: p.CurrentPage,
		TotalPages:  p.TotalPages,
		TotalOrders: p.TotalOrders,
		HasNextPage: p.HasNextPage,
		HasPrevPage: p.HasPrevPage,
		Limit:       p.Limit,
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.Owner().String(),
		Customer: customerPayload{
			FirstName: order.Customer.FirstName,
			LastName:  order.Customer.LastName,
			Email:     order.Customer.Email,
			Phone:     order.Customer.Phone,
		},
		Shipping: shippingPayload{
			Address:      order.Shipping.Address,
			City:         order.Shipping.City,
			State:        order.Shipping.State,
			ZipCode:      order.Shipping.ZipCode,
			Country:      order.Shipping.Country,
			Instructions: order.Shipping.Instructions,
		},
		Items:      make([]lineItemPayload, 0, len(order.Items)),
		TotalItems: order.TotalItems(),
		Pricing: pricingPayload{
			Subtotal: order.Pricing.Subtotal,
			Tax:      order.Pricing.Tax,
			Shipping: order.Pricing.Shipping,
			Total:    order.Pricing.Total,
		},
		Payment: orderPaymentPayload{
			Method:          order.Payment.Method,
			Status:          string(order.Payment.Status),
			PaymentIntentID: order.Payment.PaymentIntentID,
			TransactionID:   order.Payment.TransactionID,
			Currency:        order.Payment.Currency,
			PaidAt:          formatTimePtr(order.Payment.PaidAt),
		},
		Status:    string(order.Status),
		Timeline:  make([]timelineEntryPayload, 0, len(order.Timeline)),
		Notes:     order.Notes,
		Metadata:  order.Metadata,
		CreatedAt: formatTime(order.CreatedAt),
		UpdatedAt: formatTime(order.UpdatedAt),
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, lineItemPayload{
			ProductID:  item.ProductID,
			ProductRef: item.ProductRef,
			Title:      item.Title,
			Price:      item.Price,
			Quantity:   item.Quantity,
			Subtotal:   item.Subtotal,
			Image:      item.Image,
		})
	}
	for _, entry := range order.Timeline {
		payload.Timeline = append(payload.Timeline, timelineEntryPayload{
			Status:    string(entry.Status),
			Message:   entry.Message,
			Timestamp: formatTime(entry.Timestamp),
			UpdatedBy: entry.UpdatedBy,
		})
	}
	if order.Tracking != nil {
		payload.Tracking = &trackingPayload{
			Carrier:           order.Tracking.Carrier,
			TrackingNumber:    order.Tracking.TrackingNumber,
			TrackingURL:       order.Tracking.TrackingURL,
			EstimatedDelivery: formatTimePtr(order.Tracking.EstimatedDelivery),
		}
	}
	return payload
}
