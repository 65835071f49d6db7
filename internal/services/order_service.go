package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/urishop/api/internal/domain"
	"github.com/urishop/api/internal/invoices"
	"github.com/urishop/api/internal/notifications"
	"github.com/urishop/api/internal/payments"
	"github.com/urishop/api/internal/platform/textutil"
	"github.com/urishop/api/internal/repositories"
)

const (
	orderEventCreated        = "order.created"
	orderEventStatusChanged  = "order.status_changed"
	orderEventCancelled      = "order.cancelled"
	orderEventRefundRequired = "order.refund_required"
	orderEventRefundOrphaned = "order.refund_orphaned"

	orderIDPrefix        = "ord_"
	eventIDPrefix        = "evt_"
	notificationIDPrefix = "ntf_"

	defaultCancelReason       = "Cancelled by customer"
	confirmedTimelineMessage  = "Order confirmed and payment processed successfully"
	defaultOrderCurrency      = "usd"
	defaultOrderNumberRetries = 3
	defaultInvoiceTimeout     = 15 * time.Second
	smallInvoiceBytes         = 500

	metadataRefundRequired = "refund_required"
	metadataCancelReason   = "cancel_reason"
	metadataRefundID       = "refund_id"
	metadataRefundPending  = "refund_pending"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderConflict indicates a concurrent update won the race.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderDuplicateNumber indicates the generated order number is already taken.
	ErrOrderDuplicateNumber = errors.New("order: order number already exists")
	// ErrOrderPaymentNotConfirmed indicates the payment processor has not captured the expected amount.
	ErrOrderPaymentNotConfirmed = errors.New("order: payment not confirmed")
	// ErrInvoiceRenderingFailed indicates the PDF could not be produced.
	ErrInvoiceRenderingFailed = errors.New("order: invoice rendering failed")
	// ErrOrderUnavailable indicates a backing service is unreachable or timed out.
	ErrOrderUnavailable = errors.New("order: upstream unavailable")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders              repositories.OrderRepository
	Payments            payments.Provider
	Pricing             *PricingCalculator
	OrderNumbers        *OrderNumberGenerator
	Invoices            invoices.Renderer
	InvoiceOptions      invoices.DocumentOptions
	InvoiceArchive      InvoiceArchive
	Notifier            notifications.Notifier
	Events              OrderEventPublisher
	UnitOfWork          repositories.UnitOfWork
	Clock               func() time.Time
	IDGenerator         func() string
	Logger              func(ctx context.Context, event string, fields map[string]any)
	Currency            string
	DeliveryLeadTime    time.Duration
	OrderNumberAttempts int
	InvoiceTimeout      time.Duration
	ListLimits          ListLimits
}

type orderService struct {
	orders         repositories.OrderRepository
	payments       payments.Provider
	pricing        *PricingCalculator
	numbers        *OrderNumberGenerator
	renderer       invoices.Renderer
	invoiceOptions invoices.DocumentOptions
	archive        InvoiceArchive
	notifier       notifications.Notifier
	events         OrderEventPublisher
	unitOfWork     repositories.UnitOfWork
	clock          func() time.Time
	newID          func() string
	logger         func(context.Context, string, map[string]any)
	currency       string
	leadTime       time.Duration
	attempts       int
	invoiceTimeout time.Duration
	limits         ListLimits
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("order service: payment provider is required")
	}
	if deps.Invoices == nil {
		return nil, errors.New("order service: invoice renderer is required")
	}

	pricing := deps.Pricing
	if pricing == nil {
		calc, err := NewPricingCalculator(DefaultPricingRules())
		if err != nil {
			return nil, err
		}
		pricing = calc
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	utcClock := func() time.Time {
		return clock().UTC()
	}

	numbers := deps.OrderNumbers
	if numbers == nil {
		numbers = NewOrderNumberGenerator(utcClock, nil)
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	currency := strings.ToLower(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultOrderCurrency
	}

	attempts := deps.OrderNumberAttempts
	if attempts <= 0 {
		attempts = defaultOrderNumberRetries
	}

	invoiceTimeout := deps.InvoiceTimeout
	if invoiceTimeout <= 0 {
		invoiceTimeout = defaultInvoiceTimeout
	}

	invoiceOptions := deps.InvoiceOptions
	if invoiceOptions.TaxRate.IsZero() {
		invoiceOptions.TaxRate = pricing.Rules().TaxRate
	}

	return &orderService{
		orders:         deps.Orders,
		payments:       deps.Payments,
		pricing:        pricing,
		numbers:        numbers,
		renderer:       deps.Invoices,
		invoiceOptions: invoiceOptions,
		archive:        deps.InvoiceArchive,
		notifier:       deps.Notifier,
		events:         deps.Events,
		unitOfWork:     unit,
		clock:          utcClock,
		newID:          idGen,
		logger:         logger,
		currency:       currency,
		leadTime:       deps.DeliveryLeadTime,
		attempts:       attempts,
		invoiceTimeout: invoiceTimeout,
		limits:         deps.ListLimits.withDefaults(),
	}, nil
}

func (s *orderService) CreateIntent(ctx context.Context, cmd CreateIntentCommand) (PaymentIntent, error) {
	if len(cmd.Items) == 0 {
		return PaymentIntent{}, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	currency := strings.ToLower(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = s.currency
	}

	pricing, err := s.pricing.CalculateTotals(cmd.Items)
	if err != nil {
		return PaymentIntent{}, err
	}

	metadata := textutil.NormalizeMetadata(cmd.Metadata)
	metadata["orderId"] = "order_" + strconv.FormatInt(s.now().UnixMilli(), 10)
	metadata["itemCount"] = strconv.Itoa(domain.Order{Items: cmd.Items}.TotalItems())
	metadata["subtotal"] = strconv.FormatInt(pricing.Subtotal, 10)
	metadata["tax"] = strconv.FormatInt(pricing.Tax, 10)
	metadata["shipping"] = strconv.FormatInt(pricing.Shipping, 10)
	if !cmd.Caller.ID.IsGuest() {
		metadata["userId"] = cmd.Caller.ID.String()
	}

	intent, err := s.payments.CreateIntent(ctx, payments.IntentRequest{
		Amount:         pricing.Total,
		Currency:       currency,
		ReceiptEmail:   cmd.ReceiptEmail,
		Metadata:       metadata,
		IdempotencyKey: cmd.IdempotencyKey,
	})
	if err != nil {
		return PaymentIntent{}, s.mapPaymentError(err)
	}

	s.logger(ctx, "order.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
		"currency":      intent.Currency,
	})

	return PaymentIntent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       intent.Status,
		Amount:       intent.Amount,
		Currency:     intent.Currency,
		Pricing:      pricing,
	}, nil
}

func (s *orderService) ConfirmCheckout(ctx context.Context, cmd ConfirmCheckoutCommand) (Order, error) {
	intentID := strings.TrimSpace(cmd.PaymentIntentID)
	if intentID == "" {
		return Order{}, fmt.Errorf("%w: payment intent id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}

	items, err := s.pricing.PriceItems(cmd.Items)
	if err != nil {
		return Order{}, err
	}
	pricing, err := s.pricing.CalculateTotals(items)
	if err != nil {
		return Order{}, err
	}

	intent, err := s.payments.LookupIntent(ctx, intentID)
	if err != nil {
		return Order{}, s.mapPaymentError(err)
	}
	if intent.Status != payments.StatusSucceeded {
		return Order{}, fmt.Errorf("%w: payment intent status is %s", ErrOrderPaymentNotConfirmed, intent.Status)
	}
	if intent.Amount != pricing.Total {
		s.logger(ctx, "order.checkout.amount_mismatch", map[string]any{
			"paymentIntent": intent.ID,
			"intentAmount":  intent.Amount,
			"serverTotal":   pricing.Total,
		})
		return Order{}, fmt.Errorf("%w: paid amount %d does not match order total %d", ErrOrderPaymentNotConfirmed, intent.Amount, pricing.Total)
	}

	now := s.now()
	actor := cmd.Caller.ID.String()
	paidAt := now
	order := Order{
		ID:       s.nextOrderID(),
		UserID:   cmd.Caller.ID,
		Customer: cmd.Customer.Normalize(),
		Shipping: cmd.Shipping.Normalize(),
		Items:    items,
		Pricing:  pricing,
		Payment: domain.Payment{
			Method:          domain.DefaultPaymentMethod,
			Status:          domain.PaymentStatusCompleted,
			PaymentIntentID: intent.ID,
			TransactionID:   intent.LatestChargeID,
			Currency:        strings.ToUpper(firstNonEmpty(intent.Currency, s.currency)),
			PaidAt:          &paidAt,
		},
		Status: domain.OrderStatusConfirmed,
		Timeline: []domain.TimelineEntry{{
			Status:    domain.OrderStatusConfirmed,
			Message:   confirmedTimelineMessage,
			Timestamp: now,
			UpdatedBy: actor,
		}},
		Notes:     strings.TrimSpace(cmd.Notes),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := domain.ValidateOrder(order); err != nil {
		return Order{}, fmt.Errorf("%w: %w", ErrOrderInvalidInput, err)
	}

	created, existing, err := s.insertWithNumberRetry(ctx, order)
	if err != nil {
		return Order{}, err
	}
	if existing {
		s.logger(ctx, "order.checkout.replayed", map[string]any{
			"paymentIntent": intent.ID,
			"order":         created.ID,
		})
		return created, nil
	}

	s.logger(ctx, "order.created", map[string]any{
		"order":       created.ID,
		"orderNumber": created.OrderNumber,
		"total":       created.Pricing.Total,
	})
	s.notify(ctx, notifications.KindConfirmation, created)
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       created.ID,
		OrderNumber:   created.OrderNumber,
		CurrentStatus: string(created.Status),
		ActorID:       actor,
		OccurredAt:    now,
		Metadata: map[string]any{
			"total":         created.Pricing.Total,
			"currency":      created.Payment.Currency,
			"paymentIntent": intent.ID,
		},
	})

	return created, nil
}

// insertWithNumberRetry persists the order, regenerating its number on collisions. When an order for
// the same payment intent already exists it is returned instead, with existing set.
func (s *orderService) insertWithNumberRetry(ctx context.Context, order Order) (Order, bool, error) {
	for attempt := 1; attempt <= s.attempts; attempt++ {
		candidate := order.Clone()
		candidate.OrderNumber = s.numbers.Generate()

		var (
			stored   Order
			existing bool
		)
		err := s.runInTx(ctx, func(txCtx context.Context) error {
			found, err := s.orders.FindByPaymentIntent(txCtx, candidate.Payment.PaymentIntentID)
			switch {
			case err == nil:
				stored, existing = found, true
				return nil
			case !isRepositoryNotFound(err):
				return s.mapRepositoryError(err)
			}
			if err := s.orders.Insert(txCtx, candidate); err != nil {
				if isRepositoryConflict(err) {
					return fmt.Errorf("%w: %s", ErrOrderDuplicateNumber, candidate.OrderNumber)
				}
				return s.mapRepositoryError(err)
			}
			stored, existing = candidate, false
			return nil
		})
		if err == nil {
			return stored, existing, nil
		}
		// Stores that defer uniqueness checks to commit report the collision from RunInTx.
		if isRepositoryConflict(err) {
			err = fmt.Errorf("%w: %v", ErrOrderDuplicateNumber, err)
		}
		if !errors.Is(err, ErrOrderDuplicateNumber) {
			return Order{}, false, err
		}
		s.logger(ctx, "order.number.retry", map[string]any{
			"attempt":     attempt,
			"orderNumber": candidate.OrderNumber,
		})
	}
	return Order{}, false, fmt.Errorf("%w: %w: gave up after %d attempts", ErrOrderUnavailable, ErrOrderDuplicateNumber, s.attempts)
}

func (s *orderService) GetOrder(ctx context.Context, orderID string, caller Caller) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if !CanRead(order, caller) {
		return Order{}, ErrOrderForbidden
	}
	return order, nil
}

func (s *orderService) GetOrderByNumber(ctx context.Context, orderNumber string) (Order, error) {
	orderNumber = strings.ToUpper(strings.TrimSpace(orderNumber))
	if orderNumber == "" {
		return Order{}, fmt.Errorf("%w: order number is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByNumber(ctx, orderNumber)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order.PublicView(), nil
}

func (s *orderService) ListOrders(ctx context.Context, query OrderListQuery, caller Caller) (OrderPage, error) {
	filter, err := BuildOrderListFilter(query, caller, s.limits)
	if err != nil {
		return OrderPage{}, err
	}

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return OrderPage{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd TransitionCommand) (Order, error) {
	if !CanUpdateStatus(cmd.Caller) {
		return Order{}, ErrOrderForbidden
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target, ok := domain.ParseOrderStatus(cmd.Status)
	if !ok {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}

	actor := cmd.Caller.ID.String()
	now := s.now()
	input := TransitionInput{
		Status:   target,
		Message:  cmd.Message,
		ActorID:  actor,
		Tracking: cmd.Tracking,
	}

	var (
		refundID string
		marked   Order
	)
	if target == domain.OrderStatusRefunded && cmd.IssueRefund {
		order, id, err := s.issueRefund(ctx, orderID, now)
		if err != nil {
			return Order{}, err
		}
		marked, refundID = order, id
	}

	var previous, updated Order
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if refundID != "" {
			if err := checkRefundable(current); err != nil {
				return err
			}
		}
		next, err := ApplyTransition(current, input, now, s.leadTime)
		if err != nil {
			return err
		}
		if refundID != "" {
			next.Metadata = ensureMap(next.Metadata)
			next.Metadata[metadataRefundID] = refundID
			delete(next.Metadata, metadataRefundPending)
		}
		if err := s.orders.Update(txCtx, next); err != nil {
			return s.mapRepositoryError(err)
		}
		previous, updated = current, next
		return nil
	})
	if err != nil {
		if refundID != "" {
			s.reportOrphanedRefund(ctx, marked, refundID, actor, err)
		}
		return Order{}, err
	}

	s.logger(ctx, "order.transition", map[string]any{
		"order": updated.ID,
		"from":  string(previous.Status),
		"to":    string(updated.Status),
	})
	if kind, ok := notifications.KindForStatus(updated.Status); ok {
		s.notify(ctx, kind, updated)
	}
	metadata := map[string]any{}
	if msg := strings.TrimSpace(cmd.Message); msg != "" {
		metadata["message"] = msg
	}
	if refundID != "" {
		metadata["refundId"] = refundID
	}
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		PreviousStatus: string(previous.Status),
		CurrentStatus:  string(updated.Status),
		ActorID:        actor,
		OccurredAt:     now,
		Metadata:       metadata,
	})

	return updated, nil
}

// issueRefund marks the order refund_pending in its own transaction, then refunds the captured payment.
// The marker stays on the order until the refunded transition commits, so a refund whose transition
// failed remains visible in storage. Retries reuse the provider idempotency key.
func (s *orderService) issueRefund(ctx context.Context, orderID string, now time.Time) (Order, string, error) {
	var marked Order
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if err := checkRefundable(order); err != nil {
			return err
		}
		order.Metadata = ensureMap(order.Metadata)
		order.Metadata[metadataRefundPending] = now.UTC().Format(time.RFC3339)
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		marked = order
		return nil
	})
	if err != nil {
		return Order{}, "", err
	}

	refund, err := s.payments.Refund(ctx, payments.RefundRequest{
		IntentID:       marked.Payment.PaymentIntentID,
		Reason:         "requested_by_customer",
		IdempotencyKey: "refund-" + marked.ID,
	})
	if err != nil {
		mapped := s.mapPaymentError(err)
		if !errors.Is(mapped, ErrOrderUnavailable) {
			s.clearRefundPending(ctx, marked.ID)
		}
		return Order{}, "", mapped
	}
	s.logger(ctx, "order.refund.issued", map[string]any{
		"order":  marked.ID,
		"refund": refund.ID,
		"amount": refund.Amount,
	})
	return marked, refund.ID, nil
}

// checkRefundable requires a status that may move to refunded and a captured payment.
func checkRefundable(order Order) error {
	if !CanTransition(order.Status, domain.OrderStatusRefunded) {
		return fmt.Errorf("%w: %s -> %s", ErrOrderInvalidTransition, order.Status, domain.OrderStatusRefunded)
	}
	if order.Payment.Status != domain.PaymentStatusCompleted || strings.TrimSpace(order.Payment.PaymentIntentID) == "" {
		return fmt.Errorf("%w: order has no captured payment to refund", ErrOrderInvalidInput)
	}
	return nil
}

// clearRefundPending drops the marker after the provider rejected the refund outright.
func (s *orderService) clearRefundPending(ctx context.Context, orderID string) {
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return err
		}
		if _, ok := order.Metadata[metadataRefundPending]; !ok {
			return nil
		}
		delete(order.Metadata, metadataRefundPending)
		return s.orders.Update(txCtx, order)
	})
	if err != nil {
		s.logger(ctx, "order.refund.marker_clear_failed", map[string]any{
			"order": orderID,
			"error": err.Error(),
		})
	}
}

// reportOrphanedRefund records a provider refund whose refunded transition did not commit.
func (s *orderService) reportOrphanedRefund(ctx context.Context, order Order, refundID, actor string, cause error) {
	s.logger(ctx, "order.refund.orphaned", map[string]any{
		"order":  order.ID,
		"refund": refundID,
		"status": string(order.Status),
		"error":  cause.Error(),
	})
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventRefundOrphaned,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CurrentStatus: string(order.Status),
		ActorID:       actor,
		OccurredAt:    s.now(),
		Metadata: map[string]any{
			"refundId": refundID,
			"error":    cause.Error(),
		},
	})
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		reason = defaultCancelReason
	}
	actor := cmd.Caller.ID.String()
	now := s.now()

	var (
		previous, updated Order
		refundRequired    bool
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if err := CanCancel(current, cmd.Caller); err != nil {
			return err
		}
		next, err := ApplyTransition(current, TransitionInput{
			Status:  domain.OrderStatusCancelled,
			Message: reason,
			ActorID: actor,
		}, now, s.leadTime)
		if err != nil {
			return err
		}
		next.Metadata = ensureMap(next.Metadata)
		next.Metadata[metadataCancelReason] = reason
		paid := current.Payment.Status == domain.PaymentStatusCompleted
		if paid {
			next.Metadata[metadataRefundRequired] = true
		}
		if err := s.orders.Update(txCtx, next); err != nil {
			return s.mapRepositoryError(err)
		}
		previous, updated, refundRequired = current, next, paid
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.logger(ctx, "order.cancelled", map[string]any{
		"order":          updated.ID,
		"from":           string(previous.Status),
		"refundRequired": refundRequired,
	})
	s.notify(ctx, notifications.KindCancelled, updated)
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventCancelled,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		PreviousStatus: string(previous.Status),
		CurrentStatus:  string(updated.Status),
		ActorID:        actor,
		OccurredAt:     now,
		Metadata:       map[string]any{"reason": reason},
	})
	if refundRequired {
		s.publishEvent(ctx, OrderEvent{
			Type:          orderEventRefundRequired,
			OrderID:       updated.ID,
			OrderNumber:   updated.OrderNumber,
			CurrentStatus: string(updated.Status),
			ActorID:       actor,
			OccurredAt:    now,
			Metadata: map[string]any{
				"paymentIntent": previous.Payment.PaymentIntentID,
				"amount":        previous.Pricing.Total,
				"currency":      previous.Payment.Currency,
			},
		})
	}

	return updated, nil
}

func (s *orderService) RenderInvoice(ctx context.Context, orderID string, caller Caller) (Invoice, error) {
	order, err := s.GetOrder(ctx, orderID, caller)
	if err != nil {
		return Invoice{}, err
	}

	opts := s.invoiceOptions
	opts.IssuedAt = s.now()
	doc := invoices.NewDocument(order, opts)

	renderCtx, cancel := context.WithTimeout(ctx, s.invoiceTimeout)
	defer cancel()

	started := s.now()
	pdf, err := s.renderer.Render(renderCtx, doc)
	if err != nil {
		s.logger(ctx, "invoice.render.failed", map[string]any{
			"order": order.ID,
			"error": err.Error(),
		})
		if errors.Is(err, context.DeadlineExceeded) {
			return Invoice{}, fmt.Errorf("%w: invoice rendering timed out: %v", ErrOrderUnavailable, err)
		}
		return Invoice{}, fmt.Errorf("%w: %v", ErrInvoiceRenderingFailed, err)
	}
	if len(pdf) == 0 {
		s.logger(ctx, "invoice.render.failed", map[string]any{"order": order.ID, "error": "empty buffer"})
		return Invoice{}, fmt.Errorf("%w: renderer returned an empty document", ErrInvoiceRenderingFailed)
	}
	if len(pdf) < smallInvoiceBytes {
		s.logger(ctx, "invoice.render.small", map[string]any{"order": order.ID, "bytes": len(pdf)})
	}
	s.logger(ctx, "invoice.rendered", map[string]any{
		"order":      order.ID,
		"bytes":      len(pdf),
		"durationMs": s.now().Sub(started).Milliseconds(),
	})

	invoice := Invoice{FileName: doc.FileName(), Content: pdf}
	if s.archive != nil {
		uri, err := s.archive.PutInvoice(ctx, order.ID, order.OrderNumber, pdf)
		if err != nil {
			s.logger(ctx, "invoice.archive.failed", map[string]any{"order": order.ID, "error": err.Error()})
		} else {
			invoice.ArchiveURI = uri
		}
	}
	return invoice, nil
}

func (s *orderService) Stats(ctx context.Context, caller Caller) (OrderStats, error) {
	if !caller.IsAdmin {
		return OrderStats{}, ErrOrderForbidden
	}
	stats, err := s.orders.Stats(ctx)
	if err != nil {
		return OrderStats{}, s.mapRepositoryError(err)
	}
	if stats.GeneratedAt.IsZero() {
		stats.GeneratedAt = s.now()
	}
	return stats, nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}

	return err
}

func (s *orderService) mapPaymentError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, payments.ErrIntentNotFound):
		return fmt.Errorf("%w: %v", ErrOrderPaymentNotConfirmed, err)
	case errors.Is(err, payments.ErrInvalidRequest):
		return fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	default:
		return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	}
}

func (s *orderService) notify(ctx context.Context, kind notifications.Kind, order Order) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Notify(ctx, notifications.Notification{
		ID:         notificationIDPrefix + s.newID(),
		Kind:       kind,
		Order:      order.Clone(),
		OccurredAt: s.now(),
	})
	if err != nil {
		s.logger(ctx, "order.notify.failed", map[string]any{
			"kind":  string(kind),
			"order": order.ID,
			"error": err.Error(),
		})
	}
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.ID == "" {
		event.ID = eventIDPrefix + s.newID()
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func isRepositoryNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isRepositoryConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

func ensureMap(src map[string]any) map[string]any {
	if src == nil {
		return map[string]any{}
	}
	return src
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
