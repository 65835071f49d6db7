package firestore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"golang.org/x/sync/errgroup"

	domain "github.com/urishop/api/internal/domain"
	pfirestore "github.com/urishop/api/internal/platform/firestore"
	"github.com/urishop/api/internal/repositories"
)

const (
	ordersCollection       = "orders"
	orderNumbersCollection = "orderNumbers"

	pricingTotalPath    = "pricing.total"
	defaultListPageSize = 10
)

// OrderRepository persists orders in the orders collection. Order numbers are kept unique through
// an orderNumbers/{number} index document written in the same transaction as the order.
type OrderRepository struct {
	orders  *pfirestore.Collection[orderDocument]
	numbers *pfirestore.Collection[orderNumberDocument]
	uow     *pfirestore.UnitOfWork
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository: firestore provider is required")
	}
	return &OrderRepository{
		orders:  pfirestore.NewCollection[orderDocument](provider, ordersCollection),
		numbers: pfirestore.NewCollection[orderNumberDocument](provider, orderNumbersCollection),
		uow:     pfirestore.NewUnitOfWork(provider),
	}, nil
}

// Insert stores a new order together with its order number index entry.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	number := strings.TrimSpace(order.OrderNumber)
	if orderID == "" || number == "" {
		return errors.New("order repository: order id and number are required")
	}

	return r.uow.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := r.numbers.Get(txCtx, number); err == nil {
			return pfirestore.ConflictError("orders.insert", fmt.Errorf("order number %s already taken", number))
		} else if !isNotFound(err) {
			return err
		}
		if err := r.numbers.Create(txCtx, number, orderNumberDocument{
			OrderID:   orderID,
			CreatedAt: order.CreatedAt.UTC(),
		}); err != nil {
			return err
		}
		return r.orders.Create(txCtx, orderID, encodeOrderDocument(order))
	})
}

// Update overwrites an existing order. Missing orders yield a not-found error.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	return r.uow.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := r.orders.Get(txCtx, orderID); err != nil {
			return err
		}
		return r.orders.Set(txCtx, orderID, encodeOrderDocument(order))
	})
}

// FindByID fetches a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrderDocument(doc), nil
}

// FindByNumber resolves the order through the order number index.
func (r *OrderRepository) FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	if r == nil || r.numbers == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return domain.Order{}, errors.New("order repository: order number is required")
	}
	index, err := r.numbers.Get(ctx, orderNumber)
	if err != nil {
		return domain.Order{}, err
	}
	return r.FindByID(ctx, index.Data.OrderID)
}

// FindByPaymentIntent returns the order created for the given payment intent.
func (r *OrderRepository) FindByPaymentIntent(ctx context.Context, intentID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return domain.Order{}, errors.New("order repository: payment intent id is required")
	}
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("payment.paymentIntentId", "==", intentID).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.NotFoundError("orders.find_by_payment_intent", fmt.Errorf("no order for payment intent %s", intentID))
	}
	return decodeOrderDocument(docs[0]), nil
}

// List returns one page of orders matching the filter. Equality and range filters are pushed down to
// Firestore. Free-text search, and date ranges sorted on another field, are resolved in process over
// the scoped result set.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.OrderPage, error) {
	if r == nil || r.orders == nil {
		return domain.OrderPage{}, errors.New("order repository not initialised")
	}

	filter = normalizeListFilter(filter)
	page, pageSize, sortBy := filter.Page, filter.PageSize, filter.SortBy
	direction := firestore.Desc
	if filter.SortOrder == domain.SortAsc {
		direction = firestore.Asc
	}

	hasRange := filter.CreatedAt.From != nil || filter.CreatedAt.To != nil
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	scoped := func(q firestore.Query) firestore.Query {
		if owner := domain.NormalizeOwnerID(string(filter.OwnerID)); !owner.IsGuest() {
			q = q.Where("userId", "==", owner.String())
		}
		if filter.Status != "" {
			q = q.Where("status", "==", string(filter.Status))
		}
		if filter.CreatedAt.From != nil {
			q = q.Where("createdAt", ">=", filter.CreatedAt.From.UTC())
		}
		if filter.CreatedAt.To != nil {
			q = q.Where("createdAt", "<=", filter.CreatedAt.To.UTC())
		}
		return q
	}

	if search != "" || (hasRange && sortBy != repositories.OrderSortCreatedAt) {
		return r.listInMemory(ctx, scoped, filter)
	}

	var (
		total int64
		docs  []pfirestore.Document[orderDocument]
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		count, err := r.orders.Count(groupCtx, scoped)
		total = count
		return err
	})
	group.Go(func() error {
		found, err := r.orders.Query(groupCtx, func(q firestore.Query) firestore.Query {
			return scoped(q).
				OrderBy(string(sortBy), direction).
				Offset((page - 1) * pageSize).
				Limit(pageSize)
		})
		docs = found
		return err
	})
	if err := group.Wait(); err != nil {
		return domain.OrderPage{}, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, decodeOrderDocument(doc))
	}
	return domain.OrderPage{
		Orders:     orders,
		Pagination: domain.NewPagination(page, pageSize, int(total)),
	}, nil
}

func (r *OrderRepository) listInMemory(ctx context.Context, scoped pfirestore.QueryBuilder, filter repositories.OrderListFilter) (domain.OrderPage, error) {
	docs, err := r.orders.Query(ctx, scoped)
	if err != nil {
		return domain.OrderPage{}, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, decodeOrderDocument(doc))
	}
	return PageOrders(orders, filter), nil
}

// PageOrders applies filter to orders already loaded in memory: owner, status, inclusive createdAt
// range and search narrow the set, which is then sorted and sliced to the requested page. A page past
// the end yields no orders with pagination computed from the filtered count.
func PageOrders(orders []domain.Order, filter repositories.OrderListFilter) domain.OrderPage {
	filter = normalizeListFilter(filter)
	owner := domain.NormalizeOwnerID(string(filter.OwnerID))
	search := strings.ToLower(strings.TrimSpace(filter.Search))

	matched := make([]domain.Order, 0, len(orders))
	for _, order := range orders {
		switch {
		case !owner.IsGuest() && !order.Owner().Equal(owner):
			continue
		case filter.Status != "" && order.Status != filter.Status:
			continue
		case filter.CreatedAt.From != nil && order.CreatedAt.Before(*filter.CreatedAt.From):
			continue
		case filter.CreatedAt.To != nil && order.CreatedAt.After(*filter.CreatedAt.To):
			continue
		case search != "" && !matchesSearch(order, search):
			continue
		}
		matched = append(matched, order)
	}
	SortOrders(matched, filter.SortBy, filter.SortOrder)

	total := len(matched)
	start := min((filter.Page-1)*filter.PageSize, total)
	end := min(start+filter.PageSize, total)
	return domain.OrderPage{
		Orders:     matched[start:end],
		Pagination: domain.NewPagination(filter.Page, filter.PageSize, total),
	}
}

func normalizeListFilter(filter repositories.OrderListFilter) repositories.OrderListFilter {
	filter.Page = max(filter.Page, 1)
	if filter.PageSize <= 0 {
		filter.PageSize = defaultListPageSize
	}
	if filter.SortBy == "" {
		filter.SortBy = repositories.OrderSortCreatedAt
	}
	return filter
}

// Stats aggregates order counts and totals per status with one aggregation query per status.
func (r *OrderRepository) Stats(ctx context.Context) (domain.OrderStats, error) {
	if r == nil || r.orders == nil {
		return domain.OrderStats{}, errors.New("order repository not initialised")
	}

	perStatus := make([]domain.StatusStat, len(domain.OrderStatuses))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, status := range domain.OrderStatuses {
		i, status := i, status
		group.Go(func() error {
			count, sum, err := r.orders.CountAndSum(groupCtx, func(q firestore.Query) firestore.Query {
				return q.Where("status", "==", string(status))
			}, pricingTotalPath)
			if err != nil {
				return err
			}
			perStatus[i] = domain.StatusStat{Status: status, Count: int(count), TotalAmount: sum}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return domain.OrderStats{}, err
	}

	var stats domain.OrderStats
	for _, stat := range perStatus {
		if stat.Count == 0 {
			continue
		}
		stats.TotalOrders += stat.Count
		if domain.CountsAsRevenue(stat.Status) {
			stats.TotalRevenue += stat.TotalAmount
		}
		stats.ByStatus = append(stats.ByStatus, stat)
	}
	return stats, nil
}

// SortOrders sorts orders in place by the given field. Ties fall back to the order id.
func SortOrders(orders []domain.Order, sortBy repositories.OrderSortField, sortOrder domain.SortOrder) {
	slices.SortStableFunc(orders, func(a, b domain.Order) int {
		var cmp int
		switch sortBy {
		case repositories.OrderSortOrderNumber:
			cmp = strings.Compare(a.OrderNumber, b.OrderNumber)
		case repositories.OrderSortTotal:
			cmp = compareInt64(a.Pricing.Total, b.Pricing.Total)
		case repositories.OrderSortStatus:
			cmp = strings.Compare(string(a.Status), string(b.Status))
		default:
			cmp = a.CreatedAt.Compare(b.CreatedAt)
		}
		if cmp == 0 {
			cmp = strings.Compare(a.ID, b.ID)
		}
		if sortOrder == domain.SortAsc {
			return cmp
		}
		return -cmp
	})
}

func matchesSearch(order domain.Order, needle string) bool {
	return strings.Contains(strings.ToLower(order.OrderNumber), needle) ||
		strings.Contains(strings.ToLower(order.Customer.Email), needle)
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

type orderNumberDocument struct {
	OrderID   string    `firestore:"orderId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type orderDocument struct {
	OrderNumber string             `firestore:"orderNumber"`
	UserID      string             `firestore:"userId,omitempty"`
	Customer    customerDocument   `firestore:"customer"`
	Shipping    shippingDocument   `firestore:"shipping"`
	Items       []lineItemDocument `firestore:"items"`
	Pricing     pricingDocument    `firestore:"pricing"`
	Payment     paymentDocument    `firestore:"payment"`
	Status      string             `firestore:"status"`
	Timeline    []timelineDocument `firestore:"timeline"`
	Tracking    *trackingDocument  `firestore:"tracking,omitempty"`
	Notes       string             `firestore:"notes,omitempty"`
	Metadata    map[string]any     `firestore:"metadata,omitempty"`
	CreatedAt   time.Time          `firestore:"createdAt"`
	UpdatedAt   time.Time          `firestore:"updatedAt"`
}

type customerDocument struct {
	FirstName string `firestore:"firstName"`
	LastName  string `firestore:"lastName"`
	Email     string `firestore:"email"`
	Phone     string `firestore:"phone,omitempty"`
}

type shippingDocument struct {
	Address      string `firestore:"address"`
	City         string `firestore:"city"`
	State        string `firestore:"state"`
	ZipCode      string `firestore:"zipCode"`
	Country      string `firestore:"country"`
	Instructions string `firestore:"instructions,omitempty"`
}

type lineItemDocument struct {
	ProductRef string `firestore:"productRef,omitempty"`
	ProductID  string `firestore:"productId"`
	Title      string `firestore:"title"`
	Price      int64  `firestore:"price"`
	Quantity   int    `firestore:"quantity"`
	Subtotal   int64  `firestore:"subtotal"`
	Image      string `firestore:"image,omitempty"`
}

type pricingDocument struct {
	Subtotal int64 `firestore:"subtotal"`
	Tax      int64 `firestore:"tax"`
	Shipping int64 `firestore:"shipping"`
	Total    int64 `firestore:"total"`
}

type paymentDocument struct {
	Method          string     `firestore:"method"`
	Status          string     `firestore:"status"`
	PaymentIntentID string     `firestore:"paymentIntentId,omitempty"`
	TransactionID   string     `firestore:"transactionId,omitempty"`
	Currency        string     `firestore:"currency,omitempty"`
	PaidAt          *time.Time `firestore:"paidAt,omitempty"`
}

type timelineDocument struct {
	Status    string    `firestore:"status"`
	Message   string    `firestore:"message"`
	Timestamp time.Time `firestore:"timestamp"`
	UpdatedBy string    `firestore:"updatedBy,omitempty"`
}

type trackingDocument struct {
	Carrier           string     `firestore:"carrier,omitempty"`
	TrackingNumber    string     `firestore:"trackingNumber,omitempty"`
	TrackingURL       string     `firestore:"trackingUrl,omitempty"`
	EstimatedDelivery *time.Time `firestore:"estimatedDelivery,omitempty"`
}

func encodeOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber: strings.TrimSpace(order.OrderNumber),
		UserID:      order.Owner().String(),
		Customer: customerDocument{
			FirstName: order.Customer.FirstName,
			LastName:  order.Customer.LastName,
			Email:     order.Customer.Email,
			Phone:     order.Customer.Phone,
		},
		Shipping: shippingDocument{
			Address:      order.Shipping.Address,
			City:         order.Shipping.City,
			State:        order.Shipping.State,
			ZipCode:      order.Shipping.ZipCode,
			Country:      order.Shipping.Country,
			Instructions: order.Shipping.Instructions,
		},
		Pricing: pricingDocument{
			Subtotal: order.Pricing.Subtotal,
			Tax:      order.Pricing.Tax,
			Shipping: order.Pricing.Shipping,
			Total:    order.Pricing.Total,
		},
		Payment: paymentDocument{
			Method:          order.Payment.Method,
			Status:          string(order.Payment.Status),
			PaymentIntentID: order.Payment.PaymentIntentID,
			TransactionID:   order.Payment.TransactionID,
			Currency:        order.Payment.Currency,
			PaidAt:          utcPtr(order.Payment.PaidAt),
		},
		Status:    string(order.Status),
		Notes:     order.Notes,
		Metadata:  order.Metadata,
		CreatedAt: order.CreatedAt.UTC(),
		UpdatedAt: order.UpdatedAt.UTC(),
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, lineItemDocument{
			ProductRef: item.ProductRef,
			ProductID:  item.ProductID,
			Title:      item.Title,
			Price:      item.Price,
			Quantity:   item.Quantity,
			Subtotal:   item.Subtotal,
			Image:      item.Image,
		})
	}
	for _, entry := range order.Timeline {
		doc.Timeline = append(doc.Timeline, timelineDocument{
			Status:    string(entry.Status),
			Message:   entry.Message,
			Timestamp: entry.Timestamp.UTC(),
			UpdatedBy: entry.UpdatedBy,
		})
	}
	if order.Tracking != nil {
		doc.Tracking = &trackingDocument{
			Carrier:           order.Tracking.Carrier,
			TrackingNumber:    order.Tracking.TrackingNumber,
			TrackingURL:       order.Tracking.TrackingURL,
			EstimatedDelivery: utcPtr(order.Tracking.EstimatedDelivery),
		}
	}
	return doc
}

func decodeOrderDocument(doc pfirestore.Document[orderDocument]) domain.Order {
	data := doc.Data
	order := domain.Order{
		ID:          doc.ID,
		OrderNumber: data.OrderNumber,
		UserID:      domain.NormalizeOwnerID(data.UserID),
		Customer: domain.Customer{
			FirstName: data.Customer.FirstName,
			LastName:  data.Customer.LastName,
			Email:     data.Customer.Email,
			Phone:     data.Customer.Phone,
		},
		Shipping: domain.ShippingAddress{
			Address:      data.Shipping.Address,
			City:         data.Shipping.City,
			State:        data.Shipping.State,
			ZipCode:      data.Shipping.ZipCode,
			Country:      data.Shipping.Country,
			Instructions: data.Shipping.Instructions,
		},
		Pricing: domain.Pricing{
			Subtotal: data.Pricing.Subtotal,
			Tax:      data.Pricing.Tax,
			Shipping: data.Pricing.Shipping,
			Total:    data.Pricing.Total,
		},
		Payment: domain.Payment{
			Method:          data.Payment.Method,
			Status:          domain.PaymentStatus(data.Payment.Status),
			PaymentIntentID: data.Payment.PaymentIntentID,
			TransactionID:   data.Payment.TransactionID,
			Currency:        data.Payment.Currency,
			PaidAt:          utcPtr(data.Payment.PaidAt),
		},
		Status:    domain.OrderStatus(data.Status),
		Notes:     data.Notes,
		Metadata:  data.Metadata,
		CreatedAt: data.CreatedAt.UTC(),
		UpdatedAt: data.UpdatedAt.UTC(),
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = doc.CreateTime.UTC()
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = doc.UpdateTime.UTC()
	}
	for _, item := range data.Items {
		order.Items = append(order.Items, domain.LineItem{
			ProductRef: item.ProductRef,
			ProductID:  item.ProductID,
			Title:      item.Title,
			Price:      item.Price,
			Quantity:   item.Quantity,
			Subtotal:   item.Subtotal,
			Image:      item.Image,
		})
	}
	for _, entry := range data.Timeline {
		order.Timeline = append(order.Timeline, domain.TimelineEntry{
			Status:    domain.OrderStatus(entry.Status),
			Message:   entry.Message,
			Timestamp: entry.Timestamp.UTC(),
			UpdatedBy: entry.UpdatedBy,
		})
	}
	if data.Tracking != nil {
		order.Tracking = &domain.Tracking{
			Carrier:           data.Tracking.Carrier,
			TrackingNumber:    data.Tracking.TrackingNumber,
			TrackingURL:       data.Tracking.TrackingURL,
			EstimatedDelivery: utcPtr(data.Tracking.EstimatedDelivery),
		}
	}
	return order
}

func utcPtr(value *time.Time) *time.Time {
	if value == nil || value.IsZero() {
		return nil
	}
	out := value.UTC()
	return &out
}
