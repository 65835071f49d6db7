package repositories

import (
	"context"
	"time"

	domain "github.com/urishop/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists orders. Implementations must reject a second order carrying an
// existing order number with a conflict error, and must join the transaction carried by ctx
// when called inside UnitOfWork.RunInTx.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	FindByPaymentIntent(ctx context.Context, intentID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.OrderPage, error)
	Stats(ctx context.Context) (domain.OrderStats, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

// OrderSortField enumerates the fields orders may be sorted by.
type OrderSortField string

const (
	OrderSortCreatedAt   OrderSortField = "createdAt"
	OrderSortOrderNumber OrderSortField = "orderNumber"
	OrderSortTotal       OrderSortField = "pricing.total"
	OrderSortStatus      OrderSortField = "status"
)

// OrderListFilter narrows order listings. Page is 1-based.
type OrderListFilter struct {
	OwnerID   domain.OwnerID
	Status    domain.OrderStatus
	Search    string
	CreatedAt domain.RangeQuery[time.Time]
	SortBy    OrderSortField
	SortOrder domain.SortOrder
	Page      int
	PageSize  int
}
