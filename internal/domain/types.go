package domain

import (
	"time"
)

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// Pagination describes a page-numbered slice of a filtered result set.
type Pagination struct {
	CurrentPage int
	TotalPages  int
	TotalOrders int
	HasNextPage bool
	HasPrevPage bool
	Limit       int
}

// NewPagination derives page metadata from the filtered total.
func NewPagination(page, limit, total int) Pagination {
	if limit <= 0 {
		limit = 1
	}
	if page <= 0 {
		page = 1
	}
	totalPages := 0
	if total > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Pagination{
		CurrentPage: page,
		TotalPages:  totalPages,
		TotalOrders: total,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
		Limit:       limit,
	}
}

// OrderPage packages one page of orders together with its pagination metadata.
type OrderPage struct {
	Orders     []Order
	Pagination Pagination
}

// StatusStat aggregates the orders sharing one status.
type StatusStat struct {
	Status      OrderStatus
	Count       int
	TotalAmount int64
}

// OrderStats summarises order volume and revenue for administrators.
type OrderStats struct {
	TotalOrders  int
	TotalRevenue int64
	ByStatus     []StatusStat
	GeneratedAt  time.Time
}

// RevenueStatuses lists the statuses whose totals count as realised revenue.
var RevenueStatuses = []OrderStatus{
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
}

// CountsAsRevenue reports whether the status contributes to revenue totals.
func CountsAsRevenue(status OrderStatus) bool {
	for _, candidate := range RevenueStatuses {
		if candidate == status {
			return true
		}
	}
	return false
}
