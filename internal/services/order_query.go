package services

import (
	"fmt"
	"strings"
	"time"

	domain "github.com/urishop/api/internal/domain"
	"github.com/urishop/api/internal/repositories"
)

const (
	defaultOrderPageSize = 10
	maxOrderPageSize     = 100
	maxSearchLength      = 100
	dateOnlyLayout       = "2006-01-02"
)

var sortableOrderFields = map[string]repositories.OrderSortField{
	string(repositories.OrderSortCreatedAt):   repositories.OrderSortCreatedAt,
	string(repositories.OrderSortOrderNumber): repositories.OrderSortOrderNumber,
	string(repositories.OrderSortTotal):       repositories.OrderSortTotal,
	string(repositories.OrderSortStatus):      repositories.OrderSortStatus,
}

// ListLimits bounds page sizes for order listings.
type ListLimits struct {
	DefaultPageSize int
	MaxPageSize     int
}

func (l ListLimits) withDefaults() ListLimits {
	if l.MaxPageSize <= 0 {
		l.MaxPageSize = maxOrderPageSize
	}
	if l.DefaultPageSize <= 0 {
		l.DefaultPageSize = defaultOrderPageSize
	}
	if l.DefaultPageSize > l.MaxPageSize {
		l.DefaultPageSize = l.MaxPageSize
	}
	return l
}

// BuildOrderListFilter validates raw listing parameters and scopes them to the caller. Non-admin
// callers only ever see their own orders regardless of the requested user.
func BuildOrderListFilter(query OrderListQuery, caller Caller, limits ListLimits) (repositories.OrderListFilter, error) {
	limits = limits.withDefaults()

	filter := repositories.OrderListFilter{
		SortBy:    repositories.OrderSortCreatedAt,
		SortOrder: domain.SortDesc,
		Page:      query.Page,
		PageSize:  query.PageSize,
	}

	if caller.IsAdmin {
		filter.OwnerID = domain.NormalizeOwnerID(query.UserID)
	} else {
		if caller.ID.IsGuest() {
			return repositories.OrderListFilter{}, ErrOrderForbidden
		}
		filter.OwnerID = caller.ID
	}

	if filter.Page <= 0 {
		filter.Page = 1
	}
	switch {
	case filter.PageSize <= 0:
		filter.PageSize = limits.DefaultPageSize
	case filter.PageSize > limits.MaxPageSize:
		filter.PageSize = limits.MaxPageSize
	}

	if raw := strings.TrimSpace(query.Status); raw != "" {
		status, ok := domain.ParseOrderStatus(raw)
		if !ok {
			return repositories.OrderListFilter{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, raw)
		}
		filter.Status = status
	}

	if raw := strings.TrimSpace(query.SortBy); raw != "" {
		field, ok := sortableOrderFields[raw]
		if !ok {
			return repositories.OrderListFilter{}, fmt.Errorf("%w: cannot sort by %q", ErrOrderInvalidInput, raw)
		}
		filter.SortBy = field
	}

	switch strings.ToLower(strings.TrimSpace(query.SortOrder)) {
	case "":
	case string(domain.SortAsc):
		filter.SortOrder = domain.SortAsc
	case string(domain.SortDesc):
		filter.SortOrder = domain.SortDesc
	default:
		return repositories.OrderListFilter{}, fmt.Errorf("%w: sort order must be asc or desc", ErrOrderInvalidInput)
	}

	search := strings.TrimSpace(query.Search)
	if len(search) > maxSearchLength {
		return repositories.OrderListFilter{}, fmt.Errorf("%w: search must not exceed %d characters", ErrOrderInvalidInput, maxSearchLength)
	}
	filter.Search = search

	if raw := strings.TrimSpace(query.DateFrom); raw != "" {
		from, err := parseListDate(raw, false)
		if err != nil {
			return repositories.OrderListFilter{}, fmt.Errorf("%w: dateFrom: %v", ErrOrderInvalidInput, err)
		}
		filter.CreatedAt.From = &from
	}
	if raw := strings.TrimSpace(query.DateTo); raw != "" {
		to, err := parseListDate(raw, true)
		if err != nil {
			return repositories.OrderListFilter{}, fmt.Errorf("%w: dateTo: %v", ErrOrderInvalidInput, err)
		}
		filter.CreatedAt.To = &to
	}
	if filter.CreatedAt.From != nil && filter.CreatedAt.To != nil && filter.CreatedAt.From.After(*filter.CreatedAt.To) {
		return repositories.OrderListFilter{}, fmt.Errorf("%w: dateFrom must not be after dateTo", ErrOrderInvalidInput)
	}

	return filter, nil
}

// parseListDate accepts RFC3339 or YYYY-MM-DD. A bare date used as an upper bound covers the whole day.
func parseListDate(raw string, endOfDay bool) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	day, err := time.Parse(dateOnlyLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC3339 or YYYY-MM-DD, got %q", raw)
	}
	if endOfDay {
		return day.Add(24*time.Hour - time.Nanosecond), nil
	}
	return day, nil
}
