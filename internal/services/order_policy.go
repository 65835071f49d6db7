package services

import (
	"errors"
	"fmt"
	"slices"

	domain "github.com/urishop/api/internal/domain"
	"github.com/urishop/api/internal/platform/auth"
)

var (
	// ErrOrderForbidden indicates the caller may not access or modify the order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderInvalidCancellationState indicates the order has progressed past the cancellable statuses.
	ErrOrderInvalidCancellationState = errors.New("order: order cannot be cancelled in its current status")
)

var cancellableStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusConfirmed,
}

// CallerFromIdentity derives a Caller from the authenticated identity. Nil yields a guest.
func CallerFromIdentity(identity *auth.Identity) Caller {
	if identity == nil {
		return Caller{}
	}
	return Caller{
		ID:      domain.NormalizeOwnerID(identity.UID),
		IsAdmin: identity.IsAdmin(),
	}
}

// IsGuest reports whether the caller is unauthenticated.
func (c Caller) IsGuest() bool {
	return !c.IsAdmin && c.ID.IsGuest()
}

// CanRead reports whether the caller may see the order. Guest orders carry no owner and are readable
// by any caller; owned orders only by their owner or an administrator.
func CanRead(order domain.Order, caller Caller) bool {
	if caller.IsAdmin || order.IsGuest() {
		return true
	}
	return order.Owner().Equal(caller.ID)
}

// canModify reports whether the caller owns the order or is an administrator.
func canModify(order domain.Order, caller Caller) bool {
	return caller.IsAdmin || order.Owner().Equal(caller.ID)
}

// CanUpdateStatus reports whether the caller may drive arbitrary lifecycle transitions.
func CanUpdateStatus(caller Caller) bool {
	return caller.IsAdmin
}

// CanCancel checks ownership first, then whether the order is still cancellable.
func CanCancel(order domain.Order, caller Caller) error {
	if !canModify(order, caller) {
		return ErrOrderForbidden
	}
	if !IsCancellable(order.Status) {
		return fmt.Errorf("%w: status %s", ErrOrderInvalidCancellationState, order.Status)
	}
	return nil
}

// IsCancellable reports whether an order in the status may still be cancelled.
func IsCancellable(status domain.OrderStatus) bool {
	return slices.Contains(cancellableStatuses, status)
}
