package services

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/urishop/api/internal/domain"
)

// DefaultDeliveryLeadTime is added to the ship time when no delivery estimate was supplied.
const DefaultDeliveryLeadTime = 7 * 24 * time.Hour

// ErrOrderInvalidTransition indicates the requested status change is not allowed from the current status.
var ErrOrderInvalidTransition = errors.New("order: invalid status transition")

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed:  {domain.OrderStatusProcessing, domain.OrderStatusCancelled, domain.OrderStatusRefunded},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusRefunded},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered, domain.OrderStatusRefunded},
	domain.OrderStatusDelivered:  {domain.OrderStatusRefunded},
}

// TransitionInput describes a requested status change.
type TransitionInput struct {
	Status   domain.OrderStatus
	Message  string
	ActorID  string
	Tracking *domain.Tracking
}

// CanTransition reports whether the lifecycle allows moving from current to target.
func CanTransition(current, target domain.OrderStatus) bool {
	return slices.Contains(orderStateTransitions[current], target)
}

// AllowedTransitions lists the statuses reachable from current. Terminal statuses return nil.
func AllowedTransitions(current domain.OrderStatus) []domain.OrderStatus {
	return slices.Clone(orderStateTransitions[current])
}

// IsTerminal reports whether no further transitions are possible.
func IsTerminal(status domain.OrderStatus) bool {
	return len(orderStateTransitions[status]) == 0
}

// ApplyTransition returns a copy of order moved to input.Status with one timeline entry appended and
// the coupled payment and tracking effects applied. The input order is not modified.
func ApplyTransition(order domain.Order, input TransitionInput, now time.Time, leadTime time.Duration) (domain.Order, error) {
	target := input.Status
	if !target.Valid() {
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, target)
	}
	if !CanTransition(order.Status, target) {
		return domain.Order{}, fmt.Errorf("%w: %s -> %s", ErrOrderInvalidTransition, order.Status, target)
	}
	if leadTime <= 0 {
		leadTime = DefaultDeliveryLeadTime
	}

	next := order.Clone()
	next.Status = target
	next.UpdatedAt = now

	message := strings.TrimSpace(input.Message)
	if message == "" {
		message = defaultTransitionMessage(target)
	}
	next.Timeline = append(next.Timeline, domain.TimelineEntry{
		Status:    target,
		Message:   message,
		Timestamp: now,
		UpdatedBy: strings.TrimSpace(input.ActorID),
	})

	switch target {
	case domain.OrderStatusConfirmed:
		if next.Payment.Status != domain.PaymentStatusCompleted || next.Payment.PaidAt == nil {
			paidAt := now
			next.Payment.Status = domain.PaymentStatusCompleted
			next.Payment.PaidAt = &paidAt
		}
	case domain.OrderStatusCancelled:
		next.Payment.Status = domain.PaymentStatusFailed
	case domain.OrderStatusRefunded:
		next.Payment.Status = domain.PaymentStatusRefunded
	case domain.OrderStatusShipped:
		next.Tracking = mergeTracking(next.Tracking, input.Tracking)
		if next.Tracking.EstimatedDelivery == nil {
			eta := now.Add(leadTime)
			next.Tracking.EstimatedDelivery = &eta
		}
	}

	return next, nil
}

func mergeTracking(current, update *domain.Tracking) *domain.Tracking {
	merged := &domain.Tracking{}
	if current != nil {
		*merged = *current
	}
	if update == nil {
		return merged
	}
	if v := strings.TrimSpace(update.Carrier); v != "" {
		merged.Carrier = v
	}
	if v := strings.TrimSpace(update.TrackingNumber); v != "" {
		merged.TrackingNumber = v
	}
	if v := strings.TrimSpace(update.TrackingURL); v != "" {
		merged.TrackingURL = v
	}
	if update.EstimatedDelivery != nil {
		eta := *update.EstimatedDelivery
		merged.EstimatedDelivery = &eta
	}
	return merged
}

func defaultTransitionMessage(status domain.OrderStatus) string {
	return fmt.Sprintf("Status updated to %s", status)
}
