package handlers

import (
	"context"
	"errors"
	"net/http"

	domain "github.com/urishop/api/internal/domain"
	"github.com/urishop/api/internal/platform/httpx"
	"github.com/urishop/api/internal/services"
)

type orderErrorMapping struct {
	target  error
	code    string
	status  int
	message string
}

// orderErrorMappings is checked in order; the first matching sentinel wins. An empty message echoes the error.
var orderErrorMappings = []orderErrorMapping{
	{target: services.ErrInvalidLineItem, code: "invalid_line_item", status: http.StatusBadRequest},
	{target: services.ErrOrderInvalidInput, code: "invalid_order_request", status: http.StatusBadRequest},
	{target: services.ErrOrderNotFound, code: "order_not_found", status: http.StatusNotFound, message: "order not found"},
	{target: services.ErrOrderForbidden, code: "order_forbidden", status: http.StatusForbidden, message: "access to this order is not allowed"},
	{target: services.ErrOrderInvalidTransition, code: "invalid_transition", status: http.StatusConflict},
	{target: services.ErrOrderInvalidCancellationState, code: "order_not_cancellable", status: http.StatusConflict, message: "order can only be cancelled while pending or confirmed"},
	{target: services.ErrOrderPaymentNotConfirmed, code: "payment_not_confirmed", status: http.StatusPaymentRequired, message: "payment has not been confirmed"},
	{target: services.ErrOrderDuplicateNumber, code: "order_number_conflict", status: http.StatusServiceUnavailable, message: "could not allocate an order number, retry later"},
	{target: services.ErrInvoiceRenderingFailed, code: "invoice_rendering_failed", status: http.StatusInternalServerError, message: "invoice could not be generated"},
	{target: services.ErrOrderUnavailable, code: "upstream_unavailable", status: http.StatusServiceUnavailable, message: "a backing service is unavailable, retry later"},
	{target: services.ErrOrderConflict, code: "order_conflict", status: http.StatusConflict, message: "order was modified concurrently, retry"},
	{target: context.DeadlineExceeded, code: "upstream_unavailable", status: http.StatusServiceUnavailable, message: "request timed out"},
}

// writeOrderError maps service sentinels onto the JSON error envelope. Unknown errors become a 500
// without leaking the underlying message.
func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	for _, mapping := range orderErrorMappings {
		if !errors.Is(err, mapping.target) {
			continue
		}
		message := mapping.message
		if message == "" {
			message = err.Error()
		}
		apiErr := httpx.NewError(mapping.code, message, mapping.status)
		var verr *domain.ValidationError
		if errors.As(err, &verr) && len(verr.Fields) > 0 {
			fields := make([]map[string]string, 0, len(verr.Fields))
			for _, field := range verr.Fields {
				fields = append(fields, map[string]string{"field": field.Field, "message": field.Message})
			}
			apiErr = apiErr.WithDetails(map[string]any{"fields": fields})
		}
		httpx.WriteError(ctx, w, apiErr)
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process order request", http.StatusInternalServerError))
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, errBodyTooLarge) {
		status = http.StatusRequestEntityTooLarge
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", status))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
}
