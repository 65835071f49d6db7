package storage

import (
	"fmt"
	"strings"
)

// InvoicePath returns the object key for an order's archived invoice:
// invoices/{orderID}/{orderNumber}.pdf.
func InvoicePath(orderID, orderNumber string) (string, error) {
	id, err := validateSegment("orderID", orderID)
	if err != nil {
		return "", err
	}
	number, err := validateSegment("orderNumber", orderNumber)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("invoices/%s/%s.pdf", id, number), nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") || strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	return value, nil
}
