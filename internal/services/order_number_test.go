package services

import (
	"testing"
	"time"

	domain "github.com/urishop/api/internal/domain"
)

func TestOrderNumberGeneratorFormat(t *testing.T) {
	now := time.UnixMilli(1717171717171)
	gen := NewOrderNumberGenerator(func() time.Time { return now }, func(int) int { return 7 })

	got := gen.Generate()
	if got != "ORD-1717171717171-007" {
		t.Fatalf("unexpected order number %q", got)
	}
	if !IsOrderNumber(got) {
		t.Fatalf("expected %q to match the order number pattern", got)
	}
}

func TestOrderNumberGeneratorAssignKeepsExisting(t *testing.T) {
	gen := NewOrderNumberGenerator(nil, nil)

	order := domain.Order{OrderNumber: "ORD-1-001"}
	gen.Assign(&order)
	if order.OrderNumber != "ORD-1-001" {
		t.Fatalf("expected existing number to be kept, got %q", order.OrderNumber)
	}

	fresh := domain.Order{}
	gen.Assign(&fresh)
	if !IsOrderNumber(fresh.OrderNumber) {
		t.Fatalf("expected generated number, got %q", fresh.OrderNumber)
	}
}

func TestIsOrderNumber(t *testing.T) {
	cases := map[string]bool{
		"ORD-1717171717171-123": true,
		"ORD-1717171717171-12":  false,
		"HF-2025-000001":        false,
		"":                      false,
	}
	for input, want := range cases {
		if got := IsOrderNumber(input); got != want {
			t.Fatalf("IsOrderNumber(%q) = %v, want %v", input, got, want)
		}
	}
}
