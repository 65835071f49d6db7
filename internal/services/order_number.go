package services

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	domain "github.com/urishop/api/internal/domain"
)

const orderNumberPrefix = "ORD"

var orderNumberPattern = regexp.MustCompile(`^ORD-\d{13,}-\d{3}$`)

// OrderNumberGenerator produces human-facing order numbers of the form ORD-<unix millis>-<3 digits>.
// Uniqueness is enforced by the repository; callers retry on a duplicate.
type OrderNumberGenerator struct {
	clock  func() time.Time
	random func(n int) int
}

// NewOrderNumberGenerator builds a generator. Nil arguments fall back to the wall clock and math/rand.
func NewOrderNumberGenerator(clock func() time.Time, random func(n int) int) *OrderNumberGenerator {
	if clock == nil {
		clock = time.Now
	}
	if random == nil {
		random = rand.Intn
	}
	return &OrderNumberGenerator{clock: clock, random: random}
}

// Generate returns a fresh order number.
func (g *OrderNumberGenerator) Generate() string {
	return fmt.Sprintf("%s-%d-%03d", orderNumberPrefix, g.clock().UnixMilli(), g.random(1000))
}

// Assign sets an order number when the order does not carry one yet.
func (g *OrderNumberGenerator) Assign(order *domain.Order) {
	if order == nil || strings.TrimSpace(order.OrderNumber) != "" {
		return
	}
	order.OrderNumber = g.Generate()
}

// IsOrderNumber reports whether raw has the shape of a generated order number.
func IsOrderNumber(raw string) bool {
	return orderNumberPattern.MatchString(strings.TrimSpace(raw))
}
