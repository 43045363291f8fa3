// Package customer models storefront customers keyed by normalized phone.
package customer

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a customer does not exist.
	ErrNotFound = errors.New("customer not found")
	// ErrInvalidPhone is returned when a phone has no digits left after
	// normalization.
	ErrInvalidPhone = errors.New("invalid phone number")
)

// Customer is an aggregate of everyone who ordered from one phone number.
type Customer struct {
	ID          int64
	Name        string
	Phone       string
	Email       *string
	Address     *string
	OrderCount  int
	TotalSpent  decimal.Decimal
	LastOrderAt *time.Time
	CreatedAt   time.Time
}

// Contact is the subset returned to the checkout autofill lookup.
type Contact struct {
	ID      int64
	Name    string
	Email   *string
	Address *string
}

// OrderSummary is one row of a customer's order history.
type OrderSummary struct {
	ID          int64
	OrderNumber string
	Total       decimal.Decimal
	Status      string
	CreatedAt   time.Time
}

// Details is a customer with their most recent orders.
type Details struct {
	Customer
	Orders []OrderSummary
}

// Upsert carries the fields written by the order workflow when a customer
// places an order. Phone must already be normalized.
type Upsert struct {
	Name       string
	Phone      string
	Email      *string
	Address    *string
	OrderTotal decimal.Decimal
}

// Record is a customer from an external contact list. Phone must already be
// normalized.
type Record struct {
	Name    string
	Phone   string
	Email   *string
	Address *string
}

// ListFilter narrows the admin customer listing.
type ListFilter struct {
	Search string
	Limit  int
}

// Repository defines read operations on customers. The write path lives in
// the order repository because it must share the order transaction.
type Repository interface {
	List(ctx context.Context, f ListFilter) ([]Customer, error)
	Get(ctx context.Context, id int64, historyLimit int) (*Details, error)
	FindByPhone(ctx context.Context, phone string) (*Contact, error)
}

const countryPrefix = "972"

// NormalizePhone reduces a phone number to its canonical digits-only form.
// International "972" prefixes are folded into the local trunk "0", and a
// 9-digit mobile number missing its leading zero gets one, so separators,
// country code and the trunk prefix do not create distinct customers.
func NormalizePhone(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if len(digits) >= 11 && strings.HasPrefix(digits, countryPrefix) {
		digits = "0" + digits[len(countryPrefix):]
	}
	if len(digits) == 9 && digits[0] != '0' {
		digits = "0" + digits
	}
	return digits
}
