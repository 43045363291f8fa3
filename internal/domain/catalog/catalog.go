// Package catalog holds the authoritative menu prices and delivery zone fees.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrItemNotFound marks a menu item that does not exist or is inactive.
	ErrItemNotFound = errors.New("menu item not found")
	// ErrZoneNotFound is returned when a delivery zone code is unknown.
	ErrZoneNotFound = errors.New("delivery zone not found")
)

// Item is a menu entry available for ordering.
type Item struct {
	ID       int
	Name     string
	Price    decimal.Decimal
	Category string
	Active   bool
}

// Zone is a delivery-pricing region with a fixed fee.
type Zone struct {
	Code string
	Name string
	Fee  decimal.Decimal
}

// Menu is a snapshot of the catalog.
type Menu struct {
	Items []Item
	Zones []Zone
}

// Repository defines read operations for the menu catalog.
type Repository interface {
	ListItems(ctx context.Context) ([]Item, error)
	ListZones(ctx context.Context) ([]Zone, error)
	GetItemsByIDs(ctx context.Context, ids []int) ([]Item, error)
	GetZone(ctx context.Context, code string) (*Zone, error)
}
