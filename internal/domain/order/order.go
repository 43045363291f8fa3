package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/jachnun-storefront/internal/domain/customer"
)

// Order is a placed order with a denormalized snapshot of the customer and
// delivery details at the time it was placed.
type Order struct {
	ID          int64
	OrderNumber string
	CustomerID  *int64

	CustomerName    string
	CustomerPhone   string
	CustomerEmail   *string
	CustomerAddress *string

	DeliveryZone     string
	DeliveryZoneName string
	DeliveryFee      decimal.Decimal
	PaymentMethod    string

	Subtotal decimal.Decimal
	Total    decimal.Decimal
	Notes    *string
	Status   Status

	CreatedAt   time.Time
	ConfirmedAt *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time

	Items []Item
}

// Item is a line item with the menu name and price captured at order time.
type Item struct {
	ItemID   int
	Name     string
	Price    decimal.Decimal
	Quantity int
	Total    decimal.Decimal
}

// ListFilter narrows the admin order listing. Zero values disable a filter.
type ListFilter struct {
	Status Status
	// From and To bound created_at as [From, To).
	From  time.Time
	To    time.Time
	Limit int
}

// Stats is the dashboard summary. Each figure is an independent read.
type Stats struct {
	PendingCount  int64
	TodayCount    int64
	TodayRevenue  decimal.Decimal
	CustomerCount int64
}

// StatusChange describes an applied status update.
type StatusChange struct {
	From Status
	To   Status
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create upserts the customer, inserts the order and its items in one
	// transaction, and fills in o.ID, o.CustomerID and o.CreatedAt.
	Create(ctx context.Context, o *Order, c customer.Upsert) error
	Get(ctx context.Context, id int64) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	List(ctx context.Context, f ListFilter) ([]Order, error)
	// UpdateStatus locks the order, calls check with its current status and
	// applies next only if check returns nil.
	UpdateStatus(ctx context.Context, id int64, next Status, check func(current Status) error) (*StatusChange, error)
	Stats(ctx context.Context, dayStart, dayEnd time.Time) (*Stats, error)
}
