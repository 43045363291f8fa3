package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/jachnun-storefront/internal/domain/customer"
	"github.com/xenking/jachnun-storefront/internal/domain/order"
)

const orderNumberConstraint = "orders_order_number_key"

const (
	upsertCustomerSQL = `INSERT INTO customers (name, phone, email, address, order_count, total_spent, last_order_at)
		VALUES ($1, $2, $3, $4, 1, $5, now())
		ON CONFLICT (phone) DO UPDATE SET
			name          = EXCLUDED.name,
			email         = COALESCE(EXCLUDED.email, customers.email),
			address       = COALESCE(EXCLUDED.address, customers.address),
			order_count   = customers.order_count + 1,
			total_spent   = customers.total_spent + EXCLUDED.total_spent,
			last_order_at = now()
		RETURNING id`

	insertOrderSQL = `INSERT INTO orders (
			order_number, customer_id, customer_name, customer_phone, customer_email, customer_address,
			delivery_zone, delivery_zone_name, delivery_fee, payment_method,
			subtotal, total, notes, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at`

	orderColumns = `id, order_number, customer_id, customer_name, customer_phone, customer_email, customer_address,
		delivery_zone, delivery_zone_name, delivery_fee, payment_method, subtotal, total, notes, status,
		created_at, confirmed_at, completed_at, cancelled_at`

	getOrderSQL         = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	getOrderByNumberSQL = `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	orderItemsSQL = `SELECT order_id, item_id, item_name, item_price, quantity, total
		FROM order_items WHERE order_id = ANY($1)
		ORDER BY order_id, id`

	lockOrderStatusSQL = `SELECT status FROM orders WHERE id = $1 FOR UPDATE`

	updateOrderStatusSQL = `UPDATE orders SET
			status       = $2::text,
			confirmed_at = CASE WHEN $2::text = 'confirmed' THEN COALESCE(confirmed_at, now()) ELSE confirmed_at END,
			completed_at = CASE WHEN $2::text = 'completed' THEN COALESCE(completed_at, now()) ELSE completed_at END,
			cancelled_at = CASE WHEN $2::text = 'cancelled' THEN COALESCE(cancelled_at, now()) ELSE cancelled_at END
		WHERE id = $1`

	pendingCountSQL  = `SELECT count(*) FROM orders WHERE status = 'pending'`
	dayCountSQL      = `SELECT count(*) FROM orders WHERE created_at >= $1 AND created_at < $2`
	dayRevenueSQL    = `SELECT COALESCE(sum(total), 0) FROM orders WHERE created_at >= $1 AND created_at < $2 AND status <> 'cancelled'`
	customerCountSQL = `SELECT count(*) FROM customers`
)

var orderItemColumns = []string{"order_id", "item_id", "item_name", "item_price", "quantity", "total"}

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create upserts the customer, inserts the order and copies its items in a
// single transaction. A collision on the order number rolls everything back
// and returns order.ErrDuplicateOrderNumber.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order, c customer.Upsert) error {
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var customerID int64
		err := tx.QueryRow(ctx, upsertCustomerSQL,
			c.Name, c.Phone, c.Email, c.Address, c.OrderTotal,
		).Scan(&customerID)
		if err != nil {
			return fmt.Errorf("upserting customer: %w", err)
		}

		err = tx.QueryRow(ctx, insertOrderSQL,
			o.OrderNumber, customerID, o.CustomerName, o.CustomerPhone, o.CustomerEmail, o.CustomerAddress,
			o.DeliveryZone, o.DeliveryZoneName, o.DeliveryFee, o.PaymentMethod,
			o.Subtotal, o.Total, o.Notes, string(o.Status),
		).Scan(&o.ID, &o.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting order %q: %w", o.OrderNumber, err)
		}
		o.CustomerID = &customerID

		rows := make([][]any, len(o.Items))
		for i, it := range o.Items {
			rows[i] = []any{o.ID, it.ItemID, it.Name, it.Price, it.Quantity, it.Total}
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"order_items"}, orderItemColumns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("inserting order %q items: %w", o.OrderNumber, err)
		}
		return nil
	})
	if err != nil {
		o.ID, o.CustomerID, o.CreatedAt = 0, nil, time.Time{}
		if isUniqueViolation(err, orderNumberConstraint) {
			return order.ErrDuplicateOrderNumber
		}
		return err
	}
	return nil
}

// Get returns an order with its items.
func (r *OrderRepository) Get(ctx context.Context, id int64) (*order.Order, error) {
	return r.one(ctx, getOrderSQL, id)
}

// GetByNumber returns an order with its items by public order number.
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	return r.one(ctx, getOrderByNumberSQL, number)
}

func (r *OrderRepository) one(ctx context.Context, query string, arg any) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order %v: %w", arg, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %v: %w", arg, err)
	}

	orders := []order.Order{o}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// List returns orders matching f, newest first, each with its items.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, error) {
	var (
		status   *string
		from, to *time.Time
	)
	if f.Status != "" {
		s := string(f.Status)
		status = &s
	}
	if !f.From.IsZero() {
		from = &f.From
	}
	if !f.To.IsZero() {
		to = &f.To
	}

	rows, err := r.pool.Query(ctx, listOrdersSQL, status, from, to, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachItems loads the line items of all orders with one query.
func (r *OrderRepository) attachItems(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
		orders[i].Items = []order.Item{}
	}

	rows, err := r.pool.Query(ctx, orderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("getting order items: %w", err)
	}

	var (
		orderID int64
		it      order.Item
	)
	_, err = pgx.ForEachRow(rows, []any{&orderID, &it.ItemID, &it.Name, &it.Price, &it.Quantity, &it.Total}, func() error {
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, it)
		return nil
	})
	if err != nil {
		return fmt.Errorf("getting order items: %w", err)
	}
	return nil
}

// UpdateStatus locks the order row, lets check veto the change, and applies
// the new status. Lifecycle timestamps are only set the first time a status
// is reached.
func (r *OrderRepository) UpdateStatus(
	ctx context.Context,
	id int64,
	next order.Status,
	check func(current order.Status) error,
) (*order.StatusChange, error) {
	var change *order.StatusChange
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var current string
		if err := tx.QueryRow(ctx, lockOrderStatusSQL, id).Scan(&current); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return order.ErrNotFound
			}
			return fmt.Errorf("locking order %d: %w", id, err)
		}

		if err := check(order.Status(current)); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, updateOrderStatusSQL, id, string(next)); err != nil {
			return fmt.Errorf("updating order %d status: %w", id, err)
		}
		change = &order.StatusChange{From: order.Status(current), To: next}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

// Stats runs the dashboard aggregates concurrently.
func (r *OrderRepository) Stats(ctx context.Context, dayStart, dayEnd time.Time) (*order.Stats, error) {
	var s order.Stats

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := r.pool.QueryRow(gctx, pendingCountSQL).Scan(&s.PendingCount); err != nil {
			return fmt.Errorf("counting pending orders: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := r.pool.QueryRow(gctx, dayCountSQL, dayStart, dayEnd).Scan(&s.TodayCount); err != nil {
			return fmt.Errorf("counting today's orders: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := r.pool.QueryRow(gctx, dayRevenueSQL, dayStart, dayEnd).Scan(&s.TodayRevenue); err != nil {
			return fmt.Errorf("summing today's revenue: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := r.pool.QueryRow(gctx, customerCountSQL).Scan(&s.CustomerCount); err != nil {
			return fmt.Errorf("counting customers: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.CustomerID, &o.CustomerName, &o.CustomerPhone, &o.CustomerEmail, &o.CustomerAddress,
		&o.DeliveryZone, &o.DeliveryZoneName, &o.DeliveryFee, &o.PaymentMethod, &o.Subtotal, &o.Total, &o.Notes, &status,
		&o.CreatedAt, &o.ConfirmedAt, &o.CompletedAt, &o.CancelledAt,
	)
	o.Status = order.Status(status)
	return o, err
}
