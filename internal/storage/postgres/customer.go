package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/jachnun-storefront/internal/domain/customer"
)

const (
	customerColumns = `id, name, phone, email, address, order_count, total_spent, last_order_at, created_at`

	listCustomersSQL = `SELECT ` + customerColumns + ` FROM customers
		WHERE $1 = '' OR name ILIKE $2 OR phone ILIKE $2 OR email ILIKE $2
		ORDER BY last_order_at DESC NULLS LAST, id DESC
		LIMIT $3`

	getCustomerSQL = `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`

	customerOrdersSQL = `SELECT id, order_number, total, status, created_at
		FROM orders WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	findCustomerByPhoneSQL = `SELECT id, name, email, address FROM customers WHERE phone = $1`

	allPhonesSQL      = `SELECT phone FROM customers`
	existingPhonesSQL = `SELECT phone FROM customers WHERE phone = ANY($1)`

	importCustomersSQL = `INSERT INTO customers (name, phone, email, address)
		SELECT * FROM unnest($1::text[], $2::text[], $3::text[], $4::text[])
		ON CONFLICT (phone) DO NOTHING`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// List returns customers matching the search on name, phone or email, most
// recent buyers first.
func (r *CustomerRepository) List(ctx context.Context, f customer.ListFilter) ([]customer.Customer, error) {
	pattern := "%" + likeEscaper.Replace(f.Search) + "%"
	rows, err := r.pool.Query(ctx, listCustomersSQL, f.Search, pattern, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("listing customers: %w", err)
	}
	return pgx.CollectRows(rows, scanCustomer)
}

// Get returns a customer with up to historyLimit of their latest orders.
func (r *CustomerRepository) Get(ctx context.Context, id int64, historyLimit int) (*customer.Details, error) {
	rows, err := r.pool.Query(ctx, getCustomerSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting customer %d: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer %d: %w", id, err)
	}

	rows, err = r.pool.Query(ctx, customerOrdersSQL, id, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("getting customer %d orders: %w", id, err)
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (customer.OrderSummary, error) {
		var o customer.OrderSummary
		err := row.Scan(&o.ID, &o.OrderNumber, &o.Total, &o.Status, &o.CreatedAt)
		return o, err
	})
	if err != nil {
		return nil, fmt.Errorf("getting customer %d orders: %w", id, err)
	}

	return &customer.Details{Customer: c, Orders: orders}, nil
}

// FindByPhone looks up the contact details stored for a normalized phone.
func (r *CustomerRepository) FindByPhone(ctx context.Context, phone string) (*customer.Contact, error) {
	rows, err := r.pool.Query(ctx, findCustomerByPhoneSQL, phone)
	if err != nil {
		return nil, fmt.Errorf("finding customer by phone: %w", err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (customer.Contact, error) {
		var c customer.Contact
		err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Address)
		return c, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("finding customer by phone: %w", err)
	}
	return &c, nil
}

// ForEachPhone streams every stored phone to fn.
func (r *CustomerRepository) ForEachPhone(ctx context.Context, fn func(phone string)) error {
	rows, err := r.pool.Query(ctx, allPhonesSQL)
	if err != nil {
		return fmt.Errorf("listing phones: %w", err)
	}
	var phone string
	if _, err := pgx.ForEachRow(rows, []any{&phone}, func() error {
		fn(phone)
		return nil
	}); err != nil {
		return fmt.Errorf("listing phones: %w", err)
	}
	return nil
}

// ExistingPhones returns the subset of phones that already belong to a
// customer.
func (r *CustomerRepository) ExistingPhones(ctx context.Context, phones []string) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx, existingPhonesSQL, phones)
	if err != nil {
		return nil, fmt.Errorf("checking phones: %w", err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("checking phones: %w", err)
	}

	out := make(map[string]bool, len(found))
	for _, p := range found {
		out[p] = true
	}
	return out, nil
}

// Import inserts records as customers without orders. Phones that already
// exist are left untouched. It returns the number of inserted customers.
func (r *CustomerRepository) Import(ctx context.Context, records []customer.Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	var (
		names     = make([]string, len(records))
		phones    = make([]string, len(records))
		emails    = make([]*string, len(records))
		addresses = make([]*string, len(records))
	)
	for i, rec := range records {
		names[i], phones[i], emails[i], addresses[i] = rec.Name, rec.Phone, rec.Email, rec.Address
	}

	tag, err := r.pool.Exec(ctx, importCustomersSQL, names, phones, emails, addresses)
	if err != nil {
		return 0, fmt.Errorf("importing %d customers: %w", len(records), err)
	}
	return tag.RowsAffected(), nil
}

func scanCustomer(row pgx.CollectableRow) (customer.Customer, error) {
	var c customer.Customer
	err := row.Scan(
		&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address,
		&c.OrderCount, &c.TotalSpent, &c.LastOrderAt, &c.CreatedAt,
	)
	return c, err
}
