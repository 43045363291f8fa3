package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/jachnun-storefront/internal/domain/catalog"
)

const (
	itemColumns = `id, name, price, category, active`

	listMenuItemsSQL = `SELECT ` + itemColumns + ` FROM menu_items WHERE active ORDER BY id`

	getMenuItemsByIDsSQL = `SELECT ` + itemColumns + ` FROM menu_items WHERE id = ANY($1)`

	listZonesSQL = `SELECT code, name, fee FROM delivery_zones ORDER BY fee, code`

	getZoneSQL = `SELECT code, name, fee FROM delivery_zones WHERE code = $1`

	upsertMenuItemSQL = `INSERT INTO menu_items (id, name, price, category, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			category = EXCLUDED.category,
			active = EXCLUDED.active`

	deactivateMissingItemsSQL = `UPDATE menu_items SET active = FALSE WHERE NOT (id = ANY($1))`

	upsertZoneSQL = `INSERT INTO delivery_zones (code, name, fee) VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, fee = EXCLUDED.fee`
)

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// ListItems returns the active menu ordered by ID.
func (r *CatalogRepository) ListItems(ctx context.Context) ([]catalog.Item, error) {
	rows, err := r.pool.Query(ctx, listMenuItemsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing menu items: %w", err)
	}
	return pgx.CollectRows(rows, scanItem)
}

// GetItemsByIDs returns menu items matching any of the given IDs, inactive
// ones included.
func (r *CatalogRepository) GetItemsByIDs(ctx context.Context, ids []int) ([]catalog.Item, error) {
	rows, err := r.pool.Query(ctx, getMenuItemsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting menu items by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanItem)
}

// ListZones returns all delivery zones, cheapest first.
func (r *CatalogRepository) ListZones(ctx context.Context) ([]catalog.Zone, error) {
	rows, err := r.pool.Query(ctx, listZonesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing delivery zones: %w", err)
	}
	return pgx.CollectRows(rows, scanZone)
}

// GetZone returns a single delivery zone by code.
func (r *CatalogRepository) GetZone(ctx context.Context, code string) (*catalog.Zone, error) {
	rows, err := r.pool.Query(ctx, getZoneSQL, code)
	if err != nil {
		return nil, fmt.Errorf("getting delivery zone %q: %w", code, err)
	}
	z, err := pgx.CollectExactlyOneRow(rows, scanZone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrZoneNotFound
		}
		return nil, fmt.Errorf("getting delivery zone %q: %w", code, err)
	}
	return &z, nil
}

// Replace makes the stored catalog match m in one transaction. Items absent
// from m are deactivated rather than deleted so order history keeps
// resolving.
func (r *CatalogRepository) Replace(ctx context.Context, m catalog.Menu) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		ids := make([]int, 0, len(m.Items))
		for _, it := range m.Items {
			batch.Queue(upsertMenuItemSQL, it.ID, it.Name, it.Price, it.Category, it.Active)
			ids = append(ids, it.ID)
		}
		batch.Queue(deactivateMissingItemsSQL, ids)
		for _, z := range m.Zones {
			batch.Queue(upsertZoneSQL, z.Code, z.Name, z.Fee)
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("replacing catalog: %w", err)
		}
		return nil
	})
}

func scanItem(row pgx.CollectableRow) (catalog.Item, error) {
	var it catalog.Item
	err := row.Scan(&it.ID, &it.Name, &it.Price, &it.Category, &it.Active)
	return it, err
}

func scanZone(row pgx.CollectableRow) (catalog.Zone, error) {
	var z catalog.Zone
	err := row.Scan(&z.Code, &z.Name, &z.Fee)
	return z, err
}
