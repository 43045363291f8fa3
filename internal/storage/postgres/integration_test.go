//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/jachnun-storefront/internal/domain/auth"
	"github.com/xenking/jachnun-storefront/internal/domain/catalog"
	"github.com/xenking/jachnun-storefront/internal/domain/customer"
	"github.com/xenking/jachnun-storefront/internal/domain/order"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "storefront",
				"POSTGRES_PASSWORD": "storefront",
				"POSTGRES_DB":       "storefront",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := testcontainers.TerminateContainer(c); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	host, err := c.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://storefront:storefront@%s:%s/storefront?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	// Migrations are idempotent.
	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations rerun: %v", err)
	}

	return m.Run()
}

func resetDB(t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(context.Background(),
		`TRUNCATE order_items, orders, customers, admins RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func strPtr(s string) *string { return &s }

func newOrder(number string, items ...order.Item) *order.Order {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Total)
	}
	fee := dec("20")
	return &order.Order{
		OrderNumber:      number,
		CustomerName:     "Dana",
		CustomerPhone:    "0522212410",
		CustomerEmail:    strPtr("dana@example.com"),
		DeliveryZone:     "zone1",
		DeliveryZoneName: "Center",
		DeliveryFee:      fee,
		PaymentMethod:    "bit",
		Subtotal:         subtotal,
		Total:            subtotal.Add(fee),
		Status:           order.StatusPending,
		Items:            items,
	}
}

func upsertFor(o *order.Order) customer.Upsert {
	return customer.Upsert{
		Name:       o.CustomerName,
		Phone:      o.CustomerPhone,
		Email:      o.CustomerEmail,
		Address:    o.CustomerAddress,
		OrderTotal: o.Total,
	}
}

func potItem() order.Item {
	return order.Item{ItemID: 1, Name: "Jachnun pot", Price: dec("150"), Quantity: 1, Total: dec("150")}
}

func TestOrderRepository_CreateAndGet(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	repo := NewOrderRepository(testPool)

	o := newOrder("DJ-TEST-0001", potItem())
	require.NoError(t, repo.Create(ctx, o, upsertFor(o)))
	require.NotZero(t, o.ID)
	require.NotNil(t, o.CustomerID)
	require.False(t, o.CreatedAt.IsZero())

	got, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "DJ-TEST-0001", got.OrderNumber)
	assert.True(t, dec("150").Equal(got.Subtotal))
	assert.True(t, dec("170").Equal(got.Total))
	assert.Equal(t, order.StatusPending, got.Status)
	assert.Equal(t, *o.CustomerID, *got.CustomerID)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Jachnun pot", got.Items[0].Name)
	assert.True(t, dec("150").Equal(got.Items[0].Total))

	byNumber, err := repo.GetByNumber(ctx, "DJ-TEST-0001")
	require.NoError(t, err)
	assert.Equal(t, o.ID, byNumber.ID)

	// Reads are idempotent.
	again, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, got, again)

	_, err = repo.Get(ctx, 9999)
	require.ErrorIs(t, err, order.ErrNotFound)
	_, err = repo.GetByNumber(ctx, "DJ-NOPE-0000")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestOrderRepository_CustomerUpsert(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	orders := NewOrderRepository(testPool)
	customers := NewCustomerRepository(testPool)

	first := newOrder("DJ-TEST-0001", potItem())
	first.CustomerPhone = customer.NormalizePhone("052-221-2410")
	first.CustomerAddress = strPtr("Herzl 1")
	require.NoError(t, orders.Create(ctx, first, upsertFor(first)))

	second := newOrder("DJ-TEST-0002", potItem())
	second.CustomerName = "Dana Levi"
	second.CustomerPhone = customer.NormalizePhone("+972 52 221 2410")
	second.CustomerEmail = nil
	require.NoError(t, orders.Create(ctx, second, upsertFor(second)))

	assert.Equal(t, *first.CustomerID, *second.CustomerID)

	details, err := customers.Get(ctx, *first.CustomerID, 20)
	require.NoError(t, err)
	assert.Equal(t, "Dana Levi", details.Name)
	assert.Equal(t, 2, details.OrderCount)
	assert.True(t, dec("340").Equal(details.TotalSpent))
	require.NotNil(t, details.Email)
	assert.Equal(t, "dana@example.com", *details.Email, "missing email keeps the stored one")
	require.NotNil(t, details.Address)
	assert.Equal(t, "Herzl 1", *details.Address)
	require.NotNil(t, details.LastOrderAt)

	require.Len(t, details.Orders, 2)
	assert.Equal(t, "DJ-TEST-0002", details.Orders[0].OrderNumber)

	contact, err := customers.FindByPhone(ctx, "0522212410")
	require.NoError(t, err)
	assert.Equal(t, "Dana Levi", contact.Name)

	_, err = customers.FindByPhone(ctx, "0500000000")
	require.ErrorIs(t, err, customer.ErrNotFound)
}

func TestOrderRepository_DuplicateNumberRollsBack(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	orders := NewOrderRepository(testPool)
	customers := NewCustomerRepository(testPool)

	o := newOrder("DJ-TEST-0001", potItem())
	require.NoError(t, orders.Create(ctx, o, upsertFor(o)))

	dup := newOrder("DJ-TEST-0001", potItem())
	err := orders.Create(ctx, dup, upsertFor(dup))
	require.ErrorIs(t, err, order.ErrDuplicateOrderNumber)
	assert.Zero(t, dup.ID)
	assert.Nil(t, dup.CustomerID)

	details, err := customers.Get(ctx, *o.CustomerID, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, details.OrderCount, "failed order must not count")
	assert.True(t, dec("170").Equal(details.TotalSpent))
}

func TestOrderRepository_ConcurrentOrdersKeepTheirItems(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	repo := NewOrderRepository(testPool)

	const n = 8
	created := make([]*order.Order, n)
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			items := make([]order.Item, i+1)
			for j := range items {
				items[j] = order.Item{ItemID: i*10 + j, Name: fmt.Sprintf("item-%d-%d", i, j), Price: dec("10"), Quantity: 1, Total: dec("10")}
			}
			o := newOrder(fmt.Sprintf("DJ-CONC-%04d", i), items...)
			o.CustomerPhone = fmt.Sprintf("05000000%02d", i)
			created[i] = o
			errs <- repo.Create(ctx, o, upsertFor(o))
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for i, o := range created {
		got, err := repo.Get(ctx, o.ID)
		require.NoError(t, err)
		require.Len(t, got.Items, i+1)
		for _, it := range got.Items {
			assert.Equal(t, i, it.ItemID/10, "item %s belongs to order %d", it.Name, i)
		}
	}
}

func TestOrderRepository_UpdateStatus(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	repo := NewOrderRepository(testPool)

	o := newOrder("DJ-TEST-0001", potItem())
	require.NoError(t, repo.Create(ctx, o, upsertFor(o)))

	allow := func(order.Status) error { return nil }

	change, err := repo.UpdateStatus(ctx, o.ID, order.StatusConfirmed, allow)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, change.From)
	assert.Equal(t, order.StatusConfirmed, change.To)

	confirmed, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, confirmed.ConfirmedAt)
	assert.Nil(t, confirmed.CompletedAt)

	// Re-applying keeps the first timestamp.
	_, err = repo.UpdateStatus(ctx, o.ID, order.StatusConfirmed, allow)
	require.NoError(t, err)
	again, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, confirmed.ConfirmedAt.Equal(*again.ConfirmedAt))

	_, err = repo.UpdateStatus(ctx, o.ID, order.StatusCompleted, allow)
	require.NoError(t, err)
	completed, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)
	assert.True(t, confirmed.ConfirmedAt.Equal(*completed.ConfirmedAt))

	// A vetoed change leaves the row untouched.
	veto := &order.TransitionError{From: order.StatusCompleted, To: order.StatusPending}
	_, err = repo.UpdateStatus(ctx, o.ID, order.StatusPending, func(order.Status) error { return veto })
	require.ErrorAs(t, err, &veto)
	still, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, still.Status)

	_, err = repo.UpdateStatus(ctx, 9999, order.StatusConfirmed, allow)
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestOrderRepository_ListAndStats(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	repo := NewOrderRepository(testPool)

	for i := range 3 {
		o := newOrder(fmt.Sprintf("DJ-LIST-%04d", i), potItem())
		require.NoError(t, repo.Create(ctx, o, upsertFor(o)))
		if i == 2 {
			_, err := repo.UpdateStatus(ctx, o.ID, order.StatusCancelled, func(order.Status) error { return nil })
			require.NoError(t, err)
		}
	}

	all, err := repo.List(ctx, order.ListFilter{Limit: 50})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "DJ-LIST-0002", all[0].OrderNumber, "newest first")
	for _, o := range all {
		assert.Len(t, o.Items, 1)
	}

	pending, err := repo.List(ctx, order.ListFilter{Status: order.StatusPending, Limit: 50})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	limited, err := repo.List(ctx, order.ListFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	now := time.Now()
	today, err := repo.List(ctx, order.ListFilter{From: now.Add(-time.Hour), To: now.Add(time.Hour), Limit: 50})
	require.NoError(t, err)
	assert.Len(t, today, 3)

	yesterday, err := repo.List(ctx, order.ListFilter{From: now.Add(-48 * time.Hour), To: now.Add(-24 * time.Hour), Limit: 50})
	require.NoError(t, err)
	assert.Empty(t, yesterday)

	stats, err := repo.Stats(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.PendingCount)
	assert.Equal(t, int64(3), stats.TodayCount)
	assert.True(t, dec("340").Equal(stats.TodayRevenue), "cancelled orders earn nothing, got %s", stats.TodayRevenue)
	assert.Equal(t, int64(1), stats.CustomerCount)
}

func TestCustomerRepository_List(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	orders := NewOrderRepository(testPool)
	customers := NewCustomerRepository(testPool)

	for i, name := range []string{"Avi", "Batya", "Chen"} {
		o := newOrder(fmt.Sprintf("DJ-CUST-%04d", i), potItem())
		o.CustomerName = name
		o.CustomerPhone = fmt.Sprintf("05011111%02d", i)
		o.CustomerEmail = strPtr(fmt.Sprintf("%s@example.com", name))
		require.NoError(t, orders.Create(ctx, o, upsertFor(o)))
	}

	all, err := customers.List(ctx, customer.ListFilter{Limit: 50})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Chen", all[0].Name, "most recent buyer first")

	byName, err := customers.List(ctx, customer.ListFilter{Search: "bat", Limit: 50})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "Batya", byName[0].Name)

	byPhone, err := customers.List(ctx, customer.ListFilter{Search: "0501111102", Limit: 50})
	require.NoError(t, err)
	require.Len(t, byPhone, 1)
	assert.Equal(t, "Chen", byPhone[0].Name)

	wildcard, err := customers.List(ctx, customer.ListFilter{Search: "%", Limit: 50})
	require.NoError(t, err)
	assert.Empty(t, wildcard)

	_, err = customers.Get(ctx, 9999, 20)
	require.ErrorIs(t, err, customer.ErrNotFound)
}

func TestCustomerRepository_Import(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	orders := NewOrderRepository(testPool)
	customers := NewCustomerRepository(testPool)

	o := newOrder("DJ-IMPORT-0001", potItem())
	o.CustomerPhone = "0501234567"
	require.NoError(t, orders.Create(ctx, o, upsertFor(o)))

	n, err := customers.Import(ctx, []customer.Record{
		{Name: "Overwrite attempt", Phone: "0501234567"},
		{Name: "Noa", Phone: "0529999999", Email: strPtr("noa@example.com")},
		{Name: "Eli", Phone: "0548888888"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var phones []string
	require.NoError(t, customers.ForEachPhone(ctx, func(p string) { phones = append(phones, p) }))
	assert.ElementsMatch(t, []string{"0501234567", "0529999999", "0548888888"}, phones)

	existing, err := customers.ExistingPhones(ctx, []string{"0501234567", "0529999999", "0000000000"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"0501234567": true, "0529999999": true}, existing)

	kept, err := customers.FindByPhone(ctx, "0501234567")
	require.NoError(t, err)
	assert.Equal(t, o.CustomerName, kept.Name, "import must not overwrite existing customers")

	imported, err := customers.FindByPhone(ctx, "0529999999")
	require.NoError(t, err)
	require.NotNil(t, imported.Email)
	assert.Equal(t, "noa@example.com", *imported.Email)

	n, err = customers.Import(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAdminRepository(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	repo := NewAdminRepository(testPool)

	a := &auth.Admin{Email: "owner@jachnun.test", Name: "Owner", PasswordHash: "hash-1"}
	require.NoError(t, repo.Create(ctx, a))
	require.NotZero(t, a.ID)

	dup := &auth.Admin{Email: "owner@jachnun.test", PasswordHash: "x"}
	require.ErrorIs(t, repo.Create(ctx, dup), auth.ErrAdminExists)

	found, err := repo.FindByEmail(ctx, "owner@jachnun.test")
	require.NoError(t, err)
	assert.Equal(t, a.ID, found.ID)
	assert.Equal(t, "hash-1", found.PasswordHash)

	require.NoError(t, repo.UpdatePassword(ctx, a.ID, "hash-2"))
	got, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash-2", got.PasswordHash)

	_, err = repo.FindByEmail(ctx, "ghost@jachnun.test")
	require.ErrorIs(t, err, auth.ErrAdminNotFound)
	require.ErrorIs(t, repo.UpdatePassword(ctx, 9999, "x"), auth.ErrAdminNotFound)
}

func TestCatalogRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewCatalogRepository(testPool)

	items, err := repo.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 12, "default menu is seeded by migrations")

	zone, err := repo.GetZone(ctx, "zone1")
	require.NoError(t, err)
	assert.True(t, dec("20").Equal(zone.Fee))

	_, err = repo.GetZone(ctx, "mars")
	require.ErrorIs(t, err, catalog.ErrZoneNotFound)

	err = repo.Replace(ctx, catalog.Menu{
		Items: []catalog.Item{
			{ID: 1, Name: "Jachnun pot", Price: dec("160"), Category: "main", Active: true},
		},
		Zones: []catalog.Zone{{Code: "zone1", Name: "Center", Fee: dec("25")}},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, err := testPool.Exec(ctx, `UPDATE menu_items SET active = TRUE`)
		require.NoError(t, err)
	})

	items, err = repo.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, dec("160").Equal(items[0].Price))

	byIDs, err := repo.GetItemsByIDs(ctx, []int{1, 3})
	require.NoError(t, err)
	require.Len(t, byIDs, 2)
	for _, it := range byIDs {
		assert.Equal(t, it.ID == 1, it.Active)
	}

	zones, err := repo.ListZones(ctx)
	require.NoError(t, err)
	assert.Len(t, zones, 4)
}
