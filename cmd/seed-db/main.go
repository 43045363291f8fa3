package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/xenking/jachnun-storefront/internal/domain/auth"
	"github.com/xenking/jachnun-storefront/internal/domain/catalog"
	"github.com/xenking/jachnun-storefront/internal/storage/postgres"
)

type menuJSON struct {
	Items []struct {
		ID       int             `json:"id"`
		Name     string          `json:"name"`
		Price    decimal.Decimal `json:"price"`
		Category string          `json:"category"`
		Active   *bool           `json:"active"`
	} `json:"items"`
	Zones []struct {
		Code string          `json:"code"`
		Name string          `json:"name"`
		Fee  decimal.Decimal `json:"fee"`
	} `json:"zones"`
}

type adminSeed struct {
	email    string
	password string
	name     string
}

func main() {
	_ = godotenv.Load()

	var (
		databaseURL string
		menuFile    string
		admin       adminSeed
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&menuFile, "menu-file", "db/seed/menu.json", "path to menu JSON file")
	flag.StringVar(&admin.email, "admin-email", "", "first admin email (or STORE_SEED_ADMIN_EMAIL env); skipped when empty")
	flag.StringVar(&admin.password, "admin-password", "", "first admin password (or STORE_SEED_ADMIN_PASSWORD env)")
	flag.StringVar(&admin.name, "admin-name", "Admin", "first admin display name")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if admin.email == "" {
		admin.email = os.Getenv("STORE_SEED_ADMIN_EMAIL")
	}
	if admin.password == "" {
		admin.password = os.Getenv("STORE_SEED_ADMIN_PASSWORD")
	}
	if admin.email != "" && admin.password == "" {
		slog.Error("admin password is required with --admin-email: set --admin-password or STORE_SEED_ADMIN_PASSWORD")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, menuFile, admin); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, menuFile string, admin adminSeed) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedMenu(ctx, postgres.NewCatalogRepository(pool), menuFile); err != nil {
		return errors.Wrap(err, "seed menu")
	}

	if admin.email == "" {
		slog.Info("no admin requested, skipping")
		return nil
	}
	if err := seedAdmin(ctx, postgres.NewAdminRepository(pool), admin); err != nil {
		return errors.Wrap(err, "seed admin")
	}

	return nil
}

func readMenu(path string) (catalog.Menu, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return catalog.Menu{}, errors.Wrap(err, "read menu file")
	}

	var raw menuJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return catalog.Menu{}, errors.Wrap(err, "parse menu JSON")
	}

	m := catalog.Menu{
		Items: make([]catalog.Item, 0, len(raw.Items)),
		Zones: make([]catalog.Zone, 0, len(raw.Zones)),
	}
	seen := make(map[int]bool, len(raw.Items))
	for _, it := range raw.Items {
		if it.ID <= 0 || it.Name == "" {
			return catalog.Menu{}, errors.Errorf("menu item %d: id and name are required", it.ID)
		}
		if it.Price.IsNegative() {
			return catalog.Menu{}, errors.Errorf("menu item %d: negative price", it.ID)
		}
		if seen[it.ID] {
			return catalog.Menu{}, errors.Errorf("menu item %d: duplicate id", it.ID)
		}
		seen[it.ID] = true

		m.Items = append(m.Items, catalog.Item{
			ID:       it.ID,
			Name:     it.Name,
			Price:    it.Price,
			Category: it.Category,
			Active:   it.Active == nil || *it.Active,
		})
	}
	for _, z := range raw.Zones {
		if z.Code == "" || z.Fee.IsNegative() {
			return catalog.Menu{}, errors.Errorf("delivery zone %q: code and a non-negative fee are required", z.Code)
		}
		m.Zones = append(m.Zones, catalog.Zone{Code: z.Code, Name: z.Name, Fee: z.Fee})
	}
	return m, nil
}

func seedMenu(ctx context.Context, repo *postgres.CatalogRepository, menuFile string) error {
	slog.Info("reading menu file", slog.String("path", menuFile))

	m, err := readMenu(menuFile)
	if err != nil {
		return err
	}

	slog.Info("replacing catalog", slog.Int("items", len(m.Items)), slog.Int("zones", len(m.Zones)))

	if err := repo.Replace(ctx, m); err != nil {
		return errors.Wrap(err, "replace catalog")
	}

	for _, it := range m.Items {
		slog.Info("upserted menu item", slog.Int("id", it.ID), slog.String("name", it.Name))
	}
	return nil
}

func seedAdmin(ctx context.Context, repo auth.Repository, s adminSeed) error {
	a, err := auth.NewAdmin(s.email, s.password, s.name)
	if err != nil {
		return err
	}

	switch _, err := repo.FindByEmail(ctx, a.Email); {
	case err == nil:
		slog.Info("admin already exists, skipping", slog.String("email", a.Email))
		return nil
	case !errors.Is(err, auth.ErrAdminNotFound):
		return errors.Wrap(err, "find admin")
	}

	if err := repo.Create(ctx, a); err != nil {
		return errors.Wrap(err, "create admin")
	}

	slog.Info("created admin", slog.Int64("id", a.ID), slog.String("email", a.Email))
	return nil
}
