// Command customer-import loads legacy customer contact lists (CSV, optionally
// gzip-compressed) into the customers table. Existing customers are never
// modified.
package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/jachnun-storefront/internal/domain/customer"
	"github.com/xenking/jachnun-storefront/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	progressEvery = 10_000
)

// store is the subset of the customer repository the import needs.
type store interface {
	ForEachPhone(ctx context.Context, fn func(phone string)) error
	ExistingPhones(ctx context.Context, phones []string) (map[string]bool, error)
	Import(ctx context.Context, records []customer.Record) (int64, error)
}

type importer struct {
	store     store
	batchSize int
	capacity  uint
}

type stats struct {
	read       int
	skipped    int
	duplicates int
	existing   int
	inserted   int64
}

func main() {
	_ = godotenv.Load()

	var (
		databaseURL string
		batchSize   int
		capacity    uint
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&batchSize, "batch-size", 1000, "customers per insert statement")
	flag.UintVar(&capacity, "expected-customers", 1_000_000, "expected number of stored customers, sizes the bloom filter")
	flag.Usage = func() {
		_, _ = io.WriteString(flag.CommandLine.Output(), "usage: customer-import [flags] FILE.csv[.gz]...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if batchSize <= 0 {
		slog.Error("--batch-size must be positive", slog.Int("batch_size", batchSize))
		os.Exit(2)
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, flag.Args(), batchSize, capacity); err != nil {
		slog.Error("customer import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("customer import completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string, batchSize int, capacity uint) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	imp := &importer{
		store:     postgres.NewCustomerRepository(pool),
		batchSize: batchSize,
		capacity:  capacity,
	}
	st, err := imp.run(ctx, files)
	if err != nil {
		return err
	}

	slog.Info("import summary",
		slog.Int("read", st.read),
		slog.Int("skipped", st.skipped),
		slog.Int("duplicates", st.duplicates),
		slog.Int("existing", st.existing),
		slog.Int64("inserted", st.inserted),
	)
	return nil
}

func (imp *importer) run(ctx context.Context, files []string) (*stats, error) {
	if imp.batchSize <= 0 {
		return nil, errors.Errorf("batch size must be positive, got %d", imp.batchSize)
	}

	// Pass 1: index stored phones. The filter only answers "maybe stored";
	// positives are confirmed against the database before being dropped.
	slog.Info("pass 1: indexing stored phones")

	filter, err := imp.indexPhones(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "index stored phones")
	}

	// Pass 2: parse all files concurrently and partition the records.
	slog.Info("pass 2: reading files", slog.Int("files", len(files)))

	st := &stats{}
	fresh, maybe, err := imp.collect(ctx, files, filter, st)
	if err != nil {
		return nil, errors.Wrap(err, "read files")
	}

	confirmed, err := imp.dropExisting(ctx, maybe, st)
	if err != nil {
		return nil, errors.Wrap(err, "check stored phones")
	}
	fresh = append(fresh, confirmed...)

	slog.Info("writing customers", slog.Int("count", len(fresh)))

	for start := 0; start < len(fresh); start += imp.batchSize {
		end := min(start+imp.batchSize, len(fresh))
		n, err := imp.store.Import(ctx, fresh[start:end])
		if err != nil {
			return nil, errors.Wrap(err, "import customers")
		}
		st.inserted += n
		slog.Info("write progress", slog.Int("written", end), slog.Int("total", len(fresh)))
	}

	return st, nil
}

func (imp *importer) indexPhones(ctx context.Context) (*bloom.BloomFilter, error) {
	filter := bloom.NewWithEstimates(max(imp.capacity, 1), bloomFPR)
	var count int
	if err := imp.store.ForEachPhone(ctx, func(phone string) {
		filter.AddString(phone)
		count++
	}); err != nil {
		return nil, err
	}

	slog.Info("pass 1 complete", slog.Int("stored_phones", count))
	return filter, nil
}

// collect parses every file on its own goroutine and funnels the records to
// a single partitioner. The first record seen for a phone wins.
func (imp *importer) collect(
	ctx context.Context,
	files []string,
	filter *bloom.BloomFilter,
	st *stats,
) (fresh, maybe []customer.Record, err error) {
	records := make(chan customer.Record, 256)
	skipped := make([]int, len(files))

	g, gctx := errgroup.WithContext(ctx)
	readers, rctx := errgroup.WithContext(gctx)
	for i, f := range files {
		readers.Go(func() error {
			n, err := readFile(rctx, f, func(rec customer.Record) error {
				select {
				case records <- rec:
					return nil
				case <-rctx.Done():
					return rctx.Err()
				}
			})
			skipped[i] = n
			return err
		})
	}
	g.Go(func() error {
		defer close(records)
		return readers.Wait()
	})

	g.Go(func() error {
		seen := make(map[string]struct{})
		for rec := range records {
			st.read++
			if st.read%progressEvery == 0 {
				slog.Info("pass 2 progress", slog.Int("records", st.read))
			}

			if _, dup := seen[rec.Phone]; dup {
				st.duplicates++
				continue
			}
			seen[rec.Phone] = struct{}{}

			if filter.TestString(rec.Phone) {
				maybe = append(maybe, rec)
			} else {
				fresh = append(fresh, rec)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	for _, n := range skipped {
		st.skipped += n
	}

	slog.Info("pass 2 complete",
		slog.Int("records", st.read),
		slog.Int("new", len(fresh)),
		slog.Int("maybe_stored", len(maybe)),
	)
	return fresh, maybe, nil
}

// dropExisting removes the records whose phone is already stored.
func (imp *importer) dropExisting(ctx context.Context, maybe []customer.Record, st *stats) ([]customer.Record, error) {
	var out []customer.Record
	for start := 0; start < len(maybe); start += imp.batchSize {
		chunk := maybe[start:min(start+imp.batchSize, len(maybe))]

		phones := make([]string, len(chunk))
		for i, rec := range chunk {
			phones[i] = rec.Phone
		}
		existing, err := imp.store.ExistingPhones(ctx, phones)
		if err != nil {
			return nil, err
		}

		for _, rec := range chunk {
			if existing[rec.Phone] {
				st.existing++
				continue
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

// readFile streams the records of a CSV file, transparently decompressing
// .gz files. It returns the number of rows skipped as unusable.
func readFile(ctx context.Context, path string, fn func(customer.Record) error) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(r)
		if err != nil {
			return 0, errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	skipped, err := parseCSV(ctx, r, fn)
	if err != nil {
		return skipped, errors.Wrapf(err, "parse %s", path)
	}
	slog.Info("file read", slog.String("path", path), slog.Int("skipped", skipped))
	return skipped, nil
}

// parseCSV reads a CSV with a header row naming at least the name and phone
// columns; email and address are optional. Column names are matched case
// insensitively. Rows without a name or a usable phone are skipped.
func parseCSV(ctx context.Context, r io.Reader, fn func(customer.Record) error) (skipped int, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return 0, errors.Wrap(err, "read header")
	}
	cols := map[string]int{"name": -1, "phone": -1, "email": -1, "address": -1}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, ok := cols[h]; ok {
			cols[h] = i
		}
	}
	if cols["name"] < 0 || cols["phone"] < 0 {
		return 0, errors.New("header must name the name and phone columns")
	}

	field := func(row []string, col string) string {
		i := cols[col]
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	optional := func(row []string, col string) *string {
		if v := field(row, col); v != "" {
			return &v
		}
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return skipped, err
		}
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return skipped, nil
		}
		if err != nil {
			return skipped, errors.Wrap(err, "read row")
		}

		name := field(row, "name")
		phone := customer.NormalizePhone(field(row, "phone"))
		if name == "" || phone == "" {
			skipped++
			continue
		}

		if err := fn(customer.Record{
			Name:    name,
			Phone:   phone,
			Email:   optional(row, "email"),
			Address: optional(row, "address"),
		}); err != nil {
			return skipped, err
		}
	}
}
