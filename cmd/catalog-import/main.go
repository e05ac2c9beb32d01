package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/order-ledger/internal/catalogfile"
	"github.com/xenking/order-ledger/internal/domain/product"
	"github.com/xenking/order-ledger/internal/repository"
)

func main() {
	var (
		dataDir       string
		pattern       string
		databaseURL   string
		expectedNames uint
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing catalog files")
	flag.StringVar(&pattern, "pattern", "*.json.gz", "glob of catalog files inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&expectedNames, "expected-names", 1_000_000, "bloom filter capacity: existing plus imported product names")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, pattern, databaseURL, expectedNames); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, dataDir, pattern, databaseURL string, expectedNames uint) error {
	files, err := filepath.Glob(filepath.Join(dataDir, pattern))
	if err != nil {
		return errors.Wrap(err, "list catalog files")
	}
	if len(files) == 0 {
		slog.Info("no catalog files found", slog.String("dir", dataDir), slog.String("pattern", pattern))
		return nil
	}

	slog.Info("connecting to database")
	pool, err := repository.NewPool(ctx, databaseURL, repository.PoolConfig{})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	products := repository.NewProductRepository(pool)
	im := catalogfile.NewImporter(product.NewCatalog(products), products, products, catalogfile.ImporterConfig{
		ExpectedNames: expectedNames,
	})

	slog.Info("importing catalog", slog.Int("files", len(files)))
	start := time.Now()
	stats, err := im.Run(ctx, files)
	slog.Info("import summary",
		slog.Int64("read", stats.Read),
		slog.Int64("created", stats.Created),
		slog.Int64("duplicates", stats.Duplicates),
		slog.Int64("rejected", stats.Rejected),
		slog.Duration("took", time.Since(start)),
	)
	return err
}
