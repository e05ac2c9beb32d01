package catalogfile

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/order-ledger/internal/domain/apperr"
	"github.com/xenking/order-ledger/internal/domain/product"
)

// NameSource lists the names of the active products.
type NameSource interface {
	ForEachName(ctx context.Context, fn func(name string) error) error
}

// Stats summarizes an import run.
type Stats struct {
	Read       int64
	Created    int64
	Duplicates int64
	Rejected   int64
}

// ImporterConfig tunes the importer.
type ImporterConfig struct {
	// ExpectedNames sizes the bloom filter: existing plus imported names.
	ExpectedNames uint
	// FalsePositiveRate of the bloom filter. A false positive costs one
	// extra name lookup, never a lost product.
	FalsePositiveRate float64
	// Buffer is the capacity of the channel between readers and the writer.
	Buffer int
	// ProgressEvery logs progress after this many written descriptors.
	ProgressEvery int64
	Logger        *slog.Logger
}

func (c *ImporterConfig) setDefaults() {
	if c.ExpectedNames == 0 {
		c.ExpectedNames = 1_000_000
	}
	if c.FalsePositiveRate <= 0 {
		c.FalsePositiveRate = 0.001
	}
	if c.Buffer <= 0 {
		c.Buffer = 1024
	}
	if c.ProgressEvery <= 0 {
		c.ProgressEvery = 10_000
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Importer bulk-loads catalog files. Files are decoded concurrently and
// written by a single goroutine, so names are checked and inserted in one
// place.
type Importer struct {
	catalog  *product.Catalog
	products product.Repository
	names    NameSource
	cfg      ImporterConfig
}

// NewImporter creates an Importer writing through catalog.
func NewImporter(catalog *product.Catalog, products product.Repository, names NameSource, cfg ImporterConfig) *Importer {
	cfg.setDefaults()
	return &Importer{catalog: catalog, products: products, names: names, cfg: cfg}
}

type counters struct {
	read, created, duplicates, rejected atomic.Int64
}

func (c *counters) stats() Stats {
	return Stats{
		Read:       c.read.Load(),
		Created:    c.created.Load(),
		Duplicates: c.duplicates.Load(),
		Rejected:   c.rejected.Load(),
	}
}

// Run imports every file in paths. Products whose name is already taken are
// skipped, invalid ones are logged and skipped. The returned Stats are valid
// even when err is not nil.
func (im *Importer) Run(ctx context.Context, paths []string) (Stats, error) {
	var c counters

	filter := bloom.NewWithEstimates(im.cfg.ExpectedNames, im.cfg.FalsePositiveRate)
	if err := im.names.ForEachName(ctx, func(name string) error {
		filter.AddString(name)
		return nil
	}); err != nil {
		return c.stats(), errors.Wrap(err, "preload names")
	}

	ch := make(chan product.Descriptor, im.cfg.Buffer)
	g, gctx := errgroup.WithContext(ctx)

	var readers sync.WaitGroup
	for _, path := range paths {
		readers.Add(1)
		g.Go(func() error {
			defer readers.Done()
			return im.read(gctx, path, ch, &c)
		})
	}
	g.Go(func() error {
		readers.Wait()
		close(ch)
		return nil
	})
	g.Go(func() error {
		return im.write(gctx, filter, ch, &c)
	})

	err := g.Wait()
	return c.stats(), err
}

func (im *Importer) read(ctx context.Context, path string, ch chan<- product.Descriptor, c *counters) error {
	f, err := Open(path)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	defer func() { _ = f.Close() }()

	var n int64
	if err := Decode(f, func(d product.Descriptor) error {
		select {
		case ch <- d:
			n++
			c.read.Add(1)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}); err != nil {
		return errors.Wrapf(err, "read %s", path)
	}

	im.cfg.Logger.Info("file read", slog.String("path", path), slog.Int64("products", n))
	return nil
}

func (im *Importer) write(ctx context.Context, filter *bloom.BloomFilter, ch <-chan product.Descriptor, c *counters) error {
	var written int64
	for {
		var d product.Descriptor
		select {
		case <-ctx.Done():
			return ctx.Err()
		case v, ok := <-ch:
			if !ok {
				return ctx.Err()
			}
			d = v
		}

		if err := im.writeOne(ctx, filter, d, c); err != nil {
			return err
		}
		if written++; written%im.cfg.ProgressEvery == 0 {
			s := c.stats()
			im.cfg.Logger.Info("import progress",
				slog.Int64("written", written),
				slog.Int64("created", s.Created),
				slog.Int64("duplicates", s.Duplicates),
			)
		}
	}
}

func (im *Importer) writeOne(ctx context.Context, filter *bloom.BloomFilter, d product.Descriptor, c *counters) error {
	if filter.TestString(d.Name) {
		_, err := im.products.GetByName(ctx, d.Name)
		switch {
		case err == nil:
			c.duplicates.Add(1)
			return nil
		case !errors.Is(err, product.ErrNotFound):
			return errors.Wrapf(err, "lookup %q", d.Name)
		}
	}

	_, err := im.catalog.Create(ctx, d)
	switch {
	case err == nil:
		c.created.Add(1)
		filter.AddString(d.Name)
	case apperr.Is(err, apperr.KindConflict, apperr.ReasonNameTaken):
		c.duplicates.Add(1)
		filter.AddString(d.Name)
	case apperr.KindOf(err) == apperr.KindValidation:
		c.rejected.Add(1)
		im.cfg.Logger.Warn("product rejected",
			slog.String("name", d.Name),
			slog.String("error", err.Error()),
		)
	default:
		return errors.Wrapf(err, "create %q", d.Name)
	}
	return nil
}
