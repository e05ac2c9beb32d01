// Package app wires the ledger service together and runs its HTTP server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/order-ledger/internal/domain/auth"
	"github.com/xenking/order-ledger/internal/domain/order"
	"github.com/xenking/order-ledger/internal/domain/product"
	"github.com/xenking/order-ledger/internal/domain/report"
	"github.com/xenking/order-ledger/internal/handler"
	"github.com/xenking/order-ledger/internal/repository"
	"github.com/xenking/order-ledger/internal/repository/memory"
	"github.com/xenking/order-ledger/pkg/health"
	"github.com/xenking/order-ledger/pkg/httpmiddleware"
)

const serviceName = "order-ledger"

// backend is the storage selected by Config.Storage.
type backend struct {
	tx       order.Transactor
	products product.Repository
	orders   order.Repository
	items    interface {
		order.LineItemRepository
		report.Source
	}
	keys  auth.KeyStore
	ping  health.Pinger
	close func()
}

func openBackend(ctx context.Context, lg *zap.Logger, cfg *Config) (*backend, error) {
	if cfg.Storage == StorageMemory {
		lg.Warn("Using in-memory storage, data is lost on restart")
		s := memory.NewStore()
		return &backend{
			tx:       s,
			products: s.Products(),
			orders:   s.Orders(),
			items:    s.LineItems(),
			keys:     s.APIKeys(),
			ping:     s,
			close:    func() {},
		}, nil
	}

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxConns:        cfg.DB.MaxConns,
		MaxConnLifetime: cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := repository.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	lg.Info("Migrations applied")

	return &backend{
		tx:       repository.NewTransactor(pool),
		products: repository.NewProductRepository(pool),
		orders:   repository.NewOrderRepository(pool),
		items:    repository.NewLineItemRepository(pool),
		keys:     repository.NewAPIKeyRepository(pool),
		ping:     pool,
		close:    pool.Close,
	}, nil
}

// service is the assembled HTTP stack.
type service struct {
	handler http.Handler
	health  *health.Health
	close   func()
}

// build opens storage and assembles the domain services, the API router and
// the middleware chain.
func build(ctx context.Context, lg *zap.Logger, tp trace.TracerProvider, mp metric.MeterProvider, cfg *Config) (*service, error) {
	be, err := openBackend(ctx, lg, cfg)
	if err != nil {
		return nil, err
	}

	pepper := []byte(cfg.APIKeyPepper)
	if cfg.BootstrapAPIKey != "" {
		if err := be.keys.Upsert(ctx, &auth.APIKeyInfo{
			ID:      "bootstrap",
			KeyHash: handler.HashKey(cfg.BootstrapAPIKey, pepper),
			Name:    "bootstrap",
			Scopes:  auth.AllScopes,
		}); err != nil {
			be.close()
			return nil, errors.Wrap(err, "provision bootstrap key")
		}
		lg.Info("Bootstrap API key provisioned")
	}

	healthSvc := health.New()
	healthSvc.Add(health.Readiness, "storage", health.PingCheck(be.ping), health.WithTimeout(2*time.Second))
	healthSvc.Add(health.Liveness, "goroutines", health.GoroutineCountCheck(10000))

	catalog := product.NewCatalog(be.products)
	orderService, err := order.NewService(be.tx, catalog, be.products, be.orders, be.items,
		order.WithTracerProvider(tp),
		order.WithMeterProvider(mp),
	)
	if err != nil {
		be.close()
		return nil, errors.Wrap(err, "create order service")
	}
	reports := report.NewAggregator(be.items, tp)

	h := handler.NewHandler(catalog, orderService, reports)
	api := h.Router(handler.NewSecurityHandler(be.keys, pepper),
		httpmiddleware.LogRequests(),
		httpmiddleware.Labeler(),
	)

	mux := chi.NewRouter()
	mux.Get("/livez", healthSvc.LiveEndpoint)
	mux.Get("/health", healthSvc.LiveEndpoint)
	mux.Get("/readyz", healthSvc.ReadyEndpoint)
	mux.Mount("/", api)

	return &service{
		handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "api_key", httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader, "Retry-After"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Instrument(serviceName, tp, mp),
		),
		health: healthSvc,
		close:  be.close,
	}, nil
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)

	svc, err := build(ctx, zctx.From(ctx), m.TracerProvider(), m.MeterProvider(), cfg)
	if err != nil {
		return err
	}
	defer svc.close()

	svc.health.Start(ctx, cfg.Health.Interval)
	defer svc.health.Stop()

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           svc.handler,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		svc.health.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		close(shutdownDone)
	}()

	svc.health.SetReady(true)
	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
