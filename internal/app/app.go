// Package app wires configuration, storage, domain services and the HTTP
// server of the storefront API.
package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xenking/jachnun-storefront/internal/domain/auth"
	"github.com/xenking/jachnun-storefront/internal/domain/customer"
	"github.com/xenking/jachnun-storefront/internal/domain/order"
	"github.com/xenking/jachnun-storefront/internal/handler"
	"github.com/xenking/jachnun-storefront/internal/storage/postgres"
	"github.com/xenking/jachnun-storefront/pkg/health"
	"github.com/xenking/jachnun-storefront/pkg/httpmiddleware"
)

// Version is reported by /api/health.
var Version = "1.0.0"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application. m is usually
// the *app.Telemetry handed out by go-faster/sdk.
func Run(ctx context.Context, lg *zap.Logger, m httpmiddleware.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("timezone", cfg.Timezone),
	)

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc", time.Second, health.GCMaxPauseCheck(time.Second))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	orderRepo := postgres.NewOrderRepository(pool)
	customerRepo := postgres.NewCustomerRepository(pool)
	catalogRepo := postgres.NewCatalogRepository(pool)
	adminRepo := postgres.NewAdminRepository(pool)

	// Domain services.
	orderService, err := order.NewService(orderRepo, catalogRepo, order.DefaultNumberGenerator(),
		order.Config{
			VerifyCatalog:     cfg.Orders.VerifyCatalog,
			StrictTransitions: cfg.Orders.StrictTransitions,
			DefaultLimit:      cfg.Orders.DefaultLimit,
			MaxLimit:          cfg.Orders.MaxLimit,
			Location:          cfg.Location(),
		},
		m.TracerProvider(),
		m.MeterProvider(),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	customerService := customer.NewService(customerRepo, cfg.Orders.DefaultLimit, cfg.Orders.MaxLimit)
	authService := auth.NewService(adminRepo,
		auth.NewTokens([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL),
		auth.Config{
			SetupKey:   cfg.Auth.SetupKey,
			LoginRate:  rate.Limit(cfg.Auth.LoginRate),
			LoginBurst: cfg.Auth.LoginBurst,
		},
	)
	if cfg.Auth.SetupKey == "" {
		lg.Info("Admin setup endpoint disabled")
	}

	// Router: probes, API info, REST API and the optional front-end.
	router := chi.NewRouter()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	router.Get("/api/health", health.InfoEndpoint(health.Info{
		Message: "Doctor Jachnun API is running",
		Version: Version,
	}))
	handler.NewHandler(orderService, customerService, authService, catalogRepo).Mount(router)
	if cfg.StaticDir != "" {
		lg.Info("Serving front-end", zap.String("dir", cfg.StaticDir))
		router.NotFound(handler.SPA(cfg.StaticDir).ServeHTTP)
	}

	routeFinder := httpmiddleware.MakeRouteFinder(router)
	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(lg),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-Request-ID"},
				ExposeHeaders:    []string{"X-Request-ID"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Skip:   isProbe,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("storefront-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return errors.Wrap(err, "listen")
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.Stringer("addr", ln.Addr()))
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

func isProbe(r *http.Request) bool {
	return r.URL.Path == "/livez" || r.URL.Path == "/readyz"
}
