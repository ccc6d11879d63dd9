package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/usagedash/internal/adapters/cache"
	"github.com/okian/usagedash/internal/adapters/http/api"
	"github.com/okian/usagedash/internal/adapters/http/swagger"
	"github.com/okian/usagedash/internal/adapters/repository"
	"github.com/okian/usagedash/internal/adapters/telemetry"
	app "github.com/okian/usagedash/internal/app"
	"github.com/okian/usagedash/internal/config"
	"github.com/okian/usagedash/internal/domain/ledger"
	"github.com/okian/usagedash/internal/domain/model"
	"github.com/okian/usagedash/pkg/logger"
	"github.com/okian/usagedash/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeoutSlack         = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

// application holds the wired components of a running process.
type application struct {
	svc     *app.Service
	handler http.Handler
	closers []func()
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.InitWith(os.Stdout, cfg.LogFormat); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	loggerInstance := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	a, err := wire(ctx, cfg, loggerInstance)
	if err != nil {
		loggerInstance.Error(ctx, "failed to start", logger.Error(err))
		os.Exit(1)
	}
	defer a.close()

	go startSystemMetricsUpdater(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      cfg.RequestTimeout + writeTimeoutSlack,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		loggerInstance.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			loggerInstance.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	loggerInstance.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggerInstance.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	loggerInstance.Info(ctx, "server stopped")
}

// wire builds the sources, the service and the HTTP handler from cfg.
func wire(ctx context.Context, cfg *config.Config, log logger.Logger) (*application, error) {
	a := &application{}
	opts := []app.Option{
		app.WithLogger(log.Named("service")),
		app.WithCache(cfg.CacheTTL, cfg.CacheSize),
		app.WithDefaultSource(model.Source(cfg.DefaultSource)),
		app.WithTopOrganizations(cfg.TopOrganizations),
		app.WithMinOrgEvents(cfg.MinOrgEvents),
	}

	if cfg.Telemetry.Enabled() {
		t := cfg.Telemetry
		client := telemetry.New(t.BaseURL,
			telemetry.WithBasicAuth(t.PublicKey, t.SecretKey),
			telemetry.WithBearerToken(t.BearerToken),
			telemetry.WithPageSize(t.PageSize),
			telemetry.WithMaxPages(t.MaxPages),
			telemetry.WithTimeout(t.Timeout),
			telemetry.WithLogger(log.Named("telemetry")),
		)
		opts = append(opts, app.WithTelemetry(client))
	}

	if cfg.Ledger.Enabled() {
		l := cfg.Ledger
		store, err := repository.New(ctx, l.DatabaseURL,
			repository.WithMaxConns(l.MaxConns),
			repository.WithTables(repository.Tables{
				Requests:   l.RequestTable,
				CurrentKey: l.CurrentKeyTable,
				LegacyKey:  l.LegacyKeyTable,
				Orgs:       l.OrgTable,
			}),
			repository.WithLogger(log.Named("repository")),
		)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)

		directory := cache.NewDirectory(store,
			cache.WithTTL(cfg.DirectoryTTL),
			cache.WithLogger(log.Named("directory")))
		reconciler := ledger.NewReconciler(store,
			ledger.WithNameSource(directory),
			ledger.WithLogger(log.Named("ledger")))
		opts = append(opts,
			app.WithLedger(reconciler),
			app.WithNames(directory),
			app.WithInvalidator(directory))
	}

	a.svc = app.New(opts...)
	if err := a.svc.Start(ctx); err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, a.svc.Stop)

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(a.svc, a.svc,
		api.WithAuth(cfg.Auth.JWTSecret, cfg.Auth.RequiredRole),
		api.WithRequestTimeout(cfg.RequestTimeout),
		api.WithLogger(log.Named("api")),
	).Register(ctx, mux)
	a.handler = mux

	if cfg.Auth.JWTSecret == "" {
		log.Warn(ctx, "auth.jwt_secret is empty; API requests are not authenticated")
	}
	return a, nil
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
