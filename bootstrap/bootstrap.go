// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/artpar/toolgate/adapters/breaker"
	"github.com/artpar/toolgate/adapters/clock"
	"github.com/artpar/toolgate/adapters/hasher"
	apihttp "github.com/artpar/toolgate/adapters/http"
	"github.com/artpar/toolgate/adapters/idgen"
	"github.com/artpar/toolgate/adapters/memory"
	"github.com/artpar/toolgate/adapters/metrics"
	"github.com/artpar/toolgate/adapters/random"
	"github.com/artpar/toolgate/adapters/redis"
	"github.com/artpar/toolgate/adapters/sqlite"
	"github.com/artpar/toolgate/app"
	"github.com/artpar/toolgate/config"
	"github.com/artpar/toolgate/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Holder
	Stores     *Stores
	Gateway    *app.Gateway
	Handler    http.Handler
	HTTPServer *http.Server
	Metrics    *metrics.Collector

	usageRecorder *AsyncUsageRecorder
	closers       []func() error
	stopCh        chan struct{}
	janitorDone   chan struct{}
}

// New creates and initializes the application from the holder's current
// configuration and subscribes it to reloads.
func New(holder *config.Holder, logger zerolog.Logger) (*App, error) {
	cfg := holder.Get()

	logger.Info().
		Str("database", cfg.Database.Driver).
		Str("quota_backend", cfg.Quota.Backend).
		Msg("initializing toolgate")

	a := &App{
		Logger: logger,
		Config: holder,
		stopCh: make(chan struct{}),
	}

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.Metrics = metrics.NewWithRegistry(reg)
	}

	stores, err := OpenStores(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open stores: %w", err)
	}
	a.Stores = stores

	quota, err := a.openQuotaStore(cfg)
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("open quota store: %w", err)
	}

	a.usageRecorder = NewAsyncUsageRecorder(stores.Usage, UsageRecorderConfig{
		QueueSize:     cfg.Usage.QueueSize,
		BatchSize:     cfg.Usage.BatchSize,
		FlushInterval: cfg.Usage.FlushInterval,
		WriteTimeout:  cfg.Usage.WriteTimeout,
		Logger:        logger,
		Metrics:       a.Metrics,
	})

	tiers, err := cfg.TierTable()
	if err != nil {
		a.closeAll()
		return nil, err
	}

	clk := clock.Real{}
	a.Gateway = app.NewGateway(app.GatewayDeps{
		Keys:       stores.Keys,
		Quota:      quota,
		Usage:      a.usageRecorder,
		UsageStore: stores.Usage,
		Tools:      stores.Tools,
		Webhooks:   stores.Webhooks,
		Hasher:     hasher.NewBcrypt(cfg.Auth.BcryptCost),
		Clock:      clk,
		IDGen:      idgen.UUID{},
		Random:     random.Secure{},
		Logger:     logger,
	}, app.GatewayConfig{
		KeyPrefix:           cfg.Auth.KeyPrefix,
		StoreTimeout:        cfg.Store.Timeout,
		FailOpen:            cfg.RateLimit.FailOpen,
		Tiers:               tiers,
		SandboxTools:        cfg.Sandbox.Tools,
		MaxWebhooksPerOwner: cfg.Webhooks.MaxPerOwner,
		AdminSecret:         cfg.Admin.Secret,
		AdminFailureRate:    cfg.Admin.FailureRate,
		AdminFailureBurst:   cfg.Admin.FailureBurst,
	})

	if cfg.Admin.Secret == "" {
		logger.Warn().Msg("admin.secret is empty, admin API disabled")
	}

	handler := apihttp.NewHandler(a.Gateway, apihttp.HandlerConfig{
		Clock:             clk,
		Logger:            logger,
		Metrics:           a.Metrics,
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
	})
	a.Handler = apihttp.NewRouter(handler, logger, apihttp.RouterConfig{
		Metrics:       a.Metrics,
		EnableOpenAPI: cfg.OpenAPI.Enabled,
	})

	a.HTTPServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      a.Handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	holder.OnChange(a.applyConfig)
	holder.OnError(func(error) {
		if a.Metrics != nil {
			a.Metrics.ConfigReloadErrors.Inc()
		}
	})

	return a, nil
}

// applyConfig pushes the reloadable settings of cfg into running services.
func (a *App) applyConfig(cfg *config.Config) {
	tiers, err := cfg.TierTable()
	if err != nil {
		// Load already validated the table; keep serving the old one.
		a.Logger.Error().Err(err).Msg("reloaded tier table rejected")
		return
	}

	a.Gateway.UpdateConfig(tiers, cfg.Sandbox.Tools)
	a.Gateway.SetFailOpen(cfg.RateLimit.FailOpen)
	setLogLevel(cfg.Logging.Level)

	if a.Metrics != nil {
		a.Metrics.ConfigReloads.Inc()
		a.Metrics.ConfigLastReload.SetToCurrentTime()
	}

	a.Logger.Info().
		Int64("sandbox_limit", cfg.Sandbox.Limit).
		Strs("sandbox_tools", cfg.Sandbox.Tools).
		Bool("fail_open", cfg.RateLimit.FailOpen).
		Msg("applied reloaded configuration")
}

// openQuotaStore builds the configured counter backend, optionally behind a
// circuit breaker, and instruments it when metrics are enabled.
func (a *App) openQuotaStore(cfg *config.Config) (ports.QuotaStore, error) {
	var store ports.QuotaStore

	switch cfg.Quota.Backend {
	case config.BackendMemory:
		m := memory.NewQuotaStore(memory.QuotaStoreConfig{CleanupInterval: cfg.Quota.CleanupInterval})
		a.closers = append(a.closers, m.Close)
		store = m

	case config.BackendSQLite:
		if a.Stores.DB == nil {
			return nil, errors.New("sqlite quota backend requires the sqlite database driver")
		}
		s := sqlite.NewQuotaStore(a.Stores.DB, nil)
		a.startJanitor(s, cfg.Quota.CleanupInterval)
		store = s

	case config.BackendRedis:
		rc := redis.DefaultConfig()
		rc.Addr = cfg.Quota.Redis.Addr
		rc.Password = cfg.Quota.Redis.Password
		rc.DB = cfg.Quota.Redis.DB
		rc.Prefix = cfg.Quota.Redis.Prefix
		if cfg.Quota.Redis.PoolSize > 0 {
			rc.PoolSize = cfg.Quota.Redis.PoolSize
		}
		rc.DialTimeout = cfg.Quota.Redis.DialTimeout

		ctx, cancel := context.WithTimeout(context.Background(), rc.DialTimeout)
		defer cancel()
		r, err := redis.New(ctx, rc)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, r.Close)
		store = r

	default:
		return nil, fmt.Errorf("unknown quota backend %q", cfg.Quota.Backend)
	}

	if a.Metrics != nil {
		store = metrics.InstrumentQuotaStore(store, cfg.Quota.Backend, a.Metrics)
	}

	if cfg.Quota.Breaker.Enabled {
		bc := breaker.Config{
			Name:             cfg.Quota.Backend,
			MaxFailures:      cfg.Quota.Breaker.MaxFailures,
			OpenTimeout:      cfg.Quota.Breaker.OpenTimeout,
			HalfOpenRequests: cfg.Quota.Breaker.HalfOpenRequests,
		}
		if a.Metrics != nil {
			bc.OnStateChange = func(name, from, to string) {
				a.Metrics.BreakerTransition.WithLabelValues(name, from, to).Inc()
			}
		}
		store = breaker.New(store, bc, a.Logger)
	}

	return store, nil
}

// startJanitor periodically deletes expired SQLite counters.
func (a *App) startJanitor(s *sqlite.QuotaStore, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	a.janitorDone = make(chan struct{})

	go func() {
		defer close(a.janitorDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				n, err := s.CleanupExpired(ctx, time.Now())
				cancel()
				if err != nil {
					a.Logger.Warn().Err(err).Msg("quota counter cleanup failed")
					continue
				}
				if n > 0 {
					a.Logger.Debug().Int64("deleted", n).Msg("expired quota counters removed")
				}
			case <-a.stopCh:
				return
			}
		}
	}()
}

// Run starts the HTTP server and blocks until SIGINT/SIGTERM or a server
// error, then shuts down.
func (a *App) Run() error {
	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application: the HTTP server drains, the
// usage queue is written, then stores are closed.
func (a *App) Shutdown() error {
	timeout := a.Config.Get().Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a.Config.Stop()

	// Shutdown HTTP server
	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	// Flush usage recorder
	if a.usageRecorder != nil {
		if err := a.usageRecorder.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("usage recorder close error")
		}
	}

	a.closeAll()

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

func (a *App) closeAll() {
	select {
	case <-a.stopCh:
	default:
		close(a.stopCh)
	}
	if a.janitorDone != nil {
		<-a.janitorDone
	}

	for _, c := range a.closers {
		if err := c(); err != nil {
			a.Logger.Error().Err(err).Msg("quota store close error")
		}
	}
	a.closers = nil

	// Close database
	if a.Stores != nil {
		if err := a.Stores.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
		a.Stores = nil
	}
}

// Stores holds the persistent stores selected by database.driver.
type Stores struct {
	DB       *sqlite.DB // nil for the memory driver
	Keys     ports.KeyStore
	Tools    ports.ToolStore
	Usage    ports.UsageStore
	Webhooks ports.WebhookStore
}

// OpenStores opens and migrates the configured database.
func OpenStores(cfg config.DatabaseConfig) (*Stores, error) {
	if cfg.Driver == config.DriverMemory {
		return &Stores{
			Keys:     memory.NewKeyStore(),
			Tools:    memory.NewToolStore(),
			Usage:    memory.NewUsageStore(),
			Webhooks: memory.NewWebhookStore(),
		}, nil
	}

	db, err := sqlite.Open(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Stores{
		DB:       db,
		Keys:     sqlite.NewKeyStore(db),
		Tools:    sqlite.NewToolStore(db),
		Usage:    sqlite.NewUsageStore(db),
		Webhooks: sqlite.NewWebhookStore(db),
	}, nil
}

// Close closes the database, if any.
func (s *Stores) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// SetupLogger builds the root logger and sets the global level.
func SetupLogger(cfg config.LoggingConfig) zerolog.Logger {
	setLogLevel(cfg.Level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func setLogLevel(levelStr string) {
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil || levelStr == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
