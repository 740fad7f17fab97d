package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"plotvault/api"
	"plotvault/config"
	"plotvault/core"
	"plotvault/csrf"
	"plotvault/storage"
	"plotvault/util/goroutine"

	"go.uber.org/zap"
)

// poolStatsInterval paces the SQLite connection pool gauge refresh.
const poolStatsInterval = 30 * time.Second

// App represents the PlotVault application with all its components.
type App struct {
	// Configuration
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	// Storage
	Store  storage.DatasetStorageInterface
	SQLite *storage.SQLite // non-nil only for the sqlite backend

	// Caching
	Cache *core.DatasetCache
	Redis *core.RedisCache // nil when Redis is disabled

	// CSRF defense
	Registry  csrf.Registry
	Issuer    *csrf.Issuer
	Validator *csrf.Validator
	Sweeper   *csrf.Sweeper

	// Services
	Hub       *api.Hub
	APIServer *api.API

	// Lifecycle
	serviceWg  *sync.WaitGroup
	shutdownCh chan struct{}
}

// NewApp creates a new application instance and initializes all components.
func NewApp(ctx context.Context) (*App, error) {
	app := &App{
		serviceWg:  &sync.WaitGroup{},
		shutdownCh: make(chan struct{}),
	}

	// Initialize logger
	logger, sugar, err := InitLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.Logger = logger
	app.Sugar = sugar

	sugar.Info("PlotVault starting...")

	// Load configuration
	cfg, err := InitConfig(sugar)
	if err != nil {
		return nil, err
	}
	app.Config = cfg

	// Overlay secret material before anything dials out
	if err := config.LoadSecrets(cfg); err != nil {
		return nil, fmt.Errorf("failed to load secrets: %w", err)
	}

	// Initialize the system of record
	store, sqlite, err := InitDatasetStorage(ctx, cfg, sugar)
	if err != nil {
		return nil, err
	}
	app.Store = store
	app.SQLite = sqlite

	// Index creation is best-effort: a replica without createIndex rights
	// can still serve
	if err := store.EnsureIndexes(ctx); err != nil {
		sugar.Warnf("Failed to ensure storage indexes: %v", err)
	}

	// In-process LRU cache for hot datasets
	cache, err := core.NewDatasetCache(cfg.Cache.LRUSize)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize dataset cache: %w", err)
	}
	app.Cache = cache

	// Optional Redis layer for cross-instance caching
	if err := app.initRedis(ctx); err != nil {
		return nil, err
	}

	// CSRF token issuance and validation
	if err := app.initCSRF(); err != nil {
		return nil, err
	}

	// WebSocket hub for dataset change events
	app.Hub = api.NewHub(sugar, ctx)

	// HTTP API
	app.APIServer = api.NewAPI(store, cache, app.Redis, app.Issuer, app.Validator, app.Hub, cfg, sugar)

	sugar.Info("All components initialized successfully")
	return app, nil
}

// initRedis connects the optional Redis cache. A dead Redis only degrades
// caching, so graceful mode continues without it; strict mode fails fast.
func (a *App) initRedis(ctx context.Context) error {
	if !a.Config.Redis.Enabled {
		a.Sugar.Info("Redis cache disabled")
		return nil
	}

	redisCache := core.NewRedisCache(
		a.Config.Redis.Addr,
		a.Config.Redis.Password,
		a.Config.Redis.DB,
		a.Config.Redis.PoolSize,
		a.Sugar,
	)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := redisCache.Ping(pingCtx); err != nil {
		if a.Config.IsGracefulMode() && a.Config.CSRF.RegistryBackend != config.RegistryRedis {
			a.Sugar.Warnw("Redis unavailable, continuing without the Redis cache layer",
				"addr", a.Config.Redis.Addr,
				"error", err)
			_ = redisCache.Close()
			return nil
		}
		return fmt.Errorf("failed to connect to Redis at %s: %w", a.Config.Redis.Addr, err)
	}

	a.Sugar.Infow("Connected to Redis", "addr", a.Config.Redis.Addr)
	a.Redis = redisCache
	return nil
}

// initCSRF wires the token registry, issuer, validator, and background
// sweeper from configuration.
func (a *App) initCSRF() error {
	opts := csrf.Options{
		TTL:        a.Config.CSRF.TokenTTL,
		CookieName: a.Config.CSRF.CookieName,
		HeaderName: a.Config.CSRF.HeaderName,
		SameSite:   sameSiteFromConfig(a.Config.CSRF.CookieSameSite),
		Secure:     a.Config.CSRF.CookieSecure,
	}

	switch a.Config.CSRF.RegistryBackend {
	case config.RegistryRedis:
		if a.Redis == nil {
			return fmt.Errorf("csrf registry backend is redis but Redis is not connected")
		}
		a.Registry = csrf.NewRedisRegistry(a.Redis.Client(), opts.TTL, a.Sugar)
		a.Sugar.Info("CSRF token registry: redis")
	default:
		a.Registry = csrf.NewMemoryRegistry()
		a.Sugar.Info("CSRF token registry: in-memory")
	}

	a.Issuer = csrf.NewIssuer(a.Registry, opts, a.Sugar)
	a.Validator = csrf.NewValidator(a.Registry, opts, a.Sugar)
	a.Sweeper = csrf.NewSweeper(a.Registry, opts.TTL, a.Config.CSRF.SweepInterval, a.Sugar)

	a.Sugar.Infow("CSRF protection initialized",
		"cookie", opts.CookieName,
		"header", opts.HeaderName,
		"ttl", opts.TTL)
	return nil
}

// sameSiteFromConfig maps the config string to the http.SameSite policy.
// Config validation has already rejected anything else.
func sameSiteFromConfig(policy string) http.SameSite {
	switch policy {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// Start starts all background services and the API server.
func (a *App) Start(ctx context.Context) error {
	// WebSocket hub
	a.serviceWg.Add(1)
	go func() {
		defer a.serviceWg.Done()
		defer goroutine.Recover("websocket-hub", a.Sugar)
		a.Hub.Start()
	}()

	// Periodic CSRF token eviction
	a.serviceWg.Add(1)
	go func() {
		defer a.serviceWg.Done()
		a.Sweeper.Run()
	}()

	// SQLite pool stats
	if a.SQLite != nil {
		a.startPoolStatsReporter()
	}

	a.startAPIServer()

	a.Sugar.Info("All services started successfully")
	return nil
}

// startPoolStatsReporter refreshes the SQLite pool gauges until shutdown.
func (a *App) startPoolStatsReporter() {
	a.serviceWg.Add(1)
	go func() {
		defer a.serviceWg.Done()
		defer goroutine.Recover("sqlite-pool-stats", a.Sugar)

		ticker := time.NewTicker(poolStatsInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				a.SQLite.CollectPoolStats()
			case <-a.shutdownCh:
				return
			}
		}
	}()
}

// startAPIServer launches the HTTP server in a goroutine.
func (a *App) startAPIServer() {
	a.serviceWg.Add(1)
	go func() {
		defer a.serviceWg.Done()
		defer goroutine.Recover("api-server", a.Sugar)

		addr := fmt.Sprintf("%s:%d", a.Config.Server.Host, a.Config.Server.Port)

		var err error
		if a.Config.Server.TLS {
			err = a.APIServer.StartTLS(addr, a.Config.Server.CertFile, a.Config.Server.KeyFile)
		} else {
			err = a.APIServer.Start(addr)
		}

		if err != nil && err.Error() != "http: Server closed" {
			a.Sugar.Errorw("API server failed", "error", err)
		}
	}()
}

// WaitForShutdown blocks until an interrupt or termination signal arrives.
func (a *App) WaitForShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	sig := <-c
	a.Sugar.Infow("Received shutdown signal", "signal", sig.String())
}

// Shutdown gracefully stops all services in dependency order.
func (a *App) Shutdown() {
	a.Sugar.Info("Shutting down PlotVault...")

	close(a.shutdownCh)

	// Phase 1: Stop the CSRF sweeper so the registry backend can close
	a.Sugar.Info("Phase 1: Stopping CSRF token sweeper")
	if a.Sweeper != nil {
		a.Sweeper.Stop()
	}

	// Phase 2: Disconnect WebSocket clients
	a.Sugar.Info("Phase 2: Stopping WebSocket hub")
	if a.Hub != nil {
		a.Hub.Stop()
	}

	// Phase 3: Stop accepting HTTP requests and drain in-flight ones
	a.Sugar.Info("Phase 3: Stopping API server")
	if a.APIServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.APIServer.Stop(ctx); err != nil {
			a.Sugar.Warnw("API server shutdown error", "error", err)
		}
		cancel()
	}

	// Phase 4: Wait for background services to drain
	a.Sugar.Info("Phase 4: Waiting for background services")
	done := make(chan struct{})
	go func() {
		a.serviceWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.Sugar.Info("All background services stopped")
	case <-time.After(15 * time.Second):
		a.Sugar.Warn("Timeout waiting for background services, forcing shutdown")
	}

	// Phase 5: Close storage connections
	a.Sugar.Info("Phase 5: Closing storage connections")
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Sugar.Warnw("Redis close error", "error", err)
		}
	}
	if a.Store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.Store.Close(ctx); err != nil {
			a.Sugar.Warnw("Storage close error", "error", err)
		}
		cancel()
	}

	a.Sugar.Info("Shutdown complete")
	_ = a.Logger.Sync()
}
