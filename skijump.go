// Package skijump embeds the ski jumping roster and results server.
//
//	app, err := skijump.New(ctx,
//	    skijump.WithVersion(version),
//	    skijump.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The root package imports internal/*; nothing under internal/ imports it.
// Public types such as Jump are plain structs, and the adapters converting
// them live here.
package skijump

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kubikal7/ski-jumping-management/internal/auth"
	"github.com/kubikal7/ski-jumping-management/internal/authz"
	"github.com/kubikal7/ski-jumping-management/internal/config"
	"github.com/kubikal7/ski-jumping-management/internal/mcp"
	"github.com/kubikal7/ski-jumping-management/internal/model"
	"github.com/kubikal7/ski-jumping-management/internal/ratelimit"
	"github.com/kubikal7/ski-jumping-management/internal/season"
	"github.com/kubikal7/ski-jumping-management/internal/server"
	"github.com/kubikal7/ski-jumping-management/internal/service/accounts"
	"github.com/kubikal7/ski-jumping-management/internal/service/catalog"
	"github.com/kubikal7/ski-jumping-management/internal/service/recommend"
	"github.com/kubikal7/ski-jumping-management/internal/service/roster"
	"github.com/kubikal7/ski-jumping-management/internal/storage"
	"github.com/kubikal7/ski-jumping-management/internal/telemetry"
	"github.com/kubikal7/ski-jumping-management/migrations"
)

const (
	partitionCheckInterval = time.Hour
	// partitionLookahead provisions next season's partitions this long
	// before it starts.
	partitionLookahead = 30 * 24 * time.Hour
)

// App is the server lifecycle. Construct with New, run with Run.
type App struct {
	cfg       config.Config
	db        *storage.DB
	srv       *server.Server
	broker    *server.Broker // nil without a notify connection
	roster    *roster.Service
	teamCache *authz.TeamCache
	limiters  []ratelimit.Limiter
	telemetry *telemetry.Telemetry
	logger    *slog.Logger
	version   string
}

// New loads configuration, connects to Postgres, applies migrations, seeds
// the bootstrap administrator and wires every subsystem. It starts no
// goroutines and does not listen; call Run.
func New(ctx context.Context, opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.notifyURL != "" {
		cfg.NotifyURL = o.notifyURL
	}
	if o.redisURL != "" {
		cfg.RedisURL = o.redisURL
	}

	logger.Info("skijump starting", "version", version, "port", cfg.Port)

	a := &App{cfg: cfg, logger: logger, version: version}
	ok := false
	defer func() {
		if !ok {
			a.release(context.Background())
		}
	}()

	a.telemetry, err = telemetry.Init(ctx, telemetry.Config{
		ServiceName:  cfg.ServiceName,
		Version:      version,
		OTLPEndpoint: cfg.OTELEndpoint,
		OTLPInsecure: cfg.OTELInsecure,
		Prometheus:   cfg.MetricsEnabled,
	})
	if err != nil {
		return nil, err
	}

	a.db, err = storage.New(ctx, cfg.DatabaseURL, cfg.NotifyURL, logger)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	if err := a.db.RegisterPoolMetrics(telemetry.Meter("skijump/storage")); err != nil {
		logger.Warn("pool metrics unavailable", "error", err)
	}

	if o.skipMigrations {
		logger.Info("embedded migrations skipped")
	} else if err := a.db.RunMigrations(ctx, migrations.FS); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}
	if len(o.extraMigrations) > 0 {
		if err := a.db.RunMigrations(ctx, o.extraMigrations...); err != nil {
			return nil, fmt.Errorf("extra migrations: %w", err)
		}
	}

	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	if cfg.JWTPrivateKeyPath == "" {
		logger.Warn("jwt: using an ephemeral key pair, tokens will not survive a restart")
	}

	if cfg.TeamCacheTTL > 0 {
		a.teamCache = authz.NewTeamCache(cfg.TeamCacheTTL)
		logger.Info("team cache: enabled", "ttl", cfg.TeamCacheTTL)
	}

	a.roster = roster.New(a.db, roster.WithTeamCache(a.teamCache), roster.WithLogger(logger))
	catalogSvc := catalog.New(a.db, catalog.WithProvisioner(a.roster.Partitions()), catalog.WithLogger(logger))
	accountsSvc := accounts.New(a.db, jwtMgr, accounts.WithTeamCache(a.teamCache), accounts.WithLogger(logger))

	engineOpts := []recommend.Option{recommend.WithLogger(logger)}
	if o.scorer != nil {
		engineOpts = append(engineOpts, recommend.WithScorer(scorerAdapter{s: o.scorer}))
	}
	engine := recommend.New(a.db, engineOpts...)

	created, err := accountsSvc.SeedAdmin(ctx, cfg.AdminLogin, cfg.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("admin seed: %w", err)
	}
	if created {
		logger.Info("bootstrap administrator created", "login", cfg.AdminLogin)
	}

	a.ensureSeasonPartitions(ctx)

	if a.db.HasNotifyConn() {
		a.broker = server.NewBroker(a.db, logger)
	} else {
		logger.Info("live results feed: disabled (no notify connection)")
	}

	loginLimiter, writeLimiter, err := a.newLimiters(ctx)
	if err != nil {
		return nil, err
	}

	mcpSrv := mcp.New(mcp.Deps{
		Recommender: engine,
		Profiles:    a.db,
		Results:     a.roster,
		Events:      catalogSvc,
		Partitions:  a.db,
		Logger:      logger,
		Version:     version,
	})

	a.srv = server.New(server.ServerConfig{
		DB:                  a.db,
		JWTMgr:              jwtMgr,
		Accounts:            accountsSvc,
		Catalog:             catalogSvc,
		Roster:              a.roster,
		Engine:              engine,
		Logger:              logger,
		Broker:              a.broker,
		TeamCache:           a.teamCache,
		LoginLimiter:        loginLimiter,
		WriteLimiter:        writeLimiter,
		MCPServer:           mcpSrv.MCPServer(),
		MetricsHandler:      a.telemetry.MetricsHandler(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	ok = true
	return a, nil
}

// newLimiters picks Redis when a URL is configured and the in-process
// token bucket otherwise. Both are nil when rate limiting is off.
func (a *App) newLimiters(ctx context.Context) (login, write ratelimit.Limiter, err error) {
	cfg := a.cfg
	if !cfg.RateLimitEnabled {
		a.logger.Info("rate limiting: disabled")
		return nil, nil, nil
	}
	if cfg.RedisURL != "" {
		l, err := ratelimit.DialRedisLimiter(ctx, cfg.RedisURL, "skijump:rl", cfg.LoginRateLimit, cfg.RateLimitWindow)
		if err != nil {
			return nil, nil, err
		}
		a.limiters = append(a.limiters, l)
		w, err := ratelimit.DialRedisLimiter(ctx, cfg.RedisURL, "skijump:rl", cfg.WriteRateLimit, cfg.RateLimitWindow)
		if err != nil {
			return nil, nil, err
		}
		a.limiters = append(a.limiters, w)
		a.logger.Info("rate limiting: redis (fixed window)",
			"window", cfg.RateLimitWindow, "login_limit", cfg.LoginRateLimit, "write_limit", cfg.WriteRateLimit)
		return l, w, nil
	}

	perSecond := func(n int) float64 { return float64(n) / cfg.RateLimitWindow.Seconds() }
	l := ratelimit.NewMemoryLimiter(perSecond(cfg.LoginRateLimit), cfg.LoginRateLimit)
	w := ratelimit.NewMemoryLimiter(perSecond(cfg.WriteRateLimit), cfg.WriteRateLimit)
	a.limiters = append(a.limiters, l, w)
	a.logger.Info("rate limiting: memory (token bucket)",
		"window", cfg.RateLimitWindow, "login_limit", cfg.LoginRateLimit, "write_limit", cfg.WriteRateLimit)
	return l, w, nil
}

// Run starts the HTTP server and background workers and blocks until ctx is
// cancelled or one of them fails, then shuts down.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.broker != nil {
		g.Go(func() error {
			a.broker.Start(gctx)
			return nil
		})
	}
	g.Go(func() error {
		a.partitionLoop(gctx)
		return nil
	})
	g.Go(func() error {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.Shutdown(context.Background())
	})

	return g.Wait()
}

// Shutdown stops accepting requests, waits for in-flight ones up to the
// configured timeout and releases every resource.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("skijump shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, a.cfg.ShutdownTimeout)
	defer cancel()
	var err error
	if a.srv != nil {
		if err = a.srv.Shutdown(httpCtx); err != nil {
			a.logger.Error("http shutdown error", "error", err)
		}
	}
	a.release(ctx)

	a.logger.Info("skijump stopped")
	return err
}

func (a *App) release(ctx context.Context) {
	for _, l := range a.limiters {
		_ = l.Close()
	}
	a.limiters = nil
	if a.teamCache != nil {
		a.teamCache.Close()
	}
	if a.db != nil {
		a.db.Close(ctx)
		a.db = nil
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			a.logger.Warn("telemetry shutdown error", "error", err)
		}
		a.telemetry = nil
	}
}

// partitionLoop keeps the current and upcoming season provisioned so the
// first write of a season does not pay for DDL.
func (a *App) partitionLoop(ctx context.Context) {
	ticker := time.NewTicker(partitionCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.ensureSeasonPartitions(ctx)
		}
	}
}

func (a *App) ensureSeasonPartitions(ctx context.Context) {
	now := time.Now().UTC()
	for _, key := range season.Span(now, now.Add(partitionLookahead)) {
		opCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := a.roster.Partitions().Ensure(opCtx, key, storage.TableParticipants, storage.TableResults)
		cancel()
		if err != nil {
			a.logger.Warn("season partition provisioning failed", "season", key, "error", err)
		}
	}
}

// scorerAdapter exposes a public Scorer to the recommendation engine.
type scorerAdapter struct {
	s Scorer
}

func (a scorerAdapter) Score(records []model.PerformanceRecord, targetHillSize float64, referenceDate, oldestAllowed time.Time) float64 {
	history := make([]Jump, len(records))
	for i, r := range records {
		history[i] = Jump{
			AthleteID: r.AthleteID,
			EventID:   r.EventID,
			EventDate: r.EventStartDate,
			HillSize:  r.HillSize,
			Length:    r.JumpLength,
			Level:     r.Level,
			Season:    r.Season,
		}
	}
	return a.s.Score(history, targetHillSize, referenceDate, oldestAllowed)
}
