package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/totem/totem/internal/config"
	"github.com/totem/totem/internal/domain/patient"
	"github.com/totem/totem/internal/domain/servicelog"
	"github.com/totem/totem/internal/platform/apierror"
	"github.com/totem/totem/internal/platform/auth"
	"github.com/totem/totem/internal/platform/cache"
	"github.com/totem/totem/internal/platform/db"
	"github.com/totem/totem/internal/platform/health"
	"github.com/totem/totem/internal/platform/middleware"
	"github.com/totem/totem/internal/platform/ratelimit"
	"github.com/totem/totem/internal/platform/telemetry"
)

const (
	redisDialTimeout = 3 * time.Second
	cacheKeyPrefix   = "totem:cache:"
	cacheSweepEvery  = time.Minute
	gzipMinLength    = 1000
)

// app holds the long-lived components of a running server.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	echo   *echo.Echo

	pool *pgxpool.Pool
	rdb  *redis.Client

	metrics  *telemetry.Provider
	limiter  *ratelimit.Limiter
	recorder ratelimit.Recorder
	memStore *cache.MemoryStore
	cache    *cache.Cache
	monitor  *health.Monitor

	patients *patient.Service
	services *servicelog.Service
	purger   *servicelog.Purger
}

// newApp connects to the configured backends and builds the HTTP server.
// Without DATABASE_URL the in-memory repositories are used; an unreachable
// Redis falls back to process-local cache and counters.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	a.metrics = telemetry.NewProvider(telemetry.Config{
		ServiceName:    "totem-server",
		ServiceVersion: cfg.AppVersion,
		Environment:    cfg.Env,
	})

	var (
		patientRepo patient.PatientRepository
		serviceRepo servicelog.ServiceLogRepository
	)
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		patientRepo = patient.NewPatientRepoPG(pool)
		serviceRepo = servicelog.NewServiceLogRepoPG(pool)
		logger.Info().Msg("connected to database")
	} else {
		patientRepo = patient.NewPatientRepoMemory()
		serviceRepo = servicelog.NewServiceLogRepoMemory()
		logger.Warn().Msg("DATABASE_URL not set, using in-memory storage")
	}

	if cfg.RedisURL != "" {
		a.rdb = a.connectRedis(ctx)
	}

	if a.rdb != nil {
		a.recorder = ratelimit.NewRedisRecorder(a.rdb)
	} else {
		a.recorder = ratelimit.NewMemoryRecorder()
	}

	if cfg.CacheEnabled {
		var store cache.Store
		if a.rdb != nil {
			store = cache.NewRedisStore(a.rdb, cacheKeyPrefix)
		} else {
			a.memStore = cache.NewMemoryStore()
			store = a.memStore
		}
		a.cache = cache.New(store, cfg.CacheTTLDuration(), logger)
		a.cache.OnLookup(a.metrics.RecordCacheLookup)
	}

	a.patients = patient.NewService(patientRepo, a.cache)
	a.services = servicelog.NewService(serviceRepo, a.cache)
	a.purger = servicelog.NewPurger(a.services, cfg.RetentionDuration(), logger)

	if cfg.RateLimitEnabled {
		a.limiter = ratelimit.New(ratelimit.Config{
			BurstLimit:     cfg.RateLimitBurst,
			SustainedLimit: cfg.RateLimitPerMinute,
		})
	}

	a.monitor = health.NewMonitor(health.Options{
		Version:     cfg.AppVersion,
		Environment: cfg.Env,
		Debug:       cfg.IsDev(),
		Logger:      logger,
	})
	if a.pool != nil {
		a.monitor.AddProber(db.NewProber(a.pool))
		a.monitor.OnReport(func(*health.Report) {
			st := a.pool.Stat()
			a.metrics.SetDBPool(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
		})
	}
	if a.rdb != nil {
		rdb := a.rdb
		a.monitor.AddProber(health.NewPingProber("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
	}

	proxies, err := cfg.TrustedProxyNets()
	if err != nil {
		return nil, err
	}
	a.echo = a.newEcho(clientIPExtractor(proxies))
	return a, nil
}

func (a *app) connectRedis(ctx context.Context) *redis.Client {
	opts, err := redis.ParseURL(a.cfg.RedisURL)
	if err != nil {
		a.logger.Warn().Err(err).Msg("invalid REDIS_URL, continuing without redis")
		return nil
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		a.logger.Warn().Err(err).Msg("redis unreachable, continuing without redis")
		_ = rdb.Close()
		return nil
	}
	a.logger.Info().Msg("connected to redis")
	return rdb
}

// clientIPExtractor identifies clients by socket address. X-Forwarded-For is
// honoured only when the direct peer is one of the trusted proxies.
func clientIPExtractor(trusted []*net.IPNet) echo.IPExtractor {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, n := range trusted {
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

func (a *app) newEcho(extractIP echo.IPExtractor) *echo.Echo {
	cfg := a.cfg
	logger := a.logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = extractIP
	e.HTTPErrorHandler = apierror.Handler(logger)

	e.Pre(middleware.Sanitize(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.ProcessTime())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.GzipWithConfig(echomw.GzipConfig{
		MinLength: gzipMinLength,
		// promhttp negotiates its own compression.
		Skipper: func(c echo.Context) bool { return c.Path() == "/metrics" },
	}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Content-Type", "Authorization", auth.APIKeyHeader, middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.HeaderRateLimitLimit, middleware.HeaderRateLimitRemaining, middleware.HeaderRateLimitReset, middleware.ProcessTimeHeader, "Retry-After"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(a.metrics.MetricsMiddleware())
	e.Use(a.monitor.Middleware())
	e.Use(middleware.RequestTimeout(cfg.RequestTimeoutDuration()))
	e.Use(middleware.Audit(logger))

	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"message": "Totem API",
			"version": cfg.AppVersion,
			"status":  "running",
		})
	})
	e.GET("/metrics", a.metrics.Handler())

	api := e.Group("/api")
	if a.limiter != nil {
		api.Use(middleware.Admission(middleware.AdmissionConfig{
			Limiter:  a.limiter,
			Recorder: a.recorder,
			Metrics:  a.metrics,
			Logger:   logger,
		}))
	}

	admin := auth.APIKeyMiddleware(auth.NewKeySet(cfg.AdminAPIKeys))

	healthHandler := health.NewHandler(a.monitor)
	a.addHealthSources(healthHandler)
	healthHandler.RegisterRoutes(api)

	patient.NewHandler(a.patients).RegisterRoutes(api.Group("/patients"), admin)
	servicelog.NewHandler(a.services).RegisterRoutes(api.Group("/services"), admin)

	return e
}

func (a *app) addHealthSources(h *health.Handler) {
	h.AddSource("rate_limiting", func(ctx context.Context) (interface{}, error) {
		out := map[string]interface{}{"enabled": a.limiter != nil}
		if a.limiter != nil {
			out["limiter"] = a.limiter.Snapshot(time.Now())
		}
		totals, err := a.recorder.Totals(ctx)
		if err != nil {
			return nil, err
		}
		out["totals"] = map[string]int64{
			"allowed":  totals.Allowed,
			"rejected": totals.Rejected(),
			"burst":    totals.Burst,
			"minute":   totals.Sustained,
		}
		return out, nil
	})
	h.AddSource("cache", func(context.Context) (interface{}, error) {
		return a.cache.Stats(), nil
	})
	h.AddSource("patients", func(ctx context.Context) (interface{}, error) {
		n, err := a.patients.Count(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]int{"total": n}, nil
	})
	h.AddSource("services", func(ctx context.Context) (interface{}, error) {
		n, err := a.services.PendingCount(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]int{"pending": n}, nil
	})
	if a.pool != nil {
		h.AddSource("database", func(context.Context) (interface{}, error) {
			return db.GetPoolStats(a.pool), nil
		})
	}
}

// RunBackground starts the periodic sweeps and blocks until ctx is done.
func (a *app) RunBackground(ctx context.Context) {
	if a.limiter != nil {
		go a.limiter.StartCleanup(ctx, a.cfg.RateLimitCleanupDuration())
	}
	if a.memStore != nil {
		a.memStore.StartCleanup(ctx, cacheSweepEvery)
	}
	if a.cfg.AutoCleanupEnabled {
		go a.purger.Run(ctx, 0)
	}
	a.monitor.Run(ctx, a.cfg.HealthCheckIntervalDuration())
}

func (a *app) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
