package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ehr/nlquery/internal/config"
	"github.com/ehr/nlquery/internal/domain/nlquery"
	"github.com/ehr/nlquery/internal/platform/auth"
	"github.com/ehr/nlquery/internal/platform/db"
	"github.com/ehr/nlquery/internal/platform/middleware"
	"github.com/ehr/nlquery/internal/platform/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// newLogger builds the process logger. Development writes human-readable
// output to out; LOG_FILE adds a rotated JSON copy.
func newLogger(cfg *config.Config, out io.Writer) (zerolog.Logger, io.Closer) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	var w io.Writer = out
	if cfg.IsDev() {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	var closer io.Closer = nopCloser{}
	if cfg.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
		w = zerolog.MultiLevelWriter(w, rotator)
		closer = rotator
	}

	return zerolog.New(w).Level(level).With().Timestamp().Str("service", "nlq-server").Logger(), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type healthChecker interface {
	Status(ctx context.Context) (string, map[string]interface{})
	HealthHandler() echo.HandlerFunc
}

// app holds the wired components shared by the server and the CLI commands.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	telemetry *telemetry.TelemetryProvider
	store     *nlquery.VocabularyStore
	svc       *nlquery.Service
	pool      *pgxpool.Pool
	dbCheck   healthChecker
}

// newApp loads the configured vocabulary and builds the compiler. The caller
// must call close.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		telemetry: telemetry.NewTelemetryProvider(telemetry.TelemetryConfig{
			Namespace:        "nlq",
			ServiceVersion:   version,
			Environment:      cfg.Env,
			MetricsEnabled:   telemetry.BoolPtr(cfg.MetricsEnabled),
			RuntimeCollected: true,
		}),
	}

	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		a.dbCheck = db.NewCheck(pool)
		logger.Info().Msg("connected to database")
	}

	source, err := vocabularySource(cfg, a.pool)
	if err != nil {
		a.close()
		return nil, err
	}

	a.store = nlquery.NewVocabularyStore(source, a.telemetry, logger)
	if _, err := a.store.Reload(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("load vocabulary: %w", err)
	}

	builder := nlquery.NewQueryBuilder(nlquery.BuilderConfig{
		BaseURL:        cfg.FHIRBaseURL,
		CodePreference: nlquery.CodePreference(cfg.CodePreference),
		BareCodes:      !cfg.QualifyCodes,
		Location:       loc,
	})
	a.svc = nlquery.NewService(a.store, builder, a.telemetry, logger)
	return a, nil
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// vocabularySource picks the Source named by VOCABULARY_SOURCE.
func vocabularySource(cfg *config.Config, pool *pgxpool.Pool) (nlquery.Source, error) {
	switch cfg.VocabularySource {
	case config.SourceBuiltin, "":
		return nlquery.BuiltinSource{}, nil
	case config.SourceFile:
		return nlquery.FileSource{Path: cfg.VocabularyFile}, nil
	case config.SourcePostgres:
		if pool == nil {
			return nil, errors.New("postgres vocabulary source requires DATABASE_URL")
		}
		return nlquery.RepositorySource{Repo: nlquery.NewVocabularyRepoPG(pool)}, nil
	default:
		return nil, fmt.Errorf("unknown vocabulary source %q", cfg.VocabularySource)
	}
}

// newEcho builds the HTTP server with its middleware chain and routes.
func (a *app) newEcho() *echo.Echo {
	cfg := a.cfg

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(a.telemetry.MetricsMiddleware())
	e.Use(middleware.SecurityHeaders(cfg.HSTS || cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		Skipper:           auth.AuthSkipper,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
		rateLimitCfg.Skipper = auth.AuthSkipper
	}
	e.Use(middleware.RateLimit(rateLimitCfg))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Auth middleware
	if cfg.AuthEnabled() {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			SigningKey: []byte(cfg.AuthJWTSecret),
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
		}))
	} else {
		e.Use(auth.DevAuthMiddleware())
	}

	e.GET("/health", a.health)
	if a.dbCheck != nil {
		e.GET("/health/db", a.dbCheck.HealthHandler())
	}
	if cfg.MetricsEnabled {
		e.GET("/metrics", a.telemetry.PrometheusHandler())
	}

	handler := nlquery.NewHandler(a.svc, version)
	handler.RegisterRoutes(e.Group(""), e.Group("/api/v1"))

	return e
}

// health handles GET /health
func (a *app) health(c echo.Context) error {
	v := a.store.Current()
	body := map[string]interface{}{
		"status":  "healthy",
		"version": version,
		"vocabulary": map[string]interface{}{
			"source":  a.store.SourceName(),
			"entries": v.Len(),
		},
	}

	code := http.StatusOK
	if a.dbCheck != nil {
		status, details := a.dbCheck.Status(c.Request().Context())
		details["status"] = status
		body["database"] = details
		if status != "healthy" {
			body["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	return c.JSON(code, body)
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, logCloser := newLogger(cfg, os.Stdout)
	defer logCloser.Close()

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if !cfg.AuthEnabled() {
		logger.Warn().Msg("AUTH_JWT_SECRET is not set: every request runs as admin (development only)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start compiler")
	}
	defer a.close()

	if a.pool != nil {
		go db.ReportPoolStats(ctx, a.pool, a.telemetry, 15*time.Second)
	}

	if cfg.VocabularyWatch {
		watcher, err := nlquery.NewFileWatcher(a.store, cfg.VocabularyFile, 0, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to watch vocabulary file")
		}
		watcher.Start(ctx)
		defer watcher.Close()
		logger.Info().Str("path", cfg.VocabularyFile).Msg("watching vocabulary file")
	}

	e := a.newEcho()

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
