package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"freightflow/portal/internal/audit"
	"freightflow/portal/internal/config"
	"freightflow/portal/internal/cookies"
	"freightflow/portal/internal/directory"
	"freightflow/portal/internal/documents"
	"freightflow/portal/internal/httpserver"
	"freightflow/portal/internal/identity"
	"freightflow/portal/internal/migrate"
	"freightflow/portal/internal/observability"
	"freightflow/portal/internal/pages"
)

const startupDBWait = 30 * time.Second

type App struct {
	cfg    config.Config
	log    *slog.Logger
	db     *sql.DB
	server *httpserver.Server
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger := observability.NewLogger(cfg.LogLevel)
	metrics := observability.NewMetrics()

	factory, err := identity.NewFactory(identity.Config{
		BaseURL:       cfg.Identity.URL,
		APIKey:        cfg.Identity.PublicKey,
		HTTPClient:    &http.Client{Timeout: cfg.Identity.Timeout},
		Cookies:       cookies.Policy{Secure: cfg.Cookies.Secure, Domain: cfg.Cookies.Domain},
		RefreshMargin: cfg.Identity.RefreshMargin,
		Logger:        logger,
		Observer:      metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create identity factory: %w", err)
	}

	seed, err := directory.DefaultSeed()
	if err != nil {
		return nil, fmt.Errorf("load directory seed: %w", err)
	}

	var db *sql.DB
	var store directory.Store
	if cfg.DatabaseURL != "" {
		db, err = OpenDatabase(ctx, cfg.DatabaseURL, startupDBWait)
		if err != nil {
			return nil, err
		}
		pg, err := preparePostgres(ctx, db, seed, logger)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		store = pg
	} else {
		logger.Info("DATABASE_URL not set, using in-memory directory")
		store = directory.NewMemoryStore(seed)
	}

	docs, err := documents.NewStore(cfg.DocumentsDir)
	if err != nil {
		closeDB(db)
		return nil, fmt.Errorf("create documents store: %w", err)
	}
	renderer, err := pages.New()
	if err != nil {
		closeDB(db)
		return nil, fmt.Errorf("parse page templates: %w", err)
	}

	deps := httpserver.Deps{
		Identity:      factory,
		Directory:     store,
		Documents:     docs,
		Pages:         renderer,
		Audit:         audit.NewLogger(cfg.AuditLogFile),
		Metrics:       metrics,
		Logger:        logger,
		PublicURL:     cfg.HTTP.PublicURL,
		OAuthProvider: cfg.Identity.OAuthProvider,
	}
	if db != nil {
		deps.Ready = db.PingContext
	}

	return &App{
		cfg:    cfg,
		log:    logger,
		db:     db,
		server: httpserver.New(cfg.HTTP, deps),
	}, nil
}

func preparePostgres(ctx context.Context, db *sql.DB, seed directory.Seed, logger *slog.Logger) (*directory.PostgresStore, error) {
	if err := migrate.Up(db, logger); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	store, err := directory.NewPostgresStore(db)
	if err != nil {
		return nil, fmt.Errorf("create postgres directory: %w", err)
	}
	seeded, err := store.SeedIfEmpty(ctx, seed)
	if err != nil {
		return nil, fmt.Errorf("seed directory: %w", err)
	}
	if seeded {
		logger.Info("directory seeded", "accounts", len(seed.Accounts))
	}
	return store, nil
}

func closeDB(db *sql.DB) {
	if db != nil {
		_ = db.Close()
	}
}

func (a *App) Run(ctx context.Context) error {
	defer closeDB(a.db)

	errCh := make(chan error, 1)

	go func() {
		a.log.Info("http server starting", "addr", a.cfg.HTTP.Addr, "env", a.cfg.Env)
		errCh <- a.server.Start()
	}()

	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server exited: %w", err)
	}
}
