package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/spendsense/internal/auth/domain"
	httpapi "github.com/aussiebroadwan/spendsense/internal/auth/http"
	"github.com/aussiebroadwan/spendsense/internal/auth/service"
	"github.com/aussiebroadwan/spendsense/internal/auth/store"
	"github.com/aussiebroadwan/spendsense/pkg/jwtx"
	"github.com/aussiebroadwan/spendsense/pkg/slogx"
)

// BuildVersion is overridden at link time with
// -ldflags "-X github.com/aussiebroadwan/spendsense/internal/auth/app.BuildVersion=...".
var BuildVersion = "v0.1.0"

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db         store.Store
	keyManager *jwtx.KeyManager

	// Services
	credentialService   *service.CredentialService
	authService         *service.AuthService
	sessions            *service.SessionRegistry
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "spendsense-auth",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	ctx := slogx.WithContext(context.Background(), app.logger)

	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}

	keyManager, err := InitCookieKeys(app.cfg, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize cookie keys: %w", err)
	}
	app.keyManager = keyManager

	app.initServices()

	if err := app.seed(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initHTTP()

	return app, nil
}

// Handler returns the fully wired HTTP handler.
func (app *Application) Handler() http.Handler { return app.router }

// Close releases the store without starting or stopping the server. Tests
// that drive Handler directly use it in place of Shutdown.
func (app *Application) Close() error { return app.db.Close() }

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		app.housekeepingService.Stop()
		_ = app.db.Close()
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

func (app *Application) initDatabase(ctx context.Context) error {
	db, err := OpenStore(ctx, app.cfg)
	if err != nil {
		return err
	}
	app.db = db

	app.logger.Info("database migrations applied successfully", "driver", app.cfg.DatabaseDriver)
	return nil
}

func (app *Application) initServices() {
	app.credentialService = &service.CredentialService{Store: app.db}

	app.authService = &service.AuthService{
		Credentials: app.credentialService,
		Guard: &service.AccountGuard{
			Store:              app.db,
			MaxAttempts:        app.cfg.MaxFailedAttempts,
			LockDuration:       app.cfg.LockoutDuration,
			PasswordExpiryDays: app.cfg.PasswordExpiryDays,
		},
		CountValidationFailures: app.cfg.CountValidationFailures,
	}

	app.sessions = &service.SessionRegistry{
		IdleTimeout:        app.cfg.SessionIdleTimeout,
		TTL:                app.cfg.SessionTTL,
		GlobalMaxAttempts:  app.cfg.GlobalMaxFailedAttempts,
		GlobalLockDuration: app.cfg.GlobalLockoutDuration,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.sessions,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

func (app *Application) seed(ctx context.Context) error {
	if !app.cfg.SeedDemoUsers {
		return nil
	}

	created, err := app.credentialService.SeedIfAbsent(ctx, domain.DemoUsers())
	if err != nil {
		return fmt.Errorf("failed to seed demo users: %w", err)
	}
	app.logger.Info("demo users ensured", "created", created)
	return nil
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keyManager,
		BuildVersion,
		app.db,
		app.logger,
	)

	router.Sessions = app.sessions
	router.AuthService = app.authService
	router.CredentialService = app.credentialService
	router.Cookie = httpapi.CookieConfig{
		Secure: app.cfg.SessionCookieSecure,
		TTL:    app.cfg.SessionTTL,
		Issuer: app.cfg.Issuer,
	}
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
