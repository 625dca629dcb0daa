package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/andy/tally/internal/config"
	"github.com/andy/tally/internal/crypto"
	"github.com/andy/tally/internal/db"
	"github.com/andy/tally/internal/repository"
	"github.com/andy/tally/internal/service"
)

// App is the dependency injection container for all application components
type App struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Store hands out repositories for lookups the services don't cover
	// (client and project management).
	Store *repository.Store

	Sessions service.SessionService
	Invoices service.InvoiceService
	Payments service.PaymentService
	Settings service.SettingsService
}

// New loads the default config and builds the App.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig fetches the encryption key (prompting on first run) and opens
// the database described by cfg.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	keyring := crypto.NewKeyring()
	password, err := keyring.GetKey()
	if err != nil && !errors.Is(err, crypto.ErrNoKey) {
		return nil, fmt.Errorf("failed to read encryption key from %s: %w", keyring.Source(), err)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Setting up database encryption for the first time...")
		password, err = promptForPassword()
		if err != nil {
			return nil, fmt.Errorf("failed to set password: %w", err)
		}
		if err := keyring.SetKey(password); err != nil {
			return nil, fmt.Errorf("failed to store encryption key: %w", err)
		}
	}

	return Open(ctx, cfg, password)
}

// Open opens and migrates the database, seeds the settings row from cfg on
// first use and wires the services.
func Open(ctx context.Context, cfg *config.Config, password string) (*App, error) {
	logger, err := NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}
	defaults, err := cfg.SettingsDefaults()
	if err != nil {
		return nil, fmt.Errorf("invalid invoice config: %w", err)
	}

	database, err := db.Open(cfg.Database.Path, password, db.Options{BusyTimeout: cfg.Database.BusyTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.RunMigrations(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	store := repository.NewStore(database)
	if err := store.Repos().Settings.Ensure(ctx, defaults); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialise settings: %w", err)
	}

	if version, err := database.SchemaVersion(); err == nil {
		logger.DebugContext(ctx, "database ready",
			slog.String("path", cfg.Database.Path), slog.Uint64("schema_version", uint64(version)))
	}

	opts := []service.Option{service.WithLogger(logger)}
	return &App{
		Config:   cfg,
		DB:       database,
		Logger:   logger,
		Store:    store,
		Sessions: service.NewSessionService(store, opts...),
		Invoices: service.NewInvoiceService(store, opts...),
		Payments: service.NewPaymentService(store, opts...),
		Settings: service.NewSettingsService(store, opts...),
	}, nil
}

// Close cleanly shuts down the application
func (a *App) Close() error {
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}

// promptForPassword asks for a new database password twice without echo.
func promptForPassword() (string, error) {
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Your billing data will be encrypted with a password.")
	fmt.Fprintln(os.Stderr, "This password will be stored in your system keyring where one is available.")
	fmt.Fprintln(os.Stderr)
	fmt.Fprint(os.Stderr, "Enter a password for database encryption: ")

	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if err := db.ValidateKey(string(password)); err != nil {
		return "", err
	}

	fmt.Fprint(os.Stderr, "Confirm password: ")
	confirm, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}
	if string(password) != string(confirm) {
		return "", fmt.Errorf("passwords do not match")
	}

	fmt.Fprintln(os.Stderr, "✓ Database encryption configured")
	return string(password), nil
}
