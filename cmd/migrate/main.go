package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	appconfig "github.com/shliew97/frappe-whatsapp/internal/config"
	appmigrations "github.com/shliew97/frappe-whatsapp/migrations"
	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

// Usage: migrate [up|down|version|force <version>]
func main() {
	cfg := appconfig.Load()
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if err := run(cfg, os.Args[1:], logger); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *appconfig.Config, args []string, logger *logging.Logger) error {
	databaseURL := strings.TrimSpace(cfg.DatabaseURL)
	if databaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	command, version, err := parseArgs(args)
	if err != nil {
		return err
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("db driver: %w", err)
	}
	srcDriver, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		return fmt.Errorf("source driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch command {
	case "force":
		if err := m.Force(version); err != nil {
			return fmt.Errorf("force version: %w", err)
		}
		logger.Info("forced migration version", "version", version)
	case "down":
		if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate down: %w", err)
		}
		logger.Info("rolled back one migration")
	case "version":
		v, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			return fmt.Errorf("read version: %w", err)
		}
		logger.Info("migration version", "version", v, "dirty", dirty)
	default:
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate up: %w", err)
		}
		logger.Info("migrations complete")
	}
	return nil
}

func parseArgs(args []string) (string, int, error) {
	if len(args) == 0 {
		return "up", 0, nil
	}
	switch args[0] {
	case "up", "down", "version":
		return args[0], 0, nil
	case "force":
		if len(args) < 2 {
			return "", 0, errors.New("force requires a version")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return "", 0, fmt.Errorf("invalid version: %w", err)
		}
		return "force", version, nil
	default:
		return "", 0, fmt.Errorf("unknown command %q", args[0])
	}
}
