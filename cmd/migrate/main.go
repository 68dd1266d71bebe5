// Command migrate applies the embedded SQL migrations to DB_URL.
//
//	migrate up        apply all pending migrations
//	migrate down [n]  roll back n migrations (default 1)
//	migrate version   print the current version
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Clark-Hu/movie-ratings/db"
	"github.com/Clark-Hu/movie-ratings/internal/logging"
)

func main() {
	_ = godotenv.Load()

	logger, err := logging.New(os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(os.Args[1:], os.Getenv("DB_URL"), logger); err != nil {
		logger.Fatal("migrate failed", zap.Error(err))
	}
}

func run(args []string, dbURL string, logger *zap.Logger) error {
	if dbURL == "" {
		return errors.New("DB_URL is required")
	}
	cmd := "up"
	if len(args) > 0 {
		cmd = args[0]
	}

	src, err := iofs.New(db.Migrations, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, pgxURL(dbURL))
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil || dbErr != nil {
			logger.Warn("close migrate", zap.NamedError("source", srcErr), zap.NamedError("database", dbErr))
		}
	}()

	switch cmd {
	case "up":
		err = m.Up()
	case "down":
		steps := 1
		if len(args) > 1 {
			steps, err = strconv.Atoi(args[1])
			if err != nil || steps <= 0 {
				return fmt.Errorf("invalid step count %q", args[1])
			}
		}
		err = m.Steps(-steps)
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
			return verr
		}
		logger.Info("migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
		return nil
	default:
		return fmt.Errorf("unknown command %q (want up, down or version)", cmd)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no migrations to apply")
		return nil
	}
	if err != nil {
		return err
	}
	version, _, _ := m.Version()
	logger.Info("migrations applied", zap.String("command", cmd), zap.Uint("version", version))
	return nil
}

// pgxURL rewrites a postgres:// URL to the scheme the pgx/v5 driver registers.
func pgxURL(dbURL string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dbURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(dbURL, prefix)
		}
	}
	return dbURL
}
