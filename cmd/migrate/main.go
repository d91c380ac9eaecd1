package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/ferrychris/policyweb-sub000/internal/infra"
	"github.com/ferrychris/policyweb-sub000/internal/migrations"
	"github.com/golang-migrate/migrate/v4"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	logger = logger.Named("migrate")

	if cfg.Database.Driver != "postgres" {
		logger.Fatal("migrations require database.driver=postgres", zap.String("driver", cfg.Database.Driver))
	}

	m, err := migrations.New(cfg.Database.URL)
	if err != nil {
		logger.Fatal("failed to init migrations", zap.Error(err))
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn("failed to close migrator", zap.NamedError("source", srcErr), zap.NamedError("db", dbErr))
		}
	}()

	switch os.Args[1] {
	case "up":
		err = m.Up()
		report(logger, err, "migrations applied")

	case "down":
		// Откатываем только последнюю
		err = m.Steps(-1)
		report(logger, err, "last migration rolled back")

	case "goto":
		if len(os.Args) < 3 {
			logger.Fatal("version is required")
		}
		version, perr := strconv.ParseUint(os.Args[2], 10, 64)
		if perr != nil {
			logger.Fatal("invalid version", zap.String("arg", os.Args[2]), zap.Error(perr))
		}
		err = m.Migrate(uint(version))
		report(logger, err, "migrated to version", zap.Uint64("version", version))

	case "status":
		version, dirty, verr := m.Version()
		switch {
		case errors.Is(verr, migrate.ErrNilVersion):
			logger.Info("no migrations applied yet")
		case verr != nil:
			logger.Fatal("failed to read version", zap.Error(verr))
		default:
			logger.Info("current version", zap.Uint("version", version), zap.Bool("dirty", dirty))
		}

	default:
		printUsage()
		os.Exit(1)
	}
}

func report(logger *zap.Logger, err error, msg string, fields ...zap.Field) {
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info("no change: database is up to date")
	case err != nil:
		logger.Fatal("migration failed", zap.Error(err))
	default:
		logger.Info(msg, fields...)
	}
}

func printUsage() {
	fmt.Println("Usage: migrate <command>")
	fmt.Println("Commands:")
	fmt.Println("  up      apply all pending migrations")
	fmt.Println("  down    roll back the last migration")
	fmt.Println("  goto N  migrate to version N")
	fmt.Println("  status  print the current version")
}
