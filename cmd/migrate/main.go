// Command migrate applies schema migrations. Usage:
//
//	migrate up
//	migrate down [steps]
//	migrate version
package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/SaintWyss/rag-corp-sub003/pkg/config"
	"github.com/SaintWyss/rag-corp-sub003/pkg/observability"
)

func main() {
	logger := observability.NewStandardLogger("migrate")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", map[string]interface{}{"error": err.Error()})
	}

	sourceURL := os.Getenv("RAG_MIGRATIONS_PATH")
	if sourceURL == "" {
		sourceURL = "file://migrations"
	}

	m, err := migrate.New(sourceURL, databaseURL(cfg))
	if err != nil {
		logger.Fatal("Failed to initialize migrator", map[string]interface{}{"error": err.Error()})
	}
	defer m.Close()

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "up":
		err = m.Up()
	case "down":
		steps := 1
		if len(os.Args) > 2 {
			steps, err = strconv.Atoi(os.Args[2])
			if err != nil {
				logger.Fatal("Invalid step count", map[string]interface{}{"value": os.Args[2]})
			}
		}
		err = m.Steps(-steps)
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
			logger.Fatal("Failed to read version", map[string]interface{}{"error": verr.Error()})
		}
		logger.Info("Schema version", map[string]interface{}{"version": version, "dirty": dirty})
		return
	default:
		logger.Fatal("Unknown command", map[string]interface{}{"command": command})
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Fatal("Migration failed", map[string]interface{}{"error": err.Error()})
	}
	logger.Info("Migrations applied", map[string]interface{}{"command": command})
}

func databaseURL(cfg *config.Config) string {
	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.Database.Username),
		url.QueryEscape(cfg.Database.Password),
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Database,
		sslMode,
	)
}
