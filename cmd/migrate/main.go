// Command migrate applies the embedded SQL schema to the configured database.
package main

import (
	"errors"
	"flag"
	"log"

	"go.uber.org/zap"

	"github.com/noah-isme/commerce-admin-api/pkg/config"
	"github.com/noah-isme/commerce-admin-api/pkg/database"
	"github.com/noah-isme/commerce-admin-api/pkg/logger"
)

func main() {
	direction := flag.String("direction", database.DirectionUp, "migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logg, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logg.Sync() //nolint:errcheck

	if err := database.Migrate(database.URL(cfg.Database), *direction); err != nil {
		if errors.Is(err, database.ErrNoChange) {
			logg.Info("schema already up to date")
			return
		}
		logg.Fatal("migration failed", zap.String("direction", *direction), zap.Error(err))
	}
	logg.Info("migration complete", zap.String("direction", *direction))
}
