package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"agencycrm/internal/pkg/logger"
	"agencycrm/internal/platform/config"
	"agencycrm/internal/platform/database"
)

func main() {
	configPath := pflag.String("config", "configs/config.yaml", "Path to config file")
	dbURL := pflag.String("database-url", "", "Override database.url from the config file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *dbURL != "" {
		cfg.Database.URL = *dbURL
	}

	logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}

	log.Info().Str("database", cfg.Database.URL).Msg("Migration completed successfully")
}
