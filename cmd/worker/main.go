package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"agencycrm/internal/pkg/logger"
	"agencycrm/internal/platform/config"
	"agencycrm/internal/platform/database"
	"agencycrm/internal/platform/repositories"
	"agencycrm/internal/workers"
)

func main() {
	configPath := pflag.String("config", "configs/config.yaml", "Path to config file")
	once := pflag.Bool("once", false, "Run a single sweep and exit")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	repos := repositories.New(db)
	expiry := workers.NewInviteExpiry(repos.Invites, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		if _, err := expiry.RunOnce(ctx); err != nil {
			log.Fatal().Err(err).Msg("Invite expiry sweep failed")
		}
		return
	}

	log.Info().Dur("interval", cfg.Invites.SweepInterval).Msg("Starting background workers")
	expiry.Run(ctx, cfg.Invites.SweepInterval)
	log.Info().Msg("Workers stopped")
}
