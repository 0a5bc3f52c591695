package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"agencycrm/internal/api"
	"agencycrm/internal/api/handlers"
	"agencycrm/internal/api/middleware"
	"agencycrm/internal/engine/access"
	"agencycrm/internal/engine/invites"
	"agencycrm/internal/engine/notify"
	"agencycrm/internal/engine/records"
	"agencycrm/internal/engine/workspaces"
	"agencycrm/internal/pkg/logger"
	"agencycrm/internal/pkg/ratelimit"
	"agencycrm/internal/platform/audit"
	"agencycrm/internal/platform/auth"
	"agencycrm/internal/platform/config"
	"agencycrm/internal/platform/database"
	"agencycrm/internal/platform/metrics"
	"agencycrm/internal/platform/repositories"
)

func main() {
	configPath := pflag.String("config", "configs/config.yaml", "Path to config file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.JWT.Secret == "" {
		fmt.Fprintln(os.Stderr, "jwt.secret must be set")
		os.Exit(1)
	}

	logger.Init(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	repos := repositories.New(db)
	m := metrics.New()

	// Services
	tokenSvc := auth.NewTokenService(cfg.JWT)
	auditLog := audit.NewLogger(db)
	dispatcher := notify.NewDispatcher(cfg.Notify)
	if !dispatcher.Enabled() {
		log.Warn().Msg("No notify endpoints configured; invite emails will not be sent")
	}

	workspaceSvc := workspaces.NewService(repos, auditLog)
	inviteSvc := invites.NewService(repos, cfg.Invites, dispatcher, auditLog, m)
	recordSvc := records.NewService(repos, auditLog)

	healthHandler := handlers.NewHealthHandler(db)

	// Rate limiting
	var limiter ratelimit.Limiter
	switch cfg.RateLimit.Backend {
	case "redis":
		client, err := ratelimit.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Str("address", cfg.Redis.Address).Msg("Failed to connect to redis")
		}
		defer client.Close()
		limiter = ratelimit.NewRedisLimiter(client)
		healthHandler.AddCheck("redis", func(ctx context.Context) error { return client.Ping(ctx).Err() })
	case "memory", "":
		mem := ratelimit.NewMemoryLimiter(cfg.RateLimit.IdleTTL)
		go mem.Run(ctx, time.Minute)
		limiter = mem
	default:
		log.Fatal().Str("backend", cfg.RateLimit.Backend).Msg("Unknown rate limit backend")
	}

	// Handlers
	authHandler := handlers.NewAuthHandler(workspaceSvc, tokenSvc, cfg.Session, cfg.JWT.AccessTokenTTL)

	deps := &api.Dependencies{
		AuthHandler:         authHandler,
		WorkspaceHandler:    handlers.NewWorkspaceHandler(workspaceSvc),
		MemberHandler:       handlers.NewMemberHandler(workspaceSvc),
		InviteHandler:       handlers.NewInviteHandler(inviteSvc, authHandler),
		RecordHandler:       handlers.NewRecordHandler(recordSvc),
		AuditHandler:        handlers.NewAuditHandler(auditLog),
		HealthHandler:       healthHandler,
		MetricsHandler:      handlers.NewMetricsHandler(m),
		AuthMiddleware:      middleware.NewAuthMiddleware(access.NewSessionResolver(tokenSvc, repos.Users), cfg.Session.CookieName),
		WorkspaceMiddleware: middleware.NewWorkspaceMiddleware(access.NewMembershipResolver(repos.Workspaces, repos.Memberships, m)),
		RateLimiter:         middleware.NewRateLimiter(limiter, m),
		Observer:            m,
		Limits:              cfg.RateLimit,
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
	dispatcher.Wait()
}
