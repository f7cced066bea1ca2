package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/thisispsg/community-bot/bot"
	"github.com/thisispsg/community-bot/config"
	"github.com/thisispsg/community-bot/db"
	"github.com/thisispsg/community-bot/events"
	"github.com/thisispsg/community-bot/geocode"
	"github.com/thisispsg/community-bot/handlers"
	"github.com/thisispsg/community-bot/i18n"
	"github.com/thisispsg/community-bot/mapgen"
	"github.com/thisispsg/community-bot/repositories"
	"github.com/thisispsg/community-bot/routes"
	"github.com/thisispsg/community-bot/services"
	"github.com/thisispsg/community-bot/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbConn.Close()
	logger.Info("database connection established")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := db.Migrate(ctx, dbConn, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	bundle, err := i18n.Load(logger)
	if err != nil {
		return fmt.Errorf("failed to load locales: %w", err)
	}

	// Repositories
	profileRepo := repositories.NewPostgresProfileRepository(dbConn)
	playerRepo := repositories.NewPostgresPlayerRepository(dbConn)
	teamRepo := repositories.NewPostgresTeamRepository(dbConn)
	captureRepo := repositories.NewPostgresCaptureRepository(dbConn)
	auditRepo := repositories.NewPostgresAuditRepository(dbConn)
	statsRepo := repositories.NewPostgresStatsRepository(dbConn)
	txRunner := db.NewTxRunner(dbConn)
	logger.Info("repositories initialized")

	// Live events hub
	hub := events.NewHub(logger)
	go hub.Run()

	geocoder := geocode.New(cfg.NominatimBaseURL, cfg.NominatimUserAgent, cfg.GeocodeTimeout, logger)

	// Services
	profileService := services.NewProfileService(profileRepo, playerRepo, geocoder, logger)
	rosterService := services.NewRosterService(playerRepo, teamRepo, txRunner, logger)
	moderationService := services.NewModerationService(profileRepo, playerRepo, auditRepo, txRunner, profileService, hub, logger)
	captureService := services.NewCaptureService(captureRepo, playerRepo, statsRepo, txRunner, hub, logger)
	logger.Info("services initialized")

	// Members map publication (optional, needs R2 credentials)
	var mapGen *mapgen.Generator
	if cfg.R2Enabled() {
		uploader, err := storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize R2 uploader: %w", err)
		}
		mapGen, err = mapgen.New(profileService, playerRepo, uploader, logger)
		if err != nil {
			return err
		}
		logger.Info("members map publication enabled")
	} else {
		logger.Warn("R2 not configured, members map publication disabled")
	}

	// Discord
	discord, err := bot.NewDiscord(cfg.DiscordToken, cfg.GuildID, cfg.RoleSageID, cfg.RoleNewbieID, logger)
	if err != nil {
		return err
	}

	notifier := bot.NewNotifier(discord, bundle, profileService,
		cfg.ChannelSage, cfg.ChannelGeneral, cfg.ChannelWelcome, "This Is PSG", logger)
	captureService.SetObserver(notifier)

	var mapUpdater interface{ RequestUpdate() }
	if mapGen != nil {
		mapUpdater = mapGen
	}
	flow := bot.NewFlow(discord, bundle, profileService, rosterService, teamRepo,
		notifier, mapUpdater, cfg.CharterURL, bot.FlowTimeouts{
			Language: cfg.TimeoutLanguageSelect,
			Charter:  cfg.TimeoutCharterRead,
			Input:    cfg.TimeoutPlayerInput,
			Location: cfg.TimeoutLocationInput,
		}, logger)

	router := bot.NewRouter(discord, bundle, logger)
	botHandlers := bot.NewHandlers(discord, bundle, profileService, rosterService,
		moderationService, captureService, flow, notifier, mapGen,
		cfg.RoleMemberID, cfg.SiteURL, cfg.PublicMapURL, logger)
	botHandlers.RegisterAll(router)

	discord.Attach(router, profileService, notifier, flow)
	if err := discord.Open(); err != nil {
		return err
	}
	defer discord.Close()

	// Admin HTTP server
	adminHandler := handlers.NewAdminHandler(profileService, moderationService, captureService, mapGen, logger)
	workerHandler := handlers.NewWorkerHandler(captureService, logger)
	wsHandler := handlers.NewWebSocketHandler(hub, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      routes.Init(adminHandler, workerHandler, wsHandler, cfg.WorkerJWTSecret),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		flow.Run(gctx)
		return nil
	})
	if mapGen != nil {
		g.Go(func() error {
			mapGen.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		logger.Info("starting admin server", slog.String("address", server.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		logger.Info("shutting down admin server")
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
