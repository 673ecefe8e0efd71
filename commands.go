package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"prism-board/api"
	"prism-board/boards"
	"prism-board/config"
	"prism-board/identity"
	"prism-board/persistence"
	"prism-board/storage"
)

const shutdownTimeout = 30 * time.Second

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "prism-board",
		Short:         "Kanban board service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				return os.Setenv(config.FileEnv, configPath)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (overrides "+config.FileEnv+")")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the board HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "init-storage",
		Short: "Create the boards table and change-log queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return initStorage(cmd.Context())
		},
	})
	return cmd
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cfg.NewLogger()

	redisOpts, err := cfg.Storage.RedisOptions()
	if err != nil {
		return err
	}
	var rc *redis.Client
	if redisOpts != nil {
		rc = redis.NewClient(redisOpts)
		defer rc.Close()
	}

	gw, closeGateway, err := storage.Open(ctx, storage.Options{
		Backend:          cfg.Storage.Backend,
		ConnectionString: cfg.Storage.ConnectionString,
		BoardsTable:      cfg.Storage.BoardsTable,
		EventsQueue:      cfg.Storage.EventsQueue,
		DatastoreProject: cfg.Storage.DatastoreProject,
		Redis:            rc,
		CacheTTL:         cfg.Storage.CacheTTL,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer func() {
		if err := closeGateway(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	var jwks *keyfunc.JWKS
	if cfg.Auth.Domain != "" {
		jwks, err = keyfunc.Get(cfg.Auth.JWKSURL(), keyfunc.Options{})
		if err != nil {
			return fmt.Errorf("jwks: %w", err)
		}
		defer jwks.EndBackground()
	}
	verifier := identity.NewVerifier(jwks, cfg.Auth.Audience, cfg.Auth.Issuer(), []byte(cfg.Auth.SharedSecret), -1)
	provider := identity.NewProvider(verifier, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sessions := api.NewSessions(provider, gw, boards.Options{
		CheckInvariants: cfg.CheckInvariants,
		Persistence:     cfg.Persistence,
		Metrics:         persistence.NewMetrics(reg),
	}, logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(api.RequestTelemetry(logger))
	api.Instrument(e, reg)
	api.Register(e, provider, sessions, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.ListenAddr).Info("board api listening")
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := e.Shutdown(shutdownCtx); serr != nil {
		logger.WithError(serr).Warn("http shutdown")
	}
	if serr := sessions.Close(shutdownCtx); serr != nil {
		logger.WithError(serr).Error("pending board writes not saved")
	}
	logger.Info("board api stopped")
	return err
}

func initStorage(ctx context.Context) error {
	cfg, err := config.Read()
	if err != nil {
		return err
	}
	if cfg.Storage.ConnectionString == "" {
		return fmt.Errorf("%w: missing STORAGE_CONNECTION_STRING", config.ErrInvalid)
	}
	logger := cfg.NewLogger()
	logger.Info("storage init starting")
	if err := storage.InitResources(ctx, cfg.Storage.ConnectionString, cfg.Storage.BoardsTable, cfg.Storage.EventsQueue); err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	logger.WithFields(log.Fields{"table": cfg.Storage.BoardsTable, "queue": cfg.Storage.EventsQueue}).Info("storage init complete")
	return nil
}
