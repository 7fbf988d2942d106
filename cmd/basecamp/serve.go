package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/basecamp/internal/catalog"
	"github.com/MarcoPoloResearchLab/basecamp/internal/config"
	"github.com/MarcoPoloResearchLab/basecamp/internal/database"
	"github.com/MarcoPoloResearchLab/basecamp/internal/server"
	"github.com/MarcoPoloResearchLab/basecamp/internal/users"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the development entity API backed by SQLite",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
	defaults := config.NewViper()
	cmd.PersistentFlags().String("address", defaults.GetString("server.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("server.database_path"), "SQLite database path")
	cmd.PersistentFlags().String("public-base-url", "", "Base URL used in upload responses (defaults to the request host)")
	bindFlag(cmd, "server.address", "address")
	bindFlag(cmd, "server.database_path", "database-path")
	bindFlag(cmd, "server.public_base_url", "public-base-url")
	return cmd
}

func runServer(ctx context.Context) error {
	appConfig, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: catalog.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	usersService, err := users.NewService(users.ServiceConfig{Database: db, Clock: time.Now})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Catalog:       catalogService,
		Users:         usersService,
		Realtime:      server.NewRealtimeDispatcher(),
		PublicBaseURL: appConfig.PublicBaseURL,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.ServerAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.ServerAddress),
			zap.String("database", appConfig.DatabasePath),
		)
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
