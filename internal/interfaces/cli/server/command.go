package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/orris-inc/subsync/internal/infrastructure/database"
	"github.com/orris-inc/subsync/internal/infrastructure/migration"
	"github.com/orris-inc/subsync/internal/interfaces/cli/bootstrap"
	httpRouter "github.com/orris-inc/subsync/internal/interfaces/http"
	"github.com/orris-inc/subsync/internal/shared/constants"
	"github.com/orris-inc/subsync/internal/shared/logger"
	"github.com/orris-inc/subsync/internal/shared/version"
)

const scriptsPath = "./internal/infrastructure/migration/scripts"

var (
	env                string
	configPath         string
	autoMigrate        bool
	skipMigrationCheck bool
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP server",
		Long:  `Start the webhook receiver, entitlement API, admin API and scheduled reconciliation jobs.`,
		RunE:  run,
	}

	cmd.Flags().StringVarP(&env, "env", "e", constants.EnvDevelopment, "Environment (development, test, production)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./configs/config.yaml)")
	cmd.Flags().BoolVar(&autoMigrate, "auto-migrate", false, "Automatically run database migrations on startup (not recommended for production)")
	cmd.Flags().BoolVar(&skipMigrationCheck, "skip-migration-check", false, "Skip migration status check on startup")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	env = bootstrap.ResolveEnv(env)

	rt, err := bootstrap.Load(cmd.Context(), bootstrap.Options{Env: env, ConfigPath: configPath})
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := rt.Config
	log := rt.Log
	cfg.Server.Mode = mapEnvToGinMode(env)

	log.Infow("starting server",
		"environment", env,
		"version", version.String(),
		"auto_migrate", autoMigrate)

	gin.SetMode(cfg.Server.Mode)
	gin.DefaultWriter = io.Discard
	gin.DebugPrintRouteFunc = func(httpMethod, absolutePath, handlerName string, nuHandlers int) {}

	if err := handleMigrations(rt); err != nil {
		return fmt.Errorf("migration handling failed: %w", err)
	}

	router, err := httpRouter.NewRouter(rt.DB, rt.Redis, cfg, nil, nil, log)
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}
	router.SetupRoutes()
	defer router.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router.StartScheduler()
	router.StartEventLog(ctx)

	srv := &http.Server{
		Addr:         cfg.Server.GetAddr(),
		Handler:      router.GetEngine(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infow("server starting",
			"address", cfg.Server.GetAddr(),
			"mode", cfg.Server.Mode)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		log.Errorw("failed to start server", "error", err)
		return err
	}

	log.Infow("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
		return err
	}

	log.Infow("server exited gracefully")
	return nil
}

func handleMigrations(rt *bootstrap.Runtime) error {
	log := rt.Log
	driver := rt.Config.Database.Driver

	// a sqlite database is local state, so its schema always follows the models
	if autoMigrate || strings.EqualFold(driver, database.DriverSQLite) {
		if env == constants.EnvProduction {
			log.Warnw("auto-migration is enabled in production environment - this is not recommended!")
		}
		return migration.NewManager(env, driver, scriptsPath, log).Migrate(rt.DB)
	}

	if skipMigrationCheck {
		log.Infow("skipping migration check")
		return nil
	}

	checkMigrationVersion(rt, log)
	return nil
}

// checkMigrationVersion logs how far the database lags the embedded scripts.
// It never blocks startup.
func checkMigrationVersion(rt *bootstrap.Runtime, log logger.Interface) {
	current, err := migration.NewGooseStrategy(scriptsPath, log).GetVersion(rt.DB)
	if err != nil {
		log.Warnw("failed to check migration status", "error", err)
		return
	}

	scripts, err := migration.Scripts()
	if err != nil {
		log.Warnw("failed to list embedded migrations", "error", err)
		return
	}

	var latest int64
	if len(scripts) > 0 {
		latest = scripts[len(scripts)-1].Version
	}
	if current < latest {
		log.Warnw("database schema is behind, run `subsync migrate up`",
			"current_version", current,
			"latest_version", latest)
		return
	}
	log.Infow("database schema is up to date", "version", current)
}

func mapEnvToGinMode(environment string) string {
	switch environment {
	case "production", "prod", "release":
		return gin.ReleaseMode
	case "test", "testing":
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}
