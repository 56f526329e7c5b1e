package migrate

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/orris-inc/subsync/internal/infrastructure/config"
	"github.com/orris-inc/subsync/internal/infrastructure/database"
	"github.com/orris-inc/subsync/internal/infrastructure/migration"
	"github.com/orris-inc/subsync/internal/interfaces/cli/bootstrap"
	"github.com/orris-inc/subsync/internal/shared/constants"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

var (
	env        string
	configPath string
	name       string
	steps      int
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
		Long:  `Manage database migrations including running migrations, checking status, and creating new migration files.`,
	}

	cmd.PersistentFlags().StringVarP(&env, "env", "e", constants.EnvDevelopment, "Environment (development, test, production)")
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./configs/config.yaml)")

	cmd.AddCommand(
		newUpCommand(),
		newDownCommand(),
		newStatusCommand(),
		newCreateCommand(),
	)

	return cmd
}

func newUpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Run all pending migrations",
		Long:  `Apply all pending database migrations. SQLite and development databases are auto-migrated from the models.`,
		RunE:  runUp,
	}
}

func newDownCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Rollback migrations",
		Long:  `Rollback a specified number of database migrations.`,
		RunE:  runDown,
	}

	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "Number of migrations to rollback")

	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		Long:  `Display the current migration version and status of the database.`,
		RunE:  runStatus,
	}
}

func newCreateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new migration",
		Long:  `Create a new empty SQL migration file with the specified name.`,
		RunE:  runCreate,
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Name of the migration (required)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func scriptsPath() (string, error) {
	path, err := filepath.Abs("./internal/infrastructure/migration/scripts")
	if err != nil {
		return "", fmt.Errorf("failed to get scripts path: %w", err)
	}
	return path, nil
}

// initEnv loads the runtime without redis, which migrations never touch
func initEnv(ctx context.Context) (*bootstrap.Runtime, string, error) {
	path, err := scriptsPath()
	if err != nil {
		return nil, "", err
	}
	env = bootstrap.ResolveEnv(env)
	rt, err := bootstrap.Load(ctx, bootstrap.Options{Env: env, ConfigPath: configPath})
	if err != nil {
		return nil, "", err
	}
	return rt, path, nil
}

func runUp(cmd *cobra.Command, args []string) error {
	rt, path, err := initEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.Log.Infow("running up migrations", "environment", env, "driver", rt.Config.Database.Driver)

	manager := migration.NewManager(env, rt.Config.Database.Driver, path, rt.Log)
	if err := manager.Migrate(rt.DB); err != nil {
		return err
	}

	rt.Log.Infow("migrations completed successfully")
	return nil
}

func runDown(cmd *cobra.Command, args []string) error {
	rt, path, err := initEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := requireGoose(rt.Config); err != nil {
		return err
	}

	rt.Log.Infow("running down migrations", "environment", env, "steps", steps)

	if err := migration.NewGooseStrategy(path, rt.Log).MigrateDown(rt.DB, steps); err != nil {
		rt.Log.Errorw("down migration failed", "error", err)
		return fmt.Errorf("down migration failed: %w", err)
	}

	rt.Log.Infow("down migration completed successfully")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	rt, path, err := initEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := requireGoose(rt.Config); err != nil {
		return err
	}

	strategy := migration.NewGooseStrategy(path, rt.Log)

	version, err := strategy.GetVersion(rt.DB)
	if err != nil {
		rt.Log.Errorw("failed to get migration version", "error", err)
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nMigration Status:\n")
	fmt.Fprintf(out, "  Environment:     %s\n", env)
	fmt.Fprintf(out, "  Current Version: %d\n", version)

	if err := strategy.Status(rt.DB); err != nil {
		rt.Log.Errorw("failed to get detailed status", "error", err)
		return fmt.Errorf("failed to get detailed status: %w", err)
	}
	return nil
}

func runCreate(cmd *cobra.Command, args []string) error {
	path, err := scriptsPath()
	if err != nil {
		return err
	}

	log := logger.NewLogger()
	if err := migration.NewGooseStrategy(path, log).Create(name); err != nil {
		log.Errorw("failed to create migration", "error", err)
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Migration '%s' created in %s\n", name, path)
	return nil
}

func requireGoose(cfg *config.Config) error {
	if cfg.Database.Driver == database.DriverSQLite {
		return fmt.Errorf("versioned migrations are not used with sqlite; the schema follows the models")
	}
	return nil
}
