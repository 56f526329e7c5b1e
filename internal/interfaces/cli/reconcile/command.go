// Package reconcile provides the operator commands that converge the
// entitlement store with the billing provider.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/orris-inc/subsync/internal/application/reconciliation/usecases"
	"github.com/orris-inc/subsync/internal/interfaces/cli/bootstrap"
	httpRouter "github.com/orris-inc/subsync/internal/interfaces/http"
	"github.com/orris-inc/subsync/internal/shared/constants"
)

// ErrUnhealthy is returned by the health command when unfixed issues remain,
// so cron wrappers see a non-zero exit.
var ErrUnhealthy = errors.New("health check found unresolved issues")

type globalFlags struct {
	env        string
	configPath string
}

func (g *globalFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&g.env, "env", "e", constants.EnvDevelopment, "Environment (development, test, production)")
	cmd.Flags().StringVarP(&g.configPath, "config", "c", "", "Path to config file (default: ./configs/config.yaml)")
}

// withContainer loads the runtime, builds the component graph without the
// scheduler and runs fn.
func (g *globalFlags) withContainer(ctx context.Context, fn func(c *httpRouter.Container) error) error {
	rt, err := bootstrap.Load(ctx, bootstrap.Options{Env: bootstrap.ResolveEnv(g.env), ConfigPath: g.configPath})
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.Config.Scheduler.Enabled = false

	c, err := httpRouter.NewContainer(rt.DB, rt.Redis, rt.Config, nil, rt.Log)
	if err != nil {
		return err
	}
	defer c.Shutdown()

	return fn(c)
}

// NewReconcileCommand creates `subsync reconcile`
func NewReconcileCommand() *cobra.Command {
	var (
		flags  globalFlags
		dryRun bool
		force  bool
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Backfill every provider subscription into the entitlement store",
		Long: `Page through every subscription in the billing provider, pick one canonical
subscription per user and upsert the entitlement rows. Unresolvable
subscriptions are recorded as orphans.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return errors.New("--limit must not be negative")
			}
			return flags.withContainer(cmd.Context(), func(c *httpRouter.Container) error {
				result, err := c.ReconcileAll().Execute(cmd.Context(), usecases.ReconcileAllCommand{
					DryRun: dryRun,
					Force:  force,
					Limit:  limit,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would change without writing")
	cmd.Flags().BoolVar(&force, "force", false, "Write every row even when nothing changed")
	cmd.Flags().IntVar(&limit, "limit", 0, "Stop after this many subscriptions (0 = all)")

	return cmd
}

// NewSyncCustomerCommand creates `subsync sync-customer <customer_id|email>`
func NewSyncCustomerCommand() *cobra.Command {
	var (
		flags  globalFlags
		dryRun bool
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "sync-customer <customer_id|email>",
		Short: "Reconcile the subscriptions of one customer",
		Long: `Reconcile a single billing customer by id, or every customer sharing an
email address.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withContainer(cmd.Context(), func(c *httpRouter.Container) error {
				result, err := c.SyncCustomer().Execute(cmd.Context(), usecases.SyncCustomerCommand{
					Target: args[0],
					DryRun: dryRun,
					Force:  force,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would change without writing")
	cmd.Flags().BoolVar(&force, "force", false, "Write every row even when nothing changed")

	return cmd
}

// NewHealthCommand creates `subsync health`
func NewHealthCommand() *cobra.Command {
	var (
		flags   globalFlags
		fix     bool
		maxIter int
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Audit the entitlement store against the billing provider",
		Long: `Check for orphans, duplicate live subscriptions, missing customer links and
status drift. With --fix, repairs are attempted until the audit is clean or
--max-iterations is reached.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxIter < 0 {
				return errors.New("--max-iterations must not be negative")
			}
			return flags.withContainer(cmd.Context(), func(c *httpRouter.Container) error {
				result, err := c.HealthCheck().Execute(cmd.Context(), usecases.HealthCheckCommand{
					Fix:           fix,
					MaxIterations: maxIter,
				})
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
				if !result.Healthy() {
					return ErrUnhealthy
				}
				return nil
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&fix, "fix", false, "Attempt to repair the issues found")
	cmd.Flags().IntVar(&maxIter, "max-iterations", 0, "Upper bound on repair attempts (0 = configured default)")

	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
