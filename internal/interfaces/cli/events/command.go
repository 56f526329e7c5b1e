// Package events provides commands for watching entitlement change events.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/orris-inc/subsync/internal/application/reconciliation"
	"github.com/orris-inc/subsync/internal/infrastructure/pubsub"
	"github.com/orris-inc/subsync/internal/interfaces/cli/bootstrap"
	"github.com/orris-inc/subsync/internal/shared/constants"
)

var (
	env        string
	configPath string
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Entitlement change events",
	}

	cmd.PersistentFlags().StringVarP(&env, "env", "e", constants.EnvDevelopment, "Environment (development, test, production)")
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./configs/config.yaml)")

	cmd.AddCommand(newTailCommand())
	return cmd
}

func newTailCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tail",
		Short: "Print entitlement changes as JSON lines until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runTail,
	}
}

func runTail(cmd *cobra.Command, args []string) error {
	rt, err := bootstrap.Load(cmd.Context(), bootstrap.Options{
		Env:          bootstrap.ResolveEnv(env),
		ConfigPath:   configPath,
		RequireRedis: true,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := pubsub.NewRedisEntitlementEventBus(rt.Redis, rt.Log)
	err = bus.Subscribe(ctx, lineWriter(cmd.OutOrStdout()))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// lineWriter returns a handler printing one JSON document per line. Handlers
// run concurrently, so writes are serialized.
func lineWriter(w io.Writer) pubsub.EntitlementChangeHandler {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	return func(_ context.Context, ev reconciliation.EntitlementChanged) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(ev); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write event: %v\n", err)
		}
	}
}
