package usecases

import (
	"context"
	"fmt"
	"strings"

	"github.com/orris-inc/subsync/internal/application/reconciliation"
	"github.com/orris-inc/subsync/internal/domain/billing"
	"github.com/orris-inc/subsync/internal/shared/errors"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

type SyncCustomerCommand struct {
	// Target is a provider customer id or an email address.
	Target string
	DryRun bool
	Force  bool
}

type SyncCustomerResult struct {
	CustomerIDs []string                    `json:"customer_ids"`
	Results     []reconciliation.SyncResult `json:"results"`
}

// SyncCustomerUseCase reconciles the subscriptions of one customer, or of every
// customer sharing an email.
type SyncCustomerUseCase struct {
	provider billing.Provider
	syncer   *reconciliation.Syncer
	logger   logger.Interface
}

func NewSyncCustomerUseCase(provider billing.Provider, syncer *reconciliation.Syncer, logger logger.Interface) *SyncCustomerUseCase {
	return &SyncCustomerUseCase{provider: provider, syncer: syncer, logger: logger}
}

func (uc *SyncCustomerUseCase) Execute(ctx context.Context, cmd SyncCustomerCommand) (*SyncCustomerResult, error) {
	target := strings.TrimSpace(cmd.Target)
	if target == "" {
		return nil, errors.NewValidationError("customer id or email is required")
	}

	hint := reconciliation.Hint{}
	customerIDs := []string{target}
	if strings.Contains(target, "@") {
		hint.Email = target
		customers, err := uc.provider.FindCustomersByEmail(ctx, target)
		if err != nil {
			uc.logger.Errorw("failed to search customers by email", "email", target, "error", err)
			return nil, errors.NewUpstreamError("failed to search customers", err.Error())
		}
		customerIDs = customerIDs[:0]
		for _, c := range customers {
			if !c.Deleted {
				customerIDs = append(customerIDs, c.ID)
			}
		}
		if len(customerIDs) == 0 {
			return nil, errors.NewNotFoundError("no billing customer with that email")
		}
	}

	opts := reconciliation.WriteOptions{DryRun: cmd.DryRun, Force: cmd.Force}
	result := &SyncCustomerResult{CustomerIDs: customerIDs}
	for _, id := range customerIDs {
		results, err := uc.syncer.SyncCanonical(ctx, id, nil, hint, opts)
		if err != nil {
			uc.logger.Errorw("failed to sync customer", "customer_id", id, "error", err)
			return result, fmt.Errorf("failed to sync customer %s: %w", id, err)
		}
		result.Results = append(result.Results, results...)
	}

	if len(result.Results) == 0 {
		return result, errors.NewNotFoundError("customer has no subscriptions")
	}

	uc.logger.Infow("customer synced",
		"target", target,
		"customers", len(customerIDs),
		"subscriptions", len(result.Results),
		"dry_run", cmd.DryRun,
		"force", cmd.Force,
	)
	return result, nil
}
