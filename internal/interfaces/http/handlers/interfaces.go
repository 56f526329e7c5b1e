package handlers

import (
	"context"

	"github.com/orris-inc/subsync/internal/application/reconciliation/usecases"
)

// Use case interfaces for the session and webhook handlers

type handleWebhookUseCase interface {
	Execute(ctx context.Context, cmd usecases.HandleWebhookCommand) (*usecases.HandleWebhookResult, error)
}

type getEntitlementUseCase interface {
	Execute(ctx context.Context, q usecases.GetEntitlementQuery) (*usecases.EntitlementView, error)
}

type checkFeatureUseCase interface {
	Execute(ctx context.Context, cmd usecases.CheckFeatureCommand) (*usecases.CheckFeatureResult, error)
}

type startTrialUseCase interface {
	Execute(ctx context.Context, cmd usecases.StartTrialCommand) (*usecases.StartTrialResult, error)
}

type recoverOrphansUseCase interface {
	Execute(ctx context.Context, cmd usecases.RecoverOrphansCommand) (*usecases.RecoverOrphansResult, error)
}
