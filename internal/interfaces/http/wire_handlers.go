package http

import (
	"github.com/orris-inc/subsync/internal/interfaces/http/handlers"
	adminHandlers "github.com/orris-inc/subsync/internal/interfaces/http/handlers/admin"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

// allHandlers holds all HTTP handler instances used by the application.
type allHandlers struct {
	webhookHandler        *handlers.WebhookHandler
	entitlementHandler    *handlers.EntitlementHandler
	reconciliationHandler *adminHandlers.ReconciliationHandler
}

func newHandlers(ucs *allUseCases, log logger.Interface) *allHandlers {
	return &allHandlers{
		webhookHandler: handlers.NewWebhookHandler(ucs.handleWebhookUC, log.Named("webhook")),
		entitlementHandler: handlers.NewEntitlementHandler(
			ucs.getEntitlementUC, ucs.checkFeatureUC, ucs.startTrialUC, ucs.recoverOrphansUC, log,
		),
		reconciliationHandler: adminHandlers.NewReconciliationHandler(
			ucs.reconcileAllUC, ucs.syncCustomerUC, ucs.healthCheckUC, ucs.recoverOrphansUC, log.Named("admin"),
		),
	}
}
