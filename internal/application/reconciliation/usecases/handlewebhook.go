package usecases

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/orris-inc/subsync/internal/application/reconciliation"
	"github.com/orris-inc/subsync/internal/domain/billing"
	"github.com/orris-inc/subsync/internal/shared/errors"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

type HandleWebhookCommand struct {
	Payload   []byte
	Signature string
}

// Webhook outcomes, also used as the metric label.
const (
	WebhookProcessed = "processed"
	WebhookDuplicate = "duplicate"
	WebhookIgnored   = "ignored"
	WebhookFailed    = "error"
)

type HandleWebhookResult struct {
	EventID   string
	EventType string
	Outcome   string
}

// HandleWebhookUseCase verifies a provider webhook and converges the affected
// entitlement rows.
type HandleWebhookUseCase struct {
	verifier       billing.EventVerifier
	events         billing.ProcessedEventStore
	provider       billing.Provider
	syncer         *reconciliation.Syncer
	orphanRecovery *RecoverOrphansUseCase
	metrics        reconciliation.Metrics
	logger         logger.Interface
}

// NewHandleWebhookUseCase creates the dispatcher. orphanRecovery may be nil,
// in which case completed checkouts do not trigger orphan recovery.
func NewHandleWebhookUseCase(
	verifier billing.EventVerifier,
	events billing.ProcessedEventStore,
	provider billing.Provider,
	syncer *reconciliation.Syncer,
	orphanRecovery *RecoverOrphansUseCase,
	metrics reconciliation.Metrics,
	logger logger.Interface,
) *HandleWebhookUseCase {
	if metrics == nil {
		metrics = reconciliation.NopMetrics{}
	}
	return &HandleWebhookUseCase{
		verifier:       verifier,
		events:         events,
		provider:       provider,
		syncer:         syncer,
		orphanRecovery: orphanRecovery,
		metrics:        metrics,
		logger:         logger,
	}
}

func (uc *HandleWebhookUseCase) Execute(ctx context.Context, cmd HandleWebhookCommand) (*HandleWebhookResult, error) {
	evt, err := uc.verifier.Verify(cmd.Payload, cmd.Signature)
	if err != nil && !stderrors.Is(err, billing.ErrInvalidSignature) {
		uc.logger.Warnw("rejected signed webhook with undecodable payload", "error", err)
		return nil, errors.NewBadRequestError("malformed webhook payload")
	}
	if err != nil {
		uc.metrics.SignatureFailure()
		uc.logger.Warnw("rejected webhook with invalid signature",
			"payload_bytes", len(cmd.Payload),
			"signature_present", cmd.Signature != "",
			"error", err,
		)
		return nil, errors.NewBadRequestError("invalid webhook signature")
	}

	result := &HandleWebhookResult{EventID: evt.ID, EventType: evt.Type}

	if evt.ID != "" {
		seen, err := uc.events.IsProcessed(ctx, evt.ID)
		if err != nil {
			uc.logger.Warnw("failed to check webhook dedup store, processing anyway", "event_id", evt.ID, "error", err)
		} else if seen {
			result.Outcome = WebhookDuplicate
			uc.metrics.WebhookEvent(evt.Type, result.Outcome)
			uc.logger.Infow("webhook already processed", "event_id", evt.ID, "type", evt.Type)
			return result, nil
		}
	}

	handled, err := uc.dispatch(ctx, evt)
	if err != nil {
		result.Outcome = WebhookFailed
		uc.metrics.WebhookEvent(evt.Type, result.Outcome)
		uc.logger.Errorw("webhook handling failed", "event_id", evt.ID, "type", evt.Type, "error", err)
		return result, err
	}
	if !handled {
		result.Outcome = WebhookIgnored
		uc.metrics.WebhookEvent(evt.Type, result.Outcome)
		uc.logger.Debugw("webhook event ignored", "event_id", evt.ID, "type", evt.Type)
		return result, nil
	}

	if evt.ID != "" {
		if err := uc.events.MarkProcessed(ctx, evt.ID, evt.Type); err != nil {
			uc.logger.Warnw("failed to record processed webhook", "event_id", evt.ID, "error", err)
		}
	}
	result.Outcome = WebhookProcessed
	uc.metrics.WebhookEvent(evt.Type, result.Outcome)
	uc.logger.Infow("webhook processed", "event_id", evt.ID, "type", evt.Type)
	return result, nil
}

// dispatch reports whether the event type is one reconciliation acts on.
func (uc *HandleWebhookUseCase) dispatch(ctx context.Context, evt *billing.Event) (bool, error) {
	switch evt.Type {
	case billing.EventSubscriptionCreated, billing.EventSubscriptionUpdated, billing.EventSubscriptionDeleted:
		if evt.Subscription == nil {
			return true, errors.NewBadRequestError("subscription event without subscription object")
		}
		sub := *evt.Subscription
		return true, uc.sync(ctx, sub.CustomerID, &sub, reconciliation.Hint{})

	case billing.EventCheckoutCompleted:
		return true, uc.handleCheckoutCompleted(ctx, evt)

	case billing.EventCheckoutExpired:
		uc.logger.Infow("checkout session expired",
			"customer_id", evt.CustomerID,
			"user_id", evt.ClientReferenceID,
		)
		return true, nil

	case billing.EventChargeFailed, billing.EventChargeRefunded,
		billing.EventInvoicePaymentFailed, billing.EventInvoicePaymentSucceeded:
		return true, uc.refresh(ctx, evt, reconciliation.Hint{Email: evt.CustomerEmail})

	default:
		return false, nil
	}
}

func (uc *HandleWebhookUseCase) handleCheckoutCompleted(ctx context.Context, evt *billing.Event) error {
	hint := reconciliation.Hint{UserID: evt.ClientReferenceID, Email: evt.CustomerEmail}
	if evt.SubscriptionID != "" || evt.CustomerID != "" {
		if err := uc.refresh(ctx, evt, hint); err != nil {
			return err
		}
	}

	if uc.orphanRecovery == nil || hint.UserID == "" || hint.Email == "" {
		return nil
	}
	if _, err := uc.orphanRecovery.Execute(ctx, RecoverOrphansCommand{UserID: hint.UserID, Email: hint.Email}); err != nil {
		uc.logger.Warnw("orphan recovery after checkout failed",
			"user_id", hint.UserID,
			"error", err,
		)
	}
	return nil
}

// refresh re-reads the referenced subscription from the provider, since
// invoice, charge and session events do not carry it.
func (uc *HandleWebhookUseCase) refresh(ctx context.Context, evt *billing.Event, hint reconciliation.Hint) error {
	if evt.SubscriptionID == "" {
		if evt.CustomerID == "" {
			uc.logger.Infow("event carries no subscription or customer, nothing to sync", "event_id", evt.ID, "type", evt.Type)
			return nil
		}
		return uc.sync(ctx, evt.CustomerID, nil, hint)
	}

	sub, err := uc.provider.GetSubscription(ctx, evt.SubscriptionID)
	if err != nil {
		return errors.NewUpstreamError("failed to fetch subscription", err.Error())
	}
	customerID := sub.CustomerID
	if customerID == "" {
		customerID = evt.CustomerID
	}
	return uc.sync(ctx, customerID, sub, hint)
}

func (uc *HandleWebhookUseCase) sync(ctx context.Context, customerID string, primary *billing.Subscription, hint reconciliation.Hint) error {
	results, err := uc.syncer.SyncCanonical(ctx, customerID, primary, hint, reconciliation.WriteOptions{})
	if err != nil {
		return fmt.Errorf("failed to sync subscription: %w", err)
	}
	for _, r := range results {
		uc.metrics.CandidateOutcome(string(r.Outcome))
	}
	return nil
}
