package billing

import (
	"context"
	"time"
)

// Webhook event types handled by the dispatcher.
const (
	EventSubscriptionCreated     = "customer.subscription.created"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventCheckoutCompleted       = "checkout.session.completed"
	EventCheckoutExpired         = "checkout.session.expired"
	EventChargeFailed            = "charge.failed"
	EventChargeRefunded          = "charge.refunded"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
)

// Event is a verified provider webhook event reduced to the references
// reconciliation needs.
type Event struct {
	ID      string
	Type    string
	Created time.Time

	// Subscription is set for customer.subscription.* events.
	Subscription *Subscription

	// References carried by session, invoice and charge events.
	SubscriptionID string
	CustomerID     string
	CustomerEmail  string
	// ClientReferenceID is the user id a checkout session was started for.
	ClientReferenceID string
}

// EventVerifier authenticates and decodes a raw webhook payload.
type EventVerifier interface {
	Verify(payload []byte, signature string) (*Event, error)
}

// ProcessedEventStore remembers handled event ids so redeliveries are skipped.
type ProcessedEventStore interface {
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, eventType string) error
}
