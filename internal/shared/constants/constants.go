package constants

const (
	// Environment constants
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"

	// HTTP Headers
	HeaderContentType     = "Content-Type"
	HeaderAuthorization   = "Authorization"
	HeaderXRequestID      = "X-Request-ID"
	HeaderStripeSignature = "Stripe-Signature"

	ContentTypeJSON = "application/json"

	// Context keys
	ContextKeyUserID    = "user_id"
	ContextKeyUserEmail = "user_email"
	ContextKeyRequestID = "request_id"

	// Database table names
	TableUsers                  = "users"
	TableUserSubscriptions      = "user_subscriptions"
	TableOrphanedSubscriptions  = "orphaned_subscriptions"
	TableProcessedWebhookEvents = "processed_webhook_events"

	// MaxWebhookBodyBytes caps a provider webhook payload.
	MaxWebhookBodyBytes = 1 << 20

	// Error messages
	ErrMsgInternalServerError = "Internal server error occurred"
	ErrMsgUnauthorized        = "Unauthorized access"
)
