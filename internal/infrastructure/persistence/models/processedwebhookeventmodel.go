package models

import (
	"time"

	"github.com/orris-inc/subsync/internal/shared/constants"
)

// ProcessedWebhookEventModel records a provider event that was handled
type ProcessedWebhookEventModel struct {
	ID          uint      `gorm:"primarykey"`
	EventID     string    `gorm:"uniqueIndex;not null;size:255"`
	EventType   string    `gorm:"not null;size:100"`
	ProcessedAt time.Time `gorm:"not null;index"`
}

// TableName specifies the table name for GORM
func (ProcessedWebhookEventModel) TableName() string {
	return constants.TableProcessedWebhookEvents
}

// All returns every model managed by this service, in creation order. The
// users table is included so development databases can be bootstrapped.
func All() []any {
	return []any{
		&UserModel{},
		&UserSubscriptionModel{},
		&OrphanedSubscriptionModel{},
		&ProcessedWebhookEventModel{},
	}
}
