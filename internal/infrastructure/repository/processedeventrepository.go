package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/orris-inc/subsync/internal/infrastructure/persistence/models"
	"github.com/orris-inc/subsync/internal/shared/db"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

// ProcessedEventRepository implements billing.ProcessedEventStore on the
// processed_webhook_events table.
type ProcessedEventRepository struct {
	db     *gorm.DB
	logger logger.Interface
}

// NewProcessedEventRepository creates a new processed event repository
func NewProcessedEventRepository(db *gorm.DB, logger logger.Interface) *ProcessedEventRepository {
	return &ProcessedEventRepository{db: db, logger: logger}
}

// IsProcessed reports whether eventID was already handled
func (r *ProcessedEventRepository) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	var count int64
	tx := db.GetTxFromContext(ctx, r.db)
	if err := tx.Model(&models.ProcessedWebhookEventModel{}).
		Where("event_id = ?", eventID).
		Count(&count).Error; err != nil {
		r.logger.Errorw("failed to check processed event", "event_id", eventID, "error", err)
		return false, fmt.Errorf("failed to check processed event: %w", err)
	}
	return count > 0, nil
}

// MarkProcessed records eventID. Marking twice is not an error.
func (r *ProcessedEventRepository) MarkProcessed(ctx context.Context, eventID, eventType string) error {
	model := &models.ProcessedWebhookEventModel{
		EventID:     eventID,
		EventType:   eventType,
		ProcessedAt: time.Now().UTC(),
	}
	tx := db.GetTxFromContext(ctx, r.db)
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(model).Error; err != nil {
		r.logger.Errorw("failed to mark event processed", "event_id", eventID, "event_type", eventType, "error", err)
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

// PurgeBefore deletes records older than cutoff and returns how many were removed
func (r *ProcessedEventRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx := db.GetTxFromContext(ctx, r.db)
	result := tx.Where("processed_at < ?", cutoff).Delete(&models.ProcessedWebhookEventModel{})
	if result.Error != nil {
		r.logger.Errorw("failed to purge processed events", "cutoff", cutoff, "error", result.Error)
		return 0, fmt.Errorf("failed to purge processed events: %w", result.Error)
	}
	return result.RowsAffected, nil
}
