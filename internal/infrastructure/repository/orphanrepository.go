package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/orris-inc/subsync/internal/domain/orphan"
	"github.com/orris-inc/subsync/internal/infrastructure/persistence/mappers"
	"github.com/orris-inc/subsync/internal/infrastructure/persistence/models"
	"github.com/orris-inc/subsync/internal/shared/db"
	"github.com/orris-inc/subsync/internal/shared/errors"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

// OrphanRepositoryImpl implements orphan.Repository
type OrphanRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.OrphanMapper
	logger logger.Interface
}

// NewOrphanRepository creates a new orphan repository instance
func NewOrphanRepository(db *gorm.DB, logger logger.Interface) *OrphanRepositoryImpl {
	return &OrphanRepositoryImpl{
		db:     db,
		mapper: mappers.NewOrphanMapper(),
		logger: logger,
	}
}

// Record stores the orphan, refreshing an unresolved row for the same
// subscription in place. Resolved rows are left as they are.
func (r *OrphanRepositoryImpl) Record(ctx context.Context, o *orphan.Orphan) error {
	tx := db.GetTxFromContext(ctx, r.db)

	var existing models.OrphanedSubscriptionModel
	err := tx.Where("stripe_subscription_id = ?", o.SubscriptionID()).First(&existing).Error
	switch {
	case err == nil:
		if existing.Resolved {
			r.logger.Debugw("orphan already resolved, not re-recording",
				"subscription_id", o.SubscriptionID(),
				"resolved_user_id", existing.ResolvedUserID)
			return nil
		}
		fresh := r.mapper.ToModel(o)
		result := tx.Model(&models.OrphanedSubscriptionModel{}).
			Where("id = ? AND resolved = ?", existing.ID, false).
			Updates(map[string]any{
				"stripe_customer_id": fresh.StripeCustomerID,
				"customer_email":     fresh.CustomerEmail,
				"status":             fresh.Status,
				"plan_type":          fresh.PlanType,
				"monthly_amount_due": fresh.MonthlyAmountDue,
				"has_discount":       fresh.HasDiscount,
				"discount_percent":   fresh.DiscountPercent,
				"coupon_id":          fresh.CouponID,
				"promo_code":         fresh.PromoCode,
				"discount_ends_at":   fresh.DiscountEndsAt,
				"trial_ends_at":      fresh.TrialEndsAt,
				"current_period_end": fresh.CurrentPeriodEnd,
				"updated_at":         time.Now().UTC(),
			})
		if result.Error != nil {
			r.logger.Errorw("failed to refresh orphan", "subscription_id", o.SubscriptionID(), "error", result.Error)
			return fmt.Errorf("failed to refresh orphan: %w", result.Error)
		}
		if o.ID() == 0 {
			_ = o.SetID(existing.ID)
		}
		return nil
	case !stderrors.Is(err, gorm.ErrRecordNotFound):
		r.logger.Errorw("failed to look up orphan", "subscription_id", o.SubscriptionID(), "error", err)
		return fmt.Errorf("failed to look up orphan: %w", err)
	}

	model := r.mapper.ToModel(o)
	if err := tx.Create(model).Error; err != nil {
		if errors.IsDuplicateError(err) {
			return errors.NewConflictError("orphan already recorded", o.SubscriptionID())
		}
		r.logger.Errorw("failed to record orphan", "subscription_id", o.SubscriptionID(), "error", err)
		return fmt.Errorf("failed to record orphan: %w", err)
	}
	if err := o.SetID(model.ID); err != nil {
		return fmt.Errorf("failed to set orphan ID: %w", err)
	}

	r.logger.Infow("orphan recorded",
		"id", model.ID,
		"subscription_id", model.StripeSubscriptionID,
		"customer_id", model.StripeCustomerID)
	return nil
}

// ListUnresolvedByEmail returns unresolved orphans for an email, oldest first
func (r *OrphanRepositoryImpl) ListUnresolvedByEmail(ctx context.Context, email string) ([]*orphan.Orphan, error) {
	var rows []*models.OrphanedSubscriptionModel
	tx := db.GetTxFromContext(ctx, r.db)
	err := tx.Scopes(db.Unresolved(), db.EmailEquals("customer_email", email)).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		r.logger.Errorw("failed to list orphans by email", "error", err)
		return nil, fmt.Errorf("failed to list orphans by email: %w", err)
	}
	return r.mapper.ToEntities(rows)
}

// ListUnresolved returns up to limit unresolved orphans, oldest first
func (r *OrphanRepositoryImpl) ListUnresolved(ctx context.Context, limit int) ([]*orphan.Orphan, error) {
	var rows []*models.OrphanedSubscriptionModel
	tx := db.GetTxFromContext(ctx, r.db)
	err := tx.Scopes(db.Unresolved()).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		r.logger.Errorw("failed to list unresolved orphans", "error", err)
		return nil, fmt.Errorf("failed to list unresolved orphans: %w", err)
	}
	return r.mapper.ToEntities(rows)
}

// GetBySubscriptionID returns the orphan for a subscription, or nil
func (r *OrphanRepositoryImpl) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*orphan.Orphan, error) {
	var model models.OrphanedSubscriptionModel
	tx := db.GetTxFromContext(ctx, r.db)
	if err := tx.Where("stripe_subscription_id = ?", subscriptionID).First(&model).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Errorw("failed to get orphan", "subscription_id", subscriptionID, "error", err)
		return nil, fmt.Errorf("failed to get orphan: %w", err)
	}
	return r.mapper.ToEntity(&model)
}

// MarkResolved persists the resolution fields of an orphan
func (r *OrphanRepositoryImpl) MarkResolved(ctx context.Context, o *orphan.Orphan) error {
	if !o.IsResolved() {
		return fmt.Errorf("orphan %s is not resolved", o.SubscriptionID())
	}

	tx := db.GetTxFromContext(ctx, r.db)
	result := tx.Model(&models.OrphanedSubscriptionModel{}).
		Where("stripe_subscription_id = ?", o.SubscriptionID()).
		Updates(map[string]any{
			"resolved":         true,
			"resolved_user_id": o.ResolvedUserID(),
			"resolved_at":      o.ResolvedAt(),
			"resolved_by":      string(o.ResolvedBy()),
			"updated_at":       o.UpdatedAt(),
		})
	if result.Error != nil {
		r.logger.Errorw("failed to mark orphan resolved", "subscription_id", o.SubscriptionID(), "error", result.Error)
		return fmt.Errorf("failed to mark orphan resolved: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.NewNotFoundError("orphan not found", o.SubscriptionID())
	}

	r.logger.Infow("orphan resolved",
		"subscription_id", o.SubscriptionID(),
		"user_id", o.ResolvedUserID(),
		"method", o.ResolvedBy())
	return nil
}
