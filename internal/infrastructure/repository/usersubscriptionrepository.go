package repository

import (
	"context"
	stderrors "errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/orris-inc/subsync/internal/domain/entitlement"
	"github.com/orris-inc/subsync/internal/infrastructure/persistence/mappers"
	"github.com/orris-inc/subsync/internal/infrastructure/persistence/models"
	"github.com/orris-inc/subsync/internal/shared/db"
	"github.com/orris-inc/subsync/internal/shared/errors"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

// upsertColumns are rewritten when a row for the same user already exists.
// user_id and created_at never change.
var upsertColumns = []string{
	"user_email",
	"status",
	"plan_type",
	"stripe_customer_id",
	"stripe_subscription_id",
	"trial_ends_at",
	"current_period_end",
	"has_discount",
	"discount_percent",
	"monthly_amount_due",
	"coupon_id",
	"promo_code",
	"discount_ends_at",
	"trial_used",
	"trialed_plan_levels",
	"updated_at",
}

// UserSubscriptionRepositoryImpl implements entitlement.Repository
type UserSubscriptionRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.EntitlementMapper
	logger logger.Interface
}

// NewUserSubscriptionRepository creates a new entitlement repository instance
func NewUserSubscriptionRepository(db *gorm.DB, logger logger.Interface) *UserSubscriptionRepositoryImpl {
	return &UserSubscriptionRepositoryImpl{
		db:     db,
		mapper: mappers.NewEntitlementMapper(),
		logger: logger,
	}
}

// GetByUserID retrieves the entitlement row for a user
func (r *UserSubscriptionRepositoryImpl) GetByUserID(ctx context.Context, userID string) (*entitlement.Entitlement, error) {
	return r.first(ctx, "user_id", func(q *gorm.DB) *gorm.DB {
		return q.Where("user_id = ?", userID)
	})
}

// GetBySubscriptionID retrieves the row linked to a billing subscription
func (r *UserSubscriptionRepositoryImpl) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*entitlement.Entitlement, error) {
	return r.first(ctx, "stripe_subscription_id", func(q *gorm.DB) *gorm.DB {
		return q.Where("stripe_subscription_id = ?", subscriptionID)
	})
}

// GetByCustomerID retrieves the most recently updated row linked to a billing customer
func (r *UserSubscriptionRepositoryImpl) GetByCustomerID(ctx context.Context, customerID string) (*entitlement.Entitlement, error) {
	return r.first(ctx, "stripe_customer_id", func(q *gorm.DB) *gorm.DB {
		return q.Where("stripe_customer_id = ?", customerID)
	})
}

// GetByEmail retrieves the most recently updated row whose email matches, ignoring case
func (r *UserSubscriptionRepositoryImpl) GetByEmail(ctx context.Context, email string) (*entitlement.Entitlement, error) {
	return r.first(ctx, "user_email", func(q *gorm.DB) *gorm.DB {
		return q.Scopes(db.EmailEquals("user_email", email))
	})
}

func (r *UserSubscriptionRepositoryImpl) first(ctx context.Context, by string, where func(*gorm.DB) *gorm.DB) (*entitlement.Entitlement, error) {
	var model models.UserSubscriptionModel
	tx := db.GetTxFromContext(ctx, r.db)
	err := where(tx.Model(&models.UserSubscriptionModel{})).
		Order("updated_at DESC").
		Order("id DESC").
		First(&model).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Errorw("failed to get user subscription", "by", by, "error", err)
		return nil, fmt.Errorf("failed to get user subscription: %w", err)
	}

	entity, err := r.mapper.ToEntity(&model)
	if err != nil {
		r.logger.Errorw("failed to map user subscription", "id", model.ID, "error", err)
		return nil, fmt.Errorf("failed to map user subscription: %w", err)
	}
	return entity, nil
}

// Upsert inserts the row or, when one exists for the same user, overwrites
// its reconciled columns. Concurrent writers for one user resolve last-write-wins
// on the unique user_id index.
func (r *UserSubscriptionRepositoryImpl) Upsert(ctx context.Context, e *entitlement.Entitlement) error {
	model, err := r.mapper.ToModel(e)
	if err != nil {
		return fmt.Errorf("failed to map entitlement: %w", err)
	}

	tx := db.GetTxFromContext(ctx, r.db)

	if model.ID != 0 {
		result := tx.Model(&models.UserSubscriptionModel{}).
			Where("id = ?", model.ID).
			Select(upsertColumns).
			Updates(model)
		if result.Error != nil {
			if errors.IsDuplicateError(result.Error) {
				return errors.NewConflictError("user subscription already exists", model.UserID)
			}
			r.logger.Errorw("failed to update user subscription", "id", model.ID, "user_id", model.UserID, "error", result.Error)
			return fmt.Errorf("failed to update user subscription: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return errors.NewNotFoundError("user subscription not found", model.UserID)
		}
		return nil
	}

	err = tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(upsertColumns),
	}).Create(model).Error
	if err != nil {
		if errors.IsDuplicateError(err) {
			return errors.NewConflictError("user subscription already exists", model.UserID)
		}
		r.logger.Errorw("failed to upsert user subscription", "user_id", model.UserID, "error", err)
		return fmt.Errorf("failed to upsert user subscription: %w", err)
	}

	// On an update-on-conflict MySQL reports no usable insert id, so read it back.
	var id uint
	if err := tx.Model(&models.UserSubscriptionModel{}).
		Where("user_id = ?", model.UserID).
		Select("id").
		Scan(&id).Error; err != nil {
		r.logger.Errorw("failed to read back user subscription id", "user_id", model.UserID, "error", err)
		return fmt.Errorf("failed to read back user subscription id: %w", err)
	}
	if id != 0 {
		if err := e.SetID(id); err != nil {
			return fmt.Errorf("failed to set user subscription ID: %w", err)
		}
	}

	r.logger.Debugw("user subscription upserted", "id", id, "user_id", model.UserID, "status", model.Status)
	return nil
}

// ListWithCustomer pages through rows linked to a billing customer, in id order
func (r *UserSubscriptionRepositoryImpl) ListWithCustomer(ctx context.Context, afterID uint, limit int) ([]*entitlement.Entitlement, error) {
	var rows []*models.UserSubscriptionModel
	tx := db.GetTxFromContext(ctx, r.db)
	err := tx.Model(&models.UserSubscriptionModel{}).
		Where("id > ?", afterID).
		Where("stripe_customer_id IS NOT NULL AND stripe_customer_id <> ''").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		r.logger.Errorw("failed to list linked user subscriptions", "after_id", afterID, "error", err)
		return nil, fmt.Errorf("failed to list linked user subscriptions: %w", err)
	}

	entities, err := r.mapper.ToEntities(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to map user subscriptions: %w", err)
	}
	return entities, nil
}
