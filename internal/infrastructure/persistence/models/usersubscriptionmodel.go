package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/orris-inc/subsync/internal/shared/constants"
)

// UserSubscriptionModel represents the database persistence model for user entitlements
// This is the anti-corruption layer between domain and database
type UserSubscriptionModel struct {
	ID                   uint    `gorm:"primarykey"`
	UserID               string  `gorm:"uniqueIndex;not null;size:64"`
	UserEmail            *string `gorm:"size:255;index:idx_user_subscriptions_email"`
	Status               string  `gorm:"not null;size:20;default:free"`
	PlanType             string  `gorm:"not null;size:40;default:free"`
	StripeCustomerID     *string `gorm:"size:64;index:idx_user_subscriptions_customer"`
	StripeSubscriptionID *string `gorm:"size:64;index:idx_user_subscriptions_subscription"`
	TrialEndsAt          *time.Time
	CurrentPeriodEnd     *time.Time
	HasDiscount          bool                `gorm:"not null;default:false"`
	DiscountPercent      decimal.NullDecimal `gorm:"type:decimal(5,2)"`
	MonthlyAmountDue     decimal.Decimal     `gorm:"type:decimal(10,2);not null;default:0"`
	CouponID             *string             `gorm:"size:64"`
	PromoCode            *string             `gorm:"size:64"`
	DiscountEndsAt       *time.Time
	TrialUsed            bool `gorm:"not null;default:false"`
	TrialedPlanLevels    datatypes.JSON
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// TableName specifies the table name for GORM
func (UserSubscriptionModel) TableName() string {
	return constants.TableUserSubscriptions
}
