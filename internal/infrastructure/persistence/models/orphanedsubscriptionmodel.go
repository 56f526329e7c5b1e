package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/orris-inc/subsync/internal/shared/constants"
)

// OrphanedSubscriptionModel is a billing subscription nobody could be matched to yet
type OrphanedSubscriptionModel struct {
	ID                   uint                `gorm:"primarykey"`
	StripeSubscriptionID string              `gorm:"uniqueIndex;not null;size:64"`
	StripeCustomerID     string              `gorm:"size:64;index"`
	CustomerEmail        string              `gorm:"size:255;index:idx_orphans_email_resolved,priority:1"`
	Status               string              `gorm:"not null;size:20"`
	PlanType             string              `gorm:"not null;size:40"`
	MonthlyAmountDue     decimal.Decimal     `gorm:"type:decimal(10,2);not null;default:0"`
	HasDiscount          bool                `gorm:"not null;default:false"`
	DiscountPercent      decimal.NullDecimal `gorm:"type:decimal(5,2)"`
	CouponID             *string             `gorm:"size:64"`
	PromoCode            *string             `gorm:"size:64"`
	DiscountEndsAt       *time.Time
	TrialEndsAt          *time.Time
	CurrentPeriodEnd     *time.Time
	Resolved             bool    `gorm:"not null;default:false;index:idx_orphans_email_resolved,priority:2"`
	ResolvedUserID       *string `gorm:"size:64"`
	ResolvedAt           *time.Time
	ResolvedBy           *string `gorm:"size:20"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// TableName specifies the table name for GORM
func (OrphanedSubscriptionModel) TableName() string {
	return constants.TableOrphanedSubscriptions
}
