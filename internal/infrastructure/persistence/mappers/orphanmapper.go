package mappers

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/orris-inc/subsync/internal/domain/entitlement"
	"github.com/orris-inc/subsync/internal/domain/orphan"
	"github.com/orris-inc/subsync/internal/infrastructure/persistence/models"
)

// OrphanMapper handles the conversion between orphan entities and persistence models
type OrphanMapper interface {
	ToEntity(model *models.OrphanedSubscriptionModel) (*orphan.Orphan, error)
	ToModel(entity *orphan.Orphan) *models.OrphanedSubscriptionModel
	ToEntities(models []*models.OrphanedSubscriptionModel) ([]*orphan.Orphan, error)
}

type orphanMapper struct{}

// NewOrphanMapper creates a new orphan mapper
func NewOrphanMapper() OrphanMapper {
	return &orphanMapper{}
}

func (m *orphanMapper) ToEntity(model *models.OrphanedSubscriptionModel) (*orphan.Orphan, error) {
	if model == nil {
		return nil, nil
	}

	entity, err := orphan.ReconstructOrphan(
		model.ID,
		model.StripeSubscriptionID,
		model.StripeCustomerID,
		model.CustomerEmail,
		entitlement.Status(model.Status),
		entitlement.PlanID(model.PlanType),
		orphanBilling(model),
		model.Resolved,
		derefString(model.ResolvedUserID),
		model.ResolvedAt,
		orphan.ResolutionMethod(derefString(model.ResolvedBy)),
		model.CreatedAt,
		model.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct orphan entity: %w", err)
	}
	return entity, nil
}

func (m *orphanMapper) ToModel(entity *orphan.Orphan) *models.OrphanedSubscriptionModel {
	if entity == nil {
		return nil
	}
	b := entity.Billing()
	model := &models.OrphanedSubscriptionModel{
		ID:                   entity.ID(),
		StripeSubscriptionID: entity.SubscriptionID(),
		StripeCustomerID:     entity.CustomerID(),
		CustomerEmail:        entity.CustomerEmail(),
		Status:               entity.Status().String(),
		PlanType:             entity.PlanType().String(),
		MonthlyAmountDue:     b.MonthlyAmountDue,
		HasDiscount:          b.HasDiscount,
		CouponID:             b.CouponID,
		PromoCode:            b.PromoCode,
		DiscountEndsAt:       b.DiscountEndsAt,
		TrialEndsAt:          b.TrialEndsAt,
		CurrentPeriodEnd:     b.CurrentPeriodEnd,
		Resolved:             entity.IsResolved(),
		ResolvedUserID:       optionalString(entity.ResolvedUserID()),
		ResolvedAt:           entity.ResolvedAt(),
		ResolvedBy:           optionalString(string(entity.ResolvedBy())),
		CreatedAt:            entity.CreatedAt(),
		UpdatedAt:            entity.UpdatedAt(),
	}
	if b.DiscountPercent != nil {
		model.DiscountPercent = decimal.NewNullDecimal(*b.DiscountPercent)
	}
	return model
}

func (m *orphanMapper) ToEntities(models []*models.OrphanedSubscriptionModel) ([]*orphan.Orphan, error) {
	entities := make([]*orphan.Orphan, 0, len(models))
	for i, model := range models {
		entity, err := m.ToEntity(model)
		if err != nil {
			return nil, fmt.Errorf("failed to map model at index %d (ID %d): %w", i, model.ID, err)
		}
		if entity != nil {
			entities = append(entities, entity)
		}
	}
	return entities, nil
}

func orphanBilling(model *models.OrphanedSubscriptionModel) orphan.Billing {
	b := orphan.Billing{
		MonthlyAmountDue: model.MonthlyAmountDue,
		HasDiscount:      model.HasDiscount,
		CouponID:         model.CouponID,
		PromoCode:        model.PromoCode,
		DiscountEndsAt:   model.DiscountEndsAt,
		TrialEndsAt:      model.TrialEndsAt,
		CurrentPeriodEnd: model.CurrentPeriodEnd,
	}
	if model.DiscountPercent.Valid {
		pct := model.DiscountPercent.Decimal
		b.DiscountPercent = &pct
	}
	return b
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
