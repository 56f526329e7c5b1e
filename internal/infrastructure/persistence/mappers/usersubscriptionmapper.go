package mappers

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/orris-inc/subsync/internal/domain/entitlement"
	"github.com/orris-inc/subsync/internal/infrastructure/persistence/models"
)

// EntitlementMapper handles the conversion between entitlement entities and persistence models
type EntitlementMapper interface {
	// ToEntity converts a persistence model to a domain entity
	ToEntity(model *models.UserSubscriptionModel) (*entitlement.Entitlement, error)

	// ToModel converts a domain entity to a persistence model
	ToModel(entity *entitlement.Entitlement) (*models.UserSubscriptionModel, error)

	// ToEntities converts multiple persistence models to domain entities
	ToEntities(models []*models.UserSubscriptionModel) ([]*entitlement.Entitlement, error)
}

type entitlementMapper struct{}

// NewEntitlementMapper creates a new entitlement mapper
func NewEntitlementMapper() EntitlementMapper {
	return &entitlementMapper{}
}

// ToEntity converts a persistence model to a domain entity. Legacy status and
// plan spellings are normalized on the way in.
func (m *entitlementMapper) ToEntity(model *models.UserSubscriptionModel) (*entitlement.Entitlement, error) {
	if model == nil {
		return nil, nil
	}

	levels, err := decodeLevels(model.TrialedPlanLevels)
	if err != nil {
		return nil, fmt.Errorf("failed to decode trialed plan levels for user %s: %w", model.UserID, err)
	}

	rec := entitlement.Record{
		UserID:            model.UserID,
		UserEmail:         model.UserEmail,
		Status:            entitlement.ParseStatus(model.Status),
		PlanType:          entitlement.NormalizePlan(model.PlanType),
		CustomerID:        model.StripeCustomerID,
		SubscriptionID:    model.StripeSubscriptionID,
		TrialEndsAt:       model.TrialEndsAt,
		CurrentPeriodEnd:  model.CurrentPeriodEnd,
		HasDiscount:       model.HasDiscount,
		MonthlyAmountDue:  model.MonthlyAmountDue,
		CouponID:          model.CouponID,
		PromoCode:         model.PromoCode,
		DiscountEndsAt:    model.DiscountEndsAt,
		TrialUsed:         model.TrialUsed,
		TrialedPlanLevels: levels,
	}
	if model.DiscountPercent.Valid {
		pct := model.DiscountPercent.Decimal
		rec.DiscountPercent = &pct
	}

	entity, err := entitlement.ReconstructEntitlement(model.ID, rec, model.CreatedAt, model.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct entitlement entity: %w", err)
	}
	return entity, nil
}

// ToModel converts a domain entity to a persistence model
func (m *entitlementMapper) ToModel(entity *entitlement.Entitlement) (*models.UserSubscriptionModel, error) {
	if entity == nil {
		return nil, nil
	}

	rec := entity.Record()
	levels, err := json.Marshal(nonNilLevels(rec.TrialedPlanLevels))
	if err != nil {
		return nil, fmt.Errorf("failed to encode trialed plan levels: %w", err)
	}

	model := &models.UserSubscriptionModel{
		ID:                   entity.ID(),
		UserID:               rec.UserID,
		UserEmail:            rec.UserEmail,
		Status:               rec.Status.String(),
		PlanType:             rec.PlanType.String(),
		StripeCustomerID:     rec.CustomerID,
		StripeSubscriptionID: rec.SubscriptionID,
		TrialEndsAt:          rec.TrialEndsAt,
		CurrentPeriodEnd:     rec.CurrentPeriodEnd,
		HasDiscount:          rec.HasDiscount,
		MonthlyAmountDue:     rec.MonthlyAmountDue,
		CouponID:             rec.CouponID,
		PromoCode:            rec.PromoCode,
		DiscountEndsAt:       rec.DiscountEndsAt,
		TrialUsed:            rec.TrialUsed,
		TrialedPlanLevels:    datatypes.JSON(levels),
		CreatedAt:            entity.CreatedAt(),
		UpdatedAt:            entity.UpdatedAt(),
	}
	if rec.DiscountPercent != nil {
		model.DiscountPercent = decimal.NewNullDecimal(*rec.DiscountPercent)
	}
	return model, nil
}

// ToEntities converts multiple persistence models to domain entities
func (m *entitlementMapper) ToEntities(models []*models.UserSubscriptionModel) ([]*entitlement.Entitlement, error) {
	entities := make([]*entitlement.Entitlement, 0, len(models))

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

// decodeLevels accepts a JSON array, null, or a single JSON string as written
// by older rows.
func decodeLevels(raw datatypes.JSON) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var levels []string
	if err := json.Unmarshal(raw, &levels); err == nil {
		return levels, nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, err
	}
	if single == "" {
		return nil, nil
	}
	return []string{single}, nil
}

func nonNilLevels(levels []string) []string {
	if levels == nil {
		return []string{}
	}
	return levels
}
