package usecases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/orris-inc/subsync/internal/application/reconciliation"
	"github.com/orris-inc/subsync/internal/domain/entitlement"
	"github.com/orris-inc/subsync/internal/shared/errors"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

type CheckFeatureCommand struct {
	UserID  string
	Feature string
}

type CheckFeatureResult struct {
	Allowed  bool   `json:"allowed"`
	Status   string `json:"status"`
	PlanType string `json:"plan_type"`
}

// CheckFeatureUseCase answers the feature gate from the persisted
// entitlement. A user without a row is treated as free.
type CheckFeatureUseCase struct {
	repo   entitlement.Repository
	cache  reconciliation.EntitlementCache
	policy *entitlement.AccessPolicy
	logger logger.Interface
}

// NewCheckFeatureUseCase creates the use case. cache may be nil.
func NewCheckFeatureUseCase(
	repo entitlement.Repository,
	cache reconciliation.EntitlementCache,
	policy *entitlement.AccessPolicy,
	logger logger.Interface,
) *CheckFeatureUseCase {
	return &CheckFeatureUseCase{repo: repo, cache: cache, policy: policy, logger: logger}
}

func (uc *CheckFeatureUseCase) Execute(ctx context.Context, cmd CheckFeatureCommand) (*CheckFeatureResult, error) {
	if strings.TrimSpace(cmd.UserID) == "" {
		return nil, errors.NewValidationError("user id is required")
	}

	cached, err := uc.load(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}

	status := entitlement.ParseStatus(cached.Status)
	plan := entitlement.NormalizePlan(cached.PlanType)
	return &CheckFeatureResult{
		Allowed:  uc.policy.HasFeatureAccess(status, cached.PlanType, cmd.Feature),
		Status:   string(status),
		PlanType: string(plan),
	}, nil
}

// load reads through the cache. Cache failures fall back to the store.
func (uc *CheckFeatureUseCase) load(ctx context.Context, userID string) (*reconciliation.CachedEntitlement, error) {
	if uc.cache != nil {
		hit, err := uc.cache.Get(ctx, userID)
		if err != nil {
			uc.logger.Warnw("entitlement cache read failed", "user_id", userID, "error", err)
		} else if hit != nil {
			if hit.NotFound {
				return freeEntitlement(), nil
			}
			return hit, nil
		}
	}

	e, err := uc.repo.GetByUserID(ctx, userID)
	if err != nil {
		uc.logger.Errorw("failed to load entitlement", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to load entitlement: %w", err)
	}

	if e == nil {
		if uc.cache != nil {
			if err := uc.cache.SetNullMarker(ctx, userID); err != nil {
				uc.logger.Warnw("failed to cache missing entitlement", "user_id", userID, "error", err)
			}
		}
		return freeEntitlement(), nil
	}

	out := &reconciliation.CachedEntitlement{Status: string(e.Status()), PlanType: string(e.PlanType())}
	if uc.cache != nil {
		if err := uc.cache.Set(ctx, userID, out); err != nil {
			uc.logger.Warnw("failed to cache entitlement", "user_id", userID, "error", err)
		}
	}
	return out, nil
}

func freeEntitlement() *reconciliation.CachedEntitlement {
	return &reconciliation.CachedEntitlement{
		Status:   string(entitlement.StatusFree),
		PlanType: string(entitlement.PlanFree),
	}
}

type GetEntitlementQuery struct {
	UserID string
}

type EntitlementView struct {
	UserID             string     `json:"user_id"`
	Status             string     `json:"status"`
	PlanType           string     `json:"plan_type"`
	Features           []string   `json:"features"`
	ChatLimit          int        `json:"chat_limit"`
	TrialEndsAt        *time.Time `json:"trial_ends_at,omitempty"`
	TrialDaysRemaining int        `json:"trial_days_remaining"`
	TrialedPlanLevels  []string   `json:"trialed_plan_levels"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`
	HasDiscount        bool       `json:"has_discount"`
	MonthlyAmountDue   string     `json:"monthly_amount_due"`
}

// GetEntitlementUseCase returns the caller's entitlement summary.
type GetEntitlementUseCase struct {
	repo   entitlement.Repository
	policy *entitlement.AccessPolicy
	logger logger.Interface
}

func NewGetEntitlementUseCase(repo entitlement.Repository, policy *entitlement.AccessPolicy, logger logger.Interface) *GetEntitlementUseCase {
	return &GetEntitlementUseCase{repo: repo, policy: policy, logger: logger}
}

func (uc *GetEntitlementUseCase) Execute(ctx context.Context, q GetEntitlementQuery) (*EntitlementView, error) {
	e, err := uc.repo.GetByUserID(ctx, q.UserID)
	if err != nil {
		uc.logger.Errorw("failed to load entitlement", "user_id", q.UserID, "error", err)
		return nil, fmt.Errorf("failed to load entitlement: %w", err)
	}

	view := &EntitlementView{
		UserID:            q.UserID,
		Status:            string(entitlement.StatusFree),
		PlanType:          string(entitlement.PlanFree),
		MonthlyAmountDue:  "0.00",
		TrialedPlanLevels: []string{},
	}
	if e != nil {
		now := time.Now()
		view.Status = string(e.Status())
		view.PlanType = string(e.PlanType())
		view.TrialEndsAt = e.TrialEndsAt()
		view.TrialDaysRemaining = e.TrialDaysRemaining(now)
		view.TrialedPlanLevels = e.TrialedPlanLevels()
		view.CurrentPeriodEnd = e.CurrentPeriodEnd()
		view.HasDiscount = e.HasDiscount()
		view.MonthlyAmountDue = e.MonthlyAmountDue().StringFixed(2)
	}

	status := entitlement.ParseStatus(view.Status)
	view.Features = uc.policy.Features(status, view.PlanType)
	view.ChatLimit = uc.policy.ChatLimit(view.PlanType)
	return view, nil
}
