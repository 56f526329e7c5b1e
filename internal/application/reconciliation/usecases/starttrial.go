package usecases

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/orris-inc/subsync/internal/application/reconciliation"
	"github.com/orris-inc/subsync/internal/domain/entitlement"
	"github.com/orris-inc/subsync/internal/shared/errors"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

type StartTrialCommand struct {
	UserID string
	Email  string
	Plan   string
}

type StartTrialResult struct {
	Status             string    `json:"status"`
	PlanType           string    `json:"plan_type"`
	TrialEndsAt        time.Time `json:"trial_ends_at"`
	TrialDaysRemaining int       `json:"trial_days_remaining"`
}

// StartTrialUseCase starts an in-app trial of a paid plan. Each plan level can
// be trialed once per user.
type StartTrialUseCase struct {
	repo   entitlement.Repository
	policy *entitlement.AccessPolicy
	writer *reconciliation.Writer
	logger logger.Interface
	now    func() time.Time
}

func NewStartTrialUseCase(
	repo entitlement.Repository,
	policy *entitlement.AccessPolicy,
	writer *reconciliation.Writer,
	logger logger.Interface,
) *StartTrialUseCase {
	return &StartTrialUseCase{repo: repo, policy: policy, writer: writer, logger: logger, now: time.Now}
}

func (uc *StartTrialUseCase) Execute(ctx context.Context, cmd StartTrialCommand) (*StartTrialResult, error) {
	if strings.TrimSpace(cmd.UserID) == "" {
		return nil, errors.NewValidationError("user id is required")
	}
	plan, ok := entitlement.ParsePlanTag(cmd.Plan)
	if !ok || plan == entitlement.PlanFree {
		return nil, errors.NewValidationError("unknown paid plan", cmd.Plan)
	}
	days := uc.policy.TrialDays(plan)
	if days <= 0 {
		return nil, errors.NewValidationError("plan has no trial", string(plan))
	}

	e, err := uc.repo.GetByUserID(ctx, cmd.UserID)
	if err != nil {
		uc.logger.Errorw("failed to load entitlement", "user_id", cmd.UserID, "error", err)
		return nil, errors.NewInternalError("failed to load entitlement")
	}

	outcome := reconciliation.WriteUpdated
	if e == nil {
		outcome = reconciliation.WriteCreated
		rec := entitlement.Record{
			UserID:   cmd.UserID,
			Status:   entitlement.StatusFree,
			PlanType: entitlement.PlanFree,
		}
		if email := strings.TrimSpace(cmd.Email); email != "" {
			rec.UserEmail = &email
		}
		if e, err = entitlement.NewEntitlement(rec); err != nil {
			return nil, errors.NewValidationError("invalid entitlement", err.Error())
		}
	}

	prev := e.Status()
	now := uc.now()
	if err := e.StartTrial(plan, days, now); err != nil {
		uc.logger.Warnw("trial start rejected", "user_id", cmd.UserID, "plan", plan, "error", err)
		if stderrors.Is(err, entitlement.ErrTrialAlreadyUsed) || stderrors.Is(err, entitlement.ErrTransitionNotAllowed) {
			return nil, errors.NewConflictError("trial cannot be started", err.Error())
		}
		return nil, errors.NewValidationError("trial cannot be started", err.Error())
	}

	if err := uc.writer.Persist(ctx, e, prev, outcome); err != nil {
		return nil, err
	}

	uc.logger.Infow("trial started",
		"user_id", cmd.UserID,
		"plan", plan,
		"days", days,
		"previous_status", prev,
	)
	return &StartTrialResult{
		Status:             string(e.Status()),
		PlanType:           string(e.PlanType()),
		TrialEndsAt:        *e.TrialEndsAt(),
		TrialDaysRemaining: e.TrialDaysRemaining(now),
	}, nil
}
