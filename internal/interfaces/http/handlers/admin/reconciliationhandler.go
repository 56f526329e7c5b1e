package admin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orris-inc/subsync/internal/application/reconciliation/usecases"
	"github.com/orris-inc/subsync/internal/domain/orphan"
	"github.com/orris-inc/subsync/internal/shared/logger"
	"github.com/orris-inc/subsync/internal/shared/utils"
)

type reconcileAllUseCase interface {
	Execute(ctx context.Context, cmd usecases.ReconcileAllCommand) (*usecases.ReconcileAllResult, error)
}

type syncCustomerUseCase interface {
	Execute(ctx context.Context, cmd usecases.SyncCustomerCommand) (*usecases.SyncCustomerResult, error)
}

type healthCheckUseCase interface {
	Execute(ctx context.Context, cmd usecases.HealthCheckCommand) (*usecases.HealthCheckResult, error)
}

type recoverOrphansUseCase interface {
	Execute(ctx context.Context, cmd usecases.RecoverOrphansCommand) (*usecases.RecoverOrphansResult, error)
}

// ReconciliationHandler exposes the operator entry points over HTTP.
type ReconciliationHandler struct {
	reconcileAllUC   reconcileAllUseCase
	syncCustomerUC   syncCustomerUseCase
	healthCheckUC    healthCheckUseCase
	recoverOrphansUC recoverOrphansUseCase
	logger           logger.Interface
}

func NewReconciliationHandler(
	reconcileAllUC reconcileAllUseCase,
	syncCustomerUC syncCustomerUseCase,
	healthCheckUC healthCheckUseCase,
	recoverOrphansUC recoverOrphansUseCase,
	logger logger.Interface,
) *ReconciliationHandler {
	return &ReconciliationHandler{
		reconcileAllUC:   reconcileAllUC,
		syncCustomerUC:   syncCustomerUC,
		healthCheckUC:    healthCheckUC,
		recoverOrphansUC: recoverOrphansUC,
		logger:           logger,
	}
}

type ReconcileRequest struct {
	DryRun bool `json:"dry_run"`
	Force  bool `json:"force"`
	Limit  int  `json:"limit" validate:"gte=0"`
}

type SyncCustomerRequest struct {
	// Target is a provider customer id or an email address.
	Target string `json:"target" validate:"required,max=254"`
	DryRun bool   `json:"dry_run"`
	Force  bool   `json:"force"`
}

type HealthCheckRequest struct {
	Fix           bool `json:"fix"`
	MaxIterations int  `json:"max_iterations" validate:"gte=0,max=10000"`
}

type RecoverOrphansRequest struct {
	UserID string `json:"user_id" validate:"required,max=64"`
	Email  string `json:"email" validate:"required,email"`
}

// bind decodes an optional JSON body and validates it. An empty body leaves
// req at its zero value.
func bind(c *gin.Context, req any) bool {
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(req); err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "invalid request body")
			return false
		}
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return false
	}
	return true
}

// Reconcile handles POST /admin/reconcile
func (h *ReconciliationHandler) Reconcile(c *gin.Context) {
	var req ReconcileRequest
	if !bind(c, &req) {
		return
	}

	result, err := h.reconcileAllUC.Execute(c.Request.Context(), usecases.ReconcileAllCommand{
		DryRun: req.DryRun,
		Force:  req.Force,
		Limit:  req.Limit,
	})
	if err != nil {
		h.logger.Errorw("reconciliation failed", "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "reconciliation finished", result)
}

// SyncCustomer handles POST /admin/sync-customer
func (h *ReconciliationHandler) SyncCustomer(c *gin.Context) {
	var req SyncCustomerRequest
	if !bind(c, &req) {
		return
	}

	result, err := h.syncCustomerUC.Execute(c.Request.Context(), usecases.SyncCustomerCommand{
		Target: req.Target,
		DryRun: req.DryRun,
		Force:  req.Force,
	})
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", result)
}

// HealthCheck handles POST /admin/health
func (h *ReconciliationHandler) HealthCheck(c *gin.Context) {
	var req HealthCheckRequest
	if !bind(c, &req) {
		return
	}

	result, err := h.healthCheckUC.Execute(c.Request.Context(), usecases.HealthCheckCommand{
		Fix:           req.Fix,
		MaxIterations: req.MaxIterations,
	})
	if err != nil {
		h.logger.Errorw("health check failed", "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, result.Message, gin.H{
		"healthy":     result.Healthy(),
		"by_severity": result.CountBySeverity(),
		"report":      result,
	})
}

// RecoverOrphans handles POST /admin/orphans/recover
func (h *ReconciliationHandler) RecoverOrphans(c *gin.Context) {
	var req RecoverOrphansRequest
	if !bind(c, &req) {
		return
	}

	result, err := h.recoverOrphansUC.Execute(c.Request.Context(), usecases.RecoverOrphansCommand{
		UserID: req.UserID,
		Email:  req.Email,
		Method: orphan.ResolvedByAdmin,
	})
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", result)
}
