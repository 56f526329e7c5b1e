package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orris-inc/subsync/internal/application/reconciliation/usecases"
	"github.com/orris-inc/subsync/internal/shared/constants"
	"github.com/orris-inc/subsync/internal/shared/logger"
	"github.com/orris-inc/subsync/internal/shared/utils"
)

// EntitlementHandler serves the caller's own entitlement
type EntitlementHandler struct {
	getEntitlementUC getEntitlementUseCase
	checkFeatureUC   checkFeatureUseCase
	startTrialUC     startTrialUseCase
	recoverOrphansUC recoverOrphansUseCase
	logger           logger.Interface
}

func NewEntitlementHandler(
	getEntitlementUC getEntitlementUseCase,
	checkFeatureUC checkFeatureUseCase,
	startTrialUC startTrialUseCase,
	recoverOrphansUC recoverOrphansUseCase,
	logger logger.Interface,
) *EntitlementHandler {
	return &EntitlementHandler{
		getEntitlementUC: getEntitlementUC,
		checkFeatureUC:   checkFeatureUC,
		startTrialUC:     startTrialUC,
		recoverOrphansUC: recoverOrphansUC,
		logger:           logger,
	}
}

type StartTrialRequest struct {
	Plan string `json:"plan" validate:"required,oneof=lunary_plus lunary_plus_ai lunary_plus_ai_annual monthly yearly"`
}

func (h *EntitlementHandler) sessionUser(c *gin.Context) (userID, email string, ok bool) {
	userID = c.GetString(constants.ContextKeyUserID)
	if userID == "" {
		h.logger.Warnw("user ID not found in context")
		utils.ErrorResponse(c, http.StatusUnauthorized, "user not authenticated")
		return "", "", false
	}
	return userID, c.GetString(constants.ContextKeyUserEmail), true
}

// GetMine handles GET /entitlements/me
func (h *EntitlementHandler) GetMine(c *gin.Context) {
	userID, _, ok := h.sessionUser(c)
	if !ok {
		return
	}

	view, err := h.getEntitlementUC.Execute(c.Request.Context(), usecases.GetEntitlementQuery{UserID: userID})
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", view)
}

// CheckFeature handles GET /entitlements/me/features/:feature
func (h *EntitlementHandler) CheckFeature(c *gin.Context) {
	userID, _, ok := h.sessionUser(c)
	if !ok {
		return
	}

	result, err := h.checkFeatureUC.Execute(c.Request.Context(), usecases.CheckFeatureCommand{
		UserID:  userID,
		Feature: c.Param("feature"),
	})
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", result)
}

// StartTrial handles POST /entitlements/me/trial
func (h *EntitlementHandler) StartTrial(c *gin.Context) {
	userID, email, ok := h.sessionUser(c)
	if !ok {
		return
	}

	var req StartTrialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	result, err := h.startTrialUC.Execute(c.Request.Context(), usecases.StartTrialCommand{
		UserID: userID,
		Email:  email,
		Plan:   req.Plan,
	})
	if err != nil {
		h.logger.Warnw("failed to start trial", "user_id", userID, "plan", req.Plan, "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "trial started", result)
}

// RecoverOrphans handles POST /entitlements/me/recover.
// Clients call it after sign-in so subscriptions paid for before the account
// existed get attached.
func (h *EntitlementHandler) RecoverOrphans(c *gin.Context) {
	userID, email, ok := h.sessionUser(c)
	if !ok {
		return
	}

	result, err := h.recoverOrphansUC.Execute(c.Request.Context(), usecases.RecoverOrphansCommand{
		UserID: userID,
		Email:  email,
	})
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", result)
}
