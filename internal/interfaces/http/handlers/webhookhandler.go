package handlers

import (
	stderrors "errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orris-inc/subsync/internal/application/reconciliation/usecases"
	"github.com/orris-inc/subsync/internal/shared/constants"
	"github.com/orris-inc/subsync/internal/shared/logger"
	"github.com/orris-inc/subsync/internal/shared/utils"
)

// WebhookHandler receives billing provider webhooks
type WebhookHandler struct {
	handleWebhookUC handleWebhookUseCase
	logger          logger.Interface
}

func NewWebhookHandler(handleWebhookUC handleWebhookUseCase, logger logger.Interface) *WebhookHandler {
	return &WebhookHandler{
		handleWebhookUC: handleWebhookUC,
		logger:          logger,
	}
}

// HandleStripe handles POST /webhooks/stripe.
// The raw body must reach the verifier untouched, so it is read directly and
// never bound.
func (h *WebhookHandler) HandleStripe(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, constants.MaxWebhookBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			h.logger.Warnw("webhook payload too large", "limit", tooLarge.Limit)
			utils.ErrorResponse(c, http.StatusRequestEntityTooLarge, "webhook payload too large")
			return
		}
		utils.ErrorResponse(c, http.StatusBadRequest, "failed to read webhook payload")
		return
	}

	result, err := h.handleWebhookUC.Execute(c.Request.Context(), usecases.HandleWebhookCommand{
		Payload:   body,
		Signature: c.GetHeader(constants.HeaderStripeSignature),
	})
	if err != nil {
		// a 5xx makes the provider redeliver; a 4xx does not
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", gin.H{
		"received":   true,
		"event_id":   result.EventID,
		"event_type": result.EventType,
		"outcome":    result.Outcome,
	})
}
