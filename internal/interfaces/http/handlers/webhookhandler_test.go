package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orris-inc/subsync/internal/application/reconciliation/usecases"
	"github.com/orris-inc/subsync/internal/interfaces/http/handlers/testutil"
	"github.com/orris-inc/subsync/internal/shared/constants"
	"github.com/orris-inc/subsync/internal/shared/errors"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

type mockHandleWebhookUC struct {
	result *usecases.HandleWebhookResult
	err    error
	cmd    usecases.HandleWebhookCommand
	called bool
}

func (m *mockHandleWebhookUC) Execute(ctx context.Context, cmd usecases.HandleWebhookCommand) (*usecases.HandleWebhookResult, error) {
	m.called = true
	m.cmd = cmd
	return m.result, m.err
}

func TestWebhookHandler_HandleStripe(t *testing.T) {
	uc := &mockHandleWebhookUC{result: &usecases.HandleWebhookResult{
		EventID:   "evt_1",
		EventType: "customer.subscription.updated",
		Outcome:   usecases.WebhookProcessed,
	}}
	h := NewWebhookHandler(uc, logger.NewNopLogger())

	payload := []byte(`{"id":"evt_1"}`)
	c, w := testutil.NewRawTestContext(http.MethodPost, "/webhooks/stripe", payload)
	c.Request.Header.Set(constants.HeaderStripeSignature, "t=1,v1=abc")

	h.HandleStripe(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, payload, uc.cmd.Payload)
	assert.Equal(t, "t=1,v1=abc", uc.cmd.Signature)
	assert.Contains(t, w.Body.String(), `"outcome":"processed"`)
}

func TestWebhookHandler_HandleStripe_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"bad signature", errors.NewBadRequestError("invalid webhook signature"), http.StatusBadRequest},
		{"processing failure is retried", fmt.Errorf("db down"), http.StatusInternalServerError},
		{"provider failure", errors.NewUpstreamError("provider unavailable"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewWebhookHandler(&mockHandleWebhookUC{err: tt.err}, logger.NewNopLogger())
			c, w := testutil.NewRawTestContext(http.MethodPost, "/webhooks/stripe", []byte(`{}`))

			h.HandleStripe(c)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.NotContains(t, w.Body.String(), "db down")
		})
	}
}

func TestWebhookHandler_HandleStripe_TooLarge(t *testing.T) {
	uc := &mockHandleWebhookUC{}
	h := NewWebhookHandler(uc, logger.NewNopLogger())

	big := bytes.Repeat([]byte("a"), constants.MaxWebhookBodyBytes+1)
	c, w := testutil.NewRawTestContext(http.MethodPost, "/webhooks/stripe", big)

	h.HandleStripe(c)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.False(t, uc.called)
}
