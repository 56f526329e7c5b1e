package http

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/orris-inc/subsync/internal/infrastructure/auth"
	"github.com/orris-inc/subsync/internal/infrastructure/config"
	"github.com/orris-inc/subsync/internal/infrastructure/persistence/models"
	"github.com/orris-inc/subsync/internal/shared/constants"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

const (
	testJWTSecret  = "router-test-secret"
	testAdminToken = "router-test-admin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) *Router {
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(models.All()...))

	cfg := &config.Config{}
	cfg.Auth.JWT.Secret = testJWTSecret
	cfg.Auth.AdminToken = testAdminToken
	cfg.Stripe.SecretKey = "sk_test_unused"
	cfg.Stripe.WebhookSecret = "whsec_test"
	cfg.Reconciliation.PageSize = 100

	reg := prometheus.NewRegistry()
	r, err := NewRouter(gdb, nil, cfg, reg, reg, logger.NewNopLogger())
	require.NoError(t, err)
	r.SetupRoutes()
	t.Cleanup(r.Shutdown)
	return r
}

func do(r *Router, method, path, bearer string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set(constants.HeaderContentType, constants.ContentTypeJSON)
	if bearer != "" {
		req.Header.Set(constants.HeaderAuthorization, "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.GetEngine().ServeHTTP(w, req)
	return w
}

func sessionToken(t *testing.T, userID string) string {
	token, err := auth.NewJWTService(testJWTSecret).Generate(userID, userID+"@example.com", time.Hour)
	require.NoError(t, err)
	return token
}

func TestRouter_Health(t *testing.T) {
	r := newTestRouter(t)

	w := do(r, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(constants.HeaderXRequestID))
}

func TestRouter_WebhookRejectsUnsignedPayload(t *testing.T) {
	r := newTestRouter(t)

	w := do(r, http.MethodPost, "/webhooks/stripe", "", []byte(`{"id":"evt_1","type":"customer.subscription.updated"}`))

	assert.Equal(t, http.StatusBadRequest, w.Code)

	metrics := do(r, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), "subsync_webhook_signature_failures_total 1")
}

func TestRouter_SessionRoutes(t *testing.T) {
	r := newTestRouter(t)

	w := do(r, http.MethodGet, "/entitlements/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := sessionToken(t, "user-1")

	w = do(r, http.MethodGet, "/entitlements/me", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"free"`)

	w = do(r, http.MethodGet, "/entitlements/me/features/deeper_readings", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"allowed":false`)

	w = do(r, http.MethodPost, "/entitlements/me/trial", token, []byte(`{"plan":"lunary_plus_ai"}`))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(r, http.MethodGet, "/entitlements/me/features/deeper_readings", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"allowed":true`)

	// each plan level can be trialed once
	w = do(r, http.MethodPost, "/entitlements/me/trial", token, []byte(`{"plan":"lunary_plus_ai"}`))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRouter_AdminRequiresToken(t *testing.T) {
	r := newTestRouter(t)

	w := do(r, http.MethodPost, "/admin/reconcile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/admin/reconcile", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// validation runs before any provider call
	w = do(r, http.MethodPost, "/admin/sync-customer", testAdminToken, []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
