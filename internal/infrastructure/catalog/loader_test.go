package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/subsync/internal/domain/entitlement"
	"github.com/orris-inc/subsync/internal/shared/config"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

const sampleCatalog = `
plans:
  - id: free
    name: Free
    price: "0"
    interval: month
    chat_limit: 3
  - id: lunary_plus
    name: Plus
    price: "5.99"
    interval: month
    trial_days: 10
    chat_limit: 40
features:
  free: [moon_phases]
  lunary_plus: [birth_chart, solar_return]
`

func TestParseAccessPolicy(t *testing.T) {
	policy, err := ParseAccessPolicy([]byte(sampleCatalog))
	require.NoError(t, err)

	plus, ok := policy.Plan(entitlement.PlanPlus)
	require.True(t, ok)
	assert.Equal(t, "5.99", plus.Price.StringFixed(2))
	assert.Equal(t, 10, policy.TrialDays(entitlement.PlanPlus))
	assert.Equal(t, 40, policy.ChatLimit("lunary_plus"))

	assert.True(t, policy.HasFeatureAccess(entitlement.StatusActive, "lunary_plus", "solar_return"))
	assert.False(t, policy.HasFeatureAccess(entitlement.StatusFree, "free", "solar_return"))
	assert.True(t, policy.HasFeatureAccess(entitlement.StatusFree, "free", "moon_phases"))
}

func TestParseAccessPolicy_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "plans: []\nfeatures: {free: []}\nextra: 1\n"},
		{"no free plan", "plans: []\nfeatures: {free: []}\n"},
		{"bad price", "plans: [{id: free, price: abc, interval: month}]\nfeatures: {free: []}\n"},
		{"unknown plan", "plans: [{id: free, interval: month}, {id: gold, interval: month}]\nfeatures: {free: []}\n"},
		{"bad interval", "plans: [{id: free, interval: week}]\nfeatures: {free: []}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAccessPolicy([]byte(tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadAccessPolicy_MissingFileUsesDefault(t *testing.T) {
	policy, err := LoadAccessPolicy(filepath.Join(t.TempDir(), "nope.yaml"), logger.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, 7, policy.TrialDays(entitlement.PlanPlus))
}

func TestLoadAccessPolicy_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o600))

	policy, err := LoadAccessPolicy(path, logger.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, 10, policy.TrialDays(entitlement.PlanPlus))
}

func TestPriceTable(t *testing.T) {
	table := PriceTable(config.StripeConfig{Prices: []config.PriceMapping{
		{PriceID: "price_plus_usd", PlanID: "lunary_plus"},
		{PriceID: "price_plus_eur", PlanID: "lunary_plus"},
		{PriceID: "price_gold", PlanID: "gold"},
	}}, logger.NewNopLogger())

	assert.Equal(t, 2, table.Len())
	plan, ok := table.Lookup("price_plus_eur")
	assert.True(t, ok)
	assert.Equal(t, entitlement.PlanPlus, plan)
	_, ok = table.Lookup("price_gold")
	assert.False(t, ok)
}

func TestShippedCatalogMatchesBuiltIn(t *testing.T) {
	policy, err := LoadAccessPolicy(filepath.Join("..", "..", "..", "configs", "plans.yaml"), logger.NewNopLogger())
	require.NoError(t, err)

	builtIn := entitlement.DefaultAccessPolicy()
	for _, def := range builtIn.Plans() {
		got, ok := policy.Plan(def.ID)
		require.True(t, ok, def.ID)
		assert.True(t, def.Price.Equal(got.Price), def.ID)
		assert.Equal(t, def.TrialDays, got.TrialDays, def.ID)
		assert.Equal(t, def.ChatLimit, got.ChatLimit, def.ID)
		assert.ElementsMatch(t,
			builtIn.Features(entitlement.StatusActive, string(def.ID)),
			policy.Features(entitlement.StatusActive, string(def.ID)),
			def.ID)
	}
}
