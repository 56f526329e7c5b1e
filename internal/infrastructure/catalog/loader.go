// Package catalog loads the plan catalog and the provider price table from
// configuration.
package catalog

import (
	"bytes"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/orris-inc/subsync/internal/domain/entitlement"
	domainrecon "github.com/orris-inc/subsync/internal/domain/reconciliation"
	"github.com/orris-inc/subsync/internal/shared/config"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

type planFile struct {
	Plans    []planEntry         `yaml:"plans"`
	Features map[string][]string `yaml:"features"`
}

type planEntry struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Price      string `yaml:"price"`
	Interval   string `yaml:"interval"`
	TrialDays  int    `yaml:"trial_days"`
	ChatLimit  int    `yaml:"chat_limit"`
	FeatureSet string `yaml:"feature_set"`
}

// LoadAccessPolicy reads the catalog at path. An empty path or a missing file
// yields the built-in catalog; a file that exists but is invalid is an error.
func LoadAccessPolicy(path string, log logger.Interface) (*entitlement.AccessPolicy, error) {
	if path == "" {
		return entitlement.DefaultAccessPolicy(), nil
	}

	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Warnw("plan catalog not found, using built-in catalog", "path", path)
		return entitlement.DefaultAccessPolicy(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read plan catalog: %w", err)
	}

	policy, err := ParseAccessPolicy(content)
	if err != nil {
		return nil, fmt.Errorf("plan catalog %s: %w", path, err)
	}

	log.Infow("plan catalog loaded",
		"path", path,
		"plans", len(policy.Plans()),
	)
	return policy, nil
}

// ParseAccessPolicy decodes a YAML catalog. Unknown keys are rejected.
func ParseAccessPolicy(content []byte) (*entitlement.AccessPolicy, error) {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var f planFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	plans := make([]entitlement.PlanDefinition, 0, len(f.Plans))
	for _, p := range f.Plans {
		price := decimal.Zero
		if p.Price != "" {
			d, err := decimal.NewFromString(p.Price)
			if err != nil {
				return nil, fmt.Errorf("plan %s: invalid price %q: %w", p.ID, p.Price, err)
			}
			price = d
		}
		plans = append(plans, entitlement.PlanDefinition{
			ID:         entitlement.PlanID(p.ID),
			Name:       p.Name,
			Price:      price,
			Interval:   entitlement.Interval(p.Interval),
			TrialDays:  p.TrialDays,
			ChatLimit:  p.ChatLimit,
			FeatureSet: entitlement.PlanID(p.FeatureSet),
		})
	}

	features := make(map[entitlement.PlanID][]string, len(f.Features))
	for tier, keys := range f.Features {
		features[entitlement.PlanID(tier)] = keys
	}

	return entitlement.NewAccessPolicy(plans, features)
}

// PriceTable builds the price id to plan table. Entries naming an unknown
// plan are logged and dropped.
func PriceTable(cfg config.StripeConfig, log logger.Interface) domainrecon.PriceTable {
	entries := make(map[string]entitlement.PlanID, len(cfg.Prices))
	for _, m := range cfg.Prices {
		plan := entitlement.PlanID(m.PlanID)
		if !plan.IsValid() {
			log.Warnw("ignoring price mapping with unknown plan",
				"price_id", m.PriceID,
				"plan_id", m.PlanID,
			)
			continue
		}
		entries[m.PriceID] = plan
	}
	return domainrecon.NewPriceTable(entries)
}
