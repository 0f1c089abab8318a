package proposal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	var sum float64
	for _, s := range cfg.Stages {
		sum += s.Percentage
	}
	assert.InDelta(t, 100, sum, 1e-9)
	assert.Equal(t, TierMedium, cfg.DefaultComplexity)
	for _, tier := range tierOrder {
		assert.Contains(t, cfg.BaseHours, tier)
		assert.Contains(t, cfg.Pricing.Multipliers, tier)
	}
}

func TestConfigValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"zero hours unit":      func(c *Config) { c.Rounding.HoursUnit = 0 },
		"odd revenue unit":     func(c *Config) { c.Rounding.RevenueUnit = 55 },
		"multiplier above one": func(c *Config) { c.Pricing.Multipliers[TierSimple] = 1.2 },
		"decreasing hours":     func(c *Config) { c.BaseHours[TierPlatform] = 10 },
		"backend share":        func(c *Config) { c.BackendSharePct = 0 },
		"no stages":            func(c *Config) { c.Stages = nil },
		"negative rate":        func(c *Config) { c.Stages[0].HourlyRate = -1 },
		"unknown default":      func(c *Config) { c.DefaultComplexity = "giant" },
		"timeline factor":      func(c *Config) { c.Team.MultiPhaseTimelineFactor = 0.5 },
		"churn":                func(c *Config) { c.Revenue.Models.Subscription.Churn = 2 },
		"tolerance":            func(c *Config) { c.ConsistencyTolerance = 0 },
	}
	for name, mod := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mod(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, KindConfiguration, KindOf(err))
		})
	}
}

func TestDefaultConfigRoundTripsThroughYAML(t *testing.T) {
	blob, err := yaml.Marshal(DefaultConfig())
	require.NoError(t, err)

	var cfg Config
	require.NoError(t, yaml.Unmarshal(blob, &cfg))
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultConfig().Stages, cfg.Stages)
	assert.Equal(t, DefaultConfig().Pricing.Multipliers, cfg.Pricing.Multipliers)
}
