package proposal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculatePriceMediumScenario(t *testing.T) {
	q, err := CalculatePrice(DefaultConfig(), PriceInput{DIYCost: 252000, Complexity: TierMedium})
	require.NoError(t, err)

	assert.Equal(t, 0.37, q.Multiplier)
	assert.False(t, q.ComplianceAdded)
	assert.Equal(t, int64(93000), q.CorePrice)
	assert.Equal(t, int64(93000), q.FinalTotal)
	assert.Equal(t, int64(159000), q.Savings)
	assert.Equal(t, 63, q.SavingsPercentage)

	require.Len(t, q.Options, 3)
	byKey := map[string]ModularOption{}
	for _, o := range q.Options {
		byKey[o.Key] = o
		assert.False(t, o.Included)
		assert.Zero(t, o.Price%1000)
	}
	assert.Equal(t, int64(28000), byKey[OptionExtendedSupport].Price)
	assert.Equal(t, int64(19000), byKey[OptionExpedited].Price)
	assert.Equal(t, int64(28000), byKey[OptionAdditionalFeatures].Price)
}

func TestCalculatePriceFlaggedOptionsAddToTotal(t *testing.T) {
	q, err := CalculatePrice(DefaultConfig(), PriceInput{DIYCost: 252000, Complexity: TierMedium, Expedited: true, ExtendedSupport: true})
	require.NoError(t, err)
	assert.Equal(t, int64(93000+28000+19000), q.FinalTotal)
	assert.Equal(t, int64(252000-140000), q.Savings)
	assert.Equal(t, 44, q.SavingsPercentage)
}

func TestCalculatePriceComplianceAdjustment(t *testing.T) {
	cfg := DefaultConfig()
	for _, tier := range tierOrder {
		plain, err := CalculatePrice(cfg, PriceInput{DIYCost: 500000, Complexity: tier})
		require.NoError(t, err)
		withGDPR, err := CalculatePrice(cfg, PriceInput{DIYCost: 500000, Complexity: tier, ComplianceRequirements: []string{"GDPR"}})
		require.NoError(t, err)
		assert.InDelta(t, 0.02, withGDPR.Multiplier-plain.Multiplier, 1e-9, string(tier))
		assert.True(t, withGDPR.ComplianceAdded)
	}
}

func TestCorePriceWithinMultiplierBand(t *testing.T) {
	cfg := DefaultConfig()
	for _, tier := range tierOrder {
		for _, diy := range []int64{60000, 78280, 252000, 1234567} {
			for _, comp := range [][]string{nil, {"HIPAA"}} {
				q, err := CalculatePrice(cfg, PriceInput{DIYCost: diy, Complexity: tier, ComplianceRequirements: comp})
				require.NoError(t, err)
				ratio := float64(q.CorePrice) / float64(diy)
				half := float64(cfg.Rounding.PriceUnit) / 2 / float64(diy)
				assert.InDelta(t, q.Multiplier, ratio, half+1e-9, "tier=%s diy=%d", tier, diy)
				assert.Zero(t, q.CorePrice%cfg.Rounding.PriceUnit)
			}
		}
	}
}

func TestComplianceCertificationOnlyForEnterpriseAndPlatform(t *testing.T) {
	cfg := DefaultConfig()
	for _, tier := range tierOrder {
		q, err := CalculatePrice(cfg, PriceInput{DIYCost: 400000, Complexity: tier})
		require.NoError(t, err)
		var found bool
		for _, o := range q.Options {
			if o.Key == OptionComplianceCertification {
				found = true
				assert.False(t, o.Included)
			}
		}
		assert.Equal(t, tier.Specialist(), found, string(tier))
	}
}

func TestCalculatePriceRejectsBadInput(t *testing.T) {
	_, err := CalculatePrice(DefaultConfig(), PriceInput{DIYCost: 0, Complexity: TierMedium})
	assert.Equal(t, KindInvalidInput, KindOf(err))

	_, err = CalculatePrice(DefaultConfig(), PriceInput{DIYCost: -10, Complexity: TierMedium})
	assert.Equal(t, KindInvalidInput, KindOf(err))

	_, err = CalculatePrice(DefaultConfig(), PriceInput{DIYCost: 1000, Complexity: "mega"})
	assert.Equal(t, KindInvalidInput, KindOf(err))
}

func TestCalculatePriceRejectsDIYTooSmallForPriceUnit(t *testing.T) {
	cfg := DefaultConfig()
	for _, diy := range []int64{1000, 2000} {
		_, err := CalculatePrice(cfg, PriceInput{DIYCost: diy, Complexity: TierMedium})
		require.Error(t, err, "diy=%d", diy)
		assert.Equal(t, KindInvalidInput, KindOf(err))
	}

	q, err := CalculatePrice(cfg, PriceInput{DIYCost: 8000, Complexity: TierMedium})
	require.NoError(t, err)
	assert.Equal(t, int64(3000), q.CorePrice)
	r, err := CheckConsistency(cfg, ConsistencyInput{Complexity: TierMedium, DIYCost: 8000, CorePrice: q.CorePrice})
	require.NoError(t, err)
	assert.True(t, r.IsConsistent)
}
