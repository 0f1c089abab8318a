package proposal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckConsistencyPassesForFormulaPrice(t *testing.T) {
	r, err := CheckConsistency(DefaultConfig(), ConsistencyInput{Complexity: TierMedium, DIYCost: 252000, CorePrice: 93000})
	require.NoError(t, err)
	assert.True(t, r.IsConsistent)
	assert.Equal(t, 100, r.Score)
	assert.Equal(t, 0.37, r.ExpectedMultiplier)
	assert.Equal(t, int64(93000), r.ExpectedCorePrice)
	assert.Equal(t, 63, r.SavingsPercentage)
	assert.Empty(t, r.Issues)
	assert.NotNil(t, r.Issues)
	assert.Equal(t, "Advisory only: quoted values are reported unchanged.", r.Note)
}

func TestCheckConsistencyFlagsButDoesNotCorrect(t *testing.T) {
	in := ConsistencyInput{Complexity: TierMedium, DIYCost: 252000, CorePrice: 120000}
	r, err := CheckConsistency(DefaultConfig(), in)
	require.NoError(t, err)

	assert.False(t, r.IsConsistent)
	assert.Equal(t, 75, r.Score)
	require.Len(t, r.Issues, 1)
	assert.Equal(t, CheckMultiplierMatch, r.Issues[0].Check)
	assert.Equal(t, 0.4762, r.ActualMultiplier)
	assert.Equal(t, int64(93000), r.ExpectedCorePrice)
	assert.Equal(t, 52, r.SavingsPercentage)
	assert.Contains(t, r.Note, "core price of 93000")
	assert.Equal(t, int64(120000), in.CorePrice)

	again, err := CheckConsistency(DefaultConfig(), ConsistencyInput{Complexity: TierMedium, DIYCost: 252000, CorePrice: r.ExpectedCorePrice})
	require.NoError(t, err)
	assert.True(t, again.IsConsistent)
}

func TestCheckConsistencyToleranceIsStrict(t *testing.T) {
	cfg := DefaultConfig()
	r, err := CheckConsistency(cfg, ConsistencyInput{Complexity: TierMedium, DIYCost: 100000, CorePrice: 43000})
	require.NoError(t, err)
	assert.False(t, r.IsConsistent)

	r, err = CheckConsistency(cfg, ConsistencyInput{Complexity: TierMedium, DIYCost: 100000, CorePrice: 41000})
	require.NoError(t, err)
	assert.True(t, r.IsConsistent)
}

func TestCheckConsistencyComplianceExpectation(t *testing.T) {
	r, err := CheckConsistency(DefaultConfig(), ConsistencyInput{Complexity: TierEnterprise, ComplianceRequired: true, DIYCost: 100000, CorePrice: 44000})
	require.NoError(t, err)
	assert.Equal(t, 0.44, r.ExpectedMultiplier)
	assert.True(t, r.IsConsistent)
}

func TestCheckConsistencyStructuralIssues(t *testing.T) {
	backend, total := 165, 500
	components := int64(250000)
	r, err := CheckConsistency(DefaultConfig(), ConsistencyInput{
		Complexity:      TierMedium,
		DIYCost:         252000,
		CorePrice:       93500,
		BackendHours:    &backend,
		TotalHours:      &total,
		ComponentsTotal: &components,
	})
	require.NoError(t, err)
	assert.True(t, r.IsConsistent)
	assert.Equal(t, 25, r.Score)

	var checks []string
	for _, i := range r.Issues {
		checks = append(checks, i.Check)
	}
	assert.Equal(t, []string{CheckHoursRounding, CheckDIYIntegrity, CheckPriceRounding}, checks)
}

func TestCheckConsistencyRejectsBadInput(t *testing.T) {
	_, err := CheckConsistency(DefaultConfig(), ConsistencyInput{Complexity: TierMedium, DIYCost: 0, CorePrice: 10})
	assert.Equal(t, KindInvalidInput, KindOf(err))

	_, err = CheckConsistency(DefaultConfig(), ConsistencyInput{Complexity: TierMedium, DIYCost: 10, CorePrice: -1})
	assert.Equal(t, KindInvalidInput, KindOf(err))

	cfg := DefaultConfig()
	cfg.Rounding.PriceUnit = 0
	_, err = CheckConsistency(cfg, ConsistencyInput{Complexity: TierMedium, DIYCost: 10, CorePrice: 1})
	assert.Equal(t, KindConfiguration, KindOf(err))
}

func TestCheckConsistencyAcceptsItsOwnFormulaPriceForSmallDIY(t *testing.T) {
	cfg := DefaultConfig()
	for _, diy := range []int64{1000, 2000, 5000, 8000, 13500} {
		r, err := CheckConsistency(cfg, ConsistencyInput{Complexity: TierMedium, DIYCost: diy, CorePrice: 0})
		require.NoError(t, err)

		again, err := CheckConsistency(cfg, ConsistencyInput{Complexity: TierMedium, DIYCost: diy, CorePrice: r.ExpectedCorePrice})
		require.NoError(t, err)
		assert.True(t, again.IsConsistent, "diy=%d expected core=%d", diy, r.ExpectedCorePrice)
	}

	r, err := CheckConsistency(cfg, ConsistencyInput{Complexity: TierMedium, DIYCost: 2000, CorePrice: 5000})
	require.NoError(t, err)
	assert.False(t, r.IsConsistent)
}
