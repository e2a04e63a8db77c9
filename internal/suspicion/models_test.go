package suspicion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRiskLevelForScore(t *testing.T) {
	tests := []struct {
		score    float64
		expected RiskLevel
	}{
		{0, RiskLow},
		{29.9, RiskLow},
		{30, RiskMedium},
		{49.9, RiskMedium},
		{50, RiskHigh},
		{69.9, RiskHigh},
		{70, RiskCritical},
		{100, RiskCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, RiskLevelForScore(tt.score), "score %.1f", tt.score)
	}
}

func TestRiskLevelRank_Ordering(t *testing.T) {
	assert.Less(t, RiskLow.Rank(), RiskMedium.Rank())
	assert.Less(t, RiskMedium.Rank(), RiskHigh.Rank())
	assert.Less(t, RiskHigh.Rank(), RiskCritical.Rank())
}

func TestWeightFor_Catalogue(t *testing.T) {
	assert.Equal(t, 40.0, WeightFor(MethodDeviceMatch))
	assert.Equal(t, 30.0, WeightFor(MethodIPMatch))
	assert.Equal(t, 35.0, WeightFor(MethodIPBrowserMatch))
	assert.Equal(t, 30.0, WeightFor(MethodSamePayment))
	assert.Equal(t, 35.0, WeightFor(MethodMirrorTrading))
	assert.Equal(t, 10.0, WeightFor(MethodTimezoneLanguage))
	assert.Equal(t, 0.0, WeightFor(ScoreMethod("unknown")))
}

func TestContributionResult_TierDerivation(t *testing.T) {
	// Raw sums above the cap still map to the capped tier.
	r := &ContributionResult{RawBefore: 110, RawAfter: 140, TotalScore: 100}
	assert.Equal(t, RiskCritical, r.PreviousLevel())
	assert.Equal(t, RiskCritical, r.NewLevel())

	r = &ContributionResult{RawBefore: 40, RawAfter: 70, TotalScore: 70}
	assert.Equal(t, RiskMedium, r.PreviousLevel())
	assert.Equal(t, RiskCritical, r.NewLevel())
}
