package auditlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFeaturesResolvesCanonicalNames(t *testing.T) {
	got := ExtractFeatures(map[string]any{
		"claim_amount": 1500.0,
		"time_of_day":  14,
		"location_risk": 0.9,
	})
	assert.Equal(t, ClaimFeatures{ClaimAmount: 1500.0, TimeOfDay: 14, LocationRisk: 0.9}, got)
}

func TestExtractFeaturesResolvesAliasNames(t *testing.T) {
	got := ExtractFeatures(map[string]any{
		"claim_am":   2200.0,
		"time_of_c":  8,
		"location_r": 0.1,
	})
	assert.Equal(t, ClaimFeatures{ClaimAmount: 2200.0, TimeOfDay: 8, LocationRisk: 0.1}, got)
}

func TestExtractFeaturesFallsBackToDefaults(t *testing.T) {
	got := ExtractFeatures(map[string]any{})
	assert.Equal(t, ClaimFeatures{ClaimAmount: 0.0, TimeOfDay: defaultTimeOfDay, LocationRisk: defaultLocationRisk}, got)
}

func TestExtractFeaturesTimeOfDayFallsBackToTimestampHour(t *testing.T) {
	got := ExtractFeatures(map[string]any{
		"timestamp": "2026-03-05T17:30:00Z",
	})
	assert.Equal(t, 17, got.TimeOfDay)
}

func TestExtractFeaturesTimeOfDayFallsBackToNaiveTimestampHour(t *testing.T) {
	got := ExtractFeatures(map[string]any{
		"claim_amount": 1.0,
		"timestamp":    "2025-10-15T23:30:00",
	})
	assert.Equal(t, 23, got.TimeOfDay)
}

func TestExtractFeaturesCanonicalNameWinsOverTimestampFallback(t *testing.T) {
	got := ExtractFeatures(map[string]any{
		"time_of_day": 3,
		"timestamp":   "2026-03-05T17:30:00Z",
	})
	assert.Equal(t, 3, got.TimeOfDay)
}

func TestFeatureDictContainsBothCanonicalAndAliasKeys(t *testing.T) {
	f := ClaimFeatures{ClaimAmount: 10, TimeOfDay: 9, LocationRisk: 0.4}
	dict := f.FeatureDict()
	assert.Len(t, dict, 6)
	assert.Equal(t, dict["claim_am"], dict["claim_amount"])
	assert.Equal(t, dict["time_of_c"], dict["time_of_day"])
	assert.Equal(t, dict["location_r"], dict["location_risk"])
}

func TestFeatureHashIsStableForEquivalentInput(t *testing.T) {
	a := ClaimFeatures{ClaimAmount: 500, TimeOfDay: 10, LocationRisk: 0.2}
	b := ExtractFeatures(map[string]any{"claim_am": 500.0, "time_of_c": 10, "location_r": 0.2})

	hashA, err := a.FeatureHash()
	require.NoError(t, err)
	hashB, err := b.FeatureHash()
	require.NoError(t, err)
	assert.Equal(t, hashA, hashB)
}

func TestFeatureHashChangesWithAmount(t *testing.T) {
	a := ClaimFeatures{ClaimAmount: 500, TimeOfDay: 10, LocationRisk: 0.2}
	b := ClaimFeatures{ClaimAmount: 501, TimeOfDay: 10, LocationRisk: 0.2}

	hashA, err := a.FeatureHash()
	require.NoError(t, err)
	hashB, err := b.FeatureHash()
	require.NoError(t, err)
	assert.NotEqual(t, hashA, hashB)
}
