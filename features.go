package auditlog

import (
	"fmt"
	"time"
)

// ClaimFeatures is the fixed three-feature vector the fraud model scores a
// claim on. Field order is significant for the feature_vector form but not
// for the feature_hash, which hashes a canonical dictionary instead.
type ClaimFeatures struct {
	ClaimAmount  float64
	TimeOfDay    int
	LocationRisk float64
}

const (
	defaultTimeOfDay    = 12
	defaultLocationRisk = 0.5
)

// ExtractFeatures resolves ClaimFeatures out of a loosely-typed claim
// payload, accepting either the canonical field name or its alias for each
// feature, and falling back to a fixed default when neither is present.
// time_of_day additionally falls back to the hour component of an ISO 8601
// timestamp field ("timestamp") when no explicit time-of-day value is
// given.
func ExtractFeatures(claimData map[string]any) ClaimFeatures {
	return ClaimFeatures{
		ClaimAmount:  firstFloat(claimData, 0.0, "claim_am", "claim_amount"),
		TimeOfDay:    extractTimeOfDay(claimData),
		LocationRisk: firstFloat(claimData, defaultLocationRisk, "location_r", "location_risk"),
	}
}

// timestampLayouts are tried in order against the "timestamp" fallback
// field. Claim data may arrive either as an offset-aware RFC 3339 string or
// as a naive ISO 8601 string with no UTC offset at all (the form Python's
// datetime.fromisoformat accepts) — both must parse.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

func extractTimeOfDay(claimData map[string]any) int {
	for _, key := range []string{"time_of_c", "time_of_day"} {
		if v, ok := claimData[key]; ok {
			if f, ok := toFloat(v); ok {
				return int(f)
			}
		}
	}
	if v, ok := claimData["timestamp"]; ok {
		if s, ok := v.(string); ok {
			for _, layout := range timestampLayouts {
				if ts, err := time.Parse(layout, s); err == nil {
					return ts.UTC().Hour()
				}
			}
		}
	}
	return defaultTimeOfDay
}

func firstFloat(claimData map[string]any, fallback float64, keys ...string) float64 {
	for _, key := range keys {
		if v, ok := claimData[key]; ok {
			if f, ok := toFloat(v); ok {
				return f
			}
		}
	}
	return fallback
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// FeatureDict builds the canonical six-key dictionary that gets hashed
// into a feature_hash: both the canonical name and its alias are present
// for each feature, pointing at the same resolved value, so a verifier
// re-extracting features from raw claim data with either naming
// convention reproduces the same hash.
func (f ClaimFeatures) FeatureDict() map[string]any {
	return map[string]any{
		"claim_am":      f.ClaimAmount,
		"claim_amount":  f.ClaimAmount,
		"time_of_c":     f.TimeOfDay,
		"time_of_day":   f.TimeOfDay,
		"location_r":    f.LocationRisk,
		"location_risk": f.LocationRisk,
	}
}

// FeatureHash returns the SHA3-256 digest, hex-encoded, of the canonical
// JSON encoding of f.FeatureDict(). This is the feature_hash recorded
// alongside a fraud-model score and is what VerifyAIScore recomputes and
// compares against.
func (f ClaimFeatures) FeatureHash() (string, error) {
	encoded, err := CanonicalJSON(f.FeatureDict())
	if err != nil {
		return "", fmt.Errorf("encode feature dict: %w", err)
	}
	sum := HashData(encoded)
	return fmt.Sprintf("%x", sum), nil
}
