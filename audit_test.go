package auditlog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupVerifier(t *testing.T, n int, seedFill byte) (*memStore, *AuditVerifier, *CheckpointEngine, []LogEntry) {
	t.Helper()
	store, _, entries := setupLogWithEntries(t, n)
	ctx := context.Background()
	epochs := NewEpochKeyManager(store, testMasterSeed(t, seedFill), nil)
	engine := NewCheckpointEngine(store, epochs, nil)
	verifier := NewAuditVerifier(store, epochs, engine)
	_, err := engine.Generate(ctx)
	require.NoError(t, err)
	return store, verifier, engine, entries
}

func TestVerifyCheckpointReportsValidForUntamperedLog(t *testing.T) {
	_, verifier, _, _ := setupVerifier(t, 4, 0x20)
	result, err := verifier.VerifyCheckpoint(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.ChainIssues)
}

func TestVerifyCheckpointReportsNotFoundForUnknownID(t *testing.T) {
	_, verifier, _, _ := setupVerifier(t, 2, 0x21)
	result, err := verifier.VerifyCheckpoint(context.Background(), 999)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "checkpoint not found", result.Message)
}

func TestVerifyCheckpointDetectsTamperedEntry(t *testing.T) {
	store, verifier, _, entries := setupVerifier(t, 4, 0x22)
	ctx := context.Background()

	tampered := entries[2]
	tampered.ChainHash = HashData([]byte("tampered"))
	for i := range store.entries {
		if store.entries[i].ID == tampered.ID {
			store.entries[i] = tampered
		}
	}

	result, err := verifier.VerifyCheckpoint(ctx, 1)
	require.NoError(t, err)
	assert.False(t, result.Valid)
}

func TestProveInclusionProducesVerifiableProof(t *testing.T) {
	_, verifier, _, entries := setupVerifier(t, 6, 0x23)
	ctx := context.Background()

	for _, e := range entries {
		proof, err := verifier.ProveInclusion(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, e.ID, proof.EntryID)
		assert.NotEmpty(t, proof.MerkleRoot)
	}
}

func TestProveInclusionErrorsForUncoveredEntry(t *testing.T) {
	store, _, entries := setupLogWithEntries(t, 3)
	ctx := context.Background()
	epochs := NewEpochKeyManager(store, testMasterSeed(t, 0x24), nil)
	engine := NewCheckpointEngine(store, epochs, nil)
	verifier := NewAuditVerifier(store, epochs, engine)
	// no checkpoint generated yet
	_, err := verifier.ProveInclusion(ctx, entries[0].ID)
	assert.ErrorIs(t, err, ErrCheckpointNotFound)
}

func TestVerifyAIScoreMatchesPayloadHash(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	log, err := NewAppendOnlyLog(ctx, store, nil)
	require.NoError(t, err)
	epochs := NewEpochKeyManager(store, testMasterSeed(t, 0x25), nil)
	engine := NewCheckpointEngine(store, epochs, nil)
	verifier := NewAuditVerifier(store, epochs, engine)

	payload := map[string]any{"score": 0.87, "claim_id": "claim-1"}
	entry, err := log.Append(ctx, "claim-1", "fraud_score", payload, nil, "2026-03-05")
	require.NoError(t, err)

	result, err := verifier.VerifyAIScore(ctx, entry.ID, payload)
	require.NoError(t, err)
	assert.True(t, result.PayloadHashMatch)
	assert.True(t, result.Valid)
}

func TestVerifyAIScoreRejectsMismatchedPayload(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	log, err := NewAppendOnlyLog(ctx, store, nil)
	require.NoError(t, err)
	epochs := NewEpochKeyManager(store, testMasterSeed(t, 0x26), nil)
	engine := NewCheckpointEngine(store, epochs, nil)
	verifier := NewAuditVerifier(store, epochs, engine)

	entry, err := log.Append(ctx, "claim-1", "fraud_score", map[string]any{"score": 0.5}, nil, "2026-03-05")
	require.NoError(t, err)

	result, err := verifier.VerifyAIScore(ctx, entry.ID, map[string]any{"score": 0.9})
	require.NoError(t, err)
	assert.False(t, result.PayloadHashMatch)
	assert.False(t, result.Valid)
}

func TestVerifyAIScoreChecksFeatureHashWhenPresent(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	log, err := NewAppendOnlyLog(ctx, store, nil)
	require.NoError(t, err)
	epochs := NewEpochKeyManager(store, testMasterSeed(t, 0x27), nil)
	engine := NewCheckpointEngine(store, epochs, nil)
	verifier := NewAuditVerifier(store, epochs, engine)

	claim := map[string]any{"claim_amount": 1200.0, "time_of_day": 9, "location_risk": 0.3}
	featureHash, err := ExtractFeatures(claim).FeatureHash()
	require.NoError(t, err)

	payload := map[string]any{
		"score":          0.76,
		"original_claim": claim,
		"feature_hash":   featureHash,
	}
	entry, err := log.Append(ctx, "claim-1", "fraud_score", payload, nil, "2026-03-05")
	require.NoError(t, err)

	result, err := verifier.VerifyAIScore(ctx, entry.ID, payload)
	require.NoError(t, err)
	assert.True(t, result.FeatureHashMatch)
	assert.True(t, result.Valid)
}

func TestVerifyAIScoreReturnsModelVersionAndFraudScore(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	log, err := NewAppendOnlyLog(ctx, store, nil)
	require.NoError(t, err)
	epochs := NewEpochKeyManager(store, testMasterSeed(t, 0x29), nil)
	engine := NewCheckpointEngine(store, epochs, nil)
	verifier := NewAuditVerifier(store, epochs, engine)

	payload := map[string]any{
		"model_version": "model_v1",
		"fraud_score":   0.82,
	}
	entry, err := log.Append(ctx, "claim-1", "fraud_score", payload, nil, "2026-03-05")
	require.NoError(t, err)

	result, err := verifier.VerifyAIScore(ctx, entry.ID, payload)
	require.NoError(t, err)
	assert.Equal(t, "model_v1", result.ModelVersion)
	assert.Equal(t, 0.82, result.FraudScore)
}

func TestVerifyAIScoreDetectsTamperedFeatureHash(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	log, err := NewAppendOnlyLog(ctx, store, nil)
	require.NoError(t, err)
	epochs := NewEpochKeyManager(store, testMasterSeed(t, 0x28), nil)
	engine := NewCheckpointEngine(store, epochs, nil)
	verifier := NewAuditVerifier(store, epochs, engine)

	claim := map[string]any{"claim_amount": 1200.0, "time_of_day": 9, "location_risk": 0.3}
	payload := map[string]any{
		"score":          0.76,
		"original_claim": claim,
		"feature_hash":   "deadbeef",
	}
	entry, err := log.Append(ctx, "claim-1", "fraud_score", payload, nil, "2026-03-05")
	require.NoError(t, err)

	result, err := verifier.VerifyAIScore(ctx, entry.ID, payload)
	require.NoError(t, err)
	assert.False(t, result.FeatureHashMatch)
	assert.False(t, result.Valid)
}

func TestVerifyChainReportsValidForUntamperedLog(t *testing.T) {
	_, verifier, _, entries := setupVerifier(t, 5, 0x2a)
	result, err := verifier.VerifyChain(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.ChainIssues)
	assert.Equal(t, entries[len(entries)-1].ID, result.ToID)
}

func TestVerifyChainDetectsTamperedEntry(t *testing.T) {
	store, verifier, _, entries := setupVerifier(t, 5, 0x2b)
	ctx := context.Background()

	tampered := entries[2]
	tampered.ChainHash = HashData([]byte("tampered"))
	for i := range store.entries {
		if store.entries[i].ID == tampered.ID {
			store.entries[i] = tampered
		}
	}

	result, err := verifier.VerifyChain(ctx, 1, 0)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.Len(t, result.ChainIssues, 1)
	assert.Equal(t, tampered.ID, result.ChainIssues[0].EntryID)
}

func TestVerifyChainCoversArbitrarySubrange(t *testing.T) {
	_, verifier, _, entries := setupVerifier(t, 5, 0x2c)
	ctx := context.Background()

	result, err := verifier.VerifyChain(ctx, entries[1].ID, entries[3].ID)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, entries[1].ID, result.FromID)
	assert.Equal(t, entries[3].ID, result.ToID)
}

func TestVerifyChainReportsEmptyLog(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	epochs := NewEpochKeyManager(store, testMasterSeed(t, 0x2d), nil)
	engine := NewCheckpointEngine(store, epochs, nil)
	verifier := NewAuditVerifier(store, epochs, engine)

	result, err := verifier.VerifyChain(ctx, 1, 0)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, "log is empty", result.Message)
}
