package auditlog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLogWithEntries(t *testing.T, n int) (*memStore, *AppendOnlyLog, []LogEntry) {
	t.Helper()
	store := newMemStore()
	ctx := context.Background()
	log, err := NewAppendOnlyLog(ctx, store, nil)
	require.NoError(t, err)

	var entries []LogEntry
	for i := 0; i < n; i++ {
		e, err := log.Append(ctx, "claim-1", "note_added", map[string]any{"i": i}, nil, "2026-03-05")
		require.NoError(t, err)
		entries = append(entries, e)
	}
	return store, log, entries
}

func TestGenerateCheckpointSealsAllUnsealedEntries(t *testing.T) {
	store, _, entries := setupLogWithEntries(t, 5)
	ctx := context.Background()
	epochs := NewEpochKeyManager(store, testMasterSeed(t, 0x10), nil)
	engine := NewCheckpointEngine(store, epochs, nil)

	cp, err := engine.Generate(ctx)
	require.NoError(t, err)
	assert.Equal(t, entries[0].ID, cp.RangeMin)
	assert.Equal(t, entries[len(entries)-1].ID, cp.RangeMax)
	assert.Equal(t, CheckpointGenesisHash(), cp.PrevCheckpointHash)

	leaves := make([][HashSize]byte, len(entries))
	for i, e := range entries {
		leaves[i] = e.ChainHash
	}
	assert.Equal(t, BuildMerkleTree(leaves), cp.MerkleRoot)
}

func TestGenerateCheckpointErrorsWhenNothingNewToSeal(t *testing.T) {
	store, _, _ := setupLogWithEntries(t, 3)
	ctx := context.Background()
	epochs := NewEpochKeyManager(store, testMasterSeed(t, 0x11), nil)
	engine := NewCheckpointEngine(store, epochs, nil)

	_, err := engine.Generate(ctx)
	require.NoError(t, err)

	_, err = engine.Generate(ctx)
	assert.ErrorIs(t, err, ErrNoEntriesToCheckpoint)
}

func TestGenerateCheckpointChainsToPreviousCheckpoint(t *testing.T) {
	store, _, log := setupLogWithEntries(t, 2)
	ctx := context.Background()
	epochs := NewEpochKeyManager(store, testMasterSeed(t, 0x12), nil)
	engine := NewCheckpointEngine(store, epochs, nil)

	first, err := engine.Generate(ctx)
	require.NoError(t, err)

	appendLog, err := NewAppendOnlyLog(ctx, store, nil)
	require.NoError(t, err)
	_, err = appendLog.Append(ctx, "claim-1", "note_added", map[string]any{"i": 99}, nil, "2026-03-05")
	require.NoError(t, err)
	_ = log

	second, err := engine.Generate(ctx)
	require.NoError(t, err)

	assert.Equal(t, checkpointChainHash(first), second.PrevCheckpointHash)
}

func TestVerifyCheckpointSignatureAcceptsValidSignature(t *testing.T) {
	store, _, _ := setupLogWithEntries(t, 3)
	ctx := context.Background()
	epochs := NewEpochKeyManager(store, testMasterSeed(t, 0x13), nil)
	engine := NewCheckpointEngine(store, epochs, nil)

	cp, err := engine.Generate(ctx)
	require.NoError(t, err)

	valid, err := engine.VerifyCheckpointSignature(ctx, cp)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestVerifyCheckpointSignatureRejectsTamperedRoot(t *testing.T) {
	store, _, _ := setupLogWithEntries(t, 3)
	ctx := context.Background()
	epochs := NewEpochKeyManager(store, testMasterSeed(t, 0x14), nil)
	engine := NewCheckpointEngine(store, epochs, nil)

	cp, err := engine.Generate(ctx)
	require.NoError(t, err)

	cp.MerkleRoot = HashData([]byte("tampered root"))
	valid, err := engine.VerifyCheckpointSignature(ctx, cp)
	require.NoError(t, err)
	assert.False(t, valid)
}
