package auditlog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendOnlyLogAssignsGaplessIDs(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	log, err := NewAppendOnlyLog(ctx, store, nil)
	require.NoError(t, err)

	e1, err := log.Append(ctx, "claim-1", "claim_opened", map[string]any{"amount": 100.0}, nil, "2026-03-05")
	require.NoError(t, err)
	e2, err := log.Append(ctx, "claim-1", "note_added", map[string]any{"note": "x"}, nil, "2026-03-05")
	require.NoError(t, err)

	assert.Equal(t, uint64(1), e1.ID)
	assert.Equal(t, uint64(2), e2.ID)
}

func TestAppendOnlyLogChainsEntries(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	log, err := NewAppendOnlyLog(ctx, store, nil)
	require.NoError(t, err)

	e1, err := log.Append(ctx, "claim-1", "claim_opened", map[string]any{"amount": 100.0}, nil, "2026-03-05")
	require.NoError(t, err)
	e2, err := log.Append(ctx, "claim-1", "note_added", map[string]any{"note": "x"}, nil, "2026-03-05")
	require.NoError(t, err)

	want := ChainHash(e1.ChainHash, e2.PayloadHash, e2.Timestamp)
	assert.Equal(t, want, e2.ChainHash)

	_, issues := VerifyEntryChain([]LogEntry{e1, e2}, 0, GenesisHash())
	assert.Empty(t, issues)
}

func TestAppendOnlyLogRejectsEmptyClaimID(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	log, err := NewAppendOnlyLog(ctx, store, nil)
	require.NoError(t, err)

	_, err = log.Append(ctx, "", "claim_opened", map[string]any{}, nil, "2026-03-05")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAppendOnlyLogRejectsEmptyEventType(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	log, err := NewAppendOnlyLog(ctx, store, nil)
	require.NoError(t, err)

	_, err = log.Append(ctx, "claim-1", "", map[string]any{}, nil, "2026-03-05")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAppendOnlyLogResumesTailAcrossRestart(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	first, err := NewAppendOnlyLog(ctx, store, nil)
	require.NoError(t, err)
	e1, err := first.Append(ctx, "claim-1", "claim_opened", map[string]any{}, nil, "2026-03-05")
	require.NoError(t, err)

	second, err := NewAppendOnlyLog(ctx, store, nil)
	require.NoError(t, err)
	e2, err := second.Append(ctx, "claim-1", "note_added", map[string]any{}, nil, "2026-03-05")
	require.NoError(t, err)

	assert.Equal(t, uint64(2), e2.ID)
	want := ChainHash(e1.ChainHash, e2.PayloadHash, e2.Timestamp)
	assert.Equal(t, want, e2.ChainHash)
}

func TestEntryByIDReturnsNotFound(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	log, err := NewAppendOnlyLog(ctx, store, nil)
	require.NoError(t, err)

	_, err = log.EntryByID(ctx, 999)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestEntriesForClaimFiltersByClaimID(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	log, err := NewAppendOnlyLog(ctx, store, nil)
	require.NoError(t, err)

	_, err = log.Append(ctx, "claim-1", "claim_opened", map[string]any{}, nil, "2026-03-05")
	require.NoError(t, err)
	_, err = log.Append(ctx, "claim-2", "claim_opened", map[string]any{}, nil, "2026-03-05")
	require.NoError(t, err)
	_, err = log.Append(ctx, "claim-1", "note_added", map[string]any{}, nil, "2026-03-05")
	require.NoError(t, err)

	entries, err := log.EntriesForClaim(ctx, "claim-1")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
