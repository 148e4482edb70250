package auditlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AppendOnlyLog is the single-writer entry point for recording claim
// events. Exactly one AppendOnlyLog should be constructed per underlying
// Store in a running deployment (see the store's own locking for the
// multi-process case); within a process, Append serializes itself behind
// an internal mutex so concurrent callers never race on the chain tail,
// while reads (EntriesForClaim, EntryByID, ...) pass straight through to
// the store and may run concurrently with an in-flight append.
type AppendOnlyLog struct {
	mu     sync.Mutex
	store  Store
	log    *zap.Logger
	lastID uint64
	lastCH [HashSize]byte
	seeded bool
}

// NewAppendOnlyLog wraps store, reading its current tail so that the first
// Append call chains correctly even across process restarts.
func NewAppendOnlyLog(ctx context.Context, store Store, log *zap.Logger) (*AppendOnlyLog, error) {
	if log == nil {
		log = zap.NewNop()
	}
	l := &AppendOnlyLog{store: store, log: log}
	last, ok, err := store.LastEntry(ctx)
	if err != nil {
		return nil, fmt.Errorf("load log tail: %w", err)
	}
	if ok {
		l.lastID = last.ID
		l.lastCH = last.ChainHash
	} else {
		l.lastCH = GenesisHash()
	}
	l.seeded = true
	return l, nil
}

// Append validates, hashes, and persists one claim event. The returned
// LogEntry has its assigned ID, computed PayloadHash, and computed
// ChainHash filled in. actorSig is an optional signature the caller has
// already computed over the payload; it is stored and returned unverified,
// since verifying an actor's own signature is outside this log's scope.
func (l *AppendOnlyLog) Append(ctx context.Context, claimID, eventType string, payload any, actorSig []byte, epochID string) (LogEntry, error) {
	if claimID == "" {
		return LogEntry{}, fmt.Errorf("%w: claim_id must not be empty", ErrValidation)
	}
	if eventType == "" {
		return LogEntry{}, fmt.Errorf("%w: event_type must not be empty", ErrValidation)
	}

	payloadHash, err := PayloadHash(payload)
	if err != nil {
		return LogEntry{}, fmt.Errorf("%w: hash payload: %v", ErrValidation, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	entry := LogEntry{
		ID:          l.lastID + 1,
		ClaimID:     claimID,
		EventType:   eventType,
		Timestamp:   now,
		PayloadHash: payloadHash,
		ChainHash:   ChainHash(l.lastCH, payloadHash, now),
		ActorSig:    actorSig,
		EpochID:     epochID,
	}

	if err := l.store.AppendEntry(ctx, entry); err != nil {
		return LogEntry{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	l.lastID = entry.ID
	l.lastCH = entry.ChainHash

	l.log.Info("appended log entry",
		zap.Uint64("entry_id", entry.ID),
		zap.String("claim_id", entry.ClaimID),
		zap.String("event_type", entry.EventType),
	)

	return entry, nil
}

// Tail returns the id and chain hash of the most recently appended entry,
// or the genesis hash with id 0 if the log is empty.
func (l *AppendOnlyLog) Tail() (id uint64, chainHash [HashSize]byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastID, l.lastCH
}

// EntriesForClaim returns every entry recorded for claimID, oldest first.
func (l *AppendOnlyLog) EntriesForClaim(ctx context.Context, claimID string) ([]LogEntry, error) {
	return l.store.EntriesForClaim(ctx, claimID)
}

// EntryByID returns a single entry by its id.
func (l *AppendOnlyLog) EntryByID(ctx context.Context, id uint64) (LogEntry, error) {
	entry, ok, err := l.store.EntryByID(ctx, id)
	if err != nil {
		return LogEntry{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if !ok {
		return LogEntry{}, ErrEntryNotFound
	}
	return entry, nil
}
