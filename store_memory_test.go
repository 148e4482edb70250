package auditlog

import (
	"context"
	"sort"
	"sync"
)

// memStore is an in-memory Store used only by this package's tests. It
// implements the same contiguous-id and lookup semantics as sqliteStore
// and fileStore without needing a filesystem.
type memStore struct {
	mu          sync.Mutex
	entries     []LogEntry
	checkpoints []Checkpoint
	epochKeys   map[string]EpochKeyRecord
}

func newMemStore() *memStore {
	return &memStore{epochKeys: make(map[string]EpochKeyRecord)}
}

func (m *memStore) Close() error { return nil }

func (m *memStore) AppendEntry(_ context.Context, entry LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var lastID uint64
	if n := len(m.entries); n > 0 {
		lastID = m.entries[n-1].ID
	}
	if entry.ID != lastID+1 {
		return errNonContiguous
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memStore) LastEntry(_ context.Context) (LogEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == 0 {
		return LogEntry{}, false, nil
	}
	return m.entries[len(m.entries)-1], true, nil
}

func (m *memStore) EntryByID(_ context.Context, id uint64) (LogEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			return e, true, nil
		}
	}
	return LogEntry{}, false, nil
}

func (m *memStore) EntriesInRange(_ context.Context, minID, maxID uint64) ([]LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []LogEntry
	for _, e := range m.entries {
		if e.ID >= minID && e.ID <= maxID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) EntriesForClaim(_ context.Context, claimID string) ([]LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []LogEntry
	for _, e := range m.entries {
		if e.ClaimID == claimID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) LastCheckpoint(_ context.Context) (Checkpoint, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.checkpoints) == 0 {
		return Checkpoint{}, false, nil
	}
	return m.checkpoints[len(m.checkpoints)-1], true, nil
}

func (m *memStore) AppendCheckpoint(_ context.Context, cp Checkpoint) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp.ID = uint64(len(m.checkpoints)) + 1
	m.checkpoints = append(m.checkpoints, cp)
	return cp.ID, nil
}

func (m *memStore) CheckpointByID(_ context.Context, id uint64) (Checkpoint, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == 0 || id > uint64(len(m.checkpoints)) {
		return Checkpoint{}, false, nil
	}
	return m.checkpoints[id-1], true, nil
}

func (m *memStore) CheckpointCoveringEntry(_ context.Context, entryID uint64) (Checkpoint, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cp := range m.checkpoints {
		if entryID >= cp.RangeMin && entryID <= cp.RangeMax {
			return cp, true, nil
		}
	}
	return Checkpoint{}, false, nil
}

func (m *memStore) UpsertEpochKey(_ context.Context, record EpochKeyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epochKeys[record.EpochID] = record
	return nil
}

func (m *memStore) EpochKey(_ context.Context, epochID string) (EpochKeyRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.epochKeys[epochID]
	return r, ok, nil
}

func (m *memStore) ListEpochKeys(_ context.Context, includeRetired bool) ([]EpochKeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []EpochKeyRecord
	for _, r := range m.epochKeys {
		if !includeRetired && r.State == EpochRetired {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EpochID < out[j].EpochID })
	return out, nil
}

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

const errNonContiguous = sentinelError("non-contiguous append")
