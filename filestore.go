package auditlog

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// fileStore is a POSIX-file-backed Store for single-box deployments that
// do not want a SQLite dependency. Entries and checkpoints are each
// appended as a length-prefixed gob record to their own file; epoch key
// records are few enough in practice that the whole table is kept in
// memory and rewritten on every update. The entries and checkpoints files
// are opened O_APPEND for writes so a crash mid-write can at worst leave a
// truncated final record, which Open detects and discards.
type fileStore struct {
	mu sync.Mutex

	entriesPath     string
	checkpointsPath string
	epochKeysPath   string

	entriesFile     *os.File
	checkpointsFile *os.File

	entries     []LogEntry
	checkpoints []Checkpoint
	epochKeys   map[string]EpochKeyRecord
}

// OpenFileStore opens (creating if necessary) a directory-based Store at
// dir, replaying its three record files into memory.
func OpenFileStore(dir string) (Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	fs := &fileStore{
		entriesPath:     filepath.Join(dir, "entries.log"),
		checkpointsPath: filepath.Join(dir, "checkpoints.log"),
		epochKeysPath:   filepath.Join(dir, "epoch_keys.gob"),
		epochKeys:       make(map[string]EpochKeyRecord),
	}

	var err error
	fs.entries, err = replayRecords[LogEntry](fs.entriesPath)
	if err != nil {
		return nil, fmt.Errorf("replay entries: %w", err)
	}
	fs.checkpoints, err = replayRecords[Checkpoint](fs.checkpointsPath)
	if err != nil {
		return nil, fmt.Errorf("replay checkpoints: %w", err)
	}
	if err := fs.loadEpochKeys(); err != nil {
		return nil, fmt.Errorf("load epoch keys: %w", err)
	}

	fs.entriesFile, err = os.OpenFile(fs.entriesPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	fs.checkpointsFile, err = os.OpenFile(fs.checkpointsPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		_ = fs.entriesFile.Close()
		return nil, err
	}

	return fs, nil
}

func (fs *fileStore) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	err1 := fs.entriesFile.Close()
	err2 := fs.checkpointsFile.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// replayRecords reads every length-prefixed gob record from path. A
// record whose declared length runs past the end of the file is treated
// as a torn write from an unclean shutdown and silently dropped, along
// with everything after it could only be equally torn.
func replayRecords[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []T
	offset := 0
	for offset < len(data) {
		if offset+4 > len(data) {
			break
		}
		length := binary.BigEndian.Uint32(data[offset : offset+4])
		offset += 4
		if offset+int(length) > len(data) {
			break
		}
		var rec T
		if err := gob.NewDecoder(bytes.NewReader(data[offset : offset+int(length)])).Decode(&rec); err != nil {
			break
		}
		out = append(out, rec)
		offset += int(length)
	}
	return out, nil
}

func appendRecord[T any](f *os.File, rec T) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return err
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(buf.Len()))
	if _, err := f.Write(header[:]); err != nil {
		return err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return err
	}
	return f.Sync()
}

func (fs *fileStore) AppendEntry(_ context.Context, entry LogEntry) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var lastID uint64
	if n := len(fs.entries); n > 0 {
		lastID = fs.entries[n-1].ID
	}
	if entry.ID != lastID+1 {
		return fmt.Errorf("non-contiguous append: have %d, got %d", lastID, entry.ID)
	}

	if err := appendRecord(fs.entriesFile, entry); err != nil {
		return err
	}
	fs.entries = append(fs.entries, entry)
	return nil
}

func (fs *fileStore) LastEntry(_ context.Context) (LogEntry, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.entries) == 0 {
		return LogEntry{}, false, nil
	}
	return fs.entries[len(fs.entries)-1], true, nil
}

func (fs *fileStore) EntryByID(_ context.Context, id uint64) (LogEntry, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if id == 0 || id > uint64(len(fs.entries)) {
		return LogEntry{}, false, nil
	}
	return fs.entries[id-1], true, nil
}

func (fs *fileStore) EntriesInRange(_ context.Context, minID, maxID uint64) ([]LogEntry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var out []LogEntry
	for _, e := range fs.entries {
		if e.ID >= minID && e.ID <= maxID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (fs *fileStore) EntriesForClaim(_ context.Context, claimID string) ([]LogEntry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var out []LogEntry
	for _, e := range fs.entries {
		if e.ClaimID == claimID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (fs *fileStore) LastCheckpoint(_ context.Context) (Checkpoint, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.checkpoints) == 0 {
		return Checkpoint{}, false, nil
	}
	return fs.checkpoints[len(fs.checkpoints)-1], true, nil
}

func (fs *fileStore) AppendCheckpoint(_ context.Context, cp Checkpoint) (uint64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	cp.ID = uint64(len(fs.checkpoints)) + 1
	if err := appendRecord(fs.checkpointsFile, cp); err != nil {
		return 0, err
	}
	fs.checkpoints = append(fs.checkpoints, cp)
	return cp.ID, nil
}

func (fs *fileStore) CheckpointByID(_ context.Context, id uint64) (Checkpoint, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if id == 0 || id > uint64(len(fs.checkpoints)) {
		return Checkpoint{}, false, nil
	}
	return fs.checkpoints[id-1], true, nil
}

func (fs *fileStore) CheckpointCoveringEntry(_ context.Context, entryID uint64) (Checkpoint, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, cp := range fs.checkpoints {
		if entryID >= cp.RangeMin && entryID <= cp.RangeMax {
			return cp, true, nil
		}
	}
	return Checkpoint{}, false, nil
}

func (fs *fileStore) loadEpochKeys() error {
	data, err := os.ReadFile(fs.epochKeysPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var records []EpochKeyRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&records); err != nil {
		if err.Error() == "EOF" {
			return nil
		}
		return err
	}
	for _, r := range records {
		fs.epochKeys[r.EpochID] = r
	}
	return nil
}

// persistEpochKeys rewrites the whole epoch key table. Epoch keys are
// created or retired at most a few times a day, so a full rewrite per
// change is simpler than an append log and never a performance concern.
func (fs *fileStore) persistEpochKeys() error {
	records := make([]EpochKeyRecord, 0, len(fs.epochKeys))
	for _, r := range fs.epochKeys {
		records = append(records, r)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(records); err != nil {
		return err
	}
	return os.WriteFile(fs.epochKeysPath, buf.Bytes(), 0o644)
}

func (fs *fileStore) UpsertEpochKey(_ context.Context, record EpochKeyRecord) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.epochKeys[record.EpochID] = record
	return fs.persistEpochKeys()
}

func (fs *fileStore) EpochKey(_ context.Context, epochID string) (EpochKeyRecord, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	r, ok := fs.epochKeys[epochID]
	return r, ok, nil
}

func (fs *fileStore) ListEpochKeys(_ context.Context, includeRetired bool) ([]EpochKeyRecord, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var out []EpochKeyRecord
	for _, r := range fs.epochKeys {
		if !includeRetired && r.State == EpochRetired {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EpochID < out[j].EpochID })
	return out, nil
}
