package auditlog

import (
	"context"
	"time"
)

// LogEntry is the persisted form of one claim-event record in the
// append-only log.
type LogEntry struct {
	ID          uint64
	ClaimID     string
	EventType   string
	Timestamp   time.Time
	PayloadHash [HashSize]byte
	ChainHash   [HashSize]byte
	ActorSig    []byte // optional, caller-supplied actor signature over the payload
	EpochID     string // epoch that was active when this entry was appended
}

// EpochState is the monotonic lifecycle state of one epoch's signing key.
type EpochState int

const (
	// EpochAbsent means no record exists yet for the epoch.
	EpochAbsent EpochState = iota
	// EpochActive means the epoch's key may currently be used to sign.
	EpochActive
	// EpochRetired means the epoch's key may no longer sign, but its
	// public key remains available for verifying past signatures.
	EpochRetired
)

// EpochKeyRecord is the persisted, public-only state of one epoch. Private
// keys are never stored; they are re-derived on demand from the master
// seed.
type EpochKeyRecord struct {
	EpochID   string
	PublicKey []byte // wire-encoded ML-DSA-65 public key
	State     EpochState
	CreatedAt time.Time
}

// Checkpoint is a signed commitment to the Merkle root of a contiguous,
// gapless range of log entries.
type Checkpoint struct {
	ID                uint64
	MerkleRoot        [HashSize]byte
	RangeMin          uint64
	RangeMax          uint64
	PrevCheckpointHash [HashSize]byte
	SignerEpochID     string
	Signature         []byte
	CreatedAt         time.Time
}

// Store is the persistence boundary the append-only log, checkpoint
// engine, and epoch key manager are all built against. A single process is
// expected to hold the only writer; see AppendOnlyLog and EpochKeyManager
// for the concurrency contract each operation assumes.
type Store interface {
	// AppendEntry persists entry. The caller guarantees entry.ID is
	// exactly one greater than the highest ID currently stored (or 1 if
	// the log is empty); implementations must reject anything else.
	AppendEntry(ctx context.Context, entry LogEntry) error

	// LastEntry returns the highest-ID entry in the log, or ok=false if
	// the log is empty.
	LastEntry(ctx context.Context) (entry LogEntry, ok bool, err error)

	// EntriesInRange returns entries with minID <= id <= maxID in
	// ascending id order.
	EntriesInRange(ctx context.Context, minID, maxID uint64) ([]LogEntry, error)

	// EntriesForClaim returns every entry recorded for claimID in
	// ascending id order.
	EntriesForClaim(ctx context.Context, claimID string) ([]LogEntry, error)

	// EntryByID returns a single entry, or ok=false if it does not exist.
	EntryByID(ctx context.Context, id uint64) (entry LogEntry, ok bool, err error)

	// LastCheckpoint returns the most recently created checkpoint, or
	// ok=false if none has ever been created.
	LastCheckpoint(ctx context.Context) (checkpoint Checkpoint, ok bool, err error)

	// AppendCheckpoint persists a new checkpoint. Implementations assign
	// and return the checkpoint's ID.
	AppendCheckpoint(ctx context.Context, checkpoint Checkpoint) (id uint64, err error)

	// CheckpointByID returns a single checkpoint, or ok=false if it does
	// not exist.
	CheckpointByID(ctx context.Context, id uint64) (checkpoint Checkpoint, ok bool, err error)

	// CheckpointCoveringEntry returns the checkpoint whose range includes
	// entryID, or ok=false if no checkpoint covers it yet.
	CheckpointCoveringEntry(ctx context.Context, entryID uint64) (checkpoint Checkpoint, ok bool, err error)

	// UpsertEpochKey creates or updates the public record for an epoch.
	UpsertEpochKey(ctx context.Context, record EpochKeyRecord) error

	// EpochKey returns the record for epochID, or ok=false if absent.
	EpochKey(ctx context.Context, epochID string) (record EpochKeyRecord, ok bool, err error)

	// ListEpochKeys returns every epoch record, optionally excluding
	// retired epochs, ordered by epoch id ascending.
	ListEpochKeys(ctx context.Context, includeRetired bool) ([]EpochKeyRecord, error)

	// Close releases any resources the store holds open.
	Close() error
}
