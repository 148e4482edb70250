package auditlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

type sqliteStore struct{ db *sql.DB }

// OpenSQLiteStore opens (creating if necessary) a SQLite-backed Store at
// dsn, applying the same WAL/serializable PRAGMA set every writer in this
// package expects: a single append/checkpoint writer and any number of
// concurrent readers.
func OpenSQLiteStore(dsn string) (Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	const schema = `
CREATE TABLE IF NOT EXISTS entries (
  id           INTEGER PRIMARY KEY,
  claim_id     TEXT    NOT NULL,
  event_type   TEXT    NOT NULL,
  ts           INTEGER NOT NULL,
  payload_hash BLOB    NOT NULL,
  chain_hash   BLOB    NOT NULL,
  actor_sig    BLOB,
  epoch_id     TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS entries_claim_ts ON entries(claim_id, ts);
CREATE INDEX IF NOT EXISTS entries_event_type ON entries(event_type);

CREATE TABLE IF NOT EXISTS checkpoints (
  id                   INTEGER PRIMARY KEY,
  merkle_root          BLOB    NOT NULL,
  range_min            INTEGER NOT NULL,
  range_max            INTEGER NOT NULL,
  prev_checkpoint_hash BLOB    NOT NULL,
  signer_epoch_id      TEXT    NOT NULL,
  signature            BLOB    NOT NULL,
  created_at           INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS checkpoints_created_at ON checkpoints(created_at);
CREATE INDEX IF NOT EXISTS checkpoints_range ON checkpoints(range_min, range_max);

CREATE TABLE IF NOT EXISTS epoch_keys (
  epoch_id    TEXT PRIMARY KEY,
  public_key  BLOB    NOT NULL,
  state       INTEGER NOT NULL,
  created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS epoch_keys_state ON epoch_keys(state);
`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) AppendEntry(ctx context.Context, entry LogEntry) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var maxID sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(id) FROM entries`).Scan(&maxID); err != nil {
		return err
	}
	if uint64(maxID.Int64) != entry.ID-1 {
		return fmt.Errorf("non-contiguous append: have max id %d, got %d", maxID.Int64, entry.ID)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO entries(id, claim_id, event_type, ts, payload_hash, chain_hash, actor_sig, epoch_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ClaimID, entry.EventType, entry.Timestamp.UnixMicro(),
		entry.PayloadHash[:], entry.ChainHash[:], nullableBytes(entry.ActorSig), entry.EpochID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *sqliteStore) LastEntry(ctx context.Context) (LogEntry, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, claim_id, event_type, ts, payload_hash, chain_hash, actor_sig, epoch_id
		 FROM entries ORDER BY id DESC LIMIT 1`)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return LogEntry{}, false, nil
	}
	if err != nil {
		return LogEntry{}, false, err
	}
	return entry, true, nil
}

func (s *sqliteStore) EntryByID(ctx context.Context, id uint64) (LogEntry, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, claim_id, event_type, ts, payload_hash, chain_hash, actor_sig, epoch_id
		 FROM entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return LogEntry{}, false, nil
	}
	if err != nil {
		return LogEntry{}, false, err
	}
	return entry, true, nil
}

func (s *sqliteStore) EntriesInRange(ctx context.Context, minID, maxID uint64) ([]LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, claim_id, event_type, ts, payload_hash, chain_hash, actor_sig, epoch_id
		 FROM entries WHERE id >= ? AND id <= ? ORDER BY id ASC`, minID, maxID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *sqliteStore) EntriesForClaim(ctx context.Context, claimID string) ([]LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, claim_id, event_type, ts, payload_hash, chain_hash, actor_sig, epoch_id
		 FROM entries WHERE claim_id = ? ORDER BY id ASC`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *sqliteStore) LastCheckpoint(ctx context.Context) (Checkpoint, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, merkle_root, range_min, range_max, prev_checkpoint_hash, signer_epoch_id, signature, created_at
		 FROM checkpoints ORDER BY id DESC LIMIT 1`)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, err
	}
	return cp, true, nil
}

func (s *sqliteStore) AppendCheckpoint(ctx context.Context, cp Checkpoint) (uint64, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints(merkle_root, range_min, range_max, prev_checkpoint_hash, signer_epoch_id, signature, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cp.MerkleRoot[:], cp.RangeMin, cp.RangeMax, cp.PrevCheckpointHash[:], cp.SignerEpochID, cp.Signature, cp.CreatedAt.UnixMicro())
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (s *sqliteStore) CheckpointByID(ctx context.Context, id uint64) (Checkpoint, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, merkle_root, range_min, range_max, prev_checkpoint_hash, signer_epoch_id, signature, created_at
		 FROM checkpoints WHERE id = ?`, id)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, err
	}
	return cp, true, nil
}

func (s *sqliteStore) CheckpointCoveringEntry(ctx context.Context, entryID uint64) (Checkpoint, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, merkle_root, range_min, range_max, prev_checkpoint_hash, signer_epoch_id, signature, created_at
		 FROM checkpoints WHERE range_min <= ? AND range_max >= ? ORDER BY id ASC LIMIT 1`, entryID, entryID)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, err
	}
	return cp, true, nil
}

func (s *sqliteStore) UpsertEpochKey(ctx context.Context, record EpochKeyRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO epoch_keys(epoch_id, public_key, state, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(epoch_id) DO UPDATE SET public_key=excluded.public_key, state=excluded.state`,
		record.EpochID, record.PublicKey, int(record.State), record.CreatedAt.UnixMicro())
	return err
}

func (s *sqliteStore) EpochKey(ctx context.Context, epochID string) (EpochKeyRecord, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT epoch_id, public_key, state, created_at FROM epoch_keys WHERE epoch_id = ?`, epochID)
	record, err := scanEpochKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return EpochKeyRecord{}, false, nil
	}
	if err != nil {
		return EpochKeyRecord{}, false, err
	}
	return record, true, nil
}

func (s *sqliteStore) ListEpochKeys(ctx context.Context, includeRetired bool) ([]EpochKeyRecord, error) {
	query := `SELECT epoch_id, public_key, state, created_at FROM epoch_keys`
	if !includeRetired {
		query += fmt.Sprintf(` WHERE state != %d`, EpochRetired)
	}
	query += ` ORDER BY epoch_id ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EpochKeyRecord
	for rows.Next() {
		record, err := scanEpochKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (LogEntry, error) {
	var (
		id                            uint64
		claimID, eventType, epochID   string
		tsMicros                      int64
		payloadHashB, chainHashB      []byte
		actorSig                      []byte
	)
	if err := row.Scan(&id, &claimID, &eventType, &tsMicros, &payloadHashB, &chainHashB, &actorSig, &epochID); err != nil {
		return LogEntry{}, err
	}
	entry := LogEntry{
		ID:        id,
		ClaimID:   claimID,
		EventType: eventType,
		Timestamp: time.UnixMicro(tsMicros).UTC(),
		ActorSig:  actorSig,
		EpochID:   epochID,
	}
	copy(entry.PayloadHash[:], payloadHashB)
	copy(entry.ChainHash[:], chainHashB)
	return entry, nil
}

func scanEntries(rows *sql.Rows) ([]LogEntry, error) {
	var out []LogEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func scanCheckpoint(row rowScanner) (Checkpoint, error) {
	var (
		id                       uint64
		merkleRootB, prevHashB   []byte
		rangeMin, rangeMax       uint64
		signerEpochID            string
		signature                []byte
		createdAtMicros          int64
	)
	if err := row.Scan(&id, &merkleRootB, &rangeMin, &rangeMax, &prevHashB, &signerEpochID, &signature, &createdAtMicros); err != nil {
		return Checkpoint{}, err
	}
	cp := Checkpoint{
		ID:            id,
		RangeMin:      rangeMin,
		RangeMax:      rangeMax,
		SignerEpochID: signerEpochID,
		Signature:     signature,
		CreatedAt:     time.UnixMicro(createdAtMicros).UTC(),
	}
	copy(cp.MerkleRoot[:], merkleRootB)
	copy(cp.PrevCheckpointHash[:], prevHashB)
	return cp, nil
}

func scanEpochKey(row rowScanner) (EpochKeyRecord, error) {
	var (
		epochID         string
		publicKey       []byte
		state           int
		createdAtMicros int64
	)
	if err := row.Scan(&epochID, &publicKey, &state, &createdAtMicros); err != nil {
		return EpochKeyRecord{}, err
	}
	return EpochKeyRecord{
		EpochID:   epochID,
		PublicKey: publicKey,
		State:     EpochState(state),
		CreatedAt: time.UnixMicro(createdAtMicros).UTC(),
	}, nil
}

func nullableBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}
