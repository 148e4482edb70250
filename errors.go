package auditlog

import "errors"

// Sentinel errors for the audit log's error kinds. Callers should use
// errors.Is against these rather than matching on message text.
var (
	// ErrValidation covers malformed input to any public operation: bad
	// claim IDs, negative amounts, truncated hashes, and similar.
	ErrValidation = errors.New("auditlog: validation failed")

	// ErrEpochRetired is returned when a caller asks to sign or otherwise
	// act as a retired epoch.
	ErrEpochRetired = errors.New("auditlog: epoch key is retired")

	// ErrNoEntriesToCheckpoint is returned by checkpoint generation when
	// the unsealed tail is empty.
	ErrNoEntriesToCheckpoint = errors.New("auditlog: no entries since last checkpoint")

	// ErrChainMismatch names the chain-hash mismatch error kind. Chain
	// verification never returns it; each mismatch is reported as a
	// ChainIssue in the verification result instead.
	ErrChainMismatch = errors.New("auditlog: chain hash mismatch")

	// ErrRootMismatch is returned when a recomputed Merkle root disagrees
	// with the root stored in a checkpoint.
	ErrRootMismatch = errors.New("auditlog: merkle root mismatch")

	// ErrSignatureInvalid is returned when a checkpoint signature fails
	// verification against the epoch public key.
	ErrSignatureInvalid = errors.New("auditlog: signature invalid")

	// ErrStorage wraps underlying storage-layer failures distinct from
	// validation failures.
	ErrStorage = errors.New("auditlog: storage error")

	// ErrSeedInvariantViolation is fatal: re-deriving an active epoch's
	// keypair produced a public key that disagrees with the one already
	// on record. This can only happen if the master seed changed under a
	// running deployment, and callers should treat it as unrecoverable.
	ErrSeedInvariantViolation = errors.New("auditlog: derived epoch public key disagrees with stored key")

	// ErrEntryNotFound is returned when a log entry ID does not exist.
	ErrEntryNotFound = errors.New("auditlog: log entry not found")

	// ErrCheckpointNotFound is returned by ProveInclusion when no
	// checkpoint covers the requested log entry.
	ErrCheckpointNotFound = errors.New("auditlog: checkpoint not found")

	// ErrSessionNotFound is returned when a session token is unknown or
	// has expired out of the session table.
	ErrSessionNotFound = errors.New("auditlog: session not found")
)
