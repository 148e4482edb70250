package auditlog

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// CheckpointEngine builds and signs periodic Merkle checkpoints over the
// unsealed tail of an append-only log.
type CheckpointEngine struct {
	store   Store
	epochs  *EpochKeyManager
	log     *zap.Logger
}

// NewCheckpointEngine constructs a checkpoint engine bound to store and
// epochs. One engine is expected per log; it performs no locking of its
// own and assumes the caller serializes checkpoint generation the same way
// appends are serialized (a single writer).
func NewCheckpointEngine(store Store, epochs *EpochKeyManager, log *zap.Logger) *CheckpointEngine {
	if log == nil {
		log = zap.NewNop()
	}
	return &CheckpointEngine{store: store, epochs: epochs, log: log}
}

// Generate builds a checkpoint over every entry appended since the last
// checkpoint (or since the beginning of the log, if none exists yet),
// signs its Merkle root with the current epoch's key, and persists it.
// Generate returns ErrNoEntriesToCheckpoint if the unsealed tail is empty;
// this is the one checkpoint-generation failure callers are expected to
// handle routinely (there was simply nothing new to seal), as opposed to
// a storage or signing failure.
func (c *CheckpointEngine) Generate(ctx context.Context) (Checkpoint, error) {
	last, hasLast, err := c.store.LastCheckpoint(ctx)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	var sealedUpTo uint64
	var prevHash [HashSize]byte
	if hasLast {
		sealedUpTo = last.RangeMax
		prevHash = checkpointChainHash(last)
	} else {
		prevHash = CheckpointGenesisHash()
	}

	lastEntry, hasEntries, err := c.store.LastEntry(ctx)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if !hasEntries || lastEntry.ID <= sealedUpTo {
		return Checkpoint{}, ErrNoEntriesToCheckpoint
	}

	entries, err := c.store.EntriesInRange(ctx, sealedUpTo+1, lastEntry.ID)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if len(entries) == 0 {
		return Checkpoint{}, ErrNoEntriesToCheckpoint
	}

	leaves := make([][HashSize]byte, len(entries))
	for i, e := range entries {
		leaves[i] = e.ChainHash
	}
	root := BuildMerkleTree(leaves)

	epochID := c.epochs.CurrentEpochID()
	keypair, err := c.epochs.CurrentEpochKeyPair(ctx)
	if err != nil {
		return Checkpoint{}, err
	}

	sig, err := Sign(keypair.Private, root[:])
	if err != nil {
		return Checkpoint{}, fmt.Errorf("sign checkpoint root: %w", err)
	}

	checkpoint := Checkpoint{
		MerkleRoot:         root,
		RangeMin:           entries[0].ID,
		RangeMax:           entries[len(entries)-1].ID,
		PrevCheckpointHash: prevHash,
		SignerEpochID:      epochID,
		Signature:          sig,
		CreatedAt:          time.Now().UTC(),
	}

	id, err := c.store.AppendCheckpoint(ctx, checkpoint)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	checkpoint.ID = id

	c.log.Info("generated checkpoint",
		zap.Uint64("checkpoint_id", checkpoint.ID),
		zap.Uint64("range_min", checkpoint.RangeMin),
		zap.Uint64("range_max", checkpoint.RangeMax),
		zap.String("epoch_id", checkpoint.SignerEpochID),
	)

	return checkpoint, nil
}

// VerifyCheckpointSignature checks a checkpoint's ML-DSA-65 signature
// against its signer epoch's public key, which is fetched regardless of
// whether that epoch is since retired. It never returns an error for an
// invalid signature; only an unreachable store is reported as an error.
func (c *CheckpointEngine) VerifyCheckpointSignature(ctx context.Context, checkpoint Checkpoint) (bool, error) {
	pub, err := c.epochs.PublicKeyFor(ctx, checkpoint.SignerEpochID)
	if err != nil {
		return false, nil // unknown signer epoch: not valid, not an infrastructure failure
	}
	return Verify(pub, checkpoint.MerkleRoot[:], checkpoint.Signature), nil
}

// checkpointChainHash computes the hash that chains one checkpoint to the
// next: SHA3-256(merkle_root || range_str || prev_checkpoint_hash ||
// signer_epoch_id || iso(created_at)). The signature itself is never part
// of this hash, matching the rule that a checkpoint signature binds only
// the Merkle root.
func checkpointChainHash(cp Checkpoint) [HashSize]byte {
	rangeStr := fmt.Sprintf("%d-%d", cp.RangeMin, cp.RangeMax)
	buf := make([]byte, 0, HashSize+len(rangeStr)+HashSize+len(cp.SignerEpochID)+32)
	buf = append(buf, cp.MerkleRoot[:]...)
	buf = append(buf, rangeStr...)
	buf = append(buf, cp.PrevCheckpointHash[:]...)
	buf = append(buf, cp.SignerEpochID...)
	buf = append(buf, canonicalTimestamp(cp.CreatedAt)...)
	return HashData(buf)
}
