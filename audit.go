package auditlog

import (
	"context"
	"encoding/hex"
	"fmt"
)

// AuditVerifier answers the questions an external auditor asks of a
// sealed log: is this checkpoint's signature and Merkle root consistent
// with the entries it claims to cover, does a given entry actually belong
// under a checkpoint's root, and does a recorded fraud score's fingerprint
// match the claim data that produced it. Every verification here reports
// structured results instead of throwing on an invalid log: only a
// failure to reach storage is surfaced as a Go error.
type AuditVerifier struct {
	store    Store
	epochs   *EpochKeyManager
	checkpts *CheckpointEngine
}

// NewAuditVerifier constructs a verifier sharing store and epochs with the
// rest of the log.
func NewAuditVerifier(store Store, epochs *EpochKeyManager, checkpts *CheckpointEngine) *AuditVerifier {
	return &AuditVerifier{store: store, epochs: epochs, checkpts: checkpts}
}

// CheckpointVerification is the structured result of VerifyCheckpoint.
type CheckpointVerification struct {
	Valid        bool
	CheckpointID uint64
	Message      string
	MerkleRoot   string
	EpochID      string
	ChainIssues  []ChainIssue
}

// VerifyCheckpoint recomputes a checkpoint's Merkle root from the entries
// it claims to cover and checks its signature, without ever returning an
// error for a log that is actually broken: the brokenness itself is the
// answer, carried back in the returned value.
func (v *AuditVerifier) VerifyCheckpoint(ctx context.Context, checkpointID uint64) (CheckpointVerification, error) {
	checkpoint, ok, err := v.store.CheckpointByID(ctx, checkpointID)
	if err != nil {
		return CheckpointVerification{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if !ok {
		return CheckpointVerification{
			Valid:        false,
			CheckpointID: checkpointID,
			Message:      "checkpoint not found",
		}, nil
	}

	result := CheckpointVerification{
		CheckpointID: checkpointID,
		MerkleRoot:   hex.EncodeToString(checkpoint.MerkleRoot[:]),
		EpochID:      checkpoint.SignerEpochID,
	}

	entries, err := v.store.EntriesInRange(ctx, checkpoint.RangeMin, checkpoint.RangeMax)
	if err != nil {
		return CheckpointVerification{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	leaves := make([][HashSize]byte, len(entries))
	for i, e := range entries {
		leaves[i] = e.ChainHash
	}
	recomputedRoot := BuildMerkleTree(leaves)

	if recomputedRoot != checkpoint.MerkleRoot {
		result.Message = ErrRootMismatch.Error()
		return result, nil
	}

	validSig, err := v.checkpts.VerifyCheckpointSignature(ctx, checkpoint)
	if err != nil {
		return CheckpointVerification{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if !validSig {
		result.Message = ErrSignatureInvalid.Error()
		return result, nil
	}

	_, issues := VerifyEntryChain(entries, checkpoint.RangeMin-1, chainHashPriorTo(ctx, v.store, checkpoint.RangeMin))
	result.ChainIssues = issues
	if len(issues) > 0 {
		result.Message = "chain hash mismatch within checkpointed range"
		return result, nil
	}

	result.Valid = true
	result.Message = "checkpoint verified"
	return result, nil
}

// chainHashPriorTo returns the chain hash of the entry immediately before
// rangeMin, or GenesisHash() if rangeMin is 1 (the start of the log).
func chainHashPriorTo(ctx context.Context, store Store, rangeMin uint64) [HashSize]byte {
	if rangeMin <= 1 {
		return GenesisHash()
	}
	prior, ok, err := store.EntryByID(ctx, rangeMin-1)
	if err != nil || !ok {
		return GenesisHash()
	}
	return prior.ChainHash
}

// InclusionProofResult is the structured result of ProveInclusion.
type InclusionProofResult struct {
	EntryID      uint64
	CheckpointID uint64
	MerklePath   []string
	MerkleRoot   string
	EntryHash    string
}

// ProveInclusion locates the checkpoint covering entryID, rebuilds the
// Merkle tree for that checkpoint's range together with an inclusion
// proof for entryID, and returns the proof alongside the root it
// reproduces. Unlike VerifyCheckpoint, a root that fails to reproduce the
// checkpoint's stored root here is an ErrRootMismatch error: a proof the
// verifier itself cannot reconstruct is not a usable answer to return.
func (v *AuditVerifier) ProveInclusion(ctx context.Context, entryID uint64) (InclusionProofResult, error) {
	checkpoint, ok, err := v.store.CheckpointCoveringEntry(ctx, entryID)
	if err != nil {
		return InclusionProofResult{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if !ok {
		return InclusionProofResult{}, fmt.Errorf("%w: entry %d is not covered by any checkpoint yet", ErrCheckpointNotFound, entryID)
	}

	entries, err := v.store.EntriesInRange(ctx, checkpoint.RangeMin, checkpoint.RangeMax)
	if err != nil {
		return InclusionProofResult{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	targetIndex := -1
	for i, e := range entries {
		if e.ID == entryID {
			targetIndex = i
			break
		}
	}
	if targetIndex == -1 {
		return InclusionProofResult{}, fmt.Errorf("%w: entry %d", ErrEntryNotFound, entryID)
	}

	leaves := make([][HashSize]byte, len(entries))
	for i, e := range entries {
		leaves[i] = e.ChainHash
	}
	root, proof := BuildMerkleTreeWithProof(leaves, targetIndex)

	if root != checkpoint.MerkleRoot {
		return InclusionProofResult{}, fmt.Errorf("%w: recomputed root disagrees with checkpoint %d", ErrRootMismatch, checkpoint.ID)
	}
	if !VerifyMerkleInclusionProof(entries[targetIndex].ChainHash, proof, root) {
		return InclusionProofResult{}, fmt.Errorf("%w: proof does not reproduce root for entry %d", ErrRootMismatch, entryID)
	}

	path := make([]string, len(proof.Siblings))
	for i, s := range proof.Siblings {
		path[i] = hex.EncodeToString(s[:])
	}

	return InclusionProofResult{
		EntryID:      entryID,
		CheckpointID: checkpoint.ID,
		MerklePath:   path,
		MerkleRoot:   hex.EncodeToString(root[:]),
		EntryHash:    hex.EncodeToString(entries[targetIndex].ChainHash[:]),
	}, nil
}

// ChainVerification is the structured result of VerifyChain.
type ChainVerification struct {
	Valid       bool
	FromID      uint64
	ToID        uint64
	Message     string
	FinalHash   string
	ChainIssues []ChainIssue
}

// VerifyChain replays the hash chain for entries fromID..toID inclusive and
// reports every break it finds rather than stopping at the first. toID==0
// means "through the current tail of the log". The walk's starting point is
// GenesisHash() when fromID is 1, or the chain hash of the entry immediately
// preceding fromID otherwise — the same rule VerifyCheckpoint applies to its
// own range check, exposed here as a standalone operation so an auditor can
// replay an arbitrary id range independent of any checkpoint.
func (v *AuditVerifier) VerifyChain(ctx context.Context, fromID, toID uint64) (ChainVerification, error) {
	if fromID == 0 {
		fromID = 1
	}

	if toID == 0 {
		last, ok, err := v.store.LastEntry(ctx)
		if err != nil {
			return ChainVerification{}, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		if !ok {
			return ChainVerification{
				Valid:   true,
				FromID:  fromID,
				ToID:    0,
				Message: "log is empty",
			}, nil
		}
		toID = last.ID
	}

	if toID < fromID {
		return ChainVerification{}, fmt.Errorf("%w: to_id %d is before from_id %d", ErrValidation, toID, fromID)
	}

	entries, err := v.store.EntriesInRange(ctx, fromID, toID)
	if err != nil {
		return ChainVerification{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	finalHash, issues := VerifyEntryChain(entries, fromID-1, chainHashPriorTo(ctx, v.store, fromID))

	result := ChainVerification{
		FromID:      fromID,
		ToID:        toID,
		FinalHash:   hex.EncodeToString(finalHash[:]),
		ChainIssues: issues,
	}
	if len(issues) > 0 {
		result.Message = fmt.Sprintf("chain verification found %d issue(s) between %d and %d", len(issues), fromID, toID)
		return result, nil
	}
	result.Valid = true
	result.Message = "chain verified"
	return result, nil
}

// AIScoreVerification is the structured result of VerifyAIScore.
type AIScoreVerification struct {
	Valid            bool
	Message          string
	PayloadHashMatch bool
	FeatureHashMatch bool
	ModelVersion     string
	FraudScore       float64
}

// VerifyAIScore checks a fraud-scoring event's integrity two ways: that
// payload hashes to the chain_hash-backed payload_hash recorded for
// entryID, and, if payload carries an "original_claim" object and a
// "feature_hash" string, that re-extracting features from original_claim
// reproduces the same feature_hash. The caller must supply payload
// explicitly; this verifier never assumes a side-channel store of
// original event payloads exists.
func (v *AuditVerifier) VerifyAIScore(ctx context.Context, entryID uint64, payload map[string]any) (AIScoreVerification, error) {
	entry, ok, err := v.store.EntryByID(ctx, entryID)
	if err != nil {
		return AIScoreVerification{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if !ok {
		return AIScoreVerification{Valid: false, Message: "entry not found"}, nil
	}

	payloadHash, err := PayloadHash(payload)
	if err != nil {
		return AIScoreVerification{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	result := AIScoreVerification{PayloadHashMatch: payloadHash == entry.PayloadHash}
	if modelVersion, ok := payload["model_version"].(string); ok {
		result.ModelVersion = modelVersion
	}
	if fraudScore, ok := toFloat(payload["fraud_score"]); ok {
		result.FraudScore = fraudScore
	}
	if !result.PayloadHashMatch {
		result.Message = "payload does not match the recorded payload_hash"
		return result, nil
	}

	originalClaim, hasClaim := payload["original_claim"].(map[string]any)
	recordedFeatureHash, hasFeatureHash := payload["feature_hash"].(string)
	if !hasClaim || !hasFeatureHash {
		result.Valid = true
		result.Message = "payload hash matches; no feature data present to re-verify"
		return result, nil
	}

	recomputed, err := ExtractFeatures(originalClaim).FeatureHash()
	if err != nil {
		return AIScoreVerification{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	result.FeatureHashMatch = recomputed == recordedFeatureHash
	result.Valid = result.FeatureHashMatch
	if result.Valid {
		result.Message = "payload and feature fingerprint verified"
	} else {
		result.Message = "feature_hash does not match re-extracted features"
	}
	return result, nil
}
