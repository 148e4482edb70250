package auditlog

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"net/http"
	"time"
)

// CheckpointBundle is the unit shipped to an offsite verifier or
// cold-storage mirror: a checkpoint and the entries it covers, enough for
// the receiving side to independently recompute the Merkle root and
// verify the signature without trusting the sender.
type CheckpointBundle struct {
	Checkpoint Checkpoint
	Entries    []LogEntry
}

// Replicator ships checkpoint bundles to a remote mirror over HTTP using
// gob encoding. Gob, not the wire format used at the public HTTP
// boundary (canonical JSON, see server.go), is deliberately used here:
// this is an internal, trusted, process-to-process channel, the same role
// gob played as the default encoding in the system this package's
// transport layer was built from.
type Replicator struct {
	client   *http.Client
	endpoint string
}

// NewReplicator builds a Replicator that POSTs bundles to endpoint.
func NewReplicator(endpoint string) *Replicator {
	return &Replicator{
		client:   &http.Client{Timeout: 30 * time.Second},
		endpoint: endpoint,
	}
}

// Ship encodes and sends bundle to the configured mirror endpoint.
func (r *Replicator) Ship(ctx context.Context, bundle CheckpointBundle) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(bundle); err != nil {
		return fmt.Errorf("encode checkpoint bundle: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, &buf)
	if err != nil {
		return fmt.Errorf("build replication request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-gob")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("ship checkpoint bundle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mirror rejected checkpoint bundle: status %d", resp.StatusCode)
	}
	return nil
}

// ReplicationMirror is the receiving side: it accepts bundles, recomputes
// their Merkle root from the bundled entries and compares it with the
// bundle's stated merkle_root, and only then persists them into its own
// store. The checkpoint's signature is not checked here.
type ReplicationMirror struct {
	store    Store
	verifier *AuditVerifier
	log      func(format string, args ...any)
}

// NewReplicationMirror constructs a mirror backed by store, verifying
// incoming bundles with verifier.
func NewReplicationMirror(store Store, verifier *AuditVerifier) *ReplicationMirror {
	return &ReplicationMirror{store: store, verifier: verifier}
}

// HandleBundle implements the mirror's HTTP endpoint.
func (m *ReplicationMirror) HandleBundle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var bundle CheckpointBundle
	if err := gob.NewDecoder(r.Body).Decode(&bundle); err != nil {
		http.Error(w, fmt.Sprintf("decode bundle: %v", err), http.StatusBadRequest)
		return
	}

	leaves := make([][HashSize]byte, len(bundle.Entries))
	for i, e := range bundle.Entries {
		leaves[i] = e.ChainHash
	}
	if BuildMerkleTree(leaves) != bundle.Checkpoint.MerkleRoot {
		http.Error(w, "recomputed merkle root disagrees with bundle", http.StatusUnprocessableEntity)
		return
	}

	for _, entry := range bundle.Entries {
		if err := m.store.AppendEntry(r.Context(), entry); err != nil {
			http.Error(w, fmt.Sprintf("persist entry %d: %v", entry.ID, err), http.StatusInternalServerError)
			return
		}
	}
	if _, err := m.store.AppendCheckpoint(r.Context(), bundle.Checkpoint); err != nil {
		http.Error(w, fmt.Sprintf("persist checkpoint: %v", err), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
