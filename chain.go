package auditlog

import "fmt"

// ChainIssue describes one entry that failed hash-chain verification.
// Chain verification never aborts on the first failure: every entry is
// checked and every disagreement is collected, so an auditor can see the
// full extent of tampering in one pass.
type ChainIssue struct {
	EntryID uint64
	Reason  string
}

func (i ChainIssue) String() string {
	return fmt.Sprintf("entry %d: %s", i.EntryID, i.Reason)
}

// VerifyEntryChain recomputes the chain hash of every entry in order,
// starting from startChainHash (GenesisHash() for a full-log verification,
// or a checkpoint's sealed tail for an incremental one), and reports every
// entry whose stored chain_hash disagrees with the recomputed value or
// whose id breaks the gapless sequence. Each entry is checked against the
// recomputed hash of its predecessor, so an overwritten chain_hash is
// reported on that entry alone rather than also on every entry after it.
// It returns the last recomputed chain hash.
func VerifyEntryChain(entries []LogEntry, startID uint64, startChainHash [HashSize]byte) (finalHash [HashSize]byte, issues []ChainIssue) {
	prevHash := startChainHash
	expectID := startID

	for _, entry := range entries {
		expectID++
		if entry.ID != expectID {
			issues = append(issues, ChainIssue{
				EntryID: entry.ID,
				Reason:  fmt.Sprintf("expected id %d, got %d (gap or reordering)", expectID, entry.ID),
			})
			expectID = entry.ID
		}

		want := ChainHash(prevHash, entry.PayloadHash, entry.Timestamp)
		if want != entry.ChainHash {
			issues = append(issues, ChainIssue{
				EntryID: entry.ID,
				Reason:  "chain hash mismatch: tampering or incorrect predecessor",
			})
		}

		prevHash = want
	}

	return prevHash, issues
}
