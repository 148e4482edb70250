package auditlog

import (
	"crypto/sha3"
	"time"
)

// HashSize is the digest size in bytes of every hash this package computes.
// SHA3-256 became part of the standard library in Go 1.24; earlier versions
// of this code (and the teacher it was built from) reached for an HMAC/SHA-2
// construction because no stdlib SHA-3 existed yet.
const HashSize = 32

// genesisSeed and checkpointGenesisSeed are hashed to produce the fixed
// starting values of the entry chain and the checkpoint chain respectively;
// emptyTreeSeed is hashed to produce the root of an empty Merkle tree.
// They are domain-separated by their literal content, not by a shared
// prefix, matching the values fixed in the wire format.
const (
	genesisSeed           = "GENESIS"
	emptyTreeSeed         = "EMPTY_TREE"
	checkpointGenesisSeed = "CHECKPOINT_GENESIS"
)

// HashData returns the SHA3-256 digest of data.
func HashData(data []byte) [HashSize]byte {
	return sha3.Sum256(data)
}

// GenesisHash is the chain_hash predecessor of the first entry ever
// appended to a log.
func GenesisHash() [HashSize]byte {
	return HashData([]byte(genesisSeed))
}

// EmptyTreeHash is the Merkle root of a tree with zero leaves.
func EmptyTreeHash() [HashSize]byte {
	return HashData([]byte(emptyTreeSeed))
}

// CheckpointGenesisHash is the prev_checkpoint_hash of the first checkpoint
// a log ever produces.
func CheckpointGenesisHash() [HashSize]byte {
	return HashData([]byte(checkpointGenesisSeed))
}

// PayloadHash returns the SHA3-256 digest of the canonical JSON encoding of
// an event's payload. Two payloads that are the same logical JSON value,
// regardless of key order or insignificant whitespace in their original
// transmission, hash identically.
func PayloadHash(payload any) ([HashSize]byte, error) {
	encoded, err := CanonicalJSON(payload)
	if err != nil {
		return [HashSize]byte{}, err
	}
	return HashData(encoded), nil
}

// ChainHash computes the next link of the hash chain:
// SHA3-256(prevChainHash || payloadHash || canonicalTimestamp(ts)).
func ChainHash(prevChainHash, payloadHash [HashSize]byte, ts time.Time) [HashSize]byte {
	buf := make([]byte, 0, HashSize*2+len(canonicalTimestamp(ts)))
	buf = append(buf, prevChainHash[:]...)
	buf = append(buf, payloadHash[:]...)
	buf = append(buf, canonicalTimestamp(ts)...)
	return HashData(buf)
}

// canonicalTimestamp renders ts the way every hash computation in this
// package expects it: UTC, RFC 3339 with microsecond precision, matching
// the ISO 8601 form the rest of the ecosystem emits for these timestamps.
func canonicalTimestamp(ts time.Time) []byte {
	return []byte(ts.UTC().Format("2006-01-02T15:04:05.000000Z"))
}
