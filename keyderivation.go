package auditlog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// MasterSeedSize is the required length, in bytes, of the master seed.
const MasterSeedSize = 32

// MasterSeed is the root secret every epoch signing key is derived from. It
// is supplied once at process startup (see config.go) and held only in
// memory.
type MasterSeed [MasterSeedSize]byte

// ParseMasterSeed decodes a 64-character hex string into a MasterSeed,
// matching the MASTER_SEED environment variable format.
func ParseMasterSeed(hexSeed string) (MasterSeed, error) {
	decoded, err := hex.DecodeString(hexSeed)
	if err != nil {
		return MasterSeed{}, fmt.Errorf("%w: master seed is not valid hex: %v", ErrValidation, err)
	}
	if len(decoded) != MasterSeedSize {
		return MasterSeed{}, fmt.Errorf("%w: master seed must be %d bytes, got %d", ErrValidation, MasterSeedSize, len(decoded))
	}
	var seed MasterSeed
	copy(seed[:], decoded)
	return seed, nil
}

// DeriveEpochSeed expands the master seed into a 32-byte per-epoch seed
// using HKDF-SHA-256 with an empty salt and the epoch id as info. Feeding
// the same (masterSeed, epochID) pair through this function always
// produces the same output, which is the property the epoch key manager
// relies on to re-derive an active epoch's keypair on every process start.
func DeriveEpochSeed(masterSeed MasterSeed, epochID string) ([SigningSeedSize]byte, error) {
	kdf := hkdf.New(sha256.New, masterSeed[:], nil, []byte(epochID))
	var out [SigningSeedSize]byte
	if _, err := io.ReadFull(kdf, out[:]); err != nil {
		return out, fmt.Errorf("derive epoch seed for %q: %w", epochID, err)
	}
	return out, nil
}

// DeriveEpochKeyPair is the composition most callers want: derive the
// epoch's seed, then the deterministic ML-DSA-65 keypair from that seed.
func DeriveEpochKeyPair(masterSeed MasterSeed, epochID string) (SigningKeyPair, error) {
	seed, err := DeriveEpochSeed(masterSeed, epochID)
	if err != nil {
		return SigningKeyPair{}, err
	}
	return DeriveSigningKeyPair(seed), nil
}
