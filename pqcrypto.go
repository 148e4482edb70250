package auditlog

import (
	"crypto"
	"crypto/rand"
	"fmt"

	circlKEM "github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/mlkem/mlkem1024"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
)

// SigningSeedSize is the length of the seed ML-DSA-65 keygen consumes. It
// doubles as the output length of the HKDF derivation in keyderivation.go,
// so every epoch keypair this package produces is fully determined by a
// 32-byte value.
const SigningSeedSize = 32

// SigningKeyPair holds an ML-DSA-65 (NIST security level 3) keypair. The
// private half is never written to storage; it only ever exists derived,
// in memory, for the lifetime of a sign call.
type SigningKeyPair struct {
	Public  *mldsa65.PublicKey
	Private *mldsa65.PrivateKey
}

// GenerateSigningKeyPair produces a fresh, randomly seeded ML-DSA-65
// keypair. Used only for ad-hoc tooling and tests; production epoch keys
// always go through DeriveSigningKeyPair so they are reproducible from the
// master seed.
func GenerateSigningKeyPair() (SigningKeyPair, error) {
	pub, priv, err := mldsa65.GenerateKey(rand.Reader)
	if err != nil {
		return SigningKeyPair{}, fmt.Errorf("generate ml-dsa-65 keypair: %w", err)
	}
	return SigningKeyPair{Public: pub, Private: priv}, nil
}

// DeriveSigningKeyPair deterministically expands a 32-byte seed into an
// ML-DSA-65 keypair. The same seed always yields the same keypair: this is
// the correctness property the epoch key manager's re-derivation check
// depends on, and the one the original Python implementation failed to
// provide because its underlying library lacked seeded keygen.
func DeriveSigningKeyPair(seed [SigningSeedSize]byte) SigningKeyPair {
	pub, priv := mldsa65.NewKeyFromSeed(&seed)
	return SigningKeyPair{Public: pub, Private: priv}
}

// Sign produces an ML-DSA-65 signature over message.
func Sign(priv *mldsa65.PrivateKey, message []byte) ([]byte, error) {
	sig, err := priv.Sign(rand.Reader, message, crypto.Hash(0))
	if err != nil {
		return nil, fmt.Errorf("sign with ml-dsa-65: %w", err)
	}
	return sig, nil
}

// Verify checks an ML-DSA-65 signature. It never returns an error: a
// malformed signature, a malformed key, and a mismatched signature are all
// reported simply as "not valid", matching every verifier in this package.
func Verify(pub *mldsa65.PublicKey, message, sig []byte) bool {
	if pub == nil {
		return false
	}
	return mldsa65.Verify(pub, message, sig)
}

// MarshalPublicKey returns the fixed-size wire encoding of an ML-DSA-65
// public key, the form persisted in the epoch_keys table.
func MarshalPublicKey(pub *mldsa65.PublicKey) ([]byte, error) {
	return pub.MarshalBinary()
}

// UnmarshalPublicKey parses the wire encoding produced by MarshalPublicKey.
func UnmarshalPublicKey(data []byte) (*mldsa65.PublicKey, error) {
	pub := new(mldsa65.PublicKey)
	if err := pub.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("unmarshal ml-dsa-65 public key: %w", err)
	}
	return pub, nil
}

// kemScheme is the ML-KEM-1024 (NIST Level 5) scheme used to bind HTTP
// session keys at the handshake boundary. It is never used inside the log,
// checkpoint, or verification core.
var kemScheme = mlkem1024.Scheme()

// KEMKeyPair holds an ML-KEM-1024 keypair for one session handshake.
type KEMKeyPair struct {
	Public  circlKEM.PublicKey
	Private circlKEM.PrivateKey
}

// GenerateKEMKeyPair produces a fresh ML-KEM-1024 keypair for a handshake.
func GenerateKEMKeyPair() (KEMKeyPair, error) {
	pub, priv, err := kemScheme.GenerateKeyPair()
	if err != nil {
		return KEMKeyPair{}, fmt.Errorf("generate ml-kem-1024 keypair: %w", err)
	}
	return KEMKeyPair{Public: pub, Private: priv}, nil
}

// Encapsulate runs the sender side of ML-KEM-1024 against the peer's
// public key, returning the ciphertext to transmit and the shared secret
// to use for the session.
func Encapsulate(peerPublic circlKEM.PublicKey) (ciphertext, sharedSecret []byte, err error) {
	ct, ss, err := kemScheme.Encapsulate(peerPublic)
	if err != nil {
		return nil, nil, fmt.Errorf("ml-kem-1024 encapsulate: %w", err)
	}
	return ct, ss, nil
}

// Decapsulate runs the receiver side of ML-KEM-1024, recovering the shared
// secret from a ciphertext using this side's private key.
func Decapsulate(priv circlKEM.PrivateKey, ciphertext []byte) ([]byte, error) {
	ss, err := kemScheme.Decapsulate(priv, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("ml-kem-1024 decapsulate: %w", err)
	}
	return ss, nil
}

// UnmarshalKEMPublicKey parses a wire-encoded ML-KEM-1024 public key, as
// received from a handshake initiator.
func UnmarshalKEMPublicKey(data []byte) (circlKEM.PublicKey, error) {
	pub, err := kemScheme.UnmarshalBinaryPublicKey(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal ml-kem-1024 public key: %w", err)
	}
	return pub, nil
}
