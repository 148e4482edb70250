package auditlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/ncruces/go-strftime"
	"go.uber.org/zap"
)

// EpochKeyManager derives, stores the public half of, and retires the
// forward-secure ML-DSA-65 signing keys used to sign checkpoints. Private
// keys are never persisted: every signing operation re-derives the
// private key from the master seed and the epoch id, uses it for exactly
// one signature, and lets it fall out of scope.
type EpochKeyManager struct {
	mu         sync.Mutex
	store      Store
	masterSeed MasterSeed
	log        *zap.Logger
	epochIDFor func(time.Time) string
}

// NewEpochKeyManager constructs a manager bound to store and seeded from
// masterSeed. Epoch ids are the UTC calendar date ("%Y-%m-%d"); the
// epochIDFor field that holds this rule is unexported, so only code in
// this package can change the epoch cadence.
func NewEpochKeyManager(store Store, masterSeed MasterSeed, log *zap.Logger) *EpochKeyManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &EpochKeyManager{
		store:      store,
		masterSeed: masterSeed,
		log:        log,
		epochIDFor: defaultEpochID,
	}
}

func defaultEpochID(t time.Time) string {
	formatted, err := strftime.Format("%Y-%m-%d", t.UTC())
	if err != nil {
		// strftime.Format only fails on malformed layout strings, never on
		// the time value, so this path is unreachable with the fixed
		// layout above.
		return t.UTC().Format("2006-01-02")
	}
	return formatted
}

// CurrentEpochID returns today's epoch id, in UTC.
func (m *EpochKeyManager) CurrentEpochID() string {
	return m.epochIDFor(time.Now())
}

// CurrentEpochKeyPair returns the signing keypair for today's epoch,
// creating and persisting its public key record on first use, or
// re-deriving and validating it against the stored public key on every
// subsequent use. If the epoch already exists and is retired, signing is
// refused with ErrEpochRetired.
//
// The re-derivation check is the one place this manager can fail fatally:
// if the derived public key ever disagrees with what was persisted for an
// active epoch, the master seed backing this process does not match the
// one that created the epoch, and continuing to sign would silently start
// a new, unverifiable trust chain.
func (m *EpochKeyManager) CurrentEpochKeyPair(ctx context.Context) (SigningKeyPair, error) {
	epochID := m.CurrentEpochID()
	return m.EpochKeyPairFor(ctx, epochID)
}

// EpochKeyPairFor returns the signing keypair for a specific epoch id,
// applying the same absent/active/retired rules as CurrentEpochKeyPair.
// Exposed separately so operators and tests can exercise the state machine
// for an epoch other than "today".
func (m *EpochKeyManager) EpochKeyPairFor(ctx context.Context, epochID string) (SigningKeyPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	derived, err := DeriveEpochKeyPair(m.masterSeed, epochID)
	if err != nil {
		return SigningKeyPair{}, err
	}
	derivedPubBytes, err := MarshalPublicKey(derived.Public)
	if err != nil {
		return SigningKeyPair{}, fmt.Errorf("marshal derived public key: %w", err)
	}

	record, ok, err := m.store.EpochKey(ctx, epochID)
	if err != nil {
		return SigningKeyPair{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if !ok {
		newRecord := EpochKeyRecord{
			EpochID:   epochID,
			PublicKey: derivedPubBytes,
			State:     EpochActive,
			CreatedAt: time.Now().UTC(),
		}
		if err := m.store.UpsertEpochKey(ctx, newRecord); err != nil {
			return SigningKeyPair{}, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		m.log.Info("epoch key created", zap.String("epoch_id", epochID))
		return derived, nil
	}

	if record.State == EpochRetired {
		return SigningKeyPair{}, fmt.Errorf("%w: epoch %s", ErrEpochRetired, epochID)
	}

	if string(record.PublicKey) != string(derivedPubBytes) {
		m.log.Error("epoch seed invariant violated",
			zap.String("epoch_id", epochID),
		)
		return SigningKeyPair{}, fmt.Errorf("%w: epoch %s", ErrSeedInvariantViolation, epochID)
	}

	return derived, nil
}

// RetireEpoch marks epochID as retired so it can no longer sign. It is an
// idempotent no-op rather than an error: retiring an epoch with no key
// record, or one that is already retired, returns (false, nil) instead of
// failing, so a caller never needs to check state before retiring. Only a
// genuine storage failure is returned as an error.
func (m *EpochKeyManager) RetireEpoch(ctx context.Context, epochID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok, err := m.store.EpochKey(ctx, epochID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if !ok {
		m.log.Info("retire requested for unknown epoch", zap.String("epoch_id", epochID))
		return false, nil
	}
	if record.State == EpochRetired {
		m.log.Info("epoch already retired", zap.String("epoch_id", epochID))
		return false, nil
	}

	record.State = EpochRetired
	if err := m.store.UpsertEpochKey(ctx, record); err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	m.log.Info("epoch key retired", zap.String("epoch_id", epochID))
	return true, nil
}

// PublicKeyFor returns the public key for epochID regardless of whether
// the epoch is active or retired: verifying a past signature must keep
// working after the signing key that produced it has been retired.
func (m *EpochKeyManager) PublicKeyFor(ctx context.Context, epochID string) (*mldsa65.PublicKey, error) {
	record, ok, err := m.store.EpochKey(ctx, epochID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: no key record for epoch %s", ErrValidation, epochID)
	}
	pub, err := UnmarshalPublicKey(record.PublicKey)
	if err != nil {
		return nil, err
	}
	return pub, nil
}

// ListEpochs returns every epoch this manager has ever created a record
// for, in ascending epoch-id order, optionally including retired epochs.
func (m *EpochKeyManager) ListEpochs(ctx context.Context, includeRetired bool) ([]EpochKeyRecord, error) {
	records, err := m.store.ListEpochKeys(ctx, includeRetired)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return records, nil
}
