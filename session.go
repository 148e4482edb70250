package auditlog

import (
	"crypto/subtle"
	"fmt"
	"time"

	circlKEM "github.com/cloudflare/circl/kem"
	"github.com/google/uuid"
	expirable "github.com/hashicorp/golang-lru/v2/expirable"
)

// SessionExpiry is how long a handshake session remains valid if never
// explicitly closed.
const SessionExpiry = time.Hour

// Session is the state bound at the ML-KEM-1024 handshake boundary: the
// shared secret negotiated for one client, used to authenticate/encrypt
// whatever transport sits in front of /claim/submit.
type Session struct {
	Token        string
	SharedSecret []byte
	CreatedAt    time.Time
}

// SessionTable is the single mutable shared map of live handshake
// sessions. It is backed by an expirable LRU cache rather than a plain
// map-plus-mutex so expired sessions are evicted automatically instead of
// accumulating until an explicit sweep runs.
type SessionTable struct {
	cache *expirable.LRU[string, Session]
}

// NewSessionTable constructs a session table whose entries expire after
// SessionExpiry and which never holds more than maxSessions concurrently
// (the oldest is evicted first once full).
func NewSessionTable(maxSessions int) *SessionTable {
	return &SessionTable{
		cache: expirable.NewLRU[string, Session](maxSessions, nil, SessionExpiry),
	}
}

// CreateSession completes a handshake: it decapsulates ciphertext against
// priv to recover the shared secret, mints a fresh session token, and
// stores the session.
func (t *SessionTable) CreateSession(priv circlKEM.PrivateKey, ciphertext []byte) (Session, error) {
	sharedSecret, err := Decapsulate(priv, ciphertext)
	if err != nil {
		return Session{}, fmt.Errorf("complete handshake: %w", err)
	}
	session := Session{
		Token:        uuid.NewString(),
		SharedSecret: sharedSecret,
		CreatedAt:    time.Now().UTC(),
	}
	t.cache.Add(session.Token, session)
	return session, nil
}

// Get returns the session for token, or ok=false if it does not exist or
// has expired.
func (t *SessionTable) Get(token string) (Session, bool) {
	return t.cache.Get(token)
}

// Validate reports whether token names a live session whose shared secret
// equals secret, compared in constant time.
func (t *SessionTable) Validate(token string, secret []byte) bool {
	session, ok := t.cache.Get(token)
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare(session.SharedSecret, secret) == 1
}

// Delete removes a session immediately, independent of its expiry.
func (t *SessionTable) Delete(token string) {
	t.cache.Remove(token)
}

// Len returns the number of live (non-expired) sessions.
func (t *SessionTable) Len() int {
	return t.cache.Len()
}
