// Command auditlogd runs the HTTP edge for the audit log: handshake,
// claim submission, admin checkpoint generation, and the three auditor
// read endpoints.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/clarity-claims/auditlog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := auditlog.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := auditlog.NewLogger(os.Getenv("AUDITLOG_DEV") == "1")
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	store, err := auditlog.OpenSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()

	appendLog, err := auditlog.NewAppendOnlyLog(ctx, store, logger)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	lifecycle := auditlog.NewLogLifecycle(appendLog)

	epochs := auditlog.NewEpochKeyManager(store, cfg.MasterSeed, logger)
	checkpoints := auditlog.NewCheckpointEngine(store, epochs, logger)
	verifier := auditlog.NewAuditVerifier(store, epochs, checkpoints)

	kemKeys, err := auditlog.GenerateKEMKeyPair()
	if err != nil {
		return fmt.Errorf("generate kem keypair: %w", err)
	}
	sessions := auditlog.NewSessionTable(10_000)

	server := auditlog.NewServer(cfg, appendLog, lifecycle, checkpoints, verifier, sessions, kemKeys, logger)

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	addr := os.Getenv("AUDITLOGD_ADDR")
	if addr == "" {
		addr = ":8443"
	}
	logger.Sugar().Infof("auditlogd listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
