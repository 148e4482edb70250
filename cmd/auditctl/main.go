// Command auditctl is an operator CLI for the audit log: generating
// checkpoints, retiring epoch keys, and verifying the chain and
// checkpoints of an existing log without standing up the HTTP edge.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/clarity-claims/auditlog"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: auditctl <checkpoint|retire-epoch|verify-checkpoint|verify-chain|list-epochs> [flags]")
	}

	cmd, rest := args[0], args[1:]
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	dsn := fs.String("db", "auditlog.sqlite", "database DSN")

	switch cmd {
	case "checkpoint":
		if err := fs.Parse(rest); err != nil {
			return err
		}
		return runCheckpoint(*dsn)
	case "retire-epoch":
		epochID := fs.String("epoch", "", "epoch id to retire")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		return runRetireEpoch(*dsn, *epochID)
	case "verify-checkpoint":
		id := fs.Uint64("id", 0, "checkpoint id")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		return runVerifyCheckpoint(*dsn, *id)
	case "verify-chain":
		from := fs.Uint64("from", 1, "first entry id to verify")
		to := fs.Uint64("to", 0, "last entry id to verify (0 means through the current tail)")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		return runVerifyChain(*dsn, *from, *to)
	case "list-epochs":
		includeRetired := fs.Bool("all", false, "include retired epochs")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		return runListEpochs(*dsn, *includeRetired)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func openDeps(dsn string) (auditlog.Store, *auditlog.EpochKeyManager, *auditlog.CheckpointEngine, *auditlog.AuditVerifier, error) {
	cfg, err := auditlog.LoadConfig()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	store, err := auditlog.OpenSQLiteStore(dsn)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	epochs := auditlog.NewEpochKeyManager(store, cfg.MasterSeed, nil)
	checkpoints := auditlog.NewCheckpointEngine(store, epochs, nil)
	verifier := auditlog.NewAuditVerifier(store, epochs, checkpoints)
	return store, epochs, checkpoints, verifier, nil
}

func runCheckpoint(dsn string) error {
	store, _, checkpoints, _, err := openDeps(dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	cp, err := checkpoints.Generate(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("checkpoint %d covers entries %d-%d (epoch %s), created %s\n",
		cp.ID, cp.RangeMin, cp.RangeMax, cp.SignerEpochID, humanize.Time(cp.CreatedAt))
	return nil
}

func runRetireEpoch(dsn, epochID string) error {
	if epochID == "" {
		return fmt.Errorf("-epoch is required")
	}
	store, epochs, _, _, err := openDeps(dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	retired, err := epochs.RetireEpoch(context.Background(), epochID)
	if err != nil {
		return err
	}
	if !retired {
		fmt.Printf("epoch %s was already retired or has no key record; no change\n", epochID)
		return nil
	}
	fmt.Printf("epoch %s retired\n", epochID)
	return nil
}

func runVerifyCheckpoint(dsn string, id uint64) error {
	store, _, _, verifier, err := openDeps(dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := verifier.VerifyCheckpoint(context.Background(), id)
	if err != nil {
		return err
	}
	fmt.Printf("checkpoint %d valid=%v: %s\n", result.CheckpointID, result.Valid, result.Message)
	return nil
}

func runVerifyChain(dsn string, from, to uint64) error {
	store, _, _, verifier, err := openDeps(dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := verifier.VerifyChain(context.Background(), from, to)
	if err != nil {
		return err
	}
	fmt.Printf("chain %d-%d valid=%v: %s\n", result.FromID, result.ToID, result.Valid, result.Message)
	for _, issue := range result.ChainIssues {
		fmt.Printf("  %s\n", issue)
	}
	return nil
}

func runListEpochs(dsn string, includeRetired bool) error {
	store, epochs, _, _, err := openDeps(dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := epochs.ListEpochs(context.Background(), includeRetired)
	if err != nil {
		return err
	}
	for _, r := range records {
		state := "active"
		if r.State == auditlog.EpochRetired {
			state = "retired"
		}
		fmt.Printf("%s  %s  %s (%s)\n", r.EpochID, state, humanize.Bytes(uint64(len(r.PublicKey))), humanize.Time(r.CreatedAt))
	}
	return nil
}
