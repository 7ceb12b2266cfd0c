package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/nugget/imapnotify/internal/journal"
)

// runLast prints the most recent pass recorded in the run journal.
func runLast(w io.Writer, configPath, outputFmt string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.DB == "" {
		return fmt.Errorf("no run journal configured (set db in the config file)")
	}

	store, err := journal.NewStore(cfg.DB)
	if err != nil {
		return fmt.Errorf("open run journal: %w", err)
	}
	defer store.Close()

	last, err := store.Last()
	if err != nil {
		return err
	}
	total, err := store.Count()
	if err != nil {
		return err
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Runs int `json:"runs"`
			Last any `json:"last"`
		}{total, last})
	}

	if last == nil {
		fmt.Fprintln(w, "no passes recorded")
		return nil
	}
	fmt.Fprintf(w, "last pass %s (%d recorded)\n", last.RunID, total)
	fmt.Fprintf(w, "  %-10s %s\n", "started:", last.Started.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "  %-10s %s\n", "elapsed:", last.Finished.Sub(last.Started).Round(time.Millisecond))
	fmt.Fprintf(w, "  %-10s %d\n", "unseen:", last.Unseen)
	fmt.Fprintf(w, "  %-10s %d\n", "notified:", last.Notified)
	fmt.Fprintf(w, "  %-10s %d\n", "skipped:", last.Skipped)
	fmt.Fprintf(w, "  %-10s %d\n", "reverted:", last.Reverted)
	fmt.Fprintf(w, "  %-10s %d\n", "failed:", last.Failed)
	return nil
}
