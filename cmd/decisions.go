package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/homefixr/dispatch/config"
	"github.com/homefixr/dispatch/core/audit"
	"github.com/homefixr/dispatch/core/model"
)

var (
	decisionsBooking string
	decisionsStatus  string
	decisionsStart   string
	decisionsEnd     string
)

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "Query the dispatch decision log",
	RunE:  listDecisions,
}

func init() {
	decisionsCmd.Flags().StringVar(&decisionsBooking, "booking", "", "filter by booking id")
	decisionsCmd.Flags().StringVar(&decisionsStatus, "status", "", "filter by booking status")
	decisionsCmd.Flags().StringVar(&decisionsStart, "start", "", "RFC3339 lower bound")
	decisionsCmd.Flags().StringVar(&decisionsEnd, "end", "", "RFC3339 upper bound")
	rootCmd.AddCommand(decisionsCmd)
}

func listDecisions(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	var store audit.LogStore
	switch cfg.Audit.Backend {
	case "sqlite":
		store, err = audit.NewSQLiteStore(cfg.Audit.Path)
	case "jsonl":
		store, err = audit.NewJSONLStore(cfg.Audit.Path)
	default:
		return fmt.Errorf("audit backend %s has no queryable log", cfg.Audit.Backend)
	}
	if err != nil {
		return fmt.Errorf("open decision log: %w", err)
	}
	defer func() { _ = store.Close() }()

	q := audit.Query{BookingID: decisionsBooking}
	if decisionsStatus != "" {
		st, ok := model.ParseStatus(decisionsStatus)
		if !ok {
			return fmt.Errorf("unknown booking status %s", decisionsStatus)
		}
		q.Status = &st
	}
	if decisionsStart != "" {
		t, err := time.Parse(time.RFC3339, decisionsStart)
		if err != nil {
			return fmt.Errorf("parse start: %w", err)
		}
		q.Start = t
	}
	if decisionsEnd != "" {
		t, err := time.Parse(time.RFC3339, decisionsEnd)
		if err != nil {
			return fmt.Errorf("parse end: %w", err)
		}
		q.End = t
	}

	records, err := store.Query(cmd.Context(), q)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}
