package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"gophora/discovery-service/internal/ingest"
	"gophora/discovery-service/internal/model"
	"gophora/discovery-service/internal/scheduler"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run a single ingestion pass and print its summary",
	RunE: func(cmd *cobra.Command, _ []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		if !validPass(kind) {
			return fmt.Errorf("unknown pass %q (want primary, entry_level or manual)", kind)
		}

		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		c, err := wire(ctx, logger)
		if err != nil {
			return err
		}
		defer c.Close()

		var sum ingest.Summary
		switch kind {
		case scheduler.TaskPrimary:
			sum = c.pipeline.RunPrimary(ctx)
		case scheduler.TaskEntryLevel:
			sum = c.pipeline.RunEntryLevel(ctx)
		default:
			sum = c.pipeline.RunManual(ctx)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Deactivate listings older than RETENTION_DAYS",
	RunE: func(_ *cobra.Command, _ []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx := context.Background()
		c, err := wire(ctx, logger)
		if err != nil {
			return err
		}
		defer c.Close()

		return scheduler.CleanupFunc(logger, c.store, c.cfg.RetentionDays)(ctx)
	},
}

func validPass(kind string) bool {
	switch kind {
	case scheduler.TaskPrimary, scheduler.TaskEntryLevel, string(model.RunManual):
		return true
	}
	return false
}

func init() {
	ingestCmd.Flags().StringP("kind", "k", scheduler.TaskPrimary, "pass to run: primary, entry_level or manual")
}
