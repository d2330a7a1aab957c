package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Veraticus/receipt-ledger/internal/cli"
	"github.com/Veraticus/receipt-ledger/internal/ingest"
	"github.com/Veraticus/receipt-ledger/internal/reconcile"
	"github.com/Veraticus/receipt-ledger/internal/storage"
)

type ingestOptions struct {
	skipReconcile bool
	dryRun        bool
	noCheckpoint  bool
	quiet         bool
}

func ingestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Load receipt records into the ledger",
		Long: `Load receipt records from JSON files, JSON Lines files, or directories of them.

Every record is normalized, assembled into a receipt, and reconciled. The whole
run is one transaction; a record that fails is reported and skipped while the
rest are stored. Records that were already ingested are reported as duplicates.`,
		Example: `  # Load a directory of records
  receipts ingest ./records

  # See what would happen without writing anything
  receipts ingest --dry-run receipts.jsonl`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
			ctx, cancel := handler.HandleInterrupts(cmd.Context(), "Ingest",
				"Nothing from this run was saved. Run the same ingest again to resume.")
			defer cancel()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			validator, err := newValidator()
			if err != nil {
				return err
			}

			report, err := runIngest(ctx, store, validator, args, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBatchReport(report, opts.dryRun))
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.skipReconcile, "skip-reconcile", false, "store receipts as pending without validating them")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "validate records without writing anything")
	cmd.Flags().BoolVar(&opts.noCheckpoint, "no-checkpoint", false, "skip the automatic checkpoint before writing")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "hide the progress bar")

	return cmd
}

func runIngest(ctx context.Context, store *storage.SQLiteStorage, validator *reconcile.Validator, paths []string, opts ingestOptions, out io.Writer) (*ingest.BatchReport, error) {
	var (
		records  []ingest.Record
		failures []ingest.RecordError
	)
	for _, path := range paths {
		recs, errs, err := ingest.ReadPath(path)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
		failures = append(failures, errs...)
	}

	if !opts.dryRun && !opts.noCheckpoint && len(records) > 0 {
		autoCheckpoint(ctx, store)
	}

	loaderOpts := ingest.Options{
		SkipReconcile: opts.skipReconcile,
		DryRun:        opts.dryRun,
	}
	if !opts.quiet && len(records) > 0 {
		bar := newProgressBar(len(records), out)
		loaderOpts.Progress = func(done, _ int) {
			if err := bar.Set(done); err != nil {
				slog.Warn("Failed to update progress bar", "error", err)
			}
		}
	}

	report, err := ingest.NewLoader(store, validator, loaderOpts).LoadBatch(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("ingest failed: %w", err)
	}

	// Records that never decoded still belong in the report.
	report.Total += len(failures)
	report.Errors = append(failures, report.Errors...)
	return report, nil
}

func autoCheckpoint(ctx context.Context, store *storage.SQLiteStorage) {
	manager, err := store.NewCheckpointManager()
	if err != nil {
		slog.Debug("Skipping automatic checkpoint", "error", err)
		return
	}
	info, err := manager.AutoCheckpoint(ctx, "ingest")
	if err != nil {
		slog.Warn("Automatic checkpoint failed", "error", err)
		return
	}
	slog.Info("Created checkpoint", "id", info.ID)
}

func newProgressBar(total int, out io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Ingesting receipts...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(out); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}
