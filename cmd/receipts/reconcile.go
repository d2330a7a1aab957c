package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/receipt-ledger/internal/cli"
)

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Validate pending receipts",
		Long: `Check every pending receipt's line items and payments against its total.

Receipts within tolerance become verified; the rest are flagged with findings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
			ctx, cancel := handler.HandleInterrupts(cmd.Context(), "Reconcile",
				"Receipts checked so far keep their new status.")
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

			summary, err := validator.ReconcilePending(ctx, store)
			if err != nil {
				return fmt.Errorf("reconcile failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if summary.Checked == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No pending receipts."))
				return nil
			}
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Checked %d receipts: %d verified, %d flagged",
				summary.Checked, summary.Verified, summary.Flagged)))
			return nil
		},
	}
}
