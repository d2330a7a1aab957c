package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/receipt-ledger/internal/cli"
	"github.com/Veraticus/receipt-ledger/internal/common"
	"github.com/Veraticus/receipt-ledger/internal/model"
	"github.com/Veraticus/receipt-ledger/internal/service"
)

func listCmd() *cobra.Command {
	var (
		status         string
		limit          int
		offset         int
		includeDeleted bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List receipts",
		Example: `  receipts list
  receipts list --status flagged`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := service.ReceiptFilter{
				Status:         model.ReceiptStatus(status),
				Limit:          limit,
				Offset:         offset,
				IncludeDeleted: includeDeleted,
			}
			if status != "" && !filter.Status.Valid() {
				return common.NewUserError(fmt.Sprintf("unknown status %q", status), common.ErrInvalidConfig)
			}

			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			list, err := store.ListReceipts(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("failed to list receipts: %w", err)
			}

			fmt.Fprint(cmd.OutOrStdout(), cli.RenderReceiptTable(list, currency()))
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only receipts with this status (pending, verified, flagged)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum receipts to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "receipts to skip")
	cmd.Flags().BoolVar(&includeDeleted, "deleted", false, "include deleted receipts")

	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a receipt with its items and findings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			receipt, err := store.GetReceipt(cmd.Context(), id)
			if err != nil {
				return notFound(err, id)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderReceipt(receipt, currency()))
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "status <id> <pending|verified|flagged>",
		Short: "Override a receipt's status",
		Long: `Set a receipt's status by hand, for example after checking a flagged receipt
against the paper copy. Setting a receipt back to verified clears its findings.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			status := model.ReceiptStatus(args[1])
			if !status.Valid() {
				return common.NewUserError(fmt.Sprintf("unknown status %q", args[1]), common.ErrInvalidConfig)
			}

			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			current, err := store.GetReceipt(cmd.Context(), id)
			if err != nil {
				return notFound(err, id)
			}

			var findings []string
			switch {
			case note != "":
				findings = []string{note}
			case status != model.StatusVerified:
				findings = current.ValidationErrors
			}

			if err := store.SetReceiptStatus(cmd.Context(), id, status, findings); err != nil {
				return notFound(err, id)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Receipt #%d is now %s", id, status)))
			return nil
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "replace the receipt's findings with this note")

	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a receipt",
		Long:  `Mark a receipt as deleted. It disappears from listings and answers but stays in the database.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.DeleteReceipt(cmd.Context(), id); err != nil {
				return notFound(err, id)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Deleted receipt #%d", id)))
			return nil
		},
	}
}
