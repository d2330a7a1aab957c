package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/receipt-ledger/internal/model"
	"github.com/Veraticus/receipt-ledger/internal/service"
)

// Summary counts the outcome of a reconciliation pass.
type Summary struct {
	Checked  int
	Verified int
	Flagged  int
}

// ReconcilePending validates every stored receipt still in the pending state
// and records the resulting status and findings.
func (v *Validator) ReconcilePending(ctx context.Context, store service.Storage) (*Summary, error) {
	pending, err := store.ListReceipts(ctx, service.ReceiptFilter{Status: model.StatusPending})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending receipts: %w", err)
	}

	summary := &Summary{}
	for i := range pending {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		r := &pending[i]
		res := v.Validate(r)
		if err := store.SetReceiptStatus(ctx, r.ID, res.Status, res.Errors); err != nil {
			return summary, fmt.Errorf("failed to update receipt %d: %w", r.ID, err)
		}

		summary.Checked++
		if res.Status == model.StatusFlagged {
			summary.Flagged++
		} else {
			summary.Verified++
		}
	}

	slog.Info("Reconciled pending receipts",
		"checked", summary.Checked,
		"verified", summary.Verified,
		"flagged", summary.Flagged)

	return summary, nil
}
