package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/Veraticus/receipt-ledger/internal/common"
	"github.com/Veraticus/receipt-ledger/internal/model"
	"github.com/Veraticus/receipt-ledger/internal/reconcile"
	"github.com/Veraticus/receipt-ledger/internal/service"
)

// RecordError is a per-record failure collected into a batch report.
type RecordError struct {
	Err    error
	Source string
}

func (e RecordError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e RecordError) Unwrap() error {
	return e.Err
}

// BatchReport summarizes one ingestion batch.
type BatchReport struct {
	Errors     []RecordError
	ReceiptIDs []int64
	Total      int
	Inserted   int
	Duplicates int
	Verified   int
	Flagged    int
	Pending    int
}

// Options controls a Loader.
type Options struct {
	// Progress, when set, is called after each record with the number processed.
	Progress func(done, total int)
	// SkipReconcile stores receipts as pending without validating them.
	SkipReconcile bool
	// DryRun assembles and validates without writing anything.
	DryRun bool
}

// Loader writes assembled receipts to storage.
type Loader struct {
	storage   service.Storage
	validator *reconcile.Validator
	opts      Options
}

// NewLoader creates a loader. A nil validator uses the default tolerance.
func NewLoader(storage service.Storage, validator *reconcile.Validator, opts Options) *Loader {
	if validator == nil {
		validator = reconcile.NewValidator(reconcile.DefaultTolerance)
	}
	return &Loader{storage: storage, validator: validator, opts: opts}
}

// LoadBatch ingests records inside one transaction. Each record gets its own
// savepoint: a record that fails is rolled back and reported while the rest
// of the batch continues. Records whose source hash is already stored, or
// repeated within the batch, are counted as duplicates and skipped.
func (l *Loader) LoadBatch(ctx context.Context, records []Record) (*BatchReport, error) {
	report := &BatchReport{Total: len(records)}
	if len(records) == 0 {
		return report, nil
	}

	var tx service.Transaction
	if !l.opts.DryRun {
		var err error
		tx, err = l.storage.BeginTx(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to begin ingestion batch: %w", err)
		}
		defer func() {
			if tx != nil {
				_ = tx.Rollback()
			}
		}()
	}

	seen := make(map[string]bool, len(records))
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		l.loadOne(ctx, tx, i, rec, seen, report)

		if l.opts.Progress != nil {
			l.opts.Progress(i+1, len(records))
		}
	}

	if tx != nil {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit ingestion batch: %w", err)
		}
		tx = nil
	}

	common.LogInfo("Ingestion batch complete", common.Fields{
		"total":      report.Total,
		"inserted":   report.Inserted,
		"duplicates": report.Duplicates,
		"flagged":    report.Flagged,
		"errors":     len(report.Errors),
		"dry_run":    l.opts.DryRun,
	})

	return report, nil
}

func (l *Loader) loadOne(ctx context.Context, tx service.Transaction, i int, rec Record, seen map[string]bool, report *BatchReport) {
	source := rec.Source
	if source == "" {
		source = fmt.Sprintf("record %d", i+1)
	}
	// Malformed input is expected in a batch; storage failures are not.
	reject := func(err error) {
		report.Errors = append(report.Errors, RecordError{Source: source, Err: err})
		common.LogDebug("Skipping record", common.Fields{"source": source, "error": err.Error()})
	}
	fail := func(err error) {
		report.Errors = append(report.Errors, RecordError{Source: source, Err: err})
		common.LogError(err, "Failed to store record", common.Fields{"source": source})
	}

	receipt, err := Assemble(rec)
	if err != nil {
		reject(err)
		return
	}

	if receipt.SourceHash != "" {
		if seen[receipt.SourceHash] {
			report.Duplicates++
			return
		}
		seen[receipt.SourceHash] = true

		if tx != nil {
			exists, err := tx.ReceiptExists(ctx, receipt.SourceHash)
			if err != nil {
				fail(err)
				return
			}
			if exists {
				report.Duplicates++
				return
			}
		}
	}

	if !l.opts.SkipReconcile {
		l.validator.Apply(receipt)
	}

	if tx != nil {
		if err := l.save(ctx, tx, i, receipt); err != nil {
			if errors.Is(err, common.ErrDuplicateEntry) {
				report.Duplicates++
				return
			}
			fail(err)
			return
		}
		report.ReceiptIDs = append(report.ReceiptIDs, receipt.ID)
	}

	report.Inserted++
	switch receipt.Status {
	case model.StatusVerified:
		report.Verified++
	case model.StatusFlagged:
		report.Flagged++
	default:
		report.Pending++
	}
}

func (l *Loader) save(ctx context.Context, tx service.Transaction, i int, receipt *model.Receipt) error {
	savepoint := fmt.Sprintf("record_%d", i)
	if err := tx.Savepoint(ctx, savepoint); err != nil {
		return err
	}

	if _, err := tx.SaveReceipt(ctx, receipt); err != nil {
		if rbErr := tx.RollbackTo(ctx, savepoint); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	return tx.Release(ctx, savepoint)
}
