package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/Veraticus/receipt-ledger/internal/common"
	"github.com/Veraticus/receipt-ledger/internal/model"
	"github.com/Veraticus/receipt-ledger/internal/service"
)

const receiptColumns = `
	r.id, r.receipt_date, r.subtotal, r.tax_amount, r.service_charge, r.discount,
	r.total_amount, r.payment_method, r.cash_paid, r.card_paid, r.change_amount,
	r.item_type_count, r.total_item_count, r.status, r.confidence,
	r.validation_errors, r.raw_snapshot, r.source_hash, r.created_at, r.deleted_at,
	v.id, v.name, v.address, v.phone, v.business_number`

// SaveReceipt persists a receipt, its vendor, and its line items atomically.
// The assigned ID is written back to receipt.ID.
func (s *SQLiteStorage) SaveReceipt(ctx context.Context, receipt *model.Receipt) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateReceipt(receipt); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id, err := s.saveReceiptTx(ctx, tx, receipt)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit receipt: %w", err)
	}

	if receipt.Vendor != nil {
		s.cacheVendor(receipt.Vendor)
	}
	return id, nil
}

func (s *SQLiteStorage) saveReceiptTx(ctx context.Context, q queryable, receipt *model.Receipt) (int64, error) {
	var vendorID sql.NullInt64
	if receipt.Vendor != nil {
		vendor, err := s.saveVendorTx(ctx, q, receipt.Vendor)
		if err != nil {
			return 0, err
		}
		receipt.Vendor = vendor
		vendorID = sql.NullInt64{Int64: vendor.ID, Valid: true}
	}

	if receipt.SourceHash == "" && len(receipt.Snapshot) > 0 {
		receipt.SourceHash = receipt.GenerateHash()
	}
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = time.Now()
	}
	if receipt.Header.PaymentMethod == "" {
		receipt.Header.PaymentMethod = model.PaymentOther
	}

	findings, err := encodeFindings(receipt.ValidationErrors)
	if err != nil {
		return 0, err
	}

	h := receipt.Header
	result, err := q.ExecContext(ctx, `
		INSERT INTO receipts (
			vendor_id, receipt_date, subtotal, tax_amount, service_charge, discount,
			total_amount, payment_method, cash_paid, card_paid, change_amount,
			item_type_count, total_item_count, status, confidence,
			validation_errors, raw_snapshot, source_hash, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		vendorID, h.Date, h.Subtotal, h.TaxAmount, h.ServiceCharge, h.Discount,
		h.TotalAmount, string(h.PaymentMethod), h.CashPaid, h.CardPaid, h.ChangeAmount,
		h.ItemTypeCount, h.TotalItemCount, string(receipt.Status), receipt.Confidence,
		findings, nullIfEmpty(string(receipt.Snapshot)), nullIfEmpty(receipt.SourceHash), receipt.CreatedAt,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return 0, fmt.Errorf("%w: receipt with source hash %s", common.ErrDuplicateEntry, receipt.SourceHash)
		}
		return 0, fmt.Errorf("failed to insert receipt: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get receipt ID: %w", err)
	}

	if err := insertItems(ctx, q, id, sql.NullInt64{}, receipt.Items); err != nil {
		return 0, err
	}

	receipt.ID = id
	return id, nil
}

func insertItems(ctx context.Context, q queryable, receiptID int64, parentID sql.NullInt64, items []model.LineItem) error {
	for i, item := range items {
		result, err := q.ExecContext(ctx, `
			INSERT INTO line_items (receipt_id, parent_id, position, name, quantity, unit_price, total_price)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, receiptID, parentID, i, item.Name, item.Quantity, item.UnitPrice, item.TotalPrice)
		if err != nil {
			return fmt.Errorf("failed to insert line item %q: %w", item.Name, err)
		}

		if len(item.SubItems) == 0 {
			continue
		}

		itemID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get line item ID: %w", err)
		}
		if err := insertItems(ctx, q, receiptID, sql.NullInt64{Int64: itemID, Valid: true}, item.SubItems); err != nil {
			return err
		}
	}
	return nil
}

// GetReceipt retrieves a receipt with its vendor and line items.
func (s *SQLiteStorage) GetReceipt(ctx context.Context, id int64) (*model.Receipt, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getReceiptTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getReceiptTx(ctx context.Context, q queryable, id int64) (*model.Receipt, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+receiptColumns+`
		FROM receipts r
		LEFT JOIN vendors v ON v.id = r.vendor_id
		WHERE r.id = ?
	`, id)

	receipt, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	items, err := loadItems(ctx, q, id)
	if err != nil {
		return nil, err
	}
	receipt.Items = items

	return receipt, nil
}

// ListReceipts returns receipts in ID order, optionally filtered by status.
func (s *SQLiteStorage) ListReceipts(ctx context.Context, filter service.ReceiptFilter) ([]model.Receipt, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listReceiptsTx(ctx, s.db, filter)
}

func (s *SQLiteStorage) listReceiptsTx(ctx context.Context, q queryable, filter service.ReceiptFilter) ([]model.Receipt, error) {
	var conditions []string
	var args []any

	if !filter.IncludeDeleted {
		conditions = append(conditions, "r.deleted_at IS NULL")
	}
	if filter.Status != "" {
		if !filter.Status.Valid() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, filter.Status)
		}
		conditions = append(conditions, "r.status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + receiptColumns + `
		FROM receipts r
		LEFT JOIN vendors v ON v.id = r.vendor_id`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY r.id"

	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}

	var receipts []model.Receipt
	for rows.Next() {
		receipt, scanErr := scanReceipt(rows)
		if scanErr != nil {
			_ = rows.Close()
			return nil, scanErr
		}
		receipts = append(receipts, *receipt)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("error iterating receipts: %w", err)
	}
	_ = rows.Close()

	// Items are loaded after the cursor is closed; the pool holds one connection.
	for i := range receipts {
		items, err := loadItems(ctx, q, receipts[i].ID)
		if err != nil {
			return nil, err
		}
		receipts[i].Items = items
	}

	return receipts, nil
}

// ReceiptExists reports whether a receipt with the given source hash was already loaded.
func (s *SQLiteStorage) ReceiptExists(ctx context.Context, sourceHash string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(sourceHash, "sourceHash"); err != nil {
		return false, err
	}
	return s.receiptExistsTx(ctx, s.db, sourceHash)
}

func (s *SQLiteStorage) receiptExistsTx(ctx context.Context, q queryable, sourceHash string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM receipts WHERE source_hash = ?)
	`, sourceHash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check receipt existence: %w", err)
	}
	return exists, nil
}

// SetReceiptStatus records a reconciliation outcome.
func (s *SQLiteStorage) SetReceiptStatus(ctx context.Context, id int64, status model.ReceiptStatus, findings []string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}
	return s.setReceiptStatusTx(ctx, s.db, id, status, findings)
}

func (s *SQLiteStorage) setReceiptStatusTx(ctx context.Context, q queryable, id int64, status model.ReceiptStatus, findings []string) error {
	encoded, err := encodeFindings(findings)
	if err != nil {
		return err
	}

	result, err := q.ExecContext(ctx, `
		UPDATE receipts
		SET status = ?, validation_errors = ?
		WHERE id = ? AND deleted_at IS NULL
	`, string(status), encoded, id)
	if err != nil {
		return fmt.Errorf("failed to update receipt status: %w", err)
	}

	return requireAffected(result)
}

// DeleteReceipt marks a receipt as deleted. Deleted receipts are excluded
// from listings and queries but keep their source hash.
func (s *SQLiteStorage) DeleteReceipt(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.deleteReceiptTx(ctx, s.db, id)
}

func (s *SQLiteStorage) deleteReceiptTx(ctx context.Context, q queryable, id int64) error {
	result, err := q.ExecContext(ctx, `
		UPDATE receipts SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL
	`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete receipt: %w", err)
	}

	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return common.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row rowScanner) (*model.Receipt, error) {
	var (
		r                                        model.Receipt
		date, findings, snapshot, hash           sql.NullString
		subtotal, tax, service, discount         sql.NullFloat64
		cash, card, change                       sql.NullFloat64
		typeCount, itemCount                     sql.NullInt64
		paymentMethod, status                    string
		deletedAt                                sql.NullTime
		vendorID                                 sql.NullInt64
		vendorName, vendorAddr, vendorPhone, biz sql.NullString
	)

	err := row.Scan(
		&r.ID, &date, &subtotal, &tax, &service, &discount,
		&r.Header.TotalAmount, &paymentMethod, &cash, &card, &change,
		&typeCount, &itemCount, &status, &r.Confidence,
		&findings, &snapshot, &hash, &r.CreatedAt, &deletedAt,
		&vendorID, &vendorName, &vendorAddr, &vendorPhone, &biz,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan receipt: %w", err)
	}

	r.Header.Date = nullStringPtr(date)
	r.Header.Subtotal = nullFloatPtr(subtotal)
	r.Header.TaxAmount = nullFloatPtr(tax)
	r.Header.ServiceCharge = nullFloatPtr(service)
	r.Header.Discount = nullFloatPtr(discount)
	r.Header.CashPaid = nullFloatPtr(cash)
	r.Header.CardPaid = nullFloatPtr(card)
	r.Header.ChangeAmount = nullFloatPtr(change)
	r.Header.ItemTypeCount = nullIntPtr(typeCount)
	r.Header.TotalItemCount = nullIntPtr(itemCount)
	r.Header.PaymentMethod = model.PaymentMethod(paymentMethod)
	r.Status = model.ReceiptStatus(status)
	r.SourceHash = hash.String
	if snapshot.Valid {
		r.Snapshot = []byte(snapshot.String)
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		r.DeletedAt = &t
	}
	if findings.Valid && findings.String != "" {
		if err := json.Unmarshal([]byte(findings.String), &r.ValidationErrors); err != nil {
			return nil, fmt.Errorf("failed to decode validation errors for receipt %d: %w", r.ID, err)
		}
	}
	if vendorID.Valid {
		r.Vendor = &model.Vendor{
			ID:             vendorID.Int64,
			Name:           vendorName.String,
			Address:        nullStringPtr(vendorAddr),
			Phone:          nullStringPtr(vendorPhone),
			BusinessNumber: nullStringPtr(biz),
		}
	}

	return &r, nil
}

type itemRow struct {
	item     model.LineItem
	id       int64
	parentID int64
}

// loadItems rebuilds the item tree of a receipt in original order.
func loadItems(ctx context.Context, q queryable, receiptID int64) ([]model.LineItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, parent_id, name, quantity, unit_price, total_price
		FROM line_items
		WHERE receipt_id = ?
		ORDER BY parent_id, position
	`, receiptID)
	if err != nil {
		return nil, fmt.Errorf("failed to query line items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	children := make(map[int64][]itemRow)
	for rows.Next() {
		var ir itemRow
		var parent sql.NullInt64
		var unit sql.NullFloat64
		if err := rows.Scan(&ir.id, &parent, &ir.item.Name, &ir.item.Quantity, &unit, &ir.item.TotalPrice); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		ir.parentID = parent.Int64
		ir.item.UnitPrice = nullFloatPtr(unit)
		children[ir.parentID] = append(children[ir.parentID], ir)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating line items: %w", err)
	}

	return buildItemTree(children, 0), nil
}

func buildItemTree(children map[int64][]itemRow, parentID int64) []model.LineItem {
	rows := children[parentID]
	if len(rows) == 0 {
		return nil
	}
	items := make([]model.LineItem, 0, len(rows))
	for _, ir := range rows {
		item := ir.item
		item.SubItems = buildItemTree(children, ir.id)
		items = append(items, item)
	}
	return items
}

func encodeFindings(findings []string) (any, error) {
	if len(findings) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(findings)
	if err != nil {
		return nil, fmt.Errorf("failed to encode validation errors: %w", err)
	}
	return string(data), nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
