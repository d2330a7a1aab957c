package query

import (
	"fmt"

	"github.com/Veraticus/receipt-ledger/internal/model"
)

// ListLimit caps every listing template.
const ListLimit = 20

// Query is a synthesized statement with its bound arguments.
type Query struct {
	SQL    string
	Args   []any
	Intent Intent
}

const listColumns = `SELECT r.id AS id,
	v.name AS vendor,
	r.receipt_date AS receipt_date,
	r.total_amount AS total_amount,
	r.payment_method AS payment_method,
	r.status AS status,
	r.validation_errors AS validation_errors
FROM receipts r
LEFT JOIN vendors v ON v.id = r.vendor_id
WHERE r.deleted_at IS NULL`

var listOrder = fmt.Sprintf("\nORDER BY r.total_amount DESC, r.id\nLIMIT %d", ListLimit)

// Synthesize maps a classification to its query template. User-derived
// values are always bound as arguments.
func Synthesize(c Classification) Query {
	q := Query{Intent: c.Intent}

	switch c.Intent {
	case IntentTotalSpending:
		q.SQL = `SELECT COUNT(*) AS receipt_count,
	COALESCE(SUM(r.total_amount), 0) AS total_spending,
	COALESCE(AVG(r.total_amount), 0) AS average_amount,
	COALESCE(SUM(CASE WHEN r.status = ? THEN 1 ELSE 0 END), 0) AS flagged_count,
	COALESCE(SUM(CASE WHEN r.status = ? THEN r.total_amount ELSE 0 END), 0) AS flagged_spending
FROM receipts r
WHERE r.deleted_at IS NULL`
		q.Args = []any{string(model.StatusFlagged), string(model.StatusFlagged)}

	case IntentCountAll:
		q.SQL = `SELECT COUNT(*) AS receipt_count,
	COALESCE(SUM(r.total_amount), 0) AS total_spending
FROM receipts r
WHERE r.deleted_at IS NULL`

	case IntentCountFlagged:
		q.SQL = `SELECT COUNT(*) AS receipt_count,
	COALESCE(SUM(r.total_amount), 0) AS total_spending
FROM receipts r
WHERE r.deleted_at IS NULL AND r.status = ?`
		q.Args = []any{string(model.StatusFlagged)}

	case IntentFlaggedReceipts:
		q.SQL = listColumns + "\n\tAND r.status = ?" + listOrder
		q.Args = []any{string(model.StatusFlagged)}

	case IntentHighValue:
		q.SQL = listColumns + "\n\tAND r.total_amount > ?" + listOrder
		q.Args = []any{threshold(c)}

	case IntentLowValue:
		q.SQL = listColumns + "\n\tAND r.total_amount < ?" + listOrder
		q.Args = []any{threshold(c)}

	case IntentPaymentBreakdown:
		if c.Payment != "" {
			q.SQL = listColumns + "\n\tAND r.payment_method = ?" + listOrder
			q.Args = []any{string(c.Payment)}
			break
		}
		q.SQL = `SELECT r.payment_method AS payment_method,
	COUNT(*) AS receipt_count,
	COALESCE(SUM(r.total_amount), 0) AS total_spending
FROM receipts r
WHERE r.deleted_at IS NULL
GROUP BY r.payment_method
ORDER BY total_spending DESC, r.payment_method`

	case IntentTaxInfo:
		q.SQL = `SELECT COUNT(r.tax_amount) AS taxed_count,
	COALESCE(SUM(r.tax_amount), 0) AS total_tax,
	COALESCE(AVG(r.tax_amount), 0) AS average_tax,
	COALESCE(SUM(r.service_charge), 0) AS total_service
FROM receipts r
WHERE r.deleted_at IS NULL`

	case IntentAuditFindings:
		q.SQL = listColumns + "\n\tAND r.validation_errors IS NOT NULL" + listOrder

	default:
		q.Intent = IntentListReceipts
		q.SQL = listColumns + listOrder
	}

	return q
}

func threshold(c Classification) int64 {
	if c.Threshold == nil {
		return 0
	}
	return *c.Threshold
}
