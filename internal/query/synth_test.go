package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/receipt-ledger/internal/model"
)

func TestSynthesize_HighValueScenario(t *testing.T) {
	c := NewClassifier().Classify("Show receipts above 50000")
	require.Equal(t, IntentHighValue, c.Intent)
	require.NotNil(t, c.Threshold)
	assert.Equal(t, int64(50000), *c.Threshold)

	q := Synthesize(c)
	assert.Equal(t, IntentHighValue, q.Intent)
	assert.Contains(t, q.SQL, "r.total_amount > ?")
	assert.Contains(t, q.SQL, "ORDER BY r.total_amount DESC")
	assert.Contains(t, q.SQL, "LIMIT 20")
	assert.Equal(t, []any{int64(50000)}, q.Args)
	assert.NotContains(t, q.SQL, "50000", "threshold must be bound, not interpolated")
}

func TestSynthesize_Templates(t *testing.T) {
	tests := []struct {
		c        Classification
		name     string
		contains []string
		args     []any
		limited  bool
	}{
		{
			name:     "total spending",
			c:        Classification{Intent: IntentTotalSpending},
			contains: []string{"SUM(r.total_amount)", "flagged_spending"},
			args:     []any{"flagged", "flagged"},
		},
		{
			name:     "count all",
			c:        Classification{Intent: IntentCountAll},
			contains: []string{"COUNT(*) AS receipt_count"},
		},
		{
			name:     "count flagged",
			c:        Classification{Intent: IntentCountFlagged},
			contains: []string{"r.status = ?"},
			args:     []any{"flagged"},
		},
		{
			name:     "flagged listing",
			c:        Classification{Intent: IntentFlaggedReceipts},
			contains: []string{"r.status = ?", "validation_errors"},
			args:     []any{"flagged"},
			limited:  true,
		},
		{
			name:     "low value",
			c:        Classification{Intent: IntentLowValue, Threshold: ptr(20000)},
			contains: []string{"r.total_amount < ?"},
			args:     []any{int64(20000)},
			limited:  true,
		},
		{
			name:     "payment grouped",
			c:        Classification{Intent: IntentPaymentBreakdown},
			contains: []string{"GROUP BY r.payment_method"},
		},
		{
			name:     "payment filtered",
			c:        Classification{Intent: IntentPaymentBreakdown, Payment: model.PaymentCash},
			contains: []string{"r.payment_method = ?"},
			args:     []any{"cash"},
			limited:  true,
		},
		{
			name:     "tax",
			c:        Classification{Intent: IntentTaxInfo},
			contains: []string{"SUM(r.tax_amount)", "SUM(r.service_charge)"},
		},
		{
			name:     "audit",
			c:        Classification{Intent: IntentAuditFindings},
			contains: []string{"r.validation_errors IS NOT NULL"},
			limited:  true,
		},
		{
			name:    "list",
			c:       Classification{Intent: IntentListReceipts},
			limited: true,
		},
		{
			name:    "unknown intent lists",
			c:       Classification{Intent: "weather"},
			limited: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Synthesize(tt.c)
			assert.Contains(t, q.SQL, "r.deleted_at IS NULL")
			for _, s := range tt.contains {
				assert.Contains(t, q.SQL, s)
			}
			assert.Equal(t, tt.args, q.Args)
			assert.Equal(t, tt.limited, strings.Contains(q.SQL, "LIMIT 20"))
			assert.Equal(t, strings.Count(q.SQL, "?"), len(q.Args))
		})
	}
}
