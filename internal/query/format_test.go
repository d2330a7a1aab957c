package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/receipt-ledger/internal/model"
)

func TestFormatter_EmptyResult(t *testing.T) {
	f := NewFormatter("")
	for _, intent := range []Intent{
		IntentTotalSpending, IntentCountAll, IntentFlaggedReceipts, IntentHighValue,
		IntentPaymentBreakdown, IntentTaxInfo, IntentAuditFindings, IntentListReceipts,
	} {
		answer := f.Format(Classification{Intent: intent}, nil)
		assert.Equal(t, NoResultsMessage, answer.Text, intent)
		assert.NotNil(t, answer.ReferencedReceipts, intent)
		assert.Empty(t, answer.ReferencedReceipts, intent)
	}

	assert.Equal(t, NoResultsMessage, f.FormatRows(nil).Text)
}

func TestFormatter_Aggregates(t *testing.T) {
	tests := []struct {
		name string
		c    Classification
		row  model.Row
		want string
	}{
		{
			name: "total spending with flagged share",
			c:    Classification{Intent: IntentTotalSpending},
			row: model.Row{
				"receipt_count": int64(6), "total_spending": 310050.0, "average_amount": 51675.0,
				"flagged_count": int64(2), "flagged_spending": 125050.0,
			},
			want: "Total spending is Rp 310,050 across 6 receipts (average Rp 51,675). 2 flagged receipts account for Rp 125,050.",
		},
		{
			name: "total spending no flagged",
			c:    Classification{Intent: IntentTotalSpending},
			row:  model.Row{"receipt_count": int64(1), "total_spending": 15.5, "average_amount": 15.5, "flagged_count": int64(0)},
			want: "Total spending is Rp 15.50 across 1 receipt (average Rp 15.50).",
		},
		{
			name: "total spending over nothing",
			c:    Classification{Intent: IntentTotalSpending},
			row:  model.Row{"receipt_count": int64(0), "total_spending": int64(0)},
			want: NoResultsMessage,
		},
		{
			name: "count all",
			c:    Classification{Intent: IntentCountAll},
			row:  model.Row{"receipt_count": int64(6), "total_spending": 310050.0},
			want: "There are 6 receipts totalling Rp 310,050.",
		},
		{
			name: "count flagged single",
			c:    Classification{Intent: IntentCountFlagged},
			row:  model.Row{"receipt_count": int64(1), "total_spending": 50050.0},
			want: "There is 1 flagged receipt totalling Rp 50,050.",
		},
		{
			name: "count flagged none",
			c:    Classification{Intent: IntentCountFlagged},
			row:  model.Row{"receipt_count": int64(0), "total_spending": int64(0)},
			want: "There are 0 flagged receipts.",
		},
		{
			name: "tax",
			c:    Classification{Intent: IntentTaxInfo},
			row:  model.Row{"taxed_count": int64(2), "total_tax": 14090.0, "average_tax": 7045.0, "total_service": 10000.0},
			want: "Tax of Rp 14,090 was recorded on 2 receipts (average Rp 7,045). Service charges total Rp 10,000.",
		},
		{
			name: "no tax at all",
			c:    Classification{Intent: IntentTaxInfo},
			row:  model.Row{"taxed_count": int64(0), "total_tax": int64(0), "total_service": int64(0)},
			want: NoResultsMessage,
		},
	}

	f := NewFormatter("Rp")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answer := f.Format(tt.c, []model.Row{tt.row})
			assert.Equal(t, tt.want, answer.Text)
			assert.Equal(t, SourceRules, answer.Source)
			assert.Empty(t, answer.ReferencedReceipts)
		})
	}
}

func TestFormatter_Listing(t *testing.T) {
	rows := []model.Row{
		{
			"id": int64(3), "vendor": "Toko Roti Sari", "total_amount": 50050.0, "payment_method": "cash",
			"status": "flagged", "receipt_date": "2019-03-20",
			"validation_errors": `["line items sum to 15,500 but expected 45,500","second"]`,
		},
		{"id": int64(5), "vendor": nil, "total_amount": 75000.0, "payment_method": "mixed", "status": "flagged", "receipt_date": nil},
	}

	f := NewFormatter("IDR")

	flagged := f.Format(Classification{Intent: IntentFlaggedReceipts}, rows)
	assert.Equal(t, "Found 2 flagged receipts:\n"+
		"1. #3 Toko Roti Sari, IDR 50,050 (cash, flagged, 2019-03-20): line items sum to 15,500 but expected 45,500\n"+
		"2. #5 Unknown vendor, IDR 75,000 (mixed, flagged)", flagged.Text)
	assert.Equal(t, []int64{3, 5}, flagged.ReferencedReceipts)

	audit := f.Format(Classification{Intent: IntentAuditFindings}, rows[:1])
	assert.Contains(t, audit.Text, "Found 1 receipt with audit findings:")
	assert.Contains(t, audit.Text, "expected 45,500; second")

	high := f.Format(Classification{Intent: IntentHighValue, Threshold: ptr(50000)}, rows)
	assert.True(t, strings.HasPrefix(high.Text, "Found 2 receipts above IDR 50,000:\n"))

	cash := f.Format(Classification{Intent: IntentPaymentBreakdown, Payment: model.PaymentCash}, rows[:1])
	assert.True(t, strings.HasPrefix(cash.Text, "Found 1 receipt paid by cash:\n"))
}

func TestFormatter_PaymentBreakdown(t *testing.T) {
	rows := []model.Row{
		{"payment_method": "card", "receipt_count": int64(2), "total_spending": 125000.0},
		{"payment_method": "cash", "receipt_count": int64(1), "total_spending": 45000.0},
	}
	answer := NewFormatter("").Format(Classification{Intent: IntentPaymentBreakdown}, rows)
	assert.Equal(t, "Spending by payment method:\n- card: 2 receipts, Rp 125,000\n- cash: 1 receipt, Rp 45,000", answer.Text)
	assert.Empty(t, answer.ReferencedReceipts)
}

func TestReferences_Capped(t *testing.T) {
	rows := make([]model.Row, 30)
	for i := range rows {
		rows[i] = model.Row{"id": int64(100 - i)}
	}
	rows[1] = model.Row{"vendor": "no id"}

	refs := References(rows)
	assert.Len(t, refs, MaxReferences)
	assert.Equal(t, int64(100), refs[0])
	assert.Equal(t, int64(98), refs[1])
}

func TestFormatter_FormatRows(t *testing.T) {
	rows := []model.Row{
		{"id": int64(2), "name": "Bakmi GM", "total": 120000.0, "note": nil},
	}
	answer := NewFormatter("").FormatRows(rows)
	assert.Equal(t, "Found 1 result:\n1. id: 2, name: Bakmi GM, note: -, total: 120,000", answer.Text)
	assert.Equal(t, SourceFallback, answer.Source)
	assert.Equal(t, []int64{2}, answer.ReferencedReceipts)
}
