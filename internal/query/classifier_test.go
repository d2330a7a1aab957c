package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/receipt-ledger/internal/model"
)

func TestClassifier_Classify(t *testing.T) {
	tests := []struct {
		threshold *int64
		name      string
		input     string
		want      Intent
		payment   model.PaymentMethod
	}{
		{name: "count flagged beats count and flagged", input: "how many flagged receipts are there", want: IntentCountFlagged},
		{name: "count all", input: "How many receipts do we have?", want: IntentCountAll},
		{name: "number of", input: "number of receipts", want: IntentCountAll},
		{name: "total spending", input: "What is our total spending?", want: IntentTotalSpending},
		{name: "spend on flagged stays spending", input: "how much did we spend on flagged receipts", want: IntentTotalSpending},
		{name: "spending with modifier is not total", input: "spending above 100,000", want: IntentHighValue, threshold: ptr(100000)},
		{name: "flagged listing", input: "Show me the suspicious receipts", want: IntentFlaggedReceipts},
		{name: "high value", input: "Show receipts above 50000", want: IntentHighValue, threshold: ptr(50000)},
		{name: "high value grouped digits", input: "receipts over Rp 1,250,000 please", want: IntentHighValue, threshold: ptr(1250000)},
		{name: "high without threshold", input: "what was the highest receipt", want: IntentListReceipts},
		{name: "low value", input: "receipts below 20000", want: IntentLowValue, threshold: ptr(20000)},
		{name: "payment grouped", input: "break down by payment method", want: IntentPaymentBreakdown},
		{name: "payment cash", input: "which receipts were paid in cash", want: IntentPaymentBreakdown, payment: model.PaymentCash},
		{name: "payment card", input: "show card payments", want: IntentPaymentBreakdown, payment: model.PaymentCard},
		{name: "payment both words", input: "cash or card payments", want: IntentPaymentBreakdown},
		{name: "tax", input: "what about VAT?", want: IntentTaxInfo},
		{name: "audit", input: "show audit findings", want: IntentAuditFindings},
		{name: "validation errors", input: "any validation errors?", want: IntentAuditFindings},
		{name: "vendor only defaults", input: "which vendors do we use", want: IntentListReceipts},
		{name: "nothing matches", input: "hello there", want: IntentListReceipts},
		{name: "empty", input: "", want: IntentListReceipts},
		{name: "case insensitive", input: "HOW MANY FLAGGED", want: IntentCountFlagged},
		{name: "word boundaries", input: "show the taxonomy of overlays", want: IntentListReceipts},
	}

	c := NewClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.input)
			assert.Equal(t, tt.want, got.Intent)
			assert.Equal(t, tt.payment, got.Payment)
			if tt.threshold != nil {
				require.NotNil(t, got.Threshold)
				assert.Equal(t, *tt.threshold, *got.Threshold)
			}
		})
	}
}

func TestClassifier_Labels(t *testing.T) {
	got := NewClassifier().Classify("How much tax did the store charge last month?")

	for _, label := range []Label{LabelTotalSpending, LabelTax, LabelVendor, LabelRecent, LabelDate} {
		assert.True(t, got.Has(label), "expected label %s", label)
	}
	assert.False(t, got.Has(LabelFlagged))
	assert.Nil(t, got.Threshold)
}

func TestClassifier_TotalFunction(t *testing.T) {
	valid := map[Intent]bool{
		IntentTotalSpending: true, IntentCountAll: true, IntentCountFlagged: true,
		IntentFlaggedReceipts: true, IntentHighValue: true, IntentLowValue: true,
		IntentPaymentBreakdown: true, IntentTaxInfo: true, IntentAuditFindings: true,
		IntentListReceipts: true,
	}

	inputs := []string{
		"", " ", "?", "12345", "1,2,3", "🧾 receipts", "SELECT * FROM receipts",
		"flag count tax cash card audit above below total", "\x00\xff", "under 0",
	}

	c := NewClassifier()
	for _, in := range inputs {
		assert.True(t, valid[c.Classify(in).Intent], "input %q", in)
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "how many receipts", Normalize("  how \n many\treceipts "))
	assert.Empty(t, Normalize("   "))
}

func ptr(v int64) *int64 { return &v }
