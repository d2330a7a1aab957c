// Package query answers natural-language questions about the receipt
// ledger. A question is classified into a fixed intent, mapped to one
// parameterized query template, executed, and rendered by a deterministic
// formatter. An optional language model path can replace the rule-based
// query and formatting steps.
package query

import (
	"regexp"
	"strings"

	"github.com/Veraticus/receipt-ledger/internal/amount"
	"github.com/Veraticus/receipt-ledger/internal/model"
)

// Intent is one of the fixed question categories.
type Intent string

// Supported intents.
const (
	IntentTotalSpending    Intent = "total_spending"
	IntentCountAll         Intent = "count_all"
	IntentCountFlagged     Intent = "count_flagged"
	IntentFlaggedReceipts  Intent = "flagged_receipts"
	IntentHighValue        Intent = "high_value"
	IntentLowValue         Intent = "low_value"
	IntentPaymentBreakdown Intent = "payment_breakdown"
	IntentTaxInfo          Intent = "tax_info"
	IntentAuditFindings    Intent = "audit_findings"
	IntentListReceipts     Intent = "list_receipts"
)

// Label is a trigger-word group matched against a question.
type Label string

// Pattern labels, in table order.
const (
	LabelTotalSpending Label = "total_spending"
	LabelHighValue     Label = "high_value"
	LabelLowValue      Label = "low_value"
	LabelFlagged       Label = "flagged"
	LabelPaymentMethod Label = "payment_method"
	LabelCount         Label = "count"
	LabelTax           Label = "tax"
	LabelVendor        Label = "vendor"
	LabelCategory      Label = "category"
	LabelAudit         Label = "audit"
	LabelRecent        Label = "recent"
	LabelDate          Label = "date"
)

type pattern struct {
	re    *regexp.Regexp
	label Label
}

var patterns = []pattern{
	{label: LabelTotalSpending, re: regexp.MustCompile(`(?i)\b(total|sum|spent|spend|spending|how much)\b`)},
	{label: LabelHighValue, re: regexp.MustCompile(`(?i)\b(above|over|more than|greater than|higher than|exceeds?|exceeding|at least|expensive|high|highest|largest|biggest)\b`)},
	{label: LabelLowValue, re: regexp.MustCompile(`(?i)\b(below|under|less than|lower than|cheaper than|at most|cheap|cheapest|low|lowest|smallest)\b`)},
	{label: LabelFlagged, re: regexp.MustCompile(`(?i)\b(flag|flagged|invalid|suspicious|mismatch|mismatched|discrepancy|discrepancies)\b`)},
	{label: LabelPaymentMethod, re: regexp.MustCompile(`(?i)\b(payment|payments|paid|pay|cash|card|credit|debit|method)\b`)},
	{label: LabelCount, re: regexp.MustCompile(`(?i)\b(how many|count|number of)\b`)},
	{label: LabelTax, re: regexp.MustCompile(`(?i)\b(tax|taxes|vat|ppn|service charge)\b`)},
	{label: LabelVendor, re: regexp.MustCompile(`(?i)\b(vendor|vendors|store|stores|shop|shops|merchant|merchants|restaurant)\b`)},
	{label: LabelCategory, re: regexp.MustCompile(`(?i)\b(category|categories|kind|type)\b`)},
	{label: LabelAudit, re: regexp.MustCompile(`(?i)\b(audit|review|findings?|validation|errors?|issues?)\b`)},
	{label: LabelRecent, re: regexp.MustCompile(`(?i)\b(recent|latest|last|newest)\b`)},
	{label: LabelDate, re: regexp.MustCompile(`(?i)\b(today|yesterday|week|month|year|date|january|february|march|april|may|june|july|august|september|october|november|december)\b`)},
}

var (
	thresholdPattern = regexp.MustCompile(`\d+(?:,\d+)*`)
	cashWord         = regexp.MustCompile(`(?i)\bcash\b`)
	cardWord         = regexp.MustCompile(`(?i)\bcard\b`)
)

// Classification is the result of classifying one question.
type Classification struct {
	Labels map[Label]bool
	// Threshold is the first number in the question, when there is one.
	Threshold *int64
	// Payment narrows payment_breakdown to one method; empty groups by method.
	Payment model.PaymentMethod
	Intent  Intent
}

// Has reports whether label matched.
func (c Classification) Has(label Label) bool {
	return c.Labels[label]
}

type rule struct {
	match  func(Classification) bool
	intent Intent
}

// rules is evaluated top to bottom and the first match wins. The order
// resolves overlapping trigger words and must not be changed casually.
var rules = []rule{
	{intent: IntentCountFlagged, match: func(c Classification) bool { return c.Has(LabelCount) && c.Has(LabelFlagged) }},
	{intent: IntentCountAll, match: func(c Classification) bool { return c.Has(LabelCount) }},
	{intent: IntentTotalSpending, match: func(c Classification) bool {
		return c.Has(LabelTotalSpending) && !c.Has(LabelHighValue) && !c.Has(LabelLowValue)
	}},
	{intent: IntentFlaggedReceipts, match: func(c Classification) bool { return c.Has(LabelFlagged) }},
	{intent: IntentHighValue, match: func(c Classification) bool { return c.Has(LabelHighValue) && c.Threshold != nil }},
	{intent: IntentLowValue, match: func(c Classification) bool { return c.Has(LabelLowValue) && c.Threshold != nil }},
	{intent: IntentPaymentBreakdown, match: func(c Classification) bool { return c.Has(LabelPaymentMethod) }},
	{intent: IntentTaxInfo, match: func(c Classification) bool { return c.Has(LabelTax) }},
	{intent: IntentAuditFindings, match: func(c Classification) bool { return c.Has(LabelAudit) }},
}

// Classifier maps free text to exactly one intent. It holds no mutable state
// and is safe for concurrent use.
type Classifier struct{}

// NewClassifier creates a classifier over the built-in pattern table.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify never fails: text that matches no rule is list_receipts.
func (*Classifier) Classify(text string) Classification {
	c := Classification{Labels: make(map[Label]bool), Intent: IntentListReceipts}

	for _, p := range patterns {
		if p.re.MatchString(text) {
			c.Labels[p.label] = true
		}
	}

	if digits := thresholdPattern.FindString(text); digits != "" {
		if v, ok := amount.NormalizeString(digits); ok {
			c.Threshold = &v
		}
	}

	for _, r := range rules {
		if r.match(c) {
			c.Intent = r.intent
			break
		}
	}

	if c.Intent == IntentPaymentBreakdown {
		c.Payment = paymentFilter(text)
	}

	return c
}

// paymentFilter picks cash or card when exactly one of the two words appears.
func paymentFilter(text string) model.PaymentMethod {
	cash, card := cashWord.MatchString(text), cardWord.MatchString(text)
	switch {
	case cash && !card:
		return model.PaymentCash
	case card && !cash:
		return model.PaymentCard
	default:
		return ""
	}
}

// Normalize trims and collapses whitespace in a question.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
