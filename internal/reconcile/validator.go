// Package reconcile checks that a receipt's item-level amounts agree with
// its declared subtotal or total, and infers how it was paid.
package reconcile

import (
	"fmt"
	"math"

	"github.com/Veraticus/receipt-ledger/internal/amount"
	"github.com/Veraticus/receipt-ledger/internal/model"
)

// DefaultTolerance is the allowed relative gap between the item sum and the
// expected subtotal.
const DefaultTolerance = 0.05

// Result is the outcome of validating one receipt. Failure is data, never
// an error value.
type Result struct {
	Status    model.ReceiptStatus
	Errors    []string
	ItemsSum  float64
	Expected  float64
	Tolerance float64
}

// OK reports whether the receipt passed every check.
func (r Result) OK() bool {
	return len(r.Errors) == 0
}

// Validator reconciles receipts against a relative tolerance.
type Validator struct {
	tolerance float64
}

// NewValidator creates a validator. A non-positive ratio selects DefaultTolerance.
func NewValidator(tolerance float64) *Validator {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Validator{tolerance: tolerance}
}

// Validate runs the required-field checks, the line item checks and the
// tolerance check, and returns their errors in that order.
//
// Sub-item prices are left out of the item sum; their price is assumed to be
// folded into the parent line already, so an unpriced sub-item is not a
// finding. An unnamed one is.
func (v *Validator) Validate(r *model.Receipt) Result {
	res := Result{Status: model.StatusVerified}
	if r == nil {
		res.Status = model.StatusFlagged
		res.Errors = []string{"receipt is missing"}
		return res
	}

	if r.Header.TotalMissing {
		res.Errors = append(res.Errors, "total amount is missing")
	} else if r.Header.TotalAmount <= 0 {
		res.Errors = append(res.Errors, fmt.Sprintf("total amount must be positive, got %s", amount.Format(r.Header.TotalAmount)))
	}
	if len(r.Items) == 0 {
		res.Errors = append(res.Errors, "receipt has no line items")
	}

	res.Errors = append(res.Errors, itemFindings(r.Items)...)

	for _, item := range r.Items {
		res.ItemsSum += item.TotalPrice
	}

	res.Expected = r.Header.TotalAmount
	if r.Header.Subtotal != nil {
		res.Expected = *r.Header.Subtotal
	}
	res.Tolerance = res.Expected * v.tolerance

	if diff := math.Abs(res.ItemsSum - res.Expected); diff > res.Tolerance {
		res.Errors = append(res.Errors, fmt.Sprintf(
			"line items sum to %s but expected %s (difference %s exceeds tolerance %s)",
			amount.Format(res.ItemsSum),
			amount.Format(res.Expected),
			amount.Format(diff),
			amount.Format(res.Tolerance),
		))
	}

	if len(res.Errors) > 0 {
		res.Status = model.StatusFlagged
	}
	return res
}

func itemFindings(items []model.LineItem) []string {
	var findings []string
	for i, item := range items {
		if item.Name == "" {
			findings = append(findings, fmt.Sprintf("line item %d has no name", i+1))
		}
		if item.PriceMissing {
			findings = append(findings, fmt.Sprintf("line item %d (%s) has no price", i+1, itemLabel(item)))
		}
		for j, sub := range item.SubItems {
			if sub.Name == "" {
				findings = append(findings, fmt.Sprintf("line item %d sub-item %d has no name", i+1, j+1))
			}
		}
	}
	return findings
}

func itemLabel(item model.LineItem) string {
	if item.Name == "" {
		return "unnamed"
	}
	return item.Name
}

// Apply validates r and records the status and findings on it.
func (v *Validator) Apply(r *model.Receipt) Result {
	res := v.Validate(r)
	if r != nil {
		r.Status = res.Status
		r.ValidationErrors = res.Errors
	}
	return res
}

// InferPaymentMethod derives the payment method from the paid amounts:
// both cash and card present and non-zero is mixed, otherwise whichever is
// present, otherwise other.
func InferPaymentMethod(cashPaid, cardPaid *float64) model.PaymentMethod {
	cash := cashPaid != nil && *cashPaid != 0
	card := cardPaid != nil && *cardPaid != 0

	switch {
	case cash && card:
		return model.PaymentMixed
	case cash:
		return model.PaymentCash
	case card:
		return model.PaymentCard
	default:
		return model.PaymentOther
	}
}
