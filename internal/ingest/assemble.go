package ingest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Veraticus/receipt-ledger/internal/model"
	"github.com/Veraticus/receipt-ledger/internal/reconcile"
)

var validate = validator.New()

// Assemble builds a canonical receipt from one decoded record. Absent source
// fields stay absent. Canonical records that break the non-negative amount or
// named-item invariants are rejected; ground-truth records never are, and
// their unnamed or unpriced lines are left for the validator to report. The
// result is pending and carries no ID or timestamp, so assembling the same
// record twice yields identical output.
func Assemble(rec Record) (*model.Receipt, error) {
	var c *CanonicalRecord
	confidence := 1.0

	switch {
	case rec.GroundTruth != nil:
		c = rec.GroundTruth.Canonical()
	case rec.Canonical != nil:
		c = rec.Canonical
		if err := validate.Struct(c); err != nil {
			return nil, describeValidation(err)
		}
		if c.Confidence != nil {
			confidence = clamp(*c.Confidence, 0, 1)
		}
	default:
		return nil, ErrUnknownShape
	}

	receipt := &model.Receipt{
		Status:     model.StatusPending,
		Confidence: confidence,
		Header:     assembleHeader(c.Receipt),
		Items:      assembleItems(c.Items),
		Snapshot:   rec.Raw,
	}

	if v := c.Vendor; v != nil && strings.TrimSpace(v.Name) != "" {
		receipt.Vendor = &model.Vendor{
			Name:           strings.TrimSpace(v.Name),
			Address:        v.Address,
			Phone:          v.Phone,
			BusinessNumber: v.BusinessNumber,
		}
	}

	if len(receipt.Snapshot) > 0 {
		receipt.SourceHash = receipt.GenerateHash()
	}

	return receipt, nil
}

func assembleHeader(h CanonicalHeader) model.ReceiptHeader {
	header := model.ReceiptHeader{
		Date:           h.Date,
		Subtotal:       h.Subtotal,
		TaxAmount:      h.TaxAmount,
		ServiceCharge:  h.ServiceCharge,
		Discount:       h.Discount,
		CashPaid:       h.CashPaid,
		CardPaid:       h.CardPaid,
		ChangeAmount:   h.ChangeAmount,
		ItemTypeCount:  h.ItemTypeCount,
		TotalItemCount: h.TotalItemCount,
	}

	if h.TotalAmount != nil {
		header.TotalAmount = *h.TotalAmount
	} else {
		header.TotalMissing = true
	}

	header.PaymentMethod = model.PaymentMethod(strings.ToLower(strings.TrimSpace(h.PaymentMethod)))
	if !header.PaymentMethod.Valid() {
		header.PaymentMethod = reconcile.InferPaymentMethod(h.CashPaid, h.CardPaid)
	}

	return header
}

func assembleItems(items []CanonicalItem) []model.LineItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]model.LineItem, 0, len(items))
	for _, item := range items {
		quantity := 1
		if item.Quantity != nil {
			quantity = *item.Quantity
		}
		line := model.LineItem{
			Name:      strings.TrimSpace(item.Name),
			Quantity:  quantity,
			UnitPrice: item.UnitPrice,
			SubItems:  assembleItems(item.SubItems),
		}
		if item.TotalPrice != nil {
			line.TotalPrice = *item.TotalPrice
		} else {
			line.PriceMissing = true
		}
		out = append(out, line)
	}
	return out
}

// describeValidation flattens validator errors into one readable error.
func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "CanonicalRecord.")
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "gte":
			msgs = append(msgs, field+" must not be negative")
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidRecord, strings.Join(msgs, "; "))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
