// Package receipts provides a fluent builder for canonical receipts and a
// fixed ledger of fixtures shared by storage, ingest and query tests.
//
// Example usage:
//
//	r := receipts.New("Kopi Kenangan").
//		Item("Es Kopi Susu", 2, 36000).
//		Total(36000).
//		Cash(50000).
//		Build()
package receipts

import (
	"encoding/json"

	"github.com/Veraticus/receipt-ledger/internal/model"
	"github.com/Veraticus/receipt-ledger/internal/reconcile"
)

// Builder assembles a model.Receipt for tests.
type Builder struct {
	r model.Receipt
}

// New starts a verified receipt. An empty vendor name leaves the vendor unset.
func New(vendor string) *Builder {
	b := &Builder{r: model.Receipt{Status: model.StatusVerified, Confidence: 1}}
	if vendor != "" {
		b.r.Vendor = &model.Vendor{Name: vendor}
	}
	return b
}

// Date sets the receipt date.
func (b *Builder) Date(d string) *Builder {
	b.r.Header.Date = &d
	return b
}

// Total sets the receipt total.
func (b *Builder) Total(v float64) *Builder {
	b.r.Header.TotalAmount = v
	return b
}

// Subtotal sets the receipt subtotal.
func (b *Builder) Subtotal(v float64) *Builder {
	b.r.Header.Subtotal = &v
	return b
}

// Tax sets the tax amount.
func (b *Builder) Tax(v float64) *Builder {
	b.r.Header.TaxAmount = &v
	return b
}

// Service sets the service charge.
func (b *Builder) Service(v float64) *Builder {
	b.r.Header.ServiceCharge = &v
	return b
}

// Cash sets the cash paid amount.
func (b *Builder) Cash(v float64) *Builder {
	b.r.Header.CashPaid = &v
	return b
}

// Card sets the card paid amount.
func (b *Builder) Card(v float64) *Builder {
	b.r.Header.CardPaid = &v
	return b
}

// Change sets the change amount.
func (b *Builder) Change(v float64) *Builder {
	b.r.Header.ChangeAmount = &v
	return b
}

// Item appends a top-level line item.
func (b *Builder) Item(name string, qty int, total float64, subs ...model.LineItem) *Builder {
	b.r.Items = append(b.r.Items, model.LineItem{Name: name, Quantity: qty, TotalPrice: total, SubItems: subs})
	return b
}

// Sub builds a sub-item for Item.
func Sub(name string, total float64) model.LineItem {
	return model.LineItem{Name: name, Quantity: 1, TotalPrice: total}
}

// Status overrides the status, with optional findings.
func (b *Builder) Status(s model.ReceiptStatus, findings ...string) *Builder {
	b.r.Status = s
	b.r.ValidationErrors = findings
	return b
}

// Reconciled runs the default validator so status and findings match the data.
func (b *Builder) Reconciled() *Builder {
	reconcile.NewValidator(reconcile.DefaultTolerance).Apply(&b.r)
	return b
}

// Build returns the receipt. The payment method is inferred from the paid
// amounts and the snapshot is the receipt's own JSON, which keeps source
// hashes distinct across fixtures.
func (b *Builder) Build() *model.Receipt {
	r := b.r
	r.Header.PaymentMethod = reconcile.InferPaymentMethod(r.Header.CashPaid, r.Header.CardPaid)
	r.Snapshot, _ = json.Marshal(r)
	r.SourceHash = r.GenerateHash()
	return &r
}
