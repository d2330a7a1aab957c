package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReceipt_GenerateHash(t *testing.T) {
	a := &Receipt{Snapshot: []byte(`{"receipt":{"totalAmount":10}}`)}
	b := &Receipt{Snapshot: []byte(`{"receipt":{"totalAmount":10}}`)}
	c := &Receipt{Snapshot: []byte(`{"receipt":{"totalAmount":11}}`)}

	assert.Equal(t, a.GenerateHash(), b.GenerateHash())
	assert.NotEqual(t, a.GenerateHash(), c.GenerateHash())
	assert.Len(t, a.GenerateHash(), 64)
}

func TestReceipt_VendorName(t *testing.T) {
	assert.Equal(t, "", (&Receipt{}).VendorName())
	assert.Equal(t, "Kopi Kenangan", (&Receipt{Vendor: &Vendor{Name: "Kopi Kenangan"}}).VendorName())
}

func TestStatusAndPaymentValidity(t *testing.T) {
	assert.True(t, StatusFlagged.Valid())
	assert.False(t, ReceiptStatus("FLAGGED").Valid())
	assert.True(t, PaymentMixed.Valid())
	assert.False(t, PaymentMethod("crypto").Valid())
}

func TestRow_Accessors(t *testing.T) {
	row := Row{"id": int64(7), "total_amount": 16500.0, "vendor_name": "Toko", "date": nil}

	id, ok := row.Int64("id")
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)

	total, ok := row.Float("total_amount")
	assert.True(t, ok)
	assert.InDelta(t, 16500.0, total, 0.001)

	_, ok = row.Int64("vendor_name")
	assert.False(t, ok)
	assert.Equal(t, "Toko", row.String("vendor_name"))
	assert.Equal(t, "", row.String("date"))
	assert.Equal(t, "", row.String("missing"))
}
