// Package model defines the core domain models used throughout the application.
package model

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// ReceiptStatus is the reconciliation state of a receipt.
type ReceiptStatus string

// Receipt status constants.
const (
	StatusPending  ReceiptStatus = "pending"
	StatusVerified ReceiptStatus = "verified"
	StatusFlagged  ReceiptStatus = "flagged"
)

// Valid reports whether s is a known status.
func (s ReceiptStatus) Valid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusFlagged:
		return true
	}
	return false
}

// PaymentMethod describes how a receipt was settled.
type PaymentMethod string

// Payment method constants.
const (
	PaymentCash  PaymentMethod = "cash"
	PaymentCard  PaymentMethod = "card"
	PaymentMixed PaymentMethod = "mixed"
	PaymentOther PaymentMethod = "other"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentMixed, PaymentOther:
		return true
	}
	return false
}

// LineItem is a single charged entry on a receipt. TotalPrice is the
// authoritative charge; UnitPrice*Quantity is informational only.
type LineItem struct {
	UnitPrice  *float64   `json:"unitPrice,omitempty"`
	Name       string     `json:"name"`
	SubItems   []LineItem `json:"subItems,omitempty"`
	Quantity   int        `json:"quantity"`
	TotalPrice float64    `json:"totalPrice"`
	// PriceMissing is set when the source line carried no price, leaving
	// TotalPrice at zero.
	PriceMissing bool `json:"-"`
}

// ReceiptHeader holds the receipt-level amounts and payment details.
type ReceiptHeader struct {
	Date           *string       `json:"date,omitempty"`
	Subtotal       *float64      `json:"subtotal,omitempty"`
	TaxAmount      *float64      `json:"taxAmount,omitempty"`
	ServiceCharge  *float64      `json:"serviceCharge,omitempty"`
	Discount       *float64      `json:"discount,omitempty"`
	CashPaid       *float64      `json:"cashPaid,omitempty"`
	CardPaid       *float64      `json:"cardPaid,omitempty"`
	ChangeAmount   *float64      `json:"changeAmount,omitempty"`
	ItemTypeCount  *int          `json:"itemTypeCount,omitempty"`
	TotalItemCount *int          `json:"totalItemCount,omitempty"`
	PaymentMethod  PaymentMethod `json:"paymentMethod"`
	TotalAmount    float64       `json:"totalAmount"`
	// TotalMissing is set when the source carried no total at all, as
	// opposed to an explicit zero.
	TotalMissing bool `json:"-"`
}

// Receipt is the canonical aggregate built from one source record.
type Receipt struct {
	CreatedAt        time.Time     `json:"createdAt"`
	DeletedAt        *time.Time    `json:"deletedAt,omitempty"`
	Vendor           *Vendor       `json:"vendor,omitempty"`
	Status           ReceiptStatus `json:"status"`
	SourceHash       string        `json:"sourceHash"`
	Snapshot         []byte        `json:"-"`
	Items            []LineItem    `json:"items"`
	ValidationErrors []string      `json:"validationErrors,omitempty"`
	Header           ReceiptHeader `json:"receipt"`
	ID               int64         `json:"id,omitempty"`
	Confidence       float64       `json:"confidence"`
}

// GenerateHash fingerprints the original input so a record loaded twice
// can be recognized as a duplicate.
func (r *Receipt) GenerateHash() string {
	hash := sha256.Sum256(r.Snapshot)
	return fmt.Sprintf("%x", hash)
}

// VendorName returns the vendor name, or "" when no vendor is known.
func (r *Receipt) VendorName() string {
	if r.Vendor == nil {
		return ""
	}
	return r.Vendor.Name
}
