package receipts

import "github.com/Veraticus/receipt-ledger/internal/model"

// Ledger fixture facts, asserted by query tests.
const (
	LedgerCount          = 6
	LedgerTotalSpending  = 310050
	LedgerFlaggedCount   = 2
	LedgerFlaggedSpend   = 125050
	LedgerVerifiedCount  = 3
	LedgerPendingCount   = 1
	LedgerTaxedCount     = 2
	LedgerTaxTotal       = 14090
	LedgerServiceTotal   = 10000
	LedgerCashCount      = 3
	LedgerCashTotal      = 110050
	LedgerCardCount      = 2
	LedgerAbove50000     = 3
	LedgerBelow20000     = 2
	LedgerLargestVendor  = "Bakmi GM"
	LedgerFlaggedVendor  = "Toko Roti Sari"
	LedgerNoVendorTotal  = 75000
	LedgerLargestReceipt = 120000
)

// Ledger returns six receipts covering every status and payment method.
// Seed them in order; IDs 1..6 follow the slice order on a fresh database.
func Ledger() []*model.Receipt {
	return []*model.Receipt{
		New("Kopi Kenangan").Date("2019-03-18").
			Item("Es Kopi Susu", 2, 36000).
			Item("Croissant", 1, 9000).
			Tax(4090).Total(45000).Cash(50000).Change(5000).
			Build(),
		New(LedgerLargestVendor).Date("2019-03-19").
			Item("Bakmi Ayam", 1, 55000).
			Item("Pangsit Goreng", 1, 30000, Sub("Extra Sambal", 0)).
			Item("Es Teh", 1, 15000).
			Subtotal(100000).Tax(10000).Service(10000).Total(120000).Card(120000).
			Build(),
		New(LedgerFlaggedVendor).Date("2019-03-20").
			Item("Roti Coklat", 2, 11000).
			Item("Roti Keju", 1, 4500).
			Subtotal(45500).Total(50050).Cash(50050).
			Reconciled().
			Build(),
		New("Warung Sate Pak Kumis").
			Item("Sate Ayam", 1, 15000).
			Total(15000).Cash(20000).Change(5000).
			Build(),
		New("").
			Item("Mixed Goods", 1, 80000).
			Total(LedgerNoVendorTotal).Cash(25000).Card(50000).
			Reconciled().
			Build(),
		New("Indomaret").
			Item("Air Mineral", 1, 5000).
			Total(5000).Card(5000).
			Status(model.StatusPending).
			Build(),
	}
}
