// Package ingest turns raw receipt records into canonical receipts and loads
// them into storage in savepoint-protected batches.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Veraticus/receipt-ledger/internal/amount"
)

// Record decoding errors.
var (
	ErrEmptyRecord   = errors.New("empty record")
	ErrUnknownShape  = errors.New("record is neither a canonical nor a ground-truth receipt")
	ErrInvalidRecord = errors.New("invalid record")
)

// Shape identifies which input layout a record arrived in.
type Shape string

// Supported record shapes.
const (
	ShapeCanonical   Shape = "canonical"
	ShapeGroundTruth Shape = "ground_truth"
)

// Record is one decoded input record. Exactly one of Canonical and
// GroundTruth is set, matching Shape.
type Record struct {
	Canonical   *CanonicalRecord
	GroundTruth *GroundTruthRecord
	Shape       Shape
	// Source locates the record for batch reports, e.g. "receipts.jsonl#3".
	Source string
	// Raw is the compacted input JSON.
	Raw []byte
}

// CanonicalVendor is the vendor block of a canonical record.
type CanonicalVendor struct {
	Address        *string `json:"address,omitempty"`
	Phone          *string `json:"phone,omitempty"`
	BusinessNumber *string `json:"businessNumber,omitempty"`
	Name           string  `json:"name"`
}

// CanonicalHeader is the receipt block of a canonical record.
type CanonicalHeader struct {
	Date           *string  `json:"date,omitempty"`
	Subtotal       *float64 `json:"subtotal,omitempty" validate:"omitempty,gte=0"`
	TaxAmount      *float64 `json:"taxAmount,omitempty" validate:"omitempty,gte=0"`
	ServiceCharge  *float64 `json:"serviceCharge,omitempty" validate:"omitempty,gte=0"`
	Discount       *float64 `json:"discount,omitempty"`
	TotalAmount    *float64 `json:"totalAmount,omitempty" validate:"omitempty,gte=0"`
	CashPaid       *float64 `json:"cashPaid,omitempty" validate:"omitempty,gte=0"`
	CardPaid       *float64 `json:"cardPaid,omitempty" validate:"omitempty,gte=0"`
	ChangeAmount   *float64 `json:"changeAmount,omitempty" validate:"omitempty,gte=0"`
	ItemTypeCount  *int     `json:"itemTypeCount,omitempty" validate:"omitempty,gte=0"`
	TotalItemCount *int     `json:"totalItemCount,omitempty" validate:"omitempty,gte=0"`
	PaymentMethod  string   `json:"paymentMethod,omitempty"`
}

// CanonicalItem is one line item of a canonical record.
type CanonicalItem struct {
	Quantity   *int            `json:"quantity,omitempty" validate:"omitempty,gte=0"`
	UnitPrice  *float64        `json:"unitPrice,omitempty"`
	TotalPrice *float64        `json:"totalPrice" validate:"required,gte=0"`
	Name       string          `json:"name" validate:"required"`
	SubItems   []CanonicalItem `json:"subItems,omitempty" validate:"dive"`
}

// CanonicalRecord is the extraction-output shape.
type CanonicalRecord struct {
	Vendor     *CanonicalVendor `json:"vendor"`
	Confidence *float64         `json:"confidence,omitempty"`
	Receipt    CanonicalHeader  `json:"receipt"`
	Items      []CanonicalItem  `json:"items" validate:"dive"`
}

// GroundTruthRecord is the labeled-dataset shape. Every value is kept as the
// raw locale string and only normalized by Canonical.
type GroundTruthRecord struct {
	SubTotal  *GTSubTotal            `json:"sub_total,omitempty"`
	Total     *GTTotal               `json:"total,omitempty"`
	StoreInfo *GTStoreInfo           `json:"store_info,omitempty"`
	Menu      OneOrMany[GTMenuEntry] `json:"menu,omitempty"`
}

// GTMenuEntry is one menu line, possibly with sub-entries.
type GTMenuEntry struct {
	Name      *LocaleString          `json:"nm,omitempty"`
	Count     *LocaleString          `json:"cnt,omitempty"`
	UnitPrice *LocaleString          `json:"unitprice,omitempty"`
	Price     *LocaleString          `json:"price,omitempty"`
	Sub       OneOrMany[GTMenuEntry] `json:"sub,omitempty"`
}

// GTSubTotal holds the pre-total amounts.
type GTSubTotal struct {
	SubtotalPrice *LocaleString `json:"subtotal_price,omitempty"`
	TaxPrice      *LocaleString `json:"tax_price,omitempty"`
	ServicePrice  *LocaleString `json:"service_price,omitempty"`
	DiscountPrice *LocaleString `json:"discount_price,omitempty"`
}

// GTTotal holds the total and payment amounts.
type GTTotal struct {
	TotalPrice      *LocaleString `json:"total_price,omitempty"`
	CashPrice       *LocaleString `json:"cashprice,omitempty"`
	CreditCardPrice *LocaleString `json:"creditcardprice,omitempty"`
	ChangePrice     *LocaleString `json:"changeprice,omitempty"`
	MenuTypeCount   *LocaleString `json:"menutype_cnt,omitempty"`
	MenuQtyCount    *LocaleString `json:"menuqty_cnt,omitempty"`
}

// GTStoreInfo holds the optional vendor details.
type GTStoreInfo struct {
	Name           *LocaleString `json:"nm,omitempty"`
	Address        *LocaleString `json:"addr,omitempty"`
	Phone          *LocaleString `json:"tel,omitempty"`
	BusinessNumber *LocaleString `json:"biznum,omitempty"`
	Date           *LocaleString `json:"date,omitempty"`
}

// LocaleString is a source value that may arrive as a JSON string, a bare
// number, or a list of string fragments.
type LocaleString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *LocaleString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = LocaleString(v)
	case '[':
		var parts []LocaleString
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		joined := make([]string, 0, len(parts))
		for _, p := range parts {
			if p != "" {
				joined = append(joined, string(p))
			}
		}
		*s = LocaleString(strings.Join(joined, " "))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("unsupported value %s", string(data))
		}
		// Bare numbers are already in currency units; drop any fraction so
		// digit stripping cannot merge it into the integer part.
		if i, err := n.Int64(); err == nil {
			*s = LocaleString(strconv.FormatInt(i, 10))
		} else if f, err := n.Float64(); err == nil {
			*s = LocaleString(strconv.FormatInt(int64(f), 10))
		} else {
			*s = LocaleString(n.String())
		}
	}
	return nil
}

// OneOrMany decodes either a single JSON object or an array of them.
type OneOrMany[T any] []T

// UnmarshalJSON implements json.Unmarshaler.
func (m *OneOrMany[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = nil
		return nil
	}
	if data[0] == '[' {
		var many []T
		if err := json.Unmarshal(data, &many); err != nil {
			return err
		}
		*m = many
		return nil
	}
	var one T
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*m = OneOrMany[T]{one}
	return nil
}

// DecodeRecord compacts raw and decodes it into whichever shape its keys
// indicate. A ground-truth record may be wrapped in "gt_parse".
func DecodeRecord(raw []byte) (Record, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Record{}, ErrEmptyRecord
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(compact.Bytes(), &keys); err != nil {
		return Record{}, fmt.Errorf("%w: record must be a JSON object: %v", ErrInvalidRecord, err)
	}

	// Dataset exports carry the label as a JSON document inside a string.
	if wrapped, ok := keys["ground_truth"]; ok {
		var inner string
		if err := json.Unmarshal(wrapped, &inner); err == nil {
			return DecodeRecord([]byte(inner))
		}
		return DecodeRecord(wrapped)
	}

	rec := Record{Raw: compact.Bytes()}

	if inner, ok := keys["gt_parse"]; ok {
		var gt GroundTruthRecord
		if err := json.Unmarshal(inner, &gt); err != nil {
			return Record{}, fmt.Errorf("%w: ground truth: %v", ErrInvalidRecord, err)
		}
		rec.Shape, rec.GroundTruth = ShapeGroundTruth, &gt
		return rec, nil
	}

	_, hasReceipt := keys["receipt"]
	_, hasItems := keys["items"]
	if hasReceipt || hasItems {
		var c CanonicalRecord
		if err := json.Unmarshal(compact.Bytes(), &c); err != nil {
			return Record{}, fmt.Errorf("%w: canonical: %v", ErrInvalidRecord, err)
		}
		rec.Shape, rec.Canonical = ShapeCanonical, &c
		return rec, nil
	}

	for _, k := range []string{"menu", "sub_total", "total", "store_info"} {
		if _, ok := keys[k]; ok {
			var gt GroundTruthRecord
			if err := json.Unmarshal(compact.Bytes(), &gt); err != nil {
				return Record{}, fmt.Errorf("%w: ground truth: %v", ErrInvalidRecord, err)
			}
			rec.Shape, rec.GroundTruth = ShapeGroundTruth, &gt
			return rec, nil
		}
	}

	return Record{}, ErrUnknownShape
}

// Canonical converts the ground-truth shape to the canonical one, passing
// every monetary value through the amount normalizer exactly once.
func (g *GroundTruthRecord) Canonical() *CanonicalRecord {
	c := &CanonicalRecord{}

	if si := g.StoreInfo; si != nil {
		if name := strings.TrimSpace(si.Name.String()); name != "" {
			c.Vendor = &CanonicalVendor{
				Name:           name,
				Address:        si.Address.Ptr(),
				Phone:          si.Phone.Ptr(),
				BusinessNumber: si.BusinessNumber.Ptr(),
			}
		}
		c.Receipt.Date = si.Date.Ptr()
	}

	if st := g.SubTotal; st != nil {
		c.Receipt.Subtotal = st.SubtotalPrice.Amount()
		c.Receipt.TaxAmount = st.TaxPrice.Amount()
		c.Receipt.ServiceCharge = st.ServicePrice.Amount()
		c.Receipt.Discount = st.DiscountPrice.Amount()
	}

	if t := g.Total; t != nil {
		c.Receipt.TotalAmount = t.TotalPrice.Amount()
		c.Receipt.CashPaid = t.CashPrice.Amount()
		c.Receipt.CardPaid = t.CreditCardPrice.Amount()
		c.Receipt.ChangeAmount = t.ChangePrice.Amount()
		c.Receipt.ItemTypeCount = t.MenuTypeCount.Count()
		c.Receipt.TotalItemCount = t.MenuQtyCount.Count()
	}

	c.Items = convertMenu(g.Menu)
	return c
}

func convertMenu(entries []GTMenuEntry) []CanonicalItem {
	if len(entries) == 0 {
		return nil
	}
	items := make([]CanonicalItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, CanonicalItem{
			Name:       strings.TrimSpace(e.Name.String()),
			Quantity:   e.Count.Count(),
			UnitPrice:  e.UnitPrice.Amount(),
			TotalPrice: e.Price.Amount(),
			SubItems:   convertMenu(e.Sub),
		})
	}
	return items
}

// String returns the raw value, or "" when absent.
func (s *LocaleString) String() string {
	if s == nil {
		return ""
	}
	return string(*s)
}

// Ptr returns the trimmed raw value, or nil when absent or blank.
func (s *LocaleString) Ptr() *string {
	v := strings.TrimSpace(s.String())
	if v == "" {
		return nil
	}
	return &v
}

// Amount normalizes the value into canonical currency units.
func (s *LocaleString) Amount() *float64 {
	if s == nil {
		return nil
	}
	raw := string(*s)
	n := amount.Normalize(&raw)
	if n == nil {
		return nil
	}
	f := float64(*n)
	return &f
}

// Count normalizes the value as a whole count, e.g. "2 x" is 2.
func (s *LocaleString) Count() *int {
	if s == nil {
		return nil
	}
	n, ok := amount.NormalizeString(string(*s))
	if !ok || n > int64(^uint32(0)>>1) {
		return nil
	}
	v := int(n)
	return &v
}
