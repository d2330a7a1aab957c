package model

// Vendor is the store that issued a receipt. Vendors are identified by name;
// the first record seen with a given name becomes the canonical vendor.
type Vendor struct {
	Address        *string `json:"address,omitempty"`
	Phone          *string `json:"phone,omitempty"`
	BusinessNumber *string `json:"businessNumber,omitempty"`
	Name           string  `json:"name"`
	ID             int64   `json:"id,omitempty"`
}
