// Package amount converts locale-formatted price strings into canonical
// integer currency units and renders amounts back with thousands grouping.
//
// Source data uses the comma as a thousands separator, never as a decimal
// point: "16,500" is 16500. Normalization is lossy by design and must only
// be applied to raw strings, never to an already-normalized number.
package amount

import (
	"math"
	"strconv"
	"strings"
)

// NormalizeString strips every non-ASCII-digit character from s and parses
// what remains. The boolean is false when no digits remain or the digits
// overflow int64.
func NormalizeString(s string) (int64, bool) {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	v, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Normalize is the optional-aware form of NormalizeString: a nil input or
// a string without digits yields nil.
func Normalize(s *string) *int64 {
	if s == nil {
		return nil
	}
	v, ok := NormalizeString(*s)
	if !ok {
		return nil
	}
	return &v
}

// Format renders v with comma thousands grouping. Whole values print without
// decimals ("16,500"); fractional values keep two ("15.50").
func Format(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}

	whole, frac := math.Modf(v)
	cents := int64(math.Round(frac * 100))
	if cents == 100 {
		whole++
		cents = 0
	}

	out := group(strconv.FormatInt(int64(whole), 10))
	if cents != 0 {
		out += "." + strconv.FormatInt(cents/10, 10) + strconv.FormatInt(cents%10, 10)
	}
	if neg {
		out = "-" + out
	}
	return out
}

func group(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
