package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Price is an amount in whole currency units. The shop sells services priced
// in round numbers, so there is no minor-unit component.
type Price int64

// UnmarshalJSON accepts both 2500 and "2500".
// The product admin stores prices as strings, the public listing as numbers.
func (p *Price) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = 0
		return nil
	}

	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*p = Price(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("price must be a number or numeric string: %w", err)
	}
	v, err := ParsePrice(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ParsePrice converts a whole-unit amount string to a Price.
// Decimal inputs are truncated ("2500.00" → 2500).
// Examples: "2500" → 2500, " 500 " → 500, "" → error, "NaN" → error
func ParsePrice(s string) (Price, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty price")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", s, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("price %q out of range", s)
	}
	return Price(int64(f)), nil
}

// FormatAmount renders an amount for button labels and notices.
// The currency suffix is optional: FormatAmount(2500, "TJS") → "2500 TJS".
func FormatAmount(amount Price, currency string) string {
	if currency == "" {
		return strconv.FormatInt(int64(amount), 10)
	}
	return strconv.FormatInt(int64(amount), 10) + " " + currency
}
