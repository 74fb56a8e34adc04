package flow

import (
	"strings"

	"github.com/shopspring/decimal"
)

var suffixMultipliers = map[byte]decimal.Decimal{
	'K': decimal.NewFromInt(1_000),
	'M': decimal.NewFromInt(1_000_000),
	'B': decimal.NewFromInt(1_000_000_000),
}

// ParseAmount reads a spreadsheet number such as "$1,234", "1.2M" or "500K".
// The second result is false when the cell is empty or not a number.
func ParseAmount(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}

	mult := decimal.NewFromInt(1)
	last := s[len(s)-1]
	if last >= 'a' && last <= 'z' {
		last -= 'a' - 'A'
	}
	if m, ok := suffixMultipliers[last]; ok {
		mult = m
		s = strings.TrimSpace(s[:len(s)-1])
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d.Mul(mult), true
}

// nonNegative parses an amount and defaults unparseable or negative cells to zero.
func nonNegative(raw string) decimal.Decimal {
	d, ok := ParseAmount(raw)
	if !ok || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// contracts parses a quantity cell as a whole number of contracts.
func contracts(raw string) int64 {
	return nonNegative(raw).Round(0).IntPart()
}
