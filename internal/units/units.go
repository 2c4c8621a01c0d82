// Package units converts registry token amounts between their smallest-denomination
// integer strings and human token units, and extracts canonical version identifiers.
package units

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimals is the number of decimal places between the smallest unit and one token.
const Decimals = 18

// VersionSeparator splits a version descriptor into its canonical id and suffix.
const VersionSeparator = "-"

// Parse converts a smallest-unit amount into exact token units. The input must be
// a plain base-10 integer; empty, signed, fractional and exponent forms yield zero.
func Parse(raw string) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if !isDigits(raw) {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d.Shift(-Decimals)
}

// ToTokenUnits converts a smallest-unit amount into token units as a float.
// Amounts beyond the float64 range yield zero.
func ToTokenUnits(raw string) float64 {
	f := Parse(raw).InexactFloat64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ToRaw converts token units back into a smallest-unit integer string.
// Fractions below the smallest unit are truncated.
func ToRaw(tokens decimal.Decimal) string {
	if tokens.IsNegative() {
		return "0"
	}
	return tokens.Shift(Decimals).Truncate(0).String()
}

// FromTokenUnits is ToRaw for a float amount.
func FromTokenUnits(tokens float64) string {
	return ToRaw(decimal.NewFromFloat(tokens))
}

// VersionID returns the canonical id of the first version descriptor, the
// segment before VersionSeparator. ok is false when there are no descriptors.
func VersionID(versions []string) (id string, ok bool) {
	if len(versions) == 0 {
		return "", false
	}
	id, _, _ = strings.Cut(versions[0], VersionSeparator)
	if id == "" {
		return "", false
	}
	return id, true
}
