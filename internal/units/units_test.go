package units

import (
	"math"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestToTokenUnits(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
	}{
		{name: "one thousand tokens", raw: "1000000000000000000000", want: 1000},
		{name: "fractional token", raw: "250000000000000000", want: 0.25},
		{name: "zero", raw: "0", want: 0},
		{name: "empty", raw: "", want: 0},
		{name: "whitespace", raw: "  1000000000000000000 ", want: 1},
		{name: "malformed", raw: "12abc", want: 0},
		{name: "negative", raw: "-1000000000000000000", want: 0},
		{name: "scientific notation", raw: "1.5e18", want: 0},
		{name: "exponent overflow", raw: "1e400", want: 0},
		{name: "fractional exponent", raw: "1.5e3", want: 0},
		{name: "decimal point", raw: "1000.5", want: 0},
		{name: "plus sign", raw: "+1000000000000000000", want: 0},
		{name: "beyond float range", raw: "1" + strings.Repeat("0", 399), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ToTokenUnits(tt.raw), 1e-12)
		})
	}
}

func TestToTokenUnits_AlwaysFinite(t *testing.T) {
	for _, raw := range []string{"1e400", "9" + strings.Repeat("9", 400), "NaN", "Inf"} {
		got := ToTokenUnits(raw)
		assert.False(t, math.IsInf(got, 0) || math.IsNaN(got), raw)
	}
}

func TestParse_LargeIntegerStaysExact(t *testing.T) {
	raw := "1" + strings.Repeat("0", 399)
	assert.Equal(t, raw, ToRaw(Parse(raw)))
}

func TestRawRoundTrip(t *testing.T) {
	inputs := []string{
		"0",
		"1",
		"999999999999999999",
		"1000000000000000000",
		"123456789012345678901234567890",
		"5000000000000000000000000",
	}

	for _, raw := range inputs {
		t.Run(raw, func(t *testing.T) {
			assert.Equal(t, raw, ToRaw(Parse(raw)))
		})
	}
}

func TestFromTokenUnits(t *testing.T) {
	assert.Equal(t, "1000000000000000000000", FromTokenUnits(1000))
	assert.Equal(t, "250000000000000000", FromTokenUnits(0.25))
	assert.Equal(t, 1000.0, ToTokenUnits(FromTokenUnits(1000)))
}

func TestToRaw_Negative(t *testing.T) {
	assert.Equal(t, "0", ToRaw(decimal.NewFromInt(-3)))
}

func TestVersionID(t *testing.T) {
	tests := []struct {
		name     string
		versions []string
		wantID   string
		wantOK   bool
	}{
		{
			name:     "takes segment before separator",
			versions: []string{"9kVpuw3Cgf6NQckem8SXH7TQGXsJ8Hb8Zm6mQF7eaiyd-0", "other-1"},
			wantID:   "9kVpuw3Cgf6NQckem8SXH7TQGXsJ8Hb8Zm6mQF7eaiyd",
			wantOK:   true,
		},
		{
			name:     "no separator",
			versions: []string{"abc"},
			wantID:   "abc",
			wantOK:   true,
		},
		{name: "no versions", versions: nil, wantOK: false},
		{name: "empty descriptor", versions: []string{"-1"}, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := VersionID(tt.versions)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
		})
	}
}
