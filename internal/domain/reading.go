package domain

import (
	"fmt"
	"math/big"
	"strings"
)

const (
	// ReadingDays is the number of daily temperatures in one reading.
	ReadingDays = 7

	// DefaultTemperatureBias shifts each packed group so that 273 reads as 0 °C.
	DefaultTemperatureBias = 273

	groupWidth = 3
	groupBase  = 1000
	maxDigits  = ReadingDays * groupWidth
)

// Reading holds seven daily temperatures in °C. Index 0 is the
// least-significant group of the packed form.
type Reading [ReadingDays]int

// RawReading is a fulfillment payload as delivered by the oracle: either the
// packed decimal integer or the structured seven-value form. Exactly one of
// the two must be set.
type RawReading struct {
	Packed       string `json:"packed,omitempty"`
	Temperatures []int  `json:"temperatures,omitempty"`
}

// ReadingCodec converts between packed decimal readings and temperatures.
type ReadingCodec struct {
	Bias int
}

// Decode unpacks a decimal string into seven temperatures.
func (c ReadingCodec) Decode(packed string) (Reading, error) {
	s := strings.TrimSpace(packed)
	if s == "" {
		return Reading{}, fmt.Errorf("%w: empty value", ErrMalformedReading)
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Reading{}, fmt.Errorf("%w: %q is not a decimal integer", ErrMalformedReading, s)
	}
	return c.DecodeInt(n)
}

// DecodeInt unpacks an integer into seven temperatures.
func (c ReadingCodec) DecodeInt(n *big.Int) (Reading, error) {
	if n == nil || n.Sign() < 0 {
		return Reading{}, fmt.Errorf("%w: value must be non-negative", ErrMalformedReading)
	}
	if digits := len(n.String()); digits > maxDigits {
		return Reading{}, fmt.Errorf("%w: %d digits exceed %d", ErrMalformedReading, digits, maxDigits)
	}

	var (
		r     Reading
		rest  = new(big.Int).Set(n)
		group = new(big.Int)
		base  = big.NewInt(groupBase)
	)
	for i := range r {
		rest.QuoRem(rest, base, group)
		r[i] = int(group.Int64()) - c.Bias
	}
	return r, nil
}

// Pack is the inverse of Decode. It fails for temperatures that do not fit in
// a three-digit group after applying the bias.
func (c ReadingCodec) Pack(r Reading) (string, error) {
	n := new(big.Int)
	base := big.NewInt(groupBase)
	for i := ReadingDays - 1; i >= 0; i-- {
		if err := c.checkRange(i, r[i]); err != nil {
			return "", err
		}
		n.Mul(n, base)
		n.Add(n, big.NewInt(int64(r[i]+c.Bias)))
	}
	return n.String(), nil
}

// checkRange rejects temperatures a packed reading could not carry, so both
// fulfillment forms accept the same values.
func (c ReadingCodec) checkRange(day, t int) error {
	if g := t + c.Bias; g < 0 || g >= groupBase {
		return fmt.Errorf("%w: day %d temperature %d outside [%d, %d]",
			ErrMalformedReading, day, t, -c.Bias, groupBase-1-c.Bias)
	}
	return nil
}

// Resolve turns a raw fulfillment payload into a reading, decoding the packed
// form when no structured temperatures are present.
func (c ReadingCodec) Resolve(raw RawReading) (Reading, error) {
	hasPacked := strings.TrimSpace(raw.Packed) != ""
	hasStructured := raw.Temperatures != nil
	switch {
	case hasPacked && hasStructured:
		return Reading{}, fmt.Errorf("%w: both packed and structured temperatures given", ErrMalformedReading)
	case hasStructured:
		if len(raw.Temperatures) != ReadingDays {
			return Reading{}, fmt.Errorf("%w: got %d temperatures, want %d",
				ErrMalformedReading, len(raw.Temperatures), ReadingDays)
		}
		var r Reading
		for i, t := range raw.Temperatures {
			if err := c.checkRange(i, t); err != nil {
				return Reading{}, err
			}
			r[i] = t
		}
		return r, nil
	case hasPacked:
		return c.Decode(raw.Packed)
	}
	return Reading{}, fmt.Errorf("%w: no reading supplied", ErrMalformedReading)
}
