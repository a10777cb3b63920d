package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Condition is the weather predicate a policy insures against.
type Condition int

const (
	ConditionFrost Condition = iota
	ConditionDrought
)

var conditionNames = map[Condition]string{
	ConditionFrost:   "FROST",
	ConditionDrought: "DROUGHT",
}

func (c Condition) String() string {
	if name, ok := conditionNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Condition(%d)", int(c))
}

// Valid reports whether c is a known condition.
func (c Condition) Valid() bool {
	_, ok := conditionNames[c]
	return ok
}

// ParseCondition accepts the condition name in any case, or the numeric form
// used by the original contract ABI ("0" = frost, "1" = drought).
func ParseCondition(s string) (Condition, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FROST", "0":
		return ConditionFrost, nil
	case "DROUGHT", "1":
		return ConditionDrought, nil
	}
	return 0, fmt.Errorf("%w: unknown weather condition %q", ErrInvalidPolicy, s)
}

func (c Condition) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Condition) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n int
		if errNum := json.Unmarshal(data, &n); errNum != nil {
			return fmt.Errorf("condition: %w", err)
		}
		s = fmt.Sprint(n)
	}
	parsed, err := ParseCondition(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Location is a fixed-point coordinate with two decimals (degrees × 100).
type Location struct {
	LatE2 int64 `json:"lat_e2"`
	LonE2 int64 `json:"lon_e2"`
}

// Degrees returns the coordinate as floating-point degrees.
func (l Location) Degrees() (lat, lon float64) {
	return float64(l.LatE2) / 100, float64(l.LonE2) / 100
}

// Policy is a registered insurance agreement.
type Policy struct {
	ID           string          `json:"id"`
	Holder       string          `json:"holder"`
	Start        int64           `json:"start"`    // unix seconds
	Duration     int64           `json:"duration"` // seconds
	Amount       decimal.Decimal `json:"amount"`
	Location     Location        `json:"location"`
	Condition    Condition       `json:"condition"`
	DailyRate    decimal.Decimal `json:"daily_rate"`
	Paid         decimal.Decimal `json:"paid"`
	RegisteredAt time.Time       `json:"registered_at"`
}

// CoverageEnd returns the end of the coverage window.
func (p Policy) CoverageEnd() time.Time {
	return time.Unix(p.Start+p.Duration, 0).UTC()
}

// Remaining returns the insured amount not yet paid out.
func (p Policy) Remaining() decimal.Decimal {
	r := p.Amount.Sub(p.Paid)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// Exhausted reports whether the policy has paid out its full insured amount.
func (p Policy) Exhausted() bool {
	return p.Paid.GreaterThanOrEqual(p.Amount)
}

// Validate checks the fields a registration must carry. Amount checks against
// the deposit and the configured minimum are the ledger's job.
func (p Policy) Validate() error {
	switch {
	case strings.TrimSpace(p.Holder) == "":
		return fmt.Errorf("%w: holder is required", ErrInvalidPolicy)
	case p.Duration <= 0:
		return fmt.Errorf("%w: duration must be positive", ErrInvalidPolicy)
	case !p.Condition.Valid():
		return fmt.Errorf("%w: unknown condition %d", ErrInvalidPolicy, int(p.Condition))
	case !p.DailyRate.IsPositive():
		return fmt.Errorf("%w: daily rate must be positive", ErrInvalidPolicy)
	case p.Location.LatE2 < -9000 || p.Location.LatE2 > 9000:
		return fmt.Errorf("%w: latitude out of range", ErrInvalidPolicy)
	case p.Location.LonE2 < -18000 || p.Location.LonE2 > 18000:
		return fmt.Errorf("%w: longitude out of range", ErrInvalidPolicy)
	}
	return nil
}
