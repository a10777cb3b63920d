package domain

const (
	DefaultFrostThreshold   = 0
	DefaultDroughtThreshold = 35
)

// Thresholds holds the per-deployment trigger temperatures in °C.
type Thresholds struct {
	Frost   int
	Drought int
}

// Evaluate counts the days in r that satisfy the condition. The result is
// always within [0, ReadingDays]; an unknown condition matches no days.
func (t Thresholds) Evaluate(r Reading, c Condition) int {
	matched := 0
	for _, temp := range r {
		switch c {
		case ConditionFrost:
			if temp <= t.Frost {
				matched++
			}
		case ConditionDrought:
			if temp >= t.Drought {
				matched++
			}
		}
	}
	return matched
}
