package window

import (
	"sort"

	"codeberg.org/mutker/smlmqttprocessor/internal/logger"
)

// Threshold forces an early flush when Field changes by at least Value
// between two consecutive readings. A Value below 1 is a fraction of the
// current reading, anything else an absolute difference.
type Threshold struct {
	Field string
	Value float64
}

// Relative reports whether the threshold is a fraction of the current value.
func (t Threshold) Relative() bool {
	return t.Value < 1
}

// Exceeded reports whether the step from prev to curr crosses the threshold.
func (t Threshold) Exceeded(prev, curr float64) bool {
	delta := abs(curr - prev)
	if t.Relative() {
		return delta >= t.Value*curr
	}
	return delta >= t.Value
}

// Thresholds are evaluated in order; the first one exceeded wins.
type Thresholds []Threshold

// NewThresholds builds thresholds from a field→value map, ordered by field
// name. Configuration maps keep no order, so when several thresholds are
// exceeded at once the flush is attributed to the alphabetically first
// field; whether a flush happens does not depend on the order. Non-positive
// values are dropped with a warning.
func NewThresholds(values map[string]float64) Thresholds {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	thresholds := make(Thresholds, 0, len(names))
	for _, name := range names {
		v := values[name]
		if v <= 0 {
			logger.Warn().Str("field", name).Float64("threshold", v).Msg("Invalid delta threshold, ignoring")
			continue
		}
		thresholds = append(thresholds, Threshold{Field: name, Value: v})
	}
	return thresholds
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}

	return x
}
