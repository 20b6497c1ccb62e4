// Package reduce condenses a batch of readings into per-field statistics.
package reduce

import (
	"math"
	"sort"

	"codeberg.org/mutker/smlmqttprocessor/internal/sml"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Statistic names as they appear in topics and JSON payloads.
const (
	StatValue  = "value"
	StatFirst  = "first"
	StatLast   = "last"
	StatMedian = "median"
	StatMean   = "mean"
	StatMin    = "min"
	StatMax    = "max"
	StatStdev  = "stdev"
)

// StatOrder is the canonical publishing order of statistics.
var StatOrder = []string{StatValue, StatFirst, StatLast, StatMedian, StatMean, StatMin, StatMax, StatStdev}

// FieldStats maps a statistic name to its value.
type FieldStats map[string]sml.Value

// Statistics maps a field name to its statistics.
type Statistics map[string]FieldStats

// Fields returns the field names in ascending order.
func (s Statistics) Fields() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Collect turns readings into per-field value lists, keeping batch order.
// Readings without a field are skipped for that field.
func Collect(batch sml.Batch) map[string][]sml.Value {
	records := make(map[string][]sml.Value)
	for _, msg := range batch {
		for name, v := range msg {
			records[name] = append(records[name], v)
		}
	}
	return records
}

// Reduce computes the statistics of batch. The time field and cumulative
// counters only get value, first and last.
func Reduce(batch sml.Batch, catalog sml.Catalog) Statistics {
	result := make(Statistics)
	for name, values := range Collect(batch) {
		if len(values) == 0 {
			continue
		}

		if name == sml.TimeField || catalog.IsCumulative(name) {
			result[name] = endpoints(values)
			continue
		}

		result[name] = describe(values)
	}
	return result
}

func endpoints(values []sml.Value) FieldStats {
	return FieldStats{
		StatValue: values[len(values)-1],
		StatFirst: values[0],
		StatLast:  values[len(values)-1],
	}
}

func describe(values []sml.Value) FieldStats {
	fs := endpoints(values)

	xs := make([]float64, len(values))
	allInts := true
	for i, v := range values {
		f, ok := v.Float64()
		if !ok {
			// no arithmetic on text readings
			return fs
		}
		xs[i] = f
		allInts = allInts && v.Kind() == sml.KindInt
	}

	fs[StatMedian] = number(median(xs), allInts)
	fs[StatMean] = number(stat.Mean(xs, nil), allInts)
	fs[StatMin] = values[floats.MinIdx(xs)]
	fs[StatMax] = values[floats.MaxIdx(xs)]
	if len(xs) > 1 {
		fs[StatStdev] = sml.Float(Round(stat.StdDev(xs, nil)))
	}

	return fs
}

func median(xs []float64) float64 {
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// number keeps integer results of integer inputs as integers.
func number(x float64, allInts bool) sml.Value {
	if allInts && x == math.Trunc(x) && math.Abs(x) < math.MaxInt64 {
		return sml.Int(int64(x))
	}
	return sml.Float(Round(x))
}

// Round rounds x to one decimal place, ties to even.
func Round(x float64) float64 {
	return math.RoundToEven(x*10) / 10
}
