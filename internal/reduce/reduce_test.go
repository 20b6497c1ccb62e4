package reduce_test

import (
	"testing"

	"codeberg.org/mutker/smlmqttprocessor/internal/reduce"
	"codeberg.org/mutker/smlmqttprocessor/internal/sml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func batchOf(field string, values ...sml.Value) sml.Batch {
	batch := make(sml.Batch, 0, len(values))
	for _, v := range values {
		batch = append(batch, sml.Message{field: v})
	}
	return batch
}

func floatOf(t *testing.T, v sml.Value) float64 {
	t.Helper()
	f, ok := v.Float64()
	require.True(t, ok)
	return f
}

func TestCollect(t *testing.T) {
	batch := sml.Batch{
		{"a": sml.Int(11), "b": sml.Int(12)},
		{"a": sml.Int(21)},
		{"b": sml.Int(32)},
	}

	assert.Equal(t, map[string][]sml.Value{
		"a": {sml.Int(11), sml.Int(21)},
		"b": {sml.Int(12), sml.Int(32)},
	}, reduce.Collect(batch))
}

func TestReduceNumericField(t *testing.T) {
	stats := reduce.Reduce(batchOf("actual", sml.Int(1), sml.Int(2), sml.Int(3)), sml.DefaultCatalog)

	assert.Equal(t, reduce.FieldStats{
		"value":  sml.Int(3),
		"first":  sml.Int(1),
		"last":   sml.Int(3),
		"median": sml.Int(2),
		"mean":   sml.Int(2),
		"min":    sml.Int(1),
		"max":    sml.Int(3),
		"stdev":  sml.Float(1.0),
	}, stats["actual"])
}

func TestReduceSingleValueHasNoStdev(t *testing.T) {
	stats := reduce.Reduce(batchOf("actual", sml.Float(4.2)), sml.DefaultCatalog)

	fs := stats["actual"]
	assert.NotContains(t, fs, reduce.StatStdev)
	assert.Equal(t, sml.Float(4.2), fs[reduce.StatMedian])
	assert.Equal(t, sml.Float(4.2), fs[reduce.StatMean])
	assert.Equal(t, sml.Float(4.2), fs[reduce.StatMin])
	assert.Equal(t, sml.Float(4.2), fs[reduce.StatMax])
}

func TestReduceTimeAndCumulativeFields(t *testing.T) {
	batch := sml.Batch{
		{"total": sml.Float(1.111), "total_tariff1": sml.Int(5), "time": sml.Float(111.1)},
		{"total": sml.Float(2.222), "total_tariff1": sml.Int(6), "time": sml.Float(222.2)},
		{"total": sml.Float(3.333), "total_tariff1": sml.Int(7), "time": sml.Float(333.3)},
	}

	stats := reduce.Reduce(batch, sml.DefaultCatalog)

	assert.Equal(t, reduce.FieldStats{
		"value": sml.Float(333.3), "first": sml.Float(111.1), "last": sml.Float(333.3),
	}, stats["time"])
	assert.Equal(t, reduce.FieldStats{
		"value": sml.Float(3.333), "first": sml.Float(1.111), "last": sml.Float(3.333),
	}, stats["total"])
	assert.Equal(t, reduce.FieldStats{
		"value": sml.Int(7), "first": sml.Int(5), "last": sml.Int(7),
	}, stats["total_tariff1"])
}

func TestReduceMixedBatch(t *testing.T) {
	batch := batchOf("actual",
		sml.Float(-11.1), sml.Float(-22.2), sml.Float(11.1),
		sml.Float(22.2), sml.Float(33.3), sml.Float(99.9))

	fs := reduce.Reduce(batch, sml.DefaultCatalog)["actual"]

	assert.Equal(t, sml.Float(99.9), fs[reduce.StatValue])
	assert.Equal(t, sml.Float(-11.1), fs[reduce.StatFirst])
	assert.Equal(t, sml.Float(99.9), fs[reduce.StatLast])
	assert.Equal(t, sml.Float(-22.2), fs[reduce.StatMin])
	assert.Equal(t, sml.Float(99.9), fs[reduce.StatMax])
	assert.InDelta(t, 22.2, floatOf(t, fs[reduce.StatMean]), 1e-9)
	assert.InDelta(t, 43.3, floatOf(t, fs[reduce.StatStdev]), 1e-9)
	// (11.1+22.2)/2 sits on a rounding tie
	assert.InDelta(t, 16.65, floatOf(t, fs[reduce.StatMedian]), 0.051)
}

func TestReduceSparseField(t *testing.T) {
	batch := sml.Batch{
		{"actual": sml.Int(10), "actual_l1": sml.Int(4)},
		{"actual": sml.Int(20)},
	}

	stats := reduce.Reduce(batch, sml.DefaultCatalog)

	require.Contains(t, stats, "actual_l1")
	assert.Equal(t, sml.Int(4), stats["actual_l1"][reduce.StatValue])
	assert.NotContains(t, stats["actual_l1"], reduce.StatStdev)
	assert.Equal(t, sml.Int(15), stats["actual"][reduce.StatMean])
	assert.Equal(t, sml.Float(7.1), stats["actual"][reduce.StatStdev])
}

func TestReduceTextValues(t *testing.T) {
	stats := reduce.Reduce(batchOf("actual", sml.Int(1), sml.Text("n/a")), sml.DefaultCatalog)

	assert.Equal(t, reduce.FieldStats{
		"value": sml.Text("n/a"), "first": sml.Int(1), "last": sml.Text("n/a"),
	}, stats["actual"])
}

func TestReduceEmpty(t *testing.T) {
	assert.Empty(t, reduce.Reduce(nil, sml.DefaultCatalog))
	assert.Empty(t, reduce.Reduce(sml.Batch{{}}, sml.DefaultCatalog))
}

func TestReduceIntegerMeanWithFraction(t *testing.T) {
	fs := reduce.Reduce(batchOf("actual", sml.Int(1), sml.Int(2)), sml.DefaultCatalog)["actual"]

	assert.Equal(t, sml.Float(1.5), fs[reduce.StatMean])
	assert.Equal(t, sml.Float(1.5), fs[reduce.StatMedian])
	assert.Equal(t, sml.Float(0.7), fs[reduce.StatStdev])
}

func TestRound(t *testing.T) {
	assert.InDelta(t, 0.2, reduce.Round(0.25), 1e-12)
	assert.InDelta(t, 0.8, reduce.Round(0.75), 1e-12)
	assert.InDelta(t, 43.3, reduce.Round(43.276), 1e-12)
	assert.InDelta(t, -1.2, reduce.Round(-1.25), 1e-12)
}

func TestStatisticsFields(t *testing.T) {
	stats := reduce.Statistics{"total": nil, "actual": nil, "time": nil}
	assert.Equal(t, []string{"actual", "time", "total"}, stats.Fields())
}
