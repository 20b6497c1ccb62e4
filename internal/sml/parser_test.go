package sml_test

import (
	"testing"

	"codeberg.org/mutker/smlmqttprocessor/internal/errors"
	"codeberg.org/mutker/smlmqttprocessor/internal/sml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line  string
		field string
		value sml.Value
	}{
		{"1-0:1.8.0*255#123.4#Wh", "total", sml.Float(123.4)},
		{"1-0:1.8.1*255#123.4#Wh", "total_tariff1", sml.Float(123.4)},
		{"1-0:1.8.2*255#123.4#Wh", "total_tariff2", sml.Float(123.4)},
		{"1-0:1.8.3*255#123.4#Wh", "total_tariff3", sml.Float(123.4)},
		{"1-0:1.8.4*255#123.4#Wh", "total_tariff4", sml.Float(123.4)},
		{"1-0:2.8.0*255#123.4#Wh", "total_export", sml.Float(123.4)},
		{"1-0:2.8.1*255#123.4#Wh", "total_export_tariff1", sml.Float(123.4)},
		{"1-0:2.8.2*255#123.4#Wh", "total_export_tariff2", sml.Float(123.4)},
		{"1-0:2.8.3*255#123.4#Wh", "total_export_tariff3", sml.Float(123.4)},
		{"1-0:2.8.4*255#123.4#Wh", "total_export_tariff4", sml.Float(123.4)},
		{"1-0:1.7.0*255#123.4#W", "actual_170", sml.Float(123.4)},
		{"1-0:16.7.0*255#123.4#W", "actual", sml.Float(123.4)},
		{"1-0:36.7.0*255#123.4#W", "actual_l1", sml.Float(123.4)},
		{"1-0:56.7.0*255#123.4#W", "actual_l2", sml.Float(123.4)},
		{"1-0:76.7.0*255#123.4#W", "actual_l3", sml.Float(123.4)},
		{"act_sensor_time#1234#", "time", sml.Int(1234)},
		{"act_sensor_time#foobar#", "time", sml.Text("foobar")},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			field, value, ok, err := sml.ParseLine(tt.line)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.field, field)
			assert.Equal(t, tt.value, value)
		})
	}
}

func TestParseLineIgnored(t *testing.T) {
	for _, line := range []string{"", "x#1234#", "1-0:96.1.0*255#0a 01 49 53 4b 00 04 32 5e c5 #"} {
		_, _, ok, err := sml.ParseLine(line)
		assert.NoError(t, err, line)
		assert.False(t, ok, line)
	}
}

func TestParseLineMalformed(t *testing.T) {
	for _, line := range []string{"1-0:2.8.0*255", "1-0:2.8.0*255#1", "1-0:2.8.0*255#foo", "1-0:2.8.0*255#12#Wh#extra", "1-0:2.8.0*255#12#Wh#"} {
		t.Run(line, func(t *testing.T) {
			_, _, ok, err := sml.ParseLine(line)
			require.Error(t, err)
			assert.False(t, ok)

			var malformed *sml.MalformedLineError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, "total_export", malformed.Field)
			assert.Equal(t, line, malformed.Line)
			assert.True(t, errors.Is(err, errors.New().New(errors.ErrMalformedLine)))
		})
	}
}

func TestParserCustomCatalog(t *testing.T) {
	p := sml.NewParser(sml.Catalog{{Name: "gas", Pattern: "7-0:3.0.0*255"}})

	field, value, ok, err := p.Parse("7-0:3.0.0*255#42#m3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "gas", field)
	assert.Equal(t, sml.Int(42), value)

	_, _, ok, err = p.Parse("1-0:1.8.0*255#123.4#Wh")
	require.NoError(t, err)
	assert.False(t, ok)
}
