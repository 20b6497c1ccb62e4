// Package sml understands the text output of libSML's sml_server: which lines
// open a new reading, which OBIS codes are of interest, and how a reading is
// assembled from its data lines.
package sml

import "strings"

// TimeField is the sensor time reported with every reading.
const TimeField = "time"

// Field maps a published field name to the line prefix it is read from.
type Field struct {
	Name    string
	Pattern string
	// Cumulative marks meter counters, which are never averaged.
	Cumulative bool
}

// Catalog is an ordered, read-only list of known fields.
type Catalog []Field

// DefaultCatalog lists the OBIS codes published by the supported meters.
// See https://wiki.volkszaehler.org/software/obis
var DefaultCatalog = Catalog{
	{Name: "total", Pattern: "1-0:1.8.0*255", Cumulative: true},
	{Name: "total_tariff1", Pattern: "1-0:1.8.1*255", Cumulative: true},
	{Name: "total_tariff2", Pattern: "1-0:1.8.2*255", Cumulative: true},
	{Name: "total_tariff3", Pattern: "1-0:1.8.3*255", Cumulative: true},
	{Name: "total_tariff4", Pattern: "1-0:1.8.4*255", Cumulative: true},

	{Name: "total_export", Pattern: "1-0:2.8.0*255", Cumulative: true},
	{Name: "total_export_tariff1", Pattern: "1-0:2.8.1*255", Cumulative: true},
	{Name: "total_export_tariff2", Pattern: "1-0:2.8.2*255", Cumulative: true},
	{Name: "total_export_tariff3", Pattern: "1-0:2.8.3*255", Cumulative: true},
	{Name: "total_export_tariff4", Pattern: "1-0:2.8.4*255", Cumulative: true},

	{Name: "actual", Pattern: "1-0:16.7.0*255"},
	{Name: "actual_l1", Pattern: "1-0:36.7.0*255"},
	{Name: "actual_l2", Pattern: "1-0:56.7.0*255"},
	{Name: "actual_l3", Pattern: "1-0:76.7.0*255"},
	{Name: "actual_170", Pattern: "1-0:1.7.0*255"},

	{Name: TimeField, Pattern: "act_sensor_time"},
}

// Match returns the first field whose pattern prefixes line.
func (c Catalog) Match(line string) (Field, bool) {
	for _, f := range c {
		if strings.HasPrefix(line, f.Pattern) {
			return f, true
		}
	}
	return Field{}, false
}

// Lookup returns the field with the given name.
func (c Catalog) Lookup(name string) (Field, bool) {
	for _, f := range c {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// IsCumulative reports whether name is a meter counter.
func (c Catalog) IsCumulative(name string) bool {
	f, ok := c.Lookup(name)
	return ok && f.Cumulative
}

// Headers are the manufacturer identification lines that open a reading.
var Headers = []string{
	"1-0:96.50.1*1#",         // ISKRA
	"129-129:199.130.3*255#", // EMH
}

// IsHeader reports whether line opens a new reading.
func IsHeader(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	for _, h := range Headers {
		if strings.HasPrefix(line, h) {
			return true
		}
	}
	return false
}
