package sml

import (
	"fmt"
	"strings"

	"codeberg.org/mutker/smlmqttprocessor/internal/errors"
)

const separator = "#"

// MalformedLineError is returned for a known field whose line is not
// made of code, value and unit.
type MalformedLineError struct {
	Line  string
	Field string
}

func (e *MalformedLineError) Error() string {
	return fmt.Sprintf("malformed line for field %q: %q", e.Field, e.Line)
}

func (e *MalformedLineError) Unwrap() error {
	return errors.New().New(errors.ErrMalformedLine)
}

// Parser turns data lines into field readings.
type Parser struct {
	catalog Catalog
}

func NewParser(catalog Catalog) *Parser {
	return &Parser{catalog: catalog}
}

// ParseLine parses line with the default catalog.
func ParseLine(line string) (string, Value, bool, error) {
	return NewParser(DefaultCatalog).Parse(line)
}

// Parse returns the field name and value of a data line. ok is false when
// the line is empty or belongs to no known field; neither case is an error.
func (p *Parser) Parse(line string) (name string, v Value, ok bool, err error) {
	if line == "" {
		return "", Value{}, false, nil
	}

	field, found := p.catalog.Match(line)
	if !found {
		return "", Value{}, false, nil
	}

	parts := strings.Split(line, separator) // code, value, unit
	if len(parts) != 3 {
		return "", Value{}, false, &MalformedLineError{Line: line, Field: field.Name}
	}

	return field.Name, Coerce(parts[1]), true, nil
}
