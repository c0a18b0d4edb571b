// Package schema turns the columns of a delimited file into SQL column
// descriptors: a canonical type, the engine's raw label and nullability.
package schema

import "strings"

// SQLType is the closed set of canonical column types every backend can
// render.
type SQLType int

const (
	// Unknown never survives inference; it renders and resolves as TEXT.
	Unknown SQLType = iota
	Int
	BigInt
	Float
	Double
	Text
	Date
	Timestamp
	Boolean
)

var typeNames = [...]string{
	Unknown:   "TEXT",
	Int:       "INT",
	BigInt:    "BIGINT",
	Float:     "FLOAT",
	Double:    "DOUBLE",
	Text:      "TEXT",
	Date:      "DATE",
	Timestamp: "TIMESTAMP",
	Boolean:   "BOOLEAN",
}

// Types lists every canonical type once, Unknown excluded.
func Types() []SQLType {
	return []SQLType{Int, BigInt, Float, Double, Text, Date, Timestamp, Boolean}
}

func (t SQLType) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return typeNames[Text]
	}
	return typeNames[t]
}

// Resolve collapses Unknown and out-of-range values to Text.
func (t SQLType) Resolve() SQLType {
	if t <= Unknown || int(t) >= len(typeNames) {
		return Text
	}
	return t
}

// ParseSQLType is the inverse of String. Unrecognized names yield Text.
func ParseSQLType(s string) SQLType {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, t := range Types() {
		if typeNames[t] == s {
			return t
		}
	}
	return Text
}

// MarshalText encodes the type as its canonical name.
func (t SQLType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a canonical name; unknown names decode to Text.
func (t *SQLType) UnmarshalText(b []byte) error {
	*t = ParseSQLType(string(b))
	return nil
}

// Column describes one inferred column.
type Column struct {
	Name       string  `json:"name"`
	Type       SQLType `json:"type"`
	SourceType string  `json:"sourceType"`
	Nullable   bool    `json:"nullable"`
}
