package schema

import "strings"

// MapRawType maps a tabular engine's type label to a canonical type.
//
// Matching is case-insensitive on the trimmed label and runs in this order:
//
//	BIGINT                     -> BigInt
//	anything containing INT    -> Int     (INTEGER, SMALLINT, TINYINT, HUGEINT, ...)
//	DOUBLE, REAL               -> Double
//	FLOAT                      -> Float
//	DATE                       -> Date
//	DATETIME, TIMESTAMP*       -> Timestamp
//	anything else              -> Text
//
// Boolean labels are deliberately Text here: booleanness comes from the
// profiler's value sample, never from the label.
func MapRawType(label string) SQLType {
	l := strings.ToUpper(strings.TrimSpace(label))

	switch {
	case l == "BIGINT":
		return BigInt
	case strings.Contains(l, "INT"):
		return Int
	case l == "DOUBLE" || l == "REAL":
		return Double
	case l == "FLOAT":
		return Float
	case l == "DATE":
		return Date
	case l == "DATETIME" || strings.HasPrefix(l, "TIMESTAMP"):
		return Timestamp
	default:
		return Text
	}
}
