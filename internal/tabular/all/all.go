// Package all registers every tabular engine.
package all

import (
	_ "csvload/internal/tabular/csvfile"
	_ "csvload/internal/tabular/duckdb"
)
