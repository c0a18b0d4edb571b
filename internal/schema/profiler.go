package schema

import (
	"context"
	"fmt"
	"strings"

	"csvload/internal/tabular"
)

// DefaultBooleanSampleSize is how many distinct non-blank values the
// profiler inspects when deciding whether a column is boolean.
const DefaultBooleanSampleSize = 5

// booleanTokens are the trimmed, lower-cased values a boolean column may hold.
var booleanTokens = map[string]struct{}{
	"0": {}, "1": {}, "true": {}, "false": {}, "yes": {}, "no": {},
}

// Profile is what the profiler learns about one column.
type Profile struct {
	Nullable  bool
	IsBoolean bool
}

// ProfileColumn inspects column col of rel.
//
// Nullable is true when at least one row is blank (empty or whitespace only).
// IsBoolean is true when the sample of up to sampleSize distinct non-blank
// values is non-empty and every value is a boolean token. The sample is
// whatever the engine returns first, so a column with many distinct values
// is classified on a subset; that is a heuristic, not a guarantee.
//
// A sampleSize <= 0 uses DefaultBooleanSampleSize. Engine failures are
// returned as-is.
func ProfileColumn(ctx context.Context, rel tabular.Relation, col int, sampleSize int) (Profile, error) {
	if sampleSize <= 0 {
		sampleSize = DefaultBooleanSampleSize
	}

	blanks, err := rel.CountBlank(ctx, col)
	if err != nil {
		return Profile{}, fmt.Errorf("profile column %d: count blank: %w", col, err)
	}

	sample, err := rel.DistinctNonBlank(ctx, col, sampleSize)
	if err != nil {
		return Profile{}, fmt.Errorf("profile column %d: sample values: %w", col, err)
	}

	return Profile{
		Nullable:  blanks > 0,
		IsBoolean: isBooleanSample(sample),
	}, nil
}

func isBooleanSample(sample []string) bool {
	if len(sample) == 0 {
		return false
	}
	for _, v := range sample {
		if _, ok := booleanTokens[strings.ToLower(strings.TrimSpace(v))]; !ok {
			return false
		}
	}
	return true
}
