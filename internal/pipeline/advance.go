package pipeline

import (
	"fmt"

	"csvload/internal/schema"
)

// Outcome is the successful result of running one stage on one file.
type Outcome struct {
	Stage Stage
	// File is the index into Descriptor.Files.
	File int
	// Schema carries the inference result; required for StageSchema only.
	Schema *schema.Result
}

// Advance returns a copy of d with the outcome applied. d is not modified.
//
// A file that already completed the stage is returned unchanged. A file that
// has not completed the stage's prerequisite yields ErrNotReady. A missing
// schema result for the schema stage, or an out-of-range file index, yields
// ErrInvariantViolation.
func Advance(d Descriptor, o Outcome) (Descriptor, error) {
	if o.File < 0 || o.File >= len(d.Files) {
		return d, fmt.Errorf("%w: file index %d out of range", ErrInvariantViolation, o.File)
	}
	f := d.Files[o.File]

	if o.Stage.Done(f) {
		return d, nil
	}
	if !o.Stage.Ready(f) {
		return d, fmt.Errorf("%w: %s has not completed the stage before %s", ErrNotReady, f.FileName, o.Stage)
	}

	next := d.Clone()
	nf := &next.Files[o.File]

	switch o.Stage {
	case StageSchema:
		if o.Schema == nil {
			return d, fmt.Errorf("%w: schema outcome for %s carries no result", ErrInvariantViolation, f.FileName)
		}
		nf.Headers = append([]string{}, o.Schema.Headers...)
		nf.Columns = append([]schema.Column{}, o.Schema.Columns...)
		nf.RowCount = o.Schema.RowCount
		nf.Delimiter = o.Schema.Delimiter
		nf.SchemaInferred = true
	case StageMaterialize:
		nf.TableMaterialized = true
	case StageLoad:
		nf.DataLoaded = true
	default:
		return d, fmt.Errorf("%w: unknown stage %s", ErrInvariantViolation, o.Stage)
	}
	return next, nil
}

// BindConnection returns a copy of d bound to the named connection.
//
// Binding the name already bound is a no-op. Binding a different name to an
// already bound descriptor is an ErrInvariantViolation.
func BindConnection(d Descriptor, name string) (Descriptor, error) {
	if name == "" {
		return d, fmt.Errorf("%w: empty connection name", ErrInvariantViolation)
	}
	if d.BoundConnection == name {
		return d, nil
	}
	if d.BoundConnection != "" {
		return d, fmt.Errorf("%w: descriptor %s is bound to %q, refusing %q", ErrInvariantViolation, d.ID, d.BoundConnection, name)
	}
	next := d.Clone()
	next.BoundConnection = name
	return next, nil
}

// RequireConnection returns the bound connection name or ErrMissingConnection.
func RequireConnection(d Descriptor) (string, error) {
	if d.BoundConnection == "" {
		return "", fmt.Errorf("descriptor %s: %w", d.ID, ErrMissingConnection)
	}
	return d.BoundConnection, nil
}
