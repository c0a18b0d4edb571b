package pipeline

import (
	"errors"
	"fmt"
)

// Validate checks the fields a descriptor cannot be used without and the
// per-file flag implications. Missing fields are ErrMalformed; broken
// implications are ErrInvariantViolation. All problems are joined.
func Validate(d Descriptor) error {
	var errs []error
	if d.ID == "" {
		errs = append(errs, fmt.Errorf("%w: missing id", ErrMalformed))
	}
	if d.SourceDirectory == "" {
		errs = append(errs, fmt.Errorf("%w: missing sourceDirectory", ErrMalformed))
	}

	for i, f := range d.Files {
		switch {
		case f.FileName == "":
			errs = append(errs, fmt.Errorf("%w: files[%d] missing fileName", ErrMalformed, i))
		case f.FullPath == "":
			errs = append(errs, fmt.Errorf("%w: files[%d] missing fullPath", ErrMalformed, i))
		case f.TargetTableName == "":
			errs = append(errs, fmt.Errorf("%w: files[%d] missing targetTableName", ErrMalformed, i))
		}

		if f.TableMaterialized && !f.SchemaInferred {
			errs = append(errs, fmt.Errorf("%w: %s materialized without inferred schema", ErrInvariantViolation, f.FileName))
		}
		if f.DataLoaded && !f.TableMaterialized {
			errs = append(errs, fmt.Errorf("%w: %s loaded without materialized table", ErrInvariantViolation, f.FileName))
		}
	}
	return errors.Join(errs...)
}

// CheckTransition verifies that next is a legal successor of prev: same
// identity and file set, no flag regressed, connection not rebound.
func CheckTransition(prev, next Descriptor) error {
	if prev.ID != next.ID || prev.SourceDirectory != next.SourceDirectory || !prev.ScannedAt.Equal(next.ScannedAt) {
		return fmt.Errorf("%w: descriptor identity changed (%s -> %s)", ErrInvariantViolation, prev.ID, next.ID)
	}
	if prev.BoundConnection != "" && prev.BoundConnection != next.BoundConnection {
		return fmt.Errorf("%w: connection rebound from %q to %q", ErrInvariantViolation, prev.BoundConnection, next.BoundConnection)
	}
	if len(prev.Files) != len(next.Files) {
		return fmt.Errorf("%w: file count changed from %d to %d", ErrInvariantViolation, len(prev.Files), len(next.Files))
	}

	for i := range prev.Files {
		p, n := prev.Files[i], next.Files[i]
		if p.FileName != n.FileName || p.FullPath != n.FullPath || p.SizeBytes != n.SizeBytes || p.TargetTableName != n.TargetTableName {
			return fmt.Errorf("%w: files[%d] identity changed (%s -> %s)", ErrInvariantViolation, i, p.FileName, n.FileName)
		}
		for _, s := range Stages() {
			if s.Done(p) && !s.Done(n) {
				return fmt.Errorf("%w: %s regressed stage %s", ErrInvariantViolation, p.FileName, s)
			}
		}
	}
	return nil
}
