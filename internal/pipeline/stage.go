package pipeline

import (
	"fmt"
	"strings"
)

// Stage is one of the per-file steps after discovery.
type Stage int

const (
	StageSchema Stage = iota + 1
	StageMaterialize
	StageLoad
)

// Stages lists the stages in execution order.
func Stages() []Stage { return []Stage{StageSchema, StageMaterialize, StageLoad} }

func (s Stage) String() string {
	switch s {
	case StageSchema:
		return "schema"
	case StageMaterialize:
		return "materialize"
	case StageLoad:
		return "load"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// ParseStage accepts both the stage names and the CLI verbs
// (analyze, create, import).
func ParseStage(s string) (Stage, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "schema", "analyze":
		return StageSchema, nil
	case "materialize", "create":
		return StageMaterialize, nil
	case "load", "import":
		return StageLoad, nil
	default:
		return 0, fmt.Errorf("unknown stage %q", s)
	}
}

// NeedsConnection reports whether the stage talks to a database.
func (s Stage) NeedsConnection() bool {
	return s == StageMaterialize || s == StageLoad
}

// Done reports whether f has completed stage s.
func (s Stage) Done(f FileRecord) bool {
	switch s {
	case StageSchema:
		return f.SchemaInferred
	case StageMaterialize:
		return f.TableMaterialized
	case StageLoad:
		return f.DataLoaded
	default:
		return false
	}
}

// Ready reports whether f has completed every stage before s.
func (s Stage) Ready(f FileRecord) bool {
	switch s {
	case StageSchema:
		return true
	case StageMaterialize:
		return f.SchemaInferred
	case StageLoad:
		return f.TableMaterialized
	default:
		return false
	}
}

// Eligible reports whether stage s should run for f: ready and not yet done.
func (s Stage) Eligible(f FileRecord) bool {
	return s.Ready(f) && !s.Done(f)
}

// ReadyFor reports whether any file in d is eligible for s.
func (d Descriptor) ReadyFor(s Stage) bool {
	for _, f := range d.Files {
		if s.Eligible(f) {
			return true
		}
	}
	return false
}
