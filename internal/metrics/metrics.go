// Package metrics is the process-wide metrics facade. Pipeline code records
// through the package-level helpers; cmd/ picks a Backend at startup. The
// default backend discards everything.
package metrics

import (
	"sync"
	"time"
)

// Metric names emitted by the stage runner.
const (
	StageFilesTotal      = "csvload_stage_files_total"
	StageDurationSeconds = "csvload_stage_duration_seconds"
	RowsTotal            = "csvload_rows_total"
)

// Stage outcome labels.
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// Labels are metric dimensions. Backends ignore labels they do not know.
type Labels map[string]string

// Backend receives metric observations. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by buffering backends.
type Flusher interface {
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b. A nil b restores the discarding backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush forwards to the backend when it buffers; otherwise it is a no-op.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}

func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// RecordStageFile counts one file processed by stage with the given status
// and records how long it took.
func RecordStageFile(stage, status string, took time.Duration) {
	l := Labels{"stage": stage, "status": status}
	IncCounter(StageFilesTotal, 1, l)
	ObserveHistogram(StageDurationSeconds, took.Seconds(), l)
}

// RecordRows counts rows read (schema) or written (load) by stage.
func RecordRows(stage string, n int64) {
	if n <= 0 {
		return
	}
	IncCounter(RowsTotal, float64(n), Labels{"stage": stage})
}
