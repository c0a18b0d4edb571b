package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu       sync.Mutex
	counters map[string]float64
	hist     map[string][]float64
	flushErr error
	flushed  int
}

func newRecorder() *recorder {
	return &recorder{counters: map[string]float64{}, hist: map[string][]float64{}}
}

func (r *recorder) IncCounter(name string, delta float64, l Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name+"|"+l["stage"]+"|"+l["status"]] += delta
}

func (r *recorder) ObserveHistogram(name string, v float64, l Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := name + "|" + l["stage"] + "|" + l["status"]
	r.hist[k] = append(r.hist[k], v)
}

func (r *recorder) Flush() error {
	r.flushed++
	return r.flushErr
}

func TestHelpersReachInstalledBackend(t *testing.T) {
	r := newRecorder()
	SetBackend(r)
	t.Cleanup(func() { SetBackend(nil) })

	RecordStageFile("schema", StatusOK, 1500*time.Millisecond)
	RecordStageFile("schema", StatusOK, 500*time.Millisecond)
	RecordRows("load", 42)
	RecordRows("load", 0)

	if got := r.counters[StageFilesTotal+"|schema|ok"]; got != 2 {
		t.Fatalf("stage files counter=%v, want 2", got)
	}
	if got := r.hist[StageDurationSeconds+"|schema|ok"]; len(got) != 2 || got[0] != 1.5 {
		t.Fatalf("duration samples=%v", got)
	}
	if got := r.counters[RowsTotal+"|load|"]; got != 42 {
		t.Fatalf("rows counter=%v, want 42", got)
	}
}

func TestFlush(t *testing.T) {
	SetBackend(nil)
	if err := Flush(); err != nil {
		t.Fatalf("Flush on nop backend: %v", err)
	}

	r := newRecorder()
	r.flushErr = errors.New("boom")
	SetBackend(r)
	t.Cleanup(func() { SetBackend(nil) })

	if err := Flush(); err == nil || r.flushed != 1 {
		t.Fatalf("Flush err=%v flushed=%d", err, r.flushed)
	}
}
