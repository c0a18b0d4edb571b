package csv

import "sync"

// Row is a pooled positional row with values converted per column.
//
// One goroutine owns a Row at a time; sending it on a channel hands it over.
// The final consumer calls Free once nothing references r.V any more. On
// cancellation paths call Drop instead: a canceled consumer may still be
// reading while the producer unwinds, and re-pooling would let the producer
// overwrite values under it.
type Row struct {
	V []any
	// Line is the 1-based record number, counting the header.
	Line int
}

var rowPool sync.Pool

// GetRow returns a Row of length n with every value nil.
func GetRow(n int) *Row {
	if v := rowPool.Get(); v != nil {
		r := v.(*Row)
		if cap(r.V) < n {
			r.V = make([]any, n)
		}
		r.V = r.V[:n]
		clear(r.V)
		r.Line = 0
		return r
	}
	return &Row{V: make([]any, n)}
}

// Free returns r to the pool.
func (r *Row) Free() {
	rowPool.Put(r)
}

// Drop discards r without pooling it.
func (r *Row) Drop() {
	r.V = nil
	r.Line = 0
}
