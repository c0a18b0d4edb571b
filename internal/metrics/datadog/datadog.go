// Package datadog ships stage metrics to Datadog.
//
// Observations are folded into one bucket per (stage, status) pair and
// submitted on a ticker and once more on Close. A long import therefore shows
// up as a time series, and a short command still delivers its tail.
package datadog

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"csvload/internal/metrics"
)

// Series names. Durations fan out into one gauge per summary field.
const (
	filesSeries    = "csvload.stage.files"
	rowsSeries     = "csvload.stage.rows"
	durationSeries = "csvload.stage.duration"
)

const (
	defaultJob        = "csvload"
	defaultFlushEvery = time.Minute
)

// Options configures a Backend.
type Options struct {
	// JobName is sent as tag "job:<name>"; "csvload" when empty.
	JobName string
	// Tags are appended to every series, e.g. "team:data".
	Tags []string
	// FlushEvery is the submit interval; one minute when <= 0.
	FlushEvery time.Duration

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter submitter
}

// submitter is the slice of *datadogV2.MetricsApi the backend calls.
type submitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// key is one stage/status pair. Row counts have no status.
type key struct {
	Stage  string
	Status string
}

func (k key) tags(base []string) []string {
	out := append(slices.Clone(base), "stage:"+k.Stage)
	if k.Status != "" {
		out = append(out, "status:"+k.Status)
	}
	return out
}

func compareKeys(a, b key) int {
	if c := cmp.Compare(a.Stage, b.Stage); c != 0 {
		return c
	}
	return cmp.Compare(a.Status, b.Status)
}

// bucket accumulates what happened to one key since the last flush.
type bucket struct {
	files   float64
	rows    float64
	seconds []float64
}

// Backend implements metrics.Backend and metrics.Flusher.
type Backend struct {
	api  submitter
	ctx  context.Context
	tags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	every     time.Duration

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	buckets map[key]*bucket
}

// NewBackend starts a backend that submits through the official client.
// DD_API_KEY and DD_SITE are read by the client itself; the env tag comes
// from ENV or DD_ENV.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	if parent == nil {
		return nil, errors.New("datadog: nil context")
	}

	job := cmp.Or(opts.JobName, defaultJob)
	every := opts.FlushEvery
	if every <= 0 {
		every = defaultFlushEvery
	}

	api := opts.submitter
	if api == nil {
		api = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}

	b := &Backend{
		api:       api,
		ctx:       dd.NewDefaultContext(parent),
		tags:      append([]string{envTag(os.Getenv), "job:" + job}, opts.Tags...),
		now:       opts.now,
		newTicker: opts.newTicker,
		every:     every,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		buckets:   make(map[key]*bucket),
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.newTicker == nil {
		b.newTicker = time.NewTicker
	}
	go b.run()
	return b, nil
}

// envTag picks the first non-blank of ENV and DD_ENV.
func envTag(getenv func(string) string) string {
	for _, name := range []string{"ENV", "DD_ENV"} {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			return "env:" + v
		}
	}
	return "env:unknown"
}

func (b *Backend) run() {
	defer close(b.done)
	t := b.newTicker(b.every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stop:
			return
		}
	}
}

// Close stops the ticker and flushes what is left. Later calls only flush.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		close(b.stop)
		<-b.done
	})
	return b.Flush()
}

func (b *Backend) bucketFor(k key) *bucket {
	bk := b.buckets[k]
	if bk == nil {
		bk = &bucket{}
		b.buckets[k] = bk
	}
	return bk
}

// IncCounter implements metrics.Backend. Unknown names and non-positive
// deltas are dropped.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	k := key{Stage: labels["stage"], Status: labels["status"]}

	b.mu.Lock()
	defer b.mu.Unlock()
	switch name {
	case metrics.StageFilesTotal:
		b.bucketFor(k).files += delta
	case metrics.RowsTotal:
		if k.Stage == "" {
			return
		}
		b.bucketFor(key{Stage: k.Stage}).rows += delta
	}
}

// ObserveHistogram implements metrics.Backend for stage durations.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StageDurationSeconds || value < 0 {
		return
	}
	k := key{Stage: labels["stage"], Status: labels["status"]}

	b.mu.Lock()
	defer b.mu.Unlock()
	bk := b.bucketFor(k)
	bk.seconds = append(bk.seconds, value)
}

func (b *Backend) drain() map[key]*bucket {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.buckets
	b.buckets = make(map[key]*bucket)
	return out
}

// Flush submits everything buffered since the last flush. Buffers are
// cleared before submitting, so a failed submit loses that window.
func (b *Backend) Flush() error {
	series := seriesFor(b.drain(), b.tags, b.now().Unix())
	if len(series) == 0 {
		return nil
	}
	_, _, err := b.api.SubmitMetrics(b.ctx, datadogV2.MetricPayload{Series: series}, *datadogV2.NewSubmitMetricsOptionalParameters())
	if err != nil {
		return fmt.Errorf("datadog: submit: %w", err)
	}
	return nil
}

// seriesFor renders buckets in stage/status order.
func seriesFor(buckets map[key]*bucket, base []string, ts int64) []datadogV2.MetricSeries {
	keys := make([]key, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)

	var out []datadogV2.MetricSeries
	for _, k := range keys {
		bk := buckets[k]
		tags := k.tags(base)
		if bk.files > 0 {
			out = append(out, point(filesSeries, datadogV2.METRICINTAKETYPE_COUNT, bk.files, tags, ts))
		}
		if bk.rows > 0 {
			out = append(out, point(rowsSeries, datadogV2.METRICINTAKETYPE_COUNT, bk.rows, tags, ts))
		}
		if len(bk.seconds) > 0 {
			s := summarize(bk.seconds)
			for _, f := range s.fields() {
				out = append(out, point(durationSeries+"."+f.name, datadogV2.METRICINTAKETYPE_GAUGE, f.value, tags, ts))
			}
		}
	}
	return out
}

func point(metric string, typ datadogV2.MetricIntakeType, value float64, tags []string, ts int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   typ.Ptr(),
		Points: []datadogV2.MetricPoint{{Timestamp: dd.PtrInt64(ts), Value: dd.PtrFloat64(value)}},
		Tags:   tags,
	}
}

// summary condenses a window of durations in seconds.
type summary struct {
	count         int
	avg, p50, p95 float64
	max           float64
}

type field struct {
	name  string
	value float64
}

func (s summary) fields() []field {
	return []field{
		{"count", float64(s.count)},
		{"avg", s.avg},
		{"p50", s.p50},
		{"p95", s.p95},
		{"max", s.max},
	}
}

// summarize does not reorder samples.
func summarize(samples []float64) summary {
	if len(samples) == 0 {
		return summary{}
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return summary{
		count: len(sorted),
		avg:   sum / float64(len(sorted)),
		p50:   rank(sorted, 0.50),
		p95:   rank(sorted, 0.95),
		max:   sorted[len(sorted)-1],
	}
}

// rank is the nearest-rank quantile of a sorted, non-empty slice: the
// smallest value with at least q of the samples at or below it.
func rank(sorted []float64, q float64) float64 {
	i := int(math.Ceil(q*float64(len(sorted)))) - 1
	return sorted[min(max(i, 0), len(sorted)-1)]
}

// ParseTagsCSV splits "env:prod, team:data" into tags, dropping blanks.
func ParseTagsCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var (
	_ metrics.Backend = (*Backend)(nil)
	_ metrics.Flusher = (*Backend)(nil)
)
