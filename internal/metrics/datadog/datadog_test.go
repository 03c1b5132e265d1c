package datadog

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
	"github.com/stretchr/testify/require"

	"modelconv/internal/metrics"
)

type recordingSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (r *recordingSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, r.err
}

func (r *recordingSubmitter) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

// series indexes the last payload by metric name.
func (r *recordingSubmitter) series(t *testing.T) map[string]datadogV2.MetricSeries {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.payloads, "nothing submitted")

	out := map[string]datadogV2.MetricSeries{}
	for _, s := range r.payloads[len(r.payloads)-1].Series {
		out[s.Metric] = s
	}
	return out
}

func newTestBackend(t *testing.T, sub *recordingSubmitter) *Backend {
	t.Helper()
	t.Setenv("ENV", "ci")

	b, err := NewBackend(context.Background(), Options{
		JobName:    "convert",
		Tags:       []string{"service:modelconv"},
		FlushEvery: time.Hour,
		submitter:  sub,
		now:        func() time.Time { return time.Unix(1700000000, 0) },
		newTicker:  func(time.Duration) *time.Ticker { return time.NewTicker(time.Hour) },
	})
	require.NoError(t, err)
	t.Cleanup(func() { sub.err = nil; _ = b.Close() })
	return b
}

func value(s datadogV2.MetricSeries) float64 {
	return *s.Points[0].Value
}

func TestFlush_ConversionRun(t *testing.T) {
	sub := &recordingSubmitter{}
	b := newTestBackend(t, sub)

	step := metrics.Labels{"step": "read_datafile", "status": "ok"}
	b.IncCounter(metrics.StepTotal, 1, step)
	for _, d := range []float64{0.4, 0.1, 0.3, 0.2} {
		b.ObserveHistogram(metrics.StepDuration, d, step)
	}
	b.IncCounter(metrics.RowsTotal, 120, metrics.Labels{"kind": "inserted"})
	b.IncCounter(metrics.RowsTotal, 2, metrics.Labels{"kind": "inserted"})
	b.IncCounter(metrics.LoadBatchesTotal, 3, nil)
	b.IncCounter(metrics.ReferentialWarningsTotal, 1, metrics.Labels{"kind": "unresolved-value"})

	require.NoError(t, b.Flush())
	got := sub.series(t)

	total := got["modelconv.step.total"]
	require.Equal(t, datadogV2.METRICINTAKETYPE_COUNT, *total.Type)
	require.EqualValues(t, 1700000000, *total.Points[0].Timestamp)
	require.Subset(t, total.Tags, []string{"env:ci", "job:convert", "service:modelconv", "step:read_datafile", "status:ok"})

	require.Equal(t, 122.0, value(got["modelconv.rows.total"]))
	require.Contains(t, got["modelconv.rows.total"].Tags, "kind:inserted")
	require.Equal(t, 3.0, value(got["modelconv.load.batches.total"]))
	require.Contains(t, got["modelconv.referential_warnings.total"].Tags, "kind:unresolved-value")

	p50 := got["modelconv.step.duration_seconds.p50"]
	require.Equal(t, datadogV2.METRICINTAKETYPE_GAUGE, *p50.Type)
	require.Equal(t, 0.3, value(p50))
	require.Equal(t, 0.4, value(got["modelconv.step.duration_seconds.p99"]))
	require.Equal(t, 0.4, value(got["modelconv.step.duration_seconds.max"]))
	require.Equal(t, 4.0, value(got["modelconv.step.duration_seconds.samples"]))

	require.Zero(t, b.batchCount)
	require.Empty(t, b.durationSamples)
}

func TestFlush_SeriesOrderIsStable(t *testing.T) {
	sub := &recordingSubmitter{}
	b := newTestBackend(t, sub)

	for _, s := range []string{"write_datapackage", "read_datafile", "validate"} {
		b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": s, "status": "ok"})
	}
	require.NoError(t, b.Flush())

	var steps []string
	for _, s := range sub.payloads[0].Series {
		for _, tag := range s.Tags {
			if len(tag) > 5 && tag[:5] == "step:" {
				steps = append(steps, tag[5:])
			}
		}
	}
	require.Equal(t, []string{"read_datafile", "validate", "write_datapackage"}, steps)
}

func TestFlush_IgnoresUnknownAndEmptyInput(t *testing.T) {
	sub := &recordingSubmitter{}
	b := newTestBackend(t, sub)

	require.NoError(t, b.Flush())
	require.Zero(t, sub.calls())

	b.IncCounter("other_total", 1, nil)
	b.IncCounter(metrics.LoadBatchesTotal, 0, nil)
	b.ObserveHistogram(metrics.StepDuration, -1, metrics.Labels{"step": "load"})
	require.NoError(t, b.Flush())
	require.Zero(t, sub.calls())

	b.IncCounter(metrics.ReferentialWarningsTotal, 2, nil)
	require.NoError(t, b.Flush())
	got := sub.series(t)
	require.Len(t, got, 1)
	require.Contains(t, got["modelconv.referential_warnings.total"].Tags, "kind:unknown")
}

func TestFlush_SubmitErrorDropsBuffer(t *testing.T) {
	sub := &recordingSubmitter{err: errors.New("403 forbidden")}
	b := newTestBackend(t, sub)

	b.IncCounter(metrics.LoadBatchesTotal, 1, nil)
	err := b.Flush()
	require.ErrorContains(t, err, "datadog submit")
	require.ErrorContains(t, err, "403 forbidden")
	require.Zero(t, b.batchCount)
}

func TestNewBackend_Options(t *testing.T) {
	var nilCtx context.Context
	_, err := NewBackend(nilCtx, Options{submitter: &recordingSubmitter{}})
	require.ErrorContains(t, err, "datadog metrics init")

	t.Setenv("ENV", "")
	t.Setenv("DD_ENV", "staging")
	b, err := NewBackend(context.Background(), Options{submitter: &recordingSubmitter{}})
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	require.Equal(t, []string{"env:staging", "job:modelconv"}, b.baseTags)
	require.Equal(t, 60*time.Second, b.flushEvery)
}

func TestBackend_LoopFlushesAndCloseIsIdempotent(t *testing.T) {
	sub := &recordingSubmitter{}
	b, err := NewBackend(context.Background(), Options{
		FlushEvery: 5 * time.Millisecond,
		submitter:  sub,
	})
	require.NoError(t, err)

	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "load", "status": "ok"})
	require.Eventually(t, func() bool { return sub.calls() >= 1 }, time.Second, 2*time.Millisecond)

	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "load", "status": "error"})
	require.NoError(t, b.Close())
	require.GreaterOrEqual(t, sub.calls(), 2)
	require.NoError(t, b.Close())
}

func TestBackend_ConcurrentWriters(t *testing.T) {
	sub := &recordingSubmitter{}
	b := newTestBackend(t, sub)

	const workers, iters = 8, 500
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iters; j++ {
				b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"kind": "read"})
				b.ObserveHistogram(metrics.StepDuration, 0.01, metrics.Labels{"step": "load", "status": "ok"})
			}
		}()
	}
	wg.Wait()

	require.NoError(t, b.Flush())
	got := sub.series(t)
	require.Equal(t, float64(workers*iters), value(got["modelconv.rows.total"]))
	require.Equal(t, float64(workers*iters), value(got["modelconv.step.duration_seconds.samples"]))
}

func TestParseTagsCSV(t *testing.T) {
	t.Parallel()

	require.Nil(t, ParseTagsCSV(""))
	require.Empty(t, ParseTagsCSV(" , "))
	require.Equal(t, []string{"env:prod", "team:energy"}, ParseTagsCSV(" env:prod, ,team:energy "))
}
