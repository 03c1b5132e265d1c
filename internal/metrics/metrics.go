// Package metrics is a small facade between the conversion pipeline and a
// metrics backend. The pipeline only records counters and histograms by
// name; backends decide how (and whether) to ship them.
package metrics

import (
	"sync"
	"time"
)

// Labels are string key/value pairs attached to a single observation.
type Labels map[string]string

// Backend receives observations. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer observations.
type Flusher interface {
	Flush() error
}

// Metric names recorded by the pipeline.
const (
	// StepTotal counts finished steps, labelled step and status.
	StepTotal = "modelconv_step_total"
	// StepDuration observes step wall time in seconds, labelled step and status.
	StepDuration = "modelconv_step_duration_seconds"
	// RowsTotal counts rows, labelled kind (read, written, inserted, skipped).
	RowsTotal = "modelconv_rows_total"
	// LoadBatchesTotal counts InsertRows calls made by the SQL loader.
	LoadBatchesTotal = "modelconv_load_batches_total"
	// ReferentialWarningsTotal counts referential issues, labelled kind.
	ReferentialWarningsTotal = "modelconv_referential_warnings_total"
)

type nop struct{}

func (nop) IncCounter(string, float64, Labels)       {}
func (nop) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = nop{}
)

// SetBackend installs b as the process-wide backend. A nil b restores the
// no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nop{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to the named counter on the current backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records value on the named histogram.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush flushes the current backend if it buffers; otherwise it is a no-op.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// Step is a running timer for one pipeline step.
type Step struct {
	name  string
	start time.Time
}

// StartStep starts timing the named step.
func StartStep(name string) *Step {
	return &Step{name: name, start: time.Now()}
}

// Done records the step counter and duration. A nil err is status "ok".
func (s *Step) Done(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	l := Labels{"step": s.name, "status": status}
	IncCounter(StepTotal, 1, l)
	ObserveHistogram(StepDuration, time.Since(s.start).Seconds(), l)
}
