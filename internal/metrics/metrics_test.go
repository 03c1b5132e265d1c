package metrics

import (
	"errors"
	"sync"
	"testing"
)

type recorder struct {
	mu       sync.Mutex
	counters map[string]float64
	hists    map[string][]float64
	labels   []Labels
	flushed  int
}

func newRecorder() *recorder {
	return &recorder{counters: map[string]float64{}, hists: map[string][]float64{}}
}

func (r *recorder) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name] += delta
	r.labels = append(r.labels, labels)
}

func (r *recorder) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hists[name] = append(r.hists[name], value)
}

func (r *recorder) Flush() error {
	r.flushed++
	return nil
}

func TestSetBackend_RoutesCalls(t *testing.T) {
	r := newRecorder()
	SetBackend(r)
	t.Cleanup(func() { SetBackend(nil) })

	IncCounter(RowsTotal, 3, Labels{"kind": "read"})
	ObserveHistogram(StepDuration, 0.5, nil)
	if err := Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if r.counters[RowsTotal] != 3 {
		t.Fatalf("rows counter=%v, want 3", r.counters[RowsTotal])
	}
	if len(r.hists[StepDuration]) != 1 {
		t.Fatalf("expected one duration sample")
	}
	if r.flushed != 1 {
		t.Fatalf("flushed=%d, want 1", r.flushed)
	}
}

func TestNilBackendIsNop(t *testing.T) {
	SetBackend(nil)
	IncCounter(StepTotal, 1, nil)
	if err := Flush(); err != nil {
		t.Fatalf("Flush on nop backend: %v", err)
	}
}

func TestStepDone_Status(t *testing.T) {
	r := newRecorder()
	SetBackend(r)
	t.Cleanup(func() { SetBackend(nil) })

	StartStep("read").Done(nil)
	StartStep("load").Done(errors.New("boom"))

	if r.counters[StepTotal] != 2 {
		t.Fatalf("step counter=%v, want 2", r.counters[StepTotal])
	}
	if len(r.labels) != 2 || r.labels[0]["status"] != "ok" || r.labels[1]["status"] != "error" || r.labels[1]["step"] != "load" {
		t.Fatalf("unexpected labels %v", r.labels)
	}
	if len(r.hists[StepDuration]) != 2 {
		t.Fatalf("expected two duration samples")
	}
}
