package session

import (
	"sort"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
)

// =============================================================================
// Session Summary
// =============================================================================

// DateRange is the span of dates touched for one ticker.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Quantiles holds latency percentiles in milliseconds.
type Quantiles struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// Summary records cumulative session activity. It is written on every
// tracked operation as a best-effort annotation: readers get a recent
// view, never a guaranteed-consistent one, and summary write failures
// never fail the operation that triggered them.
type Summary struct {
	// Tickers lists every ticker merged into the session.
	Tickers []string `json:"tickers"`

	// Ranges is the touched date span per ticker.
	Ranges map[string]DateRange `json:"ranges,omitempty"`

	// ProcessedObjects logs the source objects read per ticker.
	ProcessedObjects map[string][]string `json:"processed_objects,omitempty"`

	// RequestCounts counts tracked operations by type.
	RequestCounts map[string]int `json:"request_counts,omitempty"`

	// StorageBytes and StorageFiles describe the on-disk footprint of
	// the session directory at the last write.
	StorageBytes int64 `json:"storage_bytes"`
	StorageFiles int   `json:"storage_files"`

	// LatencyMs holds percentiles over tracked operation latencies.
	LatencyMs *Quantiles `json:"latency_ms,omitempty"`

	// UpdatedAt is the time of the last summary write.
	UpdatedAt time.Time `json:"updated_at"`
}

func newSummary() *Summary {
	return &Summary{
		Ranges:           make(map[string]DateRange),
		ProcessedObjects: make(map[string][]string),
		RequestCounts:    make(map[string]int),
	}
}

// addTicker records a ticker, keeping the list sorted and free of
// duplicates.
func (s *Summary) addTicker(ticker string) {
	for _, tk := range s.Tickers {
		if tk == ticker {
			return
		}
	}
	s.Tickers = append(s.Tickers, ticker)
	sort.Strings(s.Tickers)
}

// touchRange widens a ticker's recorded date span.
func (s *Summary) touchRange(ticker, start, end string) {
	if s.Ranges == nil {
		s.Ranges = make(map[string]DateRange)
	}
	r, ok := s.Ranges[ticker]
	if !ok {
		s.Ranges[ticker] = DateRange{Start: start, End: end}
		return
	}
	if start != "" && (r.Start == "" || start < r.Start) {
		r.Start = start
	}
	if end > r.End {
		r.End = end
	}
	s.Ranges[ticker] = r
}

// addProcessedObject logs a source object read for a ticker, once.
func (s *Summary) addProcessedObject(ticker, location string) {
	if s.ProcessedObjects == nil {
		s.ProcessedObjects = make(map[string][]string)
	}
	for _, loc := range s.ProcessedObjects[ticker] {
		if loc == location {
			return
		}
	}
	s.ProcessedObjects[ticker] = append(s.ProcessedObjects[ticker], location)
}

// count bumps an operation counter.
func (s *Summary) count(op string) {
	if s.RequestCounts == nil {
		s.RequestCounts = make(map[string]int)
	}
	s.RequestCounts[op]++
}

// =============================================================================
// Latency tracking
// =============================================================================

// latencyTracker accumulates operation latencies in a DDSketch so the
// summary can report percentiles without keeping raw samples.
type latencyTracker struct {
	mu     sync.Mutex
	sketch *ddsketch.DDSketch
}

func newLatencyTracker() *latencyTracker {
	sketch, err := ddsketch.NewDefaultDDSketch(0.01)
	if err != nil {
		// Only reachable with an invalid accuracy constant.
		panic(err)
	}
	return &latencyTracker{sketch: sketch}
}

// observe records one latency sample.
func (t *latencyTracker) observe(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sketch.Add(float64(d.Milliseconds()))
}

// quantiles returns current percentiles, or nil before any sample.
func (t *latencyTracker) quantiles() *Quantiles {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sketch.GetCount() == 0 {
		return nil
	}
	p50, _ := t.sketch.GetValueAtQuantile(0.50)
	p95, _ := t.sketch.GetValueAtQuantile(0.95)
	p99, _ := t.sketch.GetValueAtQuantile(0.99)
	return &Quantiles{P50: p50, P95: p95, P99: p99}
}
