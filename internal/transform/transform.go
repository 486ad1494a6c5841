// Package transform implements the numeric operations exposed over
// series handles: calendar resampling, lagged percent change, rebased
// cumulative performance, and pairwise correlation.
//
// All transforms are pure functions over immutable series. The Engine
// wraps them with handle resolution against the series store, window
// filtering, and tail previews, so callers deal only in handles.
package transform

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/quantio/quantd/config"
	"github.com/quantio/quantd/internal/errors"
	"github.com/quantio/quantd/internal/series"
)

// =============================================================================
// Operations
// =============================================================================

// Operation names accepted by Engine.Apply.
const (
	OpResample    = "resample"
	OpPctChange   = "pct_change"
	OpCumulative  = "cumulative_performance"
	OpCorrelation = "correlation"
)

// Frequency is a calendar bucket size for resampling.
type Frequency string

const (
	Daily     Frequency = "daily"
	Weekly    Frequency = "weekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Yearly    Frequency = "yearly"
)

// ParseFrequency accepts both long names and the usual one-letter
// shorthand (D, W, M, Q, Y).
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "d", "daily":
		return Daily, nil
	case "w", "weekly":
		return Weekly, nil
	case "m", "monthly":
		return Monthly, nil
	case "q", "quarterly":
		return Quarterly, nil
	case "y", "a", "yearly", "annual":
		return Yearly, nil
	default:
		return "", errors.Wrapf(errors.ErrInvalidFrequency, "%q", s)
	}
}

// =============================================================================
// Pure transforms
// =============================================================================

// Resample groups a series into calendar buckets and keeps the last
// observation of each bucket, labeled with its observed date. Buckets
// with no observation simply do not appear.
func Resample(sr *series.Series, freq Frequency) (*series.Series, error) {
	clean := sr.Clean()
	if clean.Len() == 0 {
		return nil, errors.Wrapf(errors.ErrInvalidWindow, "ticker %s: no rows to resample", sr.Ticker)
	}
	if freq == Daily {
		return clean, nil
	}

	// Points are in ascending date order, so the last point seen for a
	// bucket is the last observation in that period.
	var out []series.Point
	lastKey := ""
	for _, p := range clean.Points {
		key, err := bucketKey(p.Date, freq)
		if err != nil {
			return nil, err
		}
		if key == lastKey && len(out) > 0 {
			out[len(out)-1] = p
			continue
		}
		out = append(out, p)
		lastKey = key
	}
	return series.New(sr.Ticker, out), nil
}

// bucketKey maps a date to its calendar bucket identity.
func bucketKey(date string, freq Frequency) (string, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return "", fmt.Errorf("bad date %q: %w", date, err)
	}
	switch freq {
	case Weekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week), nil
	case Monthly:
		return date[:7], nil
	case Quarterly:
		return fmt.Sprintf("%s-Q%d", date[:4], (int(t.Month())-1)/3+1), nil
	case Yearly:
		return date[:4], nil
	default:
		return "", errors.Wrapf(errors.ErrInvalidFrequency, "%q", freq)
	}
}

// PctChange computes value[i]/value[i-lag] - 1 for every index with a
// full lookback. Rows without one are dropped, so the result has
// exactly len - lag points.
func PctChange(sr *series.Series, lag int) (*series.Series, error) {
	if lag < 1 {
		return nil, errors.Wrapf(errors.ErrInvalidOperation, "pct_change window %d", lag)
	}
	clean := sr.Clean()
	if clean.Len() == 0 {
		return nil, errors.Wrapf(errors.ErrInvalidWindow, "ticker %s: no rows", sr.Ticker)
	}
	if clean.Len() <= lag {
		return nil, errors.Wrapf(errors.ErrInsufficientPoints,
			"ticker %s: %d rows for window %d", sr.Ticker, clean.Len(), lag)
	}

	out := make([]series.Point, 0, clean.Len()-lag)
	for i := lag; i < clean.Len(); i++ {
		// A zero base makes the ratio non-finite; NewPoint records the
		// row as missing, so the output keeps exactly len-lag points.
		base := clean.Points[i-lag].Value
		out = append(out, series.NewPoint(clean.Points[i].Date, clean.Points[i].Value/base-1))
	}
	return series.New(sr.Ticker, out), nil
}

// CumulativePerformance compounds daily simple returns into an index
// rebased to 100 at the first observation. The first return is zero by
// convention, so the output always starts at exactly 100.
func CumulativePerformance(sr *series.Series) (*series.Series, error) {
	clean := sr.Clean()
	if clean.Len() == 0 {
		return nil, errors.Wrapf(errors.ErrEmptyWindow, "ticker %s", sr.Ticker)
	}

	out := make([]series.Point, clean.Len())
	index := 100.0
	out[0] = series.NewPoint(clean.Points[0].Date, index)
	for i := 1; i < clean.Len(); i++ {
		prev := clean.Points[i-1].Value
		if prev != 0 {
			index *= 1 + (clean.Points[i].Value/prev - 1)
		}
		out[i] = series.NewPoint(clean.Points[i].Date, index)
	}
	return series.New(sr.Ticker, out), nil
}

// Correlation inner-joins two series on date and returns the Pearson
// correlation coefficient of the aligned values. Fails with
// ErrInsufficientPoints when fewer than two dates align or either side
// has zero variance.
func Correlation(x, y *series.Series) (float64, error) {
	byDate := make(map[string]float64, y.ValidCount())
	for _, p := range y.Points {
		if p.Valid {
			byDate[p.Date] = p.Value
		}
	}

	var xs, ys []float64
	for _, p := range x.Points {
		if !p.Valid {
			continue
		}
		if v, ok := byDate[p.Date]; ok {
			xs = append(xs, p.Value)
			ys = append(ys, v)
		}
	}

	n := float64(len(xs))
	if len(xs) < 2 {
		return 0, errors.Wrapf(errors.ErrInsufficientPoints,
			"%s vs %s: %d aligned points", x.Ticker, y.Ticker, len(xs))
	}

	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX, meanY := sumX/n, sumY/n

	var cov, varX, varY float64
	for i := range xs {
		dx, dy := xs[i]-meanX, ys[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0, errors.Wrapf(errors.ErrInsufficientPoints,
			"%s vs %s: zero variance", x.Ticker, y.Ticker)
	}
	return cov / math.Sqrt(varX*varY), nil
}

// FormatCorrelation renders a coefficient as a percentage string with
// two decimals, e.g. "100.00%".
func FormatCorrelation(r float64) string {
	return fmt.Sprintf("%.2f%%", r*100)
}

// =============================================================================
// Engine
// =============================================================================

// Row is one preview entry.
type Row struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// Result is the outcome of one transform: a handle to the produced
// series plus a bounded tail preview derived from the same data. For
// correlation no series is produced and Scalar carries the rendered
// coefficient instead.
type Result struct {
	Handle  string `json:"handle,omitempty"`
	Preview []Row  `json:"preview,omitempty"`
	Scalar  string `json:"scalar,omitempty"`
}

// Request names the operation, its inputs, and its parameters.
type Request struct {
	Operation string
	Handles   []string
	Frequency string
	Lag       int
	Window    series.Window
}

// Engine resolves handles, applies windows, runs a transform, and
// stores the produced series back under a fresh handle.
type Engine struct {
	store       *series.Store
	previewRows int
}

// NewEngine creates an engine over the given series store.
func NewEngine(store *series.Store) *Engine {
	return &Engine{store: store, previewRows: config.DefaultPreviewRows}
}

// Apply is the uniform entry point for all operations.
func (e *Engine) Apply(req Request) (*Result, error) {
	if err := req.Window.Validate(); err != nil {
		return nil, err
	}

	want := 1
	if req.Operation == OpCorrelation {
		want = 2
	}
	if len(req.Handles) != want {
		return nil, errors.Wrapf(errors.ErrInvalidOperation,
			"%s takes %d handle(s), got %d", req.Operation, want, len(req.Handles))
	}

	inputs := make([]*series.Series, len(req.Handles))
	for i, h := range req.Handles {
		sr, err := e.store.Get(h)
		if err != nil {
			return nil, err
		}
		windowed, err := sr.Slice(req.Window)
		if err != nil {
			return nil, err
		}
		inputs[i] = windowed
	}

	switch req.Operation {
	case OpResample:
		freq, err := ParseFrequency(req.Frequency)
		if err != nil {
			return nil, err
		}
		out, err := Resample(inputs[0], freq)
		if err != nil {
			return nil, err
		}
		return e.put(out)

	case OpPctChange:
		out, err := PctChange(inputs[0], req.Lag)
		if err != nil {
			return nil, err
		}
		return e.put(out)

	case OpCumulative:
		out, err := CumulativePerformance(inputs[0])
		if err != nil {
			return nil, err
		}
		return e.put(out)

	case OpCorrelation:
		r, err := Correlation(inputs[0], inputs[1])
		if err != nil {
			return nil, err
		}
		return &Result{Scalar: FormatCorrelation(r)}, nil

	default:
		return nil, errors.Wrapf(errors.ErrInvalidOperation, "%q", req.Operation)
	}
}

// put stores a produced series and builds its preview.
func (e *Engine) put(sr *series.Series) (*Result, error) {
	handle := e.store.Put(sr)
	return &Result{Handle: handle, Preview: TailPreview(sr, e.previewRows)}, nil
}

// TailPreview renders the last n valid rows in ascending date order.
func TailPreview(sr *series.Series, n int) []Row {
	tail := sr.Clean().Tail(n)
	rows := make([]Row, 0, len(tail))
	for _, p := range tail {
		rows = append(rows, Row{Date: p.Date, Value: p.Value})
	}
	return rows
}
