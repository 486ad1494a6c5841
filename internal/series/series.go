// Package series provides the single-column labeled time series that
// flows between the columnar reader, the session merger and the
// transform engine, plus the in-memory handle store used to pass
// series between pipeline stages.
package series

import (
	"math"
	"sort"

	"github.com/quantio/quantd/internal/errors"
)

// Point is one (date, value) observation.
//
// Dates are canonical YYYY-MM-DD strings, which makes lexicographic
// comparison equivalent to chronological comparison. Valid is false for
// missing observations; non-finite inputs are normalized to missing
// before a point is constructed.
type Point struct {
	Date  string
	Value float64
	Valid bool
}

// NewPoint builds a point, mapping NaN and infinities to missing.
func NewPoint(date string, value float64) Point {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Point{Date: date}
	}
	return Point{Date: date, Value: value, Valid: true}
}

// MissingPoint builds an explicitly missing observation.
func MissingPoint(date string) Point {
	return Point{Date: date}
}

// Series is an ordered sequence of points with unique ascending dates
// and a single value column. A Series held by the Store is immutable:
// transforms allocate a new Series instead of mutating in place.
type Series struct {
	Ticker string
	Points []Point
}

// New creates a series for a ticker, sorting points by date and keeping
// the last point for any duplicated date.
func New(ticker string, points []Point) *Series {
	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date < sorted[j].Date
	})

	dedup := sorted[:0]
	for _, p := range sorted {
		if n := len(dedup); n > 0 && dedup[n-1].Date == p.Date {
			dedup[n-1] = p
			continue
		}
		dedup = append(dedup, p)
	}

	return &Series{Ticker: ticker, Points: dedup}
}

// Len returns the number of points, missing ones included.
func (s *Series) Len() int {
	return len(s.Points)
}

// ValidCount returns the number of non-missing points.
func (s *Series) ValidCount() int {
	n := 0
	for _, p := range s.Points {
		if p.Valid {
			n++
		}
	}
	return n
}

// First returns the first point, or false when the series is empty.
func (s *Series) First() (Point, bool) {
	if len(s.Points) == 0 {
		return Point{}, false
	}
	return s.Points[0], true
}

// Last returns the last point, or false when the series is empty.
func (s *Series) Last() (Point, bool) {
	if len(s.Points) == 0 {
		return Point{}, false
	}
	return s.Points[len(s.Points)-1], true
}

// Window describes an optional inclusive [Start, End] date filter.
// Empty bounds are open.
type Window struct {
	Start string
	End   string
}

// IsZero reports whether the window places no constraint.
func (w Window) IsZero() bool {
	return w.Start == "" && w.End == ""
}

// Validate rejects windows whose end precedes their start.
func (w Window) Validate() error {
	if w.Start != "" && w.End != "" && w.End < w.Start {
		return errors.Wrapf(errors.ErrInvalidWindow, "end %s precedes start %s", w.End, w.Start)
	}
	return nil
}

// Contains reports whether a date falls inside the window.
func (w Window) Contains(date string) bool {
	if w.Start != "" && date < w.Start {
		return false
	}
	if w.End != "" && date > w.End {
		return false
	}
	return true
}

// Slice returns a new series restricted to the window. The receiver is
// not modified. An invalid window is an error; a window that simply
// matches nothing yields an empty series, which callers classify.
func (s *Series) Slice(w Window) (*Series, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if w.IsZero() {
		return s, nil
	}

	out := make([]Point, 0, len(s.Points))
	for _, p := range s.Points {
		if w.Contains(p.Date) {
			out = append(out, p)
		}
	}
	return &Series{Ticker: s.Ticker, Points: out}, nil
}

// Clean returns a new series with missing points dropped.
func (s *Series) Clean() *Series {
	out := make([]Point, 0, len(s.Points))
	for _, p := range s.Points {
		if p.Valid {
			out = append(out, p)
		}
	}
	return &Series{Ticker: s.Ticker, Points: out}
}

// Tail returns up to n trailing points in ascending date order.
func (s *Series) Tail(n int) []Point {
	if n <= 0 || len(s.Points) == 0 {
		return nil
	}
	if n > len(s.Points) {
		n = len(s.Points)
	}
	out := make([]Point, n)
	copy(out, s.Points[len(s.Points)-n:])
	return out
}
