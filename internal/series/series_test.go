package series

import (
	"math"
	"testing"

	"github.com/quantio/quantd/internal/errors"
)

func TestNewPoint(t *testing.T) {
	p := NewPoint("2024-01-02", 101.5)
	if !p.Valid || p.Value != 101.5 {
		t.Errorf("NewPoint finite: got %+v", p)
	}

	for name, v := range map[string]float64{
		"nan":     math.NaN(),
		"posinf":  math.Inf(1),
		"neginf":  math.Inf(-1),
	} {
		if p := NewPoint("2024-01-02", v); p.Valid {
			t.Errorf("NewPoint(%s) should be missing, got %+v", name, p)
		}
	}
}

func TestNewSortsAndDedups(t *testing.T) {
	sr := New("AAPL", []Point{
		NewPoint("2024-01-03", 3),
		NewPoint("2024-01-02", 2),
		NewPoint("2024-01-02", 20), // later occurrence wins
		NewPoint("2024-01-01", 1),
	})

	want := []struct {
		date  string
		value float64
	}{
		{"2024-01-01", 1},
		{"2024-01-02", 20},
		{"2024-01-03", 3},
	}

	if sr.Len() != len(want) {
		t.Fatalf("Len = %d, want %d", sr.Len(), len(want))
	}
	for i, w := range want {
		p := sr.Points[i]
		if p.Date != w.date || p.Value != w.value {
			t.Errorf("point %d = (%s, %v), want (%s, %v)", i, p.Date, p.Value, w.date, w.value)
		}
	}
}

func TestFirstLast(t *testing.T) {
	empty := New("X", nil)
	if _, ok := empty.First(); ok {
		t.Error("First on empty series should report false")
	}
	if _, ok := empty.Last(); ok {
		t.Error("Last on empty series should report false")
	}

	sr := New("X", []Point{NewPoint("2024-01-02", 2), NewPoint("2024-01-01", 1)})
	if p, _ := sr.First(); p.Date != "2024-01-01" {
		t.Errorf("First = %s, want 2024-01-01", p.Date)
	}
	if p, _ := sr.Last(); p.Date != "2024-01-02" {
		t.Errorf("Last = %s, want 2024-01-02", p.Date)
	}
}

func TestWindowValidate(t *testing.T) {
	tests := []struct {
		name    string
		w       Window
		wantErr bool
	}{
		{"zero", Window{}, false},
		{"open end", Window{Start: "2024-01-01"}, false},
		{"open start", Window{End: "2024-12-31"}, false},
		{"ordered", Window{Start: "2024-01-01", End: "2024-12-31"}, false},
		{"single day", Window{Start: "2024-06-01", End: "2024-06-01"}, false},
		{"inverted", Window{Start: "2024-12-31", End: "2024-01-01"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.w.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.IsWindowError(err) {
				t.Errorf("Validate() error %v is not a window error", err)
			}
		})
	}
}

func TestSlice(t *testing.T) {
	sr := New("AAPL", []Point{
		NewPoint("2024-01-01", 1),
		NewPoint("2024-01-02", 2),
		NewPoint("2024-01-03", 3),
		NewPoint("2024-01-04", 4),
	})

	out, err := sr.Slice(Window{Start: "2024-01-02", End: "2024-01-03"})
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	if out.Len() != 2 || out.Points[0].Date != "2024-01-02" || out.Points[1].Date != "2024-01-03" {
		t.Errorf("Slice bounds inclusive: got %+v", out.Points)
	}

	// Receiver untouched.
	if sr.Len() != 4 {
		t.Errorf("Slice mutated receiver, len = %d", sr.Len())
	}

	// A window matching nothing is empty, not an error.
	out, err = sr.Slice(Window{Start: "2030-01-01"})
	if err != nil {
		t.Fatalf("Slice future window: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("future window should be empty, got %d points", out.Len())
	}

	if _, err := sr.Slice(Window{Start: "2024-01-04", End: "2024-01-01"}); err == nil {
		t.Error("inverted window should fail")
	}
}

func TestCleanAndValidCount(t *testing.T) {
	sr := New("AAPL", []Point{
		NewPoint("2024-01-01", 1),
		MissingPoint("2024-01-02"),
		NewPoint("2024-01-03", 3),
	})

	if sr.ValidCount() != 2 {
		t.Errorf("ValidCount = %d, want 2", sr.ValidCount())
	}

	clean := sr.Clean()
	if clean.Len() != 2 {
		t.Fatalf("Clean len = %d, want 2", clean.Len())
	}
	if clean.Points[0].Date != "2024-01-01" || clean.Points[1].Date != "2024-01-03" {
		t.Errorf("Clean kept wrong points: %+v", clean.Points)
	}
	if sr.Len() != 3 {
		t.Errorf("Clean mutated receiver")
	}
}

func TestTail(t *testing.T) {
	sr := New("AAPL", []Point{
		NewPoint("2024-01-01", 1),
		NewPoint("2024-01-02", 2),
		NewPoint("2024-01-03", 3),
	})

	if got := sr.Tail(2); len(got) != 2 || got[0].Date != "2024-01-02" {
		t.Errorf("Tail(2) = %+v", got)
	}
	if got := sr.Tail(10); len(got) != 3 {
		t.Errorf("Tail beyond length = %d points, want 3", len(got))
	}
	if got := sr.Tail(0); got != nil {
		t.Errorf("Tail(0) = %+v, want nil", got)
	}
}
