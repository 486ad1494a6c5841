package transform

import (
	"math"
	"testing"

	"github.com/quantio/quantd/internal/errors"
	"github.com/quantio/quantd/internal/series"
)

func prices(ticker string, obs ...[2]interface{}) *series.Series {
	pts := make([]series.Point, 0, len(obs))
	for _, o := range obs {
		pts = append(pts, series.NewPoint(o[0].(string), toFloat(o[1])))
	}
	return series.New(ticker, pts)
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case float64:
		return n
	}
	panic("bad fixture value")
}

func approx(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}

// ===== Frequency =====

func TestParseFrequency(t *testing.T) {
	tests := []struct {
		input   string
		want    Frequency
		wantErr bool
	}{
		{"d", Daily, false},
		{"DAILY", Daily, false},
		{"w", Weekly, false},
		{"M", Monthly, false},
		{"monthly", Monthly, false},
		{"q", Quarterly, false},
		{"y", Yearly, false},
		{"a", Yearly, false},
		{"annual", Yearly, false},
		{" m ", Monthly, false},
		{"", "", true},
		{"fortnightly", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFrequency(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFrequency(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFrequency(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// ===== Resample =====

func TestResampleMonthlyKeepsLastObservation(t *testing.T) {
	sr := prices("AAPL",
		[2]interface{}{"2024-01-02", 100},
		[2]interface{}{"2024-01-31", 105},
		[2]interface{}{"2024-02-01", 106},
		[2]interface{}{"2024-02-29", 110},
		[2]interface{}{"2024-03-15", 108},
	)

	out, err := Resample(sr, Monthly)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}

	want := []Row{
		{"2024-01-31", 105},
		{"2024-02-29", 110},
		{"2024-03-15", 108},
	}
	if out.Len() != len(want) {
		t.Fatalf("got %d points, want %d", out.Len(), len(want))
	}
	for i, w := range want {
		p := out.Points[i]
		if p.Date != w.Date || p.Value != w.Value {
			t.Errorf("point %d = (%s, %v), want (%s, %v)", i, p.Date, p.Value, w.Date, w.Value)
		}
	}
}

func TestResampleLabelsAreObservedDates(t *testing.T) {
	sr := prices("AAPL",
		[2]interface{}{"2024-01-03", 1},
		[2]interface{}{"2024-01-17", 2},
		[2]interface{}{"2024-02-07", 3},
	)

	input := make(map[string]bool)
	for _, p := range sr.Points {
		input[p.Date] = true
	}

	for _, freq := range []Frequency{Weekly, Monthly, Quarterly, Yearly} {
		out, err := Resample(sr, freq)
		if err != nil {
			t.Fatalf("Resample %s: %v", freq, err)
		}
		for _, p := range out.Points {
			if !input[p.Date] {
				t.Errorf("%s: output date %s was never observed", freq, p.Date)
			}
		}
	}
}

func TestResampleDailyPassthrough(t *testing.T) {
	sr := prices("AAPL",
		[2]interface{}{"2024-01-02", 100},
		[2]interface{}{"2024-01-03", 101},
	)
	out, err := Resample(sr, Daily)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if out.Len() != 2 {
		t.Errorf("daily resample should keep every row, got %d", out.Len())
	}
}

func TestResampleEmpty(t *testing.T) {
	_, err := Resample(series.New("AAPL", nil), Monthly)
	if err == nil {
		t.Fatal("resampling an empty series should fail")
	}
	if !errors.IsWindowError(err) {
		t.Errorf("error %v should classify as a window error", err)
	}
}

// ===== PctChange =====

func TestPctChange(t *testing.T) {
	sr := prices("AAPL",
		[2]interface{}{"2024-01-01", 100},
		[2]interface{}{"2024-01-02", 110},
		[2]interface{}{"2024-01-03", 90},
	)

	out, err := PctChange(sr, 1)
	if err != nil {
		t.Fatalf("PctChange: %v", err)
	}
	if out.Len() != 2 {
		t.Fatalf("got %d points, want len-lag = 2", out.Len())
	}
	if out.Points[0].Date != "2024-01-02" || !approx(out.Points[0].Value, 0.10) {
		t.Errorf("point 0 = (%s, %v), want (2024-01-02, 0.10)", out.Points[0].Date, out.Points[0].Value)
	}
	if out.Points[1].Date != "2024-01-03" || !approx(out.Points[1].Value, 90.0/110.0-1) {
		t.Errorf("point 1 = (%s, %v), want (2024-01-03, %v)", out.Points[1].Date, out.Points[1].Value, 90.0/110.0-1)
	}
}

func TestPctChangeLag(t *testing.T) {
	sr := prices("AAPL",
		[2]interface{}{"2024-01-01", 100},
		[2]interface{}{"2024-01-02", 110},
		[2]interface{}{"2024-01-03", 121},
		[2]interface{}{"2024-01-04", 133.1},
	)

	out, err := PctChange(sr, 2)
	if err != nil {
		t.Fatalf("PctChange: %v", err)
	}
	if out.Len() != 2 {
		t.Fatalf("got %d points, want 2", out.Len())
	}
	if !approx(out.Points[0].Value, 0.21) {
		t.Errorf("lag-2 change = %v, want 0.21", out.Points[0].Value)
	}
}

func TestPctChangeErrors(t *testing.T) {
	short := prices("AAPL", [2]interface{}{"2024-01-01", 100})

	if _, err := PctChange(short, 1); !errors.Is(err, errors.ErrInsufficientPoints) {
		t.Errorf("single point: error = %v, want insufficient points", err)
	}
	if _, err := PctChange(short, 0); !errors.Is(err, errors.ErrInvalidOperation) {
		t.Errorf("zero lag: error = %v, want invalid operation", err)
	}
	if _, err := PctChange(series.New("AAPL", nil), 1); !errors.IsWindowError(err) {
		t.Errorf("empty series: error = %v, want window error", err)
	}
}

func TestPctChangeZeroBaseKeepsRow(t *testing.T) {
	sr := prices("AAPL",
		[2]interface{}{"2024-01-01", 0},
		[2]interface{}{"2024-01-02", 110},
		[2]interface{}{"2024-01-03", 121},
	)

	out, err := PctChange(sr, 1)
	if err != nil {
		t.Fatalf("PctChange: %v", err)
	}
	// The zero-base row stays but its value is unrepresentable, so it
	// comes back as a missing point rather than an infinity.
	if out.Len() != sr.Len()-1 {
		t.Fatalf("len = %d, want %d", out.Len(), sr.Len()-1)
	}
	if out.Points[0].Date != "2024-01-02" || out.Points[0].Valid {
		t.Errorf("zero base should yield a missing point, got %+v", out.Points[0])
	}
	if out.Points[1].Date != "2024-01-03" || !approx(out.Points[1].Value, 0.10) {
		t.Errorf("point 1 = %+v, want 0.10 on 2024-01-03", out.Points[1])
	}
}

// ===== CumulativePerformance =====

func TestCumulativePerformance(t *testing.T) {
	sr := prices("AAPL",
		[2]interface{}{"2024-01-01", 100},
		[2]interface{}{"2024-01-02", 110},
		[2]interface{}{"2024-01-03", 99},
	)

	out, err := CumulativePerformance(sr)
	if err != nil {
		t.Fatalf("CumulativePerformance: %v", err)
	}
	want := []float64{100, 110, 99}
	if out.Len() != len(want) {
		t.Fatalf("got %d points, want %d", out.Len(), len(want))
	}
	for i, w := range want {
		if !approx(out.Points[i].Value, w) {
			t.Errorf("index[%d] = %v, want %v", i, out.Points[i].Value, w)
		}
	}
}

func TestCumulativePerformanceScaleInvariant(t *testing.T) {
	base := prices("AAPL",
		[2]interface{}{"2024-01-01", 50},
		[2]interface{}{"2024-01-02", 55},
		[2]interface{}{"2024-01-03", 49.5},
	)
	scaled := prices("AAPL",
		[2]interface{}{"2024-01-01", 500},
		[2]interface{}{"2024-01-02", 550},
		[2]interface{}{"2024-01-03", 495},
	)

	a, err := CumulativePerformance(base)
	if err != nil {
		t.Fatal(err)
	}
	b, err := CumulativePerformance(scaled)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a.Points {
		if !approx(a.Points[i].Value, b.Points[i].Value) {
			t.Errorf("index[%d]: %v vs %v differ under scaling", i, a.Points[i].Value, b.Points[i].Value)
		}
	}
}

func TestCumulativePerformanceStartsAtHundred(t *testing.T) {
	out, err := CumulativePerformance(prices("AAPL", [2]interface{}{"2024-01-01", 42}))
	if err != nil {
		t.Fatalf("CumulativePerformance: %v", err)
	}
	if out.Len() != 1 || out.Points[0].Value != 100 {
		t.Errorf("single observation should rebase to exactly 100, got %+v", out.Points)
	}
}

func TestCumulativePerformanceEmpty(t *testing.T) {
	_, err := CumulativePerformance(series.New("AAPL", nil))
	if !errors.Is(err, errors.ErrEmptyWindow) {
		t.Errorf("error = %v, want empty window", err)
	}
}

// ===== Correlation =====

func TestCorrelationSelf(t *testing.T) {
	sr := prices("AAPL",
		[2]interface{}{"2024-01-01", 100},
		[2]interface{}{"2024-01-02", 110},
		[2]interface{}{"2024-01-03", 95},
	)

	r, err := Correlation(sr, sr)
	if err != nil {
		t.Fatalf("Correlation: %v", err)
	}
	if FormatCorrelation(r) != "100.00%" {
		t.Errorf("self correlation = %s, want 100.00%%", FormatCorrelation(r))
	}
}

func TestCorrelationInverse(t *testing.T) {
	x := prices("X",
		[2]interface{}{"2024-01-01", 1},
		[2]interface{}{"2024-01-02", 2},
		[2]interface{}{"2024-01-03", 3},
	)
	y := prices("Y",
		[2]interface{}{"2024-01-01", 3},
		[2]interface{}{"2024-01-02", 2},
		[2]interface{}{"2024-01-03", 1},
	)

	r, err := Correlation(x, y)
	if err != nil {
		t.Fatalf("Correlation: %v", err)
	}
	if FormatCorrelation(r) != "-100.00%" {
		t.Errorf("inverse correlation = %s, want -100.00%%", FormatCorrelation(r))
	}
}

func TestCorrelationAlignsOnDates(t *testing.T) {
	// Only two dates overlap; the stray observations must be ignored.
	x := prices("X",
		[2]interface{}{"2024-01-01", 1},
		[2]interface{}{"2024-01-02", 2},
		[2]interface{}{"2024-01-05", 9},
	)
	y := prices("Y",
		[2]interface{}{"2024-01-01", 10},
		[2]interface{}{"2024-01-02", 20},
		[2]interface{}{"2024-01-09", 1},
	)

	r, err := Correlation(x, y)
	if err != nil {
		t.Fatalf("Correlation: %v", err)
	}
	if FormatCorrelation(r) != "100.00%" {
		t.Errorf("aligned correlation = %s, want 100.00%%", FormatCorrelation(r))
	}
}

func TestCorrelationInsufficient(t *testing.T) {
	x := prices("X", [2]interface{}{"2024-01-01", 1})
	y := prices("Y", [2]interface{}{"2024-01-01", 2})

	if _, err := Correlation(x, y); !errors.Is(err, errors.ErrInsufficientPoints) {
		t.Errorf("one aligned point: error = %v, want insufficient points", err)
	}

	// Disjoint dates align nothing.
	a := prices("A", [2]interface{}{"2024-01-01", 1}, [2]interface{}{"2024-01-02", 2})
	b := prices("B", [2]interface{}{"2024-03-01", 1}, [2]interface{}{"2024-03-02", 2})
	if _, err := Correlation(a, b); !errors.Is(err, errors.ErrInsufficientPoints) {
		t.Errorf("disjoint dates: error = %v, want insufficient points", err)
	}
}

func TestCorrelationZeroVariance(t *testing.T) {
	flat := prices("FLAT",
		[2]interface{}{"2024-01-01", 5},
		[2]interface{}{"2024-01-02", 5},
	)
	moving := prices("MOV",
		[2]interface{}{"2024-01-01", 1},
		[2]interface{}{"2024-01-02", 2},
	)

	if _, err := Correlation(flat, moving); !errors.Is(err, errors.ErrInsufficientPoints) {
		t.Errorf("zero variance: error = %v, want insufficient points", err)
	}
}

// ===== Engine =====

func TestEngineApplyPctChange(t *testing.T) {
	store := series.NewStore(10)
	engine := NewEngine(store)

	h := store.Put(prices("AAPL",
		[2]interface{}{"2024-01-01", 100},
		[2]interface{}{"2024-01-02", 110},
		[2]interface{}{"2024-01-03", 90},
	))

	res, err := engine.Apply(Request{Operation: OpPctChange, Handles: []string{h}, Lag: 1})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Handle == "" {
		t.Fatal("result should carry a handle")
	}
	if res.Handle == h {
		t.Error("transform must allocate a new handle")
	}
	if len(res.Preview) != 2 {
		t.Errorf("preview has %d rows, want 2", len(res.Preview))
	}

	// The produced series is retrievable by its new handle.
	out, err := store.Get(res.Handle)
	if err != nil {
		t.Fatalf("Get produced series: %v", err)
	}
	if out.Len() != 2 {
		t.Errorf("produced series has %d points, want 2", out.Len())
	}

	// The input series is still intact under its old handle.
	in, err := store.Get(h)
	if err != nil {
		t.Fatalf("Get input series: %v", err)
	}
	if in.Len() != 3 {
		t.Errorf("input series mutated, len = %d", in.Len())
	}
}

func TestEngineApplyCorrelation(t *testing.T) {
	store := series.NewStore(10)
	engine := NewEngine(store)

	sr := prices("AAPL",
		[2]interface{}{"2024-01-01", 100},
		[2]interface{}{"2024-01-02", 110},
	)
	h1 := store.Put(sr)
	h2 := store.Put(sr)

	res, err := engine.Apply(Request{Operation: OpCorrelation, Handles: []string{h1, h2}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Scalar != "100.00%" {
		t.Errorf("Scalar = %q, want 100.00%%", res.Scalar)
	}
	if res.Handle != "" {
		t.Error("correlation should not produce a handle")
	}
}

func TestEngineApplyWindow(t *testing.T) {
	store := series.NewStore(10)
	engine := NewEngine(store)

	h := store.Put(prices("AAPL",
		[2]interface{}{"2024-01-01", 100},
		[2]interface{}{"2024-01-02", 110},
		[2]interface{}{"2024-01-03", 90},
		[2]interface{}{"2024-01-04", 95},
	))

	res, err := engine.Apply(Request{
		Operation: OpCumulative,
		Handles:   []string{h},
		Window:    series.Window{Start: "2024-01-02", End: "2024-01-03"},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	out, err := store.Get(res.Handle)
	if err != nil {
		t.Fatal(err)
	}
	if out.Len() != 2 || out.Points[0].Value != 100 {
		t.Errorf("windowed cumulative = %+v", out.Points)
	}
}

func TestEngineApplyErrors(t *testing.T) {
	store := series.NewStore(10)
	engine := NewEngine(store)
	h := store.Put(prices("AAPL",
		[2]interface{}{"2024-01-01", 100},
		[2]interface{}{"2024-01-02", 110},
	))

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"unknown operation", Request{Operation: "median", Handles: []string{h}}, errors.ErrInvalidOperation},
		{"unknown handle", Request{Operation: OpCumulative, Handles: []string{"00000000"}}, errors.ErrUnknownHandle},
		{"correlation needs two", Request{Operation: OpCorrelation, Handles: []string{h}}, errors.ErrInvalidOperation},
		{"too many handles", Request{Operation: OpCumulative, Handles: []string{h, h}}, errors.ErrInvalidOperation},
		{"bad frequency", Request{Operation: OpResample, Handles: []string{h}, Frequency: "x"}, errors.ErrInvalidFrequency},
		{"inverted window", Request{
			Operation: OpCumulative,
			Handles:   []string{h},
			Window:    series.Window{Start: "2024-02-01", End: "2024-01-01"},
		}, errors.ErrInvalidWindow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Apply(tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("Apply error = %v, want %v", err, tt.want)
			}
		})
	}
}
