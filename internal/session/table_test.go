package session

import (
	"encoding/json"
	"testing"

	"github.com/quantio/quantd/internal/series"
)

func seriesOf(ticker string, obs map[string]float64) *series.Series {
	points := make([]series.Point, 0, len(obs))
	for date, v := range obs {
		points = append(points, series.NewPoint(date, v))
	}
	return series.New(ticker, points)
}

func TestMergeSeriesJoinsOnDate(t *testing.T) {
	tbl := NewTable()
	tbl.MergeSeries("AAPL", seriesOf("AAPL", map[string]float64{
		"2024-01-01": 100,
		"2024-01-02": 101,
	}))
	tbl.MergeSeries("MSFT", seriesOf("MSFT", map[string]float64{
		"2024-01-02": 400,
		"2024-01-03": 401,
	}))

	if len(tbl.Tickers) != 2 || tbl.Tickers[0] != "AAPL" || tbl.Tickers[1] != "MSFT" {
		t.Fatalf("Tickers = %v", tbl.Tickers)
	}
	if tbl.Len() != 3 {
		t.Fatalf("Len = %d, want 3 union dates", tbl.Len())
	}

	// Shared date carries both cells; edges carry one.
	mid := tbl.Rows[1]
	if mid.Date != "2024-01-02" || mid.Values["AAPL"] != 101 || mid.Values["MSFT"] != 400 {
		t.Errorf("shared row = %+v", mid)
	}
	if _, ok := tbl.Rows[0].Values["MSFT"]; ok {
		t.Error("MSFT should be absent on 2024-01-01")
	}
	if _, ok := tbl.Rows[2].Values["AAPL"]; ok {
		t.Error("AAPL should be absent on 2024-01-03")
	}
}

func TestMergeSeriesIdempotent(t *testing.T) {
	sr := seriesOf("AAPL", map[string]float64{"2024-01-01": 100, "2024-01-02": 101})

	tbl := NewTable()
	tbl.MergeSeries("AAPL", sr)
	tbl.MergeSeries("AAPL", sr)

	if len(tbl.Tickers) != 1 {
		t.Errorf("re-merge duplicated ticker column: %v", tbl.Tickers)
	}
	if tbl.Len() != 2 {
		t.Errorf("re-merge duplicated rows: %d", tbl.Len())
	}
}

func TestMergeSeriesSkipsMissingPoints(t *testing.T) {
	sr := series.New("AAPL", []series.Point{
		series.NewPoint("2024-01-01", 100),
		series.MissingPoint("2024-01-02"),
	})

	tbl := NewTable()
	tbl.MergeSeries("AAPL", sr)

	if tbl.Len() != 1 {
		t.Errorf("missing point produced a row: %d rows", tbl.Len())
	}
}

func TestColumnRoundTrip(t *testing.T) {
	obs := map[string]float64{"2024-01-01": 100, "2024-01-02": 101, "2024-01-03": 99}

	tbl := NewTable()
	tbl.MergeSeries("AAPL", seriesOf("AAPL", obs))
	tbl.MergeSeries("MSFT", seriesOf("MSFT", map[string]float64{"2024-01-02": 400}))

	col := tbl.Column("AAPL")
	if col.Len() != len(obs) {
		t.Fatalf("Column len = %d, want %d", col.Len(), len(obs))
	}
	for _, p := range col.Points {
		if obs[p.Date] != p.Value {
			t.Errorf("column point (%s, %v) does not match observation", p.Date, p.Value)
		}
	}
}

func TestWindowAndRestrict(t *testing.T) {
	tbl := NewTable()
	tbl.MergeSeries("AAPL", seriesOf("AAPL", map[string]float64{
		"2024-01-01": 1, "2024-01-02": 2, "2024-01-03": 3,
	}))
	tbl.MergeSeries("MSFT", seriesOf("MSFT", map[string]float64{
		"2024-01-01": 10,
	}))

	windowed := tbl.Window(series.Window{Start: "2024-01-02"})
	if windowed.Len() != 2 {
		t.Errorf("windowed Len = %d, want 2", windowed.Len())
	}
	if tbl.Len() != 3 {
		t.Error("Window mutated the receiver")
	}

	restricted := tbl.Restrict([]string{"MSFT", "MSFT", "TSLA"})
	if len(restricted.Tickers) != 1 || restricted.Tickers[0] != "MSFT" {
		t.Errorf("Restrict tickers = %v", restricted.Tickers)
	}
	// Rows with no kept cells are dropped.
	if restricted.Len() != 1 {
		t.Errorf("Restrict Len = %d, want 1", restricted.Len())
	}
}

func TestTableJSONRoundTrip(t *testing.T) {
	tbl := NewTable()
	tbl.MergeSeries("AAPL", seriesOf("AAPL", map[string]float64{
		"2024-01-01": 100.5, "2024-01-02": 101,
	}))
	tbl.MergeSeries("MSFT", seriesOf("MSFT", map[string]float64{
		"2024-01-02": 400,
	}))

	raw, err := json.Marshal(tbl)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	// Persisted shape: rows are flattened {"date": ..., "<ticker>": ...}.
	var doc struct {
		Tickers []string                 `json:"tickers"`
		Data    []map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("document shape: %v", err)
	}
	if len(doc.Data) != 2 {
		t.Fatalf("document rows = %d", len(doc.Data))
	}
	if doc.Data[0]["date"] != "2024-01-01" || doc.Data[0]["AAPL"] != 100.5 {
		t.Errorf("flattened row = %v", doc.Data[0])
	}

	var back Table
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(back.Tickers) != 2 || back.Len() != 2 {
		t.Fatalf("round trip lost data: tickers=%v rows=%d", back.Tickers, back.Len())
	}
	if back.Rows[1].Values["AAPL"] != 101 || back.Rows[1].Values["MSFT"] != 400 {
		t.Errorf("round trip row = %+v", back.Rows[1])
	}
}

func TestTableJSONEmpty(t *testing.T) {
	raw, err := json.Marshal(NewTable())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	// tickers must serialize as [] rather than null.
	if string(raw) != `{"tickers":[],"data":[]}` {
		t.Errorf("empty table = %s", raw)
	}
}
