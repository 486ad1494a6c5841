// Package session maintains per-session datasets: a wide price table
// merged incrementally as tickers are fetched, plus best-effort
// activity summaries and free-form metadata, all persisted under one
// directory per session.
package session

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/quantio/quantd/internal/series"
)

// =============================================================================
// Wide Table
// =============================================================================

// Row is one date's observations across all tracked tickers. Cells for
// dates a ticker was never observed on are simply absent.
type Row struct {
	Date   string
	Values map[string]float64
}

// Table is a session's merged dataset: one column per fetched ticker,
// one row per date, rows in ascending date order.
type Table struct {
	Tickers []string
	Rows    []Row
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{}
}

// Len returns the row count.
func (t *Table) Len() int {
	return len(t.Rows)
}

// HasTicker reports whether a ticker is already a tracked column.
func (t *Table) HasTicker(ticker string) bool {
	for _, tk := range t.Tickers {
		if tk == ticker {
			return true
		}
	}
	return false
}

// MergeSeries row-joins a ticker's series into the table by date:
// existing dates get only that ticker's cell updated, new dates become
// new rows with every other ticker absent. Missing points do not
// produce cells.
func (t *Table) MergeSeries(ticker string, sr *series.Series) {
	if !t.HasTicker(ticker) {
		t.Tickers = append(t.Tickers, ticker)
		sort.Strings(t.Tickers)
	}

	index := make(map[string]int, len(t.Rows))
	for i, row := range t.Rows {
		index[row.Date] = i
	}

	appended := false
	for _, p := range sr.Points {
		if !p.Valid {
			continue
		}
		if i, ok := index[p.Date]; ok {
			t.Rows[i].Values[ticker] = p.Value
			continue
		}
		t.Rows = append(t.Rows, Row{
			Date:   p.Date,
			Values: map[string]float64{ticker: p.Value},
		})
		index[p.Date] = len(t.Rows) - 1
		appended = true
	}

	if appended {
		sort.Slice(t.Rows, func(i, j int) bool { return t.Rows[i].Date < t.Rows[j].Date })
	}
}

// Column rebuilds a ticker's series from the table. Dates without a
// cell for the ticker are skipped.
func (t *Table) Column(ticker string) *series.Series {
	points := make([]series.Point, 0, len(t.Rows))
	for _, row := range t.Rows {
		if v, ok := row.Values[ticker]; ok {
			points = append(points, series.NewPoint(row.Date, v))
		}
	}
	return series.New(ticker, points)
}

// Window returns a copy restricted to the inclusive date window.
func (t *Table) Window(w series.Window) *Table {
	if w.IsZero() {
		return t
	}
	out := &Table{Tickers: append([]string(nil), t.Tickers...)}
	for _, row := range t.Rows {
		if w.Contains(row.Date) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// Restrict returns a copy carrying only the named tickers.
func (t *Table) Restrict(tickers []string) *Table {
	keep := make(map[string]bool, len(tickers))
	out := &Table{}
	for _, tk := range tickers {
		if t.HasTicker(tk) && !keep[tk] {
			keep[tk] = true
			out.Tickers = append(out.Tickers, tk)
		}
	}
	sort.Strings(out.Tickers)

	for _, row := range t.Rows {
		values := make(map[string]float64, len(out.Tickers))
		for tk := range keep {
			if v, ok := row.Values[tk]; ok {
				values[tk] = v
			}
		}
		if len(values) > 0 {
			out.Rows = append(out.Rows, Row{Date: row.Date, Values: values})
		}
	}
	return out
}

// =============================================================================
// JSON document shape
// =============================================================================

// The persisted document flattens each row into {"date": ..., "<ticker>": ...}
// objects so the file is directly chartable by clients.

type tableDoc struct {
	Tickers []string                 `json:"tickers"`
	Data    []map[string]interface{} `json:"data"`
}

// MarshalJSON implements json.Marshaler.
func (t *Table) MarshalJSON() ([]byte, error) {
	doc := tableDoc{Tickers: t.Tickers, Data: make([]map[string]interface{}, len(t.Rows))}
	if doc.Tickers == nil {
		doc.Tickers = []string{}
	}
	for i, row := range t.Rows {
		obj := make(map[string]interface{}, len(row.Values)+1)
		obj["date"] = row.Date
		for tk, v := range row.Values {
			obj[tk] = v
		}
		doc.Data[i] = obj
	}
	return json.Marshal(doc)
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Table) UnmarshalJSON(b []byte) error {
	var doc tableDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}

	t.Tickers = doc.Tickers
	sort.Strings(t.Tickers)
	t.Rows = make([]Row, 0, len(doc.Data))

	for _, obj := range doc.Data {
		date, ok := obj["date"].(string)
		if !ok {
			return fmt.Errorf("table row missing date")
		}
		values := make(map[string]float64, len(obj)-1)
		for k, v := range obj {
			if k == "date" {
				continue
			}
			if f, ok := v.(float64); ok {
				values[k] = f
			}
		}
		t.Rows = append(t.Rows, Row{Date: date, Values: values})
	}

	sort.Slice(t.Rows, func(i, j int) bool { return t.Rows[i].Date < t.Rows[j].Date })
	return nil
}
