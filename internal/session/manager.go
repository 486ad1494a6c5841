package session

import (
	"context"
	"encoding/json"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/quantio/quantd/config"
	"github.com/quantio/quantd/internal/errors"
	"github.com/quantio/quantd/internal/logging"
	"github.com/quantio/quantd/internal/sample"
	"github.com/quantio/quantd/internal/series"
	"github.com/quantio/quantd/internal/transform"
	"github.com/quantio/quantd/internal/validation"
)

var log = logging.Component("session")

// Per-session document names.
const (
	tableFile    = "pricing_data.json"
	summaryFile  = "session_summary.json"
	metadataFile = "metadata.json"
)

// =============================================================================
// Manager
// =============================================================================

// Options configures a Manager.
type Options struct {
	// Dir is the root directory session state persists under.
	Dir string

	// MinPointsToSample and TargetPoints configure materialize
	// downsampling. Zero values take the defaults.
	MinPointsToSample int
	TargetPoints      int
}

// Manager owns all session state. Operations on one session are
// serialized through a per-session mutex; sessions are otherwise fully
// independent of each other.
type Manager struct {
	dir     string
	fetcher Fetcher

	minPoints    int
	targetPoints int

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	trackers map[string]*latencyTracker
}

// NewManager creates a manager persisting under opts.Dir and fetching
// cache misses through the given fetcher.
func NewManager(fetcher Fetcher, opts Options) (*Manager, error) {
	if opts.Dir == "" {
		opts.Dir = config.DefaultSessionsDir
	}
	if opts.MinPointsToSample <= 0 {
		opts.MinPointsToSample = config.DefaultMinPointsToSample
	}
	if opts.TargetPoints <= 0 {
		opts.TargetPoints = config.DefaultTargetPoints
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create sessions dir")
	}

	return &Manager{
		dir:          opts.Dir,
		fetcher:      fetcher,
		minPoints:    opts.MinPointsToSample,
		targetPoints: opts.TargetPoints,
		locks:        make(map[string]*sync.Mutex),
		trackers:     make(map[string]*latencyTracker),
	}, nil
}

// lock returns the mutex serializing one session's read-modify-write
// cycles.
func (m *Manager) lock(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[sessionID] = l
	}
	return l
}

func (m *Manager) tracker(sessionID string) *latencyTracker {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.trackers[sessionID]
	if !ok {
		t = newLatencyTracker()
		m.trackers[sessionID] = t
	}
	return t
}

// =============================================================================
// Fetch / cache
// =============================================================================

// FetchResult is the outcome of a cache-aware fetch.
type FetchResult struct {
	Series *series.Series
	Cached bool
}

// FetchOrCache returns a ticker's series for a session. If the ticker
// is already a column of the session table it is served from there
// without touching the upstream source; otherwise the fetcher loads it
// and the table is merged and persisted before returning.
func (m *Manager) FetchOrCache(ctx context.Context, sessionID, ticker string) (*FetchResult, error) {
	if err := validation.ValidateSessionID(sessionID); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfig, err.Error())
	}
	if err := validation.ValidateTicker(ticker); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfig, err.Error())
	}

	started := time.Now()

	l := m.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	table, err := m.loadTable(sessionID)
	if err != nil {
		return nil, err
	}
	if table == nil {
		table = NewTable()
	}

	if table.HasTicker(ticker) {
		sr := table.Column(ticker)
		log.Debug("cache hit", "session", sessionID, "ticker", ticker, "rows", sr.Len())
		m.trackOp(sessionID, "fetch_cached", ticker, sr, started)
		return &FetchResult{Series: sr, Cached: true}, nil
	}

	sr, err := m.fetcher.FetchSeries(ctx, ticker)
	if err != nil {
		return nil, err
	}

	table.MergeSeries(ticker, sr)
	if err := m.saveTable(sessionID, table); err != nil {
		return nil, err
	}
	log.Info("merged ticker into session", "session", sessionID, "ticker", ticker,
		"rows", table.Len(), "tickers", len(table.Tickers))

	m.trackOp(sessionID, "fetch", ticker, sr, started)
	return &FetchResult{Series: sr, Cached: false}, nil
}

// Table returns a session's wide table. Fails with ErrSessionNotFound
// when the session has no data yet.
func (m *Manager) Table(sessionID string) (*Table, error) {
	if err := validation.ValidateSessionID(sessionID); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfig, err.Error())
	}

	l := m.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	table, err := m.loadTable(sessionID)
	if err != nil {
		return nil, err
	}
	if table == nil {
		return nil, errors.Wrapf(errors.ErrSessionNotFound, "session %s", sessionID)
	}
	return table, nil
}

// =============================================================================
// Materialize
// =============================================================================

// MaterializeSummary describes the produced rows.
type MaterializeSummary struct {
	StartDate           string             `json:"start_date"`
	EndDate             string             `json:"end_date"`
	PerTickerFinalValue map[string]float64 `json:"per_ticker_final_value"`
}

// MaterializeResult is a downsampled, JSON-serializable batch
// transform over a session's table.
type MaterializeResult struct {
	Rows    []map[string]interface{} `json:"rows"`
	Summary MaterializeSummary       `json:"summary"`
}

// MaterializeRequest names the tickers, window, and operation of a
// batch transform. Empty Tickers means every tracked ticker.
type MaterializeRequest struct {
	Tickers   []string
	Window    series.Window
	Operation string
	Frequency string
	Lag       int
}

// Materialize applies one transform to each selected column of the
// session table and returns the joined, downsampled rows. Correlation
// is a scalar and cannot materialize rows.
func (m *Manager) Materialize(ctx context.Context, sessionID string, req MaterializeRequest) (*MaterializeResult, error) {
	started := time.Now()

	table, err := m.Table(sessionID)
	if err != nil {
		return nil, err
	}

	if err := req.Window.Validate(); err != nil {
		return nil, err
	}
	if req.Operation == transform.OpCorrelation {
		return nil, errors.Wrap(errors.ErrInvalidOperation, "correlation does not materialize rows")
	}

	tickers := req.Tickers
	if len(tickers) == 0 {
		tickers = table.Tickers
	}
	for _, tk := range tickers {
		if !table.HasTicker(tk) {
			return nil, errors.NewNoDataForTicker(tk)
		}
	}

	windowed := table.Restrict(tickers).Window(req.Window)
	if windowed.Len() == 0 {
		return nil, errors.Wrapf(errors.ErrEmptyWindow, "session %s", sessionID)
	}

	out := NewTable()
	finals := make(map[string]float64, len(tickers))
	for _, tk := range tickers {
		col, err := m.applyColumn(windowed.Column(tk), req)
		if err != nil {
			return nil, err
		}
		out.MergeSeries(tk, col)
		if last, ok := col.Last(); ok {
			finals[tk] = math.Round(last.Value*100) / 100
		}
	}

	rows := make([]map[string]interface{}, out.Len())
	for i, row := range out.Rows {
		obj := make(map[string]interface{}, len(row.Values)+1)
		obj["date"] = row.Date
		for tk, v := range row.Values {
			obj[tk] = v
		}
		rows[i] = obj
	}
	rows = sample.Rows(rows, m.minPoints, m.targetPoints)

	summary := MaterializeSummary{PerTickerFinalValue: finals}
	if out.Len() > 0 {
		summary.StartDate = out.Rows[0].Date
		summary.EndDate = out.Rows[out.Len()-1].Date
	}

	m.trackOp(sessionID, "materialize_"+req.Operation, "", nil, started)
	return &MaterializeResult{Rows: rows, Summary: summary}, nil
}

// applyColumn runs the requested operation over one column.
func (m *Manager) applyColumn(col *series.Series, req MaterializeRequest) (*series.Series, error) {
	switch req.Operation {
	case transform.OpResample:
		freq, err := transform.ParseFrequency(req.Frequency)
		if err != nil {
			return nil, err
		}
		return transform.Resample(col, freq)
	case transform.OpPctChange:
		lag := req.Lag
		if lag == 0 {
			lag = 1
		}
		return transform.PctChange(col, lag)
	case transform.OpCumulative:
		return transform.CumulativePerformance(col)
	default:
		return nil, errors.Wrapf(errors.ErrInvalidOperation, "%q", req.Operation)
	}
}

// =============================================================================
// Summary / metadata
// =============================================================================

// Summary returns a session's activity summary, or an empty one when
// nothing was recorded yet.
func (m *Manager) Summary(sessionID string) (*Summary, error) {
	if err := validation.ValidateSessionID(sessionID); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfig, err.Error())
	}

	var s Summary
	ok, err := m.loadJSON(sessionID, summaryFile, &s)
	if err != nil {
		return nil, err
	}
	if !ok {
		return newSummary(), nil
	}
	return &s, nil
}

// Metadata returns a session's free-form metadata document.
func (m *Manager) Metadata(sessionID string) (map[string]interface{}, error) {
	if err := validation.ValidateSessionID(sessionID); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfig, err.Error())
	}

	var doc map[string]interface{}
	ok, err := m.loadJSON(sessionID, metadataFile, &doc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return map[string]interface{}{}, nil
	}
	return doc, nil
}

// SetMetadata replaces a session's metadata document.
func (m *Manager) SetMetadata(sessionID string, doc map[string]interface{}) error {
	if err := validation.ValidateSessionID(sessionID); err != nil {
		return errors.Wrap(errors.ErrInvalidConfig, err.Error())
	}

	l := m.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	return m.saveJSON(sessionID, metadataFile, doc)
}

// =============================================================================
// Lifecycle
// =============================================================================

// Delete removes all persisted state of a session.
func (m *Manager) Delete(sessionID string) error {
	if err := validation.ValidateSessionID(sessionID); err != nil {
		return errors.Wrap(errors.ErrInvalidConfig, err.Error())
	}

	l := m.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	dir := filepath.Join(m.dir, sessionID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return errors.Wrapf(errors.ErrSessionNotFound, "session %s", sessionID)
	}
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrap(err, "delete session")
	}

	m.mu.Lock()
	delete(m.trackers, sessionID)
	m.mu.Unlock()

	log.Info("deleted session", "session", sessionID)
	return nil
}

// List returns the IDs of all sessions with persisted state, sorted.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, errors.Wrap(err, "list sessions")
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// =============================================================================
// Persistence
// =============================================================================

func (m *Manager) loadTable(sessionID string) (*Table, error) {
	var t Table
	ok, err := m.loadJSON(sessionID, tableFile, &t)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *Manager) saveTable(sessionID string, t *Table) error {
	return m.saveJSON(sessionID, tableFile, t)
}

// loadJSON reads one session document. Returns false without error
// when the document does not exist yet.
func (m *Manager) loadJSON(sessionID, name string, v interface{}) (bool, error) {
	data, err := os.ReadFile(filepath.Join(m.dir, sessionID, name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "read %s", name)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, errors.Wrapf(err, "parse %s", name)
	}
	return true, nil
}

// saveJSON writes one session document atomically: the full document
// goes to a temp file first and is renamed into place, so readers only
// ever see complete writes.
func (m *Manager) saveJSON(sessionID, name string, v interface{}) error {
	dir := filepath.Join(m.dir, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create session dir")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", name)
	}

	tmp, err := os.CreateTemp(dir, "."+name+"-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "write %s", name)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "persist %s", name)
	}
	return nil
}

// =============================================================================
// Activity tracking
// =============================================================================

// trackOp updates the session summary after an operation. This is
// best-effort: failures are logged and swallowed, never surfaced.
func (m *Manager) trackOp(sessionID, op, ticker string, sr *series.Series, started time.Time) {
	tracker := m.tracker(sessionID)
	tracker.observe(time.Since(started))

	s, err := m.Summary(sessionID)
	if err != nil {
		log.Warn("summary load failed", "session", sessionID, "error", err)
		return
	}

	s.count(op)
	if ticker != "" {
		s.addTicker(ticker)
		if m.fetcher != nil {
			s.addProcessedObject(ticker, m.fetcher.Source())
		}
	}
	if sr != nil {
		if first, ok := sr.First(); ok {
			last, _ := sr.Last()
			s.touchRange(ticker, first.Date, last.Date)
		}
	}
	s.StorageBytes, s.StorageFiles = m.footprint(sessionID)
	s.LatencyMs = tracker.quantiles()
	s.UpdatedAt = time.Now().UTC()

	if err := m.saveJSON(sessionID, summaryFile, s); err != nil {
		log.Warn("summary write failed", "session", sessionID, "error", err)
	}
}

// footprint measures the session directory.
func (m *Manager) footprint(sessionID string) (int64, int) {
	var bytes int64
	files := 0
	root := filepath.Join(m.dir, sessionID)
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			bytes += info.Size()
			files++
		}
		return nil
	})
	return bytes, files
}
