package handler

import (
	"encoding/json"
	"net/http"

	"github.com/quantio/quantd/config"
	"github.com/quantio/quantd/internal/errors"
	"github.com/quantio/quantd/internal/sample"
	"github.com/quantio/quantd/internal/session"
	"github.com/quantio/quantd/internal/transform"
)

// =============================================================================
// Ticker resolution
// =============================================================================

type tickersRequest struct {
	Query string `json:"query"`
}

type tickersResponse struct {
	Tickers []string `json:"tickers"`
}

// handleTickers resolves a natural-language query to a ticker list.
func (h *Handler) handleTickers(w http.ResponseWriter, r *http.Request) {
	var req tickersRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Query == "" {
		writeError(w, errors.NewMissingField("query"))
		return
	}

	tickers, err := h.resolver.Resolve(r.Context(), req.Query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tickersResponse{Tickers: tickers})
}

// handleUniverse searches the instrument universe by name or ticker.
func (h *Handler) handleUniverse(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	if term == "" {
		writeError(w, errors.NewMissingField("q"))
		return
	}

	instruments, err := h.universe.Search(r.Context(), term, 25)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"instruments": instruments})
}

// =============================================================================
// Pricing
// =============================================================================

type pricingRequest struct {
	SessionID string   `json:"session_id"`
	Tickers   []string `json:"tickers,omitempty"`
	Query     string   `json:"query,omitempty"`
	StartDate string   `json:"start_date,omitempty"`
	EndDate   string   `json:"end_date,omitempty"`
}

type pricingResponse struct {
	Tickers []string                 `json:"tickers"`
	Cached  map[string]bool          `json:"cached"`
	Rows    []map[string]interface{} `json:"rows"`
	URL     string                   `json:"url"`
}

// handlePricing fetches one or more tickers into a session, publishes
// the windowed table as an artifact, and returns a signed download URL
// plus a bounded row preview.
func (h *Handler) handlePricing(w http.ResponseWriter, r *http.Request) {
	var req pricingRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.SessionID == "" {
		writeError(w, errors.NewMissingField("session_id"))
		return
	}

	tickers := req.Tickers
	if len(tickers) == 0 {
		if req.Query == "" {
			writeError(w, errors.NewMissingField("tickers or query"))
			return
		}
		resolved, err := h.resolver.Resolve(r.Context(), req.Query)
		if err != nil {
			writeError(w, err)
			return
		}
		tickers = resolved
	}

	cached := make(map[string]bool, len(tickers))
	for _, tk := range tickers {
		res, err := h.manager.FetchOrCache(r.Context(), req.SessionID, tk)
		if err != nil {
			writeError(w, err)
			return
		}
		cached[tk] = res.Cached
	}

	table, err := h.manager.Table(req.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	windowed := table.Restrict(tickers).Window(window(req.StartDate, req.EndDate))
	if windowed.Len() == 0 {
		writeError(w, errors.Wrapf(errors.ErrInvalidWindow, "no rows in [%s, %s]", req.StartDate, req.EndDate))
		return
	}

	url, err := h.publishTable(r, req.SessionID, windowed)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pricingResponse{
		Tickers: windowed.Tickers,
		Cached:  cached,
		Rows:    previewRows(windowed),
		URL:     url,
	})
}

// publishTable uploads a table document and signs its download URL.
func (h *Handler) publishTable(r *http.Request, sessionID string, t *session.Table) (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", errors.Wrap(err, "encode table")
	}
	key, err := h.publisher.Publish(r.Context(), sessionID, "pricing_data.json", data)
	if err != nil {
		return "", err
	}
	return h.publisher.SignURL(key), nil
}

// previewRows flattens and downsamples table rows for transport.
func previewRows(t *session.Table) []map[string]interface{} {
	rows := make([]map[string]interface{}, t.Len())
	for i, row := range t.Rows {
		obj := make(map[string]interface{}, len(row.Values)+1)
		obj["date"] = row.Date
		for tk, v := range row.Values {
			obj[tk] = v
		}
		rows[i] = obj
	}
	return sample.Rows(rows, config.DefaultMinPointsToSample, config.DefaultTargetPoints)
}

// =============================================================================
// Session fetch
// =============================================================================

type fetchRequest struct {
	Ticker string `json:"ticker"`
}

type fetchResponse struct {
	Handle    string          `json:"handle"`
	Ticker    string          `json:"ticker"`
	Cached    bool            `json:"cached"`
	Rows      int             `json:"rows"`
	StartDate string          `json:"start_date,omitempty"`
	EndDate   string          `json:"end_date,omitempty"`
	Preview   []transform.Row `json:"preview"`
}

// handleFetch is the cache-aware single-ticker fetch: the series lands
// in the handle store so follow-up transforms can reference it.
func (h *Handler) handleFetch(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var req fetchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Ticker == "" {
		writeError(w, errors.NewMissingField("ticker"))
		return
	}

	res, err := h.manager.FetchOrCache(r.Context(), sessionID, req.Ticker)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := fetchResponse{
		Handle:  h.store.Put(res.Series),
		Ticker:  req.Ticker,
		Cached:  res.Cached,
		Rows:    res.Series.Len(),
		Preview: transform.TailPreview(res.Series, config.DefaultPreviewRows),
	}
	if first, ok := res.Series.First(); ok {
		last, _ := res.Series.Last()
		resp.StartDate, resp.EndDate = first.Date, last.Date
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Transform
// =============================================================================

type transformRequest struct {
	Operation string   `json:"operation"`
	Handles   []string `json:"handles"`
	Frequency string   `json:"frequency,omitempty"`
	Window    int      `json:"window,omitempty"`
	StartDate string   `json:"start_date,omitempty"`
	EndDate   string   `json:"end_date,omitempty"`
}

// handleTransform is the uniform transform entry point over handles.
func (h *Handler) handleTransform(w http.ResponseWriter, r *http.Request) {
	var req transformRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.engine.Apply(transform.Request{
		Operation: req.Operation,
		Handles:   req.Handles,
		Frequency: req.Frequency,
		Lag:       req.Window,
		Window:    window(req.StartDate, req.EndDate),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// Materialize
// =============================================================================

type materializeRequest struct {
	Tickers   []string `json:"tickers,omitempty"`
	Operation string   `json:"operation"`
	Frequency string   `json:"frequency,omitempty"`
	Window    int      `json:"window,omitempty"`
	StartDate string   `json:"start_date,omitempty"`
	EndDate   string   `json:"end_date,omitempty"`
}

type materializeResponse struct {
	Rows    []map[string]interface{}   `json:"rows"`
	Summary session.MaterializeSummary `json:"summary"`
	URL     string                     `json:"url,omitempty"`
}

// handleMaterialize batch-transforms a session table, publishes the
// result, and returns downsampled rows with a summary block.
func (h *Handler) handleMaterialize(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var req materializeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Operation == "" {
		writeError(w, errors.NewMissingField("operation"))
		return
	}

	result, err := h.manager.Materialize(r.Context(), sessionID, session.MaterializeRequest{
		Tickers:   req.Tickers,
		Operation: req.Operation,
		Frequency: req.Frequency,
		Lag:       req.Window,
		Window:    window(req.StartDate, req.EndDate),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	resp := materializeResponse{Rows: result.Rows, Summary: result.Summary}

	data, err := json.Marshal(result)
	if err == nil {
		if key, err := h.publisher.Publish(r.Context(), sessionID, req.Operation+".json", data); err == nil {
			resp.URL = h.publisher.SignURL(key)
		} else {
			log.Warn("materialize artifact publish failed", "session", sessionID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Session documents
// =============================================================================

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.manager.Summary(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) handleMetadataGet(w http.ResponseWriter, r *http.Request) {
	doc, err := h.manager.Metadata(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleMetadataPut(w http.ResponseWriter, r *http.Request) {
	var doc map[string]interface{}
	if err := decode(r, &doc); err != nil {
		writeError(w, err)
		return
	}
	if err := h.manager.SetMetadata(r.PathValue("id"), doc); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Delete(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
