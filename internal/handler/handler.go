// Package handler provides the HTTP request handling for quantd.
//
// Handlers are thin: they decode JSON, call into the session manager,
// transform engine, or universe, and encode the result. All error
// mapping to HTTP statuses happens in one place so callers always see
// a structured {error: {code, name, message}} body.
package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/quantio/quantd/internal/agent"
	"github.com/quantio/quantd/internal/artifact"
	"github.com/quantio/quantd/internal/errors"
	"github.com/quantio/quantd/internal/logging"
	"github.com/quantio/quantd/internal/series"
	"github.com/quantio/quantd/internal/session"
	"github.com/quantio/quantd/internal/transform"
	"github.com/quantio/quantd/internal/universe"
)

var log = logging.Component("handler")

// =============================================================================
// Handler
// =============================================================================

// Handler is the main HTTP request handler.
type Handler struct {
	manager   *session.Manager
	engine    *transform.Engine
	store     *series.Store
	resolver  agent.Resolver
	publisher *artifact.Publisher
	universe  *universe.DB

	// tokens maps accepted bearer tokens to their IDs, for logs. Empty
	// disables authentication.
	tokens map[string]string
}

// Options carries the handler's collaborators.
type Options struct {
	Manager   *session.Manager
	Engine    *transform.Engine
	Store     *series.Store
	Resolver  agent.Resolver
	Publisher *artifact.Publisher
	Universe  *universe.DB
	Tokens    map[string]string
}

// New creates a handler.
func New(opts Options) *Handler {
	return &Handler{
		manager:   opts.Manager,
		engine:    opts.Engine,
		store:     opts.Store,
		resolver:  opts.Resolver,
		publisher: opts.Publisher,
		universe:  opts.Universe,
		tokens:    opts.Tokens,
	}
}

// Routes registers all endpoints on the mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.handleHealth)

	mux.HandleFunc("POST /v1/tickers", h.auth(h.handleTickers))
	mux.HandleFunc("GET /v1/universe", h.auth(h.handleUniverse))
	mux.HandleFunc("POST /v1/pricing", h.auth(h.handlePricing))
	mux.HandleFunc("POST /v1/transform", h.auth(h.handleTransform))

	mux.HandleFunc("POST /v1/sessions/{id}/fetch", h.auth(h.handleFetch))
	mux.HandleFunc("POST /v1/sessions/{id}/materialize", h.auth(h.handleMaterialize))
	mux.HandleFunc("GET /v1/sessions/{id}/summary", h.auth(h.handleSummary))
	mux.HandleFunc("GET /v1/sessions/{id}/metadata", h.auth(h.handleMetadataGet))
	mux.HandleFunc("PUT /v1/sessions/{id}/metadata", h.auth(h.handleMetadataPut))
	mux.HandleFunc("DELETE /v1/sessions/{id}", h.auth(h.handleDelete))

	// Artifact downloads carry their own signature; no bearer token.
	mux.HandleFunc("GET /artifacts/{key...}", h.handleArtifact)
}

// =============================================================================
// Middleware
// =============================================================================

// auth enforces bearer-token authentication when tokens are
// configured.
func (h *Handler) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(h.tokens) == 0 {
			next(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, errors.ErrNotAuthenticated)
			return
		}
		id, ok := h.tokens[token]
		if !ok {
			writeError(w, errors.ErrInvalidToken)
			return
		}

		next(w, r.WithContext(logging.ContextWithRequestID(r.Context(), id)))
	}
}

// =============================================================================
// Encoding
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("response encode failed", "error", err)
	}
}

// errorBody is the uniform failure payload.
type errorBody struct {
	Code    int32  `json:"code"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// writeError maps a typed error onto an HTTP status and structured
// body. Unknown errors become a 500 without leaking internals.
func writeError(w http.ResponseWriter, err error) {
	code := errors.ErrorToCode(err)
	status := statusFor(err)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("internal error", "error", err)
		msg = "internal error"
	}

	writeJSON(w, status, map[string]errorBody{"error": {
		Code:    code,
		Name:    errors.CodeName(code),
		Message: msg,
	}})
}

func statusFor(err error) int {
	switch {
	case errors.IsAuthError(err):
		return http.StatusUnauthorized
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsEmptyResult(err):
		return http.StatusUnprocessableEntity
	case errors.IsWindowError(err), errors.IsValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON request body.
func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrapf(errors.ErrInvalidConfig, "request body: %v", err)
	}
	return nil
}

// window builds a series window from request fields.
func window(start, end string) series.Window {
	return series.Window{Start: start, End: end}
}

// =============================================================================
// Health
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// Artifacts
// =============================================================================

func (h *Handler) handleArtifact(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	expires, err := strconv.ParseInt(r.URL.Query().Get("expires"), 10, 64)
	if err != nil {
		writeError(w, errors.Wrap(errors.ErrInvalidSignature, "malformed expiry"))
		return
	}
	sig := r.URL.Query().Get("sig")

	if err := h.publisher.Verify(key, expires, sig); err != nil {
		writeError(w, err)
		return
	}

	rc, err := h.publisher.Open(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/json")
	if _, err := io.Copy(w, rc); err != nil {
		log.Warn("artifact stream failed", "key", key, "error", err)
	}
}
