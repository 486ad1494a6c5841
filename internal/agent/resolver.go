// Package agent turns natural-language ticker requests into ticker
// lists backed by the instrument universe.
//
// Two resolvers exist: a generative one that writes SQL against the
// universe table, and a plain symbol matcher used when no model is
// configured or the model fails. Callers always get a plain list of
// tickers and never see how it was produced.
package agent

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"github.com/quantio/quantd/internal/errors"
	"github.com/quantio/quantd/internal/logging"
	"github.com/quantio/quantd/internal/universe"
)

var log = logging.Component("agent")

// Resolver maps a natural-language query to a list of tickers.
type Resolver interface {
	Resolve(ctx context.Context, query string) ([]string, error)
}

// =============================================================================
// Symbol resolver
// =============================================================================

// SymbolResolver matches query tokens against universe tickers and
// names. It needs no network and is the fallback for everything.
type SymbolResolver struct {
	db *universe.DB
}

// NewSymbolResolver creates a symbol resolver over the universe.
func NewSymbolResolver(db *universe.DB) *SymbolResolver {
	return &SymbolResolver{db: db}
}

// Resolve implements Resolver.
func (r *SymbolResolver) Resolve(ctx context.Context, query string) ([]string, error) {
	candidates := extractCandidates(query)
	if len(candidates) > 0 {
		matches, err := r.db.Lookup(ctx, candidates)
		if err != nil {
			return nil, err
		}
		if len(matches) > 0 {
			return tickersOf(matches), nil
		}
	}

	// No token matched outright; try the whole query as a name search.
	matches, err := r.db.Search(ctx, strings.TrimSpace(query), 5)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, errors.Wrapf(errors.ErrTickerNotFound, "query %q", query)
	}
	return tickersOf(matches), nil
}

func tickersOf(instruments []universe.Instrument) []string {
	seen := make(map[string]bool, len(instruments))
	out := make([]string, 0, len(instruments))
	for _, inst := range instruments {
		if !seen[inst.Ticker] {
			seen[inst.Ticker] = true
			out = append(out, inst.Ticker)
		}
	}
	return out
}

// extractCandidates pulls symbol-shaped tokens out of a query.
func extractCandidates(query string) []string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', ',', ';', '?', '!', '(', ')', '"', '\'':
			return true
		}
		return false
	})

	var out []string
	for _, f := range fields {
		if len(f) < 1 || len(f) > 12 {
			continue
		}
		out = append(out, f)
	}
	return out
}

// =============================================================================
// SQL resolver
// =============================================================================

const sqlSystemPrompt = `You translate questions about financial instruments into SQL.
The only table is %s. Respond with exactly one SELECT statement returning
a ticker column, no commentary, no code fences. Match names
case-insensitively and prefer exact ticker matches over name matches.`

// SQLResolver asks a generative model to write a SELECT against the
// universe table, then executes it. The model output is constrained to
// a single SELECT by the universe layer, so a misbehaving model can at
// worst return wrong tickers, not mutate anything.
type SQLResolver struct {
	db   *universe.DB
	chat *genai.Chat
}

// NewSQLResolver creates a resolver chatting with the given model.
// An empty apiKey falls back to the GEMINI_API_KEY environment
// variable.
func NewSQLResolver(ctx context.Context, db *universe.DB, model, apiKey string) (*SQLResolver, error) {
	var cc *genai.ClientConfig
	if apiKey != "" {
		cc = &genai.ClientConfig{APIKey: apiKey}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, errors.Wrap(err, "create genai client")
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{
			Text: strings.ReplaceAll(sqlSystemPrompt, "%s", db.Schema()),
		}}},
	}
	chat, err := client.Chats.Create(ctx, model, cfg, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create chat")
	}
	return &SQLResolver{db: db, chat: chat}, nil
}

// Resolve implements Resolver.
func (r *SQLResolver) Resolve(ctx context.Context, query string) ([]string, error) {
	resp, err := r.chat.Send(ctx, &genai.Part{Text: query})
	if err != nil {
		return nil, errors.Wrap(err, "model request")
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidQuery, "empty model response")
	}

	sql := stripFences(resp.Candidates[0].Content.Parts[0].Text)
	log.Debug("generated ticker query", "sql", sql)

	tickers, err := r.db.SelectTickers(ctx, sql)
	if err != nil {
		return nil, err
	}
	if len(tickers) == 0 {
		return nil, errors.Wrapf(errors.ErrTickerNotFound, "query %q", query)
	}
	return tickers, nil
}

// stripFences removes markdown code fences models add despite
// instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```sql")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}

// =============================================================================
// Fallback chain
// =============================================================================

// Fallback tries a primary resolver and falls back on any failure.
type Fallback struct {
	Primary   Resolver
	Secondary Resolver
}

// Resolve implements Resolver.
func (f *Fallback) Resolve(ctx context.Context, query string) ([]string, error) {
	tickers, err := f.Primary.Resolve(ctx, query)
	if err == nil {
		return tickers, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	log.Warn("primary resolver failed, falling back", "error", err)
	return f.Secondary.Resolve(ctx, query)
}
