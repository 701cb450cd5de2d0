// Package retrieval implements hybrid search: a vector similarity signal and a
// lexical signal are queried concurrently and fused into one ranking.
package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"

	"github.com/quka-ai/kbcore/pkg/ai"
	"github.com/quka-ai/kbcore/pkg/types"
	"github.com/quka-ai/kbcore/pkg/utils"
)

const (
	SIGNAL_EMBED   = "embed"
	SIGNAL_VECTOR  = "vector"
	SIGNAL_LEXICAL = "lexical"
)

var (
	errNoEmbedder     = errors.New("no embedding provider configured")
	errEmbeddingCount = errors.New("provider returned an unexpected number of query vectors")
)

type Config struct {
	TopK           int           `toml:"top_k"`
	MinSimilarity  float64       `toml:"min_similarity"`
	VectorWeight   float64       `toml:"vector_weight"`
	LexicalWeight  float64       `toml:"lexical_weight"`
	EmbedTimeout   time.Duration `toml:"embed_timeout"`
	VectorTimeout  time.Duration `toml:"vector_timeout"`
	LexicalTimeout time.Duration `toml:"lexical_timeout"`
}

func DefaultConfig() Config {
	return Config{
		TopK:           5,
		MinSimilarity:  0.65,
		VectorWeight:   0.5,
		LexicalWeight:  0.5,
		EmbedTimeout:   10 * time.Second,
		VectorTimeout:  5 * time.Second,
		LexicalTimeout: 5 * time.Second,
	}
}

// WithDefaults fills zero fields from DefaultConfig. Weights are only
// defaulted when both are zero.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.TopK <= 0 {
		c.TopK = d.TopK
	}
	if c.MinSimilarity == 0 {
		c.MinSimilarity = d.MinSimilarity
	}
	if c.VectorWeight == 0 && c.LexicalWeight == 0 {
		c.VectorWeight, c.LexicalWeight = d.VectorWeight, d.LexicalWeight
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = d.EmbedTimeout
	}
	if c.VectorTimeout <= 0 {
		c.VectorTimeout = d.VectorTimeout
	}
	if c.LexicalTimeout <= 0 {
		c.LexicalTimeout = d.LexicalTimeout
	}
	return c
}

// Index is the read side of the chunk store.
type Index interface {
	VectorQuery(ctx context.Context, tenantID string, vector pgvector.Vector, minSimilarity float64, limit uint64) ([]types.ChunkHit, error)
	FullTextQuery(ctx context.Context, tenantID, query string, limit uint64) ([]types.ChunkHit, error)
}

type Result struct {
	QueryID    string
	Candidates []types.SearchCandidate
	// Usage of the query embedding, nil when embedding failed.
	Usage *ai.Usage
}

type Engine struct {
	embedder ai.Embedder
	index    Index
	cfg      Config
	observe  func(signal string)
}

type Option func(*Engine)

// WithFailureObserver registers a callback invoked once per failed signal.
func WithFailureObserver(fn func(signal string)) Option {
	return func(e *Engine) {
		e.observe = fn
	}
}

func New(embedder ai.Embedder, index Index, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		embedder: embedder,
		index:    index,
		cfg:      cfg.WithDefaults(),
		observe:  func(string) {},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Search never fails: a signal that errors is logged and contributes nothing.
// When every signal fails the result is empty.
func (e *Engine) Search(ctx context.Context, tenantID, query string) Result {
	res := Result{QueryID: utils.GenRandomID()}
	query = strings.TrimSpace(query)
	if query == "" {
		return res
	}

	logger := slog.With(slog.String("tenant_id", tenantID), slog.String("query_id", res.QueryID))
	limit := uint64(2 * e.cfg.TopK)

	var (
		g       errgroup.Group
		vector  []types.ChunkHit
		lexical []types.ChunkHit
	)

	g.Go(func() error {
		embedded, usage, err := e.embedQuery(ctx, query)
		if err != nil {
			e.observe(SIGNAL_EMBED)
			logger.Warn("query embedding failed, vector search skipped", slog.String("error", err.Error()))
			return nil
		}
		res.Usage = usage

		qctx, cancel := context.WithTimeout(ctx, e.cfg.VectorTimeout)
		defer cancel()
		if vector, err = e.index.VectorQuery(qctx, tenantID, embedded, e.cfg.MinSimilarity, limit); err != nil {
			vector = nil
			e.observe(SIGNAL_VECTOR)
			logger.Warn("vector search failed", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		qctx, cancel := context.WithTimeout(ctx, e.cfg.LexicalTimeout)
		defer cancel()
		var err error
		if lexical, err = e.index.FullTextQuery(qctx, tenantID, query, limit); err != nil {
			lexical = nil
			e.observe(SIGNAL_LEXICAL)
			logger.Warn("lexical search failed", slog.String("error", err.Error()))
		}
		return nil
	})

	_ = g.Wait()

	res.Candidates = Fuse(vector, lexical, e.cfg)
	logger.Debug("hybrid search finished",
		slog.Int("vector_hits", len(vector)), slog.Int("lexical_hits", len(lexical)), slog.Int("candidates", len(res.Candidates)))
	return res
}

func (e *Engine) embedQuery(ctx context.Context, query string) (pgvector.Vector, *ai.Usage, error) {
	if e.embedder == nil {
		return pgvector.Vector{}, nil, errNoEmbedder
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.EmbedTimeout)
	defer cancel()

	r, err := e.embedder.EmbeddingForQuery(ctx, ai.CleanEmbeddingInput([]string{query}))
	if err != nil {
		return pgvector.Vector{}, nil, err
	}
	if len(r.Data) != 1 {
		return pgvector.Vector{}, nil, errEmbeddingCount
	}
	return pgvector.NewVector(r.Data[0]), &ai.Usage{Model: r.Model, Usage: r.Usage}, nil
}

// Fuse merges both hit lists by chunk id, keeping the highest score seen per
// signal, and ranks by VectorWeight*vector + LexicalWeight*lexical. Equal
// scores keep first-seen order, vector hits first.
func Fuse(vector, lexical []types.ChunkHit, cfg Config) []types.SearchCandidate {
	var (
		order []string
		byID  = map[string]*types.SearchCandidate{}
	)
	merge := func(hits []types.ChunkHit, set func(c *types.SearchCandidate, score float64)) {
		for _, h := range hits {
			c, ok := byID[h.ID]
			if !ok {
				c = &types.SearchCandidate{ID: h.ID, Content: h.Content, Metadata: h.Metadata}
				byID[h.ID] = c
				order = append(order, h.ID)
			}
			if c.Content == "" {
				c.Content = h.Content
			}
			set(c, h.Score)
		}
	}
	merge(vector, func(c *types.SearchCandidate, s float64) { c.Scores.Vector = max(c.Scores.Vector, s) })
	merge(lexical, func(c *types.SearchCandidate, s float64) { c.Scores.Lexical = max(c.Scores.Lexical, s) })

	out := make([]types.SearchCandidate, 0, len(order))
	for _, id := range order {
		c := byID[id]
		if c.ID == "" || c.Content == "" {
			continue
		}
		c.Scores.Hybrid = cfg.VectorWeight*c.Scores.Vector + cfg.LexicalWeight*c.Scores.Lexical
		out = append(out, *c)
	}

	slices.SortStableFunc(out, func(a, b types.SearchCandidate) int {
		switch {
		case a.Scores.Hybrid > b.Scores.Hybrid:
			return -1
		case a.Scores.Hybrid < b.Scores.Hybrid:
			return 1
		}
		return 0
	})
	if cfg.TopK > 0 && len(out) > cfg.TopK {
		out = out[:cfg.TopK]
	}
	return out
}
