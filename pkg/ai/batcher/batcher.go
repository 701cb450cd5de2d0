// Package batcher sends chunk texts to an embedding provider in fixed-size,
// rate limited batches.
package batcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/samber/lo"
	"golang.org/x/time/rate"

	"github.com/quka-ai/kbcore/pkg/ai"
	"github.com/quka-ai/kbcore/pkg/types"
)

const (
	DEFAULT_BATCH_SIZE = 20
	DEFAULT_DELAY      = 500 * time.Millisecond
	DEFAULT_TIMEOUT    = 30 * time.Second

	OUTCOME_OK       = "ok"
	OUTCOME_MISMATCH = "mismatch"
	OUTCOME_ERROR    = "error"
	OUTCOME_FATAL    = "fatal"
)

// Config controls batching. A negative Delay disables the inter-batch wait.
type Config struct {
	BatchSize int           `toml:"batch_size"`
	Delay     time.Duration `toml:"delay"`
	Timeout   time.Duration `toml:"timeout"`
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DEFAULT_BATCH_SIZE
	}
	if c.Delay == 0 {
		c.Delay = DEFAULT_DELAY
	}
	if c.Timeout <= 0 {
		c.Timeout = DEFAULT_TIMEOUT
	}
	return c
}

// BatchFailure describes one dropped batch. ChunkIDs lists every chunk that
// did not receive a vector.
type BatchFailure struct {
	Batch    int
	ChunkIDs []string
	Reason   string
}

func (f BatchFailure) String() string {
	return fmt.Sprintf("batch %d (%d chunks: %v): %s", f.Batch, len(f.ChunkIDs), f.ChunkIDs, f.Reason)
}

type Result struct {
	Chunks   []types.KnowledgeChunk
	Model    string
	Tokens   int
	Failures []BatchFailure
}

type Batcher struct {
	embedder ai.Embedder
	cfg      Config
	observe  func(outcome string)
}

type Option func(*Batcher)

// WithObserver registers a callback that receives the outcome of every batch.
func WithObserver(fn func(outcome string)) Option {
	return func(b *Batcher) {
		b.observe = fn
	}
}

func New(embedder ai.Embedder, cfg Config, opts ...Option) *Batcher {
	b := &Batcher{
		embedder: embedder,
		cfg:      cfg.withDefaults(),
		observe:  func(string) {},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Embed processes chunks one batch at a time. A fatal provider error stops the
// run and is returned together with what was embedded so far. Any other batch
// error is logged, recorded in Result.Failures and skipped.
func (b *Batcher) Embed(ctx context.Context, chunks []types.KnowledgeChunk, logAttrs ...any) (Result, error) {
	var (
		result  Result
		logger  = slog.With(logAttrs...)
		limiter = rate.NewLimiter(rate.Inf, 1)
	)
	if b.cfg.Delay > 0 {
		limiter = rate.NewLimiter(rate.Every(b.cfg.Delay), 1)
	}

	for i, batch := range lo.Chunk(chunks, b.cfg.BatchSize) {
		if err := limiter.Wait(ctx); err != nil {
			return result, err
		}

		ids := lo.Map(batch, func(item types.KnowledgeChunk, _ int) string { return item.ID })
		texts := ai.CleanEmbeddingInput(lo.Map(batch, func(item types.KnowledgeChunk, _ int) string {
			if item.EmbeddingText != "" {
				return item.EmbeddingText
			}
			return item.Content
		}))

		res, err := b.call(ctx, texts)
		if err != nil {
			if ai.IsFatal(err) {
				b.observe(OUTCOME_FATAL)
				logger.Error("embedding provider rejected the run", slog.Int("batch", i), slog.Any("chunk_ids", ids), slog.String("error", err.Error()))
				return result, err
			}
			b.observe(OUTCOME_ERROR)
			logger.Error("failed to embed batch, skipped", slog.Int("batch", i), slog.Any("chunk_ids", ids), slog.String("error", err.Error()))
			result.Failures = append(result.Failures, BatchFailure{Batch: i, ChunkIDs: ids, Reason: err.Error()})
			continue
		}

		if res.Usage != nil {
			result.Tokens += res.Usage.TotalTokens
		}
		if res.Model != "" {
			result.Model = res.Model
		}

		if len(res.Data) != len(batch) {
			b.observe(OUTCOME_MISMATCH)
			reason := fmt.Sprintf("provider returned %d vectors for %d inputs", len(res.Data), len(batch))
			logger.Warn("embedding count mismatch, batch dropped", slog.Int("batch", i), slog.Any("chunk_ids", ids), slog.String("reason", reason))
			result.Failures = append(result.Failures, BatchFailure{Batch: i, ChunkIDs: ids, Reason: reason})
			continue
		}

		b.observe(OUTCOME_OK)
		for j, item := range batch {
			item.Embedding = pgvector.NewVector(res.Data[j])
			result.Chunks = append(result.Chunks, item)
		}
	}

	return result, nil
}

func (b *Batcher) call(ctx context.Context, texts []string) (ai.EmbeddingResult, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()
	return b.embedder.EmbeddingForDocument(ctx, "", texts)
}
