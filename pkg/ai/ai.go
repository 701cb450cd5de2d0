package ai

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sashabaranov/go-openai"
)

const (
	DEFAULT_EMBEDDING_DIMENSIONS = 1536
	fallbackEncoding             = "cl100k_base"
)

// Provider errors that must stop an ingestion run. Every other provider error
// is treated as transient for the batch that caused it.
var (
	ErrProviderAuth  = errors.New("provider rejected credentials")
	ErrProviderQuota = errors.New("provider quota exhausted")
)

func IsFatal(err error) bool {
	return errors.Is(err, ErrProviderAuth) || errors.Is(err, ErrProviderQuota)
}

type ModelName struct {
	EmbeddingModel string `toml:"embedding_model"`
	RerankModel    string `toml:"rerank_model"`
}

type Embedder interface {
	EmbeddingForQuery(ctx context.Context, content []string) (EmbeddingResult, error)
	EmbeddingForDocument(ctx context.Context, title string, content []string) (EmbeddingResult, error)
}

type Reranker interface {
	Rerank(ctx context.Context, query string, docs []*RerankDoc) ([]RankDocItem, *Usage, error)
}

type EmbeddingResult struct {
	Model string
	Usage *openai.Usage
	Data  [][]float32
}

type Usage struct {
	Model string        `json:"model"`
	Usage *openai.Usage `json:"-"`
}

type RerankDoc struct {
	ID      string
	Content string
}

type RankDocItem struct {
	ID    string
	Score float64
}

var (
	encodings   = map[string]*tiktoken.Tiktoken{}
	encodingsMu sync.Mutex
)

func encodingFor(model string) (*tiktoken.Tiktoken, error) {
	encodingsMu.Lock()
	defer encodingsMu.Unlock()
	if tkm, ok := encodings[model]; ok {
		return tkm, nil
	}
	tkm, err := tiktoken.EncodingForModel(model)
	if err != nil {
		if tkm, err = tiktoken.GetEncoding(fallbackEncoding); err != nil {
			return nil, err
		}
	}
	encodings[model] = tkm
	return tkm, nil
}

// EstimateTokens counts tokens locally for providers that do not report usage.
// When no encoding can be loaded it falls back to four characters per token.
func EstimateTokens(model string, texts []string) int {
	tkm, err := encodingFor(model)
	if err != nil {
		slog.Debug("tiktoken unavailable, estimating by length", slog.String("model", model), slog.String("error", err.Error()))
		n := 0
		for _, t := range texts {
			n += (len(t) + 3) / 4
		}
		return n
	}

	n := 0
	for _, t := range texts {
		n += len(tkm.Encode(t, nil, nil))
	}
	return n
}

// CleanEmbeddingInput replaces line breaks with single spaces.
func CleanEmbeddingInput(texts []string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = strings.Join(strings.FieldsFunc(t, func(r rune) bool { return r == '\n' || r == '\r' }), " ")
	}
	return out
}
