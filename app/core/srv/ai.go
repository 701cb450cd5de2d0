package srv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/quka-ai/kbcore/pkg/ai"
	"github.com/quka-ai/kbcore/pkg/ai/jina"
	"github.com/quka-ai/kbcore/pkg/ai/openai"
	"github.com/quka-ai/kbcore/pkg/ai/rerank"
)

var (
	ErrNoEmbeddingDriver = errors.New("no embedding provider configured")
	ErrNoRerankDriver    = errors.New("no rerank provider configured")
)

type AIConfig struct {
	Embedding EmbeddingConfig `toml:"embedding"`
	Rerank    RerankConfig    `toml:"rerank"`
}

type EmbeddingConfig struct {
	Driver     string `toml:"driver"` // openai
	Token      string `toml:"token"`
	Endpoint   string `toml:"endpoint"`
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
}

func (c *EmbeddingConfig) FromENV() {
	c.Driver = os.Getenv("KB_EMBEDDING_DRIVER")
	c.Token = os.Getenv("KB_EMBEDDING_TOKEN")
	c.Endpoint = os.Getenv("KB_EMBEDDING_ENDPOINT")
	c.Model = os.Getenv("KB_EMBEDDING_MODEL")
}

type RerankConfig struct {
	Driver       string        `toml:"driver"` // cross-encoder | jina, 为空时不重排
	Token        string        `toml:"token"`  // jina token 或自建服务的共享密钥
	Endpoint     string        `toml:"endpoint"`
	Model        string        `toml:"model"`
	Timeout      time.Duration `toml:"timeout"`
	WarmInterval time.Duration `toml:"warm_interval"`
}

func (c *RerankConfig) FromENV() {
	c.Driver = os.Getenv("KB_RERANK_DRIVER")
	c.Token = os.Getenv("KB_RERANK_TOKEN")
	c.Endpoint = os.Getenv("KB_RERANK_ENDPOINT")
	c.Model = os.Getenv("KB_RERANK_MODEL")
}

type Warmer interface {
	Warm(ctx context.Context) error
}

// AI holds the configured provider drivers.
type AI struct {
	embedDefault  ai.Embedder
	embedModel    string
	rerankDefault ai.Reranker
	warmer        Warmer
}

func SetupAI(cfg AIConfig) (*AI, error) {
	a := &AI{}

	switch strings.ToLower(cfg.Embedding.Driver) {
	case "":
	case openai.NAME:
		d := openai.New(cfg.Embedding.Token, cfg.Embedding.Endpoint, ai.ModelName{EmbeddingModel: cfg.Embedding.Model}, cfg.Embedding.Dimensions)
		a.embedDefault = d
		a.embedModel = d.Model()
	default:
		return nil, fmt.Errorf("unknown embedding driver %q", cfg.Embedding.Driver)
	}

	timeout := cfg.Rerank.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	switch strings.ToLower(cfg.Rerank.Driver) {
	case "":
	case rerank.NAME:
		if cfg.Rerank.Endpoint == "" {
			return nil, errors.New("rerank endpoint is required for the cross-encoder driver")
		}
		d := rerank.New(cfg.Rerank.Endpoint, cfg.Rerank.Token, cfg.Rerank.Model, timeout)
		a.rerankDefault = d
		a.warmer = d
	case jina.NAME:
		a.rerankDefault = jina.New(cfg.Rerank.Token, cfg.Rerank.Model, cfg.Rerank.Endpoint, timeout)
	default:
		return nil, fmt.Errorf("unknown rerank driver %q", cfg.Rerank.Driver)
	}
	return a, nil
}

func (s *AI) EmbeddingForQuery(ctx context.Context, content []string) (ai.EmbeddingResult, error) {
	if s.embedDefault == nil {
		return ai.EmbeddingResult{}, ErrNoEmbeddingDriver
	}
	return s.embedDefault.EmbeddingForQuery(ctx, content)
}

func (s *AI) EmbeddingForDocument(ctx context.Context, title string, content []string) (ai.EmbeddingResult, error) {
	if s.embedDefault == nil {
		return ai.EmbeddingResult{}, ErrNoEmbeddingDriver
	}
	return s.embedDefault.EmbeddingForDocument(ctx, title, content)
}

func (s *AI) Rerank(ctx context.Context, query string, docs []*ai.RerankDoc) ([]ai.RankDocItem, *ai.Usage, error) {
	if s.rerankDefault == nil {
		return nil, nil, ErrNoRerankDriver
	}
	return s.rerankDefault.Rerank(ctx, query, docs)
}

// Reranker returns nil when reranking is disabled.
func (s *AI) Reranker() ai.Reranker {
	if s.rerankDefault == nil {
		return nil
	}
	return s
}

// Warm pings the reranker when the driver supports it.
func (s *AI) Warm(ctx context.Context) error {
	if s.warmer == nil {
		return nil
	}
	return s.warmer.Warm(ctx)
}

func (s *AI) EmbeddingModel() string {
	return s.embedModel
}

func (s *AI) Status() map[string]interface{} {
	return map[string]interface{}{
		"embed_available":  s.embedDefault != nil,
		"embed_model":      s.embedModel,
		"rerank_available": s.rerankDefault != nil,
	}
}
