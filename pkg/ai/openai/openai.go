package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/quka-ai/kbcore/pkg/ai"
)

const (
	NAME = "openai"
)

type Driver struct {
	client     *openai.Client
	model      ai.ModelName
	dimensions int
}

func New(token, proxy string, model ai.ModelName, dimensions int) *Driver {
	cfg := openai.DefaultConfig(token)
	if proxy != "" {
		cfg.BaseURL = proxy
	}

	if model.EmbeddingModel == "" {
		model.EmbeddingModel = string(openai.SmallEmbedding3)
	}
	if dimensions <= 0 {
		dimensions = ai.DEFAULT_EMBEDDING_DIMENSIONS
	}

	return &Driver{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		dimensions: dimensions,
	}
}

func (s *Driver) Model() string {
	return s.model.EmbeddingModel
}

// embedding issues exactly one provider call. Batching is the caller's concern.
func (s *Driver) embedding(ctx context.Context, content []string) (ai.EmbeddingResult, error) {
	slog.Debug("Embedding", slog.String("driver", NAME), slog.Int("inputs", len(content)))
	req := openai.EmbeddingRequest{
		Input:      content,
		Model:      openai.EmbeddingModel(s.model.EmbeddingModel),
		Dimensions: s.dimensions,
	}

	resp, err := s.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return ai.EmbeddingResult{}, classify(err)
	}

	r := ai.EmbeddingResult{
		Model: string(resp.Model),
		Usage: &openai.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Data: make([][]float32, 0, len(resp.Data)),
	}
	for _, v := range resp.Data {
		r.Data = append(r.Data, v.Embedding)
	}
	if r.Usage.TotalTokens == 0 {
		r.Usage.PromptTokens = ai.EstimateTokens(s.model.EmbeddingModel, content)
		r.Usage.TotalTokens = r.Usage.PromptTokens
	}
	return r, nil
}

func (s *Driver) EmbeddingForQuery(ctx context.Context, content []string) (ai.EmbeddingResult, error) {
	return s.embedding(ctx, content)
}

func (s *Driver) EmbeddingForDocument(ctx context.Context, title string, content []string) (ai.EmbeddingResult, error) {
	return s.embedding(ctx, content)
}

// classify maps provider responses onto the fatal error sentinels in package ai.
func classify(err error) error {
	var (
		status int
		code   string
		apiErr *openai.APIError
		reqErr *openai.RequestError
	)
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
		code = apiErr.Type
		if c, ok := apiErr.Code.(string); ok && c != "" {
			code = c
		}
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ai.ErrProviderAuth, err.Error())
	case status == http.StatusTooManyRequests && code == "insufficient_quota":
		return fmt.Errorf("%w: %s", ai.ErrProviderQuota, err.Error())
	case status == http.StatusPaymentRequired:
		return fmt.Errorf("%w: %s", ai.ErrProviderQuota, err.Error())
	}
	return fmt.Errorf("Error creating embedding: %w", err)
}
