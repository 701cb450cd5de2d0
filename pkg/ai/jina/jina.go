package jina

// provider for https://jina.ai/
// - rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/lo"
	"github.com/sashabaranov/go-openai"

	"github.com/quka-ai/kbcore/pkg/ai"
)

const (
	NAME = "jina"

	DEFAULT_ENDPOINT = "https://api.jina.ai/v1/rerank"
	DEFAULT_MODEL    = "jina-reranker-v2-base-multilingual"
)

type Driver struct {
	client   *http.Client
	token    string
	model    string
	endpoint string
}

func New(token, model, endpoint string, timeout time.Duration) *Driver {
	if model == "" {
		model = DEFAULT_MODEL
	}
	if endpoint == "" {
		endpoint = DEFAULT_ENDPOINT
	}
	return &Driver{
		client:   &http.Client{Timeout: timeout},
		token:    token,
		model:    model,
		endpoint: endpoint,
	}
}

func (s *Driver) applyBaseHeader(req *http.Request) {
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	req.Header.Add("Authorization", "Bearer "+s.token)
}

type RerankRequestBody struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	TopN      int      `json:"top_n"`
	Documents []string `json:"documents"`
}

type RerankResponse struct {
	Model string `json:"model"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Results []RerankResponseItem `json:"results"`
}

type RerankResponseItem struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

func (s *Driver) Rerank(ctx context.Context, query string, docs []*ai.RerankDoc) ([]ai.RankDocItem, *ai.Usage, error) {
	slog.Debug("Rerank", slog.String("driver", NAME), slog.Int("docs", len(docs)))
	request := RerankRequestBody{
		Model: s.model,
		Query: query,
		TopN:  len(docs),
		Documents: lo.Map(docs, func(item *ai.RerankDoc, _ int) string {
			return item.Content
		}),
	}

	raw, err := json.Marshal(request)
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, nil, err
	}
	s.applyBaseHeader(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("Failed to request jina rerank: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("Failed to request rerank api, %s: %s", resp.Status, string(body))
	}

	var result RerankResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, nil, err
	}

	rank := make([]ai.RankDocItem, 0, len(result.Results))
	for _, v := range result.Results {
		if v.Index < 0 || v.Index >= len(docs) {
			return nil, nil, fmt.Errorf("rerank result index %d out of range", v.Index)
		}
		rank = append(rank, ai.RankDocItem{
			ID:    docs[v.Index].ID,
			Score: v.RelevanceScore,
		})
	}

	return rank, &ai.Usage{
		Model: s.model,
		Usage: &openai.Usage{
			PromptTokens: result.Usage.TotalTokens,
			TotalTokens:  result.Usage.TotalTokens,
		},
	}, nil
}
