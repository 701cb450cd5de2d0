// Package rerank talks to the self-hosted cross-encoder service and applies
// its scores to hybrid search candidates.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/quka-ai/kbcore/pkg/ai"
	"github.com/quka-ai/kbcore/pkg/types"
)

const (
	NAME = "cross-encoder"

	SECRET_HEADER = "X-Reranker-Secret"
)

type Client struct {
	client   *http.Client
	endpoint string
	secret   string
	model    string
}

func New(endpoint, secret, model string, timeout time.Duration) *Client {
	return &Client{
		client:   &http.Client{Timeout: timeout},
		endpoint: strings.TrimRight(endpoint, "/"),
		secret:   secret,
		model:    model,
	}
}

type document struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type request struct {
	Query     string     `json:"query"`
	Documents []document `json:"documents"`
}

type response struct {
	Results []struct {
		ID    string  `json:"id"`
		Score float64 `json:"score"`
	} `json:"results"`
}

func (c *Client) Rerank(ctx context.Context, query string, docs []*ai.RerankDoc) ([]ai.RankDocItem, *ai.Usage, error) {
	slog.Debug("Rerank", slog.String("driver", NAME), slog.Int("docs", len(docs)))
	body := request{
		Query: query,
		Documents: lo.Map(docs, func(item *ai.RerankDoc, _ int) document {
			return document{ID: item.ID, Content: item.Content}
		}),
	}

	var res response
	if err := c.post(ctx, body, &res); err != nil {
		return nil, nil, err
	}

	known := lo.SliceToMap(docs, func(item *ai.RerankDoc) (string, struct{}) {
		return item.ID, struct{}{}
	})
	items := make([]ai.RankDocItem, 0, len(res.Results))
	for _, v := range res.Results {
		if _, ok := known[v.ID]; !ok {
			return nil, nil, fmt.Errorf("reranker returned unknown id %q", v.ID)
		}
		items = append(items, ai.RankDocItem{ID: v.ID, Score: v.Score})
	}

	return items, &ai.Usage{Model: c.model}, nil
}

// Warm sends a single-pair request so the service keeps its model loaded.
func (c *Client) Warm(ctx context.Context) error {
	var res response
	return c.post(ctx, request{
		Query:     "warm",
		Documents: []document{{ID: "warm", Content: "warm"}},
	}, &res)
}

func (c *Client) post(ctx context.Context, body request, out *response) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/rerank", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SECRET_HEADER, c.secret)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("Failed to request reranker: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Failed to request reranker, %s: %s", resp.Status, string(data))
	}
	if err = json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("Failed to unmarshal reranker response, %w", err)
	}
	return nil
}

var ErrNoScores = errors.New("reranker returned no scores")

// Apply scores candidates with r and sorts them by rerank score, keeping the
// hybrid order among equal scores. Candidates the reranker did not score are
// placed after scored ones. On any error the input is returned unchanged
// together with the error.
func Apply(ctx context.Context, r ai.Reranker, query string, candidates []types.SearchCandidate) ([]types.SearchCandidate, *ai.Usage, error) {
	if r == nil || len(candidates) == 0 {
		return candidates, nil, nil
	}

	docs := lo.Map(candidates, func(item types.SearchCandidate, _ int) *ai.RerankDoc {
		return &ai.RerankDoc{ID: item.ID, Content: item.Content}
	})
	items, usage, err := r.Rerank(ctx, query, docs)
	if err != nil {
		return candidates, nil, err
	}
	if len(items) == 0 {
		return candidates, usage, ErrNoScores
	}

	scores := make(map[string]float64, len(items))
	for _, v := range items {
		if old, ok := scores[v.ID]; !ok || v.Score > old {
			scores[v.ID] = v.Score
		}
	}

	out := slices.Clone(candidates)
	for i := range out {
		if s, ok := scores[out[i].ID]; ok {
			out[i].Scores.Rerank = &s
		}
	}
	slices.SortStableFunc(out, func(a, b types.SearchCandidate) int {
		switch {
		case a.Scores.Rerank == nil && b.Scores.Rerank == nil:
			return 0
		case a.Scores.Rerank == nil:
			return 1
		case b.Scores.Rerank == nil:
			return -1
		case *a.Scores.Rerank > *b.Scores.Rerank:
			return -1
		case *a.Scores.Rerank < *b.Scores.Rerank:
			return 1
		}
		return 0
	})
	return out, usage, nil
}
