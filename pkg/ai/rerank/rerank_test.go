package rerank

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quka-ai/kbcore/pkg/ai"
	"github.com/quka-ai/kbcore/pkg/types"
)

func candidates() []types.SearchCandidate {
	return []types.SearchCandidate{
		{ID: "a", Content: "alpha", Scores: types.SearchScores{Hybrid: 0.9}},
		{ID: "b", Content: "bravo", Scores: types.SearchScores{Hybrid: 0.8}},
		{ID: "c", Content: "charlie", Scores: types.SearchScores{Hybrid: 0.7}},
		{ID: "d", Content: "delta", Scores: types.SearchScores{Hybrid: 0.6}},
	}
}

func ids(list []types.SearchCandidate) []string {
	out := make([]string, len(list))
	for i, v := range list {
		out[i] = v.ID
	}
	return out
}

func TestClientRerank(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rerank", r.URL.Path)
		assert.Equal(t, "s3cret", r.Header.Get(SECRET_HEADER))

		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "how long do refunds take", req.Query)
		assert.Equal(t, []document{{ID: "a", Content: "alpha"}, {ID: "b", Content: "bravo"}}, req.Documents)

		_, _ = w.Write([]byte(`{"results":[{"id":"a","score":0.2},{"id":"b","score":0.7}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "s3cret", "ms-marco", time.Second)
	items, usage, err := c.Rerank(context.Background(), "how long do refunds take", []*ai.RerankDoc{
		{ID: "a", Content: "alpha"},
		{ID: "b", Content: "bravo"},
	})
	require.NoError(t, err)
	assert.Equal(t, []ai.RankDocItem{{ID: "a", Score: 0.2}, {ID: "b", Score: 0.7}}, items)
	assert.Equal(t, "ms-marco", usage.Model)
}

func TestClientRejectsUnknownID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"id":"zzz","score":0.2}]}`))
	}))
	defer srv.Close()

	_, _, err := New(srv.URL, "", "", time.Second).Rerank(context.Background(), "q", []*ai.RerankDoc{{ID: "a", Content: "x"}})
	assert.Error(t, err)
}

func TestClientWarm(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Documents, 1)
		_, _ = w.Write([]byte(`{"results":[{"id":"warm","score":0.0}]}`))
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL, "s", "", time.Second).Warm(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, _, err := New(srv.URL, "", "", 20*time.Millisecond).Rerank(context.Background(), "q", []*ai.RerankDoc{{ID: "a", Content: "x"}})
	assert.Error(t, err)
}

type stubReranker struct {
	items []ai.RankDocItem
	err   error
}

func (s stubReranker) Rerank(ctx context.Context, query string, docs []*ai.RerankDoc) ([]ai.RankDocItem, *ai.Usage, error) {
	return s.items, &ai.Usage{Model: "stub"}, s.err
}

func TestApplySortsByRerankScore(t *testing.T) {
	in := candidates()
	out, _, err := Apply(context.Background(), stubReranker{items: []ai.RankDocItem{
		{ID: "a", Score: 0.1},
		{ID: "b", Score: 0.5},
		{ID: "c", Score: 0.5},
		{ID: "d", Score: 0.9},
	}}, "q", in)
	require.NoError(t, err)

	// ties keep hybrid order
	assert.Equal(t, []string{"d", "b", "c", "a"}, ids(out))
	require.NotNil(t, out[0].Scores.Rerank)
	assert.Equal(t, 0.9, *out[0].Scores.Rerank)
	assert.Equal(t, 0.6, out[0].Scores.Hybrid)
	// input slice is untouched
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(in))
	assert.Nil(t, in[0].Scores.Rerank)
}

func TestApplyUnscoredGoLast(t *testing.T) {
	out, _, err := Apply(context.Background(), stubReranker{items: []ai.RankDocItem{
		{ID: "c", Score: 0.3},
	}}, "q", candidates())
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b", "d"}, ids(out))
}

func TestApplyFallsBackOnError(t *testing.T) {
	in := candidates()
	out, _, err := Apply(context.Background(), stubReranker{err: errors.New("connection refused")}, "q", in)
	assert.Error(t, err)
	assert.Equal(t, in, out)

	out, _, err = Apply(context.Background(), stubReranker{}, "q", in)
	assert.ErrorIs(t, err, ErrNoScores)
	assert.Equal(t, in, out)

	out, _, err = Apply(context.Background(), nil, "q", in)
	assert.NoError(t, err)
	assert.Equal(t, in, out)
}
