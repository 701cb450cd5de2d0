package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quka-ai/kbcore/pkg/ai"
)

func fakeProvider(t *testing.T, status int, body string) (*httptest.Server, *[]map[string]any) {
	var requests []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests = append(requests, req)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestEmbeddingSuccess(t *testing.T) {
	srv, requests := fakeProvider(t, http.StatusOK, `{
		"object": "list",
		"model": "text-embedding-3-small",
		"data": [
			{"object": "embedding", "index": 0, "embedding": [0.1, 0.2]},
			{"object": "embedding", "index": 1, "embedding": [0.3, 0.4]}
		],
		"usage": {"prompt_tokens": 7, "total_tokens": 7}
	}`)

	d := New("test-token", srv.URL+"/v1", ai.ModelName{}, 2)
	res, err := d.EmbeddingForDocument(context.Background(), "", []string{"first", "second"})
	require.NoError(t, err)

	assert.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, res.Data)
	assert.Equal(t, 7, res.Usage.TotalTokens)
	assert.Equal(t, "text-embedding-3-small", res.Model)

	require.Len(t, *requests, 1)
	assert.Equal(t, "text-embedding-3-small", (*requests)[0]["model"])
	assert.EqualValues(t, 2, (*requests)[0]["dimensions"])
}

func TestEmbeddingClassifiesErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		fatal  error
	}{
		{"auth", http.StatusUnauthorized, `{"error":{"message":"Incorrect API key","type":"invalid_request_error","code":"invalid_api_key"}}`, ai.ErrProviderAuth},
		{"quota", http.StatusTooManyRequests, `{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`, ai.ErrProviderQuota},
		{"rate limit", http.StatusTooManyRequests, `{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`, nil},
		{"server", http.StatusInternalServerError, `{"error":{"message":"boom","type":"server_error"}}`, nil},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			srv, _ := fakeProvider(t, c.status, c.body)
			d := New("test-token", srv.URL+"/v1", ai.ModelName{EmbeddingModel: "m"}, 4)

			_, err := d.EmbeddingForQuery(context.Background(), []string{"q"})
			require.Error(t, err)
			if c.fatal != nil {
				assert.ErrorIs(t, err, c.fatal)
				assert.True(t, ai.IsFatal(err))
			} else {
				assert.False(t, ai.IsFatal(err))
			}
		})
	}
}
