package srv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quka-ai/kbcore/pkg/ai"
	"github.com/quka-ai/kbcore/pkg/ai/jina"
	"github.com/quka-ai/kbcore/pkg/ai/rerank"
)

func TestSetupAIEmpty(t *testing.T) {
	s, err := SetupSrvs(ApplyAI(AIConfig{}))
	require.NoError(t, err)

	_, err = s.AI().EmbeddingForQuery(context.Background(), []string{"q"})
	assert.ErrorIs(t, err, ErrNoEmbeddingDriver)
	_, _, err = s.AI().Rerank(context.Background(), "q", nil)
	assert.ErrorIs(t, err, ErrNoRerankDriver)
	assert.Nil(t, s.AI().Reranker())
	assert.NoError(t, s.AI().Warm(context.Background()))
}

func TestSetupAIDrivers(t *testing.T) {
	a, err := SetupAI(AIConfig{
		Embedding: EmbeddingConfig{Driver: "openai", Token: "sk-test"},
		Rerank:    RerankConfig{Driver: rerank.NAME, Endpoint: "http://127.0.0.1:9000", Token: "secret"},
	})
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", a.EmbeddingModel())
	assert.NotNil(t, a.Reranker())
	assert.NotNil(t, a.warmer)

	a, err = SetupAI(AIConfig{Rerank: RerankConfig{Driver: jina.NAME, Token: "jina"}})
	require.NoError(t, err)
	assert.NotNil(t, a.Reranker())
	assert.Nil(t, a.warmer)
}

func TestSetupAIRejectsUnknownDrivers(t *testing.T) {
	_, err := SetupAI(AIConfig{Embedding: EmbeddingConfig{Driver: "nope"}})
	assert.Error(t, err)

	_, err = SetupAI(AIConfig{Rerank: RerankConfig{Driver: rerank.NAME}})
	assert.Error(t, err)
}

type staticReranker struct{}

func (staticReranker) Rerank(ctx context.Context, query string, docs []*ai.RerankDoc) ([]ai.RankDocItem, *ai.Usage, error) {
	return nil, nil, nil
}

func TestApplyDrivers(t *testing.T) {
	s, err := SetupSrvs(ApplyDrivers(nil, "m", staticReranker{}))
	require.NoError(t, err)
	assert.NotNil(t, s.AI().Reranker())
	assert.Equal(t, "m", s.AI().EmbeddingModel())
}
