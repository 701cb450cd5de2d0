package v1_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quka-ai/kbcore/app/core"
	"github.com/quka-ai/kbcore/app/core/srv"
	v1 "github.com/quka-ai/kbcore/app/logic/v1"
	"github.com/quka-ai/kbcore/app/store/memstore"
	"github.com/quka-ai/kbcore/pkg/ai"
	"github.com/quka-ai/kbcore/pkg/ai/batcher"
	"github.com/quka-ai/kbcore/pkg/object-storage/local"
	"github.com/quka-ai/kbcore/pkg/types"
)

const tenant = "tenant-a"

type fakeEmbedder struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeEmbedder) embed(content []string) (ai.EmbeddingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return ai.EmbeddingResult{}, f.err
	}
	data := make([][]float32, len(content))
	for i := range data {
		data[i] = []float32{1, 0, 0}
	}
	return ai.EmbeddingResult{
		Model: "fake-embedding",
		Data:  data,
		Usage: &openai.Usage{PromptTokens: 10 * len(content), TotalTokens: 10 * len(content)},
	}, nil
}

func (f *fakeEmbedder) EmbeddingForQuery(ctx context.Context, content []string) (ai.EmbeddingResult, error) {
	return f.embed(content)
}

func (f *fakeEmbedder) EmbeddingForDocument(ctx context.Context, title string, content []string) (ai.EmbeddingResult, error) {
	return f.embed(content)
}

// keywordReranker scores documents containing keyword highest.
type keywordReranker struct {
	keyword string
	err     error
	calls   int
}

func (r *keywordReranker) Rerank(ctx context.Context, query string, docs []*ai.RerankDoc) ([]ai.RankDocItem, *ai.Usage, error) {
	r.calls++
	if r.err != nil {
		return nil, nil, r.err
	}
	items := make([]ai.RankDocItem, 0, len(docs))
	for _, d := range docs {
		score := 0.1
		if strings.Contains(d.Content, r.keyword) {
			score = 0.9
		}
		items = append(items, ai.RankDocItem{ID: d.ID, Score: score})
	}
	return items, &ai.Usage{Model: "fake-rerank", Usage: &openai.Usage{PromptTokens: 3}}, nil
}

type testEnv struct {
	core     *core.Core
	store    *memstore.Provider
	embedder *fakeEmbedder
}

func newTestEnv(t *testing.T, reranker ai.Reranker, opts ...core.Option) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    memstore.New(),
		embedder: &fakeEmbedder{},
	}
	s, err := srv.SetupSrvs(srv.ApplyDrivers(env.embedder, "fake-embedding", reranker))
	require.NoError(t, err)

	cfg := core.CoreConfig{}
	cfg.Store.Driver = "memory"
	cfg.Chunker.TargetWords = 50
	cfg.Chunker.MaxWords = 100
	cfg.Chunker.Embedding = batcher.Config{Delay: -1}

	env.core, err = core.NewCore(cfg, append([]core.Option{core.WithStore(env.store), core.WithSrv(s)}, opts...)...)
	require.NoError(t, err)
	return env
}

const twoSections = `<html><body><nav>Home About</nav>
<h2>Alpha</h2><p>Alpha section explains how the gateway routes tenant traffic between regional clusters.</p>
<h2>Beta</h2><p>Beta section describes backup retention policies, nightly snapshots and restore drills for operators.</p>
</body></html>`

func createArticle(t *testing.T, env *testEnv, content string) *types.KnowledgeSource {
	t.Helper()
	src, err := v1.NewSourceLogic(context.Background(), env.core).Create(tenant, v1.CreateSourceRequest{
		Kind:    types.SOURCE_KIND_ARTICLE,
		Name:    "handbook",
		Content: content,
	})
	require.NoError(t, err)
	return src
}

func TestCreateSourceValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	logic := v1.NewSourceLogic(context.Background(), env.core)

	cases := []v1.CreateSourceRequest{
		{Kind: "video"},
		{Kind: types.SOURCE_KIND_URL, URL: "example.com/page"},
		{Kind: types.SOURCE_KIND_PDF},
		{Kind: types.SOURCE_KIND_ARTICLE, Content: "   "},
	}
	for _, c := range cases {
		_, err := logic.Create(tenant, c)
		assert.Error(t, err, "kind %s", c.Kind)
	}

	src, err := logic.Create(tenant, v1.CreateSourceRequest{Kind: types.SOURCE_KIND_URL, URL: "https://example.com/docs"})
	require.NoError(t, err)
	assert.Equal(t, types.SOURCE_STATUS_UPLOADED, src.Status)
	assert.Equal(t, "https://example.com/docs", src.Name)

	_, err = logic.Get("tenant-b", src.ID)
	assert.ErrorIs(t, err, v1.ErrSourceNotFound)
}

func TestIngestTwoSectionArticle(t *testing.T) {
	env := newTestEnv(t, nil)
	src := createArticle(t, env, twoSections)

	res, err := v1.NewIngestLogic(context.Background(), env.core).Ingest(tenant, src.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.ChunksStored)
	assert.Empty(t, res.Errors)
	assert.Positive(t, res.TokensUsed)
	assert.Positive(t, res.CharacterCount)

	chunks, err := env.store.ChunkIndex().ListBySource(context.Background(), tenant, src.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	byIndex := map[int]types.KnowledgeChunk{}
	for _, c := range chunks {
		byIndex[c.Metadata.ChunkIndex] = c
	}
	require.Len(t, byIndex[0].Metadata.Hierarchy, 1)
	assert.Equal(t, "Alpha", byIndex[0].Metadata.Hierarchy[0].Text)
	assert.Equal(t, "Beta", byIndex[1].Metadata.Hierarchy[len(byIndex[1].Metadata.Hierarchy)-1].Text)
	for _, h := range byIndex[0].Metadata.Hierarchy {
		assert.NotEqual(t, "Beta", h.Text)
	}

	stored, err := env.store.KnowledgeSourceStore().Get(context.Background(), tenant, src.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SOURCE_STATUS_COMPLETED, stored.Status)
	assert.Positive(t, stored.LastIngestedAt)

	usage, err := env.store.AITokenUsageStore().List(context.Background(), tenant, 1, 10)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, types.USAGE_SUB_TYPE_EMBEDDING, usage[0].SubType)
	assert.Equal(t, src.ID, usage[0].ObjectID)
}

func TestIngestReplacesPreviousChunks(t *testing.T) {
	env := newTestEnv(t, nil)
	src := createArticle(t, env, twoSections)
	logic := v1.NewIngestLogic(context.Background(), env.core)

	_, err := logic.Ingest(tenant, src.ID)
	require.NoError(t, err)
	first, _ := env.store.ChunkIndex().ListBySource(context.Background(), tenant, src.ID)

	_, err = logic.Ingest(tenant, src.ID)
	require.NoError(t, err)
	second, _ := env.store.ChunkIndex().ListBySource(context.Background(), tenant, src.ID)

	require.Len(t, second, len(first))
	for _, c := range second {
		for _, old := range first {
			assert.NotEqual(t, old.ID, c.ID)
		}
	}
}

func TestIngestFatalProviderError(t *testing.T) {
	env := newTestEnv(t, nil)
	env.embedder.err = fmt.Errorf("401: %w", ai.ErrProviderAuth)
	src := createArticle(t, env, twoSections)

	res, err := v1.NewIngestLogic(context.Background(), env.core).Ingest(tenant, src.ID)
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)

	stored, _ := env.store.KnowledgeSourceStore().Get(context.Background(), tenant, src.ID)
	assert.Equal(t, types.SOURCE_STATUS_FAILED_INGEST, stored.Status)
	assert.NotEmpty(t, stored.LastError)
}

func TestIngestTransientErrorsAreListed(t *testing.T) {
	env := newTestEnv(t, nil)
	env.embedder.err = errors.New("502 bad gateway")
	src := createArticle(t, env, twoSections)

	res, err := v1.NewIngestLogic(context.Background(), env.core).Ingest(tenant, src.ID)
	require.ErrorIs(t, err, v1.ErrNoEmbeddings)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Errors)
}

func TestIngestRejectsConcurrentRun(t *testing.T) {
	env := newTestEnv(t, nil)
	src := createArticle(t, env, twoSections)

	unlock, ok, err := env.core.Locker().TryLock(context.Background(), core.IngestLockKey(tenant, src.ID), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	defer unlock()

	res, err := v1.NewIngestLogic(context.Background(), env.core).Ingest(tenant, src.ID)
	assert.ErrorIs(t, err, v1.ErrSourceBusy)
	assert.False(t, res.Success)
}

func TestIngestMissingSource(t *testing.T) {
	env := newTestEnv(t, nil)
	res, err := v1.NewIngestLogic(context.Background(), env.core).Ingest(tenant, "missing")
	assert.ErrorIs(t, err, v1.ErrSourceNotFound)
	assert.False(t, res.Success)
}

func TestDeleteSourceRemovesChunks(t *testing.T) {
	env := newTestEnv(t, nil)
	src := createArticle(t, env, twoSections)
	_, err := v1.NewIngestLogic(context.Background(), env.core).Ingest(tenant, src.ID)
	require.NoError(t, err)

	require.NoError(t, v1.NewSourceLogic(context.Background(), env.core).Delete(tenant, src.ID))

	chunks, err := env.store.ChunkIndex().ListBySource(context.Background(), tenant, src.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
	_, err = v1.NewSourceLogic(context.Background(), env.core).Get(tenant, src.ID)
	assert.ErrorIs(t, err, v1.ErrSourceNotFound)
}

func TestUploadAndIngestText(t *testing.T) {
	env := newTestEnv(t, nil, core.WithFileStorage(local.New(t.TempDir())))
	text := "Operators rotate credentials every quarter using the vault tooling. " +
		"Every rotation is recorded in the audit journal with the operator name."

	src, err := v1.NewSourceLogic(context.Background(), env.core).Upload(tenant, types.SOURCE_KIND_TXT, "rotation.txt", []byte(text))
	require.NoError(t, err)
	assert.Equal(t, "rotation.txt", src.Name)

	res, err := v1.NewIngestLogic(context.Background(), env.core).Ingest(tenant, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ChunksStored)
}

func TestUploadWithoutStorage(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := v1.NewSourceLogic(context.Background(), env.core).Upload(tenant, types.SOURCE_KIND_TXT, "a.txt", []byte("x"))
	assert.Error(t, err)
}

func TestSearchRerankAndCache(t *testing.T) {
	reranker := &keywordReranker{keyword: "backup"}
	env := newTestEnv(t, reranker)
	src := createArticle(t, env, twoSections)
	_, err := v1.NewIngestLogic(context.Background(), env.core).Ingest(tenant, src.ID)
	require.NoError(t, err)

	logic := v1.NewSearchLogic(context.Background(), env.core)
	list, err := logic.Search(tenant, "conv-1", "gateway routes")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Contains(t, list[0].Content, "backup")
	require.NotNil(t, list[0].Scores.Rerank)
	assert.Equal(t, 1, reranker.calls)

	again, err := logic.Search(tenant, "conv-1", "  Gateway   routes ")
	require.NoError(t, err)
	require.Len(t, again, len(list))
	for i := range list {
		assert.Equal(t, list[i].ID, again[i].ID)
	}
	assert.Equal(t, 1, reranker.calls)

	other, err := v1.NewSearchLogic(context.Background(), env.core).Search("tenant-b", "conv-1", "gateway routes")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSearchCacheDroppedOnSourceDelete(t *testing.T) {
	env := newTestEnv(t, nil)
	src := createArticle(t, env, twoSections)
	_, err := v1.NewIngestLogic(context.Background(), env.core).Ingest(tenant, src.ID)
	require.NoError(t, err)

	list, err := v1.NewSearchLogic(context.Background(), env.core).Search(tenant, "conv-1", "gateway routes")
	require.NoError(t, err)
	require.NotEmpty(t, list)

	require.NoError(t, v1.NewSourceLogic(context.Background(), env.core).Delete(tenant, src.ID))

	list, err = v1.NewSearchLogic(context.Background(), env.core).Search(tenant, "conv-1", "gateway routes")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSearchRerankFailureKeepsHybridOrder(t *testing.T) {
	reranker := &keywordReranker{keyword: "backup", err: errors.New("reranker down")}
	env := newTestEnv(t, reranker)
	src := createArticle(t, env, twoSections)
	_, err := v1.NewIngestLogic(context.Background(), env.core).Ingest(tenant, src.ID)
	require.NoError(t, err)

	hybrid := env.core.Retrieval().Search(context.Background(), tenant, "gateway routes").Candidates
	list, err := v1.NewSearchLogic(context.Background(), env.core).Search(tenant, "", "gateway routes")
	require.NoError(t, err)
	require.Len(t, list, len(hybrid))
	for i := range hybrid {
		assert.Equal(t, hybrid[i].ID, list[i].ID)
		assert.Nil(t, list[i].Scores.Rerank)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	env := newTestEnv(t, nil)
	list, err := v1.NewSearchLogic(context.Background(), env.core).Search(tenant, "", "   ")
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = v1.NewSearchLogic(context.Background(), env.core).Search("", "", "query")
	assert.Error(t, err)
}

func TestMonitorCheck(t *testing.T) {
	body := "<html><body><p>Release notes for version one.</p></body></html>"
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, body)
	}))
	defer ts.Close()

	env := newTestEnv(t, nil)
	src, err := v1.NewSourceLogic(context.Background(), env.core).Create(tenant, v1.CreateSourceRequest{Kind: types.SOURCE_KIND_URL, URL: ts.URL})
	require.NoError(t, err)

	logic := v1.NewMonitorLogic(context.Background(), env.core)
	res, err := logic.Check(tenant, src.ID)
	require.NoError(t, err)
	assert.Equal(t, types.CHECK_STATUS_OK, res.Status)

	body = "<html><body><p>Release notes for version two.</p></body></html>"
	res, err = logic.Check(tenant, src.ID)
	require.NoError(t, err)
	assert.Equal(t, types.CHECK_STATUS_CONTENT_CHANGED, res.Status)

	stored, _ := env.store.KnowledgeSourceStore().Get(context.Background(), tenant, src.ID)
	assert.Equal(t, types.SOURCE_STATUS_PENDING_REINGEST, stored.Status)

	article := createArticle(t, env, twoSections)
	_, err = logic.Check(tenant, article.ID)
	assert.Error(t, err)
}
