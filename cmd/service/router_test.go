package service

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quka-ai/kbcore/app/core"
	"github.com/quka-ai/kbcore/app/core/srv"
	"github.com/quka-ai/kbcore/cmd/service/handler"
	"github.com/quka-ai/kbcore/pkg/ai"
	"github.com/quka-ai/kbcore/pkg/ai/batcher"
	"github.com/quka-ai/kbcore/pkg/object-storage/local"
	"github.com/quka-ai/kbcore/pkg/types"
)

type unitEmbedder struct{}

func (unitEmbedder) embed(content []string) (ai.EmbeddingResult, error) {
	data := make([][]float32, len(content))
	for i := range data {
		data[i] = []float32{1, 0, 0}
	}
	return ai.EmbeddingResult{Model: "unit", Data: data}, nil
}

func (e unitEmbedder) EmbeddingForQuery(ctx context.Context, content []string) (ai.EmbeddingResult, error) {
	return e.embed(content)
}

func (e unitEmbedder) EmbeddingForDocument(ctx context.Context, title string, content []string) (ai.EmbeddingResult, error) {
	return e.embed(content)
}

type envelope struct {
	Meta struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"meta"`
	Data json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, mutate func(*core.CoreConfig)) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s, err := srv.SetupSrvs(srv.ApplyDrivers(unitEmbedder{}, "unit", nil))
	require.NoError(t, err)

	cfg := core.CoreConfig{}
	cfg.Store.Driver = "memory"
	cfg.Chunker.Embedding = batcher.Config{Delay: -1}
	if mutate != nil {
		mutate(&cfg)
	}
	app, err := core.NewCore(cfg, core.WithSrv(s), core.WithFileStorage(local.New(t.TempDir())))
	require.NoError(t, err)

	setupHttpRouter(&handler.HttpSrv{Core: app, Engine: app.HttpEngine()})
	return app.HttpEngine()
}

func do(t *testing.T, engine *gin.Engine, method, path string, body any) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	var res envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &res)
	}
	return w.Code, res
}

const page = `<h1>Operations</h1><p>Rotate the database credentials every quarter and record the change in the audit log.</p>`

func TestSourceLifecycle(t *testing.T) {
	engine := newTestServer(t, nil)

	code, res := do(t, engine, http.MethodPost, "/api/v1/tenants/acme/sources", map[string]any{
		"kind":    "article",
		"name":    "ops",
		"content": page,
	})
	require.Equal(t, http.StatusOK, code)
	var source types.KnowledgeSource
	require.NoError(t, json.Unmarshal(res.Data, &source))
	assert.Equal(t, "acme", source.TenantID)
	assert.Equal(t, types.SOURCE_STATUS_UPLOADED, source.Status)

	code, res = do(t, engine, http.MethodPost, "/api/v1/tenants/acme/sources/"+source.ID+"/ingest", nil)
	require.Equal(t, http.StatusOK, code)
	var result types.IngestResult
	require.NoError(t, json.Unmarshal(res.Data, &result))
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.ChunksStored)

	code, res = do(t, engine, http.MethodGet, "/api/v1/tenants/acme/search?query=credentials", nil)
	require.Equal(t, http.StatusOK, code)
	var found struct {
		List []types.SearchCandidate `json:"list"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &found))
	require.Len(t, found.List, 1)
	assert.Equal(t, source.ID, found.List[0].Metadata.OriginalSourceID)

	// another tenant sees nothing
	code, res = do(t, engine, http.MethodGet, "/api/v1/tenants/other/search?query=credentials", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(res.Data, &found))
	assert.Empty(t, found.List)

	code, res = do(t, engine, http.MethodGet, "/api/v1/tenants/acme/sources?status=completed", nil)
	require.Equal(t, http.StatusOK, code)
	var list struct {
		List  []types.KnowledgeSource `json:"list"`
		Total uint64                  `json:"total"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &list))
	assert.EqualValues(t, 1, list.Total)

	code, _ = do(t, engine, http.MethodDelete, "/api/v1/tenants/acme/sources/"+source.ID, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = do(t, engine, http.MethodGet, "/api/v1/tenants/acme/sources/"+source.ID, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestIngestMissingSource(t *testing.T) {
	engine := newTestServer(t, nil)
	code, res := do(t, engine, http.MethodPost, "/api/v1/tenants/acme/sources/nope/ingest", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, http.StatusNotFound, res.Meta.Code)
}

func TestCreateSourceRejectsBadKind(t *testing.T) {
	engine := newTestServer(t, nil)
	code, _ := do(t, engine, http.MethodPost, "/api/v1/tenants/acme/sources", map[string]any{"kind": "video"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestUploadSource(t *testing.T) {
	engine := newTestServer(t, nil)

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	require.NoError(t, mw.WriteField("kind", "txt"))
	fw, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("Quarterly planning notes about storage capacity and replication targets."))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants/acme/sources/upload", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var res envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	var source types.KnowledgeSource
	require.NoError(t, json.Unmarshal(res.Data, &source))
	assert.Equal(t, types.SOURCE_KIND_TXT, source.Kind)
	assert.Contains(t, source.Locator, "acme")
}

func TestTenantLimit(t *testing.T) {
	engine := newTestServer(t, func(cfg *core.CoreConfig) {
		cfg.Limit.PerSecond = 0.001
		cfg.Limit.Burst = 1
	})

	code, _ := do(t, engine, http.MethodGet, "/api/v1/tenants/acme/search?query=x", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(t, engine, http.MethodGet, "/api/v1/tenants/acme/search?query=x", nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
	// buckets are per tenant
	code, _ = do(t, engine, http.MethodGet, "/api/v1/tenants/other/search?query=x", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestHealthAndMetrics(t *testing.T) {
	engine := newTestServer(t, nil)

	code, _ := do(t, engine, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
