// Package memstore is an in-process storage driver. It backs tests and
// single-node deployments that run without Postgres.
package memstore

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/pgvector/pgvector-go"
	"github.com/samber/lo"

	"github.com/quka-ai/kbcore/app/store"
	"github.com/quka-ai/kbcore/pkg/types"
)

type Provider struct {
	sources *SourceStore
	chunks  *ChunkStore
	usage   *UsageStore
}

func New() *Provider {
	return &Provider{
		sources: &SourceStore{items: cmap.New[types.KnowledgeSource]()},
		chunks:  &ChunkStore{bySource: map[sourceKey][]types.KnowledgeChunk{}},
		usage:   &UsageStore{},
	}
}

func (p *Provider) KnowledgeSourceStore() store.KnowledgeSourceStore { return p.sources }
func (p *Provider) ChunkIndex() store.ChunkIndex                     { return p.chunks }
func (p *Provider) AITokenUsageStore() store.AITokenUsageStore       { return p.usage }
func (p *Provider) Install() error                                   { return nil }

// key 带长度前缀，租户 id 中含分隔符时也不会与其他租户冲突
func key(tenantID, id string) string {
	return strconv.Itoa(len(tenantID)) + ":" + tenantID + "/" + id
}

type sourceKey struct {
	tenant string
	source string
}

var ErrDuplicateSource = errors.New("source already exists")

// SourceStore reads lock free; writers that modify an existing entry are
// serialized by mu.
type SourceStore struct {
	mu    sync.Mutex
	items cmap.ConcurrentMap[string, types.KnowledgeSource]
}

func (s *SourceStore) GetTable(...interface{}) string {
	return types.TABLE_KNOWLEDGE_SOURCE.Name()
}

func (s *SourceStore) Create(ctx context.Context, data types.KnowledgeSource) error {
	now := time.Now().Unix()
	if data.CreatedAt == 0 {
		data.CreatedAt = now
	}
	if data.UpdatedAt == 0 {
		data.UpdatedAt = now
	}
	if !s.items.SetIfAbsent(key(data.TenantID, data.ID), data) {
		return ErrDuplicateSource
	}
	return nil
}

func (s *SourceStore) Get(ctx context.Context, tenantID, id string) (*types.KnowledgeSource, error) {
	v, ok := s.items.Get(key(tenantID, id))
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &v, nil
}

func (s *SourceStore) filter(opts types.ListSourceOptions) []types.KnowledgeSource {
	list := lo.Filter(lo.Values(s.items.Items()), func(item types.KnowledgeSource, _ int) bool {
		return opts.Match(item)
	})
	slices.SortFunc(list, func(a, b types.KnowledgeSource) int {
		if c := cmp.Compare(a.CreatedAt, b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return list
}

func (s *SourceStore) List(ctx context.Context, opts types.ListSourceOptions, page, pageSize uint64) ([]types.KnowledgeSource, error) {
	list := s.filter(opts)
	if pageSize == types.NO_PAGINATION {
		return list, nil
	}
	if page == 0 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= uint64(len(list)) {
		return nil, nil
	}
	return list[start:min(start+pageSize, uint64(len(list)))], nil
}

func (s *SourceStore) Total(ctx context.Context, opts types.ListSourceOptions) (uint64, error) {
	return uint64(len(s.filter(opts))), nil
}

func (s *SourceStore) Delete(ctx context.Context, tenantID, id string) error {
	s.items.Remove(key(tenantID, id))
	return nil
}

func (s *SourceStore) update(tenantID, id string, fn func(*types.KnowledgeSource)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(tenantID, id)
	if v, ok := s.items.Get(k); ok {
		fn(&v)
		s.items.Set(k, v)
	}
	return nil
}

func (s *SourceStore) UpdateStatus(ctx context.Context, tenantID, id string, status types.SourceStatus, lastError string) error {
	return s.update(tenantID, id, func(v *types.KnowledgeSource) {
		v.Status = status
		v.LastError = lastError
		v.UpdatedAt = time.Now().Unix()
	})
}

func (s *SourceStore) FinishIngest(ctx context.Context, tenantID, id string, charCount int, ingestedAt int64) error {
	return s.update(tenantID, id, func(v *types.KnowledgeSource) {
		v.Status = types.SOURCE_STATUS_COMPLETED
		v.LastError = ""
		v.CharCount = charCount
		v.LastIngestedAt = ingestedAt
		v.UpdatedAt = time.Now().Unix()
	})
}

func (s *SourceStore) UpdateCheck(ctx context.Context, tenantID, id string, data types.SourceCheckUpdate) error {
	return s.update(tenantID, id, func(v *types.KnowledgeSource) {
		v.CheckStatus = data.CheckStatus
		v.LastCheckedAt = data.CheckedAt
		if data.ContentHash != "" {
			v.ContentHash = data.ContentHash
		}
		if data.Status != "" {
			v.Status = data.Status
			v.UpdatedAt = time.Now().Unix()
		}
	})
}

// ChunkStore keeps chunks grouped by tenant and source.
type ChunkStore struct {
	mu       sync.RWMutex
	bySource map[sourceKey][]types.KnowledgeChunk
	// FailDelete makes the next DeleteBySource call fail once.
	FailDelete error
}

func (s *ChunkStore) GetTable(...interface{}) string {
	return types.TABLE_KNOWLEDGE_CHUNK.Name()
}

func (s *ChunkStore) Replace(ctx context.Context, tenantID, sourceID string, chunks []types.KnowledgeChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := sourceKey{tenant: tenantID, source: sourceID}
	if err := s.deleteLocked(k); err != nil {
		slog.Error("failed to delete previous chunks, inserting anyway",
			slog.String("tenant_id", tenantID), slog.String("source_id", sourceID), slog.String("error", err.Error()))
	}

	now := time.Now().Unix()
	for _, c := range chunks {
		c.TenantID = tenantID
		if c.CreatedAt == 0 {
			c.CreatedAt = now
		}
		c.EmbeddingText = ""
		s.bySource[k] = append(s.bySource[k], c)
	}
	return nil
}

func (s *ChunkStore) DeleteBySource(ctx context.Context, tenantID, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(sourceKey{tenant: tenantID, source: sourceID})
}

func (s *ChunkStore) deleteLocked(k sourceKey) error {
	if err := s.FailDelete; err != nil {
		s.FailDelete = nil
		return err
	}
	delete(s.bySource, k)
	return nil
}

func (s *ChunkStore) ListBySource(ctx context.Context, tenantID, sourceID string) ([]types.KnowledgeChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.bySource[sourceKey{tenant: tenantID, source: sourceID}]), nil
}

func (s *ChunkStore) tenantChunks(tenantID string) []types.KnowledgeChunk {
	keys := lo.Filter(lo.Keys(s.bySource), func(k sourceKey, _ int) bool {
		return k.tenant == tenantID
	})
	slices.SortFunc(keys, func(a, b sourceKey) int {
		return strings.Compare(a.source, b.source)
	})

	var out []types.KnowledgeChunk
	for _, k := range keys {
		for _, c := range s.bySource[k] {
			if c.TenantID == tenantID {
				out = append(out, c)
			}
		}
	}
	return out
}

func (s *ChunkStore) VectorQuery(ctx context.Context, tenantID string, vector pgvector.Vector, minSimilarity float64, limit uint64) ([]types.ChunkHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []types.ChunkHit
	for _, c := range s.tenantChunks(tenantID) {
		sim := cosine(c.Embedding.Slice(), vector.Slice())
		if sim < minSimilarity {
			continue
		}
		hits = append(hits, types.ChunkHit{ID: c.ID, Content: c.Content, Metadata: c.Metadata, Score: sim})
	}
	return topHits(hits, limit), nil
}

// FullTextQuery matches chunks containing every query term and scores them
// with rank / (rank + 1), rank being the number of term occurrences.
func (s *ChunkStore) FullTextQuery(ctx context.Context, tenantID, query string, limit uint64) ([]types.ChunkHit, error) {
	terms := lo.Uniq(tokenize(query))
	if len(terms) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []types.ChunkHit
	for _, c := range s.tenantChunks(tenantID) {
		counts := lo.CountValues(tokenize(c.Content))
		rank := 0
		for _, t := range terms {
			if counts[t] == 0 {
				rank = 0
				break
			}
			rank += counts[t]
		}
		if rank == 0 {
			continue
		}
		hits = append(hits, types.ChunkHit{ID: c.ID, Content: c.Content, Metadata: c.Metadata, Score: float64(rank) / float64(rank+1)})
	}
	return topHits(hits, limit), nil
}

func topHits(hits []types.ChunkHit, limit uint64) []types.ChunkHit {
	slices.SortStableFunc(hits, func(a, b types.ChunkHit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if limit > 0 && uint64(len(hits)) > limit {
		hits = hits[:limit]
	}
	return hits
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

type UsageStore struct {
	mu    sync.Mutex
	items []types.AITokenUsage
}

func (s *UsageStore) Create(ctx context.Context, data types.AITokenUsage) error {
	if data.CreatedAt == 0 {
		data.CreatedAt = time.Now().Unix()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, data)
	return nil
}

func (s *UsageStore) List(ctx context.Context, tenantID string, page, pageSize uint64) ([]types.AITokenUsage, error) {
	s.mu.Lock()
	list := lo.Filter(s.items, func(item types.AITokenUsage, _ int) bool { return item.TenantID == tenantID })
	s.mu.Unlock()

	slices.Reverse(list)
	if pageSize == types.NO_PAGINATION {
		return list, nil
	}
	if page == 0 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= uint64(len(list)) {
		return nil, nil
	}
	return list[start:min(start+pageSize, uint64(len(list)))], nil
}

func (s *UsageStore) ListTenantEachModelUsage(ctx context.Context, tenantID string, st, et time.Time) ([]types.AITokenSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sums := map[string]*types.AITokenSummary{}
	var order []string
	for _, v := range s.items {
		if v.TenantID != tenantID || v.CreatedAt < st.Unix() || v.CreatedAt > et.Unix() {
			continue
		}
		sum, ok := sums[v.Model]
		if !ok {
			sum = &types.AITokenSummary{Model: v.Model}
			sums[v.Model] = sum
			order = append(order, v.Model)
		}
		sum.UsagePrompt += v.UsagePrompt
		sum.UsageOutput += v.UsageOutput
	}
	return lo.Map(order, func(m string, _ int) types.AITokenSummary { return *sums[m] }), nil
}
