package store

import (
	"context"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/quka-ai/kbcore/pkg/sqlstore"
	"github.com/quka-ai/kbcore/pkg/types"
)

// Provider is implemented by every storage driver.
type Provider interface {
	KnowledgeSourceStore() KnowledgeSourceStore
	ChunkIndex() ChunkIndex
	AITokenUsageStore() AITokenUsageStore
	// Install 初始化数据表，内存实现为空操作
	Install() error
}

// KnowledgeSourceStore 知识来源
type KnowledgeSourceStore interface {
	sqlstore.SqlCommons
	Create(ctx context.Context, data types.KnowledgeSource) error
	Get(ctx context.Context, tenantID, id string) (*types.KnowledgeSource, error)
	List(ctx context.Context, opts types.ListSourceOptions, page, pageSize uint64) ([]types.KnowledgeSource, error)
	Total(ctx context.Context, opts types.ListSourceOptions) (uint64, error)
	Delete(ctx context.Context, tenantID, id string) error
	// UpdateStatus 更新生命周期状态，lastError 为空时清空错误
	UpdateStatus(ctx context.Context, tenantID, id string, status types.SourceStatus, lastError string) error
	// FinishIngest 入库成功后写回状态与统计
	FinishIngest(ctx context.Context, tenantID, id string, charCount int, ingestedAt int64) error
	UpdateCheck(ctx context.Context, tenantID, id string, data types.SourceCheckUpdate) error
}

// ChunkIndex stores chunks and serves both retrieval signals. Chunks are
// never updated in place: a source's chunk set is only ever replaced or
// deleted as a whole.
type ChunkIndex interface {
	sqlstore.SqlCommons
	// Replace deletes every chunk of sourceID and inserts chunks. A failed
	// delete is logged and does not stop the insert.
	Replace(ctx context.Context, tenantID, sourceID string, chunks []types.KnowledgeChunk) error
	DeleteBySource(ctx context.Context, tenantID, sourceID string) error
	ListBySource(ctx context.Context, tenantID, sourceID string) ([]types.KnowledgeChunk, error)
	// VectorQuery returns chunks ordered by cosine similarity, keeping only
	// those with similarity >= minSimilarity.
	VectorQuery(ctx context.Context, tenantID string, vector pgvector.Vector, minSimilarity float64, limit uint64) ([]types.ChunkHit, error)
	// FullTextQuery returns chunks ordered by lexical rank, scores in [0, 1).
	FullTextQuery(ctx context.Context, tenantID, query string, limit uint64) ([]types.ChunkHit, error)
}

type AITokenUsageStore interface {
	Create(ctx context.Context, data types.AITokenUsage) error
	List(ctx context.Context, tenantID string, page, pageSize uint64) ([]types.AITokenUsage, error)
	ListTenantEachModelUsage(ctx context.Context, tenantID string, st, et time.Time) ([]types.AITokenSummary, error)
}
