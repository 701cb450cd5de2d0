package sqlstore

import (
	"context"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pgvector/pgvector-go"
	"github.com/samber/lo"

	"github.com/quka-ai/kbcore/pkg/register"
	"github.com/quka-ai/kbcore/pkg/types"
)

func init() {
	register.RegisterFunc[*Provider](RegisterKey{}, func(provider *Provider) {
		provider.stores.ChunkIndex = NewKnowledgeChunkStore(provider)
	})
}

const (
	sourceIDColumn = "metadata->>'original_source_id'"
	// 全文检索词典，与 content_tsv 生成列保持一致
	tsConfig = "simple"
	// 单条 INSERT 的最大行数
	insertBatchSize = 100
)

type KnowledgeChunkStore struct {
	CommonFields
}

func NewKnowledgeChunkStore(provider SqlProviderAchieve) *KnowledgeChunkStore {
	repo := &KnowledgeChunkStore{}
	repo.SetProvider(provider)
	repo.SetTable(types.TABLE_KNOWLEDGE_CHUNK)
	repo.SetAllColumns("id", "tenant_id", "content", "embedding", "metadata", "created_at")
	return repo
}

func (s *KnowledgeChunkStore) Replace(ctx context.Context, tenantID, sourceID string, chunks []types.KnowledgeChunk) error {
	if err := s.DeleteBySource(ctx, tenantID, sourceID); err != nil {
		slog.Error("failed to delete previous chunks, inserting anyway",
			slog.String("tenant_id", tenantID), slog.String("source_id", sourceID), slog.String("error", err.Error()))
	}

	now := time.Now().Unix()
	for _, batch := range lo.Chunk(chunks, insertBatchSize) {
		query := sq.Insert(s.GetTable()).Columns(s.GetAllColumns()...)
		for _, data := range batch {
			if data.CreatedAt == 0 {
				data.CreatedAt = now
			}
			query = query.Values(data.ID, tenantID, data.Content, data.Embedding, data.Metadata, data.CreatedAt)
		}

		queryString, args, err := query.ToSql()
		if err != nil {
			return ErrorSqlBuild(err)
		}
		if _, err = s.GetMaster(ctx).Exec(queryString, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *KnowledgeChunkStore) DeleteBySource(ctx context.Context, tenantID, sourceID string) error {
	query := sq.Delete(s.GetTable()).Where(sq.Eq{"tenant_id": tenantID, sourceIDColumn: sourceID})

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

func (s *KnowledgeChunkStore) ListBySource(ctx context.Context, tenantID, sourceID string) ([]types.KnowledgeChunk, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).
		Where(sq.Eq{"tenant_id": tenantID, sourceIDColumn: sourceID}).
		OrderBy("(metadata->>'chunk_index')::int ASC")

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res []types.KnowledgeChunk
	if err = s.GetReplica(ctx).Select(&res, queryString, args...); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *KnowledgeChunkStore) VectorQuery(ctx context.Context, tenantID string, vector pgvector.Vector, minSimilarity float64, limit uint64) ([]types.ChunkHit, error) {
	// <=> 为余弦距离，相似度 = 1 - 距离
	query := sq.Select("id", "content", "metadata").
		Column(sq.Expr("1 - (embedding <=> ?) AS score", vector)).
		From(s.GetTable()).
		Where(sq.Eq{"tenant_id": tenantID}).
		Where(sq.Expr("1 - (embedding <=> ?) >= ?", vector, minSimilarity)).
		OrderByClause("embedding <=> ?", vector).
		Limit(limit)

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res []types.ChunkHit
	if err = s.GetReplica(ctx).Select(&res, queryString, args...); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *KnowledgeChunkStore) FullTextQuery(ctx context.Context, tenantID, text string, limit uint64) ([]types.ChunkHit, error) {
	// normalization 32: rank / (rank + 1)
	query := sq.Select("id", "content", "metadata").
		Column(sq.Expr("ts_rank_cd(content_tsv, plainto_tsquery('"+tsConfig+"', ?), 32) AS score", text)).
		From(s.GetTable()).
		Where(sq.Eq{"tenant_id": tenantID}).
		Where(sq.Expr("content_tsv @@ plainto_tsquery('"+tsConfig+"', ?)", text)).
		OrderBy("score DESC").
		Limit(limit)

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res []types.ChunkHit
	if err = s.GetReplica(ctx).Select(&res, queryString, args...); err != nil {
		return nil, err
	}
	return res, nil
}
