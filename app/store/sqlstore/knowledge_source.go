package sqlstore

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/quka-ai/kbcore/pkg/register"
	"github.com/quka-ai/kbcore/pkg/types"
)

func init() {
	register.RegisterFunc[*Provider](RegisterKey{}, func(provider *Provider) {
		provider.stores.KnowledgeSourceStore = NewKnowledgeSourceStore(provider)
	})
}

type KnowledgeSourceStore struct {
	CommonFields
}

func NewKnowledgeSourceStore(provider SqlProviderAchieve) *KnowledgeSourceStore {
	repo := &KnowledgeSourceStore{}
	repo.SetProvider(provider)
	repo.SetTable(types.TABLE_KNOWLEDGE_SOURCE)
	repo.SetAllColumns("id", "tenant_id", "kind", "name", "url", "locator", "content", "status", "content_hash",
		"char_count", "check_status", "last_error", "last_ingested_at", "last_checked_at", "created_at", "updated_at")
	return repo
}

func (s *KnowledgeSourceStore) Create(ctx context.Context, data types.KnowledgeSource) error {
	now := time.Now().Unix()
	if data.CreatedAt == 0 {
		data.CreatedAt = now
	}
	if data.UpdatedAt == 0 {
		data.UpdatedAt = now
	}
	query := sq.Insert(s.GetTable()).
		Columns(s.GetAllColumns()...).
		Values(data.ID, data.TenantID, data.Kind, data.Name, data.URL, data.Locator, data.Content, data.Status, data.ContentHash,
			data.CharCount, data.CheckStatus, data.LastError, data.LastIngestedAt, data.LastCheckedAt, data.CreatedAt, data.UpdatedAt)

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

func (s *KnowledgeSourceStore) Get(ctx context.Context, tenantID, id string) (*types.KnowledgeSource, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).Where(sq.Eq{"tenant_id": tenantID, "id": id})

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res types.KnowledgeSource
	if err = s.GetReplica(ctx).Get(&res, queryString, args...); err != nil {
		return nil, err
	}
	return &res, nil
}

// List 分页获取来源列表，pageSize 为 NO_PAGINATION 时返回全部
func (s *KnowledgeSourceStore) List(ctx context.Context, opts types.ListSourceOptions, page, pageSize uint64) ([]types.KnowledgeSource, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).OrderBy("created_at ASC", "id ASC")
	if pageSize != types.NO_PAGINATION {
		if page == 0 {
			page = 1
		}
		query = query.Limit(pageSize).Offset((page - 1) * pageSize)
	}
	opts.Apply(&query)

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res []types.KnowledgeSource
	if err = s.GetReplica(ctx).Select(&res, queryString, args...); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *KnowledgeSourceStore) Total(ctx context.Context, opts types.ListSourceOptions) (uint64, error) {
	query := sq.Select("COUNT(*)").From(s.GetTable())
	opts.Apply(&query)

	queryString, args, err := query.ToSql()
	if err != nil {
		return 0, ErrorSqlBuild(err)
	}

	var res uint64
	if err = s.GetReplica(ctx).Get(&res, queryString, args...); err != nil {
		return 0, err
	}
	return res, nil
}

func (s *KnowledgeSourceStore) Delete(ctx context.Context, tenantID, id string) error {
	query := sq.Delete(s.GetTable()).Where(sq.Eq{"tenant_id": tenantID, "id": id})

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

func (s *KnowledgeSourceStore) UpdateStatus(ctx context.Context, tenantID, id string, status types.SourceStatus, lastError string) error {
	query := sq.Update(s.GetTable()).
		Set("status", status).
		Set("last_error", lastError).
		Set("updated_at", time.Now().Unix()).
		Where(sq.Eq{"tenant_id": tenantID, "id": id})

	return s.exec(ctx, query)
}

func (s *KnowledgeSourceStore) FinishIngest(ctx context.Context, tenantID, id string, charCount int, ingestedAt int64) error {
	query := sq.Update(s.GetTable()).
		Set("status", types.SOURCE_STATUS_COMPLETED).
		Set("last_error", "").
		Set("char_count", charCount).
		Set("last_ingested_at", ingestedAt).
		Set("updated_at", time.Now().Unix()).
		Where(sq.Eq{"tenant_id": tenantID, "id": id})

	return s.exec(ctx, query)
}

func (s *KnowledgeSourceStore) UpdateCheck(ctx context.Context, tenantID, id string, data types.SourceCheckUpdate) error {
	query := sq.Update(s.GetTable()).
		Set("check_status", data.CheckStatus).
		Set("last_checked_at", data.CheckedAt).
		Where(sq.Eq{"tenant_id": tenantID, "id": id})
	if data.ContentHash != "" {
		query = query.Set("content_hash", data.ContentHash)
	}
	if data.Status != "" {
		query = query.Set("status", data.Status).Set("updated_at", time.Now().Unix())
	}

	return s.exec(ctx, query)
}

func (s *KnowledgeSourceStore) exec(ctx context.Context, query sq.UpdateBuilder) error {
	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}
