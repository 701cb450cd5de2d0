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
		provider.stores.AITokenUsageStore = NewAITokenUsageStore(provider)
	})
}

type AITokenUsageStore struct {
	CommonFields
}

// NewAITokenUsageStore 创建新的 AITokenUsageStore 实例
func NewAITokenUsageStore(provider SqlProviderAchieve) *AITokenUsageStore {
	repo := &AITokenUsageStore{}
	repo.SetProvider(provider)
	repo.SetTable(types.TABLE_AI_TOKEN_USAGE)
	repo.SetAllColumns("tenant_id", "type", "sub_type", "object_id", "model", "usage_prompt", "usage_output", "created_at")
	return repo
}

// Create 新增一条 AI Token 使用记录
func (s *AITokenUsageStore) Create(ctx context.Context, data types.AITokenUsage) error {
	if data.CreatedAt == 0 {
		data.CreatedAt = time.Now().Unix()
	}
	query := sq.Insert(s.GetTable()).
		Columns(s.GetAllColumns()...).
		Values(data.TenantID, data.Type, data.SubType, data.ObjectID, data.Model, data.UsagePrompt, data.UsageOutput, data.CreatedAt)

	queryString, args, err := query.ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}

	_, err = s.GetMaster(ctx).Exec(queryString, args...)
	return err
}

// List 分页获取租户的 AI Token 使用记录，按时间倒序
func (s *AITokenUsageStore) List(ctx context.Context, tenantID string, page, pageSize uint64) ([]types.AITokenUsage, error) {
	query := sq.Select(s.GetAllColumns()...).From(s.GetTable()).Where(sq.Eq{"tenant_id": tenantID}).
		OrderBy("created_at DESC")
	if pageSize != types.NO_PAGINATION {
		if page == 0 {
			page = 1
		}
		query = query.Limit(pageSize).Offset((page - 1) * pageSize)
	}

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res []types.AITokenUsage
	if err = s.GetReplica(ctx).Select(&res, queryString, args...); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *AITokenUsageStore) ListTenantEachModelUsage(ctx context.Context, tenantID string, st, et time.Time) ([]types.AITokenSummary, error) {
	query := sq.Select("SUM(usage_prompt) AS usage_prompt", "SUM(usage_output) AS usage_output", "model").From(s.GetTable()).
		Where(sq.And{sq.Eq{"tenant_id": tenantID}, sq.GtOrEq{"created_at": st.Unix()}, sq.LtOrEq{"created_at": et.Unix()}}).
		GroupBy("model")

	queryString, args, err := query.ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}

	var res []types.AITokenSummary
	if err = s.GetReplica(ctx).Select(&res, queryString, args...); err != nil {
		return nil, err
	}
	return res, nil
}
