package types

import (
	"strconv"

	sq "github.com/Masterminds/squirrel"
	"github.com/samber/lo"
)

type SourceKind string

const (
	SOURCE_KIND_URL     SourceKind = "url"
	SOURCE_KIND_PDF     SourceKind = "pdf"
	SOURCE_KIND_TXT     SourceKind = "txt"
	SOURCE_KIND_ARTICLE SourceKind = "article"
)

func (k SourceKind) Valid() bool {
	switch k {
	case SOURCE_KIND_URL, SOURCE_KIND_PDF, SOURCE_KIND_TXT, SOURCE_KIND_ARTICLE:
		return true
	}
	return false
}

type SourceStatus string

const (
	SOURCE_STATUS_UPLOADED         SourceStatus = "uploaded"
	SOURCE_STATUS_INGESTING        SourceStatus = "ingesting"
	SOURCE_STATUS_COMPLETED        SourceStatus = "completed"
	SOURCE_STATUS_FAILED_INGEST    SourceStatus = "failed_ingest"
	SOURCE_STATUS_PENDING_REINGEST SourceStatus = "pending_reingest"
)

// 监控结果，error_http_<code> 形式的状态由 CheckStatusHTTP 生成
const (
	CHECK_STATUS_OK               = "OK"
	CHECK_STATUS_CONTENT_CHANGED  = "content_changed"
	CHECK_STATUS_ERROR_TIMEOUT    = "error_timeout"
	CHECK_STATUS_ERROR_CONNECTION = "error_connection"
)

func CheckStatusHTTP(code int) string {
	return "error_http_" + strconv.Itoa(code)
}

// KnowledgeSource 知识来源，chunk 通过 metadata.original_source_id 关联
type KnowledgeSource struct {
	ID             string       `json:"id" db:"id"`                             // 主键
	TenantID       string       `json:"tenant_id" db:"tenant_id"`               // 所属租户
	Kind           SourceKind   `json:"kind" db:"kind"`                         // url | pdf | txt | article
	Name           string       `json:"name" db:"name"`                         // 展示名称
	URL            string       `json:"url" db:"url"`                           // url 类型的地址
	Locator        string       `json:"locator" db:"locator"`                   // 文件在对象存储中的 key
	Content        string       `json:"content" db:"content"`                   // article 类型的原文
	Status         SourceStatus `json:"status" db:"status"`                     // 生命周期状态
	ContentHash    string       `json:"content_hash" db:"content_hash"`         // 最近一次监控记录的内容摘要
	CharCount      int          `json:"char_count" db:"char_count"`             // 最近一次入库的字符数
	CheckStatus    string       `json:"check_status" db:"check_status"`         // 最近一次监控结果
	LastError      string       `json:"last_error" db:"last_error"`             // 最近一次错误
	LastIngestedAt int64        `json:"last_ingested_at" db:"last_ingested_at"` // 最近入库时间
	LastCheckedAt  int64        `json:"last_checked_at" db:"last_checked_at"`   // 最近监控时间
	CreatedAt      int64        `json:"created_at" db:"created_at"`
	UpdatedAt      int64        `json:"updated_at" db:"updated_at"`
}

type ListSourceOptions struct {
	TenantID      string
	Kind          SourceKind
	Status        SourceStatus
	CheckedBefore int64
	IDs           []string
}

func (opts ListSourceOptions) Apply(query *sq.SelectBuilder) {
	if opts.TenantID != "" {
		*query = query.Where(sq.Eq{"tenant_id": opts.TenantID})
	}
	if opts.Kind != "" {
		*query = query.Where(sq.Eq{"kind": opts.Kind})
	}
	if opts.Status != "" {
		*query = query.Where(sq.Eq{"status": opts.Status})
	}
	if opts.CheckedBefore > 0 {
		*query = query.Where(sq.Lt{"last_checked_at": opts.CheckedBefore})
	}
	if len(opts.IDs) > 0 {
		*query = query.Where(sq.Eq{"id": opts.IDs})
	}
}

// Match mirrors Apply for in-memory stores.
func (opts ListSourceOptions) Match(s KnowledgeSource) bool {
	if opts.TenantID != "" && s.TenantID != opts.TenantID {
		return false
	}
	if opts.Kind != "" && s.Kind != opts.Kind {
		return false
	}
	if opts.Status != "" && s.Status != opts.Status {
		return false
	}
	if opts.CheckedBefore > 0 && s.LastCheckedAt >= opts.CheckedBefore {
		return false
	}
	if len(opts.IDs) > 0 && !lo.Contains(opts.IDs, s.ID) {
		return false
	}
	return true
}

// SourceCheckUpdate 监控结果写回，Status/ContentHash 为空时不修改
type SourceCheckUpdate struct {
	CheckStatus string
	CheckedAt   int64
	ContentHash string
	Status      SourceStatus
}
