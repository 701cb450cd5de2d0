package types

type AITokenUsage struct {
	TenantID    string `json:"tenant_id" db:"tenant_id"`       // 租户 ID
	Type        string `json:"type" db:"type"`                 // 主类别
	SubType     string `json:"sub_type" db:"sub_type"`         // 子类别
	ObjectID    string `json:"object_id" db:"object_id"`       // 对象 ID，入库时为 source id
	Model       string `json:"model" db:"model"`               // 模型名称
	UsagePrompt int    `json:"usage_prompt" db:"usage_prompt"` // 使用的提示词令牌数
	UsageOutput int    `json:"usage_output" db:"usage_output"` // 使用的输出令牌数
	CreatedAt   int64  `json:"created_at" db:"created_at"`     // 记录创建时间
}

type AITokenSummary struct {
	Model       string `json:"model" db:"model"`
	UsagePrompt int    `json:"usage_prompt" db:"usage_prompt"`
	UsageOutput int    `json:"usage_output" db:"usage_output"`
}

const (
	USAGE_TYPE_KNOWLEDGE = "knowledge"
	USAGE_TYPE_SEARCH    = "search"

	USAGE_SUB_TYPE_EMBEDDING = "embedding"
	USAGE_SUB_TYPE_QUERY     = "query"
	USAGE_SUB_TYPE_RERANK    = "rerank"
)
