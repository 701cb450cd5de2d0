package types

import "fmt"

type TableName string

func (s TableName) Name() string {
	return fmt.Sprintf("%s%s", TABLE_PREFIX, s)
}

const TABLE_PREFIX = "kb_"

const (
	TABLE_KNOWLEDGE_SOURCE = TableName("knowledge_source")
	TABLE_KNOWLEDGE_CHUNK  = TableName("knowledge_chunk")
	TABLE_AI_TOKEN_USAGE   = TableName("ai_token_usage")
)

const NO_PAGINATION = 0
