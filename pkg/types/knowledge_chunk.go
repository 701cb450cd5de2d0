package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/pgvector/pgvector-go"
)

type ContentType string

const (
	CONTENT_TYPE_STRUCTURED ContentType = "structured"
	CONTENT_TYPE_FLAT       ContentType = "flat"
)

// HeadingEntry 面包屑中的一级标题
type HeadingEntry struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// ChunkMeta is the typed form of the chunk metadata column. Extra carries
// source defined keys and is flattened into the same JSON object.
type ChunkMeta struct {
	OriginalSourceID string         `json:"original_source_id"`
	SourceName       string         `json:"source_name"`
	URL              string         `json:"url,omitempty"`
	Hierarchy        []HeadingEntry `json:"hierarchy,omitempty"`
	ChunkIndex       int            `json:"chunk_index"`
	CharLength       int            `json:"char_length"`
	ContentType      ContentType    `json:"content_type"`
	LastModified     string         `json:"last_modified,omitempty"`
	Language         string         `json:"language,omitempty"`
	Extra            map[string]any `json:"-"`
}

var knownMetaKeys = map[string]struct{}{
	"original_source_id": {},
	"source_name":        {},
	"url":                {},
	"hierarchy":          {},
	"chunk_index":        {},
	"char_length":        {},
	"content_type":       {},
	"last_modified":      {},
	"language":           {},
}

type chunkMetaAlias ChunkMeta

func (m ChunkMeta) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(chunkMetaAlias(m))
	if err != nil || len(m.Extra) == 0 {
		return raw, err
	}

	merged := make(map[string]any, len(m.Extra)+len(knownMetaKeys))
	for k, v := range m.Extra {
		if _, known := knownMetaKeys[k]; known {
			continue
		}
		merged[k] = v
	}
	if err = json.Unmarshal(raw, &merged); err != nil {
		return nil, err
	}
	return json.Marshal(merged)
}

func (m *ChunkMeta) UnmarshalJSON(data []byte) error {
	var alias chunkMetaAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for k, v := range all {
		if _, known := knownMetaKeys[k]; known {
			continue
		}
		if alias.Extra == nil {
			alias.Extra = make(map[string]any)
		}
		alias.Extra[k] = v
	}

	*m = ChunkMeta(alias)
	return nil
}

// Value implements the driver.Valuer interface. lib/pq encodes []byte as
// bytea, so the JSON is handed over as a string.
func (m ChunkMeta) Value() (driver.Value, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements the sql.Scanner interface.
func (m *ChunkMeta) Scan(src interface{}) error {
	switch src := src.(type) {
	case []byte:
		return json.Unmarshal(src, m)
	case string:
		return json.Unmarshal([]byte(src), m)
	case nil:
		*m = ChunkMeta{}
		return nil
	}
	return fmt.Errorf("pq: cannot convert %T to ChunkMeta", src)
}

// KnowledgeChunk 表的结构体
type KnowledgeChunk struct {
	ID        string          `json:"id" db:"id"`               // 主键
	TenantID  string          `json:"tenant_id" db:"tenant_id"` // 租户ID
	Content   string          `json:"content" db:"content"`     // 原文片段，用于展示、全文检索和重排
	Embedding pgvector.Vector `json:"-" db:"embedding"`         // 向量
	Metadata  ChunkMeta       `json:"metadata" db:"metadata"`   // 结构化元数据
	CreatedAt int64           `json:"created_at" db:"created_at"`

	// 归一化后的文本，只在入库流程中用于向量化
	EmbeddingText string `json:"-" db:"-"`
}

// ChunkHit 单路检索结果，Score 为余弦相似度或全文检索得分
type ChunkHit struct {
	ID       string    `json:"id" db:"id"`
	Content  string    `json:"content" db:"content"`
	Metadata ChunkMeta `json:"metadata" db:"metadata"`
	Score    float64   `json:"score" db:"score"`
}
