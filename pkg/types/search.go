package types

type SearchScores struct {
	Vector  float64  `json:"vector"`
	Lexical float64  `json:"lexical"`
	Hybrid  float64  `json:"hybrid"`
	Rerank  *float64 `json:"rerank,omitempty"`
}

// SearchCandidate 单次查询产生的候选片段，不落库
type SearchCandidate struct {
	ID       string       `json:"id"`
	Content  string       `json:"content"`
	Metadata ChunkMeta    `json:"metadata"`
	Scores   SearchScores `json:"scores"`
}
