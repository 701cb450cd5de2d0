package types

// IngestResult is returned by the ingestion trigger. Errors lists every
// dropped batch or chunk so that a retry pass can target the gaps.
type IngestResult struct {
	Success        bool     `json:"success"`
	ChunksStored   int      `json:"chunks_stored"`
	TokensUsed     int      `json:"tokens_used"`
	CharacterCount int      `json:"character_count"`
	Errors         []string `json:"errors"`
	Error          string   `json:"error,omitempty"`
}

// CheckResult 一次监控检查的结果
type CheckResult struct {
	SourceID string `json:"source_id"`
	Status   string `json:"status"`
	Changed  bool   `json:"changed"`
	Hash     string `json:"hash,omitempty"`
}
