package v1

import (
	stderrors "errors"
)

// 对外返回的错误信息
const (
	ERROR_INTERNAL        = "internal error"
	ERROR_NOT_FOUND       = "source not found"
	ERROR_INVALIDARGUMENT = "invalid argument"
	ERROR_BUSY            = "source is being ingested"
	ERROR_UNAVAILABLE     = "dependency unavailable"
)

var (
	ErrSourceNotFound = stderrors.New("knowledge source not found")
	ErrSourceBusy     = stderrors.New("knowledge source is already being ingested")
	ErrNoChunks       = stderrors.New("source produced no valid chunks")
	ErrNoEmbeddings   = stderrors.New("no chunk received an embedding")
)
