package v1

import (
	"context"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/quka-ai/kbcore/app/core"
	"github.com/quka-ai/kbcore/pkg/ai/batcher"
	"github.com/quka-ai/kbcore/pkg/chunker"
	"github.com/quka-ai/kbcore/pkg/errors"
	"github.com/quka-ai/kbcore/pkg/types"
	"github.com/quka-ai/kbcore/pkg/utils"
)

type IngestLogic struct {
	ctx  context.Context
	core *core.Core
}

func NewIngestLogic(ctx context.Context, core *core.Core) *IngestLogic {
	return &IngestLogic{
		ctx:  ctx,
		core: core,
	}
}

// Ingest reads, chunks, embeds and stores one source, replacing its previous
// chunk set. The result is always filled in. err is set whenever Success is
// false and carries the HTTP code for the trigger boundary.
func (l *IngestLogic) Ingest(tenantID, sourceID string) (types.IngestResult, error) {
	unlock, ok, err := l.core.Locker().TryLock(l.ctx, core.IngestLockKey(tenantID, sourceID), l.core.Cfg().Process.IngestLockTTL)
	if err != nil {
		return failed(err), errors.New("IngestLogic.Ingest.TryLock", ERROR_INTERNAL, err)
	}
	if !ok {
		return failed(ErrSourceBusy), errors.New("IngestLogic.Ingest.TryLock.busy", ERROR_BUSY, ErrSourceBusy).Code(http.StatusConflict)
	}
	defer unlock()

	source, err := NewSourceLogic(l.ctx, l.core).Get(tenantID, sourceID)
	if err != nil {
		return failed(err), errors.Trace("IngestLogic.Ingest", err)
	}

	observe := l.core.Metrics().IngestTimer(string(source.Kind))
	res, err := l.run(source)
	if err != nil {
		observe("failed")
		return res, err
	}
	observe("success")
	return res, nil
}

func failed(err error) types.IngestResult {
	return types.IngestResult{
		Success: false,
		Errors:  []string{},
		Error:   err.Error(),
	}
}

func (l *IngestLogic) run(source *types.KnowledgeSource) (types.IngestResult, error) {
	var (
		sources = l.core.Store().KnowledgeSourceStore()
		logger  = slog.With(slog.String("tenant_id", source.TenantID), slog.String("source_id", source.ID))
		result  = types.IngestResult{Errors: []string{}}
	)

	fail := func(trace string, err error) (types.IngestResult, error) {
		logger.Error("ingestion failed", slog.String("stage", trace), slog.String("error", err.Error()))
		if uerr := sources.UpdateStatus(l.ctx, source.TenantID, source.ID, types.SOURCE_STATUS_FAILED_INGEST, err.Error()); uerr != nil {
			logger.Error("failed to mark source as failed", slog.String("error", uerr.Error()))
		}
		result.Success = false
		result.Error = err.Error()
		return result, errors.New("IngestLogic.Ingest."+trace, ERROR_INTERNAL, err).Code(http.StatusUnprocessableEntity)
	}

	if err := sources.UpdateStatus(l.ctx, source.TenantID, source.ID, types.SOURCE_STATUS_INGESTING, ""); err != nil {
		return result, errors.New("IngestLogic.Ingest.UpdateStatus", ERROR_INTERNAL, err)
	}

	doc, err := l.core.Reader().Read(l.ctx, *source)
	if err != nil {
		return fail("Reader.Read", err)
	}
	result.CharacterCount = utf8.RuneCountInString(doc.Text)

	pieces, err := l.chunk(source, doc.Text, doc.HTML, doc.LastModified)
	if err != nil {
		return fail("Chunker", err)
	}
	if len(pieces) == 0 {
		return fail("Chunker", ErrNoChunks)
	}

	now := time.Now().Unix()
	chunks := lo.Map(pieces, func(item chunker.Chunk, _ int) types.KnowledgeChunk {
		return types.KnowledgeChunk{
			ID:            utils.GenUniqIDStr(),
			TenantID:      source.TenantID,
			Content:       item.Content,
			EmbeddingText: item.Text,
			Metadata:      item.Meta,
			CreatedAt:     now,
		}
	})

	embedded, err := l.core.Batcher().Embed(l.ctx, chunks, slog.String("tenant_id", source.TenantID), slog.String("source_id", source.ID))
	result.TokensUsed = embedded.Tokens
	result.Errors = append(result.Errors, lo.Map(embedded.Failures, func(item batcher.BatchFailure, _ int) string {
		return item.String()
	})...)
	recordUsage(l.ctx, l.core, usageRecord{
		tenantID: source.TenantID,
		typ:      types.USAGE_TYPE_KNOWLEDGE,
		subType:  types.USAGE_SUB_TYPE_EMBEDDING,
		objectID: source.ID,
		model:    lo.CoalesceOrEmpty(embedded.Model, l.core.Srv().AI().EmbeddingModel()),
		prompt:   embedded.Tokens,
	})
	if err != nil {
		return fail("Batcher.Embed", err)
	}
	if len(embedded.Chunks) == 0 {
		return fail("Batcher.Embed", ErrNoEmbeddings)
	}

	if err = l.core.Store().ChunkIndex().Replace(l.ctx, source.TenantID, source.ID, embedded.Chunks); err != nil {
		return fail("ChunkIndex.Replace", err)
	}
	l.core.QueryCache().Invalidate(l.ctx, source.TenantID)
	l.core.Metrics().IngestChunksAdd(string(source.Kind), len(embedded.Chunks))

	if err = sources.FinishIngest(l.ctx, source.TenantID, source.ID, result.CharacterCount, time.Now().Unix()); err != nil {
		logger.Error("failed to finish ingestion", slog.String("error", err.Error()))
	}

	result.Success = true
	result.ChunksStored = len(embedded.Chunks)
	logger.Info("source ingested",
		slog.Int("chunks", result.ChunksStored),
		slog.Int("dropped_batches", len(embedded.Failures)),
		slog.Int("tokens", result.TokensUsed))
	return result, nil
}

func (l *IngestLogic) chunk(source *types.KnowledgeSource, text string, isHTML bool, lastModified string) ([]chunker.Chunk, error) {
	src := chunker.Source{
		ID:           source.ID,
		Name:         source.Name,
		URL:          source.URL,
		LastModified: lastModified,
	}
	c := l.core.Chunker()
	if isHTML {
		return c.ChunkHTML(src, text)
	}
	return c.ChunkText(src, text), nil
}
