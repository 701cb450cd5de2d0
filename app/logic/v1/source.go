package v1

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/quka-ai/kbcore/app/core"
	"github.com/quka-ai/kbcore/pkg/errors"
	"github.com/quka-ai/kbcore/pkg/reader"
	"github.com/quka-ai/kbcore/pkg/types"
	"github.com/quka-ai/kbcore/pkg/utils"
)

type SourceLogic struct {
	ctx  context.Context
	core *core.Core
}

func NewSourceLogic(ctx context.Context, core *core.Core) *SourceLogic {
	return &SourceLogic{
		ctx:  ctx,
		core: core,
	}
}

type CreateSourceRequest struct {
	Kind    types.SourceKind `json:"kind" binding:"required"`
	Name    string           `json:"name"`
	URL     string           `json:"url"`
	Locator string           `json:"locator"`
	Content string           `json:"content"`
}

func (r CreateSourceRequest) validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: %q", reader.ErrUnsupportedSourceKind, r.Kind)
	}
	switch r.Kind {
	case types.SOURCE_KIND_URL:
		u, err := url.Parse(strings.TrimSpace(r.URL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("url source requires an absolute http(s) url")
		}
	case types.SOURCE_KIND_PDF, types.SOURCE_KIND_TXT:
		if strings.TrimSpace(r.Locator) == "" {
			return fmt.Errorf("%s source requires a storage locator", r.Kind)
		}
	case types.SOURCE_KIND_ARTICLE:
		if strings.TrimSpace(r.Content) == "" {
			return fmt.Errorf("article source requires content")
		}
	}
	return nil
}

func (r CreateSourceRequest) displayName() string {
	if name := strings.TrimSpace(r.Name); name != "" {
		return name
	}
	switch r.Kind {
	case types.SOURCE_KIND_URL:
		return strings.TrimSpace(r.URL)
	case types.SOURCE_KIND_PDF, types.SOURCE_KIND_TXT:
		return path.Base(r.Locator)
	}
	return "untitled"
}

func (l *SourceLogic) Create(tenantID string, req CreateSourceRequest) (*types.KnowledgeSource, error) {
	if tenantID == "" {
		return nil, errors.New("SourceLogic.Create.EmptyTenant", ERROR_INVALIDARGUMENT, nil).Code(http.StatusBadRequest)
	}
	if err := req.validate(); err != nil {
		return nil, errors.New("SourceLogic.Create.validate", err.Error(), err).Code(http.StatusBadRequest)
	}

	now := time.Now().Unix()
	source := types.KnowledgeSource{
		ID:        utils.GenUniqIDStr(),
		TenantID:  tenantID,
		Kind:      req.Kind,
		Name:      req.displayName(),
		URL:       strings.TrimSpace(req.URL),
		Locator:   strings.TrimSpace(req.Locator),
		Content:   req.Content,
		Status:    types.SOURCE_STATUS_UPLOADED,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := l.core.Store().KnowledgeSourceStore().Create(l.ctx, source); err != nil {
		return nil, errors.New("SourceLogic.Create.KnowledgeSourceStore.Create", ERROR_INTERNAL, err)
	}
	return &source, nil
}

// Upload stores a pdf or txt file and registers it as a source.
func (l *SourceLogic) Upload(tenantID string, kind types.SourceKind, name string, content []byte) (*types.KnowledgeSource, error) {
	if kind != types.SOURCE_KIND_PDF && kind != types.SOURCE_KIND_TXT {
		return nil, errors.New("SourceLogic.Upload.Kind", ERROR_INVALIDARGUMENT, fmt.Errorf("%w: %q", reader.ErrUnsupportedSourceKind, kind)).Code(http.StatusBadRequest)
	}
	if len(content) == 0 {
		return nil, errors.New("SourceLogic.Upload.EmptyFile", ERROR_INVALIDARGUMENT, reader.ErrEmptyContent).Code(http.StatusBadRequest)
	}
	files := l.core.FileStorage()
	if files == nil {
		return nil, errors.New("SourceLogic.Upload.FileStorage", ERROR_UNAVAILABLE, reader.ErrNoObjectStorage).Code(http.StatusServiceUnavailable)
	}

	key := ObjectKey(tenantID, utils.GenRandomID(), name)
	if err := files.SaveFile(l.ctx, key, content); err != nil {
		return nil, errors.New("SourceLogic.Upload.SaveFile", ERROR_INTERNAL, err)
	}

	return l.Create(tenantID, CreateSourceRequest{
		Kind:    kind,
		Name:    name,
		Locator: key,
	})
}

func ObjectKey(tenantID, fileID, name string) string {
	return path.Join("sources", tenantID, fileID, path.Base("/"+name))
}

func (l *SourceLogic) Get(tenantID, id string) (*types.KnowledgeSource, error) {
	source, err := l.core.Store().KnowledgeSourceStore().Get(l.ctx, tenantID, id)
	if err != nil && err != sql.ErrNoRows {
		return nil, errors.New("SourceLogic.Get.KnowledgeSourceStore.Get", ERROR_INTERNAL, err)
	}
	if source == nil {
		return nil, errors.New("SourceLogic.Get.KnowledgeSourceStore.Get.nil", ERROR_NOT_FOUND, ErrSourceNotFound).Code(http.StatusNotFound)
	}
	return source, nil
}

func (l *SourceLogic) List(opts types.ListSourceOptions, page, pageSize uint64) ([]types.KnowledgeSource, uint64, error) {
	list, err := l.core.Store().KnowledgeSourceStore().List(l.ctx, opts, page, pageSize)
	if err != nil && err != sql.ErrNoRows {
		return nil, 0, errors.New("SourceLogic.List.KnowledgeSourceStore.List", ERROR_INTERNAL, err)
	}

	total, err := l.core.Store().KnowledgeSourceStore().Total(l.ctx, opts)
	if err != nil {
		return nil, 0, errors.New("SourceLogic.List.KnowledgeSourceStore.Total", ERROR_INTERNAL, err)
	}
	return list, total, nil
}

// Delete removes the chunks of a source before the source itself so that no
// chunk is left pointing at a missing source. Cached search results of the
// tenant are dropped afterwards.
func (l *SourceLogic) Delete(tenantID, id string) error {
	source, err := l.Get(tenantID, id)
	if err != nil {
		return errors.Trace("SourceLogic.Delete", err)
	}

	if err = l.core.Store().ChunkIndex().DeleteBySource(l.ctx, tenantID, id); err != nil {
		return errors.New("SourceLogic.Delete.ChunkIndex.DeleteBySource", ERROR_INTERNAL, err)
	}

	if err = l.core.Store().KnowledgeSourceStore().Delete(l.ctx, tenantID, id); err != nil {
		return errors.New("SourceLogic.Delete.KnowledgeSourceStore.Delete", ERROR_INTERNAL, err)
	}
	l.core.QueryCache().Invalidate(l.ctx, tenantID)

	if source.Locator != "" && l.core.FileStorage() != nil {
		if err = l.core.FileStorage().DeleteFile(l.ctx, source.Locator); err != nil {
			slog.Warn("failed to delete source file",
				slog.String("tenant_id", tenantID),
				slog.String("source_id", id),
				slog.String("locator", source.Locator),
				slog.String("error", err.Error()))
		}
	}
	return nil
}
