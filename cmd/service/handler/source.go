package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	v1 "github.com/quka-ai/kbcore/app/logic/v1"
	"github.com/quka-ai/kbcore/app/response"
	"github.com/quka-ai/kbcore/pkg/errors"
	"github.com/quka-ai/kbcore/pkg/types"
	"github.com/quka-ai/kbcore/pkg/utils"
)

const maxUploadSize = 32 << 20

func (s *HttpSrv) CreateSource(c *gin.Context) {
	var req v1.CreateSourceRequest
	if err := utils.BindArgsWithGin(c, &req); err != nil {
		response.APIError(c, err)
		return
	}

	source, err := v1.NewSourceLogic(c, s.Core).Create(tenantID(c), req)
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, source)
}

// UploadSource accepts a multipart form with a "file" field and a "kind"
// field (pdf or txt).
func (s *HttpSrv) UploadSource(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.APIError(c, errors.New("UploadSource.FormFile", v1.ERROR_INVALIDARGUMENT, err).Code(http.StatusBadRequest))
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, maxUploadSize+1))
	if err != nil {
		response.APIError(c, errors.New("UploadSource.ReadAll", v1.ERROR_INTERNAL, err))
		return
	}
	if len(raw) > maxUploadSize {
		response.APIError(c, errors.New("UploadSource.TooLarge", "file too large", nil).Code(http.StatusRequestEntityTooLarge))
		return
	}

	source, err := v1.NewSourceLogic(c, s.Core).Upload(tenantID(c), types.SourceKind(c.PostForm("kind")), header.Filename, raw)
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, source)
}

type ListSourcesRequest struct {
	Kind     types.SourceKind   `form:"kind"`
	Status   types.SourceStatus `form:"status"`
	Page     uint64             `form:"page"`
	PageSize uint64             `form:"pagesize"`
}

type ListSourcesResponse struct {
	List  []types.KnowledgeSource `json:"list"`
	Total uint64                  `json:"total"`
}

func (s *HttpSrv) ListSources(c *gin.Context) {
	var req ListSourcesRequest
	if err := utils.BindArgsWithGin(c, &req); err != nil {
		response.APIError(c, err)
		return
	}
	if req.PageSize == 0 || req.PageSize > 100 {
		req.PageSize = 20
	}

	list, total, err := v1.NewSourceLogic(c, s.Core).List(types.ListSourceOptions{
		TenantID: tenantID(c),
		Kind:     req.Kind,
		Status:   req.Status,
	}, req.Page, req.PageSize)
	if err != nil {
		response.APIError(c, err)
		return
	}
	if list == nil {
		list = []types.KnowledgeSource{}
	}
	response.APISuccess(c, ListSourcesResponse{List: list, Total: total})
}

func (s *HttpSrv) GetSource(c *gin.Context) {
	source, err := v1.NewSourceLogic(c, s.Core).Get(tenantID(c), c.Param("id"))
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, source)
}

func (s *HttpSrv) DeleteSource(c *gin.Context) {
	if err := v1.NewSourceLogic(c, s.Core).Delete(tenantID(c), c.Param("id")); err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, nil)
}

// IngestSource answers with the ingestion result. A run that failed inside
// the pipeline still returns 200 with success=false; a missing or busy
// source is reported through the error envelope.
func (s *HttpSrv) IngestSource(c *gin.Context) {
	res, err := v1.NewIngestLogic(c, s.Core).Ingest(tenantID(c), c.Param("id"))
	if err != nil && (errors.Is(err, v1.ErrSourceNotFound) || errors.Is(err, v1.ErrSourceBusy)) {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, res)
}

func (s *HttpSrv) CheckSource(c *gin.Context) {
	res, err := v1.NewMonitorLogic(c, s.Core).Check(tenantID(c), c.Param("id"))
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, res)
}
