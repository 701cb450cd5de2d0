package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	v1 "github.com/quka-ai/kbcore/app/logic/v1"
	"github.com/quka-ai/kbcore/app/response"
	"github.com/quka-ai/kbcore/pkg/errors"
	"github.com/quka-ai/kbcore/pkg/types"
	"github.com/quka-ai/kbcore/pkg/utils"
)

type SearchRequest struct {
	Query          string `form:"query" binding:"required"`
	ConversationID string `form:"conversation_id"`
}

type SearchResponse struct {
	List []types.SearchCandidate `json:"list"`
}

func (s *HttpSrv) Search(c *gin.Context) {
	var req SearchRequest
	if err := utils.BindArgsWithGin(c, &req); err != nil {
		response.APIError(c, err)
		return
	}

	list, err := v1.NewSearchLogic(c, s.Core).Search(tenantID(c), req.ConversationID, req.Query)
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, SearchResponse{List: list})
}

type UsageRequest struct {
	St int64 `form:"st"`
	Et int64 `form:"et"`
}

func (s *HttpSrv) UsageSummary(c *gin.Context) {
	var req UsageRequest
	if err := utils.BindArgsWithGin(c, &req); err != nil {
		response.APIError(c, err)
		return
	}

	et := time.Now()
	if req.Et > 0 {
		et = time.Unix(req.Et, 0)
	}
	st := et.AddDate(0, -1, 0)
	if req.St > 0 {
		st = time.Unix(req.St, 0)
	}

	list, err := v1.NewUsageLogic(c, s.Core).Summary(tenantID(c), st, et)
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, list)
}

func (s *HttpSrv) Health(c *gin.Context) {
	status := s.Core.Ping(c)
	for _, v := range status {
		if v != "ok" {
			response.APIError(c, errors.New("Health.Ping", v1.ERROR_UNAVAILABLE, nil).
				WithData(map[string]interface{}{"status": status}).Code(http.StatusServiceUnavailable))
			return
		}
	}
	response.APISuccess(c, gin.H{
		"status": status,
		"ai":     s.Core.Srv().AI().Status(),
	})
}
