package response

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quka-ai/kbcore/pkg/errors"
	"github.com/quka-ai/kbcore/pkg/utils"
)

// 常量定义
const (
	RequestIDKey = "request_id"
	ResponseKey  = "response_key"
)

// Response 响应结构体定义
type Response struct {
	Meta Meta        `json:"meta"`
	Data interface{} `json:"data"`
}

// Meta 响应meta定义
type Meta struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func current(c *gin.Context) *Response {
	if v, ok := c.Get(ResponseKey); ok {
		if res, ok := v.(*Response); ok {
			return res
		}
	}
	return &Response{Meta: Meta{RequestID: utils.GenRandomID()}}
}

// APIError api响应失败
func APIError(c *gin.Context, err error) {
	c.Abort()

	res := current(c)
	var cerr *errors.CustomizedError
	if !errors.As(err, &cerr) {
		res.Meta.Code = http.StatusInternalServerError
		res.Meta.Message = err.Error()
	} else {
		res.Meta.Code = cerr.GetCode()
		res.Meta.Message = cerr.Message()
	}

	c.JSON(res.Meta.Code, res)
	printErrorLog(c, res, err)
}

func printErrorLog(c *gin.Context, res *Response, err error) {
	slog.Error("response error",
		slog.String("request_id", res.Meta.RequestID),
		slog.String("request_uri", c.Request.URL.Path),
		slog.String("tenant_id", c.Param("tenant")),
		slog.Int64("end_time", time.Now().Unix()),
		slog.Int("code", res.Meta.Code),
		slog.String("error", err.Error()))
}

func printSuccessLog(c *gin.Context, res *Response) {
	slog.Info("request success",
		slog.String("request_id", res.Meta.RequestID),
		slog.String("request_uri", c.Request.URL.Path),
		slog.String("tenant_id", c.Param("tenant")),
		slog.Int64("end_time", time.Now().Unix()),
		slog.String("params", c.Request.URL.Query().Encode()))
}

// APISuccess api响应成功
func APISuccess(c *gin.Context, response interface{}) {
	c.Abort()
	res := current(c)
	if response != nil {
		res.Data = response
	}
	c.JSON(http.StatusOK, res)
	printSuccessLog(c, res)
}

// NewResponse 为每个请求生成响应对象与请求ID
func NewResponse() gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := &Response{
			Meta: Meta{
				RequestID: utils.GenRandomID(),
			},
		}
		c.Set(ResponseKey, resp)
		c.Set(RequestIDKey, resp.Meta.RequestID)
	}
}
