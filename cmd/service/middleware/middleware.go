package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	cmap "github.com/orcaman/concurrent-map/v2"
	"golang.org/x/time/rate"

	"github.com/quka-ai/kbcore/app/core"
	"github.com/quka-ai/kbcore/app/response"
	"github.com/quka-ai/kbcore/pkg/errors"
)

func Cors(c *gin.Context) {
	method := c.Request.Method
	origin := c.Request.Header.Get("Origin")
	if origin != "" {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		c.Header("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Expose-Headers", "Content-Length, Access-Control-Allow-Origin, Access-Control-Allow-Headers, Cache-Control, Content-Type")
	}
	if method == "OPTIONS" {
		c.AbortWithStatus(http.StatusNoContent)
	}
	c.Next()
}

// Metrics records latency per route and counts error responses.
func Metrics(core *core.Core) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		timer := core.Metrics().ApiResponseTimer(route)
		c.Next()
		timer.ObserveDuration()

		if status := c.Writer.Status(); status >= http.StatusBadRequest {
			core.Metrics().ApiErrorInc(c.Request.Method, route, status)
		}
	}
}

// RequireTenant rejects requests whose :tenant path segment is blank.
func RequireTenant(c *gin.Context) {
	if strings.TrimSpace(c.Param("tenant")) == "" {
		response.APIError(c, errors.New("middleware.RequireTenant", "tenant is required", nil).Code(http.StatusBadRequest))
	}
}

type LimiterFunc func(key string) gin.HandlerFunc

// TenantLimit builds a token bucket per tenant and operation.
func TenantLimit(perSecond float64, burst int) LimiterFunc {
	limiters := cmap.New[*rate.Limiter]()
	return func(operation string) gin.HandlerFunc {
		return func(c *gin.Context) {
			if perSecond <= 0 {
				return
			}
			key := operation + ":" + c.Param("tenant")
			l := limiters.Upsert(key, nil, func(exist bool, old, _ *rate.Limiter) *rate.Limiter {
				if exist {
					return old
				}
				return rate.NewLimiter(rate.Limit(perSecond), burst)
			})
			if !l.Allow() {
				response.APIError(c, errors.New("middleware.limiter", "too many requests", nil).Code(http.StatusTooManyRequests))
			}
		}
	}
}
