package service

import (
	"github.com/gin-gonic/gin"

	"github.com/quka-ai/kbcore/app/core"
	"github.com/quka-ai/kbcore/app/response"
	"github.com/quka-ai/kbcore/cmd/service/handler"
	"github.com/quka-ai/kbcore/cmd/service/middleware"
	"github.com/quka-ai/kbcore/pkg/metrics"
)

func serve(core *core.Core) error {
	httpSrv := &handler.HttpSrv{
		Core:   core,
		Engine: core.HttpEngine(),
	}
	setupHttpRouter(httpSrv)

	return core.HttpEngine().Run(core.Cfg().Addr)
}

func setupHttpRouter(s *handler.HttpSrv) {
	limit := s.Core.Cfg().Limit
	tenantLimit := middleware.TenantLimit(limit.PerSecond, limit.BurstOrDefault())

	s.Engine.GET("/metrics", metrics.DefaultExportHandler())
	s.Engine.Use(response.NewResponse())
	s.Engine.Use(middleware.Cors)
	s.Engine.Use(middleware.Metrics(s.Core))

	s.Engine.GET("/healthz", s.Health)

	apiV1 := s.Engine.Group("/api/v1")
	{
		apiV1.GET("/mode", func(c *gin.Context) {
			response.APISuccess(c, s.Core.Srv().AI().Status())
		})

		tenant := apiV1.Group("/tenants/:tenant")
		tenant.Use(middleware.RequireTenant)

		source := tenant.Group("/sources")
		{
			source.GET("", s.ListSources)
			source.GET("/:id", s.GetSource)

			modify := source.Group("")
			modify.Use(tenantLimit("source_modify"))
			modify.POST("", s.CreateSource)
			modify.POST("/upload", s.UploadSource)
			modify.DELETE("/:id", s.DeleteSource)
			modify.POST("/:id/ingest", tenantLimit("ingest"), s.IngestSource)
			modify.POST("/:id/check", s.CheckSource)
		}

		tenant.GET("/search", tenantLimit("search"), s.Search)
		tenant.GET("/usage", s.UsageSummary)
	}
}
