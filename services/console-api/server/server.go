package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Mutter0815/BotDispatch/docs"
	"github.com/Mutter0815/BotDispatch/pkg/metrics"
)

func NewHTTPServer(addr string, h *Handlers) *http.Server {
	r := gin.New()
	r.Use(gin.Recovery(), Observability())

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/docs", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", docs.SwaggerHTML)
	})
	r.GET("/docs/console-api/openapi.yaml", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", docs.ConsoleOpenAPI)
	})

	r.POST("/schedule/expression", h.BuildExpression)
	r.GET("/schedule/spec", h.ReadSpec)

	r.POST("/targets/resolve", h.ResolveTargets)
	r.POST("/dispatch", h.Dispatch)
	r.POST("/bots/:id/trigger", h.TriggerBot)

	r.GET("/runs", h.ListRuns)
	r.GET("/runs/:id", h.GetRun)

	return &http.Server{
		Addr:    addr,
		Handler: r,
	}
}
