// Package http is the request/response protocol layer: it validates inbound
// payloads, dispatches to the reasoning agent in batch or streaming mode, and
// maps failures onto the stable error taxonomy.
package http

import (
	"github.com/gin-gonic/gin"

	"github.com/fintalk/server/internal/agent/model"
	"github.com/fintalk/server/internal/core"
)

// RouterConfig carries the handlers' dependencies. Delegate may be nil when
// agent initialization failed; the query endpoints then report unavailable.
type RouterConfig struct {
	Environment  core.Environment
	DB           Pinger
	Vector       Pinger
	BedrockReady bool
	Pipeline     Ingester
	Delegate     model.Delegate
}

// NewRouter wires all routes onto a gin engine.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Environment.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	health := NewHealthHandler(cfg.DB, cfg.Vector, cfg.BedrockReady)
	documents := NewDocumentsHandler(cfg.Pipeline)
	query := NewQueryHandler(cfg.Delegate)

	r.GET("/health/", health.Check)
	r.POST("/documents/upload/", documents.Upload)
	r.POST("/agent/query/", query.Query)
	r.POST("/agent/query/chat/completions", query.ChatCompletions)

	return r
}
