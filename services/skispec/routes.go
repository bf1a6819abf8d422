// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package skispec

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RegisterRoutes registers the SkiSpec API routes with the router group.
//
// Description:
//
//	Registers the chat endpoints on the given group. The group should
//	already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/chat    - Answer one chat message
//	POST /v1/clear   - Delete a session
//	GET  /v1/chat/ws - Websocket chat stream
//	GET  /v1/health  - Liveness and generator status
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	rg.POST("/chat", handlers.HandleChat)
	rg.POST("/clear", handlers.HandleClear)
	rg.GET("/chat/ws", handlers.HandleWebSocket)
	rg.GET("/health", handlers.HandleHealth)
}

// NewRouter builds the complete gin engine.
//
// Description:
//
//	Installs panic recovery and OpenTelemetry middleware, the /v1 API, the
//	Prometheus scrape endpoint, the embedded client at "/", and the
//	unversioned /chat and /clear aliases used by older clients.
//
// Inputs:
//
//	handlers - The handlers instance
//	requestLog - Enables gin's per-request access log.
//
// Outputs:
//
//	*gin.Engine - Ready to serve.
func NewRouter(handlers *Handlers, requestLog bool) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("skispec"))
	if requestLog {
		router.Use(gin.Logger())
	}

	RegisterRoutes(router.Group("/v1"), handlers)

	router.POST("/chat", handlers.HandleChat)
	router.POST("/clear", handlers.HandleClear)
	router.GET("/", handlers.HandleIndex)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.NoRoute(handlers.HandleNotFound)

	return router
}
