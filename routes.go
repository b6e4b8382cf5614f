// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package codeintel

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all code intelligence routes with the router.
//
// Description:
//
//	Registers all /v1/codeintel/* endpoints with the given Gin router
//	group. The router group should already have any required middleware
//	applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Query Endpoints:
//
//	POST /v1/codeintel/definition - Go to definition
//	POST /v1/codeintel/references - Find references
//	POST /v1/codeintel/hover - Hover documentation
//	POST /v1/codeintel/symbols - Document symbol outline
//
// Server Management Endpoints:
//
//	GET    /v1/codeintel/languages - Detected and supported languages
//	GET    /v1/codeintel/servers - Running language servers
//	POST   /v1/codeintel/servers - Eagerly start a server
//	DELETE /v1/codeintel/servers/:language - Stop a server
//
// Health Endpoints:
//
//	GET /v1/codeintel/health - Health check
//	GET /v1/codeintel/ready - Readiness check
//
// Example:
//
//	svc, err := codeintel.NewService(codeintel.DefaultServiceConfig(root))
//	handlers := codeintel.NewHandlers(svc)
//
//	v1 := router.Group("/v1")
//	codeintel.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	ci := rg.Group("/codeintel")
	{
		// Queries
		ci.POST("/definition", handlers.HandleDefinition)
		ci.POST("/references", handlers.HandleReferences)
		ci.POST("/hover", handlers.HandleHover)
		ci.POST("/symbols", handlers.HandleSymbols)

		// Server management
		ci.GET("/languages", handlers.HandleLanguages)
		ci.GET("/servers", handlers.HandleServers)
		ci.POST("/servers", handlers.HandleStartServer)
		ci.DELETE("/servers/:language", handlers.HandleStopServer)

		// Health
		ci.GET("/health", handlers.HandleHealth)
		ci.GET("/ready", handlers.HandleReady)
	}
}
