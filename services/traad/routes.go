// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package traad

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all traad routes with the router.
//
// Description:
//
//	Registers all /v1/traad/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Resource Endpoints:
//
//	GET    /v1/traad/all_resources - List a project in level order
//	GET    /v1/traad/children - List a folder's children
//
// Refactoring Endpoints:
//
//	POST   /v1/traad/rename - Rename and apply
//	POST   /v1/traad/refactor/:kind - Run any refactoring, optionally as preview
//	POST   /v1/traad/changes/apply - Apply change data
//	POST   /v1/traad/changes/:id/apply - Apply a previewed change
//	DELETE /v1/traad/changes/:id - Discard a previewed change
//
// History Endpoints:
//
//	GET    /v1/traad/history - List the undo history
//	POST   /v1/traad/history/undo - Undo the last change
//	POST   /v1/traad/history/redo - Redo the last undone change
//
// Code Assist Endpoints:
//
//	POST   /v1/traad/code_assist - Completions
//	POST   /v1/traad/doc - Documentation
//	POST   /v1/traad/calltip - Call signature
//	POST   /v1/traad/definition - Definition location
//
// Project Endpoints:
//
//	GET    /v1/traad/projects - List projects
//	POST   /v1/traad/cross_projects - Add a cross project
//	DELETE /v1/traad/cross_projects - Remove a cross project
//
// Health Endpoints:
//
//	GET    /v1/traad/health - Health check
//	GET    /v1/traad/ready - Readiness check
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	traad := rg.Group("/traad")
	{
		traad.GET("/all_resources", handlers.HandleAllResources)
		traad.GET("/children", handlers.HandleChildren)

		traad.POST("/rename", handlers.HandleRename)
		traad.POST("/refactor/:kind", handlers.HandleRefactor)

		traad.POST("/changes/apply", handlers.HandleApplyData)
		traad.POST("/changes/:id/apply", handlers.HandleApplyChange)
		traad.DELETE("/changes/:id", handlers.HandleDiscardChange)

		traad.GET("/history", handlers.HandleHistory)
		traad.POST("/history/undo", handlers.HandleUndo)
		traad.POST("/history/redo", handlers.HandleRedo)

		traad.POST("/code_assist", handlers.HandleCodeAssist)
		traad.POST("/doc", handlers.HandleDoc)
		traad.POST("/calltip", handlers.HandleCalltip)
		traad.POST("/definition", handlers.HandleDefinition)

		traad.GET("/projects", handlers.HandleProjects)
		traad.POST("/cross_projects", handlers.HandleAddCrossProject)
		traad.DELETE("/cross_projects", handlers.HandleRemoveCrossProject)

		traad.GET("/health", handlers.HandleHealth)
		traad.GET("/ready", handlers.HandleReady)
	}
}
