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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/codeintel/lsp"
)

// Handlers contains the HTTP handlers for the code intelligence API.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// HandleDefinition handles POST /v1/codeintel/definition.
//
// Description:
//
//	Finds where the symbol at a position is defined. Coordinates in the
//	request and response are 1-indexed.
//
// Request Body:
//
//	PositionRequest
//
// Response:
//
//	200 OK: LocationsResponse
//	400 Bad Request: Validation error or unsupported language
//	502 Bad Gateway: Protocol error or server crash
//	503 Service Unavailable: Server could not be spawned
//	504 Gateway Timeout: LSP request timed out
func (h *Handlers) HandleDefinition(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDefinition")

	var req PositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	locs, err := h.svc.Definition(c.Request.Context(), req.File, req.Line, req.Character)
	if err != nil {
		respondQueryError(c, logger, "definition", err)
		return
	}

	logger.Info("Definition resolved", "file", req.File, "count", len(locs))
	c.JSON(http.StatusOK, LocationsResponse{Locations: locs, Count: len(locs)})
}

// HandleReferences handles POST /v1/codeintel/references.
//
// Request Body:
//
//	ReferencesRequest
//
// Response:
//
//	200 OK: LocationsResponse
func (h *Handlers) HandleReferences(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleReferences")

	var req ReferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	locs, err := h.svc.References(c.Request.Context(), req.File, req.Line, req.Character, req.IncludeDeclaration)
	if err != nil {
		respondQueryError(c, logger, "references", err)
		return
	}

	logger.Info("References resolved", "file", req.File, "count", len(locs))
	c.JSON(http.StatusOK, LocationsResponse{Locations: locs, Count: len(locs)})
}

// HandleHover handles POST /v1/codeintel/hover.
//
// Request Body:
//
//	PositionRequest
//
// Response:
//
//	200 OK: HoverResponse (content states when no information exists)
func (h *Handlers) HandleHover(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleHover")

	var req PositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	info, err := h.svc.Hover(c.Request.Context(), req.File, req.Line, req.Character)
	if err != nil {
		respondQueryError(c, logger, "hover", err)
		return
	}

	c.JSON(http.StatusOK, HoverResponse{Content: info.Content})
}

// HandleSymbols handles POST /v1/codeintel/symbols.
//
// Request Body:
//
//	SymbolsRequest
//
// Response:
//
//	200 OK: SymbolsResponse
func (h *Handlers) HandleSymbols(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSymbols")

	var req SymbolsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	symbols, err := h.svc.DocumentSymbols(c.Request.Context(), req.File)
	if err != nil {
		respondQueryError(c, logger, "symbols", err)
		return
	}

	logger.Info("Symbols listed", "file", req.File, "count", len(symbols))
	c.JSON(http.StatusOK, SymbolsResponse{Symbols: symbols, Count: len(symbols)})
}

// HandleLanguages handles GET /v1/codeintel/languages.
//
// Response:
//
//	200 OK: LanguagesResponse
func (h *Handlers) HandleLanguages(c *gin.Context) {
	c.JSON(http.StatusOK, LanguagesResponse{
		Detected:  h.svc.DetectLanguages(),
		Supported: h.svc.SupportedLanguages(),
		Running:   h.svc.Manager().RunningLanguages(),
	})
}

// HandleServers handles GET /v1/codeintel/servers.
//
// Response:
//
//	200 OK: []ServerStatusResponse
func (h *Handlers) HandleServers(c *gin.Context) {
	servers := h.svc.RunningServers()
	if servers == nil {
		servers = []ServerStatusResponse{}
	}
	c.JSON(http.StatusOK, servers)
}

// HandleStartServer handles POST /v1/codeintel/servers.
//
// Description:
//
//	Eagerly starts the server for a language instead of waiting for the
//	first query to spawn it.
//
// Request Body:
//
//	StartServerRequest
//
// Response:
//
//	200 OK: ServerStatusResponse
func (h *Handlers) HandleStartServer(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleStartServer")

	var req StartServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	status, err := h.svc.StartServer(c.Request.Context(), req.Language)
	if err != nil {
		respondQueryError(c, logger, "start server", err)
		return
	}

	logger.Info("Server started", "language", req.Language)
	c.JSON(http.StatusOK, status)
}

// HandleStopServer handles DELETE /v1/codeintel/servers/:language.
//
// Response:
//
//	204 No Content
func (h *Handlers) HandleStopServer(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleStopServer")

	lang := c.Param("language")
	if err := h.svc.StopServer(c.Request.Context(), lang); err != nil {
		logger.Error("Stop server failed", "language", lang, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "STOP_FAILED",
		})
		return
	}

	logger.Info("Server stopped", "language", lang)
	c.Status(http.StatusNoContent)
}

// HandleHealth handles GET /v1/codeintel/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: ServiceVersion})
}

// HandleReady handles GET /v1/codeintel/ready.
func (h *Handlers) HandleReady(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ready", Version: ServiceVersion})
}

// respondQueryError maps service errors onto HTTP status codes.
func respondQueryError(c *gin.Context, logger *slog.Logger, op string, err error) {
	statusCode := http.StatusInternalServerError
	errCode := "QUERY_FAILED"

	var lspErr *lsp.LSPError
	switch {
	case errors.Is(err, ErrRelativePath):
		statusCode = http.StatusBadRequest
		errCode = "INVALID_PATH"
	case errors.Is(err, ErrPathOutsideRoot):
		statusCode = http.StatusBadRequest
		errCode = "PATH_OUTSIDE_ROOT"
	case errors.Is(err, ErrFileNotFound):
		statusCode = http.StatusNotFound
		errCode = "FILE_NOT_FOUND"
	case errors.Is(err, lsp.ErrUnsupportedLanguage):
		statusCode = http.StatusBadRequest
		errCode = "UNSUPPORTED_LANGUAGE"
	case errors.Is(err, lsp.ErrServerUnavailable):
		statusCode = http.StatusServiceUnavailable
		errCode = "SERVER_UNAVAILABLE"
	case errors.Is(err, lsp.ErrRequestTimeout):
		statusCode = http.StatusGatewayTimeout
		errCode = "LSP_TIMEOUT"
	case errors.Is(err, lsp.ErrServerCrashed):
		statusCode = http.StatusBadGateway
		errCode = "SERVER_CRASHED"
	case errors.Is(err, lsp.ErrInitializeFailed):
		statusCode = http.StatusServiceUnavailable
		errCode = "INITIALIZE_FAILED"
	case errors.Is(err, lsp.ErrManagerClosed):
		statusCode = http.StatusServiceUnavailable
		errCode = "SHUTTING_DOWN"
	case errors.As(err, &lspErr):
		statusCode = http.StatusBadGateway
		errCode = "PROTOCOL_ERROR"
	}

	logger.Error("Query failed", "operation", op, "error", err)
	c.JSON(statusCode, ErrorResponse{
		Error: err.Error(),
		Code:  errCode,
	})
}

// getOrCreateRequestID gets or creates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
