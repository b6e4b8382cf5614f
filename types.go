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

import "github.com/AleutianAI/codeintel/lsp"

// =============================================================================
// REQUEST TYPES
// =============================================================================

// PositionRequest identifies a position in a source file.
// Line and character are 1-indexed.
type PositionRequest struct {
	// File is the absolute path to the source file.
	File string `json:"file" binding:"required"`

	// Line is the 1-indexed line number.
	Line int `json:"line" binding:"required,min=1"`

	// Character is the 1-indexed character offset.
	Character int `json:"character" binding:"required,min=1"`
}

// ReferencesRequest extends PositionRequest for find references.
type ReferencesRequest struct {
	PositionRequest

	// IncludeDeclaration includes the declaration site in the results.
	IncludeDeclaration bool `json:"include_declaration"`
}

// SymbolsRequest identifies a file to outline.
type SymbolsRequest struct {
	// File is the absolute path to the source file.
	File string `json:"file" binding:"required"`
}

// StartServerRequest names a language server to start eagerly.
type StartServerRequest struct {
	// Language is the language identifier (e.g., "go").
	Language string `json:"language" binding:"required"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// LocationsResponse carries definition or reference results.
type LocationsResponse struct {
	// Locations are the resolved source locations, 1-indexed.
	Locations []lsp.FileLocation `json:"locations"`

	// Count is the number of locations.
	Count int `json:"count"`
}

// HoverResponse carries hover documentation.
type HoverResponse struct {
	// Content is the flattened hover text.
	Content string `json:"content"`
}

// SymbolsResponse carries a flattened symbol outline.
type SymbolsResponse struct {
	// Symbols are the outline entries in document order.
	Symbols []lsp.SymbolNode `json:"symbols"`

	// Count is the number of symbols.
	Count int `json:"count"`
}

// LanguagesResponse describes language support for the workspace.
type LanguagesResponse struct {
	// Detected are the languages found in the workspace.
	Detected []string `json:"detected"`

	// Supported are all languages with a server configuration.
	Supported []string `json:"supported"`

	// Running are the languages with a live server.
	Running []string `json:"running"`
}

// ServerStatusResponse describes one running language server.
type ServerStatusResponse struct {
	// Language is the language the server handles.
	Language string `json:"language"`

	// Command is the binary that was spawned.
	Command string `json:"command"`

	// State is the server lifecycle state.
	State string `json:"state"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	// Status is "ok" when the service is healthy.
	Status string `json:"status"`

	// Version is the service version.
	Version string `json:"version"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	// Error is a human-readable error message.
	Error string `json:"error"`

	// Code is a machine-readable error code.
	Code string `json:"code"`
}
