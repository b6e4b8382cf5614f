// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// NoHoverMessage is returned as hover content when the server has no
// information for the position. An empty hover is a successful outcome,
// not an error.
const NoHoverMessage = "no hover information available"

// =============================================================================
// OPERATIONS FAÇADE
// =============================================================================

// Operations provides high-level code intelligence queries on top of a
// Manager.
//
// Description:
//
//	Each query resolves the server for the file's language (spawning one on
//	first use), announces the file via didOpen if needed, issues the LSP
//	request, and normalizes the result. All line and character coordinates
//	accepted and returned here are 1-indexed; the 0-indexed convention
//	exists only on the wire.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Operations struct {
	manager *Manager
}

// NewOperations creates an operations façade over the given manager.
func NewOperations(manager *Manager) *Operations {
	return &Operations{manager: manager}
}

// Manager returns the underlying server manager.
func (o *Operations) Manager() *Manager {
	return o.manager
}

// =============================================================================
// RETRY CONFIGURATION
// =============================================================================

const (
	// maxRetries is the maximum number of retry attempts for transient failures.
	maxRetries = 1

	// retryDelay is the delay between retry attempts.
	retryDelay = 100 * time.Millisecond
)

// isRetryableError returns true if the error is transient and worth retrying.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	// Retry on server crash or connection issues
	if errors.Is(err, ErrServerCrashed) || errors.Is(err, ErrServerNotRunning) {
		return true
	}
	// Retry on LSP errors that indicate server issues
	var lspErr *LSPError
	if errors.As(err, &lspErr) {
		// -32099 to -32000 are server errors
		return lspErr.Code >= -32099 && lspErr.Code <= -32000
	}
	return false
}

// requestWithRetry runs an LSP request with retry on transient failures.
//
// Description:
//
//	Prepares the file's server and executes the request function, retrying
//	once when a transient error occurs. A crashed server is removed from
//	the manager on exit, so the retry prepares a fresh server and reopens
//	the document. Only idempotent queries use this.
func (o *Operations) requestWithRetry(
	ctx context.Context,
	file string,
	requestFn func(srv *Server, abs string) (*Response, error),
) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		srv, abs, err := o.prepare(ctx, file)
		if err != nil {
			if isRetryableError(err) && attempt < maxRetries {
				lastErr = err
				slog.Debug("Retrying LSP request after server error",
					slog.String("file", file),
					slog.Int("attempt", attempt+1),
					slog.String("error", err.Error()),
				)
				time.Sleep(retryDelay)
				continue
			}
			return nil, err
		}

		resp, err := requestFn(srv, abs)
		if err != nil {
			if isRetryableError(err) && attempt < maxRetries {
				lastErr = err
				slog.Debug("Retrying LSP request after transient error",
					slog.String("file", file),
					slog.Int("attempt", attempt+1),
					slog.String("error", err.Error()),
				)
				time.Sleep(retryDelay)
				continue
			}
			return nil, err
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// prepare resolves the server for a file and ensures the document is open.
func (o *Operations) prepare(ctx context.Context, file string) (*Server, string, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return nil, "", fmt.Errorf("resolve path: %w", err)
	}

	srv, err := o.manager.ServerForFile(ctx, abs)
	if err != nil {
		return nil, "", err
	}

	if err := srv.EnsureOpen(ctx, abs); err != nil {
		return nil, "", err
	}
	return srv, abs, nil
}

// withDeadline applies the default request timeout when the caller's
// context has no deadline of its own.
func (o *Operations) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, o.manager.RequestTimeout())
}

// =============================================================================
// QUERIES
// =============================================================================

// Definition finds where the symbol at a position is defined.
//
// Inputs:
//
//	ctx - Context for cancellation and timeout
//	file - Path to the source file
//	line - 1-indexed line number
//	character - 1-indexed character offset
//
// Outputs:
//
//	[]FileLocation - Zero or more definition sites, 1-indexed.
//	error - Non-nil on unsupported language, server failure, or timeout.
func (o *Operations) Definition(ctx context.Context, file string, line, character int) ([]FileLocation, error) {
	start := time.Now()

	locs, err := o.definition(ctx, file, line, character)
	recordRequest(ctx, "textDocument/definition", time.Since(start), err)
	return locs, err
}

func (o *Operations) definition(ctx context.Context, file string, line, character int) ([]FileLocation, error) {
	if err := validatePosition(line, character); err != nil {
		return nil, err
	}

	resp, err := o.requestWithRetry(ctx, file, func(srv *Server, abs string) (*Response, error) {
		if !srv.capabilities.HasDefinitionProvider() {
			return nil, fmt.Errorf("definition not supported by %s server", srv.Language())
		}

		reqCtx, cancel := o.withDeadline(ctx)
		defer cancel()

		params := TextDocumentPositionParams{
			TextDocument: TextDocumentIdentifier{URI: pathToURI(abs)},
			Position:     Position{Line: line - 1, Character: character - 1},
		}
		return srv.Request(reqCtx, "textDocument/definition", params)
	})
	if err != nil {
		return nil, err
	}
	return parseLocations(resp.Result)
}

// References finds all references to the symbol at a position.
//
// Inputs:
//
//	ctx - Context for cancellation and timeout
//	file - Path to the source file
//	line - 1-indexed line number
//	character - 1-indexed character offset
//	includeDeclaration - Whether the declaration itself is included
func (o *Operations) References(ctx context.Context, file string, line, character int, includeDeclaration bool) ([]FileLocation, error) {
	start := time.Now()

	locs, err := o.references(ctx, file, line, character, includeDeclaration)
	recordRequest(ctx, "textDocument/references", time.Since(start), err)
	return locs, err
}

func (o *Operations) references(ctx context.Context, file string, line, character int, includeDeclaration bool) ([]FileLocation, error) {
	if err := validatePosition(line, character); err != nil {
		return nil, err
	}

	resp, err := o.requestWithRetry(ctx, file, func(srv *Server, abs string) (*Response, error) {
		if !srv.capabilities.HasReferencesProvider() {
			return nil, fmt.Errorf("references not supported by %s server", srv.Language())
		}

		reqCtx, cancel := o.withDeadline(ctx)
		defer cancel()

		params := ReferenceParams{
			TextDocumentPositionParams: TextDocumentPositionParams{
				TextDocument: TextDocumentIdentifier{URI: pathToURI(abs)},
				Position:     Position{Line: line - 1, Character: character - 1},
			},
			Context: ReferenceContext{IncludeDeclaration: includeDeclaration},
		}
		return srv.Request(reqCtx, "textDocument/references", params)
	})
	if err != nil {
		return nil, err
	}
	return parseLocations(resp.Result)
}

// Hover returns documentation for the symbol at a position.
//
// Description:
//
//	A server answering null (no information for the position) is a
//	successful outcome: the returned HoverInfo carries NoHoverMessage.
func (o *Operations) Hover(ctx context.Context, file string, line, character int) (*HoverInfo, error) {
	start := time.Now()

	info, err := o.hover(ctx, file, line, character)
	recordRequest(ctx, "textDocument/hover", time.Since(start), err)
	return info, err
}

func (o *Operations) hover(ctx context.Context, file string, line, character int) (*HoverInfo, error) {
	if err := validatePosition(line, character); err != nil {
		return nil, err
	}

	resp, err := o.requestWithRetry(ctx, file, func(srv *Server, abs string) (*Response, error) {
		if !srv.capabilities.HasHoverProvider() {
			return nil, fmt.Errorf("hover not supported by %s server", srv.Language())
		}

		reqCtx, cancel := o.withDeadline(ctx)
		defer cancel()

		params := TextDocumentPositionParams{
			TextDocument: TextDocumentIdentifier{URI: pathToURI(abs)},
			Position:     Position{Line: line - 1, Character: character - 1},
		}
		return srv.Request(reqCtx, "textDocument/hover", params)
	})
	if err != nil {
		return nil, err
	}

	if isNullResult(resp.Result) {
		return &HoverInfo{Content: NoHoverMessage}, nil
	}

	var result HoverResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("%w: hover: %v", ErrInvalidResponse, err)
	}
	if result.Contents.IsEmpty() {
		return &HoverInfo{Content: NoHoverMessage, Range: result.Range}, nil
	}
	return &HoverInfo{
		Content: result.Contents.Flatten(),
		Range:   result.Range,
	}, nil
}

// DocumentSymbols lists the symbols of a file as a flattened outline.
//
// Description:
//
//	Accepts both response shapes of textDocument/documentSymbol: the
//	hierarchical DocumentSymbol tree is flattened pre-order with nesting
//	depth preserved, and the flat legacy SymbolInformation list maps to
//	depth 0. Kinds outside the known table are labeled "Unknown".
func (o *Operations) DocumentSymbols(ctx context.Context, file string) ([]SymbolNode, error) {
	start := time.Now()

	symbols, err := o.documentSymbols(ctx, file)
	recordRequest(ctx, "textDocument/documentSymbol", time.Since(start), err)
	return symbols, err
}

func (o *Operations) documentSymbols(ctx context.Context, file string) ([]SymbolNode, error) {
	resp, err := o.requestWithRetry(ctx, file, func(srv *Server, abs string) (*Response, error) {
		if !srv.capabilities.HasDocumentSymbolProvider() {
			return nil, fmt.Errorf("documentSymbol not supported by %s server", srv.Language())
		}

		reqCtx, cancel := o.withDeadline(ctx)
		defer cancel()

		params := DocumentSymbolParams{
			TextDocument: TextDocumentIdentifier{URI: pathToURI(abs)},
		}
		return srv.Request(reqCtx, "textDocument/documentSymbol", params)
	})
	if err != nil {
		return nil, err
	}
	return parseSymbols(resp.Result)
}

// =============================================================================
// RESPONSE PARSING
// =============================================================================

// isNullResult reports whether a result is absent or the JSON null literal.
func isNullResult(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}

// parseLocations normalizes the three location response shapes the protocol
// allows (single Location, []Location, []LocationLink) into 1-indexed
// FileLocations.
func parseLocations(raw json.RawMessage) ([]FileLocation, error) {
	if isNullResult(raw) {
		return []FileLocation{}, nil
	}

	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") {
		var loc Location
		if err := json.Unmarshal(raw, &loc); err != nil {
			return nil, fmt.Errorf("%w: location: %v", ErrInvalidResponse, err)
		}
		return []FileLocation{locationToFileLocation(loc)}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: location list: %v", ErrInvalidResponse, err)
	}
	if len(items) == 0 {
		return []FileLocation{}, nil
	}

	// LocationLink elements carry targetUri; plain Locations carry uri.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(items[0], &probe); err != nil {
		return nil, fmt.Errorf("%w: location element: %v", ErrInvalidResponse, err)
	}

	results := make([]FileLocation, 0, len(items))
	if _, isLink := probe["targetUri"]; isLink {
		for _, item := range items {
			var link LocationLink
			if err := json.Unmarshal(item, &link); err != nil {
				return nil, fmt.Errorf("%w: location link: %v", ErrInvalidResponse, err)
			}
			results = append(results, locationToFileLocation(Location{
				URI:   link.TargetURI,
				Range: link.TargetSelectionRange,
			}))
		}
		return results, nil
	}

	for _, item := range items {
		var loc Location
		if err := json.Unmarshal(item, &loc); err != nil {
			return nil, fmt.Errorf("%w: location: %v", ErrInvalidResponse, err)
		}
		results = append(results, locationToFileLocation(loc))
	}
	return results, nil
}

// locationToFileLocation converts a 0-indexed wire location to the
// 1-indexed external form.
func locationToFileLocation(loc Location) FileLocation {
	return FileLocation{
		File:         uriToPath(loc.URI),
		Line:         loc.Range.Start.Line + 1,
		Character:    loc.Range.Start.Character + 1,
		EndLine:      loc.Range.End.Line + 1,
		EndCharacter: loc.Range.End.Character + 1,
	}
}

// parseSymbols normalizes both documentSymbol response shapes into a
// flattened, depth-annotated outline.
func parseSymbols(raw json.RawMessage) ([]SymbolNode, error) {
	if isNullResult(raw) {
		return []SymbolNode{}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: symbol list: %v", ErrInvalidResponse, err)
	}
	if len(items) == 0 {
		return []SymbolNode{}, nil
	}

	// The flat legacy shape carries a location field; the hierarchical
	// shape carries range/selectionRange instead.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(items[0], &probe); err != nil {
		return nil, fmt.Errorf("%w: symbol element: %v", ErrInvalidResponse, err)
	}

	if _, flat := probe["location"]; flat {
		nodes := make([]SymbolNode, 0, len(items))
		for _, item := range items {
			var info SymbolInformation
			if err := json.Unmarshal(item, &info); err != nil {
				return nil, fmt.Errorf("%w: symbol information: %v", ErrInvalidResponse, err)
			}
			nodes = append(nodes, SymbolNode{
				Name:    info.Name,
				Kind:    info.Kind.Label(),
				Depth:   0,
				Line:    info.Location.Range.Start.Line + 1,
				EndLine: info.Location.Range.End.Line + 1,
			})
		}
		return nodes, nil
	}

	var symbols []DocumentSymbol
	if err := json.Unmarshal(raw, &symbols); err != nil {
		return nil, fmt.Errorf("%w: document symbols: %v", ErrInvalidResponse, err)
	}

	var nodes []SymbolNode
	flattenSymbols(symbols, 0, &nodes)
	return nodes, nil
}

// flattenSymbols walks the symbol tree pre-order, recording nesting depth.
func flattenSymbols(symbols []DocumentSymbol, depth int, out *[]SymbolNode) {
	for _, sym := range symbols {
		*out = append(*out, SymbolNode{
			Name:    sym.Name,
			Kind:    sym.Kind.Label(),
			Depth:   depth,
			Line:    sym.Range.Start.Line + 1,
			EndLine: sym.Range.End.Line + 1,
		})
		flattenSymbols(sym.Children, depth+1, out)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// validatePosition rejects coordinates below the 1-indexed origin.
func validatePosition(line, character int) error {
	if line < 1 {
		return fmt.Errorf("line must be >= 1, got %d", line)
	}
	if character < 1 {
		return fmt.Errorf("character must be >= 1, got %d", character)
	}
	return nil
}

// pathToURI converts an absolute file path to a file:// URI.
func pathToURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file://" + filepath.ToSlash(abs)
}

// uriToPath converts a file:// URI back to a file path.
func uriToPath(uri string) string {
	path := strings.TrimPrefix(uri, "file://")
	if unescaped, err := url.PathUnescape(path); err == nil {
		path = unescaped
	}
	return filepath.FromSlash(path)
}
