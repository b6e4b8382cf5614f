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
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/codeintel/language"
	"github.com/AleutianAI/codeintel/lsp"
)

// ServiceVersion is the code intelligence service version.
const ServiceVersion = "0.1.0"

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// Root is the absolute workspace root path.
	Root string

	// Manager tunes server spawn and request timing.
	Manager lsp.ManagerConfig
}

// DefaultServiceConfig returns the default configuration for a root.
func DefaultServiceConfig(root string) ServiceConfig {
	return ServiceConfig{
		Root:    root,
		Manager: lsp.DefaultManagerConfig(),
	}
}

// Service is the code intelligence entry point for one workspace.
//
// Description:
//
//	Combines language detection with the LSP layer: queries resolve the
//	file's language, spawn the matching server on first use, and return
//	normalized, 1-indexed results. File paths are validated against the
//	workspace root before any server sees them.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Service struct {
	root    string
	manager *lsp.Manager
	ops     *lsp.Operations
}

// NewService creates a service for the given workspace.
//
// Errors:
//
//	ErrRelativePath - The root is not an absolute path
//	ErrFileNotFound - The root does not exist or is not a directory
func NewService(cfg ServiceConfig) (*Service, error) {
	if !filepath.IsAbs(cfg.Root) {
		return nil, fmt.Errorf("%w: %s", ErrRelativePath, cfg.Root)
	}
	root := filepath.Clean(cfg.Root)

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, root)
	}

	manager := lsp.NewManager(root, nil, cfg.Manager)
	svc := &Service{
		root:    root,
		manager: manager,
		ops:     lsp.NewOperations(manager),
	}

	slog.Info("Code intelligence service created",
		slog.String("root", root),
		slog.Any("detected_languages", svc.DetectLanguages()),
	)
	return svc, nil
}

// Root returns the workspace root.
func (s *Service) Root() string {
	return s.root
}

// Manager returns the underlying LSP server manager.
func (s *Service) Manager() *lsp.Manager {
	return s.manager
}

// resolveFile validates a query path: absolute, inside the root, existing.
func (s *Service) resolveFile(file string) (string, error) {
	if !filepath.IsAbs(file) {
		return "", fmt.Errorf("%w: %s", ErrRelativePath, file)
	}
	abs := filepath.Clean(file)

	if abs != s.root && !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideRoot, file)
	}

	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, file)
	}
	return abs, nil
}

// =============================================================================
// LANGUAGE AND SERVER MANAGEMENT
// =============================================================================

// DetectLanguages returns the languages detected in the workspace.
func (s *Service) DetectLanguages() []string {
	return language.Detect(s.root)
}

// SupportedLanguages returns every language with a server configuration.
func (s *Service) SupportedLanguages() []string {
	return s.manager.Registry().Languages()
}

// RunningServers describes the live language servers.
func (s *Service) RunningServers() []ServerStatusResponse {
	var servers []ServerStatusResponse
	for _, lang := range s.manager.RunningLanguages() {
		srv, ok := s.manager.Server(lang)
		if !ok {
			continue
		}
		servers = append(servers, ServerStatusResponse{
			Language: srv.Language(),
			Command:  srv.Command(),
			State:    srv.State().String(),
		})
	}
	return servers
}

// StartServer eagerly spawns the server for a language and reports its
// status. The status comes from the spawned server itself, so a crash
// racing the call cannot leave the caller with a dangling lookup.
func (s *Service) StartServer(ctx context.Context, lang string) (ServerStatusResponse, error) {
	srv, err := s.manager.GetOrSpawn(ctx, lang)
	if err != nil {
		return ServerStatusResponse{}, err
	}
	return ServerStatusResponse{
		Language: srv.Language(),
		Command:  srv.Command(),
		State:    srv.State().String(),
	}, nil
}

// StopServer shuts down the server for a language. Idempotent.
func (s *Service) StopServer(ctx context.Context, lang string) error {
	return s.manager.Shutdown(ctx, lang)
}

// Close shuts down every language server.
func (s *Service) Close(ctx context.Context) error {
	return s.manager.ShutdownAll(ctx)
}

// =============================================================================
// QUERIES
// =============================================================================

// Definition finds where the symbol at a position is defined.
// Coordinates are 1-indexed in and out.
func (s *Service) Definition(ctx context.Context, file string, line, character int) ([]lsp.FileLocation, error) {
	abs, err := s.resolveFile(file)
	if err != nil {
		return nil, err
	}
	return s.ops.Definition(ctx, abs, line, character)
}

// References finds all references to the symbol at a position.
func (s *Service) References(ctx context.Context, file string, line, character int, includeDeclaration bool) ([]lsp.FileLocation, error) {
	abs, err := s.resolveFile(file)
	if err != nil {
		return nil, err
	}
	return s.ops.References(ctx, abs, line, character, includeDeclaration)
}

// Hover returns documentation for the symbol at a position. A position
// with no information yields content stating so, not an error.
func (s *Service) Hover(ctx context.Context, file string, line, character int) (*lsp.HoverInfo, error) {
	abs, err := s.resolveFile(file)
	if err != nil {
		return nil, err
	}
	return s.ops.Hover(ctx, abs, line, character)
}

// DocumentSymbols lists the symbols of a file as a flattened outline.
func (s *Service) DocumentSymbols(ctx context.Context, file string) ([]lsp.SymbolNode, error) {
	abs, err := s.resolveFile(file)
	if err != nil {
		return nil, err
	}
	return s.ops.DocumentSymbols(ctx, abs)
}
