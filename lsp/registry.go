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
	"sort"
	"strings"
	"sync"
)

// =============================================================================
// LANGUAGE CONFIGURATION
// =============================================================================

// LanguageConfig describes how to run the LSP server for one language.
type LanguageConfig struct {
	// Language is the language identifier (e.g., "go", "python").
	Language string

	// Command is the primary server binary.
	Command string

	// Args are the arguments for the primary command.
	Args []string

	// FallbackCommand is tried when the primary command fails to spawn.
	// Empty means no fallback exists for this language.
	FallbackCommand string

	// FallbackArgs are the arguments for the fallback command.
	FallbackArgs []string

	// Extensions are the file extensions handled by this server
	// (with leading dot, e.g., ".go").
	Extensions []string

	// InitializationOptions are server-specific initialize options.
	InitializationOptions interface{}
}

// HasFallback returns true if a fallback command is configured.
func (c LanguageConfig) HasFallback() bool {
	return c.FallbackCommand != ""
}

// ConfigRegistry maps languages and file extensions to server configurations.
//
// Description:
//
//	A static lookup table with no I/O. Built from DefaultConfigs and
//	extended via Register; resolution never spawns anything.
//
// Thread Safety:
//
//	Safe for concurrent use.
type ConfigRegistry struct {
	mu      sync.RWMutex
	configs map[string]LanguageConfig
	byExt   map[string]string
}

// NewConfigRegistry creates a registry pre-populated with DefaultConfigs.
func NewConfigRegistry() *ConfigRegistry {
	r := &ConfigRegistry{
		configs: make(map[string]LanguageConfig),
		byExt:   make(map[string]string),
	}
	for _, cfg := range DefaultConfigs() {
		r.Register(cfg)
	}
	return r
}

// Register adds or replaces the configuration for a language.
func (r *ConfigRegistry) Register(cfg LanguageConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.configs[cfg.Language] = cfg
	for _, ext := range cfg.Extensions {
		r.byExt[strings.ToLower(ext)] = cfg.Language
	}
}

// Get returns the configuration for a language.
func (r *ConfigRegistry) Get(language string) (LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.configs[language]
	return cfg, ok
}

// LanguageForExtension returns the language handling a file extension.
func (r *ConfigRegistry) LanguageForExtension(ext string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lang, ok := r.byExt[strings.ToLower(ext)]
	return lang, ok
}

// Languages returns all registered language identifiers, sorted.
func (r *ConfigRegistry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	langs := make([]string, 0, len(r.configs))
	for lang := range r.configs {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// DefaultConfigs returns the built-in per-language server command table.
//
// The table pairs each language with the conventional server binary and,
// where a widely installed alternative exists, a fallback command tried
// only when the primary fails to spawn.
func DefaultConfigs() []LanguageConfig {
	return []LanguageConfig{
		{
			Language:   "go",
			Command:    "gopls",
			Args:       []string{"serve"},
			Extensions: []string{".go"},
		},
		{
			Language:        "python",
			Command:         "pyright-langserver",
			Args:            []string{"--stdio"},
			FallbackCommand: "pylsp",
			Extensions:      []string{".py", ".pyi"},
		},
		{
			Language:   "typescript",
			Command:    "typescript-language-server",
			Args:       []string{"--stdio"},
			Extensions: []string{".ts", ".tsx", ".mts", ".cts"},
		},
		{
			Language:   "javascript",
			Command:    "typescript-language-server",
			Args:       []string{"--stdio"},
			Extensions: []string{".js", ".jsx", ".mjs", ".cjs"},
		},
		{
			Language:   "rust",
			Command:    "rust-analyzer",
			Extensions: []string{".rs"},
		},
		{
			Language:   "c",
			Command:    "clangd",
			Extensions: []string{".c", ".h"},
		},
		{
			Language:   "cpp",
			Command:    "clangd",
			Extensions: []string{".cpp", ".cc", ".cxx", ".hpp", ".hh"},
		},
		{
			Language:   "java",
			Command:    "jdtls",
			Extensions: []string{".java"},
		},
		{
			Language:   "ruby",
			Command:    "solargraph",
			Args:       []string{"stdio"},
			Extensions: []string{".rb"},
		},
		{
			Language:   "php",
			Command:    "intelephense",
			Args:       []string{"--stdio"},
			Extensions: []string{".php"},
		},
	}
}
