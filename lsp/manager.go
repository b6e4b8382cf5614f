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
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// =============================================================================
// MANAGER CONFIGURATION
// =============================================================================

// ManagerConfig tunes the behavior of a Manager and the servers it spawns.
type ManagerConfig struct {
	// RequestTimeout is the default per-request deadline applied by the
	// query operations when the caller's context carries none.
	RequestTimeout time.Duration

	// StartupTimeout bounds spawn plus the initialize handshake.
	StartupTimeout time.Duration

	// SpawnGraceWindow is how long a spawned process must survive before
	// the spawn attempt counts as successful.
	SpawnGraceWindow time.Duration

	// ShutdownTimeout bounds graceful server shutdown before a forced kill.
	ShutdownTimeout time.Duration

	// IdleTimeout shuts down servers unused for this long. Zero disables
	// idle collection.
	IdleTimeout time.Duration
}

// DefaultManagerConfig returns the default manager configuration.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		RequestTimeout:   30 * time.Second,
		StartupTimeout:   30 * time.Second,
		SpawnGraceWindow: 200 * time.Millisecond,
		ShutdownTimeout:  5 * time.Second,
		IdleTimeout:      10 * time.Minute,
	}
}

// =============================================================================
// MANAGER
// =============================================================================

// spawnAttempt lets concurrent callers for the same language share one
// in-flight spawn instead of racing to start duplicate processes.
type spawnAttempt struct {
	done   chan struct{}
	server *Server
	err    error
}

// Manager owns every LSP server for one workspace root.
//
// Description:
//
//	Spawns at most one server per language on demand, hands out running
//	servers to the query layer, and removes crashed servers from its table
//	so the next request respawns cleanly. An optional idle collector shuts
//	down servers that have gone unused.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Manager struct {
	rootPath string
	registry *ConfigRegistry
	cfg      ManagerConfig

	mu       sync.Mutex
	servers  map[string]*Server
	spawning map[string]*spawnAttempt
	closed   bool

	idleStop chan struct{}
	idleWG   sync.WaitGroup
}

// NewManager creates a manager for the given workspace root.
//
// Inputs:
//
//	rootPath - The workspace root passed to each server's initialize
//	registry - Language-to-command resolution table; nil uses the defaults
//	cfg - Timing configuration; zero fields take their defaults
func NewManager(rootPath string, registry *ConfigRegistry, cfg ManagerConfig) *Manager {
	if registry == nil {
		registry = NewConfigRegistry()
	}
	def := DefaultManagerConfig()
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = def.StartupTimeout
	}
	if cfg.SpawnGraceWindow <= 0 {
		cfg.SpawnGraceWindow = def.SpawnGraceWindow
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	m := &Manager{
		rootPath: rootPath,
		registry: registry,
		cfg:      cfg,
		servers:  make(map[string]*Server),
		spawning: make(map[string]*spawnAttempt),
		idleStop: make(chan struct{}),
	}

	if cfg.IdleTimeout > 0 {
		m.idleWG.Add(1)
		go m.idleCollector()
	}

	return m
}

// RootPath returns the workspace root this manager serves.
func (m *Manager) RootPath() string {
	return m.rootPath
}

// Registry returns the language configuration registry.
func (m *Manager) Registry() *ConfigRegistry {
	return m.registry
}

// RequestTimeout returns the default per-request deadline.
func (m *Manager) RequestTimeout() time.Duration {
	return m.cfg.RequestTimeout
}

// GetOrSpawn returns the running server for a language, spawning and
// initializing one if needed.
//
// Description:
//
//	At most one server runs per language. Concurrent callers for the same
//	language share a single spawn attempt; a crashed server has already
//	been removed from the table by its exit callback, so the next call
//	spawns a fresh process.
//
// Errors:
//
//	ErrUnsupportedLanguage - No configuration exists for the language
//	ErrServerUnavailable - Neither primary nor fallback command spawned
//	ErrInitializeFailed - The server spawned but the handshake failed
//	ErrManagerClosed - ShutdownAll has been called
func (m *Manager) GetOrSpawn(ctx context.Context, language string) (*Server, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}

	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, ErrManagerClosed
		}

		if srv, ok := m.servers[language]; ok {
			if srv.State() == ServerStateReady {
				m.mu.Unlock()
				return srv, nil
			}
			// Stale entry from a crash or shutdown race.
			delete(m.servers, language)
		}

		if attempt, ok := m.spawning[language]; ok {
			m.mu.Unlock()
			select {
			case <-attempt.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if attempt.err != nil {
				return nil, attempt.err
			}
			// Re-check: the shared server may have crashed already.
			if attempt.server.State() == ServerStateReady {
				return attempt.server, nil
			}
			continue
		}

		attempt := &spawnAttempt{done: make(chan struct{})}
		m.spawning[language] = attempt
		m.mu.Unlock()

		attempt.server, attempt.err = m.spawn(ctx, language)

		m.mu.Lock()
		delete(m.spawning, language)
		if attempt.err == nil {
			m.servers[language] = attempt.server
		}
		m.mu.Unlock()
		close(attempt.done)

		return attempt.server, attempt.err
	}
}

// spawn starts and initializes one server for the language.
func (m *Manager) spawn(ctx context.Context, language string) (*Server, error) {
	cfg, ok := m.registry.Get(language)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}

	srv := NewServer(cfg, m.rootPath, ServerOptions{
		SpawnGraceWindow: m.cfg.SpawnGraceWindow,
		ShutdownTimeout:  m.cfg.ShutdownTimeout,
	})
	srv.SetOnExit(m.handleExit)

	startCtx, cancel := context.WithTimeout(ctx, m.cfg.StartupTimeout)
	defer cancel()

	err := srv.Start(startCtx)
	recordServerSpawn(ctx, language, err == nil)
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// handleExit removes a crashed server so the next request respawns.
func (m *Manager) handleExit(s *Server) {
	m.mu.Lock()
	if current, ok := m.servers[s.Language()]; ok && current == s {
		delete(m.servers, s.Language())
	}
	m.mu.Unlock()

	slog.Warn("LSP server removed after unexpected exit",
		slog.String("language", s.Language()),
	)
}

// ServerForFile resolves the language for a file path and returns the
// running server for it, spawning one if needed.
func (m *Manager) ServerForFile(ctx context.Context, path string) (*Server, error) {
	ext := filepath.Ext(path)
	language, ok := m.registry.LanguageForExtension(ext)
	if !ok {
		return nil, fmt.Errorf("%w: extension %q", ErrUnsupportedLanguage, ext)
	}
	return m.GetOrSpawn(ctx, language)
}

// Server returns the running server for a language without spawning.
func (m *Manager) Server(language string) (*Server, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	srv, ok := m.servers[language]
	return srv, ok
}

// RunningLanguages returns the languages with a live server.
func (m *Manager) RunningLanguages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	langs := make([]string, 0, len(m.servers))
	for lang := range m.servers {
		langs = append(langs, lang)
	}
	return langs
}

// ReleaseFile closes the document session for a file on the server
// handling its language. No running server or no session is a no-op;
// callers releasing files before any query has run must not fail.
func (m *Manager) ReleaseFile(ctx context.Context, path string) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}

	language, ok := m.registry.LanguageForExtension(filepath.Ext(path))
	if !ok {
		return nil
	}

	m.mu.Lock()
	srv, running := m.servers[language]
	m.mu.Unlock()
	if !running {
		return nil
	}
	return srv.ReleaseFile(path)
}

// ReopenFile re-announces a file with fresh content on the server handling
// its language, bumping the session version. Used after the file is
// atomically replaced on disk. No running server is a no-op.
func (m *Manager) ReopenFile(ctx context.Context, path, content, language string) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}

	if language == "" {
		var ok bool
		language, ok = m.registry.LanguageForExtension(filepath.Ext(path))
		if !ok {
			return nil
		}
	}

	m.mu.Lock()
	srv, running := m.servers[language]
	m.mu.Unlock()
	if !running {
		return nil
	}
	return srv.ReopenFile(path, content)
}

// Shutdown stops the server for one language. Missing servers are not an
// error; shutdown is idempotent.
func (m *Manager) Shutdown(ctx context.Context, language string) error {
	m.mu.Lock()
	srv, ok := m.servers[language]
	if ok {
		delete(m.servers, language)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return srv.Shutdown(ctx)
}

// ShutdownAll stops every server and closes the manager. Further
// GetOrSpawn calls return ErrManagerClosed.
func (m *Manager) ShutdownAll(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	servers := make([]*Server, 0, len(m.servers))
	for lang, srv := range m.servers {
		servers = append(servers, srv)
		delete(m.servers, lang)
	}
	m.mu.Unlock()

	close(m.idleStop)
	m.idleWG.Wait()

	var firstErr error
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// idleCollector periodically shuts down servers unused past IdleTimeout.
func (m *Manager) idleCollector() {
	defer m.idleWG.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.idleStop:
			return
		case <-ticker.C:
			m.collectIdle()
		}
	}
}

func (m *Manager) collectIdle() {
	cutoff := time.Now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	var idle []*Server
	for lang, srv := range m.servers {
		if srv.LastUsed().Before(cutoff) {
			idle = append(idle, srv)
			delete(m.servers, lang)
		}
	}
	m.mu.Unlock()

	for _, srv := range idle {
		slog.Info("Shutting down idle LSP server",
			slog.String("language", srv.Language()),
		)
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ShutdownTimeout)
		_ = srv.Shutdown(ctx)
		cancel()
	}
}
