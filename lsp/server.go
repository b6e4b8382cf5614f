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
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

// =============================================================================
// SERVER STATE
// =============================================================================

// ServerState represents the lifecycle state of an LSP server.
type ServerState int

const (
	// ServerStateUninitialized is the initial state before Start is called.
	ServerStateUninitialized ServerState = iota

	// ServerStateStarting means the server process is spawning.
	ServerStateStarting

	// ServerStateInitializing means the process is up but the initialize
	// handshake has not completed yet.
	ServerStateInitializing

	// ServerStateReady means the server is initialized and ready for requests.
	ServerStateReady

	// ServerStateStopping means the server is shutting down.
	ServerStateStopping

	// ServerStateStopped means the server has terminated.
	ServerStateStopped
)

// String returns a human-readable state name.
func (s ServerState) String() string {
	names := []string{"uninitialized", "starting", "initializing", "ready", "stopping", "stopped"}
	if int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// =============================================================================
// SERVER OPTIONS
// =============================================================================

// ServerOptions tunes per-server timing behavior.
type ServerOptions struct {
	// SpawnGraceWindow is how long a freshly spawned process must survive
	// before the spawn attempt is considered to have succeeded. It only
	// bounds detection of immediate spawn failure; true readiness is the
	// successful initialize result.
	SpawnGraceWindow time.Duration

	// ShutdownTimeout bounds both the graceful shutdown request and the
	// wait for process exit before a forced kill.
	ShutdownTimeout time.Duration
}

// DefaultServerOptions returns the default timing options.
func DefaultServerOptions() ServerOptions {
	return ServerOptions{
		SpawnGraceWindow: 200 * time.Millisecond,
		ShutdownTimeout:  5 * time.Second,
	}
}

// =============================================================================
// SERVER
// =============================================================================

// Server represents one running LSP server process.
//
// Description:
//
//	Owns the subprocess for a language and everything attached to it: the
//	stdio pipes, the protocol handler with its request correlation table,
//	and the cache of documents announced via didOpen. Drives the process
//	through spawn (primary then fallback command), the initialize
//	handshake, and teardown.
//
// Thread Safety:
//
//	Safe for concurrent use after Start() returns successfully.
type Server struct {
	config   LanguageConfig
	rootPath string
	opts     ServerOptions

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	command string // the command actually spawned (primary or fallback)

	protocol     *Protocol
	capabilities ServerCapabilities

	state   ServerState
	stateMu sync.RWMutex

	docs   map[string]*DocumentSession
	docsMu sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	readDone chan struct{}
	procDone chan struct{}

	// onExit is invoked once when the process exits outside an
	// orchestrated shutdown. Set by the manager before Start.
	onExit func(*Server)

	lastUsed   time.Time
	lastUsedMu sync.Mutex
}

// NewServer creates a new server instance (not started).
func NewServer(config LanguageConfig, rootPath string, opts ServerOptions) *Server {
	if opts.SpawnGraceWindow <= 0 {
		opts.SpawnGraceWindow = DefaultServerOptions().SpawnGraceWindow
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultServerOptions().ShutdownTimeout
	}
	return &Server{
		config:   config,
		rootPath: rootPath,
		opts:     opts,
		state:    ServerStateUninitialized,
		docs:     make(map[string]*DocumentSession),
		lastUsed: time.Now(),
	}
}

// SetOnExit registers a callback invoked when the process exits outside an
// orchestrated shutdown. Must be called before Start.
func (s *Server) SetOnExit(fn func(*Server)) {
	s.onExit = fn
}

// Start spawns the server process and performs the initialize handshake.
//
// Description:
//
//	Attempts the primary command, then the fallback if one is configured.
//	A spawn attempt succeeds when the process survives the spawn grace
//	window without exiting; the server only becomes Ready once the
//	initialize request returns a successful result (which is the sole
//	readiness signal) and the initialized notification has been sent.
//
// Errors:
//
//	ErrServerUnavailable - Neither primary nor fallback could be spawned
//	ErrServerAlreadyStarted - Start called on a non-uninitialized server
//	ErrInitializeFailed - LSP initialize handshake failed
//
// Thread Safety:
//
//	Safe for concurrent use, but only the first caller will start the server.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}

	s.stateMu.Lock()
	if s.state != ServerStateUninitialized {
		s.stateMu.Unlock()
		return ErrServerAlreadyStarted
	}
	s.state = ServerStateStarting
	s.stateMu.Unlock()

	if err := s.spawn(); err != nil {
		s.setState(ServerStateStopped)
		return err
	}

	s.protocol = NewProtocol(s.stdout, s.stdin)
	s.readDone = make(chan struct{})
	go func() {
		defer close(s.readDone)
		if err := s.protocol.ReadLoop(s.ctx); err != nil {
			// EOF outside an orchestrated shutdown: every pending
			// request rejects with the crash outcome.
			s.protocol.Abort(ErrServerCrashed)
		}
	}()

	s.setState(ServerStateInitializing)
	if err := s.initialize(ctx); err != nil {
		_ = s.Shutdown(ctx)
		return fmt.Errorf("%w: %v", ErrInitializeFailed, err)
	}

	s.setState(ServerStateReady)
	s.touchLastUsed()
	go s.monitor()

	slog.Info("LSP server ready",
		slog.String("language", s.config.Language),
		slog.String("command", s.command),
		slog.Bool("definition", s.capabilities.HasDefinitionProvider()),
		slog.Bool("references", s.capabilities.HasReferencesProvider()),
		slog.Bool("hover", s.capabilities.HasHoverProvider()),
		slog.Bool("symbols", s.capabilities.HasDocumentSymbolProvider()),
	)

	return nil
}

// spawn attempts the primary command, then the fallback. The server is
// considered spawned when the process survives the grace window.
func (s *Server) spawn() error {
	primaryErr := s.trySpawn(s.config.Command, s.config.Args)
	if primaryErr == nil {
		return nil
	}

	if !s.config.HasFallback() {
		slog.Warn("LSP server spawn failed",
			slog.String("language", s.config.Language),
			slog.String("command", s.config.Command),
			slog.String("error", primaryErr.Error()),
		)
		return fmt.Errorf("%w: %s: %v", ErrServerUnavailable, s.config.Command, primaryErr)
	}

	slog.Debug("Primary LSP command failed, trying fallback",
		slog.String("language", s.config.Language),
		slog.String("primary", s.config.Command),
		slog.String("fallback", s.config.FallbackCommand),
	)

	fallbackErr := s.trySpawn(s.config.FallbackCommand, s.config.FallbackArgs)
	if fallbackErr == nil {
		return nil
	}

	slog.Warn("LSP server spawn failed for primary and fallback",
		slog.String("language", s.config.Language),
		slog.String("primary_error", primaryErr.Error()),
		slog.String("fallback_error", fallbackErr.Error()),
	)
	return fmt.Errorf("%w: %s (%v); fallback %s (%v)",
		ErrServerUnavailable, s.config.Command, primaryErr, s.config.FallbackCommand, fallbackErr)
}

// trySpawn starts one command with stdio pipes and waits out the grace
// window. On failure all resources of the attempt are released.
func (s *Server) trySpawn(command string, args []string) error {
	path, err := exec.LookPath(command)
	if err != nil {
		return fmt.Errorf("not installed: %w", err)
	}

	// Server context is independent of the caller's request context.
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.cmd = exec.CommandContext(s.ctx, path, args...)
	s.cmd.Dir = s.rootPath
	// stderr carries unstructured diagnostics only; never parsed.
	s.cmd.Stderr = io.Discard

	s.stdin, err = s.cmd.StdinPipe()
	if err != nil {
		s.releaseProcess()
		return fmt.Errorf("stdin pipe: %w", err)
	}
	s.stdout, err = s.cmd.StdoutPipe()
	if err != nil {
		s.releaseProcess()
		return fmt.Errorf("stdout pipe: %w", err)
	}

	if err := s.cmd.Start(); err != nil {
		s.releaseProcess()
		return fmt.Errorf("start process: %w", err)
	}

	s.procDone = make(chan struct{})
	go func(done chan struct{}, cmd *exec.Cmd) {
		_ = cmd.Wait()
		close(done)
	}(s.procDone, s.cmd)

	select {
	case <-s.procDone:
		s.releaseProcess()
		return fmt.Errorf("exited during startup grace window")
	case <-time.After(s.opts.SpawnGraceWindow):
	}

	s.command = command
	return nil
}

// releaseProcess tears down the resources of a failed spawn attempt.
func (s *Server) releaseProcess() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.stdin != nil {
		_ = s.stdin.Close()
		s.stdin = nil
	}
	if s.stdout != nil {
		_ = s.stdout.Close()
		s.stdout = nil
	}
	s.cmd = nil
}

// initialize performs the LSP initialize handshake.
func (s *Server) initialize(ctx context.Context) error {
	rootURI := pathToURI(s.rootPath)
	params := InitializeParams{
		ProcessID: os.Getpid(),
		RootURI:   rootURI,
		RootPath:  s.rootPath,
		Capabilities: ClientCapabilities{
			TextDocument: TextDocumentClientCapabilities{
				Synchronization: &TextDocumentSyncClientCapabilities{
					DidSave: true,
				},
				Definition: &DefinitionCapabilities{LinkSupport: true},
				References: &ReferencesCapabilities{},
				Hover: &HoverCapabilities{
					ContentFormat: []string{"markdown", "plaintext"},
				},
				DocumentSymbol: &DocumentSymbolCapabilities{
					HierarchicalDocumentSymbolSupport: true,
				},
			},
		},
		WorkspaceFolders: []WorkspaceFolder{
			{URI: rootURI, Name: "workspace"},
		},
	}
	if s.config.InitializationOptions != nil {
		params.InitializationOptions = s.config.InitializationOptions
	}

	resp, err := s.protocol.SendRequest(ctx, "initialize", params)
	if err != nil {
		return fmt.Errorf("initialize request: %w", err)
	}

	var result InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return fmt.Errorf("parse initialize result: %w", err)
	}
	s.capabilities = result.Capabilities

	if err := s.protocol.SendNotification("initialized", struct{}{}); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}
	return nil
}

// monitor watches for the process exiting outside an orchestrated shutdown.
func (s *Server) monitor() {
	<-s.procDone

	s.stateMu.Lock()
	if s.state == ServerStateStopping || s.state == ServerStateStopped {
		s.stateMu.Unlock()
		return
	}
	s.state = ServerStateStopped
	s.stateMu.Unlock()

	slog.Warn("LSP server exited unexpectedly",
		slog.String("language", s.config.Language),
		slog.String("command", s.command),
	)
	recordServerCrash(s.config.Language)

	s.protocol.Abort(ErrServerCrashed)
	if s.cancel != nil {
		s.cancel()
	}
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	if s.stdout != nil {
		_ = s.stdout.Close()
	}

	if s.onExit != nil {
		s.onExit(s)
	}
}

// Shutdown gracefully shuts down the server.
//
// Description:
//
//	Sends shutdown and exit messages to the server, then waits for the
//	process to terminate, killing it if it does not. Every step is
//	best-effort: a failed shutdown or exit never blocks the forced
//	termination, so process and pipe release happens on every exit path.
//
// Thread Safety:
//
//	Safe for concurrent use. Multiple calls are idempotent.
func (s *Server) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.stateMu.Lock()
	if s.state == ServerStateStopped || s.state == ServerStateStopping {
		s.stateMu.Unlock()
		return nil
	}
	s.state = ServerStateStopping
	s.stateMu.Unlock()

	slog.Info("Shutting down LSP server",
		slog.String("language", s.config.Language),
	)

	defer s.cleanup()

	if s.protocol != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, s.opts.ShutdownTimeout)
		defer cancel()

		// Graceful sequence; errors deliberately ignored.
		_, _ = s.protocol.SendRequest(shutdownCtx, "shutdown", nil)
		_ = s.protocol.SendNotification("exit", nil)
		s.protocol.Close()
	}

	if s.stdin != nil {
		_ = s.stdin.Close()
	}

	if s.cmd != nil && s.cmd.Process != nil {
		select {
		case <-s.procDone:
		case <-time.After(s.opts.ShutdownTimeout):
			_ = s.cmd.Process.Kill()
			<-s.procDone
		}
	}

	if s.cancel != nil {
		s.cancel()
	}

	if s.readDone != nil {
		select {
		case <-s.readDone:
		case <-time.After(time.Second):
		}
	}

	return nil
}

// cleanup releases resources and sets state to stopped.
func (s *Server) cleanup() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	if s.stdout != nil {
		_ = s.stdout.Close()
	}
	s.setState(ServerStateStopped)
}

// =============================================================================
// DOCUMENT SESSIONS
// =============================================================================

// EnsureOpen announces a file to the server if it has not been opened yet.
//
// Description:
//
//	Looks up the cached document session by absolute path; if absent, reads
//	the file and sends textDocument/didOpen with the full text at version 1.
//	The protocol requires this before definition/references/hover/symbol
//	queries touch the file. Subsequent calls are no-ops.
func (s *Server) EnsureOpen(ctx context.Context, path string) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}
	if s.State() != ServerStateReady {
		return ErrServerNotRunning
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	s.docsMu.Lock()
	defer s.docsMu.Unlock()

	if _, ok := s.docs[abs]; ok {
		return nil
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	session := &DocumentSession{
		URI:      pathToURI(abs),
		Version:  1,
		Language: s.config.Language,
	}

	params := DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{
			URI:        session.URI,
			LanguageID: session.Language,
			Version:    session.Version,
			Text:       string(content),
		},
	}
	if err := s.Notify("textDocument/didOpen", params); err != nil {
		return err
	}

	s.docs[abs] = session
	return nil
}

// IsOpen returns true if a document session exists for the file.
func (s *Server) IsOpen(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	s.docsMu.Lock()
	defer s.docsMu.Unlock()
	_, ok := s.docs[abs]
	return ok
}

// ReleaseFile closes a document session, sending textDocument/didClose.
// A missing session is not an error.
func (s *Server) ReleaseFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	s.docsMu.Lock()
	defer s.docsMu.Unlock()

	session, ok := s.docs[abs]
	if !ok {
		return nil
	}
	delete(s.docs, abs)

	params := DidCloseTextDocumentParams{
		TextDocument: TextDocumentIdentifier{URI: session.URI},
	}
	return s.Notify("textDocument/didClose", params)
}

// ReopenFile re-announces a file with fresh content, incrementing the
// session version. Used after atomic file replacement on disk.
func (s *Server) ReopenFile(path, content string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	s.docsMu.Lock()
	defer s.docsMu.Unlock()

	version := 1
	if old, ok := s.docs[abs]; ok {
		version = old.Version + 1
	}

	session := &DocumentSession{
		URI:      pathToURI(abs),
		Version:  version,
		Language: s.config.Language,
	}

	params := DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{
			URI:        session.URI,
			LanguageID: session.Language,
			Version:    session.Version,
			Text:       content,
		},
	}
	if err := s.Notify("textDocument/didOpen", params); err != nil {
		return err
	}

	s.docs[abs] = session
	return nil
}

// =============================================================================
// ACCESSORS
// =============================================================================

// State returns the current server state.
func (s *Server) State() ServerState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Language returns the language this server handles.
func (s *Server) Language() string {
	return s.config.Language
}

// RootPath returns the workspace root path.
func (s *Server) RootPath() string {
	return s.rootPath
}

// Command returns the command that was actually spawned.
func (s *Server) Command() string {
	return s.command
}

// Capabilities returns the capabilities reported during initialization.
func (s *Server) Capabilities() ServerCapabilities {
	return s.capabilities
}

// LastUsed returns when the server was last used.
func (s *Server) LastUsed() time.Time {
	s.lastUsedMu.Lock()
	defer s.lastUsedMu.Unlock()
	return s.lastUsed
}

// =============================================================================
// REQUEST METHODS
// =============================================================================

// Request sends an LSP request and waits for the response.
func (s *Server) Request(ctx context.Context, method string, params interface{}) (*Response, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if s.State() != ServerStateReady {
		return nil, ErrServerNotRunning
	}
	s.touchLastUsed()
	return s.protocol.SendRequest(ctx, method, params)
}

// Notify sends an LSP notification (no response expected).
func (s *Server) Notify(method string, params interface{}) error {
	st := s.State()
	if st != ServerStateReady && st != ServerStateInitializing {
		return ErrServerNotRunning
	}
	s.touchLastUsed()
	return s.protocol.SendNotification(method, params)
}

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

func (s *Server) setState(state ServerState) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
}

func (s *Server) touchLastUsed() {
	s.lastUsedMu.Lock()
	s.lastUsed = time.Now()
	s.lastUsedMu.Unlock()
}
