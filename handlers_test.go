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
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/codeintel/lsp"
)

func init() {
	// Set Gin to test mode to reduce noise
	gin.SetMode(gin.TestMode)
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "go.mod"), []byte("module fixture\n\ngo 1.21\n"), 0644); err != nil {
		t.Fatalf("write go.mod: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n\nfunc main() {}\n"), 0644); err != nil {
		t.Fatalf("write main.go: %v", err)
	}

	svc, err := NewService(DefaultServiceConfig(root))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close(contextForTest()) })
	return svc
}

func setupTestRouter(svc *Service) *gin.Engine {
	router := gin.New()
	handlers := NewHandlers(svc)
	v1 := router.Group("/v1")
	RegisterRoutes(v1, handlers)
	return router
}

func postJSON(router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req, _ := http.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandlers_HandleHealth(t *testing.T) {
	router := setupTestRouter(newTestService(t))

	req, _ := http.NewRequest("GET", "/v1/codeintel/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status 'ok', got %q", resp.Status)
	}
	if resp.Version != ServiceVersion {
		t.Errorf("expected version %q, got %q", ServiceVersion, resp.Version)
	}
}

func TestHandlers_HandleLanguages(t *testing.T) {
	router := setupTestRouter(newTestService(t))

	req, _ := http.NewRequest("GET", "/v1/codeintel/languages", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp LanguagesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(resp.Detected) != 1 || resp.Detected[0] != "go" {
		t.Errorf("Detected = %v, want [go]", resp.Detected)
	}
	if len(resp.Supported) == 0 {
		t.Error("Supported should not be empty")
	}
	if len(resp.Running) != 0 {
		t.Errorf("Running = %v, want empty", resp.Running)
	}
}

func TestHandlers_HandleServers_Empty(t *testing.T) {
	router := setupTestRouter(newTestService(t))

	req, _ := http.NewRequest("GET", "/v1/codeintel/servers", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if body := w.Body.String(); body != "[]" {
		t.Errorf("body = %s, want []", body)
	}
}

func TestHandlers_HandleDefinition(t *testing.T) {
	t.Run("invalid body", func(t *testing.T) {
		router := setupTestRouter(newTestService(t))

		w := postJSON(router, "/v1/codeintel/definition", map[string]string{"file": ""})
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
		assertErrorCode(t, w, "INVALID_REQUEST")
	})

	t.Run("zero line fails validation", func(t *testing.T) {
		svc := newTestService(t)
		router := setupTestRouter(svc)

		w := postJSON(router, "/v1/codeintel/definition", PositionRequest{
			File: filepath.Join(svc.Root(), "main.go"), Line: 0, Character: 1,
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("relative path", func(t *testing.T) {
		router := setupTestRouter(newTestService(t))

		w := postJSON(router, "/v1/codeintel/definition", PositionRequest{
			File: "main.go", Line: 1, Character: 1,
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
		assertErrorCode(t, w, "INVALID_PATH")
	})

	t.Run("path outside root", func(t *testing.T) {
		router := setupTestRouter(newTestService(t))

		w := postJSON(router, "/v1/codeintel/definition", PositionRequest{
			File: "/etc/passwd", Line: 1, Character: 1,
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
		assertErrorCode(t, w, "PATH_OUTSIDE_ROOT")
	})

	t.Run("missing file", func(t *testing.T) {
		svc := newTestService(t)
		router := setupTestRouter(svc)

		w := postJSON(router, "/v1/codeintel/definition", PositionRequest{
			File: filepath.Join(svc.Root(), "ghost.go"), Line: 1, Character: 1,
		})
		if w.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
		}
		assertErrorCode(t, w, "FILE_NOT_FOUND")
	})
}

func TestHandlers_HandleSymbols_UnsupportedLanguage(t *testing.T) {
	svc := newTestService(t)
	router := setupTestRouter(svc)

	unsupported := filepath.Join(svc.Root(), "notes.txt")
	if err := os.WriteFile(unsupported, []byte("hello"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	w := postJSON(router, "/v1/codeintel/symbols", SymbolsRequest{File: unsupported})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	assertErrorCode(t, w, "UNSUPPORTED_LANGUAGE")
}

func TestHandlers_HandleStartServer(t *testing.T) {
	t.Run("invalid body", func(t *testing.T) {
		router := setupTestRouter(newTestService(t))

		w := postJSON(router, "/v1/codeintel/servers", map[string]string{})
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("unsupported language", func(t *testing.T) {
		router := setupTestRouter(newTestService(t))

		w := postJSON(router, "/v1/codeintel/servers", StartServerRequest{Language: "cobol"})
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
		assertErrorCode(t, w, "UNSUPPORTED_LANGUAGE")
	})
}

// newScriptedService builds a service whose "scripted" language runs a
// minimal shell script speaking just enough LSP to finish the initialize
// handshake and stay alive until its stdin closes.
func newScriptedService(t *testing.T) *Service {
	t.Helper()
	root := t.TempDir()

	script := `#!/bin/sh
read -r header
read -r _separator
length=$(printf '%s' "$header" | tr -d '\r' | cut -d' ' -f2)
head -c "$length" > /dev/null
resp='{"jsonrpc":"2.0","id":1,"result":{"capabilities":{"hoverProvider":true}}}'
printf 'Content-Length: %s\r\n\r\n%s' "${#resp}" "$resp"
cat > /dev/null
`
	path := filepath.Join(root, "scripted-lsp.sh")
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	svc, err := NewService(ServiceConfig{
		Root: root,
		Manager: lsp.ManagerConfig{
			RequestTimeout:   5 * time.Second,
			StartupTimeout:   10 * time.Second,
			SpawnGraceWindow: 50 * time.Millisecond,
			ShutdownTimeout:  200 * time.Millisecond,
			IdleTimeout:      -1,
		},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close(contextForTest()) })

	svc.Manager().Registry().Register(lsp.LanguageConfig{
		Language:   "scripted",
		Command:    path,
		Extensions: []string{".scripted"},
	})
	return svc
}

func TestHandlers_ServerLifecycle(t *testing.T) {
	svc := newScriptedService(t)
	router := setupTestRouter(svc)

	// Start: the response reflects the server the spawn itself returned.
	w := postJSON(router, "/v1/codeintel/servers", StartServerRequest{Language: "scripted"})
	if w.Code != http.StatusOK {
		t.Fatalf("start: expected status %d, got %d (%s)", http.StatusOK, w.Code, w.Body.String())
	}
	var status ServerStatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if status.Language != "scripted" {
		t.Errorf("Language = %q, want scripted", status.Language)
	}
	if status.State != "ready" {
		t.Errorf("State = %q, want ready", status.State)
	}
	if status.Command == "" {
		t.Error("Command should not be empty")
	}

	// The running list shows it.
	req, _ := http.NewRequest("GET", "/v1/codeintel/servers", nil)
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req)
	var servers []ServerStatusResponse
	if err := json.Unmarshal(w2.Body.Bytes(), &servers); err != nil {
		t.Fatalf("failed to unmarshal servers: %v", err)
	}
	if len(servers) != 1 || servers[0].Language != "scripted" {
		t.Errorf("servers = %+v, want one scripted entry", servers)
	}

	// Stop removes it.
	req, _ = http.NewRequest("DELETE", "/v1/codeintel/servers/scripted", nil)
	w3 := httptest.NewRecorder()
	router.ServeHTTP(w3, req)
	if w3.Code != http.StatusNoContent {
		t.Fatalf("stop: expected status %d, got %d", http.StatusNoContent, w3.Code)
	}

	req, _ = http.NewRequest("GET", "/v1/codeintel/servers", nil)
	w4 := httptest.NewRecorder()
	router.ServeHTTP(w4, req)
	if body := w4.Body.String(); body != "[]" {
		t.Errorf("servers after stop = %s, want []", body)
	}
}

func TestHandlers_HandleStopServer_NotRunning(t *testing.T) {
	router := setupTestRouter(newTestService(t))

	req, _ := http.NewRequest("DELETE", "/v1/codeintel/servers/go", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("expected status %d, got %d", http.StatusNoContent, w.Code)
	}
}

func TestHandlers_RequestIDPropagation(t *testing.T) {
	router := setupTestRouter(newTestService(t))

	w := postJSON(router, "/v1/codeintel/definition", map[string]string{})
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, want string) {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal error response: %v", err)
	}
	if resp.Code != want {
		t.Errorf("error code = %q, want %q (error: %s)", resp.Code, want, resp.Error)
	}
}
