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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// incomingRequest is one request as seen by the fake server.
type incomingRequest struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// fakeServer simulates a language server on the other end of the pipes.
// The handler returns the raw response frames to write, letting tests
// control ordering, errors, and silence.
type fakeServer struct {
	toClient *io.PipeWriter
	writeMu  sync.Mutex
}

// startFakeServer wires a Protocol to an in-memory server driven by handle.
// A nil response from handle means the server stays silent for that request.
func startFakeServer(t *testing.T, handle func(incomingRequest) *Response) (*Protocol, *fakeServer) {
	t.Helper()

	clientReader, serverWriter := io.Pipe()
	serverReader, clientWriter := io.Pipe()

	p := NewProtocol(clientReader, clientWriter)
	fs := &fakeServer{toClient: serverWriter}

	go func() {
		decoder := NewDecoder()
		chunk := make([]byte, 4096)
		for {
			n, err := serverReader.Read(chunk)
			if n > 0 {
				msgs, decErr := decoder.Feed(chunk[:n])
				if decErr != nil {
					return
				}
				for _, msg := range msgs {
					var req incomingRequest
					if json.Unmarshal(msg, &req) != nil || req.ID == 0 {
						continue // notification
					}
					if resp := handle(req); resp != nil {
						fs.send(resp)
					}
				}
			}
			if err != nil {
				return
			}
		}
	}()

	t.Cleanup(func() {
		_ = serverWriter.Close()
		_ = clientWriter.Close()
		_ = clientReader.Close()
		_ = serverReader.Close()
	})

	return p, fs
}

func (fs *fakeServer) send(resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	fs.writeMu.Lock()
	defer fs.writeMu.Unlock()
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(data))
	_, _ = fs.toClient.Write([]byte(header))
	_, _ = fs.toClient.Write(data)
}

func okResponse(id int64, result string) *Response {
	return &Response{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  json.RawMessage(result),
	}
}

func TestProtocol_SendRequest(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		p, _ := startFakeServer(t, func(req incomingRequest) *Response {
			return okResponse(req.ID, `{"ok":true}`)
		})

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		go func() { _ = p.ReadLoop(ctx) }()

		resp, err := p.SendRequest(ctx, "test/echo", map[string]string{"k": "v"})
		if err != nil {
			t.Fatalf("SendRequest: %v", err)
		}
		if string(resp.Result) != `{"ok":true}` {
			t.Errorf("got result %s", resp.Result)
		}
	})

	t.Run("out of order responses route by id", func(t *testing.T) {
		var mu sync.Mutex
		var held *Response
		var p *Protocol
		var fs *fakeServer
		p, fs = startFakeServer(t, func(req incomingRequest) *Response {
			mu.Lock()
			defer mu.Unlock()
			if held == nil {
				// Hold the first response until the second request arrives.
				held = okResponse(req.ID, `"first"`)
				return nil
			}
			fs.send(okResponse(req.ID, `"second"`))
			return held
		})

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		go func() { _ = p.ReadLoop(ctx) }()

		var wg sync.WaitGroup
		results := make([]string, 2)
		errs := make([]error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			resp, err := p.SendRequest(ctx, "test/a", nil)
			if err == nil {
				results[0] = string(resp.Result)
			}
			errs[0] = err
		}()
		time.Sleep(50 * time.Millisecond)
		go func() {
			defer wg.Done()
			resp, err := p.SendRequest(ctx, "test/b", nil)
			if err == nil {
				results[1] = string(resp.Result)
			}
			errs[1] = err
		}()
		wg.Wait()

		if errs[0] != nil || errs[1] != nil {
			t.Fatalf("errors: %v / %v", errs[0], errs[1])
		}
		if results[0] != `"first"` {
			t.Errorf("request a got %s, want \"first\"", results[0])
		}
		if results[1] != `"second"` {
			t.Errorf("request b got %s, want \"second\"", results[1])
		}
	})

	t.Run("deadline maps to ErrRequestTimeout", func(t *testing.T) {
		p, _ := startFakeServer(t, func(req incomingRequest) *Response {
			return nil // never answer
		})

		go func() { _ = p.ReadLoop(context.Background()) }()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := p.SendRequest(ctx, "test/slow", nil)
		if !errors.Is(err, ErrRequestTimeout) {
			t.Fatalf("got %v, want ErrRequestTimeout", err)
		}
		if !strings.Contains(err.Error(), "test/slow") {
			t.Errorf("error should name the method: %v", err)
		}
	})

	t.Run("late response is dropped without affecting later requests", func(t *testing.T) {
		release := make(chan struct{})
		var p *Protocol
		var fs *fakeServer
		p, fs = startFakeServer(t, func(req incomingRequest) *Response {
			if req.Method == "test/slow" {
				go func() {
					<-release
					fs.send(okResponse(req.ID, `"late"`))
				}()
				return nil
			}
			return okResponse(req.ID, `"fresh"`)
		})

		go func() { _ = p.ReadLoop(context.Background()) }()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		_, err := p.SendRequest(ctx, "test/slow", nil)
		cancel()
		if !errors.Is(err, ErrRequestTimeout) {
			t.Fatalf("got %v, want ErrRequestTimeout", err)
		}

		// Deliver the stale response, then issue a fresh request.
		close(release)
		time.Sleep(50 * time.Millisecond)

		ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel2()
		resp, err := p.SendRequest(ctx2, "test/fast", nil)
		if err != nil {
			t.Fatalf("SendRequest after late response: %v", err)
		}
		if string(resp.Result) != `"fresh"` {
			t.Errorf("got %s, want \"fresh\"", resp.Result)
		}
	})

	t.Run("json-rpc error becomes LSPError", func(t *testing.T) {
		p, _ := startFakeServer(t, func(req incomingRequest) *Response {
			return &Response{
				JSONRPC: JSONRPCVersion,
				ID:      req.ID,
				Error:   &ResponseError{Code: -32601, Message: "method not found"},
			}
		})

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		go func() { _ = p.ReadLoop(ctx) }()

		_, err := p.SendRequest(ctx, "test/missing", nil)
		var lspErr *LSPError
		if !errors.As(err, &lspErr) {
			t.Fatalf("got %T (%v), want *LSPError", err, err)
		}
		if lspErr.Code != -32601 {
			t.Errorf("code = %d, want -32601", lspErr.Code)
		}
		if !lspErr.IsMethodNotFound() {
			t.Error("IsMethodNotFound() = false")
		}
	})

	t.Run("nil context is rejected", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewProtocol(strings.NewReader(""), &buf)
		//nolint:staticcheck // deliberately passing nil
		if _, err := p.SendRequest(nil, "test", nil); err == nil {
			t.Fatal("expected error for nil context")
		}
	})
}

func TestProtocol_Abort(t *testing.T) {
	t.Run("rejects pending requests with cause", func(t *testing.T) {
		p, _ := startFakeServer(t, func(req incomingRequest) *Response {
			return nil
		})

		go func() { _ = p.ReadLoop(context.Background()) }()

		errCh := make(chan error, 1)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_, err := p.SendRequest(ctx, "test/pending", nil)
			errCh <- err
		}()

		time.Sleep(50 * time.Millisecond)
		p.Abort(ErrServerCrashed)

		select {
		case err := <-errCh:
			if !errors.Is(err, ErrServerCrashed) {
				t.Fatalf("got %v, want ErrServerCrashed", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("pending request was not rejected")
		}
	})

	t.Run("requests after close are rejected", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewProtocol(strings.NewReader(""), &buf)
		p.Close()

		ctx := context.Background()
		if _, err := p.SendRequest(ctx, "test", nil); !errors.Is(err, ErrServerNotRunning) {
			t.Errorf("SendRequest: got %v, want ErrServerNotRunning", err)
		}
		if err := p.SendNotification("test", nil); !errors.Is(err, ErrServerNotRunning) {
			t.Errorf("SendNotification: got %v, want ErrServerNotRunning", err)
		}
		if !p.IsClosed() {
			t.Error("IsClosed() = false after Close")
		}
	})

	t.Run("abort is idempotent", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewProtocol(strings.NewReader(""), &buf)
		p.Abort(ErrServerCrashed)
		p.Abort(ErrServerNotRunning)
		if !p.IsClosed() {
			t.Error("IsClosed() = false after Abort")
		}
	})
}

func TestProtocol_ReadLoop(t *testing.T) {
	t.Run("EOF maps to ErrServerCrashed", func(t *testing.T) {
		reader, writer := io.Pipe()
		p := NewProtocol(reader, io.Discard)

		done := make(chan error, 1)
		go func() { done <- p.ReadLoop(context.Background()) }()

		_ = writer.Close()

		select {
		case err := <-done:
			if !errors.Is(err, ErrServerCrashed) {
				t.Fatalf("got %v, want ErrServerCrashed", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("ReadLoop did not return on EOF")
		}
	})

	t.Run("EOF after orchestrated close returns nil", func(t *testing.T) {
		reader, writer := io.Pipe()
		p := NewProtocol(reader, io.Discard)

		done := make(chan error, 1)
		go func() { done <- p.ReadLoop(context.Background()) }()

		p.Close()
		_ = writer.Close()

		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("got %v, want nil", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("ReadLoop did not return")
		}
	})

	t.Run("server notifications are ignored", func(t *testing.T) {
		notif := `{"jsonrpc":"2.0","method":"window/logMessage","params":{"type":3,"message":"hi"}}`
		resp := `{"jsonrpc":"2.0","id":1,"result":"after"}`
		input := frame(notif) + frame(resp)

		p := NewProtocol(strings.NewReader(input), io.Discard)

		// Register a pending slot for id 1 by hand.
		ch := make(chan pendingResult, 1)
		p.pendingMu.Lock()
		p.pending[1] = ch
		p.pendingMu.Unlock()

		_ = p.ReadLoop(context.Background()) // runs to EOF

		select {
		case result := <-ch:
			if result.resp == nil || string(result.resp.Result) != `"after"` {
				t.Errorf("got %+v", result)
			}
		default:
			t.Fatal("response after notification was not dispatched")
		}
	})
}

func TestProtocol_WriteFraming(t *testing.T) {
	t.Run("notification omits id", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewProtocol(strings.NewReader(""), &buf)

		if err := p.SendNotification("textDocument/didOpen", map[string]string{"uri": "file:///x"}); err != nil {
			t.Fatalf("SendNotification: %v", err)
		}

		output := buf.String()
		if !strings.HasPrefix(output, "Content-Length: ") {
			t.Errorf("missing header: %s", output)
		}
		if strings.Contains(output, `"id"`) {
			t.Errorf("notification must not carry an id: %s", output)
		}
	})

	t.Run("header announces exact body length", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewProtocol(strings.NewReader(""), &buf)

		if err := p.SendNotification("exit", nil); err != nil {
			t.Fatalf("SendNotification: %v", err)
		}

		output := buf.String()
		idx := strings.Index(output, headerTerminator)
		if idx < 0 {
			t.Fatalf("no header terminator in %q", output)
		}
		body := output[idx+len(headerTerminator):]
		want := fmt.Sprintf("Content-Length: %d", len(body))
		if !strings.HasPrefix(output, want) {
			t.Errorf("header %q does not match body length %d", output[:idx], len(body))
		}
	})
}
