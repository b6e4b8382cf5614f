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
	"io"
	"sync"
	"sync/atomic"
)

// JSONRPCVersion is the JSON-RPC version used by LSP.
const JSONRPCVersion = "2.0"

// =============================================================================
// JSON-RPC MESSAGE TYPES
// =============================================================================

// Request represents a JSON-RPC request.
type Request struct {
	// JSONRPC is the protocol version, always "2.0".
	JSONRPC string `json:"jsonrpc"`

	// ID is the request identifier. Omit for notifications.
	ID int64 `json:"id,omitempty"`

	// Method is the method to invoke.
	Method string `json:"method"`

	// Params contains the method parameters.
	Params interface{} `json:"params,omitempty"`
}

// Response represents a JSON-RPC response.
type Response struct {
	// JSONRPC is the protocol version, always "2.0".
	JSONRPC string `json:"jsonrpc"`

	// ID is the request identifier this response corresponds to.
	ID int64 `json:"id"`

	// Result contains the method result (mutually exclusive with Error).
	Result json.RawMessage `json:"result,omitempty"`

	// Error contains error information (mutually exclusive with Result).
	Error *ResponseError `json:"error,omitempty"`
}

// ResponseError represents a JSON-RPC error.
type ResponseError struct {
	// Code is the error code.
	Code int `json:"code"`

	// Message is a short description of the error.
	Message string `json:"message"`

	// Data contains additional error information.
	Data interface{} `json:"data,omitempty"`
}

// Notification represents a JSON-RPC notification (no ID, no response).
type Notification struct {
	// JSONRPC is the protocol version, always "2.0".
	JSONRPC string `json:"jsonrpc"`

	// Method is the method to invoke.
	Method string `json:"method"`

	// Params contains the method parameters.
	Params interface{} `json:"params,omitempty"`
}

// =============================================================================
// PROTOCOL HANDLER
// =============================================================================

// pendingResult carries either a response or a terminal failure to the
// goroutine waiting on a request slot.
type pendingResult struct {
	resp *Response
	err  error
}

// Protocol handles JSON-RPC communication over stdin/stdout.
//
// Description:
//
//	Implements the LSP base protocol using Content-Length framed messages.
//	Requests are correlated to responses by a monotonically increasing id;
//	each outstanding request owns exactly one slot in the pending table,
//	consumed once by a response, a protocol error, a timeout, or an abort.
//	Writes to the connection are serialized (single writer), while responses
//	may arrive and be dispatched in any order.
//
// Thread Safety:
//
//	Safe for concurrent use. Multiple goroutines can send requests
//	and notifications simultaneously.
type Protocol struct {
	reader  io.Reader
	writer  io.Writer
	writeMu sync.Mutex

	nextID    int64
	pending   map[int64]chan pendingResult
	pendingMu sync.Mutex

	closed int32 // atomic: 1 if closed
}

// NewProtocol creates a protocol handler over the given reader (server
// stdout) and writer (server stdin).
func NewProtocol(r io.Reader, w io.Writer) *Protocol {
	return &Protocol{
		reader:  r,
		writer:  w,
		pending: make(map[int64]chan pendingResult),
	}
}

// SendRequest sends a request and waits for the response.
//
// Description:
//
//	Sends a JSON-RPC request and blocks until a response arrives or the
//	context ends. A context deadline expiring before the response maps to
//	ErrRequestTimeout; a response arriving after that is dropped without
//	affecting any other pending or future request.
//
// Inputs:
//
//	ctx - Context for cancellation and timeout
//	method - The LSP method to invoke (e.g., "textDocument/definition")
//	params - Method parameters (will be JSON-marshaled)
//
// Outputs:
//
//	*Response - The server's response
//	error - Non-nil if sending failed, the deadline passed, the server
//	        answered with a JSON-RPC error (*LSPError), or the connection
//	        was aborted
func (p *Protocol) SendRequest(ctx context.Context, method string, params interface{}) (*Response, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if atomic.LoadInt32(&p.closed) == 1 {
		return nil, ErrServerNotRunning
	}

	id := atomic.AddInt64(&p.nextID, 1)

	req := Request{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Method:  method,
		Params:  params,
	}

	resultCh := make(chan pendingResult, 1)
	p.pendingMu.Lock()
	p.pending[id] = resultCh
	p.pendingMu.Unlock()

	defer func() {
		p.pendingMu.Lock()
		delete(p.pending, id)
		p.pendingMu.Unlock()
	}()

	if err := p.writeMessage(req); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrRequestTimeout, method)
		}
		return nil, ctx.Err()
	case result := <-resultCh:
		if result.err != nil {
			return nil, result.err
		}
		if result.resp.Error != nil {
			return nil, &LSPError{
				Code:    result.resp.Error.Code,
				Message: result.resp.Error.Message,
				Data:    result.resp.Error.Data,
			}
		}
		return result.resp, nil
	}
}

// SendNotification sends a notification (no response expected, no table entry).
func (p *Protocol) SendNotification(method string, params interface{}) error {
	if atomic.LoadInt32(&p.closed) == 1 {
		return ErrServerNotRunning
	}

	notif := Notification{
		JSONRPC: JSONRPCVersion,
		Method:  method,
		Params:  params,
	}
	return p.writeMessage(notif)
}

// writeMessage marshals and writes a message with Content-Length header.
// The write mutex keeps header and body of concurrent messages from
// interleaving on the pipe.
func (p *Protocol) writeMessage(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	header := fmt.Sprintf("Content-Length: %d%s", len(data), headerTerminator)
	if _, err := p.writer.Write([]byte(header)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := p.writer.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// ReadLoop reads from the connection and dispatches decoded messages.
//
// Description:
//
//	Continuously reads raw chunks from the server's stdout pipe, feeds them
//	to the framing decoder, and routes each complete message. Responses are
//	matched to pending requests by id; server-initiated notifications are
//	ignored. Returns ErrServerCrashed when the pipe reaches EOF outside an
//	orchestrated shutdown.
//
// Thread Safety:
//
//	Must be called from a single goroutine. Safe to run while other
//	goroutines call SendRequest/SendNotification.
func (p *Protocol) ReadLoop(ctx context.Context) error {
	if p.reader == nil {
		return fmt.Errorf("no reader configured")
	}

	decoder := NewDecoder()
	chunk := make([]byte, 32*1024)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := p.reader.Read(chunk)
		if n > 0 {
			msgs, decErr := decoder.Feed(chunk[:n])
			for _, msg := range msgs {
				p.handleMessage(msg)
			}
			if decErr != nil {
				return fmt.Errorf("decode: %w", decErr)
			}
		}
		if err != nil {
			if atomic.LoadInt32(&p.closed) == 1 {
				return nil
			}
			if err == io.EOF || errors.Is(err, io.ErrClosedPipe) {
				return ErrServerCrashed
			}
			return fmt.Errorf("read: %w", err)
		}
	}
}

// handleMessage routes a received message to its pending slot.
// Messages for ids with no slot (timed out, aborted, or never issued)
// are discarded.
func (p *Protocol) handleMessage(msg json.RawMessage) {
	var resp Response
	if err := json.Unmarshal(msg, &resp); err != nil || resp.ID == 0 {
		// Server-initiated notification (window/logMessage and friends)
		// or an unparsable frame; neither has a pending slot.
		return
	}

	p.pendingMu.Lock()
	ch, ok := p.pending[resp.ID]
	if ok {
		delete(p.pending, resp.ID)
	}
	p.pendingMu.Unlock()

	if ok {
		select {
		case ch <- pendingResult{resp: &resp}:
		default:
		}
	}
}

// Abort marks the protocol as closed and rejects every pending request
// with the given cause (e.g., ErrServerCrashed). Idempotent.
func (p *Protocol) Abort(cause error) {
	if !atomic.CompareAndSwapInt32(&p.closed, 0, 1) {
		return
	}

	p.pendingMu.Lock()
	for id, ch := range p.pending {
		select {
		case ch <- pendingResult{err: cause}:
		default:
		}
		delete(p.pending, id)
	}
	p.pendingMu.Unlock()
}

// Close marks the protocol as closed and rejects pending requests with
// ErrServerNotRunning. Does not close the underlying reader/writer.
func (p *Protocol) Close() {
	p.Abort(ErrServerNotRunning)
}

// IsClosed returns true if the protocol has been closed or aborted.
func (p *Protocol) IsClosed() bool {
	return atomic.LoadInt32(&p.closed) == 1
}
