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
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// headerTerminator separates the LSP base protocol header block from the body.
const headerTerminator = "\r\n\r\n"

// Decoder incrementally reassembles Content-Length framed JSON-RPC messages
// from a byte stream delivered in arbitrary chunk sizes. One Decoder instance
// exists per server connection and is driven from that connection's read loop.
//
// Thread Safety:
//
//	Not safe for concurrent use. Feed must be called from a single goroutine.
type Decoder struct {
	buf bytes.Buffer

	// want is the body length announced by the last parsed header,
	// or -1 when no header has been parsed yet.
	want int
}

// NewDecoder creates a decoder with no buffered data.
func NewDecoder() *Decoder {
	return &Decoder{want: -1}
}

// Feed appends a chunk of bytes and returns every complete message that can
// now be sliced off the accumulation buffer. Messages split across chunk
// boundaries (mid-header, mid-body, or several messages per chunk) are
// reassembled in arrival order.
//
// Inputs:
//
//	chunk - The next bytes read from the connection; may be empty.
//
// Outputs:
//
//	[]json.RawMessage - Zero or more complete message bodies, in order.
//	error - Non-nil if the header block is malformed; the decoder is then
//	        unusable for this connection.
func (d *Decoder) Feed(chunk []byte) ([]json.RawMessage, error) {
	d.buf.Write(chunk)

	var msgs []json.RawMessage
	for {
		if d.want < 0 {
			idx := bytes.Index(d.buf.Bytes(), []byte(headerTerminator))
			if idx < 0 {
				break // incomplete header, wait for more data
			}
			header := string(d.buf.Next(idx + len(headerTerminator)))
			length, err := parseContentLength(header[:idx])
			if err != nil {
				return msgs, err
			}
			d.want = length
		}

		if d.buf.Len() < d.want {
			break // incomplete body, wait for more data
		}

		body := make([]byte, d.want)
		copy(body, d.buf.Next(d.want))
		d.want = -1
		msgs = append(msgs, json.RawMessage(body))
	}
	return msgs, nil
}

// Buffered returns the number of bytes held for an incomplete message.
func (d *Decoder) Buffered() int {
	return d.buf.Len()
}

// parseContentLength extracts the Content-Length value from a header block.
// Other headers (Content-Type, etc.) are ignored.
func parseContentLength(headers string) (int, error) {
	for _, line := range strings.Split(headers, "\r\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(strings.ToLower(line), "content-length:") {
			continue
		}
		value := strings.TrimSpace(line[len("content-length:"):])
		length, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid Content-Length value %q: %w", value, err)
		}
		if length < 0 {
			return 0, fmt.Errorf("negative Content-Length: %d", length)
		}
		return length, nil
	}
	return 0, fmt.Errorf("missing Content-Length header")
}
