// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lsp provides a client for external language servers over stdio.
//
// The package spawns language server processes (gopls, pyright, etc.) on
// demand, speaks the LSP base protocol with them, and exposes high-level
// code intelligence queries.
//
// # Components
//
//   - ConfigRegistry: Maps languages and file extensions to server commands,
//     including fallback commands tried when the primary fails to spawn
//   - Decoder: Reassembles Content-Length framed messages from the stream
//   - Protocol: JSON-RPC correlation, one pending slot per outstanding request
//   - Server: One server process: spawn, initialize handshake, documents,
//     crash detection, teardown
//   - Manager: At most one server per language for a workspace root
//   - Operations: Definition, references, hover, and document symbols with
//     1-indexed external coordinates
//
// # Thread Safety
//
// All exported types except Decoder are safe for concurrent use.
//
// # Example
//
//	mgr := lsp.NewManager("/path/to/project", nil, lsp.DefaultManagerConfig())
//	defer mgr.ShutdownAll(context.Background())
//
//	ops := lsp.NewOperations(mgr)
//	locs, err := ops.Definition(ctx, "/path/to/file.go", 10, 5)
package lsp
