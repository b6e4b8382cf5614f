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

import "errors"

// Service-level sentinel errors.
var (
	// ErrRelativePath indicates a file or root path was not absolute.
	ErrRelativePath = errors.New("path must be absolute")

	// ErrPathOutsideRoot indicates a file path escapes the workspace root.
	ErrPathOutsideRoot = errors.New("path is outside the workspace root")

	// ErrFileNotFound indicates the requested file does not exist.
	ErrFileNotFound = errors.New("file not found")
)
