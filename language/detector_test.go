// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package language

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func TestDetect_Markers(t *testing.T) {
	t.Run("go module", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "go.mod"))

		assert.Equal(t, []string{"go"}, Detect(dir))
	})

	t.Run("rust crate", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "Cargo.toml"))

		assert.Equal(t, []string{"rust"}, Detect(dir))
	})

	t.Run("package.json alone is javascript", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "package.json"))

		assert.Equal(t, []string{"javascript"}, Detect(dir))
	})

	t.Run("package.json with tsconfig is typescript", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "package.json"))
		touch(t, filepath.Join(dir, "tsconfig.json"))

		langs := Detect(dir)
		assert.Equal(t, []string{"typescript"}, langs)
	})

	t.Run("python markers", func(t *testing.T) {
		for _, m := range []string{"pyproject.toml", "requirements.txt", "setup.py"} {
			dir := t.TempDir()
			touch(t, filepath.Join(dir, m))
			assert.Equal(t, []string{"python"}, Detect(dir), "marker %s", m)
		}
	})

	t.Run("java markers", func(t *testing.T) {
		for _, m := range []string{"pom.xml", "build.gradle", "build.gradle.kts"} {
			dir := t.TempDir()
			touch(t, filepath.Join(dir, m))
			assert.Equal(t, []string{"java"}, Detect(dir), "marker %s", m)
		}
	})

	t.Run("polyglot workspace is ordered and de-duplicated", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "go.mod"))
		touch(t, filepath.Join(dir, "go.sum"))
		touch(t, filepath.Join(dir, "pyproject.toml"))
		touch(t, filepath.Join(dir, "requirements.txt"))

		assert.Equal(t, []string{"go", "python"}, Detect(dir))
	})
}

func TestDetect_ExtensionScan(t *testing.T) {
	t.Run("falls back to root scan", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "main.rb"))
		touch(t, filepath.Join(dir, "helper.rb"))

		assert.Equal(t, []string{"ruby"}, Detect(dir))
	})

	t.Run("scans src one level deep", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "src", "index.php"))

		assert.Equal(t, []string{"php"}, Detect(dir))
	})

	t.Run("most frequent extension wins ordering", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "one.py"))
		touch(t, filepath.Join(dir, "two.py"))
		touch(t, filepath.Join(dir, "three.py"))
		touch(t, filepath.Join(dir, "lone.rb"))

		assert.Equal(t, []string{"python", "ruby"}, Detect(dir))
	})

	t.Run("skip dirs contribute no signal", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "node_modules", "dep.js"))
		touch(t, filepath.Join(dir, ".git", "hook.py"))
		touch(t, filepath.Join(dir, "vendor", "lib.rb"))

		assert.Empty(t, Detect(dir))
	})

	t.Run("markers suppress the scan", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "go.mod"))
		touch(t, filepath.Join(dir, "script.py"))

		assert.Equal(t, []string{"go"}, Detect(dir))
	})
}

func TestDetect_NeverFails(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		assert.Empty(t, Detect("/nonexistent/path/nowhere"))
	})

	t.Run("empty directory", func(t *testing.T) {
		assert.Empty(t, Detect(t.TempDir()))
	})
}

func TestPrimary(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "go.mod"))

	assert.Equal(t, "go", Primary(dir))
	assert.Equal(t, "", Primary(t.TempDir()))
}

func TestForFile(t *testing.T) {
	lang, ok := ForFile("/src/main.go")
	require.True(t, ok)
	assert.Equal(t, "go", lang)

	lang, ok = ForFile("/src/App.TSX")
	require.True(t, ok)
	assert.Equal(t, "typescript", lang)

	_, ok = ForFile("/src/readme.md")
	assert.False(t, ok)
}
