// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package language detects the programming languages of a workspace from
// manifest files and source file extensions.
package language

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// marker maps a manifest file at the workspace root to a language.
type marker struct {
	file     string
	language string
}

// markers is checked in order; earlier entries win the ordering of the
// result. package.json is resolved to typescript when tsconfig.json is
// also present.
var markers = []marker{
	{"go.mod", "go"},
	{"go.sum", "go"},
	{"Cargo.toml", "rust"},
	{"tsconfig.json", "typescript"},
	{"package.json", "javascript"},
	{"pyproject.toml", "python"},
	{"requirements.txt", "python"},
	{"setup.py", "python"},
	{"pom.xml", "java"},
	{"build.gradle", "java"},
	{"build.gradle.kts", "java"},
	{"Gemfile", "ruby"},
	{"composer.json", "php"},
}

// extLanguages maps source file extensions to languages for the scan
// fallback when no manifest gives a signal.
var extLanguages = map[string]string{
	".go":   "go",
	".rs":   "rust",
	".ts":   "typescript",
	".tsx":  "typescript",
	".js":   "javascript",
	".jsx":  "javascript",
	".py":   "python",
	".java": "java",
	".rb":   "ruby",
	".php":  "php",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".cc":   "cpp",
	".hpp":  "cpp",
}

// skipDirs are never scanned for source files.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"target":       true,
	"dist":         true,
}

// Detect identifies the languages used in a workspace.
//
// Description:
//
//	Checks well-known manifest files at the workspace root first (go.mod,
//	Cargo.toml, package.json, ...). When no manifest matches, falls back to
//	scanning the root and its immediate subdirectories for known source
//	file extensions. The result is ordered by detection priority and
//	de-duplicated. Unreadable paths contribute no signal; Detect never
//	fails.
//
// Inputs:
//
//	root - The workspace root directory.
//
// Outputs:
//
//	[]string - Detected language identifiers; empty when nothing matched.
func Detect(root string) []string {
	seen := make(map[string]bool)
	var languages []string
	add := func(lang string) {
		if !seen[lang] {
			seen[lang] = true
			languages = append(languages, lang)
		}
	}

	hasTSConfig := fileExists(filepath.Join(root, "tsconfig.json"))
	for _, m := range markers {
		if !fileExists(filepath.Join(root, m.file)) {
			continue
		}
		lang := m.language
		if m.file == "package.json" && hasTSConfig {
			lang = "typescript"
		}
		add(lang)
	}

	if len(languages) > 0 {
		return languages
	}

	for _, lang := range scanExtensions(root) {
		add(lang)
	}
	return languages
}

// scanExtensions looks at the files in root and one level of
// subdirectories and counts known source extensions. Languages are
// returned most-frequent first.
func scanExtensions(root string) []string {
	counts := make(map[string]int)

	countDir := func(dir string) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(entry.Name()))
			if lang, ok := extLanguages[ext]; ok {
				counts[lang]++
			}
		}
	}

	countDir(root)

	entries, err := os.ReadDir(root)
	if err == nil {
		for _, entry := range entries {
			if !entry.IsDir() || skipDirs[entry.Name()] || strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			countDir(filepath.Join(root, entry.Name()))
		}
	}

	langs := make([]string, 0, len(counts))
	for lang := range counts {
		langs = append(langs, lang)
	}
	// Most frequent first; ties break alphabetically for stable output.
	sort.Slice(langs, func(i, j int) bool {
		if counts[langs[i]] != counts[langs[j]] {
			return counts[langs[i]] > counts[langs[j]]
		}
		return langs[i] < langs[j]
	})
	return langs
}

// Primary returns the first detected language, or empty when none.
func Primary(root string) string {
	langs := Detect(root)
	if len(langs) == 0 {
		return ""
	}
	return langs[0]
}

// ForFile returns the language for a file based on its extension.
func ForFile(path string) (string, bool) {
	lang, ok := extLanguages[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
