// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/codeintel/language"
	"github.com/AleutianAI/codeintel/lsp"
)

func runDetect(cmd *cobra.Command, args []string) {
	languages := language.Detect(workspaceRoot)

	if jsonOutput {
		printJSON(map[string]interface{}{
			"root":      workspaceRoot,
			"languages": languages,
		})
		return
	}

	if len(languages) == 0 {
		fmt.Printf("No languages detected in %s\n", workspaceRoot)
		return
	}
	fmt.Printf("Languages detected in %s:\n", workspaceRoot)
	for _, lang := range languages {
		fmt.Printf("  %s\n", lang)
	}
}

func runLanguages(cmd *cobra.Command, args []string) {
	registry := lsp.NewConfigRegistry()

	if jsonOutput {
		type serverInfo struct {
			Language   string   `json:"language"`
			Command    string   `json:"command"`
			Fallback   string   `json:"fallback,omitempty"`
			Extensions []string `json:"extensions"`
		}
		var servers []serverInfo
		for _, lang := range registry.Languages() {
			cfg, _ := registry.Get(lang)
			servers = append(servers, serverInfo{
				Language:   cfg.Language,
				Command:    cfg.Command,
				Fallback:   cfg.FallbackCommand,
				Extensions: cfg.Extensions,
			})
		}
		printJSON(servers)
		return
	}

	fmt.Println("Configured language servers:")
	for _, lang := range registry.Languages() {
		cfg, _ := registry.Get(lang)
		fmt.Printf("  %-12s %s", cfg.Language, cfg.Command)
		if cfg.HasFallback() {
			fmt.Printf(" (fallback: %s)", cfg.FallbackCommand)
		}
		fmt.Println()
	}
}

// printJSON writes a value to stdout as indented JSON.
func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("Failed to encode JSON output: %v", err)
	}
}
