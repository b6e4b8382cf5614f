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
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/codeintel"
	"github.com/AleutianAI/codeintel/lsp"
)

func runDefinition(cmd *cobra.Command, args []string) {
	file, line, character := parsePosition(args)
	svc, ctx, cleanup := newWorkspaceService()
	defer cleanup()

	locs, err := svc.Definition(ctx, file, line, character)
	if err != nil {
		log.Fatalf("Definition query failed: %v", err)
	}
	printLocations(locs)
}

func runReferences(cmd *cobra.Command, args []string) {
	file, line, character := parsePosition(args)
	svc, ctx, cleanup := newWorkspaceService()
	defer cleanup()

	locs, err := svc.References(ctx, file, line, character, includeDeclaration)
	if err != nil {
		log.Fatalf("References query failed: %v", err)
	}
	printLocations(locs)
}

func runHover(cmd *cobra.Command, args []string) {
	file, line, character := parsePosition(args)
	svc, ctx, cleanup := newWorkspaceService()
	defer cleanup()

	info, err := svc.Hover(ctx, file, line, character)
	if err != nil {
		log.Fatalf("Hover query failed: %v", err)
	}

	if jsonOutput {
		printJSON(info)
		return
	}
	fmt.Println(info.Content)
}

func runSymbols(cmd *cobra.Command, args []string) {
	file := resolveQueryFile(args[0])
	svc, ctx, cleanup := newWorkspaceService()
	defer cleanup()

	symbols, err := svc.DocumentSymbols(ctx, file)
	if err != nil {
		log.Fatalf("Symbols query failed: %v", err)
	}

	if jsonOutput {
		printJSON(symbols)
		return
	}
	if len(symbols) == 0 {
		fmt.Println("No symbols found.")
		return
	}
	for _, sym := range symbols {
		indent := strings.Repeat("  ", sym.Depth)
		fmt.Printf("%s%s %s (line %d)\n", indent, sym.Kind, sym.Name, sym.Line)
	}
}

// newWorkspaceService builds a service for the workspace root and returns
// it with a query context. The cleanup stops all spawned language servers.
func newWorkspaceService() (*codeintel.Service, context.Context, func()) {
	svc, err := codeintel.NewService(codeintel.DefaultServiceConfig(workspaceRoot))
	if err != nil {
		log.Fatalf("Failed to open workspace %s: %v", workspaceRoot, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(queryTimeout)*time.Second)
	cleanup := func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = svc.Close(shutdownCtx)
		cancel()
	}
	return svc, ctx, cleanup
}

// parsePosition parses the [file line character] argument triple.
func parsePosition(args []string) (string, int, int) {
	file := resolveQueryFile(args[0])
	line, err := strconv.Atoi(args[1])
	if err != nil || line < 1 {
		log.Fatalf("Invalid line %q: must be a positive integer (1-indexed)", args[1])
	}
	character, err := strconv.Atoi(args[2])
	if err != nil || character < 1 {
		log.Fatalf("Invalid character %q: must be a positive integer (1-indexed)", args[2])
	}
	return file, line, character
}

// resolveQueryFile makes a file argument absolute relative to the cwd so
// relative paths work from the shell.
func resolveQueryFile(file string) string {
	abs, err := filepath.Abs(file)
	if err != nil {
		log.Fatalf("Failed to resolve file path %q: %v", file, err)
	}
	return abs
}

func printLocations(locs []lsp.FileLocation) {
	if jsonOutput {
		printJSON(locs)
		return
	}
	if len(locs) == 0 {
		fmt.Println("No locations found.")
		return
	}
	for _, loc := range locs {
		fmt.Printf("%s:%d:%d\n", loc.File, loc.Line, loc.Character)
	}
}
