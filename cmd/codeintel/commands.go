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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	workspaceRoot      string
	jsonOutput         bool
	includeDeclaration bool
	queryTimeout       int // seconds

	rootCmd = &cobra.Command{
		Use:   "codeintel",
		Short: "LSP-powered code intelligence queries from the command line",
		Long: `codeintel spawns the right language server (gopls, pyright, ...)
				for your workspace and answers definition, references, hover,
				and symbol outline queries against it.`,
	}

	// --- Workspace ---
	detectCmd = &cobra.Command{
		Use:   "detect",
		Short: "Detect the programming languages used in the workspace",
		Run:   runDetect, // Defined in cmd_workspace.go
	}
	languagesCmd = &cobra.Command{
		Use:   "languages",
		Short: "List the languages with a configured language server",
		Run:   runLanguages, // Defined in cmd_workspace.go
	}

	// --- Queries ---
	definitionCmd = &cobra.Command{
		Use:   "definition [file] [line] [character]",
		Short: "Go to the definition of the symbol at a position (1-indexed)",
		Args:  cobra.ExactArgs(3),
		Run:   runDefinition, // Defined in cmd_query.go
	}
	referencesCmd = &cobra.Command{
		Use:   "references [file] [line] [character]",
		Short: "Find all references to the symbol at a position (1-indexed)",
		Args:  cobra.ExactArgs(3),
		Run:   runReferences, // Defined in cmd_query.go
	}
	hoverCmd = &cobra.Command{
		Use:   "hover [file] [line] [character]",
		Short: "Show hover documentation for the symbol at a position (1-indexed)",
		Args:  cobra.ExactArgs(3),
		Run:   runHover, // Defined in cmd_query.go
	}
	symbolsCmd = &cobra.Command{
		Use:   "symbols [file]",
		Short: "Print the symbol outline of a file",
		Args:  cobra.ExactArgs(1),
		Run:   runSymbols, // Defined in cmd_query.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&workspaceRoot, "root", "",
		"Workspace root directory (default: current directory)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Print results as JSON for scripting")
	rootCmd.PersistentFlags().IntVar(&queryTimeout, "timeout", 60,
		"Overall timeout in seconds, including language server startup")

	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(languagesCmd)

	rootCmd.AddCommand(definitionCmd)
	rootCmd.AddCommand(referencesCmd)
	referencesCmd.Flags().BoolVar(&includeDeclaration, "include-declaration", false,
		"Include the declaration itself in the results")
	rootCmd.AddCommand(hoverCmd)
	rootCmd.AddCommand(symbolsCmd)
}
