// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command codeintel-server starts the code intelligence API server.
//
// The server spawns language servers (gopls, pyright, etc.) on demand for
// one workspace and exposes definition, references, hover, and symbol
// outline queries over HTTP.
//
// Usage:
//
//	go run ./cmd/codeintel-server -root /path/to/project
//	go run ./cmd/codeintel-server -root /path/to/project -port 9090
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/codeintel/health
//
//	# Detected and supported languages
//	curl http://localhost:8080/v1/codeintel/languages | jq
//
//	# Go to definition (1-indexed coordinates)
//	curl -X POST http://localhost:8080/v1/codeintel/definition \
//	  -H "Content-Type: application/json" \
//	  -d '{"file": "/path/to/project/main.go", "line": 10, "character": 5}'
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/codeintel"
	"github.com/AleutianAI/codeintel/telemetry"
)

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	root := flag.String("root", "", "Absolute path to the workspace root (required)")
	debug := flag.Bool("debug", false, "Enable debug mode")
	withTelemetry := flag.Bool("with-telemetry", false, "Enable OpenTelemetry traces and metrics")
	flag.Parse()

	if *root == "" {
		fmt.Fprintln(os.Stderr, "error: -root is required")
		flag.Usage()
		os.Exit(2)
	}

	// Set Gin mode
	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if *withTelemetry {
		shutdown, err := telemetry.Init(context.Background(), telemetry.DefaultConfig())
		if err != nil {
			slog.Error("Failed to initialize telemetry", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(ctx)
		}()
	}

	// Create service for the workspace
	svc, err := codeintel.NewService(codeintel.DefaultServiceConfig(*root))
	if err != nil {
		slog.Error("Failed to create service", slog.String("error", err.Error()))
		os.Exit(1)
	}

	handlers := codeintel.NewHandlers(svc)

	// Setup router
	router := gin.New()
	router.Use(gin.Recovery())
	if *debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	codeintel.RegisterRoutes(v1, handlers)

	// Expose Prometheus metrics when the exporter is active.
	if metricsHandler := telemetry.MetricsHandler(); metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	printBanner(*port, *root, svc.DetectLanguages())

	// Handle graceful shutdown: language servers get a clean stop.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		slog.Info("Shutting down code intelligence server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := svc.Close(ctx); err != nil {
			slog.Warn("Server shutdown incomplete", slog.String("error", err.Error()))
		}
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Starting code intelligence server",
		slog.String("address", addr),
		slog.String("root", *root),
	)
	if err := router.Run(addr); err != nil {
		slog.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// printBanner prints the startup banner.
func printBanner(port int, root string, languages []string) {
	langs := "none detected"
	if len(languages) > 0 {
		langs = fmt.Sprintf("%v", languages)
	}

	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                    CODEINTEL SERVER                               ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  LSP-powered code intelligence for your workspace.                ║
║  Workspace: %-54s ║
║  Languages: %-54s ║
║                                                                   ║
║  Endpoints:                                                       ║
║    POST /v1/codeintel/definition                                  ║
║    POST /v1/codeintel/references                                  ║
║    POST /v1/codeintel/hover                                       ║
║    POST /v1/codeintel/symbols                                     ║
║    GET  /v1/codeintel/languages                                   ║
║                                                                   ║
║  Listening on port %-46d ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, truncate(root, 54), truncate(langs, 54), port)
}

// truncate shortens a string to fit the banner column.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
