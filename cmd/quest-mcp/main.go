package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/juno-intents/quest-escrow/internal/questclient"
	"github.com/juno-intents/quest-escrow/internal/questmcp"
)

func main() {
	var (
		apiURL   = flag.String("api-url", "", "quest API base URL (required)")
		insecure = flag.Bool("insecure-http", false, "allow a plain http API URL")
		timeout  = flag.Duration("timeout", 15*time.Second, "HTTP timeout for API calls")
	)
	flag.Parse()

	// Stdout carries the MCP protocol, so logs go to stderr only.
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if strings.TrimSpace(*apiURL) == "" {
		fmt.Fprintln(os.Stderr, "error: --api-url is required")
		os.Exit(2)
	}
	if *timeout <= 0 {
		fmt.Fprintln(os.Stderr, "error: --timeout must be > 0")
		os.Exit(2)
	}

	opts := []questclient.Option{questclient.WithTimeout(*timeout)}
	if *insecure {
		opts = append(opts, questclient.WithInsecureHTTP())
	}
	client, err := questclient.New(*apiURL, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	s, err := questmcp.New(client, log)
	if err != nil {
		log.Error("init mcp server", "err", err)
		os.Exit(2)
	}

	log.Info("quest mcp server started", "api", *apiURL)
	if err := server.ServeStdio(s.MCPServer()); err != nil {
		log.Error("serve stdio", "err", err)
		os.Exit(1)
	}
}
