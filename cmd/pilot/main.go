// cmd/pilot is the entry point for the pilot MCP (Model Context Protocol)
// server: a local, single-user memory store for coding assistants.
//
// Startup sequence:
//  1. Resolve the persisted-state directory (config.Resolve).
//  2. Open the SQLite database and apply the schema.
//  3. Start the background file watcher over the current working directory.
//  4. Create the MCP server and serve JSON-RPC 2.0 over stdin/stdout.
//
// CRITICAL: all logging MUST go to stderr. Any bytes written to stdout that
// are not valid JSON-RPC 2.0 response frames will corrupt the protocol.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/quietloop/pilot/internal/api/mcp"
	"github.com/quietloop/pilot/internal/config"
	"github.com/quietloop/pilot/internal/migrate"
	"github.com/quietloop/pilot/internal/storage/sqlite"
	"github.com/quietloop/pilot/internal/watcher"
)

const version = "1.0.0"

func main() {
	log.SetOutput(os.Stderr)
	log.SetPrefix("pilot: ")
	log.SetFlags(log.LstdFlags)

	if len(os.Args) > 1 {
		handleFlag(os.Args[1])
		return
	}
	runServer()
}

func handleFlag(flag string) {
	switch flag {
	case "--version", "-v":
		fmt.Println("pilot " + version)
	case "--help", "-h":
		printUsage()
	case "--migrate":
		runMigrate()
	case "--backfill":
		runBackfill()
	default:
		fmt.Fprintf(os.Stderr, "pilot: unknown flag %q\n", flag)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`pilot - a local memory store for coding assistants

Usage:
  pilot               run the MCP server on stdin/stdout
  pilot --migrate     ingest a legacy v1 JSON memory store
  pilot --backfill    compute embeddings for any memory missing one
  pilot --version     print the version
  pilot --help        print this message`)
}

func runMigrate() {
	paths, err := config.Resolve()
	if err != nil {
		log.Fatalf("resolve config: %v", err)
	}
	store, err := sqlite.Open(paths.DBPath)
	if err != nil {
		log.Fatalf("open database at %q: %v", paths.DBPath, err)
	}
	defer store.Close()

	n, err := migrate.Run(context.Background(), store, paths.Home)
	if err != nil {
		log.Fatalf("migrate: %v", err)
	}
	fmt.Printf("imported %d memories\n", n)
}

func runBackfill() {
	paths, err := config.Resolve()
	if err != nil {
		log.Fatalf("resolve config: %v", err)
	}
	store, err := sqlite.Open(paths.DBPath)
	if err != nil {
		log.Fatalf("open database at %q: %v", paths.DBPath, err)
	}
	defer store.Close()

	n, err := store.BackfillEmbeddings(context.Background())
	if err != nil {
		log.Fatalf("backfill: %v", err)
	}
	fmt.Printf("backfilled %d embeddings\n", n)
}

func runServer() {
	paths, err := config.Resolve()
	if err != nil {
		log.Fatalf("resolve config: %v", err)
	}

	store, err := sqlite.Open(paths.DBPath)
	if err != nil {
		log.Fatalf("open database at %q: %v", paths.DBPath, err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("received shutdown signal")
		cancel()
	}()

	cwd, err := os.Getwd()
	var w *watcher.Watcher
	if err == nil {
		w = watcher.Start(cwd)
	}
	if w != nil {
		defer w.Stop()
	}

	srv := mcp.NewServer(store, w)
	transport := mcp.NewStdioTransport(srv, os.Stdin, os.Stdout)

	log.Println("ready — serving JSON-RPC 2.0 on stdin/stdout")

	if err := transport.Serve(ctx); err != nil {
		log.Printf("transport stopped: %v", err)
	}
}
