package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crewflo/crewflo/internal/remote"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "advanced",
	Short:   "Run a sync server",
	Long: `Run the sync server that cloud mode talks to. Documents are stored in a
SQLite database and every update is pushed to connected clients over
WebSocket.

Endpoints:
  GET    /health
  GET    /keys?prefix=...
  GET    /rows/{key}
  PUT    /rows/{key}
  DELETE /rows/{key}
  GET    /realtime?key=...   (WebSocket)

Every endpoint except /health requires the "apikey" header. The key is
server.key, or remote.key when server.key is unset.

Example usage:
  crewflo serve                         # listen on :8787
  crewflo serve --addr 127.0.0.1:9000   # custom address`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		addr := settings.Server.Addr
		if cmd.Flags().Changed("addr") {
			addr, _ = cmd.Flags().GetString("addr")
		}
		dbPath := settings.Server.DB
		if cmd.Flags().Changed("db") {
			dbPath, _ = cmd.Flags().GetString("db")
		}
		key := settings.Server.Key
		if key == "" {
			key = settings.Remote.Key
		}

		logger := log.New(os.Stderr, "[server] ", log.LstdFlags)

		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating database directory: %v\n", err)
			os.Exit(1)
		}
		db, err := remote.OpenDB(dbPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := db.InitSchema(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing schema: %v\n", err)
			os.Exit(1)
		}

		server := remote.NewServer(db, remote.NewHub(logger), &remote.ServerConfig{
			Addr:   addr,
			APIKey: key,
			Logger: logger,
		})
		if err := server.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start sync server: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Sync server started on %s\n", server.Addr())
		fmt.Printf("Database: %s\n", dbPath)
		if key == "" {
			fmt.Printf("Warning: no API key configured, every request is accepted\n")
		}
		fmt.Println("\nPress Ctrl+C to stop...")

		<-ctx.Done()

		fmt.Println("\nShutting down sync server...")
		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Sync server stopped")
	},
}

func init() {
	serveCmd.Flags().String("addr", ":8787", "Address to listen on")
	serveCmd.Flags().String("db", "", "Database path (default <data-dir>/server.db)")
	rootCmd.AddCommand(serveCmd)
}
