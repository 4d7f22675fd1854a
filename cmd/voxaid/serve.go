package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/voxaid/voxaid/internal/agent/ai"
	"github.com/voxaid/voxaid/internal/agent/session"
	"github.com/voxaid/voxaid/internal/docs"
	"github.com/voxaid/voxaid/internal/history"
	"github.com/voxaid/voxaid/internal/journal"
	"github.com/voxaid/voxaid/internal/logging"
	"github.com/voxaid/voxaid/internal/server"
	"github.com/voxaid/voxaid/internal/voice"
)

// ServeCmd returns the explicit serve subcommand; running the bare binary
// does the same thing.
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the voice assistant session service",
		Run: func(cmd *cobra.Command, args []string) {
			RunServe()
		},
	}
}

// RunServe wires the full stack and blocks until SIGINT/SIGTERM.
func RunServe() {
	if verbose {
		logging.SetDebug(true)
	}
	c := ServerConfig

	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		fmt.Printf("Error: failed to create data directory %s: %v\n", c.DataDir, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Printf("\nReceived signal: %v - shutting down...\n", sig)
		cancel()
	}()

	provider, err := ai.New(c.Provider.Type, c.Provider.APIKey, c.Provider.Model, c.Provider.VisionModel)
	if err != nil {
		fmt.Printf("Error: failed to initialize AI provider: %v\n", err)
		os.Exit(1)
	}

	index, err := docs.NewIndex(c.DocumentsDir)
	if err != nil {
		fmt.Printf("Error: failed to index documents in %s: %v\n", c.DocumentsDir, err)
		os.Exit(1)
	}
	defer index.Close()
	if err := index.Watch(); err != nil {
		logging.Warnf("[serve] document watching disabled: %v", err)
	}

	// The journal is best-effort: without it the service still runs, it
	// just cannot recover unflushed turns after a crash.
	var jnl voice.Journal
	j, err := journal.Open(filepath.Join(c.DataDir, "journal.db"))
	if err != nil {
		logging.Warnf("[serve] journal disabled: %v", err)
	} else {
		defer j.Close()
		jnl = j
	}

	backend := history.NewClient(c.Backend.BaseURL, c.Backend.Username)
	sessions := session.NewRegistry(c.Conversation.MaxUnflushed)

	hub := voice.NewHub(voice.Deps{
		Sessions:     sessions,
		Provider:     provider,
		Docs:         index,
		Backend:      backend,
		Journal:      jnl,
		Conversation: c.Conversation,
		Sync:         c.Sync,
	})

	if err := server.Run(ctx, c.ListenAddr, server.Deps{Hub: hub, Sessions: sessions}); err != nil {
		fmt.Printf("Error: server exited: %v\n", err)
		os.Exit(1)
	}
}
