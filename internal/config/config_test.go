package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigValues(t *testing.T) {
	c := DefaultConfig()

	if c.ListenAddr != ":27910" {
		t.Fatalf("unexpected default listen addr %q", c.ListenAddr)
	}
	if c.Conversation.PairsToFlush != 5 {
		t.Fatalf("unexpected default pairs_to_flush %d", c.Conversation.PairsToFlush)
	}
	if c.Conversation.MaxUnflushed != 200 {
		t.Fatalf("unexpected default max_unflushed %d", c.Conversation.MaxUnflushed)
	}
	if c.Sync.BackoffMaxSeconds != 60 {
		t.Fatalf("unexpected default backoff cap %d", c.Sync.BackoffMaxSeconds)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
listen_addr: ":9000"
backend:
  base_url: "https://api.example.com/"
  username: "alice"
conversation:
  pairs_to_flush: 3
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.ListenAddr != ":9000" {
		t.Fatalf("listen_addr not applied: %q", c.ListenAddr)
	}
	if c.Backend.BaseURL != "https://api.example.com" {
		t.Fatalf("base_url should lose its trailing slash: %q", c.Backend.BaseURL)
	}
	if c.Backend.Username != "alice" {
		t.Fatalf("username not applied: %q", c.Backend.Username)
	}
	if c.Conversation.PairsToFlush != 3 {
		t.Fatalf("pairs_to_flush not applied: %d", c.Conversation.PairsToFlush)
	}
	// Untouched sections keep their defaults.
	if c.Conversation.ContextPairs != 5 {
		t.Fatalf("context_pairs default lost: %d", c.Conversation.ContextPairs)
	}
}

func TestLoadFromRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
conversation:
  pairs_to_flush: -1
  max_unflushed: 0
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Conversation.PairsToFlush != 5 || c.Conversation.MaxUnflushed != 200 {
		t.Fatalf("invalid values must fall back to defaults, got %d/%d",
			c.Conversation.PairsToFlush, c.Conversation.MaxUnflushed)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VOXAID_BACKEND_URL", "https://override.example.com/")
	t.Setenv("VOXAID_USERNAME", "bob")
	t.Setenv("VOXAID_LISTEN_ADDR", ":8123")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: \":9000\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Backend.BaseURL != "https://override.example.com" {
		t.Fatalf("env base_url not applied: %q", c.Backend.BaseURL)
	}
	if c.Backend.Username != "bob" {
		t.Fatalf("env username not applied: %q", c.Backend.Username)
	}
	if c.ListenAddr != ":8123" {
		t.Fatalf("env listen addr must win over the file: %q", c.ListenAddr)
	}
}
