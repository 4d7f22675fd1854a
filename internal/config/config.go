// Package config loads the voxaid configuration from config.yaml in the data
// directory, with environment variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the full voxaid configuration.
type Config struct {
	// DataDir is where the journal database and downloaded documents live.
	DataDir string `yaml:"data_dir"`

	// ListenAddr is the HTTP/WebSocket listen address (default ":27910").
	ListenAddr string `yaml:"listen_addr"`

	// DocumentsDir is scanned and watched for the user's readable documents.
	DocumentsDir string `yaml:"documents_dir"`

	Backend      BackendConfig      `yaml:"backend"`
	Provider     ProviderConfig     `yaml:"provider"`
	Conversation ConversationConfig `yaml:"conversation"`
	Sync         SyncConfig         `yaml:"sync"`
}

// BackendConfig points at the remote conversation persistence service.
type BackendConfig struct {
	BaseURL  string `yaml:"base_url"` // e.g. https://api.example.com
	Username string `yaml:"username"` // account used for login/register
}

// ProviderConfig selects the AI provider used for chat, summaries and vision.
type ProviderConfig struct {
	Type        string `yaml:"type"`         // "openai" or "anthropic"
	APIKey      string `yaml:"api_key"`      // falls back to OPENAI_API_KEY / ANTHROPIC_API_KEY
	Model       string `yaml:"model"`        // chat model id
	VisionModel string `yaml:"vision_model"` // empty = same as Model
}

// ConversationConfig holds the turn buffering policy.
type ConversationConfig struct {
	// PairsToFlush is how many complete user+bot pairs accumulate before a
	// flush is triggered (default 5).
	PairsToFlush int `yaml:"pairs_to_flush"`

	// ContextPairs is how many recent pairs seed the model context (default 5).
	ContextPairs int `yaml:"context_pairs"`

	// MaxUnflushed bounds the retained unflushed turns per session; beyond it
	// the oldest turns are dropped with a warning (default 200).
	MaxUnflushed int `yaml:"max_unflushed"`
}

// SyncConfig holds retry and timeout policy for remote persistence.
type SyncConfig struct {
	BackoffBaseSeconds  int `yaml:"backoff_base_seconds"`  // first retry delay (default 1)
	BackoffMaxSeconds   int `yaml:"backoff_max_seconds"`   // backoff cap (default 60)
	FlushTimeoutSeconds int `yaml:"flush_timeout_seconds"` // per-attempt timeout (default 10)
	CloseTimeoutSeconds int `yaml:"close_timeout_seconds"` // final-flush budget on session close (default 5)
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDir:      DefaultDataDir(),
		ListenAddr:   ":27910",
		DocumentsDir: filepath.Join(home, "Documents"),
		Backend: BackendConfig{
			BaseURL: "http://localhost:5288",
		},
		Provider: ProviderConfig{
			Type:  "openai",
			Model: "gpt-4o-mini",
		},
		Conversation: ConversationConfig{
			PairsToFlush: 5,
			ContextPairs: 5,
			MaxUnflushed: 200,
		},
		Sync: SyncConfig{
			BackoffBaseSeconds:  1,
			BackoffMaxSeconds:   60,
			FlushTimeoutSeconds: 10,
			CloseTimeoutSeconds: 5,
		},
	}
}

// DefaultDataDir returns the platform data directory, VOXAID_DATA_DIR wins.
func DefaultDataDir() string {
	if dir := os.Getenv("VOXAID_DATA_DIR"); dir != "" {
		return dir
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ".voxaid"
	}
	return filepath.Join(configDir, "voxaid")
}

// Load reads config.yaml from the data directory. A missing file is not an
// error; defaults plus environment overrides apply.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filepath.Join(cfg.DataDir, "config.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config.yaml: %w", err)
	}
	cfg.normalize()
	cfg.applyEnv()
	return cfg, nil
}

// LoadFrom reads config from an explicit path.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.normalize()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) normalize() {
	c.DataDir = expandHome(c.DataDir)
	c.DocumentsDir = expandHome(c.DocumentsDir)
	c.Backend.BaseURL = strings.TrimRight(os.ExpandEnv(c.Backend.BaseURL), "/")
	if c.Conversation.PairsToFlush <= 0 {
		c.Conversation.PairsToFlush = 5
	}
	if c.Conversation.ContextPairs <= 0 {
		c.Conversation.ContextPairs = 5
	}
	if c.Conversation.MaxUnflushed <= 0 {
		c.Conversation.MaxUnflushed = 200
	}
}

// applyEnv lets environment variables override file values; secrets normally
// arrive this way rather than through config.yaml.
func (c *Config) applyEnv() {
	if v := os.Getenv("VOXAID_BACKEND_URL"); v != "" {
		c.Backend.BaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("VOXAID_USERNAME"); v != "" {
		c.Backend.Username = v
	}
	if v := os.Getenv("VOXAID_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if c.Provider.APIKey == "" {
		switch c.Provider.Type {
		case "anthropic":
			c.Provider.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		default:
			c.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
