package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/lherron/partymerge/internal/domain"
)

// Config represents the application configuration
type Config struct {
	DBPath        string `yaml:"db_path"`
	DefaultActor  string `yaml:"default_actor"`
	LogLevel      string `yaml:"log_level"`
	Output        string `yaml:"output"`
	MergePolicy   string `yaml:"merge_policy"`
	SchemaOverlay string `yaml:"schema_overlay"`
	DaemonAddr    string `yaml:"daemon_addr"`
	DaemonToken   string `yaml:"daemon_token"`

	// WebhookURLs are notified after every committed merge.
	WebhookURLs []string `yaml:"webhook_urls"`
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables
// 2. ./.env.local (dotenv) - walks up parent directories to find it
// 3. ~/.config/partymerge/config.yaml (YAML)
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:    "info",
		Output:      "table",
		MergePolicy: string(domain.MergePolicySoft),
		DaemonAddr:  "127.0.0.1:8765",
	}

	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	// YAML config is optional
	_ = loadYAMLConfig(cfg)

	if dbPath := getEnvOrFile("PARTYMERGE_DB_PATH", "PARTYMERGE_DB_PATH_FILE"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if logLevel := os.Getenv("PARTYMERGE_LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if output := os.Getenv("PARTYMERGE_OUTPUT"); output != "" {
		cfg.Output = output
	}
	if actor := os.Getenv("PARTYMERGE_ACTOR"); actor != "" {
		cfg.DefaultActor = actor
	}
	if policy := os.Getenv("PARTYMERGE_MERGE_POLICY"); policy != "" {
		cfg.MergePolicy = policy
	}
	if overlay := os.Getenv("PARTYMERGE_SCHEMA_OVERLAY"); overlay != "" {
		cfg.SchemaOverlay = overlay
	}
	if addr := os.Getenv("PARTYMERGE_DAEMON_ADDR"); addr != "" {
		cfg.DaemonAddr = addr
	}
	if token := getEnvOrFile("PARTYMERGE_DAEMON_TOKEN", "PARTYMERGE_DAEMON_TOKEN_FILE"); token != "" {
		cfg.DaemonToken = token
	}

	if hooks := os.Getenv("PARTYMERGE_WEBHOOK_URLS"); hooks != "" {
		cfg.WebhookURLs = strings.Split(hooks, ",")
	}

	if _, err := domain.ParseMergePolicy(cfg.MergePolicy); err != nil {
		return nil, err
	}

	if cfg.DBPath == "" {
		// Check for project-local database first
		if _, err := os.Stat(".partymerge/partymerge.db"); err == nil {
			cfg.DBPath = ".partymerge/partymerge.db"
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get home directory: %w", err)
			}
			cfg.DBPath = filepath.Join(homeDir, ".local", "share", "partymerge", "partymerge.db")
		}
	}

	return cfg, nil
}

// Policy returns the configured default merge policy.
func (c *Config) Policy() domain.MergePolicy {
	policy, err := domain.ParseMergePolicy(c.MergePolicy)
	if err != nil {
		return domain.MergePolicySoft
	}
	return policy
}

// loadYAMLConfig loads configuration from ~/.config/partymerge/config.yaml
func loadYAMLConfig(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(filepath.Join(homeDir, ".config", "partymerge", "config.yaml"))
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// getEnvOrFile gets an environment variable value, or reads it from a file
// if the _FILE variant is set
func getEnvOrFile(envVar, fileVar string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}

	if filePath := os.Getenv(fileVar); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	return ""
}

// findEnvLocal searches for .env.local starting from cwd and walking up
// parent directories. Stops at the user's home directory.
func findEnvLocal() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		if _, err := os.Stat(".env.local"); err == nil {
			return ".env.local"
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	homeDir = filepath.Clean(homeDir)
	dir := filepath.Clean(cwd)

	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
		if dir == homeDir {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// GetActor returns the name recorded as merged_by and event actor.
// Priority: PARTYMERGE_ACTOR > config.default_actor > $USER
func (c *Config) GetActor() string {
	if actor := os.Getenv("PARTYMERGE_ACTOR"); actor != "" {
		return actor
	}
	if c.DefaultActor != "" {
		return c.DefaultActor
	}
	return os.Getenv("USER")
}
