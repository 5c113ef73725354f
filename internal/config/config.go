package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/climbinsight/climbinsight-go/pkg/present"
)

// EnvAPIURL overrides the backend base URL when set
const EnvAPIURL = "CLIMBINSIGHT_API_URL"

// Config holds the application configuration
type Config struct {
	Backend BackendConfig `json:"backend"`
	Session SessionConfig `json:"session"`
	Output  OutputConfig  `json:"output"`
	Proxy   ProxyConfig   `json:"proxy"`
}

// BackendConfig holds configuration for the processing backend
type BackendConfig struct {
	// BaseURL is the backend base URL; every job submission and result
	// retrieval is addressed relative to it
	BaseURL string `json:"base_url"`
	// SubmitTimeoutSeconds bounds a single job submission call
	SubmitTimeoutSeconds int `json:"submit_timeout_seconds"`
}

// SessionConfig holds configuration for the session bridge
type SessionConfig struct {
	// StorePath is the directory for the durable session store
	StorePath string `json:"store_path"`
}

// OutputConfig holds configuration for result downloads
type OutputConfig struct {
	Dir      string `json:"dir"`
	FileName string `json:"file_name"`
}

// ProxyConfig holds configuration for the reverse proxy command
type ProxyConfig struct {
	ListenAddr string `json:"listen_addr"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:              "http://localhost:8080",
			SubmitTimeoutSeconds: 30,
		},
		Session: SessionConfig{
			StorePath: defaultStorePath(),
		},
		Output: OutputConfig{
			Dir:      ".",
			FileName: present.DefaultFileName,
		},
		Proxy: ProxyConfig{
			ListenAddr: ":3000",
		},
	}
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides file/default values from the environment
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.Backend.BaseURL = v
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}

	parsed, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("backend.base_url must be an http(s) URL")
	}

	if c.Backend.SubmitTimeoutSeconds < 1 {
		return fmt.Errorf("backend.submit_timeout_seconds must be positive")
	}

	if c.Session.StorePath == "" {
		return fmt.Errorf("session.store_path is required")
	}

	if c.Output.FileName == "" {
		return fmt.Errorf("output.file_name is required")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "climbinsight", "config.json")
}

// defaultStorePath returns the default session store directory
func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./.climbinsight/session"
	}
	return filepath.Join(home, ".config", "climbinsight", "session")
}
