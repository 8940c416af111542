package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Discovery  Discovery  `yaml:"discovery"`
	Sources    Sources    `yaml:"sources"`
	Extraction Extraction `yaml:"extraction"`
	Geocoding  Geocoding  `yaml:"geocoding"`
	Output     Output     `yaml:"output"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
}

// Discovery holds the per-run settings of the demo event discovery agent.
type Discovery struct {
	Enabled            bool   `yaml:"enabled"`
	Scope              string `yaml:"scope"`
	WindowMonths       int    `yaml:"window_months"`
	CandidateCap       int    `yaml:"candidate_cap"`
	MaxQueryAttempts   int    `yaml:"max_query_attempts"`
	HardPageCap        int    `yaml:"hard_page_cap"`
	FetchConcurrency   int    `yaml:"fetch_concurrency"`
	ExtractConcurrency int    `yaml:"extract_concurrency"`
	DeadlineSeconds    int    `yaml:"deadline_seconds"`
	Schedule           string `yaml:"schedule"`
	AdminTokenEnv      string `yaml:"admin_token_env"`
	ScheduleSecretEnv  string `yaml:"schedule_secret_env"`
}

type Sources struct {
	Calendars []Calendar   `yaml:"calendars"`
	Search    SearchConfig `yaml:"search"`
}

// Calendar is an RSS/Atom event calendar scanned before web search.
type Calendar struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

type SearchConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Endpoint        string `yaml:"endpoint"`
	APIKeyEnv       string `yaml:"api_key_env"`
	ResultsPerQuery int    `yaml:"results_per_query"`
}

type Extraction struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	OllamaURL   string `yaml:"ollama_url"`
	OpenAIModel string `yaml:"openai_model"`
	APIKeyEnv   string `yaml:"api_key_env"`
	MaxTokens   int    `yaml:"max_tokens"`
}

type Geocoding struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	UserAgent string `yaml:"user_agent"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// ConfigDir returns the XDG config directory for gearscout.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "gearscout")
}

// DataDir returns the XDG data directory for gearscout.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "gearscout")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/gearscout/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'gearscout init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Discovery: Discovery{
			Enabled:            true,
			Scope:              "Colorado, USA",
			WindowMonths:       6,
			CandidateCap:       25,
			MaxQueryAttempts:   12,
			HardPageCap:        40,
			FetchConcurrency:   5,
			ExtractConcurrency: 2,
			DeadlineSeconds:    240,
			AdminTokenEnv:      "GEARSCOUT_ADMIN_TOKEN",
			ScheduleSecretEnv:  "GEARSCOUT_SCHEDULE_SECRET",
		},
		Sources: Sources{
			Search: SearchConfig{
				Enabled:         true,
				Endpoint:        "https://api.search.brave.com/res/v1/web/search",
				APIKeyEnv:       "BRAVE_SEARCH_KEY",
				ResultsPerQuery: 10,
			},
		},
		Extraction: Extraction{
			Provider:    "ollama",
			Model:       "qwen2.5:7b",
			OllamaURL:   "http://localhost:11434",
			OpenAIModel: "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			MaxTokens:   1024,
		},
		Geocoding: Geocoding{
			Enabled:   true,
			Endpoint:  "https://nominatim.openstreetmap.org/search",
			UserAgent: "gearscout/1.0 (demo event discovery)",
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// AdminToken returns the admin bearer token from the configured env var.
func (c *Config) AdminToken() string {
	return os.Getenv(c.Discovery.AdminTokenEnv)
}

// ScheduleSecret returns the scheduled-run shared secret from the configured env var.
func (c *Config) ScheduleSecret() string {
	return os.Getenv(c.Discovery.ScheduleSecretEnv)
}
