package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// Config is built once at startup and passed into each component.
// It is not mutated after Load returns.
type Config struct {
	Feeds     []Feed    `yaml:"feeds"`
	Selection Selection `yaml:"selection"`
	History   History   `yaml:"history"`
	Generator Generator `yaml:"generator"`
	Blog      Blog      `yaml:"blog"`
	Archive   Archive   `yaml:"archive"`
	Logging   Logging   `yaml:"logging"`
}

type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

type Selection struct {
	PostsPerDay     int      `yaml:"posts_per_day"`
	RetriesPerSlot  int      `yaml:"retries_per_slot"`
	Denylist        []string `yaml:"denylist"`
	MaxAgeDays      int      `yaml:"max_age_days"`
	MaxPerFeed      int      `yaml:"max_per_feed"`
	AttemptTimeout  int      `yaml:"attempt_timeout_seconds"`
	MaxDelaySeconds int      `yaml:"max_delay_seconds"`
}

type History struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

type Generator struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	MaxWords  int    `yaml:"max_words"`
}

type Blog struct {
	RepoPath    string   `yaml:"repo_path"`
	Branch      string   `yaml:"branch"`
	PostsDir    string   `yaml:"posts_dir"`
	ImagesDir   string   `yaml:"images_dir"`
	SiteURL     string   `yaml:"site_url"`
	Author      string   `yaml:"author"`
	CommitName  string   `yaml:"commit_name"`
	CommitEmail string   `yaml:"commit_email"`
	Categories  []string `yaml:"categories"`
	Tags        []string `yaml:"tags"`
}

type Archive struct {
	Path string `yaml:"path"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for autoblog.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "autoblog")
}

// DataDir returns the XDG data directory for autoblog.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "autoblog")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/autoblog/config.yaml > ./config.yaml
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
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'autoblog init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file. A .env file next to the config
// is loaded into the environment first so api_key_env lookups work without
// exporting secrets globally.
func Load(path string) (*Config, error) {
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("loading %s: %w", envPath, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Selection: Selection{
			PostsPerDay:     3,
			RetriesPerSlot:  2,
			Denylist:        []string{"sale"},
			MaxAgeDays:      3,
			MaxPerFeed:      25,
			AttemptTimeout:  120,
			MaxDelaySeconds: 3,
		},
		History: History{
			RetentionDays: 90,
		},
		Generator: Generator{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
			MaxWords:  1000,
		},
		Blog: Blog{
			Branch:     "main",
			PostsDir:   "_posts",
			ImagesDir:  "assets/img",
			Author:     "Blog Author",
			Categories: []string{"Technology", "News", "AI", "Programming"},
			Tags:       []string{"tech", "news", "programming", "ai", "development"},
		},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.History.Path == "" {
		cfg.History.Path = filepath.Join(DataDir(), "history.json")
	}
	if cfg.Archive.Path == "" {
		cfg.Archive.Path = filepath.Join(DataDir(), "autoblog.db")
	}

	return cfg, nil
}

// Validate checks the configuration and reports every problem found, not
// just the first one.
func (c *Config) Validate() error {
	var problems []string

	if len(c.Feeds) == 0 {
		problems = append(problems, "at least one feed URL is required")
	}
	for i, f := range c.Feeds {
		if strings.TrimSpace(f.URL) == "" {
			problems = append(problems, fmt.Sprintf("feeds[%d]: url is empty", i))
		}
	}

	if c.Selection.PostsPerDay < 1 {
		problems = append(problems, "selection.posts_per_day must be at least 1")
	}
	if c.Selection.RetriesPerSlot < 0 {
		problems = append(problems, "selection.retries_per_slot must not be negative")
	}

	switch c.Generator.Provider {
	case "openai", "gemini":
		if c.Generator.APIKeyEnv == "" {
			problems = append(problems, "generator.api_key_env is required")
		} else if os.Getenv(c.Generator.APIKeyEnv) == "" {
			problems = append(problems, fmt.Sprintf("environment variable %s is not set", c.Generator.APIKeyEnv))
		}
	default:
		problems = append(problems, fmt.Sprintf("generator.provider must be 'openai' or 'gemini', got %q", c.Generator.Provider))
	}

	if c.Blog.RepoPath == "" {
		problems = append(problems, "blog.repo_path is required")
	}
	if c.History.RetentionDays < 1 {
		problems = append(problems, "history.retention_days must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
