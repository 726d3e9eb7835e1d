package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Storage modes.
const (
	ModeLocal  = "local"
	ModeSQLite = "sqlite"
	ModeRemote = "remote"
)

// Team modes. Git means the local file lives in a shared repository;
// shared means teammates point at the same remote namespace.
const (
	TeamNone   = "none"
	TeamGit    = "git"
	TeamShared = "shared"
)

type Config struct {
	Storage StorageConfig
	Remote  RemoteConfig
	Team    TeamConfig
	User    UserConfig
	Server  ServerConfig
	Log     LogConfig
}

type StorageConfig struct {
	Mode string
	// Path is empty until Load resolves the default for Mode.
	Path        string
	LockTimeout time.Duration
}

type RemoteConfig struct {
	URL            string
	Namespace      string
	APIKey         string
	Timeout        time.Duration
	EmbeddingModel string

	// EmbeddingBaseURL points at any OpenAI-compatible embeddings API,
	// e.g. a local Ollama at http://localhost:11434/v1.
	EmbeddingBaseURL string
	OpenAIAPIKey     string
}

type TeamConfig struct {
	Mode string
	Name string
}

type UserConfig struct {
	Author string
}

type ServerConfig struct {
	Port int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Storage: StorageConfig{
			Mode:        ModeLocal,
			LockTimeout: 5 * time.Second,
		},
		Remote: RemoteConfig{
			URL:       "http://localhost:6334",
			Namespace: "errorblob",
			Timeout:   10 * time.Second,
		},
		Team: TeamConfig{
			Mode: TeamNone,
		},
		Server: ServerConfig{
			Port: 4100,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON config file and the environment.
//
// The file lives at $ERRORBLOB_CONFIG, or ~/.errorblob/config.json when the
// variable is unset. Environment variables (ERRORBLOB_*) override file values
// for ordinary keys. Secrets work the other way round: a secret stored in the
// file with `config set-secret` wins, and the environment is the fallback.
func Load() (Config, error) {
	return loadWith(newFileBackend(Path()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := applySecrets(&cfg, b); err != nil {
		return Config{}, err
	}

	if cfg.Storage.Path == "" {
		cfg.Storage.Path = defaultStoragePath(cfg.Storage.Mode)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration names exactly one usable backend.
func (c Config) Validate() error {
	switch c.Storage.Mode {
	case ModeLocal, ModeSQLite:
		if strings.TrimSpace(c.Storage.Path) == "" {
			return fmt.Errorf("invalid config: storage.path is required for %s mode", c.Storage.Mode)
		}
	case ModeRemote:
		if strings.TrimSpace(c.Remote.URL) == "" {
			return fmt.Errorf("invalid config: remote.url is required for remote mode")
		}
		if _, err := url.Parse(c.Remote.URL); err != nil {
			return fmt.Errorf("invalid config: remote.url: %w", err)
		}
		if strings.TrimSpace(c.Remote.Namespace) == "" {
			return fmt.Errorf("invalid config: remote.namespace is required for remote mode")
		}
	default:
		return fmt.Errorf("invalid config: unknown storage.mode %q (want %s, %s or %s)",
			c.Storage.Mode, ModeLocal, ModeSQLite, ModeRemote)
	}

	switch c.Team.Mode {
	case TeamNone, TeamGit, TeamShared:
	default:
		return fmt.Errorf("invalid config: unknown team.mode %q (want %s, %s or %s)", c.Team.Mode, TeamNone, TeamGit, TeamShared)
	}
	return nil
}

// Path returns the config file location.
func Path() string {
	if p := os.Getenv("ERRORBLOB_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(homeDir(), "config.json")
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".errorblob")
	}
	return ".errorblob"
}

func defaultStoragePath(mode string) string {
	if mode == ModeSQLite {
		return filepath.Join(homeDir(), "errors.db")
	}
	return filepath.Join(homeDir(), "errors.json")
}
