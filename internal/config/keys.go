package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "storage.mode", typ: kString, env: "ERRORBLOB_STORAGE_MODE",
		apply:   func(cfg *Config, v any) { cfg.Storage.Mode = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Mode },
	},
	{
		key: "storage.path", typ: kString, env: "ERRORBLOB_STORAGE_PATH",
		apply:   func(cfg *Config, v any) { cfg.Storage.Path = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Path },
	},
	{
		key: "storage.lock_timeout", typ: kDuration, env: "ERRORBLOB_STORAGE_LOCK_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Storage.LockTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Storage.LockTimeout },
	},
	{
		key: "remote.url", typ: kString, env: "ERRORBLOB_REMOTE_URL",
		apply:   func(cfg *Config, v any) { cfg.Remote.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.Remote.URL },
	},
	{
		key: "remote.namespace", typ: kString, env: "ERRORBLOB_REMOTE_NAMESPACE",
		apply:   func(cfg *Config, v any) { cfg.Remote.Namespace = v.(string) },
		extract: func(cfg Config) any { return cfg.Remote.Namespace },
	},
	{
		key: "remote.api_key", typ: kString, env: "ERRORBLOB_REMOTE_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Remote.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Remote.APIKey },
	},
	{
		key: "remote.timeout", typ: kDuration, env: "ERRORBLOB_REMOTE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Remote.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Remote.Timeout },
	},
	{
		key: "remote.embedding_model", typ: kString, env: "ERRORBLOB_REMOTE_EMBEDDING_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Remote.EmbeddingModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Remote.EmbeddingModel },
	},
	{
		key: "remote.embedding_base_url", typ: kString, env: "ERRORBLOB_REMOTE_EMBEDDING_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Remote.EmbeddingBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Remote.EmbeddingBaseURL },
	},
	{
		key: "remote.openai_api_key", typ: kString, env: "OPENAI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Remote.OpenAIAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Remote.OpenAIAPIKey },
	},
	{
		key: "team.mode", typ: kString, env: "ERRORBLOB_TEAM_MODE",
		apply:   func(cfg *Config, v any) { cfg.Team.Mode = v.(string) },
		extract: func(cfg Config) any { return cfg.Team.Mode },
	},
	{
		key: "team.name", typ: kString, env: "ERRORBLOB_TEAM_NAME",
		apply:   func(cfg *Config, v any) { cfg.Team.Name = v.(string) },
		extract: func(cfg Config) any { return cfg.Team.Name },
	},
	{
		key: "user.author", typ: kString, env: "ERRORBLOB_AUTHOR",
		apply:   func(cfg *Config, v any) { cfg.User.Author = v.(string) },
		extract: func(cfg Config) any { return cfg.User.Author },
	},
	{
		key: "server.port", typ: kInt, env: "ERRORBLOB_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "log.level", typ: kString, env: "ERRORBLOB_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func findSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if d, err := time.ParseDuration(v); err == nil {
					s.apply(cfg, d)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" || s.secret {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}

// applySecrets resolves secret keys: file first, then environment.
func applySecrets(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if !s.secret {
			continue
		}
		v, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if ok && v != "" {
			s.apply(cfg, v)
			continue
		}
		if s.env != "" {
			if raw := os.Getenv(s.env); raw != "" {
				s.apply(cfg, raw)
			}
		}
	}
	return nil
}
