package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
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
		key: "server.port", typ: kInt, env: "KEYDOCS_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "KEYDOCS_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.snapshot_interval", typ: kDuration, env: "KEYDOCS_STORAGE_SNAPSHOT_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Storage.SnapshotInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Storage.SnapshotInterval },
	},
	{
		key: "ollama.base_url", typ: kString, env: "KEYDOCS_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "embedding.backend", typ: kString, env: "KEYDOCS_EMBEDDING_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Embedding.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Embedding.Backend },
	},
	{
		key: "embedding.model", typ: kString, env: "KEYDOCS_EMBEDDING_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Embedding.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Embedding.Model },
	},
	{
		key: "embedding.dimension", typ: kInt, env: "KEYDOCS_EMBEDDING_DIMENSION",
		apply:   func(cfg *Config, v any) { cfg.Embedding.Dimension = v.(int) },
		extract: func(cfg Config) any { return cfg.Embedding.Dimension },
	},
	{
		key: "search.min_similarity", typ: kFloat, env: "KEYDOCS_SEARCH_MIN_SIMILARITY",
		apply:   func(cfg *Config, v any) { cfg.Search.MinSimilarity = v.(float64) },
		extract: func(cfg Config) any { return cfg.Search.MinSimilarity },
	},
	{
		key: "search.max_results", typ: kInt, env: "KEYDOCS_SEARCH_MAX_RESULTS",
		apply:   func(cfg *Config, v any) { cfg.Search.MaxResults = v.(int) },
		extract: func(cfg Config) any { return cfg.Search.MaxResults },
	},
	{
		key: "search.boost_recent", typ: kBool, env: "KEYDOCS_SEARCH_BOOST_RECENT",
		apply:   func(cfg *Config, v any) { cfg.Search.BoostRecent = v.(bool) },
		extract: func(cfg Config) any { return cfg.Search.BoostRecent },
	},
	{
		key: "relevance.similarity_threshold", typ: kFloat, env: "KEYDOCS_RELEVANCE_SIMILARITY_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Relevance.SimilarityThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Relevance.SimilarityThreshold },
	},
	{
		key: "relevance.max_suggestions", typ: kInt, env: "KEYDOCS_RELEVANCE_MAX_SUGGESTIONS",
		apply:   func(cfg *Config, v any) { cfg.Relevance.MaxSuggestions = v.(int) },
		extract: func(cfg Config) any { return cfg.Relevance.MaxSuggestions },
	},
	{
		key: "relevance.checkpoint_debounce", typ: kDuration, env: "KEYDOCS_RELEVANCE_CHECKPOINT_DEBOUNCE",
		apply:   func(cfg *Config, v any) { cfg.Relevance.CheckpointDebounce = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Relevance.CheckpointDebounce },
	},
	{
		key: "log.level", typ: kString, env: "KEYDOCS_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "api.token", typ: kString, env: "KEYDOCS_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.API.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Token },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parseValue converts raw into the Go type of the key.
func parseValue(s keySpec, raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

// ConfigBackend is the platform store behind the key table: UserDefaults
// on macOS, a YAML file elsewhere. Non-int keys are stored as strings and
// parsed by parseValue.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || raw == "" {
			continue
		}
		v, err := parseValue(s, raw)
		if err != nil {
			slog.Warn("could not parse config value, using default", "key", s.key, "value", raw, "error", err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := parseValue(s, raw)
		if err != nil {
			slog.Warn("could not parse env var, using default", "env", s.env, "value", raw, "error", err)
			continue
		}
		s.apply(cfg, v)
	}
}
