package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kalambet/keydocs/internal/search"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Ollama    OllamaConfig
	Embedding EmbeddingConfig
	Search    SearchConfig
	Relevance RelevanceConfig
	Log       LogConfig
	API       APIConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir          string
	SnapshotInterval time.Duration
}

type OllamaConfig struct {
	BaseURL string
}

// EmbeddingConfig selects the embedding provider. Backend is "hash"
// (local feature hashing, no external service) or "ollama".
type EmbeddingConfig struct {
	Backend   string
	Model     string
	Dimension int
}

type SearchConfig struct {
	MinSimilarity float64
	MaxResults    int
	BoostRecent   bool
}

type RelevanceConfig struct {
	SimilarityThreshold float64
	MaxSuggestions      int
	CheckpointDebounce  time.Duration
}

type LogConfig struct {
	Level string
}

type APIConfig struct {
	Token string
}

const (
	EmbeddingBackendHash   = "hash"
	EmbeddingBackendOllama = "ollama"
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir:          defaultDataDir(),
			SnapshotInterval: 5 * time.Minute,
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
		},
		Embedding: EmbeddingConfig{
			Backend:   EmbeddingBackendHash,
			Model:     "nomic-embed-text",
			Dimension: 384,
		},
		Search: SearchConfig{
			MinSimilarity: search.DefaultMinSimilarity,
			MaxResults:    search.DefaultMaxResults,
		},
		Relevance: RelevanceConfig{
			SimilarityThreshold: 0.3,
			MaxSuggestions:      5,
			CheckpointDebounce:  2 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend and
// environment variables.
//
// On macOS the backend is UserDefaults (domain: com.keydocs.app).
// On Linux the backend is a YAML file at $XDG_CONFIG_HOME/keydocs/config.yaml.
//
// Environment variables (KEYDOCS_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot start with.
func (c Config) Validate() error {
	switch c.Embedding.Backend {
	case EmbeddingBackendHash, EmbeddingBackendOllama:
	default:
		return fmt.Errorf("invalid embedding.backend %q: want %q or %q", c.Embedding.Backend, EmbeddingBackendHash, EmbeddingBackendOllama)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("invalid embedding.dimension %d: must be positive", c.Embedding.Dimension)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Search.MinSimilarity < 0 || c.Search.MinSimilarity > 1 {
		return fmt.Errorf("invalid search.min_similarity %v: must be in [0, 1]", c.Search.MinSimilarity)
	}
	if c.Relevance.SimilarityThreshold < 0 || c.Relevance.SimilarityThreshold > 1 {
		return fmt.Errorf("invalid relevance.similarity_threshold %v: must be in [0, 1]", c.Relevance.SimilarityThreshold)
	}
	return nil
}

// SearchParams returns search defaults derived from the config.
func (c Config) SearchParams() search.Params {
	p := search.DefaultParams()
	p.MinSimilarity = c.Search.MinSimilarity
	if c.Search.MaxResults > 0 {
		p.MaxResults = c.Search.MaxResults
	}
	p.BoostRecent = c.Search.BoostRecent
	return p
}

const (
	keychainService    = "keydocs"
	keychainAPIAccount = "api_token"
)

// Keychain abstracts the platform secret store.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// NewKeychain returns the platform secret store: macOS Keychain on darwin,
// a user-only readable JSON file elsewhere.
func NewKeychain() Keychain {
	return keychainStore{}
}

type keychainStore struct{}

func (keychainStore) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (keychainStore) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}

// GetAPIToken returns the bearer token guarding the HTTP API. The
// KEYDOCS_API_TOKEN environment variable wins; otherwise the token is read
// from kc, and generated and stored there on first use.
func GetAPIToken(kc Keychain) (string, error) {
	if tok := os.Getenv("KEYDOCS_API_TOKEN"); tok != "" {
		return tok, nil
	}
	if tok, err := kc.Get(keychainService, keychainAPIAccount); err == nil && tok != "" {
		return tok, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	tok := hex.EncodeToString(buf)
	if err := kc.Set(keychainService, keychainAPIAccount, tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}
