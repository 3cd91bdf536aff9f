// Package docs holds the documentation library data model shared by the
// store, the search engine, the segmenter and the transport layers.
package docs

import (
	"errors"
	"sort"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a referenced library, chunk or session does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned for malformed filters, empty embeddings and dimension mismatches.
	ErrInvalidInput = errors.New("invalid input")
)

type Library struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	ProviderID    string        `json:"provider_id,omitempty"`
	SourceURL     string        `json:"source_url,omitempty"`
	Version       string        `json:"version,omitempty"`
	Language      string        `json:"language,omitempty"`
	Tags          []string      `json:"tags,omitempty"`
	ContentHash   string        `json:"content_hash,omitempty"`
	ChunkCount    int           `json:"chunk_count"`
	Status        LibraryStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	LastIndexedAt time.Time     `json:"last_indexed_at,omitempty"`
}

type ChunkMetadata struct {
	WordCount       int         `json:"word_count"`
	ContentType     ContentType `json:"content_type"`
	Importance      float64     `json:"importance"`
	Keywords        []string    `json:"keywords,omitempty"`
	RelatedChunkIDs []string    `json:"related_chunk_ids,omitempty"`
	SourceURL       string      `json:"source_url,omitempty"`
	LineStart       int         `json:"line_start,omitempty"`
	LineEnd         int         `json:"line_end,omitempty"`
}

type Chunk struct {
	ID          string        `json:"id"`
	LibraryID   string        `json:"library_id"`
	Index       int           `json:"chunk_index"`
	Title       string        `json:"title"`
	Content     string        `json:"content"`
	SectionPath []string      `json:"section_path,omitempty"`
	Metadata    ChunkMetadata `json:"metadata"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Embedding is the vector for exactly one chunk. Re-embedding replaces it.
type Embedding struct {
	ChunkID      string    `json:"chunk_id"`
	Vector       []float32 `json:"vector"`
	ModelName    string    `json:"model_name"`
	ModelVersion string    `json:"model_version"`
	CreatedAt    time.Time `json:"created_at"`
}

type ChatSession struct {
	ID                string        `json:"id"`
	UserID            string        `json:"user_id"`
	Title             string        `json:"title"`
	Description       string        `json:"description,omitempty"`
	ContextLibraryIDs []string      `json:"context_library_ids,omitempty"`
	MessageCount      int           `json:"message_count"`
	TotalTokens       int           `json:"total_tokens"`
	Status            SessionStatus `json:"status"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

type ChatMessage struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	Role            Role      `json:"role"`
	Content         string    `json:"content"`
	ContextChunkIDs []string  `json:"context_chunk_ids,omitempty"`
	TokenCount      int       `json:"token_count"`
	CreatedAt       time.Time `json:"created_at"`
}

// IntegrationGeneration is an audit record of one code generation event.
type IntegrationGeneration struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	ProviderID      string    `json:"provider_id"`
	Framework       string    `json:"framework"`
	Language        string    `json:"language"`
	Prompt          string    `json:"prompt"`
	GeneratedCode   string    `json:"generated_code"`
	ContextChunkIDs []string  `json:"context_chunk_ids,omitempty"`
	QualityScore    float64   `json:"quality_score"`
	UserFeedback    string    `json:"user_feedback,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// NormalizeTags lowercases, trims, deduplicates and sorts tags.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

// WordCount counts whitespace-separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// Clamp01 bounds v into [0, 1].
func Clamp01(v float64) float64 {
	if v < 0 || v != v {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
