// Package docstore is the in-memory record of documentation libraries,
// chunks, embeddings, chat sessions and generation history.
//
// Every table and secondary index lives behind a single RWMutex, so a
// multi-table write (chunk + embedding + library index + counters) is
// observed by readers either entirely or not at all.
package docstore

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/keydocs/internal/docs"
)

// DefaultModelVersion tags embeddings when Options.ModelVersion is empty.
const DefaultModelVersion = "v1"

// Options configures a Store.
type Options struct {
	// Dimension is the required embedding length. 0 adopts the length of
	// the first vector stored.
	Dimension    int
	ModelVersion string
	// Clock returns the current time; time.Now when nil.
	Clock func() time.Time
}

// Stats holds aggregate row counts, recomputed on every call.
type Stats struct {
	TotalLibraries   int `json:"total_libraries"`
	TotalChunks      int `json:"total_chunks"`
	TotalEmbeddings  int `json:"total_embeddings"`
	TotalSessions    int `json:"total_sessions"`
	TotalMessages    int `json:"total_messages"`
	TotalGenerations int `json:"total_generations"`
}

// Store is safe for concurrent use.
type Store struct {
	mu           sync.RWMutex
	dim          int
	modelVersion string
	now          func() time.Time

	libraries   map[string]docs.Library
	chunks      map[string]docs.Chunk
	embeddings  map[string]docs.Embedding
	sessions    map[string]docs.ChatSession
	messages    map[string]docs.ChatMessage
	generations []docs.IntegrationGeneration

	byProvider map[string][]string // provider id -> library ids
	byLibrary  map[string][]string // library id -> chunk ids, ingestion order
	byUser     map[string][]string // user id -> session ids
	bySession  map[string][]string // session id -> message ids, append order
	nextIndex  map[string]int      // library id -> next chunk ordinal
}

// New returns an empty Store.
func New(opts Options) *Store {
	s := &Store{
		dim:          opts.Dimension,
		modelVersion: opts.ModelVersion,
		now:          opts.Clock,
	}
	if s.modelVersion == "" {
		s.modelVersion = DefaultModelVersion
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.libraries = make(map[string]docs.Library)
	s.chunks = make(map[string]docs.Chunk)
	s.embeddings = make(map[string]docs.Embedding)
	s.sessions = make(map[string]docs.ChatSession)
	s.messages = make(map[string]docs.ChatMessage)
	s.generations = nil
	s.byProvider = make(map[string][]string)
	s.byLibrary = make(map[string][]string)
	s.byUser = make(map[string][]string)
	s.bySession = make(map[string][]string)
	s.nextIndex = make(map[string]int)
}

// Dimension returns the embedding length the store accepts, 0 if not yet
// fixed.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, docs.ErrNotFound)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), docs.ErrInvalidInput)
}

// GetLibraryStats returns current row counts.
func (s *Store) GetLibraryStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		TotalLibraries:   len(s.libraries),
		TotalChunks:      len(s.chunks),
		TotalEmbeddings:  len(s.embeddings),
		TotalSessions:    len(s.sessions),
		TotalMessages:    len(s.messages),
		TotalGenerations: len(s.generations),
	}
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneLibrary(l docs.Library) docs.Library {
	l.Tags = cloneStrings(l.Tags)
	return l
}

func cloneChunk(c docs.Chunk) docs.Chunk {
	c.SectionPath = cloneStrings(c.SectionPath)
	c.Metadata.Keywords = cloneStrings(c.Metadata.Keywords)
	c.Metadata.RelatedChunkIDs = cloneStrings(c.Metadata.RelatedChunkIDs)
	return c
}

func cloneEmbedding(e docs.Embedding) docs.Embedding {
	e.Vector = append([]float32(nil), e.Vector...)
	return e
}

func sortLibraries(libs []docs.Library) {
	sort.Slice(libs, func(i, j int) bool {
		if !libs[i].CreatedAt.Equal(libs[j].CreatedAt) {
			return libs[i].CreatedAt.Before(libs[j].CreatedAt)
		}
		return libs[i].ID < libs[j].ID
	})
}

func newID() string {
	return uuid.New().String()
}
