package docstore

import (
	"sort"

	"github.com/kalambet/keydocs/internal/docs"
)

// Snapshot is a full copy of every table. Chunks are ordered by library
// and index, messages by session and append order, generations by append
// order.
type Snapshot struct {
	Libraries   []docs.Library
	Chunks      []docs.Chunk
	Embeddings  []docs.Embedding
	Sessions    []docs.ChatSession
	Messages    []docs.ChatMessage
	Generations []docs.IntegrationGeneration
}

// Snapshot exports every table.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snap Snapshot
	for _, lib := range s.libraries {
		snap.Libraries = append(snap.Libraries, cloneLibrary(lib))
	}
	sortLibraries(snap.Libraries)

	for _, lib := range snap.Libraries {
		ids := append([]string(nil), s.byLibrary[lib.ID]...)
		sort.Slice(ids, func(i, j int) bool { return s.chunks[ids[i]].Index < s.chunks[ids[j]].Index })
		for _, id := range ids {
			snap.Chunks = append(snap.Chunks, cloneChunk(s.chunks[id]))
			if e, ok := s.embeddings[id]; ok {
				snap.Embeddings = append(snap.Embeddings, cloneEmbedding(e))
			}
		}
	}

	for _, sess := range s.sessions {
		sess.ContextLibraryIDs = cloneStrings(sess.ContextLibraryIDs)
		snap.Sessions = append(snap.Sessions, sess)
	}
	sort.Slice(snap.Sessions, func(i, j int) bool {
		a, b := snap.Sessions[i], snap.Sessions[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	for _, sess := range snap.Sessions {
		for _, id := range s.bySession[sess.ID] {
			m := s.messages[id]
			m.ContextChunkIDs = cloneStrings(m.ContextChunkIDs)
			snap.Messages = append(snap.Messages, m)
		}
	}

	for _, g := range s.generations {
		g.ContextChunkIDs = cloneStrings(g.ContextChunkIDs)
		snap.Generations = append(snap.Generations, g)
	}
	return snap
}

// Restore replaces the store's contents with snap and rebuilds every
// index from the primary rows. Rows referencing a missing parent, and
// embeddings whose length disagrees with the store dimension, are
// rejected with ErrInvalidInput and leave the store unchanged.
func (s *Store) Restore(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	libs := make(map[string]docs.Library, len(snap.Libraries))
	for _, lib := range snap.Libraries {
		if lib.ID == "" {
			return invalid("library without id")
		}
		libs[lib.ID] = cloneLibrary(lib)
	}
	chunks := make(map[string]docs.Chunk, len(snap.Chunks))
	for _, c := range snap.Chunks {
		if _, ok := libs[c.LibraryID]; !ok {
			return invalid("chunk %s references unknown library %s", c.ID, c.LibraryID)
		}
		chunks[c.ID] = cloneChunk(c)
	}
	dim := s.dim
	embeddings := make(map[string]docs.Embedding, len(snap.Embeddings))
	for _, e := range snap.Embeddings {
		if _, ok := chunks[e.ChunkID]; !ok {
			return invalid("embedding references unknown chunk %s", e.ChunkID)
		}
		if dim == 0 {
			dim = len(e.Vector)
		}
		if len(e.Vector) == 0 || len(e.Vector) != dim {
			return invalid("embedding for chunk %s has %d dimensions, store expects %d", e.ChunkID, len(e.Vector), dim)
		}
		embeddings[e.ChunkID] = cloneEmbedding(e)
	}
	sessions := make(map[string]docs.ChatSession, len(snap.Sessions))
	for _, sess := range snap.Sessions {
		sess.ContextLibraryIDs = cloneStrings(sess.ContextLibraryIDs)
		sessions[sess.ID] = sess
	}
	for _, m := range snap.Messages {
		if _, ok := sessions[m.SessionID]; !ok {
			return invalid("message %s references unknown session %s", m.ID, m.SessionID)
		}
	}

	s.reset()
	s.dim = dim
	s.libraries = libs
	s.chunks = chunks
	s.embeddings = embeddings
	s.sessions = sessions

	for _, lib := range snap.Libraries {
		if lib.ProviderID != "" {
			s.byProvider[lib.ProviderID] = append(s.byProvider[lib.ProviderID], lib.ID)
		}
	}
	for _, c := range snap.Chunks {
		s.byLibrary[c.LibraryID] = append(s.byLibrary[c.LibraryID], c.ID)
		if c.Index >= s.nextIndex[c.LibraryID] {
			s.nextIndex[c.LibraryID] = c.Index + 1
		}
	}
	for id, lib := range s.libraries {
		lib.ChunkCount = len(s.byLibrary[id])
		s.libraries[id] = lib
	}
	for _, sess := range snap.Sessions {
		s.byUser[sess.UserID] = append(s.byUser[sess.UserID], sess.ID)
	}
	for _, m := range snap.Messages {
		m.ContextChunkIDs = cloneStrings(m.ContextChunkIDs)
		s.messages[m.ID] = m
		s.bySession[m.SessionID] = append(s.bySession[m.SessionID], m.ID)
	}
	for _, g := range snap.Generations {
		g.ContextChunkIDs = cloneStrings(g.ContextChunkIDs)
		s.generations = append(s.generations, g)
	}
	return nil
}
