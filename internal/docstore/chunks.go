package docstore

import (
	"sort"

	"github.com/kalambet/keydocs/internal/docs"
	"github.com/kalambet/keydocs/internal/search"
)

// checkVector validates v against the store dimension. Caller holds mu.
func (s *Store) checkVector(v []float32) error {
	if len(v) == 0 {
		return invalid("empty embedding")
	}
	if s.dim != 0 && len(v) != s.dim {
		return invalid("embedding has %d dimensions, store expects %d", len(v), s.dim)
	}
	return nil
}

func (s *Store) newEmbedding(chunkID string, vector []float32, modelName string) docs.Embedding {
	if s.dim == 0 {
		s.dim = len(vector)
	}
	return docs.Embedding{
		ChunkID:      chunkID,
		Vector:       append([]float32(nil), vector...),
		ModelName:    modelName,
		ModelVersion: s.modelVersion,
		CreatedAt:    s.timestamp(),
	}
}

// AddChunkWithEmbedding stores chunk and its embedding in one step. The
// chunk gets a fresh id, a creation time and the next ordinal index of its
// library; caller-supplied values for those are ignored. A zero word count
// is computed from the content and importance is clamped into [0, 1].
//
// Returns ErrNotFound when the library does not exist and ErrInvalidInput
// for an empty vector or one whose length differs from the store dimension.
func (s *Store) AddChunkWithEmbedding(chunk docs.Chunk, vector []float32, modelName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lib, ok := s.libraries[chunk.LibraryID]
	if !ok {
		return "", notFound("library", chunk.LibraryID)
	}
	if err := s.checkVector(vector); err != nil {
		return "", err
	}

	chunk = cloneChunk(chunk)
	chunk.ID = newID()
	chunk.CreatedAt = s.timestamp()
	chunk.Index = s.nextIndex[lib.ID]
	if chunk.Metadata.WordCount == 0 {
		chunk.Metadata.WordCount = docs.WordCount(chunk.Content)
	}
	chunk.Metadata.Importance = docs.Clamp01(chunk.Metadata.Importance)

	s.chunks[chunk.ID] = chunk
	s.embeddings[chunk.ID] = s.newEmbedding(chunk.ID, vector, modelName)
	s.byLibrary[lib.ID] = append(s.byLibrary[lib.ID], chunk.ID)
	s.nextIndex[lib.ID] = chunk.Index + 1

	lib.ChunkCount++
	lib.UpdatedAt = chunk.CreatedAt
	s.libraries[lib.ID] = lib

	return chunk.ID, nil
}

func (s *Store) GetChunk(id string) (docs.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[id]
	if !ok {
		return docs.Chunk{}, notFound("chunk", id)
	}
	return cloneChunk(c), nil
}

// GetLibraryChunks returns the library's chunks ordered by index.
func (s *Store) GetLibraryChunks(libraryID string) ([]docs.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.libraries[libraryID]; !ok {
		return nil, notFound("library", libraryID)
	}
	ids := s.byLibrary[libraryID]
	out := make([]docs.Chunk, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneChunk(s.chunks[id]))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *Store) GetEmbedding(chunkID string) (docs.Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.embeddings[chunkID]
	if !ok {
		return docs.Embedding{}, notFound("embedding", chunkID)
	}
	return cloneEmbedding(e), nil
}

// UpdateChunk replaces a chunk's title and content and its embedding.
func (s *Store) UpdateChunk(id, title, content string, vector []float32, modelName string) (docs.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chunks[id]
	if !ok {
		return docs.Chunk{}, notFound("chunk", id)
	}
	if err := s.checkVector(vector); err != nil {
		return docs.Chunk{}, err
	}

	c.Title = title
	c.Content = content
	c.Metadata.WordCount = docs.WordCount(content)
	s.chunks[id] = c
	s.embeddings[id] = s.newEmbedding(id, vector, modelName)

	if lib, ok := s.libraries[c.LibraryID]; ok {
		lib.UpdatedAt = s.timestamp()
		s.libraries[lib.ID] = lib
	}
	return cloneChunk(c), nil
}

// ReplaceLibraryChunks swaps the whole chunk set of a library for chunks,
// index-aligned with vectors, in one critical section. Every vector is
// validated before anything is removed, so on error the old chunks stay.
// Indexes restart at 0 and neighbouring chunks are linked as related.
func (s *Store) ReplaceLibraryChunks(libraryID string, chunks []docs.Chunk, vectors [][]float32, modelName string) ([]string, error) {
	if len(chunks) != len(vectors) {
		return nil, invalid("%d chunks but %d embeddings", len(chunks), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lib, ok := s.libraries[libraryID]
	if !ok {
		return nil, notFound("library", libraryID)
	}
	dim := s.dim
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, invalid("chunk %d: empty embedding", i)
		}
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim {
			return nil, invalid("chunk %d: embedding has %d dimensions, store expects %d", i, len(v), dim)
		}
	}

	for _, id := range s.byLibrary[libraryID] {
		delete(s.chunks, id)
		delete(s.embeddings, id)
	}

	now := s.timestamp()
	ids := make([]string, len(chunks))
	for i := range chunks {
		ids[i] = newID()
	}
	for i, c := range chunks {
		c = cloneChunk(c)
		c.ID = ids[i]
		c.LibraryID = libraryID
		c.Index = i
		c.CreatedAt = now
		if c.Metadata.WordCount == 0 {
			c.Metadata.WordCount = docs.WordCount(c.Content)
		}
		c.Metadata.Importance = docs.Clamp01(c.Metadata.Importance)
		var related []string
		if i > 0 {
			related = append(related, ids[i-1])
		}
		if i+1 < len(ids) {
			related = append(related, ids[i+1])
		}
		c.Metadata.RelatedChunkIDs = related

		s.chunks[c.ID] = c
		s.embeddings[c.ID] = s.newEmbedding(c.ID, vectors[i], modelName)
	}

	s.byLibrary[libraryID] = append([]string(nil), ids...)
	s.nextIndex[libraryID] = len(ids)
	lib.ChunkCount = len(ids)
	lib.UpdatedAt = now
	s.libraries[libraryID] = lib
	return ids, nil
}

// SetRelatedChunks replaces the soft related-chunk references of a chunk.
func (s *Store) SetRelatedChunks(id string, related []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chunks[id]
	if !ok {
		return notFound("chunk", id)
	}
	c.Metadata.RelatedChunkIDs = cloneStrings(related)
	s.chunks[id] = c
	return nil
}

// DeleteChunk removes a chunk, its embedding and its library index entry.
func (s *Store) DeleteChunk(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chunks[id]
	if !ok {
		return notFound("chunk", id)
	}
	delete(s.chunks, id)
	delete(s.embeddings, id)
	s.byLibrary[c.LibraryID] = removeID(s.byLibrary[c.LibraryID], id)
	if lib, ok := s.libraries[c.LibraryID]; ok {
		lib.ChunkCount--
		lib.UpdatedAt = s.timestamp()
		s.libraries[lib.ID] = lib
	}
	return nil
}

// VectorSearch ranks stored chunks against query. Candidates are gathered
// under the read lock; scoring runs after it is released. Stored vectors
// are never modified in place, so the gathered slices stay valid.
func (s *Store) VectorSearch(p search.Params, query []float32) []search.Result {
	s.mu.RLock()
	candidates := make([]search.Candidate, 0, len(s.embeddings))
	for id, e := range s.embeddings {
		c, ok := s.chunks[id]
		if !ok {
			continue
		}
		candidates = append(candidates, search.Candidate{Chunk: c, Embedding: e})
	}
	s.mu.RUnlock()

	results := search.Rank(query, candidates, p, s.timestamp())
	for i := range results {
		results[i].Chunk = cloneChunk(results[i].Chunk)
	}
	return results
}
