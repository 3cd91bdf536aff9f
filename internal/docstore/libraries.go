package docstore

import (
	"time"

	"github.com/kalambet/keydocs/internal/docs"
)

// AddLibrary inserts lib under a fresh id. Caller-supplied id, timestamps
// and chunk count are ignored; an unset status becomes Pending.
func (s *Store) AddLibrary(lib docs.Library) (string, error) {
	if lib.Name == "" {
		return "", invalid("library name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLibrary(lib).ID, nil
}

func (s *Store) insertLibrary(lib docs.Library) docs.Library {
	now := s.timestamp()
	lib = cloneLibrary(lib)
	lib.ID = newID()
	lib.Tags = docs.NormalizeTags(lib.Tags)
	lib.ChunkCount = 0
	lib.CreatedAt = now
	lib.UpdatedAt = now
	lib.LastIndexedAt = time.Time{}
	s.libraries[lib.ID] = lib
	if lib.ProviderID != "" {
		s.byProvider[lib.ProviderID] = append(s.byProvider[lib.ProviderID], lib.ID)
	}
	return lib
}

// GetOrCreateProviderLibrary returns the oldest library owned by
// providerID, creating one from tmpl when the provider has none. The
// boolean reports whether a library was created.
func (s *Store) GetOrCreateProviderLibrary(providerID string, tmpl docs.Library) (docs.Library, bool, error) {
	if providerID == "" {
		return docs.Library{}, false, invalid("provider id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if ids := s.byProvider[providerID]; len(ids) > 0 {
		libs := make([]docs.Library, 0, len(ids))
		for _, id := range ids {
			libs = append(libs, s.libraries[id])
		}
		sortLibraries(libs)
		return cloneLibrary(libs[0]), false, nil
	}

	tmpl.ProviderID = providerID
	if tmpl.Name == "" {
		tmpl.Name = providerID
	}
	return cloneLibrary(s.insertLibrary(tmpl)), true, nil
}

func (s *Store) GetLibrary(id string) (docs.Library, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lib, ok := s.libraries[id]
	if !ok {
		return docs.Library{}, notFound("library", id)
	}
	return cloneLibrary(lib), nil
}

// ListLibraries returns every library, oldest first.
func (s *Store) ListLibraries() []docs.Library {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]docs.Library, 0, len(s.libraries))
	for _, lib := range s.libraries {
		out = append(out, cloneLibrary(lib))
	}
	sortLibraries(out)
	return out
}

// GetLibrariesByProvider returns the libraries owned by providerID, oldest
// first. Unknown providers yield an empty list.
func (s *Store) GetLibrariesByProvider(providerID string) []docs.Library {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byProvider[providerID]
	out := make([]docs.Library, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneLibrary(s.libraries[id]))
	}
	sortLibraries(out)
	return out
}

// UpdateLibrary applies fn to a copy of the library and stores the result.
// The id, provider id, creation time and chunk count cannot be changed
// through fn; UpdatedAt is bumped.
func (s *Store) UpdateLibrary(id string, fn func(*docs.Library)) (docs.Library, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.libraries[id]
	if !ok {
		return docs.Library{}, notFound("library", id)
	}
	next := cloneLibrary(cur)
	fn(&next)

	next.ID = cur.ID
	next.ProviderID = cur.ProviderID
	next.CreatedAt = cur.CreatedAt
	next.ChunkCount = cur.ChunkCount
	next.Tags = docs.NormalizeTags(next.Tags)
	next.UpdatedAt = s.timestamp()
	if next.Status == docs.StatusIndexed && cur.Status != docs.StatusIndexed {
		next.LastIndexedAt = next.UpdatedAt
	}
	s.libraries[id] = next
	return cloneLibrary(next), nil
}

// DeleteLibrary removes the library together with its chunks, their
// embeddings and every index entry referencing them.
func (s *Store) DeleteLibrary(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lib, ok := s.libraries[id]
	if !ok {
		return notFound("library", id)
	}
	for _, cid := range s.byLibrary[id] {
		delete(s.chunks, cid)
		delete(s.embeddings, cid)
	}
	delete(s.byLibrary, id)
	delete(s.nextIndex, id)
	if lib.ProviderID != "" {
		ids := removeID(s.byProvider[lib.ProviderID], id)
		if len(ids) == 0 {
			delete(s.byProvider, lib.ProviderID)
		} else {
			s.byProvider[lib.ProviderID] = ids
		}
	}
	delete(s.libraries, id)
	return nil
}
