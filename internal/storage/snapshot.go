package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kalambet/keydocs/internal/docs"
	"github.com/kalambet/keydocs/internal/docstore"
)

// SaveSnapshot replaces every stored row with the contents of snap in a
// single transaction.
func (s *Store) SaveSnapshot(snap docstore.Snapshot) error {
	return s.inTx("snapshot", func(tx *sql.Tx) error {
		return writeSnapshot(tx, snap)
	})
}

func writeSnapshot(tx *sql.Tx, snap docstore.Snapshot) error {
	for _, table := range []string{"embeddings", "chunks", "libraries", "chat_messages", "chat_sessions", "integration_generations"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	libStmt, err := tx.Prepare(`
		INSERT INTO libraries (id, name, description, provider_id, source_url, version, language, tags, content_hash, status, created_at, updated_at, last_indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing library insert: %w", err)
	}
	defer libStmt.Close()
	for _, l := range snap.Libraries {
		tags, err := encodeJSON(l.Tags)
		if err != nil {
			return fmt.Errorf("encoding tags of library %s: %w", l.ID, err)
		}
		if _, err := libStmt.Exec(l.ID, l.Name, l.Description, l.ProviderID, l.SourceURL, l.Version, l.Language,
			tags, l.ContentHash, l.Status.String(), formatTime(l.CreatedAt), formatTime(l.UpdatedAt), formatTime(l.LastIndexedAt)); err != nil {
			return fmt.Errorf("inserting library %s: %w", l.ID, err)
		}
	}

	chunkStmt, err := tx.Prepare(`
		INSERT INTO chunks (id, library_id, chunk_index, title, content, section_path, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer chunkStmt.Close()
	for _, c := range snap.Chunks {
		path, err := encodeJSON(c.SectionPath)
		if err != nil {
			return fmt.Errorf("encoding section path of chunk %s: %w", c.ID, err)
		}
		meta, err := encodeJSON(c.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata of chunk %s: %w", c.ID, err)
		}
		if _, err := chunkStmt.Exec(c.ID, c.LibraryID, c.Index, c.Title, c.Content, path, meta, formatTime(c.CreatedAt)); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", c.ID, err)
		}
	}

	embStmt, err := tx.Prepare(`
		INSERT INTO embeddings (chunk_id, vector, model_name, model_version, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing embedding insert: %w", err)
	}
	defer embStmt.Close()
	for _, e := range snap.Embeddings {
		if _, err := embStmt.Exec(e.ChunkID, encodeFloat32s(e.Vector), e.ModelName, e.ModelVersion, formatTime(e.CreatedAt)); err != nil {
			return fmt.Errorf("inserting embedding %s: %w", e.ChunkID, err)
		}
	}

	sessStmt, err := tx.Prepare(`
		INSERT INTO chat_sessions (id, user_id, title, description, context_library_ids, message_count, total_tokens, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing session insert: %w", err)
	}
	defer sessStmt.Close()
	for _, cs := range snap.Sessions {
		libs, err := encodeJSON(cs.ContextLibraryIDs)
		if err != nil {
			return fmt.Errorf("encoding libraries of session %s: %w", cs.ID, err)
		}
		if _, err := sessStmt.Exec(cs.ID, cs.UserID, cs.Title, cs.Description, libs, cs.MessageCount, cs.TotalTokens,
			cs.Status.String(), formatTime(cs.CreatedAt), formatTime(cs.UpdatedAt)); err != nil {
			return fmt.Errorf("inserting session %s: %w", cs.ID, err)
		}
	}

	msgStmt, err := tx.Prepare(`
		INSERT INTO chat_messages (id, session_id, role, content, context_chunk_ids, token_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing message insert: %w", err)
	}
	defer msgStmt.Close()
	for _, m := range snap.Messages {
		ids, err := encodeJSON(m.ContextChunkIDs)
		if err != nil {
			return fmt.Errorf("encoding chunks of message %s: %w", m.ID, err)
		}
		if _, err := msgStmt.Exec(m.ID, m.SessionID, m.Role.String(), m.Content, ids, m.TokenCount, formatTime(m.CreatedAt)); err != nil {
			return fmt.Errorf("inserting message %s: %w", m.ID, err)
		}
	}

	genStmt, err := tx.Prepare(`
		INSERT INTO integration_generations (id, user_id, provider_id, framework, language, prompt, generated_code, context_chunk_ids, quality_score, user_feedback, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing generation insert: %w", err)
	}
	defer genStmt.Close()
	for _, g := range snap.Generations {
		ids, err := encodeJSON(g.ContextChunkIDs)
		if err != nil {
			return fmt.Errorf("encoding chunks of generation %s: %w", g.ID, err)
		}
		if _, err := genStmt.Exec(g.ID, g.UserID, g.ProviderID, g.Framework, g.Language, g.Prompt, g.GeneratedCode,
			ids, g.QualityScore, g.UserFeedback, formatTime(g.CreatedAt)); err != nil {
			return fmt.Errorf("inserting generation %s: %w", g.ID, err)
		}
	}
	return nil
}

// LoadSnapshot reads every stored row back in the order Restore expects.
func (s *Store) LoadSnapshot() (docstore.Snapshot, error) {
	var snap docstore.Snapshot
	var err error
	if snap.Libraries, err = s.loadLibraries(); err != nil {
		return docstore.Snapshot{}, err
	}
	if snap.Chunks, err = s.loadChunks(); err != nil {
		return docstore.Snapshot{}, err
	}
	if snap.Embeddings, err = s.loadEmbeddings(); err != nil {
		return docstore.Snapshot{}, err
	}
	if snap.Sessions, err = s.loadSessions(); err != nil {
		return docstore.Snapshot{}, err
	}
	if snap.Messages, err = s.loadMessages(); err != nil {
		return docstore.Snapshot{}, err
	}
	if snap.Generations, err = s.loadGenerations(); err != nil {
		return docstore.Snapshot{}, err
	}
	return snap, nil
}

func (s *Store) loadLibraries() ([]docs.Library, error) {
	rows, err := s.db.Query(`
		SELECT id, name, description, provider_id, source_url, version, language, tags, content_hash, status, created_at, updated_at, last_indexed_at
		FROM libraries ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying libraries: %w", err)
	}
	defer rows.Close()

	var out []docs.Library
	for rows.Next() {
		var l docs.Library
		var tags, status, created, updated, indexed string
		if err := rows.Scan(&l.ID, &l.Name, &l.Description, &l.ProviderID, &l.SourceURL, &l.Version, &l.Language,
			&tags, &l.ContentHash, &status, &created, &updated, &indexed); err != nil {
			return nil, fmt.Errorf("scanning library: %w", err)
		}
		if l.Tags, err = decodeStrings(tags); err != nil {
			return nil, fmt.Errorf("decoding tags of library %s: %w", l.ID, err)
		}
		if l.Status, err = docs.ParseLibraryStatus(status); err != nil {
			return nil, err
		}
		if l.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if l.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		if l.LastIndexedAt, err = parseTime(indexed); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) loadChunks() ([]docs.Chunk, error) {
	rows, err := s.db.Query(`
		SELECT id, library_id, chunk_index, title, content, section_path, metadata, created_at
		FROM chunks ORDER BY library_id, chunk_index`)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var out []docs.Chunk
	for rows.Next() {
		var c docs.Chunk
		var path, meta, created string
		if err := rows.Scan(&c.ID, &c.LibraryID, &c.Index, &c.Title, &c.Content, &path, &meta, &created); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if c.SectionPath, err = decodeStrings(path); err != nil {
			return nil, fmt.Errorf("decoding section path of chunk %s: %w", c.ID, err)
		}
		if err := json.Unmarshal([]byte(meta), &c.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata of chunk %s: %w", c.ID, err)
		}
		if c.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) loadEmbeddings() ([]docs.Embedding, error) {
	rows, err := s.db.Query(`SELECT chunk_id, vector, model_name, model_version, created_at FROM embeddings`)
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	var out []docs.Embedding
	for rows.Next() {
		var e docs.Embedding
		var blob []byte
		var created string
		if err := rows.Scan(&e.ChunkID, &blob, &e.ModelName, &e.ModelVersion, &created); err != nil {
			return nil, fmt.Errorf("scanning embedding: %w", err)
		}
		if e.Vector, err = decodeFloat32s(blob); err != nil {
			return nil, fmt.Errorf("decoding embedding %s: %w", e.ChunkID, err)
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) loadSessions() ([]docs.ChatSession, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, title, description, context_library_ids, message_count, total_tokens, status, created_at, updated_at
		FROM chat_sessions ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var out []docs.ChatSession
	for rows.Next() {
		var cs docs.ChatSession
		var libs, status, created, updated string
		if err := rows.Scan(&cs.ID, &cs.UserID, &cs.Title, &cs.Description, &libs, &cs.MessageCount, &cs.TotalTokens,
			&status, &created, &updated); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		if cs.ContextLibraryIDs, err = decodeStrings(libs); err != nil {
			return nil, fmt.Errorf("decoding libraries of session %s: %w", cs.ID, err)
		}
		if cs.Status, err = docs.ParseSessionStatus(status); err != nil {
			return nil, err
		}
		if cs.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if cs.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

func (s *Store) loadMessages() ([]docs.ChatMessage, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, role, content, context_chunk_ids, token_count, created_at
		FROM chat_messages ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var out []docs.ChatMessage
	for rows.Next() {
		var m docs.ChatMessage
		var role, ids, created string
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &ids, &m.TokenCount, &created); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if m.Role, err = docs.ParseRole(role); err != nil {
			return nil, err
		}
		if m.ContextChunkIDs, err = decodeStrings(ids); err != nil {
			return nil, fmt.Errorf("decoding chunks of message %s: %w", m.ID, err)
		}
		if m.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) loadGenerations() ([]docs.IntegrationGeneration, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, provider_id, framework, language, prompt, generated_code, context_chunk_ids, quality_score, user_feedback, created_at
		FROM integration_generations ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying generations: %w", err)
	}
	defer rows.Close()

	var out []docs.IntegrationGeneration
	for rows.Next() {
		var g docs.IntegrationGeneration
		var ids, created string
		if err := rows.Scan(&g.ID, &g.UserID, &g.ProviderID, &g.Framework, &g.Language, &g.Prompt, &g.GeneratedCode,
			&ids, &g.QualityScore, &g.UserFeedback, &created); err != nil {
			return nil, fmt.Errorf("scanning generation: %w", err)
		}
		if g.ContextChunkIDs, err = decodeStrings(ids); err != nil {
			return nil, fmt.Errorf("decoding chunks of generation %s: %w", g.ID, err)
		}
		if g.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
