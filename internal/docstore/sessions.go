package docstore

import (
	"sort"

	"github.com/kalambet/keydocs/internal/docs"
)

// CreateChatSession opens an Active session for userID.
func (s *Store) CreateChatSession(userID, title, description string, libraryIDs []string) (string, error) {
	if userID == "" {
		return "", invalid("user id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.timestamp()
	sess := docs.ChatSession{
		ID:                newID(),
		UserID:            userID,
		Title:             title,
		Description:       description,
		ContextLibraryIDs: cloneStrings(libraryIDs),
		Status:            docs.SessionActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.sessions[sess.ID] = sess
	s.byUser[userID] = append(s.byUser[userID], sess.ID)
	return sess.ID, nil
}

func (s *Store) GetChatSession(id string) (docs.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return docs.ChatSession{}, notFound("session", id)
	}
	sess.ContextLibraryIDs = cloneStrings(sess.ContextLibraryIDs)
	return sess, nil
}

// AddChatMessage appends msg to its session and updates the session's
// message and token counters.
func (s *Store) AddChatMessage(msg docs.ChatMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[msg.SessionID]
	if !ok {
		return "", notFound("session", msg.SessionID)
	}
	msg.ID = newID()
	msg.CreatedAt = s.timestamp()
	msg.ContextChunkIDs = cloneStrings(msg.ContextChunkIDs)
	s.messages[msg.ID] = msg
	s.bySession[sess.ID] = append(s.bySession[sess.ID], msg.ID)

	sess.MessageCount++
	sess.TotalTokens += msg.TokenCount
	sess.UpdatedAt = msg.CreatedAt
	s.sessions[sess.ID] = sess
	return msg.ID, nil
}

// GetChatMessages returns the session's messages in append order. An
// unknown or empty session yields an empty list.
func (s *Store) GetChatMessages(sessionID string) []docs.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.bySession[sessionID]
	out := make([]docs.ChatMessage, 0, len(ids))
	for _, id := range ids {
		m := s.messages[id]
		m.ContextChunkIDs = cloneStrings(m.ContextChunkIDs)
		out = append(out, m)
	}
	return out
}

// GetUserChatSessions returns the user's Active sessions, most recently
// updated first.
func (s *Store) GetUserChatSessions(userID string) []docs.ChatSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]docs.ChatSession, 0, len(s.byUser[userID]))
	for _, id := range s.byUser[userID] {
		sess := s.sessions[id]
		if sess.Status != docs.SessionActive {
			continue
		}
		sess.ContextLibraryIDs = cloneStrings(sess.ContextLibraryIDs)
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) SetChatSessionStatus(id string, status docs.SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return notFound("session", id)
	}
	sess.Status = status
	sess.UpdatedAt = s.timestamp()
	s.sessions[id] = sess
	return nil
}

// StoreIntegrationGeneration appends a generation record.
func (s *Store) StoreIntegrationGeneration(rec docs.IntegrationGeneration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = newID()
	rec.CreatedAt = s.timestamp()
	rec.ContextChunkIDs = cloneStrings(rec.ContextChunkIDs)
	rec.QualityScore = docs.Clamp01(rec.QualityScore)
	s.generations = append(s.generations, rec)
	return rec.ID, nil
}

// GetIntegrationGenerations returns userID's generation records in the
// order they were stored. An empty userID returns every record.
func (s *Store) GetIntegrationGenerations(userID string) []docs.IntegrationGeneration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []docs.IntegrationGeneration
	for _, g := range s.generations {
		if userID != "" && g.UserID != userID {
			continue
		}
		g.ContextChunkIDs = cloneStrings(g.ContextChunkIDs)
		out = append(out, g)
	}
	return out
}
