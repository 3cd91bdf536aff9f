package docstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/keydocs/internal/docs"
	"github.com/kalambet/keydocs/internal/embedding"
	"github.com/kalambet/keydocs/internal/search"
)

// stepClock advances one second on every call so ordering by timestamp is
// deterministic.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore(t *testing.T, dim int) *Store {
	t.Helper()
	clock := &stepClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(Options{Dimension: dim, Clock: clock.Now})
}

func mustAddLibrary(t *testing.T, s *Store, name, provider string) string {
	t.Helper()
	id, err := s.AddLibrary(docs.Library{Name: name, ProviderID: provider})
	require.NoError(t, err)
	return id
}

func TestAddLibrary_AssignsIdentity(t *testing.T) {
	s := newTestStore(t, 3)
	past := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

	id, err := s.AddLibrary(docs.Library{
		ID:         "caller-id",
		Name:       "Stripe",
		ProviderID: "stripe",
		Tags:       []string{"Payments", "payments", " api "},
		ChunkCount: 42,
		CreatedAt:  past,
		Status:     docs.StatusIndexed,
	})
	require.NoError(t, err)
	assert.NotEqual(t, "caller-id", id)

	lib, err := s.GetLibrary(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "payments"}, lib.Tags)
	assert.Zero(t, lib.ChunkCount)
	assert.True(t, lib.CreatedAt.After(past))
	assert.Equal(t, lib.CreatedAt, lib.UpdatedAt)
	assert.Equal(t, docs.StatusIndexed, lib.Status)

	_, err = s.AddLibrary(docs.Library{})
	assert.ErrorIs(t, err, docs.ErrInvalidInput)

	_, err = s.GetLibrary("missing")
	assert.ErrorIs(t, err, docs.ErrNotFound)
}

func TestGetLibrariesByProvider(t *testing.T) {
	s := newTestStore(t, 3)
	a := mustAddLibrary(t, s, "OpenAI API", "openai")
	mustAddLibrary(t, s, "Anthropic API", "anthropic")
	b := mustAddLibrary(t, s, "OpenAI Cookbook", "openai")
	mustAddLibrary(t, s, "Unowned", "")

	libs := s.GetLibrariesByProvider("openai")
	require.Len(t, libs, 2)
	assert.Equal(t, a, libs[0].ID)
	assert.Equal(t, b, libs[1].ID)
	for _, l := range libs {
		assert.Equal(t, "openai", l.ProviderID)
	}

	assert.Empty(t, s.GetLibrariesByProvider("nobody"))
	assert.Len(t, s.ListLibraries(), 4)
}

func TestGetOrCreateProviderLibrary(t *testing.T) {
	s := newTestStore(t, 3)

	lib, created, err := s.GetOrCreateProviderLibrary("github", docs.Library{Name: "GitHub"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "github", lib.ProviderID)

	again, created, err := s.GetOrCreateProviderLibrary("github", docs.Library{Name: "Other"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, lib.ID, again.ID)

	_, _, err = s.GetOrCreateProviderLibrary("", docs.Library{})
	assert.ErrorIs(t, err, docs.ErrInvalidInput)
}

func TestUpdateLibrary_ProtectsIdentity(t *testing.T) {
	s := newTestStore(t, 3)
	id := mustAddLibrary(t, s, "Twilio", "twilio")
	before, _ := s.GetLibrary(id)

	updated, err := s.UpdateLibrary(id, func(l *docs.Library) {
		l.ID = "hijack"
		l.ProviderID = "other"
		l.ContentHash = "abc"
		l.Status = docs.StatusIndexed
		l.Version = "2.0"
	})
	require.NoError(t, err)
	assert.Equal(t, id, updated.ID)
	assert.Equal(t, "twilio", updated.ProviderID)
	assert.Equal(t, "abc", updated.ContentHash)
	assert.Equal(t, "2.0", updated.Version)
	assert.True(t, updated.UpdatedAt.After(before.UpdatedAt))
	assert.Equal(t, updated.UpdatedAt, updated.LastIndexedAt)
	assert.Len(t, s.GetLibrariesByProvider("twilio"), 1)
	assert.Empty(t, s.GetLibrariesByProvider("other"))

	_, err = s.UpdateLibrary("missing", func(*docs.Library) {})
	assert.ErrorIs(t, err, docs.ErrNotFound)
}

func TestAddChunkWithEmbedding(t *testing.T) {
	s := newTestStore(t, 3)
	lib := mustAddLibrary(t, s, "Docs", "p")

	id, err := s.AddChunkWithEmbedding(docs.Chunk{
		ID:        "ignored",
		LibraryID: lib,
		Index:     99,
		Title:     "Auth",
		Content:   "use a bearer token",
		Metadata:  docs.ChunkMetadata{Importance: 1.7},
	}, []float32{1, 0, 0}, "hash")
	require.NoError(t, err)
	assert.NotEqual(t, "ignored", id)

	c, err := s.GetChunk(id)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Index)
	assert.Equal(t, 4, c.Metadata.WordCount)
	assert.Equal(t, 1.0, c.Metadata.Importance)
	assert.False(t, c.CreatedAt.IsZero())

	e, err := s.GetEmbedding(id)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, e.Vector)
	assert.Equal(t, "hash", e.ModelName)
	assert.Equal(t, DefaultModelVersion, e.ModelVersion)

	l, _ := s.GetLibrary(lib)
	assert.Equal(t, 1, l.ChunkCount)
}

func TestAddChunkWithEmbedding_Errors(t *testing.T) {
	s := newTestStore(t, 3)
	lib := mustAddLibrary(t, s, "Docs", "")

	_, err := s.AddChunkWithEmbedding(docs.Chunk{LibraryID: "missing"}, []float32{1, 2, 3}, "m")
	assert.ErrorIs(t, err, docs.ErrNotFound)

	_, err = s.AddChunkWithEmbedding(docs.Chunk{LibraryID: lib}, nil, "m")
	assert.ErrorIs(t, err, docs.ErrInvalidInput)

	_, err = s.AddChunkWithEmbedding(docs.Chunk{LibraryID: lib}, []float32{1, 2}, "m")
	assert.ErrorIs(t, err, docs.ErrInvalidInput)

	assert.Zero(t, s.GetLibraryStats().TotalChunks)
}

func TestAddChunkWithEmbedding_AdoptsFirstDimension(t *testing.T) {
	s := newTestStore(t, 0)
	lib := mustAddLibrary(t, s, "Docs", "")

	_, err := s.AddChunkWithEmbedding(docs.Chunk{LibraryID: lib}, []float32{1, 2}, "m")
	require.NoError(t, err)
	assert.Equal(t, 2, s.Dimension())

	_, err = s.AddChunkWithEmbedding(docs.Chunk{LibraryID: lib}, []float32{1, 2, 3}, "m")
	assert.ErrorIs(t, err, docs.ErrInvalidInput)
}

func TestChunkIndexFollowsIngestionOrder(t *testing.T) {
	s := newTestStore(t, 1)
	lib := mustAddLibrary(t, s, "Docs", "")

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := s.AddChunkWithEmbedding(docs.Chunk{LibraryID: lib, Content: fmt.Sprint(i)}, []float32{1}, "m")
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, s.DeleteChunk(ids[2]))

	id, err := s.AddChunkWithEmbedding(docs.Chunk{LibraryID: lib}, []float32{1}, "m")
	require.NoError(t, err)
	c, _ := s.GetChunk(id)
	assert.Equal(t, 3, c.Index, "deleted ordinals are not reused")

	chunks, err := s.GetLibraryChunks(lib)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, []int{0, 1, 3}, []int{chunks[0].Index, chunks[1].Index, chunks[2].Index})

	l, _ := s.GetLibrary(lib)
	assert.Equal(t, 3, l.ChunkCount)
}

func TestReplaceLibraryChunks(t *testing.T) {
	s := newTestStore(t, 2)
	lib := mustAddLibrary(t, s, "Docs", "stripe")
	old, err := s.AddChunkWithEmbedding(docs.Chunk{LibraryID: lib, Content: "old"}, []float32{1, 0}, "m")
	require.NoError(t, err)

	_, err = s.ReplaceLibraryChunks(lib, []docs.Chunk{{Content: "a"}, {Content: "b"}}, [][]float32{{0, 1}, {1, 2, 3}}, "m")
	require.ErrorIs(t, err, docs.ErrInvalidInput)
	_, err = s.GetChunk(old)
	require.NoError(t, err, "a rejected replacement must keep the old chunks")

	_, err = s.ReplaceLibraryChunks("missing", nil, nil, "m")
	assert.ErrorIs(t, err, docs.ErrNotFound)

	ids, err := s.ReplaceLibraryChunks(lib, []docs.Chunk{{Content: "a b"}, {Content: "c"}, {Content: "d"}}, [][]float32{{0, 1}, {1, 1}, {1, 0}}, "m")
	require.NoError(t, err)
	require.Len(t, ids, 3)

	_, err = s.GetChunk(old)
	assert.ErrorIs(t, err, docs.ErrNotFound)
	_, err = s.GetEmbedding(old)
	assert.ErrorIs(t, err, docs.ErrNotFound)

	chunks, err := s.GetLibraryChunks(lib)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, ids[i], c.ID)
		assert.Equal(t, i, c.Index)
	}
	assert.Equal(t, 2, chunks[0].Metadata.WordCount)
	assert.Equal(t, []string{ids[0], ids[2]}, chunks[1].Metadata.RelatedChunkIDs)

	got, err := s.GetLibrary(lib)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ChunkCount)
	assert.Equal(t, 3, s.GetLibraryStats().TotalEmbeddings)
}

func TestDeleteLibrary_Cascades(t *testing.T) {
	s := newTestStore(t, 2)
	lib := mustAddLibrary(t, s, "Docs", "openai")
	other := mustAddLibrary(t, s, "Other", "openai")
	cid, err := s.AddChunkWithEmbedding(docs.Chunk{LibraryID: lib, Content: "x"}, []float32{1, 0}, "m")
	require.NoError(t, err)
	keep, err := s.AddChunkWithEmbedding(docs.Chunk{LibraryID: other, Content: "y"}, []float32{0, 1}, "m")
	require.NoError(t, err)

	require.NoError(t, s.DeleteLibrary(lib))

	_, err = s.GetLibrary(lib)
	assert.ErrorIs(t, err, docs.ErrNotFound)
	_, err = s.GetChunk(cid)
	assert.ErrorIs(t, err, docs.ErrNotFound)
	_, err = s.GetEmbedding(cid)
	assert.ErrorIs(t, err, docs.ErrNotFound)
	_, err = s.GetLibraryChunks(lib)
	assert.ErrorIs(t, err, docs.ErrNotFound)

	libs := s.GetLibrariesByProvider("openai")
	require.Len(t, libs, 1)
	assert.Equal(t, other, libs[0].ID)

	p := search.DefaultParams()
	p.MinSimilarity = 0
	results := s.VectorSearch(p, []float32{1, 0})
	for _, r := range results {
		assert.NotEqual(t, cid, r.Chunk.ID)
	}

	stats := s.GetLibraryStats()
	assert.Equal(t, 1, stats.TotalLibraries)
	assert.Equal(t, 1, stats.TotalChunks)
	assert.Equal(t, 1, stats.TotalEmbeddings)

	_, err = s.GetChunk(keep)
	assert.NoError(t, err)

	assert.ErrorIs(t, s.DeleteLibrary(lib), docs.ErrNotFound)
}

func TestUpdateChunk_ReplacesEmbedding(t *testing.T) {
	s := newTestStore(t, 2)
	lib := mustAddLibrary(t, s, "Docs", "")
	id, err := s.AddChunkWithEmbedding(docs.Chunk{LibraryID: lib, Content: "old"}, []float32{1, 0}, "m1")
	require.NoError(t, err)

	c, err := s.UpdateChunk(id, "New", "new body text", []float32{0, 1}, "m2")
	require.NoError(t, err)
	assert.Equal(t, "New", c.Title)
	assert.Equal(t, 3, c.Metadata.WordCount)

	e, _ := s.GetEmbedding(id)
	assert.Equal(t, []float32{0, 1}, e.Vector)
	assert.Equal(t, "m2", e.ModelName)
	assert.Equal(t, 1, s.GetLibraryStats().TotalEmbeddings)

	_, err = s.UpdateChunk(id, "t", "c", []float32{1}, "m")
	assert.ErrorIs(t, err, docs.ErrInvalidInput)
	_, err = s.UpdateChunk("missing", "t", "c", []float32{1, 0}, "m")
	assert.ErrorIs(t, err, docs.ErrNotFound)
}

func TestReturnedValuesAreCopies(t *testing.T) {
	s := newTestStore(t, 2)
	lib := mustAddLibrary(t, s, "Docs", "")
	vec := []float32{1, 0}
	id, err := s.AddChunkWithEmbedding(docs.Chunk{LibraryID: lib, SectionPath: []string{"A"}}, vec, "m")
	require.NoError(t, err)

	vec[0] = 9
	c, _ := s.GetChunk(id)
	c.SectionPath[0] = "mutated"
	e, _ := s.GetEmbedding(id)
	e.Vector[1] = 9

	c2, _ := s.GetChunk(id)
	e2, _ := s.GetEmbedding(id)
	assert.Equal(t, []string{"A"}, c2.SectionPath)
	assert.Equal(t, []float32{1, 0}, e2.Vector)
}

// Ingesting a passage and searching with its own embedding at a 0.99
// threshold returns that passage first.
func TestVectorSearch_ExactTextRoundTrip(t *testing.T) {
	ctx := context.Background()
	provider := embedding.NewHashProvider(384)
	s := newTestStore(t, provider.Dimension())
	lib := mustAddLibrary(t, s, "OAuth Provider", "oauth")

	texts := map[string]docs.ContentType{
		"OAuth setup requires a client ID and secret":     docs.ContentConfiguration,
		"Rate limits reset every sixty seconds":           docs.ContentReference,
		"Webhooks deliver events to your HTTPS endpoint":  docs.ContentOverview,
		"Rotate credentials regularly to reduce exposure": docs.ContentTutorial,
	}
	var target string
	for text, ct := range texts {
		vec, err := provider.Embed(ctx, text)
		require.NoError(t, err)
		id, err := s.AddChunkWithEmbedding(docs.Chunk{
			LibraryID: lib,
			Content:   text,
			Metadata:  docs.ChunkMetadata{ContentType: ct},
		}, vec, provider.Model())
		require.NoError(t, err)
		if ct == docs.ContentConfiguration {
			target = id
		}
	}

	query, err := provider.Embed(ctx, "OAuth setup requires a client ID and secret")
	require.NoError(t, err)
	p := search.DefaultParams()
	p.MinSimilarity = 0.99

	results := s.VectorSearch(p, query)
	require.NotEmpty(t, results)
	assert.Equal(t, target, results[0].Chunk.ID)
	assert.Equal(t, docs.ContentConfiguration, results[0].Chunk.Metadata.ContentType)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Similarity, 0.99)
	}
}

func TestVectorSearch_ThresholdOrderAndLimit(t *testing.T) {
	s := newTestStore(t, 2)
	lib := mustAddLibrary(t, s, "Docs", "")
	vectors := [][]float32{{1, 0}, {0.9, 0.1}, {0.7, 0.7}, {0.1, 0.9}, {0, 1}, {0.95, 0.05}}
	for _, v := range vectors {
		_, err := s.AddChunkWithEmbedding(docs.Chunk{LibraryID: lib}, v, "m")
		require.NoError(t, err)
	}

	for _, threshold := range []float64{0, 0.5, 0.7, 0.95, 1} {
		p := search.DefaultParams()
		p.MinSimilarity = threshold
		p.MaxResults = 3
		results := s.VectorSearch(p, []float32{1, 0})
		assert.LessOrEqual(t, len(results), 3)
		for i, r := range results {
			assert.GreaterOrEqual(t, r.Similarity, threshold)
			if i > 0 {
				assert.GreaterOrEqual(t, results[i-1].Relevance, r.Relevance)
			}
		}
	}

	p := search.DefaultParams()
	p.MinSimilarity = 1.01
	assert.Empty(t, s.VectorSearch(p, []float32{1, 0}))
	assert.Empty(t, s.VectorSearch(search.DefaultParams(), []float32{1, 0, 0}))
}

func TestChatSessions(t *testing.T) {
	s := newTestStore(t, 2)

	first, err := s.CreateChatSession("u1", "First", "", []string{"lib-a"})
	require.NoError(t, err)
	second, err := s.CreateChatSession("u1", "Second", "", nil)
	require.NoError(t, err)
	archived, err := s.CreateChatSession("u1", "Old", "", nil)
	require.NoError(t, err)
	_, err = s.CreateChatSession("u2", "Someone else", "", nil)
	require.NoError(t, err)
	require.NoError(t, s.SetChatSessionStatus(archived, docs.SessionArchived))

	// A message makes the first session the most recently updated.
	_, err = s.AddChatMessage(docs.ChatMessage{SessionID: first, Role: docs.RoleUser, Content: "hi", TokenCount: 3})
	require.NoError(t, err)
	_, err = s.AddChatMessage(docs.ChatMessage{SessionID: first, Role: docs.RoleAssistant, Content: "hello", TokenCount: 5, ContextChunkIDs: []string{"c1"}})
	require.NoError(t, err)

	sessions := s.GetUserChatSessions("u1")
	require.Len(t, sessions, 2)
	assert.Equal(t, first, sessions[0].ID)
	assert.Equal(t, second, sessions[1].ID)
	assert.Equal(t, 2, sessions[0].MessageCount)
	assert.Equal(t, 8, sessions[0].TotalTokens)

	msgs := s.GetChatMessages(first)
	require.Len(t, msgs, 2)
	assert.Equal(t, docs.RoleUser, msgs[0].Role)
	assert.Equal(t, []string{"c1"}, msgs[1].ContextChunkIDs)

	assert.NotNil(t, s.GetChatMessages("missing"))
	assert.Empty(t, s.GetChatMessages("missing"))

	_, err = s.AddChatMessage(docs.ChatMessage{SessionID: "missing"})
	assert.ErrorIs(t, err, docs.ErrNotFound)
	assert.ErrorIs(t, s.SetChatSessionStatus("missing", docs.SessionDeleted), docs.ErrNotFound)
	_, err = s.CreateChatSession("", "t", "", nil)
	assert.ErrorIs(t, err, docs.ErrInvalidInput)
}

func TestIntegrationGenerations(t *testing.T) {
	s := newTestStore(t, 2)
	a, err := s.StoreIntegrationGeneration(docs.IntegrationGeneration{UserID: "u1", Framework: "express", QualityScore: 3})
	require.NoError(t, err)
	_, err = s.StoreIntegrationGeneration(docs.IntegrationGeneration{UserID: "u2"})
	require.NoError(t, err)
	b, err := s.StoreIntegrationGeneration(docs.IntegrationGeneration{UserID: "u1", Framework: "gin"})
	require.NoError(t, err)

	gens := s.GetIntegrationGenerations("u1")
	require.Len(t, gens, 2)
	assert.Equal(t, a, gens[0].ID)
	assert.Equal(t, b, gens[1].ID)
	assert.Equal(t, 1.0, gens[0].QualityScore)
	assert.Len(t, s.GetIntegrationGenerations(""), 3)
	assert.Equal(t, 3, s.GetLibraryStats().TotalGenerations)
}

func TestSnapshotRestore(t *testing.T) {
	src := newTestStore(t, 2)
	lib := mustAddLibrary(t, src, "Docs", "openai")
	c1, _ := src.AddChunkWithEmbedding(docs.Chunk{LibraryID: lib, Content: "a"}, []float32{1, 0}, "m")
	_, _ = src.AddChunkWithEmbedding(docs.Chunk{LibraryID: lib, Content: "b"}, []float32{0, 1}, "m")
	sess, _ := src.CreateChatSession("u1", "S", "", nil)
	_, _ = src.AddChatMessage(docs.ChatMessage{SessionID: sess, Content: "one"})
	_, _ = src.AddChatMessage(docs.ChatMessage{SessionID: sess, Content: "two"})
	_, _ = src.StoreIntegrationGeneration(docs.IntegrationGeneration{UserID: "u1"})

	dst := New(Options{})
	require.NoError(t, dst.Restore(src.Snapshot()))

	assert.Equal(t, src.GetLibraryStats(), dst.GetLibraryStats())
	assert.Equal(t, 2, dst.Dimension())
	assert.Len(t, dst.GetLibrariesByProvider("openai"), 1)

	chunks, err := dst.GetLibraryChunks(lib)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, c1, chunks[0].ID)

	msgs := dst.GetChatMessages(sess)
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Len(t, dst.GetUserChatSessions("u1"), 1)

	id, err := dst.AddChunkWithEmbedding(docs.Chunk{LibraryID: lib}, []float32{1, 1}, "m")
	require.NoError(t, err)
	c, _ := dst.GetChunk(id)
	assert.Equal(t, 2, c.Index)
}

func TestRestore_RejectsOrphans(t *testing.T) {
	s := newTestStore(t, 2)
	lib := mustAddLibrary(t, s, "Keep", "")

	err := s.Restore(Snapshot{Chunks: []docs.Chunk{{ID: "c", LibraryID: "ghost"}}})
	assert.ErrorIs(t, err, docs.ErrInvalidInput)

	err = s.Restore(Snapshot{
		Libraries:  []docs.Library{{ID: "l", Name: "L"}},
		Chunks:     []docs.Chunk{{ID: "c", LibraryID: "l"}},
		Embeddings: []docs.Embedding{{ChunkID: "c", Vector: []float32{1, 2, 3}}},
	})
	assert.ErrorIs(t, err, docs.ErrInvalidInput)

	_, err = s.GetLibrary(lib)
	assert.NoError(t, err, "failed restore leaves the store unchanged")
}

func TestConcurrentWritesAndReads(t *testing.T) {
	s := New(Options{Dimension: 2})
	const workers = 16
	const perWorker = 25

	var wg sync.WaitGroup
	ids := make(chan string, workers*perWorker)
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			lib, err := s.AddLibrary(docs.Library{Name: fmt.Sprintf("lib-%d", w), ProviderID: "shared"})
			if err != nil {
				errs <- err
				return
			}
			for i := 0; i < perWorker; i++ {
				id, err := s.AddChunkWithEmbedding(docs.Chunk{LibraryID: lib}, []float32{1, float32(i)}, "m")
				if err != nil {
					errs <- err
					continue
				}
				ids <- id
				p := search.DefaultParams()
				p.MinSimilarity = 0
				_ = s.VectorSearch(p, []float32{1, 0})
				_ = s.GetLibraryStats()
			}
		}(w)
	}
	wg.Wait()
	close(ids)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	seen := make(map[string]bool)
	for id := range ids {
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}

	stats := s.GetLibraryStats()
	assert.Equal(t, workers, stats.TotalLibraries)
	assert.Equal(t, workers*perWorker, stats.TotalChunks)
	assert.Equal(t, stats.TotalChunks, stats.TotalEmbeddings)
	total := 0
	for _, lib := range s.GetLibrariesByProvider("shared") {
		total += lib.ChunkCount
	}
	assert.Equal(t, workers*perWorker, total)
}
