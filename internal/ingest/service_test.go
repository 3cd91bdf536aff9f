package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/keydocs/internal/docs"
	"github.com/kalambet/keydocs/internal/docstore"
	"github.com/kalambet/keydocs/internal/embedding"
	"github.com/kalambet/keydocs/internal/search"
	"github.com/kalambet/keydocs/internal/segment"
)

// failingProvider delegates to a hash provider but fails for any text
// containing failOn.
type failingProvider struct {
	embedding.Provider
	failOn string

	mu    sync.Mutex
	calls int
}

func (p *failingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.failOn != "" && strings.Contains(text, p.failOn) {
		return nil, errors.New("embedding backend unavailable")
	}
	return p.Provider.Embed(ctx, text)
}

func newTestService(t *testing.T, failOn string) (*Service, *docstore.Store, *failingProvider) {
	t.Helper()
	provider := &failingProvider{Provider: embedding.NewHashProvider(128), failOn: failOn}
	var mu sync.Mutex
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := docstore.New(docstore.Options{
		Dimension: provider.Dimension(),
		Clock: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			now = now.Add(time.Second)
			return now
		},
	})
	return New(store, provider, segment.New(), nil), store, provider
}

const guideText = `# Payments Guide

Stripe processes card payments for online businesses. This guide walks
through the account setup and the first charge.

## Authentication

Authenticate every request with your secret API key passed as a bearer
token. Keep the key out of client side code.

## Errors

Failed requests return a JSON error object with a type and a message.
Retry with exponential backoff when the type is rate_limit_error.
`

func TestIngestEntry_CreatesProviderLibrary(t *testing.T) {
	svc, store, _ := newTestService(t, "")
	ctx := context.Background()

	id, err := svc.IngestEntry(ctx, Entry{
		ProviderID:   "stripe",
		ProviderName: "Stripe",
		SourceText:   "Create a PaymentIntent with amount and currency.",
		SectionPath:  []string{"API", "PaymentIntents"},
		ContentType:  "reference",
		Tags:         []string{"Payments"},
	})
	require.NoError(t, err)

	libs := store.GetLibrariesByProvider("stripe")
	require.Len(t, libs, 1)
	assert.Equal(t, "Stripe", libs[0].Name)
	assert.Equal(t, docs.StatusIndexed, libs[0].Status)
	assert.Equal(t, []string{"payments"}, libs[0].Tags)
	assert.Equal(t, 1, libs[0].ChunkCount)

	chunk, err := store.GetChunk(id)
	require.NoError(t, err)
	assert.Equal(t, libs[0].ID, chunk.LibraryID)
	assert.Equal(t, "PaymentIntents", chunk.Title)
	assert.Equal(t, []string{"API", "PaymentIntents"}, chunk.SectionPath)
	assert.Equal(t, docs.ContentReference, chunk.Metadata.ContentType)
	assert.Equal(t, 7, chunk.Metadata.WordCount)

	emb, err := store.GetEmbedding(id)
	require.NoError(t, err)
	assert.Equal(t, embedding.HashModelName, emb.ModelName)
}

func TestIngestEntry_ReusesLibrary(t *testing.T) {
	svc, store, _ := newTestService(t, "")
	ctx := context.Background()

	for _, text := range []string{"first entry text", "second entry text"} {
		_, err := svc.IngestEntry(ctx, Entry{ProviderID: "github", ProviderName: "GitHub", SourceText: text})
		require.NoError(t, err)
	}

	libs := store.GetLibrariesByProvider("github")
	require.Len(t, libs, 1)
	chunks, err := store.GetLibraryChunks(libs[0].ID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "first entry text", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[1].Index)
}

func TestIngestEntry_InvalidInput(t *testing.T) {
	svc, _, provider := newTestService(t, "")
	ctx := context.Background()

	tests := []struct {
		name  string
		entry Entry
	}{
		{"missing provider", Entry{SourceText: "text"}},
		{"blank text", Entry{ProviderID: "p", SourceText: "   "}},
		{"unknown content type", Entry{ProviderID: "p", SourceText: "text", ContentType: "poetry"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.IngestEntry(ctx, tt.entry)
			assert.ErrorIs(t, err, docs.ErrInvalidInput)
		})
	}
	assert.Zero(t, provider.calls, "invalid entries must not be embedded")
}

func TestIngestEntry_ClassifiesWhenTypeUnset(t *testing.T) {
	svc, store, _ := newTestService(t, "")

	id, err := svc.IngestEntry(context.Background(), Entry{
		ProviderID: "p",
		Title:      "Troubleshooting",
		SourceText: "If the request fails with an error, check the logs.",
	})
	require.NoError(t, err)

	chunk, err := store.GetChunk(id)
	require.NoError(t, err)
	assert.Equal(t, docs.ContentTroubleshooting, chunk.Metadata.ContentType)
}

func TestBulkIngest_SkipsFailures(t *testing.T) {
	svc, store, _ := newTestService(t, "FAIL")

	entries := []Entry{
		{ProviderID: "aws", ProviderName: "AWS", SourceText: "entry zero"},
		{ProviderID: "aws", SourceText: "entry FAIL one"},
		{ProviderID: "aws", SourceText: "entry two"},
		{ProviderID: "", SourceText: "entry three"},
		{ProviderID: "aws", SourceText: "entry four"},
	}
	n, err := svc.BulkIngest(context.Background(), entries)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	libs := store.GetLibrariesByProvider("aws")
	require.Len(t, libs, 1)
	chunks, err := store.GetLibraryChunks(libs[0].ID)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "entry zero", chunks[0].Content)
	assert.Equal(t, "entry two", chunks[1].Content)
	assert.Equal(t, "entry four", chunks[2].Content)
}

func TestBulkIngest_Cancelled(t *testing.T) {
	svc, store, _ := newTestService(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.BulkIngest(ctx, []Entry{{ProviderID: "p", SourceText: "text"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.ListLibraries())
}

func TestBulkIngest_Empty(t *testing.T) {
	svc, _, _ := newTestService(t, "")
	n, err := svc.BulkIngest(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIngestDocument(t *testing.T) {
	svc, store, provider := newTestService(t, "")
	ctx := context.Background()
	doc := Document{ProviderID: "stripe", ProviderName: "Stripe", Name: "guide.md", Version: "2024-06", Text: guideText}

	res, err := svc.IngestDocument(ctx, doc)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	require.Len(t, res.ChunkIDs, 3)
	assert.Len(t, res.ContentHash, 64)

	lib, err := store.GetLibrary(res.LibraryID)
	require.NoError(t, err)
	assert.Equal(t, docs.StatusIndexed, lib.Status)
	assert.Equal(t, res.ContentHash, lib.ContentHash)
	assert.Equal(t, "2024-06", lib.Version)
	assert.Equal(t, 3, lib.ChunkCount)
	assert.False(t, lib.LastIndexedAt.IsZero())

	chunks, err := store.GetLibraryChunks(res.LibraryID)
	require.NoError(t, err)
	assert.Equal(t, []string{"guide.md", "Payments Guide", "Authentication"}, chunks[1].SectionPath)
	assert.Equal(t, []string{res.ChunkIDs[1]}, chunks[0].Metadata.RelatedChunkIDs)
	assert.Equal(t, []string{res.ChunkIDs[0], res.ChunkIDs[2]}, chunks[1].Metadata.RelatedChunkIDs)

	calls := provider.calls
	again, err := svc.IngestDocument(ctx, doc)
	require.NoError(t, err)
	assert.True(t, again.Skipped)
	assert.Equal(t, res.LibraryID, again.LibraryID)
	assert.Equal(t, calls, provider.calls, "unchanged document must not be re-embedded")

	doc.Text = "# Payments Guide\n\nThe guide moved to a new location."
	updated, err := svc.IngestDocument(ctx, doc)
	require.NoError(t, err)
	assert.False(t, updated.Skipped)
	assert.Equal(t, res.LibraryID, updated.LibraryID)
	require.Len(t, updated.ChunkIDs, 1)

	for _, id := range res.ChunkIDs {
		_, err := store.GetChunk(id)
		assert.ErrorIs(t, err, docs.ErrNotFound)
	}
	assert.Len(t, store.GetLibrariesByProvider("stripe"), 1)
}

func TestIngestDocument_FailureMarksLibrary(t *testing.T) {
	svc, store, _ := newTestService(t, "Authentication")

	_, err := svc.IngestDocument(context.Background(), Document{ProviderID: "stripe", Name: "guide.md", Text: guideText})
	require.Error(t, err)

	libs := store.GetLibrariesByProvider("stripe")
	require.Len(t, libs, 1)
	assert.Equal(t, docs.StatusFailed, libs[0].Status)
	assert.Empty(t, libs[0].ContentHash)
}

func TestIngestDocument_FailedReindexKeepsChunks(t *testing.T) {
	svc, store, provider := newTestService(t, "")
	ctx := context.Background()
	doc := Document{ProviderID: "stripe", Name: "guide.md", Text: guideText}

	first, err := svc.IngestDocument(ctx, doc)
	require.NoError(t, err)
	require.Len(t, first.ChunkIDs, 3)

	provider.failOn = "Refunds"
	doc.Text = guideText + "\n## Refunds\n\nRefunds post back to the original card within ten days.\n"
	_, err = svc.IngestDocument(ctx, doc)
	require.Error(t, err)

	lib, err := store.GetLibrary(first.LibraryID)
	require.NoError(t, err)
	assert.Equal(t, docs.StatusFailed, lib.Status)
	assert.Equal(t, first.ContentHash, lib.ContentHash)
	assert.Equal(t, 3, lib.ChunkCount)

	chunks, err := store.GetLibraryChunks(first.LibraryID)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, first.ChunkIDs[i], c.ID)
	}
	assert.Equal(t, 3, store.GetLibraryStats().TotalEmbeddings)
}

func TestIngestDocument_InvalidInput(t *testing.T) {
	svc, _, _ := newTestService(t, "")
	ctx := context.Background()

	_, err := svc.IngestDocument(ctx, Document{Name: "a", Text: "b"})
	assert.ErrorIs(t, err, docs.ErrInvalidInput)
	_, err = svc.IngestDocument(ctx, Document{ProviderID: "p", Text: "b"})
	assert.ErrorIs(t, err, docs.ErrInvalidInput)
	_, err = svc.IngestDocument(ctx, Document{ProviderID: "p", Name: "a"})
	assert.ErrorIs(t, err, docs.ErrInvalidInput)
}

func TestSearch(t *testing.T) {
	svc, _, _ := newTestService(t, "")
	ctx := context.Background()

	texts := []string{
		"OAuth setup requires a client ID and secret",
		"Webhooks deliver events to your HTTPS endpoint",
		"Rate limits reset every sixty seconds",
	}
	var want string
	for i, text := range texts {
		id, err := svc.IngestEntry(ctx, Entry{ProviderID: "oauth", SourceText: text})
		require.NoError(t, err)
		if i == 0 {
			want = id
		}
	}

	p := search.DefaultParams()
	p.MinSimilarity = 0.99
	results, err := svc.Search(ctx, texts[0], p)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, want, results[0].Chunk.ID)

	_, err = svc.Search(ctx, "  ", p)
	assert.ErrorIs(t, err, docs.ErrInvalidInput)
}
