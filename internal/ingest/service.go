// Package ingest turns raw documentation text into embedded chunks and
// answers semantic queries against the documentation store.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/keydocs/internal/docs"
	"github.com/kalambet/keydocs/internal/docstore"
	"github.com/kalambet/keydocs/internal/embedding"
	"github.com/kalambet/keydocs/internal/search"
	"github.com/kalambet/keydocs/internal/segment"
)

// bulkConcurrency bounds the number of in-flight embedding calls in BulkIngest.
const bulkConcurrency = 4

// DocStore is the subset of the documentation store used for ingestion.
type DocStore interface {
	AddLibrary(lib docs.Library) (string, error)
	GetOrCreateProviderLibrary(providerID string, tmpl docs.Library) (docs.Library, bool, error)
	GetLibrariesByProvider(providerID string) []docs.Library
	UpdateLibrary(id string, fn func(*docs.Library)) (docs.Library, error)
	AddChunkWithEmbedding(chunk docs.Chunk, vector []float32, modelName string) (string, error)
	ReplaceLibraryChunks(libraryID string, chunks []docs.Chunk, vectors [][]float32, modelName string) ([]string, error)
	VectorSearch(p search.Params, query []float32) []search.Result
}

var _ DocStore = (*docstore.Store)(nil)

// Entry is a single piece of documentation attributed to a provider.
type Entry struct {
	ProviderID   string   `json:"provider_id"`
	ProviderName string   `json:"provider_name"`
	SourceText   string   `json:"source_text"`
	SectionPath  []string `json:"section_path,omitempty"`
	// ContentType is a content type name; empty means classify from the text.
	ContentType string   `json:"content_type,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Title       string   `json:"title,omitempty"`
	SourceURL   string   `json:"source_url,omitempty"`
}

// Document is a whole documentation page or file to be segmented.
type Document struct {
	ProviderID   string   `json:"provider_id"`
	ProviderName string   `json:"provider_name,omitempty"`
	Name         string   `json:"name"`
	SourceURL    string   `json:"source_url,omitempty"`
	Version      string   `json:"version,omitempty"`
	Language     string   `json:"language,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Text         string   `json:"text"`
}

// DocumentResult reports the outcome of IngestDocument.
type DocumentResult struct {
	LibraryID   string   `json:"library_id"`
	ChunkIDs    []string `json:"chunk_ids"`
	ContentHash string   `json:"content_hash"`
	Skipped     bool     `json:"skipped"`
}

// Service wires the segmenter, the embedding provider and the store.
type Service struct {
	store     DocStore
	provider  embedding.Provider
	segmenter segment.Segmenter
	logger    *slog.Logger

	// docMu serialises IngestDocument so a document's library is looked up
	// and rebuilt by one caller at a time.
	docMu sync.Mutex
}

// New creates a Service. A nil logger uses slog.Default().
func New(store DocStore, provider embedding.Provider, segmenter segment.Segmenter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		provider:  provider,
		segmenter: segmenter,
		logger:    logger,
	}
}

// Provider returns the embedding provider used for documents and queries.
func (s *Service) Provider() embedding.Provider {
	return s.provider
}

// IngestEntry stores a single entry under its provider's library and
// returns the new chunk id.
func (s *Service) IngestEntry(ctx context.Context, e Entry) (string, error) {
	chunk, err := entryChunk(e)
	if err != nil {
		return "", err
	}
	vec, err := s.provider.Embed(ctx, e.SourceText)
	if err != nil {
		return "", fmt.Errorf("embedding entry: %w", err)
	}
	return s.addEntry(e, chunk, vec)
}

// BulkIngest embeds entries concurrently and stores them in input order.
// Invalid or failing entries are logged and skipped; only cancellation of
// ctx aborts the batch. It returns the number of entries stored.
func (s *Service) BulkIngest(ctx context.Context, entries []Entry) (int, error) {
	chunks := make([]docs.Chunk, len(entries))
	vectors := make([][]float32, len(entries))
	failed := make([]error, len(entries))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(bulkConcurrency)
	for i, e := range entries {
		c, err := entryChunk(e)
		if err != nil {
			failed[i] = err
			continue
		}
		chunks[i] = c
		g.Go(func() error {
			vec, err := s.provider.Embed(gCtx, e.SourceText)
			if err != nil {
				if ctxErr := gCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				failed[i] = fmt.Errorf("embedding entry: %w", err)
				return nil
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("bulk ingest cancelled: %w", err)
	}

	stored := 0
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return stored, fmt.Errorf("bulk ingest cancelled: %w", err)
		}
		if failed[i] != nil {
			s.logger.Warn("skipping entry", "index", i, "provider_id", e.ProviderID, "error", failed[i])
			continue
		}
		if _, err := s.addEntry(e, chunks[i], vectors[i]); err != nil {
			s.logger.Warn("skipping entry", "index", i, "provider_id", e.ProviderID, "error", err)
			continue
		}
		stored++
	}
	return stored, nil
}

func (s *Service) addEntry(e Entry, chunk docs.Chunk, vec []float32) (string, error) {
	lib, _, err := s.store.GetOrCreateProviderLibrary(e.ProviderID, docs.Library{
		Name:      e.ProviderName,
		SourceURL: e.SourceURL,
		Tags:      e.Tags,
	})
	if err != nil {
		return "", fmt.Errorf("resolving library for provider %s: %w", e.ProviderID, err)
	}

	chunk.LibraryID = lib.ID
	id, err := s.store.AddChunkWithEmbedding(chunk, vec, s.provider.Model())
	if err != nil {
		return "", fmt.Errorf("storing chunk: %w", err)
	}

	if _, err := s.store.UpdateLibrary(lib.ID, func(l *docs.Library) {
		l.Tags = docs.NormalizeTags(append(l.Tags, e.Tags...))
		l.Status = docs.StatusIndexed
	}); err != nil {
		return "", fmt.Errorf("marking library %s indexed: %w", lib.ID, err)
	}
	return id, nil
}

// entryChunk validates e and builds its chunk without a library id.
func entryChunk(e Entry) (docs.Chunk, error) {
	if e.ProviderID == "" {
		return docs.Chunk{}, fmt.Errorf("provider id is required: %w", docs.ErrInvalidInput)
	}
	text := strings.TrimSpace(e.SourceText)
	if text == "" {
		return docs.Chunk{}, fmt.Errorf("source text is required: %w", docs.ErrInvalidInput)
	}

	title := e.Title
	if title == "" && len(e.SectionPath) > 0 {
		title = e.SectionPath[len(e.SectionPath)-1]
	}
	if title == "" {
		title, _, _ = strings.Cut(text, "\n")
	}

	ct := segment.Classify(title, text)
	if e.ContentType != "" {
		parsed, err := docs.ParseContentType(e.ContentType)
		if err != nil {
			return docs.Chunk{}, err
		}
		ct = parsed
	}

	return docs.Chunk{
		Title:       title,
		Content:     text,
		SectionPath: append([]string(nil), e.SectionPath...),
		Metadata: docs.ChunkMetadata{
			WordCount:   docs.WordCount(text),
			ContentType: ct,
			Importance:  segment.Importance(len(e.SectionPath), text),
			Keywords:    segment.Keywords(title+"\n"+text, 8),
			SourceURL:   e.SourceURL,
		},
	}, nil
}

// IngestDocument segments and indexes a whole document into the library
// named d.Name under d.ProviderID, replacing any chunks from a previous
// version. A document whose content hash matches an already indexed
// library is skipped.
func (s *Service) IngestDocument(ctx context.Context, d Document) (DocumentResult, error) {
	if d.ProviderID == "" {
		return DocumentResult{}, fmt.Errorf("provider id is required: %w", docs.ErrInvalidInput)
	}
	if d.Name == "" {
		return DocumentResult{}, fmt.Errorf("document name is required: %w", docs.ErrInvalidInput)
	}
	if strings.TrimSpace(d.Text) == "" {
		return DocumentResult{}, fmt.Errorf("document text is required: %w", docs.ErrInvalidInput)
	}

	sum := sha256.Sum256([]byte(d.Text))
	hash := hex.EncodeToString(sum[:])

	s.docMu.Lock()
	defer s.docMu.Unlock()

	lib, err := s.documentLibrary(d)
	if err != nil {
		return DocumentResult{}, err
	}
	res := DocumentResult{LibraryID: lib.ID, ContentHash: hash}

	if lib.ContentHash == hash && lib.Status == docs.StatusIndexed {
		s.logger.Debug("document unchanged", "library_id", lib.ID, "name", d.Name)
		res.Skipped = true
		return res, nil
	}

	if _, err := s.store.UpdateLibrary(lib.ID, func(l *docs.Library) {
		l.Status = docs.StatusProcessing
		l.SourceURL = d.SourceURL
		l.Version = d.Version
		l.Language = d.Language
		l.Tags = docs.NormalizeTags(append(l.Tags, d.Tags...))
	}); err != nil {
		return DocumentResult{}, fmt.Errorf("marking library %s processing: %w", lib.ID, err)
	}

	ids, err := s.rebuildDocument(ctx, lib.ID, d)
	if err != nil {
		if _, uerr := s.store.UpdateLibrary(lib.ID, func(l *docs.Library) { l.Status = docs.StatusFailed }); uerr != nil {
			s.logger.Error("failed to mark library failed", "library_id", lib.ID, "error", uerr)
		}
		return DocumentResult{}, err
	}

	if _, err := s.store.UpdateLibrary(lib.ID, func(l *docs.Library) {
		l.Status = docs.StatusIndexed
		l.ContentHash = hash
	}); err != nil {
		return DocumentResult{}, fmt.Errorf("marking library %s indexed: %w", lib.ID, err)
	}

	s.logger.Info("document indexed", "library_id", lib.ID, "name", d.Name, "chunks", len(ids))
	res.ChunkIDs = ids
	return res, nil
}

func (s *Service) documentLibrary(d Document) (docs.Library, error) {
	for _, lib := range s.store.GetLibrariesByProvider(d.ProviderID) {
		if lib.Name == d.Name {
			return lib, nil
		}
	}
	id, err := s.store.AddLibrary(docs.Library{
		Name:        d.Name,
		Description: d.ProviderName,
		ProviderID:  d.ProviderID,
		SourceURL:   d.SourceURL,
		Version:     d.Version,
		Language:    d.Language,
		Tags:        d.Tags,
	})
	if err != nil {
		return docs.Library{}, fmt.Errorf("creating library %s: %w", d.Name, err)
	}
	return docs.Library{ID: id, Name: d.Name, ProviderID: d.ProviderID}, nil
}

// rebuildDocument embeds the segments of d and swaps them in as the
// library's chunks. A failure before the swap leaves the old chunks intact.
func (s *Service) rebuildDocument(ctx context.Context, libraryID string, d Document) ([]string, error) {
	chunks := s.segmenter.Segment(d.Text, []string{d.Name})
	texts := make([]string, len(chunks))
	for i := range chunks {
		chunks[i].Metadata.SourceURL = d.SourceURL
		texts[i] = chunks[i].Title + "\n" + chunks[i].Content
	}
	vectors, err := embedding.EmbedBatch(ctx, s.provider, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding document %s: %w", d.Name, err)
	}

	ids, err := s.store.ReplaceLibraryChunks(libraryID, chunks, vectors, s.provider.Model())
	if err != nil {
		return nil, fmt.Errorf("storing chunks of %s: %w", d.Name, err)
	}
	return ids, nil
}

// Search embeds query and runs a vector search with p.
func (s *Service) Search(ctx context.Context, query string, p search.Params) ([]search.Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required: %w", docs.ErrInvalidInput)
	}
	vec, err := s.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return s.store.VectorSearch(p, vec), nil
}
