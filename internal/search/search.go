// Package search ranks documentation chunks against a query embedding.
//
// Scoring is brute-force cosine similarity over every candidate the caller
// supplies, followed by library, content-type and section filters and an
// optional exponential recency bonus.
package search

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/kalambet/keydocs/internal/docs"
)

const (
	DefaultMinSimilarity   = 0.7
	DefaultMaxResults      = 10
	DefaultRecencyHalfLife = 168 * time.Hour
	DefaultRecencyMaxBonus = 0.1
)

// Params controls filtering and ranking of a vector search.
type Params struct {
	LibraryIDs      []string           `json:"library_ids,omitempty"`
	ContentTypes    []docs.ContentType `json:"content_types,omitempty"`
	MinSimilarity   float64            `json:"min_similarity"`
	MaxResults      int                `json:"max_results"`
	IncludeMetadata bool               `json:"include_metadata"`
	BoostRecent     bool               `json:"boost_recent"`
	SectionFilter   []string           `json:"section_filter,omitempty"`

	// RecencyHalfLife is the decay constant of the recency bonus;
	// the bonus is MaxBonus * exp(-age/RecencyHalfLife).
	RecencyHalfLife time.Duration `json:"-"`
	RecencyMaxBonus float64       `json:"-"`
}

// DefaultParams returns the defaults used when a caller leaves fields unset.
func DefaultParams() Params {
	return Params{
		MinSimilarity:   DefaultMinSimilarity,
		MaxResults:      DefaultMaxResults,
		IncludeMetadata: true,
		RecencyHalfLife: DefaultRecencyHalfLife,
		RecencyMaxBonus: DefaultRecencyMaxBonus,
	}
}

// Candidate pairs a stored chunk with its embedding.
type Candidate struct {
	Chunk     docs.Chunk
	Embedding docs.Embedding
}

// Result is one ranked hit.
type Result struct {
	Chunk      docs.Chunk `json:"chunk"`
	LibraryID  string     `json:"library_id"`
	Similarity float64    `json:"similarity"`
	Relevance  float64    `json:"relevance"`
}

// CosineSimilarity returns the cosine of the angle between a and b clamped
// into [0, 1]. Zero vectors and mismatched dimensions score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return docs.Clamp01(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// Rank scores candidates against query and returns at most p.MaxResults
// results ordered by relevance descending, chunk ID ascending on ties.
func Rank(query []float32, candidates []Candidate, p Params, now time.Time) []Result {
	p = withDefaults(p)

	libs := toSet(p.LibraryIDs)
	types := make(map[docs.ContentType]struct{}, len(p.ContentTypes))
	for _, ct := range p.ContentTypes {
		types[ct] = struct{}{}
	}
	terms := lowerTerms(p.SectionFilter)

	results := make([]Result, 0)
	for _, c := range candidates {
		sim := CosineSimilarity(query, c.Embedding.Vector)
		if sim < p.MinSimilarity {
			continue
		}
		if len(libs) > 0 {
			if _, ok := libs[c.Chunk.LibraryID]; !ok {
				continue
			}
		}
		if len(types) > 0 {
			if _, ok := types[c.Chunk.Metadata.ContentType]; !ok {
				continue
			}
		}
		if len(terms) > 0 && !sectionMatches(c.Chunk.SectionPath, terms) {
			continue
		}

		relevance := sim
		if p.BoostRecent {
			relevance += RecencyBonus(c.Chunk.CreatedAt, now, p.RecencyHalfLife, p.RecencyMaxBonus)
		}

		chunk := c.Chunk
		if !p.IncludeMetadata {
			chunk.Metadata = docs.ChunkMetadata{ContentType: chunk.Metadata.ContentType}
		}
		results = append(results, Result{
			Chunk:      chunk,
			LibraryID:  chunk.LibraryID,
			Similarity: sim,
			Relevance:  relevance,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Relevance != results[j].Relevance {
			return results[i].Relevance > results[j].Relevance
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})

	if len(results) > p.MaxResults {
		results = results[:p.MaxResults]
	}
	return results
}

// RecencyBonus is maxBonus * exp(-hoursSince/halfLifeHours). Future
// timestamps earn the full bonus.
func RecencyBonus(created, now time.Time, halfLife time.Duration, maxBonus float64) float64 {
	if halfLife <= 0 {
		return 0
	}
	hours := now.Sub(created).Hours()
	if hours < 0 {
		hours = 0
	}
	return math.Exp(-hours/halfLife.Hours()) * maxBonus
}

func withDefaults(p Params) Params {
	if p.MaxResults <= 0 {
		p.MaxResults = DefaultMaxResults
	}
	if p.RecencyHalfLife <= 0 {
		p.RecencyHalfLife = DefaultRecencyHalfLife
	}
	if p.RecencyMaxBonus <= 0 {
		p.RecencyMaxBonus = DefaultRecencyMaxBonus
	}
	return p
}

// sectionMatches reports whether any path segment contains any term,
// case-insensitively. Terms are already lowercased.
func sectionMatches(path []string, terms []string) bool {
	for _, seg := range path {
		s := strings.ToLower(seg)
		for _, t := range terms {
			if strings.Contains(s, t) {
				return true
			}
		}
	}
	return false
}

func lowerTerms(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
