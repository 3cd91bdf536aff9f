package segment

import (
	"strings"

	"github.com/kalambet/keydocs/internal/docs"
)

var emphasisTerms = []string{
	"api key", "auth", "token", "secret", "credential",
	"required", "must", "important", "warning", "note:",
}

// Importance scores a chunk in [0, 1]. Shallow headings, substantial
// length, code and credential-related vocabulary raise the score; deep
// headings and very short bodies lower it. level is the heading depth of
// the chunk's section, 0 when it has none.
func Importance(level int, content string) float64 {
	score := 0.5

	switch {
	case level == 1:
		score += 0.2
	case level == 2:
		score += 0.1
	case level >= 4:
		score -= 0.1
	}

	switch words := docs.WordCount(content); {
	case words < DefaultMinWords:
		score -= 0.1
	case words > 100:
		score += 0.1
	}

	if strings.Contains(content, "```") || strings.Contains(content, "~~~") {
		score += 0.1
	}

	lower := strings.ToLower(content)
	hits := 0
	for _, term := range emphasisTerms {
		hits += strings.Count(lower, term)
	}
	score += min(0.05*float64(hits), 0.2)

	return docs.Clamp01(score)
}
