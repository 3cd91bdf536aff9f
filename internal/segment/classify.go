package segment

import (
	"strings"

	"github.com/kalambet/keydocs/internal/docs"
)

type typeRule struct {
	typ   docs.ContentType
	title []string
	body  []string
}

// Rules are checked in order; the first title match wins.
var typeRules = []typeRule{
	{
		typ:   docs.ContentChangelog,
		title: []string{"changelog", "release notes", "what's new", "version history"},
		body:  []string{"released", "deprecated in", "added support", "breaking change"},
	},
	{
		typ:   docs.ContentMigration,
		title: []string{"migrat", "upgrad", "moving from"},
		body:  []string{"migrate", "migration", "upgrade", "replace the old"},
	},
	{
		typ:   docs.ContentTroubleshooting,
		title: []string{"troubleshoot", "faq", "common issues", "errors", "debugging", "known issues"},
		body:  []string{"error", "fails", "failed", "troubleshoot", "if you see", "resolve", "unauthorized"},
	},
	{
		typ:   docs.ContentConfiguration,
		title: []string{"configur", "settings", "environment", "options", "setup", "credentials"},
		body:  []string{"configure", "config", "environment variable", "setting", "client id", "secret", "api key"},
	},
	{
		typ:   docs.ContentExample,
		title: []string{"example", "sample", "snippet", "demo"},
		body:  []string{"for example", "e.g.", "sample"},
	},
	{
		typ:   docs.ContentTutorial,
		title: []string{"tutorial", "guide", "getting started", "quickstart", "walkthrough", "how to"},
		body:  []string{"step", "first,", "next,", "you will", "let's"},
	},
	{
		typ:   docs.ContentReference,
		title: []string{"reference", "api", "endpoint", "parameters", "methods", "schema"},
		body:  []string{"parameter", "returns", "endpoint", "request", "response", "field", "type:"},
	},
	{
		typ:   docs.ContentOverview,
		title: []string{"overview", "introduction", "about", "concepts"},
		body:  []string{"overview", "introduction", "allows you", "designed to"},
	},
}

// Classify guesses a chunk's content type from its title and body. A title
// keyword decides first; otherwise a fenced code block means Example, and
// failing that the type with the most body keyword hits wins. Text matching
// nothing is an Overview.
func Classify(title, body string) docs.ContentType {
	t := strings.ToLower(title)
	for _, r := range typeRules {
		if containsAny(t, r.title) {
			return r.typ
		}
	}

	if strings.Contains(body, "```") || strings.Contains(body, "~~~") {
		return docs.ContentExample
	}

	b := strings.ToLower(body)
	best, bestHits := docs.ContentOverview, 0
	for _, r := range typeRules {
		hits := 0
		for _, kw := range r.body {
			hits += strings.Count(b, kw)
		}
		if hits > bestHits {
			best, bestHits = r.typ, hits
		}
	}
	return best
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
