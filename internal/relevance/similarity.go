package relevance

import "strings"

const defaultAppFuzzyScore = 0.7

// Similarity compares two contexts on the fields set in both: active app,
// file extension, project type, language and content snippet. Equal fields
// score 1; app names where one contains the other score 0.7. The result is
// the mean over comparable fields, 0 when none are comparable. It is
// symmetric.
func Similarity(a, b Context) float64 {
	return similarity(a, b, defaultAppFuzzyScore)
}

func similarity(a, b Context, appFuzzy float64) float64 {
	var sum float64
	var n int

	if x, y := normalizeField(a.ActiveApp), normalizeField(b.ActiveApp); x != "" && y != "" {
		n++
		switch {
		case x == y:
			sum++
		case strings.Contains(x, y) || strings.Contains(y, x):
			sum += appFuzzy
		}
	}
	pairs := [...][2]string{
		{normalizeExt(a.FileExtension), normalizeExt(b.FileExtension)},
		{normalizeField(a.ProjectType), normalizeField(b.ProjectType)},
		{normalizeField(a.Language), normalizeField(b.Language)},
		{strings.TrimSpace(a.ContentSnippet), strings.TrimSpace(b.ContentSnippet)},
	}
	for _, p := range pairs {
		if p[0] == "" || p[1] == "" {
			continue
		}
		n++
		if p[0] == p[1] {
			sum++
		}
	}

	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func normalizeField(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
