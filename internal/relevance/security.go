package relevance

import (
	"path/filepath"
	"strings"
)

const securityConfidence = 0.85

type riskRule struct {
	keywords []string
	weight   float64
	reason   string
}

var (
	browserRule = riskRule{
		keywords: []string{"chrome", "firefox", "safari", "edge", "browser", "brave", "opera"},
		weight:   0.4,
		reason:   "active application is a web browser",
	}
	terminalRule = riskRule{
		keywords: []string{"terminal", "iterm", "console", "powershell", "cmd", "bash", "zsh"},
		weight:   0.2,
		reason:   "active application is a terminal; commands may be kept in shell history",
	}
	tempPathRule = riskRule{
		keywords: []string{"tmp", "temp", "cache", "caches", "downloads"},
		weight:   0.3,
		reason:   "file is in a temporary or download directory",
	}
	publicPathRule = riskRule{
		keywords: []string{"public", "www", "static", "dist", "public_html", "htdocs"},
		weight:   0.2,
		reason:   "file is in a publicly served directory",
	}
	scriptExtRule = riskRule{
		keywords: []string{"sh", "bat", "ps1", "cmd", "py", "js"},
		weight:   0.3,
		reason:   "file is an executable script",
	}
	textExtRule = riskRule{
		keywords: []string{"txt", "log", "md"},
		weight:   0.1,
		reason:   "file is a plain text file or log",
	}
)

// AssessSecurity scores how risky it is to expose a credential in ctx.
// Each matching heuristic adds its weight once; the total maps to a level
// at 0.3, 0.5 and 0.7.
func AssessSecurity(ctx Context) SecurityScore {
	var total float64
	reasons := []string{}
	apply := func(r riskRule, match bool) {
		if match {
			total += r.weight
			reasons = append(reasons, r.reason)
		}
	}

	app := normalizeField(ctx.ActiveApp)
	apply(browserRule, app != "" && containsAny(app, browserRule.keywords))
	apply(terminalRule, app != "" && containsAny(app, terminalRule.keywords))

	segments := pathSegments(ctx.FilePath)
	apply(tempPathRule, anySegment(segments, tempPathRule.keywords))
	apply(publicPathRule, anySegment(segments, publicPathRule.keywords))

	ext := normalizeExt(ctx.FileExtension)
	if ext == "" && ctx.FilePath != "" {
		ext = normalizeExt(filepath.Ext(ctx.FilePath))
	}
	apply(scriptExtRule, ext != "" && oneOf(ext, scriptExtRule.keywords))
	apply(textExtRule, ext != "" && oneOf(ext, textExtRule.keywords))

	return SecurityScore{
		RiskLevel:  riskLevelFor(total),
		Confidence: securityConfidence,
		Reasons:    reasons,
	}
}

func riskLevelFor(score float64) RiskLevel {
	switch {
	case score >= 0.7:
		return RiskCritical
	case score >= 0.5:
		return RiskHigh
	case score >= 0.3:
		return RiskMedium
	default:
		return RiskLow
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func oneOf(s string, set []string) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

func pathSegments(p string) []string {
	p = strings.ToLower(strings.ReplaceAll(p, "\\", "/"))
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg = strings.TrimPrefix(seg, "."); seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

func anySegment(segments, names []string) bool {
	for _, seg := range segments {
		if oneOf(seg, names) {
			return true
		}
	}
	return false
}
