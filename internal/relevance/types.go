package relevance

import (
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/keydocs/internal/docs"
)

// Context is a partial snapshot of the user's execution environment. Every
// field is optional.
type Context struct {
	ActiveApp      string `json:"active_app,omitempty"`
	FileExtension  string `json:"file_extension,omitempty"`
	FilePath       string `json:"file_path,omitempty"`
	ProjectType    string `json:"project_type,omitempty"`
	Language       string `json:"language,omitempty"`
	ContentSnippet string `json:"content_snippet,omitempty"`
}

// UsagePattern is one recorded use of a credential.
type UsagePattern struct {
	CredentialID string    `json:"credential_id"`
	Context      Context   `json:"context"`
	Timestamp    time.Time `json:"timestamp"`
	Success      bool      `json:"success"`
}

// KeyPreferences aggregates a credential's usage history.
type KeyPreferences struct {
	CredentialID      string    `json:"credential_id"`
	SuccessRate       float64   `json:"success_rate"`
	UseCount          int       `json:"use_count"`
	LastUsed          time.Time `json:"last_used"`
	PreferredContexts []Context `json:"preferred_contexts,omitempty"`
}

type Suggestion struct {
	CredentialID    string  `json:"credential_id"`
	Confidence      float64 `json:"confidence"`
	Reason          string  `json:"reason"`
	SuggestedFormat Format  `json:"suggested_format"`
}

type UsagePrediction struct {
	FrequencyScore    float64    `json:"frequency_score"`
	RecencyScore      float64    `json:"recency_score"`
	ContextMatchScore float64    `json:"context_match_score"`
	PredictedNextUse  *time.Time `json:"predicted_next_use,omitempty"`
}

type SecurityScore struct {
	RiskLevel  RiskLevel `json:"risk_level"`
	Confidence float64   `json:"confidence"`
	Reasons    []string  `json:"reasons"`
}

// Prediction is the result of analysing a context.
type Prediction struct {
	Suggestions       []Suggestion    `json:"suggestions"`
	ContextConfidence float64         `json:"context_confidence"`
	Usage             UsagePrediction `json:"usage_prediction"`
	Security          SecurityScore   `json:"security_score"`
}

// RiskLevel grades how exposed a context is.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

var riskLevelNames = [...]string{
	RiskLow:      "low",
	RiskMedium:   "medium",
	RiskHigh:     "high",
	RiskCritical: "critical",
}

func (r RiskLevel) String() string {
	if r < 0 || int(r) >= len(riskLevelNames) {
		return fmt.Sprintf("RiskLevel(%d)", int(r))
	}
	return riskLevelNames[r]
}

func (r RiskLevel) MarshalText() ([]byte, error) {
	if r < 0 || int(r) >= len(riskLevelNames) {
		return nil, fmt.Errorf("risk level %d: %w", int(r), docs.ErrInvalidInput)
	}
	return []byte(riskLevelNames[r]), nil
}

func (r *RiskLevel) UnmarshalText(b []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(b)))
	for i, name := range riskLevelNames {
		if name == s {
			*r = RiskLevel(i)
			return nil
		}
	}
	return fmt.Errorf("risk level %q: %w", s, docs.ErrInvalidInput)
}

// Format is how a credential should be presented for the current file.
type Format int

const (
	FormatPlain Format = iota
	FormatEnvVar
	FormatProcessEnv
	FormatConfigFile
)

var formatNames = [...]string{
	FormatPlain:      "plain",
	FormatEnvVar:     "env_var",
	FormatProcessEnv: "process_env",
	FormatConfigFile: "config_file",
}

func (f Format) String() string {
	if f < 0 || int(f) >= len(formatNames) {
		return fmt.Sprintf("Format(%d)", int(f))
	}
	return formatNames[f]
}

func (f Format) MarshalText() ([]byte, error) {
	if f < 0 || int(f) >= len(formatNames) {
		return nil, fmt.Errorf("format %d: %w", int(f), docs.ErrInvalidInput)
	}
	return []byte(formatNames[f]), nil
}

func (f *Format) UnmarshalText(b []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(b)))
	for i, name := range formatNames {
		if name == s {
			*f = Format(i)
			return nil
		}
	}
	return fmt.Errorf("format %q: %w", s, docs.ErrInvalidInput)
}

// FormatFor picks the presentation format for a file extension.
func FormatFor(ext string) Format {
	switch normalizeExt(ext) {
	case "env":
		return FormatEnvVar
	case "js", "jsx", "ts", "tsx", "mjs", "cjs":
		return FormatProcessEnv
	case "json", "yaml", "yml", "toml":
		return FormatConfigFile
	default:
		return FormatPlain
	}
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}
