package relevance

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/keydocs/internal/docs"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, cfg Config, cp Checkpointer) *Engine {
	t.Helper()
	e := NewEngine(cfg, cp, discardLogger())
	e.now = func() time.Time { return fixedNow }
	t.Cleanup(func() { e.Close() })
	return e
}

type mockCheckpointer struct {
	mu      sync.Mutex
	loadFn  func() (State, error)
	saveErr error
	saves   atomic.Int32
	last    State
}

func (m *mockCheckpointer) Load() (State, error) {
	if m.loadFn != nil {
		return m.loadFn()
	}
	return State{}, nil
}

func (m *mockCheckpointer) Save(st State) error {
	m.saves.Add(1)
	m.mu.Lock()
	m.last = st
	m.mu.Unlock()
	return m.saveErr
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b Context
		want float64
	}{
		{"no comparable fields", Context{ActiveApp: "VSCode"}, Context{Language: "go"}, 0},
		{"empty", Context{}, Context{}, 0},
		{"identical", Context{ActiveApp: "VSCode", FileExtension: "ts"}, Context{ActiveApp: "vscode", FileExtension: ".TS"}, 1},
		{"fuzzy app", Context{ActiveApp: "Code"}, Context{ActiveApp: "VS Code"}, 0.7},
		{"half", Context{ActiveApp: "Xcode", Language: "swift"}, Context{ActiveApp: "Zed", Language: "swift"}, 0.5},
		{"only common fields count", Context{FileExtension: "go", ProjectType: "cli"}, Context{FileExtension: "go", Language: "go"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Similarity(tt.a, tt.b), 1e-9)
			assert.Equal(t, Similarity(tt.a, tt.b), Similarity(tt.b, tt.a), "similarity must be symmetric")
		})
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	contexts := []Context{
		{},
		{ActiveApp: "Visual Studio Code", FileExtension: "ts"},
		{ActiveApp: "Code", Language: "typescript", ProjectType: "node"},
		{FileExtension: ".env", ContentSnippet: "API_KEY="},
		{ActiveApp: "iTerm2", FilePath: "/tmp/x.sh", FileExtension: "sh"},
		{ActiveApp: "Chrome", FileExtension: "log", Language: "text"},
	}
	for _, a := range contexts {
		for _, b := range contexts {
			assert.Equal(t, Similarity(a, b), Similarity(b, a))
		}
	}
}

func TestRecordUsage_SuccessRate(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), nil)
	ctx := Context{ActiveApp: "VSCode"}

	for i := 0; i < 5; i++ {
		require.NoError(t, e.RecordUsage("all-good", ctx, true))
	}
	p, ok := e.Preferences("all-good")
	require.True(t, ok)
	assert.Equal(t, 1.0, p.SuccessRate)
	assert.Equal(t, 5, p.UseCount)
	assert.Equal(t, fixedNow, p.LastUsed)

	for _, ok := range []bool{true, true, false, true} {
		require.NoError(t, e.RecordUsage("mixed", ctx, ok))
	}
	p, _ = e.Preferences("mixed")
	assert.InDelta(t, 0.75, p.SuccessRate, 1e-9)
	assert.Len(t, e.Patterns("mixed"), 4)
}

func TestRecordUsage_EmptyCredential(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), nil)
	err := e.RecordUsage("", Context{}, true)
	assert.ErrorIs(t, err, docs.ErrInvalidInput)
}

func TestRecordUsage_PreferredContextsBounded(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), nil)
	for i := 0; i < 50; i++ {
		ctx := Context{ActiveApp: "VSCode", ContentSnippet: fmt.Sprintf("snippet %d", i)}
		require.NoError(t, e.RecordUsage("k", ctx, true))
	}
	p, _ := e.Preferences("k")
	assert.Len(t, p.PreferredContexts, 10)
	assert.Equal(t, "snippet 49", p.PreferredContexts[9].ContentSnippet)
}

func TestRecordUsage_SkipsNearDuplicatesAndFailures(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), nil)
	ctx := Context{ActiveApp: "VSCode", FileExtension: "ts"}
	for i := 0; i < 5; i++ {
		require.NoError(t, e.RecordUsage("k", ctx, true))
	}
	require.NoError(t, e.RecordUsage("k", Context{ActiveApp: "Vim", FileExtension: "go"}, false))

	p, _ := e.Preferences("k")
	assert.Len(t, p.PreferredContexts, 1)
}

func TestRecordUsage_PatternHistoryBounded(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), nil)
	for i := 0; i < 150; i++ {
		require.NoError(t, e.RecordUsage("k", Context{ContentSnippet: fmt.Sprint(i)}, true))
	}
	history := e.Patterns("k")
	require.Len(t, history, 100)
	assert.Equal(t, "50", history[0].Context.ContentSnippet)
	assert.Equal(t, "149", history[99].Context.ContentSnippet)

	p, _ := e.Preferences("k")
	assert.Equal(t, 150, p.UseCount)
}

// Three successful uses in a context make the credential the top
// suggestion for that same context.
func TestAnalyzeContext_LearnsFromUsage(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), nil)
	ctx := Context{ActiveApp: "VSCode", FileExtension: "ts"}
	for i := 0; i < 3; i++ {
		require.NoError(t, e.RecordUsage("K1", ctx, true))
	}

	pred := e.AnalyzeContext(ctx, []string{"K1", "K2"})
	require.NotEmpty(t, pred.Suggestions)
	top := pred.Suggestions[0]
	assert.Equal(t, "K1", top.CredentialID)
	assert.Greater(t, top.Confidence, 0.5)
	assert.Equal(t, FormatProcessEnv, top.SuggestedFormat)
	assert.Equal(t, "Recently used in this type of project", top.Reason)
	for _, s := range pred.Suggestions[1:] {
		assert.GreaterOrEqual(t, top.Confidence, s.Confidence)
	}

	require.NotNil(t, pred.Usage.PredictedNextUse)
	assert.Equal(t, fixedNow.Add(30*time.Minute), *pred.Usage.PredictedNextUse)
	assert.InDelta(t, 1.0, pred.Usage.ContextMatchScore, 1e-9)
	assert.InDelta(t, 1.0, pred.Usage.RecencyScore, 1e-9)
}

func TestAnalyzeContext_ThresholdAndLimit(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), nil)
	ctx := Context{ActiveApp: "VSCode", FileExtension: "ts"}
	var ids []string
	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("key-%d", i)
		ids = append(ids, id)
		for j := 0; j <= i; j++ {
			require.NoError(t, e.RecordUsage(id, ctx, true))
		}
	}
	ids = append(ids, "never-used", "key-0")

	pred := e.AnalyzeContext(ctx, ids)
	require.Len(t, pred.Suggestions, 5)
	assert.Equal(t, "key-7", pred.Suggestions[0].CredentialID)
	for i := 1; i < len(pred.Suggestions); i++ {
		assert.GreaterOrEqual(t, pred.Suggestions[i-1].Confidence, pred.Suggestions[i].Confidence)
	}
	for _, s := range pred.Suggestions {
		assert.NotEqual(t, "never-used", s.CredentialID)
		assert.Greater(t, s.Confidence, 0.3)
		assert.LessOrEqual(t, s.Confidence, 1.0)
	}
}

func TestAnalyzeContext_Empty(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), nil)
	pred := e.AnalyzeContext(Context{}, nil)
	assert.NotNil(t, pred.Suggestions)
	assert.Empty(t, pred.Suggestions)
	assert.Zero(t, pred.ContextConfidence)
	assert.Nil(t, pred.Usage.PredictedNextUse)
	assert.Equal(t, RiskLow, pred.Security.RiskLevel)
}

func TestContextConfidence_BoostedByFamiliarContexts(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), nil)
	ctx := Context{ActiveApp: "VSCode", FileExtension: "ts"}

	assert.InDelta(t, 0.55, e.AnalyzeContext(ctx, nil).ContextConfidence, 1e-9)

	for i := 0; i < 5; i++ {
		require.NoError(t, e.RecordUsage("k", ctx, true))
	}
	assert.InDelta(t, 0.66, e.AnalyzeContext(ctx, nil).ContextConfidence, 1e-9)

	full := Context{ActiveApp: "a", FileExtension: "b", ProjectType: "c", Language: "d", ContentSnippet: "e"}
	for i := 0; i < 5; i++ {
		require.NoError(t, e.RecordUsage("k", full, true))
	}
	assert.Equal(t, 1.0, e.AnalyzeContext(full, nil).ContextConfidence)
}

func TestAssessSecurity(t *testing.T) {
	tests := []struct {
		name    string
		ctx     Context
		want    RiskLevel
		reasons int
	}{
		{"empty", Context{}, RiskLow, 0},
		{"public dir", Context{FilePath: "/srv/app/public/config.json"}, RiskLow, 1},
		{"terminal public", Context{ActiveApp: "iTerm2", FilePath: "/var/www/index.html"}, RiskMedium, 2},
		{"terminal script", Context{ActiveApp: "Terminal", FileExtension: "sh"}, RiskHigh, 2},
		{"browser temp script", Context{ActiveApp: "Firefox", FilePath: "/tmp/run.py"}, RiskCritical, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AssessSecurity(tt.ctx)
			assert.Equal(t, tt.want, got.RiskLevel)
			assert.Len(t, got.Reasons, tt.reasons)
			assert.Equal(t, 0.85, got.Confidence)
		})
	}
}

// A browser with a log file is at least Medium risk and cites both the
// browser and the text file.
func TestAssessSecurity_BrowserLog(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), nil)
	score := e.SecurityScore(Context{ActiveApp: "Chrome", FileExtension: "log"})
	assert.GreaterOrEqual(t, score.RiskLevel, RiskMedium)

	joined := strings.Join(score.Reasons, "; ")
	assert.Contains(t, joined, "browser")
	assert.Contains(t, joined, "text file")
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, FormatEnvVar, FormatFor(".env"))
	assert.Equal(t, FormatProcessEnv, FormatFor("TSX"))
	assert.Equal(t, FormatConfigFile, FormatFor("yaml"))
	assert.Equal(t, FormatPlain, FormatFor("go"))
	assert.Equal(t, FormatPlain, FormatFor(""))
}

func TestFileCheckpointer_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.CheckpointDebounce = 10 * time.Millisecond

	e := NewEngine(cfg, NewFileCheckpointer(dir), discardLogger())
	require.NoError(t, e.RecordUsage("K1", Context{ActiveApp: "VSCode"}, true))
	require.NoError(t, e.RecordUsage("K1", Context{ActiveApp: "VSCode"}, false))
	require.NoError(t, e.Close())

	for _, name := range []string{patternsFile, preferencesFile} {
		_, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
	}

	reloaded := NewEngine(cfg, NewFileCheckpointer(dir), discardLogger())
	defer reloaded.Close()
	p, ok := reloaded.Preferences("K1")
	require.True(t, ok)
	assert.InDelta(t, 0.5, p.SuccessRate, 1e-9)
	assert.Equal(t, 2, p.UseCount)
	assert.Len(t, reloaded.Patterns("K1"), 2)
}

func TestFileCheckpointer_MissingFiles(t *testing.T) {
	st, err := NewFileCheckpointer(filepath.Join(t.TempDir(), "absent")).Load()
	require.NoError(t, err)
	assert.Empty(t, st.Patterns)
	assert.Empty(t, st.Preferences)
	assert.NotNil(t, st.Patterns)
}

func TestFileCheckpointer_CorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, preferencesFile), []byte("{not json"), 0o600))

	_, err := NewFileCheckpointer(dir).Load()
	assert.Error(t, err)

	e := newTestEngine(t, DefaultConfig(), NewFileCheckpointer(dir))
	_, ok := e.Preferences("anything")
	assert.False(t, ok)
}

func TestCheckpoint_FailureIsNotFatal(t *testing.T) {
	cp := &mockCheckpointer{saveErr: errors.New("disk full")}
	cfg := DefaultConfig()
	cfg.CheckpointDebounce = time.Millisecond
	e := newTestEngine(t, cfg, cp)

	require.NoError(t, e.RecordUsage("k", Context{}, true))
	require.NoError(t, e.Close())

	assert.GreaterOrEqual(t, cp.saves.Load(), int32(1))
	p, ok := e.Preferences("k")
	require.True(t, ok)
	assert.Equal(t, 1, p.UseCount)
}

func TestCheckpoint_LoadFailureStartsEmpty(t *testing.T) {
	cp := &mockCheckpointer{loadFn: func() (State, error) { return State{}, errors.New("permission denied") }}
	e := newTestEngine(t, DefaultConfig(), cp)
	assert.Empty(t, e.Patterns("k"))
	require.NoError(t, e.RecordUsage("k", Context{}, true))
}

func TestCheckpoint_Debounced(t *testing.T) {
	cp := &mockCheckpointer{}
	cfg := DefaultConfig()
	cfg.CheckpointDebounce = 200 * time.Millisecond
	e := newTestEngine(t, cfg, cp)

	for i := 0; i < 20; i++ {
		require.NoError(t, e.RecordUsage("k", Context{}, true))
	}
	require.NoError(t, e.Close())

	saves := cp.saves.Load()
	assert.GreaterOrEqual(t, saves, int32(1))
	assert.Less(t, saves, int32(20))

	cp.mu.Lock()
	defer cp.mu.Unlock()
	assert.Len(t, cp.last.Patterns["k"], 20, "final checkpoint holds every event")
}

func TestClose_Idempotent(t *testing.T) {
	e := NewEngine(DefaultConfig(), &mockCheckpointer{}, discardLogger())
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
}

// overlapCheckpointer records the highest number of Save calls running at
// once.
type overlapCheckpointer struct {
	active  atomic.Int32
	maxSeen atomic.Int32
	saves   atomic.Int32
}

func (o *overlapCheckpointer) Load() (State, error) { return State{}, nil }

func (o *overlapCheckpointer) Save(State) error {
	n := o.active.Add(1)
	defer o.active.Add(-1)
	for {
		m := o.maxSeen.Load()
		if n <= m || o.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	o.saves.Add(1)
	time.Sleep(time.Millisecond)
	return nil
}

func TestFlush_SerializesSaves(t *testing.T) {
	cp := &overlapCheckpointer{}
	e := newTestEngine(t, DefaultConfig(), cp)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Flush()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(16), cp.saves.Load())
	assert.Equal(t, int32(1), cp.maxSeen.Load())
}

func TestConfig_SimilarityThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SimilarityThreshold = 0
	assert.Zero(t, newTestEngine(t, cfg, nil).Config().SimilarityThreshold, "zero threshold is kept")

	cfg.SimilarityThreshold = -1
	assert.Equal(t, 0.3, newTestEngine(t, cfg, nil).Config().SimilarityThreshold)
}

// A single failed use in an unrelated context scores only on recency, 0.2.
func TestAnalyzeContext_ZeroThresholdKeepsWeakMatches(t *testing.T) {
	used := Context{ActiveApp: "Xcode", Language: "swift"}
	now := Context{ActiveApp: "Terminal", Language: "go"}

	def := newTestEngine(t, DefaultConfig(), nil)
	require.NoError(t, def.RecordUsage("weak", used, false))
	assert.Empty(t, def.AnalyzeContext(now, []string{"weak"}).Suggestions)

	cfg := DefaultConfig()
	cfg.SimilarityThreshold = 0
	e := newTestEngine(t, cfg, nil)
	require.NoError(t, e.RecordUsage("weak", used, false))

	pred := e.AnalyzeContext(now, []string{"weak"})
	require.Len(t, pred.Suggestions, 1)
	assert.Equal(t, "weak", pred.Suggestions[0].CredentialID)
	assert.InDelta(t, 0.2, pred.Suggestions[0].Confidence, 1e-9)
}
