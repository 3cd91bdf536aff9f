// Package relevance learns which API credentials are used in which
// execution contexts and ranks credentials for the current one. It also
// scores how risky the current context is for exposing a secret.
//
// Learned state is held in memory and checkpointed in the background;
// persistence failures are logged and never affect callers.
package relevance

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/kalambet/keydocs/internal/docs"
)

// Engine is safe for concurrent use. Usage patterns and preferences are
// guarded by separate locks; code holding both takes patternsMu first.
type Engine struct {
	cfg    Config
	cp     Checkpointer
	logger *slog.Logger
	now    func() time.Time

	patternsMu sync.RWMutex
	patterns   map[string][]UsagePattern

	prefsMu sync.RWMutex
	prefs   map[string]KeyPreferences

	saveMu   sync.Mutex // serializes Checkpointer.Save
	dirty    chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewEngine loads state from cp and starts the checkpoint loop. A nil cp
// keeps state in memory only. Load failures are logged and the engine
// starts empty.
func NewEngine(cfg Config, cp Checkpointer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		cfg:      cfg.withDefaults(),
		cp:       cp,
		logger:   logger,
		now:      time.Now,
		patterns: make(map[string][]UsagePattern),
		prefs:    make(map[string]KeyPreferences),
		dirty:    make(chan struct{}, 1),
		stopChan: make(chan struct{}),
	}
	if cp == nil {
		return e
	}

	st, err := cp.Load()
	if err != nil {
		e.logger.Warn("loading relevance checkpoint", "error", fmt.Errorf("%w: %w", ErrPersistence, err))
	} else {
		if st.Patterns != nil {
			e.patterns = st.Patterns
		}
		if st.Preferences != nil {
			e.prefs = st.Preferences
		}
	}

	e.wg.Add(1)
	go e.checkpointLoop()
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// RecordUsage appends a usage event for credentialID and updates its
// preferences. The update is visible on return; the checkpoint happens
// later in the background.
func (e *Engine) RecordUsage(credentialID string, ctx Context, success bool) error {
	if credentialID == "" {
		return fmt.Errorf("credential id is required: %w", docs.ErrInvalidInput)
	}
	now := e.now().UTC()

	e.patternsMu.Lock()
	history := append(e.patterns[credentialID], UsagePattern{
		CredentialID: credentialID,
		Context:      ctx,
		Timestamp:    now,
		Success:      success,
	})
	if over := len(history) - e.cfg.MaxPatterns; over > 0 {
		history = append([]UsagePattern(nil), history[over:]...)
	}
	e.patterns[credentialID] = history

	e.prefsMu.Lock()
	p := e.prefs[credentialID]
	p.CredentialID = credentialID
	p.UseCount++
	outcome := 0.0
	if success {
		outcome = 1
	}
	p.SuccessRate = (p.SuccessRate*float64(p.UseCount-1) + outcome) / float64(p.UseCount)
	p.LastUsed = now
	if success && !e.hasNearDuplicate(p.PreferredContexts, ctx) {
		preferred := append(p.PreferredContexts, ctx)
		if over := len(preferred) - e.cfg.MaxPreferred; over > 0 {
			preferred = append([]Context(nil), preferred[over:]...)
		}
		p.PreferredContexts = preferred
	}
	e.prefs[credentialID] = p
	e.prefsMu.Unlock()
	e.patternsMu.Unlock()

	e.requestCheckpoint()
	return nil
}

func (e *Engine) hasNearDuplicate(list []Context, ctx Context) bool {
	for _, c := range list {
		if e.similarity(c, ctx) > e.cfg.DuplicateThreshold {
			return true
		}
	}
	return false
}

func (e *Engine) similarity(a, b Context) float64 {
	return similarity(a, b, e.cfg.AppFuzzyScore)
}

// Preferences returns the aggregate for credentialID.
func (e *Engine) Preferences(credentialID string) (KeyPreferences, bool) {
	e.prefsMu.RLock()
	defer e.prefsMu.RUnlock()
	p, ok := e.prefs[credentialID]
	if !ok {
		return KeyPreferences{}, false
	}
	p.PreferredContexts = append([]Context(nil), p.PreferredContexts...)
	return p, true
}

// Patterns returns credentialID's usage history, oldest first.
func (e *Engine) Patterns(credentialID string) []UsagePattern {
	e.patternsMu.RLock()
	defer e.patternsMu.RUnlock()
	return append([]UsagePattern(nil), e.patterns[credentialID]...)
}

// SecurityScore is AssessSecurity for ctx.
func (e *Engine) SecurityScore(ctx Context) SecurityScore {
	return AssessSecurity(ctx)
}

// AnalyzeContext ranks candidateIDs for ctx. Candidates at or below the
// similarity threshold are dropped; at most MaxSuggestions are returned,
// highest confidence first.
func (e *Engine) AnalyzeContext(ctx Context, candidateIDs []string) Prediction {
	now := e.now().UTC()

	e.patternsMu.RLock()
	e.prefsMu.RLock()
	seen := make(map[string]bool, len(candidateIDs))
	suggestions := []Suggestion{}
	for _, id := range candidateIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		conf := e.confidence(id, ctx, now)
		if conf <= e.cfg.SimilarityThreshold {
			continue
		}
		suggestions = append(suggestions, Suggestion{
			CredentialID:    id,
			Confidence:      conf,
			Reason:          e.reason(id, conf),
			SuggestedFormat: FormatFor(ctx.FileExtension),
		})
	}
	contextConf := e.contextConfidence(ctx)
	usage := e.usagePrediction(ctx, now)
	e.prefsMu.RUnlock()
	e.patternsMu.RUnlock()

	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Confidence != suggestions[j].Confidence {
			return suggestions[i].Confidence > suggestions[j].Confidence
		}
		return suggestions[i].CredentialID < suggestions[j].CredentialID
	})
	if len(suggestions) > e.cfg.MaxSuggestions {
		suggestions = suggestions[:e.cfg.MaxSuggestions]
	}

	return Prediction{
		Suggestions:       suggestions,
		ContextConfidence: contextConf,
		Usage:             usage,
		Security:          AssessSecurity(ctx),
	}
}

// confidence is the weighted blend of log frequency, recency of last use,
// success rate and similarity to recent uses. Caller holds both read locks.
func (e *Engine) confidence(id string, ctx Context, now time.Time) float64 {
	history := e.patterns[id]
	pref, hasPref := e.prefs[id]

	freq := e.frequency(len(history))

	var recency, success float64
	if hasPref {
		recency = e.recency(pref.LastUsed, now)
		success = pref.SuccessRate
	}

	var match float64
	recent := history
	if len(recent) > e.cfg.HistoryWindow {
		recent = recent[len(recent)-e.cfg.HistoryWindow:]
	}
	if len(recent) > 0 {
		for _, p := range recent {
			match += e.similarity(ctx, p.Context)
		}
		match /= float64(len(recent))
	}

	score := e.cfg.FrequencyWeight*freq +
		e.cfg.RecencyWeight*recency +
		e.cfg.SuccessWeight*success +
		e.cfg.ContextWeight*match
	return docs.Clamp01(score)
}

func (e *Engine) frequency(count int) float64 {
	if count == 0 {
		return 0
	}
	return math.Min(math.Log(float64(count))/e.cfg.LogFrequencyDivisor, 1)
}

func (e *Engine) recency(last, now time.Time) float64 {
	if last.IsZero() {
		return 0
	}
	age := now.Sub(last)
	if age < 0 {
		age = 0
	}
	return math.Exp(-age.Hours() / e.cfg.RecencyDecay.Hours())
}

func (e *Engine) reason(id string, conf float64) string {
	switch {
	case conf > 0.8:
		return fmt.Sprintf("Used successfully %.0f%% of the time in similar contexts", e.prefs[id].SuccessRate*100)
	case conf > 0.6:
		return "Recently used in this type of project"
	case conf > 0.4:
		return "Matches current file type"
	default:
		return "Suggested from usage history"
	}
}

var contextFieldWeights = [...]struct {
	weight float64
	get    func(Context) string
}{
	{0.3, func(c Context) string { return c.ActiveApp }},
	{0.25, func(c Context) string { return c.FileExtension }},
	{0.2, func(c Context) string { return c.ProjectType }},
	{0.15, func(c Context) string { return c.Language }},
	{0.1, func(c Context) string { return c.ContentSnippet }},
}

// contextConfidence measures how much signal ctx carries: the weighted
// presence of its fields, boosted when enough similar contexts have been
// seen. Caller holds patternsMu.
func (e *Engine) contextConfidence(ctx Context) float64 {
	var score float64
	for _, f := range contextFieldWeights {
		if normalizeField(f.get(ctx)) != "" {
			score += f.weight
		}
	}

	similar := 0
	for _, history := range e.patterns {
		for _, p := range history {
			if e.similarity(ctx, p.Context) > e.cfg.SimilarContextThreshold {
				similar++
			}
		}
	}
	if similar >= e.cfg.SimilarContextsForBoost {
		score *= e.cfg.ContextBoost
	}
	return docs.Clamp01(score)
}

// usagePrediction aggregates frequency, recency and preferred-context match
// over every known credential. Caller holds both read locks.
func (e *Engine) usagePrediction(ctx Context, now time.Time) UsagePrediction {
	var up UsagePrediction

	if len(e.patterns) > 0 {
		for _, history := range e.patterns {
			up.FrequencyScore += e.frequency(len(history))
		}
		up.FrequencyScore /= float64(len(e.patterns))
	}

	var matches int
	if len(e.prefs) > 0 {
		for _, p := range e.prefs {
			up.RecencyScore += e.recency(p.LastUsed, now)
			for _, pc := range p.PreferredContexts {
				up.ContextMatchScore += e.similarity(ctx, pc)
				matches++
			}
		}
		up.RecencyScore /= float64(len(e.prefs))
	}
	if matches > 0 {
		up.ContextMatchScore /= float64(matches)
	}

	var next time.Time
	switch {
	case up.ContextMatchScore > 0.5:
		next = now.Add(30 * time.Minute)
	case up.ContextMatchScore > 0.3:
		next = now.Add(2 * time.Hour)
	}
	if !next.IsZero() {
		up.PredictedNextUse = &next
	}
	return up
}

// snapshot copies the learned state for a checkpoint.
func (e *Engine) snapshot() State {
	e.patternsMu.RLock()
	e.prefsMu.RLock()
	defer e.patternsMu.RUnlock()
	defer e.prefsMu.RUnlock()

	st := State{
		Patterns:    make(map[string][]UsagePattern, len(e.patterns)),
		Preferences: make(map[string]KeyPreferences, len(e.prefs)),
	}
	for id, h := range e.patterns {
		st.Patterns[id] = append([]UsagePattern(nil), h...)
	}
	for id, p := range e.prefs {
		p.PreferredContexts = append([]Context(nil), p.PreferredContexts...)
		st.Preferences[id] = p
	}
	return st
}

// requestCheckpoint marks state dirty without blocking.
func (e *Engine) requestCheckpoint() {
	if e.cp == nil {
		return
	}
	select {
	case e.dirty <- struct{}{}:
	default:
	}
}

// checkpointLoop writes at most one checkpoint per debounce window and a
// final one on Close when changes are pending.
func (e *Engine) checkpointLoop() {
	defer e.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time
	pending := false

	for {
		select {
		case <-e.dirty:
			pending = true
			if timer == nil {
				timer = time.NewTimer(e.cfg.CheckpointDebounce)
				timerC = timer.C
			}

		case <-timerC:
			timer, timerC = nil, nil
			pending = false
			e.Flush()

		case <-e.stopChan:
			if timer != nil {
				timer.Stop()
			}
			select {
			case <-e.dirty:
				pending = true
			default:
			}
			if pending {
				e.Flush()
			}
			return
		}
	}
}

// Flush writes a checkpoint now. Failures are logged. Concurrent calls
// are serialized so each save writes a consistent pair of files.
func (e *Engine) Flush() {
	if e.cp == nil {
		return
	}
	e.saveMu.Lock()
	defer e.saveMu.Unlock()
	if err := e.cp.Save(e.snapshot()); err != nil {
		e.logger.Warn("saving relevance checkpoint", "error", fmt.Errorf("%w: %w", ErrPersistence, err))
	}
}

// Close stops the checkpoint loop, writing pending changes first. It
// always returns nil.
func (e *Engine) Close() error {
	e.stopOnce.Do(func() {
		close(e.stopChan)
		e.wg.Wait()
	})
	return nil
}
