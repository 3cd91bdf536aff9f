package relevance

import "time"

// Config holds the engine's scoring constants. The defaults are empirical;
// every value can be tuned.
type Config struct {
	FrequencyWeight float64
	RecencyWeight   float64
	SuccessWeight   float64
	ContextWeight   float64

	// LogFrequencyDivisor scales ln(pattern count) into the frequency score.
	LogFrequencyDivisor float64
	// RecencyDecay is the time constant of exp(-age/RecencyDecay).
	RecencyDecay time.Duration

	SimilarityThreshold float64
	MaxSuggestions      int
	HistoryWindow       int
	MaxPatterns         int
	MaxPreferred        int
	DuplicateThreshold  float64
	AppFuzzyScore       float64

	// SimilarContextThreshold and SimilarContextsForBoost control the
	// context-confidence boost for familiar contexts.
	SimilarContextThreshold float64
	SimilarContextsForBoost int
	ContextBoost            float64

	// CheckpointDebounce batches checkpoint requests arriving within this
	// window into one write.
	CheckpointDebounce time.Duration
}

func DefaultConfig() Config {
	return Config{
		FrequencyWeight:         0.3,
		RecencyWeight:           0.2,
		SuccessWeight:           0.2,
		ContextWeight:           0.3,
		LogFrequencyDivisor:     10,
		RecencyDecay:            168 * time.Hour,
		SimilarityThreshold:     0.3,
		MaxSuggestions:          5,
		HistoryWindow:           10,
		MaxPatterns:             100,
		MaxPreferred:            10,
		DuplicateThreshold:      0.8,
		AppFuzzyScore:           0.7,
		SimilarContextThreshold: 0.5,
		SimilarContextsForBoost: 5,
		ContextBoost:            1.2,
		CheckpointDebounce:      2 * time.Second,
	}
}

// withDefaults fills unset fields from DefaultConfig. The four weights are
// replaced only when all of them are zero. A zero SimilarityThreshold is
// kept: it lets every candidate through.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FrequencyWeight == 0 && c.RecencyWeight == 0 && c.SuccessWeight == 0 && c.ContextWeight == 0 {
		c.FrequencyWeight, c.RecencyWeight, c.SuccessWeight, c.ContextWeight =
			d.FrequencyWeight, d.RecencyWeight, d.SuccessWeight, d.ContextWeight
	}
	if c.LogFrequencyDivisor <= 0 {
		c.LogFrequencyDivisor = d.LogFrequencyDivisor
	}
	if c.RecencyDecay <= 0 {
		c.RecencyDecay = d.RecencyDecay
	}
	if c.SimilarityThreshold < 0 {
		c.SimilarityThreshold = d.SimilarityThreshold
	}
	if c.MaxSuggestions <= 0 {
		c.MaxSuggestions = d.MaxSuggestions
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = d.HistoryWindow
	}
	if c.MaxPatterns <= 0 {
		c.MaxPatterns = d.MaxPatterns
	}
	if c.MaxPreferred <= 0 {
		c.MaxPreferred = d.MaxPreferred
	}
	if c.DuplicateThreshold <= 0 {
		c.DuplicateThreshold = d.DuplicateThreshold
	}
	if c.AppFuzzyScore <= 0 {
		c.AppFuzzyScore = d.AppFuzzyScore
	}
	if c.SimilarContextThreshold <= 0 {
		c.SimilarContextThreshold = d.SimilarContextThreshold
	}
	if c.SimilarContextsForBoost <= 0 {
		c.SimilarContextsForBoost = d.SimilarContextsForBoost
	}
	if c.ContextBoost <= 0 {
		c.ContextBoost = d.ContextBoost
	}
	if c.CheckpointDebounce <= 0 {
		c.CheckpointDebounce = d.CheckpointDebounce
	}
	return c
}
