// Package priority provides the scoring functions that decide which memories
// surface first at session start and which are evicted first.
//
// The priority of a memory blends three factors:
//
//	priority = difficulty*0.4 + recency*0.3 + frequency*0.3
//
// where recency decays with the number of sessions since the memory was last
// accessed and frequency saturates after FrequencyCap accesses.
package priority

// Weight distribution for the priority factors.
const (
	DifficultyWeight = 0.4
	RecencyWeight    = 0.3
	FrequencyWeight  = 0.3
)

// Normalization constants.
const (
	// FrequencyCap is the access count at which frequency reaches 1.0.
	FrequencyCap = 10

	// ToolCountCap is the tool invocation count at which the tool-count
	// component of difficulty reaches 1.0.
	ToolCountCap = 50

	// DefaultTokenCap is the session token count at which the token-usage
	// component of difficulty reaches 1.0.
	DefaultTokenCap = 100000

	// DefaultDifficulty is assumed when a memory carries no difficulty.
	DefaultDifficulty = 0.5
)

// Stats is the access-statistics subset the calculator reads. A nil *Stats is
// valid and treated as a memory that has never been accessed.
type Stats struct {
	AccessCount int
	LastSession int
}

// Calculator computes priority and difficulty scores. The zero value is ready
// to use.
type Calculator struct{}

// NewCalculator returns a ready-to-use Calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Calculate returns the priority score for a memory, in [0, 1].
// Callers pass DefaultDifficulty when the metadata carries no difficulty.
func (c *Calculator) Calculate(difficulty float64, stats *Stats, currentSession int) float64 {
	p := difficulty*DifficultyWeight +
		c.recency(stats, currentSession)*RecencyWeight +
		c.frequency(stats)*FrequencyWeight
	return clamp(p)
}

// recency scores how recently the memory was accessed, in sessions:
// 1.0 for the current session, 0.5 one session ago, 0.33 two ago, and so on.
func (c *Calculator) recency(stats *Stats, currentSession int) float64 {
	lastSession := 0
	if stats != nil {
		lastSession = stats.LastSession
	}
	since := currentSession - lastSession
	if since < 0 {
		since = 0
	}
	return 1.0 / (1.0 + float64(since))
}

// frequency scores how often the memory is accessed, saturating at
// FrequencyCap accesses.
func (c *Calculator) frequency(stats *Stats) float64 {
	if stats == nil {
		return 0
	}
	f := float64(stats.AccessCount) / FrequencyCap
	if f > 1 {
		return 1
	}
	return f
}

// CalculateDifficulty derives a difficulty score from session metrics.
//
// When token counting is available (sessionTokens > 0):
//
//	difficulty = failureRate*0.25 + toolCount*0.15 + tokenUsage*0.35 + compaction*0.25
//
// When it is not (sessionTokens == 0), the legacy formula applies:
//
//	difficulty = failureRate*0.5 + toolCount*0.3 + compaction*0.2
//
// Selection between the two depends only on sessionTokens. A tokenCap <= 0
// falls back to DefaultTokenCap.
func (c *Calculator) CalculateDifficulty(toolFailures, toolSuccesses int, compacted bool, sessionTokens, tokenCap int) float64 {
	total := toolFailures + toolSuccesses

	var failureRate, toolCountNorm float64
	if total > 0 {
		failureRate = float64(toolFailures) / float64(total)
		toolCountNorm = float64(total) / ToolCountCap
		if toolCountNorm > 1 {
			toolCountNorm = 1
		}
	}

	var compactionBonus float64
	if compacted {
		compactionBonus = 1
	}

	var difficulty float64
	if sessionTokens > 0 {
		if tokenCap <= 0 {
			tokenCap = DefaultTokenCap
		}
		tokenUsageNorm := float64(sessionTokens) / float64(tokenCap)
		if tokenUsageNorm > 1 {
			tokenUsageNorm = 1
		}
		difficulty = failureRate*0.25 + toolCountNorm*0.15 + tokenUsageNorm*0.35 + compactionBonus*0.25
	} else {
		difficulty = failureRate*0.5 + toolCountNorm*0.3 + compactionBonus*0.2
	}

	return clamp(difficulty)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var defaultCalculator = NewCalculator()

// Calculate is a convenience wrapper around the default Calculator.
func Calculate(difficulty float64, stats *Stats, currentSession int) float64 {
	return defaultCalculator.Calculate(difficulty, stats, currentSession)
}

// CalculateDifficulty is a convenience wrapper around the default Calculator.
func CalculateDifficulty(toolFailures, toolSuccesses int, compacted bool, sessionTokens, tokenCap int) float64 {
	return defaultCalculator.CalculateDifficulty(toolFailures, toolSuccesses, compacted, sessionTokens, tokenCap)
}
