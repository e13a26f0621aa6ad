// Package memory provides the persistent store for retain: one markdown
// content file per memory with YAML front-matter, plus three JSON catalogs
// (index, stats, state) kept consistent with the files on disk.
package memory

import "time"

// Eviction phases. A memory is created Full and only moves forward, except
// through an explicit restore from archive, which resets it to Full.
const (
	PhaseFull     = 0
	PhaseHint     = 1
	PhaseAbstract = 2
	PhasePurged   = 3 // represented by absence from the index, never stored
)

// Memory is the fully parsed representation of a stored record.
type Memory struct {
	ID             string
	Topic          string
	Tags           []string
	Phase          int
	Difficulty     float64
	CreatedAt      time.Time
	CreatedSession int
	Content        string

	// Extra holds unrecognized scalar front-matter keys, preserved across
	// rewrites.
	Extra map[string]string
}

// IndexEntry is the metadata duplicated into index.json so listings can scan
// without opening every content file. The index is the source of truth for
// which memories exist.
type IndexEntry struct {
	Topic      string    `json:"topic"`
	Tags       []string  `json:"tags"`
	Phase      int       `json:"phase"`
	Difficulty float64   `json:"difficulty"`
	CreatedAt  time.Time `json:"created_at"`
}

// StatsEntry is the volatile access record kept in stats.json. It is derived
// data: safe to lose and recompute, except the access count history, which
// then resets.
type StatsEntry struct {
	AccessCount int       `json:"access_count"`
	AccessedAt  time.Time `json:"accessed_at"`
	LastSession int       `json:"last_session"`
	Priority    float64   `json:"priority"`
}

// Index is the durable id -> metadata catalog.
type Index struct {
	Version  int                    `json:"version"`
	Memories map[string]*IndexEntry `json:"memories"`
}

// Stats is the volatile id -> access statistics catalog.
type Stats struct {
	Version  int                    `json:"version"`
	Memories map[string]*StatsEntry `json:"memories"`
}

// SessionState is the scratch record for the session currently in progress.
type SessionState struct {
	StartedAt     string `json:"started_at,omitempty"`
	ToolFailures  int    `json:"tool_failures"`
	ToolSuccesses int    `json:"tool_successes"`
	Compacted     bool   `json:"compacted"`
	SessionTokens int    `json:"session_tokens"`
}

// TokenCountingConfig controls token-aware difficulty scoring.
type TokenCountingConfig struct {
	Enabled      bool `json:"enabled"`
	NormalizeCap int  `json:"normalize_cap"`
}

// StateConfig holds the per-store tunables persisted in state.json.
type StateConfig struct {
	MaxMemories       int                 `json:"max_memories"`
	MemoriesToLoad    int                 `json:"memories_to_load"`
	EvictionBatchSize int                 `json:"eviction_batch_size"`
	TokenCounting     TokenCountingConfig `json:"token_counting"`
}

// State is the session/configuration catalog kept in state.json.
type State struct {
	Version         int          `json:"version"`
	SessionCount    int          `json:"session_count"`
	CurrentSession  SessionState `json:"current_session"`
	CompactionCount int          `json:"compaction_count"`
	LastEviction    string       `json:"last_eviction,omitempty"`
	Config          StateConfig  `json:"config"`
}

// Summary is a listing row: index metadata joined with access statistics and
// the derived priority. Content is not included.
type Summary struct {
	ID          string    `json:"id"`
	Topic       string    `json:"topic"`
	Tags        []string  `json:"tags"`
	Phase       int       `json:"phase"`
	Difficulty  float64   `json:"difficulty"`
	Priority    float64   `json:"priority"`
	CreatedAt   time.Time `json:"created_at"`
	AccessCount int       `json:"access_count"`
	AccessedAt  time.Time `json:"accessed_at"`
}

// SearchResult is a search hit with a short content preview.
type SearchResult struct {
	ID       string   `json:"id"`
	Topic    string   `json:"topic"`
	Snippet  string   `json:"snippet"`
	Tags     []string `json:"tags"`
	Phase    int      `json:"phase"`
	Priority float64  `json:"priority"`
}

// Fields is the whitelisted set of mutable memory fields for Update. Nil
// pointers (and a nil Tags slice) leave the current value unchanged.
type Fields struct {
	Content    *string
	Tags       []string
	Phase      *int
	Difficulty *float64
	Topic      *string
}
