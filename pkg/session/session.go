// Package session manages session boundaries for the memory store: counting
// sessions, accumulating per-session difficulty signals, and settling scores
// and capacity when a session ends.
package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/retain/pkg/eviction"
	"github.com/entrhq/retain/pkg/logging"
	"github.com/entrhq/retain/pkg/memory"
	"github.com/entrhq/retain/pkg/priority"
)

// contextContentMaxChars bounds how much of a full-phase record the session
// context document includes.
const contextContentMaxChars = 500

// Manager drives the session lifecycle over a store and its eviction engine.
type Manager struct {
	store  *memory.Store
	engine *eviction.Engine
	calc   *priority.Calculator
	log    *logging.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger wires a component logger into the manager.
func WithLogger(log *logging.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// NewManager returns a Manager over store and engine.
func NewManager(store *memory.Store, engine *eviction.Engine, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		engine: engine,
		calc:   priority.NewCalculator(),
		log:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins a new session: the session counter advances, the per-session
// scratch state resets, and the highest-priority records are rendered into a
// context document for the caller to surface.
func (m *Manager) Start() (string, error) {
	state, err := m.store.ReadState()
	if err != nil {
		return "", err
	}
	state.SessionCount++
	state.CurrentSession = memory.SessionState{
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := m.store.WriteState(state); err != nil {
		return "", err
	}
	m.log.Infof("session %d started", state.SessionCount)

	return m.contextDocument(state.Config.MemoriesToLoad)
}

// contextDocument renders the top records for injection at session start.
func (m *Manager) contextDocument(limit int) (string, error) {
	if limit <= 0 {
		limit = memory.DefaultStateConfig().MemoriesToLoad
	}
	summaries, err := m.store.List(memory.ListOptions{Limit: limit})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("## Long-Term Memory Context\n")
	if len(summaries) == 0 {
		b.WriteString("\nNo memories stored yet.\n")
		return b.String(), nil
	}

	for _, sum := range summaries {
		mem, err := m.store.Read(sum.ID, false)
		if err != nil {
			m.log.Warnf("session start: skipping unreadable memory %s: %v", sum.ID, err)
			continue
		}
		content := mem.Content
		if sum.Phase == memory.PhaseFull {
			if r := []rune(content); len(r) > contextContentMaxChars {
				content = string(r[:contextContentMaxChars]) + "..."
			}
		}
		fmt.Fprintf(&b, "\n### %s (priority %.2f)\n%s\n", sum.Topic, sum.Priority, content)
	}
	return b.String(), nil
}

// TrackTool records one tool invocation outcome in the current session.
func (m *Manager) TrackTool(failed bool) error {
	state, err := m.store.ReadState()
	if err != nil {
		return err
	}
	if failed {
		state.CurrentSession.ToolFailures++
	} else {
		state.CurrentSession.ToolSuccesses++
	}
	return m.store.WriteState(state)
}

// TrackTokens accumulates token volume into the current session.
func (m *Manager) TrackTokens(n int) error {
	if n <= 0 {
		return nil
	}
	state, err := m.store.ReadState()
	if err != nil {
		return err
	}
	state.CurrentSession.SessionTokens += n
	return m.store.WriteState(state)
}

// MarkCompaction records that the surrounding conversation was compacted
// during the current session. Compaction signals a heavy session, which
// raises the difficulty of memories created in it.
func (m *Manager) MarkCompaction() error {
	state, err := m.store.ReadState()
	if err != nil {
		return err
	}
	state.CurrentSession.Compacted = true
	state.CompactionCount++
	return m.store.WriteState(state)
}

// EndResult reports what settling a session did.
type EndResult struct {
	// Difficulty is the score computed from this session's signals.
	Difficulty float64
	// DifficultyApplied counts the records created this session that took
	// on the session difficulty.
	DifficultyApplied int
	// PrioritiesRefreshed counts the stats entries whose priority was
	// recomputed.
	PrioritiesRefreshed int
	// Eviction is nil when the store was under capacity.
	Eviction *eviction.Result
}

// End settles the current session: the session difficulty is computed from
// the accumulated signals and applied to this session's new records, every
// indexed record's priority is refreshed against the current session number,
// and eviction runs if the store is over capacity.
func (m *Manager) End() (*EndResult, error) {
	state, err := m.store.ReadState()
	if err != nil {
		return nil, err
	}
	sess := state.CurrentSession
	currentSession := state.SessionCount

	difficulty := m.calc.CalculateDifficulty(
		sess.ToolFailures,
		sess.ToolSuccesses,
		sess.Compacted,
		sess.SessionTokens,
		state.Config.TokenCounting.NormalizeCap,
	)
	result := &EndResult{Difficulty: difficulty}

	ix, err := m.store.ReadIndex()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(ix.Memories))
	for id := range ix.Memories {
		ids = append(ids, id)
	}
	for _, id := range ids {
		mem, err := m.store.Read(id, false)
		if err != nil {
			m.log.Warnf("session end: skipping unreadable memory %s: %v", id, err)
			continue
		}
		if mem.CreatedSession != currentSession {
			continue
		}
		if err := m.store.Update(id, memory.Fields{Difficulty: &difficulty}); err != nil {
			m.log.Warnf("session end: updating difficulty of %s: %v", id, err)
			continue
		}
		result.DifficultyApplied++
	}

	// Difficulty updates above may have rewritten the index.
	ix, err = m.store.ReadIndex()
	if err != nil {
		return nil, err
	}
	st, err := m.store.ReadStats()
	if err != nil {
		return nil, err
	}
	for id, entry := range st.Memories {
		meta := ix.Memories[id]
		if meta == nil {
			continue
		}
		entry.Priority = m.calc.Calculate(meta.Difficulty, &priority.Stats{
			AccessCount: entry.AccessCount,
			LastSession: entry.LastSession,
		}, currentSession)
		result.PrioritiesRefreshed++
	}
	if result.PrioritiesRefreshed > 0 {
		if err := m.store.WriteStats(st); err != nil {
			return nil, err
		}
	}

	over, err := m.engine.NeedsEviction()
	if err != nil {
		return nil, err
	}
	if over {
		evicted, err := m.engine.Run()
		if err != nil {
			return nil, err
		}
		result.Eviction = evicted
		state.LastEviction = time.Now().UTC().Format(time.RFC3339)
	}

	state.CurrentSession = memory.SessionState{}
	if err := m.store.WriteState(state); err != nil {
		return nil, err
	}

	m.log.Infof("session %d ended: difficulty=%.2f applied=%d refreshed=%d",
		currentSession, difficulty, result.DifficultyApplied, result.PrioritiesRefreshed)
	return result, nil
}
