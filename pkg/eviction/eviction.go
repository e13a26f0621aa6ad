// Package eviction keeps the memory store under its capacity by degrading
// the lowest-priority records through phases: full content, hint, abstract,
// and finally removal. Full content is archived before the first reduction,
// so any degraded record can be restored.
package eviction

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/entrhq/retain/pkg/logging"
	"github.com/entrhq/retain/pkg/memory"
)

const (
	// reducedMarker is appended to hint content in place of the full body.
	reducedMarker = "*[Content reduced - see archives for full version]*"
	// archivedMarker closes out abstract content.
	archivedMarker = "*[Full content archived]*"
)

// Config tunes the engine.
type Config struct {
	// MaxMemories is the active-record capacity. Eviction runs only while
	// the store holds more than this many records.
	MaxMemories int
	// BatchSize caps how many records a single Run degrades.
	BatchSize int
	// HintMaxChars bounds hint content when no summary section exists.
	HintMaxChars int
	// AbstractMaxChars bounds the abstract line.
	AbstractMaxChars int
}

// DefaultConfig returns the standard capacity and reduction bounds.
func DefaultConfig() Config {
	return Config{
		MaxMemories:      100,
		BatchSize:        10,
		HintMaxChars:     200,
		AbstractMaxChars: 100,
	}
}

// Engine degrades low-priority records in a Store.
type Engine struct {
	store *memory.Store
	cfg   Config
	log   *logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger wires a component logger into the engine.
func WithLogger(log *logging.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// NewEngine returns an Engine over store. Zero config fields fall back to
// defaults, except MaxMemories, where zero is honored (evict everything
// beyond zero records).
func NewEngine(store *memory.Store, cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.MaxMemories < 0 {
		cfg.MaxMemories = def.MaxMemories
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.HintMaxChars <= 0 {
		cfg.HintMaxChars = def.HintMaxChars
	}
	if cfg.AbstractMaxChars <= 0 {
		cfg.AbstractMaxChars = def.AbstractMaxChars
	}
	e := &Engine{store: store, cfg: cfg, log: logging.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NeedsEviction reports whether the store holds more active records than the
// configured capacity.
func (e *Engine) NeedsEviction() (bool, error) {
	ix, err := e.store.ReadIndex()
	if err != nil {
		return false, err
	}
	return len(ix.Memories) > e.cfg.MaxMemories, nil
}

// Transitions counts phase changes made by a Run.
type Transitions struct {
	FullToHint       int `json:"full_to_hint"`
	HintToAbstract   int `json:"hint_to_abstract"`
	AbstractToPurged int `json:"abstract_to_purged"`
}

// Result reports what a Run did.
type Result struct {
	Processed   int         `json:"processed"`
	Transitions Transitions `json:"transitions"`
	Archived    int         `json:"archived"`
	Deleted     int         `json:"deleted"`

	// Skipped records the ids the run could not degrade, with the reason.
	Skipped []string `json:"skipped,omitempty"`
}

// Run degrades up to BatchSize of the lowest-priority records by one phase
// each. It is a no-op while the store is at or under capacity. A record
// failing to degrade is skipped and the batch continues.
func (e *Engine) Run() (*Result, error) {
	result := &Result{}

	over, err := e.NeedsEviction()
	if err != nil {
		return nil, err
	}
	if !over {
		return result, nil
	}

	candidates, err := e.store.List(memory.ListOptions{
		Limit: e.cfg.MaxMemories + e.cfg.BatchSize,
	})
	if err != nil {
		return nil, err
	}

	// List ranks best-first; eviction wants the worst first.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].ID < candidates[j].ID
	})
	if len(candidates) > e.cfg.BatchSize {
		candidates = candidates[:e.cfg.BatchSize]
	}

	for _, cand := range candidates {
		if err := e.degrade(cand.ID, cand.Phase, result); err != nil {
			e.log.Warnf("eviction: skipping %s: %v", cand.ID, err)
			result.Skipped = append(result.Skipped, fmt.Sprintf("%s: %v", cand.ID, err))
			continue
		}
		result.Processed++
	}

	e.log.Infof("eviction run: processed=%d archived=%d deleted=%d skipped=%d",
		result.Processed, result.Archived, result.Deleted, len(result.Skipped))
	return result, nil
}

// degrade moves one record forward a single phase.
func (e *Engine) degrade(id string, phase int, result *Result) error {
	switch phase {
	case memory.PhaseFull:
		archived, err := e.store.Archive(id)
		if err != nil {
			return err
		}
		if archived {
			result.Archived++
		}
		m, err := e.store.Read(id, false)
		if err != nil {
			return err
		}
		hint := e.hintContent(m.Content)
		next := memory.PhaseHint
		if err := e.store.Update(id, memory.Fields{Content: &hint, Phase: &next}); err != nil {
			return err
		}
		result.Transitions.FullToHint++

	case memory.PhaseHint:
		m, err := e.store.Read(id, false)
		if err != nil {
			return err
		}
		abstract := e.abstractContent(m.Content)
		next := memory.PhaseAbstract
		if err := e.store.Update(id, memory.Fields{Content: &abstract, Phase: &next}); err != nil {
			return err
		}
		result.Transitions.HintToAbstract++

	case memory.PhaseAbstract:
		// The archive was written back at the first reduction; purging
		// only removes the active record.
		if err := e.store.Delete(id, false); err != nil {
			return err
		}
		result.Transitions.AbstractToPurged++
		result.Deleted++

	default:
		return fmt.Errorf("eviction: unexpected phase %d", phase)
	}
	return nil
}

// hintContent reduces full content for the hint phase. A document with a
// "## Summary" section keeps everything before its "## Content" section;
// otherwise the leading HintMaxChars characters are kept. Content already
// within the bound passes through unchanged.
func (e *Engine) hintContent(content string) string {
	if strings.Contains(content, "## Summary") {
		kept := content
		if idx := strings.Index(content, "## Content"); idx >= 0 {
			kept = content[:idx]
		}
		return strings.TrimSpace(kept) + "\n\n" + reducedMarker
	}

	r := []rune(content)
	if len(r) <= e.cfg.HintMaxChars {
		return content
	}
	return string(r[:e.cfg.HintMaxChars]) + "...\n\n" + reducedMarker
}

// abstractContent reduces hint content for the abstract phase: the first
// non-empty, non-header line, bounded to AbstractMaxChars characters.
func (e *Engine) abstractContent(content string) string {
	var abstract string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "## ") {
			continue
		}
		abstract = line
		break
	}
	if r := []rune(abstract); len(r) > e.cfg.AbstractMaxChars {
		abstract = string(r[:e.cfg.AbstractMaxChars]) + "..."
	}
	return fmt.Sprintf("*Abstract: %s*\n\n%s", abstract, archivedMarker)
}

// RestoreFromArchive rewrites a degraded record's content from its archived
// snapshot and resets it to the full phase. It reports false when no archive
// exists, the archive holds no content, or the active record is gone.
func (e *Engine) RestoreFromArchive(id string) (bool, error) {
	archived, err := e.store.ReadArchive(id)
	if err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if strings.TrimSpace(archived.Content) == "" {
		return false, nil
	}

	phase := memory.PhaseFull
	if err := e.store.Update(id, memory.Fields{Content: &archived.Content, Phase: &phase}); err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	e.log.Infof("restored %s from archive", id)
	return true, nil
}

// GetArchivedContent returns the archived content for an id and whether an
// archive exists.
func (e *Engine) GetArchivedContent(id string) (string, bool, error) {
	archived, err := e.store.ReadArchive(id)
	if err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return archived.Content, true, nil
}

// ListArchives returns the sorted ids of every archived record.
func (e *Engine) ListArchives() ([]string, error) {
	return e.store.ListArchives()
}
