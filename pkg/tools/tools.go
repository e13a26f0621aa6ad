// Package tools exposes the memory operations as named calls returning
// rendered text, suitable for surfacing directly to a conversational caller.
// A missing memory renders as a message rather than failing the call.
package tools

import (
	"errors"
	"fmt"
	"strings"

	"github.com/entrhq/retain/pkg/eviction"
	"github.com/entrhq/retain/pkg/keywords"
	"github.com/entrhq/retain/pkg/logging"
	"github.com/entrhq/retain/pkg/memory"
)

// Dispatcher renders store, eviction, and integrity operations as text.
type Dispatcher struct {
	store  *memory.Store
	engine *eviction.Engine
	log    *logging.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger wires a component logger into the dispatcher.
func WithLogger(log *logging.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// NewDispatcher returns a Dispatcher over store and engine.
func NewDispatcher(store *memory.Store, engine *eviction.Engine, opts ...Option) *Dispatcher {
	d := &Dispatcher{store: store, engine: engine, log: logging.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func notFoundText(id string) string {
	return fmt.Sprintf("Memory not found: %s", id)
}

// Store saves a new memory. When no tags are given they are derived from the
// topic and content.
func (d *Dispatcher) Store(topic, content string, tags []string, difficulty float64) (string, error) {
	if len(tags) == 0 {
		tags = keywords.Extract(topic + " " + content)
	}
	id, err := d.store.Create(topic, content, tags, difficulty)
	if err != nil {
		return "", err
	}
	if len(tags) > 0 {
		return fmt.Sprintf("Stored memory %s: %s [%s]", id, topic, strings.Join(tags, ", ")), nil
	}
	return fmt.Sprintf("Stored memory %s: %s", id, topic), nil
}

// Recall searches topics, tags, and content for the query.
func (d *Dispatcher) Recall(query string, limit int) (string, error) {
	results, err := d.store.Search(query, limit)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return fmt.Sprintf("No memories found for %q", query), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d memories for %q:\n", len(results), query)
	for _, r := range results {
		fmt.Fprintf(&b, "\n- %s (%s, priority %.2f)\n  %s\n", r.ID, r.Topic, r.Priority, r.Snippet)
	}
	return b.String(), nil
}

// List renders a priority-ordered listing, optionally filtered.
func (d *Dispatcher) List(opts memory.ListOptions) (string, error) {
	results, err := d.store.List(opts)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "No memories stored.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d memories:\n", len(results))
	for _, r := range results {
		fmt.Fprintf(&b, "- %s  p=%.2f  phase=%d  %s", r.ID, r.Priority, r.Phase, r.Topic)
		if len(r.Tags) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(r.Tags, ", "))
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

// Get renders one memory in full and records the access.
func (d *Dispatcher) Get(id string) (string, error) {
	m, err := d.store.Read(id, true)
	if errors.Is(err, memory.ErrNotFound) {
		return notFoundText(id), nil
	}
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", m.Topic)
	fmt.Fprintf(&b, "id: %s | phase: %d | difficulty: %.2f", m.ID, m.Phase, m.Difficulty)
	if len(m.Tags) > 0 {
		fmt.Fprintf(&b, " | tags: %s", strings.Join(m.Tags, ", "))
	}
	b.WriteString("\n\n")
	b.WriteString(m.Content)
	b.WriteString("\n")
	return b.String(), nil
}

// Forget deletes a memory, archiving it first unless archive is false.
func (d *Dispatcher) Forget(id string, archive bool) (string, error) {
	err := d.store.Delete(id, archive)
	if errors.Is(err, memory.ErrNotFound) {
		return notFoundText(id), nil
	}
	if err != nil {
		return "", err
	}
	if archive {
		return fmt.Sprintf("Forgot memory %s (archived)", id), nil
	}
	return fmt.Sprintf("Forgot memory %s", id), nil
}

// Status renders store totals by phase.
func (d *Dispatcher) Status() (string, error) {
	status, err := d.store.ReadStatus()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Memories: %d (full: %d, hint: %d, abstract: %d)\n",
		status.Total,
		status.ByPhase[memory.PhaseFull],
		status.ByPhase[memory.PhaseHint],
		status.ByPhase[memory.PhaseAbstract])
	fmt.Fprintf(&b, "Archives: %d\n", status.Archives)
	fmt.Fprintf(&b, "Sessions: %d\n", status.SessionCount)
	return b.String(), nil
}

// Check renders an integrity report.
func (d *Dispatcher) Check() (string, error) {
	report, err := d.store.CheckIntegrity()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if report.Healthy {
		b.WriteString("Store is healthy.\n")
	} else {
		b.WriteString("Store has integrity issues.\n")
	}
	fmt.Fprintf(&b, "indexed=%d files=%d stats=%d archives=%d\n",
		report.Summary.Indexed, report.Summary.Files, report.Summary.Stats, report.Summary.Archives)
	writeIssueList(&b, "orphaned files", report.OrphanedFiles)
	writeIssueList(&b, "missing files", report.MissingFiles)
	writeIssueList(&b, "orphaned stats", report.OrphanedStats)
	writeIssueList(&b, "orphaned archives", report.OrphanedArchives)
	return b.String(), nil
}

func writeIssueList(b *strings.Builder, label string, ids []string) {
	if len(ids) == 0 {
		return
	}
	fmt.Fprintf(b, "%s (%d): %s\n", label, len(ids), strings.Join(ids, ", "))
}

// Fix repairs catalog drift and renders what was done.
func (d *Dispatcher) Fix(archiveOrphans, cleanOrphanedArchives bool) (string, error) {
	result, err := d.store.FixIntegrity(archiveOrphans, cleanOrphanedArchives)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Fix complete: archived=%d removed_files=%d removed_index=%d removed_stats=%d removed_archives=%d\n",
		result.ArchivedFiles, result.RemovedFiles, result.RemovedIndexEntries,
		result.RemovedStatsEntries, result.RemovedOrphanedArchives)
	if len(result.Skipped) > 0 {
		fmt.Fprintf(&b, "skipped: %s\n", strings.Join(result.Skipped, "; "))
	}
	return b.String(), nil
}

// Evict runs one eviction batch and renders the outcome.
func (d *Dispatcher) Evict() (string, error) {
	result, err := d.engine.Run()
	if err != nil {
		return "", err
	}
	if result.Processed == 0 && len(result.Skipped) == 0 {
		return "Nothing to evict.", nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Evicted %d memories: %d reduced to hint, %d to abstract, %d purged (archived %d)\n",
		result.Processed,
		result.Transitions.FullToHint,
		result.Transitions.HintToAbstract,
		result.Transitions.AbstractToPurged,
		result.Archived)
	if len(result.Skipped) > 0 {
		fmt.Fprintf(&b, "skipped: %s\n", strings.Join(result.Skipped, "; "))
	}
	return b.String(), nil
}

// Restore resets a degraded memory to full content from its archive.
func (d *Dispatcher) Restore(id string) (string, error) {
	ok, err := d.engine.RestoreFromArchive(id)
	if err != nil {
		return "", err
	}
	if !ok {
		return fmt.Sprintf("Cannot restore %s: no usable archive or active record", id), nil
	}
	return fmt.Sprintf("Restored memory %s from archive", id), nil
}

// Archives lists every archived memory id.
func (d *Dispatcher) Archives() (string, error) {
	ids, err := d.engine.ListArchives()
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "No archives.", nil
	}
	return fmt.Sprintf("%d archives:\n- %s\n", len(ids), strings.Join(ids, "\n- ")), nil
}
