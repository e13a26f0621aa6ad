package memory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/entrhq/retain/pkg/logging"
	"github.com/entrhq/retain/pkg/priority"
)

// Default listing limits.
const (
	DefaultListLimit   = 50
	DefaultSearchLimit = 10
	snippetMaxChars    = 200
)

// Store owns a data directory: one markdown file per memory under memories/,
// frozen snapshots under archives/, and the index/stats/state catalogs.
//
// A data directory has a single logical owner at a time. The Store performs
// no internal locking; concurrent use of one instance requires external
// serialization, and multi-process access requires an external lock.
type Store struct {
	basePath     string
	memoriesPath string
	archivesPath string
	indexPath    string
	statsPath    string
	statePath    string

	calc          *priority.Calculator
	log           *logging.Logger
	defaultConfig StateConfig

	indexCache *Index
	statsCache *Stats
	stateCache *State
}

// Option configures a Store.
type Option func(*Store)

// WithLogger wires a component logger into the store.
func WithLogger(log *logging.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithDefaultConfig overrides the tunables seeded into a fresh state.json.
func WithDefaultConfig(cfg StateConfig) Option {
	return func(s *Store) { s.defaultConfig = cfg }
}

// DefaultStateConfig returns the tunables used when a data directory is
// initialized without explicit configuration.
func DefaultStateConfig() StateConfig {
	return StateConfig{
		MaxMemories:       100,
		MemoriesToLoad:    10,
		EvictionBatchSize: 10,
		TokenCounting:     TokenCountingConfig{Enabled: true, NormalizeCap: priority.DefaultTokenCap},
	}
}

// NewStore opens (creating if necessary) the data directory at basePath.
func NewStore(basePath string, opts ...Option) (*Store, error) {
	s := &Store{
		basePath:      basePath,
		memoriesPath:  filepath.Join(basePath, "memories"),
		archivesPath:  filepath.Join(basePath, "archives"),
		indexPath:     filepath.Join(basePath, "index.json"),
		statsPath:     filepath.Join(basePath, "stats.json"),
		statePath:     filepath.Join(basePath, "state.json"),
		calc:          priority.NewCalculator(),
		log:           logging.NewNop(),
		defaultConfig: DefaultStateConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, dir := range []string{s.memoriesPath, s.archivesPath} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("memory: init directory %s: %w", dir, err)
		}
	}
	return s, nil
}

// BasePath returns the data directory this store owns.
func (s *Store) BasePath() string { return s.basePath }

func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("memory: invalid id (empty)")
	}
	if strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("memory: invalid id %q (contains path separator)", id)
	}
	return nil
}

func (s *Store) memoryPath(id string) string {
	return filepath.Join(s.memoriesPath, id+".md")
}

func (s *Store) archivePath(id string) string {
	return filepath.Join(s.archivesPath, id+".md")
}

// Create stores a new memory at phase Full and returns its generated id.
// Difficulty is clamped to [0, 1]. The content file is written first, then
// the index entry, then the stats entry; a crash between those writes leaves
// detectable drift repairable by FixIntegrity, never a corrupt file.
func (s *Store) Create(topic, content string, tags []string, difficulty float64) (string, error) {
	id := NewID()
	now := time.Now().UTC()

	state, err := s.ReadState()
	if err != nil {
		return "", err
	}
	currentSession := state.SessionCount

	if difficulty < 0 {
		difficulty = 0
	} else if difficulty > 1 {
		difficulty = 1
	}
	if tags == nil {
		tags = []string{}
	}

	m := &Memory{
		ID:             id,
		Topic:          topic,
		Tags:           tags,
		Phase:          PhaseFull,
		Difficulty:     difficulty,
		CreatedAt:      now,
		CreatedSession: currentSession,
		Content:        content,
	}
	if err := atomicWriteFile(s.memoryPath(id), Serialize(m)); err != nil {
		return "", err
	}

	ix, err := s.ReadIndex()
	if err != nil {
		return "", err
	}
	ix.Memories[id] = &IndexEntry{
		Topic:      topic,
		Tags:       tags,
		Phase:      PhaseFull,
		Difficulty: difficulty,
		CreatedAt:  now,
	}
	if err := s.WriteIndex(ix); err != nil {
		return "", err
	}

	st, err := s.ReadStats()
	if err != nil {
		return "", err
	}
	st.Memories[id] = &StatsEntry{
		AccessCount: 0,
		AccessedAt:  now,
		LastSession: currentSession,
		Priority: s.calc.Calculate(difficulty, &priority.Stats{
			AccessCount: 0,
			LastSession: currentSession,
		}, currentSession),
	}
	if err := s.WriteStats(st); err != nil {
		return "", err
	}

	s.log.Debugf("created memory %s (topic %q)", id, topic)
	return id, nil
}

// Read loads a memory by id, failing with ErrNotFound when its content file
// is absent. When updateStats is true the access count, access time, last
// session, and cached priority are refreshed and persisted.
func (s *Store) Read(id string, updateStats bool) (*Memory, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.memoryPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: read %s: %w", id, err)
	}
	m, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if m.ID == "" {
		m.ID = id
	}

	if updateStats {
		if err := s.touch(id, m.Difficulty); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// touch records an access to id and recomputes its cached priority.
func (s *Store) touch(id string, difficulty float64) error {
	st, err := s.ReadStats()
	if err != nil {
		return err
	}
	state, err := s.ReadState()
	if err != nil {
		return err
	}
	currentSession := state.SessionCount

	entry := st.Memories[id]
	if entry == nil {
		entry = &StatsEntry{}
		st.Memories[id] = entry
	}
	entry.AccessCount++
	entry.AccessedAt = time.Now().UTC()
	entry.LastSession = currentSession
	entry.Priority = s.calc.Calculate(difficulty, &priority.Stats{
		AccessCount: entry.AccessCount,
		LastSession: entry.LastSession,
	}, currentSession)

	return s.WriteStats(st)
}

// Update merges the whitelisted fields into a memory, rewrites its content
// file, and syncs the changed scalar fields (and tags) into the index entry.
// Access statistics are not touched. Fails with ErrNotFound for unknown ids.
func (s *Store) Update(id string, fields Fields) error {
	m, err := s.Read(id, false)
	if err != nil {
		return err
	}

	if fields.Content != nil {
		m.Content = *fields.Content
	}
	if fields.Tags != nil {
		m.Tags = fields.Tags
	}
	if fields.Phase != nil {
		m.Phase = *fields.Phase
	}
	if fields.Difficulty != nil {
		m.Difficulty = *fields.Difficulty
	}
	if fields.Topic != nil {
		m.Topic = *fields.Topic
	}

	if err := atomicWriteFile(s.memoryPath(id), Serialize(m)); err != nil {
		return err
	}

	ix, err := s.ReadIndex()
	if err != nil {
		return err
	}
	if entry, ok := ix.Memories[id]; ok {
		if fields.Topic != nil {
			entry.Topic = *fields.Topic
		}
		if fields.Phase != nil {
			entry.Phase = *fields.Phase
		}
		if fields.Difficulty != nil {
			entry.Difficulty = *fields.Difficulty
		}
		if fields.Tags != nil {
			entry.Tags = fields.Tags
		}
		if err := s.WriteIndex(ix); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a memory's content file and both catalog entries. When
// archive is true and no archive exists yet for the id, the current file is
// first copied verbatim into the archive store; an existing archive is never
// overwritten. Fails with ErrNotFound for unknown ids.
func (s *Store) Delete(id string, archive bool) error {
	if err := validateID(id); err != nil {
		return err
	}
	path := s.memoryPath(id)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	} else if err != nil {
		return fmt.Errorf("memory: stat %s: %w", id, err)
	}

	if archive {
		if _, err := s.Archive(id); err != nil {
			return err
		}
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("memory: remove %s: %w", id, err)
	}

	ix, err := s.ReadIndex()
	if err != nil {
		return err
	}
	if _, ok := ix.Memories[id]; ok {
		delete(ix.Memories, id)
		if err := s.WriteIndex(ix); err != nil {
			return err
		}
	}

	st, err := s.ReadStats()
	if err != nil {
		return err
	}
	if _, ok := st.Memories[id]; ok {
		delete(st.Memories, id)
		if err := s.WriteStats(st); err != nil {
			return err
		}
	}

	s.log.Debugf("deleted memory %s (archived=%t)", id, archive)
	return nil
}

// Archive copies a memory's content file verbatim into the archive store.
// Archives are write-once: if one already exists for the id the call is a
// no-op reporting false. Fails with ErrNotFound when the content file is
// absent.
func (s *Store) Archive(id string) (bool, error) {
	if err := validateID(id); err != nil {
		return false, err
	}
	dst := s.archivePath(id)
	if _, err := os.Stat(dst); err == nil {
		return false, nil
	}
	raw, err := os.ReadFile(s.memoryPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return false, fmt.Errorf("memory: read %s: %w", id, err)
	}
	if err := atomicWriteFile(dst, raw); err != nil {
		return false, err
	}
	s.log.Debugf("archived memory %s", id)
	return true, nil
}

// ReadArchive loads the frozen snapshot for an id, failing with ErrNotFound
// when no archive exists.
func (s *Store) ReadArchive(id string) (*Memory, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.archivePath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: read archive %s: %w", id, err)
	}
	m, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if m.ID == "" {
		m.ID = id
	}
	return m, nil
}

// RemoveArchive deletes an archive file. Only integrity cleanup uses this;
// nothing else ever deletes archives.
func (s *Store) RemoveArchive(id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := os.Remove(s.archivePath(id)); err != nil {
		return fmt.Errorf("memory: remove archive %s: %w", id, err)
	}
	return nil
}

// ListArchives returns the sorted ids of every memory with an archive file.
func (s *Store) ListArchives() ([]string, error) {
	return listMarkdownIDs(s.archivesPath)
}

// ListMemoryFiles returns the sorted ids of every content file on disk,
// regardless of whether the index knows about them.
func (s *Store) ListMemoryFiles() ([]string, error) {
	return listMarkdownIDs(s.memoriesPath)
}

func listMarkdownIDs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("memory: list %s: %w", dir, err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".md"))
	}
	sort.Strings(ids)
	return ids, nil
}

// ListOptions filters and paginates List.
type ListOptions struct {
	// Phase filters on an exact eviction phase when non-nil.
	Phase *int
	// Tag filters on exact tag membership when non-empty.
	Tag string
	// Keyword filters on a case-insensitive topic substring when non-empty.
	Keyword string
	// Limit caps the result count; <= 0 means DefaultListLimit.
	Limit int
	// Offset skips results after sorting.
	Offset int
}

// List scans the index and returns summaries sorted by priority descending.
// Priority is read from the stats catalog when present, otherwise computed on
// the fly without being persisted. Ties break on id ascending so pagination
// is reproducible.
func (s *Store) List(opts ListOptions) ([]*Summary, error) {
	ix, err := s.ReadIndex()
	if err != nil {
		return nil, err
	}
	st, err := s.ReadStats()
	if err != nil {
		return nil, err
	}
	state, err := s.ReadState()
	if err != nil {
		return nil, err
	}
	currentSession := state.SessionCount

	if opts.Limit <= 0 {
		opts.Limit = DefaultListLimit
	}

	var results []*Summary
	for id, meta := range ix.Memories {
		if opts.Phase != nil && meta.Phase != *opts.Phase {
			continue
		}
		if opts.Tag != "" && !containsTag(meta.Tags, opts.Tag) {
			continue
		}
		if opts.Keyword != "" && !strings.Contains(strings.ToLower(meta.Topic), strings.ToLower(opts.Keyword)) {
			continue
		}
		results = append(results, s.summarize(id, meta, st.Memories[id], currentSession))
	}

	sortByPriority(results)

	if opts.Offset >= len(results) {
		return []*Summary{}, nil
	}
	results = results[opts.Offset:]
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

func (s *Store) summarize(id string, meta *IndexEntry, stats *StatsEntry, currentSession int) *Summary {
	sum := &Summary{
		ID:         id,
		Topic:      meta.Topic,
		Tags:       meta.Tags,
		Phase:      meta.Phase,
		Difficulty: meta.Difficulty,
		CreatedAt:  meta.CreatedAt,
	}
	if stats != nil {
		sum.Priority = stats.Priority
		sum.AccessCount = stats.AccessCount
		sum.AccessedAt = stats.AccessedAt
	} else {
		sum.Priority = s.calc.Calculate(meta.Difficulty, nil, currentSession)
	}
	return sum
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func sortByPriority(results []*Summary) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Priority != results[j].Priority {
			return results[i].Priority > results[j].Priority
		}
		return results[i].ID < results[j].ID
	})
}

// Search matches query (case-insensitive) against topic substrings, tag
// substrings, and — only when neither matched — the full content body. Each
// hit carries a content preview of at most 200 characters. Results sort by
// priority descending (id ascending on ties), truncated to limit.
func (s *Store) Search(query string, limit int) ([]*SearchResult, error) {
	ix, err := s.ReadIndex()
	if err != nil {
		return nil, err
	}
	st, err := s.ReadStats()
	if err != nil {
		return nil, err
	}
	state, err := s.ReadState()
	if err != nil {
		return nil, err
	}
	currentSession := state.SessionCount

	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	queryLower := strings.ToLower(query)

	var results []*SearchResult
	for id, meta := range ix.Memories {
		topicMatch := strings.Contains(strings.ToLower(meta.Topic), queryLower)
		tagMatch := false
		for _, tag := range meta.Tags {
			if strings.Contains(strings.ToLower(tag), queryLower) {
				tagMatch = true
				break
			}
		}

		// The content file is only opened when the cheap filters missed,
		// or to build the preview for a hit.
		var content string
		var haveContent bool
		loadContent := func() {
			if haveContent {
				return
			}
			haveContent = true
			m, err := s.Read(id, false)
			if err != nil {
				s.log.Debugf("search: skipping unreadable memory %s: %v", id, err)
				return
			}
			content = m.Content
		}

		contentMatch := false
		if !topicMatch && !tagMatch {
			loadContent()
			contentMatch = strings.Contains(strings.ToLower(content), queryLower)
		}
		if !topicMatch && !tagMatch && !contentMatch {
			continue
		}

		loadContent()
		priorityScore := 0.0
		if entry := st.Memories[id]; entry != nil {
			priorityScore = entry.Priority
		} else {
			priorityScore = s.calc.Calculate(meta.Difficulty, nil, currentSession)
		}

		results = append(results, &SearchResult{
			ID:       id,
			Topic:    meta.Topic,
			Snippet:  snippet(content),
			Tags:     meta.Tags,
			Phase:    meta.Phase,
			Priority: priorityScore,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Priority != results[j].Priority {
			return results[i].Priority > results[j].Priority
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func snippet(content string) string {
	r := []rune(content)
	if len(r) <= snippetMaxChars {
		return content
	}
	return string(r[:snippetMaxChars]) + "..."
}

// Status summarizes the store for status reporting.
type Status struct {
	Total        int
	ByPhase      map[int]int
	Archives     int
	SessionCount int
}

// ReadStatus computes a status summary from the catalogs and archive dir.
func (s *Store) ReadStatus() (*Status, error) {
	ix, err := s.ReadIndex()
	if err != nil {
		return nil, err
	}
	state, err := s.ReadState()
	if err != nil {
		return nil, err
	}
	archives, err := s.ListArchives()
	if err != nil {
		return nil, err
	}

	status := &Status{
		Total:        len(ix.Memories),
		ByPhase:      map[int]int{PhaseFull: 0, PhaseHint: 0, PhaseAbstract: 0},
		Archives:     len(archives),
		SessionCount: state.SessionCount,
	}
	for _, meta := range ix.Memories {
		status.ByPhase[meta.Phase]++
	}
	return status, nil
}
