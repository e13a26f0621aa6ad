package memory

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestCreateAndRead(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Create("T", "C", nil, 0.5)
	require.NoError(t, err)
	assert.Regexp(t, `^mem_[0-9a-f]{8}$`, id)

	m, err := s.Read(id, true)
	require.NoError(t, err)
	assert.Equal(t, "T", m.Topic)
	assert.Contains(t, m.Content, "C")
	assert.Equal(t, PhaseFull, m.Phase)

	results, err := s.List(ListOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].ID)
	assert.Equal(t, PhaseFull, results[0].Phase)
}

func TestCreateClampsDifficulty(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Create("hard", "c", nil, 7.5)
	require.NoError(t, err)

	m, err := s.Read(id, false)
	require.NoError(t, err)
	assert.Equal(t, 1.0, m.Difficulty)

	id2, err := s.Create("easy", "c", nil, -3)
	require.NoError(t, err)
	m2, err := s.Read(id2, false)
	require.NoError(t, err)
	assert.Equal(t, 0.0, m2.Difficulty)
}

func TestReadNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Read("mem_00000000", false)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReadUpdatesStats(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Create("T", "C", nil, 0.5)
	require.NoError(t, err)

	_, err = s.Read(id, true)
	require.NoError(t, err)
	_, err = s.Read(id, true)
	require.NoError(t, err)
	_, err = s.Read(id, false) // must not count
	require.NoError(t, err)

	st, err := s.ReadStats()
	require.NoError(t, err)
	entry := st.Memories[id]
	require.NotNil(t, entry)
	assert.Equal(t, 2, entry.AccessCount)
	assert.Equal(t, 1, entry.LastSession)
	assert.Greater(t, entry.Priority, 0.0)
}

func TestUpdateWhitelistedFields(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Create("old topic", "old content", []string{"a"}, 0.5)
	require.NoError(t, err)

	content := "new content"
	topic := "new topic"
	phase := PhaseHint
	difficulty := 0.9
	err = s.Update(id, Fields{
		Content:    &content,
		Topic:      &topic,
		Phase:      &phase,
		Difficulty: &difficulty,
		Tags:       []string{"b", "c"},
	})
	require.NoError(t, err)

	m, err := s.Read(id, false)
	require.NoError(t, err)
	assert.Equal(t, "new content", m.Content)
	assert.Equal(t, "new topic", m.Topic)
	assert.Equal(t, PhaseHint, m.Phase)
	assert.Equal(t, 0.9, m.Difficulty)
	assert.Equal(t, []string{"b", "c"}, m.Tags)

	// Index entry mirrors the change.
	ix, err := s.ReadIndex()
	require.NoError(t, err)
	entry := ix.Memories[id]
	require.NotNil(t, entry)
	assert.Equal(t, "new topic", entry.Topic)
	assert.Equal(t, PhaseHint, entry.Phase)
	assert.Equal(t, []string{"b", "c"}, entry.Tags)
}

func TestUpdatePartial(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Create("topic", "content", []string{"a"}, 0.5)
	require.NoError(t, err)

	content := "only content changed"
	require.NoError(t, s.Update(id, Fields{Content: &content}))

	m, err := s.Read(id, false)
	require.NoError(t, err)
	assert.Equal(t, "only content changed", m.Content)
	assert.Equal(t, "topic", m.Topic)
	assert.Equal(t, []string{"a"}, m.Tags)
}

func TestUpdateNotFound(t *testing.T) {
	s := newTestStore(t)
	content := "x"
	err := s.Update("mem_00000000", Fields{Content: &content})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteArchivesOnce(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Create("T", "original content", nil, 0.5)
	require.NoError(t, err)

	require.NoError(t, s.Delete(id, true))

	// Gone from catalogs and disk, archive survives.
	_, err = s.Read(id, false)
	require.ErrorIs(t, err, ErrNotFound)
	ix, err := s.ReadIndex()
	require.NoError(t, err)
	assert.NotContains(t, ix.Memories, id)
	st, err := s.ReadStats()
	require.NoError(t, err)
	assert.NotContains(t, st.Memories, id)

	archived, err := s.ReadArchive(id)
	require.NoError(t, err)
	assert.Equal(t, "original content", archived.Content)
}

func TestArchiveIsWriteOnce(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Create("T", "first version", nil, 0.5)
	require.NoError(t, err)

	archived, err := s.Archive(id)
	require.NoError(t, err)
	assert.True(t, archived)

	content := "second version"
	require.NoError(t, s.Update(id, Fields{Content: &content}))

	archived, err = s.Archive(id)
	require.NoError(t, err)
	assert.False(t, archived)

	snapshot, err := s.ReadArchive(id)
	require.NoError(t, err)
	assert.Equal(t, "first version", snapshot.Content)
}

func TestDeleteNotFound(t *testing.T) {
	s := newTestStore(t)
	require.ErrorIs(t, s.Delete("mem_00000000", true), ErrNotFound)
}

func TestListFilters(t *testing.T) {
	s := newTestStore(t)

	idGo, err := s.Create("goroutine leaks", "c", []string{"go", "concurrency"}, 0.5)
	require.NoError(t, err)
	idSQL, err := s.Create("sql indexing", "c", []string{"db"}, 0.5)
	require.NoError(t, err)

	phase := PhaseHint
	require.NoError(t, s.Update(idSQL, Fields{Phase: &phase}))

	t.Run("phase filter", func(t *testing.T) {
		zero := PhaseFull
		results, err := s.List(ListOptions{Phase: &zero})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, idGo, results[0].ID)
	})

	t.Run("tag filter is exact membership", func(t *testing.T) {
		results, err := s.List(ListOptions{Tag: "db"})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, idSQL, results[0].ID)

		results, err = s.List(ListOptions{Tag: "d"})
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("keyword filter is case-insensitive topic substring", func(t *testing.T) {
		results, err := s.List(ListOptions{Keyword: "GOROUTINE"})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, idGo, results[0].ID)
	})
}

func TestListOrderingIsDeterministic(t *testing.T) {
	s := newTestStore(t)

	// Same difficulty, same session, no accesses: identical priorities.
	var ids []string
	for i := 0; i < 5; i++ {
		id, err := s.Create("same", "c", nil, 0.5)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	first, err := s.List(ListOptions{})
	require.NoError(t, err)
	require.Len(t, first, 5)

	// Ties broke on id ascending.
	for i := 1; i < len(first); i++ {
		assert.Less(t, first[i-1].ID, first[i].ID)
	}

	// Pagination walks the same order.
	page1, err := s.List(ListOptions{Limit: 2, Offset: 0})
	require.NoError(t, err)
	page2, err := s.List(ListOptions{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, first[0].ID, page1[0].ID)
	assert.Equal(t, first[2].ID, page2[0].ID)

	_ = ids
}

func TestListRanksByPriority(t *testing.T) {
	s := newTestStore(t)

	low, err := s.Create("low", "c", nil, 0.1)
	require.NoError(t, err)
	high, err := s.Create("high", "c", nil, 0.9)
	require.NoError(t, err)

	results, err := s.List(ListOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, high, results[0].ID)
	assert.Equal(t, low, results[1].ID)
}

func TestSearch(t *testing.T) {
	s := newTestStore(t)

	idTopic, err := s.Create("Postgres tuning", "nothing relevant", nil, 0.5)
	require.NoError(t, err)
	idTag, err := s.Create("misc", "nothing relevant", []string{"postgresql"}, 0.5)
	require.NoError(t, err)
	idContent, err := s.Create("misc two", "the postgres planner is lazy", nil, 0.5)
	require.NoError(t, err)
	_, err = s.Create("unrelated", "nope", nil, 0.5)
	require.NoError(t, err)

	results, err := s.Search("postgres", 10)
	require.NoError(t, err)
	require.Len(t, results, 3)

	found := map[string]bool{}
	for _, r := range results {
		found[r.ID] = true
	}
	assert.True(t, found[idTopic])
	assert.True(t, found[idTag], "tag match is substring, not exact")
	assert.True(t, found[idContent])
}

func TestSearchSnippetTruncation(t *testing.T) {
	s := newTestStore(t)

	long := strings.Repeat("x", 300)
	_, err := s.Create("long one", long, nil, 0.5)
	require.NoError(t, err)

	results, err := s.Search("long", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Len(t, []rune(results[0].Snippet), snippetMaxChars+3)
	assert.True(t, strings.HasSuffix(results[0].Snippet, "..."))
}

func TestSearchLimit(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		_, err := s.Create("common topic", "c", nil, 0.5)
		require.NoError(t, err)
	}

	results, err := s.Search("common", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestInvalidateCache(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Create("T", "C", nil, 0.5)
	require.NoError(t, err)

	// Mutate index.json behind the store's back.
	empty := []byte(`{"version":1,"memories":{}}` + "\n")
	require.NoError(t, os.WriteFile(filepath.Join(s.BasePath(), "index.json"), empty, 0o600))

	results, err := s.List(ListOptions{})
	require.NoError(t, err)
	assert.Len(t, results, 1, "cached catalog still served")

	s.InvalidateCache()
	results, err = s.List(ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, results, "cache refreshed from disk")

	_ = id
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Create("T", "C", nil, 0.5)
	require.NoError(t, err)

	entries, err := os.ReadDir(s.BasePath())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestInvalidIDRejected(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Read("../escape", false)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	_, err = s.Read("", false)
	require.Error(t, err)
}
