package tools

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/retain/pkg/eviction"
	"github.com/entrhq/retain/pkg/memory"
)

func newTestDispatcher(t *testing.T, maxMemories int) (*Dispatcher, *memory.Store) {
	t.Helper()
	s, err := memory.NewStore(t.TempDir())
	require.NoError(t, err)
	e := eviction.NewEngine(s, eviction.Config{MaxMemories: maxMemories, BatchSize: 10})
	return NewDispatcher(s, e), s
}

func TestStoreAutoTags(t *testing.T) {
	d, s := newTestDispatcher(t, 100)

	out, err := d.Store("Docker networking fix", "restart the daemon after editing config.yaml", nil, 0.5)
	require.NoError(t, err)
	assert.Contains(t, out, "Stored memory mem_")
	assert.Contains(t, out, "docker")

	results, err := s.List(memory.ListOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Tags, "docker")
	assert.Contains(t, results[0].Tags, "yaml")
}

func TestStoreKeepsExplicitTags(t *testing.T) {
	d, s := newTestDispatcher(t, 100)

	_, err := d.Store("docker thing", "docker docker docker", []string{"custom"}, 0.5)
	require.NoError(t, err)

	results, err := s.List(memory.ListOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"custom"}, results[0].Tags)
}

func TestRecall(t *testing.T) {
	d, _ := newTestDispatcher(t, 100)

	_, err := d.Store("goroutine leak", "close the done channel", nil, 0.5)
	require.NoError(t, err)

	out, err := d.Recall("goroutine", 10)
	require.NoError(t, err)
	assert.Contains(t, out, "Found 1 memories")
	assert.Contains(t, out, "goroutine leak")

	out, err = d.Recall("nonexistent-term", 10)
	require.NoError(t, err)
	assert.Contains(t, out, "No memories found")
}

func TestGetRendersAndCountsAccess(t *testing.T) {
	d, s := newTestDispatcher(t, 100)

	id, err := s.Create("topic", "the body", []string{"a"}, 0.5)
	require.NoError(t, err)

	out, err := d.Get(id)
	require.NoError(t, err)
	assert.Contains(t, out, "# topic")
	assert.Contains(t, out, "the body")
	assert.Contains(t, out, "tags: a")

	st, err := s.ReadStats()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Memories[id].AccessCount)
}

func TestNotFoundRendersAsText(t *testing.T) {
	d, _ := newTestDispatcher(t, 100)

	out, err := d.Get("mem_00000000")
	require.NoError(t, err)
	assert.Equal(t, "Memory not found: mem_00000000", out)

	out, err = d.Forget("mem_00000000", true)
	require.NoError(t, err)
	assert.Equal(t, "Memory not found: mem_00000000", out)
}

func TestForget(t *testing.T) {
	d, s := newTestDispatcher(t, 100)

	id, err := s.Create("t", "c", nil, 0.5)
	require.NoError(t, err)

	out, err := d.Forget(id, true)
	require.NoError(t, err)
	assert.Contains(t, out, "archived")

	_, err = s.Read(id, false)
	require.ErrorIs(t, err, memory.ErrNotFound)
}

func TestStatusAndList(t *testing.T) {
	d, s := newTestDispatcher(t, 100)

	_, err := s.Create("t", "c", []string{"x"}, 0.5)
	require.NoError(t, err)

	out, err := d.Status()
	require.NoError(t, err)
	assert.Contains(t, out, "Memories: 1 (full: 1, hint: 0, abstract: 0)")

	out, err = d.List(memory.ListOptions{})
	require.NoError(t, err)
	assert.Contains(t, out, "1 memories:")
	assert.Contains(t, out, "[x]")

	out, err = d.List(memory.ListOptions{Tag: "missing"})
	require.NoError(t, err)
	assert.Equal(t, "No memories stored.", out)
}

func TestEvictRestoreArchivesFlow(t *testing.T) {
	d, s := newTestDispatcher(t, 0)

	id, err := s.Create("t", "the original", nil, 0.5)
	require.NoError(t, err)

	out, err := d.Evict()
	require.NoError(t, err)
	assert.Contains(t, out, "1 reduced to hint")

	out, err = d.Archives()
	require.NoError(t, err)
	assert.Contains(t, out, id)

	out, err = d.Restore(id)
	require.NoError(t, err)
	assert.Contains(t, out, "Restored memory")

	m, err := s.Read(id, false)
	require.NoError(t, err)
	assert.Equal(t, memory.PhaseFull, m.Phase)
	assert.Equal(t, "the original", m.Content)
}

func TestEvictNothingToDo(t *testing.T) {
	d, _ := newTestDispatcher(t, 100)

	out, err := d.Evict()
	require.NoError(t, err)
	assert.Equal(t, "Nothing to evict.", out)
}

func TestCheckAndFix(t *testing.T) {
	d, s := newTestDispatcher(t, 100)

	id, err := s.Create("t", "c", nil, 0.5)
	require.NoError(t, err)

	out, err := d.Check()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Store is healthy."))

	ix, err := s.ReadIndex()
	require.NoError(t, err)
	delete(ix.Memories, id)
	require.NoError(t, s.WriteIndex(ix))

	out, err = d.Check()
	require.NoError(t, err)
	assert.Contains(t, out, "integrity issues")
	assert.Contains(t, out, "orphaned files (1)")

	out, err = d.Fix(true, false)
	require.NoError(t, err)
	assert.Contains(t, out, "archived=1")

	out, err = d.Check()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Store is healthy."))
}
