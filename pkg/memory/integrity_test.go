package memory

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckIntegrityHealthy(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Create("T", "C", nil, 0.5)
	require.NoError(t, err)

	report, err := s.CheckIntegrity()
	require.NoError(t, err)
	assert.True(t, report.Healthy)
	assert.Empty(t, report.OrphanedFiles)
	assert.Empty(t, report.MissingFiles)
	assert.Empty(t, report.OrphanedStats)
	assert.Equal(t, 1, report.Summary.Indexed)
	assert.Equal(t, 1, report.Summary.Files)
}

func TestOrphanedFileRepairCycle(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Create("T", "orphan me", nil, 0.5)
	require.NoError(t, err)

	// Drop the index entry so the content file is stranded.
	ix, err := s.ReadIndex()
	require.NoError(t, err)
	delete(ix.Memories, id)
	require.NoError(t, s.WriteIndex(ix))

	report, err := s.CheckIntegrity()
	require.NoError(t, err)
	assert.False(t, report.Healthy)
	assert.Equal(t, []string{id}, report.OrphanedFiles)
	assert.Equal(t, []string{id}, report.OrphanedStats)

	result, err := s.FixIntegrity(true, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ArchivedFiles)
	assert.Equal(t, 1, result.RemovedFiles)
	assert.Equal(t, 1, result.RemovedStatsEntries)
	assert.Empty(t, result.Skipped)

	report, err = s.CheckIntegrity()
	require.NoError(t, err)
	assert.True(t, report.Healthy)

	// The orphan was preserved in the archives before removal.
	archived, err := s.ReadArchive(id)
	require.NoError(t, err)
	assert.Equal(t, "orphan me", archived.Content)
}

func TestFixWithoutArchivingDiscardsOrphans(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Create("T", "C", nil, 0.5)
	require.NoError(t, err)

	ix, err := s.ReadIndex()
	require.NoError(t, err)
	delete(ix.Memories, id)
	require.NoError(t, s.WriteIndex(ix))

	result, err := s.FixIntegrity(false, false)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ArchivedFiles)
	assert.Equal(t, 1, result.RemovedFiles)

	_, err = s.ReadArchive(id)
	require.Error(t, err)
}

func TestMissingFileRepair(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Create("T", "C", nil, 0.5)
	require.NoError(t, err)

	require.NoError(t, os.Remove(s.memoryPath(id)))

	report, err := s.CheckIntegrity()
	require.NoError(t, err)
	assert.False(t, report.Healthy)
	assert.Equal(t, []string{id}, report.MissingFiles)

	result, err := s.FixIntegrity(true, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RemovedIndexEntries)

	// Dropping the index entry strands the stats entry; a second pass
	// clears the residue.
	report, err = s.CheckIntegrity()
	require.NoError(t, err)
	if !report.Healthy {
		result, err = s.FixIntegrity(true, false)
		require.NoError(t, err)
		assert.Equal(t, 1, result.RemovedStatsEntries)
	}

	report, err = s.CheckIntegrity()
	require.NoError(t, err)
	assert.True(t, report.Healthy)
}

func TestOrphanedArchivesDoNotAffectHealth(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Create("T", "C", nil, 0.5)
	require.NoError(t, err)
	require.NoError(t, s.Delete(id, true))

	report, err := s.CheckIntegrity()
	require.NoError(t, err)
	assert.True(t, report.Healthy)
	assert.Equal(t, []string{id}, report.OrphanedArchives)

	// Cleanup is opt-in.
	result, err := s.FixIntegrity(false, false)
	require.NoError(t, err)
	assert.Equal(t, 0, result.RemovedOrphanedArchives)

	result, err = s.FixIntegrity(false, true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RemovedOrphanedArchives)

	archives, err := s.ListArchives()
	require.NoError(t, err)
	assert.Empty(t, archives)
}

func TestFixIsIdempotentWhenHealthy(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Create("T", "C", nil, 0.5)
	require.NoError(t, err)

	result, err := s.FixIntegrity(true, true)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ArchivedFiles)
	assert.Equal(t, 0, result.RemovedFiles)
	assert.Equal(t, 0, result.RemovedIndexEntries)
	assert.Equal(t, 0, result.RemovedStatsEntries)
	assert.Equal(t, 0, result.RemovedOrphanedArchives)
}
