package memory

import (
	"fmt"
	"os"
	"sort"
)

// IntegritySummary counts the entries on each side of the reconciliation.
type IntegritySummary struct {
	Indexed  int `json:"indexed"`
	Files    int `json:"files"`
	Stats    int `json:"stats"`
	Archives int `json:"archives"`
}

// IntegrityReport is the result of reconciling the catalogs against the
// filesystem.
//
// Orphaned archives are deliberately excluded from the health verdict: they
// are the expected residue of normal eviction and deletion.
type IntegrityReport struct {
	// OrphanedFiles are content files with no index entry.
	OrphanedFiles []string `json:"orphaned_files"`
	// MissingFiles are index entries with no content file.
	MissingFiles []string `json:"missing_files"`
	// OrphanedStats are stats entries with no index entry.
	OrphanedStats []string `json:"orphaned_stats"`
	// OrphanedArchives are archive files whose id is neither indexed nor
	// present as a content file.
	OrphanedArchives []string `json:"orphaned_archives"`

	Healthy bool             `json:"is_healthy"`
	Summary IntegritySummary `json:"summary"`
}

// CheckIntegrity reconciles the index and stats catalogs against the content
// and archive files on disk.
func (s *Store) CheckIntegrity() (*IntegrityReport, error) {
	ix, err := s.ReadIndex()
	if err != nil {
		return nil, err
	}
	st, err := s.ReadStats()
	if err != nil {
		return nil, err
	}
	fileIDs, err := s.ListMemoryFiles()
	if err != nil {
		return nil, err
	}
	archiveIDs, err := s.ListArchives()
	if err != nil {
		return nil, err
	}

	indexed := make(map[string]bool, len(ix.Memories))
	for id := range ix.Memories {
		indexed[id] = true
	}
	files := make(map[string]bool, len(fileIDs))
	for _, id := range fileIDs {
		files[id] = true
	}

	report := &IntegrityReport{
		OrphanedFiles:    []string{},
		MissingFiles:     []string{},
		OrphanedStats:    []string{},
		OrphanedArchives: []string{},
		Summary: IntegritySummary{
			Indexed:  len(ix.Memories),
			Files:    len(fileIDs),
			Stats:    len(st.Memories),
			Archives: len(archiveIDs),
		},
	}

	for _, id := range fileIDs {
		if !indexed[id] {
			report.OrphanedFiles = append(report.OrphanedFiles, id)
		}
	}
	for id := range ix.Memories {
		if !files[id] {
			report.MissingFiles = append(report.MissingFiles, id)
		}
	}
	for id := range st.Memories {
		if !indexed[id] {
			report.OrphanedStats = append(report.OrphanedStats, id)
		}
	}
	for _, id := range archiveIDs {
		if !indexed[id] && !files[id] {
			report.OrphanedArchives = append(report.OrphanedArchives, id)
		}
	}

	sort.Strings(report.MissingFiles)
	sort.Strings(report.OrphanedStats)

	report.Healthy = len(report.OrphanedFiles) == 0 &&
		len(report.MissingFiles) == 0 &&
		len(report.OrphanedStats) == 0
	return report, nil
}

// FixResult counts the repair actions taken by FixIntegrity, and records the
// ids it had to skip with the reason, so a bad item stays visible without
// blocking the repair pass.
type FixResult struct {
	ArchivedFiles           int `json:"archived_files"`
	RemovedFiles            int `json:"removed_files"`
	RemovedIndexEntries     int `json:"removed_index_entries"`
	RemovedStatsEntries     int `json:"removed_stats_entries"`
	RemovedOrphanedArchives int `json:"removed_orphaned_archives"`

	Skipped []string `json:"skipped,omitempty"`
}

// FixIntegrity repairs the drift reported by CheckIntegrity. Orphaned content
// files are optionally archived first (an existing archive is never
// overwritten; archive failures are swallowed) and then removed; index
// entries whose content file is gone are dropped; orphaned stats entries are
// dropped; orphaned archives are removed only when cleanOrphanedArchives is
// set. Per-item failures never abort the pass.
//
// Not all drift is recoverable — a missing content file cannot be un-deleted.
// Callers should re-run CheckIntegrity afterward and accept residual
// unhealthiness in that case.
func (s *Store) FixIntegrity(archiveOrphans, cleanOrphanedArchives bool) (*FixResult, error) {
	report, err := s.CheckIntegrity()
	if err != nil {
		return nil, err
	}

	result := &FixResult{}

	for _, id := range report.OrphanedFiles {
		if archiveOrphans {
			archived, err := s.Archive(id)
			if err != nil {
				s.log.Warnf("fix: archiving orphaned file %s: %v", id, err)
			} else if archived {
				result.ArchivedFiles++
			}
		}
		if err := os.Remove(s.memoryPath(id)); err != nil {
			s.log.Warnf("fix: removing orphaned file %s: %v", id, err)
			result.Skipped = append(result.Skipped, fmt.Sprintf("%s: %v", id, err))
			continue
		}
		result.RemovedFiles++
	}

	ix, err := s.ReadIndex()
	if err != nil {
		return nil, err
	}
	indexModified := false
	for _, id := range report.MissingFiles {
		if _, ok := ix.Memories[id]; ok {
			delete(ix.Memories, id)
			result.RemovedIndexEntries++
			indexModified = true
		}
	}
	if indexModified {
		if err := s.WriteIndex(ix); err != nil {
			return nil, err
		}
	}

	st, err := s.ReadStats()
	if err != nil {
		return nil, err
	}
	statsModified := false
	for _, id := range report.OrphanedStats {
		if _, ok := st.Memories[id]; ok {
			delete(st.Memories, id)
			result.RemovedStatsEntries++
			statsModified = true
		}
	}
	if statsModified {
		if err := s.WriteStats(st); err != nil {
			return nil, err
		}
	}

	if cleanOrphanedArchives {
		for _, id := range report.OrphanedArchives {
			if err := s.RemoveArchive(id); err != nil {
				s.log.Warnf("fix: removing orphaned archive %s: %v", id, err)
				result.Skipped = append(result.Skipped, fmt.Sprintf("%s: %v", id, err))
				continue
			}
			result.RemovedOrphanedArchives++
		}
	}

	return result, nil
}
