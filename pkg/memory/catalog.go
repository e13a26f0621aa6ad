package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// The three catalogs are cached in memory after first load and refreshed on
// every write made through this Store instance. The caches are not
// synchronized: a Store must not be used concurrently without external
// serialization, and external catalog mutation requires InvalidateCache.

// ReadIndex loads index.json, creating an empty catalog if missing.
func (s *Store) ReadIndex() (*Index, error) {
	if s.indexCache != nil {
		return s.indexCache, nil
	}
	ix := &Index{Version: 1, Memories: make(map[string]*IndexEntry)}
	if err := readJSONFile(s.indexPath, ix); err != nil {
		return nil, err
	}
	if ix.Memories == nil {
		ix.Memories = make(map[string]*IndexEntry)
	}
	s.indexCache = ix
	return ix, nil
}

// WriteIndex atomically persists index.json and refreshes the cache.
func (s *Store) WriteIndex(ix *Index) error {
	if err := writeJSONFile(s.indexPath, ix); err != nil {
		return err
	}
	s.indexCache = ix
	return nil
}

// ReadStats loads stats.json, creating an empty catalog if missing.
func (s *Store) ReadStats() (*Stats, error) {
	if s.statsCache != nil {
		return s.statsCache, nil
	}
	st := &Stats{Version: 1, Memories: make(map[string]*StatsEntry)}
	if err := readJSONFile(s.statsPath, st); err != nil {
		return nil, err
	}
	if st.Memories == nil {
		st.Memories = make(map[string]*StatsEntry)
	}
	s.statsCache = st
	return st, nil
}

// WriteStats atomically persists stats.json and refreshes the cache.
func (s *Store) WriteStats(st *Stats) error {
	if err := writeJSONFile(s.statsPath, st); err != nil {
		return err
	}
	s.statsCache = st
	return nil
}

// ReadState loads state.json, creating a default state if missing.
func (s *Store) ReadState() (*State, error) {
	if s.stateCache != nil {
		return s.stateCache, nil
	}
	st := s.defaultState()
	if err := readJSONFile(s.statePath, st); err != nil {
		return nil, err
	}
	s.stateCache = st
	return st, nil
}

// WriteState atomically persists state.json and refreshes the cache.
func (s *Store) WriteState(st *State) error {
	if err := writeJSONFile(s.statePath, st); err != nil {
		return err
	}
	s.stateCache = st
	return nil
}

func (s *Store) defaultState() *State {
	return &State{
		Version:      1,
		SessionCount: 1,
		Config:       s.defaultConfig,
	}
}

// InvalidateCache clears all cached catalogs. Call it when the catalog files
// may have been mutated outside this Store instance.
func (s *Store) InvalidateCache() {
	s.indexCache = nil
	s.statsCache = nil
	s.stateCache = nil
}

// readJSONFile unmarshals path into v, leaving v untouched when the file does
// not exist yet.
func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("memory: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("memory: parse %s: %w", path, err)
	}
	return nil
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("memory: encode %s: %w", path, err)
	}
	return atomicWriteFile(path, append(data, '\n'))
}
