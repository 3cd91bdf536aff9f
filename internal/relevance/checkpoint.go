package relevance

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrPersistence marks a failed checkpoint load or save. The engine only
// logs it; it never reaches callers.
var ErrPersistence = errors.New("relevance persistence failure")

const (
	patternsFile    = "usage_patterns.json"
	preferencesFile = "key_preferences.json"
)

// State is the engine's complete learned state.
type State struct {
	Patterns    map[string][]UsagePattern `json:"patterns"`
	Preferences map[string]KeyPreferences `json:"preferences"`
}

// Checkpointer persists engine state wholesale.
type Checkpointer interface {
	Load() (State, error)
	Save(State) error
}

// FileCheckpointer stores state as two JSON files in Dir, one keyed by
// credential id to usage events and one keyed by credential id to
// preferences. Each save rewrites both files through a temp file and
// rename.
type FileCheckpointer struct {
	Dir string
}

var _ Checkpointer = (*FileCheckpointer)(nil)

func NewFileCheckpointer(dir string) *FileCheckpointer {
	return &FileCheckpointer{Dir: dir}
}

// Load reads both files. A missing file yields an empty map.
func (f *FileCheckpointer) Load() (State, error) {
	st := State{
		Patterns:    make(map[string][]UsagePattern),
		Preferences: make(map[string]KeyPreferences),
	}
	if err := readJSON(filepath.Join(f.Dir, patternsFile), &st.Patterns); err != nil {
		return State{}, err
	}
	if err := readJSON(filepath.Join(f.Dir, preferencesFile), &st.Preferences); err != nil {
		return State{}, err
	}
	if st.Patterns == nil {
		st.Patterns = make(map[string][]UsagePattern)
	}
	if st.Preferences == nil {
		st.Preferences = make(map[string]KeyPreferences)
	}
	return st, nil
}

func (f *FileCheckpointer) Save(st State) error {
	if err := os.MkdirAll(f.Dir, 0o700); err != nil {
		return fmt.Errorf("creating checkpoint directory: %w", err)
	}
	if err := writeJSON(filepath.Join(f.Dir, patternsFile), st.Patterns); err != nil {
		return err
	}
	return writeJSON(filepath.Join(f.Dir, preferencesFile), st.Preferences)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}
