package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StateFileName holds the system state written at every open.
const StateFileName = "system_state.json"

// SystemState is persisted alongside the database.
type SystemState struct {
	SystemVersion string    `json:"system_version"`
	Initialized   time.Time `json:"initialized"`
	LastStart     time.Time `json:"last_start"`
	DocumentCount int       `json:"document_count"`
}

// ReadState loads the state file from dir. A missing file returns (nil, nil).
func ReadState(dir string) (*SystemState, error) {
	data, err := os.ReadFile(filepath.Join(dir, StateFileName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var st SystemState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse %s: %w", StateFileName, err)
	}
	return &st, nil
}

// refreshState rewrites the state file, keeping the original Initialized time.
func refreshState(dir, version string, count int, now time.Time) (*SystemState, error) {
	prev, err := ReadState(dir)
	if err != nil {
		// A damaged state file is replaced, not fatal.
		prev = nil
	}

	st := &SystemState{
		SystemVersion: version,
		Initialized:   now.UTC(),
		LastStart:     now.UTC(),
		DocumentCount: count,
	}
	if prev != nil && !prev.Initialized.IsZero() {
		st.Initialized = prev.Initialized
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, StateFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return nil, err
	}
	return st, nil
}
