package scheduler

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// persistedState is the baseline snapshot written after every successful
// reconcile, so a restarted daemon does not re-publish purely because its
// in-memory baseline was lost.
type persistedState struct {
	BaselineBytes int64     `json:"baseline_bytes"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// loadState reads the persisted baseline. A missing or corrupt file is not
// an error; the scheduler simply degrades to the first-cycle rule.
func loadState(path string) (persistedState, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return persistedState{}, false
	}

	var st persistedState
	if err := json.Unmarshal(data, &st); err != nil {
		return persistedState{}, false
	}

	return st, true
}

// saveState persists the baseline to disk.
func saveState(path string, st persistedState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
