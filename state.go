package updater

import "os"

// State is the small cross-run record used to detect add-on upgrades and to
// latch one-shot housekeeping triggers so they fire exactly once while their
// option stays set.
type State struct {
	LastVersion              string `json:"last_version"`
	ClearLogNowConsumed      bool   `json:"clear_log_now_consumed"`
	ClearProgressNowConsumed bool   `json:"clear_progress_now_consumed"`
}

// LoadState reads the persisted state, returning a zero State when the file
// is missing. A malformed file also yields the zero State plus the parse
// error for warning-level logging.
func LoadState(path string) (State, error) {
	var st State
	if err := readJSONFile(path, &st); err != nil {
		if os.IsNotExist(err) {
			return State{}, nil
		}
		return State{}, err
	}
	return st, nil
}

// SaveState persists st atomically.
func SaveState(path string, st State) error {
	return writeJSONFile(path, st)
}
