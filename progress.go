package updater

import (
	"encoding/json"
	"os"
	"sort"
)

// Outcome classifies how a device left the update loop.
type Outcome string

const (
	OutcomeDone    Outcome = "done"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Progress tracks device outcomes across one or more runs. A device name
// lives in at most one of the three sets at any time: recording a new
// outcome removes the name from the other two, so a device that failed last
// run and succeeds now migrates from failed to done.
type Progress struct {
	done    map[string]struct{}
	failed  map[string]struct{}
	skipped map[string]struct{}
}

type progressFile struct {
	Done    []string `json:"done"`
	Failed  []string `json:"failed"`
	Skipped []string `json:"skipped"`
}

// NewProgress returns an empty progress record.
func NewProgress() *Progress {
	return &Progress{
		done:    make(map[string]struct{}),
		failed:  make(map[string]struct{}),
		skipped: make(map[string]struct{}),
	}
}

// LoadProgress reads the progress file at path. A missing file yields an
// empty record; a malformed file yields an empty record plus the parse error
// so the caller can warn without aborting the run.
func LoadProgress(path string) (*Progress, error) {
	p := NewProgress()
	var pf progressFile
	if err := readJSONFile(path, &pf); err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return NewProgress(), err
	}
	for _, name := range pf.Done {
		p.done[name] = struct{}{}
	}
	for _, name := range pf.Failed {
		p.failed[name] = struct{}{}
	}
	for _, name := range pf.Skipped {
		p.skipped[name] = struct{}{}
	}
	return p, nil
}

// Save persists the record atomically with each set serialized sorted.
func (p *Progress) Save(path string) error {
	return writeJSONFile(path, progressFile{
		Done:    sortedNames(p.done),
		Failed:  sortedNames(p.failed),
		Skipped: sortedNames(p.skipped),
	})
}

// Record stores the outcome for name, evicting it from the other sets.
func (p *Progress) Record(name string, outcome Outcome) {
	delete(p.done, name)
	delete(p.failed, name)
	delete(p.skipped, name)
	switch outcome {
	case OutcomeDone:
		p.done[name] = struct{}{}
	case OutcomeFailed:
		p.failed[name] = struct{}{}
	case OutcomeSkipped:
		p.skipped[name] = struct{}{}
	}
}

// IsDone reports whether name already completed successfully.
func (p *Progress) IsDone(name string) bool {
	_, ok := p.done[name]
	return ok
}

// IsFailed reports whether name is currently in the failed set.
func (p *Progress) IsFailed(name string) bool {
	_, ok := p.failed[name]
	return ok
}

// IsSkipped reports whether name is currently in the skipped set.
func (p *Progress) IsSkipped(name string) bool {
	_, ok := p.skipped[name]
	return ok
}

// DoneCount returns the size of the done set.
func (p *Progress) DoneCount() int { return len(p.done) }

// FailedCount returns the size of the failed set.
func (p *Progress) FailedCount() int { return len(p.failed) }

// SkippedCount returns the size of the skipped set.
func (p *Progress) SkippedCount() int { return len(p.skipped) }

// FailedNames returns the failed set sorted, for the run summary.
func (p *Progress) FailedNames() []string { return sortedNames(p.failed) }

// MarshalJSON serializes the record in its on-disk shape. Handy for logging.
func (p *Progress) MarshalJSON() ([]byte, error) {
	return json.Marshal(progressFile{
		Done:    sortedNames(p.done),
		Failed:  sortedNames(p.failed),
		Skipped: sortedNames(p.skipped),
	})
}

func sortedNames(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
