package runner

import "fmt"

// PersonaResult captures the outcome of one persona run.
type PersonaResult struct {
	Persona    string `json:"persona"`
	OK         bool   `json:"ok"`
	OutputPath string `json:"output_path"`
	Error      string `json:"error,omitempty"`
}

// RunResult aggregates a whole run.
type RunResult struct {
	RunID   string
	RunDir  string
	Results []PersonaResult
}

// Summary renders the one-line result printed after a run.
func (r RunResult) Summary() string {
	ok := 0
	for _, result := range r.Results {
		if result.OK {
			ok++
		}
	}
	return fmt.Sprintf("run_id=%s ok=%d/%d artifacts=%s", r.RunID, ok, len(r.Results), r.RunDir)
}

// EventKind distinguishes persona lifecycle notifications.
type EventKind string

const (
	EventStarted  EventKind = "started"
	EventFinished EventKind = "finished"

	// EventSkipped marks a persona that lenient preflight excluded from the
	// batch; it never starts and produces no artifact.
	EventSkipped EventKind = "skipped"
)

// Event is emitted as personas start and finish so a progress view can track
// a run without sharing state with the workers.
type Event struct {
	Kind    EventKind
	Persona string
	Result  *PersonaResult
}
