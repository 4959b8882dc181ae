package mirror

import (
	"fmt"
	"time"
)

// Action is an operation performed on a mirror
type Action string

const (
	ActionClone   Action = "clone"
	ActionUpdate  Action = "update"
	ActionReclone Action = "reclone"
	ActionDelete  Action = "delete"

	// recorded by callers for problems found while building desired state
	ActionLoadGroup Action = "load-group"
	ActionConflict  Action = "conflict"
)

// Failure of a single mirror or group
type Failure struct {
	ID     string
	URL    string
	Action Action
	Err    error
}

func (f Failure) String() string {
	return fmt.Sprintf("%s %s (%s): %v", f.Action, f.ID, f.URL, f.Err)
}

// Anomaly is an unexpected filesystem state found while pruning, it is
// neither success nor failure
type Anomaly struct {
	ID   string
	Path string
	Err  error
}

// Report summarises a run
type Report struct {
	DestRoot string
	DryRun   bool

	Cloned  []string
	Updated []string
	Deleted []string

	Failures  []Failure
	Anomalies []Anomaly

	// Skipped lists excluded ids left untouched
	Skipped []string
	// Protected lists directories which were not declared but kept
	Protected []string

	// Interrupted is set when the run was cancelled before all steps were applied
	Interrupted bool
	Duration    time.Duration
}

// Failed returns number of failures
func (r *Report) Failed() int {
	return len(r.Failures)
}

// Conflicts returns number of conflicting mirror ids
func (r *Report) Conflicts() int {
	var n int
	for _, f := range r.Failures {
		if f.Action == ActionConflict {
			n++
		}
	}
	return n
}

// RecordFailure adds failure to the report
func (r *Report) RecordFailure(f Failure) {
	r.Failures = append(r.Failures, f)
}

func (r *Report) recordAnomaly(a Anomaly) {
	r.Anomalies = append(r.Anomalies, a)
}
