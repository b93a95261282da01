package constants

// RunStatus is the canonical status for rows in the run ledger.
type RunStatus string

// Stable values (store these exact strings in the ledger).
const (
	RunStatusQueued    RunStatus = "QUEUED"    // accepted, waiting for a worker
	RunStatusRunning   RunStatus = "RUNNING"   // picked up by a worker
	RunStatusSucceeded RunStatus = "SUCCEEDED" // record created and images attached
	RunStatusPartial   RunStatus = "PARTIAL"   // record created, attachments failed
	RunStatusFailed    RunStatus = "FAILED"    // terminal failure before a record existed
	RunStatusAbandoned RunStatus = "ABANDONED" // process exited before the run finished
)

// Terminal reports whether no further transition is expected for s.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusPartial, RunStatusFailed, RunStatusAbandoned:
		return true
	}
	return false
}
