package entity

import "github.com/google/uuid"

// ProcessID identifies one pipeline run. It namespaces staged assets and is
// attached to every log line and ledger row of the run.
type ProcessID string

// NewProcessID mints a fresh random process id.
func NewProcessID() ProcessID {
	return ProcessID(uuid.NewString())
}

func (p ProcessID) String() string { return string(p) }

// ParseProcessID accepts a canonical UUID string.
func ParseProcessID(s string) (ProcessID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return ProcessID(id.String()), nil
}
