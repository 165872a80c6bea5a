package journal

import (
	"errors"
	"strings"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrNotFound is returned when a run was never recorded.
	ErrNotFound = errors.New("run not recorded")

	// ErrDuplicateID is returned when a run ID is recorded twice.
	ErrDuplicateID = errors.New("run already recorded")

	// ErrConnectionFailed is returned when the journal database cannot be opened.
	ErrConnectionFailed = errors.New("journal database unavailable")

	// ErrMigrationFailed is returned when the journal schema cannot be migrated.
	ErrMigrationFailed = errors.New("journal schema migration failed")

	// ErrInvalidData is returned when a stored run or deployment cannot be decoded.
	ErrInvalidData = errors.New("corrupt journal entry")
)

// JournalError reports a failed journal operation and the run it concerned.
type JournalError struct {
	Op     string // Journal method that failed (e.g., "BeginRun")
	RunID  string // Empty for operations not tied to one run
	Detail string // What was being done; the wrapped error follows it
	Err    error
}

// Error renders "journal <op> [run <id>]: [<detail>: ]<err>".
func (e *JournalError) Error() string {
	var b strings.Builder
	b.WriteString("journal ")
	b.WriteString(e.Op)
	if e.RunID != "" {
		b.WriteString(" run ")
		b.WriteString(e.RunID)
	}

	parts := make([]string, 0, 2)
	if e.Detail != "" {
		parts = append(parts, e.Detail)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	if len(parts) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(parts, ": "))
	}
	return b.String()
}

func (e *JournalError) Unwrap() error {
	return e.Err
}

// NewJournalError creates a JournalError for op on runID.
func NewJournalError(op, runID, detail string, err error) *JournalError {
	return &JournalError{Op: op, RunID: runID, Detail: detail, Err: err}
}
