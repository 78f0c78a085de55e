package analysis

import "errors"

// ErrForbidden marks an access attempt on another user's report by a
// non-admin caller.
var ErrForbidden = errors.New("access denied")

// DataSourceError wraps a failed aggregate query. Terminal: no provider
// stream is opened after one.
type DataSourceError struct {
	Err error
}

func (e *DataSourceError) Error() string { return "aggregate query failed: " + e.Err.Error() }
func (e *DataSourceError) Unwrap() error { return e.Err }

// PromptError wraps a prompt construction failure.
type PromptError struct {
	Err error
}

func (e *PromptError) Error() string { return "prompt construction failed: " + e.Err.Error() }
func (e *PromptError) Unwrap() error { return e.Err }

// PersistenceError wraps a report store failure.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return "report persistence failed: " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }
