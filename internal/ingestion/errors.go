package ingestion

import (
	"errors"
	"fmt"
)

var (
	// ErrRemoteFetch marks failures of the payment source, including malformed batches.
	ErrRemoteFetch = errors.New("ingestion: remote fetch failed")
	// ErrPersistence marks failures writing payments or the cursor; the cursor is left unchanged.
	ErrPersistence = errors.New("ingestion: persistence failed")
)

// Kind names an ingestion failure class.
type Kind string

const (
	KindRemoteFetch Kind = "remote_fetch"
	KindPersistence Kind = "persistence"
)

// Error is an ingestion failure bound to its task.
type Error struct {
	Kind Kind
	Task string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ingest %s: %s: %v", e.Task, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinel.
func (e *Error) Is(target error) bool {
	switch e.Kind {
	case KindRemoteFetch:
		return target == ErrRemoteFetch
	case KindPersistence:
		return target == ErrPersistence
	}
	return false
}

func remoteErr(task string, err error) error {
	return &Error{Kind: KindRemoteFetch, Task: task, Err: err}
}

func persistErr(task string, err error) error {
	return &Error{Kind: KindPersistence, Task: task, Err: err}
}
