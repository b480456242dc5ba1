package dualstore

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindIO Kind = iota + 1
	KindLock
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindLock:
		return "lock"
	default:
		return "unknown"
	}
}

var (
	// ErrIO matches any SyncError of KindIO via errors.Is.
	ErrIO = errors.New("dualstore: io failure")
	// ErrLock matches any SyncError of KindLock via errors.Is.
	ErrLock = errors.New("dualstore: lock failure")

	errClosed = errors.New("store closed")
)

// SyncError reports a failed store operation.
type SyncError struct {
	Kind  Kind
	Store string
	Op    string
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Store, e.Op, e.Kind, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

func (e *SyncError) Is(target error) bool {
	switch target {
	case ErrIO:
		return e.Kind == KindIO
	case ErrLock:
		return e.Kind == KindLock
	}
	return false
}

func ioErr(store, op string, err error) error {
	return &SyncError{Kind: KindIO, Store: store, Op: op, Err: err}
}

func lockErr(store, op string, err error) error {
	return &SyncError{Kind: KindLock, Store: store, Op: op, Err: err}
}
