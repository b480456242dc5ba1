// Package dualstore keeps a decoded value in memory and mirrors it to a text file.
//
// Memory is the source of truth while the process runs. The file is only read on
// Load and only overwritten on Save; mutations never flush on their own.
//
// Locking:
//   - mem (RWMutex) guards the decoded value.
//   - file (Mutex) serializes every access to the durable resource.
//
// The two locks are never held at the same time, so readers of memory are not
// blocked by disk I/O.
package dualstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// Codec is the text contract of T.
//
// Decode must be total (malformed input is skipped, never an error) and Encode
// must be its left inverse up to ordering.
type Codec[T any] interface {
	Decode(text string) T
	Encode(v T) string
	Clone(v T) T
	Empty() T
}

// File is the durable resource. *os.File satisfies it.
type File interface {
	io.ReadWriteSeeker
	Truncate(size int64) error
	Sync() error
	Close() error
}

type Store[T any] struct {
	name  string
	codec Codec[T]

	memMu sync.RWMutex
	mem   T

	fileMu sync.Mutex
	file   File

	closed atomic.Bool
}

// New wraps an already opened file. The in-memory value starts empty;
// call Load to read the file.
func New[T any](name string, file File, codec Codec[T]) *Store[T] {
	return &Store[T]{
		name:  name,
		codec: codec,
		mem:   codec.Empty(),
		file:  file,
	}
}

// Open opens (or creates) path for read/write and wraps it.
func Open[T any](name, path string, codec Codec[T]) (*Store[T], error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, ioErr(name, "open", err)
		}
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, ioErr(name, "open", err)
	}
	return New(name, File(f), codec), nil
}

func (s *Store[T]) Name() string { return s.name }

// View calls fn with the current value under the read lock.
// fn must not retain or modify v.
func (s *Store[T]) View(fn func(v T)) error {
	if s.closed.Load() {
		return lockErr(s.name, "view", errClosed)
	}
	s.memMu.RLock()
	defer s.memMu.RUnlock()
	fn(s.mem)
	return nil
}

// Snapshot returns a private copy of the current value.
func (s *Store[T]) Snapshot() (T, error) {
	var out T
	err := s.View(func(v T) { out = s.codec.Clone(v) })
	return out, err
}

// Mutate grants exclusive access to the value for the duration of fn.
//
// fn receives a copy and returns the new value. If fn panics the stored value
// is left untouched and a KindLock error is returned.
func (s *Store[T]) Mutate(fn func(v T) T) (err error) {
	if s.closed.Load() {
		return lockErr(s.name, "mutate", errClosed)
	}
	s.memMu.Lock()
	defer s.memMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = lockErr(s.name, "mutate", fmt.Errorf("mutator panicked: %v", r))
		}
	}()
	next := fn(s.codec.Clone(s.mem))
	s.mem = next
	return nil
}

// Load reads the whole file from offset zero and replaces the in-memory value.
func (s *Store[T]) Load() error {
	text, err := s.readFile()
	if err != nil {
		return err
	}
	v := s.codec.Decode(text)

	if s.closed.Load() {
		return lockErr(s.name, "load", errClosed)
	}
	s.memMu.Lock()
	s.mem = v
	s.memMu.Unlock()
	return nil
}

func (s *Store[T]) readFile() (string, error) {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	if s.closed.Load() || s.file == nil {
		return "", lockErr(s.name, "load", errClosed)
	}
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return "", ioErr(s.name, "load", err)
	}
	b, err := io.ReadAll(s.file)
	if err != nil {
		return "", ioErr(s.name, "load", err)
	}
	return string(b), nil
}

// Save encodes the current value and overwrites the file with it.
func (s *Store[T]) Save() error {
	var text string
	if err := s.View(func(v T) { text = s.codec.Encode(v) }); err != nil {
		return err
	}

	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	if s.closed.Load() || s.file == nil {
		return lockErr(s.name, "save", errClosed)
	}
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return ioErr(s.name, "save", err)
	}
	if err := s.file.Truncate(0); err != nil {
		return ioErr(s.name, "save", err)
	}
	if _, err := s.file.Write([]byte(text)); err != nil {
		return ioErr(s.name, "save", err)
	}
	if err := s.file.Sync(); err != nil {
		return ioErr(s.name, "save", err)
	}
	return nil
}

// Close releases the file. Later operations fail with a KindLock error.
func (s *Store[T]) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return ioErr(s.name, "close", err)
	}
	return nil
}
