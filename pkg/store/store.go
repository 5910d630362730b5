// Package store holds the active rule program.
//
// The store is a single slot read on every request and written rarely, by
// the editor or the rules-file watcher. Reads are lock-free loads of an
// immutable Snapshot; writes are serialized so versions are strictly
// increasing and a request never observes a half-installed program.
package store

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vfaronov/turq/pkg/rules"
)

// ErrNilProgram is returned when Replace is given no program.
var ErrNilProgram = errors.New("store: nil program")

// Snapshot is one installed program together with the script it was
// compiled from. Snapshots are never modified after installation.
type Snapshot struct {
	Program     *rules.Program
	Text        string
	Version     uint64
	InstalledAt time.Time
}

// Failure records a rejected submission.
type Failure struct {
	Err         error
	Text        string
	SubmittedAt time.Time
}

// CompileError returns the compile error behind the failure, if any.
func (f *Failure) CompileError() *rules.CompileError {
	if f == nil {
		return nil
	}
	var compileErr *rules.CompileError
	if errors.As(f.Err, &compileErr) {
		return compileErr
	}
	return nil
}

// Store is the atomic slot for the active program.
type Store struct {
	current atomic.Pointer[Snapshot]

	mu        sync.Mutex // serializes writers
	lastError *Failure
	listeners []func(*Snapshot)

	now func() time.Time
}

// New creates a store with prog installed as version 1.
func New(prog *rules.Program) *Store {
	s := &Store{now: time.Now}
	s.current.Store(&Snapshot{
		Program:     prog,
		Text:        prog.Source(),
		Version:     1,
		InstalledAt: s.now(),
	})
	return s
}

// NewFromText compiles text and creates a store holding it.
func NewFromText(text string) (*Store, error) {
	prog, err := rules.Compile(text)
	if err != nil {
		return nil, err
	}
	return New(prog), nil
}

// Current returns the active snapshot. It never blocks.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Replace installs prog as the next version and clears the last failure.
func (s *Store) Replace(prog *rules.Program) (*Snapshot, error) {
	if prog == nil {
		return nil, ErrNilProgram
	}

	s.mu.Lock()
	snap := &Snapshot{
		Program:     prog,
		Text:        prog.Source(),
		Version:     s.current.Load().Version + 1,
		InstalledAt: s.now(),
	}
	s.current.Store(snap)
	s.lastError = nil
	listeners := s.listeners
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
	return snap, nil
}

// Submit compiles text and installs it. On a compile error the active
// snapshot is left untouched, the failure is recorded and the error (a
// *rules.CompileError) is returned.
func (s *Store) Submit(text string) (*Snapshot, error) {
	prog, err := rules.Compile(text)
	if err != nil {
		s.mu.Lock()
		s.lastError = &Failure{Err: err, Text: text, SubmittedAt: s.now()}
		s.mu.Unlock()
		return nil, err
	}
	return s.Replace(prog)
}

// LastError returns the most recent rejected submission, or nil if the
// last submission succeeded.
func (s *Store) LastError() *Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// OnReplace registers fn to be called after every successful install.
// Callbacks run on the writer's goroutine, outside the store lock.
func (s *Store) OnReplace(fn func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}
