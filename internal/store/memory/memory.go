// Package memory provides an in-process registry store. It backs the
// "memory" backend and stands in for the remote document in tests.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/vortunix/noderegistry/internal/model"
	"github.com/vortunix/noderegistry/internal/store"
)

var errMissing = errors.New("document not found")

type Store struct {
	mu       sync.Mutex
	reg      model.Registry
	exists   bool
	messages []string
	tag      string

	loadErr error
	saveErr error
	saved   chan struct{}
}

// New returns a store holding reg. A nil reg means the document does not
// exist yet and Load fails until the first Save.
func New(reg model.Registry) *Store {
	return &Store{
		reg:    reg.Clone(),
		exists: reg != nil,
		saved:  make(chan struct{}, 1024),
	}
}

// WithTag prefixes every commit message with tag, as the remote backends do.
func (s *Store) WithTag(tag string) *Store {
	s.mu.Lock()
	s.tag = tag
	s.mu.Unlock()
	return s
}

func (s *Store) Load(ctx context.Context) (model.Registry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, &store.RetrievalError{Err: s.loadErr}
	}
	if !s.exists {
		return nil, &store.RetrievalError{Err: errMissing}
	}
	return s.reg.Clone(), nil
}

func (s *Store) Save(ctx context.Context, reg model.Registry, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return &store.PersistError{Err: err}
	}
	if s.saveErr != nil {
		s.notify()
		return &store.PersistError{Err: s.saveErr}
	}
	s.reg = reg.Clone()
	if s.reg == nil {
		s.reg = model.Registry{}
	}
	s.exists = true
	s.messages = append(s.messages, store.TaggedMessage(s.tag, message))
	s.notify()
	return nil
}

func (s *Store) notify() {
	select {
	case s.saved <- struct{}{}:
	default:
	}
}

// Saved signals once per Save attempt, successful or not.
func (s *Store) Saved() <-chan struct{} {
	return s.saved
}

func (s *Store) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

func (s *Store) Snapshot() model.Registry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.Clone()
}

func (s *Store) FailLoad(err error) {
	s.mu.Lock()
	s.loadErr = err
	s.mu.Unlock()
}

func (s *Store) FailSave(err error) {
	s.mu.Lock()
	s.saveErr = err
	s.mu.Unlock()
}
