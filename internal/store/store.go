package store

import (
	"context"
	"strings"

	"github.com/vortunix/noderegistry/internal/model"
)

// DefaultCommitTag prefixes every commit message written by the service.
const DefaultCommitTag = "[Vortunix Core]"

// Store persists the registry as one document. Every Save replaces the whole
// document; there is no compare-and-swap, the last writer wins.
type Store interface {
	Load(ctx context.Context) (model.Registry, error)
	Save(ctx context.Context, reg model.Registry, message string) error
}

// RetrievalError means the registry document is missing, unreadable or not
// a valid registry.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string {
	return "registry retrieval: " + e.Err.Error()
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// PersistError means a commit of the registry document failed.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string {
	return "registry commit: " + e.Err.Error()
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

func TaggedMessage(tag, message string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return message
	}
	return tag + " " + message
}
