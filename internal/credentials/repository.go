package credentials

import (
	"fmt"
	"sync/atomic"
)

// Repository serves the most recently published Snapshot.
type Repository struct {
	current atomic.Pointer[Snapshot]
}

// NewRepository creates a repository holding the empty snapshot.
func NewRepository() *Repository {
	r := &Repository{}
	r.current.Store(EmptySnapshot())
	return r
}

// Get returns one account from the current snapshot.
func (r *Repository) Get(name string) (*NamedCredential, error) {
	cred, ok := r.current.Load().Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, name)
	}
	return cred, nil
}

// All returns the current snapshot. Callers must treat it as read-only.
func (r *Repository) All() *Snapshot {
	return r.current.Load()
}

// Publish replaces the current snapshot. A nil snapshot is ignored.
func (r *Repository) Publish(s *Snapshot) {
	if s == nil {
		return
	}
	r.current.Store(s)
}
