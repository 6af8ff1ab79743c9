// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package state manages persistent state for the Abachi VM.
//
// Every component keeps its state in its own key space of a single versioned
// database. Mutations happen inside atomic sections: the outermost section
// commits all writes on success and discards them on failure, so a failed
// operation never leaves partial effects behind.
package state

import (
	"errors"
	"fmt"

	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/database/versiondb"
	"github.com/luxfi/log"
)

var (
	ErrNotInAtomic = errors.New("write outside of atomic section")
	ErrClosed      = errors.New("store closed")
)

// Store is the versioned database shared by all components.
type Store struct {
	log    log.Logger
	base   database.Database
	db     *versiondb.Database
	depth  int
	closed bool

	// events emitted in the current outermost section
	pending []Event
	// optional sink notified after a successful commit
	onCommit func([]Event)
}

// New wraps [db] in a versioned store.
func New(db database.Database, logger log.Logger) *Store {
	return &Store{
		log:  logger,
		base: db,
		db:   versiondb.New(db),
	}
}

// Scope returns a database view restricted to [prefix]. Writes through the view
// are staged in the store and follow the enclosing atomic section.
func (s *Store) Scope(prefix []byte) database.Database {
	return prefixdb.New(prefix, s.db)
}

// OnCommit registers a callback receiving the events of every committed section.
func (s *Store) OnCommit(f func([]Event)) {
	s.onCommit = f
}

// InAtomic reports whether an atomic section is open.
func (s *Store) InAtomic() bool {
	return s.depth > 0
}

// Atomic runs [fn] inside an atomic section. Sections nest: only the outermost
// one commits or aborts.
func (s *Store) Atomic(fn func() error) error {
	if s.closed {
		return ErrClosed
	}

	s.depth++
	err := fn()
	s.depth--
	if s.depth > 0 {
		return err
	}

	if err != nil {
		s.db.Abort()
		s.pending = nil
		return err
	}
	if err := s.db.Commit(); err != nil {
		s.db.Abort()
		s.pending = nil
		return fmt.Errorf("failed to commit state: %w", err)
	}

	committed := s.pending
	s.pending = nil
	if s.onCommit != nil && len(committed) > 0 {
		s.onCommit(committed)
	}
	return nil
}

// Close releases the versioned database. The host database is left open.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.db.Abort()
	return s.db.Close()
}
