// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"encoding/json"
	"fmt"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
)

var (
	prefixEvent  = []byte("event:")
	keyEventNext = []byte("eventNext")
)

// Event is a notification emitted by a component for indexers and tests.
type Event struct {
	Seq    uint64            `json:"seq"`
	Name   string            `json:"name"`
	Source ids.ShortID       `json:"source"`
	Attrs  map[string]string `json:"attrs,omitempty"`
}

// Attr returns the attribute [key] or the empty string.
func (e Event) Attr(key string) string {
	return e.Attrs[key]
}

// Emit appends an event to the log. Events are part of the enclosing atomic
// section and disappear with it on failure.
func (s *Store) Emit(source ids.ShortID, name string, attrs ...string) error {
	if !s.InAtomic() {
		return ErrNotInAtomic
	}

	seq, err := GetUint64(s.db, keyEventNext)
	if err != nil {
		return err
	}

	e := Event{
		Seq:    seq,
		Name:   name,
		Source: source,
	}
	if len(attrs) > 0 {
		e.Attrs = make(map[string]string, len(attrs)/2)
		for i := 0; i+1 < len(attrs); i += 2 {
			e.Attrs[attrs[i]] = attrs[i+1]
		}
	}

	if err := PutJSON(s.db, Key(prefixEvent, Uint64Key(seq)), e); err != nil {
		return err
	}
	if err := PutUint64(s.db, keyEventNext, seq+1); err != nil {
		return err
	}
	s.pending = append(s.pending, e)

	s.log.Debug("event",
		log.String("name", name),
		log.Stringer("source", source),
		log.Uint64("seq", seq),
	)
	return nil
}

// Events returns up to [limit] events starting at sequence number [from].
func (s *Store) Events(from uint64, limit int) ([]Event, error) {
	iter := s.db.NewIteratorWithStartAndPrefix(Key(prefixEvent, Uint64Key(from)), prefixEvent)
	defer iter.Release()

	events := make([]Event, 0)
	for iter.Next() && len(events) < limit {
		var e Event
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStateCorrupted, err)
		}
		events = append(events, e)
	}
	return events, iter.Error()
}

// EventCount is the number of events emitted so far.
func (s *Store) EventCount() (uint64, error) {
	return GetUint64(s.db, keyEventNext)
}
