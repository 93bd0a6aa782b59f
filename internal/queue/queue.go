// Package queue keeps the ordered set of WAITING tokens for one lane (a doctor
// or a department's "any available doctor" pool).
//
// Order: higher priority band first, then earlier QueuedAt, then lower token
// sequence, then token number. The order is total, so positions are stable.
//
// A WaitingSet is not safe for concurrent use; the owner serializes access.
package queue

import (
	"fmt"
	"iter"
	"slices"
	"sort"
	"time"

	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/models"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/store"
)

type Entry struct {
	TokenID     string
	TokenNumber string
	Sequence    int64
	Priority    models.Priority
	QueuedAt    time.Time
}

func EntryFor(token models.Token) Entry {
	queuedAt := token.QueuedAt
	if queuedAt.IsZero() {
		queuedAt = token.GeneratedAt
	}
	return Entry{
		TokenID:     token.TokenID,
		TokenNumber: token.TokenNumber,
		Sequence:    token.Sequence,
		Priority:    token.Priority,
		QueuedAt:    queuedAt,
	}
}

// Less reports whether a is served before b.
func Less(a, b Entry) bool {
	if ab, bb := a.Priority.Band(), b.Priority.Band(); ab != bb {
		return ab > bb
	}
	if !a.QueuedAt.Equal(b.QueuedAt) {
		return a.QueuedAt.Before(b.QueuedAt)
	}
	if a.Sequence != b.Sequence {
		return a.Sequence < b.Sequence
	}
	return a.TokenNumber < b.TokenNumber
}

type WaitingSet struct {
	entries []Entry
	members map[string]struct{}
}

func NewWaitingSet() *WaitingSet {
	return &WaitingSet{members: make(map[string]struct{})}
}

// Enqueue inserts a WAITING token at its sorted position.
func (s *WaitingSet) Enqueue(token models.Token) error {
	if token.Status != models.StatusWaiting {
		return fmt.Errorf("%w: enqueue token %s in status %s", store.ErrInvalidState, token.TokenID, token.Status)
	}
	if _, ok := s.members[token.TokenID]; ok {
		return fmt.Errorf("%w: token %s already queued", store.ErrInvalidState, token.TokenID)
	}
	entry := EntryFor(token)
	i := sort.Search(len(s.entries), func(i int) bool { return Less(entry, s.entries[i]) })
	s.entries = slices.Insert(s.entries, i, entry)
	s.members[entry.TokenID] = struct{}{}
	return nil
}

// Next returns the head without removing it. The caller removes it once the
// status change has been persisted.
func (s *WaitingSet) Next() (Entry, error) {
	if len(s.entries) == 0 {
		return Entry{}, store.ErrEmptyQueue
	}
	return s.entries[0], nil
}

// Remove reports false when the token is not queued.
func (s *WaitingSet) Remove(tokenID string) bool {
	if _, ok := s.members[tokenID]; !ok {
		return false
	}
	for i := range s.entries {
		if s.entries[i].TokenID == tokenID {
			s.entries = slices.Delete(s.entries, i, i+1)
			break
		}
	}
	delete(s.members, tokenID)
	return true
}

func (s *WaitingSet) Contains(tokenID string) bool {
	_, ok := s.members[tokenID]
	return ok
}

// Position is 1-based; ok is false when the token is unranked.
func (s *WaitingSet) Position(tokenID string) (int, bool) {
	if _, ok := s.members[tokenID]; !ok {
		return 0, false
	}
	for i := range s.entries {
		if s.entries[i].TokenID == tokenID {
			return i + 1, true
		}
	}
	return 0, false
}

func (s *WaitingSet) Len() int {
	return len(s.entries)
}

// BandTail returns the QueuedAt of the last entry sharing p's band.
func (s *WaitingSet) BandTail(p models.Priority) (time.Time, bool) {
	band := p.Band()
	var tail time.Time
	found := false
	for _, entry := range s.entries {
		if entry.Priority.Band() == band {
			tail = entry.QueuedAt
			found = true
		}
	}
	return tail, found
}

// Snapshot copies the current order.
func (s *WaitingSet) Snapshot() []Entry {
	return slices.Clone(s.entries)
}

// All iterates the current order. The set must not change during iteration.
func (s *WaitingSet) All() iter.Seq2[int, Entry] {
	return func(yield func(int, Entry) bool) {
		for i, entry := range s.entries {
			if !yield(i+1, entry) {
				return
			}
		}
	}
}
