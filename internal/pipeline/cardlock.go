package pipeline

import (
	"sync"

	"github.com/google/uuid"
)

// cardLocks serializes submissions per card. Two concurrent submissions
// for the same card must not both read the same balance and independently
// decide to accept; submissions for different cards stay fully parallel.
// Entries are reference-counted so the map does not grow with every card
// ever seen.
type cardLocks struct {
	mu   sync.Mutex
	held map[uuid.UUID]*cardLock
}

type cardLock struct {
	mu   sync.Mutex
	refs int
}

func newCardLocks() *cardLocks {
	return &cardLocks{held: make(map[uuid.UUID]*cardLock)}
}

func (l *cardLocks) Lock(cardID uuid.UUID) {
	l.mu.Lock()
	entry, ok := l.held[cardID]
	if !ok {
		entry = &cardLock{}
		l.held[cardID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
}

func (l *cardLocks) Unlock(cardID uuid.UUID) {
	l.mu.Lock()
	entry := l.held[cardID]
	entry.refs--
	if entry.refs == 0 {
		delete(l.held, cardID)
	}
	l.mu.Unlock()

	entry.mu.Unlock()
}
