package service

import "sync"

// conversationLocks serializes turn processing per conversation id. Turns
// for one conversation run strictly one at a time; distinct conversations
// proceed independently. Entries are refcounted so the map does not grow
// with every conversation ever seen.
type conversationLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newConversationLocks() *conversationLocks {
	return &conversationLocks{locks: make(map[string]*lockEntry)}
}

// Lock blocks until the conversation's lock is held and returns the unlock
// function.
func (c *conversationLocks) Lock(id string) func() {
	c.mu.Lock()
	entry, ok := c.locks[id]
	if !ok {
		entry = &lockEntry{}
		c.locks[id] = entry
	}
	entry.refs++
	c.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		c.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(c.locks, id)
		}
		c.mu.Unlock()
	}
}
