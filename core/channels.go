package core

import "sync"

// ChannelStateTracker records which peers have an open data channel. Entries
// are created on first open and never deleted.
type ChannelStateTracker struct {
	mu    sync.RWMutex
	state map[PeerID]bool
}

func NewChannelStateTracker() *ChannelStateTracker {
	return &ChannelStateTracker{state: map[PeerID]bool{}}
}

func (t *ChannelStateTracker) Open(id PeerID) {
	t.set(id, true)
}

func (t *ChannelStateTracker) Close(id PeerID) {
	t.set(id, false)
}

func (t *ChannelStateTracker) set(id PeerID, active bool) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state[id] = active
}

func (t *ChannelStateTracker) IsActive(id PeerID) bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state[id]
}

func (t *ChannelStateTracker) Active() []PeerID {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	out := make([]PeerID, 0, len(t.state))
	for id, active := range t.state {
		if active {
			out = append(out, id)
		}
	}
	t.mu.RUnlock()
	sortPeerIDs(out)
	return out
}

// Known reports whether id has ever had a channel opened.
func (t *ChannelStateTracker) Known(id PeerID) bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.state[id]
	return ok
}
