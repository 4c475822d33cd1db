package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-peerlink/core"
)

type received struct {
	from    core.PeerID
	tag     string
	payload string
}

// recorder captures every adapter callback.
type recorder struct {
	mu        sync.Mutex
	localID   core.PeerID
	failures  []string
	snapshots []core.OccupantSnapshot
	opened    []core.PeerID
	closed    []core.PeerID
	messages  []received
}

func attach(adapter core.Adapter, app string, room string) *recorder {
	rec := &recorder{}
	adapter.SetApp(app)
	adapter.SetRoom(room)
	adapter.SetServerConnectListeners(
		func(id core.PeerID) {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.localID = id
		},
		func(code int, message string) {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.failures = append(rec.failures, message)
		},
	)
	adapter.SetDataChannelListeners(
		func(peer core.PeerID) {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.opened = append(rec.opened, peer)
		},
		func(peer core.PeerID) {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.closed = append(rec.closed, peer)
		},
		func(from core.PeerID, tag string, payload []byte) {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.messages = append(rec.messages, received{from: from, tag: tag, payload: string(payload)})
		},
	)
	adapter.SetRoomOccupantListener(func(snapshot core.OccupantSnapshot) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.snapshots = append(rec.snapshots, snapshot)
	})
	return rec
}

func (r *recorder) id() core.PeerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.localID
}

func (r *recorder) failureCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failures)
}

func (r *recorder) lastSnapshot() core.OccupantSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return nil
	}
	return r.snapshots[len(r.snapshots)-1]
}

func (r *recorder) openedCount(peer core.PeerID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return countPeer(r.opened, peer)
}

func (r *recorder) closedCount(peer core.PeerID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return countPeer(r.closed, peer)
}

func (r *recorder) messageList() []received {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]received(nil), r.messages...)
}

func countPeer(list []core.PeerID, peer core.PeerID) int {
	total := 0
	for _, id := range list {
		if id == peer {
			total++
		}
	}
	return total
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
