package transport

import (
	"context"
	"net/http"
	"sort"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-peerlink/core"
	"github.com/google/uuid"
)

// Hub is an in-process signalling server. Loopback adapters attached to the
// same hub see each other as room occupants and exchange messages directly.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[core.PeerID]*LoopbackAdapter
	seq   int64
}

func NewHub() *Hub {
	return &Hub{rooms: map[string]map[core.PeerID]*LoopbackAdapter{}}
}

// Occupants lists the peers joined to app/room, sorted.
func (h *Hub) Occupants(app string, room string) []core.PeerID {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := h.rooms[roomKey(app, room)]
	out := make([]core.PeerID, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// announce pushes a fresh snapshot to every member of key. Caller holds h.mu.
func (h *Hub) announce(key string) {
	members := h.rooms[key]
	for id, member := range members {
		snapshot := make(core.OccupantSnapshot, len(members)-1)
		for otherID, other := range members {
			if otherID == id {
				continue
			}
			snapshot[otherID] = core.OccupantInfo{Priority: other.priority}
		}
		cb := member.callbacks()
		member.queue.push(func() { cb.occupants(snapshot) })
	}
}

// LoopbackFactory builds adapters joined to hub. A nil hub gets a fresh one
// shared by every adapter the factory builds.
func LoopbackFactory(hub *Hub) AdapterFactory {
	if hub == nil {
		hub = NewHub()
	}
	return func(map[string]any) (core.Adapter, error) {
		return NewLoopbackAdapter(hub), nil
	}
}

// LoopbackAdapter connects a session to a Hub. All listener callbacks run on
// a per-adapter goroutine in the order the hub produced them.
type LoopbackAdapter struct {
	listenerSet
	hub *Hub

	// guarded by hub.mu
	id       core.PeerID
	priority int64
	key      string
	joined   bool
	open     map[core.PeerID]bool
	queue    *callbackQueue
}

func NewLoopbackAdapter(hub *Hub) *LoopbackAdapter {
	if hub == nil {
		hub = NewHub()
	}
	return &LoopbackAdapter{hub: hub, open: map[core.PeerID]bool{}}
}

func (a *LoopbackAdapter) Kind() string { return KindLoopback }

// LocalID reports the id assigned by the hub, empty before Connect.
func (a *LoopbackAdapter) LocalID() core.PeerID {
	if a == nil {
		return ""
	}
	a.hub.mu.RLock()
	defer a.hub.mu.RUnlock()
	return a.id
}

func (a *LoopbackAdapter) Connect(context.Context) error {
	if a == nil {
		return nilAdapterError()
	}
	cfg := a.settings()
	cb := a.callbacks()

	h := a.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if a.joined {
		return nil
	}
	if a.queue == nil || a.queue.isStopped() {
		a.queue = newCallbackQueue()
	}
	if cfg.app == "" || cfg.room == "" {
		a.queue.push(func() { cb.failure(http.StatusBadRequest, "loopback: app and room are required") })
		return nil
	}

	h.seq++
	a.id = core.PeerID(uuid.NewString())
	a.priority = h.seq
	a.key = roomKey(cfg.app, cfg.room)
	a.joined = true
	a.open = map[core.PeerID]bool{}
	members := h.rooms[a.key]
	if members == nil {
		members = map[core.PeerID]*LoopbackAdapter{}
		h.rooms[a.key] = members
	}
	members[a.id] = a

	id := a.id
	a.queue.push(func() { cb.success(id) })
	h.announce(a.key)
	return nil
}

func (a *LoopbackAdapter) Disconnect() error {
	if a == nil {
		return nilAdapterError()
	}
	h := a.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if !a.joined {
		return nil
	}
	members := h.rooms[a.key]
	delete(members, a.id)
	for partnerID := range a.open {
		partner, ok := members[partnerID]
		if !ok {
			continue
		}
		delete(partner.open, a.id)
		cb := partner.callbacks()
		self := a.id
		partner.queue.push(func() { cb.close(self) })
	}
	a.open = map[core.PeerID]bool{}
	a.joined = false
	if len(members) == 0 {
		delete(h.rooms, a.key)
	} else {
		h.announce(a.key)
	}
	if a.queue != nil {
		a.queue.stop()
	}
	return nil
}

func (a *LoopbackAdapter) OpenChannel(peer core.PeerID) error {
	if a == nil {
		return nilAdapterError()
	}
	h := a.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	partner, err := a.partnerLocked(peer)
	if err != nil {
		return err
	}
	if a.open[peer] {
		return nil
	}
	a.open[peer] = true
	partner.open[a.id] = true

	selfCB, partnerCB := a.callbacks(), partner.callbacks()
	self := a.id
	a.queue.push(func() { selfCB.open(peer) })
	partner.queue.push(func() { partnerCB.open(self) })
	return nil
}

func (a *LoopbackAdapter) CloseChannel(peer core.PeerID) error {
	if a == nil {
		return nilAdapterError()
	}
	h := a.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if !a.joined || !a.open[peer] {
		return nil
	}
	delete(a.open, peer)
	selfCB := a.callbacks()
	a.queue.push(func() { selfCB.close(peer) })

	if partner, ok := h.rooms[a.key][peer]; ok {
		delete(partner.open, a.id)
		partnerCB := partner.callbacks()
		self := a.id
		partner.queue.push(func() { partnerCB.close(self) })
	}
	return nil
}

// ShouldInitiate lets the earlier joiner open the channel.
func (a *LoopbackAdapter) ShouldInitiate(info core.OccupantInfo) bool {
	if a == nil {
		return false
	}
	a.hub.mu.RLock()
	defer a.hub.mu.RUnlock()
	return a.joined && a.priority < info.Priority
}

func (a *LoopbackAdapter) ConnectStatus(peer core.PeerID) core.ConnectStatus {
	if a == nil {
		return core.ConnectStatusNotConnected
	}
	a.hub.mu.RLock()
	defer a.hub.mu.RUnlock()
	if a.open[peer] {
		return core.ConnectStatusConnected
	}
	return core.ConnectStatusNotConnected
}

func (a *LoopbackAdapter) Send(to core.PeerID, tag string, payload []byte) error {
	return a.deliver(to, tag, payload)
}

// SendGuaranteed shares the in-order hub path with Send.
func (a *LoopbackAdapter) SendGuaranteed(to core.PeerID, tag string, payload []byte) error {
	return a.deliver(to, tag, payload)
}

func (a *LoopbackAdapter) Broadcast(tag string, payload []byte) error {
	return a.fanout(tag, payload)
}

func (a *LoopbackAdapter) BroadcastGuaranteed(tag string, payload []byte) error {
	return a.fanout(tag, payload)
}

func (a *LoopbackAdapter) deliver(to core.PeerID, tag string, payload []byte) error {
	if a == nil {
		return nilAdapterError()
	}
	h := a.hub
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !a.joined {
		return notConnectedError(KindLoopback)
	}
	if !a.open[to] {
		return channelClosedError(KindLoopback, to)
	}
	partner, ok := h.rooms[a.key][to]
	if !ok {
		return channelClosedError(KindLoopback, to)
	}
	a.push(partner, tag, payload)
	return nil
}

func (a *LoopbackAdapter) fanout(tag string, payload []byte) error {
	if a == nil {
		return nilAdapterError()
	}
	h := a.hub
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !a.joined {
		return notConnectedError(KindLoopback)
	}
	members := h.rooms[a.key]
	for peer := range a.open {
		if partner, ok := members[peer]; ok {
			a.push(partner, tag, payload)
		}
	}
	return nil
}

func (a *LoopbackAdapter) push(partner *LoopbackAdapter, tag string, payload []byte) {
	cb := partner.callbacks()
	from := a.id
	data := copyPayload(payload)
	partner.queue.push(func() { cb.message(from, tag, data) })
}

// partnerLocked resolves peer in the adapter's room. Caller holds hub.mu.
func (a *LoopbackAdapter) partnerLocked(peer core.PeerID) (*LoopbackAdapter, error) {
	if !a.joined {
		return nil, notConnectedError(KindLoopback)
	}
	if peer == "" || peer == a.id {
		return nil, transportError(
			"loopback: invalid channel peer",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"peer_id": string(peer)},
		)
	}
	partner, ok := a.hub.rooms[a.key][peer]
	if !ok {
		return nil, transportError(
			"loopback: peer is not in the room",
			goerrors.CategoryNotFound,
			http.StatusNotFound,
			map[string]any{"peer_id": string(peer)},
		)
	}
	return partner, nil
}

func roomKey(app string, room string) string {
	return app + "/" + room
}

var _ core.Adapter = (*LoopbackAdapter)(nil)
