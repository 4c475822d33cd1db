package transport

import (
	"net/http"
	"sync"
	"time"

	"github.com/goliatone/go-peerlink/core"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	defaultRelaySendBuffer   = 64
	defaultRelayWriteTimeout = 10 * time.Second
)

// RelayConfig tunes a Relay. SendBuffer is the per-client frame buffer; a
// client whose buffer is full when a reliable frame arrives is disconnected.
type RelayConfig struct {
	// CheckOrigin defaults to accepting every origin.
	CheckOrigin  func(*http.Request) bool
	SendBuffer   int
	WriteTimeout time.Duration
	Logger       core.Logger
}

// Relay is a websocket signalling and data relay. Clients join an app/room,
// receive occupant snapshots, and exchange frames with peers they opened a
// channel to.
type Relay struct {
	upgrader     websocket.Upgrader
	sendBuffer   int
	writeTimeout time.Duration
	logger       core.Logger

	mu    sync.Mutex
	rooms map[string]map[core.PeerID]*relayClient
	seq   int64
}

type relayClient struct {
	id       core.PeerID
	priority int64
	key      string
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once

	// guarded by Relay.mu
	partners map[core.PeerID]bool
}

func NewRelay(config RelayConfig) *Relay {
	checkOrigin := config.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = defaultRelaySendBuffer
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaultRelayWriteTimeout
	}
	return &Relay{
		upgrader:     websocket.Upgrader{CheckOrigin: checkOrigin},
		sendBuffer:   config.SendBuffer,
		writeTimeout: config.WriteTimeout,
		logger:       config.Logger,
		rooms:        map[string]map[core.PeerID]*relayClient{},
	}
}

// ClientCount returns the number of joined clients across all rooms.
func (r *Relay) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, members := range r.rooms {
		total += len(members)
	}
	return total
}

func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.warn("relay upgrade failed", "error", err)
		return
	}

	var join frame
	if err := conn.ReadJSON(&join); err != nil || join.Type != frameJoin || join.App == "" || join.Room == "" {
		r.reject(conn, http.StatusBadRequest, "relay: first frame must be a join with app and room")
		return
	}

	client := &relayClient{
		id:       core.PeerID(uuid.NewString()),
		key:      roomKey(join.App, join.Room),
		conn:     conn,
		send:     make(chan []byte, r.sendBuffer),
		done:     make(chan struct{}),
		partners: map[core.PeerID]bool{},
	}
	go r.writePump(client)

	r.mu.Lock()
	r.seq++
	client.priority = r.seq
	members := r.rooms[client.key]
	if members == nil {
		members = map[core.PeerID]*relayClient{}
		r.rooms[client.key] = members
	}
	members[client.id] = client
	r.enqueue(client, frame{Type: frameWelcome, ID: client.id, Priority: client.priority}, true)
	r.announceLocked(client.key)
	r.mu.Unlock()

	r.readLoop(client)
	r.leave(client)
}

func (r *Relay) readLoop(client *relayClient) {
	for {
		var in frame
		if err := client.conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.warn("relay read failed", "peer_id", client.id, "error", err)
			}
			return
		}
		r.handle(client, in)
	}
}

func (r *Relay) handle(client *relayClient, in frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := r.rooms[client.key]

	switch in.Type {
	case frameOpen:
		target, ok := members[in.To]
		if !ok || in.To == client.id {
			r.enqueue(client, frame{Type: frameError, Code: http.StatusNotFound, Message: "relay: peer not in room", To: in.To}, true)
			return
		}
		if client.partners[in.To] {
			return
		}
		client.partners[target.id] = true
		target.partners[client.id] = true
		r.enqueue(client, frame{Type: frameOpen, From: target.id}, true)
		r.enqueue(target, frame{Type: frameOpen, From: client.id}, true)
	case frameClose:
		if !client.partners[in.To] {
			return
		}
		delete(client.partners, in.To)
		r.enqueue(client, frame{Type: frameClose, From: in.To}, true)
		if target, ok := members[in.To]; ok {
			delete(target.partners, client.id)
			r.enqueue(target, frame{Type: frameClose, From: client.id}, true)
		}
	case frameData:
		target, ok := members[in.To]
		if !ok || !client.partners[in.To] {
			return
		}
		r.enqueue(target, frame{
			Type:       frameData,
			From:       client.id,
			Tag:        in.Tag,
			Payload:    in.Payload,
			Guaranteed: in.Guaranteed,
		}, in.Guaranteed)
	case frameBroadcast:
		out := frame{
			Type:       frameData,
			From:       client.id,
			Tag:        in.Tag,
			Payload:    in.Payload,
			Guaranteed: in.Guaranteed,
		}
		for peer := range client.partners {
			if target, ok := members[peer]; ok {
				r.enqueue(target, out, in.Guaranteed)
			}
		}
	default:
		r.enqueue(client, frame{Type: frameError, Code: http.StatusBadRequest, Message: "relay: unsupported frame " + in.Type}, true)
	}
}

func (r *Relay) leave(client *relayClient) {
	r.mu.Lock()
	members := r.rooms[client.key]
	delete(members, client.id)
	for peer := range client.partners {
		if partner, ok := members[peer]; ok {
			delete(partner.partners, client.id)
			r.enqueue(partner, frame{Type: frameClose, From: client.id}, true)
		}
	}
	client.partners = map[core.PeerID]bool{}
	if len(members) == 0 {
		delete(r.rooms, client.key)
	} else {
		r.announceLocked(client.key)
	}
	r.mu.Unlock()

	client.stop()
	_ = client.conn.Close()
}

// announceLocked sends every member the occupants of key minus itself.
func (r *Relay) announceLocked(key string) {
	members := r.rooms[key]
	for id, member := range members {
		occupants := make(map[core.PeerID]int64, len(members)-1)
		for otherID, other := range members {
			if otherID != id {
				occupants[otherID] = other.priority
			}
		}
		r.enqueue(member, frame{Type: frameOccupants, Occupants: occupants}, true)
	}
}

// enqueue hands a frame to the client's write pump without blocking, since
// callers hold r.mu. A full buffer drops best-effort frames. A client that
// cannot take a reliable frame is evicted; its read loop then runs leave.
func (r *Relay) enqueue(client *relayClient, out frame, reliable bool) {
	data, err := encodeFrame(out)
	if err != nil {
		r.warn("relay encode failed", "peer_id", client.id, "error", err)
		return
	}
	select {
	case <-client.done:
		return
	default:
	}
	select {
	case client.send <- data:
	default:
		if !reliable {
			r.debug("relay dropped frame", "peer_id", client.id, "type", out.Type)
			return
		}
		r.warn("relay client too slow, disconnecting", "peer_id", client.id, "type", out.Type)
		r.evict(client)
	}
}

func (r *Relay) evict(client *relayClient) {
	client.stop()
	if client.conn != nil {
		_ = client.conn.Close()
	}
}

func (r *Relay) writePump(client *relayClient) {
	for {
		select {
		case msg := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(r.writeTimeout))
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				client.stop()
				_ = client.conn.Close()
				return
			}
		case <-client.done:
			return
		}
	}
}

func (r *Relay) reject(conn *websocket.Conn, code int, message string) {
	if data, err := encodeFrame(frame{Type: frameError, Code: code, Message: message}); err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(r.writeTimeout))
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
	_ = conn.Close()
}

func (r *Relay) warn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}

func (r *Relay) debug(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}

func (c *relayClient) stop() {
	c.once.Do(func() { close(c.done) })
}
