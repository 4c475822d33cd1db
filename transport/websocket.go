package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-peerlink/core"
	"github.com/gorilla/websocket"
)

const (
	defaultPingInterval     = 30 * time.Second
	defaultPongTimeout      = 60 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
)

type WebsocketConfig struct {
	PingInterval     time.Duration
	PongTimeout      time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	Header           http.Header
}

func (c WebsocketConfig) withDefaults() WebsocketConfig {
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = defaultPongTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	return c
}

// WebsocketFactory reads ping_interval, pong_timeout, write_timeout and
// handshake_timeout as durations or duration strings.
func WebsocketFactory() AdapterFactory {
	return func(config map[string]any) (core.Adapter, error) {
		cfg := WebsocketConfig{}
		var err error
		if cfg.PingInterval, err = durationOption(config, "ping_interval"); err != nil {
			return nil, err
		}
		if cfg.PongTimeout, err = durationOption(config, "pong_timeout"); err != nil {
			return nil, err
		}
		if cfg.WriteTimeout, err = durationOption(config, "write_timeout"); err != nil {
			return nil, err
		}
		if cfg.HandshakeTimeout, err = durationOption(config, "handshake_timeout"); err != nil {
			return nil, err
		}
		return NewWebsocketAdapter(cfg), nil
	}
}

// WebsocketAdapter talks to a Relay. Listener callbacks run on a dedicated
// goroutine in frame order.
type WebsocketAdapter struct {
	listenerSet
	config WebsocketConfig
	dialer *websocket.Dialer

	mu       sync.RWMutex
	conn     *websocket.Conn
	id       core.PeerID
	priority int64
	open     map[core.PeerID]bool
	dialing  bool
	closing  bool
	queue    *callbackQueue
	done     chan struct{}

	writeMu sync.Mutex
}

func NewWebsocketAdapter(config WebsocketConfig) *WebsocketAdapter {
	config = config.withDefaults()
	return &WebsocketAdapter{
		config: config,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
		},
		open: map[core.PeerID]bool{},
	}
}

func (a *WebsocketAdapter) Kind() string { return KindWebsocket }

// Connect dials the relay and sends the join frame. Dial and join failures
// are reported to the failure listener, not returned.
func (a *WebsocketAdapter) Connect(ctx context.Context) error {
	if a == nil {
		return nilAdapterError()
	}
	cfg := a.settings()
	if cfg.serverAddress == "" {
		return transportError(
			"websocket: server address is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"transport": KindWebsocket},
		)
	}

	a.mu.Lock()
	if a.conn != nil || a.dialing {
		a.mu.Unlock()
		return nil
	}
	a.dialing = true
	a.closing = false
	if a.queue == nil || a.queue.isStopped() {
		a.queue = newCallbackQueue()
	}
	queue := a.queue
	a.mu.Unlock()
	cb := a.callbacks()

	if ctx == nil {
		ctx = context.Background()
	}
	conn, resp, err := a.dialer.DialContext(ctx, cfg.serverAddress, a.config.Header)
	if err != nil {
		a.mu.Lock()
		a.dialing = false
		a.mu.Unlock()
		code := 0
		if resp != nil {
			code = resp.StatusCode
		}
		message := err.Error()
		queue.push(func() { cb.failure(code, message) })
		return nil
	}

	a.mu.Lock()
	a.dialing = false
	if a.closing {
		// Disconnect arrived while dialing.
		a.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	a.conn = conn
	a.id = ""
	a.open = map[core.PeerID]bool{}
	a.done = make(chan struct{})
	done := a.done
	a.mu.Unlock()

	_ = conn.SetReadDeadline(time.Now().Add(a.config.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(a.config.PongTimeout))
	})

	if err := a.write(frame{Type: frameJoin, App: cfg.app, Room: cfg.room}); err != nil {
		a.teardown(conn)
		message := err.Error()
		queue.push(func() { cb.failure(0, message) })
		return nil
	}

	go a.readLoop(conn, queue)
	go a.pingLoop(conn, done)
	return nil
}

func (a *WebsocketAdapter) Disconnect() error {
	if a == nil {
		return nilAdapterError()
	}
	a.mu.Lock()
	conn := a.conn
	if conn == nil {
		if a.dialing {
			a.closing = true
		}
		a.mu.Unlock()
		return nil
	}
	a.closing = true
	a.mu.Unlock()

	a.writeMu.Lock()
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(a.config.WriteTimeout),
	)
	a.writeMu.Unlock()
	a.teardown(conn)
	return nil
}

func (a *WebsocketAdapter) teardown(conn *websocket.Conn) {
	a.mu.Lock()
	if a.conn == conn {
		a.conn = nil
		a.open = map[core.PeerID]bool{}
		if a.done != nil {
			close(a.done)
			a.done = nil
		}
	}
	a.mu.Unlock()
	_ = conn.Close()
}

func (a *WebsocketAdapter) readLoop(conn *websocket.Conn, queue *callbackQueue) {
	cb := a.callbacks()
	welcomed := false
	for {
		var in frame
		if err := conn.ReadJSON(&in); err != nil {
			a.mu.RLock()
			closing := a.closing
			partners := make([]core.PeerID, 0, len(a.open))
			for peer := range a.open {
				partners = append(partners, peer)
			}
			a.mu.RUnlock()
			a.teardown(conn)
			switch {
			case !welcomed && !closing:
				message := err.Error()
				queue.push(func() { cb.failure(0, message) })
			case !closing:
				for _, peer := range partners {
					queue.push(func() { cb.close(peer) })
				}
			}
			queue.stop()
			return
		}

		switch in.Type {
		case frameWelcome:
			welcomed = true
			a.mu.Lock()
			a.id = in.ID
			a.priority = in.Priority
			a.mu.Unlock()
			id := in.ID
			queue.push(func() { cb.success(id) })
		case frameError:
			code, message := in.Code, in.Message
			if !welcomed {
				queue.push(func() { cb.failure(code, message) })
				a.teardown(conn)
				queue.stop()
				return
			}
		case frameOccupants:
			snapshot := in.snapshot()
			queue.push(func() { cb.occupants(snapshot) })
		case frameOpen:
			peer := in.From
			a.mu.Lock()
			a.open[peer] = true
			a.mu.Unlock()
			queue.push(func() { cb.open(peer) })
		case frameClose:
			peer := in.From
			a.mu.Lock()
			delete(a.open, peer)
			a.mu.Unlock()
			queue.push(func() { cb.close(peer) })
		case frameData:
			from, tag, payload := in.From, in.Tag, in.Payload
			queue.push(func() { cb.message(from, tag, payload) })
		}
	}
}

func (a *WebsocketAdapter) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(a.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			a.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(a.config.WriteTimeout))
			a.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (a *WebsocketAdapter) write(out frame) error {
	a.mu.RLock()
	conn := a.conn
	a.mu.RUnlock()
	if conn == nil {
		return notConnectedError(KindWebsocket)
	}
	data, err := encodeFrame(out)
	if err != nil {
		return transportWrapError(err, goerrors.CategoryInternal, "websocket: encode frame", http.StatusInternalServerError, nil)
	}
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(a.config.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return transportWrapError(err, goerrors.CategoryOperation, "websocket: write frame", http.StatusBadGateway, map[string]any{"type": out.Type})
	}
	return nil
}

func (a *WebsocketAdapter) OpenChannel(peer core.PeerID) error {
	if a == nil {
		return nilAdapterError()
	}
	if a.ConnectStatus(peer) == core.ConnectStatusConnected {
		return nil
	}
	return a.write(frame{Type: frameOpen, To: peer})
}

func (a *WebsocketAdapter) CloseChannel(peer core.PeerID) error {
	if a == nil {
		return nilAdapterError()
	}
	if a.ConnectStatus(peer) != core.ConnectStatusConnected {
		return nil
	}
	return a.write(frame{Type: frameClose, To: peer})
}

// ShouldInitiate lets the earlier joiner open the channel.
func (a *WebsocketAdapter) ShouldInitiate(info core.OccupantInfo) bool {
	if a == nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.id != "" && a.priority < info.Priority
}

func (a *WebsocketAdapter) ConnectStatus(peer core.PeerID) core.ConnectStatus {
	if a == nil {
		return core.ConnectStatusNotConnected
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.open[peer] {
		return core.ConnectStatusConnected
	}
	return core.ConnectStatusNotConnected
}

func (a *WebsocketAdapter) Send(to core.PeerID, tag string, payload []byte) error {
	return a.sendTo(to, tag, payload, false)
}

func (a *WebsocketAdapter) SendGuaranteed(to core.PeerID, tag string, payload []byte) error {
	return a.sendTo(to, tag, payload, true)
}

func (a *WebsocketAdapter) Broadcast(tag string, payload []byte) error {
	if a == nil {
		return nilAdapterError()
	}
	return a.write(frame{Type: frameBroadcast, Tag: tag, Payload: payload})
}

func (a *WebsocketAdapter) BroadcastGuaranteed(tag string, payload []byte) error {
	if a == nil {
		return nilAdapterError()
	}
	return a.write(frame{Type: frameBroadcast, Tag: tag, Payload: payload, Guaranteed: true})
}

func (a *WebsocketAdapter) sendTo(to core.PeerID, tag string, payload []byte, guaranteed bool) error {
	if a == nil {
		return nilAdapterError()
	}
	if a.ConnectStatus(to) != core.ConnectStatusConnected {
		return channelClosedError(KindWebsocket, to)
	}
	return a.write(frame{Type: frameData, To: to, Tag: tag, Payload: payload, Guaranteed: guaranteed})
}

func durationOption(config map[string]any, key string) (time.Duration, error) {
	value, ok := config[key]
	if !ok || value == nil {
		return 0, nil
	}
	switch typed := value.(type) {
	case time.Duration:
		return typed, nil
	case int:
		return time.Duration(typed) * time.Millisecond, nil
	case int64:
		return time.Duration(typed) * time.Millisecond, nil
	case float64:
		return time.Duration(typed) * time.Millisecond, nil
	case string:
		parsed, err := time.ParseDuration(typed)
		if err != nil {
			return 0, transportWrapError(err, goerrors.CategoryBadInput, "websocket: invalid "+key, http.StatusBadRequest, map[string]any{key: typed})
		}
		return parsed, nil
	default:
		return 0, transportError("websocket: invalid "+key, goerrors.CategoryBadInput, http.StatusBadRequest, map[string]any{key: value})
	}
}

var (
	_ core.Adapter = (*WebsocketAdapter)(nil)
	_ http.Handler = (*Relay)(nil)
)
