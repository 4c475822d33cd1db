package transport

import (
	"strings"
	"sync"

	"github.com/goliatone/go-peerlink/core"
)

// listenerSet holds the adapter configuration and the session callbacks. It
// is embedded by every adapter in this package.
type listenerSet struct {
	mu sync.RWMutex

	serverAddress string
	app           string
	room          string
	media         core.MediaOptions

	onSuccess   core.ConnectSuccessFunc
	onFailure   core.ConnectFailureFunc
	onOpen      core.ChannelFunc
	onClose     core.ChannelFunc
	onMessage   core.MessageFunc
	onOccupants core.OccupantsFunc
}

type callbacks struct {
	onSuccess   core.ConnectSuccessFunc
	onFailure   core.ConnectFailureFunc
	onOpen      core.ChannelFunc
	onClose     core.ChannelFunc
	onMessage   core.MessageFunc
	onOccupants core.OccupantsFunc
}

type settings struct {
	serverAddress string
	app           string
	room          string
	media         core.MediaOptions
}

func (l *listenerSet) SetServerAddress(address string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.serverAddress = strings.TrimSpace(address)
}

func (l *listenerSet) SetApp(app string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.app = strings.TrimSpace(app)
}

func (l *listenerSet) SetRoom(room string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.room = strings.TrimSpace(room)
}

func (l *listenerSet) SetMediaOptions(options core.MediaOptions) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.media = options
}

func (l *listenerSet) SetServerConnectListeners(onSuccess core.ConnectSuccessFunc, onFailure core.ConnectFailureFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onSuccess = onSuccess
	l.onFailure = onFailure
}

func (l *listenerSet) SetDataChannelListeners(onOpen core.ChannelFunc, onClose core.ChannelFunc, onMessage core.MessageFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onOpen = onOpen
	l.onClose = onClose
	l.onMessage = onMessage
}

func (l *listenerSet) SetRoomOccupantListener(onOccupants core.OccupantsFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onOccupants = onOccupants
}

func (l *listenerSet) callbacks() callbacks {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return callbacks{
		onSuccess:   l.onSuccess,
		onFailure:   l.onFailure,
		onOpen:      l.onOpen,
		onClose:     l.onClose,
		onMessage:   l.onMessage,
		onOccupants: l.onOccupants,
	}
}

func (l *listenerSet) settings() settings {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return settings{
		serverAddress: l.serverAddress,
		app:           l.app,
		room:          l.room,
		media:         l.media,
	}
}

func (c callbacks) success(id core.PeerID) {
	if c.onSuccess != nil {
		c.onSuccess(id)
	}
}

func (c callbacks) failure(code int, message string) {
	if c.onFailure != nil {
		c.onFailure(code, message)
	}
}

func (c callbacks) open(peer core.PeerID) {
	if c.onOpen != nil {
		c.onOpen(peer)
	}
}

func (c callbacks) close(peer core.PeerID) {
	if c.onClose != nil {
		c.onClose(peer)
	}
}

func (c callbacks) message(from core.PeerID, tag string, payload []byte) {
	if c.onMessage != nil {
		c.onMessage(from, tag, payload)
	}
}

func (c callbacks) occupants(snapshot core.OccupantSnapshot) {
	if c.onOccupants != nil {
		c.onOccupants(snapshot)
	}
}

// callbackQueue runs queued functions one at a time on a dedicated
// goroutine, preserving enqueue order. Push never blocks.
type callbackQueue struct {
	mu      sync.Mutex
	items   []func()
	signal  chan struct{}
	stopped bool
	done    chan struct{}
}

func newCallbackQueue() *callbackQueue {
	q := &callbackQueue{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *callbackQueue) push(fn func()) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, fn)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// stop lets already queued callbacks drain, then ends the worker.
func (q *callbackQueue) stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *callbackQueue) isStopped() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stopped
}

func (q *callbackQueue) run() {
	defer close(q.done)
	for range q.signal {
		for {
			q.mu.Lock()
			if len(q.items) == 0 {
				stopped := q.stopped
				q.mu.Unlock()
				if stopped {
					return
				}
				break
			}
			fn := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			fn()
		}
	}
}

func copyPayload(payload []byte) []byte {
	if payload == nil {
		return nil
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out
}
