package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

type sentMessage struct {
	to         PeerID
	tag        string
	payload    []byte
	guaranteed bool
	broadcast  bool
}

// fakeAdapter records every call and lets tests drive the registered
// listeners directly.
type fakeAdapter struct {
	mu sync.Mutex

	serverAddress string
	app           string
	room          string
	media         MediaOptions

	onSuccess   ConnectSuccessFunc
	onFailure   ConnectFailureFunc
	onOpen      ChannelFunc
	onClose     ChannelFunc
	onMessage   MessageFunc
	onOccupants OccupantsFunc

	connectCalls    int
	connectErr      error
	connectHook     func()
	disconnectCalls int
	opened          []PeerID
	closed          []PeerID
	channelCalls    []string
	closeGate       chan struct{}
	closeEntered    chan struct{}
	echoChannels    bool
	sent            []sentMessage
	sendErr         error
	connected       map[PeerID]bool
	initiate        func(OccupantInfo) bool
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{connected: map[PeerID]bool{}}
}

func (a *fakeAdapter) Kind() string { return "fake" }

func (a *fakeAdapter) SetServerAddress(address string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.serverAddress = address
}

func (a *fakeAdapter) SetApp(app string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.app = app
}

func (a *fakeAdapter) SetRoom(room string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.room = room
}

func (a *fakeAdapter) SetMediaOptions(options MediaOptions) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.media = options
}

func (a *fakeAdapter) SetServerConnectListeners(onSuccess ConnectSuccessFunc, onFailure ConnectFailureFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onSuccess = onSuccess
	a.onFailure = onFailure
}

func (a *fakeAdapter) SetDataChannelListeners(onOpen ChannelFunc, onClose ChannelFunc, onMessage MessageFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onOpen = onOpen
	a.onClose = onClose
	a.onMessage = onMessage
}

func (a *fakeAdapter) SetRoomOccupantListener(onOccupants OccupantsFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onOccupants = onOccupants
}

func (a *fakeAdapter) Connect(context.Context) error {
	a.mu.Lock()
	a.connectCalls++
	err := a.connectErr
	hook := a.connectHook
	a.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

func (a *fakeAdapter) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disconnectCalls++
	return nil
}

// OpenChannel records the call and, with echoChannels set, reports the
// channel open back to the session the way a real transport would.
func (a *fakeAdapter) OpenChannel(peer PeerID) error {
	a.mu.Lock()
	a.opened = append(a.opened, peer)
	a.channelCalls = append(a.channelCalls, "open:"+string(peer))
	echo := a.echoChannels
	callback := a.onOpen
	a.mu.Unlock()
	if echo && callback != nil {
		callback(peer)
	}
	return nil
}

// CloseChannel blocks on closeGate when one is set, signalling closeEntered
// first.
func (a *fakeAdapter) CloseChannel(peer PeerID) error {
	a.mu.Lock()
	gate := a.closeGate
	entered := a.closeEntered
	a.mu.Unlock()
	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		<-gate
	}

	a.mu.Lock()
	a.closed = append(a.closed, peer)
	a.channelCalls = append(a.channelCalls, "close:"+string(peer))
	echo := a.echoChannels
	callback := a.onClose
	a.mu.Unlock()
	if echo && callback != nil {
		callback(peer)
	}
	return nil
}

func (a *fakeAdapter) ShouldInitiate(info OccupantInfo) bool {
	a.mu.Lock()
	initiate := a.initiate
	a.mu.Unlock()
	if initiate == nil {
		return true
	}
	return initiate(info)
}

func (a *fakeAdapter) ConnectStatus(peer PeerID) ConnectStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.connected[peer] {
		return ConnectStatusConnected
	}
	return ConnectStatusNotConnected
}

func (a *fakeAdapter) Send(to PeerID, tag string, payload []byte) error {
	return a.record(sentMessage{to: to, tag: tag, payload: payload})
}

func (a *fakeAdapter) SendGuaranteed(to PeerID, tag string, payload []byte) error {
	return a.record(sentMessage{to: to, tag: tag, payload: payload, guaranteed: true})
}

func (a *fakeAdapter) Broadcast(tag string, payload []byte) error {
	return a.record(sentMessage{tag: tag, payload: payload, broadcast: true})
}

func (a *fakeAdapter) BroadcastGuaranteed(tag string, payload []byte) error {
	return a.record(sentMessage{tag: tag, payload: payload, guaranteed: true, broadcast: true})
}

func (a *fakeAdapter) record(msg sentMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sendErr != nil {
		return a.sendErr
	}
	a.sent = append(a.sent, msg)
	return nil
}

func (a *fakeAdapter) succeed(id PeerID) {
	a.mu.Lock()
	callback := a.onSuccess
	a.mu.Unlock()
	callback(id)
}

func (a *fakeAdapter) fail(code int, message string) {
	a.mu.Lock()
	callback := a.onFailure
	a.mu.Unlock()
	callback(code, message)
}

func (a *fakeAdapter) occupants(snapshot OccupantSnapshot) {
	a.mu.Lock()
	callback := a.onOccupants
	a.mu.Unlock()
	callback(snapshot)
}

func (a *fakeAdapter) channelOpen(id PeerID) {
	a.mu.Lock()
	callback := a.onOpen
	a.mu.Unlock()
	callback(id)
}

func (a *fakeAdapter) channelClose(id PeerID) {
	a.mu.Lock()
	callback := a.onClose
	a.mu.Unlock()
	callback(id)
}

func (a *fakeAdapter) message(from PeerID, tag string, payload []byte) {
	a.mu.Lock()
	callback := a.onMessage
	a.mu.Unlock()
	callback(from, tag, payload)
}

func (a *fakeAdapter) sentMessages() []sentMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]sentMessage(nil), a.sent...)
}

func (a *fakeAdapter) openedPeers() []PeerID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]PeerID(nil), a.opened...)
}

func (a *fakeAdapter) channelCallLog() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.channelCalls...)
}

func (a *fakeAdapter) closedPeers() []PeerID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]PeerID(nil), a.closed...)
}

type sinkCall struct {
	method  string
	peer    PeerID
	payload string
}

type recordingSink struct {
	mu    sync.Mutex
	calls []sinkCall
}

func (s *recordingSink) ApplyRemoteUpdate(from PeerID, payload []byte) {
	s.add(sinkCall{method: "apply", peer: from, payload: string(payload)})
}

func (s *recordingSink) RemoveRemoteEntity(from PeerID, payload []byte) {
	s.add(sinkCall{method: "remove", peer: from, payload: string(payload)})
}

func (s *recordingSink) RequestFullSync() {
	s.add(sinkCall{method: "full_sync"})
}

func (s *recordingSink) RemoveEntitiesFromPeer(peer PeerID) {
	s.add(sinkCall{method: "remove_peer", peer: peer})
}

func (s *recordingSink) add(call sinkCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *recordingSink) snapshot() []sinkCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sinkCall(nil), s.calls...)
}

type recordingListener struct {
	mu     sync.Mutex
	events []Event
}

func (l *recordingListener) OnEvent(_ context.Context, event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *recordingListener) types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventType, 0, len(l.events))
	for _, event := range l.events {
		out = append(out, event.Type)
	}
	return out
}

func (l *recordingListener) count(eventType EventType, peer PeerID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, event := range l.events {
		if event.Type == eventType && event.PeerID == peer {
			total++
		}
	}
	return total
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.App = "demo"
	cfg.Room = "lobby"
	return cfg
}

func newTestSession(t *testing.T, adapter *fakeAdapter, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithAdapter(adapter), WithLogger(stubLogger{})}, opts...)
	session, err := NewSession(testConfig(), opts...)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return session
}

func connectTestSession(t *testing.T, session *Session, adapter *fakeAdapter, localID PeerID) {
	t.Helper()
	if err := session.Connect(context.Background(), ConnectRequest{}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	adapter.succeed(localID)
	if !session.IsConnected() {
		t.Fatalf("expected session connected after success callback")
	}
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
