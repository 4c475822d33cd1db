package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Session owns the peer set, channel state and tag subscriptions for one
// adapter and exposes them to the application.
type Session struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	adapter         Adapter
	adapterResolver AdapterResolver
	entitySink      EntitySink
	journal         PresenceJournal
	clock           func() time.Time

	subscriptions *SubscriptionRegistry
	channels      *ChannelStateTracker
	reconciler    PresenceReconciler
	router        *MessageRouter
	notifications *NotificationHub

	// reconcileMu serializes occupant passes, adapter side effects included.
	// It is never taken while mu is held.
	reconcileMu sync.Mutex

	mu         sync.Mutex
	state      SessionState
	localID    PeerID
	app        string
	room       string
	clients    OccupantSnapshot
	pending    []func()
	lastErr    error
	listenerOn bool
}

type SessionDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorFactory    ErrorFactory
	ErrorMapper     ErrorMapper
	ConfigProvider  ConfigProvider
	OptionsResolver OptionsResolver
	Adapter         Adapter
	AdapterResolver AdapterResolver
	EntitySink      EntitySink
	PresenceJournal PresenceJournal
}

func NewSession(cfg Config, opts ...Option) (*Session, error) {
	builder := defaultSessionBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("peerlink", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("peerlink"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.entitySink == nil {
		builder.entitySink = NopEntitySink{}
	}
	if builder.clock == nil {
		builder.clock = time.Now
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	adapter := builder.adapter
	if adapter == nil {
		if builder.adapterResolver == nil {
			return nil, mapBuildError(
				builder.errorMapper,
				notConfiguredError("core: adapter or adapter resolver is required"),
			)
		}
		adapter, err = builder.adapterResolver.Build(finalConfig.Transport, copyAnyMap(finalConfig.TransportOptions))
		if err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
		if adapter == nil {
			return nil, mapBuildError(
				builder.errorMapper,
				notConfiguredError(fmt.Sprintf("core: transport %q resolved to a nil adapter", finalConfig.Transport)),
			)
		}
	}

	subscriptions := NewSubscriptionRegistry(builder.entitySink)
	channels := NewChannelStateTracker()
	session := &Session{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorFactory:    builder.errorFactory,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		adapter:         adapter,
		adapterResolver: builder.adapterResolver,
		entitySink:      builder.entitySink,
		clock:           builder.clock,
		subscriptions:   subscriptions,
		channels:        channels,
		reconciler:      NewPresenceReconciler(adapter),
		router:          NewMessageRouter(adapter, channels, subscriptions, logger, builder.metricsRecorder),
		notifications:   NewNotificationHub(builder.listeners...),
		state:           StateUninitialized,
		app:             finalConfig.App,
		room:            finalConfig.Room,
		clients:         OccupantSnapshot{},
	}
	if finalConfig.Journal.Enabled && builder.journal != nil {
		session.journal = builder.journal
		session.notifications.Register(NewPresenceJournalListener(builder.journal, finalConfig.SessionName, logger))
	}
	return session, nil
}

func Setup(cfg Config, opts ...Option) (*Session, error) {
	return NewSession(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Session) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config.clone()
}

func (s *Session) Dependencies() SessionDependencies {
	if s == nil {
		return SessionDependencies{}
	}
	return SessionDependencies{
		Logger:          s.logger,
		LoggerProvider:  s.loggerProvider,
		MetricsRecorder: s.metricsRecorder,
		ErrorFactory:    s.errorFactory,
		ErrorMapper:     s.errorMapper,
		ConfigProvider:  s.configProvider,
		OptionsResolver: s.optionsResolver,
		Adapter:         s.adapter,
		AdapterResolver: s.adapterResolver,
		EntitySink:      s.entitySink,
		PresenceJournal: s.journal,
	}
}

// Connect configures the adapter and starts the login. The outcome arrives
// later through the adapter's connect listeners; OnConnect observes success.
func (s *Session) Connect(ctx context.Context, req ConnectRequest) (err error) {
	if s == nil {
		return notConfiguredError("core: session is nil")
	}
	startedAt := time.Now().UTC()
	serverAddress := firstNonBlank(req.ServerAddress, s.config.ServerAddress)
	app := firstNonBlank(req.App, s.config.App)
	room := firstNonBlank(req.Room, s.config.Room)
	media := s.config.Media
	if req.Media != nil {
		media = *req.Media
	}
	fields := map[string]any{
		"transport":      s.adapter.Kind(),
		"server_address": serverAddress,
		"app":            app,
		"room":           room,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "connect", err, fields)
	}()

	if app == "" {
		return s.mapError(badInputError("core: app is required"))
	}
	if room == "" {
		return s.mapError(badInputError("core: room is required"))
	}

	s.mu.Lock()
	previous := s.state
	switch previous {
	case StateConnected:
		s.mu.Unlock()
		return s.mapError(conflictError("core: session is already connected"))
	case StateClosed:
		s.mu.Unlock()
		return s.mapError(conflictError("core: session is closed"))
	}
	s.state = StateConnecting
	s.lastErr = nil
	s.app = app
	s.room = room
	wire := !s.listenerOn
	s.listenerOn = true
	s.mu.Unlock()

	s.adapter.SetServerAddress(serverAddress)
	s.adapter.SetApp(app)
	s.adapter.SetRoom(room)
	s.adapter.SetMediaOptions(media)
	if wire {
		s.wireAdapter()
	}

	if connectErr := s.adapter.Connect(ctx); connectErr != nil {
		failure := wrapConnectFailure(connectErr)
		s.mu.Lock()
		if s.state == StateConnecting {
			s.state = previous
		}
		s.lastErr = failure
		s.mu.Unlock()
		return s.mapError(failure)
	}
	return nil
}

func (s *Session) wireAdapter() {
	s.adapter.SetServerConnectListeners(s.handleConnectSuccess, s.handleConnectFailure)
	s.adapter.SetDataChannelListeners(s.handleChannelOpen, s.handleChannelClose, s.handleMessage)
	s.adapter.SetRoomOccupantListener(s.handleOccupants)
}

func (s *Session) handleConnectSuccess(localID PeerID) {
	ctx := context.Background()
	s.mu.Lock()
	if s.state == StateConnected || s.state == StateClosed {
		state := s.state
		s.mu.Unlock()
		s.logWarn(ctx, "connect success ignored", map[string]any{
			"peer_id": string(localID),
			"state":   string(state),
		})
		return
	}
	s.state = StateConnected
	s.localID = localID
	s.lastErr = nil
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	s.logInfo(ctx, "connected", map[string]any{
		"event_type": "connect_success",
		"peer_id":    string(localID),
		"app":        s.App(),
		"room":       s.Room(),
	})
	s.publish(ctx, EventConnected, localID)
	for _, callback := range pending {
		s.runCallback(ctx, callback)
	}
}

func (s *Session) handleConnectFailure(code int, message string) {
	ctx := context.Background()
	failure := ConnectFailure(code, message)
	s.mu.Lock()
	s.lastErr = failure
	state := s.state
	s.mu.Unlock()
	s.recordCounter(ctx, metricConnectFailure, 1, map[string]string{
		"transport": s.adapter.Kind(),
	})
	s.logError(ctx, "connect failed", map[string]any{
		"event_type":      "connect_failure",
		"adapter_code":    code,
		"adapter_message": message,
		"state":           string(state),
	})
}

// handleOccupants runs one reconciliation pass. Passes are serialized end to
// end, so a later pass never reaches the adapter before an earlier one has
// finished closing and opening channels.
func (s *Session) handleOccupants(snapshot OccupantSnapshot) {
	next := snapshot.Clone()
	s.reconcileMu.Lock()
	defer s.reconcileMu.Unlock()

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	previous := s.clients
	s.clients = next
	s.mu.Unlock()

	ctx := context.Background()
	result := s.reconciler.Reconcile(previous, next)
	for _, id := range result.Departed {
		if err := s.adapter.CloseChannel(id); err != nil {
			s.logError(ctx, "close channel failed", map[string]any{"peer_id": string(id), "error": err.Error()})
		}
		s.publish(ctx, EventPeerDisconnected, id)
	}
	for _, id := range result.Arrived {
		if err := s.adapter.OpenChannel(id); err != nil {
			s.logError(ctx, "open channel failed", map[string]any{"peer_id": string(id), "error": err.Error()})
		}
		s.publish(ctx, EventPeerConnected, id)
	}
	if !result.Empty() {
		s.logDebug(ctx, "occupants reconciled", map[string]any{
			"departed":  len(result.Departed),
			"arrived":   len(result.Arrived),
			"occupants": len(next),
		})
	}
}

func (s *Session) handleChannelOpen(id PeerID) {
	if s.State() == StateClosed {
		return
	}
	s.channels.Open(id)
	s.entitySink.RequestFullSync()
	s.publish(context.Background(), EventChannelOpened, id)
}

func (s *Session) handleChannelClose(id PeerID) {
	s.channels.Close(id)
	s.entitySink.RemoveEntitiesFromPeer(id)
	s.publish(context.Background(), EventChannelClosed, id)
}

func (s *Session) handleMessage(from PeerID, tag string, payload []byte) {
	if s.State() == StateClosed {
		return
	}
	_ = s.router.Receive(context.Background(), from, tag, payload)
}

// OnConnect runs callback once the session is connected: immediately when it
// already is, otherwise on the connect success transition.
func (s *Session) OnConnect(callback func()) {
	if s == nil || callback == nil {
		return
	}
	s.mu.Lock()
	switch s.state {
	case StateConnected:
		s.mu.Unlock()
		s.runCallback(context.Background(), callback)
		return
	case StateClosed:
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, callback)
	s.mu.Unlock()
}

func (s *Session) runCallback(ctx context.Context, callback func()) {
	defer func() {
		if recovered := recover(); recovered != nil {
			s.logError(ctx, "connect callback panicked", map[string]any{"panic": fmt.Sprint(recovered)})
		}
	}()
	callback()
}

func (s *Session) Subscribe(tag string, handler MessageHandler) (err error) {
	if s == nil {
		return notConfiguredError("core: session is nil")
	}
	ctx := context.Background()
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "subscribe", err, map[string]any{"tag": tag})
	}()
	return s.mapError(s.subscriptions.Subscribe(tag, handler))
}

func (s *Session) Unsubscribe(tag string) (err error) {
	if s == nil {
		return notConfiguredError("core: session is nil")
	}
	ctx := context.Background()
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "unsubscribe", err, map[string]any{"tag": tag})
	}()
	return s.mapError(s.subscriptions.Unsubscribe(tag))
}

func (s *Session) Send(ctx context.Context, to PeerID, tag string, payload []byte) error {
	return s.send(ctx, to, tag, payload, false)
}

func (s *Session) SendGuaranteed(ctx context.Context, to PeerID, tag string, payload []byte) error {
	return s.send(ctx, to, tag, payload, true)
}

func (s *Session) send(ctx context.Context, to PeerID, tag string, payload []byte, guaranteed bool) error {
	if s == nil {
		return notConfiguredError("core: session is nil")
	}
	if err := s.router.Send(ctx, to, tag, payload, guaranteed); err != nil {
		mapped := s.mapError(err)
		s.logError(ctx, "send failed", map[string]any{
			"peer_id": string(to),
			"tag":     tag,
			"mode":    deliveryMode(guaranteed),
			"error":   mapped.Error(),
		})
		return mapped
	}
	return nil
}

func (s *Session) Broadcast(ctx context.Context, tag string, payload []byte) error {
	return s.broadcast(ctx, tag, payload, false)
}

func (s *Session) BroadcastGuaranteed(ctx context.Context, tag string, payload []byte) error {
	return s.broadcast(ctx, tag, payload, true)
}

func (s *Session) broadcast(ctx context.Context, tag string, payload []byte, guaranteed bool) error {
	if s == nil {
		return notConfiguredError("core: session is nil")
	}
	if err := s.router.Broadcast(ctx, tag, payload, guaranteed); err != nil {
		mapped := s.mapError(err)
		s.logError(ctx, "broadcast failed", map[string]any{
			"tag":   tag,
			"mode":  deliveryMode(guaranteed),
			"error": mapped.Error(),
		})
		return mapped
	}
	return nil
}

func (s *Session) AddListener(listener Listener) {
	if s == nil {
		return
	}
	s.notifications.Register(listener)
}

// Close disconnects the adapter and moves the session to its terminal state.
// Pending OnConnect callbacks are dropped. Closing twice is a no-op.
func (s *Session) Close() (err error) {
	if s == nil {
		return nil
	}
	ctx := context.Background()
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	s.pending = nil
	s.mu.Unlock()

	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "close", err, map[string]any{"transport": s.adapter.Kind()})
	}()
	if disconnectErr := s.adapter.Disconnect(); disconnectErr != nil {
		return s.mapError(operationError(disconnectErr, "core: adapter disconnect failed"))
	}
	return nil
}

func (s *Session) ConnectedClients() OccupantSnapshot {
	if s == nil {
		return OccupantSnapshot{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients.Clone()
}

func (s *Session) IsConnected() bool {
	return s.State() == StateConnected
}

// IsSelf reports whether id is the local peer id assigned at login. The id
// stays assigned after Close.
func (s *Session) IsSelf(id PeerID) bool {
	if s == nil || strings.TrimSpace(string(id)) == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localID == id
}

func (s *Session) LocalID() PeerID {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localID
}

func (s *Session) State() SessionState {
	if s == nil {
		return StateUninitialized
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) App() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.app
}

func (s *Session) Room() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *Session) IsActive(id PeerID) bool {
	if s == nil {
		return false
	}
	return s.channels.IsActive(id)
}

func (s *Session) ActiveChannels() []PeerID {
	if s == nil {
		return nil
	}
	return s.channels.Active()
}

func (s *Session) Tags() []string {
	if s == nil {
		return nil
	}
	return s.subscriptions.Tags()
}

// LastConnectError is the most recent login failure, cleared on success.
func (s *Session) LastConnectError() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Session) Status() ConnectionStatus {
	if s == nil {
		return ConnectionStatus{State: StateUninitialized}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return ConnectionStatus{
		State:     s.state,
		Connected: s.state == StateConnected,
		LocalID:   s.localID,
		App:       s.app,
		Room:      s.room,
		LastError: s.lastErr,
	}
}

func (s *Session) publish(ctx context.Context, eventType EventType, peer PeerID) {
	s.mu.Lock()
	event := Event{
		Type:       eventType,
		PeerID:     peer,
		LocalID:    s.localID,
		App:        s.app,
		Room:       s.room,
		OccurredAt: s.clock().UTC(),
	}
	s.mu.Unlock()
	for _, failure := range s.notifications.Publish(ctx, event) {
		s.logError(ctx, "listener failed", map[string]any{
			"event_type": string(eventType),
			"peer_id":    string(peer),
			"error":      failure.Error(),
		})
	}
}

func (s *Session) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
