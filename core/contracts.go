package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type PeerID string

func (id PeerID) String() string { return string(id) }

// OccupantInfo is the per-peer metadata an adapter reports in a room snapshot.
// Priority is the adapter-defined tie-break signal used by ShouldInitiate.
type OccupantInfo struct {
	Priority int64
	Metadata map[string]any
}

// OccupantSnapshot is the complete room membership as seen by the adapter,
// excluding the local peer. Each snapshot replaces the previous one wholesale.
type OccupantSnapshot map[PeerID]OccupantInfo

func (s OccupantSnapshot) Has(id PeerID) bool {
	_, ok := s[id]
	return ok
}

func (s OccupantSnapshot) Clone() OccupantSnapshot {
	out := make(OccupantSnapshot, len(s))
	for id, info := range s {
		out[id] = OccupantInfo{
			Priority: info.Priority,
			Metadata: copyAnyMap(info.Metadata),
		}
	}
	return out
}

type ConnectStatus string

const (
	ConnectStatusConnected    ConnectStatus = "connected"
	ConnectStatusNotConnected ConnectStatus = "not_connected"
)

type MediaOptions struct {
	Audio       bool `koanf:"audio" mapstructure:"audio" yaml:"audio"`
	Video       bool `koanf:"video" mapstructure:"video" yaml:"video"`
	DataChannel bool `koanf:"data_channel" mapstructure:"data_channel" yaml:"data_channel"`
}

type (
	ConnectSuccessFunc func(localID PeerID)
	ConnectFailureFunc func(code int, message string)
	ChannelFunc        func(peer PeerID)
	MessageFunc        func(from PeerID, tag string, payload []byte)
	OccupantsFunc      func(snapshot OccupantSnapshot)
)

// Adapter is the transport capability a Session drives. Calls are fire and
// forget: results arrive later through the registered listeners. Adapters may
// invoke listeners from any goroutine, including synchronously from inside a
// method call.
type Adapter interface {
	Kind() string

	SetServerAddress(address string)
	SetApp(app string)
	SetRoom(room string)
	SetMediaOptions(options MediaOptions)

	SetServerConnectListeners(onSuccess ConnectSuccessFunc, onFailure ConnectFailureFunc)
	SetDataChannelListeners(onOpen ChannelFunc, onClose ChannelFunc, onMessage MessageFunc)
	SetRoomOccupantListener(onOccupants OccupantsFunc)

	Connect(ctx context.Context) error
	Disconnect() error

	OpenChannel(peer PeerID) error
	CloseChannel(peer PeerID) error
	ShouldInitiate(info OccupantInfo) bool
	ConnectStatus(peer PeerID) ConnectStatus

	Send(to PeerID, tag string, payload []byte) error
	SendGuaranteed(to PeerID, tag string, payload []byte) error
	Broadcast(tag string, payload []byte) error
	BroadcastGuaranteed(tag string, payload []byte) error
}

// AdapterResolver builds adapters by transport kind.
type AdapterResolver interface {
	Build(kind string, config map[string]any) (Adapter, error)
}

// EntitySink receives the entity synchronization traffic the session handles
// internally.
type EntitySink interface {
	ApplyRemoteUpdate(from PeerID, payload []byte)
	RemoveRemoteEntity(from PeerID, payload []byte)
	RequestFullSync()
	RemoveEntitiesFromPeer(peer PeerID)
}

type MessageHandler func(from PeerID, tag string, payload []byte)

type EventType string

const (
	EventConnected        EventType = "connected"
	EventPeerConnected    EventType = "peer.connected"
	EventPeerDisconnected EventType = "peer.disconnected"
	EventChannelOpened    EventType = "channel.opened"
	EventChannelClosed    EventType = "channel.closed"
)

type Event struct {
	Type       EventType
	PeerID     PeerID
	LocalID    PeerID
	App        string
	Room       string
	OccurredAt time.Time
}

type Listener interface {
	OnEvent(ctx context.Context, event Event)
}

type ListenerFunc func(ctx context.Context, event Event)

func (f ListenerFunc) OnEvent(ctx context.Context, event Event) {
	if f != nil {
		f(ctx, event)
	}
}

type ConnectRequest struct {
	ServerAddress string
	App           string
	Room          string
	Media         *MediaOptions
}

type SessionState string

const (
	StateUninitialized SessionState = "uninitialized"
	StateConnecting    SessionState = "connecting"
	StateConnected     SessionState = "connected"
	StateClosed        SessionState = "closed"
)

type ConnectionStatus struct {
	State     SessionState
	Connected bool
	LocalID   PeerID
	App       string
	Room      string
	LastError error
}

type PresenceEntry struct {
	ID         string
	SessionID  string
	LocalID    PeerID
	PeerID     PeerID
	App        string
	Room       string
	Event      EventType
	Metadata   map[string]any
	OccurredAt time.Time
}

type PresenceFilter struct {
	App     string
	Room    string
	PeerID  PeerID
	Event   EventType
	From    *time.Time
	To      *time.Time
	Page    int
	PerPage int
}

type PresencePage struct {
	Items   []PresenceEntry
	Page    int
	PerPage int
	Total   int
	HasNext bool
}

type PresenceJournal interface {
	Record(ctx context.Context, entry PresenceEntry) error
}

type PresenceReader interface {
	List(ctx context.Context, filter PresenceFilter) (PresencePage, error)
}

type PresenceRetentionPolicy struct {
	TTL    time.Duration
	RowCap int
}

type PresenceRetentionPruner interface {
	Prune(ctx context.Context, policy PresenceRetentionPolicy) (int, error)
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
