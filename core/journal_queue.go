package core

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

const JobIDPresenceRecord = "peerlink.presence.record"

// QueuedPresenceJournal defers presence writes to a job queue so storage never
// runs on the adapter callback path.
type QueuedPresenceJournal struct {
	enqueuer JobEnqueuer
}

func NewQueuedPresenceJournal(enqueuer JobEnqueuer) *QueuedPresenceJournal {
	return &QueuedPresenceJournal{enqueuer: enqueuer}
}

func (j *QueuedPresenceJournal) Record(ctx context.Context, entry PresenceEntry) error {
	if j == nil || j.enqueuer == nil {
		return notConfiguredError("core: presence job enqueuer is required")
	}
	if err := validatePresenceEntry(entry); err != nil {
		return err
	}
	return j.enqueuer.Enqueue(ctx, &JobExecutionMessage{
		JobID:          JobIDPresenceRecord,
		Parameters:     EncodePresenceEntry(entry),
		IdempotencyKey: entry.ID,
	})
}

func EncodePresenceEntry(entry PresenceEntry) map[string]any {
	return map[string]any{
		"id":          entry.ID,
		"session_id":  entry.SessionID,
		"local_id":    string(entry.LocalID),
		"peer_id":     string(entry.PeerID),
		"app":         entry.App,
		"room":        entry.Room,
		"event":       string(entry.Event),
		"metadata":    copyAnyMap(entry.Metadata),
		"occurred_at": entry.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
}

func DecodePresenceEntry(params map[string]any) (PresenceEntry, error) {
	if len(params) == 0 {
		return PresenceEntry{}, badInputError("core: presence job parameters are required")
	}
	text := func(key string) string {
		value, _ := params[key].(string)
		return strings.TrimSpace(value)
	}
	entry := PresenceEntry{
		ID:        text("id"),
		SessionID: text("session_id"),
		LocalID:   PeerID(text("local_id")),
		PeerID:    PeerID(text("peer_id")),
		App:       text("app"),
		Room:      text("room"),
		Event:     EventType(text("event")),
	}
	if metadata, ok := params["metadata"].(map[string]any); ok {
		entry.Metadata = copyAnyMap(metadata)
	}
	if raw := text("occurred_at"); raw != "" {
		occurredAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return PresenceEntry{}, badInputError(fmt.Sprintf("core: invalid occurred_at %q", raw))
		}
		entry.OccurredAt = occurredAt.UTC()
	}
	if err := validatePresenceEntry(entry); err != nil {
		return PresenceEntry{}, err
	}
	return entry, nil
}

type PresenceJobRunnerConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	IdleWait       time.Duration
}

func DefaultPresenceJobRunnerConfig() PresenceJobRunnerConfig {
	return PresenceJobRunnerConfig{
		MaxAttempts:    5,
		InitialBackoff: time.Second,
		MaxBackoff:     time.Minute,
		IdleWait:       250 * time.Millisecond,
	}
}

// PresenceJobRunner drains queued presence records into a journal. Failed
// writes are retried with exponential backoff and dead-lettered after
// MaxAttempts.
type PresenceJobRunner struct {
	dequeuer JobDequeuer
	journal  PresenceJournal
	hook     JobWorkerHook
	config   PresenceJobRunnerConfig
	now      func() time.Time

	mu       sync.Mutex
	attempts map[string]int
}

func NewPresenceJobRunner(
	dequeuer JobDequeuer,
	journal PresenceJournal,
	hook JobWorkerHook,
	config PresenceJobRunnerConfig,
) (*PresenceJobRunner, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("core: presence job dequeuer is required")
	}
	if journal == nil {
		return nil, fmt.Errorf("core: presence journal is required")
	}
	defaults := DefaultPresenceJobRunnerConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.IdleWait <= 0 {
		config.IdleWait = defaults.IdleWait
	}
	return &PresenceJobRunner{
		dequeuer: dequeuer,
		journal:  journal,
		hook:     hook,
		config:   config,
		now: func() time.Time {
			return time.Now().UTC()
		},
		attempts: map[string]int{},
	}, nil
}

// RunOnce processes a single delivery. It reports false when the queue had
// nothing to hand out.
func (r *PresenceJobRunner) RunOnce(ctx context.Context) (bool, error) {
	if r == nil || r.dequeuer == nil {
		return false, fmt.Errorf("core: presence job runner is not configured")
	}
	delivery, err := r.dequeuer.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if delivery == nil {
		return false, nil
	}
	msg := delivery.Message()
	startedAt := r.now()
	event := JobWorkerEvent{Message: msg, StartedAt: startedAt}
	r.emit(ctx, "start", event)

	if msg == nil || strings.TrimSpace(msg.JobID) != JobIDPresenceRecord {
		jobID := ""
		if msg != nil {
			jobID = msg.JobID
		}
		event.Err = fmt.Errorf("core: unsupported job %q", jobID)
		event.Duration = r.now().Sub(startedAt)
		r.emit(ctx, "failure", event)
		return true, delivery.Nack(ctx, JobNackOptions{DeadLetter: true, Reason: event.Err.Error()})
	}

	entry, err := DecodePresenceEntry(msg.Parameters)
	if err != nil {
		event.Err = err
		event.Duration = r.now().Sub(startedAt)
		r.emit(ctx, "failure", event)
		return true, delivery.Nack(ctx, JobNackOptions{DeadLetter: true, Reason: err.Error()})
	}

	key := entry.ID
	event.Attempt = r.attempt(key)
	if recordErr := r.journal.Record(ctx, entry); recordErr != nil {
		event.Err = recordErr
		event.Duration = r.now().Sub(startedAt)
		attempt := r.incrementAttempt(key)
		if attempt >= r.config.MaxAttempts {
			r.clearAttempt(key)
			r.emit(ctx, "failure", event)
			nackErr := delivery.Nack(ctx, JobNackOptions{DeadLetter: true, Reason: recordErr.Error()})
			return true, joinErrors(recordErr, nackErr)
		}
		event.Delay = r.nextBackoffDelay(attempt)
		r.emit(ctx, "retry", event)
		nackErr := delivery.Nack(ctx, JobNackOptions{
			Delay:   event.Delay,
			Requeue: true,
			Reason:  recordErr.Error(),
		})
		return true, joinErrors(recordErr, nackErr)
	}

	r.clearAttempt(key)
	event.Duration = r.now().Sub(startedAt)
	if ackErr := delivery.Ack(ctx); ackErr != nil {
		return true, ackErr
	}
	r.emit(ctx, "success", event)
	return true, nil
}

// Run drains the queue until ctx is cancelled.
func (r *PresenceJobRunner) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		handled, err := r.RunOnce(ctx)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if handled {
			continue
		}
		timer := time.NewTimer(r.config.IdleWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *PresenceJobRunner) emit(ctx context.Context, stage string, event JobWorkerEvent) {
	if r.hook == nil {
		return
	}
	switch stage {
	case "start":
		r.hook.OnStart(ctx, event)
	case "success":
		r.hook.OnSuccess(ctx, event)
	case "retry":
		r.hook.OnRetry(ctx, event)
	default:
		r.hook.OnFailure(ctx, event)
	}
}

func (r *PresenceJobRunner) attempt(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[key]
}

func (r *PresenceJobRunner) incrementAttempt(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[key]++
	return r.attempts[key]
}

func (r *PresenceJobRunner) clearAttempt(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attempts, key)
}

func (r *PresenceJobRunner) nextBackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(r.config.InitialBackoff)
	multiplier := math.Pow(2, float64(attempt-1))
	next := time.Duration(base * multiplier)
	if next < 0 || next > r.config.MaxBackoff {
		return r.config.MaxBackoff
	}
	return next
}

func joinErrors(existing error, next error) error {
	if existing == nil {
		return next
	}
	if next == nil {
		return existing
	}
	return fmt.Errorf("%w; %v", existing, next)
}
