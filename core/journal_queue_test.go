package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memoryJobQueue struct {
	mu       sync.Mutex
	messages []*JobExecutionMessage
	acked    int
	nacks    []JobNackOptions
}

func (q *memoryJobQueue) Enqueue(_ context.Context, msg *JobExecutionMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, msg)
	return nil
}

func (q *memoryJobQueue) Dequeue(context.Context) (JobDelivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.messages) == 0 {
		return nil, nil
	}
	msg := q.messages[0]
	q.messages = q.messages[1:]
	return &memoryDelivery{queue: q, msg: msg}, nil
}

type memoryDelivery struct {
	queue *memoryJobQueue
	msg   *JobExecutionMessage
}

func (d *memoryDelivery) Message() *JobExecutionMessage { return d.msg }

func (d *memoryDelivery) Ack(context.Context) error {
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	d.queue.acked++
	return nil
}

func (d *memoryDelivery) Nack(_ context.Context, opts JobNackOptions) error {
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	d.queue.nacks = append(d.queue.nacks, opts)
	if opts.Requeue {
		d.queue.messages = append(d.queue.messages, d.msg)
	}
	return nil
}

type flakyJournal struct {
	failures int
	inner    *MemoryPresenceJournal
}

func (j *flakyJournal) Record(ctx context.Context, entry PresenceEntry) error {
	if j.failures > 0 {
		j.failures--
		return errors.New("store unavailable")
	}
	return j.inner.Record(ctx, entry)
}

type hookRecorder struct {
	stages []string
}

func (h *hookRecorder) OnStart(context.Context, JobWorkerEvent)   { h.stages = append(h.stages, "start") }
func (h *hookRecorder) OnSuccess(context.Context, JobWorkerEvent) { h.stages = append(h.stages, "success") }
func (h *hookRecorder) OnFailure(context.Context, JobWorkerEvent) { h.stages = append(h.stages, "failure") }
func (h *hookRecorder) OnRetry(context.Context, JobWorkerEvent)   { h.stages = append(h.stages, "retry") }

func samplePresenceEntry() PresenceEntry {
	return PresenceEntry{
		ID:         "entry-1",
		SessionID:  "s1",
		LocalID:    "me",
		PeerID:     "peer-a",
		App:        "demo",
		Room:       "lobby",
		Event:      EventPeerConnected,
		Metadata:   map[string]any{"priority": "1"},
		OccurredAt: time.Date(2026, 2, 3, 4, 5, 6, 7, time.UTC),
	}
}

func TestPresenceEntryCodec_RoundTripsThroughParameters(t *testing.T) {
	entry := samplePresenceEntry()
	decoded, err := DecodePresenceEntry(EncodePresenceEntry(entry))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ID != entry.ID || decoded.PeerID != entry.PeerID || decoded.Event != entry.Event {
		t.Fatalf("unexpected decoded entry %#v", decoded)
	}
	if !decoded.OccurredAt.Equal(entry.OccurredAt) {
		t.Fatalf("expected occurred_at preserved, got %v", decoded.OccurredAt)
	}
	if _, err := DecodePresenceEntry(map[string]any{"id": "x", "event": "peer.connected", "occurred_at": "nope"}); err == nil {
		t.Fatalf("expected invalid timestamp error")
	}
}

func TestQueuedPresenceJournal_EnqueuesRecordJob(t *testing.T) {
	queue := &memoryJobQueue{}
	journal := NewQueuedPresenceJournal(queue)
	if err := journal.Record(context.Background(), samplePresenceEntry()); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(queue.messages) != 1 {
		t.Fatalf("expected one queued message, got %d", len(queue.messages))
	}
	msg := queue.messages[0]
	if msg.JobID != JobIDPresenceRecord || msg.IdempotencyKey != "entry-1" {
		t.Fatalf("unexpected job message %#v", msg)
	}
}

func TestPresenceJobRunner_DeliversToJournal(t *testing.T) {
	queue := &memoryJobQueue{}
	store := NewMemoryPresenceJournal()
	hook := &hookRecorder{}
	runner, err := NewPresenceJobRunner(queue, store, hook, PresenceJobRunnerConfig{})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	_ = NewQueuedPresenceJournal(queue).Record(context.Background(), samplePresenceEntry())

	handled, err := runner.RunOnce(context.Background())
	if err != nil || !handled {
		t.Fatalf("expected handled delivery, got %v %v", handled, err)
	}
	if queue.acked != 1 {
		t.Fatalf("expected ack, got %d", queue.acked)
	}
	page, _ := store.List(context.Background(), PresenceFilter{})
	if page.Total != 1 {
		t.Fatalf("expected stored entry, got %d", page.Total)
	}
	if len(hook.stages) != 2 || hook.stages[0] != "start" || hook.stages[1] != "success" {
		t.Fatalf("unexpected hook stages %v", hook.stages)
	}

	handled, err = runner.RunOnce(context.Background())
	if err != nil || handled {
		t.Fatalf("expected idle queue, got %v %v", handled, err)
	}
}

func TestPresenceJobRunner_RetriesThenSucceeds(t *testing.T) {
	queue := &memoryJobQueue{}
	store := &flakyJournal{failures: 2, inner: NewMemoryPresenceJournal()}
	runner, err := NewPresenceJobRunner(queue, store, nil, PresenceJobRunnerConfig{
		MaxAttempts:    5,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     15 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	_ = NewQueuedPresenceJournal(queue).Record(context.Background(), samplePresenceEntry())

	for i := 0; i < 2; i++ {
		if _, err := runner.RunOnce(context.Background()); err == nil {
			t.Fatalf("expected record error on attempt %d", i+1)
		}
	}
	if len(queue.nacks) != 2 || !queue.nacks[0].Requeue {
		t.Fatalf("expected requeued nacks, got %#v", queue.nacks)
	}
	if queue.nacks[0].Delay != 10*time.Millisecond || queue.nacks[1].Delay != 15*time.Millisecond {
		t.Fatalf("expected capped exponential delays, got %v %v", queue.nacks[0].Delay, queue.nacks[1].Delay)
	}
	if _, err := runner.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected third attempt to succeed: %v", err)
	}
	if queue.acked != 1 {
		t.Fatalf("expected ack after retries")
	}
}

func TestPresenceJobRunner_DeadLettersAfterMaxAttempts(t *testing.T) {
	queue := &memoryJobQueue{}
	store := &flakyJournal{failures: 10, inner: NewMemoryPresenceJournal()}
	runner, _ := NewPresenceJobRunner(queue, store, nil, PresenceJobRunnerConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond})
	_ = NewQueuedPresenceJournal(queue).Record(context.Background(), samplePresenceEntry())

	_, _ = runner.RunOnce(context.Background())
	_, _ = runner.RunOnce(context.Background())
	if len(queue.nacks) != 2 || !queue.nacks[1].DeadLetter || queue.nacks[1].Requeue {
		t.Fatalf("expected dead letter on final attempt, got %#v", queue.nacks)
	}
	if len(queue.messages) != 0 {
		t.Fatalf("expected nothing left in queue")
	}
}

func TestPresenceJobRunner_RejectsForeignJobs(t *testing.T) {
	queue := &memoryJobQueue{}
	_ = queue.Enqueue(context.Background(), &JobExecutionMessage{JobID: "other.job"})
	runner, _ := NewPresenceJobRunner(queue, NewMemoryPresenceJournal(), nil, PresenceJobRunnerConfig{})

	if _, err := runner.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(queue.nacks) != 1 || !queue.nacks[0].DeadLetter {
		t.Fatalf("expected foreign job dead lettered, got %#v", queue.nacks)
	}
}

func TestPresenceJobRunner_RunStopsOnCancel(t *testing.T) {
	queue := &memoryJobQueue{}
	runner, _ := NewPresenceJobRunner(queue, NewMemoryPresenceJournal(), nil, PresenceJobRunnerConfig{IdleWait: time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := runner.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
