package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPresenceJournalListener_RecordsEvents(t *testing.T) {
	journal := NewMemoryPresenceJournal()
	adapter := newFakeAdapter()
	cfg := testConfig()
	cfg.Journal.Enabled = true
	at := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)
	session, err := NewSession(cfg,
		WithAdapter(adapter),
		WithLogger(stubLogger{}),
		WithPresenceJournal(journal),
		WithClock(fixedClock(at)),
	)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	connectTestSession(t, session, adapter, "me")
	adapter.occupants(OccupantSnapshot{"A": {}})
	adapter.occupants(OccupantSnapshot{})

	page, err := journal.List(context.Background(), PresenceFilter{PeerID: "A"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected 2 entries for A, got %d", page.Total)
	}
	for _, entry := range page.Items {
		if entry.SessionID != "peerlink" || entry.LocalID != "me" || entry.App != "demo" || entry.Room != "lobby" {
			t.Fatalf("unexpected entry %#v", entry)
		}
		if entry.ID == "" || !entry.OccurredAt.Equal(at) {
			t.Fatalf("expected id and clock time, got %#v", entry)
		}
	}

	connected, err := journal.List(context.Background(), PresenceFilter{Event: EventConnected})
	if err != nil {
		t.Fatalf("list connected: %v", err)
	}
	if connected.Total != 1 {
		t.Fatalf("expected one connected entry, got %d", connected.Total)
	}
}

type failingJournal struct{}

func (failingJournal) Record(context.Context, PresenceEntry) error {
	return errors.New("disk full")
}

func TestPresenceJournalListener_FailureDoesNotPropagate(t *testing.T) {
	listener := NewPresenceJournalListener(failingJournal{}, "s1", stubLogger{})
	listener.OnEvent(context.Background(), Event{Type: EventPeerConnected, PeerID: "a"})
}

func TestMemoryPresenceJournal_PaginationAndFilters(t *testing.T) {
	journal := NewMemoryPresenceJournal()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		entry := PresenceEntry{
			ID:         string(rune('a' + i)),
			PeerID:     "p",
			Room:       "lobby",
			Event:      EventPeerConnected,
			OccurredAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := journal.Record(context.Background(), entry); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	page, err := journal.List(context.Background(), PresenceFilter{Page: 2, PerPage: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 5 || len(page.Items) != 2 || !page.HasNext {
		t.Fatalf("unexpected page %#v", page)
	}
	if page.Items[0].ID != "c" {
		t.Fatalf("expected newest-first ordering, got %q", page.Items[0].ID)
	}

	from := base.Add(3 * time.Minute)
	ranged, err := journal.List(context.Background(), PresenceFilter{From: &from})
	if err != nil {
		t.Fatalf("list range: %v", err)
	}
	if ranged.Total != 2 {
		t.Fatalf("expected 2 entries from cutoff, got %d", ranged.Total)
	}

	if err := journal.Record(context.Background(), PresenceEntry{Event: EventPeerConnected}); err == nil {
		t.Fatalf("expected id validation error")
	}
}

func TestMemoryPresenceJournal_PruneRowCap(t *testing.T) {
	journal := NewMemoryPresenceJournal()
	now := time.Now().UTC()
	for i := 0; i < 4; i++ {
		_ = journal.Record(context.Background(), PresenceEntry{
			ID:         string(rune('a' + i)),
			Event:      EventChannelOpened,
			OccurredAt: now.Add(time.Duration(i) * time.Second),
		})
	}
	removed, err := journal.Prune(context.Background(), PresenceRetentionPolicy{RowCap: 3})
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 pruned entry, got %d", removed)
	}
	page, _ := journal.List(context.Background(), PresenceFilter{})
	if page.Total != 3 || page.Items[len(page.Items)-1].ID != "b" {
		t.Fatalf("expected oldest entry pruned, got %#v", page.Items)
	}
}
