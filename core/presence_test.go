package core

import (
	"testing"
)

func TestPresenceReconciler_DepartedIsKeyDifference(t *testing.T) {
	reconciler := NewPresenceReconciler(newFakeAdapter())
	previous := OccupantSnapshot{"a": {Priority: 1}, "b": {Priority: 2}, "c": {Priority: 3}}
	next := OccupantSnapshot{"b": {Priority: 99}, "d": {Priority: 4}}

	result := reconciler.Reconcile(previous, next)
	assertPeers(t, "departed", result.Departed, []PeerID{"a", "c"})
	assertPeers(t, "arrived", result.Arrived, []PeerID{"d"})
}

func TestPresenceReconciler_Idempotent(t *testing.T) {
	reconciler := NewPresenceReconciler(newFakeAdapter())
	snapshot := OccupantSnapshot{"a": {Priority: 1}, "b": {Priority: 2}}

	result := reconciler.Reconcile(snapshot, snapshot.Clone())
	if !result.Empty() {
		t.Fatalf("expected no transitions for identical snapshots, got %#v", result)
	}
}

func TestPresenceReconciler_MetadataChangeIsNotArrival(t *testing.T) {
	reconciler := NewPresenceReconciler(newFakeAdapter())
	previous := OccupantSnapshot{"a": {Priority: 1}}
	next := OccupantSnapshot{"a": {Priority: 50, Metadata: map[string]any{"name": "x"}}}

	result := reconciler.Reconcile(previous, next)
	if !result.Empty() {
		t.Fatalf("expected metadata-only change to be ignored, got %#v", result)
	}
}

func TestPresenceReconciler_FiltersArrivals(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.connected["already"] = true
	adapter.initiate = func(info OccupantInfo) bool { return info.Priority > 10 }
	reconciler := NewPresenceReconciler(adapter)

	next := OccupantSnapshot{
		"already": {Priority: 20},
		"later":   {Priority: 30},
		"earlier": {Priority: 5},
	}
	result := reconciler.Reconcile(OccupantSnapshot{}, next)
	assertPeers(t, "arrived", result.Arrived, []PeerID{"later"})
}

func TestPresenceReconciler_EmptyNextDepartsEveryone(t *testing.T) {
	reconciler := NewPresenceReconciler(newFakeAdapter())
	result := reconciler.Reconcile(OccupantSnapshot{"b": {}, "a": {}}, OccupantSnapshot{})
	assertPeers(t, "departed", result.Departed, []PeerID{"a", "b"})
	if len(result.Arrived) != 0 {
		t.Fatalf("expected no arrivals, got %v", result.Arrived)
	}
}

func TestChannelStateTracker_Lifecycle(t *testing.T) {
	tracker := NewChannelStateTracker()
	if tracker.IsActive("a") || tracker.Known("a") {
		t.Fatalf("expected unknown peer to be inactive")
	}
	tracker.Open("b")
	tracker.Open("a")
	if !tracker.IsActive("a") {
		t.Fatalf("expected a active after open")
	}
	tracker.Close("a")
	if tracker.IsActive("a") {
		t.Fatalf("expected a inactive after close")
	}
	if !tracker.Known("a") {
		t.Fatalf("expected closed entry to be retained")
	}
	assertPeers(t, "active", tracker.Active(), []PeerID{"b"})
}

func assertPeers(t *testing.T, label string, got []PeerID, want []PeerID) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %s %v, got %v", label, want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %s %v, got %v", label, want, got)
		}
	}
}
