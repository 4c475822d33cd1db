package core

import "sort"

// Reconciliation is the outcome of diffing two occupant snapshots. Departures
// are always processed before arrivals.
type Reconciliation struct {
	Departed []PeerID
	Arrived  []PeerID
}

func (r Reconciliation) Empty() bool {
	return len(r.Departed) == 0 && len(r.Arrived) == 0
}

// PresenceReconciler turns consecutive occupant snapshots into departure and
// arrival lists. Arrivals are filtered through the adapter: a peer the
// adapter already reports connected, or one the local side should not
// initiate toward, is not an arrival.
type PresenceReconciler struct {
	adapter Adapter
}

func NewPresenceReconciler(adapter Adapter) PresenceReconciler {
	return PresenceReconciler{adapter: adapter}
}

func (r PresenceReconciler) Reconcile(previous OccupantSnapshot, next OccupantSnapshot) Reconciliation {
	out := Reconciliation{}
	for id := range previous {
		if !next.Has(id) {
			out.Departed = append(out.Departed, id)
		}
	}
	for id, info := range next {
		if previous.Has(id) {
			continue
		}
		if !r.isNewClient(id) {
			continue
		}
		if r.adapter == nil || !r.adapter.ShouldInitiate(info) {
			continue
		}
		out.Arrived = append(out.Arrived, id)
	}
	sortPeerIDs(out.Departed)
	sortPeerIDs(out.Arrived)
	return out
}

func (r PresenceReconciler) isNewClient(id PeerID) bool {
	if r.adapter == nil {
		return true
	}
	return r.adapter.ConnectStatus(id) != ConnectStatusConnected
}

func sortPeerIDs(ids []PeerID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
