// Package core holds the peer session contracts and the session orchestrator:
// presence reconciliation, per-peer channel state, tag subscriptions and
// message routing. Transports plug in through Adapter; core must not depend
// on any concrete transport, store or queue package.
package core
