package peer

import (
	"context"

	"triwhist/internal/engine"
)

// Connectivity is the low-level network health signal, independent of
// the application-level connection phase.
type Connectivity int

const (
	ConnectivityNew Connectivity = iota
	ConnectivityConnected
	ConnectivityCompleted
	ConnectivityDisconnected
	ConnectivityFailed
)

func (c Connectivity) String() string {
	switch c {
	case ConnectivityNew:
		return "new"
	case ConnectivityConnected:
		return "connected"
	case ConnectivityCompleted:
		return "completed"
	case ConnectivityDisconnected:
		return "disconnected"
	case ConnectivityFailed:
		return "failed"
	}
	return "unknown"
}

// Transport is the data-channel collaborator. One logical connection
// object exists per remote peer; the Manager owns its lifecycle.
type Transport interface {
	// CreateOffer prepares the local side of a connection to peer and
	// returns the offer blob for the signaling relay.
	CreateOffer(ctx context.Context, peer engine.Seat) (string, error)
	// CreateAnswer consumes a remote offer and returns the answer blob.
	CreateAnswer(ctx context.Context, peer engine.Seat, offer string) (string, error)
	// AcceptAnswer completes negotiation on the offering side.
	AcceptAnswer(ctx context.Context, peer engine.Seat, answer string) error
	// AddCandidate feeds one network candidate received via signaling.
	AddCandidate(ctx context.Context, peer engine.Seat, candidate string) error
	// LocalCandidates lists alternate connectivity info for peer to
	// receive via signaling after the offer or answer. May be empty.
	LocalCandidates(ctx context.Context, peer engine.Seat) ([]string, error)
	// Send delivers a message best-effort; false when no channel is
	// open.
	Send(peer engine.Seat, msg []byte) bool
	// Close tears down the connection object for peer.
	Close(peer engine.Seat)
}

// Signaler is the signaling-relay collaborator, scoped to the local
// identity: all writes target the {local}_to_{peer} document.
type Signaler interface {
	SendOffer(ctx context.Context, to engine.Seat, offer string) error
	SendAnswer(ctx context.Context, to engine.Seat, answer string) error
	SendCandidate(ctx context.Context, to engine.Seat, candidate string) error
	// ClearPair deletes both relay documents of the pair so a retry
	// never replays stale negotiation blobs.
	ClearPair(ctx context.Context, peer engine.Seat) error
}
