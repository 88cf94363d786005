package peer

// ConnPhase is the per-peer connection lifecycle phase.
type ConnPhase int

const (
	PhaseIdle ConnPhase = iota
	PhaseInitiating
	PhaseOffering
	PhaseWaitingForAnswer
	PhaseWaitingForOffer
	PhaseAnswering
	PhaseExchangingNetworkInfo
	PhaseConnecting
	PhaseConnected
	PhaseFailed
	PhaseDisconnected
	PhaseIceReconnecting
)

var connPhaseNames = map[ConnPhase]string{
	PhaseIdle:                  "idle",
	PhaseInitiating:            "initiating",
	PhaseOffering:              "offering",
	PhaseWaitingForAnswer:      "waitingForAnswer",
	PhaseWaitingForOffer:       "waitingForOffer",
	PhaseAnswering:             "answering",
	PhaseExchangingNetworkInfo: "exchangingNetworkInfo",
	PhaseConnecting:            "connecting",
	PhaseConnected:             "connected",
	PhaseFailed:                "failed",
	PhaseDisconnected:          "disconnected",
	PhaseIceReconnecting:       "iceReconnecting",
}

func (p ConnPhase) String() string {
	if s, ok := connPhaseNames[p]; ok {
		return s
	}
	return "unknown"
}

// Terminal reports whether the phase ends a connection attempt.
func (p ConnPhase) Terminal() bool {
	return p == PhaseConnected || p == PhaseFailed || p == PhaseDisconnected
}

// reachedNetworkInfo reports whether negotiation progressed far enough
// that losing the peer counts as a disconnection rather than a
// never-started attempt.
func (p ConnPhase) reachedNetworkInfo() bool {
	return p >= PhaseExchangingNetworkInfo && p != PhaseFailed && p != PhaseDisconnected
}
