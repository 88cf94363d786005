package peer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"triwhist/internal/engine"
)

// Timeouts are the per-stage negotiation budgets.
type Timeouts struct {
	Offer       time.Duration // answerer waiting for the offer
	Answer      time.Duration // offerer waiting for the answer
	ICE         time.Duration // network-info exchange and connect
	RetryDelay  time.Duration // backoff before the single retry
	ICERecovery time.Duration // transient connectivity loss grace
}

// DefaultTimeouts returns production budgets.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Offer:       30 * time.Second,
		Answer:      30 * time.Second,
		ICE:         45 * time.Second,
		RetryDelay:  5 * time.Second,
		ICERecovery: 15 * time.Second,
	}
}

// DebugTimeouts shortens every budget for local testing.
func DebugTimeouts() Timeouts {
	return Timeouts{
		Offer:       3 * time.Second,
		Answer:      3 * time.Second,
		ICE:         5 * time.Second,
		RetryDelay:  time.Second,
		ICERecovery: 2 * time.Second,
	}
}

// negotiationState tracks where the local side is in the offer/answer
// handshake, used for glare and duplicate suppression.
type negotiationState int

const (
	negStable negotiationState = iota
	negHaveLocalOffer
	negHaveRemoteOffer
	negDone
)

// peerRecord is the Manager's per-peer bookkeeping.
type peerRecord struct {
	phase    ConnPhase
	neg      negotiationState
	online   bool
	retried  bool
	gen      uint64 // invalidates in-flight async completions
	timer    *time.Timer
	recovery *time.Timer
}

// Manager runs one connection lifecycle state machine per remote peer.
// The offerer role is fixed by seat cycle: each seat offers to the
// next one, so exactly one side of every pair initiates and glare
// cannot arise by design. All mutation is serialized by one mutex.
type Manager struct {
	mu  sync.Mutex
	log *logrus.Entry

	local     engine.Seat
	transport Transport
	signaler  Signaler
	timeouts  Timeouts
	after     func(time.Duration, func()) *time.Timer

	peers map[engine.Seat]*peerRecord

	// OnPhase observes per-peer phase changes, for a UI layer.
	OnPhase func(peer engine.Seat, phase ConnPhase)
	// OnPeerUp reports transport availability to the game controller.
	OnPeerUp func(peer engine.Seat, up bool)
}

// NewManager builds a Manager with all peers idle.
func NewManager(local engine.Seat, transport Transport, signaler Signaler, timeouts Timeouts, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	m := &Manager{
		log:       logger.WithField("seat", local),
		local:     local,
		transport: transport,
		signaler:  signaler,
		timeouts:  timeouts,
		after:     time.AfterFunc,
		peers:     make(map[engine.Seat]*peerRecord),
	}
	for _, seat := range engine.Seats() {
		if seat != local {
			m.peers[seat] = &peerRecord{phase: PhaseIdle}
		}
	}
	return m
}

// offererTo reports whether the local seat initiates toward peer.
func (m *Manager) offererTo(peer engine.Seat) bool {
	return m.local.Next() == peer
}

// Phase returns the connection phase for peer.
func (m *Manager) Phase(peer engine.Seat) ConnPhase {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.peers[peer]; ok {
		return rec.phase
	}
	return PhaseIdle
}

// ConnectAll starts a connection attempt toward every idle peer, used
// at startup once presence shows them online.
func (m *Manager) ConnectAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for seat, rec := range m.peers {
		if rec.phase == PhaseIdle && rec.online {
			m.connect(seat, rec)
		}
	}
}

// setPhase records a phase change, cancels the stale timer and
// notifies observers. Assumes lock is held.
func (m *Manager) setPhase(peer engine.Seat, rec *peerRecord, p ConnPhase) {
	if rec.phase == p {
		return
	}
	wasConnected := rec.phase == PhaseConnected
	m.log.WithFields(logrus.Fields{"peer": peer, "from": rec.phase, "to": p}).Info("connection phase")
	rec.phase = p
	m.stopTimer(rec)
	if m.OnPhase != nil {
		cb := m.OnPhase
		go cb(peer, p)
	}
	if m.OnPeerUp != nil && (p == PhaseConnected) != wasConnected {
		cb := m.OnPeerUp
		up := p == PhaseConnected
		go cb(peer, up)
	}
}

// connect begins a fresh attempt toward peer. Assumes lock is held.
func (m *Manager) connect(peer engine.Seat, rec *peerRecord) {
	rec.gen++
	rec.neg = negStable
	m.setPhase(peer, rec, PhaseInitiating)
	if m.offererTo(peer) {
		m.startOffer(peer, rec)
	} else {
		m.setPhase(peer, rec, PhaseWaitingForOffer)
		m.armTimeout(peer, rec, PhaseWaitingForOffer, m.timeouts.Offer)
	}
}

// startOffer creates and publishes the local offer. Assumes lock is
// held.
func (m *Manager) startOffer(peer engine.Seat, rec *peerRecord) {
	m.setPhase(peer, rec, PhaseOffering)
	gen := rec.gen
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeouts.Answer)
		defer cancel()
		offer, err := m.transport.CreateOffer(ctx, peer)
		if err == nil {
			err = m.signaler.SendOffer(ctx, peer, offer)
		}
		if err == nil {
			m.publishCandidates(ctx, peer)
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if rec.gen != gen || rec.phase != PhaseOffering {
			return
		}
		if err != nil {
			m.log.WithError(err).WithField("peer", peer).Error("sending offer")
			m.fail(peer, rec)
			return
		}
		rec.neg = negHaveLocalOffer
		m.setPhase(peer, rec, PhaseWaitingForAnswer)
		m.armTimeout(peer, rec, PhaseWaitingForAnswer, m.timeouts.Answer)
	}()
}

// HandleOffer processes an offer pushed by the signaling relay.
func (m *Manager) HandleOffer(from engine.Seat, offer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.peers[from]
	if !ok {
		return
	}
	// Glare suppression: as the offerer for this pair, a crossed
	// duplicate offer is ignored once negotiation has left stable.
	if m.offererTo(from) && rec.neg != negStable {
		m.log.WithField("peer", from).Debug("ignoring crossed offer")
		return
	}
	if rec.phase == PhaseConnected {
		return
	}
	rec.gen++
	rec.neg = negHaveRemoteOffer
	m.setPhase(from, rec, PhaseAnswering)
	gen := rec.gen
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeouts.Answer)
		defer cancel()
		answer, err := m.transport.CreateAnswer(ctx, from, offer)
		if err == nil {
			err = m.signaler.SendAnswer(ctx, from, answer)
		}
		if err == nil {
			m.publishCandidates(ctx, from)
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if rec.gen != gen || rec.phase != PhaseAnswering {
			return
		}
		if err != nil {
			m.log.WithError(err).WithField("peer", from).Error("sending answer")
			m.fail(from, rec)
			return
		}
		rec.neg = negDone
		m.setPhase(from, rec, PhaseExchangingNetworkInfo)
		m.armTimeout(from, rec, PhaseExchangingNetworkInfo, m.timeouts.ICE)
	}()
}

// publishCandidates relays the transport's alternate connectivity
// info for peer, best-effort. Runs outside the lock; the relay
// delivers candidates to the remote side in its own time.
func (m *Manager) publishCandidates(ctx context.Context, peer engine.Seat) {
	cands, err := m.transport.LocalCandidates(ctx, peer)
	if err != nil {
		m.log.WithError(err).WithField("peer", peer).Warn("collecting local candidates")
		return
	}
	for _, cand := range cands {
		if err := m.signaler.SendCandidate(ctx, peer, cand); err != nil {
			m.log.WithError(err).WithField("peer", peer).Warn("relaying candidate")
		}
	}
}

// HandleAnswer processes an answer pushed by the signaling relay.
// A duplicate or unexpected answer is dropped: it only applies while
// the local side holds an unanswered offer.
func (m *Manager) HandleAnswer(from engine.Seat, answer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.peers[from]
	if !ok {
		return
	}
	if rec.neg != negHaveLocalOffer || rec.phase != PhaseWaitingForAnswer {
		m.log.WithFields(logrus.Fields{"peer": from, "phase": rec.phase}).Debug("ignoring unexpected answer")
		return
	}
	rec.gen++
	gen := rec.gen
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeouts.ICE)
		defer cancel()
		err := m.transport.AcceptAnswer(ctx, from, answer)
		m.mu.Lock()
		defer m.mu.Unlock()
		if rec.gen != gen {
			return
		}
		if err != nil {
			m.log.WithError(err).WithField("peer", from).Error("accepting answer")
			m.fail(from, rec)
			return
		}
		rec.neg = negDone
		m.setPhase(from, rec, PhaseExchangingNetworkInfo)
		m.armTimeout(from, rec, PhaseExchangingNetworkInfo, m.timeouts.ICE)
	}()
}

// HandleCandidate feeds a relayed network candidate to the transport.
func (m *Manager) HandleCandidate(from engine.Seat, candidate string) {
	m.mu.Lock()
	rec, ok := m.peers[from]
	if !ok || (rec.phase.Terminal() && rec.phase != PhaseConnected) {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), m.timeouts.ICE)
	defer cancel()
	if err := m.transport.AddCandidate(ctx, from, candidate); err != nil {
		m.log.WithError(err).WithField("peer", from).Warn("adding candidate")
	}
}

// HandleTransportOpen is called by the transport once the channel to
// peer is usable.
func (m *Manager) HandleTransportOpen(peer engine.Seat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.peers[peer]
	if !ok {
		return
	}
	if rec.phase == PhaseExchangingNetworkInfo {
		m.setPhase(peer, rec, PhaseConnecting)
	}
	rec.retried = false
	m.setPhase(peer, rec, PhaseConnected)
}

// HandleConnectivity consumes the low-level health signal. A transient
// disconnect while connected starts a recovery timer rather than
// failing immediately.
func (m *Manager) HandleConnectivity(peer engine.Seat, c Connectivity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.peers[peer]
	if !ok {
		return
	}
	switch c {
	case ConnectivityConnected, ConnectivityCompleted:
		if rec.recovery != nil {
			rec.recovery.Stop()
			rec.recovery = nil
			if rec.phase == PhaseIceReconnecting {
				m.setPhase(peer, rec, PhaseConnected)
			}
		}
	case ConnectivityDisconnected:
		if rec.phase != PhaseConnected || rec.recovery != nil {
			return
		}
		m.log.WithField("peer", peer).Warn("connectivity lost, starting recovery timer")
		m.setPhase(peer, rec, PhaseIceReconnecting)
		gen := rec.gen
		rec.recovery = m.after(m.timeouts.ICERecovery, func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if rec.gen != gen || rec.phase != PhaseIceReconnecting {
				return
			}
			rec.recovery = nil
			m.fail(peer, rec)
		})
	case ConnectivityFailed:
		if !rec.phase.Terminal() || rec.phase == PhaseConnected {
			m.fail(peer, rec)
		}
	}
}

// SetPresence consumes the external online/offline feed for peer.
func (m *Manager) SetPresence(peer engine.Seat, online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.peers[peer]
	if !ok || rec.online == online {
		return
	}
	rec.online = online
	if online {
		switch rec.phase {
		case PhaseIdle, PhaseFailed, PhaseDisconnected:
			rec.retried = false
			m.connect(peer, rec)
		}
		return
	}
	// Offline peers are never left mid-negotiation.
	rec.gen++
	m.stopTimer(rec)
	if rec.recovery != nil {
		rec.recovery.Stop()
		rec.recovery = nil
	}
	m.transport.Close(peer)
	if rec.phase.reachedNetworkInfo() {
		m.setPhase(peer, rec, PhaseDisconnected)
	} else {
		m.setPhase(peer, rec, PhaseIdle)
	}
	rec.neg = negStable
}

// armTimeout guards phase p: if the peer is still in p when the timer
// fires, the attempt fails. Assumes lock is held.
func (m *Manager) armTimeout(peer engine.Seat, rec *peerRecord, p ConnPhase, d time.Duration) {
	m.stopTimer(rec)
	gen := rec.gen
	rec.timer = m.after(d, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if rec.gen != gen || rec.phase != p {
			return
		}
		m.log.WithFields(logrus.Fields{"peer": peer, "phase": p}).Warn("negotiation timed out")
		m.fail(peer, rec)
	})
}

func (m *Manager) stopTimer(rec *peerRecord) {
	if rec.timer != nil {
		rec.timer.Stop()
		rec.timer = nil
	}
}

// fail tears the attempt down and, when the peer is still present and
// the single retry is unspent, schedules exactly one retry.
// Assumes lock is held.
func (m *Manager) fail(peer engine.Seat, rec *peerRecord) {
	rec.gen++
	rec.neg = negStable
	m.transport.Close(peer)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.signaler.ClearPair(ctx, peer); err != nil {
			m.log.WithError(err).WithField("peer", peer).Warn("clearing signaling documents")
		}
	}()
	m.setPhase(peer, rec, PhaseFailed)
	if !rec.online || rec.retried {
		return
	}
	rec.retried = true
	gen := rec.gen
	m.log.WithField("peer", peer).Info("scheduling connection retry")
	m.after(m.timeouts.RetryDelay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if rec.gen != gen || rec.phase != PhaseFailed {
			return
		}
		if !rec.online {
			// Went offline during backoff; presence will restart us.
			return
		}
		m.connect(peer, rec)
	})
}

// Send delivers a raw message to peer, best-effort.
func (m *Manager) Send(peer engine.Seat, msg []byte) bool {
	return m.transport.Send(peer, msg)
}

// Broadcast delivers a raw message to every remote peer.
func (m *Manager) Broadcast(msg []byte) {
	m.mu.Lock()
	seats := make([]engine.Seat, 0, len(m.peers))
	for seat := range m.peers {
		seats = append(seats, seat)
	}
	m.mu.Unlock()
	for _, seat := range seats {
		if !m.transport.Send(seat, msg) {
			m.log.WithField("peer", seat).Debug("message dropped, no open channel")
		}
	}
}

// Close tears down every connection, for process shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for seat, rec := range m.peers {
		rec.gen++
		m.stopTimer(rec)
		if rec.recovery != nil {
			rec.recovery.Stop()
			rec.recovery = nil
		}
		m.transport.Close(seat)
		m.setPhase(seat, rec, PhaseIdle)
	}
}
