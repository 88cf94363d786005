package transport

import (
	"context"
	"fmt"
	"sync"

	"triwhist/internal/engine"
)

// Memory is an in-process transport for tests and local play. A Hub
// wires the three seats' transports together; negotiation blobs are
// just seat labels and every handshake succeeds instantly.
type Memory struct {
	mu    sync.Mutex
	hub   *Hub
	local engine.Seat
	open  map[engine.Seat]bool

	OnMessage func(from engine.Seat, msg []byte)
	OnOpen    func(peer engine.Seat)
}

// Hub connects up to three Memory transports.
type Hub struct {
	mu    sync.Mutex
	seats map[engine.Seat]*Memory
}

// NewHub builds an empty hub.
func NewHub() *Hub {
	return &Hub{seats: make(map[engine.Seat]*Memory)}
}

// Attach creates the Memory transport for seat.
func (h *Hub) Attach(seat engine.Seat) *Memory {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := &Memory{hub: h, local: seat, open: make(map[engine.Seat]bool)}
	h.seats[seat] = m
	return m
}

func (h *Hub) peer(seat engine.Seat) *Memory {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seats[seat]
}

func (m *Memory) CreateOffer(ctx context.Context, peer engine.Seat) (string, error) {
	return fmt.Sprintf("offer:%d", int(m.local)), nil
}

func (m *Memory) CreateAnswer(ctx context.Context, peer engine.Seat, offer string) (string, error) {
	m.connectTo(peer)
	return fmt.Sprintf("answer:%d", int(m.local)), nil
}

func (m *Memory) AcceptAnswer(ctx context.Context, peer engine.Seat, answer string) error {
	m.connectTo(peer)
	return nil
}

func (m *Memory) AddCandidate(ctx context.Context, peer engine.Seat, candidate string) error {
	return nil
}

func (m *Memory) LocalCandidates(ctx context.Context, peer engine.Seat) ([]string, error) {
	return nil, nil
}

// connectTo opens both directions of the channel and fires OnOpen on
// each side.
func (m *Memory) connectTo(peer engine.Seat) {
	other := m.hub.peer(peer)
	if other == nil {
		return
	}
	m.mu.Lock()
	already := m.open[peer]
	m.open[peer] = true
	m.mu.Unlock()
	other.mu.Lock()
	other.open[m.local] = true
	other.mu.Unlock()
	if already {
		return
	}
	if m.OnOpen != nil {
		m.OnOpen(peer)
	}
	if other.OnOpen != nil {
		other.OnOpen(m.local)
	}
}

func (m *Memory) Send(peer engine.Seat, msg []byte) bool {
	m.mu.Lock()
	open := m.open[peer]
	m.mu.Unlock()
	if !open {
		return false
	}
	other := m.hub.peer(peer)
	if other == nil || other.OnMessage == nil {
		return false
	}
	cp := make([]byte, len(msg))
	copy(cp, msg)
	other.OnMessage(m.local, cp)
	return true
}

func (m *Memory) Close(peer engine.Seat) {
	m.mu.Lock()
	delete(m.open, peer)
	m.mu.Unlock()
	if other := m.hub.peer(peer); other != nil {
		other.mu.Lock()
		delete(other.open, m.local)
		other.mu.Unlock()
	}
}
