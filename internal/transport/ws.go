// Package transport carries game actions between peers. The websocket
// implementation maps the offer/answer handshake onto plain dialing:
// an offer advertises the offerer's listen address and a session
// token, the answerer dials it, and candidates are alternate addresses
// to try when the advertised one is unreachable.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"triwhist/internal/engine"
	"triwhist/internal/peer"
	"triwhist/internal/signal"
)

const (
	writeTimeout = 5 * time.Second
	tokenHeader  = "X-Session-Token"
	tokenTTL     = 24 * time.Hour
)

// offerBlob is the negotiation payload relayed through signaling.
type offerBlob struct {
	Addr  string `json:"addr"`
	Token string `json:"token"`
}

type wsConn struct {
	c      *websocket.Conn
	cancel context.CancelFunc
}

// WS implements peer.Transport over websockets.
type WS struct {
	mu  sync.Mutex
	log *logrus.Entry

	local  engine.Seat
	addr   string   // advertised dial address
	extra  []string // alternate dial addresses relayed as candidates
	table  string
	secret []byte

	conns      map[engine.Seat]*wsConn
	candidates map[engine.Seat][]string

	OnMessage      func(from engine.Seat, msg []byte)
	OnOpen         func(peer engine.Seat)
	OnConnectivity func(peer engine.Seat, c peer.Connectivity)
}

// NewWS builds a websocket transport advertising addr, plus any
// alternate addresses relayed to peers as candidates. secret signs
// and verifies session tokens; all three peers share it.
func NewWS(local engine.Seat, addr string, extra []string, table string, secret []byte, logger *logrus.Logger) *WS {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &WS{
		log:        logger.WithField("seat", local),
		local:      local,
		addr:       addr,
		extra:      extra,
		table:      table,
		secret:     secret,
		conns:      make(map[engine.Seat]*wsConn),
		candidates: make(map[engine.Seat][]string),
	}
}

// ServeHTTP accepts inbound connections from answerers. The session
// token in the handshake header identifies and authenticates the
// dialing seat.
func (t *WS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := signal.ParseSessionToken(t.secret, r.Header.Get(tokenHeader))
	if err != nil || claims.Table != t.table || claims.Seat == t.local {
		t.log.WithError(err).Warn("rejecting inbound connection")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		t.log.WithError(err).Warn("websocket accept failed")
		return
	}
	t.register(claims.Seat, c)
}

// CreateOffer advertises the local listen address.
func (t *WS) CreateOffer(ctx context.Context, peerSeat engine.Seat) (string, error) {
	token, err := signal.NewSessionToken(t.secret, t.local, t.table, tokenTTL)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(offerBlob{Addr: t.addr, Token: token})
	if err != nil {
		return "", fmt.Errorf("encode offer: %w", err)
	}
	return string(raw), nil
}

// CreateAnswer dials the offerer at its advertised address, falling
// back to any candidates received so far.
func (t *WS) CreateAnswer(ctx context.Context, peerSeat engine.Seat, offer string) (string, error) {
	var blob offerBlob
	if err := json.Unmarshal([]byte(offer), &blob); err != nil {
		return "", fmt.Errorf("decode offer: %w", err)
	}
	claims, err := signal.ParseSessionToken(t.secret, blob.Token)
	if err != nil {
		return "", fmt.Errorf("offer token: %w", err)
	}
	if claims.Seat != peerSeat || claims.Table != t.table {
		return "", fmt.Errorf("offer token for wrong seat or table")
	}

	token, err := signal.NewSessionToken(t.secret, t.local, t.table, tokenTTL)
	if err != nil {
		return "", err
	}
	addrs := append([]string{blob.Addr}, t.snapshotCandidates(peerSeat)...)
	var c *websocket.Conn
	var dialErr error
	for _, addr := range addrs {
		opts := &websocket.DialOptions{HTTPHeader: http.Header{tokenHeader: []string{token}}}
		c, _, dialErr = websocket.Dial(ctx, addr, opts)
		if dialErr == nil {
			break
		}
		t.log.WithError(dialErr).WithField("addr", addr).Warn("dial failed")
	}
	if dialErr != nil {
		return "", fmt.Errorf("dial offerer: %w", dialErr)
	}
	t.register(peerSeat, c)

	raw, err := json.Marshal(offerBlob{Addr: t.addr, Token: token})
	if err != nil {
		return "", fmt.Errorf("encode answer: %w", err)
	}
	return string(raw), nil
}

// AcceptAnswer verifies the answer; the connection itself arrives
// inbound via ServeHTTP when the answerer dials.
func (t *WS) AcceptAnswer(ctx context.Context, peerSeat engine.Seat, answer string) error {
	var blob offerBlob
	if err := json.Unmarshal([]byte(answer), &blob); err != nil {
		return fmt.Errorf("decode answer: %w", err)
	}
	claims, err := signal.ParseSessionToken(t.secret, blob.Token)
	if err != nil {
		return fmt.Errorf("answer token: %w", err)
	}
	if claims.Seat != peerSeat || claims.Table != t.table {
		return fmt.Errorf("answer token for wrong seat or table")
	}
	return nil
}

// LocalCandidates returns the alternate dial addresses configured for
// this process. The answerer tries them when the advertised address
// fails.
func (t *WS) LocalCandidates(ctx context.Context, peerSeat engine.Seat) ([]string, error) {
	out := make([]string, len(t.extra))
	copy(out, t.extra)
	return out, nil
}

// AddCandidate records an alternate dial address for peer.
func (t *WS) AddCandidate(ctx context.Context, peerSeat engine.Seat, candidate string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.candidates[peerSeat] = append(t.candidates[peerSeat], candidate)
	return nil
}

func (t *WS) snapshotCandidates(peerSeat engine.Seat) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.candidates[peerSeat]))
	copy(out, t.candidates[peerSeat])
	return out
}

// register installs the connection for peer, replacing any previous
// one, and starts its read loop.
func (t *WS) register(peerSeat engine.Seat, c *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	if old := t.conns[peerSeat]; old != nil {
		old.cancel()
		old.c.Close(websocket.StatusNormalClosure, "replaced")
	}
	t.conns[peerSeat] = &wsConn{c: c, cancel: cancel}
	t.mu.Unlock()

	t.log.WithField("peer", peerSeat).Info("transport channel open")
	if t.OnOpen != nil {
		go t.OnOpen(peerSeat)
	}
	go t.readLoop(ctx, peerSeat, c)
}

func (t *WS) readLoop(ctx context.Context, peerSeat engine.Seat, c *websocket.Conn) {
	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			t.mu.Lock()
			if cur := t.conns[peerSeat]; cur != nil && cur.c == c {
				delete(t.conns, peerSeat)
			}
			t.mu.Unlock()
			if ctx.Err() == nil {
				t.log.WithError(err).WithField("peer", peerSeat).Warn("transport channel lost")
				if t.OnConnectivity != nil {
					t.OnConnectivity(peerSeat, peer.ConnectivityDisconnected)
				}
			}
			return
		}
		if t.OnMessage != nil {
			t.OnMessage(peerSeat, data)
		}
	}
}

// Send delivers msg to peer, best-effort.
func (t *WS) Send(peerSeat engine.Seat, msg []byte) bool {
	t.mu.Lock()
	conn := t.conns[peerSeat]
	t.mu.Unlock()
	if conn == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := conn.c.Write(ctx, websocket.MessageText, msg); err != nil {
		t.log.WithError(err).WithField("peer", peerSeat).Warn("send failed")
		return false
	}
	return true
}

// Close tears down the connection to peer, if any.
func (t *WS) Close(peerSeat engine.Seat) {
	t.mu.Lock()
	conn := t.conns[peerSeat]
	delete(t.conns, peerSeat)
	t.mu.Unlock()
	if conn != nil {
		conn.cancel()
		conn.c.Close(websocket.StatusNormalClosure, "closed")
	}
}
