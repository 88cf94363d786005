package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"triwhist/internal/engine"
)

// cluster wires three controllers directly to each other, replacing
// the peer transport with in-process delivery.
type cluster struct {
	cs map[engine.Seat]*Controller
}

func newCluster(t *testing.T) *cluster {
	t.Helper()
	cl := &cluster{cs: make(map[engine.Seat]*Controller)}
	for _, seat := range engine.Seats() {
		local := seat
		cl.cs[seat] = newTestController(t, Options{
			Local: local,
			Send: func(raw []byte) {
				for _, other := range engine.Seats() {
					if other == local {
						continue
					}
					target := cl.cs[other]
					go target.HandleMessage(raw)
				}
			},
		})
	}
	for _, seat := range engine.Seats() {
		for _, other := range engine.Seats() {
			if other != seat {
				cl.cs[seat].SetPeerConnected(other, true)
			}
		}
	}
	return cl
}

// waitAll blocks until cond holds on every controller.
func (cl *cluster) waitAll(t *testing.T, msg string, cond func(*Controller) bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, c := range cl.cs {
			c.mu.Lock()
			ok := cond(c)
			c.mu.Unlock()
			if !ok {
				return false
			}
		}
		return true
	}, 5*time.Second, 2*time.Millisecond, msg)
}

// read runs fn on one controller under its lock.
func (cl *cluster) read(seat engine.Seat, fn func(*Controller)) {
	c := cl.cs[seat]
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}

func TestClusterPlaysRoundOne(t *testing.T) {
	cl := newCluster(t)

	cl.waitAll(t, "lobby must settle once all peers connect", func(c *Controller) bool {
		return c.phase == PhaseWaitingToStart
	})

	require.NoError(t, cl.cs[engine.SeatOne].StartNewGame())

	cl.waitAll(t, "round one must deal and open bidding", func(c *Controller) bool {
		return c.phase == PhaseBidding && c.st.Round == 1 &&
			len(c.st.Player(c.local).Hand) == 1
	})

	// All replicas agree on the play order the authority broadcast.
	var order [engine.NumSeats]engine.Seat
	cl.read(engine.SeatOne, func(c *Controller) { order = c.st.PlayOrder })
	for seat, c := range cl.cs {
		c.mu.Lock()
		require.Equal(t, order, c.st.PlayOrder, "replica %v diverged on play order", seat)
		require.NotNil(t, c.st.TrumpSuit, "open round reveals trump on %v", seat)
		c.mu.Unlock()
	}

	// Open bidding is strict: bid in play order, everyone announces
	// zero.
	for i, seat := range order {
		bidder := cl.cs[seat]
		idx := i
		cl.waitAll(t, "earlier bids must replicate before the next seat bids", func(c *Controller) bool {
			for _, earlier := range order[:idx] {
				if !c.st.HasBid(earlier) {
					return false
				}
			}
			return true
		})
		require.NoError(t, bidder.PlaceBid(0))
	}

	cl.waitAll(t, "all bids in, the single trick begins", func(c *Controller) bool {
		return c.phase == PhasePlayingTricks
	})

	// Play the only trick in turn order.
	for i := 0; i < engine.NumSeats; i++ {
		var turn engine.Seat
		played := i
		cl.waitAll(t, "plays must replicate before the next turn", func(c *Controller) bool {
			if c.phase != PhasePlayingTricks || len(c.st.Table) != played {
				return false
			}
			turn = c.st.TurnSeat()
			return true
		})
		var card engine.Card
		cl.read(turn, func(c *Controller) { card = c.st.Player(turn).Hand[0] })
		require.NoError(t, cl.cs[turn].PlayCard(card))
	}

	// The round scores and the machine rolls into round two.
	cl.waitAll(t, "round two must start after scoring", func(c *Controller) bool {
		return c.st.Round == 2 && c.phase == PhaseBidding
	})

	// Identical decks mean every replica crowned the same winner, who
	// scored -5 (bid zero, made one); the others made their zero bids.
	var winner engine.Seat
	cl.read(engine.SeatOne, func(c *Controller) {
		for _, seat := range engine.Seats() {
			if c.st.Player(seat).Made[0] == 1 {
				winner = seat
			}
		}
	})
	for seat, c := range cl.cs {
		c.mu.Lock()
		for _, s := range engine.Seats() {
			want := 10
			if s == winner {
				want = -5
			}
			require.Equal(t, want, c.st.Player(s).ScoreAfterRound(1),
				"replica %v disagrees on %v's score", seat, s)
		}
		require.Empty(t, c.st.Integrity(), "replica %v lost cards", seat)
		c.mu.Unlock()
	}
}

func TestClusterSlowReplicaCatchesUp(t *testing.T) {
	cl := newCluster(t)
	cl.waitAll(t, "lobby", func(c *Controller) bool { return c.phase == PhaseWaitingToStart })

	// A start request from one seat moves every replica, including
	// ones that receive it while still finishing setup.
	require.NoError(t, cl.cs[engine.SeatThree].StartNewGame())
	cl.waitAll(t, "all replicas reach bidding", func(c *Controller) bool {
		return c.phase == PhaseBidding && c.st.Round == 1
	})
}
