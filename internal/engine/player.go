package engine

// Place is a player's standing, recomputed every round from scores.
type Place int

const (
	PlaceLeader Place = 1
	PlaceMiddle Place = 2
	PlaceLast   Place = 3
)

// Player holds one seat's mutable game record. Hand order matters (it
// mirrors the deal); the trick pile does not.
type Player struct {
	Seat Seat `json:"seat"`

	Hand       []Card `json:"hand"`
	TrickCards []Card `json:"trickCards"`

	// Scores holds one running total per completed round; the last
	// element is the current total. Announced and Made are parallel,
	// indexed by round.
	Scores    []int `json:"scores"`
	Announced []int `json:"announced"`
	Made      []int `json:"made"`

	Place Place `json:"place"`

	// MonthlyLosses is a carry-over handicap from prior sessions; it
	// feeds the bonus-card formula.
	MonthlyLosses int `json:"monthlyLosses"`

	// HasDiscarded is set once the player has returned this round's
	// bonus cards.
	HasDiscarded bool `json:"hasDiscarded"`
}

// NewPlayer returns an empty record for the given seat.
func NewPlayer(seat Seat) *Player {
	return &Player{Seat: seat, Place: PlaceMiddle}
}

// Score returns the current running total, zero before any round
// completes.
func (p *Player) Score() int {
	if len(p.Scores) == 0 {
		return 0
	}
	return p.Scores[len(p.Scores)-1]
}

// ScoreAfterRound returns the running total recorded after the given
// 1-based round, zero if that round has not completed.
func (p *Player) ScoreAfterRound(round int) int {
	if round < 1 || round > len(p.Scores) {
		return 0
	}
	return p.Scores[round-1]
}

// TotalAnnounced sums the player's bids across all recorded rounds.
func (p *Player) TotalAnnounced() int {
	total := 0
	for _, a := range p.Announced {
		total += a
	}
	return total
}

// TricksWonThisRound counts completed tricks in the pile. Each trick
// moves exactly NumSeats cards.
func (p *Player) TricksWonThisRound() int {
	return len(p.TrickCards) / NumSeats
}

// RemoveFromHand removes the first card equal to c from the hand and
// reports whether it was present.
func (p *Player) RemoveFromHand(c Card) bool {
	for i, h := range p.Hand {
		if h == c {
			p.Hand = append(p.Hand[:i], p.Hand[i+1:]...)
			return true
		}
	}
	return false
}

// HoldsCard reports whether c is in the hand.
func (p *Player) HoldsCard(c Card) bool {
	for _, h := range p.Hand {
		if h == c {
			return true
		}
	}
	return false
}

// ResetForRound clears per-round trackers. Hands and piles are rebuilt
// by the deal.
func (p *Player) ResetForRound() {
	p.Hand = p.Hand[:0]
	p.TrickCards = p.TrickCards[:0]
	p.HasDiscarded = false
}

// ResetForGame clears everything accumulated during a game, keeping
// the seat and the monthly-loss carry-over.
func (p *Player) ResetForGame() {
	p.ResetForRound()
	p.Scores = p.Scores[:0]
	p.Announced = p.Announced[:0]
	p.Made = p.Made[:0]
	p.Place = PlaceMiddle
}
