package engine

// NumRounds is the fixed length of a game.
const NumRounds = 12

// PlayedCard is a card on the table together with the seat that
// played it. Table order equals the play-order prefix for the
// current trick.
type PlayedCard struct {
	Seat Seat `json:"seat"`
	Card Card `json:"card"`
}

// State is the root aggregate every peer replicates. All mutation goes
// through methods that either succeed identically on every replica or
// return a RuleError identically on every replica.
type State struct {
	Round int `json:"round"`

	Deck         []Card            `json:"deck"`
	TrumpMarkers []Card            `json:"trumpMarkers"`
	Table        []PlayedCard      `json:"table"`
	LastTrick    map[Seat]Card     `json:"lastTrick"`
	Players      [NumSeats]*Player `json:"players"`

	TrumpSuit *Suit `json:"trumpSuit,omitempty"`

	PlayOrder [NumSeats]Seat `json:"playOrder"`
	Dealer    Seat           `json:"dealer"`

	CurrentTrick  int    `json:"currentTrick"`
	TricksGrabbed []bool `json:"tricksGrabbed"`

	// LastTrickWinner owns the cards in LastTrick until the next
	// trick completes (or scoring flushes them into its pile).
	LastTrickWinner *Seat `json:"lastTrickWinner,omitempty"`

	rng uint64
}

// NewState builds a fresh session state with three default players.
func NewState() *State {
	s := &State{
		LastTrick: make(map[Seat]Card),
		Dealer:    SeatThree,
		PlayOrder: [NumSeats]Seat{SeatOne, SeatTwo, SeatThree},
	}
	for i, seat := range Seats() {
		s.Players[i] = NewPlayer(seat)
	}
	s.Deck = NewDeck()
	s.TrumpMarkers = NewTrumpMarkers()
	return s
}

// Player returns the record for the given seat.
func (s *State) Player(seat Seat) *Player { return s.Players[int(seat)] }

// PlayerAtPlace returns the player currently holding the given place.
func (s *State) PlayerAtPlace(place Place) *Player {
	for _, p := range s.Players {
		if p.Place == place {
			return p
		}
	}
	return nil
}

// AllScoresEqual reports whether the three running totals are equal.
// Before the first round completes this is trivially true.
func (s *State) AllScoresEqual() bool {
	a, b, c := s.Players[0].Score(), s.Players[1].Score(), s.Players[2].Score()
	return a == b && b == c
}

// OpenBidding reports whether this round bids in strict turn order
// with the trump revealed from the deck: rounds one through three, or
// any round where the three totals are tied.
func (s *State) OpenBidding() bool {
	return s.Round <= 3 || s.AllScoresEqual()
}

// ResetForNewGame clears all per-game records. The dealer and play
// order stay as last established; a fresh SetPlayOrder arrives before
// each game.
func (s *State) ResetForNewGame() {
	for _, p := range s.Players {
		p.ResetForGame()
	}
	s.Round = 0
	s.Table = s.Table[:0]
	s.LastTrick = make(map[Seat]Card)
	s.LastTrickWinner = nil
	s.TrumpSuit = nil
	s.Deck = NewDeck()
	s.TrumpMarkers = NewTrumpMarkers()
}

// BeginRound advances to the next round: increments the counter,
// rotates the dealer to the next seat in play order, resets per-round
// trackers and rebuilds the deck. The player after the dealer leads.
func (s *State) BeginRound() {
	s.Round++
	if s.Round > 1 {
		// Rotate the deal and restore seating order, dealer last.
		s.Dealer = s.nextInPlayOrder(s.Dealer)
		s.PlayOrder = [NumSeats]Seat{s.Dealer.Next(), s.Dealer.Next().Next(), s.Dealer}
	}
	for _, p := range s.Players {
		p.ResetForRound()
	}
	s.Table = s.Table[:0]
	s.LastTrick = make(map[Seat]Card)
	s.LastTrickWinner = nil
	s.TrumpSuit = nil
	s.CurrentTrick = 0
	s.TricksGrabbed = make([]bool, MaxTricks(s.Round))
	s.Deck = NewDeck()
	s.TrumpMarkers = NewTrumpMarkers()
}

func (s *State) nextInPlayOrder(seat Seat) Seat {
	for i, p := range s.PlayOrder {
		if p == seat {
			return s.PlayOrder[(i+1)%NumSeats]
		}
	}
	return seat.Next()
}

// SetPlayOrder installs the permutation broadcast by the authority
// seat at game start.
func (s *State) SetPlayOrder(order [NumSeats]Seat) error {
	seen := [NumSeats]bool{}
	for _, seat := range order {
		if !seat.Valid() || seen[int(seat)] {
			return RuleErrorf("invalid play order %v", order)
		}
		seen[int(seat)] = true
	}
	s.PlayOrder = order
	// The last seat in the opening order deals first.
	s.Dealer = order[NumSeats-1]
	return nil
}

// ---------------------------------------------------------------------------
// Shuffle: xorshift64, seeded by the dealer and broadcast so all
// replicas deal the identical deck.
// ---------------------------------------------------------------------------

func (s *State) nextRand() uint64 {
	x := s.rng
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	s.rng = x
	return x
}

// ShuffledDeck returns a fresh 32-card deck shuffled from the given
// seed. Only the dealer calls this; everyone else receives the result
// over the wire.
func (s *State) ShuffledDeck(seed uint64) []Card {
	if seed == 0 {
		seed = 1 // xorshift cannot start at 0
	}
	s.rng = seed
	deck := NewDeck()
	for i := len(deck) - 1; i > 0; i-- {
		j := int(s.nextRand() % uint64(i+1))
		deck[i], deck[j] = deck[j], deck[i]
	}
	return deck
}

// ---------------------------------------------------------------------------
// Trick play
// ---------------------------------------------------------------------------

// TurnSeat returns the seat that must play next in the current trick.
func (s *State) TurnSeat() Seat {
	return s.PlayOrder[len(s.Table)%NumSeats]
}

// PlayCard moves a card from the seat's hand to the table. The table
// fills in play-order sequence.
func (s *State) PlayCard(seat Seat, c Card) error {
	if len(s.Table) >= NumSeats {
		return RuleErrorf("table already holds %d cards", len(s.Table))
	}
	if s.TurnSeat() != seat {
		return RuleErrorf("%v played out of turn (expected %v)", seat, s.TurnSeat())
	}
	if c.IsTrumpMarker() {
		return RuleErrorf("%v played a trump marker %v", seat, c)
	}
	if !s.Player(seat).RemoveFromHand(c) {
		return RuleErrorf("%v does not hold %v", seat, c)
	}
	s.Table = append(s.Table, PlayedCard{Seat: seat, Card: c})
	return nil
}

// TrickComplete reports whether all three seats have played.
func (s *State) TrickComplete() bool { return len(s.Table) == NumSeats }

// GrabTrick resolves the completed trick: determines the winner,
// records the trick as the last-trick display record and rotates the
// play order so the winner leads. The previous last trick, if any,
// moves into its winner's pile; every card stays in exactly one
// collection. The per-trick ledger guards against double assignment.
func (s *State) GrabTrick() (Seat, error) {
	if len(s.Table) != NumSeats {
		return 0, RuleErrorf("grab with %d cards on table", len(s.Table))
	}
	if s.CurrentTrick >= len(s.TricksGrabbed) {
		return 0, RuleErrorf("trick index %d out of range", s.CurrentTrick)
	}
	if s.TricksGrabbed[s.CurrentTrick] {
		return 0, RuleErrorf("trick %d already grabbed", s.CurrentTrick)
	}
	winner, err := WinnerOf(s.Table, s.TrumpSuit)
	if err != nil {
		return 0, err
	}
	s.TricksGrabbed[s.CurrentTrick] = true
	s.FlushLastTrick()
	s.LastTrick = make(map[Seat]Card, NumSeats)
	for _, pc := range s.Table {
		s.LastTrick[pc.Seat] = pc.Card
	}
	w := winner
	s.LastTrickWinner = &w
	s.Table = s.Table[:0]
	s.CurrentTrick++
	s.PlayOrder = [NumSeats]Seat{winner, winner.Next(), winner.Next().Next()}
	return winner, nil
}

// FlushLastTrick moves the displayed last trick into its winner's
// pile. Called before the next grab and before scoring.
func (s *State) FlushLastTrick() {
	if s.LastTrickWinner == nil {
		return
	}
	p := s.Player(*s.LastTrickWinner)
	for _, seat := range Seats() {
		if c, ok := s.LastTrick[seat]; ok {
			p.TrickCards = append(p.TrickCards, c)
		}
	}
	s.LastTrick = make(map[Seat]Card)
	s.LastTrickWinner = nil
}

// TricksWon counts the seat's completed tricks including an unflushed
// last trick.
func (s *State) TricksWon(seat Seat) int {
	n := s.Player(seat).TricksWonThisRound()
	if s.LastTrickWinner != nil && *s.LastTrickWinner == seat {
		n++
	}
	return n
}

// RoundOver reports whether every hand has been played out.
func (s *State) RoundOver() bool {
	for _, p := range s.Players {
		if len(p.Hand) > 0 {
			return false
		}
	}
	return len(s.Table) == 0
}

// ---------------------------------------------------------------------------
// Trump selection
// ---------------------------------------------------------------------------

// ChooseTrump sets the trump suit from one of the four marker cards.
// Only the last-placed player chooses; the caller enforces who.
func (s *State) ChooseTrump(marker Card) error {
	if !marker.IsTrumpMarker() {
		return RuleErrorf("%v is not a trump marker", marker)
	}
	if s.TrumpSuit != nil {
		return RuleErrorf("trump already set to %v", *s.TrumpSuit)
	}
	suit := marker.Suit
	s.TrumpSuit = &suit
	return nil
}

// CancelTrump reverts an accepted trump choice, looping the flow back
// to choosing.
func (s *State) CancelTrump() {
	s.TrumpSuit = nil
}
