package engine

import "testing"

// midRoundState builds a state at the start of the given round with
// the seats placed leader/middle/last in seat order and the supplied
// score histories.
func midRoundState(round int, scores map[Seat][]int) *State {
	s := NewState()
	s.Round = round
	s.TricksGrabbed = make([]bool, MaxTricks(round))
	s.Players[0].Place = PlaceLeader
	s.Players[1].Place = PlaceMiddle
	s.Players[2].Place = PlaceLast
	for seat, history := range scores {
		s.Player(seat).Scores = history
	}
	return s
}

func TestDealOpenBiddingRound(t *testing.T) {
	s := NewState()
	s.BeginRound()
	deck := s.ShuffledDeck(7)
	if err := s.Deal(deck); err != nil {
		t.Fatalf("Deal: %v", err)
	}
	for _, p := range s.Players {
		if len(p.Hand) != 1 {
			t.Errorf("%v dealt %d cards, want 1", p.Seat, len(p.Hand))
		}
	}
	if s.TrumpSuit == nil {
		t.Fatal("open-bid round must reveal trump from the deck")
	}
	if got := s.Deck[len(s.Deck)-1].Suit; got != *s.TrumpSuit {
		t.Errorf("trump %v does not match revealed card suit %v", *s.TrumpSuit, got)
	}
	if violations := s.Integrity(); len(violations) > 0 {
		t.Fatalf("integrity violated after deal: %v", violations)
	}
}

func TestDealWithExtras(t *testing.T) {
	s := midRoundState(5, map[Seat][]int{
		SeatOne:   {10, 20, 30, 40},
		SeatTwo:   {5, 10, 20, 30},
		SeatThree: {5, 10, 15, 25},
	})
	if s.OpenBidding() {
		t.Fatal("scores differ, bidding must be closed")
	}
	if err := s.Deal(s.ShuffledDeck(7)); err != nil {
		t.Fatalf("Deal: %v", err)
	}
	base := CardsToDeal(5)
	if got := len(s.Players[0].Hand); got != base {
		t.Errorf("leader dealt %d, want %d", got, base)
	}
	if got := len(s.Players[1].Hand); got != base+1 {
		t.Errorf("middle dealt %d, want %d", got, base+1)
	}
	if got := len(s.Players[2].Hand); got != base+1 {
		t.Errorf("last dealt %d, want %d", got, base+1)
	}
	if s.TrumpSuit != nil {
		t.Error("closed round must not auto-reveal trump")
	}
	if violations := s.Integrity(); len(violations) > 0 {
		t.Fatalf("integrity violated after deal: %v", violations)
	}
}

func TestDealCatchUpGrantsTwo(t *testing.T) {
	// Last's total two rounds back is at most half of middle's.
	s := midRoundState(5, map[Seat][]int{
		SeatOne:   {10, 20, 40, 50},
		SeatTwo:   {5, 10, 40, 45},
		SeatThree: {5, 10, 20, 25},
	})
	if err := s.Deal(s.ShuffledDeck(7)); err != nil {
		t.Fatalf("Deal: %v", err)
	}
	if got := len(s.Players[2].Hand); got != CardsToDeal(5)+2 {
		t.Errorf("last dealt %d, want %d", got, CardsToDeal(5)+2)
	}
}

// lastRoundCatchUpState puts the last player at half the middle's
// score as of round ten, triggering the two-card bonus at round twelve.
func lastRoundCatchUpState() *State {
	history := func(final int) []int {
		h := make([]int, 11)
		for i := range h {
			h[i] = final
		}
		return h
	}
	s := midRoundState(12, map[Seat][]int{
		SeatOne:   history(60),
		SeatTwo:   history(40),
		SeatThree: history(15),
	})
	return s
}

func TestRoundTwelveBonusRouting(t *testing.T) {
	s := lastRoundCatchUpState()
	if got := s.DiscardRequirement(SeatThree); got != 2 {
		t.Fatalf("last requirement %d, want 2", got)
	}
	if got := s.DiscardRequirement(SeatTwo); got != 2 {
		t.Fatalf("middle requirement %d, want 2", got)
	}
	dest, toPlayer := s.DiscardDestination(SeatThree)
	if !toPlayer || dest != SeatTwo {
		t.Fatalf("last's discards go to (%v, %v), want middle", dest, toPlayer)
	}
	if _, toPlayer := s.DiscardDestination(SeatTwo); toPlayer {
		t.Fatal("middle's discards must return to the deck")
	}

	if err := s.Deal(s.ShuffledDeck(7)); err != nil {
		t.Fatalf("Deal: %v", err)
	}
	// Both spare cards go to the last player; the deck is empty.
	if got := len(s.Players[2].Hand); got != 12 {
		t.Errorf("last dealt %d, want 12", got)
	}
	if got := len(s.Players[1].Hand); got != 10 {
		t.Errorf("middle dealt %d, want 10", got)
	}
	if len(s.Deck) != 0 {
		t.Errorf("deck holds %d cards, want 0", len(s.Deck))
	}

	// Last discards two to the middle player.
	discards := []Card{s.Players[2].Hand[0], s.Players[2].Hand[1]}
	if err := s.Discard(SeatThree, discards); err != nil {
		t.Fatalf("last discard: %v", err)
	}
	if got := len(s.Players[1].Hand); got != 12 {
		t.Errorf("middle holds %d after routing, want 12", got)
	}
	if s.DiscardsSettled() {
		t.Fatal("settled before middle discards")
	}

	// Middle returns two to the deck.
	back := []Card{s.Players[1].Hand[0], s.Players[1].Hand[1]}
	if err := s.Discard(SeatTwo, back); err != nil {
		t.Fatalf("middle discard: %v", err)
	}
	if !s.DiscardsSettled() {
		t.Fatal("not settled after both discards")
	}
	for i, p := range s.Players {
		if len(p.Hand) != 10 {
			t.Errorf("player %d holds %d cards, want 10", i, len(p.Hand))
		}
	}
	if len(s.Deck) != 2 {
		t.Errorf("deck holds %d cards, want 2", len(s.Deck))
	}
	if violations := s.Integrity(); len(violations) > 0 {
		t.Fatalf("integrity violated: %v", violations)
	}
}

func TestDiscardValidation(t *testing.T) {
	s := midRoundState(5, map[Seat][]int{
		SeatOne:   {10, 20, 30, 40},
		SeatTwo:   {5, 10, 20, 30},
		SeatThree: {5, 10, 15, 25},
	})
	if err := s.Deal(s.ShuffledDeck(7)); err != nil {
		t.Fatalf("Deal: %v", err)
	}
	if err := s.Discard(SeatOne, []Card{s.Players[0].Hand[0]}); err == nil {
		t.Fatal("leader has no bonus cards to discard")
	}
	if err := s.Discard(SeatTwo, s.Players[2].Hand[:1]); err == nil {
		t.Fatal("discarding a card not held must fail")
	}
	if err := s.Discard(SeatTwo, []Card{s.Players[1].Hand[0]}); err != nil {
		t.Fatalf("legal discard rejected: %v", err)
	}
	if err := s.Discard(SeatTwo, []Card{s.Players[1].Hand[0]}); err == nil {
		t.Fatal("second discard must fail")
	}
	if violations := s.Integrity(); len(violations) > 0 {
		t.Fatalf("integrity violated: %v", violations)
	}
}
