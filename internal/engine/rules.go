package engine

import "fmt"

// RuleError reports a rule violation. The replicas must agree on every
// rule decision, so a RuleError on one peer for a replicated action
// indicates a protocol bug; the controller treats it as fatal.
type RuleError string

func (e RuleError) Error() string { return string(e) }

// RuleErrorf formats a RuleError.
func RuleErrorf(format string, args ...any) RuleError {
	return RuleError(fmt.Sprintf(format, args...))
}

// CardsToDeal returns the base hand size for a round: one card for
// rounds one through three, then round-2 up to ten at round twelve.
func CardsToDeal(round int) int {
	if round <= 3 {
		return 1
	}
	return round - 2
}

// MaxTricks returns the number of tricks played in a round.
func MaxTricks(round int) int {
	n := round - 2
	if n < 1 {
		n = 1
	}
	return n
}

// ExtraCardsMiddle returns the bonus-card count for the middle-placed
// player: one, or two when the carry-over handicap is heavy and the
// deck still has room (never at round twelve).
func ExtraCardsMiddle(round, monthlyLosses int) int {
	if monthlyLosses > 1 && round < NumRounds {
		return 2
	}
	return 1
}

// ExtraCardsLast returns the bonus-card count for the last-placed
// player. Two cards when the handicap applies or the player has fallen
// to half the middle player's total as of two rounds back. At round
// twelve only the half-score catch-up grants two, since the deck has
// exactly two spare cards.
func ExtraCardsLast(round, monthlyLosses, lastScore, middleScore int) int {
	catchUp := lastScore <= middleScore/2
	if round == NumRounds {
		if catchUp {
			return 2
		}
		return 1
	}
	if monthlyLosses > 0 || catchUp {
		return 2
	}
	return 1
}

// extraCards computes this round's bonus counts per seat. Open-bid
// rounds deal no extras.
func (s *State) extraCards() map[Seat]int {
	extras := make(map[Seat]int)
	if s.OpenBidding() {
		return extras
	}
	middle := s.PlayerAtPlace(PlaceMiddle)
	last := s.PlayerAtPlace(PlaceLast)
	if middle == nil || last == nil {
		return extras
	}
	snapshot := s.Round - 2
	extras[middle.Seat] = ExtraCardsMiddle(s.Round, middle.MonthlyLosses)
	extras[last.Seat] = ExtraCardsLast(s.Round, last.MonthlyLosses,
		last.ScoreAfterRound(snapshot), middle.ScoreAfterRound(snapshot))
	return extras
}

// Deal distributes the broadcast deck. Every replica, dealer included,
// runs the identical loop: base cards clockwise in play order, then
// bonus cards to the middle and last players. On open-bid rounds the
// trump suit is revealed from the last card left in the deck.
//
// At round twelve, when the last-placed player is owed two bonus
// cards, the two spare deck cards go to that player and the middle
// player's bonus arrives later via the discard routing (see
// DiscardDestination).
func (s *State) Deal(deck []Card) error {
	if len(deck) != DeckSize {
		return RuleErrorf("deal with %d cards, want %d", len(deck), DeckSize)
	}
	s.Deck = append(s.Deck[:0], deck...)
	base := CardsToDeal(s.Round)
	for i := 0; i < base; i++ {
		for _, seat := range s.PlayOrder {
			card, err := s.drawTop()
			if err != nil {
				return err
			}
			p := s.Player(seat)
			p.Hand = append(p.Hand, card)
		}
	}

	if s.OpenBidding() {
		if len(s.Deck) == 0 {
			return RuleErrorf("no deck card left to reveal trump")
		}
		suit := s.Deck[len(s.Deck)-1].Suit
		s.TrumpSuit = &suit
		return nil
	}

	extras := s.extraCards()
	last := s.PlayerAtPlace(PlaceLast)
	middle := s.PlayerAtPlace(PlaceMiddle)
	if s.Round == NumRounds && extras[last.Seat] == 2 {
		// Both spare cards to the last player; the middle player's
		// bonus comes from the last player's discards.
		for i := 0; i < 2; i++ {
			card, err := s.drawTop()
			if err != nil {
				return err
			}
			last.Hand = append(last.Hand, card)
		}
		return nil
	}
	for _, p := range [...]*Player{middle, last} {
		for i := 0; i < extras[p.Seat]; i++ {
			card, err := s.drawTop()
			if err != nil {
				return err
			}
			p.Hand = append(p.Hand, card)
		}
	}
	return nil
}

func (s *State) drawTop() (Card, error) {
	if len(s.Deck) == 0 {
		return Card{}, RuleErrorf("deck exhausted during deal")
	}
	card := s.Deck[0]
	s.Deck = s.Deck[1:]
	return card, nil
}

// RevealedTrumpCard returns the deck card whose suit set the trump on
// an open-bid round, for display.
func (s *State) RevealedTrumpCard() (Card, bool) {
	if !s.OpenBidding() || len(s.Deck) == 0 {
		return Card{}, false
	}
	return s.Deck[len(s.Deck)-1], true
}

// ---------------------------------------------------------------------------
// Bidding
// ---------------------------------------------------------------------------

// Bid records a seat's announced trick count for the current round.
// On open-bid rounds the bid order is strict: a seat may bid only
// after every earlier seat in play order has bid.
func (s *State) Bid(seat Seat, tricks int) error {
	if tricks < 0 || tricks > MaxTricks(s.Round) {
		return RuleErrorf("illegal bid %d in round %d", tricks, s.Round)
	}
	p := s.Player(seat)
	if len(p.Announced) >= s.Round {
		return RuleErrorf("%v already bid in round %d", seat, s.Round)
	}
	if len(p.Announced) != s.Round-1 {
		return RuleErrorf("%v bid records out of sync (%d for round %d)", seat, len(p.Announced), s.Round)
	}
	if !s.BidTurnReady(seat) {
		return RuleErrorf("%v bid out of turn in round %d", seat, s.Round)
	}
	p.Announced = append(p.Announced, tricks)
	return nil
}

// BidTurnReady reports whether the seat may announce now. Closed-bid
// rounds bid in any order; open-bid rounds are strict, every earlier
// seat in play order must have announced first.
func (s *State) BidTurnReady(seat Seat) bool {
	if !s.OpenBidding() {
		return true
	}
	for _, earlier := range s.PlayOrder {
		if earlier == seat {
			return true
		}
		if !s.HasBid(earlier) {
			return false
		}
	}
	return true
}

// HasBid reports whether the seat has announced for the current round.
func (s *State) HasBid(seat Seat) bool {
	return len(s.Player(seat).Announced) >= s.Round
}

// AllBid reports whether all three seats have announced.
func (s *State) AllBid() bool {
	for _, seat := range Seats() {
		if !s.HasBid(seat) {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Discarding bonus cards
// ---------------------------------------------------------------------------

// DiscardRequirement returns how many cards the seat must discard this
// round: the number of bonus cards it was (or will be) dealt.
func (s *State) DiscardRequirement(seat Seat) int {
	extras := s.extraCards()
	n := extras[seat]
	if s.Round == NumRounds {
		last := s.PlayerAtPlace(PlaceLast)
		middle := s.PlayerAtPlace(PlaceMiddle)
		if last != nil && middle != nil && extras[last.Seat] == 2 && seat == middle.Seat {
			// The middle player receives and returns the last
			// player's two discards.
			return 2
		}
	}
	return n
}

// DiscardDestination names where a seat's discards go. Discards return
// to the bottom of the deck, except at round twelve when the last
// player owes its two discards to the middle player, whose deck bonus
// the last player consumed.
func (s *State) DiscardDestination(seat Seat) (Seat, bool) {
	if s.Round != NumRounds {
		return 0, false
	}
	last := s.PlayerAtPlace(PlaceLast)
	middle := s.PlayerAtPlace(PlaceMiddle)
	if last == nil || middle == nil {
		return 0, false
	}
	if seat == last.Seat && s.extraCards()[last.Seat] == 2 {
		return middle.Seat, true
	}
	return 0, false
}

// Discard removes the listed cards from the seat's hand and routes
// them to the deck bottom or, at round twelve, to the middle player.
func (s *State) Discard(seat Seat, cards []Card) error {
	want := s.DiscardRequirement(seat)
	if want == 0 {
		return RuleErrorf("%v has nothing to discard in round %d", seat, s.Round)
	}
	if len(cards) != want {
		return RuleErrorf("%v discarded %d cards, want %d", seat, len(cards), want)
	}
	p := s.Player(seat)
	if p.HasDiscarded {
		return RuleErrorf("%v already discarded this round", seat)
	}
	dest, toPlayer := s.DiscardDestination(seat)
	for _, c := range cards {
		if !p.RemoveFromHand(c) {
			return RuleErrorf("%v does not hold %v", seat, c)
		}
		if toPlayer {
			s.Player(dest).Hand = append(s.Player(dest).Hand, c)
		} else {
			s.Deck = append(s.Deck, c)
		}
	}
	p.HasDiscarded = true
	return nil
}

// DiscardsSettled reports whether bidding may conclude: the last
// player must have discarded, and at round twelve with the two-card
// bonus the middle player must have discarded as well.
func (s *State) DiscardsSettled() bool {
	if s.OpenBidding() {
		return true
	}
	last := s.PlayerAtPlace(PlaceLast)
	middle := s.PlayerAtPlace(PlaceMiddle)
	if last == nil || middle == nil {
		return true
	}
	if s.Round == NumRounds && s.extraCards()[last.Seat] == 2 {
		if !middle.HasDiscarded {
			return false
		}
	}
	return last.HasDiscarded
}

// ---------------------------------------------------------------------------
// Scoring
// ---------------------------------------------------------------------------

// RoundScore returns the score delta for one player and round.
func RoundScore(announced, made, round int) int {
	if announced != made {
		diff := made - announced
		if diff < 0 {
			diff = -diff
		}
		return -5 * diff
	}
	if announced == MaxTricks(round) {
		return 10 + 10*made
	}
	return 10 + 5*made
}

// ScoreRound finalizes the current round: records made tricks, appends
// each running total and recomputes places.
func (s *State) ScoreRound() error {
	if !s.RoundOver() {
		return RuleErrorf("scoring with cards still in play")
	}
	s.FlushLastTrick()
	for _, p := range s.Players {
		if len(p.Announced) < s.Round {
			return RuleErrorf("%v never bid in round %d", p.Seat, s.Round)
		}
		made := p.TricksWonThisRound()
		p.Made = append(p.Made, made)
		delta := RoundScore(p.Announced[s.Round-1], made, s.Round)
		p.Scores = append(p.Scores, p.Score()+delta)
	}
	s.DeterminePlaces()
	return nil
}

// ApplyFinalBonus grants fifteen points to the single player with the
// strictly highest total of announced tricks across all twelve rounds.
// A tie for the maximum grants nothing.
func (s *State) ApplyFinalBonus() {
	best, count := -1, 0
	for _, p := range s.Players {
		t := p.TotalAnnounced()
		switch {
		case t > best:
			best, count = t, 1
		case t == best:
			count++
		}
	}
	if count != 1 {
		return
	}
	for _, p := range s.Players {
		if p.TotalAnnounced() == best {
			p.Scores[len(p.Scores)-1] += 15
		}
	}
}
