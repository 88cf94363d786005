package engine

import "fmt"

// Integrity audits card conservation: the deck, the trump markers, the
// table, the last-trick record, every hand and every trick pile must
// together hold exactly the 36 canonical cards, each once. It returns
// the list of violations, empty when the state is sound. The
// controller runs this before every persistence write and refuses to
// save a state that fails.
func (s *State) Integrity() []string {
	var violations []string
	seen := make(map[Card]string, TotalCards)

	note := func(c Card, loc string) {
		if prev, dup := seen[c]; dup {
			violations = append(violations, fmt.Sprintf("card %v in both %s and %s", c, prev, loc))
			return
		}
		seen[c] = loc
	}

	for _, c := range s.Deck {
		note(c, "deck")
	}
	for _, c := range s.TrumpMarkers {
		note(c, "trump markers")
	}
	for _, pc := range s.Table {
		note(pc.Card, "table")
	}
	for seat, c := range s.LastTrick {
		note(c, fmt.Sprintf("last trick (%v)", seat))
	}
	for _, p := range s.Players {
		for _, c := range p.Hand {
			note(c, fmt.Sprintf("%v hand", p.Seat))
		}
		for _, c := range p.TrickCards {
			note(c, fmt.Sprintf("%v trick pile", p.Seat))
		}
	}

	for _, c := range NewDeck() {
		if _, ok := seen[c]; !ok {
			violations = append(violations, fmt.Sprintf("card %v missing", c))
		}
	}
	for _, c := range NewTrumpMarkers() {
		if _, ok := seen[c]; !ok {
			violations = append(violations, fmt.Sprintf("trump marker %v missing", c))
		}
	}
	if len(seen) != TotalCards {
		violations = append(violations, fmt.Sprintf("%d cards accounted for, want %d", len(seen), TotalCards))
	}
	return violations
}
