package engine

// Beats reports whether card a beats card b given the suit led this
// trick and an optional trump suit. Trump beats non-trump; otherwise
// the led suit beats off-suit; within one suit rank precedence
// decides. The relation is a strict total order over any trick's
// cards, so it is usable as a max-comparator.
func Beats(a, b Card, lead Suit, trump *Suit) bool {
	if trump != nil {
		aTrump, bTrump := a.Suit == *trump, b.Suit == *trump
		if aTrump != bTrump {
			return aTrump
		}
		if aTrump && bTrump {
			return a.Rank.Precedence() > b.Rank.Precedence()
		}
	}
	aLead, bLead := a.Suit == lead, b.Suit == lead
	if aLead != bLead {
		return aLead
	}
	if aLead && bLead {
		return a.Rank.Precedence() > b.Rank.Precedence()
	}
	// Two off-suit, non-trump cards: the earlier one stands.
	return false
}

// WinnerOf resolves a completed trick. The first table card sets the
// lead suit.
func WinnerOf(table []PlayedCard, trump *Suit) (Seat, error) {
	if len(table) != NumSeats {
		return 0, RuleErrorf("trick resolution with %d cards", len(table))
	}
	lead := table[0].Card.Suit
	best := table[0]
	for _, pc := range table[1:] {
		if Beats(pc.Card, best.Card, lead, trump) {
			best = pc
		}
	}
	return best.Seat, nil
}
