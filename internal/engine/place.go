package engine

// DeterminePlaces recomputes each player's place from the running
// totals. Highest total takes place one and lowest takes place three.
// A tie for lowest walks the score history backward to the first round
// where the tied players differ; the lower score at that round loses.
// If the histories never differ, seating relative to the dealer
// decides: the player immediately after the dealer is last.
func (s *State) DeterminePlaces() {
	players := []*Player{s.Players[0], s.Players[1], s.Players[2]}

	highest := players[0]
	for _, p := range players[1:] {
		if p.Score() > highest.Score() {
			highest = p
		}
	}

	lowest := players[0]
	for _, p := range players[1:] {
		if p == highest {
			continue
		}
		if lowest == highest || s.lowerRanked(p, lowest) {
			lowest = p
		}
	}

	for _, p := range players {
		switch p {
		case highest:
			p.Place = PlaceLeader
		case lowest:
			p.Place = PlaceLast
		default:
			p.Place = PlaceMiddle
		}
	}
}

// lowerRanked reports whether a ranks below b for the last-place
// decision.
func (s *State) lowerRanked(a, b *Player) bool {
	if a.Score() != b.Score() {
		return a.Score() < b.Score()
	}
	for i := minInt(len(a.Scores), len(b.Scores)) - 1; i >= 0; i-- {
		if a.Scores[i] != b.Scores[i] {
			return a.Scores[i] < b.Scores[i]
		}
	}
	// Identical histories: the seat after the dealer is last.
	return s.seatDistanceFromDealer(a.Seat) < s.seatDistanceFromDealer(b.Seat)
}

// seatDistanceFromDealer counts clockwise steps from the dealer.
func (s *State) seatDistanceFromDealer(seat Seat) int {
	d := s.Dealer
	for i := 0; i < NumSeats; i++ {
		d = d.Next()
		if d == seat {
			return i
		}
	}
	return NumSeats
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
