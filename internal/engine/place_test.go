package engine

import "testing"

func placedState(histories [NumSeats][]int) *State {
	s := NewState()
	for i, h := range histories {
		s.Players[i].Scores = h
	}
	return s
}

func TestDeterminePlacesSimple(t *testing.T) {
	s := placedState([NumSeats][]int{
		{10, 40},
		{10, 25},
		{10, 5},
	})
	s.DeterminePlaces()
	if s.Players[0].Place != PlaceLeader {
		t.Errorf("highest score placed %v", s.Players[0].Place)
	}
	if s.Players[1].Place != PlaceMiddle {
		t.Errorf("middle score placed %v", s.Players[1].Place)
	}
	if s.Players[2].Place != PlaceLast {
		t.Errorf("lowest score placed %v", s.Players[2].Place)
	}
}

func TestDeterminePlacesTieWalksHistory(t *testing.T) {
	// Players two and three are tied now; two rounds back player three
	// was lower, so player three takes last place.
	s := placedState([NumSeats][]int{
		{20, 30, 50},
		{15, 25, 20},
		{10, 25, 20},
	})
	s.DeterminePlaces()
	if s.Players[1].Place != PlaceMiddle {
		t.Errorf("player two placed %v, want middle", s.Players[1].Place)
	}
	if s.Players[2].Place != PlaceLast {
		t.Errorf("player three placed %v, want last (lower earlier history)", s.Players[2].Place)
	}
}

func TestDeterminePlacesIdenticalHistoriesFallBackToSeating(t *testing.T) {
	s := placedState([NumSeats][]int{
		{10, 20},
		{5, 15},
		{5, 15},
	})
	s.Dealer = SeatOne
	s.DeterminePlaces()
	// The seat right after the dealer loses the tie.
	if s.Players[1].Place != PlaceLast {
		t.Errorf("seat after dealer placed %v, want last", s.Players[1].Place)
	}
	if s.Players[2].Place != PlaceMiddle {
		t.Errorf("other tied seat placed %v, want middle", s.Players[2].Place)
	}
}
