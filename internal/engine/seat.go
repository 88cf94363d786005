package engine

import "fmt"

// Seat identifies one of the three fixed player positions. Seats are
// stable across repeated games within a session.
type Seat int

const (
	SeatOne Seat = iota
	SeatTwo
	SeatThree
)

// NumSeats is fixed at three. The offer cycle, the dealer rotation and
// the place tie-breaks are all defined over exactly three seats.
const NumSeats = 3

// AuthoritySeat is the designated sequencer: it alone generates the
// play order at game start and is the only seat that persists state.
const AuthoritySeat = SeatThree

var seatNames = [...]string{"playerOne", "playerTwo", "playerThree"}

func (s Seat) String() string {
	if s < SeatOne || s > SeatThree {
		return fmt.Sprintf("Seat(%d)", int(s))
	}
	return seatNames[s]
}

// Valid reports whether s is one of the three seats.
func (s Seat) Valid() bool { return s >= SeatOne && s <= SeatThree }

// Next returns the seat after s in the fixed clockwise cycle.
func (s Seat) Next() Seat { return (s + 1) % NumSeats }

// Seats lists all seats in canonical order.
func Seats() [NumSeats]Seat { return [NumSeats]Seat{SeatOne, SeatTwo, SeatThree} }

// TablePosition is a seat's position relative to the local player.
type TablePosition int

const (
	PositionLocal TablePosition = iota
	PositionLeft
	PositionRight
)

// PositionOf returns where seat s sits relative to the local seat,
// given the current play order. The play order fills the table
// clockwise starting from the local player.
func PositionOf(s, local Seat, playOrder [NumSeats]Seat) TablePosition {
	if s == local {
		return PositionLocal
	}
	localIdx, seatIdx := -1, -1
	for i, p := range playOrder {
		if p == local {
			localIdx = i
		}
		if p == s {
			seatIdx = i
		}
	}
	if localIdx < 0 || seatIdx < 0 {
		return PositionLocal
	}
	if (localIdx+1)%NumSeats == seatIdx {
		return PositionLeft
	}
	return PositionRight
}
