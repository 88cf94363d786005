// Package engine implements the three-player Whist rules.
//
// The package is deliberately dependency-free and deterministic: every
// peer runs the same engine over the same inputs and must reach a
// bit-identical state. All networking, persistence and timing concerns
// live in the surrounding packages.
package engine

import "fmt"

// Suit represents a card suit.
type Suit int

const (
	Hearts Suit = iota
	Diamonds
	Clubs
	Spades
)

var suitNames = [...]string{"hearts", "diamonds", "clubs", "spades"}

func (s Suit) String() string {
	if s < Hearts || s > Spades {
		return fmt.Sprintf("Suit(%d)", int(s))
	}
	return suitNames[s]
}

// Suits lists all four suits in canonical order.
func Suits() [4]Suit { return [4]Suit{Hearts, Diamonds, Clubs, Spades} }

// Rank represents a card rank. The deck has nine ranks: Two plus
// Seven through Ace. Twos never enter play; they are the four trump
// markers used to select a trump suit.
type Rank int

const (
	Two Rank = iota
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

var rankNames = [...]string{"2", "7", "8", "9", "10", "J", "Q", "K", "A"}

func (r Rank) String() string {
	if r < Two || r > Ace {
		return fmt.Sprintf("Rank(%d)", int(r))
	}
	return rankNames[r]
}

// Precedence returns the rank's position in the total order used for
// trick resolution. Two is lowest, Ace highest.
func (r Rank) Precedence() int { return int(r) }

// Card is a playing card. Identity is the (Suit, Rank) pair; cards are
// compared with ==. Presentation state (face-up, playable) is not part
// of identity and is tracked by the UI layer, not here.
type Card struct {
	Suit Suit `json:"suit"`
	Rank Rank `json:"rank"`
}

func (c Card) String() string { return c.Rank.String() + c.Suit.String()[:1] }

// IsTrumpMarker reports whether the card is one of the four reserved
// Two cards used only to represent and select the trump suit.
func (c Card) IsTrumpMarker() bool { return c.Rank == Two }

// DeckSize counts the ranked cards that are shuffled and dealt.
// TotalCards adds the four trump markers; the integrity audit requires
// exactly TotalCards distinct cards to exist at all times.
const (
	DeckSize   = 32
	TotalCards = 36
)

// NewDeck returns the 32 ranked cards (no Twos) in canonical order.
func NewDeck() []Card {
	deck := make([]Card, 0, DeckSize)
	for _, s := range Suits() {
		for r := Seven; r <= Ace; r++ {
			deck = append(deck, Card{Suit: s, Rank: r})
		}
	}
	return deck
}

// NewTrumpMarkers returns the four Two cards, one per suit.
func NewTrumpMarkers() []Card {
	markers := make([]Card, 0, 4)
	for _, s := range Suits() {
		markers = append(markers, Card{Suit: s, Rank: Two})
	}
	return markers
}
