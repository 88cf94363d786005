package game

import "fmt"

// Phase drives the game-flow state machine. Each peer advances its own
// phase independently; the phases of the three replicas converge
// because every transition is derived from replicated state.
type Phase int

const (
	PhaseWaitingForPlayers Phase = iota
	PhaseResumeSavedGame
	PhaseSetPlayOrder
	PhaseSetupGame
	PhaseWaitingToStart
	PhaseNewGame
	PhaseSetupNewRound
	PhaseWaitingForDeck
	PhaseRenderingDeck
	PhaseDealingCards
	PhaseChoosingTrump
	PhaseWaitingForTrump
	PhaseBidding
	PhaseDiscard
	PhaseShowCard
	PhasePlayingTricks
	PhaseGrabTrick
	PhaseScoring
	PhaseGameOver
)

var phaseNames = [...]string{
	"waitingForPlayers",
	"resumeSavedGame",
	"setPlayOrder",
	"setupGame",
	"waitingToStart",
	"newGame",
	"setupNewRound",
	"waitingForDeck",
	"renderingDeck",
	"dealingCards",
	"choosingTrump",
	"waitingForTrump",
	"bidding",
	"discard",
	"showCard",
	"playingTricks",
	"grabTrick",
	"scoring",
	"gameOver",
}

func (p Phase) String() string {
	if p < PhaseWaitingForPlayers || p > PhaseGameOver {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Reentrant reports whether re-entering the same phase runs its entry
// behavior again. Bidding and trick play iterate once per player turn;
// every other phase is entered at most once per round.
func (p Phase) Reentrant() bool {
	return p == PhaseBidding || p == PhasePlayingTricks
}
