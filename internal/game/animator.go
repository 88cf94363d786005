package game

// Transition names an abstract batched UI transition. The rendering
// layer decides what each one looks like; the controller only starts a
// batch and waits for its completion callback.
type Transition string

const (
	TransitionDealDeck   Transition = "deal_deck"
	TransitionShowTrump  Transition = "show_trump"
	TransitionTrickTaken Transition = "trick_taken"
	TransitionNewRound   Transition = "new_round"
	TransitionSlowPoke   Transition = "slow_poke"
	TransitionHonk       Transition = "honk"
	TransitionGameOver   Transition = "game_over"
)

// Animator is the narrow contract to the rendering layer. Begin must
// eventually invoke done exactly once; done may be called synchronously.
// The controller never assumes anything else about rendering.
type Animator interface {
	Begin(t Transition, done func())
}

// NopAnimator completes every transition immediately. Used headless
// and in tests.
type NopAnimator struct{}

func (NopAnimator) Begin(_ Transition, done func()) { done() }
