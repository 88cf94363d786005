package game

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"triwhist/internal/engine"
)

// Store is the persistence collaborator: an append-only action log and
// a snapshot slot, both local to this process.
type Store interface {
	AppendAction(a Action) error
	SaveSnapshot(s Snapshot) error
	LoadSnapshot() (*Snapshot, error)
	Clear() error
}

// Snapshot is the durable image of a session, enough to resume after a
// crash or relaunch.
type Snapshot struct {
	Phase Phase         `json:"phase"`
	State *engine.State `json:"state"`
}

// Stats is the cross-session score history collaborator. It feeds the
// monthly-loss handicap into the deal and records finished games.
type Stats interface {
	MonthlyLosses(ctx context.Context) (map[engine.Seat]int, error)
	RecordGame(ctx context.Context, scores map[engine.Seat]int) error
}

// SendFunc broadcasts an encoded action to both remote peers,
// best-effort.
type SendFunc func(raw []byte)

// AfterFunc schedules fn after d, returning a cancellable timer.
// Injectable so tests run without real delays.
type AfterFunc func(d time.Duration, fn func()) *time.Timer

// Options configures a Controller.
type Options struct {
	Local    engine.Seat
	Send     SendFunc
	Store    Store
	Stats    Stats
	Animator Animator
	Logger   *logrus.Logger

	// GrabDelay paces trick collection so players see the completed
	// trick before it leaves the table.
	GrabDelay time.Duration
	// SlowPokeDelay arms whenever the local player owes an action.
	SlowPokeDelay time.Duration

	After AfterFunc
}

// Controller is the replicated game-flow state machine. All three
// peers run one; each applies the same actions and independently
// derives the same state. Mutation is serialized by a single mutex:
// network callbacks, timers and UI calls all funnel through it, so the
// concurrency model is cooperative, never parallel.
type Controller struct {
	mu  sync.Mutex
	log *logrus.Entry

	local engine.Seat
	st    *engine.State
	phase Phase

	deferred []Action
	statuses map[engine.Seat]PlayerStatus
	connected map[engine.Seat]bool

	store Store
	stats Stats
	send  SendFunc
	anim  Animator
	after AfterFunc

	grabDelay     time.Duration
	slowPokeDelay time.Duration
	slowPokeTimer *time.Timer

	// Per-game bootstrap latches.
	orderReceived  bool
	setupDone      bool
	startRequested bool
	showCardDone   bool
	trumpShown     bool

	pendingDeck []engine.Card

	fatalf func(format string, args ...any)
}

// NewController builds a controller in the waitingForPlayers phase.
func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	c := &Controller{
		log:           logger.WithField("seat", opts.Local),
		local:         opts.Local,
		st:            engine.NewState(),
		phase:         PhaseWaitingForPlayers,
		statuses:      make(map[engine.Seat]PlayerStatus),
		connected:     make(map[engine.Seat]bool),
		store:         opts.Store,
		stats:         opts.Stats,
		send:          opts.Send,
		anim:          opts.Animator,
		after:         opts.After,
		grabDelay:     opts.GrabDelay,
		slowPokeDelay: opts.SlowPokeDelay,
	}
	if c.anim == nil {
		c.anim = NopAnimator{}
	}
	if c.after == nil {
		c.after = time.AfterFunc
	}
	if c.send == nil {
		c.send = func([]byte) {}
	}
	c.fatalf = c.log.Fatalf
	return c
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// State returns the replicated game state. Callers must treat it as
// read-only.
func (c *Controller) State() *engine.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

// ---------------------------------------------------------------------------
// Phase machine
// ---------------------------------------------------------------------------

// transitionTo changes phase and runs the phase-entry behavior.
// Re-entering the current phase is a no-op except for the two phases
// iterated once per player turn. Assumes lock is held.
func (c *Controller) transitionTo(p Phase) {
	if p == c.phase && !p.Reentrant() {
		return
	}
	c.log.WithFields(logrus.Fields{"from": c.phase, "to": p}).Info("phase transition")
	c.phase = p
	c.cancelSlowPoke()
	c.handleStateTransition(p)
}

// handleStateTransition runs the entry behavior for the phase just
// entered. The deferred queue drains first; if anything applied, the
// advancement check takes over instead of continuing synchronously,
// which prevents stale double-processing. Assumes lock is held.
func (c *Controller) handleStateTransition(p Phase) {
	if p == PhaseSetPlayOrder {
		// Latches reset before the drain: a play_order deferred during
		// the previous game must not carry that game's setup state
		// into this one.
		c.orderReceived = false
		c.setupDone = false
		c.startRequested = false
	}
	if applied := c.drainDeferred(); applied > 0 {
		c.checkAndAdvanceStateIfNeeded()
		return
	}

	switch p {
	case PhaseResumeSavedGame:
		c.enterResumeSavedGame()
	case PhaseSetPlayOrder:
		c.enterSetPlayOrder()
	case PhaseSetupGame:
		c.enterSetupGame()
	case PhaseNewGame:
		c.enterNewGame()
	case PhaseSetupNewRound:
		c.enterSetupNewRound()
	case PhaseWaitingToStart, PhaseWaitingForDeck:
		// The exit condition may have latched while a prior phase held
		// the deferred or always-valid action; poll immediately.
		c.checkAndAdvanceStateIfNeeded()
	case PhaseRenderingDeck:
		c.enterRenderingDeck()
	case PhaseDealingCards:
		c.enterDealingCards()
	case PhaseChoosingTrump, PhaseWaitingForTrump, PhaseDiscard, PhaseBidding:
		c.armSlowPokeIfOwed()
		c.checkAndAdvanceStateIfNeeded()
	case PhaseShowCard:
		c.enterShowCard()
	case PhasePlayingTricks:
		c.enterPlayingTricks()
	case PhaseGrabTrick:
		c.enterGrabTrick()
	case PhaseScoring:
		c.enterScoring()
	case PhaseGameOver:
		c.enterGameOver()
	}
}

// checkAndAdvanceStateIfNeeded re-evaluates the current phase's exit
// condition. It is idempotent and safe to call on every external
// change: action received, timer fired, deck arrived, peer joined. The
// three peers see the same facts at different times; this poll is what
// lets each advance whenever its own facts are complete.
// Assumes lock is held.
func (c *Controller) checkAndAdvanceStateIfNeeded() {
	switch c.phase {
	case PhaseWaitingForPlayers:
		if c.allPeersConnected() {
			if c.hasSavedGame() {
				c.transitionTo(PhaseResumeSavedGame)
			} else {
				c.transitionTo(PhaseSetPlayOrder)
			}
		}
	case PhaseSetPlayOrder:
		if c.orderReceived {
			c.transitionTo(PhaseSetupGame)
		}
	case PhaseSetupGame:
		if c.setupDone {
			c.transitionTo(PhaseWaitingToStart)
		}
	case PhaseWaitingToStart:
		if c.startRequested {
			c.transitionTo(PhaseNewGame)
		}
	case PhaseWaitingForDeck, PhaseRenderingDeck:
		if c.pendingDeck != nil {
			c.transitionTo(PhaseDealingCards)
		}
	case PhaseChoosingTrump, PhaseWaitingForTrump:
		if c.st.TrumpSuit != nil {
			if c.owesDiscard() {
				c.transitionTo(PhaseDiscard)
			} else {
				c.transitionTo(PhaseBidding)
			}
			return
		}
		c.armSlowPokeIfOwed()
	case PhaseDiscard:
		if c.trumpCancelledOnLocalChooser() {
			c.transitionTo(PhaseChoosingTrump)
			return
		}
		if c.st.Player(c.local).HasDiscarded || !c.owesDiscard() {
			c.transitionTo(PhaseBidding)
			return
		}
		c.armSlowPokeIfOwed()
	case PhaseBidding:
		if c.trumpCancelledOnLocalChooser() {
			c.transitionTo(PhaseChoosingTrump)
			return
		}
		if !c.st.AllBid() {
			c.armSlowPokeIfOwed()
			return
		}
		if c.st.OpenBidding() {
			c.transitionTo(PhaseShowCard)
		} else if c.st.TrumpSuit != nil && c.st.DiscardsSettled() {
			c.transitionTo(PhasePlayingTricks)
		}
	case PhaseShowCard:
		if c.showCardDone {
			c.transitionTo(PhasePlayingTricks)
		}
	case PhasePlayingTricks:
		if c.st.TrickComplete() {
			c.transitionTo(PhaseGrabTrick)
		} else {
			c.armSlowPokeIfOwed()
		}
	}
}

// trumpCancelledOnLocalChooser reports whether a cancelled trump
// choice must loop the local player back to choosing. Only the
// last-placed player chooses; everyone else stays where they are.
// Assumes lock is held.
func (c *Controller) trumpCancelledOnLocalChooser() bool {
	if c.st.TrumpSuit != nil || c.st.OpenBidding() {
		return false
	}
	p := c.st.PlayerAtPlace(engine.PlaceLast)
	return p != nil && p.Seat == c.local
}

// ---------------------------------------------------------------------------
// Phase entry behaviors. All assume lock is held.
// ---------------------------------------------------------------------------

func (c *Controller) enterResumeSavedGame() {
	if c.store == nil {
		c.transitionTo(PhaseSetPlayOrder)
		return
	}
	snap, err := c.store.LoadSnapshot()
	if err != nil || snap == nil || snap.State == nil {
		if err != nil {
			c.log.WithError(err).Error("loading saved game")
		}
		c.transitionTo(PhaseSetPlayOrder)
		return
	}
	if violations := snap.State.Integrity(); len(violations) > 0 {
		c.log.WithField("violations", violations).Error("saved game failed integrity check, discarding")
		if err := c.store.Clear(); err != nil {
			c.log.WithError(err).Error("clearing corrupt save")
		}
		c.transitionTo(PhaseSetPlayOrder)
		return
	}
	c.st = snap.State
	c.phase = snap.Phase
	c.orderReceived = true
	c.setupDone = true
	c.log.WithFields(logrus.Fields{"phase": snap.Phase, "round": snap.State.Round}).Info("resumed saved game")
	c.broadcastStatus(StatusPlaying)
	c.drainDeferred()
	c.checkAndAdvanceStateIfNeeded()
}

func (c *Controller) enterSetPlayOrder() {
	if c.local != engine.AuthoritySeat {
		return // wait for the authority's broadcast
	}
	order := randomPlayOrder()
	a, err := NewAction(c.local, ActionPlayOrder, PlayOrderPayload{Order: order})
	if err != nil {
		c.fatalf("encode play order: %v", err)
		return
	}
	c.applyAndBroadcast(a)
}

func (c *Controller) enterSetupGame() {
	if c.stats == nil {
		c.setupDone = true
		c.checkAndAdvanceStateIfNeeded()
		return
	}
	// Suspension point: the stats read must not block the control
	// context; its completion funnels back through the mutex.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		losses, err := c.stats.MonthlyLosses(ctx)
		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			c.log.WithError(err).Error("loading monthly losses, continuing without handicap")
		} else {
			for seat, n := range losses {
				c.st.Player(seat).MonthlyLosses = n
			}
		}
		c.setupDone = true
		c.checkAndAdvanceStateIfNeeded()
	}()
}

func (c *Controller) enterNewGame() {
	c.startRequested = false
	c.st.ResetForNewGame()
	for seat := range c.statuses {
		c.statuses[seat] = StatusPlaying
	}
	c.transitionTo(PhaseSetupNewRound)
}

func (c *Controller) enterSetupNewRound() {
	c.st.BeginRound()
	c.pendingDeck = nil
	c.showCardDone = false
	c.trumpShown = false
	c.persistState()
	if c.st.Dealer == c.local {
		c.announceDealer()
		c.transitionTo(PhaseRenderingDeck)
	} else {
		c.transitionTo(PhaseWaitingForDeck)
	}
}

func (c *Controller) enterRenderingDeck() {
	deck := c.st.ShuffledDeck(randomSeed())
	a, err := NewAction(c.local, ActionSendDeck, CardsPayload{Cards: deck})
	if err != nil {
		c.fatalf("encode deck: %v", err)
		return
	}
	c.broadcast(a)
	c.appendLog(a)
	c.pendingDeck = deck
	c.beginTransition(TransitionDealDeck, func() {
		c.checkAndAdvanceStateIfNeeded()
	})
}

func (c *Controller) enterDealingCards() {
	if c.pendingDeck == nil {
		c.fatalf("dealing without a deck")
		return
	}
	if err := c.st.Deal(c.pendingDeck); err != nil {
		c.fatalf("deal: %v", err)
		return
	}
	c.pendingDeck = nil
	c.persistState()

	if c.st.OpenBidding() {
		c.transitionTo(PhaseBidding)
		return
	}
	switch c.st.Player(c.local).Place {
	case engine.PlaceLeader:
		c.transitionTo(PhaseBidding)
	case engine.PlaceMiddle:
		c.transitionTo(PhaseWaitingForTrump)
	default:
		c.transitionTo(PhaseChoosingTrump)
	}
}

func (c *Controller) enterShowCard() {
	c.showCardDone = false
	c.beginTransition(TransitionShowTrump, func() {
		c.showCardDone = true
		c.checkAndAdvanceStateIfNeeded()
	})
}

func (c *Controller) enterPlayingTricks() {
	// Reveal the chosen trump to the trick leader once per round on
	// closed-bid rounds.
	if !c.trumpShown && !c.st.OpenBidding() {
		c.trumpShown = true
		c.beginTransition(TransitionShowTrump, func() {})
	}
	c.armSlowPokeIfOwed()
}

func (c *Controller) enterGrabTrick() {
	trick := c.st.CurrentTrick
	// Pause so players see the completed trick before it moves.
	c.after(c.grabDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.phase != PhaseGrabTrick || c.st.CurrentTrick != trick {
			return
		}
		winner, err := c.st.GrabTrick()
		if err != nil {
			c.fatalf("grab trick: %v", err)
			return
		}
		c.log.WithFields(logrus.Fields{"winner": winner, "trick": trick}).Info("trick taken")
		c.persistState()
		c.beginTransition(TransitionTrickTaken, func() {})
		if c.st.RoundOver() {
			c.transitionTo(PhaseScoring)
		} else {
			c.transitionTo(PhasePlayingTricks)
		}
	})
}

func (c *Controller) enterScoring() {
	if err := c.st.ScoreRound(); err != nil {
		c.fatalf("scoring: %v", err)
		return
	}
	if c.st.Round == engine.NumRounds {
		c.st.ApplyFinalBonus()
	}
	c.persistState()
	if c.st.Round == engine.NumRounds {
		c.transitionTo(PhaseGameOver)
	} else {
		c.transitionTo(PhaseSetupNewRound)
	}
}

func (c *Controller) enterGameOver() {
	scores := make(map[engine.Seat]int, engine.NumSeats)
	for _, seat := range engine.Seats() {
		scores[seat] = c.st.Player(seat).Score()
	}
	c.log.WithField("scores", scores).Info("game over")
	c.beginTransition(TransitionGameOver, func() {})
	if c.stats != nil && c.local == engine.AuthoritySeat {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := c.stats.RecordGame(ctx, scores); err != nil {
				c.log.WithError(err).Error("recording game result")
			}
		}()
	}
	if c.store != nil {
		if err := c.store.Clear(); err != nil {
			c.log.WithError(err).Error("clearing action log")
		}
	}
	c.transitionTo(PhaseSetPlayOrder)
}

// ---------------------------------------------------------------------------
// Receive path
// ---------------------------------------------------------------------------

// HandleMessage decodes and routes a raw action received from a peer.
// Malformed input is logged and dropped; the sender recovers through
// the normal state-sync flow, there is no action-level retry.
func (c *Controller) HandleMessage(raw []byte) {
	a, err := DecodeAction(raw)
	if err != nil {
		c.mu.Lock()
		c.log.WithError(err).Warn("dropping malformed action")
		c.mu.Unlock()
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handleReceivedAction(a)
}

// handleReceivedAction applies the action if its type is valid in the
// current phase and its predecessors have already applied, otherwise
// defers it. Applying one action can make a deferred one ready, so
// the queue drains before the advancement check. Assumes lock is
// held.
func (c *Controller) handleReceivedAction(a Action) {
	c.appendLog(a)
	if !a.Type.ValidInPhase(c.phase) || !c.actionReady(a) {
		c.deferAction(a)
		return
	}
	c.processAction(a)
	// send-state is informational only and must not drive phase
	// changes.
	if a.Type == ActionSendState {
		return
	}
	c.drainDeferred()
	c.checkAndAdvanceStateIfNeeded()
}

// actionReady reports whether a phase-valid action can apply right
// now. The three connections guarantee per-connection order only, so
// a peer's action can arrive before the action it was responding to;
// a turn-taking action from the wrong position waits in the deferred
// queue until its predecessor lands. Assumes lock is held.
func (c *Controller) actionReady(a Action) bool {
	switch a.Type {
	case ActionPlayCard:
		return !c.st.TrickComplete() && c.st.TurnSeat() == a.PlayerID
	case ActionBid:
		return c.st.BidTurnReady(a.PlayerID)
	}
	return true
}

// processAction mutates replicated state for one action. Arrival
// order is screened by actionReady before we get here, so a rule
// error means the replicas have diverged or a peer is corrupt; both
// are unrecoverable, so the policy is a fatal abort. Assumes lock is
// held.
func (c *Controller) processAction(a Action) {
	// State-changing actions invalidate the idle timer; the
	// advancement poll re-arms it when the local player still owes.
	switch a.Type {
	case ActionSendState, ActionDealerAnnounce, ActionSlowPokeNotify, ActionHonk:
	default:
		c.cancelSlowPoke()
	}
	switch a.Type {
	case ActionPlayOrder:
		p, err := decodePayload[PlayOrderPayload](a)
		if err != nil {
			c.log.WithError(err).Warn("dropping action")
			return
		}
		if err := c.st.SetPlayOrder(p.Order); err != nil {
			c.fatalf("apply play order: %v", err)
			return
		}
		c.orderReceived = true

	case ActionPlayCard:
		p, err := decodePayload[CardPayload](a)
		if err != nil {
			c.log.WithError(err).Warn("dropping action")
			return
		}
		if err := c.st.PlayCard(a.PlayerID, p.Card); err != nil {
			c.fatalf("apply play card: %v", err)
			return
		}
		c.persistState()

	case ActionSendDeck:
		p, err := decodePayload[CardsPayload](a)
		if err != nil {
			c.log.WithError(err).Warn("dropping action")
			return
		}
		c.pendingDeck = p.Cards

	case ActionDiscard:
		p, err := decodePayload[CardsPayload](a)
		if err != nil {
			c.log.WithError(err).Warn("dropping action")
			return
		}
		if err := c.st.Discard(a.PlayerID, p.Cards); err != nil {
			c.fatalf("apply discard: %v", err)
			return
		}
		c.persistState()

	case ActionBid:
		p, err := decodePayload[BidPayload](a)
		if err != nil {
			c.log.WithError(err).Warn("dropping action")
			return
		}
		if err := c.st.Bid(a.PlayerID, p.Tricks); err != nil {
			c.fatalf("apply bid: %v", err)
			return
		}
		c.persistState()

	case ActionChooseTrump:
		p, err := decodePayload[CardPayload](a)
		if err != nil {
			c.log.WithError(err).Warn("dropping action")
			return
		}
		if err := c.st.ChooseTrump(p.Card); err != nil {
			c.fatalf("apply trump choice: %v", err)
			return
		}
		c.persistState()

	case ActionCancelTrump:
		c.st.CancelTrump()
		c.persistState()

	case ActionSendState:
		p, err := decodePayload[StatusPayload](a)
		if err != nil {
			c.log.WithError(err).Warn("dropping action")
			return
		}
		c.statuses[a.PlayerID] = p.Status

	case ActionStartNewGame:
		c.startRequested = true

	case ActionDealerAnnounce:
		p, err := decodePayload[SeatPayload](a)
		if err != nil {
			c.log.WithError(err).Warn("dropping action")
			return
		}
		// Advisory only: replicas may receive this before their own
		// round rollover. A persistent mismatch would surface as rule
		// errors on the next deal.
		if c.st.Dealer != p.Seat {
			c.log.WithFields(logrus.Fields{"announced": p.Seat, "local": c.st.Dealer}).
				Debug("dealer announcement ahead of local state")
		}

	case ActionSlowPokeNotify:
		c.beginTransition(TransitionSlowPoke, func() {})

	case ActionHonk:
		c.beginTransition(TransitionHonk, func() {})
	}
}

// ---------------------------------------------------------------------------
// Send path and local operations
// ---------------------------------------------------------------------------

// applyAndBroadcast runs a locally originated action through the same
// pipeline as a received one, then ships it to both peers.
// Assumes lock is held.
func (c *Controller) applyAndBroadcast(a Action) {
	c.broadcast(a)
	c.appendLog(a)
	c.processAction(a)
	if a.Type != ActionSendState {
		c.checkAndAdvanceStateIfNeeded()
	}
}

// broadcast serializes and sends, best-effort. Assumes lock is held.
func (c *Controller) broadcast(a Action) {
	raw, err := a.Encode()
	if err != nil {
		c.log.WithError(err).Error("encoding action")
		return
	}
	c.send(raw)
}

// appendLog persists the action unless it is ephemeral noise.
// Assumes lock is held.
func (c *Controller) appendLog(a Action) {
	if c.store == nil || a.Type.Ephemeral() {
		return
	}
	if err := c.store.AppendAction(a); err != nil {
		c.log.WithError(err).Error("appending action log")
	}
}

// localAction builds, applies and broadcasts an action originated by
// the local player. Public wrappers below take the lock.
func (c *Controller) localAction(t ActionType, payload any) error {
	a, err := NewAction(c.local, t, payload)
	if err != nil {
		return err
	}
	c.applyAndBroadcast(a)
	return nil
}

// PlayCard plays a card from the local hand.
func (c *Controller) PlayCard(card engine.Card) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhasePlayingTricks {
		return engine.RuleErrorf("cannot play a card during %v", c.phase)
	}
	if c.st.TurnSeat() != c.local {
		return engine.RuleErrorf("not your turn")
	}
	return c.localAction(ActionPlayCard, CardPayload{Card: card})
}

// PlaceBid announces the local player's trick count for this round.
func (c *Controller) PlaceBid(tricks int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseBidding && c.phase != PhaseDiscard {
		return engine.RuleErrorf("cannot bid during %v", c.phase)
	}
	if !c.st.BidTurnReady(c.local) {
		return engine.RuleErrorf("not your turn to bid")
	}
	return c.localAction(ActionBid, BidPayload{Tricks: tricks})
}

// ChooseTrump picks a trump marker; only meaningful for the
// last-placed player.
func (c *Controller) ChooseTrump(marker engine.Card) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseChoosingTrump {
		return engine.RuleErrorf("cannot choose trump during %v", c.phase)
	}
	return c.localAction(ActionChooseTrump, CardPayload{Card: marker})
}

// CancelTrump rejects the current trump choice; only meaningful for
// the middle-placed player.
func (c *Controller) CancelTrump() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st.TrumpSuit == nil {
		return engine.RuleErrorf("no trump to cancel")
	}
	return c.localAction(ActionCancelTrump, nil)
}

// DiscardCards returns the local player's bonus cards.
func (c *Controller) DiscardCards(cards []engine.Card) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localAction(ActionDiscard, CardsPayload{Cards: cards})
}

// StartNewGame requests the next game; all peers honor it.
func (c *Controller) StartNewGame() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localAction(ActionStartNewGame, nil)
}

// Honk pokes the player everyone is waiting on. Cosmetic, never
// persisted.
func (c *Controller) Honk() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localAction(ActionHonk, nil)
}

// SetReady marks the local player ready in the lobby.
func (c *Controller) SetReady() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[c.local] = StatusReady
	return c.localAction(ActionSendState, StatusPayload{Status: StatusReady})
}

// announceDealer broadcasts the dealer for this round.
// Assumes lock is held.
func (c *Controller) announceDealer() {
	if err := c.localAction(ActionDealerAnnounce, SeatPayload{Seat: c.st.Dealer}); err != nil {
		c.log.WithError(err).Error("announcing dealer")
	}
}

// broadcastStatus shares the local session status. Assumes lock is
// held.
func (c *Controller) broadcastStatus(s PlayerStatus) {
	c.statuses[c.local] = s
	if err := c.localAction(ActionSendState, StatusPayload{Status: s}); err != nil {
		c.log.WithError(err).Error("broadcasting status")
	}
}

// ---------------------------------------------------------------------------
// Peer presence, driven by the connection lifecycle manager
// ---------------------------------------------------------------------------

// SetPeerConnected records a peer's transport connectivity and re-runs
// the advancement poll.
func (c *Controller) SetPeerConnected(seat engine.Seat, up bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected[seat] = up
	c.checkAndAdvanceStateIfNeeded()
}

func (c *Controller) allPeersConnected() bool {
	for _, seat := range engine.Seats() {
		if seat == c.local {
			continue
		}
		if !c.connected[seat] {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Persistence
// ---------------------------------------------------------------------------

// bootstrapPhase reports phases during which saves are skipped.
func bootstrapPhase(p Phase) bool {
	switch p {
	case PhaseWaitingForPlayers, PhaseResumeSavedGame, PhaseSetPlayOrder,
		PhaseSetupGame, PhaseWaitingToStart:
		return true
	}
	return false
}

// persistState snapshots the session after a state-changing action.
// Only the authority seat persists, and never a state that fails the
// card-conservation audit. Assumes lock is held.
func (c *Controller) persistState() {
	if c.store == nil || c.local != engine.AuthoritySeat || bootstrapPhase(c.phase) {
		return
	}
	if violations := c.st.Integrity(); len(violations) > 0 {
		c.log.WithField("violations", violations).Error("integrity check failed, skipping save")
		return
	}
	if err := c.store.SaveSnapshot(Snapshot{Phase: c.phase, State: c.st}); err != nil {
		c.log.WithError(err).Error("saving game state")
	}
}

func (c *Controller) hasSavedGame() bool {
	if c.store == nil {
		return false
	}
	snap, err := c.store.LoadSnapshot()
	return err == nil && snap != nil && snap.State != nil
}

// ---------------------------------------------------------------------------
// Slow-poke timer
// ---------------------------------------------------------------------------

// localActionOwed reports whether the game is waiting on the local
// player right now. Assumes lock is held.
func (c *Controller) localActionOwed() bool {
	switch c.phase {
	case PhaseChoosingTrump:
		p := c.st.PlayerAtPlace(engine.PlaceLast)
		return p != nil && p.Seat == c.local && c.st.TrumpSuit == nil
	case PhaseDiscard:
		return c.owesDiscard() && !c.st.Player(c.local).HasDiscarded
	case PhaseBidding:
		return !c.st.HasBid(c.local)
	case PhasePlayingTricks:
		return !c.st.TrickComplete() && c.st.TurnSeat() == c.local
	}
	return false
}

// armSlowPokeIfOwed starts the idle timer when the local player owes
// an action. Any local state change cancels it. Assumes lock is held.
func (c *Controller) armSlowPokeIfOwed() {
	c.cancelSlowPoke()
	if c.slowPokeDelay <= 0 || !c.localActionOwed() {
		return
	}
	c.slowPokeTimer = c.after(c.slowPokeDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.localActionOwed() {
			return
		}
		c.log.Info("local player is slow, notifying peers")
		a, err := NewAction(c.local, ActionSlowPokeNotify, nil)
		if err == nil {
			c.broadcast(a)
		}
	})
}

// cancelSlowPoke stops a pending idle timer. Assumes lock is held.
func (c *Controller) cancelSlowPoke() {
	if c.slowPokeTimer != nil {
		c.slowPokeTimer.Stop()
		c.slowPokeTimer = nil
	}
}

// owesDiscard reports whether the local player receives bonus cards
// this round. Assumes lock is held.
func (c *Controller) owesDiscard() bool {
	return c.st.DiscardRequirement(c.local) > 0 && !c.st.Player(c.local).HasDiscarded
}

// beginTransition starts a batched UI transition off the control
// context; its completion funnels back through the mutex.
// Assumes lock is held.
func (c *Controller) beginTransition(t Transition, done func()) {
	go c.anim.Begin(t, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		done()
	})
}

// ---------------------------------------------------------------------------
// Randomness
// ---------------------------------------------------------------------------

func randomSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

func randomPlayOrder() [engine.NumSeats]engine.Seat {
	order := engine.Seats()
	seed := randomSeed()
	for i := len(order) - 1; i > 0; i-- {
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		j := int(seed % uint64(i+1))
		order[i], order[j] = order[j], order[i]
	}
	return order
}
