package game

import (
	"encoding/json"
	"fmt"
	"time"

	"triwhist/internal/engine"
)

// ActionType is the closed taxonomy of replicated actions.
type ActionType string

const (
	ActionPlayOrder      ActionType = "play_order"
	ActionPlayCard       ActionType = "play_card"
	ActionSendDeck       ActionType = "send_deck"
	ActionDiscard        ActionType = "discard"
	ActionBid            ActionType = "bid"
	ActionChooseTrump    ActionType = "choose_trump"
	ActionCancelTrump    ActionType = "cancel_trump"
	ActionSendState      ActionType = "send_state"
	ActionStartNewGame   ActionType = "start_new_game"
	ActionSlowPokeNotify ActionType = "slow_poke_notify"
	ActionHonk           ActionType = "honk"
	ActionDealerAnnounce ActionType = "dealer_announce"
)

// validPhases maps each action type to the phases in which it applies
// immediately. A nil entry means the action is valid in every phase.
// Anything received outside its valid set is deferred, not dropped.
var validPhases = map[ActionType][]Phase{
	ActionPlayOrder:      {PhaseSetPlayOrder},
	ActionPlayCard:       {PhasePlayingTricks},
	ActionSendDeck:       {PhaseWaitingForDeck, PhaseRenderingDeck},
	ActionDiscard:        {PhaseDiscard, PhaseBidding, PhaseWaitingForTrump},
	ActionBid:            {PhaseBidding, PhaseDiscard, PhaseShowCard},
	ActionChooseTrump:    {PhaseChoosingTrump, PhaseWaitingForTrump, PhaseBidding, PhaseDiscard},
	ActionCancelTrump:    {PhaseChoosingTrump, PhaseWaitingForTrump, PhaseDiscard, PhaseBidding},
	ActionSendState:      nil,
	ActionStartNewGame:   nil,
	ActionSlowPokeNotify: nil,
	ActionHonk:           nil,
	ActionDealerAnnounce: nil,
}

// Known reports whether t is part of the taxonomy.
func (t ActionType) Known() bool {
	_, ok := validPhases[t]
	return ok
}

// ValidInPhase reports whether the action type may be applied while in
// the given phase.
func (t ActionType) ValidInPhase(p Phase) bool {
	phases, ok := validPhases[t]
	if !ok {
		return false
	}
	if phases == nil {
		return true
	}
	for _, v := range phases {
		if v == p {
			return true
		}
	}
	return false
}

// Ephemeral reports whether the action is cosmetic noise excluded from
// the durable log. Everything else persisted is sufficient to rebuild
// state.
func (t ActionType) Ephemeral() bool {
	return t == ActionSlowPokeNotify || t == ActionHonk
}

// Action is the wire and log envelope. Payload encoding is determined
// entirely by Type.
type Action struct {
	PlayerID  engine.Seat     `json:"playerId"`
	Type      ActionType      `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// NewAction builds an envelope, marshaling the typed payload. A nil
// payload produces an empty-payload action.
func NewAction(seat engine.Seat, t ActionType, payload any) (Action, error) {
	a := Action{PlayerID: seat, Type: t, Timestamp: time.Now().Unix()}
	if payload == nil {
		return a, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Action{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	a.Payload = raw
	return a, nil
}

// Encode serializes the envelope for the transport and the log.
func (a Action) Encode() ([]byte, error) { return json.Marshal(a) }

// DecodeAction parses an envelope and validates its type.
func DecodeAction(raw []byte) (Action, error) {
	var a Action
	if err := json.Unmarshal(raw, &a); err != nil {
		return Action{}, fmt.Errorf("decode action: %w", err)
	}
	if !a.Type.Known() {
		return Action{}, fmt.Errorf("unknown action type %q", a.Type)
	}
	if !a.PlayerID.Valid() {
		return Action{}, fmt.Errorf("invalid seat %d", a.PlayerID)
	}
	return a, nil
}

// ---------------------------------------------------------------------------
// Typed payloads
// ---------------------------------------------------------------------------

// PlayOrderPayload carries the opening permutation of the three seats.
type PlayOrderPayload struct {
	Order [engine.NumSeats]engine.Seat `json:"order"`
}

// CardPayload carries a single card (play-card, choose-trump).
type CardPayload struct {
	Card engine.Card `json:"card"`
}

// CardsPayload carries an ordered card list (send-deck, discard).
type CardsPayload struct {
	Cards []engine.Card `json:"cards"`
}

// BidPayload carries an announced trick count.
type BidPayload struct {
	Tricks int `json:"tricks"`
}

// StatusPayload carries a player's session status (send-state).
type StatusPayload struct {
	Status PlayerStatus `json:"status"`
}

// SeatPayload carries a seat reference (dealer-announce).
type SeatPayload struct {
	Seat engine.Seat `json:"seat"`
}

func decodePayload[T any](a Action) (T, error) {
	var v T
	if len(a.Payload) == 0 {
		return v, fmt.Errorf("%s: empty payload", a.Type)
	}
	if err := json.Unmarshal(a.Payload, &v); err != nil {
		return v, fmt.Errorf("%s: %w", a.Type, err)
	}
	return v, nil
}

// PlayerStatus is the session state a peer shares via send-state.
type PlayerStatus string

const (
	StatusUnknown PlayerStatus = ""
	StatusJoined  PlayerStatus = "joined"
	StatusReady   PlayerStatus = "ready"
	StatusPlaying PlayerStatus = "playing"
	StatusLeft    PlayerStatus = "left"
)
