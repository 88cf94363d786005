// Package signal implements the Redis-backed signaling relay: per-pair
// negotiation documents, a push channel for changes, and a TTL-based
// presence feed. It carries only connection bootstrap traffic; game
// actions flow over the peer transport.
package signal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"triwhist/internal/engine"
)

const (
	kindOffer     = "offer"
	kindAnswer    = "answer"
	kindCandidate = "candidate"
)

// event is one relayed signaling change, published to the recipient's
// channel.
type event struct {
	Kind  string      `json:"kind"`
	From  engine.Seat `json:"from"`
	Value string      `json:"value"`
}

// Handler receives pushed signaling events for the local seat.
type Handler interface {
	HandleOffer(from engine.Seat, offer string)
	HandleAnswer(from engine.Seat, answer string)
	HandleCandidate(from engine.Seat, candidate string)
}

// Relay reads and writes per-ordered-pair negotiation documents. Each
// pair document is a hash keyed "{from}_to_{to}" with offer and answer
// fields plus a candidate list alongside it.
type Relay struct {
	rdb   *redis.Client
	log   *logrus.Entry
	local engine.Seat
	table string
}

// NewRelay builds a relay scoped to the local seat. table namespaces
// keys so concurrent games on one Redis do not collide.
func NewRelay(rdb *redis.Client, local engine.Seat, table string, logger *logrus.Logger) *Relay {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if table == "" {
		table = "signal"
	}
	return &Relay{
		rdb:   rdb,
		log:   logger.WithField("seat", local),
		local: local,
		table: table,
	}
}

func (r *Relay) pairKey(from, to engine.Seat) string {
	return fmt.Sprintf("%s:%d_to_%d", r.table, int(from), int(to))
}

func (r *Relay) candidatesKey(from, to engine.Seat) string {
	return r.pairKey(from, to) + ":candidates"
}

func (r *Relay) channel(to engine.Seat) string {
	return fmt.Sprintf("%s:events:%d", r.table, int(to))
}

// publish writes the change notification after the document update so
// a listener reading on push always sees the written value.
func (r *Relay) publish(ctx context.Context, to engine.Seat, kind, value string) error {
	raw, err := json.Marshal(event{Kind: kind, From: r.local, Value: value})
	if err != nil {
		return fmt.Errorf("encode signal event: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel(to), raw).Err(); err != nil {
		return fmt.Errorf("publish signal event: %w", err)
	}
	return nil
}

// SendOffer writes the offer field of the {local}_to_{peer} document.
func (r *Relay) SendOffer(ctx context.Context, to engine.Seat, offer string) error {
	key := r.pairKey(r.local, to)
	if err := r.rdb.HSet(ctx, key, "offer", offer).Err(); err != nil {
		return fmt.Errorf("write offer %s: %w", key, err)
	}
	return r.publish(ctx, to, kindOffer, offer)
}

// SendAnswer writes the answer field of the {local}_to_{peer} document.
func (r *Relay) SendAnswer(ctx context.Context, to engine.Seat, answer string) error {
	key := r.pairKey(r.local, to)
	if err := r.rdb.HSet(ctx, key, "answer", answer).Err(); err != nil {
		return fmt.Errorf("write answer %s: %w", key, err)
	}
	return r.publish(ctx, to, kindAnswer, answer)
}

// SendCandidate appends one network candidate for peer.
func (r *Relay) SendCandidate(ctx context.Context, to engine.Seat, candidate string) error {
	key := r.candidatesKey(r.local, to)
	if err := r.rdb.RPush(ctx, key, candidate).Err(); err != nil {
		return fmt.Errorf("append candidate %s: %w", key, err)
	}
	return r.publish(ctx, to, kindCandidate, candidate)
}

// ReadPending returns any offer or answer already written toward the
// local seat, for catching up after (re)subscribing.
func (r *Relay) ReadPending(ctx context.Context, from engine.Seat) (offer, answer string, candidates []string, err error) {
	key := r.pairKey(from, r.local)
	doc, err := r.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return "", "", nil, fmt.Errorf("read pair %s: %w", key, err)
	}
	candidates, err = r.rdb.LRange(ctx, r.candidatesKey(from, r.local), 0, -1).Result()
	if err != nil {
		return "", "", nil, fmt.Errorf("read candidates %s: %w", key, err)
	}
	return doc["offer"], doc["answer"], candidates, nil
}

// ClearPair deletes both directions' documents for the local/peer
// pair, so a retry starts from clean state.
func (r *Relay) ClearPair(ctx context.Context, peer engine.Seat) error {
	keys := []string{
		r.pairKey(r.local, peer), r.candidatesKey(r.local, peer),
		r.pairKey(peer, r.local), r.candidatesKey(peer, r.local),
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clear pair documents: %w", err)
	}
	return nil
}

// Listen subscribes to the local seat's event channel and dispatches
// pushed changes to h until ctx is cancelled. It first drains any
// documents written before the subscription existed.
func (r *Relay) Listen(ctx context.Context, h Handler) error {
	sub := r.rdb.Subscribe(ctx, r.channel(r.local))
	defer sub.Close()
	// Confirm the subscription before draining so nothing slips
	// between the catch-up read and the push stream.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel(r.local), err)
	}

	for _, seat := range engine.Seats() {
		if seat == r.local {
			continue
		}
		offer, answer, candidates, err := r.ReadPending(ctx, seat)
		if err != nil {
			r.log.WithError(err).WithField("peer", seat).Warn("catch-up read failed")
			continue
		}
		if offer != "" {
			h.HandleOffer(seat, offer)
		}
		if answer != "" {
			h.HandleAnswer(seat, answer)
		}
		for _, c := range candidates {
			h.HandleCandidate(seat, c)
		}
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("signal subscription closed")
			}
			var ev event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.log.WithError(err).Warn("dropping malformed signal event")
				continue
			}
			switch ev.Kind {
			case kindOffer:
				h.HandleOffer(ev.From, ev.Value)
			case kindAnswer:
				h.HandleAnswer(ev.From, ev.Value)
			case kindCandidate:
				h.HandleCandidate(ev.From, ev.Value)
			default:
				r.log.WithField("kind", ev.Kind).Warn("unknown signal event")
			}
		}
	}
}
