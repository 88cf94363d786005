package signal

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"triwhist/internal/engine"
)

const (
	presenceTTL       = 30 * time.Second
	heartbeatInterval = 10 * time.Second
	pollInterval      = 2 * time.Second
)

// Presence maintains the local seat's online marker and watches the
// other seats'. Online status is a TTL key refreshed by heartbeat, so
// a crashed process goes offline without a clean shutdown.
type Presence struct {
	rdb   *redis.Client
	log   *logrus.Entry
	local engine.Seat
	table string

	// OnChange fires on every observed online/offline flip.
	OnChange func(peer engine.Seat, online bool)
}

// NewPresence builds a presence feed in the same namespace as the
// relay.
func NewPresence(rdb *redis.Client, local engine.Seat, table string, logger *logrus.Logger) *Presence {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if table == "" {
		table = "signal"
	}
	return &Presence{
		rdb:   rdb,
		log:   logger.WithField("seat", local),
		local: local,
		table: table,
	}
}

func (p *Presence) key(seat engine.Seat) string {
	return fmt.Sprintf("%s:presence:%d", p.table, int(seat))
}

// Announce marks the local seat online and keeps the marker fresh
// until ctx is cancelled, then removes it.
func (p *Presence) Announce(ctx context.Context) error {
	if err := p.rdb.Set(ctx, p.key(p.local), "1", presenceTTL).Err(); err != nil {
		return fmt.Errorf("announce presence: %w", err)
	}
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// Best-effort cleanup with a fresh context; ctx is done.
			cleanup, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := p.rdb.Del(cleanup, p.key(p.local)).Err(); err != nil {
				p.log.WithError(err).Warn("removing presence marker")
			}
			return ctx.Err()
		case <-ticker.C:
			if err := p.rdb.Set(ctx, p.key(p.local), "1", presenceTTL).Err(); err != nil {
				p.log.WithError(err).Warn("refreshing presence marker")
			}
		}
	}
}

// Watch polls the remote seats' markers and pushes flips to OnChange
// until ctx is cancelled. The first poll reports the initial state of
// every online peer.
func (p *Presence) Watch(ctx context.Context) error {
	seen := make(map[engine.Seat]bool)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		for _, seat := range engine.Seats() {
			if seat == p.local {
				continue
			}
			n, err := p.rdb.Exists(ctx, p.key(seat)).Result()
			if err != nil {
				p.log.WithError(err).WithField("peer", seat).Warn("presence poll failed")
				continue
			}
			online := n > 0
			if prev, known := seen[seat]; !known && !online {
				seen[seat] = false
			} else if !known || prev != online {
				seen[seat] = online
				p.log.WithFields(logrus.Fields{"peer": seat, "online": online}).Info("presence change")
				if p.OnChange != nil {
					p.OnChange(seat, online)
				}
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
