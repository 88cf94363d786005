package game

import "github.com/sirupsen/logrus"

// processPendingActionsForCurrentPhase drains the deferred queue once.
// It swaps the queue for an empty one, applies the actions that became
// valid and ready in the current phase and re-appends the rest in
// their original order. The drain is deliberately single-pass:
// applying a deferred action can make another deferred action ready,
// but that replay belongs to drainDeferred, never to recursive
// draining here.
//
// Returns the number of actions applied. Assumes lock is held.
func (c *Controller) processPendingActionsForCurrentPhase() int {
	if len(c.deferred) == 0 {
		return 0
	}
	pending := c.deferred
	c.deferred = nil

	applied := 0
	for _, a := range pending {
		if a.Type.ValidInPhase(c.phase) && c.actionReady(a) {
			c.log.WithFields(logrus.Fields{
				"action": a.Type,
				"seat":   a.PlayerID,
				"phase":  c.phase,
			}).Debug("replaying deferred action")
			c.processAction(a)
			applied++
			continue
		}
		c.deferred = append(c.deferred, a)
	}
	return applied
}

// drainDeferred runs drain passes until one applies nothing, so an
// action unblocked mid-pass still replays. Each pass consumes at
// least one queued action or stops, which bounds the loop by the
// queue length. Returns the total applied. Assumes lock is held.
func (c *Controller) drainDeferred() int {
	total := 0
	for {
		n := c.processPendingActionsForCurrentPhase()
		total += n
		if n == 0 {
			return total
		}
	}
}

// deferAction queues an action that is not valid or not yet ready in
// the current phase. The queue is an unbounded FIFO retried on every
// phase entry and after every applied action. Assumes lock is held.
func (c *Controller) deferAction(a Action) {
	c.log.WithFields(logrus.Fields{
		"action": a.Type,
		"seat":   a.PlayerID,
		"phase":  c.phase,
	}).Debug("deferring action")
	c.deferred = append(c.deferred, a)
}
