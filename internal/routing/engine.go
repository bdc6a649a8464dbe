// Package routing computes, caches, and invalidates the fan-out target set
// for each real voice stream, and applies the hang-time slot-reservation
// policy at stream start.
package routing

import (
	"sync"
	"time"

	"github.com/hblink4/hblink4/internal/access"
	"github.com/hblink4/hblink4/internal/protocol"
	"github.com/hblink4/hblink4/internal/stream"
)

// Endpoint is anything the routing engine can route to or from: a connected
// peer or an outbound connection. Implementations live in the server/client
// packages, which is why this interface — not a concrete type — is what the
// engine depends on.
type Endpoint interface {
	Key() stream.TargetKey
	AllowedSet(slot protocol.Timeslot) access.TalkgroupSet
	Tracker(slot protocol.Timeslot) *stream.Tracker
}

type routeKey struct {
	source stream.TargetKey
	slot   protocol.Timeslot
}

type activeRoute struct {
	source  Endpoint
	slot    protocol.Timeslot
	targets []stream.TargetKey
}

// Engine owns the bookkeeping needed to invalidate cached target sets on
// contention: the active route of each (source, slot), with the target keys
// it is currently forwarding to.
type Engine struct {
	mu     sync.Mutex
	routes map[routeKey]*activeRoute
}

// NewEngine returns an empty routing engine.
func NewEngine() *Engine {
	return &Engine{routes: make(map[routeKey]*activeRoute)}
}

// StartResult reports the outcome of routing a newly-accepted real stream.
type StartResult struct {
	Denied  bool
	Targets []stream.TargetKey
}

// RouteStart computes the target set for a new real stream on
// (source, slot), installs assumed streams on every accepted target, and
// caches the result on the current stream of the source's own tracker (the
// caller has already recorded s there via HandlePacket). candidates excludes
// source itself.
func (e *Engine) RouteStart(now time.Time, source Endpoint, slot protocol.Timeslot, s *stream.Stream, candidates []Endpoint) StartResult {
	if !source.AllowedSet(slot).Allows(s.DstID) {
		return StartResult{Denied: true}
	}

	var targets []stream.TargetKey
	for _, c := range candidates {
		if c.Key() == source.Key() {
			continue
		}
		if !c.AllowedSet(slot).Allows(s.DstID) {
			continue
		}
		if !e.slotAvailable(c.Tracker(slot), now, s.RFSrc, s.DstID) {
			continue
		}
		c.Tracker(slot).InstallAssumed(s)
		targets = append(targets, c.Key())
	}

	source.Tracker(slot).SetTargetSet(targets)

	e.mu.Lock()
	e.routes[routeKey{source.Key(), slot}] = &activeRoute{source: source, slot: slot, targets: append([]stream.TargetKey(nil), targets...)}
	e.mu.Unlock()

	return StartResult{Targets: targets}
}

// slotAvailable reports whether a candidate's slot may receive newly
// forwarded traffic: empty, holding only an assumed stream, or hung with the
// hang-time policy (§4.6) permitting newSrc/newDst to take it over.
func (e *Engine) slotAvailable(tr *stream.Tracker, now time.Time, newSrc, newDst uint32) bool {
	cur := tr.Current()
	if cur == nil {
		return true
	}
	if cur.IsAssumed && !cur.Ended {
		return true
	}
	if !cur.Ended {
		return false // real RX active: never written to
	}
	return DecideHangTime(cur, newSrc, newDst)
}

// EndedTarget reports one target endpoint whose assumed stream was just
// ended as a side effect of its source's stream ending, for callers that
// need to emit a per-connection event for each one.
type EndedTarget struct {
	Key    stream.TargetKey
	Stream *stream.Stream
}

// EndRoute propagates a source stream's end to every target it was routed
// to, marking their assumed streams ended with the same reason (so they
// enter hang-time in step with the source) and removing the route from the
// engine's bookkeeping. all is the full endpoint list, used to resolve
// target keys back to trackers. The returned slice reports each target whose
// assumed stream was actually ended, in no particular order.
func (e *Engine) EndRoute(now time.Time, source Endpoint, slot protocol.Timeslot, reason stream.EndReason, all []Endpoint) []EndedTarget {
	e.mu.Lock()
	key := routeKey{source.Key(), slot}
	route := e.routes[key]
	delete(e.routes, key)
	e.mu.Unlock()

	if route == nil {
		return nil
	}
	byKey := make(map[stream.TargetKey]Endpoint, len(all))
	for _, ep := range all {
		byKey[ep.Key()] = ep
	}
	var ended []EndedTarget
	for _, tk := range route.targets {
		ep, ok := byKey[tk]
		if !ok {
			continue
		}
		if s := ep.Tracker(slot).EndCurrent(now, reason); s != nil {
			ended = append(ended, EndedTarget{Key: tk, Stream: s})
		}
	}
	return ended
}

// DisplaceTarget is called when target q's real RX has just displaced its
// assumed stream (stream.OutcomeRealDisplacedAssumed). It removes q from
// every route's cached target set so the original source stops forwarding
// to it, per the contention-driven route-cache invalidation rule.
func (e *Engine) DisplaceTarget(q Endpoint, slot protocol.Timeslot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, route := range e.routes {
		if k.slot != slot {
			continue
		}
		if idx := indexOf(route.targets, q.Key()); idx >= 0 {
			route.targets = append(route.targets[:idx], route.targets[idx+1:]...)
			route.source.Tracker(slot).RemoveTarget(q.Key())
		}
	}
}

func indexOf(keys []stream.TargetKey, want stream.TargetKey) int {
	for i, k := range keys {
		if k == want {
			return i
		}
	}
	return -1
}
