// Package stream implements the per-(peer, slot) stream state machine:
// start/continue/contention/terminator/fast-terminator/timeout detection.
// It holds at most one Stream per tracker and never makes routing or
// hang-time policy decisions itself — those are supplied by the caller so
// this package stays a pure state container, testable in isolation.
package stream

import (
	"sync"
	"time"

	"github.com/hblink4/hblink4/internal/protocol"
)

// contentionWindow is the boundary the tracker uses to distinguish a
// colliding retransmission (drop, log) from a genuinely abandoned stream
// (fast-terminator, reclaim the slot). The spec requires >= semantics at
// exactly 200ms: a gap of exactly 200ms is NOT contention.
const contentionWindow = 200 * time.Millisecond

// TargetKey identifies a routing target (a connected peer or an outbound
// connection) without this package needing to import either.
type TargetKey string

// EndReason records why a Stream was ended.
type EndReason string

const (
	ReasonTerminator     EndReason = "terminator"
	ReasonFastTerminator EndReason = "fast_terminator"
	ReasonTimeout        EndReason = "timeout"
	ReasonPeerTimeout    EndReason = "peer_timeout"
	ReasonContention     EndReason = "contention"
)

// Stream is a single PTT-to-terminator transmission on one (peer, slot).
type Stream struct {
	StreamID    uint32
	RFSrc       uint32
	DstID       uint32
	CallType    protocol.CallType
	Slot        protocol.Timeslot
	StartTime   time.Time
	LastSeen    time.Time
	PacketCount uint64

	Ended     bool
	EndTime   time.Time
	EndReason EndReason

	// IsAssumed is true iff this Stream record represents traffic being
	// forwarded TO this peer (created by the routing engine), false iff
	// this peer originated the traffic.
	IsAssumed bool

	// TargetSet and RoutingCached are only meaningful on real (non-assumed)
	// streams: the routing engine computes the target set once at stream
	// start and stores it here.
	TargetSet     []TargetKey
	RoutingCached bool
}

// clone returns a value copy safe to hand to callers after the tracker has
// released its lock (e.g. for emitting an event about a displaced stream).
func (s *Stream) clone() *Stream {
	if s == nil {
		return nil
	}
	cp := *s
	cp.TargetSet = append([]TargetKey(nil), s.TargetSet...)
	return &cp
}

// Outcome classifies the result of handling an inbound packet.
type Outcome int

const (
	OutcomeStartedNew Outcome = iota
	OutcomeContinued
	OutcomeEndedNormal
	OutcomeContention
	OutcomeFastTerminatorReplaced
	OutcomeHangTimeAccepted
	OutcomeHangTimeDenied
	OutcomeRealDisplacedAssumed
)

// Result is returned from HandlePacket.
type Result struct {
	Outcome   Outcome
	Stream    *Stream // the current (possibly newly started) stream; nil on deny/contention
	Displaced *Stream // a stream that just ended as a side effect (fast-terminator, real-over-assumed, or hang-time displacement)
}

// HangTimeDecider evaluates whether a new (src, dst) pair may displace a
// stream still within its hang window. Implemented by the hang-time policy
// package; passed in so this package has no dependency on it.
type HangTimeDecider func(existing *Stream, newSrc, newDst uint32) bool

// Tracker owns at most one Stream for a single (peer, slot).
type Tracker struct {
	mu      sync.Mutex
	current *Stream
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker { return &Tracker{} }

// Current returns a copy of the tracked stream, or nil if the slot is empty.
func (t *Tracker) Current() *Stream {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current.clone()
}

// HandlePacket advances the state machine for one inbound DMRD packet.
// hangTime is the configured hang-time duration; decide is consulted only
// when an existing ended stream is still within that window.
func (t *Tracker) HandlePacket(
	now time.Time,
	slot protocol.Timeslot,
	streamID, rfSrc, dstID uint32,
	callType protocol.CallType,
	isTerminator bool,
	hangTime time.Duration,
	decide HangTimeDecider,
) Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.current

	// Hang-time slot past its window: treat as empty.
	if s != nil && s.Ended && now.Sub(s.EndTime) >= hangTime {
		s = nil
		t.current = nil
	}

	if s == nil {
		ns := t.startLocked(now, slot, streamID, rfSrc, dstID, callType, isTerminator)
		return Result{Outcome: OutcomeStartedNew, Stream: ns.clone()}
	}

	if s.StreamID == streamID {
		return t.continueLocked(now, s, isTerminator)
	}

	// A real RX always displaces an assumed (forwarded-to) stream on the
	// same slot, regardless of timing: this peer's own user has seized the
	// air interface.
	if !s.Ended && s.IsAssumed {
		displaced := s.clone()
		displaced.Ended = true
		displaced.EndTime = now
		displaced.EndReason = ReasonContention
		ns := t.startLocked(now, slot, streamID, rfSrc, dstID, callType, isTerminator)
		return Result{Outcome: OutcomeRealDisplacedAssumed, Stream: ns.clone(), Displaced: displaced}
	}

	// Different stream id claims the slot.
	if !s.Ended {
		if now.Sub(s.LastSeen) < contentionWindow {
			return Result{Outcome: OutcomeContention}
		}
		// Fast terminator: the old stream is stale, reclaim the slot.
		displaced := s.clone()
		displaced.Ended = true
		displaced.EndTime = now
		displaced.EndReason = ReasonFastTerminator
		ns := t.startLocked(now, slot, streamID, rfSrc, dstID, callType, isTerminator)
		return Result{Outcome: OutcomeFastTerminatorReplaced, Stream: ns.clone(), Displaced: displaced}
	}

	// s.Ended and within hang window: apply hang-time policy.
	if decide != nil && decide(s, rfSrc, dstID) {
		displaced := s.clone()
		ns := t.startLocked(now, slot, streamID, rfSrc, dstID, callType, isTerminator)
		return Result{Outcome: OutcomeHangTimeAccepted, Stream: ns.clone(), Displaced: displaced}
	}
	return Result{Outcome: OutcomeHangTimeDenied}
}

func (t *Tracker) startLocked(now time.Time, slot protocol.Timeslot, streamID, rfSrc, dstID uint32, callType protocol.CallType, isTerminator bool) *Stream {
	ns := &Stream{
		StreamID:    streamID,
		RFSrc:       rfSrc,
		DstID:       dstID,
		CallType:    callType,
		Slot:        slot,
		StartTime:   now,
		LastSeen:    now,
		PacketCount: 1,
	}
	if isTerminator {
		ns.Ended = true
		ns.EndTime = now
		ns.EndReason = ReasonTerminator
	}
	t.current = ns
	return ns
}

func (t *Tracker) continueLocked(now time.Time, s *Stream, isTerminator bool) Result {
	s.LastSeen = now
	s.PacketCount++
	if isTerminator {
		s.Ended = true
		s.EndTime = now
		s.EndReason = ReasonTerminator
		return Result{Outcome: OutcomeEndedNormal, Stream: s.clone()}
	}
	return Result{Outcome: OutcomeContinued, Stream: s.clone()}
}

// InstallAssumed installs an assumed (forwarded-to) stream on this slot,
// mirroring a real stream the routing engine just accepted elsewhere.
func (t *Tracker) InstallAssumed(real *Stream) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = &Stream{
		StreamID:  real.StreamID,
		RFSrc:     real.RFSrc,
		DstID:     real.DstID,
		CallType:  real.CallType,
		Slot:      real.Slot,
		StartTime: real.StartTime,
		LastSeen:  real.LastSeen,
		IsAssumed: true,
	}
}

// SetTargetSet stores the routing engine's computed fan-out set on the
// current (real) stream, marking it cached.
func (t *Tracker) SetTargetSet(targets []TargetKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return
	}
	t.current.TargetSet = append([]TargetKey(nil), targets...)
	t.current.RoutingCached = true
}

// RemoveTarget drops a key from the current stream's cached target set, used
// by contention-driven route-cache invalidation.
func (t *Tracker) RemoveTarget(key TargetKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return
	}
	out := t.current.TargetSet[:0]
	for _, k := range t.current.TargetSet {
		if k != key {
			out = append(out, k)
		}
	}
	t.current.TargetSet = out
}

// EndCurrent marks the current stream ended (hang-time preserved) without
// removing it from the slot, e.g. to mirror an assumed stream's end when its
// real source stream elsewhere ends.
func (t *Tracker) EndCurrent(now time.Time, reason EndReason) *Stream {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.current
	if s == nil || s.Ended {
		return nil
	}
	s.Ended = true
	s.EndTime = now
	s.EndReason = reason
	return s.clone()
}

// Clear forcibly ends and removes the current stream (e.g. peer destroyed).
func (t *Tracker) Clear(now time.Time, reason EndReason) *Stream {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.current
	if s == nil {
		return nil
	}
	s.Ended = true
	s.EndTime = now
	s.EndReason = reason
	cp := s.clone()
	t.current = nil
	return cp
}

// SweepResult reports side effects of a periodic Sweep call.
type SweepResult struct {
	TimedOut *Stream // just transitioned active -> ended(reason=timeout)
	Cleared  *Stream // just cleared from the slot (hang-time elapsed)
}

// Sweep applies the silence-timeout and hang-time-expiry rules. Called
// roughly once per second by the timer wheel.
func (t *Tracker) Sweep(now time.Time, streamTimeout, hangTime time.Duration) SweepResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.current
	if s == nil {
		return SweepResult{}
	}

	var res SweepResult
	if !s.Ended && now.Sub(s.LastSeen) > streamTimeout {
		s.Ended = true
		s.EndTime = now
		s.EndReason = ReasonTimeout
		res.TimedOut = s.clone()
	}
	if s.Ended && now.Sub(s.EndTime) >= hangTime {
		res.Cleared = s.clone()
		t.current = nil
	}
	return res
}
