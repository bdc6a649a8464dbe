package server

import (
	"fmt"

	"github.com/hblink4/hblink4/internal/access"
	"github.com/hblink4/hblink4/internal/peer"
	"github.com/hblink4/hblink4/internal/protocol"
	"github.com/hblink4/hblink4/internal/stream"
)

// peerEndpoint adapts *peer.Peer to routing.Endpoint. It lives in package
// server, which imports both internal/peer and internal/routing, so those
// two packages stay decoupled from each other.
type peerEndpoint struct{ p *peer.Peer }

func (e peerEndpoint) Key() stream.TargetKey {
	return stream.TargetKey(fmt.Sprintf("peer:%d", e.p.RadioID))
}

func (e peerEndpoint) AllowedSet(slot protocol.Timeslot) access.TalkgroupSet {
	return e.p.AllowedSet(slot)
}

func (e peerEndpoint) Tracker(slot protocol.Timeslot) *stream.Tracker {
	return e.p.SlotTracker(slot)
}
