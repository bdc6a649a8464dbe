package server

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"time"

	"github.com/hblink4/hblink4/internal/client"
	"github.com/hblink4/hblink4/internal/logger"
	"github.com/hblink4/hblink4/internal/peer"
	"github.com/hblink4/hblink4/internal/protocol"
	"github.com/hblink4/hblink4/internal/routing"
	"github.com/hblink4/hblink4/internal/stream"
)

// handlePacket dispatches one inbound datagram by its HomeBrew tag. This is
// the only place frames enter the single event loop; every handler below
// runs to completion before the loop selects again, so peer/stream state
// never needs its own locking against concurrent mutation from here.
func (s *Server) handlePacket(data []byte, addr *net.UDPAddr) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("packet handler panic", logger.String("addr", addr.String()), logger.String("panic", fmt.Sprint(r)))
			if p, ok := s.peers.getByAddr(addr); ok {
				s.clearPeerStreams(p, time.Now())
				s.peers.remove(p.RadioID)
				if p.GetState() == peer.StateConnected && s.coll != nil {
					s.coll.PeerDisconnected()
				}
			}
		}
	}()
	tag := protocol.DetectTag(data)
	if s.coll != nil {
		s.coll.PacketReceived(tag, len(data))
	}
	switch tag {
	case protocol.TagRPTL:
		s.handleRPTL(data, addr)
	case protocol.TagRPTK:
		s.handleRPTK(data, addr)
	case protocol.TagRPTC:
		s.handleRPTC(data, addr)
	case protocol.TagRPTO:
		s.handleRPTO(data, addr)
	case protocol.TagRPTPING:
		s.handleRPTPING(data, addr)
	case protocol.TagRPTCL:
		s.handleRPTCL(data, addr)
	case protocol.TagDMRD:
		s.handleDMRD(data, addr)
	default:
		s.log.Debug("unrecognized frame", logger.String("addr", addr.String()))
	}
}

func (s *Server) handleRPTL(data []byte, addr *net.UDPAddr) {
	req, err := protocol.ParseRPTL(data)
	if err != nil {
		return
	}
	if _, reserved := s.reservedIDs[req.RadioID]; reserved {
		s.log.Warn("rejecting login: radio id reserved for an outbound connection", logger.Uint32("radio_id", req.RadioID))
		s.sendTo(addr, protocol.EncodeMSTNAK(req.RadioID))
		return
	}
	if existing, ok := s.peers.get(req.RadioID); ok && existing.GetState() == peer.StateConnected {
		s.log.Warn("rejecting login: radio id already connected", logger.Uint32("radio_id", req.RadioID))
		s.sendTo(addr, protocol.EncodeMSTNAK(req.RadioID))
		return
	}

	salt, err := generateSalt()
	if err != nil {
		s.sendTo(addr, protocol.EncodeMSTNAK(req.RadioID))
		return
	}
	p := peer.New(req.RadioID, addr)
	p.Salt = salt
	p.SetState(peer.StateChallengeSent)
	s.peers.put(p)
	s.sendTo(addr, protocol.EncodeRPTACK(req.RadioID, salt))
}

func (s *Server) handleRPTK(data []byte, addr *net.UDPAddr) {
	req, err := protocol.ParseRPTK(data)
	if err != nil {
		return
	}
	p, ok := s.peers.get(req.RadioID)
	if !ok || p.GetState() != peer.StateChallengeSent || !p.MatchesAddress(addr) {
		s.sendTo(addr, protocol.EncodeMSTNAK(req.RadioID))
		return
	}

	grant, err := s.matcher.Authenticate(req.RadioID, "")
	if err != nil {
		s.log.Info("login rejected by access matcher", logger.Uint32("radio_id", req.RadioID))
		s.sendTo(addr, protocol.EncodeMSTNAK(req.RadioID))
		s.peers.remove(req.RadioID)
		return
	}
	if hashChallenge(p.Salt, grant.Passphrase) != req.Hash {
		s.log.Info("login rejected: bad challenge hash", logger.Uint32("radio_id", req.RadioID))
		s.sendTo(addr, protocol.EncodeMSTNAK(req.RadioID))
		s.peers.remove(req.RadioID)
		return
	}

	p.Passphrase = grant.Passphrase
	p.TS1 = grant.TS1
	p.TS2 = grant.TS2
	p.SetState(peer.StateWaitingConfig)
	s.sendTo(addr, protocol.EncodeRPTACK(req.RadioID, nil))
}

func (s *Server) handleRPTC(data []byte, addr *net.UDPAddr) {
	req, err := protocol.ParseRPTC(data)
	if err != nil {
		return
	}
	p, ok := s.peers.get(req.RadioID)
	if !ok || p.GetState() != peer.StateWaitingConfig || !p.MatchesAddress(addr) {
		s.sendTo(addr, protocol.EncodeMSTNAK(req.RadioID))
		return
	}

	p.Callsign = req.Callsign
	p.Description = req.Description
	p.URL = req.URL
	p.SoftwareID = req.SoftwareID
	p.PackageID = req.PackageID
	p.SetState(peer.StateConfigured)

	now := time.Now()
	p.ConnectedAt = now
	p.Touch(now)
	p.SetState(peer.StateConnected)

	s.sendTo(addr, protocol.EncodeRPTACK(req.RadioID, nil))
	if s.coll != nil {
		s.coll.PeerConnected()
	}
	if s.sink != nil {
		s.sink.Emit("repeater_connected", map[string]interface{}{
			"radio_id":   req.RadioID,
			"callsign":   p.Callsign,
			"address":    addr.String(),
			"slot1_tgs":  p.TS1,
			"slot2_tgs":  p.TS2,
		})
	}
}

// handleRPTO applies a repeater's (possibly late-arriving) talkgroup-options
// string, overriding the TS1/TS2 grant from authentication. It is accepted
// in any post-authentication state, since real repeaters send it at varying
// points relative to RPTC.
func (s *Server) handleRPTO(data []byte, addr *net.UDPAddr) {
	req, err := protocol.ParseRPTO(data)
	if err != nil {
		return
	}
	p, ok := s.peers.get(req.RadioID)
	if !ok || !p.MatchesAddress(addr) || p.GetState() < peer.StateAuthenticated {
		s.sendTo(addr, protocol.EncodeMSTNAK(req.RadioID))
		return
	}
	p.TS1, p.TS2 = applyOptionsString(req.Options, p.TS1, p.TS2)
	s.sendTo(addr, protocol.EncodeRPTACK(req.RadioID, nil))
}

func (s *Server) handleRPTPING(data []byte, addr *net.UDPAddr) {
	radioID, err := protocol.ParseRPTPING(data)
	if err != nil {
		return
	}
	p, ok := s.peers.get(radioID)
	if !ok || !p.MatchesAddress(addr) {
		return
	}
	p.NotePing(time.Now())
	s.sendTo(addr, protocol.EncodeMSTPONG(radioID))
	if s.sink != nil {
		s.sink.Emit("repeater_keepalive", map[string]interface{}{"radio_id": radioID, "missed_pings": 0})
	}
}

func (s *Server) handleRPTCL(data []byte, addr *net.UDPAddr) {
	radioID, err := protocol.ParseRPTCL(data)
	if err != nil {
		return
	}
	p, ok := s.peers.get(radioID)
	if !ok || !p.MatchesAddress(addr) {
		return
	}
	s.clearPeerStreams(p, time.Now())
	s.peers.remove(radioID)
	if p.GetState() == peer.StateConnected && s.coll != nil {
		s.coll.PeerDisconnected()
	}
	if s.sink != nil {
		s.sink.Emit("repeater_disconnected", map[string]interface{}{"radio_id": radioID, "reason": "peer_closed"})
	}
}

func (s *Server) handleDMRD(data []byte, addr *net.UDPAddr) {
	d, err := protocol.ParseDMRD(data)
	if err != nil {
		return
	}
	p, ok := s.peers.get(d.RepeaterID)
	if !ok || p.GetState() != peer.StateConnected || !p.MatchesAddress(addr) {
		return
	}
	now := time.Now()
	p.AddRX(len(data))
	p.Touch(now)
	s.routeDMRD(now, peerEndpoint{p}, d, d.IsTerminator())
}

// routable pairs a routing.Endpoint with the means to actually transmit a
// frame to it; resolving that pairing lives here rather than on Endpoint
// itself so routing stays free of any notion of sockets.
type routable struct {
	routing.Endpoint
	send func(d *protocol.DMRD) error
}

func (s *Server) routables() []routable {
	peers := s.peers.all()
	s.outboundMu.RLock()
	outbound := append([]*client.Connection(nil), s.outbound...)
	s.outboundMu.RUnlock()

	out := make([]routable, 0, len(peers)+len(outbound))
	for _, p := range peers {
		if p.GetState() != peer.StateConnected {
			continue
		}
		pp := p
		out = append(out, routable{
			Endpoint: peerEndpoint{pp},
			send: func(d *protocol.DMRD) error {
				frame := *d
				frame.RepeaterID = pp.RadioID
				s.sendTo(pp.Addr, frame.Encode())
				return nil
			},
		})
	}
	for _, c := range outbound {
		if c.State() != client.StateConnected {
			continue
		}
		cc := c
		out = append(out, routable{
			Endpoint: cc,
			send: func(d *protocol.DMRD) error {
				frame := *d
				frame.RepeaterID = cc.OurID()
				return cc.Send(frame.Encode())
			},
		})
	}
	return out
}

func toEndpoints(rs []routable) []routing.Endpoint {
	out := make([]routing.Endpoint, len(rs))
	for i, r := range rs {
		out[i] = r.Endpoint
	}
	return out
}

// routeDMRD advances source's per-slot stream tracker and, depending on the
// outcome, forwards the frame to the cached target set or asks the routing
// engine to compute a fresh one. Shared between peer-originated traffic and
// outbound-connection traffic (internal/client.Connection implements
// routing.Endpoint directly).
func (s *Server) routeDMRD(now time.Time, source routing.Endpoint, d *protocol.DMRD, isTerminator bool) {
	tr := source.Tracker(d.Slot)
	hangTime := s.cfg.Global.HangTime()
	result := tr.HandlePacket(now, d.Slot, d.StreamID, d.RFSrc, d.DstID, d.CallType, isTerminator, hangTime, routing.DecideHangTime)

	rs := s.routables()
	byKey := make(map[stream.TargetKey]routable, len(rs))
	for _, r := range rs {
		byKey[r.Key()] = r
	}

	switch result.Outcome {
	case stream.OutcomeContention, stream.OutcomeHangTimeDenied:
		if s.coll != nil {
			s.coll.StreamContended("denied")
		}
		return
	case stream.OutcomeContinued:
		s.forwardCached(d, tr, byKey)
		s.emitStreamUpdate(source.Key(), d.Slot, result.Stream)
		return
	case stream.OutcomeEndedNormal:
		s.forwardCached(d, tr, byKey)
		s.emitStreamEnd(source.Key(), d.Slot, result.Stream)
		ended := s.engine.EndRoute(now, source, d.Slot, stream.ReasonTerminator, toEndpoints(rs))
		s.emitEndedTargets(d.Slot, ended)
		if s.coll != nil {
			s.coll.StreamEnded()
		}
		return
	case stream.OutcomeFastTerminatorReplaced:
		s.emitStreamEnd(source.Key(), d.Slot, result.Displaced)
	case stream.OutcomeRealDisplacedAssumed:
		s.emitStreamEnd(source.Key(), d.Slot, result.Displaced)
		s.engine.DisplaceTarget(source, d.Slot)
		if s.coll != nil {
			s.coll.StreamContended("displaced_assumed")
		}
	}

	sr := s.engine.RouteStart(now, source, d.Slot, result.Stream, toEndpoints(rs))
	if sr.Denied {
		if s.coll != nil {
			s.coll.RoutingDenied("tg_not_allowed")
		}
		return
	}
	s.emitStreamStart(source.Key(), d.Slot, result.Stream, false)
	for _, key := range sr.Targets {
		r, ok := byKey[key]
		if !ok {
			continue
		}
		_ = r.send(d)
		s.emitStreamStart(key, d.Slot, r.Tracker(d.Slot).Current(), true)
	}
	if s.coll != nil {
		s.coll.StreamStarted()
		s.coll.TalkgroupActive(d.DstID, int(d.Slot), true)
	}
}

func (s *Server) forwardCached(d *protocol.DMRD, tr *stream.Tracker, byKey map[stream.TargetKey]routable) {
	cur := tr.Current()
	if cur == nil {
		return
	}
	for _, key := range cur.TargetSet {
		if r, ok := byKey[key]; ok {
			_ = r.send(d)
		}
	}
}

// clearPeerStreams ends any in-progress routes sourced from p and clears its
// per-slot trackers, used on graceful disconnect and on keepalive timeout.
func (s *Server) clearPeerStreams(p *peer.Peer, now time.Time) {
	eps := toEndpoints(s.routables())
	source := peerEndpoint{p}
	for _, slot := range []protocol.Timeslot{protocol.Slot1, protocol.Slot2} {
		tr := p.SlotTracker(slot)
		cur := tr.Current()
		wasLive := cur != nil && !cur.IsAssumed && !cur.Ended
		if wasLive {
			ended := s.engine.EndRoute(now, source, slot, stream.ReasonPeerTimeout, eps)
			s.emitEndedTargets(slot, ended)
		}
		cleared := tr.Clear(now, stream.ReasonPeerTimeout)
		if wasLive {
			s.emitStreamEnd(source.Key(), slot, cleared)
		}
	}
}

// scanPeerTimeouts runs on the keepalive-interval tick: any CONNECTED peer
// silent for a full interval accrues a missed ping, and is disconnected once
// it exceeds global.max_missed.
func (s *Server) scanPeerTimeouts(now time.Time) {
	interval := s.cfg.Global.KeepaliveInterval()
	maxMissed := s.cfg.Global.MaxMissed
	for _, p := range s.peers.all() {
		if p.GetState() != peer.StateConnected {
			continue
		}
		if now.Sub(p.LastHeard) < interval {
			continue
		}
		if p.IncMissedPing() <= maxMissed {
			continue
		}
		s.log.Info("peer timed out", logger.Uint32("radio_id", p.RadioID))
		s.sendTo(p.Addr, protocol.EncodeMSTCL(p.RadioID))
		s.clearPeerStreams(p, now)
		s.peers.remove(p.RadioID)
		if s.coll != nil {
			s.coll.PeerDisconnected()
		}
		if s.sink != nil {
			s.sink.Emit("repeater_disconnected", map[string]interface{}{"radio_id": p.RadioID, "reason": "peer_timeout"})
		}
	}
}

// scanStreamTimeouts runs on the stream-timeout tick (~1s): it applies the
// silence-timeout and hang-time-expiry rules to every connected endpoint's
// per-slot tracker.
func (s *Server) scanStreamTimeouts(now time.Time) {
	streamTimeout := s.cfg.Global.StreamTimeoutDuration()
	hangTime := s.cfg.Global.HangTime()
	rs := s.routables()
	eps := toEndpoints(rs)
	for _, r := range rs {
		for _, slot := range []protocol.Timeslot{protocol.Slot1, protocol.Slot2} {
			tr := r.Tracker(slot)
			res := tr.Sweep(now, streamTimeout, hangTime)
			if res.TimedOut != nil && !res.TimedOut.IsAssumed {
				s.emitStreamEnd(r.Key(), slot, res.TimedOut)
				ended := s.engine.EndRoute(now, r.Endpoint, slot, stream.ReasonTimeout, eps)
				s.emitEndedTargets(slot, ended)
				if s.coll != nil {
					s.coll.StreamEnded()
				}
			}
			if res.Cleared != nil {
				s.emitHangTimeExpired(r.Key(), slot)
			}
		}
	}
}

func hashChallenge(salt []byte, passphrase string) string {
	sum := sha256.Sum256(append(append([]byte(nil), salt...), []byte(passphrase)...))
	return hex.EncodeToString(sum[:])
}
