// Package peer holds connected-repeater state: protocol FSM state, the
// per-slot stream trackers, and the address binding invariant.
package peer

import (
	"net"
	"sync"
	"time"

	"github.com/hblink4/hblink4/internal/access"
	"github.com/hblink4/hblink4/internal/protocol"
	"github.com/hblink4/hblink4/internal/stream"
)

// State is the repeater protocol FSM state, from the server's point of view.
type State int

const (
	StateUnknown State = iota
	StateLoginReceived
	StateChallengeSent
	StateAuthenticated
	StateWaitingConfig
	StateConfigured
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateLoginReceived:
		return "login_received"
	case StateChallengeSent:
		return "challenge_sent"
	case StateAuthenticated:
		return "authenticated"
	case StateWaitingConfig:
		return "waiting_config"
	case StateConfigured:
		return "configured"
	case StateConnected:
		return "connected"
	default:
		return "invalid"
	}
}

// Peer is a connected repeater, keyed by its radio id.
type Peer struct {
	mu sync.RWMutex

	RadioID uint32
	Addr    *net.UDPAddr
	State   State

	Salt       []byte
	Passphrase string

	Callsign    string
	Description string
	URL         string
	SoftwareID  string
	PackageID   string

	TS1 access.TalkgroupSet
	TS2 access.TalkgroupSet

	ConnectedAt time.Time
	LastHeard   time.Time
	MissedPings int

	Streams [2]*stream.Tracker // index 0 = slot 1, index 1 = slot 2

	PacketsReceived uint64
	PacketsSent     uint64
	BytesReceived   uint64
	BytesSent       uint64
}

// New creates a peer in the initial (unknown) state for the given address.
func New(radioID uint32, addr *net.UDPAddr) *Peer {
	return &Peer{
		RadioID: radioID,
		Addr:    addr,
		State:   StateUnknown,
	}
}

// SlotTracker returns the stream tracker for the given slot, creating it on
// first use.
func (p *Peer) SlotTracker(slot protocol.Timeslot) *stream.Tracker {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := slotIndex(slot)
	if p.Streams[idx] == nil {
		p.Streams[idx] = stream.NewTracker()
	}
	return p.Streams[idx]
}

func slotIndex(slot protocol.Timeslot) int {
	if slot == protocol.Slot2 {
		return 1
	}
	return 0
}

// AllowedSet returns the configured talkgroup set for the given slot.
func (p *Peer) AllowedSet(slot protocol.Timeslot) access.TalkgroupSet {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if slot == protocol.Slot2 {
		return p.TS2
	}
	return p.TS1
}

// SetState transitions the peer's FSM state.
func (p *Peer) SetState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.State = s
}

// GetState returns the current FSM state.
func (p *Peer) GetState() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.State
}

// MatchesAddress reports whether addr equals the peer's bound address. Per
// the source-address-binding invariant, once a peer reaches CONNECTED its
// (ip, port) is fixed; packets from any other address are rejected even if
// they claim the same radio id.
func (p *Peer) MatchesAddress(addr *net.UDPAddr) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.Addr == nil || addr == nil {
		return false
	}
	return p.Addr.IP.Equal(addr.IP) && p.Addr.Port == addr.Port
}

// Touch records a received packet, resetting the keepalive counter.
func (p *Peer) Touch(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.LastHeard = now
	p.MissedPings = 0
}

// NotePing resets the missed-ping counter on receipt of RPTPING.
func (p *Peer) NotePing(now time.Time) {
	p.Touch(now)
}

// IncMissedPing increments the missed-ping counter on a keepalive scan tick
// and reports the new count.
func (p *Peer) IncMissedPing() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.MissedPings++
	return p.MissedPings
}

// AddRX accounts a received packet's size.
func (p *Peer) AddRX(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PacketsReceived++
	p.BytesReceived += uint64(n)
}

// AddTX accounts a sent packet's size.
func (p *Peer) AddTX(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PacketsSent++
	p.BytesSent += uint64(n)
}
