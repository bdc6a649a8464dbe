// Package client implements the outbound half of the HomeBrew protocol: the
// same login/challenge/configure handshake as internal/server, played in the
// client role against a remote master, with reconnect-with-backoff.
package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hblink4/hblink4/internal/access"
	"github.com/hblink4/hblink4/internal/logger"
	"github.com/hblink4/hblink4/internal/protocol"
	"github.com/hblink4/hblink4/internal/stream"
)

// State mirrors the server-side FSM in the client role.
type State int

const (
	StateDisconnected State = iota
	StateLoginSent
	StateAuthenticated
	StateConfigSent
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateLoginSent:
		return "login_sent"
	case StateAuthenticated:
		return "authenticated"
	case StateConfigSent:
		return "config_sent"
	case StateConnected:
		return "connected"
	default:
		return "invalid"
	}
}

// Config describes one outbound connection, as decoded from
// config.OutboundConn plus the local repeater identity announced in RPTC.
type Config struct {
	Name     string
	Host     string
	Port     int
	OurID    uint32
	Password string
	Options  string // raw options string, e.g. "TS1=1,2,3;TS2=10,20"

	Callsign    string
	RXFreq      string
	TXFreq      string
	TXPower     string
	ColorCode   string
	Latitude    string
	Longitude   string
	Height      string
	Location    string
	Description string
	URL         string
	SoftwareID  string
	PackageID   string

	KeepaliveInterval time.Duration
	MaxMissed         int
}

// RouteFunc is called with each inbound DMRD frame the connection receives,
// the hook into the shared routing engine supplied by the composing server.
// The client package does not import the routing package at all; Connection
// satisfies routing.Endpoint structurally through its Key, AllowedSet and
// Tracker methods.
type RouteFunc func(now time.Time, conn *Connection, d *protocol.DMRD, isTerminator bool)

// Connection is one outbound, peer-role link to a remote master. It owns
// its own UDP socket, independent of the server's inbound listener, so the
// source address of outgoing datagrams reflects the outbound's client role.
type Connection struct {
	cfg  Config
	log  *logger.Logger
	conn *net.UDPConn
	addr *net.UDPAddr

	mu    sync.RWMutex
	state State

	TS1, TS2 access.TalkgroupSet
	streams  [2]*stream.Tracker

	missedPings int
	route       RouteFunc

	backoff time.Duration
}

const (
	minBackoff = 1 * time.Second
	maxBackoff = 2 * time.Minute
)

// New builds a Connection in the disconnected state.
func New(cfg Config, log *logger.Logger, route RouteFunc) *Connection {
	ts1, ts2 := parseOptions(cfg.Options)
	return &Connection{
		cfg:     cfg,
		log:     log.WithComponent("client").WithComponent(cfg.Name),
		state:   StateDisconnected,
		TS1:     ts1,
		TS2:     ts2,
		streams: [2]*stream.Tracker{stream.NewTracker(), stream.NewTracker()},
		route:   route,
		backoff: minBackoff,
	}
}

// parseOptions parses "TS1=1,2,3;TS2=10,20" into per-slot talkgroup sets.
// A bare "*" or an absent slot key means wildcard, matching the repeater
// config TG-list semantics.
func parseOptions(options string) (ts1, ts2 access.TalkgroupSet) {
	ts1, ts2 = access.Wildcard(), access.Wildcard()
	for _, part := range strings.Split(options, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, val := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		set := parseTGList(val)
		switch strings.ToUpper(key) {
		case "TS1":
			ts1 = set
		case "TS2":
			ts2 = set
		}
	}
	return ts1, ts2
}

func parseTGList(val string) access.TalkgroupSet {
	if val == "" || val == "*" {
		return access.Wildcard()
	}
	var ids []uint32
	for _, tok := range strings.Split(val, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		n, err := strconv.ParseUint(tok, 10, 32)
		if err != nil {
			continue
		}
		ids = append(ids, uint32(n))
	}
	return access.NewTalkgroupSet(ids)
}

// Key identifies this connection as a routing.Endpoint target.
func (c *Connection) Key() stream.TargetKey {
	return stream.TargetKey(fmt.Sprintf("outbound:%s", c.cfg.Name))
}

// AllowedSet implements routing.Endpoint.
func (c *Connection) AllowedSet(slot protocol.Timeslot) access.TalkgroupSet {
	if slot == protocol.Slot2 {
		return c.TS2
	}
	return c.TS1
}

// Tracker implements routing.Endpoint.
func (c *Connection) Tracker(slot protocol.Timeslot) *stream.Tracker {
	if slot == protocol.Slot2 {
		return c.streams[1]
	}
	return c.streams[0]
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// State returns the current FSM state.
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Name returns the outbound connection's configured name.
func (c *Connection) Name() string { return c.cfg.Name }

// OurID returns the radio id this connection presents to the remote master.
func (c *Connection) OurID() uint32 { return c.cfg.OurID }

// Send transmits a raw frame to the remote master over this connection's
// own socket.
func (c *Connection) Send(data []byte) error {
	if c.conn == nil {
		return fmt.Errorf("client: %s not connected", c.cfg.Name)
	}
	_, err := c.conn.WriteToUDP(data, c.addr)
	return err
}

// Run dials, authenticates, and services the connection until ctx is
// cancelled, reconnecting with exponential backoff on any failure.
func (c *Connection) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.runOnce(ctx); err != nil {
			c.log.Warn("outbound connection failed, reconnecting",
				logger.Error(err), logger.Duration("backoff", c.backoff))
			c.setState(StateDisconnected)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.backoff):
			}
			c.backoff *= 2
			if c.backoff > maxBackoff {
				c.backoff = maxBackoff
			}
			continue
		}
		c.backoff = minBackoff
	}
}

func (c *Connection) runOnce(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port)))
	if err != nil {
		return fmt.Errorf("resolve %s: %w", c.cfg.Host, err)
	}
	c.addr = addr

	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	c.conn = conn
	defer conn.Close()

	if err := c.handshake(); err != nil {
		return err
	}

	return c.serve(ctx)
}

// handshake runs the login -> challenge -> configure -> options sequence.
// Unlike a naive client-generated-challenge implementation, the salt used
// in RPTK is the one the master returns in its RPTACK reply to RPTL, not a
// locally generated value, per the repeater FSM's salt handshake.
func (c *Connection) handshake() error {
	c.setState(StateDisconnected)

	rptl := &protocol.RPTL{RadioID: c.cfg.OurID}
	if err := c.Send(rptl.Encode()); err != nil {
		return fmt.Errorf("send RPTL: %w", err)
	}
	c.setState(StateLoginSent)

	_, salt, err := c.readRPTACK()
	if err != nil {
		return fmt.Errorf("RPTL handshake: %w", err)
	}
	if len(salt) != 4 {
		return fmt.Errorf("RPTL handshake: master did not return a salt")
	}

	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(c.cfg.Password))
	hash := hex.EncodeToString(h.Sum(nil))

	rptk := &protocol.RPTK{RadioID: c.cfg.OurID, Hash: hash}
	if err := c.Send(rptk.Encode()); err != nil {
		return fmt.Errorf("send RPTK: %w", err)
	}
	if _, _, err := c.readRPTACK(); err != nil {
		return fmt.Errorf("RPTK handshake (bad passphrase?): %w", err)
	}
	c.setState(StateAuthenticated)

	rptc := &protocol.RPTC{
		RadioID: c.cfg.OurID, Callsign: c.cfg.Callsign, RXFreq: c.cfg.RXFreq,
		TXFreq: c.cfg.TXFreq, TXPower: c.cfg.TXPower, ColorCode: c.cfg.ColorCode,
		Latitude: c.cfg.Latitude, Longitude: c.cfg.Longitude, Height: c.cfg.Height,
		Location: c.cfg.Location, Description: c.cfg.Description, Slots: "3",
		URL: c.cfg.URL, SoftwareID: c.cfg.SoftwareID, PackageID: c.cfg.PackageID,
	}
	if err := c.Send(rptc.Encode()); err != nil {
		return fmt.Errorf("send RPTC: %w", err)
	}
	c.setState(StateConfigSent)
	if _, _, err := c.readRPTACK(); err != nil {
		return fmt.Errorf("RPTC handshake: %w", err)
	}

	rpto := &protocol.RPTO{RadioID: c.cfg.OurID, Options: c.cfg.Options}
	if err := c.Send(rpto.Encode()); err != nil {
		return fmt.Errorf("send RPTO: %w", err)
	}

	c.setState(StateConnected)
	c.log.Info("outbound connection established")
	return nil
}

func (c *Connection) readRPTACK() (uint32, []byte, error) {
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer c.conn.SetReadDeadline(time.Time{})

	buf := make([]byte, 1024)
	n, _, err := c.conn.ReadFromUDP(buf)
	if err != nil {
		return 0, nil, err
	}
	if protocol.DetectTag(buf[:n]) != protocol.TagRPTACK {
		if protocol.DetectTag(buf[:n]) == protocol.TagMSTNAK {
			return 0, nil, fmt.Errorf("master sent MSTNAK")
		}
		return 0, nil, fmt.Errorf("unexpected reply (tag %q)", protocol.DetectTag(buf[:n]))
	}
	return protocol.ParseRPTACK(buf[:n])
}

// serve runs the keepalive ping loop and the receive loop until ctx is
// cancelled or the connection fails.
func (c *Connection) serve(ctx context.Context) error {
	interval := c.cfg.KeepaliveInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	maxMissed := c.cfg.MaxMissed
	if maxMissed <= 0 {
		maxMissed = 3
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	type readResult struct {
		data []byte
		err  error
	}
	reads := make(chan readResult, 1)
	go func() {
		buf := make([]byte, 4096)
		for {
			n, _, err := c.conn.ReadFromUDP(buf)
			if err != nil {
				reads <- readResult{err: err}
				return
			}
			cp := append([]byte(nil), buf[:n]...)
			reads <- readResult{data: cp}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			c.sendRPTCL()
			return nil
		case <-ticker.C:
			c.mu.Lock()
			c.missedPings++
			missed := c.missedPings
			c.mu.Unlock()
			if missed > maxMissed {
				return fmt.Errorf("keepalive timeout: %d missed pings", missed)
			}
			ping := protocol.EncodeRPTPING(c.cfg.OurID)
			if err := c.Send(ping); err != nil {
				return fmt.Errorf("send RPTPING: %w", err)
			}
		case r := <-reads:
			if r.err != nil {
				return fmt.Errorf("read: %w", r.err)
			}
			c.handleInbound(r.data)
		}
	}
}

func (c *Connection) handleInbound(data []byte) {
	tag := protocol.DetectTag(data)
	switch tag {
	case protocol.TagMSTPONG:
		c.mu.Lock()
		c.missedPings = 0
		c.mu.Unlock()
	case protocol.TagMSTCL:
		c.log.Warn("master sent MSTCL, closing")
		c.conn.Close()
	case protocol.TagDMRD:
		if len(data) != protocol.DMRDFrameSize {
			return
		}
		d, err := protocol.ParseDMRD(data)
		if err != nil {
			return
		}
		if c.route != nil {
			c.route(time.Now(), c, d, d.IsTerminator())
		}
	}
}

func (c *Connection) sendRPTCL() {
	if c.conn == nil {
		return
	}
	_ = c.Send(protocol.EncodeRPTCL(c.cfg.OurID))
}
