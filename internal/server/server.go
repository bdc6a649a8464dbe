// Package server implements the repeater-facing half of HBlink4: the
// dual-stack UDP listeners, the login/challenge/configure/keepalive FSM of
// §4.5, and the single cooperative event loop that ties the packet codec,
// access matcher, stream tracker and routing engine together.
package server

import (
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/hblink4/hblink4/internal/access"
	"github.com/hblink4/hblink4/internal/client"
	"github.com/hblink4/hblink4/internal/config"
	"github.com/hblink4/hblink4/internal/eventsink"
	"github.com/hblink4/hblink4/internal/logger"
	"github.com/hblink4/hblink4/internal/metrics"
	"github.com/hblink4/hblink4/internal/peer"
	"github.com/hblink4/hblink4/internal/protocol"
	"github.com/hblink4/hblink4/internal/routing"
	"github.com/hblink4/hblink4/internal/timerwheel"
	"github.com/hblink4/hblink4/internal/usercache"
)

// Server is the whole running HBlink4 process: inbound UDP listeners, the
// peer table, every outbound connection, and the shared routing engine.
type Server struct {
	cfg *config.Config
	log *logger.Logger

	matcher *access.Matcher
	engine  *routing.Engine
	peers   *peerTable
	cache   *usercache.Cache
	sink    *eventsink.Sink
	coll    *metrics.Collector
	wheel   *timerwheel.Wheel

	connV4 *net.UDPConn
	connV6 *net.UDPConn

	outboundMu sync.RWMutex
	outbound   []*client.Connection

	reservedIDs map[uint32]string
}

// New assembles a Server from its configuration and collaborators. sink,
// coll, and cache may be nil; the server degrades gracefully without them.
func New(cfg *config.Config, log *logger.Logger, sink *eventsink.Sink, coll *metrics.Collector, cache *usercache.Cache) *Server {
	s := &Server{
		cfg:         cfg,
		log:         log.WithComponent("server"),
		matcher:     cfg.BuildMatcher(),
		engine:      routing.NewEngine(),
		peers:       newPeerTable(),
		cache:       cache,
		sink:        sink,
		coll:        coll,
		reservedIDs: make(map[uint32]string, len(cfg.OutboundConnections)),
	}
	for _, oc := range cfg.OutboundConnections {
		s.reservedIDs[oc.OurID] = oc.Name
	}
	return s
}

// Run binds the configured listeners, starts every enabled outbound
// connection, and services the event loop until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.Global.BindIPv4 != "" || s.cfg.Global.PortIPv4 > 0 {
		addr := fmt.Sprintf("%s:%d", s.cfg.Global.BindIPv4, s.cfg.Global.PortIPv4)
		conn, err := listenUDP(ctx, addr, false)
		if err != nil {
			return err
		}
		s.connV4 = conn
		s.log.Info("listening", logger.String("family", "ipv4"), logger.String("addr", addr))
	}
	if !s.cfg.Global.DisableIPv6 && (s.cfg.Global.BindIPv6 != "" || s.cfg.Global.PortIPv6 > 0) {
		addr := fmt.Sprintf("[%s]:%d", s.cfg.Global.BindIPv6, s.cfg.Global.PortIPv6)
		conn, err := listenUDP(ctx, addr, true)
		if err != nil {
			return err
		}
		s.connV6 = conn
		s.log.Info("listening", logger.String("family", "ipv6"), logger.String("addr", addr))
	}
	if s.connV4 == nil && s.connV6 == nil {
		return fmt.Errorf("server: no listener configured")
	}

	s.wheel = timerwheel.New(timerwheel.Config{
		PeerTimeoutInterval: s.cfg.Global.KeepaliveInterval(),
	})
	defer s.wheel.Stop()

	var wg sync.WaitGroup
	for _, oc := range s.cfg.OutboundConnections {
		if !oc.Enabled {
			continue
		}
		conn := s.newOutbound(oc)
		s.outboundMu.Lock()
		s.outbound = append(s.outbound, conn)
		s.outboundMu.Unlock()
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn.Run(ctx)
		}()
	}

	type inbound struct {
		data []byte
		addr *net.UDPAddr
	}
	reads := make(chan inbound, 256)
	readFrom := func(conn *net.UDPConn) {
		buf := make([]byte, 4096)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			cp := append([]byte(nil), buf[:n]...)
			select {
			case reads <- inbound{data: cp, addr: addr}:
			case <-ctx.Done():
				return
			}
		}
	}
	if s.connV4 != nil {
		go readFrom(s.connV4)
	}
	if s.connV6 != nil {
		go readFrom(s.connV6)
	}

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			wg.Wait()
			return nil
		case in := <-reads:
			s.handlePacket(in.data, in.addr)
		case now := <-s.wheel.PeerTimeout.C:
			s.scanPeerTimeouts(now)
		case now := <-s.wheel.StreamTimeout.C:
			s.scanStreamTimeouts(now)
		case now := <-s.wheel.UserCacheExpiry.C:
			if s.cache != nil {
				s.cache.Sweep(now)
			}
		}
	}
}

// shutdown sends MSTCL to every connected peer, per §5's cancellation
// sequence. Outbound RPTCL is sent by each Connection.Run on ctx.Done.
func (s *Server) shutdown() {
	for _, p := range s.peers.all() {
		if p.GetState() == peer.StateConnected {
			s.sendTo(p.Addr, protocol.EncodeMSTCL(p.RadioID))
		}
	}
	if s.sink != nil {
		s.sink.Close()
	}
}

func (s *Server) sendTo(addr *net.UDPAddr, data []byte) {
	conn := s.connV4
	if addr.IP.To4() == nil {
		conn = s.connV6
	}
	if conn == nil {
		conn = s.connV4
	}
	if conn == nil {
		return
	}
	if _, err := conn.WriteToUDP(data, addr); err != nil {
		s.log.Debug("send failed", logger.Error(err))
		return
	}
	if s.coll != nil {
		s.coll.PacketSent(protocol.DetectTag(data), len(data))
	}
}

func generateSalt() ([]byte, error) {
	salt := make([]byte, 4)
	_, err := rand.Read(salt)
	return salt, err
}

func (s *Server) newOutbound(oc config.OutboundConn) *client.Connection {
	cc := client.Config{
		Name: oc.Name, Host: oc.Host, Port: oc.Port, OurID: oc.OurID,
		Password: oc.Password, Options: oc.Options,
		KeepaliveInterval: s.cfg.Global.KeepaliveInterval(),
		MaxMissed:         s.cfg.Global.MaxMissed,
		Callsign:          oc.Name,
	}
	return client.New(cc, s.log, s.routeOutboundDMRD)
}

// routeOutboundDMRD handles a DMRD frame received on an outbound connection,
// treating it exactly like traffic from a peer with radio_id = our_id
// (§4.7).
func (s *Server) routeOutboundDMRD(now time.Time, conn *client.Connection, d *protocol.DMRD, isTerminator bool) {
	s.routeDMRD(now, conn, d, isTerminator)
}
