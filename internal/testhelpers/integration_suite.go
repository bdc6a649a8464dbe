package testhelpers

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/hblink4/hblink4/internal/config"
	"github.com/hblink4/hblink4/internal/logger"
	"github.com/hblink4/hblink4/internal/metrics"
	"github.com/hblink4/hblink4/internal/server"
)

// IntegrationSuite wires a real Server up to a loopback UDP socket so
// end-to-end protocol behavior, not just isolated codec calls, can be
// exercised from a _test.go file.
type IntegrationSuite struct {
	T      *testing.T
	Logger *logger.Logger
	Ctx    context.Context
	Cancel context.CancelFunc

	MockPeers []*MockPeer
	Server    *TestServer
}

// TestServer is a Server running against a free loopback UDP port.
type TestServer struct {
	Addr string
	Coll *metrics.Collector

	cancel context.CancelFunc
	done   chan struct{}
}

// NewIntegrationSuite creates a new integration test suite.
func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	log, err := logger.New(logger.Config{Level: "debug", Format: "console"})
	if err != nil {
		t.Fatalf("testhelpers: building logger: %v", err)
	}
	return &IntegrationSuite{T: t, Logger: log, Ctx: ctx, Cancel: cancel}
}

// CreateMockPeer creates a mock peer and registers it with the suite. Call
// StartServer afterward so a matching repeater_configs entry is generated.
func (s *IntegrationSuite) CreateMockPeer(radioID uint32, passphrase, callsign string) *MockPeer {
	p := NewMockPeer(radioID, passphrase, callsign)
	s.MockPeers = append(s.MockPeers, p)
	return p
}

func freeUDPAddr(t *testing.T) (host string, port int) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("testhelpers: reserving udp port: %v", err)
	}
	addr := conn.LocalAddr().(*net.UDPAddr)
	host, port = addr.IP.String(), addr.Port
	_ = conn.Close()
	return host, port
}

// StartServer boots a real Server on a free loopback port, with one
// repeater_configs entry per registered mock peer granting it wildcard
// access on both slots. cfgFn, if non-nil, may further adjust the
// configuration (timeouts, access_control, outbound_connections) before the
// server starts.
func (s *IntegrationSuite) StartServer(cfgFn func(*config.Config)) *TestServer {
	host, port := freeUDPAddr(s.T)

	cfg := &config.Config{
		Global: config.Global{
			BindIPv4:        host,
			PortIPv4:        port,
			DisableIPv6:     true,
			MaxMissed:       3,
			TimeoutDuration: 1,
			StreamTimeout:   2,
			StreamHangTime:  1,
		},
		AccessControl: config.AccessControl{DefaultPolicy: "deny"},
	}
	for _, p := range s.MockPeers {
		radioID := p.RadioID
		cfg.RepeaterConfigs = append(cfg.RepeaterConfigs, config.RepeaterConfig{
			Match:      config.RuleConfig{RadioID: &radioID},
			Passphrase: p.Passphrase,
		})
	}
	if cfgFn != nil {
		cfgFn(cfg)
	}

	coll := metrics.NewCollector()
	srv := server.New(cfg, s.Logger, nil, coll, nil)

	ctx, cancel := context.WithCancel(s.Ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Run(ctx); err != nil {
			s.T.Logf("testhelpers: server exited: %v", err)
		}
	}()
	// Give the listener goroutine time to bind before any peer dials in.
	time.Sleep(50 * time.Millisecond)

	ts := &TestServer{
		Addr:   fmt.Sprintf("%s:%d", host, port),
		Coll:   coll,
		cancel: cancel,
		done:   done,
	}
	s.Server = ts
	return ts
}

// StopServer cancels the server's context and waits for Run to return.
func (s *IntegrationSuite) StopServer() {
	if s.Server == nil {
		return
	}
	s.Server.cancel()
	<-s.Server.done
}

// Cleanup closes every mock peer and stops the server.
func (s *IntegrationSuite) Cleanup() {
	for _, p := range s.MockPeers {
		_ = p.Close()
	}
	s.StopServer()
	s.Cancel()
}

// WaitFor polls condition until it returns true or timeout elapses.
func (s *IntegrationSuite) WaitFor(condition func() bool, timeout time.Duration, message string) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	s.T.Logf("WaitFor timeout: %s", message)
	return false
}

// AssertEventually fails the test if condition does not become true within
// timeout.
func (s *IntegrationSuite) AssertEventually(condition func() bool, timeout time.Duration, message string) {
	if !s.WaitFor(condition, timeout, message) {
		s.T.Errorf("assertion failed: %s", message)
	}
}
