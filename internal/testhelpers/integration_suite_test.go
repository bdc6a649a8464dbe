package testhelpers

import (
	"testing"
	"time"
)

func TestIntegrationSuite_Basic(t *testing.T) {
	suite := NewIntegrationSuite(t)
	defer suite.Cleanup()

	if suite.Logger == nil {
		t.Error("expected logger to be initialized")
	}
	if suite.Ctx == nil {
		t.Error("expected context to be initialized")
	}
}

func TestIntegrationSuite_MockPeer(t *testing.T) {
	suite := NewIntegrationSuite(t)
	defer suite.Cleanup()

	peer := suite.CreateMockPeer(312000, "password", "W1ABC")
	if peer == nil {
		t.Fatal("expected non-nil peer")
	}
	if peer.RadioID != 312000 {
		t.Errorf("expected radio id 312000, got %d", peer.RadioID)
	}
	if peer.Callsign != "W1ABC" {
		t.Errorf("expected callsign W1ABC, got %s", peer.Callsign)
	}
	if len(suite.MockPeers) != 1 {
		t.Errorf("expected 1 mock peer, got %d", len(suite.MockPeers))
	}
}

func TestIntegrationSuite_WaitFor(t *testing.T) {
	suite := NewIntegrationSuite(t)
	defer suite.Cleanup()

	counter := 0
	condition := func() bool {
		counter++
		return counter >= 5
	}

	if !suite.WaitFor(condition, 1*time.Second, "counter >= 5") {
		t.Error("expected WaitFor to succeed")
	}
	if counter < 5 {
		t.Errorf("expected counter >= 5, got %d", counter)
	}
}

func TestIntegrationSuite_WaitForTimeout(t *testing.T) {
	suite := NewIntegrationSuite(t)
	defer suite.Cleanup()

	if suite.WaitFor(func() bool { return false }, 100*time.Millisecond, "always false") {
		t.Error("expected WaitFor to time out")
	}
}

func TestIntegrationSuite_StartServer(t *testing.T) {
	suite := NewIntegrationSuite(t)
	defer suite.Cleanup()

	suite.CreateMockPeer(312000, "password", "W1ABC")
	ts := suite.StartServer(nil)

	if ts.Addr == "" {
		t.Fatal("expected server address to be assigned")
	}
	if ts.Coll == nil {
		t.Error("expected a metrics collector")
	}
}
