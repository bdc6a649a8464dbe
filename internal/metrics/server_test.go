package metrics

import (
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestServer_DisabledStartIsANoop(t *testing.T) {
	s := NewServer(ServerConfig{Enabled: false, Host: "127.0.0.1", Port: freePort(t)}, NewCollector())
	if err := s.Start(nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("expected stopping a never-started server to be a no-op, got %v", err)
	}
}

func TestServer_ServesMetrics(t *testing.T) {
	port := freePort(t)
	s := NewServer(ServerConfig{Enabled: true, Host: "127.0.0.1", Port: port}, NewCollector())
	if err := s.Start(nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	time.Sleep(50 * time.Millisecond)

	resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/metrics")
	if err != nil {
		t.Fatalf("get /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
