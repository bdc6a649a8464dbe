package eventsink

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func listenUnixgram(t *testing.T) (*net.UnixConn, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dashboard.sock")
	addr, err := net.ResolveUnixAddr("unixgram", path)
	if err != nil {
		t.Fatalf("resolve unix addr: %v", err)
	}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		t.Fatalf("listen unixgram: %v", err)
	}
	t.Cleanup(func() { conn.Close(); os.Remove(path) })
	return conn, path
}

func TestDialAndEmit_DeliversJSONEvent(t *testing.T) {
	server, path := listenUnixgram(t)

	sink, err := Dial(Config{Transport: "unix", UnixSocket: path}, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer sink.Close()

	sink.Emit("peer_connected", map[string]interface{}{"radio_id": float64(312000)})

	buf := make([]byte, 4096)
	server.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := server.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var ev Event
	if err := json.Unmarshal(buf[:n], &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Type != "peer_connected" {
		t.Errorf("expected type peer_connected, got %q", ev.Type)
	}
	if ev.Data["radio_id"] != float64(312000) {
		t.Errorf("expected radio_id 312000, got %v", ev.Data["radio_id"])
	}
}

func TestDial_RejectsUnreachableSocket(t *testing.T) {
	dir := t.TempDir()
	_, err := Dial(Config{Transport: "unix", UnixSocket: filepath.Join(dir, "nonexistent.sock")}, nil)
	if err == nil {
		t.Fatal("expected an error dialing a unix socket with no listener")
	}
}

func TestClose_DrainsPendingEvents(t *testing.T) {
	server, path := listenUnixgram(t)
	sink, err := Dial(Config{Transport: "unix", UnixSocket: path}, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	for i := 0; i < 5; i++ {
		sink.Emit("stream_start", map[string]interface{}{"i": i})
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	server.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	received := 0
	for {
		n, err := server.Read(buf)
		if err != nil {
			break
		}
		if n > 0 {
			received++
		}
		if received == 5 {
			break
		}
	}
	if received != 5 {
		t.Errorf("expected all 5 queued events delivered before close, got %d", received)
	}
}

func TestEmit_AfterBufferFullDropsSilently(t *testing.T) {
	// Use a sink with no reader draining the transport so events back up in
	// the OS socket buffer; Emit must never block regardless.
	server, path := listenUnixgram(t)
	defer server.Close()

	sink, err := Dial(Config{Transport: "unix", UnixSocket: path}, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer sink.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < sendBufferSize*2; i++ {
			sink.Emit("flood", map[string]interface{}{"i": i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Emit must never block, even when the send buffer is saturated")
	}
}
