package server

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hblink4/hblink4/internal/eventsink"
	"github.com/hblink4/hblink4/internal/protocol"
	"github.com/hblink4/hblink4/internal/routing"
	"github.com/hblink4/hblink4/internal/stream"
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

func newTestSinkServer(t *testing.T) (*Server, *net.UnixConn) {
	t.Helper()
	listener, path := listenUnixgram(t)
	sink, err := eventsink.Dial(eventsink.Config{Transport: "unix", UnixSocket: path}, nil)
	if err != nil {
		t.Fatalf("dial sink: %v", err)
	}
	t.Cleanup(func() { sink.Close() })
	return &Server{sink: sink}, listener
}

func readEvent(t *testing.T, conn *net.UnixConn) eventsink.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	var ev eventsink.Event
	if err := json.Unmarshal(buf[:n], &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	return ev
}

func TestConnKeyParts(t *testing.T) {
	cases := map[stream.TargetKey][2]string{
		"peer:312000":       {"peer", "312000"},
		"outbound:bridge-1": {"outbound", "bridge-1"},
		"noseparator":       {"noseparator", "noseparator"},
	}
	for key, want := range cases {
		gotType, gotID := connKeyParts(key)
		if gotType != want[0] || gotID != want[1] {
			t.Errorf("connKeyParts(%q) = (%q, %q), want (%q, %q)", key, gotType, gotID, want[0], want[1])
		}
	}
}

func TestCallTypeString(t *testing.T) {
	if callTypeString(protocol.CallTypeGroup) != "group" {
		t.Error("expected group call type to render as \"group\"")
	}
	if callTypeString(protocol.CallTypePrivate) != "private" {
		t.Error("expected private call type to render as \"private\"")
	}
}

func TestEmitStreamStart_SendsExpectedPayload(t *testing.T) {
	srv, conn := newTestSinkServer(t)
	now := time.Now()
	st := &stream.Stream{StreamID: 7, RFSrc: 100, DstID: 3120, CallType: protocol.CallTypeGroup, StartTime: now, LastSeen: now}

	srv.emitStreamStart("peer:311100", protocol.Slot1, st, false)

	ev := readEvent(t, conn)
	if ev.Type != "stream_start" {
		t.Fatalf("expected stream_start, got %q", ev.Type)
	}
	if ev.Data["connection_type"] != "peer" || ev.Data["connection_id"] != "311100" {
		t.Errorf("unexpected connection fields: %+v", ev.Data)
	}
	if ev.Data["assumed"] != false {
		t.Errorf("expected assumed=false, got %v", ev.Data["assumed"])
	}
	if ev.Data["call_type"] != "group" {
		t.Errorf("expected call_type=group, got %v", ev.Data["call_type"])
	}
}

func TestEmitStreamStart_NilStreamIsANoop(t *testing.T) {
	srv, conn := newTestSinkServer(t)
	srv.emitStreamStart("peer:1", protocol.Slot1, nil, true)

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	buf := make([]byte, 64)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("expected no event to be sent for a nil stream")
	}
}

func TestEmitStreamUpdate_OnlyFiresOnInterval(t *testing.T) {
	srv, conn := newTestSinkServer(t)
	now := time.Now()

	srv.emitStreamUpdate("peer:1", protocol.Slot1, &stream.Stream{StreamID: 1, PacketCount: 59, StartTime: now, LastSeen: now})
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	buf := make([]byte, 64)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("expected no stream_update at packet count 59")
	}

	srv.emitStreamUpdate("peer:1", protocol.Slot1, &stream.Stream{StreamID: 1, PacketCount: 60, StartTime: now, LastSeen: now})
	ev := readEvent(t, conn)
	if ev.Type != "stream_update" {
		t.Fatalf("expected stream_update at packet count 60, got %q", ev.Type)
	}
	if ev.Data["packet_count"] != float64(60) {
		t.Errorf("expected packet_count 60, got %v", ev.Data["packet_count"])
	}
}

func TestEmitStreamEnd_IncludesEndReason(t *testing.T) {
	srv, conn := newTestSinkServer(t)
	now := time.Now()
	st := &stream.Stream{StreamID: 1, StartTime: now, EndTime: now.Add(3 * time.Second), PacketCount: 42, EndReason: stream.ReasonTerminator}

	srv.emitStreamEnd("peer:1", protocol.Slot1, st)

	ev := readEvent(t, conn)
	if ev.Type != "stream_end" {
		t.Fatalf("expected stream_end, got %q", ev.Type)
	}
	if ev.Data["end_reason"] != "terminator" {
		t.Errorf("expected end_reason terminator, got %v", ev.Data["end_reason"])
	}
	if ev.Data["duration"] != float64(3) {
		t.Errorf("expected duration 3, got %v", ev.Data["duration"])
	}
}

func TestEmitHangTimeExpired_IncludesSlot(t *testing.T) {
	srv, conn := newTestSinkServer(t)
	srv.emitHangTimeExpired("outbound:bridge-1", protocol.Slot2)

	ev := readEvent(t, conn)
	if ev.Type != "hang_time_expired" {
		t.Fatalf("expected hang_time_expired, got %q", ev.Type)
	}
	if ev.Data["connection_id"] != "bridge-1" || ev.Data["slot"] != float64(2) {
		t.Errorf("unexpected payload: %+v", ev.Data)
	}
}

func TestEmitEndedTargets_EmitsOnePerTarget(t *testing.T) {
	srv, conn := newTestSinkServer(t)
	now := time.Now()
	ended := []routing.EndedTarget{
		{Key: "peer:2", Stream: &stream.Stream{StreamID: 1, StartTime: now, EndTime: now, EndReason: stream.ReasonTerminator}},
	}
	srv.emitEndedTargets(protocol.Slot1, ended)

	ev := readEvent(t, conn)
	if ev.Type != "stream_end" || ev.Data["connection_id"] != "2" {
		t.Fatalf("expected a stream_end for peer 2, got %+v", ev)
	}
}
