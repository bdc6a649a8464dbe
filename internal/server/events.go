package server

import (
	"strings"

	"github.com/hblink4/hblink4/internal/protocol"
	"github.com/hblink4/hblink4/internal/routing"
	"github.com/hblink4/hblink4/internal/stream"
)

// streamUpdateEvery is how often (in packets) a running stream emits a
// stream_update event, per the event-sink payload table.
const streamUpdateEvery = 60

// connKeyParts splits a routing target key (e.g. "peer:312000" or
// "outbound:bridge-1") into its connection_type and connection_id fields.
func connKeyParts(key stream.TargetKey) (connType, connID string) {
	s := string(key)
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, s
}

func callTypeString(ct protocol.CallType) string {
	if ct == protocol.CallTypePrivate {
		return "private"
	}
	return "group"
}

// emitStreamStart reports a stream taking a slot, real or assumed, on one
// connection.
func (s *Server) emitStreamStart(key stream.TargetKey, slot protocol.Timeslot, st *stream.Stream, assumed bool) {
	if s.sink == nil || st == nil {
		return
	}
	connType, connID := connKeyParts(key)
	s.sink.Emit("stream_start", map[string]interface{}{
		"connection_type": connType,
		"connection_id":   connID,
		"slot":            int(slot),
		"src_id":          st.RFSrc,
		"dst_id":          st.DstID,
		"stream_id":       st.StreamID,
		"call_type":       callTypeString(st.CallType),
		"assumed":         assumed,
	})
}

// emitStreamUpdate reports a running stream's progress every
// streamUpdateEvery packets.
func (s *Server) emitStreamUpdate(key stream.TargetKey, slot protocol.Timeslot, st *stream.Stream) {
	if s.sink == nil || st == nil || st.PacketCount == 0 || st.PacketCount%streamUpdateEvery != 0 {
		return
	}
	connType, connID := connKeyParts(key)
	s.sink.Emit("stream_update", map[string]interface{}{
		"connection_type": connType,
		"connection_id":   connID,
		"slot":            int(slot),
		"stream_id":       st.StreamID,
		"duration":        st.LastSeen.Sub(st.StartTime).Seconds(),
		"packet_count":    st.PacketCount,
	})
}

// emitStreamEnd reports a stream (real or assumed) ending on one connection.
func (s *Server) emitStreamEnd(key stream.TargetKey, slot protocol.Timeslot, st *stream.Stream) {
	if s.sink == nil || st == nil {
		return
	}
	connType, connID := connKeyParts(key)
	s.sink.Emit("stream_end", map[string]interface{}{
		"connection_type": connType,
		"connection_id":   connID,
		"slot":            int(slot),
		"stream_id":       st.StreamID,
		"duration":        st.EndTime.Sub(st.StartTime).Seconds(),
		"packet_count":    st.PacketCount,
		"end_reason":      string(st.EndReason),
	})
}

// emitHangTimeExpired reports a slot leaving hang-time and becoming free.
func (s *Server) emitHangTimeExpired(key stream.TargetKey, slot protocol.Timeslot) {
	if s.sink == nil {
		return
	}
	connType, connID := connKeyParts(key)
	s.sink.Emit("hang_time_expired", map[string]interface{}{
		"connection_type": connType,
		"connection_id":   connID,
		"slot":            int(slot),
	})
}

// emitEndedTargets emits stream_end for every target EndRoute just ended.
func (s *Server) emitEndedTargets(slot protocol.Timeslot, ended []routing.EndedTarget) {
	for _, t := range ended {
		s.emitStreamEnd(t.Key, slot, t.Stream)
	}
}
