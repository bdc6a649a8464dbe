package routing

import "github.com/hblink4/hblink4/internal/stream"

// DecideHangTime is the pure hang-time policy function of the four-case
// table: same source always continues the conversation; same destination
// always lets another user join it; anything else is a slot-hijack attempt
// and is denied. It has no dependency on wall-clock time or any mutable
// state, so it is trivially safe to call from the stream tracker's lock.
func DecideHangTime(existing *stream.Stream, newSrc, newDst uint32) bool {
	if existing == nil {
		return true
	}
	sameSrc := newSrc == existing.RFSrc
	sameDst := newDst == existing.DstID
	return sameSrc || sameDst
}
