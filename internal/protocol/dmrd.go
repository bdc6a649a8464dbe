package protocol

import (
	"encoding/binary"
	"fmt"
)

// DMRD is a decoded 55-byte DMR voice/data frame.
type DMRD struct {
	Sequence    uint8
	RFSrc       uint32 // 24-bit, widened
	DstID       uint32 // 24-bit, widened
	RepeaterID  uint32
	Slot        Timeslot
	CallType    CallType
	FrameType   FrameType
	VoiceSeq    uint8
	StreamID    uint32
	Payload     [33]byte
	Reserved    [2]byte
}

// ParseDMRD decodes a DMRD frame. data must be the whole 55-byte frame,
// starting with the "DMRD" tag; the tag is checked explicitly.
func ParseDMRD(data []byte) (*DMRD, error) {
	if len(data) != DMRDFrameSize {
		return nil, fmt.Errorf("protocol: DMRD frame must be exactly %d bytes, got %d", DMRDFrameSize, len(data))
	}
	if string(data[0:4]) != TagDMRD {
		return nil, fmt.Errorf("protocol: not a DMRD frame")
	}

	d := &DMRD{
		Sequence:   data[dmrdOffSequence],
		RFSrc:      be24(data[dmrdOffRFSrc : dmrdOffRFSrc+dmrdLenRFSrc]),
		DstID:      be24(data[dmrdOffDst : dmrdOffDst+dmrdLenDst]),
		RepeaterID: binary.BigEndian.Uint32(data[dmrdOffRepeaterID : dmrdOffRepeaterID+dmrdLenRepeaterID]),
		StreamID:   binary.BigEndian.Uint32(data[dmrdOffStreamID : dmrdOffStreamID+dmrdLenStreamID]),
	}

	slotByte := data[dmrdOffSlotByte]
	if slotByte&slotBitTimeslot != 0 {
		d.Slot = Slot2
	} else {
		d.Slot = Slot1
	}
	if slotByte&slotBitCallType != 0 {
		d.CallType = CallTypePrivate
	} else {
		d.CallType = CallTypeGroup
	}
	d.FrameType = FrameType((slotByte & slotMaskFrame) >> slotFrameShift)
	d.VoiceSeq = slotByte & slotMaskSeq

	copy(d.Payload[:], data[dmrdOffPayload:dmrdOffPayload+dmrdLenPayload])
	copy(d.Reserved[:], data[dmrdOffReserved:dmrdOffReserved+dmrdLenReserved])

	return d, nil
}

// Encode serializes the frame back to its 55-byte wire form.
func (d *DMRD) Encode() []byte {
	buf := make([]byte, DMRDFrameSize)
	copy(buf[0:4], TagDMRD)
	buf[dmrdOffSequence] = d.Sequence
	putBE24(buf[dmrdOffRFSrc:dmrdOffRFSrc+dmrdLenRFSrc], d.RFSrc)
	putBE24(buf[dmrdOffDst:dmrdOffDst+dmrdLenDst], d.DstID)
	binary.BigEndian.PutUint32(buf[dmrdOffRepeaterID:dmrdOffRepeaterID+dmrdLenRepeaterID], d.RepeaterID)

	var slotByte byte
	if d.Slot == Slot2 {
		slotByte |= slotBitTimeslot
	}
	if d.CallType == CallTypePrivate {
		slotByte |= slotBitCallType
	}
	slotByte |= (byte(d.FrameType) << slotFrameShift) & slotMaskFrame
	slotByte |= d.VoiceSeq & slotMaskSeq
	buf[dmrdOffSlotByte] = slotByte

	binary.BigEndian.PutUint32(buf[dmrdOffStreamID:dmrdOffStreamID+dmrdLenStreamID], d.StreamID)
	copy(buf[dmrdOffPayload:dmrdOffPayload+dmrdLenPayload], d.Payload[:])
	copy(buf[dmrdOffReserved:dmrdOffReserved+dmrdLenReserved], d.Reserved[:])
	return buf
}

// IsTerminator reports whether this frame's payload sync pattern matches the
// DMR voice terminator, which only has meaning on data-sync frames.
func (d *DMRD) IsTerminator() bool {
	if d.FrameType != FrameTypeDataSync {
		return false
	}
	return matchesTerminatorSync(d.Payload[:])
}

func be24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func putBE24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}
