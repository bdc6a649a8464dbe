// Package protocol implements the HomeBrew DMR wire codec: frame tags,
// the 55-byte DMRD voice frame, and the login/auth/config control frames.
package protocol

// Inbound and outbound frame tags. The HomeBrew protocol prefixes every
// datagram with one of these ASCII tags; tag length varies (4 to 7 bytes)
// so tag detection checks the longest candidates first.
const (
	TagDMRD    = "DMRD"
	TagRPTL    = "RPTL"
	TagRPTK    = "RPTK"
	TagRPTC    = "RPTC"
	TagRPTCL   = "RPTCL"
	TagRPTPING = "RPTPING"
	TagRPTO    = "RPTO"
	TagRPTSBKN = "RPTSBKN"

	TagMSTNAK  = "MSTNAK"
	TagRPTACK  = "RPTACK"
	TagMSTPING = "MSTPING"
	TagMSTPONG = "MSTPONG"
	TagMSTCL   = "MSTCL"
)

// DMRDFrameSize is the exact, required length of a DMRD voice frame on the
// wire. Frames of any other length are rejected outright.
const DMRDFrameSize = 55

// DMRD field offsets and lengths.
const (
	dmrdOffSequence    = 4
	dmrdOffRFSrc       = 5
	dmrdLenRFSrc       = 3
	dmrdOffDst         = 8
	dmrdLenDst         = 3
	dmrdOffRepeaterID  = 11
	dmrdLenRepeaterID  = 4
	dmrdOffSlotByte    = 15
	dmrdOffStreamID    = 16
	dmrdLenStreamID    = 4
	dmrdOffPayload     = 20
	dmrdLenPayload     = 33
	dmrdOffReserved    = 53
	dmrdLenReserved    = 2
)

// Slot-byte (offset 15) bit layout.
const (
	slotBitTimeslot  = 0x80 // bit7: 0 -> slot 1, 1 -> slot 2
	slotBitCallType  = 0x40 // bit6: 0 -> group, 1 -> private
	slotMaskFrame    = 0x30 // bits4-5: frame type
	slotMaskSeq      = 0x0F // bits0-3: voice frame sequence
	slotFrameShift   = 4
)

// FrameType is the 2-bit frame-type field carried in bits 4-5 of the slot byte.
type FrameType uint8

const (
	FrameTypeVoice     FrameType = 0x0 // 00
	FrameTypeVoiceSync FrameType = 0x1 // 01
	FrameTypeDataSync  FrameType = 0x2 // 10
	FrameTypeReserved  FrameType = 0x3 // 11
)

// CallType distinguishes group (talkgroup) calls from private (unit) calls.
type CallType uint8

const (
	CallTypeGroup   CallType = 0
	CallTypePrivate CallType = 1
)

// Timeslot identifies one of the two DMR TDMA slots.
type Timeslot uint8

const (
	Slot1 Timeslot = 1
	Slot2 Timeslot = 2
)

// Fixed-width control-frame sizes, used to validate inbound lengths before
// parsing fixed-offset fields. RPTK's hash is the hex-encoded SHA-256 digest
// (64 ASCII characters), per the challenge/response scheme in the repeater
// FSM — not the raw 32-byte digest.
const (
	RPTLFrameSize      = 4 + 4       // tag + 4-byte radio id
	RPTKFrameSize      = 4 + 4 + 64  // tag + radio id + 64 hex chars
	RPTACKBaseSize     = 6 + 4       // "RPTACK" + radio id
	RPTACKSaltSize     = 6 + 4 + 4   // "RPTACK" + radio id + 4-byte salt (reply to RPTL)
	RPTPINGFrameSize   = 7 + 4       // "RPTPING" + radio id
	MSTPONGFrameSize   = 7 + 4       // "MSTPONG" + radio id
	RPTCLFrameSize     = 5 + 4       // "RPTCL" + radio id
	MSTCLFrameSize     = 5 + 4       // "MSTCL" + radio id
	MSTNAKFrameSize    = 6 + 4       // "MSTNAK" + radio id
	RPTCConfigFrameSize = 4 + 4 + 294 // tag + radio id + fixed config fields
	RPTOMinFrameSize   = 4 + 4       // tag + radio id, options text follows
)
