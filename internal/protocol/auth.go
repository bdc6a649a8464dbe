package protocol

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// RPTL is the repeater login frame: just a claimed radio id.
type RPTL struct {
	RadioID uint32
}

func ParseRPTL(data []byte) (*RPTL, error) {
	if len(data) != RPTLFrameSize || string(data[0:4]) != TagRPTL {
		return nil, fmt.Errorf("protocol: malformed RPTL frame")
	}
	return &RPTL{RadioID: binary.BigEndian.Uint32(data[4:8])}, nil
}

func (p *RPTL) Encode() []byte {
	buf := make([]byte, RPTLFrameSize)
	copy(buf[0:4], TagRPTL)
	binary.BigEndian.PutUint32(buf[4:8], p.RadioID)
	return buf
}

// RPTK is the authentication response: radio id plus the hex-encoded
// SHA-256(salt||passphrase) hash.
type RPTK struct {
	RadioID uint32
	Hash    string // 64 lowercase hex characters
}

func ParseRPTK(data []byte) (*RPTK, error) {
	if len(data) != RPTKFrameSize || string(data[0:4]) != TagRPTK {
		return nil, fmt.Errorf("protocol: malformed RPTK frame")
	}
	return &RPTK{
		RadioID: binary.BigEndian.Uint32(data[4:8]),
		Hash:    string(data[8:72]),
	}, nil
}

func (p *RPTK) Encode() []byte {
	buf := make([]byte, RPTKFrameSize)
	copy(buf[0:4], TagRPTK)
	binary.BigEndian.PutUint32(buf[4:8], p.RadioID)
	copy(buf[8:72], p.Hash)
	return buf
}

// RPTC carries the repeater's static configuration, announced once after
// authentication. Field widths mirror the fixed-width ASCII layout of the
// HomeBrew protocol.
type RPTC struct {
	RadioID     uint32
	Callsign    string
	RXFreq      string
	TXFreq      string
	TXPower     string
	ColorCode   string
	Latitude    string
	Longitude   string
	Height      string
	Location    string
	Description string
	Slots       string
	URL         string
	SoftwareID  string
	PackageID   string
}

type rptcField struct {
	width int
}

var rptcFields = []rptcField{
	{8}, {9}, {9}, {2}, {2}, {8}, {9}, {3}, {20}, {19}, {1}, {124}, {40}, {40},
}

func ParseRPTC(data []byte) (*RPTC, error) {
	if len(data) != RPTCConfigFrameSize || string(data[0:4]) != TagRPTC {
		return nil, fmt.Errorf("protocol: malformed RPTC frame")
	}
	radioID := binary.BigEndian.Uint32(data[4:8])
	body := data[8:]

	values := make([]string, len(rptcFields))
	off := 0
	for i, f := range rptcFields {
		values[i] = strings.TrimSpace(string(body[off : off+f.width]))
		off += f.width
	}

	return &RPTC{
		RadioID:     radioID,
		Callsign:    values[0],
		RXFreq:      values[1],
		TXFreq:      values[2],
		TXPower:     values[3],
		ColorCode:   values[4],
		Latitude:    values[5],
		Longitude:   values[6],
		Height:      values[7],
		Location:    values[8],
		Description: values[9],
		Slots:       values[10],
		URL:         values[11],
		SoftwareID:  values[12],
		PackageID:   values[13],
	}, nil
}

func (p *RPTC) Encode() []byte {
	buf := make([]byte, RPTCConfigFrameSize)
	copy(buf[0:4], TagRPTC)
	binary.BigEndian.PutUint32(buf[4:8], p.RadioID)

	values := []string{
		p.Callsign, p.RXFreq, p.TXFreq, p.TXPower, p.ColorCode, p.Latitude,
		p.Longitude, p.Height, p.Location, p.Description, p.Slots, p.URL,
		p.SoftwareID, p.PackageID,
	}
	off := 8
	for i, f := range rptcFields {
		field := buf[off : off+f.width]
		for j := range field {
			field[j] = ' '
		}
		copy(field, values[i])
		off += f.width
	}
	return buf
}

// RPTO carries a repeater's or outbound's options string, e.g.
// "TS1=1,2,3;TS2=10,20".
type RPTO struct {
	RadioID uint32
	Options string
}

func ParseRPTO(data []byte) (*RPTO, error) {
	if len(data) < RPTOMinFrameSize || string(data[0:4]) != TagRPTO {
		return nil, fmt.Errorf("protocol: malformed RPTO frame")
	}
	return &RPTO{
		RadioID: binary.BigEndian.Uint32(data[4:8]),
		Options: string(data[8:]),
	}, nil
}

func (p *RPTO) Encode() []byte {
	buf := make([]byte, RPTOMinFrameSize+len(p.Options))
	copy(buf[0:4], TagRPTO)
	binary.BigEndian.PutUint32(buf[4:8], p.RadioID)
	copy(buf[8:], p.Options)
	return buf
}

// simple radio-id-only frames shared by several tags.
type radioIDFrame struct {
	tag     string
	size    int
	radioID uint32
}

func parseRadioIDFrame(data []byte, tag string, size int) (uint32, error) {
	if len(data) != size || string(data[0:len(tag)]) != tag {
		return 0, fmt.Errorf("protocol: malformed %s frame", tag)
	}
	return binary.BigEndian.Uint32(data[len(tag) : len(tag)+4]), nil
}

func encodeRadioIDFrame(tag string, radioID uint32) []byte {
	buf := make([]byte, len(tag)+4)
	copy(buf, tag)
	binary.BigEndian.PutUint32(buf[len(tag):], radioID)
	return buf
}

// RPTCL: peer-initiated graceful disconnect.
func ParseRPTCL(data []byte) (uint32, error) { return parseRadioIDFrame(data, TagRPTCL, RPTCLFrameSize) }
func EncodeRPTCL(radioID uint32) []byte      { return encodeRadioIDFrame(TagRPTCL, radioID) }

// RPTPING: repeater keepalive.
func ParseRPTPING(data []byte) (uint32, error) {
	return parseRadioIDFrame(data, TagRPTPING, RPTPINGFrameSize)
}
func EncodeRPTPING(radioID uint32) []byte { return encodeRadioIDFrame(TagRPTPING, radioID) }

// MSTPONG: keepalive reply.
func ParseMSTPONG(data []byte) (uint32, error) {
	return parseRadioIDFrame(data, TagMSTPONG, MSTPONGFrameSize)
}
func EncodeMSTPONG(radioID uint32) []byte { return encodeRadioIDFrame(TagMSTPONG, radioID) }

// MSTCL: master-initiated close.
func ParseMSTCL(data []byte) (uint32, error) { return parseRadioIDFrame(data, TagMSTCL, MSTCLFrameSize) }
func EncodeMSTCL(radioID uint32) []byte      { return encodeRadioIDFrame(TagMSTCL, radioID) }

// MSTNAK: authentication/authorization rejection.
func ParseMSTNAK(data []byte) (uint32, error) {
	return parseRadioIDFrame(data, TagMSTNAK, MSTNAKFrameSize)
}
func EncodeMSTNAK(radioID uint32) []byte { return encodeRadioIDFrame(TagMSTNAK, radioID) }

// EncodeRPTACK builds an RPTACK frame. When salt is non-nil (the reply to
// RPTL), the 4-byte salt is appended; otherwise RPTACK is a bare
// acknowledgement (the reply to RPTK/RPTC).
func EncodeRPTACK(radioID uint32, salt []byte) []byte {
	size := RPTACKBaseSize
	if salt != nil {
		size = RPTACKSaltSize
	}
	buf := make([]byte, size)
	copy(buf[0:6], "RPTACK")
	binary.BigEndian.PutUint32(buf[6:10], radioID)
	if salt != nil {
		copy(buf[10:14], salt)
	}
	return buf
}

// ParseRPTACK parses both the bare and salted forms.
func ParseRPTACK(data []byte) (radioID uint32, salt []byte, err error) {
	if len(data) != RPTACKBaseSize && len(data) != RPTACKSaltSize {
		return 0, nil, fmt.Errorf("protocol: malformed RPTACK frame")
	}
	if string(data[0:6]) != "RPTACK" {
		return 0, nil, fmt.Errorf("protocol: malformed RPTACK frame")
	}
	radioID = binary.BigEndian.Uint32(data[6:10])
	if len(data) == RPTACKSaltSize {
		salt = append([]byte(nil), data[10:14]...)
	}
	return radioID, salt, nil
}
