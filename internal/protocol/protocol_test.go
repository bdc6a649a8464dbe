package protocol

import "testing"

func TestDMRDRoundTrip(t *testing.T) {
	d := &DMRD{
		Sequence:   7,
		RFSrc:      312000,
		DstID:      3100,
		RepeaterID: 312999,
		Slot:       Slot2,
		CallType:   CallTypePrivate,
		FrameType:  FrameTypeVoiceSync,
		VoiceSeq:   3,
		StreamID:   0xDEADBEEF,
	}
	copy(d.Payload[:], []byte("this is exactly 33 bytes of data"))

	encoded := d.Encode()
	if len(encoded) != DMRDFrameSize {
		t.Fatalf("expected %d-byte frame, got %d", DMRDFrameSize, len(encoded))
	}

	got, err := ParseDMRD(encoded)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Sequence != d.Sequence || got.RFSrc != d.RFSrc || got.DstID != d.DstID ||
		got.RepeaterID != d.RepeaterID || got.Slot != d.Slot || got.CallType != d.CallType ||
		got.FrameType != d.FrameType || got.VoiceSeq != d.VoiceSeq || got.StreamID != d.StreamID {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, d)
	}
	if got.Payload != d.Payload {
		t.Fatalf("payload mismatch: got %v, want %v", got.Payload, d.Payload)
	}
}

func TestParseDMRD_RejectsWrongLength(t *testing.T) {
	if _, err := ParseDMRD(make([]byte, DMRDFrameSize-1)); err == nil {
		t.Fatal("expected an error for a short frame")
	}
}

func TestParseDMRD_RejectsWrongTag(t *testing.T) {
	buf := make([]byte, DMRDFrameSize)
	copy(buf[0:4], "XXXX")
	if _, err := ParseDMRD(buf); err == nil {
		t.Fatal("expected an error for a frame without the DMRD tag")
	}
}

func TestDMRD_IsTerminator(t *testing.T) {
	d := &DMRD{FrameType: FrameTypeDataSync}
	copy(d.Payload[13:20], bsSourcedDataSync[:])
	if !d.IsTerminator() {
		t.Error("expected a data-sync frame carrying the terminator pattern to be detected")
	}

	voice := &DMRD{FrameType: FrameTypeVoice}
	copy(voice.Payload[13:20], bsSourcedDataSync[:])
	if voice.IsTerminator() {
		t.Error("a non-data-sync frame type should never be treated as a terminator")
	}

	wrongPattern := &DMRD{FrameType: FrameTypeDataSync}
	copy(wrongPattern.Payload[13:20], bsSourcedVoiceSync[:])
	if wrongPattern.IsTerminator() {
		t.Error("a data-sync frame with a non-terminator sync pattern should not be treated as a terminator")
	}
}

func TestRPTLRoundTrip(t *testing.T) {
	p := &RPTL{RadioID: 312000}
	got, err := ParseRPTL(p.Encode())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.RadioID != p.RadioID {
		t.Errorf("expected radio id %d, got %d", p.RadioID, got.RadioID)
	}
}

func TestRPTKRoundTrip(t *testing.T) {
	p := &RPTK{RadioID: 312000, Hash: "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"}
	got, err := ParseRPTK(p.Encode())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.RadioID != p.RadioID || got.Hash != p.Hash {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, p)
	}
}

func TestRPTCRoundTrip(t *testing.T) {
	p := &RPTC{
		RadioID:     312000,
		Callsign:    "W1ABC",
		RXFreq:      "446000000",
		TXFreq:      "441000000",
		TXPower:     "25",
		ColorCode:   "1",
		Latitude:    "42.1234",
		Longitude:   "-71.1234",
		Height:      "30",
		Location:    "Somewhere, MA",
		Description: "Test repeater",
		Slots:       "2",
		URL:         "https://example.com",
		SoftwareID:  "hblink4",
		PackageID:   "20260101",
	}
	got, err := ParseRPTC(p.Encode())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if *got != *p {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, p)
	}
}

func TestRPTORoundTrip(t *testing.T) {
	p := &RPTO{RadioID: 312000, Options: "TS1=1,2,3;TS2=10,20"}
	got, err := ParseRPTO(p.Encode())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.RadioID != p.RadioID || got.Options != p.Options {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, p)
	}
}

func TestRadioIDOnlyFramesRoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		encode func(uint32) []byte
		parse  func([]byte) (uint32, error)
	}{
		{"RPTCL", EncodeRPTCL, ParseRPTCL},
		{"RPTPING", EncodeRPTPING, ParseRPTPING},
		{"MSTPONG", EncodeMSTPONG, ParseMSTPONG},
		{"MSTCL", EncodeMSTCL, ParseMSTCL},
		{"MSTNAK", EncodeMSTNAK, ParseMSTNAK},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := c.parse(c.encode(312000))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got != 312000 {
				t.Errorf("expected radio id 312000, got %d", got)
			}
		})
	}
}

func TestRPTACKBareAndSalted(t *testing.T) {
	salt := []byte{0x01, 0x02, 0x03, 0x04}

	salted := EncodeRPTACK(312000, salt)
	if len(salted) != RPTACKSaltSize {
		t.Fatalf("expected salted RPTACK of size %d, got %d", RPTACKSaltSize, len(salted))
	}
	radioID, gotSalt, err := ParseRPTACK(salted)
	if err != nil {
		t.Fatalf("parse salted: %v", err)
	}
	if radioID != 312000 {
		t.Errorf("expected radio id 312000, got %d", radioID)
	}
	if string(gotSalt) != string(salt) {
		t.Errorf("expected salt %v, got %v", salt, gotSalt)
	}

	bare := EncodeRPTACK(312000, nil)
	if len(bare) != RPTACKBaseSize {
		t.Fatalf("expected bare RPTACK of size %d, got %d", RPTACKBaseSize, len(bare))
	}
	radioID, gotSalt, err = ParseRPTACK(bare)
	if err != nil {
		t.Fatalf("parse bare: %v", err)
	}
	if radioID != 312000 {
		t.Errorf("expected radio id 312000, got %d", radioID)
	}
	if gotSalt != nil {
		t.Errorf("expected no salt on a bare RPTACK, got %v", gotSalt)
	}
}

func TestDetectTag(t *testing.T) {
	cases := map[string]string{
		"DMRD" + string(make([]byte, 51)): TagDMRD,
		"RPTL1234":                         TagRPTL,
		"RPTK" + string(make([]byte, 68)):  TagRPTK,
		"RPTCL1234":                        TagRPTCL,
		"RPTC" + string(make([]byte, 298)): TagRPTC,
		"RPTPING1234":                      TagRPTPING,
		"RPTO1234extra":                    TagRPTO,
		"MSTNAK1234":                       TagMSTNAK,
		"RPTACK1234":                       TagRPTACK,
		"MSTPING1234":                      TagMSTPING,
		"MSTPONG1234":                      TagMSTPONG,
		"MSTCL1234":                        TagMSTCL,
		"garbage":                          "",
	}
	for data, want := range cases {
		if got := DetectTag([]byte(data)); got != want {
			t.Errorf("DetectTag(%q) = %q, want %q", data, got, want)
		}
	}
}

func TestIsKnownSync(t *testing.T) {
	payload := make([]byte, 33)
	copy(payload[13:20], bsSourcedVoiceSync[:])
	if !IsKnownSync(payload) {
		t.Error("expected a base-station voice sync pattern to be recognized")
	}

	unknown := make([]byte, 33)
	if IsKnownSync(unknown) {
		t.Error("expected an all-zero payload to not match any known sync pattern")
	}
}
