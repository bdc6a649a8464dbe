// Package testhelpers provides a simulated DMR repeater and an integration
// harness for exercising a real Server over loopback UDP.
package testhelpers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/hblink4/hblink4/internal/protocol"
)

// MockPeer simulates a DMR repeater speaking the HomeBrew protocol against
// a real Server: the login handshake, keepalives, and DMRD traffic.
type MockPeer struct {
	RadioID    uint32
	Passphrase string
	Callsign   string

	mu   sync.Mutex
	conn *net.UDPConn
}

// NewMockPeer creates a mock peer that has not yet connected.
func NewMockPeer(radioID uint32, passphrase, callsign string) *MockPeer {
	return &MockPeer{RadioID: radioID, Passphrase: passphrase, Callsign: callsign}
}

// Connect opens the UDP socket used for the rest of the session.
func (m *MockPeer) Connect(masterAddr string) error {
	addr, err := net.ResolveUDPAddr("udp", masterAddr)
	if err != nil {
		return err
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
	return nil
}

// Login runs the full RPTL -> salted RPTACK -> RPTK -> RPTACK -> RPTC ->
// RPTACK handshake of §4.5, failing if the master rejects any step.
func (m *MockPeer) Login() error {
	if err := m.write((&protocol.RPTL{RadioID: m.RadioID}).Encode()); err != nil {
		return err
	}
	data, err := m.readTimeout(2 * time.Second)
	if err != nil {
		return fmt.Errorf("waiting for salted RPTACK: %w", err)
	}
	radioID, salt, err := protocol.ParseRPTACK(data)
	if err != nil {
		return err
	}
	if radioID != m.RadioID || salt == nil {
		return fmt.Errorf("expected salted RPTACK for radio %d, got radio %d salt %v", m.RadioID, radioID, salt)
	}

	rptk := &protocol.RPTK{RadioID: m.RadioID, Hash: hashChallenge(salt, m.Passphrase)}
	if err := m.write(rptk.Encode()); err != nil {
		return err
	}
	if err := m.expectBareRPTACK("RPTK"); err != nil {
		return err
	}

	rptc := &protocol.RPTC{
		RadioID:     m.RadioID,
		Callsign:    m.Callsign,
		RXFreq:      "000000000",
		TXFreq:      "000000000",
		TXPower:     "00",
		ColorCode:   "01",
		Latitude:    "00.0000",
		Longitude:   "000.0000",
		Height:      "000",
		Location:    "Test",
		Description: "mock peer",
		Slots:       "3",
		URL:         "http://test.invalid",
		SoftwareID:  "0",
		PackageID:   "0",
	}
	if err := m.write(rptc.Encode()); err != nil {
		return err
	}
	return m.expectBareRPTACK("RPTC")
}

func (m *MockPeer) expectBareRPTACK(after string) error {
	data, err := m.readTimeout(2 * time.Second)
	if err != nil {
		return fmt.Errorf("waiting for RPTACK after %s: %w", after, err)
	}
	if _, _, err := protocol.ParseRPTACK(data); err != nil {
		return fmt.Errorf("expected RPTACK after %s: %w", after, err)
	}
	return nil
}

// SendOptions sends an RPTO options string, e.g. "TS1=1,2;TS2=*".
func (m *MockPeer) SendOptions(options string) error {
	return m.write((&protocol.RPTO{RadioID: m.RadioID, Options: options}).Encode())
}

// SendDMRD transmits one DMRD voice/data frame. When terminator is true the
// payload carries the base-station data-sync pattern so the receiving
// stream tracker recognizes it as end-of-transmission.
func (m *MockPeer) SendDMRD(rfSrc, dstID uint32, slot protocol.Timeslot, callType protocol.CallType, streamID uint32, seq uint8, terminator bool) error {
	d := &protocol.DMRD{
		Sequence:   seq,
		RFSrc:      rfSrc,
		DstID:      dstID,
		RepeaterID: m.RadioID,
		Slot:       slot,
		CallType:   callType,
		StreamID:   streamID,
	}
	if terminator {
		d.FrameType = protocol.FrameTypeDataSync
		copy(d.Payload[13:20], []byte{0x0D, 0xFF, 0x57, 0xD7, 0x5D, 0xF5, 0xD0})
	} else {
		d.FrameType = protocol.FrameTypeVoice
	}
	return m.write(d.Encode())
}

// SendPing sends an RPTPING keepalive.
func (m *MockPeer) SendPing() error {
	return m.write(protocol.EncodeRPTPING(m.RadioID))
}

// SendClose sends a graceful RPTCL disconnect.
func (m *MockPeer) SendClose() error {
	return m.write(protocol.EncodeRPTCL(m.RadioID))
}

// ReceiveFrame waits up to timeout for the next inbound datagram, returning
// its detected tag and raw bytes.
func (m *MockPeer) ReceiveFrame(timeout time.Duration) (tag string, data []byte, err error) {
	data, err = m.readTimeout(timeout)
	if err != nil {
		return "", nil, err
	}
	return protocol.DetectTag(data), data, nil
}

func (m *MockPeer) write(data []byte) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("mock peer %d: not connected", m.RadioID)
	}
	_, err := conn.Write(data)
	return err
}

func (m *MockPeer) readTimeout(timeout time.Duration) ([]byte, error) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("mock peer %d: not connected", m.RadioID)
	}
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, buf[:n])
	return out, nil
}

// Close releases the underlying socket.
func (m *MockPeer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	return err
}

func hashChallenge(salt []byte, passphrase string) string {
	sum := sha256.Sum256(append(append([]byte(nil), salt...), []byte(passphrase)...))
	return hex.EncodeToString(sum[:])
}
