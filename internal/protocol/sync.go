package protocol

// DMR embeds a 48-bit sync pattern in the middle of each 33-byte burst
// payload, at byte offset 13 through 19 (the outer nibbles of the first and
// last byte belong to the adjacent information bits, not the sync field
// itself, so they are masked out of the comparison).
const (
	syncFieldOffset = 13
	syncFieldLen    = 7
)

// Sync pattern families, one per burst source/class. Values are the
// published DMR air-interface constants; nibbles marked with 0 in the mask
// table are not part of the sync field and are ignored on comparison.
var (
	bsSourcedVoiceSync = [syncFieldLen]byte{0x07, 0x55, 0xFD, 0x7D, 0xF7, 0x5F, 0x70}
	bsSourcedDataSync  = [syncFieldLen]byte{0x0D, 0xFF, 0x57, 0xD7, 0x5D, 0xF5, 0xD0}
	msSourcedVoiceSync = [syncFieldLen]byte{0x07, 0xF7, 0xD5, 0xDD, 0x57, 0xDF, 0xD0}
	msSourcedDataSync  = [syncFieldLen]byte{0x0D, 0x5D, 0x7F, 0x77, 0xFD, 0x75, 0x70}

	// syncFieldMask clears the high nibble of the first byte and the low
	// nibble of the last byte of the 7-byte window, leaving exactly the
	// 48 bits that belong to the sync field.
	syncFieldMask = [syncFieldLen]byte{0x0F, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xF0}
)

// terminatorSync is the sync pattern this server treats as end-of-transmission
// on a data-sync frame. Repeater-originated streams use the base-station data
// sync for the voice-terminator-with-LC burst.
var terminatorSync = bsSourcedDataSync

// matchesTerminatorSync compares the sync field embedded in a data-sync
// burst's payload against the voice-terminator pattern.
func matchesTerminatorSync(payload []byte) bool {
	if len(payload) < syncFieldOffset+syncFieldLen {
		return false
	}
	window := payload[syncFieldOffset : syncFieldOffset+syncFieldLen]
	for i := 0; i < syncFieldLen; i++ {
		if window[i]&syncFieldMask[i] != terminatorSync[i]&syncFieldMask[i] {
			return false
		}
	}
	return true
}

// IsKnownSync reports whether the payload carries any recognized DMR sync
// pattern (voice or data, base-station or subscriber-sourced). It is not used
// by termination detection but is useful for diagnostics and tests.
func IsKnownSync(payload []byte) bool {
	if len(payload) < syncFieldOffset+syncFieldLen {
		return false
	}
	window := payload[syncFieldOffset : syncFieldOffset+syncFieldLen]
	for _, candidate := range [][syncFieldLen]byte{bsSourcedVoiceSync, bsSourcedDataSync, msSourcedVoiceSync, msSourcedDataSync} {
		match := true
		for i := 0; i < syncFieldLen; i++ {
			if window[i]&syncFieldMask[i] != candidate[i]&syncFieldMask[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
