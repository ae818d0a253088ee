package ccsds

// Counter moduli for the two sequence-number widths: 14 bits for packet
// sequence ids, 24 bits for VCDU frame counters.
const (
	packetSeqModulus  = 1 << 14
	frameCountModulus = 1 << 24
)

// MissingPackets returns the number of packet sequence ids strictly between
// prev and cur, assuming forward progression mod 2^14. Equal values are
// treated as a duplicate and return 0.
func MissingPackets(cur, prev uint16) uint16 {
	if cur == prev {
		return 0
	}
	return uint16((uint32(cur) + packetSeqModulus - uint32(prev) - 1) % packetSeqModulus)
}

// MissingFrames returns the number of frame counter values strictly between
// prev and cur, assuming forward progression mod 2^24. Equal values are
// treated as a duplicate and return 0.
func MissingFrames(cur, prev uint32) uint32 {
	if cur == prev {
		return 0
	}
	return (cur + frameCountModulus - prev - 1) % frameCountModulus
}
