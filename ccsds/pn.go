package ccsds

// pnTable is the CCSDS pseudo-noise sequence generated by the LFSR with
// polynomial x^8+x^7+x^5+x^3+1 initialized to all ones. The bit sequence
// has period 255, so the byte pattern repeats every 255 bytes.
var pnTable = generatePN()

func generatePN() [255]byte {
	var table [255]byte
	bits := make([]byte, 255*8+8)
	for i := 0; i < 8; i++ {
		bits[i] = 1
	}
	for i := 8; i < len(bits); i++ {
		bits[i] = bits[i-1] ^ bits[i-3] ^ bits[i-5] ^ bits[i-8]
	}
	for i := range table {
		var b byte
		for j := 0; j < 8; j++ {
			b = b<<1 | bits[i*8+j]
		}
		table[i] = b
	}
	return table
}

// Derandomize XORs the CCSDS pseudo-noise sequence over buf in place. The
// sequence restarts at the beginning of every buffer, so applying it to each
// synchronized block independently matches the transmit-side randomizer.
// The operation is its own inverse.
func Derandomize(buf []byte) {
	for i := range buf {
		buf[i] ^= pnTable[i%len(pnTable)]
	}
}
