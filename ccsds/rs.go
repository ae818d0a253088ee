package ccsds

import (
	"fmt"
)

// Parameters of the CCSDS recommended RS(255,223) code: GF(2^8) with field
// polynomial x^8+x^7+x^2+x+1, first consecutive root 112, primitive element
// alpha^11, 32 parity symbols. Symbols on the channel are in Berlekamp's
// dual basis.
const (
	RSBlockLength  = 255
	RSDataLength   = 223
	RSParityLength = RSBlockLength - RSDataLength

	// NumCorrectable is the number of symbol errors RS(255,223) is
	// guaranteed to correct per codeword.
	NumCorrectable = RSParityLength / 2

	rsFieldPoly = 0x187
	rsFCR       = 112
	rsPrim      = 11
	rsIPrim     = 116 // rsPrim * rsIPrim == 1 mod 255

	gfNone = 255 // log of zero
)

var (
	gfExp   [256]int // index -> polynomial form; gfExp[gfNone] == 0
	gfLog   [256]int // polynomial -> index form; gfLog[0] == gfNone
	taltab  [256]byte
	tal1tab [256]byte
	genpoly [RSParityLength + 1]int // index form
)

// Dual basis representation of the conventional basis elements, per the
// CCSDS recommendation.
var talBasis = [8]byte{0x8d, 0xef, 0xec, 0x86, 0xfa, 0x99, 0xaf, 0x2b}

func init() {
	// Log/antilog tables
	gfLog[0] = gfNone
	gfExp[gfNone] = 0
	sr := 1
	for i := 0; i < RSBlockLength; i++ {
		gfLog[sr] = i
		gfExp[i] = sr
		sr <<= 1
		if sr&0x100 != 0 {
			sr ^= rsFieldPoly
		}
		sr &= 0xFF
	}

	// Conventional <-> dual basis conversions
	for i := 0; i < 256; i++ {
		taltab[i] = 0
		for j := 0; j < 8; j++ {
			if i&(1<<uint(j)) != 0 {
				taltab[i] ^= talBasis[7-j]
			}
		}
		tal1tab[taltab[i]] = byte(i)
	}

	// Code generator polynomial from its roots alpha^((fcr+i)*prim)
	gp := make([]int, RSParityLength+1)
	gp[0] = 1
	for i, root := 0, rsFCR*rsPrim; i < RSParityLength; i, root = i+1, root+rsPrim {
		gp[i+1] = 1
		for j := i; j > 0; j-- {
			if gp[j] != 0 {
				gp[j] = gp[j-1] ^ gfExp[(gfLog[gp[j]]+root)%RSBlockLength]
			} else {
				gp[j] = gp[j-1]
			}
		}
		gp[0] = gfExp[(gfLog[gp[0]]+root)%RSBlockLength]
	}
	for i := range gp {
		genpoly[i] = gfLog[gp[i]]
	}
}

// rsEncode computes the 32 parity symbols for 223 data symbols, all in
// conventional basis.
func rsEncode(data []byte, parity []byte) {
	for i := range parity {
		parity[i] = 0
	}
	for i := 0; i < RSDataLength; i++ {
		feedback := gfLog[int(data[i])^int(parity[0])]
		if feedback != gfNone {
			for j := 1; j < RSParityLength; j++ {
				parity[j] ^= byte(gfExp[(feedback+genpoly[RSParityLength-j])%RSBlockLength])
			}
		}
		copy(parity, parity[1:])
		if feedback != gfNone {
			parity[RSParityLength-1] = byte(gfExp[(feedback+genpoly[0])%RSBlockLength])
		} else {
			parity[RSParityLength-1] = 0
		}
	}
}

// rsCorrect runs the Berlekamp-Massey decoder over one conventional-basis
// codeword of 255 symbols, correcting it in place. It returns the number of
// symbols corrected, or -1 if the codeword is uncorrectable.
func rsCorrect(data []byte) int {
	var s [RSParityLength]int
	var lambda, b, t [RSParityLength + 1]int
	var omega [RSParityLength + 1]int
	var root, loc [RSParityLength]int
	var reg [RSParityLength + 1]int

	// Syndromes: evaluate data(x) at the roots of g(x)
	for i := 0; i < RSParityLength; i++ {
		s[i] = int(data[0])
	}
	for j := 1; j < RSBlockLength; j++ {
		for i := 0; i < RSParityLength; i++ {
			if s[i] == 0 {
				s[i] = int(data[j])
			} else {
				s[i] = int(data[j]) ^ gfExp[(gfLog[s[i]]+(rsFCR+i)*rsPrim)%RSBlockLength]
			}
		}
	}
	synError := 0
	for i := 0; i < RSParityLength; i++ {
		synError |= s[i]
		s[i] = gfLog[s[i]]
	}
	if synError == 0 {
		return 0
	}

	lambda[0] = 1
	for i := 0; i <= RSParityLength; i++ {
		b[i] = gfLog[lambda[i]]
	}

	// Berlekamp-Massey iteration to find the error locator polynomial
	el := 0
	for r := 1; r <= RSParityLength; r++ {
		discr := 0
		for i := 0; i < r; i++ {
			if lambda[i] != 0 && s[r-i-1] != gfNone {
				discr ^= gfExp[(gfLog[lambda[i]]+s[r-i-1])%RSBlockLength]
			}
		}
		discrLog := gfLog[discr]
		if discrLog == gfNone {
			// B(x) <- x*B(x)
			copy(b[1:], b[:RSParityLength])
			b[0] = gfNone
			continue
		}
		// T(x) <- lambda(x) - discr*x*B(x)
		t[0] = lambda[0]
		for i := 0; i < RSParityLength; i++ {
			if b[i] != gfNone {
				t[i+1] = lambda[i+1] ^ gfExp[(discrLog+b[i])%RSBlockLength]
			} else {
				t[i+1] = lambda[i+1]
			}
		}
		if 2*el <= r-1 {
			el = r - el
			// B(x) <- inv(discr) * lambda(x)
			for i := 0; i <= RSParityLength; i++ {
				if lambda[i] == 0 {
					b[i] = gfNone
				} else {
					b[i] = (gfLog[lambda[i]] - discrLog + RSBlockLength) % RSBlockLength
				}
			}
		} else {
			copy(b[1:], b[:RSParityLength])
			b[0] = gfNone
		}
		copy(lambda[:], t[:])
	}

	// Convert lambda to index form and find its degree
	degLambda := 0
	for i := 0; i <= RSParityLength; i++ {
		lambda[i] = gfLog[lambda[i]]
		if lambda[i] != gfNone {
			degLambda = i
		}
	}

	// Chien search for the roots of lambda(x)
	copy(reg[1:], lambda[1:])
	count := 0
	for i, k := 1, rsIPrim-1; i <= RSBlockLength; i, k = i+1, (k+rsIPrim)%RSBlockLength {
		q := 1
		for j := degLambda; j > 0; j-- {
			if reg[j] != gfNone {
				reg[j] = (reg[j] + j) % RSBlockLength
				q ^= gfExp[reg[j]]
			}
		}
		if q != 0 {
			continue
		}
		root[count] = i
		loc[count] = k
		count++
		if count == degLambda {
			break
		}
	}
	if degLambda != count {
		// deg(lambda) != number of roots: uncorrectable
		return -1
	}

	// Error evaluator omega(x) = s(x)*lambda(x) mod x^32, index form
	degOmega := degLambda - 1
	for i := 0; i <= degOmega; i++ {
		tmp := 0
		for j := i; j >= 0; j-- {
			if s[i-j] != gfNone && lambda[j] != gfNone {
				tmp ^= gfExp[(s[i-j]+lambda[j])%RSBlockLength]
			}
		}
		omega[i] = gfLog[tmp]
	}

	// Forney algorithm for the error magnitudes
	for j := count - 1; j >= 0; j-- {
		num1 := 0
		for i := degOmega; i >= 0; i-- {
			if omega[i] != gfNone {
				num1 ^= gfExp[(omega[i]+i*root[j])%RSBlockLength]
			}
		}
		num2 := gfExp[(root[j]*(rsFCR-1)+RSBlockLength)%RSBlockLength]
		den := 0
		start := degLambda
		if start > RSParityLength-1 {
			start = RSParityLength - 1
		}
		for i := start &^ 1; i >= 0; i -= 2 {
			if lambda[i+1] != gfNone {
				den ^= gfExp[(lambda[i+1]+i*root[j])%RSBlockLength]
			}
		}
		if den == 0 {
			return -1
		}
		if num1 != 0 {
			data[loc[j]] ^= byte(gfExp[(gfLog[num1]+gfLog[num2]+RSBlockLength-gfLog[den])%RSBlockLength])
		}
	}
	return count
}

// EncodeCodeword appends the 32 RS(255,223) parity symbols to 223 bytes of
// data, returning a full 255-byte codeword as transmitted on the channel
// (data unchanged, parity in dual basis).
func EncodeCodeword(data []byte) ([]byte, error) {
	if len(data) != RSDataLength {
		return nil, fmt.Errorf("ccsds: rs encode needs %d data bytes, got %d", RSDataLength, len(data))
	}
	conv := make([]byte, RSDataLength)
	for i, v := range data {
		conv[i] = tal1tab[v]
	}
	parity := make([]byte, RSParityLength)
	rsEncode(conv, parity)

	cw := make([]byte, RSBlockLength)
	copy(cw, data)
	for i, p := range parity {
		cw[RSDataLength+i] = taltab[p]
	}
	return cw, nil
}

// CorrectCodeword corrects a single 255-byte channel codeword in place.
// It returns the number of symbols corrected, or -1 if more errors are
// present than the code can correct. The codeword bytes are left as a best
// effort in the uncorrectable case.
func CorrectCodeword(cw []byte) (int, error) {
	if len(cw) != RSBlockLength {
		return 0, fmt.Errorf("ccsds: rs codeword must be %d bytes, got %d", RSBlockLength, len(cw))
	}
	conv := make([]byte, RSBlockLength)
	for i, v := range cw {
		conv[i] = tal1tab[v]
	}
	n := rsCorrect(conv)
	if n <= 0 {
		return n, nil
	}
	for i, v := range conv {
		cw[i] = taltab[v]
	}
	return n, nil
}

// RSStatus describes the outcome of Reed-Solomon error correction.
type RSStatus uint8

// Statuses are ordered so that the worst of a set of per-codeword outcomes
// is the largest value.
const (
	RSNotPerformed RSStatus = iota
	RSOk
	RSCorrected
	RSUncorrectable
)

func (s RSStatus) String() string {
	switch s {
	case RSNotPerformed:
		return "not-performed"
	case RSOk:
		return "ok"
	case RSCorrected:
		return "corrected"
	case RSUncorrectable:
		return "uncorrectable"
	}
	return fmt.Sprintf("rsstatus(%d)", uint8(s))
}

// RSState is the correction outcome for one codeblock. Corrected is the
// total number of symbols corrected across all codewords in the block.
type RSState struct {
	Status    RSStatus
	Corrected int
}

// InterleavedRS de-interleaves a received codeblock into Interleave
// codewords, corrects each, and re-interleaves the corrected data bytes.
type InterleavedRS struct {
	interleave  int
	virtualFill int
}

// NewInterleavedRS returns a codec for codeblocks of interleave depth 2-10
// with virtualFill zero symbols prepended to each codeword in the RS math
// but absent from the transmitted block.
func NewInterleavedRS(interleave, virtualFill int) (*InterleavedRS, error) {
	if interleave < 2 || interleave > 10 {
		return nil, fmt.Errorf("ccsds: rs interleave must be in 2..10, got %d", interleave)
	}
	if virtualFill < 0 || virtualFill >= RSDataLength {
		return nil, fmt.Errorf("ccsds: rs virtual fill must be in 0..%d, got %d", RSDataLength-1, virtualFill)
	}
	return &InterleavedRS{interleave: interleave, virtualFill: virtualFill}, nil
}

// BlockLength is the transmitted codeblock length in bytes.
func (c *InterleavedRS) BlockLength() int {
	return c.interleave * (RSBlockLength - c.virtualFill)
}

// DataLength is the corrected frame length in bytes, parity removed.
func (c *InterleavedRS) DataLength() int {
	return c.interleave * (RSDataLength - c.virtualFill)
}

// Encode builds the transmitted codeblock for one frame: the frame bytes
// are split round-robin into codewords, each is RS encoded, and the parity
// is appended in the same interleaved order.
func (c *InterleavedRS) Encode(frame []byte) ([]byte, error) {
	if len(frame) != c.DataLength() {
		return nil, fmt.Errorf("ccsds: rs encode needs a %d-byte frame, got %d", c.DataLength(), len(frame))
	}
	kept := RSDataLength - c.virtualFill
	block := make([]byte, c.BlockLength())
	data := make([]byte, RSDataLength)

	for i := 0; i < c.interleave; i++ {
		for j := 0; j < c.virtualFill; j++ {
			data[j] = 0
		}
		for j := 0; j < kept; j++ {
			data[c.virtualFill+j] = frame[j*c.interleave+i]
		}
		cw, err := EncodeCodeword(data)
		if err != nil {
			return nil, err
		}
		for j, v := range cw[c.virtualFill:] {
			block[j*c.interleave+i] = v
		}
	}
	return block, nil
}

// Correct decodes every codeword of one codeblock and returns the corrected
// frame bytes in transmission order along with the block-level state, which
// is the worst of the per-codeword outcomes. The returned bytes are a best
// effort when the state is uncorrectable.
func (c *InterleavedRS) Correct(block []byte) ([]byte, RSState, error) {
	if len(block) != c.BlockLength() {
		return nil, RSState{}, fmt.Errorf("ccsds: rs codeblock must be %d bytes, got %d", c.BlockLength(), len(block))
	}
	state := RSState{Status: RSOk}
	out := make([]byte, c.DataLength())
	cw := make([]byte, RSBlockLength)
	sent := RSBlockLength - c.virtualFill
	kept := RSDataLength - c.virtualFill

	for i := 0; i < c.interleave; i++ {
		for j := 0; j < c.virtualFill; j++ {
			cw[j] = 0
		}
		for j := 0; j < sent; j++ {
			cw[c.virtualFill+j] = block[j*c.interleave+i]
		}
		n, err := CorrectCodeword(cw)
		if err != nil {
			return nil, RSState{}, err
		}
		switch {
		case n < 0:
			state.Status = RSUncorrectable
		case n > 0:
			state.Corrected += n
			if state.Status < RSCorrected {
				state.Status = RSCorrected
			}
		}
		for j := 0; j < kept; j++ {
			out[j*c.interleave+i] = cw[c.virtualFill+j]
		}
	}
	return out, state, nil
}
