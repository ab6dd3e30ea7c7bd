package raw

import "encoding/binary"

// BlockSize is the number of samples produced by a single encoded block.
const BlockSize = 64

// blockLength returns the number of input bytes a block at the given bit
// width consumes. Widths 7 and 9 are stored as 8 and 10 bits; anything
// above 10 is stored as 16.
func blockLength(bits uint16) int {
	switch bits {
	case 0:
		return 0
	case 1:
		return 8
	case 2:
		return 16
	case 3:
		return 24
	case 4:
		return 32
	case 5:
		return 40
	case 6:
		return 48
	case 7, 8:
		return 64
	case 9, 10:
		return 80
	default:
		return 128
	}
}

// DecodeBlock decodes one block of BlockSize samples from input at offset
// into dst and returns the number of bytes consumed. If the block would read
// past the end of input, dst is left untouched and the remaining input
// length is returned instead.
func DecodeBlock(dst []uint16, bits uint16, input []byte, offset int) int {
	length := blockLength(bits)
	if offset+length > len(input) {
		return len(input) - offset
	}
	in := input[offset:]

	switch bits {
	case 0:
		for i := range dst[:BlockSize] {
			dst[i] = 0
		}
	case 1:
		decode1(dst, in)
	case 2:
		decode2(dst, in)
	case 3:
		decode3(dst, in)
	case 4:
		decode4(dst, in)
	case 5:
		decode5(dst, in)
	case 6:
		decode6(dst, in)
	case 7, 8:
		decode8(dst, in)
	case 9, 10:
		decode10(dst, in)
	default:
		decode16(dst, in)
	}

	return length
}

// decode1 expands one 8-byte chunk into 8 rows of single bits.
func decode1(dst []uint16, in []byte) {
	for i := 0; i < 8; i++ {
		p := uint16(in[i])
		dst[i] = p & 0x01
		dst[8+i] = (p >> 1) & 0x01
		dst[16+i] = (p >> 2) & 0x01
		dst[24+i] = (p >> 3) & 0x01
		dst[32+i] = (p >> 4) & 0x01
		dst[40+i] = (p >> 5) & 0x01
		dst[48+i] = (p >> 6) & 0x01
		dst[56+i] = (p >> 7) & 0x01
	}
}

// decode2One extracts four rows of bit pairs from one 8-byte chunk.
func decode2One(dst []uint16, in []byte) {
	for i := 0; i < 8; i++ {
		p := uint16(in[i])
		dst[i] = p & 0x03
		dst[8+i] = (p >> 2) & 0x03
		dst[16+i] = (p >> 4) & 0x03
		dst[24+i] = (p >> 6) & 0x03
	}
}

func decode2(dst []uint16, in []byte) {
	decode2One(dst, in)
	decode2One(dst[32:], in[8:])
}

// decode3 works on three 8-byte chunks. Rows 2 and 5 get their top bit from
// the spare bits of the third chunk.
func decode3(dst []uint16, in []byte) {
	for i := 0; i < 8; i++ {
		p0 := uint16(in[i])
		p1 := uint16(in[8+i])
		p2 := uint16(in[16+i])

		dst[i] = p0 & 0x07
		dst[8+i] = (p0 >> 3) & 0x07
		dst[16+i] = ((p0 >> 6) & 0x03) | (((p2 >> 6) & 0x01) << 2)
		dst[24+i] = p1 & 0x07
		dst[32+i] = (p1 >> 3) & 0x07
		dst[40+i] = ((p1 >> 6) & 0x03) | (((p2 >> 7) & 0x01) << 2)
		dst[48+i] = p2 & 0x07
		dst[56+i] = (p2 >> 3) & 0x07
	}
}

// decode4One extracts two rows of nibbles from one 8-byte chunk.
func decode4One(dst []uint16, in []byte) {
	for i := 0; i < 8; i++ {
		p := uint16(in[i])
		dst[i] = p & 0x0F
		dst[8+i] = (p >> 4) & 0x0F
	}
}

func decode4(dst []uint16, in []byte) {
	decode4One(dst, in)
	decode4One(dst[16:], in[8:])
	decode4One(dst[32:], in[16:])
	decode4One(dst[48:], in[24:])
}

// decode5 works on five 8-byte chunks. Rows 5 to 7 recombine the upper
// three bits of each chunk.
func decode5(dst []uint16, in []byte) {
	for i := 0; i < 8; i++ {
		p0 := uint16(in[i])
		p1 := uint16(in[8+i])
		p2 := uint16(in[16+i])
		p3 := uint16(in[24+i])
		p4 := uint16(in[32+i])

		dst[i] = p0 & 0x1F
		dst[8+i] = p1 & 0x1F
		dst[16+i] = p2 & 0x1F
		dst[24+i] = p3 & 0x1F
		dst[32+i] = p4 & 0x1F
		dst[40+i] = ((p0 >> 5) & 0x07) | (((p3 >> 5) & 0x03) << 3)
		dst[48+i] = ((p1 >> 5) & 0x07) | (((p4 >> 5) & 0x03) << 3)
		dst[56+i] = ((p2 >> 5) & 0x07) | (((p3 >> 7) & 0x01) << 3) | (((p4 >> 7) & 0x01) << 4)
	}
}

// decode6 works on six 8-byte chunks. The duplicated p1 term in row 6
// matches the encoder; existing recordings depend on it.
func decode6(dst []uint16, in []byte) {
	for i := 0; i < 8; i++ {
		p0 := uint16(in[i])
		p1 := uint16(in[8+i])
		p2 := uint16(in[16+i])
		p3 := uint16(in[24+i])
		p4 := uint16(in[32+i])
		p5 := uint16(in[40+i])

		dst[i] = p0 & 0x3F
		dst[8+i] = p1 & 0x3F
		dst[16+i] = p2 & 0x3F
		dst[24+i] = p3 & 0x3F
		dst[32+i] = p4 & 0x3F
		dst[40+i] = p5 & 0x3F
		dst[48+i] = ((p0 >> 6) & 0x03) | (((p1 >> 6) & 0x03) << 2) | (((p1 >> 6) & 0x03) << 2) | (((p2 >> 6) & 0x03) << 4)
		dst[56+i] = ((p3 >> 6) & 0x03) | (((p4 >> 6) & 0x03) << 2) | (((p5 >> 6) & 0x03) << 4)
	}
}

func decode8(dst []uint16, in []byte) {
	for i := 0; i < BlockSize; i++ {
		dst[i] = uint16(in[i])
	}
}

// decode10 stores eight bits per sample in chunks 0-3 and 5-8; chunks 4 and
// 9 carry the two top bits of each of the four rows before them.
func decode10(dst []uint16, in []byte) {
	for i := 0; i < 8; i++ {
		p4 := uint16(in[32+i])
		dst[i] = uint16(in[i]) | ((p4 & 0x03) << 8)
		dst[8+i] = uint16(in[8+i]) | ((p4 & 0x0C) << 6)
		dst[16+i] = uint16(in[16+i]) | ((p4 & 0x30) << 4)
		dst[24+i] = uint16(in[24+i]) | ((p4 & 0xC0) << 2)

		p9 := uint16(in[72+i])
		dst[32+i] = uint16(in[40+i]) | ((p9 & 0x03) << 8)
		dst[40+i] = uint16(in[48+i]) | ((p9 & 0x0C) << 6)
		dst[48+i] = uint16(in[56+i]) | ((p9 & 0x30) << 4)
		dst[56+i] = uint16(in[64+i]) | ((p9 & 0xC0) << 2)
	}
}

func decode16(dst []uint16, in []byte) {
	for i := 0; i < BlockSize; i++ {
		dst[i] = binary.LittleEndian.Uint16(in[2*i:])
	}
}
