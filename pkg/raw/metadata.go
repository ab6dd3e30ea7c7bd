package raw

import "encoding/binary"

// blockHeaderLength is the size of the per-block metadata header: the bit
// width in the high nibble of byte 0 and a 12-bit reference in the rest.
const blockHeaderLength = 2

// DecodeMetadata decodes the self-describing stream of per-block values
// starting at offset: a value count followed by compressed blocks, each
// prefixed with its bit width and a reference added to all of its samples.
// It returns the decoded values and the offset after the stream.
func DecodeMetadata(input []byte, offset int) ([]uint16, int) {
	if offset+4 > len(input) {
		return nil, offset
	}
	count := int(binary.LittleEndian.Uint32(input[offset:]))
	offset += 4

	// The last block is always decoded in full, so the backing array is
	// padded to a whole block.
	values := make([]uint16, (count+BlockSize-1)/BlockSize*BlockSize)

	for i := 0; i < count; i += BlockSize {
		if offset+blockHeaderLength > len(input) {
			break
		}
		bits := uint16(input[offset] >> 4)
		reference := (uint16(input[offset]&0x0F) << 8) | uint16(input[offset+1])
		offset += blockHeaderLength

		block := values[i : i+BlockSize]
		offset += DecodeBlock(block, bits, input, offset)

		for x := range block {
			block[x] += reference
		}
	}

	return values[:count], offset
}
