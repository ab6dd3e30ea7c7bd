package raw

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// headerLength is the size of the frame payload header.
const headerLength = 16

// ErrCorruptPayload means the payload is shorter than its header, the header
// points outside the payload or the metadata streams do not cover the image.
var ErrCorruptPayload = errors.New("corrupt frame payload")

// ErrInvalidDimensions means the encoded width is not block aligned or is
// smaller than the requested output, or dst cannot hold width*height samples.
var ErrInvalidDimensions = errors.New("invalid frame dimensions")

// FrameDecoder decompresses frame payloads into 16-bit Bayer samples. The
// row scratch buffers are reused between calls, so a FrameDecoder must not
// be shared across goroutines. The zero value is ready to use.
type FrameDecoder struct {
	row0 []uint16
	row1 []uint16
	row2 []uint16
	row3 []uint16
}

// Decode decompresses input into dst, cropping from the encoded dimensions
// to width and height. dst must hold width*height samples. It returns the
// number of samples written.
func (d *FrameDecoder) Decode(dst []uint16, width, height int, input []byte) (int, error) {
	if len(input) < headerLength {
		return 0, fmt.Errorf("%w: %d byte payload", ErrCorruptPayload, len(input))
	}
	encodedWidth := int(binary.LittleEndian.Uint32(input[0:4]))
	encodedHeight := int(binary.LittleEndian.Uint32(input[4:8]))
	bitsOffset := int(binary.LittleEndian.Uint32(input[8:12]))
	refsOffset := int(binary.LittleEndian.Uint32(input[12:16]))

	if bitsOffset > len(input) || refsOffset > len(input) {
		return 0, fmt.Errorf("%w: metadata streams at %d and %d in %d bytes",
			ErrCorruptPayload, bitsOffset, refsOffset, len(input))
	}
	if encodedWidth%BlockSize != 0 {
		return 0, fmt.Errorf("%w: encoded width %d not a multiple of %d",
			ErrInvalidDimensions, encodedWidth, BlockSize)
	}
	if encodedWidth < width {
		return 0, fmt.Errorf("%w: encoded width %d below output width %d",
			ErrInvalidDimensions, encodedWidth, width)
	}
	if len(dst) < width*height {
		return 0, fmt.Errorf("%w: output holds %d of %d samples",
			ErrInvalidDimensions, len(dst), width*height)
	}

	bits, _ := DecodeMetadata(input, bitsOffset)
	refs, _ := DecodeMetadata(input, refsOffset)

	// Every tile consumes four entries of each stream.
	needed := (encodedHeight / 4) * (encodedWidth / BlockSize) * 4
	if len(bits) < needed || len(refs) < needed {
		return 0, fmt.Errorf("%w: %d of %d block descriptors",
			ErrCorruptPayload, min(len(bits), len(refs)), needed)
	}

	d.grow(encodedWidth)
	row0 := d.row0[:encodedWidth]
	row1 := d.row1[:encodedWidth]
	row2 := d.row2[:encodedWidth]
	row3 := d.row3[:encodedWidth]

	var p0, p1, p2, p3 [BlockSize]uint16

	offset := headerLength
	meta := 0
	written := 0
	outRow := 0

	for y := 0; y < encodedHeight && outRow < height; y += 4 {
		for x := 0; x < encodedWidth; x += BlockSize {
			b := bits[meta : meta+4]
			ref := refs[meta : meta+4]
			meta += 4

			offset += DecodeBlock(p0[:], b[0], input, offset)
			offset += DecodeBlock(p1[:], b[1], input, offset)
			offset += DecodeBlock(p2[:], b[2], input, offset)
			offset += DecodeBlock(p3[:], b[3], input, offset)

			// Blocks 0/1 hold the even/odd columns of rows 0 and 2,
			// blocks 2/3 those of rows 1 and 3.
			for i := 0; i < BlockSize; i += 2 {
				row0[x+i] = p0[i/2] + ref[0]
				row0[x+i+1] = p1[i/2] + ref[1]
				row1[x+i] = p2[i/2] + ref[2]
				row1[x+i+1] = p3[i/2] + ref[3]
				row2[x+i] = p0[BlockSize/2+i/2] + ref[0]
				row2[x+i+1] = p1[BlockSize/2+i/2] + ref[1]
				row3[x+i] = p2[BlockSize/2+i/2] + ref[2]
				row3[x+i+1] = p3[BlockSize/2+i/2] + ref[3]
			}
		}

		for _, row := range [][]uint16{row0, row1, row2, row3} {
			if outRow >= height {
				break
			}
			written += copy(dst[written:], row[:width])
			outRow++
		}
	}

	return written, nil
}

func (d *FrameDecoder) grow(encodedWidth int) {
	if cap(d.row0) >= encodedWidth {
		return
	}
	d.row0 = make([]uint16, encodedWidth)
	d.row1 = make([]uint16, encodedWidth)
	d.row2 = make([]uint16, encodedWidth)
	d.row3 = make([]uint16, encodedWidth)
}
