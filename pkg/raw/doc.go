// Package raw decodes the block-compressed Bayer frames stored in mcraw
// containers.
package raw

// Frame payload layout.
//
// payload:
//   encodedWidth  uint32 // multiple of 64, >= output width
//   encodedHeight uint32 // multiple of 4, >= output height
//   bitsOffset    uint32 // byte offset of the bits metadata stream
//   refsOffset    uint32 // byte offset of the refs metadata stream
//   blocks        []byte // block stream, starts at byte 16
//
// The image is split into tiles of 4 rows by 64 columns. Each tile is stored
// as four blocks of 64 samples; blocks 0/1 interleave into rows 0 and 2,
// blocks 2/3 into rows 1 and 3. A block is packed at one of
// {0,1,2,3,4,5,6,8,10,16} bits per sample.
//
// The per-block bit widths and additive reference values live in two
// secondary streams that are themselves compressed with the same block
// scheme:
//
// metadata stream:
//   count  uint32 // number of values
//   blocks []struct {
//     bits      uint8  // high nibble of byte 0
//     reference uint16 // low nibble of byte 0 and all of byte 1
//     data      []byte // one block at bits per sample
//   }
//
// All multibyte integers are little-endian.
