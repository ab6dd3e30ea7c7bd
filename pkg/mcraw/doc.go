// Package mcraw reads .mcraw containers produced by the raw video capture
// app: compressed Bayer frames, per-frame metadata and PCM audio chunks.
package mcraw

// Container layout. All multibyte integers are little-endian.
//
// file:
//   ident   [8]byte // containerID
//   version uint32  // containerVersion
//   records []record
//
// record:
//   type    uint32
//   size    uint64 // payload length, excluding this 12-byte preamble
//   payload []byte
//
// The first record is a METADATA record holding the camera properties as
// JSON. Frames follow as (BUFFER, METADATA) pairs and audio as
// (AUDIO_DATA, AUDIO_DATA_METADATA) pairs, interleaved in capture order.
//
// The file ends with an offsets table and a BUFFER_INDEX record pointing
// back at it:
//
// BUFFER_INDEX payload:
//   magic      uint64 // indexMagicNumber
//   tableOffset int64 // position of the offsets table
//   numOffsets uint64
//
// offsets table:
//   []BufferOffset{timestamp int64, offset int64} // 16 bytes each
//
// An optional AUDIO_INDEX record sits between the last payload record and
// the offsets table; its payload is a count followed directly by that many
// BufferOffset entries locating the AUDIO_DATA records.
