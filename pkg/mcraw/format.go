package mcraw

import "encoding/binary"

// Container identification.
const (
	containerVersion   uint32 = 3
	indexMagicNumber   uint64 = 0x584449574152434D // "MCRAWIDX"
	rawCompressionType        = 7
)

var containerID = [8]byte{'M', 'O', 'T', 'I', 'O', 'N', ' ', ' '}

// recordType tags every record in the container.
type recordType uint32

const (
	typeMetadata recordType = iota
	typeBuffer
	typeBufferIndex
	typeAudioData
	typeAudioIndex
	typeAudioDataMetadata
)

// Wire sizes.
const (
	fileHeaderSize    = 12
	recordHeaderSize  = 12
	bufferIndexSize   = 24
	bufferOffsetSize  = 16
	audioMetadataSize = 8
)

// record is the fixed preamble of every typed record.
type record struct {
	typ  recordType
	size uint64
}

func parseRecord(buf []byte) record {
	return record{
		typ:  recordType(binary.LittleEndian.Uint32(buf[0:4])),
		size: binary.LittleEndian.Uint64(buf[4:12]),
	}
}

// BufferOffset locates a frame or audio record in the container.
type BufferOffset struct {
	Timestamp int64 // nanoseconds
	Offset    int64 // byte position of the record
}

func parseBufferOffset(buf []byte) BufferOffset {
	return BufferOffset{
		Timestamp: int64(binary.LittleEndian.Uint64(buf[0:8])),
		Offset:    int64(binary.LittleEndian.Uint64(buf[8:16])),
	}
}

// bufferIndex is the payload of the trailing BUFFER_INDEX record.
type bufferIndex struct {
	magic       uint64
	tableOffset int64
	numOffsets  uint64
}

func parseBufferIndex(buf []byte) bufferIndex {
	return bufferIndex{
		magic:       binary.LittleEndian.Uint64(buf[0:8]),
		tableOffset: int64(binary.LittleEndian.Uint64(buf[8:16])),
		numOffsets:  binary.LittleEndian.Uint64(buf[16:24]),
	}
}
