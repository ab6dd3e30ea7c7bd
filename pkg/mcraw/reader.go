package mcraw

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/mirsadm/motioncam-decoder/pkg/raw"
)

// ErrInvalidFormat means the identifier, version or a required record type
// did not match.
var ErrInvalidFormat = errors.New("invalid container format")

// ErrCorrupted means the trailing index failed its magic check.
var ErrCorrupted = errors.New("corrupted container")

// ErrNotFound means no frame carries the requested timestamp.
var ErrNotFound = errors.New("frame not found")

// ErrInvalidCompression means a frame was written with an unsupported
// compression type.
var ErrInvalidCompression = errors.New("invalid compression type")

// ErrDecodeFailed means the frame payload produced fewer samples than the
// declared dimensions require.
var ErrDecodeFailed = errors.New("failed to decode frame")

// Index holds the parsed offset tables of a container, for callers that
// persist them between opens.
type Index struct {
	Frames []BufferOffset
	Audio  []BufferOffset
}

// AudioChunk is one AUDIO_DATA record: interleaved PCM samples and the
// capture timestamp, or -1 for captures that predate audio metadata.
type AudioChunk struct {
	Timestamp int64
	Samples   []int16
}

// Reader reads frames and audio chunks from an mcraw container. A Reader
// owns a single file cursor and scratch buffers, so it is not safe for
// concurrent use; open one reader per goroutine instead.
type Reader struct {
	in     io.ReadSeeker
	closer io.Closer

	metadata CameraMetadata

	offsets      []BufferOffset
	frames       []int64
	frameOffsets map[int64]int64
	audioOffsets []BufferOffset

	dec raw.FrameDecoder
	buf []byte
}

// OpenFile opens the container at path. The returned reader owns the file
// handle; the caller must call Close.
func OpenFile(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open container: %w", err)
	}
	r, err := NewReader(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.closer = file
	return r, nil
}

// OpenFileWithIndex opens the container at path with a previously parsed
// index, skipping the trailing index read and the audio scan.
func OpenFileWithIndex(path string, index Index) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open container: %w", err)
	}
	r, err := NewReaderWithIndex(file, index)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.closer = file
	return r, nil
}

// NewReader reads the container structure from in. The reader repositions
// the cursor on every call and does not close in.
func NewReader(in io.ReadSeeker) (*Reader, error) {
	r := &Reader{in: in}
	if err := r.readFileHeader(); err != nil {
		return nil, err
	}
	if err := r.readContainerMetadata(); err != nil {
		return nil, err
	}
	if err := r.readIndex(); err != nil {
		return nil, err
	}
	r.reindexOffsets()
	r.readExtra()
	return r, nil
}

// NewReaderWithIndex reads the container header and metadata from in and
// installs index instead of scanning for one.
func NewReaderWithIndex(in io.ReadSeeker, index Index) (*Reader, error) {
	r := &Reader{in: in}
	if err := r.readFileHeader(); err != nil {
		return nil, err
	}
	if err := r.readContainerMetadata(); err != nil {
		return nil, err
	}
	r.offsets = append([]BufferOffset(nil), index.Frames...)
	r.audioOffsets = append([]BufferOffset(nil), index.Audio...)
	r.reindexOffsets()
	return r, nil
}

// Close releases the file handle if the reader owns one.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// Frames returns the capture timestamps of every frame, ascending.
func (r *Reader) Frames() []int64 {
	return r.frames
}

// ContainerMetadata returns the camera properties of the capture.
func (r *Reader) ContainerMetadata() CameraMetadata {
	return r.metadata
}

// AudioSampleRate returns the audio sample rate in hertz.
func (r *Reader) AudioSampleRate() int {
	return r.metadata.ExtraData.AudioSampleRate
}

// AudioChannels returns the number of interleaved audio channels.
func (r *Reader) AudioChannels() int {
	return r.metadata.ExtraData.AudioChannels
}

// Index returns the parsed offset tables.
func (r *Reader) Index() Index {
	return Index{Frames: r.offsets, Audio: r.audioOffsets}
}

// LoadFrame reads and decompresses the frame captured at timestamp. The
// samples are written into pixels, whose backing array is grown as needed;
// the returned slice holds exactly width*height samples in row-major order.
func (r *Reader) LoadFrame(timestamp int64, pixels []uint16) ([]uint16, FrameMetadata, error) {
	offset, ok := r.frameOffsets[timestamp]
	if !ok {
		return pixels, FrameMetadata{}, fmt.Errorf("%w: timestamp %d", ErrNotFound, timestamp)
	}
	if _, err := r.in.Seek(offset, io.SeekStart); err != nil {
		return pixels, FrameMetadata{}, fmt.Errorf("seek frame: %w", err)
	}

	rec, err := r.readRecord()
	if err != nil {
		return pixels, FrameMetadata{}, fmt.Errorf("read frame record: %w", err)
	}
	if rec.typ != typeBuffer {
		return pixels, FrameMetadata{}, fmt.Errorf("%w: record type %d, want buffer", ErrInvalidFormat, rec.typ)
	}
	payload, err := r.readPayload(rec.size)
	if err != nil {
		return pixels, FrameMetadata{}, fmt.Errorf("read frame payload: %w", err)
	}

	meta, err := r.readFrameMetadata()
	if err != nil {
		return pixels, FrameMetadata{}, err
	}
	if meta.CompressionType != rawCompressionType {
		return pixels, meta, fmt.Errorf("%w: %d", ErrInvalidCompression, meta.CompressionType)
	}

	want := meta.Width * meta.Height
	if cap(pixels) < want {
		pixels = make([]uint16, want)
	} else {
		pixels = pixels[:want]
	}

	n, err := r.dec.Decode(pixels, meta.Width, meta.Height, payload)
	if err != nil {
		return pixels, meta, fmt.Errorf("decode frame: %w", err)
	}
	if n < want {
		return pixels, meta, fmt.Errorf("%w: %d of %d samples", ErrDecodeFailed, n, want)
	}
	return pixels, meta, nil
}

// LoadAudio reads every audio chunk in index order. A failed seek ends the
// walk early with the chunks read so far.
func (r *Reader) LoadAudio() ([]AudioChunk, error) {
	chunks := make([]AudioChunk, 0, len(r.audioOffsets))
	for _, o := range r.audioOffsets {
		if _, err := r.in.Seek(o.Offset, io.SeekStart); err != nil {
			break
		}
		rec, err := r.readRecord()
		if err != nil {
			return chunks, fmt.Errorf("read audio record: %w", err)
		}
		if rec.typ != typeAudioData {
			return chunks, fmt.Errorf("%w: record type %d, want audio data", ErrInvalidFormat, rec.typ)
		}
		data := make([]byte, rec.size)
		if _, err := io.ReadFull(r.in, data); err != nil {
			return chunks, fmt.Errorf("read audio data: %w", err)
		}

		// A trailing odd byte is kept as a zero-padded sample.
		samples := make([]int16, (rec.size+1)/2)
		for i := 0; i+1 < len(data); i += 2 {
			samples[i/2] = int16(binary.LittleEndian.Uint16(data[i:]))
		}
		if len(data)%2 != 0 {
			samples[len(samples)-1] = int16(data[len(data)-1])
		}

		chunks = append(chunks, AudioChunk{Timestamp: r.readAudioTimestamp(), Samples: samples})
	}
	return chunks, nil
}

func (r *Reader) readFileHeader() error {
	if _, err := r.in.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek header: %w", err)
	}
	buf := make([]byte, fileHeaderSize)
	if _, err := io.ReadFull(r.in, buf); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if !bytes.Equal(buf[:8], containerID[:]) {
		return fmt.Errorf("%w: identifier %q", ErrInvalidFormat, buf[:8])
	}
	if v := binary.LittleEndian.Uint32(buf[8:12]); v != containerVersion {
		return fmt.Errorf("%w: version %d, want %d", ErrInvalidFormat, v, containerVersion)
	}
	return nil
}

func (r *Reader) readContainerMetadata() error {
	rec, err := r.readRecord()
	if err != nil {
		return fmt.Errorf("read metadata record: %w", err)
	}
	if rec.typ != typeMetadata {
		return fmt.Errorf("%w: first record type %d, want metadata", ErrInvalidFormat, rec.typ)
	}
	buf := make([]byte, rec.size)
	if _, err := io.ReadFull(r.in, buf); err != nil {
		return fmt.Errorf("read container metadata: %w", err)
	}
	meta, err := parseCameraMetadata(buf)
	if err != nil {
		return fmt.Errorf("parse container metadata: %w", err)
	}
	r.metadata = meta
	return nil
}

// readIndex locates the trailing BUFFER_INDEX record and reads the offsets
// table it points at.
func (r *Reader) readIndex() error {
	if _, err := r.in.Seek(-int64(recordHeaderSize+bufferIndexSize), io.SeekEnd); err != nil {
		return fmt.Errorf("seek index: %w", err)
	}
	rec, err := r.readRecord()
	if err != nil {
		return fmt.Errorf("read index record: %w", err)
	}
	if rec.typ != typeBufferIndex {
		return fmt.Errorf("%w: trailing record type %d, want buffer index", ErrInvalidFormat, rec.typ)
	}

	buf := make([]byte, bufferIndexSize)
	if _, err := io.ReadFull(r.in, buf); err != nil {
		return fmt.Errorf("read index: %w", err)
	}
	index := parseBufferIndex(buf)
	if index.magic != indexMagicNumber {
		return fmt.Errorf("%w: index magic %#x", ErrCorrupted, index.magic)
	}

	if _, err := r.in.Seek(index.tableOffset, io.SeekStart); err != nil {
		return fmt.Errorf("seek offsets table: %w", err)
	}
	offsets := make([]BufferOffset, index.numOffsets)
	entry := make([]byte, bufferOffsetSize)
	for i := range offsets {
		if _, err := io.ReadFull(r.in, entry); err != nil {
			return fmt.Errorf("read offsets table: %w", err)
		}
		offsets[i] = parseBufferOffset(entry)
	}
	r.offsets = offsets
	return nil
}

// reindexOffsets orders the offsets by timestamp and rebuilds the lookup
// structures.
func (r *Reader) reindexOffsets() {
	sort.SliceStable(r.offsets, func(i, j int) bool {
		return r.offsets[i].Timestamp < r.offsets[j].Timestamp
	})

	r.frames = make([]int64, 0, len(r.offsets))
	r.frameOffsets = make(map[int64]int64, len(r.offsets))
	for _, o := range r.offsets {
		r.frames = append(r.frames, o.Timestamp)
		r.frameOffsets[o.Timestamp] = o.Offset
	}
}

// readExtra scans past the last frame for the audio index. The scan is best
// effort: a read failure or an unknown record ends it without failing the
// open.
func (r *Reader) readExtra() {
	if len(r.offsets) == 0 {
		return
	}
	if _, err := r.in.Seek(r.offsets[len(r.offsets)-1].Offset, io.SeekStart); err != nil {
		return
	}

	for {
		rec, err := r.readRecord()
		if err != nil {
			return
		}
		switch rec.typ {
		case typeBuffer, typeMetadata, typeAudioData, typeAudioDataMetadata:
			if _, err := r.in.Seek(int64(rec.size), io.SeekCurrent); err != nil {
				return
			}
		case typeAudioIndex:
			buf := make([]byte, 8)
			if _, err := io.ReadFull(r.in, buf); err != nil {
				return
			}
			offsets := make([]BufferOffset, binary.LittleEndian.Uint64(buf))
			entry := make([]byte, bufferOffsetSize)
			for i := range offsets {
				if _, err := io.ReadFull(r.in, entry); err != nil {
					return
				}
				offsets[i] = parseBufferOffset(entry)
			}
			r.audioOffsets = offsets
		default:
			return
		}
	}
}

func (r *Reader) readRecord() (record, error) {
	buf := make([]byte, recordHeaderSize)
	if _, err := io.ReadFull(r.in, buf); err != nil {
		return record{}, err
	}
	return parseRecord(buf), nil
}

// readPayload reads size bytes into the reader's scratch buffer, which
// grows to the largest payload encountered.
func (r *Reader) readPayload(size uint64) ([]byte, error) {
	if uint64(cap(r.buf)) < size {
		r.buf = make([]byte, size)
	}
	buf := r.buf[:size]
	if _, err := io.ReadFull(r.in, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (r *Reader) readFrameMetadata() (FrameMetadata, error) {
	rec, err := r.readRecord()
	if err != nil {
		return FrameMetadata{}, fmt.Errorf("read frame metadata record: %w", err)
	}
	if rec.typ != typeMetadata {
		return FrameMetadata{}, fmt.Errorf("%w: record type %d, want metadata", ErrInvalidFormat, rec.typ)
	}
	buf := make([]byte, rec.size)
	if _, err := io.ReadFull(r.in, buf); err != nil {
		return FrameMetadata{}, fmt.Errorf("read frame metadata: %w", err)
	}
	var meta FrameMetadata
	if err := json.Unmarshal(buf, &meta); err != nil {
		return FrameMetadata{}, fmt.Errorf("parse frame metadata: %w", err)
	}
	return meta, nil
}

// readAudioTimestamp reads the metadata record that follows an audio chunk.
// Older captures do not write one.
func (r *Reader) readAudioTimestamp() int64 {
	buf := make([]byte, recordHeaderSize)
	if _, err := io.ReadFull(r.in, buf); err != nil {
		return -1
	}
	if parseRecord(buf).typ != typeAudioDataMetadata {
		return -1
	}
	meta := make([]byte, audioMetadataSize)
	if _, err := io.ReadFull(r.in, meta); err != nil {
		return -1
	}
	return int64(binary.LittleEndian.Uint64(meta))
}
