package mcraw

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

const testCameraMetadata = `{
	"blackLevel": [64, 64, 64, 64],
	"whiteLevel": 1023,
	"colorMatrix1": [1, 0, 0, 0, 1, 0, 0, 0, 1],
	"extraData": {"audioSampleRate": 48000, "audioChannels": 2}
}`

// containerBuilder assembles a synthetic container in memory with the
// layout the capture app writes: header, container metadata, frame and
// audio records, audio index, offsets table, trailing buffer index.
type containerBuilder struct {
	buf    bytes.Buffer
	frames []BufferOffset
	audio  []BufferOffset
}

func newContainerBuilder(metadata string) *containerBuilder {
	b := &containerBuilder{}
	b.buf.Write(containerID[:])
	le(&b.buf, containerVersion)
	b.writeRecord(typeMetadata, []byte(metadata))
	return b
}

func le(w io.Writer, v interface{}) {
	_ = binary.Write(w, binary.LittleEndian, v)
}

func (b *containerBuilder) writeRecord(typ recordType, payload []byte) {
	le(&b.buf, uint32(typ))
	le(&b.buf, uint64(len(payload)))
	b.buf.Write(payload)
}

func (b *containerBuilder) addFrame(timestamp int64, payload []byte, metadata string) {
	b.frames = append(b.frames, BufferOffset{Timestamp: timestamp, Offset: int64(b.buf.Len())})
	b.writeRecord(typeBuffer, payload)
	b.writeRecord(typeMetadata, []byte(metadata))
}

func (b *containerBuilder) addAudio(timestamp int64, samples []int16, withMetadata bool) {
	b.audio = append(b.audio, BufferOffset{Timestamp: timestamp, Offset: int64(b.buf.Len())})

	payload := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(payload[2*i:], uint16(s))
	}
	b.writeRecord(typeAudioData, payload)

	if withMetadata {
		meta := make([]byte, audioMetadataSize)
		binary.LittleEndian.PutUint64(meta, uint64(timestamp))
		b.writeRecord(typeAudioDataMetadata, meta)
	}
}

func (b *containerBuilder) finish() []byte {
	if len(b.audio) > 0 {
		payload := &bytes.Buffer{}
		le(payload, uint64(len(b.audio)))
		for _, o := range b.audio {
			le(payload, o.Timestamp)
			le(payload, o.Offset)
		}
		b.writeRecord(typeAudioIndex, payload.Bytes())
	}

	tableOffset := int64(b.buf.Len())
	for _, o := range b.frames {
		le(&b.buf, o.Timestamp)
		le(&b.buf, o.Offset)
	}

	index := &bytes.Buffer{}
	le(index, indexMagicNumber)
	le(index, tableOffset)
	le(index, uint64(len(b.frames)))
	b.writeRecord(typeBufferIndex, index.Bytes())

	return b.buf.Bytes()
}

// constantStream encodes count metadata values all equal to value: zero-bit
// blocks whose reference carries the value.
func constantStream(count int, value uint16) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, uint32(count))
	for i := 0; i < count; i += 64 {
		out = append(out, byte(value>>8), byte(value))
	}
	return out
}

// framePayload assembles a 64x4 frame where all four blocks hold
// 0x00..0x3F at 8 bits per sample.
func framePayload() []byte {
	blocks := make([]byte, 0, 4*64)
	for b := 0; b < 4; b++ {
		for i := 0; i < 64; i++ {
			blocks = append(blocks, byte(i))
		}
	}

	bits := constantStream(4, 8)
	refs := constantStream(4, 0)

	payload := make([]byte, 16, 16+len(blocks)+len(bits)+len(refs))
	binary.LittleEndian.PutUint32(payload[0:4], 64)
	binary.LittleEndian.PutUint32(payload[4:8], 4)
	binary.LittleEndian.PutUint32(payload[8:12], uint32(16+len(blocks)))
	binary.LittleEndian.PutUint32(payload[12:16], uint32(16+len(blocks)+len(bits)))
	payload = append(payload, blocks...)
	payload = append(payload, bits...)
	return append(payload, refs...)
}

const frameMetadata = `{"width": 64, "height": 4, "compressionType": 7, "asShotNeutral": [0.5, 1, 0.6]}`

func wantFramePixels() []uint16 {
	want := make([]uint16, 64*4)
	for r := 0; r < 4; r++ {
		for c := 0; c < 64; c++ {
			v := uint16(c / 2)
			if r >= 2 {
				v += 32
			}
			want[r*64+c] = v
		}
	}
	return want
}

func TestReaderEmptyContainer(t *testing.T) {
	data := newContainerBuilder(testCameraMetadata).finish()

	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	require.Empty(t, r.Frames())

	_, _, err = r.LoadFrame(123, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReaderContainerMetadata(t *testing.T) {
	data := newContainerBuilder(testCameraMetadata).finish()

	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)

	meta := r.ContainerMetadata()
	require.Equal(t, []float64{64, 64, 64, 64}, meta.BlackLevel)
	require.Equal(t, float64(1023), meta.WhiteLevel)
	require.Equal(t, "rggb", meta.SensorArrangement)
	require.Equal(t, 48000, r.AudioSampleRate())
	require.Equal(t, 2, r.AudioChannels())
}

func TestReaderLoadFrame(t *testing.T) {
	b := newContainerBuilder(testCameraMetadata)
	b.addFrame(1000000000, framePayload(), frameMetadata)
	data := b.finish()

	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, []int64{1000000000}, r.Frames())

	pixels, meta, err := r.LoadFrame(1000000000, nil)
	require.NoError(t, err)
	require.Equal(t, 64, meta.Width)
	require.Equal(t, 4, meta.Height)
	require.Equal(t, []float64{0.5, 1, 0.6}, meta.AsShotNeutral)
	require.Equal(t, wantFramePixels(), pixels)

	// Repeated loads are idempotent and reuse the passed slice.
	again, _, err := r.LoadFrame(1000000000, pixels)
	require.NoError(t, err)
	require.Equal(t, wantFramePixels(), again)
}

func TestReaderFramesSorted(t *testing.T) {
	b := newContainerBuilder(testCameraMetadata)
	b.addFrame(3000000000, framePayload(), frameMetadata)
	b.addFrame(1000000000, framePayload(), frameMetadata)
	b.addFrame(2000000000, framePayload(), frameMetadata)
	data := b.finish()

	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, []int64{1000000000, 2000000000, 3000000000}, r.Frames())

	for _, ts := range r.Frames() {
		pixels, _, err := r.LoadFrame(ts, nil)
		require.NoError(t, err)
		require.Equal(t, wantFramePixels(), pixels)
	}
}

func TestReaderVersionMismatch(t *testing.T) {
	data := newContainerBuilder(testCameraMetadata).finish()
	binary.LittleEndian.PutUint32(data[8:12], containerVersion+1)

	_, err := NewReader(bytes.NewReader(data))
	require.ErrorIs(t, err, ErrInvalidFormat)
}

func TestReaderBadIdentifier(t *testing.T) {
	data := newContainerBuilder(testCameraMetadata).finish()
	data[0] = 'X'

	_, err := NewReader(bytes.NewReader(data))
	require.ErrorIs(t, err, ErrInvalidFormat)
}

func TestReaderBadIndexMagic(t *testing.T) {
	data := newContainerBuilder(testCameraMetadata).finish()

	// The magic sits at the start of the trailing index payload.
	binary.LittleEndian.PutUint64(data[len(data)-bufferIndexSize:], 0xBAD)

	_, err := NewReader(bytes.NewReader(data))
	require.ErrorIs(t, err, ErrCorrupted)
}

func TestReaderBadCompressionType(t *testing.T) {
	bad := `{"width": 64, "height": 4, "compressionType": 5}`

	b := newContainerBuilder(testCameraMetadata)
	b.addFrame(1000000000, framePayload(), frameMetadata)
	b.addFrame(2000000000, framePayload(), bad)
	data := b.finish()

	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)

	_, _, err = r.LoadFrame(2000000000, nil)
	require.ErrorIs(t, err, ErrInvalidCompression)

	// The reader stays usable for well-formed frames.
	pixels, _, err := r.LoadFrame(1000000000, nil)
	require.NoError(t, err)
	require.Equal(t, wantFramePixels(), pixels)
}

func TestReaderTruncatedPayload(t *testing.T) {
	b := newContainerBuilder(testCameraMetadata)
	b.addFrame(1000000000, framePayload(), frameMetadata)
	frameOffset := b.frames[0].Offset
	data := b.finish()

	// Make the frame record claim more payload than the file holds.
	binary.LittleEndian.PutUint64(data[frameOffset+4:], uint64(len(data)))

	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)

	_, _, err = r.LoadFrame(1000000000, nil)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReaderAudio(t *testing.T) {
	first := make([]int16, 1024)
	second := make([]int16, 1024)
	for i := range first {
		first[i] = int16(i)
		second[i] = int16(-i)
	}

	b := newContainerBuilder(testCameraMetadata)
	b.addFrame(1000000000, framePayload(), frameMetadata)
	b.addAudio(1100000000, first, true)
	b.addAudio(1200000000, second, true)
	data := b.finish()

	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)

	chunks, err := r.LoadAudio()
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.Equal(t, int64(1100000000), chunks[0].Timestamp)
	require.Equal(t, first, chunks[0].Samples)
	require.Equal(t, int64(1200000000), chunks[1].Timestamp)
	require.Equal(t, second, chunks[1].Samples)
}

func TestReaderAudioWithoutMetadata(t *testing.T) {
	b := newContainerBuilder(testCameraMetadata)
	b.addFrame(1000000000, framePayload(), frameMetadata)
	b.addAudio(1100000000, []int16{1, 2, 3, 4}, false)
	data := b.finish()

	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)

	chunks, err := r.LoadAudio()
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, int64(-1), chunks[0].Timestamp)
	require.Equal(t, []int16{1, 2, 3, 4}, chunks[0].Samples)
}

func TestReaderWithIndex(t *testing.T) {
	b := newContainerBuilder(testCameraMetadata)
	b.addFrame(1000000000, framePayload(), frameMetadata)
	b.addAudio(1100000000, []int16{5, 6}, true)
	data := b.finish()

	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)

	// A reader built from the parsed index behaves like the original.
	r2, err := NewReaderWithIndex(bytes.NewReader(data), r.Index())
	require.NoError(t, err)
	require.Equal(t, r.Frames(), r2.Frames())

	pixels, _, err := r2.LoadFrame(1000000000, nil)
	require.NoError(t, err)
	require.Equal(t, wantFramePixels(), pixels)

	chunks, err := r2.LoadAudio()
	require.NoError(t, err)
	require.Len(t, chunks, 1)
}
