// Package indexcache persists parsed mcraw container indexes.
//
// Opening a container reads its trailing index and scans past the last
// frame for the audio index. Consumers that reopen many large recordings
// can skip that work by caching the parsed offset tables, keyed by path and
// invalidated when the file size or modification time changes.
package indexcache

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/mirsadm/motioncam-decoder/pkg/mcraw"
)

const bucketName = "indexes-v1"

// Cache is a bbolt backed store of container indexes.
type Cache struct {
	db *bolt.DB
}

// New opens or creates the cache database at path.
func New(path string) (*Cache, error) {
	dbOpts := &bolt.Options{
		Timeout: 1 * time.Second,
	}
	db, err := bolt.Open(path, 0o600, dbOpts)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w: %v", err, path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create bucket: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Open returns a reader for the container at path, reusing the cached index
// when it is still valid and refreshing the cache otherwise.
func (c *Cache) Open(path string) (*mcraw.Reader, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat container: %w", err)
	}

	if index, ok := c.Get(path, stat.Size(), stat.ModTime()); ok {
		return mcraw.OpenFileWithIndex(path, index)
	}

	r, err := mcraw.OpenFile(path)
	if err != nil {
		return nil, err
	}
	if err := c.Put(path, stat.Size(), stat.ModTime(), r.Index()); err != nil {
		r.Close()
		return nil, fmt.Errorf("cache index: %w", err)
	}
	return r, nil
}

// Get looks up the index cached for path. It reports a miss if the file
// size or modification time no longer match.
func (c *Cache) Get(path string, size int64, modTime time.Time) (mcraw.Index, bool) {
	var index mcraw.Index
	var ok bool
	_ = c.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket([]byte(bucketName)).Get([]byte(path))
		if value == nil {
			return nil
		}
		index, ok = decodeValue(value, size, modTime.UnixNano())
		return nil
	})
	return index, ok
}

// Put stores the index parsed from path.
func (c *Cache) Put(path string, size int64, modTime time.Time, index mcraw.Index) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put(
			[]byte(path), encodeValue(size, modTime.UnixNano(), index))
	})
}

// Value layout, little-endian like the container itself:
//
//	size      int64
//	modTime   int64 // UnixNano
//	numFrames uint64, frames []BufferOffset // 16 bytes each
//	numAudio  uint64, audio  []BufferOffset
func encodeValue(size, modTime int64, index mcraw.Index) []byte {
	buf := make([]byte, 0, 32+16*(len(index.Frames)+len(index.Audio)))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(size))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(modTime))
	buf = appendOffsets(buf, index.Frames)
	buf = appendOffsets(buf, index.Audio)
	return buf
}

func appendOffsets(buf []byte, offsets []mcraw.BufferOffset) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(offsets)))
	for _, o := range offsets {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(o.Timestamp))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(o.Offset))
	}
	return buf
}

func decodeValue(value []byte, size, modTime int64) (mcraw.Index, bool) {
	if len(value) < 16 {
		return mcraw.Index{}, false
	}
	if int64(binary.LittleEndian.Uint64(value[0:8])) != size {
		return mcraw.Index{}, false
	}
	if int64(binary.LittleEndian.Uint64(value[8:16])) != modTime {
		return mcraw.Index{}, false
	}

	frames, rest, ok := readOffsets(value[16:])
	if !ok {
		return mcraw.Index{}, false
	}
	audio, _, ok := readOffsets(rest)
	if !ok {
		return mcraw.Index{}, false
	}
	return mcraw.Index{Frames: frames, Audio: audio}, true
}

func readOffsets(buf []byte) ([]mcraw.BufferOffset, []byte, bool) {
	if len(buf) < 8 {
		return nil, nil, false
	}
	n := int(binary.LittleEndian.Uint64(buf))
	buf = buf[8:]
	if len(buf) < 16*n {
		return nil, nil, false
	}

	offsets := make([]mcraw.BufferOffset, n)
	for i := range offsets {
		offsets[i].Timestamp = int64(binary.LittleEndian.Uint64(buf[16*i:]))
		offsets[i].Offset = int64(binary.LittleEndian.Uint64(buf[16*i+8:]))
	}
	return offsets, buf[16*n:], true
}
