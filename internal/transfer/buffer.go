// Package transfer implements the byte store that bridges the intake and
// engine-read phases of a request body: written incrementally while the
// host delivers chunks, rewound once, then read sequentially by the
// engine. Small bodies live in a pooled in-memory slice; bodies that
// cross the spill threshold move to a temp file.
package transfer

import (
	"fmt"
	"io"
	"os"

	"github.com/hokkaido/Nancy/common/bytespool"
)

// DefaultSpillThreshold is the body size above which a Buffer moves from
// pooled memory to a temp file.
const DefaultSpillThreshold = bytespool.MaxPoolSize

// Buffer is a seekable byte sink/source. It is not safe for concurrent
// use; the intended lifecycle is single-writer, then a rewind, then
// single-reader.
type Buffer struct {
	mem  []byte // pooled backing store while in memory
	size int    // bytes stored in mem
	pos  int    // current read/write position in mem

	file      *os.File // non-nil once spilled
	threshold int
	closed    bool
}

// New creates an empty Buffer that spills to disk once its content
// exceeds threshold bytes. A non-positive threshold selects
// DefaultSpillThreshold.
func New(threshold int) *Buffer {
	if threshold <= 0 {
		threshold = DefaultSpillThreshold
	}
	return &Buffer{threshold: threshold}
}

// Write stores p at the current position and advances it, growing the
// backing store or spilling to disk as needed.
func (b *Buffer) Write(p []byte) (int, error) {
	if b.closed {
		return 0, os.ErrClosed
	}
	if b.file != nil {
		return b.file.Write(p)
	}
	if b.pos+len(p) > b.threshold {
		if err := b.spill(); err != nil {
			return 0, err
		}
		return b.file.Write(p)
	}
	if need := b.pos + len(p); need > cap(b.mem) {
		grown := bytespool.Alloc(need)
		grown = grown[:cap(grown)]
		copy(grown, b.mem[:b.size])
		bytespool.Free(b.mem)
		b.mem = grown
	}
	n := copy(b.mem[b.pos:b.pos+len(p)], p)
	b.pos += n
	if b.pos > b.size {
		b.size = b.pos
	}
	return n, nil
}

// Read fills p from the current position and advances it.
func (b *Buffer) Read(p []byte) (int, error) {
	if b.closed {
		return 0, os.ErrClosed
	}
	if b.file != nil {
		return b.file.Read(p)
	}
	if b.pos >= b.size {
		return 0, io.EOF
	}
	n := copy(p, b.mem[b.pos:b.size])
	b.pos += n
	return n, nil
}

// Seek repositions the read/write cursor.
func (b *Buffer) Seek(offset int64, whence int) (int64, error) {
	if b.closed {
		return 0, os.ErrClosed
	}
	if b.file != nil {
		return b.file.Seek(offset, whence)
	}
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(b.pos) + offset
	case io.SeekEnd:
		abs = int64(b.size) + offset
	default:
		return 0, fmt.Errorf("transfer: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("transfer: negative seek position %d", abs)
	}
	b.pos = int(abs)
	return abs, nil
}

// Size reports the number of bytes stored.
func (b *Buffer) Size() (int64, error) {
	if b.file != nil {
		info, err := b.file.Stat()
		if err != nil {
			return 0, err
		}
		return info.Size(), nil
	}
	return int64(b.size), nil
}

// Spilled reports whether the content has moved to a temp file.
func (b *Buffer) Spilled() bool { return b.file != nil }

// Close releases the backing store. It is safe to call more than once.
func (b *Buffer) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	if b.mem != nil {
		bytespool.Free(b.mem)
		b.mem = nil
	}
	if b.file != nil {
		name := b.file.Name()
		err := b.file.Close()
		if rmErr := os.Remove(name); err == nil {
			err = rmErr
		}
		b.file = nil
		return err
	}
	return nil
}

// spill moves the in-memory content to a temp file, preserving the
// current position.
func (b *Buffer) spill() error {
	f, err := os.CreateTemp("", "transfer-*.body")
	if err != nil {
		return err
	}
	if _, err := f.Write(b.mem[:b.size]); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	if _, err := f.Seek(int64(b.pos), io.SeekStart); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	bytespool.Free(b.mem)
	b.mem = nil
	b.file = f
	return nil
}
