package recorder

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"slices"

	"tradex/internal/schema"
)

var (
	ErrChecksumMismatch = errors.New("wal checksum mismatch")
	// ErrTornRecord reports a record cut short by the end of its file, as a
	// crash in the middle of a write leaves it.
	ErrTornRecord = errors.New("wal torn record")
)

// Record is one decoded WAL entry. Payload aliases the reader's buffer and is
// only valid until the next read.
type Record struct {
	Header  schema.EventHeader
	Payload []byte
}

// ReaderOptions controls record decoding.
type ReaderOptions struct {
	DisableChecksum bool
	MaxPayloadSize  int
}

// Reader decodes audit WAL records sequentially.
type Reader struct {
	src    *bufio.Reader
	opts   ReaderOptions
	head   [recordHeaderSize]byte
	tail   [recordChecksumSize]byte
	buf    []byte
	offset int64
}

// NewReader wraps an io.Reader with WAL decoding.
func NewReader(r io.Reader, opts ReaderOptions) *Reader {
	return &Reader{src: bufio.NewReader(r), opts: opts}
}

// Offset returns the size of the complete records read so far.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Next returns the next record header and payload, or io.EOF at a clean end.
func (r *Reader) Next() (schema.EventHeader, []byte, error) {
	rec, err := r.read()
	return rec.Header, rec.Payload, err
}

// Records iterates until the end of the input. A decoding error is yielded
// once and ends the iteration.
func (r *Reader) Records() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for {
			rec, err := r.read()
			if err == io.EOF {
				return
			}
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

func (r *Reader) read() (Record, error) {
	if err := r.fill(r.head[:], true); err != nil {
		return Record{}, err
	}
	header, size, err := decodeRecordHeader(r.head[:])
	if err != nil {
		return Record{}, err
	}
	if r.opts.MaxPayloadSize > 0 && int64(size) > int64(r.opts.MaxPayloadSize) {
		return Record{}, ErrPayloadTooLarge
	}

	r.buf = slices.Grow(r.buf[:0], int(size))[:size]
	if err := r.fill(r.buf, false); err != nil {
		return Record{}, err
	}
	if err := r.fill(r.tail[:], false); err != nil {
		return Record{}, err
	}
	if !r.opts.DisableChecksum && binary.LittleEndian.Uint32(r.tail[:]) != checksum(r.head[:], r.buf) {
		return Record{}, ErrChecksumMismatch
	}

	r.offset += int64(recordHeaderSize) + int64(size) + recordChecksumSize
	return Record{Header: header, Payload: r.buf}, nil
}

// fill reads exactly len(dst) bytes. Running out of input is only a clean end
// at a record boundary.
func (r *Reader) fill(dst []byte, boundary bool) error {
	_, err := io.ReadFull(r.src, dst)
	switch {
	case err == nil:
		return nil
	case err == io.EOF && boundary:
		return io.EOF
	case err == io.EOF || err == io.ErrUnexpectedEOF:
		return fmt.Errorf("%w at offset %d", ErrTornRecord, r.offset)
	default:
		return err
	}
}
