package recorder

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yanun0323/logs"
)

// segment is one open WAL file.
type segment struct {
	path     string
	file     *os.File
	buf      *bufio.Writer
	size     int64
	openedAt time.Time
}

func (s *segment) write(parts ...[]byte) error {
	for _, p := range parts {
		if len(p) == 0 {
			continue
		}
		n, err := s.buf.Write(p)
		s.size += int64(n)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *segment) sync() error {
	if err := s.buf.Flush(); err != nil {
		return err
	}
	return s.file.Sync()
}

func (s *segment) close() error {
	if err := s.sync(); err != nil {
		_ = s.file.Close()
		return err
	}
	return s.file.Close()
}

// segmentLog owns the active segment of a writer and rotates it by size and
// age. It is only used from the writer goroutine.
type segmentLog struct {
	cfg    Config
	active *segment
	lastID uint64
	head   [recordHeaderSize]byte
	tail   [recordChecksumSize]byte
}

// append writes one record, rotating first when needed. It reports the
// record size and whether a new segment was opened.
func (l *segmentLog) append(req recordRequest, now time.Time) (int64, bool, error) {
	size := int64(recordHeaderSize + len(req.payload) + recordChecksumSize)
	rotated := false
	if l.needsRotation(now, size) {
		if err := l.rotate(now); err != nil {
			return 0, false, err
		}
		rotated = true
	}

	encodeHeader(l.head[:], req.header, len(req.payload))
	binary.LittleEndian.PutUint32(l.tail[:], checksum(l.head[:], req.payload))
	if err := l.active.write(l.head[:], req.payload, l.tail[:]); err != nil {
		return 0, rotated, err
	}
	return size, rotated, nil
}

func (l *segmentLog) needsRotation(now time.Time, next int64) bool {
	s := l.active
	switch {
	case s == nil:
		return true
	case l.cfg.SegmentMaxBytes > 0 && s.size > 0 && s.size+next > l.cfg.SegmentMaxBytes:
		return true
	case l.cfg.SegmentMaxDuration > 0 && now.Sub(s.openedAt) >= l.cfg.SegmentMaxDuration:
		return true
	}
	return false
}

func (l *segmentLog) rotate(now time.Time) error {
	if err := l.close(); err != nil {
		return err
	}
	s, err := l.open(now)
	if err != nil {
		return err
	}
	l.active = s
	return nil
}

// open creates the next segment file. Names sort in creation order:
// <prefix>-<utc time>-<id>.wal.
func (l *segmentLog) open(now time.Time) (*segment, error) {
	stamp := now.Format("20060102-150405")
	for {
		l.lastID++
		path := filepath.Join(l.cfg.Dir, fmt.Sprintf("%s-%s-%06d%s", l.cfg.FilePrefix, stamp, l.lastID, segmentExt))
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		logs.Debugf("wal segment opened: %s", path)
		return &segment{
			path:     path,
			file:     file,
			buf:      bufio.NewWriterSize(file, l.cfg.BufferSize),
			openedAt: now,
		}, nil
	}
}

func (l *segmentLog) flush() error {
	if l.active == nil {
		return nil
	}
	return l.active.buf.Flush()
}

func (l *segmentLog) sync() error {
	if l.active == nil {
		return nil
	}
	return l.active.sync()
}

func (l *segmentLog) close() error {
	if l.active == nil {
		return nil
	}
	s := l.active
	l.active = nil
	return s.close()
}
