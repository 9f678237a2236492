package recorder

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultSegmentMaxBytes int64 = 64 << 20
	defaultQueueSize             = 1024
	defaultBufferSize            = 64 * 1024
	defaultFilePrefix            = "audit"
	segmentExt                   = ".wal"
)

var defaultSegmentMaxDuration = time.Hour

// Config controls audit WAL writer behavior.
type Config struct {
	Dir                string        `json:"dir"`
	SegmentMaxBytes    int64         `json:"segmentMaxBytes"`
	SegmentMaxDuration time.Duration `json:"segmentMaxDuration"`
	QueueSize          int           `json:"queueSize"`
	BufferSize         int           `json:"bufferSize"`
	FilePrefix         string        `json:"filePrefix"`
	FlushInterval      time.Duration `json:"flushInterval"`
	SyncInterval       time.Duration `json:"syncInterval"`
	CopyPayload        bool          `json:"copyPayload"`
}

// DefaultConfig returns a baseline configuration for the audit WAL writer.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:                dir,
		SegmentMaxBytes:    defaultSegmentMaxBytes,
		SegmentMaxDuration: defaultSegmentMaxDuration,
		QueueSize:          defaultQueueSize,
		BufferSize:         defaultBufferSize,
		FilePrefix:         defaultFilePrefix,
	}
}

// WithDefaults fills zero fields with the default values.
func (c Config) WithDefaults() Config {
	if c.SegmentMaxBytes == 0 {
		c.SegmentMaxBytes = defaultSegmentMaxBytes
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.BufferSize == 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.FilePrefix == "" {
		c.FilePrefix = defaultFilePrefix
	}
	if c.SegmentMaxDuration == 0 {
		c.SegmentMaxDuration = defaultSegmentMaxDuration
	}
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	var problem string
	switch {
	case c.Dir == "":
		problem = "Dir is empty"
	case c.FilePrefix == "":
		problem = "FilePrefix is empty"
	case strings.ContainsAny(c.FilePrefix, `/\`):
		problem = "FilePrefix must not contain a path separator"
	case c.SegmentMaxBytes <= 0:
		problem = "SegmentMaxBytes must be > 0"
	case c.SegmentMaxDuration < 0:
		problem = "SegmentMaxDuration must be >= 0"
	case c.QueueSize <= 0:
		problem = "QueueSize must be > 0"
	case c.BufferSize <= 0:
		problem = "BufferSize must be > 0"
	case c.FlushInterval < 0:
		problem = "FlushInterval must be >= 0"
	case c.SyncInterval < 0:
		problem = "SyncInterval must be >= 0"
	default:
		return nil
	}
	return fmt.Errorf("invalid recorder config: %s", problem)
}
