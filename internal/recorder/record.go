package recorder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"

	"tradex/internal/schema"
)

const (
	recordVersion      uint16 = 1
	recordHeaderSize          = 64
	recordChecksumSize        = 4
)

var (
	recordMagic = [4]byte{'T', 'X', 'A', '1'}
	crcTable    = crc32.MakeTable(crc32.Castagnoli)
)

var (
	ErrInvalidMagic            = errors.New("wal invalid magic")
	ErrUnsupportedRecordVer    = errors.New("wal unsupported record version")
	ErrInvalidRecordHeaderSize = errors.New("wal invalid header size")
)

// Record header layout, little endian:
//
//	[0:4]   magic
//	[4:6]   record version
//	[6:8]   header size
//	[8:10]  event type
//	[10:12] schema version
//	[12:16] payload length
//	[16:24] seq
//	[24:32] block
//	[32:40] timestamp
//	[40:60] emitter
//	[60:64] reserved
func encodeHeader(dst []byte, header schema.EventHeader, payloadLen int) {
	_ = dst[recordHeaderSize-1]
	copy(dst[0:4], recordMagic[:])
	binary.LittleEndian.PutUint16(dst[4:6], recordVersion)
	binary.LittleEndian.PutUint16(dst[6:8], uint16(recordHeaderSize))
	binary.LittleEndian.PutUint16(dst[8:10], uint16(header.Type))
	binary.LittleEndian.PutUint16(dst[10:12], header.Version)
	binary.LittleEndian.PutUint32(dst[12:16], uint32(payloadLen))
	binary.LittleEndian.PutUint64(dst[16:24], header.Seq)
	binary.LittleEndian.PutUint64(dst[24:32], header.Block)
	binary.LittleEndian.PutUint64(dst[32:40], uint64(header.Timestamp))
	copy(dst[40:60], header.Emitter[:])
	binary.LittleEndian.PutUint32(dst[60:64], 0)
}

func checksum(header []byte, payload []byte) uint32 {
	crc := crc32.Update(0, crcTable, header)
	return crc32.Update(crc, crcTable, payload)
}

func decodeRecordHeader(src []byte) (schema.EventHeader, uint32, error) {
	if len(src) < recordHeaderSize {
		return schema.EventHeader{}, 0, ErrInvalidRecordHeaderSize
	}
	if !bytes.Equal(src[0:4], recordMagic[:]) {
		return schema.EventHeader{}, 0, ErrInvalidMagic
	}
	if ver := binary.LittleEndian.Uint16(src[4:6]); ver != recordVersion {
		return schema.EventHeader{}, 0, ErrUnsupportedRecordVer
	}
	if headerSize := binary.LittleEndian.Uint16(src[6:8]); headerSize != recordHeaderSize {
		return schema.EventHeader{}, 0, ErrInvalidRecordHeaderSize
	}
	payloadLen := binary.LittleEndian.Uint32(src[12:16])
	h := schema.EventHeader{
		Type:      schema.EventType(binary.LittleEndian.Uint16(src[8:10])),
		Version:   binary.LittleEndian.Uint16(src[10:12]),
		Seq:       binary.LittleEndian.Uint64(src[16:24]),
		Block:     binary.LittleEndian.Uint64(src[24:32]),
		Timestamp: int64(binary.LittleEndian.Uint64(src[32:40])),
	}
	copy(h.Emitter[:], src[40:60])
	return h, payloadLen, nil
}
