// Package auditstore persists committed audit events into PostgreSQL so they
// can be queried next to the write-ahead log.
package auditstore

import (
	"context"
	"encoding/hex"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yanun0323/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradex/internal/bus"
	"tradex/internal/codec"
	"tradex/internal/schema"
)

// Record is one audit event row.
type Record struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	Seq       uint64    `gorm:"uniqueIndex;not null"`
	Type      string    `gorm:"size:32;index;not null"`
	TypeCode  uint16    `gorm:"not null"`
	Version   uint16    `gorm:"not null"`
	Block     uint64    `gorm:"index;not null"`
	BlockTime time.Time `gorm:"not null"`
	Emitter   string    `gorm:"size:42;index;not null"`
	// Topic1 is the first indexed argument, e.g. a timelock entry hash.
	Topic1    string `gorm:"size:66;index"`
	Topics    string `gorm:"type:text"`
	Data      []byte
	CreatedAt time.Time
}

func (Record) TableName() string {
	return "audit_events"
}

// FromEvent flattens a bus event into a row.
func FromEvent(e bus.Event) (Record, error) {
	topics, data, err := codec.DecodeLogPayload(e.Payload)
	if err != nil {
		return Record{}, errors.Wrap(err, "decode audit payload").With("seq", e.Header.Seq)
	}
	hexTopics := make([]string, len(topics))
	for i, t := range topics {
		hexTopics[i] = t.Hex()
	}
	r := Record{
		Seq:       e.Header.Seq,
		Type:      e.Header.Type.String(),
		TypeCode:  uint16(e.Header.Type),
		Version:   e.Header.Version,
		Block:     e.Header.Block,
		BlockTime: time.Unix(e.Header.Timestamp, 0).UTC(),
		Emitter:   common.Address(e.Header.Emitter).Hex(),
		Topics:    strings.Join(hexTopics, ","),
		Data:      data,
	}
	if len(topics) > 1 {
		r.Topic1 = topics[1].Hex()
	}
	return r, nil
}

// Event rebuilds the bus event a row was created from.
func (r Record) Event() (bus.Event, error) {
	var topics []common.Hash
	if r.Topics != "" {
		for _, t := range strings.Split(r.Topics, ",") {
			raw, err := hex.DecodeString(strings.TrimPrefix(t, "0x"))
			if err != nil || len(raw) != common.HashLength {
				return bus.Event{}, errors.Errorf("invalid topic %q in row %d", t, r.Seq)
			}
			topics = append(topics, common.BytesToHash(raw))
		}
	}
	header := schema.EventHeader{
		Type:      schema.EventType(r.TypeCode),
		Version:   r.Version,
		Seq:       r.Seq,
		Block:     r.Block,
		Timestamp: r.BlockTime.Unix(),
		Emitter:   common.HexToAddress(r.Emitter),
	}
	return bus.Event{Header: header, Payload: codec.EncodeLogPayload(nil, topics, r.Data)}, nil
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	Type    schema.EventType
	Emitter common.Address
	FromSeq uint64
	Limit   int
}

// Store reads and writes audit rows.
type Store struct {
	db *gorm.DB
}

// New returns a store on db.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the audit table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Record{}); err != nil {
		return errors.Wrap(err, "migrate audit_events")
	}
	return nil
}

// Insert writes rows, skipping sequence numbers already stored so that a
// replayed log can be inserted again.
func (s *Store) Insert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "seq"}}, DoNothing: true}).
		CreateInBatches(records, 256).Error
	if err != nil {
		return errors.Wrap(err, "insert audit events").With("count", len(records))
	}
	return nil
}

// List returns rows matching f in sequence order.
func (s *Store) List(ctx context.Context, f Filter) ([]Record, error) {
	q := s.db.WithContext(ctx).Model(&Record{}).Order("seq asc")
	if f.Type != schema.EventUnknown {
		q = q.Where("type_code = ?", uint16(f.Type))
	}
	if f.Emitter != (common.Address{}) {
		q = q.Where("emitter = ?", f.Emitter.Hex())
	}
	if f.FromSeq > 0 {
		q = q.Where("seq >= ?", f.FromSeq)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var out []Record
	if err := q.Find(&out).Error; err != nil {
		return nil, errors.Wrap(err, "list audit events")
	}
	return out, nil
}

// LastSeq returns the highest stored sequence number, or zero.
func (s *Store) LastSeq(ctx context.Context) (uint64, error) {
	var last uint64
	err := s.db.WithContext(ctx).Model(&Record{}).Select("COALESCE(MAX(seq), 0)").Scan(&last).Error
	if err != nil {
		return 0, errors.Wrap(err, "query last audit seq")
	}
	return last, nil
}
