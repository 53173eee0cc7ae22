package recordstore

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/outofforest/nvstore/blocks"
)

// Codec converts values to and from their stored slot representation.
type Codec[V any] interface {
	// SlotSize returns the size of the stored record.
	SlotSize() int
	// Encode writes v with its integrity field into slot. It must not modify v.
	Encode(v V, slot []byte) error
	// Decode returns the stored value and whether its integrity field verifies.
	Decode(slot []byte) (V, bool)
	// Matches compares stored value bytes with v, without verifying the integrity field.
	Matches(slot []byte, v V) bool
}

// Partitions gives access to partition contents.
type Partitions interface {
	Resolve(id blocks.PartitionID) (blocks.Extent, error)
	ReadPartition(id blocks.PartitionID, offset uint32, p []byte) error
	WritePartition(id blocks.PartitionID, offset uint32, p []byte) error
	FillPartition(id blocks.PartitionID, offset, length uint32, value byte) error
}

// Store is an array of fixed-size checksum-protected records stored in one partition.
type Store[V any] struct {
	parts     Partitions
	partition blocks.PartitionID
	codec     Codec[V]
	capacity  uint32
	slotSize  uint32
	batch     uint32
	log       *zap.Logger
}

// Option configures the store.
type Option func(o *options)

type options struct {
	batchSize uint32
	log       *zap.Logger
}

// WithBatchSize sets the number of bytes read at once by scans.
func WithBatchSize(size uint32) Option {
	return func(o *options) {
		o.batchSize = size
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// DefaultBatchSize is the number of bytes read at once by scans.
const DefaultBatchSize = 128

// New returns new record store keeping capacity records in the partition.
func New[V any](parts Partitions, partition blocks.PartitionID, codec Codec[V], capacity uint32,
	opts ...Option,
) *Store[V] {
	o := options{
		batchSize: DefaultBatchSize,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	slotSize := uint32(codec.SlotSize())
	batch := o.batchSize / slotSize
	if batch == 0 {
		batch = 1
	}

	return &Store[V]{
		parts:     parts,
		partition: partition,
		codec:     codec,
		capacity:  capacity,
		slotSize:  slotSize,
		batch:     batch,
		log:       o.log.With(zap.Stringer("partition", partition)),
	}
}

// Capacity returns the configured number of slots.
func (s *Store[V]) Capacity() uint32 {
	return s.capacity
}

// Slots returns the number of usable slots: the configured capacity limited to what fits the
// partition recorded in the Home Record.
func (s *Store[V]) Slots() (uint32, error) {
	e, err := s.parts.Resolve(s.partition)
	if err != nil {
		return 0, err
	}
	return min(s.capacity, e.Length/s.slotSize), nil
}

// FindEmpty returns the first slot which has never been written, or has been deleted.
// A slot is empty only if all its bytes, integrity field included, are erased.
func (s *Store[V]) FindEmpty() (uint32, error) {
	index, found, err := s.scan(func(index uint32, slot []byte) bool {
		return blocks.IsErased(slot)
	})
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, errors.Wrapf(blocks.ErrNotFound, "no empty slot in %s", s.partition)
	}
	return index, nil
}

// FindMatch returns the first slot storing v with valid integrity field.
// Slots whose bytes match but whose integrity field does not verify are skipped.
func (s *Store[V]) FindMatch(v V) (uint32, error) {
	index, found, err := s.scan(func(index uint32, slot []byte) bool {
		if !s.codec.Matches(slot, v) || blocks.IsErased(slot) {
			return false
		}
		if _, valid := s.codec.Decode(slot); valid {
			return true
		}
		s.log.Warn("Matching record with invalid checksum skipped", zap.Uint32("index", index))
		return false
	})
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, errors.Wrapf(blocks.ErrNotFound, "value not found in %s", s.partition)
	}
	return index, nil
}

// Get returns the value stored in the slot. Erased and corrupted slots return the zero value.
func (s *Store[V]) Get(index uint32) (V, error) {
	var zero V
	if err := s.checkRange(index, 1); err != nil {
		return zero, err
	}

	slot := make([]byte, s.slotSize)
	if err := s.parts.ReadPartition(s.partition, index*s.slotSize, slot); err != nil {
		return zero, err
	}
	return s.decode(slot), nil
}

// GetMany returns count consecutive values starting at slot start, with the same per-slot semantics as Get.
func (s *Store[V]) GetMany(start, count uint32) ([]V, error) {
	if err := s.checkRange(start, count); err != nil {
		return nil, err
	}
	if count == 0 {
		return []V{}, nil
	}

	buf := make([]byte, count*s.slotSize)
	if err := s.parts.ReadPartition(s.partition, start*s.slotSize, buf); err != nil {
		return nil, err
	}

	values := make([]V, 0, count)
	for offset := uint32(0); offset < uint32(len(buf)); offset += s.slotSize {
		values = append(values, s.decode(buf[offset:offset+s.slotSize]))
	}
	return values, nil
}

// Put stores v in the slot.
func (s *Store[V]) Put(v V, index uint32) error {
	if err := s.checkRange(index, 1); err != nil {
		return err
	}

	slot := make([]byte, s.slotSize)
	if err := s.codec.Encode(v, slot); err != nil {
		return err
	}
	return s.parts.WritePartition(s.partition, index*s.slotSize, slot)
}

// PutMany stores values in consecutive slots starting at start, using single write.
// Every value is encoded before anything is written, so invalid value leaves the device untouched.
func (s *Store[V]) PutMany(values []V, start uint32) error {
	if err := s.checkRange(start, uint32(len(values))); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}

	buf := make([]byte, uint32(len(values))*s.slotSize)
	for i, v := range values {
		offset := uint32(i) * s.slotSize
		if err := s.codec.Encode(v, buf[offset:offset+s.slotSize]); err != nil {
			return errors.Wrapf(err, "value %d", i)
		}
	}
	return s.parts.WritePartition(s.partition, start*s.slotSize, buf)
}

// Delete overwrites the slot with the erased pattern.
func (s *Store[V]) Delete(index uint32) error {
	if err := s.checkRange(index, 1); err != nil {
		return err
	}
	return s.parts.FillPartition(s.partition, index*s.slotSize, s.slotSize, blocks.Erased)
}

// EraseAll fills the whole partition with the erased pattern.
// It takes long for big partitions and must be called only when the controller is idle.
func (s *Store[V]) EraseAll() error {
	e, err := s.parts.Resolve(s.partition)
	if err != nil {
		return err
	}
	s.log.Info("Erasing all records", zap.Uint32("length", e.Length))
	return s.parts.FillPartition(s.partition, 0, e.Length, blocks.Erased)
}

// Count returns the number of slots holding a valid record.
func (s *Store[V]) Count() (uint32, error) {
	var count uint32
	_, _, err := s.scan(func(index uint32, slot []byte) bool {
		if !blocks.IsErased(slot) {
			if _, valid := s.codec.Decode(slot); valid {
				count++
			}
		}
		return false
	})
	return count, err
}

// Digest returns xxhash of all the valid records together with their indexes.
// Host compares it with the digest of its own list to detect divergence without reading every record.
func (s *Store[V]) Digest() (uint64, error) {
	d := xxhash.New()
	var index [4]byte
	_, _, err := s.scan(func(i uint32, slot []byte) bool {
		if blocks.IsErased(slot) {
			return false
		}
		if _, valid := s.codec.Decode(slot); !valid {
			return false
		}
		binary.LittleEndian.PutUint32(index[:], i)
		_, _ = d.Write(index[:])
		_, _ = d.Write(slot)
		return false
	})
	if err != nil {
		return 0, err
	}
	return d.Sum64(), nil
}

func (s *Store[V]) decode(slot []byte) V {
	var zero V
	if blocks.IsErased(slot) {
		return zero
	}
	v, valid := s.codec.Decode(slot)
	if !valid {
		return zero
	}
	return v
}

// scan reads every usable slot in batches and returns the index of the first slot accepted by fn.
func (s *Store[V]) scan(fn func(index uint32, slot []byte) bool) (uint32, bool, error) {
	slots, err := s.Slots()
	if err != nil {
		return 0, false, err
	}

	buf := make([]byte, s.batch*s.slotSize)
	for start := uint32(0); start < slots; start += s.batch {
		n := s.batch
		if slots-start < n {
			n = slots - start
		}
		chunk := buf[:n*s.slotSize]
		if err := s.parts.ReadPartition(s.partition, start*s.slotSize, chunk); err != nil {
			return 0, false, err
		}
		for i := uint32(0); i < n; i++ {
			if fn(start+i, chunk[i*s.slotSize:(i+1)*s.slotSize]) {
				return start + i, true, nil
			}
		}
	}
	return 0, false, nil
}

// checkRange verifies that slots [start, start+count) exist. The partition must be trusted too,
// so nothing is ever reported in range for an untrusted directory.
func (s *Store[V]) checkRange(start, count uint32) error {
	slots, err := s.Slots()
	if err != nil {
		return err
	}
	if uint64(start)+uint64(count) > uint64(slots) {
		return errors.Wrapf(blocks.ErrOutOfRange, "slots [%d, %d) exceed %d slots of %s",
			start, uint64(start)+uint64(count), slots, s.partition)
	}
	return nil
}
