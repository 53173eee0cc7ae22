package key

import (
	"encoding/binary"

	"github.com/outofforest/nvstore/blocks"
)

const (
	// ValueSize is the size of the bypass key value.
	ValueSize = 6

	// Size is the size of the stored record: value followed by little-endian CRC-16 of the value.
	Size = ValueSize + 2
)

// Value is the bypass key.
type Value [ValueSize]byte

// Codec encodes bypass key records.
type Codec struct {
	Seed uint16
}

// SlotSize returns the size of the stored record.
func (Codec) SlotSize() int {
	return Size
}

// Encode writes the value and its checksum into slot.
func (c Codec) Encode(v Value, slot []byte) error {
	copy(slot, v[:])
	binary.LittleEndian.PutUint16(slot[ValueSize:], blocks.CRC16(v[:], c.Seed))
	return nil
}

// Decode returns the stored value if its checksum verifies.
func (c Codec) Decode(slot []byte) (Value, bool) {
	var v Value
	copy(v[:], slot[:ValueSize])
	return v, blocks.CRC16(v[:], c.Seed) == binary.LittleEndian.Uint16(slot[ValueSize:])
}

// Matches compares the stored value bytes with v, least significant byte first.
func (Codec) Matches(slot []byte, v Value) bool {
	for i := ValueSize - 1; i >= 0; i-- {
		if slot[i] != v[i] {
			return false
		}
	}
	return true
}
