package identity

import (
	"github.com/pkg/errors"

	"github.com/outofforest/nvstore/blocks"
)

// Size is the size of the stored record. Byte 0 of the logical value is always zero, so the
// stored byte 0 carries CRC-8 of bytes 1..5 instead.
const Size = 6

// Value is the truck identity.
type Value [Size]byte

// Codec encodes truck identity records.
type Codec struct{}

// SlotSize returns the size of the stored record.
func (Codec) SlotSize() int {
	return Size
}

// Encode writes the value into slot, replacing byte 0 with the checksum.
func (Codec) Encode(v Value, slot []byte) error {
	if v[0] != 0 {
		return errors.Wrapf(blocks.ErrDataError, "identity %x has non-zero byte 0", v[:])
	}
	slot[0] = blocks.CRC8(v[1:])
	copy(slot[1:Size], v[1:])
	return nil
}

// Decode returns the stored value with byte 0 restored to zero if its checksum verifies.
func (Codec) Decode(slot []byte) (Value, bool) {
	var v Value
	copy(v[1:], slot[1:Size])
	return v, blocks.CRC8(v[1:]) == slot[0]
}

// Matches compares the stored value bytes with v, least significant byte first.
func (Codec) Matches(slot []byte, v Value) bool {
	if v[0] != 0 {
		return false
	}
	for i := Size - 1; i > 0; i-- {
		if slot[i] != v[i] {
			return false
		}
	}
	return true
}
