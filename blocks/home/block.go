package home

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/outofforest/nvstore/blocks"
)

// Size is the byte size of the Home Record. It fits one device page on every supported part.
const Size = 128

// Offset is the fixed device offset of the Home Record.
const Offset uint32 = 0

// checksumOffset is the offset of the trailing CRC-16, the CRC covers every byte before it.
const checksumOffset = Size - 2

// Magic identifies a formatted device.
var Magic = [2]byte{0x5A, 0xC3}

// Block is the root record describing every partition of the device.
type Block struct {
	Magic      [2]byte
	Version    blocks.Version
	Valid      uint8
	Status     uint8
	Serial     uint32
	Created    uint32
	DeviceSize uint32
	Partitions [blocks.NumPartitions]blocks.Extent
	Reserved   [60]byte
	Checksum   uint16
}

// Extent returns the recorded location of the partition.
func (b Block) Extent(id blocks.PartitionID) blocks.Extent {
	return b.Partitions[id]
}

// IsValid reports whether the validity bit of the partition is set.
func (b Block) IsValid(id blocks.PartitionID) bool {
	return b.Valid&id.Bit() != 0
}

// Marshal encodes the block into its on-device representation.
func (b Block) Marshal() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, Size))
	// Writing a fixed-size struct to a bytes.Buffer never fails.
	_ = binary.Write(buf, binary.LittleEndian, b)
	return buf.Bytes()
}

// Unmarshal decodes the on-device representation.
func Unmarshal(p []byte) (Block, error) {
	if len(p) < Size {
		return Block{}, errors.Errorf("home record requires %d bytes, got %d", Size, len(p))
	}
	var b Block
	if err := binary.Read(bytes.NewReader(p[:Size]), binary.LittleEndian, &b); err != nil {
		return Block{}, errors.WithStack(err)
	}
	return b, nil
}

// ComputeChecksum computes CRC-16 over every byte preceding the checksum field.
func (b Block) ComputeChecksum(seed uint16) uint16 {
	return blocks.CRC16(b.Marshal()[:checksumOffset], seed)
}

// Seal stores a freshly computed checksum in the block.
func (b *Block) Seal(seed uint16) {
	b.Checksum = b.ComputeChecksum(seed)
}

// VerifyChecksum verifies the stored checksum.
func (b Block) VerifyChecksum(seed uint16) error {
	return blocks.VerifyCRC16("home record", b.Marshal()[:checksumOffset], seed, b.Checksum)
}

// MagicErased reports whether magic and version fields still hold the erased pattern.
func (b Block) MagicErased() bool {
	return b.Magic == [2]byte{blocks.Erased, blocks.Erased} &&
		b.Version == blocks.Version{Major: blocks.Erased, Minor: blocks.Erased}
}
