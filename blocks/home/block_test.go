package home

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outofforest/nvstore/blocks"
)

func TestBlockSize(t *testing.T) {
	assert.Equal(t, Size, binary.Size(Block{}))
	assert.Len(t, Block{}.Marshal(), Size)
}

func TestMarshalRoundTrip(t *testing.T) {
	requireT := require.New(t)

	b := Block{
		Magic:      Magic,
		Version:    blocks.Version{Major: 3, Minor: 1},
		Valid:      blocks.AllValid,
		Serial:     0x01020304,
		Created:    1700000000,
		DeviceSize: 32 * 1024,
	}
	b.Partitions[blocks.BypassKeyPartition] = blocks.Extent{Base: 1024, Length: 256}
	b.Seal(blocks.DefaultCRC16Seed)

	raw := b.Marshal()
	// Little-endian layout is part of the on-device format.
	requireT.Equal([]byte{0x5A, 0xC3, 3, 1, 0x3F, 0x00, 0x04, 0x03, 0x02, 0x01}, raw[:10])
	requireT.Equal(b.Checksum, binary.LittleEndian.Uint16(raw[Size-2:]))

	decoded, err := Unmarshal(raw)
	requireT.NoError(err)
	requireT.Equal(b, decoded)
	requireT.NoError(decoded.VerifyChecksum(blocks.DefaultCRC16Seed))
	requireT.True(decoded.IsValid(blocks.TruckIDPartition))
	requireT.Equal(blocks.Extent{Base: 1024, Length: 256}, decoded.Extent(blocks.BypassKeyPartition))
}

func TestChecksumCoversEveryField(t *testing.T) {
	requireT := require.New(t)

	b := Block{Magic: Magic}
	b.Seal(blocks.DefaultCRC16Seed)

	raw := b.Marshal()
	for i := 0; i < Size-2; i++ {
		corrupted := bytes.Clone(raw)
		corrupted[i] ^= 0x01
		decoded, err := Unmarshal(corrupted)
		requireT.NoError(err)
		requireT.ErrorIs(decoded.VerifyChecksum(blocks.DefaultCRC16Seed), blocks.ErrChecksum, "byte %d", i)
	}
}

func TestErasedBlock(t *testing.T) {
	requireT := require.New(t)

	decoded, err := Unmarshal(bytes.Repeat([]byte{blocks.Erased}, Size))
	requireT.NoError(err)
	requireT.True(decoded.MagicErased())

	_, err = Unmarshal(make([]byte, Size-1))
	requireT.Error(err)
}
