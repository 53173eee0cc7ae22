package params

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outofforest/nvstore/blocks"
)

func TestSubBlockLayout(t *testing.T) {
	assertT := assert.New(t)

	assertT.Equal([NumSubBlocks]int{32, 32, 64, 32, 64}, subBlockSizes)
	assertT.Equal([NumSubBlocks]int{0, 32, 64, 128, 160}, subBlockOffsets)
	assertT.Equal(224, Size)
	assertT.Len(Block{}.Marshal(), Size)
}

func TestSubBlocksAreIndependent(t *testing.T) {
	requireT := require.New(t)

	var b Block
	b.General.DeadmanSeconds = 30
	b.Voltage.Max[0] = 26000
	b.SealAll(blocks.DefaultCRC16Seed)

	for _, id := range AllSubBlocks {
		requireT.NoError(b.Verify(id, blocks.DefaultCRC16Seed), id.String())
	}

	// Corrupting one sub-block leaves the others intact.
	b.FiveWire.Thresholds[3]++
	for _, id := range AllSubBlocks {
		if id == FiveWireID {
			requireT.ErrorIs(b.Verify(id, blocks.DefaultCRC16Seed), blocks.ErrChecksum)
			continue
		}
		requireT.NoError(b.Verify(id, blocks.DefaultCRC16Seed), id.String())
	}
}

func TestStoredChecksumAtSubBlockEnd(t *testing.T) {
	requireT := require.New(t)

	var b Block
	b.Factory.BoardRevision = 7
	b.SealAll(blocks.DefaultCRC16Seed)

	raw := b.Marshal()
	for _, id := range AllSubBlocks {
		end := Offset(id) + SizeOf(id)
		stored := uint16(raw[end-2]) | uint16(raw[end-1])<<8
		requireT.Equal(b.StoredChecksum(id), stored, id.String())
	}

	decoded, err := Unmarshal(raw)
	requireT.NoError(err)
	requireT.Equal(b, decoded)
}
