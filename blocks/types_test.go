package blocks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumCatalogue(t *testing.T) {
	assertT := assert.New(t)

	check := []byte("123456789")
	assertT.EqualValues(0x29B1, CRC16(check, DefaultCRC16Seed))
	assertT.EqualValues(0xF4, CRC8(check))
}

func TestCRC16Seed(t *testing.T) {
	assertT := assert.New(t)

	data := []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	assertT.NotEqual(CRC16(data, 0x0000), CRC16(data, DefaultCRC16Seed))

	// Feeding the first part's CRC as seed of the second part gives the CRC of the whole.
	assertT.Equal(CRC16(data, DefaultCRC16Seed), CRC16(data[3:], CRC16(data[:3], DefaultCRC16Seed)))
}

func TestVerifyCRC16(t *testing.T) {
	requireT := require.New(t)

	data := []byte{0x01, 0x02, 0x03}
	sum := CRC16(data, DefaultCRC16Seed)
	requireT.NoError(VerifyCRC16("data", data, DefaultCRC16Seed, sum))
	requireT.ErrorIs(VerifyCRC16("data", data, DefaultCRC16Seed, sum+1), ErrChecksum)
}

func TestPartitionNames(t *testing.T) {
	requireT := require.New(t)

	for _, id := range AllPartitions {
		parsed, err := ParsePartitionID(id.String())
		requireT.NoError(err)
		requireT.Equal(id, parsed)
	}

	_, err := ParsePartitionID("home")
	requireT.Error(err)
	requireT.False(PartitionID(NumPartitions).Known())
	requireT.EqualValues(0x3F, AllValid)
	requireT.EqualValues(0x10, BypassKeyPartition.Bit())
}

func TestExtentOverlaps(t *testing.T) {
	assertT := assert.New(t)

	a := Extent{Base: 0, Length: 10}
	assertT.True(a.Overlaps(Extent{Base: 9, Length: 1}))
	assertT.False(a.Overlaps(Extent{Base: 10, Length: 10}))
	assertT.False(a.Overlaps(Extent{Base: 5, Length: 0}))
	assertT.EqualValues(10, a.End())
}

func TestIsErased(t *testing.T) {
	assertT := assert.New(t)

	assertT.True(IsErased([]byte{0xFF, 0xFF}))
	assertT.True(IsErased(nil))
	assertT.False(IsErased([]byte{0xFF, 0xFE}))
}
