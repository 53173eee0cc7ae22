package event

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/nvstore/blocks"
)

func TestEntryLayout(t *testing.T) {
	requireT := require.New(t)

	requireT.Equal(Size, binary.Size(Block{}))

	b := Block{Seq: 7, Time: 1700000000, Code: CodeFormat, Arg: [4]byte{1, 2, 3, 4}}
	b.Seal(blocks.DefaultCRC16Seed)
	requireT.True(b.Verify(blocks.DefaultCRC16Seed))

	decoded := Unmarshal(b.Marshal())
	requireT.Equal(b, decoded)

	decoded.Arg[0]++
	requireT.False(decoded.Verify(blocks.DefaultCRC16Seed))
}

func TestCodeNames(t *testing.T) {
	requireT := require.New(t)

	requireT.Equal("format", CodeFormat.String())
	requireT.Equal("user(2)", (CodeUser + 2).String())
	requireT.Equal("code(99)", Code(99).String())
}
