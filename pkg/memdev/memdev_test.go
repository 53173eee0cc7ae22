package memdev

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsBlank(t *testing.T) {
	assertT := assert.New(t)

	dev := New(64, 16)
	assertT.EqualValues(64, dev.Size())
	assertT.EqualValues(16, dev.PageSize())
	for _, b := range dev.Bytes() {
		assertT.EqualValues(0xFF, b)
	}
}

func TestReadWrite(t *testing.T) {
	requireT := require.New(t)

	dev := New(64, 16)

	requireT.NoError(dev.WriteAt(17, []byte{0x01, 0x02, 0x03}))
	buf := make([]byte, 5)
	requireT.NoError(dev.ReadAt(16, buf))
	requireT.Equal([]byte{0xFF, 0x01, 0x02, 0x03, 0xFF}, buf)

	requireT.Equal(1, dev.Reads)
	requireT.Equal(1, dev.Writes)
	requireT.Equal(2, dev.Transfers())

	dev.ResetCounters()
	requireT.Zero(dev.Transfers())
}

func TestInvalidTransfers(t *testing.T) {
	requireT := require.New(t)

	dev := New(64, 16)

	requireT.Error(dev.ReadAt(0, nil))
	requireT.Error(dev.ReadAt(0, make([]byte, 17)))
	requireT.Error(dev.ReadAt(60, make([]byte, 5)))
	requireT.Error(dev.WriteAt(15, []byte{0x00, 0x00}))
	requireT.NoError(dev.WriteAt(14, []byte{0x00, 0x00}))

	// Failed calls are counted as well.
	requireT.Equal(3, dev.Reads)
	requireT.Equal(2, dev.Writes)
}

func TestFault(t *testing.T) {
	requireT := require.New(t)

	errNack := errors.New("nack")

	dev := New(64, 16)
	dev.Fault = func(op Op, addr uint32, n int) error {
		if op == WriteOp && addr >= 32 {
			return errNack
		}
		return nil
	}

	requireT.NoError(dev.WriteAt(0, []byte{0x00}))
	requireT.ErrorIs(dev.WriteAt(32, []byte{0x00}), errNack)
	requireT.EqualValues(0xFF, dev.Bytes()[32])
	requireT.NoError(dev.ReadAt(32, make([]byte, 1)))
}
