package persistence

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/outofforest/nvstore/blocks"
	"github.com/outofforest/nvstore/blocks/home"
	"github.com/outofforest/nvstore/pkg/memdev"
)

var errTransport = errors.New("bus error")

// stuckDev reports one bit stuck high inside the given range.
type stuckDev struct {
	*memdev.MemDev
	from, to uint32
}

func (d stuckDev) ReadAt(addr uint32, p []byte) error {
	if err := d.MemDev.ReadAt(addr, p); err != nil {
		return err
	}
	for i := range p {
		if a := addr + uint32(i); a >= d.from && a < d.to {
			p[i] |= 0x01
		}
	}
	return nil
}

func TestFormatBlankDevice(t *testing.T) {
	requireT := require.New(t)

	dev := memdev.New(devSize, pageSize)
	d := newDirectory(t, dev, testConfig())

	status, err := d.Load()
	requireT.NoError(err)
	requireT.Equal(Blank, status)

	report, err := d.Format(false)
	requireT.NoError(err)
	requireT.NoError(report.Err())
	requireT.Equal(blocks.AllValid, report.Home.Valid)
	requireT.Equal(Trusted, d.Status())

	for _, id := range blocks.AllPartitions {
		requireT.True(d.Valid(id))
	}

	// Every partition is left erased.
	requireT.True(blocks.IsErased(dev.Bytes()[home.Size:]))

	status, err = newDirectory(t, dev, testConfig()).Load()
	requireT.NoError(err)
	requireT.Equal(Trusted, status)
}

func TestFormatRefusesFormattedDevice(t *testing.T) {
	requireT := require.New(t)

	d := newDirectory(t, formatted(t), testConfig())
	_, err := d.Format(false)
	requireT.ErrorIs(err, ErrAlreadyFormatted)

	_, err = d.Format(true)
	requireT.NoError(err)
}

func TestFormatRandomSerial(t *testing.T) {
	requireT := require.New(t)

	cfg := testConfig()
	cfg.Serial = 0

	report, err := newDirectory(t, memdev.New(devSize, pageSize), cfg).Format(false)
	requireT.NoError(err)
	requireT.NotZero(report.Home.Serial)
}

func TestFormatPartitionBeyondDevice(t *testing.T) {
	requireT := require.New(t)

	cfg := testConfig()
	cfg.Layout[blocks.LogPartition] = blocks.Extent{Base: 31488, Length: 2000}

	dev := memdev.New(devSize, pageSize)
	d := newDirectory(t, dev, cfg)
	report, err := d.Format(false)
	requireT.NoError(err)
	requireT.Error(report.Err())
	requireT.Error(report.Failures[blocks.LogPartition])
	requireT.NoError(report.Failures[blocks.BootPartition])

	requireT.False(d.Valid(blocks.LogPartition))
	requireT.True(d.Valid(blocks.TruckIDPartition))
	requireT.Equal(StatusLayoutRejected, d.Home().Status)

	_, err = d.Resolve(blocks.LogPartition)
	requireT.ErrorIs(err, blocks.ErrNotTrusted)
}

func TestFormatRejectsOverlappingPartition(t *testing.T) {
	requireT := require.New(t)

	cfg := testConfig()
	cfg.Layout[blocks.BypassKeyPartition] = blocks.Extent{Base: 900, Length: 256}

	dev := memdev.New(devSize, pageSize)
	d := newDirectory(t, dev, cfg)
	report, err := d.Format(false)
	requireT.NoError(err)
	requireT.Error(report.Failures[blocks.BypassKeyPartition])
	requireT.NoError(report.Failures[blocks.SystemParametersPartition])
	requireT.Equal(StatusLayoutRejected, d.Home().Status)

	requireT.True(d.Valid(blocks.SystemParametersPartition))
	requireT.False(d.Valid(blocks.BypassKeyPartition))

	// Rejected partition is never touched, so sysparams keeps the erased pattern written by its verification.
	for _, b := range dev.Bytes()[900:1024] {
		requireT.Equal(blocks.Erased, b)
	}
}

func TestFormatVerificationFailure(t *testing.T) {
	requireT := require.New(t)

	dev := stuckDev{MemDev: memdev.New(devSize, pageSize), from: 300, to: 301}
	d := newDirectory(t, dev, testConfig())

	report, err := d.Format(false)
	requireT.NoError(err)
	requireT.ErrorIs(report.Failures[blocks.CrashPartition], ErrVerification)
	requireT.Equal(StatusPartitionFailed, report.Home.Status)

	for _, id := range blocks.AllPartitions {
		requireT.Equal(id != blocks.CrashPartition, d.Valid(id), id.String())
	}
}

func TestFormatPartitionTransportFailure(t *testing.T) {
	requireT := require.New(t)

	dev := memdev.New(devSize, pageSize)
	dev.Fault = func(op memdev.Op, addr uint32, n int) error {
		if op == memdev.WriteOp && addr >= 1024 && addr < 1280 {
			return errTransport
		}
		return nil
	}
	d := newDirectory(t, dev, testConfig())

	report, err := d.Format(false)
	requireT.NoError(err)
	requireT.ErrorIs(report.Failures[blocks.BypassKeyPartition], errTransport)
	requireT.False(d.Valid(blocks.BypassKeyPartition))
	requireT.True(d.Valid(blocks.SystemParametersPartition))
}

func TestFormatHomeWriteFailure(t *testing.T) {
	requireT := require.New(t)

	dev := memdev.New(devSize, pageSize)
	dev.Fault = func(op memdev.Op, addr uint32, n int) error {
		if op == memdev.WriteOp && addr < home.Size {
			return errTransport
		}
		return nil
	}
	d := newDirectory(t, dev, testConfig())

	_, err := d.Format(false)
	requireT.ErrorIs(err, ErrHomeWrite)
	requireT.ErrorIs(err, errTransport)
	requireT.Equal(Unloaded, d.Status())
	_, err = d.Resolve(blocks.BootPartition)
	requireT.ErrorIs(err, blocks.ErrNotTrusted)
}
