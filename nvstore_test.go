package nvstore

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/outofforest/nvstore/blocks"
	"github.com/outofforest/nvstore/blocks/event"
	"github.com/outofforest/nvstore/blocks/identity"
	"github.com/outofforest/nvstore/blocks/key"
	"github.com/outofforest/nvstore/blocks/params"
	"github.com/outofforest/nvstore/config"
	"github.com/outofforest/nvstore/persistence"
	"github.com/outofforest/nvstore/pkg/memdev"
	"github.com/outofforest/nvstore/status"
)

const devSize = 32 * 1024

var now = time.Date(2024, 7, 1, 6, 30, 0, 0, time.UTC)

func open(t *testing.T, dev *memdev.MemDev, cfg config.Config, opts ...Option) *Engine {
	opts = append([]Option{
		WithLogger(zaptest.NewLogger(t)),
		WithClock(func() time.Time { return now }),
	}, opts...)
	e, err := Open(dev, cfg, opts...)
	require.NoError(t, err)
	return e
}

func codes(t *testing.T, e *Engine) []event.Code {
	entries, err := e.Log().Entries()
	require.NoError(t, err)
	result := make([]event.Code, 0, len(entries))
	for _, entry := range entries {
		result = append(result, entry.Code)
	}
	return result
}

func TestFirstBootFormatsBlankDevice(t *testing.T) {
	requireT := require.New(t)

	dev := memdev.New(devSize, 128)
	e := open(t, dev, config.Default())

	requireT.Equal(persistence.Trusted, e.Directory().Status())
	requireT.Equal(blocks.AllValid, e.Directory().Home().Valid)
	requireT.EqualValues(now.Unix(), e.Directory().Home().Created)
	for _, id := range blocks.AllPartitions {
		requireT.True(e.Directory().Valid(id), id.String())
	}
	for _, id := range params.AllSubBlocks {
		requireT.True(e.Params().Valid(id), id.String())
	}

	s := e.Status()
	requireT.Equal(status.HealthOK, s.Health)
	requireT.Zero(s.Flags)
	requireT.Equal([]event.Code{event.CodeFormat}, codes(t, e))

	r, err := e.Audit()
	requireT.NoError(err)
	requireT.True(r.Passed())

	// Reopening the formatted device does not format it again.
	e2 := open(t, dev, config.Default())
	requireT.Equal(persistence.Trusted, e2.Directory().Status())
	requireT.Equal([]event.Code{event.CodeFormat}, codes(t, e2))
}

func TestBlankDeviceWithoutAutoFormat(t *testing.T) {
	requireT := require.New(t)

	cfg := config.Default()
	cfg.AutoFormat = false

	dev := memdev.New(devSize, 128)
	e := open(t, dev, cfg)

	requireT.Equal(persistence.Blank, e.Directory().Status())
	requireT.Equal(status.HealthNeedsFormat, e.Status().Health)
	requireT.Equal(1, dev.Reads)
	requireT.Zero(dev.Writes)

	dev.ResetCounters()
	_, err := e.Keys().EnsureKey(key.Value{1})
	requireT.ErrorIs(e.Observe(err), blocks.ErrNotTrusted)
	_, err = e.Trucks().Get(0)
	requireT.ErrorIs(err, blocks.ErrNotTrusted)
	requireT.ErrorIs(e.EraseTrucks(), blocks.ErrNotTrusted)
	requireT.Zero(dev.Transfers())

	report, err := e.Format()
	requireT.NoError(err)
	requireT.NoError(report.Err())
	requireT.Equal(persistence.Trusted, e.Directory().Status())
	requireT.Equal(status.HealthOK, e.Status().Health)

	_, err = e.Keys().EnsureKey(key.Value{1})
	requireT.NoError(err)
}

func TestMinorVersionMigration(t *testing.T) {
	requireT := require.New(t)

	old := config.Default()
	old.Version.Minor = 0
	dev := memdev.New(devSize, 128)
	open(t, dev, old)

	cfg := config.Default()
	cfg.AutoMigrate = false
	e := open(t, dev, cfg)
	requireT.Equal(persistence.VersionMismatchMinor, e.Directory().Status())
	requireT.True(e.Status().Flags.Has(status.FlagVersionStale))
	requireT.Equal(status.HealthDegraded, e.Status().Health)

	// Stale store is usable.
	_, err := e.Trucks().EnsureTruck(identity.Value{0, 1, 2, 3, 4, 5})
	requireT.NoError(err)

	e = open(t, dev, config.Default())
	requireT.Equal(persistence.Trusted, e.Directory().Status())
	requireT.Equal(status.HealthOK, e.Status().Health)
	requireT.Equal([]event.Code{event.CodeFormat, event.CodeMigrate}, codes(t, e))

	authorized, err := e.Trucks().Authorized(identity.Value{0, 1, 2, 3, 4, 5})
	requireT.NoError(err)
	requireT.True(authorized)
}

func TestMajorVersionMismatchIsNotTouched(t *testing.T) {
	requireT := require.New(t)

	dev := memdev.New(devSize, 128)
	open(t, dev, config.Default())
	image := append([]byte{}, dev.Bytes()...)

	cfg := config.Default()
	cfg.Version.Major++
	dev.ResetCounters()
	e := open(t, dev, cfg)

	requireT.Equal(persistence.VersionMismatchMajor, e.Directory().Status())
	requireT.Equal(status.HealthNeedsFormat, e.Status().Health)
	requireT.Zero(dev.Writes)
	requireT.Equal(image, dev.Bytes())
}

func TestCorruptHomeRecord(t *testing.T) {
	requireT := require.New(t)

	dev := memdev.New(devSize, 128)
	open(t, dev, config.Default())
	dev.Bytes()[20] ^= 0x01

	dev.ResetCounters()
	e := open(t, dev, config.Default())
	requireT.Equal(persistence.ChecksumFailed, e.Directory().Status())
	requireT.True(e.Status().Flags.Has(status.FlagHomeChecksum | status.FlagNotTrusted))
	requireT.Zero(dev.Writes)

	regs := e.StatusRegisters()
	requireT.Equal(status.HealthNeedsFormat, regs[status.RegHealth])
}

func TestUnreachableDevice(t *testing.T) {
	requireT := require.New(t)

	dev := memdev.New(devSize, 128)
	dev.Fault = func(op memdev.Op, addr uint32, n int) error {
		return errors.New("no ack")
	}

	e := open(t, dev, config.Default())
	requireT.Equal(persistence.Unloaded, e.Directory().Status())
	s := e.Status()
	requireT.Equal(status.HealthError, s.Health)
	requireT.Equal(status.CodeTransport, s.LastError)
}

func TestInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Layout.Log.Length = 4096

	_, err := Open(memdev.New(devSize, 128), cfg)
	require.Error(t, err)
}

func TestStoreOnSmallerRecordedPartition(t *testing.T) {
	requireT := require.New(t)

	small := config.Default()
	small.Layout.TruckID.Length = 600
	small.Stores.TruckIDs = 100
	dev := memdev.New(devSize, 128)
	e := open(t, dev, small)
	_, err := e.Trucks().EnsureTruck(identity.Value{0, 1, 2, 3, 4, 5})
	requireT.NoError(err)

	e = open(t, dev, config.Default())
	requireT.Equal(persistence.Trusted, e.Directory().Status())

	authorized, err := e.Trucks().Authorized(identity.Value{0, 1, 2, 3, 4, 5})
	requireT.NoError(err)
	requireT.True(authorized)

	n, err := e.Trucks().Count()
	requireT.NoError(err)
	requireT.EqualValues(1, n)
	requireT.Zero(e.Status().Flags)
}

func TestAuditFailureIsRecorded(t *testing.T) {
	requireT := require.New(t)

	dev := memdev.New(devSize, 128)
	e := open(t, dev, config.Default())

	dev.Bytes()[512+params.Offset(params.GeneralID)+3] ^= 0x20

	r, err := e.Audit()
	requireT.NoError(err)
	requireT.False(r.Passed())
	requireT.True(e.Status().Flags.Has(status.FlagGeneral | status.FlagAuditFailed))
	requireT.Equal([]event.Code{event.CodeFormat, event.CodeAuditFailed}, codes(t, e))

	requireT.Equal(status.FlagGeneral|status.FlagAuditFailed, e.ClearStatus())
	requireT.Equal(status.HealthOK, e.Status().Health)
}

func TestOperationsAreLogged(t *testing.T) {
	requireT := require.New(t)

	e := open(t, memdev.New(devSize, 128), config.Default())

	_, err := e.Keys().EnsureKey(key.Value{0xAA})
	requireT.NoError(err)
	requireT.NoError(e.EraseKeys())

	g := e.Params().General()
	g.TruckIDRequired = 1
	e.Params().SetGeneral(g)
	requireT.NoError(e.StoreParams(params.GeneralID))
	requireT.NoError(e.EraseTrucks())

	requireT.Equal([]event.Code{
		event.CodeFormat,
		event.CodeKeysErased,
		event.CodeParamsWritten,
		event.CodeTrucksErased,
	}, codes(t, e))

	count, err := e.Keys().Count()
	requireT.NoError(err)
	requireT.Zero(count)
}

func TestKeepAliveDuringFormat(t *testing.T) {
	requireT := require.New(t)

	var ticks int
	open(t, memdev.New(devSize, 128), config.Default(), WithKeepAlive(func() { ticks++ }))
	requireT.Greater(ticks, 200)
}
