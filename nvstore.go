package nvstore

import (
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/outofforest/nvstore/audit"
	"github.com/outofforest/nvstore/blocks"
	"github.com/outofforest/nvstore/blocks/event"
	"github.com/outofforest/nvstore/blocks/params"
	"github.com/outofforest/nvstore/config"
	"github.com/outofforest/nvstore/eventlog"
	"github.com/outofforest/nvstore/keystore"
	"github.com/outofforest/nvstore/pagedio"
	"github.com/outofforest/nvstore/persistence"
	"github.com/outofforest/nvstore/recordstore"
	"github.com/outofforest/nvstore/status"
	"github.com/outofforest/nvstore/sysparams"
	"github.com/outofforest/nvstore/truckstore"
)

// Option configures the engine.
type Option func(o *options)

type options struct {
	log       *zap.Logger
	clock     func() time.Time
	keepAlive func()
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithClock sets the clock used to stamp the Home Record and log entries.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithKeepAlive sets the function called between page transfers of long operations.
func WithKeepAlive(keepAlive func()) Option {
	return func(o *options) {
		o.keepAlive = keepAlive
	}
}

// Engine is the storage engine of the controller. It is not safe for concurrent use, the caller
// must own it exclusively.
type Engine struct {
	cfg config.Config
	dev pagedio.Dev
	log *zap.Logger

	dir     *persistence.Directory
	keys    *keystore.Store
	trucks  *truckstore.Store
	params  *sysparams.Params
	events  *eventlog.Log
	auditor *audit.Auditor
	status  status.Aggregator
}

// Open brings up the engine on the device. Invalid configuration is the only error, a blank, corrupted
// or unreachable store opens in degraded mode reported by Status.
func Open(dev pagedio.Dev, cfg config.Config, opts ...Option) (*Engine, error) {
	if err := config.Validate(cfg, dev.Size()); err != nil {
		return nil, err
	}

	o := options{
		log:       zap.NewNop(),
		clock:     time.Now,
		keepAlive: func() {},
	}
	for _, opt := range opts {
		opt(&o)
	}

	pager := pagedio.New(dev, pagedio.WithKeepAlive(o.keepAlive), pagedio.WithLogger(o.log.Named("pagedio")))
	dir := persistence.New(pager, cfg.Directory(),
		persistence.WithClock(o.clock),
		persistence.WithLogger(o.log.Named("directory")),
	)

	e := &Engine{
		cfg: cfg,
		dev: dev,
		log: o.log,
		dir: dir,
		keys: keystore.New(dir, cfg.CRCSeed, uint32(cfg.Stores.BypassKeys),
			recordstore.WithLogger(o.log.Named("keys"))),
		trucks: truckstore.New(dir, uint32(cfg.Stores.TruckIDs),
			recordstore.WithBatchSize(cfg.Device.PageSize),
			recordstore.WithLogger(o.log.Named("trucks"))),
		params: sysparams.New(dir, cfg.CRCSeed, sysparams.WithLogger(o.log.Named("sysparams"))),
		events: eventlog.New(dir, cfg.CRCSeed,
			eventlog.WithClock(o.clock),
			eventlog.WithLogger(o.log.Named("eventlog"))),
		auditor: audit.New(dir, enforcement(cfg.Audit), audit.WithLogger(o.log.Named("audit"))),
	}
	e.boot()
	return e, nil
}

func (e *Engine) boot() {
	s, err := e.dir.Load()
	if e.status.Observe(err) != nil {
		e.log.Error("Store is unavailable", zap.Error(err))
		return
	}

	switch {
	case s == persistence.Blank && e.cfg.AutoFormat:
		e.log.Info("Blank device detected, formatting")
		if _, err := e.Format(); err != nil {
			e.log.Error("Formatting blank device failed", zap.Error(err))
		}
		return
	case s == persistence.VersionMismatchMinor && e.cfg.AutoMigrate:
		from := e.dir.Home().Version
		if e.status.Observe(e.dir.UpdateVersion()) == nil {
			e.event(event.CodeMigrate, [4]byte{from.Major, from.Minor})
		}
	}

	e.observeDirectory()
	if !e.dir.Status().Usable() {
		e.log.Warn("Store needs format", zap.Stringer("status", e.dir.Status()))
		return
	}
	e.bringUp()
}

// bringUp loads partitions depending on the directory. Failures leave defaults in memory.
func (e *Engine) bringUp() {
	if err := e.params.Load(); err != nil {
		e.status.Observe(err)
		e.log.Warn("Running with default system parameters", zap.Error(err))
	}
	if err := e.events.Open(); err != nil {
		e.status.Observe(err)
		e.log.Warn("Event log unavailable", zap.Error(err))
	}
}

// Format formats the device and stores default system parameters. Partitions failing verification
// are reported in the report and stay unusable.
func (e *Engine) Format() (persistence.FormatReport, error) {
	report, err := e.dir.Format(true)
	if e.status.Observe(err) != nil {
		e.observeDirectory()
		return report, err
	}
	if ferr := report.Err(); ferr != nil {
		e.log.Warn("Some partitions are not usable", zap.Error(ferr))
	}

	// Everything observed before the format described the old layout.
	e.status.Clear()
	e.observeDirectory()
	e.params = sysparams.New(e.dir, e.cfg.CRCSeed, sysparams.WithLogger(e.log.Named("sysparams")))
	if e.dir.Valid(blocks.SystemParametersPartition) {
		e.status.Observe(e.params.StoreAll())
	}
	e.bringUp()
	e.event(event.CodeFormat, [4]byte{report.Home.Valid, report.Home.Status})
	return report, nil
}

// Audit runs the integrity auditor and records its findings in the status.
func (e *Engine) Audit() (audit.Report, error) {
	r, err := e.auditor.Audit()
	if e.status.Observe(err) != nil {
		return audit.Report{}, err
	}
	e.status.Raise(r.Flags)
	if !r.Passed() {
		flags := uint16(r.Flags)
		e.event(event.CodeAuditFailed, [4]byte{byte(flags), byte(flags >> 8)})
	}
	return r, nil
}

// EraseKeys removes every bypass key.
func (e *Engine) EraseKeys() error {
	if err := e.status.Observe(e.keys.EraseAll()); err != nil {
		return err
	}
	e.event(event.CodeKeysErased, [4]byte{})
	return nil
}

// EraseTrucks removes every truck identity. It takes seconds and must be called only when no truck
// is being loaded.
func (e *Engine) EraseTrucks() error {
	if err := e.status.Observe(e.trucks.EraseAll()); err != nil {
		return err
	}
	e.event(event.CodeTrucksErased, [4]byte{})
	return nil
}

// StoreParams persists one system-parameter sub-block.
func (e *Engine) StoreParams(id params.ID) error {
	if err := e.status.Observe(e.params.Store(id)); err != nil {
		return err
	}
	e.event(event.CodeParamsWritten, [4]byte{byte(id)})
	return nil
}

// Observe records the result of an operation executed directly on one of the stores.
func (e *Engine) Observe(err error) error {
	return e.status.Observe(err)
}

// Directory returns the partition directory.
func (e *Engine) Directory() *persistence.Directory {
	return e.dir
}

// Keys returns the bypass key registry.
func (e *Engine) Keys() *keystore.Store {
	return e.keys
}

// Trucks returns the truck identity registry.
func (e *Engine) Trucks() *truckstore.Store {
	return e.trucks
}

// Params returns system parameters.
func (e *Engine) Params() *sysparams.Params {
	return e.params
}

// Log returns the event log.
func (e *Engine) Log() *eventlog.Log {
	return e.events
}

// Status returns the sticky status.
func (e *Engine) Status() status.Snapshot {
	return e.status.Snapshot()
}

// StatusRegisters returns the status encoded as the ModBus register block.
func (e *Engine) StatusRegisters() []uint16 {
	return status.Encode(e.status.Snapshot())
}

// ClearStatus resets sticky flags and returns them.
func (e *Engine) ClearStatus() status.Flags {
	return e.status.Clear()
}

// Close syncs and closes the device if it supports that.
func (e *Engine) Close() error {
	if s, ok := e.dev.(interface{ Sync() error }); ok {
		if err := s.Sync(); err != nil {
			return err
		}
	}
	if c, ok := e.dev.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (e *Engine) observeDirectory() {
	h := e.dir.Home()
	e.status.ObserveDirectory(e.dir.Status(), h.Valid, h.Version)
}

// event appends to the event log. Failure is recorded in the status but does not fail the operation.
func (e *Engine) event(code event.Code, arg [4]byte) {
	if !e.dir.Valid(blocks.LogPartition) {
		return
	}
	if _, err := e.events.Append(code, arg); err != nil {
		e.status.Observe(err)
		e.log.Warn("Appending event failed", zap.Stringer("code", code), zap.Error(err))
	}
}

func enforcement(cfg config.AuditConfig) audit.Enforcement {
	var e audit.Enforcement
	e[params.GeneralID] = cfg.EnforceGeneral
	e[params.DateStampID] = cfg.EnforceDateStamp
	e[params.FiveWireID] = cfg.EnforceFiveWire
	e[params.VoltageID] = cfg.EnforceVoltage
	e[params.FactoryID] = cfg.EnforceFactory
	return e
}
