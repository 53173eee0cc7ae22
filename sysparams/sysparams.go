package sysparams

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/outofforest/nvstore/blocks"
	"github.com/outofforest/nvstore/blocks/params"
)

// Partitions gives access to partition contents.
type Partitions interface {
	ReadPartition(id blocks.PartitionID, offset uint32, p []byte) error
	WritePartition(id blocks.PartitionID, offset uint32, p []byte) error
}

// Option configures system parameters.
type Option func(p *Params)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Params) {
		p.log = log
	}
}

// Params owns the system-parameter aggregate. Sub-blocks are reached through named accessors
// returning copies, the aggregate itself is never shared.
type Params struct {
	parts Partitions
	seed  uint16
	log   *zap.Logger

	block params.Block
	valid [params.NumSubBlocks]bool
}

// New returns system parameters holding defaults. Nothing is read until Load is called.
func New(parts Partitions, seed uint16, opts ...Option) *Params {
	p := &Params{
		parts: parts,
		seed:  seed,
		log:   zap.NewNop(),
		block: Defaults(seed),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Defaults returns the parameters of a freshly manufactured controller, every sub-block sealed.
func Defaults(seed uint16) params.Block {
	b := params.Block{
		General: params.General{
			ProbeMode:          1,
			RelayMode:          0,
			DeadmanSeconds:     300,
			BypassMinutes:      30,
			GroundFaultDelayMs: 500,
			TruckIDRequired:    0,
			ModbusAddress:      1,
			BaudCode:           3,
		},
	}
	for i := range b.FiveWire.Thresholds {
		b.FiveWire.Thresholds[i] = 2000
		b.FiveWire.Hysteresis[i] = 100
	}
	for i := range b.Voltage.Min {
		b.Voltage.Min[i] = 10800
		b.Voltage.Max[i] = 13200
	}
	b.Factory.BoardRevision = 1
	for i := range b.Factory.CalibrationGain {
		b.Factory.CalibrationGain[i] = 1000
	}
	b.SealAll(seed)
	return b
}

// Load reads the aggregate. Sub-blocks failing their checksum are replaced by defaults and reported
// invalid, the others are kept. If the partition cannot be read everything falls back to defaults.
func (p *Params) Load() error {
	defaults := Defaults(p.seed)
	p.block = defaults
	p.valid = [params.NumSubBlocks]bool{}

	raw := make([]byte, params.Size)
	if err := p.parts.ReadPartition(blocks.SystemParametersPartition, 0, raw); err != nil {
		p.log.Warn("System parameters unavailable, using defaults", zap.Error(err))
		return err
	}

	stored, err := params.Unmarshal(raw)
	if err != nil {
		return err
	}

	for _, id := range params.AllSubBlocks {
		if err := stored.Verify(id, p.seed); err != nil {
			p.log.Warn("Sub-block is corrupted, using defaults", zap.Stringer("subBlock", id), zap.Error(err))
			continue
		}
		p.valid[id] = true
		p.copySubBlock(id, stored)
	}
	return nil
}

// Valid reports whether the sub-block was loaded from the device or has been set since.
func (p *Params) Valid(id params.ID) bool {
	return p.valid[id]
}

// Block returns a copy of the whole aggregate.
func (p *Params) Block() params.Block {
	return p.block
}

// General returns general parameters.
func (p *Params) General() params.General {
	return p.block.General
}

// DateStamp returns date stamp and licensing data.
func (p *Params) DateStamp() params.DateStamp {
	return p.block.DateStamp
}

// FiveWire returns the five-wire diagnostic table.
func (p *Params) FiveWire() params.FiveWire {
	return p.block.FiveWire
}

// Voltage returns voltage limits.
func (p *Params) Voltage() params.Voltage {
	return p.block.Voltage
}

// Factory returns factory settings.
func (p *Params) Factory() params.Factory {
	return p.block.Factory
}

// SetGeneral replaces general parameters in memory. Store persists them.
func (p *Params) SetGeneral(v params.General) {
	p.block.General = v
	p.sealed(params.GeneralID)
}

// SetDateStamp replaces date stamp and licensing data in memory.
func (p *Params) SetDateStamp(v params.DateStamp) {
	p.block.DateStamp = v
	p.sealed(params.DateStampID)
}

// SetFiveWire replaces the five-wire diagnostic table in memory.
func (p *Params) SetFiveWire(v params.FiveWire) {
	p.block.FiveWire = v
	p.sealed(params.FiveWireID)
}

// SetVoltage replaces voltage limits in memory.
func (p *Params) SetVoltage(v params.Voltage) {
	p.block.Voltage = v
	p.sealed(params.VoltageID)
}

// SetFactory replaces factory settings in memory.
func (p *Params) SetFactory(v params.Factory) {
	p.block.Factory = v
	p.sealed(params.FactoryID)
}

// Store writes one sub-block to the device.
func (p *Params) Store(id params.ID) error {
	if int(id) >= params.NumSubBlocks {
		return errors.Errorf("unknown sub-block %d", id)
	}
	p.log.Debug("Storing sub-block", zap.Stringer("subBlock", id))
	return p.parts.WritePartition(blocks.SystemParametersPartition, uint32(params.Offset(id)),
		p.block.SubBlockBytes(id))
}

// StoreAll writes the whole aggregate to the device.
func (p *Params) StoreAll() error {
	if err := p.parts.WritePartition(blocks.SystemParametersPartition, 0, p.block.Marshal()); err != nil {
		return err
	}
	for _, id := range params.AllSubBlocks {
		p.valid[id] = true
	}
	return nil
}

func (p *Params) sealed(id params.ID) {
	p.block.Seal(id, p.seed)
	p.valid[id] = true
}

func (p *Params) copySubBlock(id params.ID, from params.Block) {
	switch id {
	case params.GeneralID:
		p.block.General = from.General
	case params.DateStampID:
		p.block.DateStamp = from.DateStamp
	case params.FiveWireID:
		p.block.FiveWire = from.FiveWire
	case params.VoltageID:
		p.block.Voltage = from.Voltage
	case params.FactoryID:
		p.block.Factory = from.Factory
	}
}
