package modbusdev

import (
	"time"

	"github.com/goburrow/modbus"
	"github.com/pkg/errors"
)

const (
	// MaxReadRegisters is the protocol limit of registers read by one request.
	MaxReadRegisters = 125
	// MaxWriteRegisters is the protocol limit of registers written by one request.
	MaxWriteRegisters = 123
	// MaxPageSize is the biggest page which fits one write request even when it is not register aligned.
	MaxPageSize = 2 * (MaxWriteRegisters - 1)
)

// Registers is the part of the ModBus client used by the device.
type Registers interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error)
}

// Config configures a ModBus TCP connection.
type Config struct {
	Endpoint     string
	UnitID       uint8
	Timeout      time.Duration
	BaseRegister uint16
	Size         uint32
	PageSize     uint32
}

// Device is an EEPROM image exposed by the controller as holding registers. Every register carries
// two bytes, the byte with lower address in the high half.
type Device struct {
	regs     Registers
	base     uint16
	size     uint32
	pageSize uint32
	closer   func() error
}

// New returns device accessing the image through regs.
func New(regs Registers, base uint16, size, pageSize uint32) (*Device, error) {
	if pageSize == 0 || pageSize > MaxPageSize {
		return nil, errors.Errorf("page size must be in range 1-%d, got %d", MaxPageSize, pageSize)
	}
	if size == 0 || size%2 != 0 {
		return nil, errors.Errorf("size must be positive and even, got %d", size)
	}
	if uint64(base)+uint64(size/2) > 1<<16 {
		return nil, errors.Errorf("image of %d bytes at register %d exceeds register space", size, base)
	}
	return &Device{
		regs:     regs,
		base:     base,
		size:     size,
		pageSize: pageSize,
		closer:   func() error { return nil },
	}, nil
}

// Dial connects to the controller over ModBus TCP.
func Dial(cfg Config) (*Device, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("modbus endpoint required")
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout
	h.SlaveId = cfg.UnitID
	if err := h.Connect(); err != nil {
		return nil, errors.Wrapf(err, "connecting to %s", cfg.Endpoint)
	}

	d, err := New(modbus.NewClient(h), cfg.BaseRegister, cfg.Size, cfg.PageSize)
	if err != nil {
		_ = h.Close()
		return nil, err
	}
	d.closer = h.Close
	return d, nil
}

// PageSize returns the page size.
func (d *Device) PageSize() uint32 {
	return d.pageSize
}

// Size returns the size of the image.
func (d *Device) Size() uint32 {
	return d.size
}

// ReadAt reads data from the image.
func (d *Device) ReadAt(addr uint32, p []byte) error {
	if err := d.check(addr, p); err != nil {
		return err
	}

	first, qty := span(addr, uint32(len(p)))
	raw, err := d.read(first, qty)
	if err != nil {
		return err
	}
	copy(p, raw[addr%2:])
	return nil
}

// WriteAt writes data to the image. Bytes sharing a register with p at unaligned edges are read first
// and written back unchanged.
func (d *Device) WriteAt(addr uint32, p []byte) error {
	if err := d.check(addr, p); err != nil {
		return err
	}

	first, qty := span(addr, uint32(len(p)))
	var raw []byte
	if addr%2 != 0 || (addr+uint32(len(p)))%2 != 0 {
		var err error
		if raw, err = d.read(first, qty); err != nil {
			return err
		}
	} else {
		raw = make([]byte, 2*qty)
	}
	copy(raw[addr%2:], p)

	if _, err := d.regs.WriteMultipleRegisters(d.base+first, qty, raw); err != nil {
		return errors.Wrapf(err, "writing %d registers at %d", qty, d.base+first)
	}
	return nil
}

// Close closes the connection.
func (d *Device) Close() error {
	return d.closer()
}

func (d *Device) read(first, qty uint16) ([]byte, error) {
	raw, err := d.regs.ReadHoldingRegisters(d.base+first, qty)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %d registers at %d", qty, d.base+first)
	}
	if len(raw) != 2*int(qty) {
		return nil, errors.Errorf("reading %d registers at %d returned %d bytes", qty, d.base+first, len(raw))
	}
	return raw, nil
}

func (d *Device) check(addr uint32, p []byte) error {
	if len(p) == 0 || uint32(len(p)) > d.pageSize {
		return errors.Errorf("invalid transfer size: %d", len(p))
	}
	if uint64(addr)+uint64(len(p)) > uint64(d.size) {
		return errors.Errorf("invalid address: %d, size: %d", addr, len(p))
	}
	return nil
}

// span returns the first register and the number of registers covering n bytes at addr.
func span(addr, n uint32) (uint16, uint16) {
	first := addr / 2
	last := (addr + n - 1) / 2
	return uint16(first), uint16(last - first + 1)
}
