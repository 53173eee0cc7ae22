package memdev

import (
	"time"

	"github.com/pkg/errors"
)

// Op is the kind of device operation passed to the fault hook.
type Op byte

// Device operations.
const (
	ReadOp Op = iota
	WriteOp
)

// DefaultPageSize is the page size of the 24-series EEPROM parts the controller ships with.
const DefaultPageSize = 128

// MemDev simulates an EEPROM in memory. A new device is blank: every byte is erased.
type MemDev struct {
	pageSize uint32
	data     []byte

	// Reads counts ReadAt calls, including failed ones.
	Reads int
	// Writes counts WriteAt calls, including failed ones.
	Writes int

	// Fault, when set, is consulted before every transfer. A non-nil result fails the transfer
	// without touching the data.
	Fault func(op Op, addr uint32, n int) error

	// WriteDelay simulates the page write cycle time.
	WriteDelay time.Duration
}

// New returns new memdev.
func New(size, pageSize uint32) *MemDev {
	data := make([]byte, size)
	for i := range data {
		data[i] = 0xFF
	}
	return &MemDev{
		pageSize: pageSize,
		data:     data,
	}
}

// PageSize returns the page size.
func (md *MemDev) PageSize() uint32 {
	return md.pageSize
}

// Size returns the size of the device.
func (md *MemDev) Size() uint32 {
	return uint32(len(md.data))
}

// ReadAt reads data from the memdev.
func (md *MemDev) ReadAt(addr uint32, p []byte) error {
	md.Reads++
	if err := md.check(ReadOp, addr, p); err != nil {
		return err
	}
	copy(p, md.data[addr:])
	return nil
}

// WriteAt writes data to the memdev.
func (md *MemDev) WriteAt(addr uint32, p []byte) error {
	md.Writes++
	if err := md.check(WriteOp, addr, p); err != nil {
		return err
	}
	if md.WriteDelay > 0 {
		time.Sleep(md.WriteDelay)
	}
	copy(md.data[addr:], p)
	return nil
}

// Transfers returns the total number of transport calls.
func (md *MemDev) Transfers() int {
	return md.Reads + md.Writes
}

// ResetCounters zeroes transport counters.
func (md *MemDev) ResetCounters() {
	md.Reads = 0
	md.Writes = 0
}

// Bytes gives direct access to the device content, bypassing counters and faults.
func (md *MemDev) Bytes() []byte {
	return md.data
}

func (md *MemDev) check(op Op, addr uint32, p []byte) error {
	if len(p) == 0 || uint32(len(p)) > md.pageSize {
		return errors.Errorf("invalid transfer size: %d", len(p))
	}
	if uint64(addr)+uint64(len(p)) > uint64(len(md.data)) {
		return errors.Errorf("invalid address: %d, size: %d", addr, len(p))
	}
	if addr/md.pageSize != (addr+uint32(len(p))-1)/md.pageSize {
		return errors.Errorf("transfer crosses page boundary, address: %d, size: %d", addr, len(p))
	}
	if md.Fault != nil {
		return md.Fault(op, addr, len(p))
	}
	return nil
}
