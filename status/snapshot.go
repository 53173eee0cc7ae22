package status

import (
	"github.com/outofforest/nvstore/blocks"
	"github.com/outofforest/nvstore/persistence"
)

// Snapshot is the status delivered to the host.
type Snapshot struct {
	Health     uint16
	Flags      Flags
	Directory  persistence.Status
	Valid      uint8
	Version    blocks.Version
	LastError  uint16
	ErrorCount uint16
}

// Encode converts a snapshot into the status register block. No I/O.
func Encode(s Snapshot) []uint16 {
	regs := make([]uint16, Registers)

	regs[RegHealth] = s.Health
	regs[RegFlags] = uint16(s.Flags)
	regs[RegDirectory] = uint16(s.Directory)
	regs[RegValid] = uint16(s.Valid)
	regs[RegLastError] = s.LastError
	regs[RegErrorCount] = s.ErrorCount
	regs[RegVersion] = uint16(s.Version.Major)<<8 | uint16(s.Version.Minor)

	return regs
}
