package status

import (
	"github.com/pkg/errors"

	"github.com/outofforest/nvstore/blocks"
	"github.com/outofforest/nvstore/persistence"
)

// Flags is the sticky status bitmask.
type Flags uint16

// Status flags.
const (
	FlagNotTrusted Flags = 1 << iota
	FlagHomeChecksum
	FlagVersionStale
	FlagPartitionInvalid
	FlagTransport
	FlagOutOfRange
	FlagDataError
	FlagFormatFailed
	FlagGeneral
	FlagDateStamp
	FlagFiveWire
	FlagVoltage
	FlagFactory
	FlagAuditFailed
)

// Has reports whether every flag of f2 is set.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 == f2
}

// Aggregator keeps the sticky status of the store. It only learns about failures by observing results
// returned to the caller, components never write to it.
type Aggregator struct {
	flags      Flags
	directory  persistence.Status
	valid      uint8
	version    blocks.Version
	lastError  uint16
	errorCount uint16
}

// Observe records err and returns it unchanged, so it can wrap any call.
func (a *Aggregator) Observe(err error) error {
	if err == nil {
		return nil
	}

	code := Code(err)
	switch code {
	case CodeNotFound:
		return err
	case CodeNotTrusted, CodeUnknownPartition:
		a.flags |= FlagNotTrusted
	case CodeIntegrity:
		a.flags |= FlagHomeChecksum
	case CodeOutOfRange:
		a.flags |= FlagOutOfRange
	case CodeDataError:
		a.flags |= FlagDataError
	case CodeHomeWrite:
		a.flags |= FlagFormatFailed | FlagTransport
	default:
		a.flags |= FlagTransport
	}

	a.lastError = code
	if a.errorCount < 0xFFFF {
		a.errorCount++
	}
	return err
}

// ObserveDirectory records the state of the partition directory.
func (a *Aggregator) ObserveDirectory(s persistence.Status, valid uint8, version blocks.Version) {
	a.directory = s
	a.valid = valid
	a.version = version

	switch s {
	case persistence.Trusted:
	case persistence.VersionMismatchMinor:
		a.flags |= FlagVersionStale
	case persistence.ChecksumFailed:
		a.flags |= FlagNotTrusted | FlagHomeChecksum
	default:
		a.flags |= FlagNotTrusted
	}
	if s.Usable() && valid != blocks.AllValid {
		a.flags |= FlagPartitionInvalid
	}
}

// Raise sets flags reported by a component, e.g. the auditor.
func (a *Aggregator) Raise(f Flags) {
	a.flags |= f
}

// Flags returns sticky flags.
func (a *Aggregator) Flags() Flags {
	return a.flags
}

// Clear returns sticky flags and resets them together with the error counter.
func (a *Aggregator) Clear() Flags {
	f := a.flags
	a.flags = 0
	a.lastError = CodeNone
	a.errorCount = 0
	return f
}

// Snapshot returns the current status.
func (a *Aggregator) Snapshot() Snapshot {
	return Snapshot{
		Health:     a.health(),
		Flags:      a.flags,
		Directory:  a.directory,
		Valid:      a.valid,
		Version:    a.version,
		LastError:  a.lastError,
		ErrorCount: a.errorCount,
	}
}

func (a *Aggregator) health() uint16 {
	switch {
	case a.directory == persistence.Unloaded && a.flags == 0:
		return HealthUnknown
	case a.directory == persistence.Unloaded:
		return HealthError
	case !a.directory.Usable():
		return HealthNeedsFormat
	case a.flags.Has(FlagTransport) || a.flags.Has(FlagFormatFailed):
		return HealthError
	case a.flags != 0:
		return HealthDegraded
	default:
		return HealthOK
	}
}

// Code classifies an error returned by the store.
func Code(err error) uint16 {
	switch {
	case err == nil:
		return CodeNone
	case errors.Is(err, blocks.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, persistence.ErrHomeWrite):
		return CodeHomeWrite
	case errors.Is(err, blocks.ErrUnknownPartition):
		return CodeUnknownPartition
	case errors.Is(err, blocks.ErrNotTrusted):
		return CodeNotTrusted
	case errors.Is(err, blocks.ErrOutOfRange):
		return CodeOutOfRange
	case errors.Is(err, blocks.ErrDataError):
		return CodeDataError
	case errors.Is(err, blocks.ErrChecksum), errors.Is(err, persistence.ErrVerification):
		return CodeIntegrity
	default:
		return CodeTransport
	}
}
