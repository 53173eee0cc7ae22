package status

// Status register block layout. It is read by the host over ModBus and must not change.

// Registers is the number of registers in the status block.
const Registers = 8

// Register indices.
const (
	RegHealth = iota
	RegFlags
	RegDirectory
	RegValid
	RegLastError
	RegErrorCount
	RegVersion
	RegReserved
)

// Health codes.
const (
	// HealthUnknown means nothing has been observed yet.
	HealthUnknown uint16 = iota
	HealthOK
	// HealthDegraded means the store runs but some partition or sub-block is not trusted.
	HealthDegraded
	// HealthNeedsFormat means the directory is not usable and nothing is persisted.
	HealthNeedsFormat
	HealthError
)

// Error codes reported in RegLastError.
const (
	CodeNone uint16 = iota
	CodeTransport
	CodeNotTrusted
	CodeIntegrity
	CodeOutOfRange
	CodeDataError
	CodeUnknownPartition
	CodeHomeWrite
	CodeNotFound
)
