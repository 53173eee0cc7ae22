package blocks

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Erased is the value of an erased EEPROM cell. A slot made only of erased bytes is empty.
const Erased byte = 0xFF

// PartitionID identifies a logical partition of the device.
type PartitionID uint8

// Partitions, in the order they are stored in the Home Record.
const (
	BootPartition PartitionID = iota
	CrashPartition
	SystemParametersPartition
	LogPartition
	BypassKeyPartition
	TruckIDPartition
)

// NumPartitions is the number of partitions described by the Home Record.
const NumPartitions = 6

// AllPartitions lists every partition in Home Record order.
var AllPartitions = [NumPartitions]PartitionID{
	BootPartition,
	CrashPartition,
	SystemParametersPartition,
	LogPartition,
	BypassKeyPartition,
	TruckIDPartition,
}

var partitionNames = [NumPartitions]string{
	"boot",
	"crash",
	"sysparams",
	"log",
	"bypasskey",
	"truckid",
}

func (id PartitionID) String() string {
	if !id.Known() {
		return fmt.Sprintf("partition(%d)", id)
	}
	return partitionNames[id]
}

// Known reports whether id names one of the six partitions.
func (id PartitionID) Known() bool {
	return id < NumPartitions
}

// Bit returns the validity bit of the partition.
func (id PartitionID) Bit() uint8 {
	return 1 << id
}

// ParsePartitionID parses the name returned by String.
func ParsePartitionID(name string) (PartitionID, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range partitionNames {
		if n == name {
			return PartitionID(i), nil
		}
	}
	return 0, errors.Errorf("unknown partition %q", name)
}

// AllValid is the validity mask with every partition bit set.
const AllValid uint8 = 1<<NumPartitions - 1

// Extent is the location of a partition on the device.
type Extent struct {
	Length uint32
	Base   uint32
}

// End returns the first offset after the extent.
func (e Extent) End() uint64 {
	return uint64(e.Base) + uint64(e.Length)
}

// Overlaps reports whether two non-empty extents share at least one byte.
func (e Extent) Overlaps(o Extent) bool {
	if e.Length == 0 || o.Length == 0 {
		return false
	}
	return uint64(e.Base) < o.End() && uint64(o.Base) < e.End()
}

// Version is the format version stored in the Home Record.
type Version struct {
	Major uint8
	Minor uint8
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// IsErased reports whether every byte of p holds the erased value.
func IsErased(p []byte) bool {
	for _, b := range p {
		if b != Erased {
			return false
		}
	}
	return true
}
