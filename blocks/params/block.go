package params

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"

	"github.com/outofforest/nvstore/blocks"
)

// ID identifies a sub-block of the system-parameter aggregate.
type ID uint8

// Sub-blocks, in on-device order.
const (
	GeneralID ID = iota
	DateStampID
	FiveWireID
	VoltageID
	FactoryID
)

// NumSubBlocks is the number of independently checksummed sub-blocks.
const NumSubBlocks = 5

// AllSubBlocks lists sub-blocks in on-device order.
var AllSubBlocks = [NumSubBlocks]ID{GeneralID, DateStampID, FiveWireID, VoltageID, FactoryID}

var subBlockNames = [NumSubBlocks]string{"general", "datestamp", "fivewire", "voltage", "factory"}

func (id ID) String() string {
	if id >= NumSubBlocks {
		return fmt.Sprintf("subblock(%d)", id)
	}
	return subBlockNames[id]
}

// General holds operating parameters.
type General struct {
	Options            uint16
	ProbeMode          uint8
	RelayMode          uint8
	DeadmanSeconds     uint16
	BypassMinutes      uint16
	GroundFaultDelayMs uint16
	TruckIDRequired    uint8
	ModbusAddress      uint8
	BaudCode           uint8
	Reserved           [17]byte
	Checksum           uint16
}

// DateStamp holds manufacturing dates and licensing data.
type DateStamp struct {
	ManufactureDate  uint32
	CalibrationDate  uint32
	LicenseFeatures  uint32
	FeaturesPassword [8]byte
	UnitSerial       uint32
	Reserved         [6]byte
	Checksum         uint16
}

// FiveWireChannels is the number of channels in the five-wire diagnostic table.
const FiveWireChannels = 15

// FiveWire is the five-wire optic diagnostic table.
type FiveWire struct {
	Thresholds [FiveWireChannels]uint16
	Hysteresis [FiveWireChannels]uint16
	Reserved   [2]byte
	Checksum   uint16
}

// VoltageRails is the number of supervised supply rails.
const VoltageRails = 6

// Voltage holds supply voltage limits in millivolts.
type Voltage struct {
	Min      [VoltageRails]uint16
	Max      [VoltageRails]uint16
	Reserved [6]byte
	Checksum uint16
}

// FactoryChannels is the number of calibrated analog channels.
const FactoryChannels = 8

// Factory holds factory calibration.
type Factory struct {
	BoardRevision     uint16
	CalibrationGain   [FactoryChannels]uint16
	CalibrationOffset [FactoryChannels]int16
	Reserved          [28]byte
	Checksum          uint16
}

// Block is the whole system-parameter aggregate as stored in the partition.
type Block struct {
	General   General
	DateStamp DateStamp
	FiveWire  FiveWire
	Voltage   Voltage
	Factory   Factory
}

var (
	subBlockSizes = [NumSubBlocks]int{
		binary.Size(General{}),
		binary.Size(DateStamp{}),
		binary.Size(FiveWire{}),
		binary.Size(Voltage{}),
		binary.Size(Factory{}),
	}
	subBlockOffsets = func() [NumSubBlocks]int {
		var offsets [NumSubBlocks]int
		for i := 1; i < NumSubBlocks; i++ {
			offsets[i] = offsets[i-1] + subBlockSizes[i-1]
		}
		return offsets
	}()
)

// Size is the size of the aggregate.
var Size = binary.Size(Block{})

// Offset returns the offset of the sub-block inside the aggregate.
func Offset(id ID) int {
	return subBlockOffsets[id]
}

// SizeOf returns the size of the sub-block, including its checksum.
func SizeOf(id ID) int {
	return subBlockSizes[id]
}

// Marshal encodes the aggregate.
func (b Block) Marshal() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, Size))
	_ = binary.Write(buf, binary.LittleEndian, b)
	return buf.Bytes()
}

// Unmarshal decodes the aggregate.
func Unmarshal(p []byte) (Block, error) {
	if len(p) < Size {
		return Block{}, errors.Errorf("system parameters require %d bytes, got %d", Size, len(p))
	}
	var b Block
	if err := binary.Read(bytes.NewReader(p[:Size]), binary.LittleEndian, &b); err != nil {
		return Block{}, errors.WithStack(err)
	}
	return b, nil
}

// SubBlockBytes returns the encoded sub-block, including its checksum.
func (b Block) SubBlockBytes(id ID) []byte {
	return b.Marshal()[Offset(id) : Offset(id)+SizeOf(id)]
}

// ComputeChecksum computes CRC-16 of the sub-block over its own preceding bytes.
func (b Block) ComputeChecksum(id ID, seed uint16) uint16 {
	raw := b.SubBlockBytes(id)
	return blocks.CRC16(raw[:len(raw)-2], seed)
}

// StoredChecksum returns the checksum stored in the sub-block.
func (b Block) StoredChecksum(id ID) uint16 {
	switch id {
	case GeneralID:
		return b.General.Checksum
	case DateStampID:
		return b.DateStamp.Checksum
	case FiveWireID:
		return b.FiveWire.Checksum
	case VoltageID:
		return b.Voltage.Checksum
	default:
		return b.Factory.Checksum
	}
}

// Verify verifies the checksum of the sub-block.
func (b Block) Verify(id ID, seed uint16) error {
	raw := b.SubBlockBytes(id)
	return blocks.VerifyCRC16(id.String(), raw[:len(raw)-2], seed, b.StoredChecksum(id))
}

// Seal stores a freshly computed checksum in the sub-block.
func (b *Block) Seal(id ID, seed uint16) {
	sum := b.ComputeChecksum(id, seed)
	switch id {
	case GeneralID:
		b.General.Checksum = sum
	case DateStampID:
		b.DateStamp.Checksum = sum
	case FiveWireID:
		b.FiveWire.Checksum = sum
	case VoltageID:
		b.Voltage.Checksum = sum
	default:
		b.Factory.Checksum = sum
	}
}

// SealAll seals every sub-block.
func (b *Block) SealAll(seed uint16) {
	for _, id := range AllSubBlocks {
		b.Seal(id, seed)
	}
}
