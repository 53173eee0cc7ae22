package blocks

import (
	"github.com/pkg/errors"
	"github.com/sigurn/crc16"
	"github.com/sigurn/crc8"
)

// DefaultCRC16Seed is the CRC-16 seed used when the deployment does not configure one.
const DefaultCRC16Seed uint16 = 0xFFFF

// ErrChecksum is returned when the stored checksum does not match the computed one.
var ErrChecksum = errors.New("checksum mismatch")

var (
	crc16Table = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)
	crc8Table  = crc8.MakeTable(crc8.CRC8)
)

// CRC16 computes CRC-16/CCITT of b starting from seed.
func CRC16(b []byte, seed uint16) uint16 {
	return crc16.Update(seed, b, crc16Table)
}

// CRC8 computes CRC-8 (polynomial 0x07) of b.
func CRC8(b []byte) uint8 {
	return crc8.Checksum(b, crc8Table)
}

// VerifyCRC16 verifies that CRC-16 of p matches the expected one.
func VerifyCRC16(what string, p []byte, seed, expected uint16) error {
	computed := CRC16(p, seed)
	if computed == expected {
		return nil
	}
	return errors.Wrapf(ErrChecksum, "%s, computed: %04x, stored: %04x", what, computed, expected)
}
