package event

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/outofforest/nvstore/blocks"
)

// Size is the size of one stored log entry.
const Size = 16

const checksumOffset = Size - 2

// Code classifies a log entry.
type Code uint16

// Codes recorded by the storage engine itself. Other components define their own above CodeUser.
const (
	CodeFormat Code = iota + 1
	CodeMigrate
	CodeAuditFailed
	CodeKeysErased
	CodeTrucksErased
	CodeParamsWritten

	CodeUser Code = 0x100
)

var codeNames = map[Code]string{
	CodeFormat:        "format",
	CodeMigrate:       "migrate",
	CodeAuditFailed:   "audit-failed",
	CodeKeysErased:    "keys-erased",
	CodeTrucksErased:  "trucks-erased",
	CodeParamsWritten: "params-written",
}

func (c Code) String() string {
	if name, exists := codeNames[c]; exists {
		return name
	}
	if c >= CodeUser {
		return fmt.Sprintf("user(%d)", c-CodeUser)
	}
	return fmt.Sprintf("code(%d)", uint16(c))
}

// Block is the stored log entry.
type Block struct {
	Seq      uint32
	Time     uint32
	Code     Code
	Arg      [4]byte
	Checksum uint16
}

// Marshal encodes the entry.
func (b Block) Marshal() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, Size))
	_ = binary.Write(buf, binary.LittleEndian, b)
	return buf.Bytes()
}

// Unmarshal decodes an entry, p must hold at least Size bytes.
func Unmarshal(p []byte) Block {
	var b Block
	_ = binary.Read(bytes.NewReader(p[:Size]), binary.LittleEndian, &b)
	return b
}

// Seal stores a freshly computed checksum in the entry.
func (b *Block) Seal(seed uint16) {
	b.Checksum = blocks.CRC16(b.Marshal()[:checksumOffset], seed)
}

// Verify reports whether the stored checksum matches.
func (b Block) Verify(seed uint16) bool {
	return blocks.CRC16(b.Marshal()[:checksumOffset], seed) == b.Checksum
}
