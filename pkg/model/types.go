// Package model defines the block and chain types shared by the hashtrail packages.
package model

import "strings"

// HashValue is a SHA-256 digest stored as lowercase hex.
type HashValue string

// ZeroHash is the previous_hash of the genesis block.
var ZeroHash = HashValue(strings.Repeat("0", 64))

// Operation identifies what a block records.
type Operation string

const (
	OpGenesis      Operation = "GENESIS"
	OpHash         Operation = "HASH"
	OpVerification Operation = "VERIFICATION"
)

// Valid reports whether op is one of the known operations.
func (op Operation) Valid() bool {
	switch op {
	case OpGenesis, OpHash, OpVerification:
		return true
	}
	return false
}

// Recordable reports whether op may be appended by a caller (GENESIS may not).
func (op Operation) Recordable() bool {
	return op == OpHash || op == OpVerification
}

// Verification results stored in VERIFICATION blocks.
const (
	ResultValid   = "valid"
	ResultInvalid = "invalid"
)

// Timestamp formats. Blocks keep the exact serialized string because header
// hashes are computed over it.
const (
	TimestampLayout  = "2006-01-02T15:04:05.000000Z"
	GenesisTimestamp = "2023-01-01T00:00:00Z"
)
